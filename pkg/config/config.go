package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/hashicorp/go-multierror"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// FlagPrefix is the prefix of every configuration flag.
const FlagPrefix = "da-sequencer."

const (
	// Base configuration flags

	// FlagRootDir is a flag for specifying the root directory
	FlagRootDir = "home"
	// FlagDBPath is a flag for specifying the database path
	FlagDBPath = FlagPrefix + "db_path"

	// gRPC configuration flags

	// FlagGRPCListenAddress is a flag for specifying the gRPC listen address
	FlagGRPCListenAddress = FlagPrefix + "grpc.listen_address"
	// FlagGRPCMaxOpenConnections is a flag for limiting simultaneous gRPC connections
	FlagGRPCMaxOpenConnections = FlagPrefix + "grpc.max_open_connections"

	// Sequencer configuration flags

	// FlagBlockTime is a flag for specifying the block production interval
	FlagBlockTime = FlagPrefix + "sequencer.block_time"
	// FlagHeartbeatInterval is a flag for specifying the block stream heartbeat interval
	FlagHeartbeatInterval = FlagPrefix + "sequencer.heartbeat_interval"
	// FlagMaxBlockSize is a flag for specifying the maximum encoded block size
	FlagMaxBlockSize = FlagPrefix + "sequencer.max_block_size"
	// FlagBatchQueueSize is a flag for specifying how many validated batches may wait for the producer
	FlagBatchQueueSize = FlagPrefix + "sequencer.batch_queue_size"
	// FlagWhitelistPath is a flag for specifying the whitelist file
	FlagWhitelistPath = FlagPrefix + "sequencer.whitelist_path"

	// Data Availability configuration flags

	// FlagDABackend is a flag for selecting the DA backend
	FlagDABackend = FlagPrefix + "da.backend"
	// FlagDAAddress is a flag for specifying the data availability layer address
	FlagDAAddress = FlagPrefix + "da.address"
	// FlagDAAuthToken is a flag for specifying the data availability layer auth token
	FlagDAAuthToken = FlagPrefix + "da.auth_token" // #nosec G101
	// FlagDANamespace is a flag for specifying the DA namespace ID
	FlagDANamespace = FlagPrefix + "da.namespace"
	// FlagDAGasPrice is a flag for specifying the data availability layer gas price
	FlagDAGasPrice = FlagPrefix + "da.gas_price"
	// FlagDAMaxBlobSize is a flag for capping the size of one DA blob
	FlagDAMaxBlobSize = FlagPrefix + "da.max_blob_size"
	// FlagDASubmitAttempts is a flag for bounding submission attempts of one blob
	FlagDASubmitAttempts = FlagPrefix + "da.submit_attempts"
	// FlagDASubmitBackoff is a flag for the delay before the first submission retry
	FlagDASubmitBackoff = FlagPrefix + "da.submit_backoff"
	// FlagDAMaxBackoff is a flag for capping the submission retry delay
	FlagDAMaxBackoff = FlagPrefix + "da.max_backoff"
	// FlagDAChannelSize is a flag for the capacity of the digest channel
	FlagDAChannelSize = FlagPrefix + "da.channel_size"

	// Instrumentation configuration flags

	// FlagPrometheus is a flag for enabling Prometheus metrics
	FlagPrometheus = FlagPrefix + "instrumentation.prometheus"
	// FlagPrometheusListenAddr is a flag for specifying the Prometheus listen address
	FlagPrometheusListenAddr = FlagPrefix + "instrumentation.prometheus_listen_addr"
	// FlagMaxOpenConnections is a flag for specifying the maximum number of open connections
	FlagMaxOpenConnections = FlagPrefix + "instrumentation.max_open_connections"
	// FlagPprof is a flag for enabling pprof profiling endpoints for runtime debugging
	FlagPprof = FlagPrefix + "instrumentation.pprof"
	// FlagPprofListenAddr is a flag for specifying the pprof listen address
	FlagPprofListenAddr = FlagPrefix + "instrumentation.pprof_listen_addr"

	// Logging configuration flags

	// FlagLogLevel is a flag for specifying the log level
	FlagLogLevel = FlagPrefix + "log.level"
	// FlagLogFormat is a flag for specifying the log format
	FlagLogFormat = FlagPrefix + "log.format"
	// FlagLogTrace is a flag for enabling stack traces in error logs
	FlagLogTrace = FlagPrefix + "log.trace"

	// Signer configuration flags

	// FlagSignerPath is a flag for specifying the directory of the client signing key
	FlagSignerPath = FlagPrefix + "signer.path"
)

// DA backends.
const (
	DABackendCelestia = "celestia"
	DABackendLocal    = "local"
	DABackendMemory   = "memory"
)

// DurationWrapper is a wrapper for time.Duration that implements encoding.TextMarshaler and encoding.TextUnmarshaler
// needed for YAML marshalling/unmarshalling especially for time.Duration
type DurationWrapper struct {
	time.Duration
}

// MarshalText implements encoding.TextMarshaler to format the duration as text
func (d DurationWrapper) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler to parse the duration from text
func (d *DurationWrapper) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// Config stores the DA-sequencer configuration.
type Config struct {
	// Base configuration
	RootDir string `mapstructure:"-" yaml:"-" comment:"Root directory where da-sequencer files are located"`
	DBPath  string `mapstructure:"db_path" yaml:"db_path" comment:"Path inside the root directory where the database is located"`

	// gRPC configuration
	GRPC GRPCConfig `mapstructure:"grpc" yaml:"grpc"`

	// Block production configuration
	Sequencer SequencerConfig `mapstructure:"sequencer" yaml:"sequencer"`

	// Data availability configuration
	DA DAConfig `mapstructure:"da" yaml:"da"`

	// Instrumentation configuration
	Instrumentation *InstrumentationConfig `mapstructure:"instrumentation" yaml:"instrumentation"`

	// Logging configuration
	Log LogConfig `mapstructure:"log" yaml:"log"`

	// Client signer configuration
	Signer SignerConfig `mapstructure:"signer" yaml:"signer"`
}

// GRPCConfig contains the gRPC server configuration parameters
type GRPCConfig struct {
	ListenAddress      string `mapstructure:"listen_address" yaml:"listen_address" comment:"Address the gRPC server binds to (host:port)."`
	MaxOpenConnections int    `mapstructure:"max_open_connections" yaml:"max_open_connections" comment:"Maximum number of simultaneous gRPC connections. 0 means unlimited."`
}

// SequencerConfig contains the block production parameters
type SequencerConfig struct {
	BlockTime         DurationWrapper `mapstructure:"block_time" yaml:"block_time" comment:"Block production interval (duration). Quiet intervals produce no block. Examples: \"500ms\", \"1s\"."`
	HeartbeatInterval DurationWrapper `mapstructure:"heartbeat_interval" yaml:"heartbeat_interval" comment:"Interval of heartbeat messages on idle block streams (duration)."`
	MaxBlockSize      int             `mapstructure:"max_block_size" yaml:"max_block_size" comment:"Maximum encoded size of a block in bytes. A batch larger than this is rejected."`
	BatchQueueSize    int             `mapstructure:"batch_queue_size" yaml:"batch_queue_size" comment:"Number of validated batches that may wait for the block producer before BatchWrite reports exhaustion."`
	WhitelistPath     string          `mapstructure:"whitelist_path" yaml:"whitelist_path" comment:"Whitelist file with one hex encoded Ed25519 public key per line. Relative paths are resolved against the root directory."`
}

// DAConfig contains all Data Availability configuration parameters
type DAConfig struct {
	Backend        string          `mapstructure:"backend" yaml:"backend" comment:"DA backend: celestia (celestia-node JSON-RPC), local (persistent on-disk DA for development) or memory."`
	Address        string          `mapstructure:"address" yaml:"address" comment:"Address of the celestia-node RPC endpoint."`
	AuthToken      string          `mapstructure:"auth_token" yaml:"auth_token" comment:"Authentication token for the celestia-node RPC endpoint."`
	Namespace      string          `mapstructure:"namespace" yaml:"namespace" comment:"Hex encoded namespace ID used when submitting blobs to the DA layer."`
	GasPrice       float64         `mapstructure:"gas_price" yaml:"gas_price" comment:"Gas price for blob transactions. Use -1 for automatic gas price determination."`
	MaxBlobSize    int             `mapstructure:"max_blob_size" yaml:"max_blob_size" comment:"Maximum encoded size of one DA blob in bytes."`
	SubmitAttempts int             `mapstructure:"submit_attempts" yaml:"submit_attempts" comment:"Attempts for one blob before the sequencer gives up and stops."`
	SubmitBackoff  DurationWrapper `mapstructure:"submit_backoff" yaml:"submit_backoff" comment:"Delay before the first submission retry. It doubles on every retry."`
	MaxBackoff     DurationWrapper `mapstructure:"max_backoff" yaml:"max_backoff" comment:"Upper bound of the submission retry delay."`
	ChannelSize    int             `mapstructure:"channel_size" yaml:"channel_size" comment:"Capacity of the channel carrying block digests to the DA submitter."`
}

// LogConfig contains all logging configuration parameters
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level" comment:"Log level (debug, info, warn, error)"`
	Format string `mapstructure:"format" yaml:"format" comment:"Log format (text, json)"`
	Trace  bool   `mapstructure:"trace" yaml:"trace" comment:"Enable stack traces in error logs"`
}

// SignerConfig contains the signer configuration used by client commands
type SignerConfig struct {
	Path string `mapstructure:"path" yaml:"path" comment:"Directory containing the signing key used by client commands"`
}

// WhitelistFile returns the absolute whitelist path.
func (c Config) WhitelistFile() string {
	if filepath.IsAbs(c.Sequencer.WhitelistPath) {
		return c.Sequencer.WhitelistPath
	}
	return filepath.Join(c.RootDir, c.Sequencer.WhitelistPath)
}

// SignerDir returns the absolute signer directory.
func (c Config) SignerDir() string {
	if filepath.IsAbs(c.Signer.Path) {
		return c.Signer.Path
	}
	return filepath.Join(c.RootDir, c.Signer.Path)
}

// Validate checks the configuration for consistency.
func (c Config) Validate() error {
	var errs error
	if c.GRPC.ListenAddress == "" {
		errs = multierror.Append(errs, errors.New("grpc listen address cannot be empty"))
	}
	if c.GRPC.MaxOpenConnections < 0 {
		errs = multierror.Append(errs, errors.New("grpc max_open_connections can't be negative"))
	}
	if c.Sequencer.BlockTime.Duration <= 0 {
		errs = multierror.Append(errs, errors.New("block time must be positive"))
	}
	if c.Sequencer.HeartbeatInterval.Duration <= 0 {
		errs = multierror.Append(errs, errors.New("heartbeat interval must be positive"))
	}
	if c.Sequencer.MaxBlockSize <= 0 || c.Sequencer.MaxBlockSize > DefaultMaxBlockSize {
		errs = multierror.Append(errs, fmt.Errorf("max block size must be in (0, %d]", DefaultMaxBlockSize))
	}
	if c.Sequencer.BatchQueueSize <= 0 {
		errs = multierror.Append(errs, errors.New("batch queue size must be positive"))
	}
	if c.Sequencer.WhitelistPath == "" {
		errs = multierror.Append(errs, errors.New("whitelist path cannot be empty"))
	}
	switch c.DA.Backend {
	case DABackendCelestia:
		if c.DA.Address == "" {
			errs = multierror.Append(errs, errors.New("da address is required by the celestia backend"))
		}
	case DABackendLocal, DABackendMemory:
	default:
		errs = multierror.Append(errs, fmt.Errorf("unknown da backend %q", c.DA.Backend))
	}
	if c.DA.Namespace == "" {
		errs = multierror.Append(errs, errors.New("da namespace cannot be empty"))
	}
	if c.DA.MaxBlobSize < MinBlobSize || c.DA.MaxBlobSize > DefaultMaxBlobSize {
		errs = multierror.Append(errs, fmt.Errorf("max blob size must be in [%d, %d]", MinBlobSize, DefaultMaxBlobSize))
	}
	if c.DA.SubmitAttempts <= 0 {
		errs = multierror.Append(errs, errors.New("submit attempts must be positive"))
	}
	if c.DA.ChannelSize < 0 {
		errs = multierror.Append(errs, errors.New("digest channel size can't be negative"))
	}
	if c.Instrumentation != nil {
		if err := c.Instrumentation.ValidateBasic(); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return errs
}

// AddGlobalFlags registers the basic configuration flags that are common across commands
// This includes logging configuration and root directory settings
func AddGlobalFlags(cmd *cobra.Command, appName string) {
	cmd.PersistentFlags().String(FlagLogLevel, DefaultConfig.Log.Level, "Set the log level (debug, info, warn, error)")
	cmd.PersistentFlags().String(FlagLogFormat, DefaultConfig.Log.Format, "Set the log format (text, json)")
	cmd.PersistentFlags().Bool(FlagLogTrace, DefaultConfig.Log.Trace, "Enable stack traces in error logs")
	cmd.PersistentFlags().String(FlagRootDir, DefaultRootDirWithName(appName), "Root directory for application data")
}

// AddFlags adds the node configuration options to a cobra Command.
func AddFlags(cmd *cobra.Command) {
	def := DefaultConfig

	// Add base flags
	cmd.Flags().String(FlagDBPath, def.DBPath, "path for the node database")

	// gRPC configuration flags
	cmd.Flags().String(FlagGRPCListenAddress, def.GRPC.ListenAddress, "gRPC listen address (host:port)")
	cmd.Flags().Int(FlagGRPCMaxOpenConnections, def.GRPC.MaxOpenConnections, "maximum number of simultaneous gRPC connections (0 for no limit)")

	// Sequencer configuration flags
	cmd.Flags().Duration(FlagBlockTime, def.Sequencer.BlockTime.Duration, "block production interval")
	cmd.Flags().Duration(FlagHeartbeatInterval, def.Sequencer.HeartbeatInterval.Duration, "heartbeat interval of idle block streams")
	cmd.Flags().Int(FlagMaxBlockSize, def.Sequencer.MaxBlockSize, "maximum encoded block size in bytes")
	cmd.Flags().Int(FlagBatchQueueSize, def.Sequencer.BatchQueueSize, "number of validated batches waiting for the block producer")
	cmd.Flags().String(FlagWhitelistPath, def.Sequencer.WhitelistPath, "path of the batch signer whitelist")

	// Data Availability configuration flags
	cmd.Flags().String(FlagDABackend, def.DA.Backend, "DA backend (celestia, local, memory)")
	cmd.Flags().String(FlagDAAddress, def.DA.Address, "celestia-node RPC address")
	cmd.Flags().String(FlagDAAuthToken, def.DA.AuthToken, "celestia-node auth token")
	cmd.Flags().String(FlagDANamespace, def.DA.Namespace, "hex encoded DA namespace ID")
	cmd.Flags().Float64(FlagDAGasPrice, def.DA.GasPrice, "DA gas price for blob transactions")
	cmd.Flags().Int(FlagDAMaxBlobSize, def.DA.MaxBlobSize, "maximum encoded DA blob size in bytes")
	cmd.Flags().Int(FlagDASubmitAttempts, def.DA.SubmitAttempts, "submission attempts per blob")
	cmd.Flags().Duration(FlagDASubmitBackoff, def.DA.SubmitBackoff.Duration, "delay before the first submission retry")
	cmd.Flags().Duration(FlagDAMaxBackoff, def.DA.MaxBackoff.Duration, "maximum submission retry delay")
	cmd.Flags().Int(FlagDAChannelSize, def.DA.ChannelSize, "capacity of the digest channel")

	// Instrumentation configuration flags
	instrDef := DefaultInstrumentationConfig()
	cmd.Flags().Bool(FlagPrometheus, instrDef.Prometheus, "enable Prometheus metrics")
	cmd.Flags().String(FlagPrometheusListenAddr, instrDef.PrometheusListenAddr, "Prometheus metrics listen address")
	cmd.Flags().Int(FlagMaxOpenConnections, instrDef.MaxOpenConnections, "maximum number of simultaneous connections for metrics")
	cmd.Flags().Bool(FlagPprof, instrDef.Pprof, "enable pprof HTTP endpoint")
	cmd.Flags().String(FlagPprofListenAddr, instrDef.PprofListenAddr, "pprof HTTP server listening address")

	// Signer configuration flags
	cmd.Flags().String(FlagSignerPath, def.Signer.Path, "directory of the client signing key")
}

// Load loads the node configuration in the following order of precedence:
// 1. DefaultConfig (lowest priority)
// 2. YAML configuration file
// 3. Command line flags (highest priority)
func Load(cmd *cobra.Command) (Config, error) {
	home, _ := cmd.Flags().GetString(FlagRootDir)
	if home == "" {
		home = DefaultRootDir
	}

	v := viper.New()
	config := DefaultConfig
	config.RootDir = home
	instrumentation := *DefaultConfig.Instrumentation
	config.Instrumentation = &instrumentation
	if err := setDefaultsInViper(v, config); err != nil {
		return config, fmt.Errorf("unable to set defaults: %w", err)
	}

	v.SetConfigName(ConfigBaseName)
	v.SetConfigType(ConfigExtension)
	v.AddConfigPath(home)
	v.AddConfigPath(filepath.Join(home, AppConfigDir))

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFound) {
			return config, fmt.Errorf("error reading YAML configuration: %w", err)
		}
	}

	var flagErrs error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if !strings.HasPrefix(f.Name, FlagPrefix) {
			return
		}
		if err := v.BindPFlag(strings.TrimPrefix(f.Name, FlagPrefix), f); err != nil {
			flagErrs = multierror.Append(flagErrs, err)
		}
	})
	if flagErrs != nil {
		return config, fmt.Errorf("unable to bind flags: %w", flagErrs)
	}

	// viper.Unmarshal respects the precedence: defaults < yaml < flags
	if err := v.Unmarshal(&config, func(c *mapstructure.DecoderConfig) {
		c.TagName = "mapstructure"
		c.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
			durationWrapperHook,
		)
	}); err != nil {
		return config, fmt.Errorf("unable to decode configuration: %w", err)
	}
	config.RootDir = home

	return config, nil
}

// durationWrapperHook decodes DurationWrapper fields given as strings.
func durationWrapperHook(f reflect.Type, t reflect.Type, data interface{}) (interface{}, error) {
	if t != reflect.TypeOf(DurationWrapper{}) {
		return data, nil
	}
	switch v := data.(type) {
	case string:
		duration, err := time.ParseDuration(v)
		if err != nil {
			return nil, err
		}
		return DurationWrapper{Duration: duration}, nil
	case time.Duration:
		return DurationWrapper{Duration: v}, nil
	}
	return data, nil
}

// setDefaultsInViper registers every default value under its dotted key.
func setDefaultsInViper(v *viper.Viper, config Config) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return err
	}
	configMap := make(map[string]interface{})
	if err := yaml.Unmarshal(data, &configMap); err != nil {
		return err
	}
	setDefaults(v, "", configMap)
	return nil
}

func setDefaults(v *viper.Viper, prefix string, values map[string]interface{}) {
	for key, value := range values {
		if prefix != "" {
			key = prefix + "." + key
		}
		if nested, ok := value.(map[string]interface{}); ok {
			setDefaults(v, key, nested)
			continue
		}
		v.SetDefault(key, value)
	}
}

// String renders the configuration as JSON, without secrets.
func (c Config) String() string {
	c.DA.AuthToken = ""
	bz, err := json.Marshal(c)
	if err != nil {
		return err.Error()
	}
	return string(bz)
}
