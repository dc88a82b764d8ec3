package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/movementlabsxyz/da-sequencer/types"
)

const (
	// DefaultDirPerm is the default permissions used when creating directories.
	DefaultDirPerm = 0750

	// DefaultDataDir is the default directory for data files (e.g. database).
	DefaultDataDir = "data"

	// DefaultGRPCListenAddress is the default address of the gRPC server.
	DefaultGRPCListenAddress = "0.0.0.0:30730"
	// DefaultDAAddress is the default address of the celestia-node RPC endpoint.
	DefaultDAAddress = "http://localhost:26658"
	// DefaultDANamespace is the hex sub-id of the default namespace ("movement").
	DefaultDANamespace = "6d6f76656d656e74"
	// DefaultWhitelistPath is the whitelist location relative to the root directory.
	DefaultWhitelistPath = "da-sequencer/whitelist"
	// DefaultSignerPath is the signing key directory relative to the root directory.
	DefaultSignerPath = "config"
	// DefaultMaxBlockSize is the largest encoded block the sequencer produces.
	DefaultMaxBlockSize = 4 << 20
	// DefaultMaxBlobSize is the largest blob submitted to Celestia.
	DefaultMaxBlobSize = 512 * 1024
	// MinBlobSize is the smallest blob size that still fits one block digest.
	MinBlobSize = 1 + types.DigestSize
	// DefaultLogLevel is the default log level for the application
	DefaultLogLevel = "info"
)

// DefaultRootDir is the default root directory.
var DefaultRootDir = DefaultRootDirWithName("da-sequencer")

// DefaultRootDirWithName returns the default root directory for an application,
// based on the app name and the user's home directory
func DefaultRootDirWithName(appName string) string {
	if appName == "" {
		appName = "da-sequencer"
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, "."+appName)
}

// DefaultConfig keeps default values of Config
var DefaultConfig = Config{
	RootDir: DefaultRootDir,
	DBPath:  DefaultDataDir,
	GRPC: GRPCConfig{
		ListenAddress:      DefaultGRPCListenAddress,
		MaxOpenConnections: 0,
	},
	Sequencer: SequencerConfig{
		BlockTime:         DurationWrapper{500 * time.Millisecond},
		HeartbeatInterval: DurationWrapper{10 * time.Second},
		MaxBlockSize:      DefaultMaxBlockSize,
		BatchQueueSize:    256,
		WhitelistPath:     DefaultWhitelistPath,
	},
	DA: DAConfig{
		Backend:        DABackendCelestia,
		Address:        DefaultDAAddress,
		Namespace:      DefaultDANamespace,
		GasPrice:       -1,
		MaxBlobSize:    DefaultMaxBlobSize,
		SubmitAttempts: 5,
		SubmitBackoff:  DurationWrapper{100 * time.Millisecond},
		MaxBackoff:     DurationWrapper{30 * time.Second},
		ChannelSize:    0,
	},
	Instrumentation: DefaultInstrumentationConfig(),
	Log: LogConfig{
		Level:  DefaultLogLevel,
		Format: "text",
		Trace:  false,
	},
	Signer: SignerConfig{
		Path: DefaultSignerPath,
	},
}
