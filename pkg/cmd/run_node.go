package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cosmossdk.io/log"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/movementlabsxyz/da-sequencer/node"
	"github.com/movementlabsxyz/da-sequencer/pkg/config"
	"github.com/movementlabsxyz/da-sequencer/pkg/store"
)

// DBName is the name of the block database inside the DB path.
const DBName = "da-sequencer"

// shutdownTimeout bounds the wait for the node to stop after a signal.
const shutdownTimeout = 5 * time.Second

// ParseConfig is an helpers that loads the node configuration and validates it.
func ParseConfig(cmd *cobra.Command) (config.Config, error) {
	nodeConfig, err := config.Load(cmd)
	if err != nil {
		return config.Config{}, fmt.Errorf("failed to load node config: %w", err)
	}

	if err := nodeConfig.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("failed to validate node config: %w", err)
	}

	return nodeConfig, nil
}

// SetupLogger configures and returns a logger based on the provided configuration.
// It applies the following settings from the config:
//   - Log format (text or JSON)
//   - Log level (debug, info, warn, error)
//   - Stack traces for error logs
//
// The returned logger is already configured with the "module" field set to "main".
func SetupLogger(cfg config.LogConfig) log.Logger {
	var opts []log.Option

	if cfg.Format == "json" {
		opts = append(opts, log.OutputJSONOption())
	}

	// Default to info if parsing fails
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	opts = append(opts, log.LevelOption(level))

	if cfg.Trace {
		opts = append(opts, log.TraceOption(true))
	}

	return log.NewLogger(os.Stderr, opts...).With("module", "main")
}

// StartCmd returns the command running a sequencer node.
func StartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "start",
		Aliases: []string{"node", "run"},
		Short:   "Run the DA-sequencer node",
		Long: `Run the DA-sequencer node.

The node accepts signed transaction batches over gRPC, orders them into blocks,
publishes block digests to the DA layer and streams blocks to followers.
Send SIGHUP to reload the whitelist without restarting.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			nodeConfig, err := ParseConfig(cmd)
			if err != nil {
				return err
			}
			logger := SetupLogger(nodeConfig.Log)
			return StartNode(logger, cmd, nodeConfig)
		},
	}
	config.AddFlags(cmd)
	return cmd
}

// StartNode handles the node startup logic. It returns when the node fails,
// on SIGINT or SIGTERM, or when the command context is done.
func StartNode(logger log.Logger, cmd *cobra.Command, nodeConfig config.Config) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	backend, err := node.NewBackend(ctx, nodeConfig, logger)
	if err != nil {
		return fmt.Errorf("failed to create DA backend: %w", err)
	}

	datastore, err := store.NewDefaultKVStore(nodeConfig.RootDir, nodeConfig.DBPath, DBName)
	if err != nil {
		return multierr.Append(fmt.Errorf("failed to open database: %w", err), backend.Close())
	}

	metrics := node.DefaultMetricsProvider(nodeConfig.Instrumentation)

	seqNode, err := node.NewNode(ctx, nodeConfig, datastore, backend, metrics, logger)
	if err != nil {
		return multierr.Combine(fmt.Errorf("failed to create node: %w", err), datastore.Close(), backend.Close())
	}

	// Run the node with graceful shutdown
	errCh := make(chan error, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				err := fmt.Errorf("node panicked: %v", r)
				logger.Error("Recovered from panic in node", "panic", r)
				select {
				case errCh <- err:
				default:
					logger.Error("Error channel full", "error", err)
				}
			}
		}()

		err := seqNode.Run(ctx)
		select {
		case errCh <- err:
		default:
			logger.Error("Error channel full", "error", err)
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(quit)

wait:
	for {
		select {
		case sig := <-quit:
			if sig == syscall.SIGHUP {
				if err := seqNode.ReloadWhitelist(); err != nil {
					logger.Error("whitelist reload failed, keeping the current keys", "error", err)
				}
				continue
			}
			logger.Info("shutting down node...")
			cancel()
			break wait
		case <-ctx.Done():
			logger.Info("shutting down node...")
			break wait
		case err := <-errCh:
			if err != nil {
				logger.Error("node error", "error", err)
			}
			return err
		}
	}

	// Wait for node to finish shutting down
	select {
	case <-time.After(shutdownTimeout):
		logger.Info("Node shutdown timed out")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Error during shutdown", "error", err)
			return err
		}
	}

	return nil
}
