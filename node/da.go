package node

import (
	"context"
	"fmt"

	"cosmossdk.io/log"

	"github.com/movementlabsxyz/da-sequencer/celestia"
	"github.com/movementlabsxyz/da-sequencer/pkg/config"
	"github.com/movementlabsxyz/da-sequencer/pkg/store"
)

// LocalDADBName is the database of the local DA backend inside the DB path.
const LocalDADBName = "local-da"

// NewBackend creates the DA backend selected by the configuration.
func NewBackend(ctx context.Context, cfg config.Config, logger log.Logger) (celestia.Backend, error) {
	switch cfg.DA.Backend {
	case config.DABackendCelestia:
		return celestia.NewRPCBackend(ctx, logger, cfg.DA.Address, cfg.DA.AuthToken, cfg.DA.GasPrice)
	case config.DABackendLocal:
		kv, err := store.NewDefaultKVStore(cfg.RootDir, cfg.DBPath, LocalDADBName)
		if err != nil {
			return nil, fmt.Errorf("failed to open local DA database: %w", err)
		}
		return celestia.NewLocalBackend(kv, cfg.DA.MaxBlobSize), nil
	case config.DABackendMemory:
		logger.Warn("using the in-memory DA backend, published blobs are lost on restart")
		return celestia.NewMemoryBackend(cfg.DA.MaxBlobSize), nil
	default:
		return nil, fmt.Errorf("unknown da backend %q", cfg.DA.Backend)
	}
}
