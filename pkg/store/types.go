package store

import (
	"context"

	"github.com/movementlabsxyz/da-sequencer/types"
)

// Store persists sequencer blocks and the synced height watermark.
type Store interface {
	// Height returns the height of the highest block in the store.
	Height(ctx context.Context) (uint64, error)

	// SaveBlock persists a block and advances the stored height if the block is higher.
	SaveBlock(ctx context.Context, block *types.SequencerBlock) error

	// GetBlock returns the block at the given height, or ErrNotFound.
	GetBlock(ctx context.Context, height uint64) (*types.SequencerBlock, error)
	// GetBlockByID returns the block with the given id, or ErrNotFound.
	GetBlockByID(ctx context.Context, id types.ID) (*types.SequencerBlock, error)

	// GetSyncedHeight returns the highest height known to be published to the
	// DA layer, or 0 for a fresh store.
	GetSyncedHeight(ctx context.Context) (uint64, error)
	// SetSyncedHeight records a new synced height. Lower values are ignored.
	SetSyncedHeight(ctx context.Context, height uint64) error

	// SetDAHeights records the DA height where the digests of the given blocks were published.
	SetDAHeights(ctx context.Context, daHeight uint64, heights []uint64) error
	// GetDAHeight returns the DA height for a block, or ErrNotFound.
	GetDAHeight(ctx context.Context, height uint64) (uint64, error)

	// Close safely closes underlying data storage, to ensure that data is actually saved.
	Close() error
}
