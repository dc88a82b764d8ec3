package store

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	ds "github.com/ipfs/go-datastore"

	"github.com/movementlabsxyz/da-sequencer/types"
)

// SchemaVersion is the layout version written on first open.
const SchemaVersion uint64 = 1

// DefaultBlockCacheSize is the number of recent blocks kept in memory.
const DefaultBlockCacheSize = 1024

var (
	// ErrNotFound is returned when a block or mapping is missing.
	ErrNotFound = errors.New("not found")
	// ErrIncompatibleSchema is returned when the store was written with another layout.
	ErrIncompatibleSchema = errors.New("incompatible store schema")
)

// SequencerDb is the default Store implementation over a batching datastore.
// Columns are modelled as key prefixes.
type SequencerDb struct {
	db    ds.Batching
	cache *lru.Cache[uint64, *types.SequencerBlock]

	// syncedMu serializes read-modify-write of the synced height.
	syncedMu sync.Mutex
}

var _ Store = &SequencerDb{}

// Open wraps db and checks the schema version, writing it on a fresh store.
func Open(ctx context.Context, db ds.Batching) (*SequencerDb, error) {
	if err := checkSchema(ctx, db); err != nil {
		return nil, err
	}
	cache, err := lru.New[uint64, *types.SequencerBlock](DefaultBlockCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create block cache: %w", err)
	}
	return &SequencerDb{
		db:    db,
		cache: cache,
	}, nil
}

func checkSchema(ctx context.Context, db ds.Batching) error {
	key := ds.NewKey(getSchemaVersionKey())
	bz, err := db.Get(ctx, key)
	if errors.Is(err, ds.ErrNotFound) {
		hasBlocks, err := db.Has(ctx, ds.NewKey(getHeightKey()))
		if err != nil {
			return fmt.Errorf("failed to inspect store: %w", err)
		}
		if hasBlocks {
			return fmt.Errorf("%w: blocks present without a schema version", ErrIncompatibleSchema)
		}
		if err := db.Put(ctx, key, encodeHeight(SchemaVersion)); err != nil {
			return fmt.Errorf("failed to write schema version: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	version, err := decodeHeight(bz)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrIncompatibleSchema, err)
	}
	if version != SchemaVersion {
		return fmt.Errorf("%w: found version %d, expected %d", ErrIncompatibleSchema, version, SchemaVersion)
	}
	return nil
}

// Close safely closes underlying data storage, to ensure that data is actually saved.
func (s *SequencerDb) Close() error {
	return s.db.Close()
}

// Height returns height of the highest block saved in the Store.
func (s *SequencerDb) Height(ctx context.Context) (uint64, error) {
	heightBytes, err := s.db.Get(ctx, ds.NewKey(getHeightKey()))
	if errors.Is(err, ds.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read height: %w", err)
	}
	return decodeHeight(heightBytes)
}

// SaveBlock adds the block and its id index to the store. Stored height is
// updated if the block height is greater than the stored value.
func (s *SequencerDb) SaveBlock(ctx context.Context, block *types.SequencerBlock) error {
	height := block.Height().Uint64()
	blob, err := block.MarshalBinary()
	if err != nil {
		return fmt.Errorf("failed to marshal block to binary: %w", err)
	}
	current, err := s.Height(ctx)
	if err != nil {
		return err
	}

	batch, err := s.db.Batch(ctx)
	if err != nil {
		return fmt.Errorf("failed to create a new batch: %w", err)
	}
	if err := batch.Put(ctx, ds.NewKey(getBlockKey(height)), blob); err != nil {
		return fmt.Errorf("failed to put block blob in batch: %w", err)
	}
	if err := batch.Put(ctx, ds.NewKey(getBlockHeightKey(block.ID())), encodeHeight(height)); err != nil {
		return fmt.Errorf("failed to put index key in batch: %w", err)
	}
	if height > current {
		if err := batch.Put(ctx, ds.NewKey(getHeightKey()), encodeHeight(height)); err != nil {
			return fmt.Errorf("failed to put height in batch: %w", err)
		}
	}
	if err := batch.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}

	s.cache.Add(height, block)
	return nil
}

// GetBlock returns the block at the given height.
func (s *SequencerDb) GetBlock(ctx context.Context, height uint64) (*types.SequencerBlock, error) {
	if block, ok := s.cache.Get(height); ok {
		return block, nil
	}
	blob, err := s.db.Get(ctx, ds.NewKey(getBlockKey(height)))
	if errors.Is(err, ds.ErrNotFound) {
		return nil, fmt.Errorf("%w: block at height %d", ErrNotFound, height)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load block: %w", err)
	}
	block, err := types.SequencerBlockFromBytes(blob)
	if err != nil {
		return nil, fmt.Errorf("failed to decode block at height %d: %w", height, err)
	}
	s.cache.Add(height, block)
	return block, nil
}

// GetBlockByID returns the block with the given id.
func (s *SequencerDb) GetBlockByID(ctx context.Context, id types.ID) (*types.SequencerBlock, error) {
	heightBytes, err := s.db.Get(ctx, ds.NewKey(getBlockHeightKey(id)))
	if errors.Is(err, ds.ErrNotFound) {
		return nil, fmt.Errorf("%w: block %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load block index: %w", err)
	}
	height, err := decodeHeight(heightBytes)
	if err != nil {
		return nil, err
	}
	return s.GetBlock(ctx, height)
}

// GetSyncedHeight returns the last durably recorded synced height, or 0 on a fresh store.
func (s *SequencerDb) GetSyncedHeight(ctx context.Context) (uint64, error) {
	bz, err := s.db.Get(ctx, ds.NewKey(getSyncedHeightKey()))
	if errors.Is(err, ds.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read synced height: %w", err)
	}
	var height uint64
	if err := json.Unmarshal(bz, &height); err != nil {
		return 0, fmt.Errorf("failed to decode synced height: %w", err)
	}
	return height, nil
}

// SetSyncedHeight durably records height if it is not lower than the stored value.
func (s *SequencerDb) SetSyncedHeight(ctx context.Context, height uint64) error {
	s.syncedMu.Lock()
	defer s.syncedMu.Unlock()

	current, err := s.GetSyncedHeight(ctx)
	if err != nil {
		return err
	}
	if height < current {
		return nil
	}
	bz, err := json.Marshal(height)
	if err != nil {
		return fmt.Errorf("failed to encode synced height: %w", err)
	}
	key := ds.NewKey(getSyncedHeightKey())
	if err := s.db.Put(ctx, key, bz); err != nil {
		return fmt.Errorf("failed to write synced height: %w", err)
	}
	if err := s.db.Sync(ctx, key); err != nil {
		return fmt.Errorf("failed to sync synced height: %w", err)
	}
	return nil
}

// SetDAHeights records daHeight for each of the given block heights.
func (s *SequencerDb) SetDAHeights(ctx context.Context, daHeight uint64, heights []uint64) error {
	batch, err := s.db.Batch(ctx)
	if err != nil {
		return fmt.Errorf("failed to create a new batch: %w", err)
	}
	value := encodeHeight(daHeight)
	for _, h := range heights {
		if err := batch.Put(ctx, ds.NewKey(getDigestedBlobKey(h)), value); err != nil {
			return fmt.Errorf("failed to put DA height in batch: %w", err)
		}
	}
	if err := batch.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}
	return nil
}

// GetDAHeight returns the DA height where the digest of the block at height was published.
func (s *SequencerDb) GetDAHeight(ctx context.Context, height uint64) (uint64, error) {
	bz, err := s.db.Get(ctx, ds.NewKey(getDigestedBlobKey(height)))
	if errors.Is(err, ds.ErrNotFound) {
		return 0, fmt.Errorf("%w: DA height for block %d", ErrNotFound, height)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read DA height: %w", err)
	}
	return decodeHeight(bz)
}

func encodeHeight(height uint64) []byte {
	heightBytes := make([]byte, 8)
	binary.BigEndian.PutUint64(heightBytes, height)
	return heightBytes
}

func decodeHeight(heightBytes []byte) (uint64, error) {
	if len(heightBytes) != 8 {
		return 0, fmt.Errorf("invalid height length: %d (expected 8)", len(heightBytes))
	}
	return binary.BigEndian.Uint64(heightBytes), nil
}
