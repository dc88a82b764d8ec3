package celestia

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"sync"

	ds "github.com/ipfs/go-datastore"
	ktds "github.com/ipfs/go-datastore/keytransform"
	"github.com/ipfs/go-datastore/query"
)

const localDAPrefix = "local_da"

// LocalBackend is a persistent single-process DA layer backed by a datastore.
// It is meant for development setups without a celestia-node.
type LocalBackend struct {
	mu          sync.Mutex
	db          ds.Batching
	maxBlobSize int
}

// NewLocalBackend stores blobs in db under a dedicated prefix.
func NewLocalBackend(db ds.Batching, maxBlobSize int) *LocalBackend {
	return &LocalBackend{
		db:          ktds.Wrap(db, ktds.PrefixTransform{Prefix: ds.NewKey(localDAPrefix)}),
		maxBlobSize: maxBlobSize,
	}
}

func (*LocalBackend) isBackend() {}

func heightKey() ds.Key {
	return ds.NewKey("height")
}

func blobsPrefix(height uint64, namespace []byte) ds.Key {
	return ds.NewKey("blobs").ChildString(strconv.FormatUint(height, 10)).ChildString(hex.EncodeToString(namespace))
}

// Submit stores blob at the next height.
func (l *LocalBackend) Submit(ctx context.Context, blob []byte, namespace []byte) (uint64, error) {
	if l.maxBlobSize > 0 && len(blob) > l.maxBlobSize {
		return 0, ErrBlobSizeOverLimit
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	height, err := l.height(ctx)
	if err != nil {
		return 0, err
	}
	height++

	heightBytes := make([]byte, 8)
	binary.BigEndian.PutUint64(heightBytes, height)

	batch, err := l.db.Batch(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to create a new batch: %w", err)
	}
	if err := batch.Put(ctx, blobsPrefix(height, namespace).ChildString("0"), blob); err != nil {
		return 0, fmt.Errorf("failed to put blob in batch: %w", err)
	}
	if err := batch.Put(ctx, heightKey(), heightBytes); err != nil {
		return 0, fmt.Errorf("failed to put height in batch: %w", err)
	}
	if err := batch.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit batch: %w", err)
	}
	return height, nil
}

// GetAll returns blobs stored under namespace at height.
func (l *LocalBackend) GetAll(ctx context.Context, height uint64, namespace []byte) ([][]byte, error) {
	current, err := l.height(ctx)
	if err != nil {
		return nil, err
	}
	if height > current {
		return nil, ErrHeightFromFuture
	}
	results, err := l.db.Query(ctx, query.Query{
		Prefix: blobsPrefix(height, namespace).String(),
		Orders: []query.Order{query.OrderByKey{}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query blobs: %w", err)
	}
	entries, err := results.Rest()
	if err != nil {
		return nil, fmt.Errorf("failed to read blobs: %w", err)
	}
	blobs := make([][]byte, 0, len(entries))
	for _, e := range entries {
		blobs = append(blobs, e.Value)
	}
	return blobs, nil
}

func (l *LocalBackend) height(ctx context.Context) (uint64, error) {
	bz, err := l.db.Get(ctx, heightKey())
	if errors.Is(err, ds.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read local DA height: %w", err)
	}
	if len(bz) != 8 {
		return 0, fmt.Errorf("invalid local DA height length: %d", len(bz))
	}
	return binary.BigEndian.Uint64(bz), nil
}

// Close closes the underlying datastore.
func (l *LocalBackend) Close() error {
	return l.db.Close()
}
