package celestia

import (
	"bytes"
	"context"
	"sync"
)

// SubmitHook runs before a MemoryBackend stores a blob. A non-nil error
// fails the submission.
type SubmitHook func(ctx context.Context, blob []byte) error

type memoryBlob struct {
	namespace []byte
	data      []byte
}

// MemoryBackend is an in-memory DA layer for tests and local development.
// Every submission is included at a new height.
type MemoryBackend struct {
	mu          sync.Mutex
	height      uint64
	blobs       map[uint64][]memoryBlob
	maxBlobSize int
	hook        SubmitHook
}

// NewMemoryBackend returns an empty in-memory DA layer.
func NewMemoryBackend(maxBlobSize int) *MemoryBackend {
	return &MemoryBackend{
		blobs:       make(map[uint64][]memoryBlob),
		maxBlobSize: maxBlobSize,
	}
}

// SetSubmitHook installs a hook called on every Submit.
func (m *MemoryBackend) SetSubmitHook(hook SubmitHook) {
	m.mu.Lock()
	m.hook = hook
	m.mu.Unlock()
}

func (*MemoryBackend) isBackend() {}

// Submit stores blob at the next height.
func (m *MemoryBackend) Submit(ctx context.Context, blob []byte, namespace []byte) (uint64, error) {
	m.mu.Lock()
	hook := m.hook
	m.mu.Unlock()
	if hook != nil {
		if err := hook(ctx, blob); err != nil {
			return 0, err
		}
	}
	if m.maxBlobSize > 0 && len(blob) > m.maxBlobSize {
		return 0, ErrBlobSizeOverLimit
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.height++
	m.blobs[m.height] = append(m.blobs[m.height], memoryBlob{
		namespace: bytes.Clone(namespace),
		data:      bytes.Clone(blob),
	})
	return m.height, nil
}

// GetAll returns blobs stored under namespace at height.
func (m *MemoryBackend) GetAll(_ context.Context, height uint64, namespace []byte) ([][]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if height > m.height {
		return nil, ErrHeightFromFuture
	}
	var out [][]byte
	for _, b := range m.blobs[height] {
		if bytes.Equal(b.namespace, namespace) {
			out = append(out, bytes.Clone(b.data))
		}
	}
	return out, nil
}

// Height returns the latest DA height.
func (m *MemoryBackend) Height() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.height
}

// Close is a no-op.
func (m *MemoryBackend) Close() error {
	return nil
}
