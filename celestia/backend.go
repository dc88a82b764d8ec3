package celestia

import (
	"context"
)

// Backend is a data availability layer that stores blobs under a namespace.
// The set of implementations is closed: RPCBackend, MemoryBackend and
// LocalBackend.
type Backend interface {
	// Submit publishes one blob and returns the DA height that includes it.
	Submit(ctx context.Context, blob []byte, namespace []byte) (uint64, error)
	// GetAll returns all blobs published under namespace at height.
	GetAll(ctx context.Context, height uint64, namespace []byte) ([][]byte, error)
	// Close releases resources held by the backend.
	Close() error

	isBackend()
}

var (
	_ Backend = (*RPCBackend)(nil)
	_ Backend = (*MemoryBackend)(nil)
	_ Backend = (*LocalBackend)(nil)
)
