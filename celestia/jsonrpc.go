package celestia

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"net/http"

	"cosmossdk.io/log"
	"github.com/filecoin-project/go-jsonrpc"
)

// GetIDsResult holds the result of a GetIDs call.
type GetIDsResult struct {
	IDs [][]byte
}

// API defines the celestia-node "da" module methods used by the sequencer.
type API struct {
	Internal struct {
		Get    func(ctx context.Context, ids [][]byte, ns []byte) ([][]byte, error)       `perm:"read"`
		GetIDs func(ctx context.Context, height uint64, ns []byte) (*GetIDsResult, error) `perm:"read"`
		Submit func(context.Context, [][]byte, float64, []byte) ([][]byte, error)         `perm:"write"`
	}
}

// RPCBackend talks to a celestia-node over JSON-RPC.
type RPCBackend struct {
	logger   log.Logger
	api      API
	gasPrice float64
	closer   jsonrpc.ClientCloser
}

// NewRPCBackend connects to the celestia-node at addr. A negative gasPrice
// lets the node estimate the price.
func NewRPCBackend(ctx context.Context, logger log.Logger, addr, token string, gasPrice float64) (*RPCBackend, error) {
	authHeader := http.Header{}
	if token != "" {
		authHeader.Set("Authorization", fmt.Sprintf("Bearer %s", token))
	}
	b := &RPCBackend{
		logger:   logger.With("module", "celestia-rpc"),
		gasPrice: gasPrice,
	}
	closer, err := jsonrpc.NewMergeClient(ctx, addr, "da", []interface{}{&b.api.Internal}, authHeader, jsonrpc.WithErrors(getKnownErrorsMapping()))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to celestia node at %s: %w", addr, err)
	}
	b.closer = closer
	return b, nil
}

func (*RPCBackend) isBackend() {}

// Submit publishes blob and returns the DA height encoded in the returned id.
func (b *RPCBackend) Submit(ctx context.Context, blob []byte, namespace []byte) (uint64, error) {
	b.logger.Debug("Making RPC call", "method", "Submit", "blob_size", len(blob), "gas_price", b.gasPrice)
	ids, err := b.api.Internal.Submit(ctx, [][]byte{blob}, b.gasPrice, namespace)
	if err != nil {
		err = fromRPCError(err)
		b.logger.Error("RPC call failed", "method", "Submit", "error", err)
		return 0, err
	}
	if len(ids) != 1 {
		return 0, fmt.Errorf("expected 1 blob id, got %d", len(ids))
	}
	height, _, err := SplitID(ids[0])
	if err != nil {
		return 0, err
	}
	b.logger.Debug("RPC call successful", "method", "Submit", "height", height)
	return height, nil
}

// GetAll returns the blobs at height. A height without blobs yields an empty result.
func (b *RPCBackend) GetAll(ctx context.Context, height uint64, namespace []byte) ([][]byte, error) {
	res, err := b.api.Internal.GetIDs(ctx, height, namespace)
	if err != nil {
		err = fromRPCError(err)
		if errors.Is(err, ErrBlobNotFound) {
			return nil, nil
		}
		b.logger.Error("RPC call failed", "method", "GetIDs", "height", height, "error", err)
		return nil, err
	}
	if res == nil || len(res.IDs) == 0 {
		return nil, nil
	}
	blobs, err := b.api.Internal.Get(ctx, res.IDs, namespace)
	if err != nil {
		err = fromRPCError(err)
		b.logger.Error("RPC call failed", "method", "Get", "height", height, "error", err)
		return nil, fmt.Errorf("failed to get blobs: %w", err)
	}
	return blobs, nil
}

// Close closes the connection to the node.
func (b *RPCBackend) Close() error {
	b.closer()
	return nil
}

// SplitID splits a celestia blob id into the DA height and the commitment.
func SplitID(id []byte) (uint64, []byte, error) {
	if len(id) <= 8 {
		return 0, nil, fmt.Errorf("invalid ID length: %d", len(id))
	}
	return binary.LittleEndian.Uint64(id[:8]), id[8:], nil
}

