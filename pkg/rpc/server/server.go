package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"connectrpc.com/connect"
	"cosmossdk.io/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/movementlabsxyz/da-sequencer/pkg/rpc/wire"
	"github.com/movementlabsxyz/da-sequencer/pkg/store"
	"github.com/movementlabsxyz/da-sequencer/types"
)

// DefaultHeartbeatInterval is the default keep-alive period of block streams.
const DefaultHeartbeatInterval = 10 * time.Second

// BatchValidator authenticates and decodes incoming batches.
type BatchValidator interface {
	Validate(raw types.RawBatch) (types.ValidatedBatch, error)
}

// BlockReader is the read side of the block store.
type BlockReader interface {
	Height(ctx context.Context) (uint64, error)
	GetBlock(ctx context.Context, height uint64) (*types.SequencerBlock, error)
}

// BlockNotifier signals new blocks. Done is closed when no more blocks will
// be produced.
type BlockNotifier interface {
	Subscribe() (<-chan struct{}, func())
	Done() <-chan struct{}
}

// ServiceConfig tunes the service. Zero values select defaults.
type ServiceConfig struct {
	HeartbeatInterval time.Duration
	MaxBlockSize      int
}

// SequencerService implements the DaSequencerNodeService methods.
type SequencerService struct {
	logger    log.Logger
	validator BatchValidator
	batches   chan<- types.ValidatedBatch
	blocks    BlockReader
	notifier  BlockNotifier

	heartbeat    time.Duration
	maxBlockSize int
}

// NewSequencerService creates the service. Validated batches are handed to
// the block producer through batches without blocking.
func NewSequencerService(
	logger log.Logger,
	validator BatchValidator,
	batches chan<- types.ValidatedBatch,
	blocks BlockReader,
	notifier BlockNotifier,
	cfg ServiceConfig,
) *SequencerService {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if cfg.MaxBlockSize <= 0 || cfg.MaxBlockSize > types.MaxSequencerBlockSize {
		cfg.MaxBlockSize = types.MaxSequencerBlockSize
	}
	return &SequencerService{
		logger:       logger.With("module", "rpc"),
		validator:    validator,
		batches:      batches,
		blocks:       blocks,
		notifier:     notifier,
		heartbeat:    cfg.HeartbeatInterval,
		maxBlockSize: cfg.MaxBlockSize,
	}
}

// BatchWrite implements the BatchWrite RPC method.
func (s *SequencerService) BatchWrite(
	ctx context.Context,
	req *connect.Request[wire.BatchWriteRequest],
) (*connect.Response[wire.BatchWriteResponse], error) {
	raw, err := types.DecodeRawBatch(req.Msg.Data)
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}

	batch, err := s.validator.Validate(raw)
	if err != nil {
		s.logger.Debug("rejected batch", "signer", fmt.Sprintf("%x", raw.Signer), "error", err)
		return nil, connect.NewError(validationErrorCode(err), err)
	}

	txs := batch.Data
	if size := types.BlockEncodedSize(len(txs), txs.EncodedSize()-types.SequenceLenSize(len(txs))); size > s.maxBlockSize {
		return nil, connect.NewError(connect.CodeInvalidArgument,
			fmt.Errorf("%w: batch needs %d bytes, blocks are limited to %d", types.ErrBlockTooLarge, size, s.maxBlockSize))
	}

	select {
	case <-s.notifier.Done():
		return nil, connect.NewError(connect.CodeUnavailable, errors.New("sequencer is shutting down"))
	default:
	}
	select {
	case s.batches <- batch:
	default:
		return nil, connect.NewError(connect.CodeResourceExhausted, types.ErrBatchQueueFull)
	}

	s.logger.Debug("accepted batch", "txs", len(txs), "signer", fmt.Sprintf("%x", batch.Signer))
	return connect.NewResponse(&wire.BatchWriteResponse{Answer: true}), nil
}

func validationErrorCode(err error) connect.Code {
	switch {
	case errors.Is(err, types.ErrNotWhitelisted):
		return connect.CodePermissionDenied
	case errors.Is(err, types.ErrInvalidSignature):
		return connect.CodeUnauthenticated
	case errors.Is(err, types.ErrDeserialization):
		return connect.CodeInvalidArgument
	default:
		return connect.CodeInternal
	}
}

// ReadAtHeight implements the ReadAtHeight RPC method. A height that was not
// produced yet yields an empty response.
func (s *SequencerService) ReadAtHeight(
	ctx context.Context,
	req *connect.Request[wire.ReadAtHeightRequest],
) (*connect.Response[wire.ReadAtHeightResponse], error) {
	block, err := s.blocks.GetBlock(ctx, req.Msg.Height)
	if errors.Is(err, store.ErrNotFound) {
		return connect.NewResponse(&wire.ReadAtHeightResponse{}), nil
	}
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, fmt.Errorf("failed to get block at height %d: %w", req.Msg.Height, err))
	}
	wireBlock, err := wire.NewBlockV1(block)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(&wire.ReadAtHeightResponse{Block: wireBlock}), nil
}

// StreamReadFromHeight implements the StreamReadFromHeight RPC method. It
// sends every stored block from the requested height on, then follows new
// blocks as they are produced. Heartbeats are sent while no block arrives.
// The stream fails with Unavailable once block production has stopped.
func (s *SequencerService) StreamReadFromHeight(
	ctx context.Context,
	req *connect.Request[wire.StreamReadFromHeightRequest],
	stream *connect.ServerStream[wire.StreamReadFromHeightResponse],
) error {
	// Subscribe before reading the store so no block falls in between.
	newBlocks, unsubscribe := s.notifier.Subscribe()
	defer unsubscribe()

	next := max(req.Msg.Height, 1)
	heartbeat := time.NewTicker(s.heartbeat)
	defer heartbeat.Stop()

	s.logger.Debug("block stream opened", "from", next)
	for {
		var err error
		next, err = s.sendStoredBlocks(ctx, stream, next)
		if err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			s.logger.Debug("block stream closed by client", "next", next)
			return nil
		case <-s.notifier.Done():
			return connect.NewError(connect.CodeUnavailable, errors.New("block production stopped"))
		case <-newBlocks:
		case <-heartbeat.C:
			if err := stream.Send(&wire.StreamReadFromHeightResponse{
				Response: wire.BlockResponse{Heartbeat: true},
			}); err != nil {
				return err
			}
		}
	}
}

// sendStoredBlocks streams blocks from next up to the current store height
// and returns the first height not sent.
func (s *SequencerService) sendStoredBlocks(
	ctx context.Context,
	stream *connect.ServerStream[wire.StreamReadFromHeightResponse],
	next uint64,
) (uint64, error) {
	height, err := s.blocks.Height(ctx)
	if err != nil {
		return next, connect.NewError(connect.CodeInternal, fmt.Errorf("failed to get store height: %w", err))
	}
	for ; next <= height; next++ {
		block, err := s.blocks.GetBlock(ctx, next)
		if err != nil {
			return next, connect.NewError(connect.CodeInternal, fmt.Errorf("failed to get block at height %d: %w", next, err))
		}
		wireBlock, err := wire.NewBlockV1(block)
		if err != nil {
			return next, connect.NewError(connect.CodeInternal, err)
		}
		if err := stream.Send(&wire.StreamReadFromHeightResponse{
			Response: wire.BlockResponse{Block: wireBlock},
		}); err != nil {
			return next, err
		}
	}
	return next, nil
}

// HandlerOptions are the connect options of every service method.
func HandlerOptions() []connect.HandlerOption {
	return []connect.HandlerOption{
		connect.WithCodec(wire.Codec{}),
		connect.WithReadMaxBytes(wire.MaxMessageSize),
		connect.WithSendMaxBytes(wire.MaxMessageSize),
		connect.WithCompressMinBytes(1024),
	}
}

// NewServiceHandler creates an HTTP handler serving the sequencer service
// over gRPC, gRPC-Web and Connect.
func NewServiceHandler(svc *SequencerService) http.Handler {
	mux := http.NewServeMux()
	opts := HandlerOptions()

	mux.Handle(wire.BatchWriteProcedure, connect.NewUnaryHandler(wire.BatchWriteProcedure, svc.BatchWrite, opts...))
	mux.Handle(wire.ReadAtHeightProcedure, connect.NewUnaryHandler(wire.ReadAtHeightProcedure, svc.ReadAtHeight, opts...))
	mux.Handle(wire.StreamReadFromHeightProcedure, connect.NewServerStreamHandler(wire.StreamReadFromHeightProcedure, svc.StreamReadFromHeight, opts...))
	registerHealthEndpoints(mux, svc.notifier)

	// Use h2c to support HTTP/2 without TLS
	return h2c.NewHandler(mux, &http2.Server{
		IdleTimeout:          120 * time.Second, // Close idle connections after 2 minutes
		MaxReadFrameSize:     1 << 24,           // 16MB max frame size
		MaxConcurrentStreams: 100,               // Limit concurrent streams
		ReadIdleTimeout:      30 * time.Second,  // Timeout for reading frames
		PingTimeout:          15 * time.Second,  // Timeout for ping frames
	})
}
