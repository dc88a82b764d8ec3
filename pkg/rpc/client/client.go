package client

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"connectrpc.com/connect"
	"golang.org/x/net/http2"

	"github.com/movementlabsxyz/da-sequencer/batch"
	"github.com/movementlabsxyz/da-sequencer/pkg/rpc/wire"
	"github.com/movementlabsxyz/da-sequencer/pkg/signer"
	"github.com/movementlabsxyz/da-sequencer/types"
)

// Client talks to a DA-sequencer node over gRPC.
type Client struct {
	batchWrite   *connect.Client[wire.BatchWriteRequest, wire.BatchWriteResponse]
	readAtHeight *connect.Client[wire.ReadAtHeightRequest, wire.ReadAtHeightResponse]
	streamRead   *connect.Client[wire.StreamReadFromHeightRequest, wire.StreamReadFromHeightResponse]

	signer signer.Signer
	now    func() time.Time
}

// NewClient creates a client for the node at baseURL. The signer is used by
// BatchWrite and may be nil for read-only clients.
func NewClient(baseURL string, s signer.Signer) *Client {
	baseURL = strings.TrimSuffix(baseURL, "/")
	httpClient := newH2CClient()
	opts := []connect.ClientOption{
		connect.WithGRPC(),
		connect.WithCodec(wire.Codec{}),
		connect.WithReadMaxBytes(wire.MaxMessageSize),
		connect.WithSendMaxBytes(wire.MaxMessageSize),
	}
	return &Client{
		batchWrite: connect.NewClient[wire.BatchWriteRequest, wire.BatchWriteResponse](
			httpClient, baseURL+wire.BatchWriteProcedure, opts...),
		readAtHeight: connect.NewClient[wire.ReadAtHeightRequest, wire.ReadAtHeightResponse](
			httpClient, baseURL+wire.ReadAtHeightProcedure, opts...),
		streamRead: connect.NewClient[wire.StreamReadFromHeightRequest, wire.StreamReadFromHeightResponse](
			httpClient, baseURL+wire.StreamReadFromHeightProcedure, opts...),
		signer: s,
		now:    time.Now,
	}
}

// newH2CClient returns an HTTP client speaking HTTP/2 without TLS, as gRPC
// requires.
func newH2CClient() *http.Client {
	return &http.Client{
		Transport: &http2.Transport{
			AllowHTTP: true,
			DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, network, addr)
			},
		},
	}
}

// BatchWrite signs txs and submits them as one batch.
func (c *Client) BatchWrite(ctx context.Context, txs types.Transactions) error {
	if c.signer == nil {
		return fmt.Errorf("client has no signer")
	}
	raw, err := batch.Sign(txs, c.signer, uint64(c.now().UnixMilli())) //nolint:gosec
	if err != nil {
		return err
	}
	return c.WriteRawBatch(ctx, raw)
}

// WriteRawBatch submits an already signed batch.
func (c *Client) WriteRawBatch(ctx context.Context, raw types.RawBatch) error {
	data, err := types.EncodeRawBatch(raw)
	if err != nil {
		return fmt.Errorf("failed to encode batch: %w", err)
	}
	resp, err := c.batchWrite.CallUnary(ctx, connect.NewRequest(&wire.BatchWriteRequest{Data: data}))
	if err != nil {
		return err
	}
	if !resp.Msg.Answer {
		return fmt.Errorf("batch was not accepted")
	}
	return nil
}

// ReadAtHeight returns the block at height, or nil when it was not produced yet.
func (c *Client) ReadAtHeight(ctx context.Context, height uint64) (*types.SequencerBlock, error) {
	resp, err := c.readAtHeight.CallUnary(ctx, connect.NewRequest(&wire.ReadAtHeightRequest{Height: height}))
	if err != nil {
		return nil, err
	}
	if resp.Msg.Block == nil {
		return nil, nil
	}
	return resp.Msg.Block.SequencerBlock()
}

// StreamReadFromHeight opens a stream of blocks starting at height.
func (c *Client) StreamReadFromHeight(ctx context.Context, height uint64) (*BlockStream, error) {
	stream, err := c.streamRead.CallServerStream(ctx, connect.NewRequest(&wire.StreamReadFromHeightRequest{Height: height}))
	if err != nil {
		return nil, err
	}
	return &BlockStream{stream: stream}, nil
}

// BlockStream iterates over streamed blocks. Heartbeats are consumed
// silently.
type BlockStream struct {
	stream     *connect.ServerStreamForClient[wire.StreamReadFromHeightResponse]
	block      *types.SequencerBlock
	heartbeats int
	err        error
}

// Next blocks until the next block arrives. It returns false when the stream
// ends; Err reports why.
func (s *BlockStream) Next() bool {
	if s.err != nil {
		return false
	}
	for s.stream.Receive() {
		resp := s.stream.Msg().Response
		if resp.Block == nil {
			s.heartbeats++
			continue
		}
		block, err := resp.Block.SequencerBlock()
		if err != nil {
			s.err = err
			return false
		}
		s.block = block
		return true
	}
	s.err = s.stream.Err()
	return false
}

// Block returns the block read by the last successful Next.
func (s *BlockStream) Block() *types.SequencerBlock {
	return s.block
}

// Heartbeats returns the number of heartbeats received so far.
func (s *BlockStream) Heartbeats() int {
	return s.heartbeats
}

// Err returns the error that ended the stream, if any.
func (s *BlockStream) Err() error {
	return s.err
}

// Close closes the stream.
func (s *BlockStream) Close() error {
	return s.stream.Close()
}
