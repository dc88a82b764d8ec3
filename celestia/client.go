package celestia

import (
	"context"
	"fmt"
	"sync"
	"time"

	"cosmossdk.io/log"
	"github.com/celestiaorg/go-square/v2/share"

	"github.com/movementlabsxyz/da-sequencer/types"
)

// Options tune the client and its submitter. Zero values select defaults.
type Options struct {
	// MaxBlobSize caps the encoded size of one blob. It is kept within
	// [MinBlobSize, MaxCelestiaBlobSize].
	MaxBlobSize int
	// MaxSubmitAttempts bounds the attempts for one blob before the submitter fails.
	MaxSubmitAttempts int
	// InitialBackoff is the delay before the first retry. It doubles on every retry.
	InitialBackoff time.Duration
	// MaxBackoff caps the retry delay.
	MaxBackoff time.Duration
	// ChannelSize is the capacity of the digest channel.
	ChannelSize int
	Metrics     *Metrics
}

func (o Options) withDefaults() Options {
	switch {
	case o.MaxBlobSize <= 0 || o.MaxBlobSize > MaxCelestiaBlobSize:
		o.MaxBlobSize = MaxCelestiaBlobSize
	case o.MaxBlobSize < MinBlobSize:
		o.MaxBlobSize = MinBlobSize
	}
	if o.MaxSubmitAttempts <= 0 {
		o.MaxSubmitAttempts = defaultMaxSubmitAttempts
	}
	if o.InitialBackoff <= 0 {
		o.InitialBackoff = defaultInitialBackoff
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = defaultMaxBackoff
	}
	if o.ChannelSize < 0 {
		o.ChannelSize = 0
	}
	if o.Metrics == nil {
		o.Metrics = NopMetrics()
	}
	return o
}

// Client publishes block digests through its Submitter and reads blobs back
// from the DA layer. The client owns the sending side of the digest channel;
// the submitter owns the receiving side.
type Client struct {
	logger    log.Logger
	backend   Backend
	namespace share.Namespace

	mu        sync.RWMutex
	digests   chan types.SequencerBlockDigest
	done      chan struct{}
	closeOnce sync.Once
}

// New builds a client and the submitter that drains it. The caller runs the
// submitter and closes the client when no more digests will be sent.
func New(logger log.Logger, backend Backend, namespace share.Namespace, store HeightStore, opts Options) (*Client, *Submitter) {
	opts = opts.withDefaults()
	logger = logger.With("module", "celestia")
	digests := make(chan types.SequencerBlockDigest, opts.ChannelSize)

	c := &Client{
		logger:    logger,
		backend:   backend,
		namespace: namespace,
		digests:   digests,
		done:      make(chan struct{}),
	}
	s := &Submitter{
		logger:            logger.With("component", "submitter"),
		backend:           backend,
		namespace:         namespace,
		digests:           digests,
		store:             store,
		metrics:           opts.Metrics,
		maxBlobSize:       opts.MaxBlobSize,
		maxSubmitAttempts: opts.MaxSubmitAttempts,
		initialBackoff:    opts.InitialBackoff,
		maxBackoff:        opts.MaxBackoff,
	}
	return c, s
}

// SendDigest hands a digest to the submitter. It blocks while the submitter
// applies backpressure and fails with types.ErrSend once the client is closed.
func (c *Client) SendDigest(ctx context.Context, d types.SequencerBlockDigest) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	select {
	case <-c.done:
		return types.ErrSend
	default:
	}
	select {
	case c.digests <- d:
		return nil
	case <-c.done:
		return types.ErrSend
	case <-ctx.Done():
		return ctx.Err()
	}
}

// GetBlobsAtHeight returns the digest blobs published in the client namespace
// at the given DA height. Blobs from other writers that do not decode are skipped.
func (c *Client) GetBlobsAtHeight(ctx context.Context, daHeight uint64) ([]CelestiaBlob, error) {
	raw, err := c.backend.GetAll(ctx, daHeight, c.namespace.Bytes())
	if err != nil {
		return nil, fmt.Errorf("failed to get blobs at DA height %d: %w", daHeight, err)
	}
	blobs := make([]CelestiaBlob, 0, len(raw))
	for i, bz := range raw {
		blob, err := BlobFromBytes(bz)
		if err != nil {
			c.logger.Warn("skipping undecodable blob", "daHeight", daHeight, "index", i, "error", err)
			continue
		}
		blobs = append(blobs, blob)
	}
	return blobs, nil
}

// Close closes the digest channel. The submitter flushes what it already
// holds and exits. Close is idempotent.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.mu.Lock()
		close(c.digests)
		c.mu.Unlock()
	})
}
