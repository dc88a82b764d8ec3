package block

import (
	"context"
	"fmt"
	"time"

	"cosmossdk.io/log"

	"github.com/movementlabsxyz/da-sequencer/types"
)

const (
	// DefaultBlockTime is the default block production interval.
	DefaultBlockTime = 500 * time.Millisecond
	// DefaultShutdownTimeout bounds sealing the last block on shutdown.
	DefaultShutdownTimeout = 2 * time.Second
)

// Store is the persistence the producer needs.
type Store interface {
	Height(ctx context.Context) (uint64, error)
	GetBlock(ctx context.Context, height uint64) (*types.SequencerBlock, error)
	SaveBlock(ctx context.Context, block *types.SequencerBlock) error
}

// DigestSender publishes block digests to the DA layer. SendDigest may block
// to apply backpressure.
type DigestSender interface {
	SendDigest(ctx context.Context, d types.SequencerBlockDigest) error
}

// ProducerConfig tunes a Producer. Zero values select defaults.
type ProducerConfig struct {
	BlockTime       time.Duration
	MaxBlockSize    int
	ShutdownTimeout time.Duration
	Metrics         *Metrics
}

// Producer assembles validated batches into sequencer blocks. It is the only
// writer of block heights: every block is produced at the previous height
// plus one and links to the previous block id.
type Producer struct {
	logger   log.Logger
	store    Store
	digests  DigestSender
	notifier *Notifier
	metrics  *Metrics
	batches  <-chan types.ValidatedBatch
	probes   chan chan struct{}

	blockTime       time.Duration
	maxBlockSize    int
	shutdownTimeout time.Duration
	now             func() time.Time

	// state owned by the Run loop
	height       types.BlockHeight
	parent       types.ID
	pending      types.Transactions
	pendingBytes int
}

// NewProducer creates a producer reading from batches.
func NewProducer(
	logger log.Logger,
	store Store,
	digests DigestSender,
	notifier *Notifier,
	batches <-chan types.ValidatedBatch,
	cfg ProducerConfig,
) *Producer {
	if cfg.BlockTime <= 0 {
		cfg.BlockTime = DefaultBlockTime
	}
	if cfg.MaxBlockSize <= 0 || cfg.MaxBlockSize > types.MaxSequencerBlockSize {
		cfg.MaxBlockSize = types.MaxSequencerBlockSize
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NopMetrics()
	}
	return &Producer{
		logger:       logger.With("module", "producer"),
		store:        store,
		digests:      digests,
		notifier:     notifier,
		metrics:      cfg.Metrics,
		batches:      batches,
		probes:       make(chan chan struct{}),
		blockTime:       cfg.BlockTime,
		maxBlockSize:    cfg.MaxBlockSize,
		shutdownTimeout: cfg.ShutdownTimeout,
		now:             time.Now,
	}
}

// Run produces blocks until ctx is done or the batch channel is closed.
// Accepted transactions are sealed into a last block in both cases. A batch
// that can not fit even in an empty block stops the producer with
// types.ErrBlockTooLarge.
func (p *Producer) Run(ctx context.Context) error {
	if err := p.resume(ctx); err != nil {
		return err
	}
	p.logger.Info("starting block production", "height", p.height, "blockTime", p.blockTime)

	blockTimer := time.NewTimer(p.blockTime)
	defer blockTimer.Stop()

	for {
		select {
		case <-ctx.Done():
			return p.shutdown()

		case probe := <-p.probes:
			close(probe)

		case batch, ok := <-p.batches:
			if !ok {
				p.logger.Info("batch channel closed, flushing pending transactions")
				return p.flush(ctx)
			}
			if err := p.addBatch(ctx, batch); err != nil {
				return err
			}

		case <-blockTimer.C:
			start := time.Now()
			if err := p.flush(ctx); err != nil {
				return err
			}
			blockTimer.Reset(getRemainingSleep(start, p.blockTime))
		}
	}
}

// Ready reports whether the run loop is responsive.
func (p *Producer) Ready(ctx context.Context) error {
	probe := make(chan struct{})
	select {
	case p.probes <- probe:
	case <-ctx.Done():
		return fmt.Errorf("block producer not responding: %w", ctx.Err())
	}
	select {
	case <-probe:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("block producer not responding: %w", ctx.Err())
	}
}

// shutdown drains the batches already accepted and seals them into a last
// block within the shutdown timeout. A digest not handed over in time is
// requeued from the store on the next start.
func (p *Producer) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), p.shutdownTimeout)
	defer cancel()

drain:
	for {
		select {
		case batch, ok := <-p.batches:
			if !ok {
				break drain
			}
			if err := p.addBatch(ctx, batch); err != nil {
				return err
			}
		default:
			break drain
		}
	}
	if len(p.pending) > 0 {
		p.logger.Info("sealing pending transactions on shutdown", "txs", len(p.pending))
	}
	if err := p.flush(ctx); err != nil {
		return err
	}
	if len(p.pending) > 0 {
		p.logger.Warn("dropping unsequenced transactions on shutdown", "txs", len(p.pending))
	}
	return nil
}

// resume loads the last produced block so numbering continues after a restart.
func (p *Producer) resume(ctx context.Context) error {
	height, err := p.store.Height(ctx)
	if err != nil {
		return fmt.Errorf("failed to load store height: %w", err)
	}
	p.height = types.BlockHeight(height)
	p.parent = types.ID{}
	if height == 0 {
		return nil
	}
	last, err := p.store.GetBlock(ctx, height)
	if err != nil {
		return fmt.Errorf("failed to load block at height %d: %w", height, err)
	}
	p.parent = last.ID()
	return nil
}

// addBatch appends a batch to the pending block. The pending transactions
// are flushed first when the batch would push the block over the size bound.
func (p *Producer) addBatch(ctx context.Context, batch types.ValidatedBatch) error {
	p.metrics.Batches.Add(1)
	txs := batch.Data
	if len(txs) == 0 {
		return nil
	}
	batchBytes := txs.EncodedSize() - types.SequenceLenSize(len(txs))

	if types.BlockEncodedSize(len(txs), batchBytes) > p.maxBlockSize {
		return fmt.Errorf("%w: batch of %d transactions from %x does not fit in a block",
			types.ErrBlockTooLarge, len(txs), batch.Signer)
	}
	if types.BlockEncodedSize(len(p.pending)+len(txs), p.pendingBytes+batchBytes) > p.maxBlockSize {
		p.metrics.SizeFlushes.Add(1)
		p.logger.Debug("block size bound reached, producing block early", "pendingTxs", len(p.pending))
		if err := p.flush(ctx); err != nil {
			return err
		}
	}

	p.pending = append(p.pending, txs...)
	p.pendingBytes += batchBytes
	p.metrics.PendingTxs.Set(float64(len(p.pending)))
	return nil
}

// flush turns the pending transactions into the next block. Quiet intervals
// produce no block.
func (p *Producer) flush(ctx context.Context) error {
	if len(p.pending) == 0 {
		return nil
	}
	start := time.Now()

	block, err := types.NewSequencerBlock(p.height.Next(), p.parent, uint64(p.now().UnixMilli()), p.pending) //nolint:gosec
	if err != nil {
		return fmt.Errorf("failed to build block at height %d: %w", p.height.Next(), err)
	}
	if err := p.store.SaveBlock(ctx, block); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("failed to save block at height %d: %w", block.Height(), err)
	}

	p.height = block.Height()
	p.parent = block.ID()
	p.pending = nil
	p.pendingBytes = 0
	p.notifier.Notify()

	if err := p.digests.SendDigest(ctx, block.Digest()); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("failed to publish digest of block %d: %w", block.Height(), err)
	}

	p.metrics.Height.Set(float64(block.Height()))
	p.metrics.NumTxs.Set(float64(block.Len()))
	p.metrics.BlockSizeBytes.Set(float64(block.Size()))
	p.metrics.TotalTxs.Add(float64(block.Len()))
	p.metrics.PendingTxs.Set(0)
	p.metrics.ProductionTime.Observe(time.Since(start).Seconds())
	p.logger.Info("produced block", "height", block.Height(), "id", block.ID(), "txs", block.Len(), "size", block.Size())
	return nil
}

func getRemainingSleep(start time.Time, interval time.Duration) time.Duration {
	elapsed := time.Since(start)

	if elapsed < interval {
		return interval - elapsed
	}

	return time.Millisecond
}
