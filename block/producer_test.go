package block

import (
	"bytes"
	"context"
	"testing"
	"time"

	"cosmossdk.io/log"
	ds "github.com/ipfs/go-datastore"
	dssync "github.com/ipfs/go-datastore/sync"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/movementlabsxyz/da-sequencer/pkg/store"
	"github.com/movementlabsxyz/da-sequencer/types"
)

type digestRecorder struct {
	ch chan types.SequencerBlockDigest
}

func newDigestRecorder() *digestRecorder {
	return &digestRecorder{ch: make(chan types.SequencerBlockDigest, 64)}
}

func (r *digestRecorder) SendDigest(ctx context.Context, d types.SequencerBlockDigest) error {
	select {
	case r.ch <- d:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *digestRecorder) next(t *testing.T) types.SequencerBlockDigest {
	t.Helper()
	select {
	case d := <-r.ch:
		return d
	case <-time.After(5 * time.Second):
		t.Fatal("no block digest published")
		return types.SequencerBlockDigest{}
	}
}

func newTestStore(t *testing.T) *store.SequencerDb {
	t.Helper()
	s, err := store.Open(t.Context(), dssync.MutexWrap(ds.NewMapDatastore()))
	require.NoError(t, err)
	return s
}

func tx(data string, seq uint64) types.Transaction {
	return types.NewTransaction([]byte(data), 0, seq)
}

func batchOf(txs ...types.Transaction) types.ValidatedBatch {
	return types.ValidatedBatch{Data: txs, Signer: bytes.Repeat([]byte{1}, 32)}
}

type producerHarness struct {
	producer *Producer
	store    *store.SequencerDb
	digests  *digestRecorder
	notifier *Notifier
	batches  chan types.ValidatedBatch
	errCh    chan error
	cancel   context.CancelFunc
}

func startProducer(t *testing.T, s *store.SequencerDb, cfg ProducerConfig) *producerHarness {
	t.Helper()
	h := &producerHarness{
		store:    s,
		digests:  newDigestRecorder(),
		notifier: NewNotifier(),
		batches:  make(chan types.ValidatedBatch),
		errCh:    make(chan error, 1),
	}
	h.producer = NewProducer(log.NewTestLogger(t), s, h.digests, h.notifier, h.batches, cfg)

	ctx, cancel := context.WithCancel(t.Context())
	h.cancel = cancel
	go func() {
		h.errCh <- h.producer.Run(ctx)
	}()
	t.Cleanup(cancel)
	return h
}

func (h *producerHarness) send(t *testing.T, b types.ValidatedBatch) {
	t.Helper()
	select {
	case h.batches <- b:
	case err := <-h.errCh:
		t.Fatalf("producer stopped: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("producer did not accept batch")
	}
}

func (h *producerHarness) wait(t *testing.T) error {
	t.Helper()
	select {
	case err := <-h.errCh:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("producer did not stop")
		return nil
	}
}

func TestProducerAggregatesBatchesIntoOneBlock(t *testing.T) {
	const blockTime = 300 * time.Millisecond
	s := newTestStore(t)
	h := startProducer(t, s, ProducerConfig{BlockTime: blockTime})

	tx1, tx2, tx3, tx4 := tx("tx1", 1), tx("tx2", 2), tx("tx3", 3), tx("tx4", 4)
	h.send(t, batchOf(tx1))
	h.send(t, batchOf(tx2, tx3))
	h.send(t, batchOf(tx4))

	d := h.digests.next(t)
	assert.Equal(t, types.BlockHeight(1), d.Height)

	block, err := s.GetBlock(t.Context(), 1)
	require.NoError(t, err)
	assert.Equal(t, d.ID, block.ID())
	assert.Equal(t, types.Transactions{tx1, tx2, tx3, tx4}, block.Transactions())
	assert.Equal(t, types.ID{}, block.ParentID())
	assert.InDelta(t, time.Now().UnixMilli(), int64(block.Timestamp()), float64(5*time.Second/time.Millisecond)) //nolint:gosec

	// Quiet intervals produce no empty blocks.
	require.Never(t, func() bool {
		height, err := s.Height(t.Context())
		return err != nil || height != 1
	}, 3*blockTime, blockTime/3)

	h.cancel()
	require.NoError(t, h.wait(t))
}

func TestProducerHeightsAreContiguous(t *testing.T) {
	s := newTestStore(t)
	h := startProducer(t, s, ProducerConfig{BlockTime: 20 * time.Millisecond})

	var prev *types.SequencerBlock
	for i := uint64(1); i <= 5; i++ {
		h.send(t, batchOf(tx("payload", i)))
		d := h.digests.next(t)
		require.Equal(t, types.BlockHeight(i), d.Height)

		block, err := s.GetBlock(t.Context(), i)
		require.NoError(t, err)
		if prev != nil {
			assert.Equal(t, prev.ID(), block.ParentID())
			assert.GreaterOrEqual(t, block.Timestamp(), prev.Timestamp())
		}
		prev = block
	}

	height, err := s.Height(t.Context())
	require.NoError(t, err)
	assert.Equal(t, uint64(5), height)
}

func TestProducerFlushesWhenBlockIsFull(t *testing.T) {
	a, b, c := tx("aaaa", 1), tx("bbbb", 2), tx("cccc", 3)
	full := types.Transactions{a, b}
	maxBlockSize := types.BlockEncodedSize(len(full), full.EncodedSize()-types.SequenceLenSize(len(full)))

	s := newTestStore(t)
	h := startProducer(t, s, ProducerConfig{BlockTime: time.Hour, MaxBlockSize: maxBlockSize})

	h.send(t, batchOf(a, b))
	h.send(t, batchOf(c))

	// The second batch does not fit next to the first, so the first block is
	// produced without waiting for the interval.
	d := h.digests.next(t)
	assert.Equal(t, types.BlockHeight(1), d.Height)
	first, err := s.GetBlock(t.Context(), 1)
	require.NoError(t, err)
	assert.Equal(t, full, first.Transactions())
	assert.LessOrEqual(t, first.Size(), maxBlockSize)

	// Closing the input flushes what is left.
	close(h.batches)
	require.NoError(t, h.wait(t))
	second, err := s.GetBlock(t.Context(), 2)
	require.NoError(t, err)
	assert.Equal(t, types.Transactions{c}, second.Transactions())
	assert.Equal(t, first.ID(), second.ParentID())
}

func TestProducerOversizedBatchIsFatal(t *testing.T) {
	big := tx("a batch that can never fit", 1)
	maxBlockSize := types.BlockEncodedSize(1, big.EncodedSize()) - 1

	s := newTestStore(t)
	h := startProducer(t, s, ProducerConfig{BlockTime: 10 * time.Millisecond, MaxBlockSize: maxBlockSize})

	h.batches <- batchOf(big)
	require.ErrorIs(t, h.wait(t), types.ErrBlockTooLarge)

	height, err := s.Height(t.Context())
	require.NoError(t, err)
	assert.Zero(t, height)
}

func TestProducerResumesFromStore(t *testing.T) {
	s := newTestStore(t)
	var parent types.ID
	for i := uint64(1); i <= 2; i++ {
		block, err := types.NewSequencerBlock(types.BlockHeight(i), parent, i, types.Transactions{tx("old", i)})
		require.NoError(t, err)
		require.NoError(t, s.SaveBlock(t.Context(), block))
		parent = block.ID()
	}

	h := startProducer(t, s, ProducerConfig{BlockTime: time.Hour})
	h.send(t, batchOf(tx("new", 3)))
	close(h.batches)
	require.NoError(t, h.wait(t))

	d := h.digests.next(t)
	assert.Equal(t, types.BlockHeight(3), d.Height)
	block, err := s.GetBlock(t.Context(), 3)
	require.NoError(t, err)
	assert.Equal(t, parent, block.ParentID())
}

func TestProducerNotifiesSubscribers(t *testing.T) {
	s := newTestStore(t)
	h := startProducer(t, s, ProducerConfig{BlockTime: 10 * time.Millisecond})
	sub, unsubscribe := h.notifier.Subscribe()
	defer unsubscribe()

	h.send(t, batchOf(tx("hello", 1)))
	select {
	case <-sub:
	case <-time.After(5 * time.Second):
		t.Fatal("subscriber was not notified")
	}
	height, err := s.Height(t.Context())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), height, "blocks are stored before subscribers are notified")
}

func TestProducerReady(t *testing.T) {
	s := newTestStore(t)
	h := startProducer(t, s, ProducerConfig{BlockTime: time.Hour})

	ctx, cancel := context.WithTimeout(t.Context(), 2*time.Second)
	defer cancel()
	require.NoError(t, h.producer.Ready(ctx))

	h.cancel()
	require.NoError(t, h.wait(t))

	ctx, cancel = context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, h.producer.Ready(ctx), context.DeadlineExceeded)
}

func TestProducerSealsPendingOnShutdown(t *testing.T) {
	s := newTestStore(t)
	h := startProducer(t, s, ProducerConfig{BlockTime: time.Hour})

	h.send(t, batchOf(tx("tx1", 1)))
	h.send(t, batchOf(tx("tx2", 2)))
	h.cancel()
	require.NoError(t, h.wait(t))

	d := h.digests.next(t)
	assert.Equal(t, types.BlockHeight(1), d.Height)
	block, err := s.GetBlock(t.Context(), 1)
	require.NoError(t, err)
	assert.Equal(t, types.Transactions{tx("tx1", 1), tx("tx2", 2)}, block.Transactions())
}

type stalledSender struct{}

func (stalledSender) SendDigest(ctx context.Context, _ types.SequencerBlockDigest) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestProducerShutdownIsBounded(t *testing.T) {
	s := newTestStore(t)
	batches := make(chan types.ValidatedBatch)
	producer := NewProducer(log.NewNopLogger(), s, stalledSender{}, NewNotifier(), batches, ProducerConfig{
		BlockTime:       time.Hour,
		ShutdownTimeout: 50 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(t.Context())
	errCh := make(chan error, 1)
	go func() {
		errCh <- producer.Run(ctx)
	}()
	batches <- batchOf(tx("tx1", 1))
	cancel()

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("producer did not stop")
	}

	// The block is stored even though its digest was never handed over.
	height, err := s.Height(t.Context())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), height)
}
