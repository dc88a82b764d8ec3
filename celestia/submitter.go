package celestia

import (
	"context"
	"fmt"
	"time"

	"cosmossdk.io/log"
	"github.com/celestiaorg/go-square/v2/share"

	"github.com/movementlabsxyz/da-sequencer/types"
)

const (
	defaultMaxSubmitAttempts = 5
	defaultInitialBackoff    = 100 * time.Millisecond
	defaultMaxBackoff        = 30 * time.Second
)

// HeightStore records DA confirmations.
type HeightStore interface {
	SetDAHeights(ctx context.Context, daHeight uint64, heights []uint64) error
	SetSyncedHeight(ctx context.Context, height uint64) error
}

// submitResult is the outcome of one dispatched blob.
type submitResult struct {
	daHeight uint64
	digests  []types.SequencerBlockDigest
	err      error
}

// Submitter turns a stream of block digests into blob submissions.
//
// At most one submission is in flight. While it is pending, new digests are
// buffered only as long as the buffered blob stays within maxBlobSize; after
// that the digest channel is not read and senders block until the pending
// submission completes.
type Submitter struct {
	logger    log.Logger
	backend   Backend
	namespace share.Namespace
	digests   <-chan types.SequencerBlockDigest
	store     HeightStore
	metrics   *Metrics

	maxBlobSize       int
	maxSubmitAttempts int
	initialBackoff    time.Duration
	maxBackoff        time.Duration
}

// Run drives the submission state machine until the digest channel is closed
// and drained, ctx is cancelled, or a submission fails for good.
func (s *Submitter) Run(ctx context.Context) error {
	var (
		buffer   []types.SequencerBlockDigest
		inFlight bool
		digests  = s.digests
		results  = make(chan submitResult, 1)
	)

	for {
		if !inFlight && len(buffer) > 0 {
			dispatched := buffer
			buffer = nil
			inFlight = true
			go func() {
				results <- s.submit(ctx, dispatched)
			}()
		}
		s.metrics.BufferedDigests.Set(float64(len(buffer)))

		if !inFlight && digests == nil {
			s.logger.Info("digest channel closed, submitter exiting")
			return nil
		}

		// A nil channel disables the receive case: this is the backpressure
		// point when the next digest would not fit in the blob.
		var in <-chan types.SequencerBlockDigest
		if digests != nil && EncodedBlobSize(len(buffer)+1) <= s.maxBlobSize {
			in = digests
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case res := <-results:
			inFlight = false
			if res.err != nil {
				return res.err
			}
			if err := s.confirm(ctx, res); err != nil {
				return err
			}
		case d, ok := <-in:
			if !ok {
				digests = nil
				continue
			}
			buffer = append(buffer, d)
		}
	}
}

// submit publishes digests as one blob, retrying with exponential backoff.
func (s *Submitter) submit(ctx context.Context, digests []types.SequencerBlockDigest) submitResult {
	blob := CelestiaBlob{Digests: digests}
	data, err := blob.Bytes()
	if err != nil {
		return submitResult{err: fmt.Errorf("failed to encode celestia blob: %w", err)}
	}

	var backoff time.Duration
	for attempt := 1; ; attempt++ {
		select {
		case <-ctx.Done():
			return submitResult{err: ctx.Err()}
		case <-time.After(backoff):
		}

		daHeight, err := s.backend.Submit(ctx, data, s.namespace.Bytes())
		if err == nil {
			s.metrics.SubmitAttempts.With("status", "success").Add(1)
			s.metrics.LastBlobSize.Set(float64(len(data)))
			s.metrics.LastBlobShares.Set(float64(sharesNeeded(len(data))))
			s.logger.Info("submitted digests to DA layer",
				"daHeight", daHeight,
				"digests", len(digests),
				"firstHeight", digests[0].Height,
				"lastHeight", digests[len(digests)-1].Height,
				"blobSize", len(data))
			return submitResult{daHeight: daHeight, digests: digests}
		}

		s.metrics.SubmitAttempts.With("status", "failure").Add(1)
		s.logger.Error("DA layer submission failed", "error", err, "attempt", attempt, "digests", len(digests))
		if !isRetryable(err) || attempt >= s.maxSubmitAttempts {
			return submitResult{err: fmt.Errorf("failed to submit %d digests after %d attempts: %w", len(digests), attempt, err)}
		}
		backoff = s.exponentialBackoff(backoff)
		s.logger.Info("retrying DA layer submission", "backoff", backoff, "attempt", attempt+1)
	}
}

// confirm records the DA height of every published block and advances the
// synced height to the highest of them.
func (s *Submitter) confirm(ctx context.Context, res submitResult) error {
	heights := make([]uint64, len(res.digests))
	var synced uint64
	for i, d := range res.digests {
		heights[i] = d.Height.Uint64()
		synced = max(synced, heights[i])
	}
	s.metrics.SubmittedDigests.Add(float64(len(res.digests)))
	s.metrics.IncludedDAHeight.Set(float64(res.daHeight))
	s.metrics.SyncedHeight.Set(float64(synced))

	if s.store == nil {
		return nil
	}
	if err := s.store.SetDAHeights(ctx, res.daHeight, heights); err != nil {
		return fmt.Errorf("failed to record DA heights: %w", err)
	}
	if err := s.store.SetSyncedHeight(ctx, synced); err != nil {
		return fmt.Errorf("failed to record synced height: %w", err)
	}
	return nil
}

func (s *Submitter) exponentialBackoff(backoff time.Duration) time.Duration {
	backoff *= 2
	if backoff == 0 {
		backoff = s.initialBackoff
	}
	if backoff > s.maxBackoff {
		backoff = s.maxBackoff
	}
	return backoff
}
