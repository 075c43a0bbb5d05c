package anthropic

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

const (
	defaultPollInterval = 2 * time.Second
	defaultPollCap      = 15 * time.Second
	defaultPollTimeout  = 30 * time.Minute
)

type pollSettings struct {
	interval time.Duration
	cap      time.Duration
	timeout  time.Duration
}

// PollOption adjusts batch polling.
type PollOption func(*pollSettings)

// WithPollInterval overrides the initial poll interval.
func WithPollInterval(d time.Duration) PollOption {
	return func(s *pollSettings) { s.interval = d }
}

// WithPollCap overrides the maximum poll interval.
func WithPollCap(d time.Duration) PollOption {
	return func(s *pollSettings) { s.cap = d }
}

// WithPollTimeout overrides the overall polling deadline.
func WithPollTimeout(d time.Duration) PollOption {
	return func(s *pollSettings) { s.timeout = d }
}

// PollBatch waits for a submitted batch to finish, backing off between
// checks with jitter. An expired or canceled batch is an error; the batch
// record is still returned so the caller can inspect its counts.
func PollBatch(ctx context.Context, client Client, batchID string, opts ...PollOption) (*BatchResponse, error) {
	settings := pollSettings{
		interval: defaultPollInterval,
		cap:      defaultPollCap,
		timeout:  defaultPollTimeout,
	}
	for _, opt := range opts {
		opt(&settings)
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, settings.timeout)
		defer cancel()
	}

	wait := settings.interval
	for {
		batch, err := client.GetBatch(ctx, batchID)
		if err != nil {
			return nil, eris.Wrapf(err, "anthropic: poll batch %s", batchID)
		}

		switch batch.ProcessingStatus {
		case "ended":
			return batch, nil
		case "expired":
			return batch, eris.Errorf("anthropic: batch %s expired", batchID)
		case "canceled", "canceling":
			return batch, eris.Errorf("anthropic: batch %s canceled", batchID)
		}

		select {
		case <-ctx.Done():
			return nil, eris.Wrapf(ctx.Err(), "anthropic: poll batch %s timed out", batchID)
		case <-time.After(wait):
		}

		wait *= 2
		if wait > settings.cap {
			wait = settings.cap
		}
		// ±20% jitter so concurrent pollers drift apart.
		jitter := time.Duration(rand.Int64N(int64(wait) / 5))
		if rand.IntN(2) == 0 {
			wait += jitter
		} else {
			wait -= jitter
		}
	}
}

// BatchFailure identifies one batch item that did not succeed.
type BatchFailure struct {
	CustomID string
	Type     string // "errored", "canceled", "expired"
}

// BatchCollectResult separates a finished batch into responses keyed by
// custom ID and the items that failed.
type BatchCollectResult struct {
	Succeeded map[string]*MessageResponse
	Failures  []BatchFailure
}

// CollectBatchResultsDetailed drains the iterator. One failed letter does
// not poison the batch: failures are recorded and the rest keep their
// responses.
func CollectBatchResultsDetailed(iter BatchResultIterator) (*BatchCollectResult, error) {
	defer iter.Close()

	result := &BatchCollectResult{
		Succeeded: make(map[string]*MessageResponse),
	}
	for iter.Next() {
		item := iter.Item()
		if item.Type == "succeeded" && item.Message != nil {
			result.Succeeded[item.CustomID] = item.Message
			continue
		}
		if item.Type == "succeeded" {
			continue
		}
		result.Failures = append(result.Failures, BatchFailure{
			CustomID: item.CustomID,
			Type:     item.Type,
		})
		zap.L().Warn("anthropic: batch item failed",
			zap.String("custom_id", item.CustomID),
			zap.String("type", item.Type),
		)
	}
	if err := iter.Err(); err != nil {
		return nil, eris.Wrap(err, "anthropic: collect batch results")
	}

	if len(result.Failures) > 0 {
		zap.L().Warn("anthropic: batch had failed items",
			zap.Int("succeeded", len(result.Succeeded)),
			zap.Int("failed", len(result.Failures)),
		)
	}
	return result, nil
}
