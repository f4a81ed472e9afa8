package syncengine

import (
	"math"
	"math/rand"
	"time"

	"github.com/surrealdb/surrealsync/pkg/models"
)

// Backoff schedules the next automated attempt of a failed sync.
//
// Whether another attempt happens at all is decided by the record itself
// (see [models.SyncError.Exhausted]); a Backoff only picks the time.
type Backoff interface {
	// NextRetryAt returns when rec is due again after failing at now.
	// rec.RetryCount is the number of retries already made.
	NextRetryAt(rec *models.SyncError, now time.Time) time.Time
}

// ExponentialBackoff doubles the wait after every failed retry, up to Max.
type ExponentialBackoff struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
	// JitterFactor spreads the delay by up to this fraction either way (0.0 to 1.0).
	JitterFactor float64
}

// NewExponentialBackoff starts at 30s and is capped at one hour.
func NewExponentialBackoff() *ExponentialBackoff {
	return &ExponentialBackoff{
		Initial:      30 * time.Second,
		Max:          time.Hour,
		Multiplier:   2.0,
		JitterFactor: 0.2,
	}
}

// NextRetryAt implements Backoff.
func (b *ExponentialBackoff) NextRetryAt(rec *models.SyncError, now time.Time) time.Time {
	return now.Add(b.delay(rec.RetryCount))
}

func (b *ExponentialBackoff) delay(retries int) time.Duration {
	delay := float64(b.Initial) * math.Pow(b.Multiplier, float64(retries))
	if delay > float64(b.Max) {
		delay = float64(b.Max)
	}
	if b.JitterFactor > 0 {
		//nolint:gosec // jitter is not security sensitive
		delay += delay * b.JitterFactor * (2*rand.Float64() - 1)
		if delay < 0 {
			delay = float64(b.Initial)
		}
	}
	return time.Duration(delay)
}

// FixedBackoff waits the same delay after every failure.
type FixedBackoff struct {
	Delay time.Duration
}

// NextRetryAt implements Backoff.
func (b FixedBackoff) NextRetryAt(_ *models.SyncError, now time.Time) time.Time {
	return now.Add(b.Delay)
}
