// Package cleanup removes registrations whose activation window elapsed
// without the account ever being activated.
package cleanup

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	registration "github.com/goliatone/go-registration"
)

// Purger deletes never activated accounts registered at or before cutoff.
type Purger interface {
	PurgeExpired(ctx context.Context, cutoff time.Time) (int, error)
}

// Reporter receives the outcome of each run.
type Reporter interface {
	RecordCleanup(removed int, at time.Time, err error)
}

// Job is an idempotent batch job meant to be run by an external scheduler.
type Job struct {
	purger   Purger
	policy   registration.PolicyProvider
	logger   registration.Logger
	reporter Reporter
	clock    func() time.Time
}

type Option func(*Job)

func WithLogger(logger registration.Logger) Option {
	return func(j *Job) {
		if logger != nil {
			j.logger = logger
		}
	}
}

func WithReporter(r Reporter) Option {
	return func(j *Job) {
		j.reporter = r
	}
}

func WithClock(clock func() time.Time) Option {
	return func(j *Job) {
		if clock != nil {
			j.clock = clock
		}
	}
}

func NewJob(purger Purger, policy registration.PolicyProvider, opts ...Option) *Job {
	j := &Job{
		purger: purger,
		policy: policy,
		logger: nopLogger{},
		clock:  func() time.Time { return time.Now().UTC() },
	}

	for _, opt := range opts {
		if opt != nil {
			opt(j)
		}
	}

	return j
}

// Run deletes expired registrations and returns how many were removed. When
// keys never expire nothing is deleted.
func (j *Job) Run(ctx context.Context) (int, error) {
	start := j.clock()

	days := j.policy.ActivationWindowDays(ctx)
	if days <= 0 {
		j.logger.Info("activation keys never expire, cleanup skipped")
		return 0, nil
	}

	cutoff := start.Add(-time.Duration(days) * 24 * time.Hour)

	removed, err := j.purger.PurgeExpired(ctx, cutoff)
	if j.reporter != nil {
		j.reporter.RecordCleanup(removed, start, err)
	}
	if err != nil {
		j.logger.Error("registration cleanup failed", "error", err, "activation_days", days)
		return 0, goerrors.Wrap(err, goerrors.CategoryOperation, "registration cleanup failed")
	}

	j.logger.Info("registration cleanup completed",
		"deleted_count", removed,
		"activation_days", days,
		"duration_ms", j.clock().Sub(start).Milliseconds(),
	)

	return removed, nil
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
