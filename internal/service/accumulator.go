package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"

	"pulse/internal/cache"
	"pulse/internal/model"
	"pulse/internal/observability"
)

// ErrMergeExhausted is returned when every apply attempt failed
var ErrMergeExhausted = errors.New("merge retries exhausted")

// BuildDelta folds a submission's events into one delta that counts one response
func BuildDelta(submissionID string, events []model.AggregationEvent, at time.Time) *model.AggregateDelta {
	d := foldEvents(submissionID, events, at)
	d.Responses = 1
	return d
}

func foldEvents(submissionID string, events []model.AggregationEvent, at time.Time) *model.AggregateDelta {
	d := model.NewAggregateDelta(submissionID, at)
	for _, e := range events {
		d.Add(e)
	}
	return d
}

// RetryPolicy bounds how merges are retried against the aggregate store
type RetryPolicy struct {
	MaxAttempts     uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryPolicy returns the policy used when none is configured
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     5,
		InitialInterval: 20 * time.Millisecond,
		MaxInterval:     500 * time.Millisecond,
	}
}

func (p RetryPolicy) backOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval
	b.RandomizationFactor = 0.2
	b.Multiplier = 2
	return b
}

// Accumulator applies submissions to the aggregate store with bounded retries
type Accumulator struct {
	store   cache.AggregateCache
	policy  RetryPolicy
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewAccumulator creates a new accumulator
func NewAccumulator(store cache.AggregateCache, policy RetryPolicy, metrics *observability.Metrics, logger *slog.Logger) *Accumulator {
	def := DefaultRetryPolicy()
	if policy.MaxAttempts == 0 {
		policy.MaxAttempts = def.MaxAttempts
	}
	if policy.InitialInterval <= 0 {
		policy.InitialInterval = def.InitialInterval
	}
	if policy.MaxInterval < policy.InitialInterval {
		policy.MaxInterval = policy.InitialInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Accumulator{
		store:   store,
		policy:  policy,
		metrics: metrics,
		logger:  logger,
	}
}

// Merge applies all events of one submission as a single unit. Retrying after an ambiguous
// failure never double counts: the store skips submissions it has already applied.
func (a *Accumulator) Merge(ctx context.Context, surveyID, submissionID string, events []model.AggregationEvent, at time.Time) (*model.AggregateTotals, error) {
	delta := BuildDelta(submissionID, events, at)
	start := time.Now()
	defer func() { a.metrics.ObserveMergeDuration(time.Since(start)) }()

	attempts := 0
	totals, err := backoff.Retry(ctx, func() (*model.AggregateTotals, error) {
		attempts++
		t, err := a.store.Apply(ctx, surveyID, delta)
		if err != nil {
			a.metrics.ObserveMergeAttempt(observability.MergeFailed)
			if ctx.Err() != nil {
				return nil, backoff.Permanent(ctx.Err())
			}
			return nil, err
		}
		if t.Duplicate {
			a.metrics.ObserveMergeAttempt(observability.MergeDuplicate)
		} else {
			a.metrics.ObserveMergeAttempt(observability.MergeApplied)
		}
		return t, nil
	},
		backoff.WithBackOff(a.policy.backOff()),
		backoff.WithMaxTries(a.policy.MaxAttempts),
		backoff.WithNotify(func(err error, next time.Duration) {
			a.logger.Warn("aggregate apply failed, retrying",
				"survey_id", surveyID,
				"submission_id", submissionID,
				"retry_in", next,
				"error", err)
		}),
	)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("merge interrupted after %d attempts: %w", attempts, err)
		}
		return nil, fmt.Errorf("%w after %d attempts: %v", ErrMergeExhausted, attempts, err)
	}
	return totals, nil
}

// Applied reports whether a submission's delta reached the aggregate store
func (a *Accumulator) Applied(ctx context.Context, surveyID, submissionID string) (bool, error) {
	return a.store.Applied(ctx, surveyID, submissionID)
}
