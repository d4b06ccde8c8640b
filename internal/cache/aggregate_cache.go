package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"pulse/internal/model"
)

// ErrApplyConflict means a concurrent apply of the same submission won the transaction.
// Applying again is safe: the retry observes the marker.
var ErrApplyConflict = errors.New("aggregate apply conflict")

// AggregateCache is the aggregate store. Every write is a counter increment; the aggregate is
// never read-modify-written as a whole.
type AggregateCache interface {
	// Apply adds one submission's delta atomically. A delta whose submission was already applied
	// is not applied again; the current totals are returned with Duplicate set.
	Apply(ctx context.Context, surveyID string, delta *model.AggregateDelta) (*model.AggregateTotals, error)
	// Load returns a consistent copy of the aggregate. topWords > 0 limits the word frequencies
	// to the most frequent entries.
	Load(ctx context.Context, surveyID string, topWords int) (*model.AggregateState, error)
	// Applied reports whether the submission's delta is part of the aggregate
	Applied(ctx context.Context, surveyID, submissionID string) (bool, error)
}

// Hash fields of the counters key
const (
	fieldResponses = "responses"
	fieldSamples   = "samples"
	fieldScoreSum  = "scoreSum"
	memberUpdated  = "lastUpdated"
)

type aggregateCache struct {
	client    *redis.Client
	markerTTL time.Duration
}

// NewAggregateCache creates a Redis-backed aggregate store. markerTTL bounds how long applied
// submission markers are kept.
func NewAggregateCache(client *redis.Client, markerTTL time.Duration) AggregateCache {
	if markerTTL <= 0 {
		markerTTL = 7 * 24 * time.Hour
	}
	return &aggregateCache{
		client:    client,
		markerTTL: markerTTL,
	}
}

// Key helpers. The braces keep all keys of one survey in one cluster slot.
func (c *aggregateCache) countersKey(surveyID string) string {
	return fmt.Sprintf("ms:{%s}:agg", surveyID)
}

func (c *aggregateCache) optionsKey(surveyID string) string {
	return fmt.Sprintf("ms:{%s}:opt", surveyID)
}

func (c *aggregateCache) wordsKey(surveyID string) string {
	return fmt.Sprintf("ms:{%s}:words", surveyID)
}

func (c *aggregateCache) updatedKey(surveyID string) string {
	return fmt.Sprintf("ms:{%s}:ts", surveyID)
}

func (c *aggregateCache) markerKey(surveyID, submissionID string) string {
	return fmt.Sprintf("ms:{%s}:sub:%s", surveyID, submissionID)
}

func optionField(questionID, optionKey string) string {
	return questionID + ":" + optionKey
}

// splitOptionField splits at the last colon; option keys are stringified indexes
func splitOptionField(field string) (string, string, bool) {
	i := strings.LastIndexByte(field, ':')
	if i < 0 {
		return "", "", false
	}
	return field[:i], field[i+1:], true
}

func (c *aggregateCache) Apply(ctx context.Context, surveyID string, delta *model.AggregateDelta) (*model.AggregateTotals, error) {
	marker := c.markerKey(surveyID, delta.SubmissionID)
	var totals *model.AggregateTotals

	txf := func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, marker).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			t, err := c.readTotals(ctx, tx, surveyID)
			if err != nil {
				return err
			}
			t.Duplicate = true
			totals = t
			return nil
		}

		var counters *redis.MapStringStringCmd
		var updated *redis.FloatCmd
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, marker, 1, c.markerTTL)
			for q, tally := range delta.Options {
				for k, n := range tally {
					pipe.HIncrBy(ctx, c.optionsKey(surveyID), optionField(q, k), n)
				}
			}
			for w, n := range delta.Words {
				pipe.ZIncrBy(ctx, c.wordsKey(surveyID), float64(n), w)
			}
			if delta.SentimentSamples > 0 {
				pipe.HIncrBy(ctx, c.countersKey(surveyID), fieldSamples, delta.SentimentSamples)
				pipe.HIncrByFloat(ctx, c.countersKey(surveyID), fieldScoreSum, delta.SentimentSum)
			}
			pipe.HIncrBy(ctx, c.countersKey(surveyID), fieldResponses, delta.Responses)
			pipe.ZAddGT(ctx, c.updatedKey(surveyID), redis.Z{
				Score:  float64(delta.At.UnixMilli()),
				Member: memberUpdated,
			})
			counters = pipe.HGetAll(ctx, c.countersKey(surveyID))
			updated = pipe.ZScore(ctx, c.updatedKey(surveyID), memberUpdated)
			return nil
		})
		if err != nil {
			return err
		}
		totals = parseTotals(counters.Val(), updated.Val())
		return nil
	}

	err := c.client.Watch(ctx, txf, marker)
	if errors.Is(err, redis.TxFailedErr) {
		return nil, ErrApplyConflict
	}
	if err != nil {
		return nil, err
	}
	return totals, nil
}

func (c *aggregateCache) readTotals(ctx context.Context, tx *redis.Tx, surveyID string) (*model.AggregateTotals, error) {
	counters, err := tx.HGetAll(ctx, c.countersKey(surveyID)).Result()
	if err != nil {
		return nil, err
	}
	updated, err := tx.ZScore(ctx, c.updatedKey(surveyID), memberUpdated).Result()
	if err != nil && err != redis.Nil {
		return nil, err
	}
	return parseTotals(counters, updated), nil
}

func parseTotals(counters map[string]string, updatedMillis float64) *model.AggregateTotals {
	t := &model.AggregateTotals{}
	t.ResponseCount, _ = strconv.ParseInt(counters[fieldResponses], 10, 64)
	t.Sentiment.SampleCount, _ = strconv.ParseInt(counters[fieldSamples], 10, 64)
	t.Sentiment.ScoreSum, _ = strconv.ParseFloat(counters[fieldScoreSum], 64)
	if updatedMillis > 0 {
		t.LastUpdated = time.UnixMilli(int64(updatedMillis)).UTC()
	}
	return t
}

// Load reads every key of the aggregate in one MULTI so the copy never mixes two merges
func (c *aggregateCache) Load(ctx context.Context, surveyID string, topWords int) (*model.AggregateState, error) {
	stop := int64(-1)
	if topWords > 0 {
		stop = int64(topWords - 1)
	}

	var (
		counters *redis.MapStringStringCmd
		options  *redis.MapStringStringCmd
		words    *redis.ZSliceCmd
		updated  *redis.FloatCmd
	)
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		counters = pipe.HGetAll(ctx, c.countersKey(surveyID))
		options = pipe.HGetAll(ctx, c.optionsKey(surveyID))
		words = pipe.ZRevRangeWithScores(ctx, c.wordsKey(surveyID), 0, stop)
		updated = pipe.ZScore(ctx, c.updatedKey(surveyID), memberUpdated)
		return nil
	})
	if err != nil && err != redis.Nil {
		return nil, err
	}

	totals := parseTotals(counters.Val(), updated.Val())
	state := model.NewAggregateState(surveyID)
	state.ResponseCount = totals.ResponseCount
	state.Sentiment = totals.Sentiment
	state.LastUpdated = totals.LastUpdated

	for field, raw := range options.Val() {
		q, k, ok := splitOptionField(field)
		if !ok {
			continue
		}
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			continue
		}
		tally := state.OptionTally[q]
		if tally == nil {
			tally = make(map[string]int64)
			state.OptionTally[q] = tally
		}
		tally[k] = n
	}
	for _, z := range words.Val() {
		word, ok := z.Member.(string)
		if !ok {
			continue
		}
		state.WordFrequency[word] = int64(z.Score)
	}
	return state, nil
}

func (c *aggregateCache) Applied(ctx context.Context, surveyID, submissionID string) (bool, error) {
	n, err := c.client.Exists(ctx, c.markerKey(surveyID, submissionID)).Result()
	return n > 0, err
}
