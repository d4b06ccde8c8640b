package cache

import (
	"context"
	"sync"

	"pulse/internal/model"
)

// memoryAggregateCache keeps each survey's aggregate behind its own mutex. Merges to different
// surveys never contend.
type memoryAggregateCache struct {
	mu      sync.Mutex
	surveys map[string]*surveyAggregate
}

type surveyAggregate struct {
	mu      sync.Mutex
	state   *model.AggregateState
	applied map[string]struct{}
}

// NewMemoryAggregateCache creates an in-process aggregate store for single-node deployments
// and tests
func NewMemoryAggregateCache() AggregateCache {
	return &memoryAggregateCache{
		surveys: make(map[string]*surveyAggregate),
	}
}

func (c *memoryAggregateCache) survey(surveyID string) *surveyAggregate {
	c.mu.Lock()
	defer c.mu.Unlock()
	agg, ok := c.surveys[surveyID]
	if !ok {
		agg = &surveyAggregate{
			state:   model.NewAggregateState(surveyID),
			applied: make(map[string]struct{}),
		}
		c.surveys[surveyID] = agg
	}
	return agg
}

func (c *memoryAggregateCache) Apply(ctx context.Context, surveyID string, delta *model.AggregateDelta) (*model.AggregateTotals, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	agg := c.survey(surveyID)
	agg.mu.Lock()
	defer agg.mu.Unlock()

	_, dup := agg.applied[delta.SubmissionID]
	if !dup {
		agg.state.Apply(delta)
		agg.applied[delta.SubmissionID] = struct{}{}
	}
	return &model.AggregateTotals{
		ResponseCount: agg.state.ResponseCount,
		Sentiment:     agg.state.Sentiment,
		LastUpdated:   agg.state.LastUpdated,
		Duplicate:     dup,
	}, nil
}

func (c *memoryAggregateCache) Load(ctx context.Context, surveyID string, topWords int) (*model.AggregateState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	agg := c.survey(surveyID)
	agg.mu.Lock()
	state := agg.state.Clone()
	agg.mu.Unlock()

	if topWords > 0 && len(state.WordFrequency) > topWords {
		top := state.TopWords(topWords)
		state.WordFrequency = make(map[string]int64, len(top))
		for _, wc := range top {
			state.WordFrequency[wc.Word] = wc.Count
		}
	}
	return state, nil
}

func (c *memoryAggregateCache) Applied(ctx context.Context, surveyID, submissionID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	agg := c.survey(surveyID)
	agg.mu.Lock()
	defer agg.mu.Unlock()
	_, ok := agg.applied[submissionID]
	return ok, nil
}
