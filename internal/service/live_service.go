package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"pulse/internal/cache"
	"pulse/internal/model"
	"pulse/internal/observability"
	"pulse/internal/repository"
)

// Top-N word cloud limits
const (
	DefaultTopWords = 20
	MaxTopWords     = 100
)

const liveReadTimeout = 2 * time.Second

// LiveService serves read-only views of the aggregate. Reads never take a lock a merge waits on.
type LiveService struct {
	surveys     *SurveyService
	store       cache.AggregateCache
	reportRepo  repository.ReportRepo
	broadcaster Broadcaster
	topWords    int
	group       singleflight.Group
	metrics     *observability.Metrics
	logger      *slog.Logger
}

// NewLiveService creates a new live read service. reportRepo may be nil.
func NewLiveService(
	surveys *SurveyService,
	store cache.AggregateCache,
	reportRepo repository.ReportRepo,
	topWords int,
	metrics *observability.Metrics,
	logger *slog.Logger,
) *LiveService {
	if topWords <= 0 {
		topWords = DefaultTopWords
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LiveService{
		surveys:    surveys,
		store:      store,
		reportRepo: reportRepo,
		topWords:   topWords,
		metrics:    metrics,
		logger:     logger,
	}
}

// SetBroadcaster sets the broadcaster for WebSocket events
func (s *LiveService) SetBroadcaster(b Broadcaster) {
	s.broadcaster = b
}

// Snapshot returns a read-only copy of the full aggregate. The copy reflects every merge that
// completed before the read, or an earlier consistent state; never part of a merge.
func (s *LiveService) Snapshot(ctx context.Context, surveyID string) (*model.AggregateState, error) {
	survey, err := s.surveys.Get(ctx, surveyID)
	if err != nil {
		return nil, err
	}
	state, err := s.store.Load(ctx, surveyID, 0)
	if err != nil {
		return nil, storeUnavailable(err)
	}
	return withEngagement(state, survey.TargetCount), nil
}

// Live returns the dashboard projection for one survey. top <= 0 uses the configured default.
func (s *LiveService) Live(ctx context.Context, caller *model.Caller, surveyID string, top int) (*model.LiveSnapshot, error) {
	survey, err := s.surveys.GetForTenant(ctx, caller, surveyID)
	if err != nil {
		return nil, err
	}
	top = s.clampTop(top)

	key := fmt.Sprintf("%s:%d", surveyID, top)
	v, err, shared := s.group.Do(key, func() (interface{}, error) {
		readCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), liveReadTimeout)
		defer cancel()
		return s.project(readCtx, survey, top)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		s.metrics.ObserveLiveRead(observability.LiveCoalesced)
	}
	return v.(*model.LiveSnapshot), nil
}

func (s *LiveService) project(ctx context.Context, survey *model.MicroSurvey, top int) (*model.LiveSnapshot, error) {
	if survey.Status.IsTerminal() && s.reportRepo != nil {
		final, err := s.reportRepo.GetFinal(ctx, survey.ID)
		if err != nil {
			s.logger.Warn("final snapshot read failed, using live store", "survey_id", survey.ID, "error", err)
		} else if final != nil && final.State != nil {
			s.metrics.ObserveLiveRead(observability.LiveFrozen)
			return Project(survey, final.State, top), nil
		}
	}

	state, err := s.store.Load(ctx, survey.ID, top)
	if err != nil {
		return nil, storeUnavailable(err)
	}
	s.metrics.ObserveLiveRead(observability.LiveFromStore)
	return Project(survey, state, top), nil
}

// Publish pushes a fresh projection to connected dashboards. It is a no-op without subscribers.
func (s *LiveService) Publish(ctx context.Context, survey *model.MicroSurvey) {
	if s.broadcaster == nil || s.broadcaster.Subscribers(survey.ID) == 0 {
		return
	}
	snapshot, err := s.project(ctx, survey, s.topWords)
	if err != nil {
		s.logger.Warn("live publish failed", "survey_id", survey.ID, "error", err)
		return
	}
	s.broadcaster.BroadcastToSurvey(survey.ID, MsgLiveSnapshot, snapshot)
}

func (s *LiveService) clampTop(top int) int {
	if top <= 0 {
		return s.topWords
	}
	if top > MaxTopWords {
		return MaxTopWords
	}
	return top
}

// Project derives the dashboard view from an aggregate. Engagement and the sentiment average
// are computed here from counters, never read from storage.
func Project(survey *model.MicroSurvey, state *model.AggregateState, top int) *model.LiveSnapshot {
	tally := make(map[string]map[string]int64, len(state.OptionTally))
	for q, counts := range state.OptionTally {
		cp := make(map[string]int64, len(counts))
		for k, n := range counts {
			cp[k] = n
		}
		tally[q] = cp
	}
	return &model.LiveSnapshot{
		SurveyID:          survey.ID,
		Status:            survey.Status,
		ResponseCount:     state.ResponseCount,
		TargetCount:       survey.TargetCount,
		ParticipationRate: Participation(state.ResponseCount, survey.TargetCount),
		OptionTally:       tally,
		TopWords:          state.TopWords(top),
		Sentiment: model.SentimentView{
			Average:     state.Sentiment.Average(),
			SampleCount: state.Sentiment.SampleCount,
		},
		EngagementLevel: ClassifyEngagement(state.ResponseCount, survey.TargetCount, state.Sentiment),
		LastUpdated:     state.LastUpdated,
	}
}
