package service

import (
	"context"
	"log/slog"
	"time"

	"pulse/internal/cache"
	"pulse/internal/model"
	"pulse/internal/repository"
)

// ReportService freezes and serves the final aggregate of completed surveys
type ReportService struct {
	reportRepo repository.ReportRepo
	store      cache.AggregateCache
	surveys    *SurveyService
	topWords   int
	logger     *slog.Logger
	now        func() time.Time
}

// NewReportService creates a new report service
func NewReportService(
	reportRepo repository.ReportRepo,
	store cache.AggregateCache,
	surveys *SurveyService,
	topWords int,
	logger *slog.Logger,
) *ReportService {
	if topWords <= 0 {
		topWords = DefaultTopWords
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ReportService{
		reportRepo: reportRepo,
		store:      store,
		surveys:    surveys,
		topWords:   topWords,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// FreezeFinal copies the current aggregate, all words included, into the report store
func (s *ReportService) FreezeFinal(ctx context.Context, survey *model.MicroSurvey) (*model.FinalSnapshot, error) {
	state, err := s.store.Load(ctx, survey.ID, 0)
	if err != nil {
		return nil, storeUnavailable(err)
	}
	snapshot := &model.FinalSnapshot{
		SurveyID: survey.ID,
		TenantID: survey.TenantID,
		FrozenAt: s.now(),
		State:    withEngagement(state, survey.TargetCount),
		Live:     Project(survey, state, s.topWords),
	}
	if err := s.reportRepo.SaveFinal(ctx, snapshot); err != nil {
		return nil, storeUnavailable(err)
	}
	s.logger.Info("final snapshot frozen", "survey_id", survey.ID, "responses", state.ResponseCount)
	return snapshot, nil
}

// GetReport returns the frozen snapshot of a completed survey, freezing it on first read if the
// freeze at completion did not go through
func (s *ReportService) GetReport(ctx context.Context, caller *model.Caller, surveyID string) (*model.FinalSnapshot, error) {
	survey, err := s.surveys.GetForTenant(ctx, caller, surveyID)
	if err != nil {
		return nil, err
	}
	snapshot, err := s.reportRepo.GetFinal(ctx, surveyID)
	if err != nil {
		return nil, storeUnavailable(err)
	}
	if snapshot != nil {
		return snapshot, nil
	}
	if survey.Status == model.SurveyCompleted || survey.Status == model.SurveyArchived {
		return s.FreezeFinal(ctx, survey)
	}
	return nil, notFoundError(ReasonReportNotFound, "survey %s has no final report yet", surveyID)
}
