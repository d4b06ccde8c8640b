package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"pulse/internal/cache"
	"pulse/internal/model"
	"pulse/internal/repository"
)

// SurveyService manages micro-survey definitions and their lifecycle
type SurveyService struct {
	surveyRepo  repository.SurveyRepo
	surveyCache cache.SurveyCache
	reports     *ReportService
	broadcaster Broadcaster
	logger      *slog.Logger
	now         func() time.Time
}

// NewSurveyService creates a new survey service. surveyCache may be nil.
func NewSurveyService(surveyRepo repository.SurveyRepo, surveyCache cache.SurveyCache, logger *slog.Logger) *SurveyService {
	if logger == nil {
		logger = slog.Default()
	}
	return &SurveyService{
		surveyRepo:  surveyRepo,
		surveyCache: surveyCache,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// SetBroadcaster sets the broadcaster for WebSocket events
func (s *SurveyService) SetBroadcaster(b Broadcaster) {
	s.broadcaster = b
}

// SetReportService sets the report service used to freeze aggregates on completion
func (s *SurveyService) SetReportService(r *ReportService) {
	s.reports = r
}

// Create validates and stores a new draft survey owned by the caller's tenant
func (s *SurveyService) Create(ctx context.Context, caller *model.Caller, req *model.CreateSurveyRequest) (*model.MicroSurvey, error) {
	if caller == nil {
		return nil, authorizationError(ReasonUnauthorized, "no caller identity")
	}
	if err := ValidateDefinition(req.Questions); err != nil {
		return nil, err
	}
	if req.Window.Start.IsZero() || req.Window.DurationSec <= 0 {
		return nil, validationError(ReasonInvalidDefinition, "window needs a start and a positive duration")
	}

	now := s.now()
	survey := &model.MicroSurvey{
		ID:          uuid.NewString(),
		TenantID:    caller.TenantID,
		Title:       req.Title,
		Status:      model.SurveyDraft,
		Window:      model.SurveyWindow{Start: req.Window.Start.UTC(), DurationSec: req.Window.DurationSec},
		TargetCount: req.TargetCount,
		Questions:   req.Questions,
		CreatedBy:   caller.UserID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.surveyRepo.Create(ctx, survey); err != nil {
		return nil, storeUnavailable(err)
	}

	s.logger.Info("survey created", "survey_id", survey.ID, "tenant_id", survey.TenantID, "questions", len(survey.Questions))
	return survey, nil
}

// ValidateDefinition checks that every question can be answered and aggregated
func ValidateDefinition(questions []model.Question) error {
	if len(questions) == 0 {
		return validationError(ReasonInvalidDefinition, "survey needs at least one question")
	}
	seen := make(map[string]struct{}, len(questions))
	for i := range questions {
		q := &questions[i]
		if q.ID == "" {
			return validationError(ReasonInvalidDefinition, "question %d has no id", i)
		}
		if _, dup := seen[q.ID]; dup {
			return validationError(ReasonInvalidDefinition, "question id %s is used twice", q.ID)
		}
		seen[q.ID] = struct{}{}

		switch q.Kind {
		case model.QuestionSingleChoice:
			if len(q.Options) < 2 {
				return validationError(ReasonInvalidDefinition, "question %s needs at least two options", q.ID)
			}
		case model.QuestionScale:
			if err := validateScale(q); err != nil {
				return err
			}
		case model.QuestionFreeText:
			if q.MaxLength < 0 {
				return validationError(ReasonInvalidDefinition, "question %s has a negative maxLength", q.ID)
			}
		default:
			return validationError(ReasonInvalidDefinition, "question %s has unsupported kind %q", q.ID, q.Kind)
		}
	}
	return nil
}

// Get returns a survey definition, served from the cache when possible
func (s *SurveyService) Get(ctx context.Context, id string) (*model.MicroSurvey, error) {
	if s.surveyCache != nil {
		survey, err := s.surveyCache.Get(ctx, id)
		if err != nil {
			s.logger.Warn("survey cache read failed", "survey_id", id, "error", err)
		} else if survey != nil {
			return survey, nil
		}
	}
	return s.load(ctx, id)
}

func (s *SurveyService) load(ctx context.Context, id string) (*model.MicroSurvey, error) {
	survey, err := s.surveyRepo.GetByID(ctx, id)
	if err != nil {
		return nil, storeUnavailable(err)
	}
	if survey == nil {
		return nil, notFoundError(ReasonSurveyNotFound, "survey %s not found", id)
	}
	if s.surveyCache != nil {
		if err := s.surveyCache.Set(ctx, survey); err != nil {
			s.logger.Warn("survey cache write failed", "survey_id", id, "error", err)
		}
	}
	return survey, nil
}

// GetForTenant returns a survey only if it belongs to the caller's tenant
func (s *SurveyService) GetForTenant(ctx context.Context, caller *model.Caller, id string) (*model.MicroSurvey, error) {
	if caller == nil {
		return nil, authorizationError(ReasonUnauthorized, "no caller identity")
	}
	survey, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if survey.TenantID != caller.TenantID {
		return nil, authorizationError(ReasonWrongTenant, "survey %s belongs to another tenant", id)
	}
	return survey, nil
}

// List returns the caller tenant's surveys, newest first
func (s *SurveyService) List(ctx context.Context, caller *model.Caller) ([]*model.MicroSurvey, error) {
	if caller == nil {
		return nil, authorizationError(ReasonUnauthorized, "no caller identity")
	}
	surveys, err := s.surveyRepo.ListByTenant(ctx, caller.TenantID)
	if err != nil {
		return nil, storeUnavailable(err)
	}
	return surveys, nil
}

// Transition moves a survey to a new status with compare-and-set. Entering completed freezes
// the aggregate; archiving or cancelling disconnects live dashboards.
func (s *SurveyService) Transition(ctx context.Context, caller *model.Caller, id string, to model.SurveyStatus) (*model.MicroSurvey, error) {
	if !to.Valid() {
		return nil, validationError(ReasonInvalidTransition, "unknown status %q", to)
	}
	if _, err := s.GetForTenant(ctx, caller, id); err != nil {
		return nil, err
	}
	// Read through to the store: the cached copy may trail a concurrent transition
	survey, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	from := survey.Status
	if !from.CanTransitionTo(to) {
		return nil, conflictError(ReasonInvalidTransition, "cannot move survey from %s to %s", from, to)
	}

	now := s.now()
	ok, err := s.surveyRepo.UpdateStatus(ctx, id, from, to, now)
	if err != nil {
		return nil, storeUnavailable(err)
	}
	if !ok {
		return nil, conflictError(ReasonStatusConflict, "survey %s changed status concurrently", id)
	}
	s.invalidate(ctx, id)

	survey.Status = to
	survey.UpdatedAt = now
	s.logger.Info("survey status changed", "survey_id", id, "from", from, "to", to, "by", caller.UserID)

	if to == model.SurveyCompleted && s.reports != nil {
		if _, err := s.reports.FreezeFinal(ctx, survey); err != nil {
			// GetReport freezes lazily when this fails
			s.logger.Error("freeze final snapshot failed", "survey_id", id, "error", err)
		}
	}
	if s.broadcaster != nil {
		s.broadcaster.BroadcastToSurvey(id, MsgStatusChange, map[string]interface{}{
			"surveyId": id,
			"status":   to,
		})
		if to == model.SurveyArchived || to == model.SurveyCancelled {
			s.broadcaster.DisconnectSurvey(id)
		}
	}
	return survey, nil
}

// promoteIfDue activates a scheduled survey once its window has started
func (s *SurveyService) promoteIfDue(ctx context.Context, survey *model.MicroSurvey, now time.Time) (*model.MicroSurvey, error) {
	if survey.Status != model.SurveyScheduled || now.Before(survey.Window.Start) {
		return survey, nil
	}
	ok, err := s.surveyRepo.UpdateStatus(ctx, survey.ID, model.SurveyScheduled, model.SurveyActive, now)
	if err != nil {
		return nil, storeUnavailable(err)
	}
	s.invalidate(ctx, survey.ID)
	if !ok {
		// Someone else moved it; use whatever it is now
		return s.load(ctx, survey.ID)
	}
	s.logger.Info("scheduled survey activated", "survey_id", survey.ID)
	promoted := *survey
	promoted.Status = model.SurveyActive
	promoted.UpdatedAt = now
	return &promoted, nil
}

func (s *SurveyService) invalidate(ctx context.Context, id string) {
	if s.surveyCache == nil {
		return
	}
	if err := s.surveyCache.Delete(ctx, id); err != nil {
		s.logger.Warn("survey cache invalidation failed", "survey_id", id, "error", err)
	}
}
