package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"pulse/internal/model"
	"pulse/internal/observability"
	"pulse/internal/repository"
)

// Submission outcomes reported to metrics
const (
	outcomeAccepted = "accepted"
	outcomeRejected = "rejected"
	outcomeFailed   = "failed"
)

const (
	releaseTimeout = 3 * time.Second
	publishTimeout = 2 * time.Second
)

// SubmissionService runs one submission from receipt to acknowledgement:
// received -> validated -> normalized -> merged -> acknowledged, or rejected.
type SubmissionService struct {
	surveys        *SurveyService
	invitationRepo repository.InvitationRepo
	normalizer     *Normalizer
	accumulator    *Accumulator
	live           *LiveService
	metrics        *observability.Metrics
	logger         *slog.Logger
	now            func() time.Time
	newID          func() string
}

// NewSubmissionService creates a new submission service
func NewSubmissionService(
	surveys *SurveyService,
	invitationRepo repository.InvitationRepo,
	normalizer *Normalizer,
	accumulator *Accumulator,
	live *LiveService,
	metrics *observability.Metrics,
	logger *slog.Logger,
) *SubmissionService {
	if logger == nil {
		logger = slog.Default()
	}
	return &SubmissionService{
		surveys:        surveys,
		invitationRepo: invitationRepo,
		normalizer:     normalizer,
		accumulator:    accumulator,
		live:           live,
		metrics:        metrics,
		logger:         logger,
		now:            func() time.Time { return time.Now().UTC() },
		newID:          uuid.NewString,
	}
}

// Submit validates one participant's answers and merges them into the survey's aggregate.
// Nothing is merged unless every answer is valid, and the result is returned only after
// every increment of the submission has been applied.
func (s *SubmissionService) Submit(ctx context.Context, caller *model.Caller, surveyID string, req *model.SubmitRequest) (*model.SubmitResult, error) {
	result, err := s.submit(ctx, caller, surveyID, req)
	switch {
	case err == nil:
		s.metrics.ObserveSubmission(outcomeAccepted, "")
	case KindOf(err) == KindStoreUnavailable:
		s.metrics.ObserveSubmission(outcomeFailed, string(ReasonOf(err)))
		s.logger.Error("submission failed", "survey_id", surveyID, "error", err)
	default:
		s.metrics.ObserveSubmission(outcomeRejected, string(ReasonOf(err)))
		s.logger.Debug("submission rejected", "survey_id", surveyID, "reason", ReasonOf(err), "error", err)
	}
	return result, err
}

func (s *SubmissionService) submit(ctx context.Context, caller *model.Caller, surveyID string, req *model.SubmitRequest) (*model.SubmitResult, error) {
	if caller == nil {
		return nil, authorizationError(ReasonUnauthorized, "no caller identity")
	}
	if req == nil || len(req.Answers) == 0 {
		return nil, validationError(ReasonInvalidBody, "submission has no answers")
	}

	// received
	sub := &model.Submission{
		ID:              s.newID(),
		SurveyID:        surveyID,
		TenantID:        caller.TenantID,
		ParticipantID:   caller.UserID,
		InvitationToken: req.InvitationToken,
		Answers:         req.Answers,
		ReceivedAt:      s.now(),
	}

	survey, err := s.surveys.Get(ctx, surveyID)
	if err != nil {
		return nil, err
	}
	if survey.TenantID != caller.TenantID {
		return nil, authorizationError(ReasonWrongTenant, "survey %s belongs to another tenant", surveyID)
	}
	survey, err = s.surveys.promoteIfDue(ctx, survey, sub.ReceivedAt)
	if err != nil {
		return nil, err
	}
	if err := checkOpen(survey, sub.ReceivedAt); err != nil {
		return nil, err
	}

	// validated, normalized
	events, err := s.normalize(survey, sub.Answers)
	if err != nil {
		return nil, err
	}

	if sub.InvitationToken != "" {
		if err := s.consumeInvitation(ctx, sub); err != nil {
			return nil, err
		}
	}

	// merged
	totals, err := s.accumulator.Merge(ctx, surveyID, sub.ID, events, sub.ReceivedAt)
	if err != nil {
		totals, err = s.recoverMerge(ctx, sub, events, err)
		if err != nil {
			return nil, storeUnavailable(err)
		}
	}

	// acknowledged
	if s.live != nil {
		go func(survey *model.MicroSurvey) {
			pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
			defer cancel()
			s.live.Publish(pubCtx, survey)
		}(survey)
	}
	return &model.SubmitResult{
		SubmissionID:    sub.ID,
		ResponseCount:   totals.ResponseCount,
		EngagementLevel: ClassifyEngagement(totals.ResponseCount, survey.TargetCount, totals.Sentiment),
	}, nil
}

// checkOpen applies the window gate before the status gate, so a survey whose window has
// closed rejects submissions whatever its status says
func checkOpen(survey *model.MicroSurvey, at time.Time) error {
	if survey.AcceptsSubmissionsAt(at) {
		return nil
	}
	if !survey.Window.Contains(at) {
		return authorizationError(ReasonWindowClosed, "survey %s accepts responses from %s to %s",
			survey.ID, survey.Window.Start.Format(time.RFC3339), survey.Window.End().Format(time.RFC3339))
	}
	return authorizationError(ReasonSurveyNotActive, "survey %s is %s", survey.ID, survey.Status)
}

// normalize validates every answer before producing any event
func (s *SubmissionService) normalize(survey *model.MicroSurvey, answers []model.AnswerInput) ([]model.AggregationEvent, error) {
	parsed := make([]ParsedAnswer, 0, len(answers))
	answered := make(map[string]struct{}, len(answers))
	for _, in := range answers {
		if _, dup := answered[in.QuestionID]; dup {
			return nil, validationError(ReasonDuplicateAnswer, "question %s answered twice", in.QuestionID)
		}
		answered[in.QuestionID] = struct{}{}

		q := survey.Question(in.QuestionID)
		if q == nil {
			return nil, validationError(ReasonUnknownQuestion, "survey %s has no question %s", survey.ID, in.QuestionID)
		}
		a, err := s.normalizer.Parse(q, in.Value)
		if err != nil {
			return nil, err
		}
		parsed = append(parsed, a)
	}
	for i := range survey.Questions {
		q := &survey.Questions[i]
		if _, ok := answered[q.ID]; q.Required && !ok {
			return nil, validationError(ReasonMissingRequired, "question %s is required", q.ID)
		}
	}

	var events []model.AggregationEvent
	for _, a := range parsed {
		events = append(events, s.normalizer.Events(a)...)
	}
	return events, nil
}

func (s *SubmissionService) consumeInvitation(ctx context.Context, sub *model.Submission) error {
	_, err := s.invitationRepo.Consume(ctx, sub.InvitationToken, sub.SurveyID, sub.ID, sub.ReceivedAt)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrInvitationNotFound):
		return authorizationError(ReasonInvitationInvalid, "invitation is not valid for survey %s", sub.SurveyID)
	case errors.Is(err, repository.ErrInvitationConsumed):
		return authorizationError(ReasonInvitationConsumed, "invitation has already been used")
	default:
		return storeUnavailable(err)
	}
}

// recoverMerge settles a merge that returned an error. If the delta landed anyway the
// submission is acknowledged with the stored totals. Otherwise the invitation is given back so
// the participant can retry. When the outcome is unknown the invitation stays consumed.
func (s *SubmissionService) recoverMerge(ctx context.Context, sub *model.Submission, events []model.AggregationEvent, mergeErr error) (*model.AggregateTotals, error) {
	relCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()

	applied, err := s.accumulator.Applied(relCtx, sub.SurveyID, sub.ID)
	if err != nil {
		s.logger.Warn("cannot tell whether submission was merged, keeping invitation consumed",
			"survey_id", sub.SurveyID, "submission_id", sub.ID, "error", err)
		return nil, mergeErr
	}
	if applied {
		// Replaying is a no-op for an applied submission and returns the current totals
		return s.accumulator.Merge(relCtx, sub.SurveyID, sub.ID, events, sub.ReceivedAt)
	}
	if sub.InvitationToken != "" {
		if err := s.invitationRepo.Release(relCtx, sub.InvitationToken, sub.ID); err != nil {
			s.logger.Error("invitation release failed", "survey_id", sub.SurveyID, "submission_id", sub.ID, "error", err)
		}
	}
	return nil, mergeErr
}
