package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"pulse/internal/model"
	"pulse/internal/repository"
)

// MaxInvitationsPerRequest bounds one issuing call
const MaxInvitationsPerRequest = 1000

// InvitationService issues single-use invitation tokens
type InvitationService struct {
	surveys        *SurveyService
	invitationRepo repository.InvitationRepo
	logger         *slog.Logger
}

// NewInvitationService creates a new invitation service
func NewInvitationService(surveys *SurveyService, invitationRepo repository.InvitationRepo, logger *slog.Logger) *InvitationService {
	if logger == nil {
		logger = slog.Default()
	}
	return &InvitationService{
		surveys:        surveys,
		invitationRepo: invitationRepo,
		logger:         logger,
	}
}

// Issue creates count fresh tokens for a survey that can still receive submissions
func (s *InvitationService) Issue(ctx context.Context, caller *model.Caller, surveyID string, count int) ([]string, error) {
	if count < 1 || count > MaxInvitationsPerRequest {
		return nil, validationError(ReasonInvalidBody, "count must be between 1 and %d", MaxInvitationsPerRequest)
	}
	survey, err := s.surveys.GetForTenant(ctx, caller, surveyID)
	if err != nil {
		return nil, err
	}
	if survey.Status.IsTerminal() {
		return nil, authorizationError(ReasonSurveyNotActive, "survey %s is %s", surveyID, survey.Status)
	}

	now := time.Now().UTC()
	tokens := make([]string, count)
	invitations := make([]*model.Invitation, count)
	for i := range invitations {
		tokens[i] = uuid.NewString()
		invitations[i] = &model.Invitation{
			Token:     tokens[i],
			SurveyID:  survey.ID,
			TenantID:  survey.TenantID,
			CreatedAt: now,
		}
	}
	if err := s.invitationRepo.CreateMany(ctx, invitations); err != nil {
		return nil, storeUnavailable(err)
	}

	s.logger.Info("invitations issued", "survey_id", surveyID, "count", count)
	return tokens, nil
}
