package model

import (
	"encoding/json"
	"time"
)

// AnswerInput is one raw answer as posted by a participant. Value is kept raw until the
// question kind is known: an option index for single_choice, a number for scale, a string
// for free_text.
type AnswerInput struct {
	QuestionID string          `json:"questionId" validate:"required"`
	Value      json.RawMessage `json:"value"`
}

// SubmitRequest is the body of POST /microsurveys/{id}/responses
type SubmitRequest struct {
	Answers         []AnswerInput `json:"answers" validate:"required,min=1,dive"`
	InvitationToken string        `json:"invitationToken,omitempty" validate:"omitempty,max=128"`
}

// Submission is one participant's answer set. It is immutable once accepted and is
// discarded after its events are merged.
type Submission struct {
	ID              string
	SurveyID        string
	TenantID        string
	ParticipantID   string
	InvitationToken string
	Answers         []AnswerInput
	ReceivedAt      time.Time
}

// SubmissionState tracks a submission through the orchestrator
type SubmissionState string

const (
	SubmissionReceived     SubmissionState = "received"
	SubmissionValidated    SubmissionState = "validated"
	SubmissionNormalized   SubmissionState = "normalized"
	SubmissionMerged       SubmissionState = "merged"
	SubmissionAcknowledged SubmissionState = "acknowledged"
	SubmissionRejected     SubmissionState = "rejected"
)

// SubmitResult is returned to the participant after a successful merge
type SubmitResult struct {
	SubmissionID    string          `json:"submissionId"`
	ResponseCount   int64           `json:"responseCount"`
	EngagementLevel EngagementLevel `json:"engagementLevel"`
}
