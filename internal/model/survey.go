package model

import "time"

// SurveyStatus is the lifecycle state of a micro-survey
type SurveyStatus string

const (
	SurveyDraft     SurveyStatus = "draft"
	SurveyScheduled SurveyStatus = "scheduled"
	SurveyActive    SurveyStatus = "active"
	SurveyPaused    SurveyStatus = "paused"
	SurveyCompleted SurveyStatus = "completed"
	SurveyArchived  SurveyStatus = "archived"
	SurveyCancelled SurveyStatus = "cancelled"
)

// surveyTransitions lists the allowed next states. Only active <-> paused goes backwards.
var surveyTransitions = map[SurveyStatus][]SurveyStatus{
	SurveyDraft:     {SurveyScheduled, SurveyActive, SurveyCancelled},
	SurveyScheduled: {SurveyActive, SurveyCancelled},
	SurveyActive:    {SurveyPaused, SurveyCompleted, SurveyCancelled},
	SurveyPaused:    {SurveyActive, SurveyCompleted, SurveyCancelled},
	SurveyCompleted: {SurveyArchived},
	SurveyCancelled: {SurveyArchived},
}

// Valid reports whether s is a known status
func (s SurveyStatus) Valid() bool {
	switch s {
	case SurveyDraft, SurveyScheduled, SurveyActive, SurveyPaused,
		SurveyCompleted, SurveyArchived, SurveyCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether the survey no longer accepts submissions, ever
func (s SurveyStatus) IsTerminal() bool {
	return s == SurveyCompleted || s == SurveyArchived || s == SurveyCancelled
}

// CanTransitionTo reports whether from -> to is an allowed lifecycle move
func (s SurveyStatus) CanTransitionTo(to SurveyStatus) bool {
	for _, next := range surveyTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// SurveyWindow is the half-open interval [Start, Start+Duration) in which submissions are accepted
type SurveyWindow struct {
	Start       time.Time `json:"start" bson:"start" validate:"required"`
	DurationSec int64     `json:"durationSec" bson:"durationSec" validate:"gt=0"`
}

// Duration returns the window length
func (w SurveyWindow) Duration() time.Duration {
	return time.Duration(w.DurationSec) * time.Second
}

// End returns the first instant outside the window
func (w SurveyWindow) End() time.Time {
	return w.Start.Add(w.Duration())
}

// Contains reports whether t falls inside [Start, End)
func (w SurveyWindow) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End())
}

// MicroSurvey is a short-lived pulse survey. Its live aggregate is held by the aggregate store,
// not embedded in this document.
type MicroSurvey struct {
	ID          string       `json:"id" bson:"_id"`
	TenantID    string       `json:"tenantId" bson:"tenantId"`
	Title       string       `json:"title" bson:"title"`
	Status      SurveyStatus `json:"status" bson:"status"`
	Window      SurveyWindow `json:"window" bson:"window"`
	TargetCount int          `json:"targetCount" bson:"targetCount"`
	Questions   []Question   `json:"questions" bson:"questions"`
	CreatedBy   string       `json:"createdBy" bson:"createdBy"`
	CreatedAt   time.Time    `json:"createdAt" bson:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt" bson:"updatedAt"`
}

// Question returns the question with the given id, or nil
func (s *MicroSurvey) Question(id string) *Question {
	for i := range s.Questions {
		if s.Questions[i].ID == id {
			return &s.Questions[i]
		}
	}
	return nil
}

// AcceptsSubmissionsAt reports whether a submission at t passes the status and window gates
func (s *MicroSurvey) AcceptsSubmissionsAt(t time.Time) bool {
	return s.Status == SurveyActive && s.Window.Contains(t)
}
