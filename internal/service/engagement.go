package service

import (
	"math"

	"pulse/internal/model"
)

// Engagement thresholds
const (
	HighParticipation      = 0.6
	HighSentimentMagnitude = 0.2
	LowParticipation       = 0.2
)

// Participation returns responseCount / max(targetCount, 1)
func Participation(responseCount int64, targetCount int) float64 {
	target := targetCount
	if target < 1 {
		target = 1
	}
	return float64(responseCount) / float64(target)
}

// ClassifyEngagement derives the engagement level from counters. It is recomputed on every
// merge and read and never stored on its own.
func ClassifyEngagement(responseCount int64, targetCount int, s model.Sentiment) model.EngagementLevel {
	p := Participation(responseCount, targetCount)
	switch {
	case p >= HighParticipation && math.Abs(s.Average()) >= HighSentimentMagnitude:
		return model.EngagementHigh
	case p < LowParticipation:
		return model.EngagementLow
	default:
		return model.EngagementMedium
	}
}

// withEngagement sets the derived level on a state loaded from the store
func withEngagement(state *model.AggregateState, targetCount int) *model.AggregateState {
	state.EngagementLevel = ClassifyEngagement(state.ResponseCount, targetCount, state.Sentiment)
	return state
}
