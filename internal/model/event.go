package model

// EventKind identifies the contribution an event makes to the aggregate
type EventKind string

const (
	EventOption    EventKind = "option"    // one vote for a single-choice option
	EventSentiment EventKind = "sentiment" // one sentiment sample
	EventText      EventKind = "text"      // tokens for the word cloud plus one sentiment sample
)

// AggregationEvent is an atomic contribution extracted from one answer
type AggregationEvent struct {
	Kind       EventKind `json:"kind"`
	QuestionID string    `json:"questionId,omitempty"`
	OptionKey  string    `json:"optionKey,omitempty"`
	Tokens     []string  `json:"tokens,omitempty"`
	Score      float64   `json:"score"`
}

// OptionEvent counts one vote for optionKey of questionID
func OptionEvent(questionID, optionKey string) AggregationEvent {
	return AggregationEvent{Kind: EventOption, QuestionID: questionID, OptionKey: optionKey}
}

// SentimentEvent adds one sentiment sample
func SentimentEvent(score float64) AggregationEvent {
	return AggregationEvent{Kind: EventSentiment, Score: score}
}

// TextEvent counts each token once and adds one sentiment sample with score
func TextEvent(tokens []string, score float64) AggregationEvent {
	return AggregationEvent{Kind: EventText, Tokens: tokens, Score: score}
}
