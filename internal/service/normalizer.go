package service

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"pulse/internal/lexicon"
	"pulse/internal/model"
)

// DefaultMaxTextLength is the free-text ceiling when a question declares none
const DefaultMaxTextLength = 4000

// minTokenLength is exclusive: only words longer than this reach the word cloud
const minTokenLength = 3

// ParsedAnswer is an answer that passed validation against its question
type ParsedAnswer struct {
	Question *model.Question
	Option   int     // single_choice
	Value    float64 // scale
	Text     string  // free_text
	Answered bool    // false for null or blank values of optional questions
}

// Normalizer turns validated answers into aggregation events
type Normalizer struct {
	lexicon       *lexicon.Lexicon
	maxTextLength int
}

// NewNormalizer creates a normalizer. maxTextLength <= 0 uses DefaultMaxTextLength.
func NewNormalizer(lex *lexicon.Lexicon, maxTextLength int) *Normalizer {
	if lex == nil {
		lex = lexicon.Default()
	}
	if maxTextLength <= 0 {
		maxTextLength = DefaultMaxTextLength
	}
	return &Normalizer{lexicon: lex, maxTextLength: maxTextLength}
}

// Normalize validates one (question, raw answer) pair and returns its events
func (n *Normalizer) Normalize(q *model.Question, raw json.RawMessage) ([]model.AggregationEvent, error) {
	a, err := n.Parse(q, raw)
	if err != nil {
		return nil, err
	}
	return n.Events(a), nil
}

// Parse checks a raw answer against its question definition
func (n *Normalizer) Parse(q *model.Question, raw json.RawMessage) (ParsedAnswer, error) {
	if q == nil {
		return ParsedAnswer{}, validationError(ReasonUnknownQuestion, "unknown question")
	}
	a := ParsedAnswer{Question: q}

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return n.unanswered(a)
	}

	switch q.Kind {
	case model.QuestionSingleChoice:
		v, err := decodeNumber(trimmed)
		if err != nil {
			return a, validationError(ReasonKindMismatch, "question %s expects an option index", q.ID)
		}
		if v != math.Trunc(v) || v < 0 || v >= float64(len(q.Options)) {
			return a, validationError(ReasonInvalidOption, "question %s has no option %v", q.ID, v)
		}
		a.Option = int(v)

	case model.QuestionScale:
		if err := validateScale(q); err != nil {
			return a, err
		}
		v, err := decodeNumber(trimmed)
		if err != nil {
			return a, validationError(ReasonKindMismatch, "question %s expects a number", q.ID)
		}
		if v < float64(q.Scale.Min) || v > float64(q.Scale.Max) {
			return a, validationError(ReasonOutOfRange, "question %s accepts %d..%d, got %v",
				q.ID, q.Scale.Min, q.Scale.Max, v)
		}
		a.Value = v

	case model.QuestionFreeText:
		var text string
		if err := json.Unmarshal(trimmed, &text); err != nil {
			return a, validationError(ReasonKindMismatch, "question %s expects text", q.ID)
		}
		if strings.TrimSpace(text) == "" {
			return n.unanswered(a)
		}
		limit := n.maxTextLength
		if q.MaxLength > 0 && q.MaxLength < limit {
			limit = q.MaxLength
		}
		if utf8.RuneCountInString(text) > limit {
			return a, validationError(ReasonTextTooLong, "question %s is limited to %d characters", q.ID, limit)
		}
		a.Text = text

	default:
		return a, validationError(ReasonInvalidDefinition, "question %s has unsupported kind %q", q.ID, q.Kind)
	}

	a.Answered = true
	return a, nil
}

func (n *Normalizer) unanswered(a ParsedAnswer) (ParsedAnswer, error) {
	if a.Question.Required {
		return a, validationError(ReasonMissingRequired, "question %s is required", a.Question.ID)
	}
	return a, nil
}

// Events maps a parsed answer to zero or more aggregation events
func (n *Normalizer) Events(a ParsedAnswer) []model.AggregationEvent {
	if !a.Answered {
		return nil
	}
	q := a.Question
	switch q.Kind {
	case model.QuestionSingleChoice:
		return []model.AggregationEvent{model.OptionEvent(q.ID, strconv.Itoa(a.Option))}
	case model.QuestionScale:
		return []model.AggregationEvent{model.SentimentEvent(ScaleScore(a.Value, *q.Scale))}
	case model.QuestionFreeText:
		tokens := Tokenize(a.Text)
		return []model.AggregationEvent{model.TextEvent(tokens, n.lexicon.Classify(tokens))}
	}
	return nil
}

// ScaleScore maps value onto [-1, 1] using the scale's own midpoint and half range
func ScaleScore(value float64, r model.ScaleRange) float64 {
	half := r.HalfRange()
	if half <= 0 {
		return 0
	}
	return (value - r.Midpoint()) / half
}

// Tokenize lower-cases text, strips punctuation and symbols, splits on whitespace and keeps
// words longer than three characters.
func Tokenize(text string) []string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsPunct(r) || unicode.IsSymbol(r) {
			return -1
		}
		return unicode.ToLower(r)
	}, text)

	fields := strings.Fields(cleaned)
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if utf8.RuneCountInString(f) > minTokenLength {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

func validateScale(q *model.Question) error {
	if q.Scale == nil || q.Scale.Min >= q.Scale.Max {
		return validationError(ReasonInvalidScale, "question %s has no valid scale bounds", q.ID)
	}
	return nil
}

func decodeNumber(raw []byte) (float64, error) {
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, err
	}
	return v, nil
}
