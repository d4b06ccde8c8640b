package model

import (
	"sort"
	"time"
)

// EngagementLevel is a coarse, derived classification of participation
type EngagementLevel string

const (
	EngagementLow    EngagementLevel = "low"
	EngagementMedium EngagementLevel = "medium"
	EngagementHigh   EngagementLevel = "high"
)

// Sentiment is a running sum/count pair. The average is derived on read and never stored.
type Sentiment struct {
	SampleCount int64   `json:"sampleCount" bson:"sampleCount"`
	ScoreSum    float64 `json:"scoreSum" bson:"scoreSum"`
}

// Average returns ScoreSum / max(SampleCount, 1)
func (s Sentiment) Average() float64 {
	n := s.SampleCount
	if n < 1 {
		n = 1
	}
	return s.ScoreSum / float64(n)
}

// AggregateState is the live summary of all accepted submissions to one micro-survey
type AggregateState struct {
	SurveyID        string                      `json:"surveyId" bson:"surveyId"`
	ResponseCount   int64                       `json:"responseCount" bson:"responseCount"`
	OptionTally     map[string]map[string]int64 `json:"optionTally" bson:"optionTally"` // questionId -> optionKey -> count
	WordFrequency   map[string]int64            `json:"wordFrequency" bson:"wordFrequency"`
	Sentiment       Sentiment                   `json:"sentiment" bson:"sentiment"`
	EngagementLevel EngagementLevel             `json:"engagementLevel" bson:"engagementLevel"`
	LastUpdated     time.Time                   `json:"lastUpdated" bson:"lastUpdated"`
}

// NewAggregateState returns the empty aggregate created alongside a survey
func NewAggregateState(surveyID string) *AggregateState {
	return &AggregateState{
		SurveyID:        surveyID,
		OptionTally:     make(map[string]map[string]int64),
		WordFrequency:   make(map[string]int64),
		EngagementLevel: EngagementLow,
	}
}

// Clone returns a deep copy safe to hand to readers
func (s *AggregateState) Clone() *AggregateState {
	out := *s
	out.OptionTally = make(map[string]map[string]int64, len(s.OptionTally))
	for q, tally := range s.OptionTally {
		cp := make(map[string]int64, len(tally))
		for k, v := range tally {
			cp[k] = v
		}
		out.OptionTally[q] = cp
	}
	out.WordFrequency = make(map[string]int64, len(s.WordFrequency))
	for w, n := range s.WordFrequency {
		out.WordFrequency[w] = n
	}
	return &out
}

// Apply adds every counter in d. Counters only grow, so applying deltas in any order
// yields the same counts.
func (s *AggregateState) Apply(d *AggregateDelta) {
	if s.OptionTally == nil {
		s.OptionTally = make(map[string]map[string]int64)
	}
	if s.WordFrequency == nil {
		s.WordFrequency = make(map[string]int64)
	}
	for q, tally := range d.Options {
		dst := s.OptionTally[q]
		if dst == nil {
			dst = make(map[string]int64, len(tally))
			s.OptionTally[q] = dst
		}
		for k, n := range tally {
			dst[k] += n
		}
	}
	for w, n := range d.Words {
		s.WordFrequency[w] += n
	}
	s.Sentiment.SampleCount += d.SentimentSamples
	s.Sentiment.ScoreSum += d.SentimentSum
	s.ResponseCount += d.Responses
	if d.At.After(s.LastUpdated) {
		s.LastUpdated = d.At
	}
}

// TopWords returns up to n words ordered by count desc, then alphabetically. n <= 0 returns all.
func (s *AggregateState) TopWords(n int) []WordCount {
	words := make([]WordCount, 0, len(s.WordFrequency))
	for w, c := range s.WordFrequency {
		words = append(words, WordCount{Word: w, Count: c})
	}
	sort.Slice(words, func(i, j int) bool {
		if words[i].Count != words[j].Count {
			return words[i].Count > words[j].Count
		}
		return words[i].Word < words[j].Word
	})
	if n > 0 && len(words) > n {
		words = words[:n]
	}
	return words
}

// AggregateDelta is the folded contribution of one submission
type AggregateDelta struct {
	SubmissionID     string
	Options          map[string]map[string]int64
	Words            map[string]int64
	SentimentSamples int64
	SentimentSum     float64
	Responses        int64
	At               time.Time
}

// NewAggregateDelta returns an empty delta for one submission
func NewAggregateDelta(submissionID string, at time.Time) *AggregateDelta {
	return &AggregateDelta{
		SubmissionID: submissionID,
		Options:      make(map[string]map[string]int64),
		Words:        make(map[string]int64),
		At:           at,
	}
}

// Add folds one event into the delta
func (d *AggregateDelta) Add(e AggregationEvent) {
	switch e.Kind {
	case EventOption:
		tally := d.Options[e.QuestionID]
		if tally == nil {
			tally = make(map[string]int64)
			d.Options[e.QuestionID] = tally
		}
		tally[e.OptionKey]++
	case EventText:
		for _, t := range e.Tokens {
			d.Words[t]++
		}
		d.SentimentSamples++
		d.SentimentSum += e.Score
	case EventSentiment:
		d.SentimentSamples++
		d.SentimentSum += e.Score
	}
}

// WordCount is one entry of the word cloud
type WordCount struct {
	Word  string `json:"word" bson:"word"`
	Count int64  `json:"count" bson:"count"`
}

// SentimentView is the reported sentiment of a live snapshot
type SentimentView struct {
	Average     float64 `json:"average" bson:"average"`
	SampleCount int64   `json:"sampleCount" bson:"sampleCount"`
}

// LiveSnapshot is the dashboard projection of an aggregate
type LiveSnapshot struct {
	SurveyID          string                      `json:"surveyId" bson:"surveyId"`
	Status            SurveyStatus                `json:"status" bson:"status"`
	ResponseCount     int64                       `json:"responseCount" bson:"responseCount"`
	TargetCount       int                         `json:"targetCount" bson:"targetCount"`
	ParticipationRate float64                     `json:"participationRate" bson:"participationRate"`
	OptionTally       map[string]map[string]int64 `json:"optionTally" bson:"optionTally"`
	TopWords          []WordCount                 `json:"topWords" bson:"topWords"`
	Sentiment         SentimentView               `json:"sentiment" bson:"sentiment"`
	EngagementLevel   EngagementLevel             `json:"engagementLevel" bson:"engagementLevel"`
	LastUpdated       time.Time                   `json:"lastUpdated" bson:"lastUpdated"`
}

// FinalSnapshot is the aggregate frozen when a survey completes
type FinalSnapshot struct {
	SurveyID string          `json:"surveyId" bson:"surveyId"`
	TenantID string          `json:"tenantId" bson:"tenantId"`
	FrozenAt time.Time       `json:"frozenAt" bson:"frozenAt"`
	State    *AggregateState `json:"state" bson:"state"`
	Live     *LiveSnapshot   `json:"live" bson:"live"`
}

// AggregateTotals are the counters returned by a merge, enough to classify engagement
// without reading the whole aggregate back.
type AggregateTotals struct {
	ResponseCount int64     `json:"responseCount"`
	Sentiment     Sentiment `json:"sentiment"`
	LastUpdated   time.Time `json:"lastUpdated"`
	Duplicate     bool      `json:"-"` // the submission had already been applied
}
