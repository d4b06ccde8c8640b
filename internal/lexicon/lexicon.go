// Package lexicon scores free-text tokens against positive and negative word lists.
package lexicon

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Lexicon is an immutable polarity word list. Safe for concurrent use.
type Lexicon struct {
	positive map[string]struct{}
	negative map[string]struct{}
}

// File is the on-disk YAML form of a lexicon
type File struct {
	Positive []string `yaml:"positive"`
	Negative []string `yaml:"negative"`
}

// New builds a lexicon from word lists. Words are case-folded.
func New(positive, negative []string) *Lexicon {
	return &Lexicon{
		positive: toSet(positive),
		negative: toSet(negative),
	}
}

// Default returns the built-in workplace lexicon
func Default() *Lexicon {
	return New(defaultPositive, defaultNegative)
}

// Load reads a YAML lexicon from path. A list left empty in the file falls back to the
// built-in list.
func Load(path string) (*Lexicon, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read lexicon: %w", err)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse lexicon %s: %w", path, err)
	}
	if len(f.Positive) == 0 {
		f.Positive = defaultPositive
	}
	if len(f.Negative) == 0 {
		f.Negative = defaultNegative
	}
	return New(f.Positive, f.Negative), nil
}

// Classify returns (positiveHits - negativeHits) / len(tokens), clamped to [-1, 1].
// Empty input scores 0.
func (l *Lexicon) Classify(tokens []string) float64 {
	if len(tokens) == 0 {
		return 0
	}
	hits := 0
	for _, t := range tokens {
		if _, ok := l.positive[t]; ok {
			hits++
		}
		if _, ok := l.negative[t]; ok {
			hits--
		}
	}
	score := float64(hits) / float64(len(tokens))
	if score > 1 {
		return 1
	}
	if score < -1 {
		return -1
	}
	return score
}

// Size returns the number of positive and negative words
func (l *Lexicon) Size() (positive, negative int) {
	return len(l.positive), len(l.negative)
}

func toSet(words []string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w != "" {
			set[w] = struct{}{}
		}
	}
	return set
}
