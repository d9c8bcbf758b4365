// Package sentiment classifies comment text as Positive, Neutral or Negative.
package sentiment

import (
	"context"
	"errors"
	"math"
	"strings"
)

type Category string

const (
	Positive Category = "Positive"
	Neutral  Category = "Neutral"
	Negative Category = "Negative"
)

// DefaultConfidence is reported when nothing better is known.
const DefaultConfidence = 0.5

var ErrUnavailable = errors.New("sentiment analyzer unavailable")

type Result struct {
	Category   Category `json:"sentiment_category"`
	Confidence float64  `json:"sentiment_confidence"`
}

// Analyzer classifies one piece of text.
type Analyzer interface {
	Analyze(ctx context.Context, text string) (Result, error)
}

// Normalize folds a model-provided label and score into a valid Result.
// Unknown labels become Neutral; a zero or non-finite score becomes
// DefaultConfidence; everything else is clamped to [0, 1].
func Normalize(label string, confidence float64) Result {
	var category Category
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "positive":
		category = Positive
	case "negative":
		category = Negative
	default:
		category = Neutral
	}

	switch {
	case confidence == 0 || math.IsNaN(confidence) || math.IsInf(confidence, 0):
		confidence = DefaultConfidence
	case confidence < 0:
		confidence = 0
	case confidence > 1:
		confidence = 1
	}
	return Result{Category: category, Confidence: confidence}
}

var (
	positiveWords = []string{"good", "great", "excellent", "love"}
	negativeWords = []string{"bad", "terrible", "hate", "awful"}
)

// Keywords is the substring heuristic used when no model answer can be parsed.
func Keywords(text string) Result {
	lower := strings.ToLower(text)
	if containsAny(lower, positiveWords) {
		return Result{Category: Positive, Confidence: 0.7}
	}
	if containsAny(lower, negativeWords) {
		return Result{Category: Negative, Confidence: 0.7}
	}
	return Result{Category: Neutral, Confidence: DefaultConfidence}
}

func containsAny(text string, words []string) bool {
	for _, w := range words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}

// KeywordAnalyzer runs only the keyword heuristic. It is used when no model
// endpoint is configured.
type KeywordAnalyzer struct{}

func (KeywordAnalyzer) Analyze(_ context.Context, text string) (Result, error) {
	return Keywords(text), nil
}
