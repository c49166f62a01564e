package domain

import "strings"

// Sentiment is the emotional tone assigned to a feedback message.
type Sentiment string

const (
	SentimentPositive Sentiment = "POSITIVE"
	SentimentNeutral  Sentiment = "NEUTRAL"
	SentimentNegative Sentiment = "NEGATIVE"
)

// Criticality bounds.
const (
	MinCriticality = 1
	MaxCriticality = 5
)

// DefaultResolution is the resolution text used when no analysis is available.
const DefaultResolution = "Review and address the concern raised by employee."

// ParseSentiment maps s (any case, surrounding space ignored) to a Sentiment.
func ParseSentiment(s string) (Sentiment, bool) {
	switch Sentiment(strings.ToUpper(strings.TrimSpace(s))) {
	case SentimentPositive:
		return SentimentPositive, true
	case SentimentNeutral:
		return SentimentNeutral, true
	case SentimentNegative:
		return SentimentNegative, true
	}
	return "", false
}

// Valid reports whether s is one of the three sentiments.
func (s Sentiment) Valid() bool {
	switch s {
	case SentimentPositive, SentimentNeutral, SentimentNegative:
		return true
	}
	return false
}

// Verdict is the structured output of classification.
type Verdict struct {
	Sentiment   Sentiment `json:"sentiment"`
	Criticality int       `json:"criticality"`
	Resolution  string    `json:"resolution"`
}

// DefaultVerdict is substituted whenever classification fails.
func DefaultVerdict() Verdict {
	return Verdict{
		Sentiment:   SentimentNeutral,
		Criticality: 3,
		Resolution:  DefaultResolution,
	}
}

// Valid reports whether v satisfies the data model constraints.
func (v Verdict) Valid() bool {
	return v.Sentiment.Valid() &&
		v.Criticality >= MinCriticality && v.Criticality <= MaxCriticality &&
		strings.TrimSpace(v.Resolution) != ""
}

// ClampCriticality forces n into [MinCriticality, MaxCriticality].
func ClampCriticality(n int) int {
	if n < MinCriticality {
		return MinCriticality
	}
	if n > MaxCriticality {
		return MaxCriticality
	}
	return n
}
