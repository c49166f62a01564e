// Package classify turns free-text feedback into a domain.Verdict using an
// external text-analysis service.
//
// Every backend returns either a verdict that satisfies the data model or an
// error matching ErrUnavailable (transport, timeout, non-2xx) or ErrMalformed
// (the service answered but the answer could not be coerced). Callers decide
// what to substitute on failure.
package classify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/tbourn/go-feedback-bot/internal/domain"
)

var (
	// ErrUnavailable reports that the analyzer could not be reached or
	// refused the request.
	ErrUnavailable = errors.New("classify: analyzer unavailable")
	// ErrMalformed reports that the analyzer answered with something that
	// does not parse into a verdict.
	ErrMalformed = errors.New("classify: malformed analyzer response")
)

// DefaultMaxRunes bounds the message text sent to the analyzer.
const DefaultMaxRunes = 4000

// Classifier analyzes one feedback message.
type Classifier interface {
	Classify(ctx context.Context, text string) (domain.Verdict, error)
}

// Func adapts a plain function to Classifier.
type Func func(ctx context.Context, text string) (domain.Verdict, error)

// Classify calls f.
func (f Func) Classify(ctx context.Context, text string) (domain.Verdict, error) { return f(ctx, text) }

// Disabled is used when no analyzer is configured. It always fails with
// ErrUnavailable so the caller applies its default verdict.
type Disabled struct{}

// Classify implements Classifier.
func (Disabled) Classify(context.Context, string) (domain.Verdict, error) {
	return domain.Verdict{}, fmt.Errorf("%w: no provider configured", ErrUnavailable)
}

const promptTemplate = "Analyze this employee feedback from an auto service company. " +
	"Provide response in JSON format with fields: " +
	"sentiment (POSITIVE/NEUTRAL/NEGATIVE), " +
	"criticality (1-5 scale where 1=low, 5=critical), " +
	"solution (suggested solution in English).\n\n" +
	"Feedback: %s\n\n" +
	"Response (JSON only):"

// BuildPrompt clips text to maxRunes (DefaultMaxRunes when <= 0) and embeds
// it as a JSON string literal, so quotes and control characters in user input
// cannot change the shape of the prompt.
func BuildPrompt(text string, maxRunes int) string {
	quoted, _ := json.Marshal(Clip(text, maxRunes))
	return fmt.Sprintf(promptTemplate, quoted)
}

// Clip returns at most maxRunes runes of s (DefaultMaxRunes when <= 0),
// never splitting a multi-byte character.
func Clip(s string, maxRunes int) string {
	if maxRunes <= 0 {
		maxRunes = DefaultMaxRunes
	}
	if utf8.RuneCountInString(s) <= maxRunes {
		return s
	}
	n := 0
	for i := range s {
		if n == maxRunes {
			return s[:i]
		}
		n++
	}
	return s
}
