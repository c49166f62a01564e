package classify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/tbourn/go-feedback-bot/internal/domain"
)

// rawVerdict is the loosest shape accepted from an analyzer.
type rawVerdict struct {
	Sentiment   string          `json:"sentiment"`
	Criticality json.RawMessage `json:"criticality"`
	Solution    *string         `json:"solution"`
	Resolution  *string         `json:"resolution"`
}

// ParseVerdict extracts a verdict from free-form analyzer output.
//
// The JSON object between the first '{' and the last '}' is decoded, which
// tolerates code fences and chatter around it. Sentiment is matched without
// regard to case; criticality may be a number or a numeric string and is
// rounded, then clamped into [1,5]; the resolution comes from "solution" or,
// failing that, "resolution". Any missing or unusable field yields
// ErrMalformed.
func ParseVerdict(raw string) (domain.Verdict, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return domain.Verdict{}, fmt.Errorf("%w: no JSON object", ErrMalformed)
	}

	var rv rawVerdict
	dec := json.NewDecoder(strings.NewReader(raw[start : end+1]))
	if err := dec.Decode(&rv); err != nil {
		return domain.Verdict{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	sentiment, ok := domain.ParseSentiment(rv.Sentiment)
	if !ok {
		return domain.Verdict{}, fmt.Errorf("%w: sentiment %q", ErrMalformed, rv.Sentiment)
	}

	crit, err := parseCriticality(rv.Criticality)
	if err != nil {
		return domain.Verdict{}, err
	}

	var resolution string
	switch {
	case rv.Solution != nil && strings.TrimSpace(*rv.Solution) != "":
		resolution = strings.TrimSpace(*rv.Solution)
	case rv.Resolution != nil && strings.TrimSpace(*rv.Resolution) != "":
		resolution = strings.TrimSpace(*rv.Resolution)
	default:
		return domain.Verdict{}, fmt.Errorf("%w: empty solution", ErrMalformed)
	}

	return domain.Verdict{
		Sentiment:   sentiment,
		Criticality: crit,
		Resolution:  resolution,
	}, nil
}

func parseCriticality(raw json.RawMessage) (int, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, fmt.Errorf("%w: missing criticality", ErrMalformed)
	}

	var f float64
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, fmt.Errorf("%w: criticality: %v", ErrMalformed, err)
		}
		// Accept "4" and "4/5".
		s = strings.TrimSpace(s)
		if i := strings.IndexByte(s, '/'); i > 0 {
			s = strings.TrimSpace(s[:i])
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: criticality %q", ErrMalformed, s)
		}
		f = v
	} else if err := json.Unmarshal(raw, &f); err != nil {
		return 0, fmt.Errorf("%w: criticality: %v", ErrMalformed, err)
	}

	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: criticality not finite", ErrMalformed)
	}
	f = math.Max(domain.MinCriticality, math.Min(domain.MaxCriticality, math.Round(f)))
	return domain.ClampCriticality(int(f)), nil
}
