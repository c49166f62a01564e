// Package search ranks feedback messages against a free-text query.
//
// The index is built once from a slice of feedback items and is read-only
// afterwards, so a single Index may be queried from many goroutines.
// Scoring uses Jaccard similarity between the query token set and each
// message's token set: score = |Q ∩ M| / |Q ∪ M|.
//
// Tokens are case-folded and stripped of diacritics, so "Café" and "cafe"
// match.
package search

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/tbourn/go-feedback-bot/internal/domain"
)

// DefaultK is used when TopK is called with k <= 0.
const DefaultK = 10

// Hit is a ranked feedback item with its similarity score.
type Hit struct {
	Item  domain.FeedbackItem
	Score float64
}

// Index is the query surface used by the admin service.
type Index interface {
	TopK(query string, k int) []Hit
	Len() int
}

// Option configures NewIndex.
type Option func(*config)

type config struct {
	minTokenRunes int
	stopwords     map[string]struct{}
}

func defaultConfig() config {
	return config{minTokenRunes: 2}
}

// WithMinTokenRunes drops tokens shorter than n runes.
func WithMinTokenRunes(n int) Option {
	return func(c *config) {
		if n >= 0 {
			c.minTokenRunes = n
		}
	}
}

// WithStopwords ignores the given words in both messages and queries.
func WithStopwords(words []string) Option {
	return func(c *config) {
		m := make(map[string]struct{}, len(words))
		for _, w := range words {
			w = fold(strings.TrimSpace(w))
			if w != "" {
				m[w] = struct{}{}
			}
		}
		if len(m) > 0 {
			c.stopwords = m
		}
	}
}

type doc struct {
	item   domain.FeedbackItem
	tokens map[string]struct{}
}

type index struct {
	cfg  config
	docs []doc
}

// NewIndex tokenizes the messages of items. Items without usable tokens are
// skipped.
func NewIndex(items []domain.FeedbackItem, opts ...Option) Index {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	docs := make([]doc, 0, len(items))
	for _, it := range items {
		toks := tokenize(it.Message, cfg)
		if len(toks) == 0 {
			continue
		}
		docs = append(docs, doc{item: it, tokens: toks})
	}
	return &index{cfg: cfg, docs: docs}
}

func (i *index) Len() int { return len(i.docs) }

// TopK returns up to k best-matching items. Ties go to the newer item, then
// to the lower id.
func (i *index) TopK(q string, k int) []Hit {
	if len(i.docs) == 0 || strings.TrimSpace(q) == "" {
		return nil
	}
	if k <= 0 {
		k = DefaultK
	}
	qTokens := tokenize(q, i.cfg)
	if len(qTokens) == 0 {
		return nil
	}

	hits := make([]Hit, 0, min(k*4, len(i.docs)))
	for _, d := range i.docs {
		over := overlap(qTokens, d.tokens)
		if over == 0 {
			continue
		}
		union := len(qTokens) + len(d.tokens) - over
		hits = append(hits, Hit{Item: d.item, Score: float64(over) / float64(union)})
	}
	if len(hits) == 0 {
		return nil
	}

	sort.SliceStable(hits, func(a, b int) bool {
		if hits[a].Score != hits[b].Score {
			return hits[a].Score > hits[b].Score
		}
		if !hits[a].Item.CreatedAt.Equal(hits[b].Item.CreatedAt) {
			return hits[a].Item.CreatedAt.After(hits[b].Item.CreatedAt)
		}
		return hits[a].Item.ID < hits[b].Item.ID
	})
	if k < len(hits) {
		hits = hits[:k]
	}
	return hits
}

var wordRE = regexp.MustCompile(`[\p{L}\p{N}]+`)

func tokenize(s string, cfg config) map[string]struct{} {
	words := wordRE.FindAllString(fold(s), -1)
	if len(words) == 0 {
		return nil
	}
	out := make(map[string]struct{}, len(words))
	for _, w := range words {
		if utf8.RuneCountInString(w) < cfg.minTokenRunes {
			continue
		}
		if _, skip := cfg.stopwords[w]; skip {
			continue
		}
		out[w] = struct{}{}
	}
	return out
}

// fold case-folds s and removes combining marks. Casers and transform
// chains keep state, so both are built per call.
func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return cases.Fold().String(out)
}

func overlap(a, b map[string]struct{}) int {
	if len(a) > len(b) {
		a, b = b, a
	}
	n := 0
	for k := range a {
		if _, ok := b[k]; ok {
			n++
		}
	}
	return n
}
