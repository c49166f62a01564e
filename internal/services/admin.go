// Package services – AdminService
//
// This file implements AdminService, the read side used by management:
// filtered feedback listings, similarity search, the critical queue,
// statistics over a time window, resolving items and listing known branches.
// It only reads the stores written by the conversation and pipeline, plus
// the resolved_at mark.
package services

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-feedback-bot/internal/domain"
	"github.com/tbourn/go-feedback-bot/internal/repo"
	"github.com/tbourn/go-feedback-bot/internal/search"

	// OpenTelemetry
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Pagination bounds shared by admin listings.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Search bounds. Only the most recent SearchWindow items matching the filter
// are ranked.
const (
	DefaultSearchLimit = 10
	MaxSearchLimit     = 50
	SearchWindow       = 1000
)

// SearchQuery ranks feedback by similarity to Text.
type SearchQuery struct {
	Text   string
	Limit  int
	Branch string
	Role   domain.Role
}

// SearchHit is one ranked item.
type SearchHit struct {
	Item  domain.FeedbackItem
	Score float64
}

// FeedbackQuery selects a page of feedback.
type FeedbackQuery struct {
	Page     int // 1-based
	PageSize int
	SortBy   string // "created_at" (default) or "criticality"
	SortAsc  bool   // default newest / highest first

	Branch         string
	Role           domain.Role
	Sentiment      domain.Sentiment
	MinCriticality int
}

// FeedbackPage is one page of feedback items with pagination metadata.
type FeedbackPage struct {
	Items      []domain.FeedbackItem
	Page       int
	PageSize   int
	Total      int64
	TotalPages int
}

// StatsQuery selects the window and dimensions for Statistics.
type StatsQuery struct {
	Branch string
	Role   domain.Role
	From   *time.Time
	To     *time.Time
}

// Statistics summarizes feedback for a window.
type Statistics struct {
	From                    time.Time
	To                      time.Time
	Total                   int64
	SentimentDistribution   map[domain.Sentiment]int64
	CriticalityDistribution map[int]int64
	BranchDistribution      map[string]int64      // nil when filtered by branch
	RoleDistribution        map[domain.Role]int64 // nil when filtered by role
	CriticalCount           int64
	AverageCriticality      float64 // rounded to 2 decimals
}

// AdminService exposes management queries over the feedback store.
type AdminService struct {
	DB *gorm.DB

	// CriticalThreshold defaults to DefaultEscalationThreshold.
	CriticalThreshold int
	// Now defaults to time.Now.
	Now func() time.Time
}

// ListFeedback returns a filtered, sorted page of feedback.
func (s *AdminService) ListFeedback(ctx context.Context, q FeedbackQuery) (*FeedbackPage, error) {
	tr := otel.Tracer("services/AdminService")
	ctx, span := tr.Start(ctx, "ListFeedback",
		trace.WithAttributes(
			attribute.Int("page", q.Page),
			attribute.Int("page_size", q.PageSize),
			attribute.String("sort_by", q.SortBy),
		),
	)
	defer span.End()

	if q.MinCriticality < 0 || q.MinCriticality > domain.MaxCriticality {
		return nil, ErrInvalidQuery
	}
	if q.Sentiment != "" && !q.Sentiment.Valid() {
		return nil, ErrInvalidQuery
	}
	sortBy := strings.ToLower(strings.TrimSpace(q.SortBy))
	switch sortBy {
	case "", "created_at", "date":
		sortBy = "created_at"
	case "criticality":
	default:
		return nil, ErrInvalidQuery
	}

	page, size := normalizePage(q.Page, q.PageSize)
	f := repo.FeedbackFilter{
		Branch:         q.Branch,
		Role:           q.Role,
		Sentiment:      q.Sentiment,
		MinCriticality: q.MinCriticality,
	}
	total, err := repo.CountFeedback(ctx, s.DB, f)
	if err != nil {
		return nil, err
	}
	items, err := repo.ListFeedbackPage(ctx, s.DB, f, repo.FeedbackSort{Field: sortBy, Desc: !q.SortAsc}, (page-1)*size, size)
	if err != nil {
		return nil, err
	}
	return &FeedbackPage{
		Items:      items,
		Page:       page,
		PageSize:   size,
		Total:      total,
		TotalPages: totalPages(total, size),
	}, nil
}

// ListCritical returns items at or above the critical threshold, newest first.
func (s *AdminService) ListCritical(ctx context.Context, page, pageSize int) (*FeedbackPage, error) {
	return s.ListFeedback(ctx, FeedbackQuery{
		Page:           page,
		PageSize:       pageSize,
		MinCriticality: s.threshold(),
	})
}

// Statistics aggregates feedback in [From, To). Without From the window
// starts one month before To; without To it ends now.
func (s *AdminService) Statistics(ctx context.Context, q StatsQuery) (*Statistics, error) {
	tr := otel.Tracer("services/AdminService")
	ctx, span := tr.Start(ctx, "Statistics",
		trace.WithAttributes(
			attribute.String("branch", q.Branch),
			attribute.String("role", string(q.Role)),
		),
	)
	defer span.End()

	to := s.now().UTC()
	if q.To != nil {
		to = q.To.UTC()
	}
	from := to.AddDate(0, -1, 0)
	if q.From != nil {
		from = q.From.UTC()
	}
	if !from.Before(to) {
		return nil, ErrInvalidQuery
	}

	f := repo.FeedbackFilter{Branch: q.Branch, Role: q.Role, From: &from, To: &to}
	agg, err := repo.FeedbackStats(ctx, s.DB, f, repo.AggregateOptions{
		GroupByBranch:     strings.TrimSpace(q.Branch) == "",
		GroupByRole:       q.Role == "",
		CriticalThreshold: s.threshold(),
	})
	if err != nil {
		return nil, err
	}
	return &Statistics{
		From:                    from,
		To:                      to,
		Total:                   agg.Total,
		SentimentDistribution:   agg.BySentiment,
		CriticalityDistribution: agg.ByCriticality,
		BranchDistribution:      agg.ByBranch,
		RoleDistribution:        agg.ByRole,
		CriticalCount:           agg.Critical,
		AverageCriticality:      math.Round(agg.AverageCriticality()*100) / 100,
	}, nil
}

// Resolve marks feedback id as resolved now.
func (s *AdminService) Resolve(ctx context.Context, id string) (*domain.FeedbackItem, error) {
	tr := otel.Tracer("services/AdminService")
	ctx, span := tr.Start(ctx, "Resolve",
		trace.WithAttributes(attribute.String("feedback.id", id)),
	)
	defer span.End()

	if err := repo.MarkFeedbackResolved(ctx, s.DB, id, s.now()); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrFeedbackNotFound
		}
		return nil, err
	}
	item, err := repo.GetFeedback(ctx, s.DB, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrFeedbackNotFound
		}
		return nil, err
	}
	return item, nil
}

// SearchFeedback ranks recent feedback by word overlap with q.Text, best
// match first. A blank text is ErrInvalidQuery.
func (s *AdminService) SearchFeedback(ctx context.Context, q SearchQuery) ([]SearchHit, error) {
	tr := otel.Tracer("services/AdminService")
	ctx, span := tr.Start(ctx, "SearchFeedback",
		trace.WithAttributes(
			attribute.Int("limit", q.Limit),
			attribute.String("branch", q.Branch),
		),
	)
	defer span.End()

	if strings.TrimSpace(q.Text) == "" {
		return nil, ErrInvalidQuery
	}
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	if limit > MaxSearchLimit {
		limit = MaxSearchLimit
	}

	f := repo.FeedbackFilter{Branch: q.Branch, Role: q.Role}
	items, err := repo.ListFeedbackPage(ctx, s.DB, f, repo.FeedbackSort{Field: "created_at", Desc: true}, 0, SearchWindow)
	if err != nil {
		return nil, err
	}
	idx := search.NewIndex(items)
	span.SetAttributes(attribute.Int("search.candidates", idx.Len()))

	hits := idx.TopK(q.Text, limit)
	out := make([]SearchHit, 0, len(hits))
	for _, h := range hits {
		out = append(out, SearchHit{Item: h.Item, Score: h.Score})
	}
	return out, nil
}

// Branches lists distinct branch labels of registered identities.
func (s *AdminService) Branches(ctx context.Context) ([]string, error) {
	tr := otel.Tracer("services/AdminService")
	ctx, span := tr.Start(ctx, "Branches")
	defer span.End()
	return repo.ListBranches(ctx, s.DB)
}

// RegistrationSummary counts identities per state, optionally limited to a
// branch or role. Identities themselves are never exposed.
func (s *AdminService) RegistrationSummary(ctx context.Context, f repo.IdentityFilter) (map[domain.State]int, error) {
	tr := otel.Tracer("services/AdminService")
	ctx, span := tr.Start(ctx, "RegistrationSummary")
	defer span.End()

	ids, err := repo.ListIdentities(ctx, s.DB, f)
	if err != nil {
		return nil, err
	}
	out := make(map[domain.State]int, len(domain.States()))
	for _, st := range domain.States() {
		out[st] = 0
	}
	for _, id := range ids {
		out[id.State]++
	}
	return out, nil
}

func (s *AdminService) threshold() int {
	if s.CriticalThreshold > 0 {
		return s.CriticalThreshold
	}
	return DefaultEscalationThreshold
}

func (s *AdminService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func normalizePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	return page, size
}

func totalPages(total int64, size int) int {
	if total == 0 || size <= 0 {
		return 0
	}
	return int((total + int64(size) - 1) / int64(size))
}
