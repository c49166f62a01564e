// Package handlers wires HTTP endpoints to the application services.
//
// Endpoints:
//   - POST /inbound                        (one chat event, JSON transport)
//   - GET  /ws                             (websocket chat transport)
//   - GET  /admin/feedback                 (filtered, paginated listing)
//   - GET  /admin/feedback/critical        (critical queue)
//   - POST /admin/feedback/{id}/resolve    (mark resolved)
//   - GET  /admin/statistics               (aggregates over a window)
//   - GET  /admin/branches                 (known branch labels)
//   - GET  /admin/registrations            (identity counts per state)
//
// Handlers are transport-thin: they validate input, call application services,
// and translate results into HTTP responses.
package handlers

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/tbourn/go-feedback-bot/internal/domain"
	"github.com/tbourn/go-feedback-bot/internal/repo"
	"github.com/tbourn/go-feedback-bot/internal/services"
	"github.com/tbourn/go-feedback-bot/internal/utils"
)

//
// Service contracts (context-aware)
//

// ConversationService processes inbound chat events.
//
// Implementations must serialize events per identifier and honor the
// provided context for cancellation and timeouts.
type ConversationService interface {
	// HandleInboundText runs one event for identifier and returns the reply.
	HandleInboundText(ctx context.Context, identifier, text string) (services.Reply, error)
}

// AdminService defines the management read side.
type AdminService interface {
	ListFeedback(ctx context.Context, q services.FeedbackQuery) (*services.FeedbackPage, error)
	ListCritical(ctx context.Context, page, pageSize int) (*services.FeedbackPage, error)
	SearchFeedback(ctx context.Context, q services.SearchQuery) ([]services.SearchHit, error)
	Statistics(ctx context.Context, q services.StatsQuery) (*services.Statistics, error)
	Resolve(ctx context.Context, id string) (*domain.FeedbackItem, error)
	Branches(ctx context.Context) ([]string, error)
	RegistrationSummary(ctx context.Context, f repo.IdentityFilter) (map[domain.State]int, error)
}

// ReceiptStore persists the replies of inbound events that carried an
// Idempotency-Key. Get returns repo.ErrNotFound when no live receipt exists;
// Create returns repo.ErrDuplicate when one already does.
type ReceiptStore interface {
	Get(ctx context.Context, identityID, key string, now time.Time) (*domain.InboundReceipt, error)
	Create(ctx context.Context, identityID, key, text string, options []string, status int, ttl time.Duration) (*domain.InboundReceipt, error)
}

//
// Handler wiring
//

// Options tunes the transports served by Handlers.
type Options struct {
	// ReceiptTTL is how long an Idempotency-Key replays its reply. Defaults to 24h.
	ReceiptTTL time.Duration
	// AllowedOrigins restricts websocket upgrades by Origin. Empty allows any.
	AllowedOrigins []string
}

// Handlers groups the HTTP endpoints. It depends on abstract service
// interfaces to keep transport concerns separate from business logic.
// Any service may be nil when its routes are not mounted.
type Handlers struct {
	conv     ConversationService
	admin    AdminService
	receipts ReceiptStore

	receiptTTL time.Duration
	upgrader   websocket.Upgrader
	now        func() time.Time
}

// New constructs a Handlers instance bound to the given services.
func New(conv ConversationService, admin AdminService, receipts ReceiptStore, opts Options) *Handlers {
	ttl := opts.ReceiptTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Handlers{
		conv:       conv,
		admin:      admin,
		receipts:   receipts,
		receiptTTL: ttl,
		upgrader:   newUpgrader(opts.AllowedOrigins),
		now:        time.Now,
	}
}

//
// DTOs
//

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

//
// Helpers
//

// clampPagination parses and bounds page and page_size query params to sane
// defaults and limits, returning (page, pageSize).
func clampPagination(c *gin.Context) (page, pageSize int) {
	page = utils.AtoiDefault(c.Query("page"), 1)
	if page < 1 {
		page = 1
	}
	pageSize = utils.AtoiDefault(c.Query("page_size"), services.DefaultPageSize)
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > services.MaxPageSize {
		pageSize = services.MaxPageSize
	}
	return
}

func newPagination(p *services.FeedbackPage) Pagination {
	return Pagination{
		Page:       p.Page,
		PageSize:   p.PageSize,
		Total:      p.Total,
		TotalPages: p.TotalPages,
		HasNext:    p.Page < p.TotalPages,
	}
}
