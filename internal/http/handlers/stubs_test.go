package handlers

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/tbourn/go-feedback-bot/internal/domain"
	"github.com/tbourn/go-feedback-bot/internal/repo"
	"github.com/tbourn/go-feedback-bot/internal/services"
)

// ---- conversation ----

type stubConv struct {
	mu    sync.Mutex
	calls []string
	fn    func(ctx context.Context, identifier, text string) (services.Reply, error)
}

func (s *stubConv) HandleInboundText(ctx context.Context, identifier, text string) (services.Reply, error) {
	s.mu.Lock()
	s.calls = append(s.calls, identifier+":"+text)
	s.mu.Unlock()
	if s.fn != nil {
		return s.fn(ctx, identifier, text)
	}
	return services.Reply{Text: "echo " + text}, nil
}

func (s *stubConv) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

// ---- admin ----

type stubAdmin struct {
	list     func(ctx context.Context, q services.FeedbackQuery) (*services.FeedbackPage, error)
	critical func(ctx context.Context, page, size int) (*services.FeedbackPage, error)
	search   func(ctx context.Context, q services.SearchQuery) ([]services.SearchHit, error)
	stats    func(ctx context.Context, q services.StatsQuery) (*services.Statistics, error)
	resolve  func(ctx context.Context, id string) (*domain.FeedbackItem, error)
	branches func(ctx context.Context) ([]string, error)
	regs     func(ctx context.Context, f repo.IdentityFilter) (map[domain.State]int, error)
}

func (s stubAdmin) ListFeedback(ctx context.Context, q services.FeedbackQuery) (*services.FeedbackPage, error) {
	return s.list(ctx, q)
}

func (s stubAdmin) ListCritical(ctx context.Context, page, size int) (*services.FeedbackPage, error) {
	return s.critical(ctx, page, size)
}

func (s stubAdmin) SearchFeedback(ctx context.Context, q services.SearchQuery) ([]services.SearchHit, error) {
	return s.search(ctx, q)
}

func (s stubAdmin) Statistics(ctx context.Context, q services.StatsQuery) (*services.Statistics, error) {
	return s.stats(ctx, q)
}

func (s stubAdmin) Resolve(ctx context.Context, id string) (*domain.FeedbackItem, error) {
	return s.resolve(ctx, id)
}

func (s stubAdmin) Branches(ctx context.Context) ([]string, error) { return s.branches(ctx) }

func (s stubAdmin) RegistrationSummary(ctx context.Context, f repo.IdentityFilter) (map[domain.State]int, error) {
	return s.regs(ctx, f)
}

// ---- receipts ----

type memReceipts struct {
	mu        sync.Mutex
	recs      map[string]*domain.InboundReceipt
	creates   int
	createErr error
}

func newMemReceipts() *memReceipts {
	return &memReceipts{recs: map[string]*domain.InboundReceipt{}}
}

func (m *memReceipts) Get(_ context.Context, identityID, key string, now time.Time) (*domain.InboundReceipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recs[identityID+"|"+key]
	if !ok || rec.Expired(now) {
		return nil, repo.ErrNotFound
	}
	return rec, nil
}

func (m *memReceipts) Create(_ context.Context, identityID, key, text string, options []string, status int, ttl time.Duration) (*domain.InboundReceipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creates++
	if m.createErr != nil {
		return nil, m.createErr
	}
	k := identityID + "|" + key
	if _, ok := m.recs[k]; ok {
		return nil, repo.ErrDuplicate
	}
	rec := &domain.InboundReceipt{IdentityID: identityID, Key: key, ReplyText: text, Status: status, ExpiresAt: time.Now().Add(ttl)}
	if len(options) > 0 {
		rec.Options = strings.Join(options, "\n")
	}
	m.recs[k] = rec
	return rec, nil
}

func (m *memReceipts) put(identityID, key, text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs[identityID+"|"+key] = &domain.InboundReceipt{
		IdentityID: identityID, Key: key, ReplyText: text, Status: 200, ExpiresAt: time.Now().Add(time.Hour),
	}
}

func (m *memReceipts) lookup(ctx context.Context, scope, key string, now time.Time) (bool, error) {
	rec, err := m.Get(ctx, scope, key, now)
	return rec != nil, err
}
