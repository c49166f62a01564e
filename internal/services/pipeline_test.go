package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-feedback-bot/internal/archive"
	"github.com/tbourn/go-feedback-bot/internal/classify"
	"github.com/tbourn/go-feedback-bot/internal/domain"
	"github.com/tbourn/go-feedback-bot/internal/escalate"
)

// ---------- test helpers ----------

func newSvcDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", uuid.NewString())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	// A single connection serializes writers on the shared in-memory cache.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db.Exec("PRAGMA foreign_keys=ON;")
	if err := db.AutoMigrate(&domain.Identity{}, &domain.FeedbackItem{}, &domain.InboundReceipt{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func quietLog() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

func registered(t *testing.T, db *gorm.DB, id string) domain.Identity {
	t.Helper()
	branch := "Downtown"
	rec := domain.Identity{ID: id, Role: domain.RoleMechanic, Branch: &branch, State: domain.StateRegistered}
	if err := db.Create(&rec).Error; err != nil {
		t.Fatalf("seed identity: %v", err)
	}
	return rec
}

func fixedVerdict(s domain.Sentiment, crit int, res string) classify.Classifier {
	return classify.Func(func(context.Context, string) (domain.Verdict, error) {
		return domain.Verdict{Sentiment: s, Criticality: crit, Resolution: res}, nil
	})
}

type fakeArchiver struct {
	mu    sync.Mutex
	calls []archive.Record
	ref   string
	err   error
}

func (f *fakeArchiver) Append(_ context.Context, rec archive.Record) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, rec)
	return f.ref, f.err
}

func (f *fakeArchiver) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeEscalator struct {
	mu    sync.Mutex
	calls []escalate.Card
	ref   string
	err   error
}

func (f *fakeEscalator) Escalate(_ context.Context, c escalate.Card) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
	return f.ref, f.err
}

func (f *fakeEscalator) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func newPipeline(db *gorm.DB, c classify.Classifier, a archive.Archiver, e escalate.Escalator) *FeedbackPipeline {
	return &FeedbackPipeline{
		DB:         db,
		Classifier: c,
		Archiver:   a,
		Escalator:  e,
		Log:        quietLog(),
		Now:        func() time.Time { return time.Date(2025, 6, 2, 14, 5, 9, 0, time.UTC) },
	}
}

func loadItems(t *testing.T, db *gorm.DB, identityID string) []domain.FeedbackItem {
	t.Helper()
	var out []domain.FeedbackItem
	if err := db.Where("identity_id = ?", identityID).Order("created_at asc").Find(&out).Error; err != nil {
		t.Fatalf("load items: %v", err)
	}
	return out
}

// ---------- steps ----------

func TestPipeline_StepOrderAndPolicies(t *testing.T) {
	p := newPipeline(nil, nil, nil, nil)
	want := []struct {
		name   string
		policy StepPolicy
	}{
		{StepClassify, PolicyFallback},
		{StepPersist, PolicyAbort},
		{StepArchive, PolicyContinue},
		{StepEscalate, PolicyContinue},
		{StepCompose, PolicyAbort},
	}
	steps := p.Steps()
	if len(steps) != len(want) {
		t.Fatalf("got %d steps", len(steps))
	}
	for i, w := range want {
		if steps[i].Name != w.name || steps[i].Policy != w.policy {
			t.Fatalf("step %d = %s/%s; want %s/%s", i, steps[i].Name, steps[i].Policy, w.name, w.policy)
		}
	}
	for _, st := range steps {
		switch st.Name {
		case StepClassify, StepArchive, StepEscalate:
			if st.Timeout <= 0 {
				t.Fatalf("external step %s must be bounded", st.Name)
			}
		}
	}
}

func TestFormatAcknowledgement(t *testing.T) {
	got := FormatAcknowledgement(domain.DefaultVerdict())
	want := "Thank you for your feedback! ✅\n\n" +
		"Analysis:\n" +
		"• Sentiment: neutral\n" +
		"• Priority Level: 3/5\n" +
		"• Suggested Solution: Review and address the concern raised by employee.\n\n" +
		"Your feedback has been recorded anonymously and will be reviewed by management."
	if got != want {
		t.Fatalf("ack mismatch:\n got %q\nwant %q", got, want)
	}
}

// ---------- classify ----------

func TestPipeline_ClassificationFailures_UseDefaultVerdict(t *testing.T) {
	failures := map[string]classify.Classifier{
		"unavailable": classify.Disabled{},
		"malformed": classify.Func(func(context.Context, string) (domain.Verdict, error) {
			return domain.Verdict{}, classify.ErrMalformed
		}),
		"invalid verdict": fixedVerdict("ANGRY", 9, ""),
		"nil classifier":  nil,
	}
	for name, c := range failures {
		t.Run(name, func(t *testing.T) {
			db := newSvcDB(t)
			ident := registered(t, db, "1")
			esc := &fakeEscalator{ref: "card"}
			p := newPipeline(db, c, &fakeArchiver{}, esc)

			sub, err := p.Run(context.Background(), ident, "The lift is broken")
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if sub.Classified || sub.Outcome(StepClassify) != OutcomeFallback {
				t.Fatalf("expected fallback, outcomes=%+v", sub.Outcomes)
			}
			if sub.Reply.Text != FormatAcknowledgement(domain.DefaultVerdict()) {
				t.Fatalf("unexpected reply: %q", sub.Reply.Text)
			}
			items := loadItems(t, db, "1")
			if len(items) != 1 {
				t.Fatalf("expected one item, got %d", len(items))
			}
			it := items[0]
			if it.Sentiment != domain.SentimentNeutral || it.Criticality != 3 || it.Resolution != domain.DefaultResolution {
				t.Fatalf("item does not carry the default verdict: %+v", it)
			}
			if esc.count() != 0 || it.EscalationRef != nil {
				t.Fatalf("default verdict must not escalate")
			}
		})
	}
}

func TestPipeline_ClassifyTimeout_IsBounded(t *testing.T) {
	db := newSvcDB(t)
	ident := registered(t, db, "1")
	slow := classify.Func(func(ctx context.Context, _ string) (domain.Verdict, error) {
		<-ctx.Done()
		return domain.Verdict{}, fmt.Errorf("%w: %v", classify.ErrUnavailable, ctx.Err())
	})
	p := newPipeline(db, slow, &fakeArchiver{}, &fakeEscalator{})
	p.ClassifyTimeout = 30 * time.Millisecond

	start := time.Now()
	sub, err := p.Run(context.Background(), ident, "x")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Fatalf("classification timeout not applied")
	}
	if sub.Outcome(StepClassify) != OutcomeFallback || sub.Verdict != domain.DefaultVerdict() {
		t.Fatalf("expected default verdict after timeout: %+v", sub)
	}
}

// ---------- escalation ----------

func TestPipeline_EscalatesOnlyAtOrAboveThreshold(t *testing.T) {
	for crit := 1; crit <= 5; crit++ {
		for _, escErr := range []error{nil, errors.New("trello down")} {
			name := fmt.Sprintf("crit=%d/err=%v", crit, escErr != nil)
			t.Run(name, func(t *testing.T) {
				db := newSvcDB(t)
				ident := registered(t, db, "1")
				esc := &fakeEscalator{ref: "card-1", err: escErr}
				p := newPipeline(db, fixedVerdict(domain.SentimentNegative, crit, "fix"), &fakeArchiver{}, esc)

				sub, err := p.Run(context.Background(), ident, "x")
				if err != nil {
					t.Fatalf("Run: %v", err)
				}
				want := 0
				if crit >= 4 {
					want = 1
				}
				if esc.count() != want {
					t.Fatalf("escalation attempts = %d; want %d", esc.count(), want)
				}
				if crit < 4 && sub.Outcome(StepEscalate) != OutcomeSkipped {
					t.Fatalf("expected skipped escalate, got %q", sub.Outcome(StepEscalate))
				}
				if sub.Reply.Text != FormatAcknowledgement(domain.Verdict{Sentiment: domain.SentimentNegative, Criticality: crit, Resolution: "fix"}) {
					t.Fatalf("reply depends on escalation: %q", sub.Reply.Text)
				}

				it := loadItems(t, db, "1")[0]
				hasRef := it.EscalationRef != nil && *it.EscalationRef == "card-1"
				if hasRef != (crit >= 4 && escErr == nil) {
					t.Fatalf("escalation ref = %v for crit=%d err=%v", it.EscalationRef, crit, escErr)
				}
			})
		}
	}
}

func TestPipeline_EscalationCardAndRefs(t *testing.T) {
	db := newSvcDB(t)
	ident := registered(t, db, "1")
	arc := &fakeArchiver{ref: "doc@3"}
	esc := &fakeEscalator{ref: "card-9"}
	p := newPipeline(db, fixedVerdict(domain.SentimentNegative, 5, "Stop the line"), arc, esc)

	sub, err := p.Run(context.Background(), ident, "Hydraulic leak")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	card := esc.calls[0]
	if card.RoleLabel != "Mechanic" || card.Branch != "Downtown" || card.Criticality != 5 || card.FeedbackID != sub.Item.ID {
		t.Fatalf("unexpected card: %+v", card)
	}
	if !card.Due().Equal(sub.Item.CreatedAt.Add(72 * time.Hour)) {
		t.Fatalf("due = %v", card.Due())
	}
	if !arc.calls[0].Escalating {
		t.Fatalf("archive record should flag escalation")
	}

	it := loadItems(t, db, "1")[0]
	if it.ArchiveRef == nil || *it.ArchiveRef != "doc@3" || it.EscalationRef == nil || *it.EscalationRef != "card-9" {
		t.Fatalf("refs not attached: %+v", it)
	}
}

func TestPipeline_ArchiveRefNotWrittenWithoutEscalation(t *testing.T) {
	db := newSvcDB(t)
	ident := registered(t, db, "1")
	arc := &fakeArchiver{ref: "doc@3"}
	p := newPipeline(db, fixedVerdict(domain.SentimentPositive, 1, "Keep going"), arc, &fakeEscalator{})

	sub, err := p.Run(context.Background(), ident, "Great team")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sub.ArchiveRef == nil || *sub.ArchiveRef != "doc@3" {
		t.Fatalf("archive ref should be reported on the submission")
	}
	it := loadItems(t, db, "1")[0]
	if it.ArchiveRef != nil {
		t.Fatalf("item must not be rewritten without escalation: %+v", it)
	}
}

// ---------- best-effort failures ----------

func TestPipeline_BestEffortFailures_DoNotChangeReply(t *testing.T) {
	verdict := fixedVerdict(domain.SentimentNegative, 4, "Order parts")

	baselineDB := newSvcDB(t)
	baseIdent := registered(t, baselineDB, "1")
	baseline, err := newPipeline(baselineDB, verdict, &fakeArchiver{ref: "d"}, &fakeEscalator{ref: "c"}).
		Submit(context.Background(), baseIdent, "Parts missing")
	if err != nil {
		t.Fatalf("baseline: %v", err)
	}

	cases := map[string]struct {
		a archive.Archiver
		e escalate.Escalator
	}{
		"archive fails":    {&fakeArchiver{err: errors.New("docs 503")}, &fakeEscalator{ref: "c"}},
		"escalate fails":   {&fakeArchiver{ref: "d"}, &fakeEscalator{err: errors.New("trello 500")}},
		"both fail":        {&fakeArchiver{err: errors.New("x")}, &fakeEscalator{err: errors.New("y")}},
		"both not wired":   {nil, nil},
		"noop backends":    {archive.Noop{}, escalate.Noop{}},
		"empty escalation": {&fakeArchiver{}, &fakeEscalator{ref: "  "}},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			db := newSvcDB(t)
			ident := registered(t, db, "1")
			reply, err := newPipeline(db, verdict, tc.a, tc.e).Submit(context.Background(), ident, "Parts missing")
			if err != nil {
				t.Fatalf("Submit: %v", err)
			}
			if reply.Text != baseline.Text || len(reply.Options) != 0 {
				t.Fatalf("reply changed:\n got %q\nwant %q", reply.Text, baseline.Text)
			}
			if n := len(loadItems(t, db, "1")); n != 1 {
				t.Fatalf("expected the item to be persisted, got %d", n)
			}
		})
	}
}

func TestPipeline_AttachFailure_IsLoggedNotFatal(t *testing.T) {
	db := newSvcDB(t)
	ident := registered(t, db, "1")
	if err := db.Callback().Update().Before("gorm:update").Register("force_err_on_attach", func(tx *gorm.DB) {
		if tx.Statement.Table == "feedback_items" {
			_ = tx.AddError(errors.New("disk full"))
		}
	}); err != nil {
		t.Fatalf("register callback: %v", err)
	}

	esc := &fakeEscalator{ref: "card"}
	sub, err := newPipeline(db, fixedVerdict(domain.SentimentNegative, 5, "x"), &fakeArchiver{}, esc).
		Run(context.Background(), ident, "x")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if esc.count() != 1 || sub.Outcome(StepEscalate) != OutcomeFailed || sub.EscalationRef != nil {
		t.Fatalf("unexpected escalate outcome: %+v", sub.Outcomes)
	}
	if sub.Reply.Text == "" {
		t.Fatalf("reply must still be composed")
	}
}

// ---------- persistence ----------

func TestPipeline_PersistFailure_IsFatalAndStopsSideEffects(t *testing.T) {
	db := newSvcDB(t)
	ident := registered(t, db, "1")
	if err := db.Callback().Create().Before("gorm:create").Register("force_err_on_feedback", func(tx *gorm.DB) {
		if tx.Statement.Table == "feedback_items" {
			_ = tx.AddError(errors.New("database is locked"))
		}
	}); err != nil {
		t.Fatalf("register callback: %v", err)
	}

	arc, esc := &fakeArchiver{}, &fakeEscalator{}
	reply, err := newPipeline(db, fixedVerdict(domain.SentimentNegative, 5, "x"), arc, esc).
		Submit(context.Background(), ident, "x")
	if !errors.Is(err, ErrPersistence) {
		t.Fatalf("expected ErrPersistence, got %v", err)
	}
	if reply.Text != "" {
		t.Fatalf("no reply on persistence failure, got %q", reply.Text)
	}
	if arc.count() != 0 || esc.count() != 0 {
		t.Fatalf("side effects ran after persistence failure")
	}
}

func TestPipeline_CustomThreshold(t *testing.T) {
	db := newSvcDB(t)
	ident := registered(t, db, "1")
	esc := &fakeEscalator{ref: "c"}
	p := newPipeline(db, fixedVerdict(domain.SentimentNegative, 4, "x"), &fakeArchiver{}, esc)
	p.EscalationThreshold = 5
	if _, err := p.Submit(context.Background(), ident, "x"); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if esc.count() != 0 {
		t.Fatalf("criticality 4 must not escalate under threshold 5")
	}
}

func TestSubmission_OutcomeUnknownStep(t *testing.T) {
	s := &Submission{}
	if s.Outcome("nope") != "" {
		t.Fatalf("expected empty outcome")
	}
	if !strings.Contains(PolicyContinue.String(), "continue") || StepPolicy(9).String() != "unknown" {
		t.Fatalf("policy names")
	}
}
