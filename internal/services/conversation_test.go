package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"gorm.io/gorm"

	"github.com/tbourn/go-feedback-bot/internal/classify"
	"github.com/tbourn/go-feedback-bot/internal/domain"
	"github.com/tbourn/go-feedback-bot/internal/keylock"
	"github.com/tbourn/go-feedback-bot/internal/repo"
)

func newConversation(db *gorm.DB, c classify.Classifier, esc *fakeEscalator) *ConversationService {
	if esc == nil {
		esc = &fakeEscalator{ref: "card"}
	}
	return &ConversationService{
		DB:       db,
		Pipeline: newPipeline(db, c, &fakeArchiver{ref: "doc@1"}, esc),
		Log:      quietLog(),
	}
}

func say(t *testing.T, svc *ConversationService, id, text string) Reply {
	t.Helper()
	r, err := svc.HandleInboundText(context.Background(), id, text)
	if err != nil {
		t.Fatalf("HandleInboundText(%q, %q): %v", id, text, err)
	}
	return r
}

func stateOf(t *testing.T, db *gorm.DB, id string) domain.State {
	t.Helper()
	rec, err := repo.GetIdentity(context.Background(), db, id)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.StateNew
	}
	if err != nil {
		t.Fatalf("GetIdentity: %v", err)
	}
	return rec.State
}

// ---------- end-to-end ----------

func TestConversation_RegistrationAndFeedback_ClassifierDown(t *testing.T) {
	// A closed server makes the real OpenAI backend fail at the transport.
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	cfg := classify.DefaultOpenAIConfig("sk-test")
	cfg.BaseURL = base
	cfg.Timeout = time.Second

	db := newSvcDB(t)
	esc := &fakeEscalator{ref: "card"}
	svc := newConversation(db, classify.NewOpenAI(cfg), esc)

	r := say(t, svc, "42", "/start")
	want := Reply{Text: RolePromptText, Options: []string{"MANAGER", "MECHANIC", "RECEPTIONIST", "OTHER"}}
	if diff := cmp.Diff(want, r); diff != "" {
		t.Fatalf("role prompt mismatch (-want +got):\n%s", diff)
	}
	if got := stateOf(t, db, "42"); got != domain.StateAwaitingRole {
		t.Fatalf("state = %s", got)
	}

	if r := say(t, svc, "42", "MECHANIC"); r.Text != BranchPromptText {
		t.Fatalf("branch prompt = %q", r.Text)
	}

	r = say(t, svc, "42", "Downtown")
	if !strings.Contains(r.Text, "Perfect! You're registered as a MECHANIC at Downtown branch.") {
		t.Fatalf("confirmation = %q", r.Text)
	}
	rec, err := repo.GetIdentity(context.Background(), db, "42")
	if err != nil {
		t.Fatalf("GetIdentity: %v", err)
	}
	if rec.State != domain.StateRegistered || rec.Role != domain.RoleMechanic || rec.BranchOrEmpty() != "Downtown" {
		t.Fatalf("identity = %+v", rec)
	}

	r = say(t, svc, "42", "The lift is broken")
	if r.Text != FormatAcknowledgement(domain.DefaultVerdict()) {
		t.Fatalf("ack = %q", r.Text)
	}
	items := loadItems(t, db, "42")
	if len(items) != 1 {
		t.Fatalf("items = %d", len(items))
	}
	if it := items[0]; it.Message != "The lift is broken" || it.Sentiment != domain.SentimentNeutral || it.Criticality != 3 {
		t.Fatalf("item = %+v", it)
	}
	if esc.count() != 0 {
		t.Fatalf("default verdict must not escalate")
	}
}

// ---------- registration edges ----------

func TestConversation_NewIdentity_NonStartGetsHint(t *testing.T) {
	db := newSvcDB(t)
	svc := newConversation(db, classify.Disabled{}, nil)

	r := say(t, svc, "7", "hello")
	if r.Text != "Welcome! Please start by typing /start" || len(r.Options) != 0 {
		t.Fatalf("hint = %+v", r)
	}
	if _, err := repo.GetIdentity(context.Background(), db, "7"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("identity must not be created, err=%v", err)
	}
}

func TestConversation_CustomStartCommand(t *testing.T) {
	db := newSvcDB(t)
	svc := newConversation(db, classify.Disabled{}, nil)
	svc.StartCommand = "/begin"

	if r := say(t, svc, "7", "/start"); r.Text != "Welcome! Please start by typing /begin" {
		t.Fatalf("hint = %q", r.Text)
	}
	if r := say(t, svc, "7", "  /begin  "); r.Text != RolePromptText {
		t.Fatalf("role prompt = %q", r.Text)
	}
}

func TestConversation_InvalidRole_Reprompts(t *testing.T) {
	db := newSvcDB(t)
	svc := newConversation(db, classify.Disabled{}, nil)
	say(t, svc, "7", "/start")

	for _, in := range []string{"CEO", "", "/start", "mechanics"} {
		r := say(t, svc, "7", in)
		if r.Text != RolePromptText || len(r.Options) != 4 {
			t.Fatalf("input %q: reply %+v", in, r)
		}
		if got := stateOf(t, db, "7"); got != domain.StateAwaitingRole {
			t.Fatalf("input %q moved state to %s", in, got)
		}
	}

	if r := say(t, svc, "7", "  receptionist "); r.Text != BranchPromptText {
		t.Fatalf("case-insensitive role not accepted: %q", r.Text)
	}
	rec, _ := repo.GetIdentity(context.Background(), db, "7")
	if rec.Role != domain.RoleReceptionist {
		t.Fatalf("role = %s", rec.Role)
	}
}

func TestConversation_EmptyBranch_Reprompts(t *testing.T) {
	db := newSvcDB(t)
	svc := newConversation(db, classify.Disabled{}, nil)
	say(t, svc, "7", "/start")
	say(t, svc, "7", "OTHER")

	for _, in := range []string{"", "   ", "\n\t"} {
		if r := say(t, svc, "7", in); r.Text != BranchRepromptText {
			t.Fatalf("input %q: reply %q", in, r.Text)
		}
	}
	if got := stateOf(t, db, "7"); got != domain.StateAwaitingBranch {
		t.Fatalf("state = %s", got)
	}

	// Branch text is stored verbatim.
	say(t, svc, "7", " North Side ")
	rec, _ := repo.GetIdentity(context.Background(), db, "7")
	if rec.BranchOrEmpty() != " North Side " {
		t.Fatalf("branch = %q", rec.BranchOrEmpty())
	}
}

func TestConversation_StartWhileRegistered(t *testing.T) {
	db := newSvcDB(t)
	registered(t, db, "7")
	svc := newConversation(db, classify.Disabled{}, nil)

	if r := say(t, svc, "7", "/start"); r.Text != AlreadyRegisteredText {
		t.Fatalf("reply = %q", r.Text)
	}
	if n := len(loadItems(t, db, "7")); n != 0 {
		t.Fatalf("start command must not create feedback, got %d", n)
	}
	if got := stateOf(t, db, "7"); got != domain.StateRegistered {
		t.Fatalf("state = %s", got)
	}
}

func TestConversation_StoredNewBehavesLikeAbsent(t *testing.T) {
	db := newSvcDB(t)
	if err := db.Create(&domain.Identity{ID: "7", State: domain.StateNew}).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}
	svc := newConversation(db, classify.Disabled{}, nil)

	if r := say(t, svc, "7", "hi"); !strings.HasPrefix(r.Text, "Welcome!") {
		t.Fatalf("reply = %q", r.Text)
	}
	if r := say(t, svc, "7", "/start"); r.Text != RolePromptText {
		t.Fatalf("reply = %q", r.Text)
	}
}

func TestConversation_UnknownStoredState(t *testing.T) {
	db := newSvcDB(t)
	if err := db.Create(&domain.Identity{ID: "7", State: "BANNED"}).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}
	svc := newConversation(db, classify.Disabled{}, nil)
	if _, err := svc.HandleInboundText(context.Background(), "7", "hi"); !errors.Is(err, ErrUnknownState) {
		t.Fatalf("expected ErrUnknownState, got %v", err)
	}
}

func TestConversation_EmptyIdentifier(t *testing.T) {
	svc := newConversation(newSvcDB(t), classify.Disabled{}, nil)
	for _, id := range []string{"", "   "} {
		if _, err := svc.HandleInboundText(context.Background(), id, "/start"); !errors.Is(err, ErrEmptyIdentifier) {
			t.Fatalf("id %q: expected ErrEmptyIdentifier, got %v", id, err)
		}
	}
}

func TestConversation_CustomRoleCatalog(t *testing.T) {
	db := newSvcDB(t)
	svc := newConversation(db, classify.Disabled{}, nil)
	svc.Roles = domain.NewRoleCatalog([]domain.RoleDef{{Code: "driver", Label: "Driver"}, {Code: "OTHER"}})

	r := say(t, svc, "7", "/start")
	if diff := cmp.Diff([]string{"DRIVER", "OTHER"}, r.Options); diff != "" {
		t.Fatalf("options (-want +got):\n%s", diff)
	}
	if r := say(t, svc, "7", "MECHANIC"); r.Text != RolePromptText {
		t.Fatalf("role outside catalog accepted")
	}
	if r := say(t, svc, "7", "Driver"); r.Text != BranchPromptText {
		t.Fatalf("catalog role rejected: %q", r.Text)
	}
}

// ---------- persistence failures ----------

func TestConversation_TransitionPersistFailure_ThenRetry(t *testing.T) {
	db := newSvcDB(t)
	svc := newConversation(db, classify.Disabled{}, nil)

	var failing sync.Map
	failing.Store("on", true)
	if err := db.Callback().Create().Before("gorm:create").Register("force_err_on_identity", func(tx *gorm.DB) {
		if on, _ := failing.Load("on"); on == true && tx.Statement.Table == "identities" {
			_ = tx.AddError(errors.New("database is locked"))
		}
	}); err != nil {
		t.Fatalf("register callback: %v", err)
	}

	if _, err := svc.HandleInboundText(context.Background(), "9", "/start"); !errors.Is(err, ErrPersistence) {
		t.Fatalf("expected ErrPersistence, got %v", err)
	}
	if got := stateOf(t, db, "9"); got != domain.StateNew {
		t.Fatalf("failed transition left state %s", got)
	}

	failing.Store("on", false)
	if r := say(t, svc, "9", "/start"); r.Text != RolePromptText {
		t.Fatalf("retry reply = %q", r.Text)
	}
	if got := stateOf(t, db, "9"); got != domain.StateAwaitingRole {
		t.Fatalf("state after retry = %s", got)
	}
}

func TestConversation_FeedbackPersistFailure(t *testing.T) {
	db := newSvcDB(t)
	registered(t, db, "9")
	esc := &fakeEscalator{ref: "c"}
	svc := newConversation(db, fixedVerdict(domain.SentimentNegative, 5, "x"), esc)
	if err := db.Callback().Create().Before("gorm:create").Register("force_err_on_feedback", func(tx *gorm.DB) {
		if tx.Statement.Table == "feedback_items" {
			_ = tx.AddError(errors.New("disk I/O error"))
		}
	}); err != nil {
		t.Fatalf("register callback: %v", err)
	}

	if _, err := svc.HandleInboundText(context.Background(), "9", "Fire exit blocked"); !errors.Is(err, ErrPersistence) {
		t.Fatalf("expected ErrPersistence, got %v", err)
	}
	if esc.count() != 0 {
		t.Fatalf("escalated without a stored item")
	}
}

// ---------- ordering & concurrency ----------

func TestConversation_Schedule_PreservesArrivalOrder(t *testing.T) {
	db := newSvcDB(t)
	svc := newConversation(db, classify.Disabled{}, nil)

	// Reserve all slots in arrival order, then run them in reverse.
	script := []string{"/start", "MANAGER", "Harbor", "first", "second", "third"}
	jobs := make([]*Job, len(script))
	for i, txt := range script {
		jobs[i] = svc.Schedule("5", txt)
	}

	replies := make([]Reply, len(jobs))
	errs := make([]error, len(jobs))
	var wg sync.WaitGroup
	for i := len(jobs) - 1; i >= 0; i-- {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			replies[i], errs[i] = jobs[i].Run(context.Background())
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("job %d: %v", i, err)
		}
	}
	if replies[0].Text != RolePromptText || replies[1].Text != BranchPromptText {
		t.Fatalf("registration out of order: %q / %q", replies[0].Text, replies[1].Text)
	}
	items := loadItems(t, db, "5")
	if len(items) != 3 {
		t.Fatalf("items = %d", len(items))
	}

	// Creation timestamps are pinned, so check insertion order through rowid.
	var msgs []string
	if err := db.Model(&domain.FeedbackItem{}).Where("identity_id = ?", "5").Order("rowid asc").Pluck("message", &msgs).Error; err != nil {
		t.Fatalf("pluck: %v", err)
	}
	if diff := cmp.Diff([]string{"first", "second", "third"}, msgs); diff != "" {
		t.Fatalf("feedback order (-want +got):\n%s", diff)
	}
}

func TestConversation_ConcurrentIdentities(t *testing.T) {
	db := newSvcDB(t)
	svc := newConversation(db, classify.Disabled{}, nil)
	svc.Locks = keylock.New()

	const n = 8
	var wg sync.WaitGroup
	errCh := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			for _, txt := range []string{"/start", "OTHER", "Depot", "ok"} {
				if _, err := svc.HandleInboundText(context.Background(), id, txt); err != nil {
					errCh <- fmt.Errorf("%s/%q: %w", id, txt, err)
					return
				}
			}
		}(fmt.Sprintf("u%d", i))
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Fatal(err)
	}
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("u%d", i)
		if got := stateOf(t, db, id); got != domain.StateRegistered {
			t.Fatalf("%s state = %s", id, got)
		}
		if c := len(loadItems(t, db, id)); c != 1 {
			t.Fatalf("%s items = %d", id, c)
		}
	}
	if svc.Locks.Len() != 0 {
		t.Fatalf("locker kept %d idle keys", svc.Locks.Len())
	}
}

func TestConversation_VisitedStatesAreForwardOnly(t *testing.T) {
	db := newSvcDB(t)
	svc := newConversation(db, classify.Disabled{}, nil)

	var mu sync.Mutex
	var visited []domain.State
	if err := db.Callback().Create().After("gorm:create").Register("record_identity_state", func(tx *gorm.DB) {
		if rec, ok := tx.Statement.Dest.(*domain.Identity); ok && tx.Error == nil {
			mu.Lock()
			visited = append(visited, rec.State)
			mu.Unlock()
		}
	}); err != nil {
		t.Fatalf("register callback: %v", err)
	}

	inputs := []string{"hi", "/start", "/start", "boss", "MECHANIC", "   ", "", "Depot 3", "/start", "feedback", "/start", "more"}
	for _, in := range inputs {
		say(t, svc, "p1", in)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []domain.State{domain.StateAwaitingRole, domain.StateAwaitingBranch, domain.StateRegistered}
	if diff := cmp.Diff(want, visited); diff != "" {
		t.Fatalf("persisted states (-want +got):\n%s", diff)
	}
	for i := 1; i < len(visited); i++ {
		if visited[i].Ordinal() <= visited[i-1].Ordinal() {
			t.Fatalf("state went backwards at %d: %v", i, visited)
		}
	}
}

func TestJob_RunOrCancelOnce(t *testing.T) {
	db := newSvcDB(t)
	svc := newConversation(db, classify.Disabled{}, nil)

	j := svc.Schedule("3", "hi")
	if j.Identifier() != "3" {
		t.Fatalf("identifier = %q", j.Identifier())
	}
	if _, err := j.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if _, err := j.Run(context.Background()); !errors.Is(err, ErrJobDone) {
		t.Fatalf("second Run: %v", err)
	}
	if err := j.Cancel(); !errors.Is(err, ErrJobDone) {
		t.Fatalf("Cancel after Run: %v", err)
	}

	// A cancelled job lets the next one in line proceed.
	first := svc.Schedule("3", "/start")
	second := svc.Schedule("3", "/start")
	if err := first.Cancel(); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	done := make(chan Reply, 1)
	go func() {
		r, _ := second.Run(context.Background())
		done <- r
	}()
	select {
	case r := <-done:
		if r.Text != RolePromptText {
			t.Fatalf("reply = %q", r.Text)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("job after a cancelled one never ran")
	}
}

func TestJob_RunIgnoresCallerCancellation(t *testing.T) {
	db := newSvcDB(t)
	svc := newConversation(db, classify.Disabled{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r, err := svc.HandleInboundText(ctx, "4", "/start")
	if err != nil {
		t.Fatalf("cancelled caller context aborted the event: %v", err)
	}
	if r.Text != RolePromptText {
		t.Fatalf("reply = %q", r.Text)
	}
}

func TestConversation_NoPipeline(t *testing.T) {
	db := newSvcDB(t)
	registered(t, db, "7")
	svc := &ConversationService{DB: db, Log: quietLog()}
	if _, err := svc.HandleInboundText(context.Background(), "7", "hello"); err == nil {
		t.Fatal("expected an error without a pipeline")
	}
	if svc.StartCommandText() != DefaultStartCommand {
		t.Fatalf("start command = %q", svc.StartCommandText())
	}
}
