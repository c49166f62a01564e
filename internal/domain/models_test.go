package domain

import (
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newDomainDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:domain_models_" + uuid.NewString() + "?mode=memory&cache=shared"
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
	// One connection keeps the PRAGMA below in effect for every statement.
	sqlDB.SetMaxOpenConns(1)
	// Enforce FKs so cascades actually execute.
	db.Exec("PRAGMA foreign_keys=ON;")
	return db
}

func TestTableNames(t *testing.T) {
	if (Identity{}).TableName() != "identities" {
		t.Fatalf("Identity.TableName() = %q; want %q", (Identity{}).TableName(), "identities")
	}
	if (FeedbackItem{}).TableName() != "feedback_items" {
		t.Fatalf("FeedbackItem.TableName() = %q; want %q", (FeedbackItem{}).TableName(), "feedback_items")
	}
	if (InboundReceipt{}).TableName() != "inbound_receipts" {
		t.Fatalf("InboundReceipt.TableName() = %q; want %q", (InboundReceipt{}).TableName(), "inbound_receipts")
	}
}

func TestMigrations_Indexes_Checks_AndCascades(t *testing.T) {
	db := newDomainDB(t)

	if err := db.AutoMigrate(&Identity{}, &FeedbackItem{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	m := db.Migrator()

	for _, tbl := range []any{&Identity{}, &FeedbackItem{}} {
		if !m.HasTable(tbl) {
			t.Fatalf("expected table for %T to exist", tbl)
		}
	}
	if !m.HasIndex(&FeedbackItem{}, "idx_feedback_identity") {
		t.Fatalf("expected index idx_feedback_identity on feedback_items")
	}
	if !m.HasIndex(&Identity{}, "idx_identity_branch") {
		t.Fatalf("expected index idx_identity_branch on identities")
	}

	now := time.Now().UTC()
	branch := "Downtown"
	id := &Identity{ID: "42", Role: RoleMechanic, Branch: &branch, State: StateRegistered, CreatedAt: now, UpdatedAt: now}
	if err := db.Create(id).Error; err != nil {
		t.Fatalf("insert identity: %v", err)
	}

	ok := &FeedbackItem{ID: uuid.NewString(), IdentityID: "42", Message: "m", Sentiment: SentimentNeutral, Criticality: 3, Resolution: "r", CreatedAt: now}
	if err := db.Create(ok).Error; err != nil {
		t.Fatalf("insert feedback: %v", err)
	}

	// Out-of-range criticality is rejected by the check constraint.
	bad := &FeedbackItem{ID: uuid.NewString(), IdentityID: "42", Message: "m", Sentiment: SentimentNeutral, Criticality: 6, Resolution: "r", CreatedAt: now}
	if err := db.Create(bad).Error; err == nil {
		t.Fatalf("expected check violation for criticality=6")
	}

	// Unknown sentiment is rejected too.
	bad2 := &FeedbackItem{ID: uuid.NewString(), IdentityID: "42", Message: "m", Sentiment: "ANGRY", Criticality: 2, Resolution: "r", CreatedAt: now}
	if err := db.Create(bad2).Error; err == nil {
		t.Fatalf("expected check violation for sentiment=ANGRY")
	}

	// Orphans are rejected by the FK.
	orphan := &FeedbackItem{ID: uuid.NewString(), IdentityID: "nobody", Message: "m", Sentiment: SentimentNeutral, Criticality: 3, Resolution: "r", CreatedAt: now}
	if err := db.Create(orphan).Error; err == nil {
		t.Fatalf("expected FK violation for unknown identity")
	}

	// CASCADE: deleting the identity deletes its feedback.
	if err := db.Delete(&Identity{}, "id = ?", "42").Error; err != nil {
		t.Fatalf("delete identity: %v", err)
	}
	var cnt int64
	if err := db.Model(&FeedbackItem{}).Where("identity_id = ?", "42").Count(&cnt).Error; err != nil {
		t.Fatalf("count feedback after identity delete: %v", err)
	}
	if cnt != 0 {
		t.Fatalf("expected feedback to cascade-delete, got count=%d", cnt)
	}
}

func TestIdentity_BranchOrEmpty(t *testing.T) {
	var nilID *Identity
	if nilID.BranchOrEmpty() != "" {
		t.Fatalf("nil identity should have empty branch")
	}
	i := &Identity{}
	if i.BranchOrEmpty() != "" {
		t.Fatalf("unset branch should be empty")
	}
	b := "North"
	i.Branch = &b
	if i.BranchOrEmpty() != "North" {
		t.Fatalf("BranchOrEmpty = %q", i.BranchOrEmpty())
	}
}

func TestFeedbackItem_Escalated(t *testing.T) {
	f := &FeedbackItem{}
	if f.Escalated() {
		t.Fatalf("no ref should not be escalated")
	}
	empty := ""
	f.EscalationRef = &empty
	if f.Escalated() {
		t.Fatalf("empty ref should not be escalated")
	}
	ref := "card-1"
	f.EscalationRef = &ref
	if !f.Escalated() {
		t.Fatalf("expected escalated")
	}
}
