package domain

import (
	"testing"
	"time"
)

func TestInboundReceipt_Migration_UniqueKey_AndInsert(t *testing.T) {
	db := newDomainDB(t)
	if err := db.AutoMigrate(&InboundReceipt{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	m := db.Migrator()
	if !m.HasIndex(&InboundReceipt{}, "ux_receipt_identity_key") {
		t.Fatalf("expected composite index ux_receipt_identity_key to exist")
	}

	now := time.Now().UTC()
	rec := &InboundReceipt{
		ID:         "r1",
		IdentityID: "42",
		Key:        "k1",
		ReplyText:  "hello",
		Options:    "A\nB",
		Status:     200,
		ExpiresAt:  now.Add(time.Hour),
	}
	if err := db.Create(rec).Error; err != nil {
		t.Fatalf("insert valid: %v", err)
	}

	var got InboundReceipt
	if err := db.First(&got, "id = ?", "r1").Error; err != nil {
		t.Fatalf("readback: %v", err)
	}
	if got.IdentityID != "42" || got.Key != "k1" || got.ReplyText != "hello" || got.Options != "A\nB" || got.Status != 200 {
		t.Fatalf("unexpected row: %+v", got)
	}
	if got.CreatedAt.IsZero() {
		t.Fatalf("CreatedAt should be set by autoCreateTime")
	}

	dup := &InboundReceipt{ID: "r2", IdentityID: "42", Key: "k1", ReplyText: "x", Status: 200, ExpiresAt: now.Add(time.Hour)}
	if err := db.Create(dup).Error; err == nil {
		t.Fatalf("expected UNIQUE constraint violation on (identity_id, key)")
	}

	// Same key for a different identity is fine.
	other := &InboundReceipt{ID: "r3", IdentityID: "43", Key: "k1", ReplyText: "x", Status: 200, ExpiresAt: now.Add(time.Hour)}
	if err := db.Create(other).Error; err != nil {
		t.Fatalf("insert other identity: %v", err)
	}
}

func TestInboundReceipt_Expired(t *testing.T) {
	now := time.Now()
	r := &InboundReceipt{ExpiresAt: now.Add(time.Minute)}
	if r.Expired(now) {
		t.Fatalf("receipt should be live")
	}
	if !r.Expired(now.Add(time.Minute)) {
		t.Fatalf("receipt should be expired at its expiry instant")
	}
}
