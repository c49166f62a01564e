package domain

import "time"

// InboundReceipt records the reply produced for an inbound event that carried
// an idempotency key, keyed by (identity_id, key). A redelivered event with the
// same key is answered from the receipt without re-running the conversation.
type InboundReceipt struct {
	ID         string    `gorm:"type:TEXT NOT NULL;primaryKey"`
	IdentityID string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_receipt_identity_key,priority:1"`
	Key        string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_receipt_identity_key,priority:2"`
	ReplyText  string    `gorm:"type:TEXT NOT NULL"`
	Options    string    `gorm:"type:TEXT NOT NULL;default:''"` // newline-joined option labels
	Status     int       `gorm:"type:INTEGER NOT NULL"`
	CreatedAt  time.Time `gorm:"type:DATETIME NOT NULL;autoCreateTime"`
	ExpiresAt  time.Time `gorm:"type:DATETIME NOT NULL;index"`
}

// TableName implements the GORM tabler interface.
func (InboundReceipt) TableName() string { return "inbound_receipts" }

// Expired reports whether the receipt is past its expiry at now.
func (r *InboundReceipt) Expired(now time.Time) bool { return !now.Before(r.ExpiresAt) }
