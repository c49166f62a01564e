// Package domain defines the persistence models for identities and feedback
// items. These types are mapped with GORM and form the core data layer of the
// feedback bot.
package domain

import (
	"time"
)

// Identity is one chat participant tracked by a stable external identifier.
// The ID is assigned by the chat transport (e.g. a Telegram chat id rendered
// as a decimal string) and is never generated internally.
//
// Fields:
//   - ID: external identifier, primary key (one row per participant).
//   - Role: selected role code; empty until the AWAITING_ROLE step completes.
//   - Branch: free-text branch label; nil until the AWAITING_BRANCH step completes.
//   - State: conversation state (see State).
//   - CreatedAt / UpdatedAt: timestamps managed by GORM.
type Identity struct {
	ID        string    `json:"id"         gorm:"type:varchar(64);primaryKey"`
	Role      Role      `json:"role"       gorm:"type:varchar(32);not null;default:'';index:idx_identity_role"`
	Branch    *string   `json:"branch"     gorm:"type:varchar(255);index:idx_identity_branch"`
	State     State     `json:"state"      gorm:"type:varchar(32);not null;default:'NEW'"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for Identity.
func (Identity) TableName() string { return "identities" }

// BranchOrEmpty returns the branch label or "" when it has not been set.
func (i *Identity) BranchOrEmpty() string {
	if i == nil || i.Branch == nil {
		return ""
	}
	return *i.Branch
}

// FeedbackItem is one submitted feedback message together with its
// classification verdict. Items are created by the feedback pipeline right
// after classification and are mutated at most once more, to attach the
// external references obtained by escalation.
//
// Fields:
//   - ID: UUID primary key (char(36)).
//   - IdentityID: owning identity (indexed).
//   - Message: original message text.
//   - Sentiment / Criticality / Resolution: classification verdict; the check
//     constraints mirror the invariants enforced by the classifier.
//   - ArchiveRef / EscalationRef: optional external references.
//   - ResolvedAt: set by the admin surface when management closes the item.
//   - Identity: FK association.
type FeedbackItem struct {
	ID            string     `json:"id"              gorm:"type:char(36);primaryKey"`
	IdentityID    string     `json:"identity_id"     gorm:"type:varchar(64);not null;index:idx_feedback_identity"`
	Message       string     `json:"message"         gorm:"type:text;not null"`
	Sentiment     Sentiment  `json:"sentiment"       gorm:"type:varchar(16);not null;index;check:chk_feedback_sentiment,sentiment IN ('POSITIVE','NEUTRAL','NEGATIVE')"`
	Criticality   int        `json:"criticality"     gorm:"not null;index;check:chk_feedback_criticality,criticality BETWEEN 1 AND 5"`
	Resolution    string     `json:"resolution"      gorm:"type:text;not null"`
	CreatedAt     time.Time  `json:"created_at"      gorm:"index"`
	ArchiveRef    *string    `json:"archive_ref,omitempty"    gorm:"type:varchar(255)"`
	EscalationRef *string    `json:"escalation_ref,omitempty" gorm:"type:varchar(255)"`
	ResolvedAt    *time.Time `json:"resolved_at,omitempty"`

	// Identity is the author of the item. The row is kept when the identity
	// is updated; deletion of identities is not exercised by the bot.
	Identity Identity `json:"-" gorm:"foreignKey:IdentityID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for FeedbackItem.
func (FeedbackItem) TableName() string { return "feedback_items" }

// Escalated reports whether an escalation reference has been attached.
func (f *FeedbackItem) Escalated() bool { return f.EscalationRef != nil && *f.EscalationRef != "" }
