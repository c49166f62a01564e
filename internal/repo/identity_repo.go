// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Identity
// model.
//
// All functions are context-aware and accept a *gorm.DB handle. They follow
// the "thin repository" approach: no business logic, only persistence and
// query composition. State machine rules live in services.ConversationService.
//
// Error semantics:
//   - When an identity is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - On DB errors the raw gorm error is propagated.
package repo

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-feedback-bot/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// IdentityFilter narrows ListIdentities. Zero fields are ignored.
type IdentityFilter struct {
	State  domain.State
	Role   domain.Role
	Branch string
}

// GetIdentity fetches the identity with the given external id, or ErrNotFound.
func GetIdentity(ctx context.Context, db *gorm.DB, id string) (*domain.Identity, error) {
	var out domain.Identity
	if err := db.WithContext(ctx).Where("id = ?", id).First(&out).Error; err != nil {
		return nil, err
	}
	return &out, nil
}

// UpsertIdentity inserts rec or, when a row with the same id exists, replaces
// its mutable columns (last write wins). The primary key guarantees a single
// row per external id even when two first messages race.
func UpsertIdentity(ctx context.Context, db *gorm.DB, rec *domain.Identity) error {
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).
		Create(rec).Error
}

// ListIdentities returns identities matching f ordered by creation time.
func ListIdentities(ctx context.Context, db *gorm.DB, f IdentityFilter) ([]domain.Identity, error) {
	q := db.WithContext(ctx).Model(&domain.Identity{})
	if f.State != "" {
		q = q.Where("state = ?", f.State)
	}
	if f.Role != "" {
		q = q.Where("role = ?", f.Role)
	}
	if b := strings.TrimSpace(f.Branch); b != "" {
		q = q.Where("LOWER(branch) = LOWER(?)", b)
	}
	var out []domain.Identity
	err := q.Order("created_at asc").Order("id asc").Find(&out).Error
	return out, err
}

// ListBranches returns the distinct non-empty branch labels of registered
// identities, sorted ascending.
func ListBranches(ctx context.Context, db *gorm.DB) ([]string, error) {
	var out []string
	err := db.WithContext(ctx).
		Model(&domain.Identity{}).
		Where("state = ? AND branch IS NOT NULL AND branch <> ''", domain.StateRegistered).
		Distinct().
		Order("branch asc").
		Pluck("branch", &out).Error
	return out, err
}
