// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// FeedbackItem model.
//
// The repository follows a "thin" approach: it performs persistence and simple
// query composition, leaving business rules to the services package.
//
// Functions:
//
//   - CreateFeedback(ctx, db, item) -> error
//     Inserts a feedback row; ID and CreatedAt are filled when empty.
//
//   - AttachExternalRefs(ctx, db, id, archiveRef, escalationRef) -> error
//     The single follow-up write allowed after creation.
//
//   - ListFeedbackPage / CountFeedback
//     Filtered listing for the admin surface.
//
// Usage:
//
//	item := &domain.FeedbackItem{IdentityID: id, Message: text, ...}
//	if err := repo.CreateFeedback(ctx, db, item); err != nil {
//	    // persistence failure, fatal to the request
//	}
package repo

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-feedback-bot/internal/domain"
)

// FeedbackFilter narrows feedback queries. Zero fields are ignored. Branch
// and Role constrain the owning identity.
type FeedbackFilter struct {
	Branch         string
	Role           domain.Role
	Sentiment      domain.Sentiment
	MinCriticality int
	From           *time.Time // inclusive
	To             *time.Time // exclusive
	Unresolved     bool
}

// FeedbackSort selects the ordering of ListFeedbackPage.
type FeedbackSort struct {
	Field string // "created_at" (default) or "criticality"
	Desc  bool
}

func (s FeedbackSort) clause() string {
	col := "feedback_items.created_at"
	if s.Field == "criticality" {
		col = "feedback_items.criticality"
	}
	if s.Desc {
		return col + " desc"
	}
	return col + " asc"
}

// scopeFeedback applies f to a query rooted at feedback_items.
func scopeFeedback(q *gorm.DB, f FeedbackFilter) *gorm.DB {
	if strings.TrimSpace(f.Branch) != "" || f.Role != "" {
		q = q.Joins("JOIN identities ON identities.id = feedback_items.identity_id")
		if b := strings.TrimSpace(f.Branch); b != "" {
			q = q.Where("LOWER(identities.branch) = LOWER(?)", b)
		}
		if f.Role != "" {
			q = q.Where("identities.role = ?", f.Role)
		}
	}
	if f.Sentiment != "" {
		q = q.Where("feedback_items.sentiment = ?", f.Sentiment)
	}
	if f.MinCriticality > 0 {
		q = q.Where("feedback_items.criticality >= ?", f.MinCriticality)
	}
	if f.From != nil {
		q = q.Where("feedback_items.created_at >= ?", f.From.UTC())
	}
	if f.To != nil {
		q = q.Where("feedback_items.created_at < ?", f.To.UTC())
	}
	if f.Unresolved {
		q = q.Where("feedback_items.resolved_at IS NULL")
	}
	return q
}

// CreateFeedback inserts item. A missing ID is generated (UUID) and a zero
// CreatedAt is set to the current UTC time.
func CreateFeedback(ctx context.Context, db *gorm.DB, item *domain.FeedbackItem) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	return db.WithContext(ctx).Omit("Identity").Create(item).Error
}

// GetFeedback fetches a feedback item (with its identity) by id, or ErrNotFound.
func GetFeedback(ctx context.Context, db *gorm.DB, id string) (*domain.FeedbackItem, error) {
	var out domain.FeedbackItem
	if err := db.WithContext(ctx).Preload("Identity").Where("id = ?", id).First(&out).Error; err != nil {
		return nil, err
	}
	return &out, nil
}

// AttachExternalRefs stores the archive and escalation references of item id
// in one write. Nil refs leave the column untouched. Returns ErrNotFound if
// no row was affected.
func AttachExternalRefs(ctx context.Context, db *gorm.DB, id string, archiveRef, escalationRef *string) error {
	updates := map[string]any{}
	if archiveRef != nil {
		updates["archive_ref"] = *archiveRef
	}
	if escalationRef != nil {
		updates["escalation_ref"] = *escalationRef
	}
	if len(updates) == 0 {
		return nil
	}
	res := db.WithContext(ctx).
		Model(&domain.FeedbackItem{}).
		Where("id = ?", id).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// CountFeedback returns the number of items matching f.
func CountFeedback(ctx context.Context, db *gorm.DB, f FeedbackFilter) (int64, error) {
	var total int64
	err := scopeFeedback(db.WithContext(ctx).Model(&domain.FeedbackItem{}), f).Count(&total).Error
	return total, err
}

// ListFeedbackPage returns a page of items matching f, ordered by s, with the
// owning identity preloaded. The caller computes offset and limit.
func ListFeedbackPage(ctx context.Context, db *gorm.DB, f FeedbackFilter, s FeedbackSort, offset, limit int) ([]domain.FeedbackItem, error) {
	var out []domain.FeedbackItem
	err := scopeFeedback(db.WithContext(ctx).Model(&domain.FeedbackItem{}), f).
		Select("feedback_items.*").
		Preload("Identity").
		Order(s.clause()).
		Order("feedback_items.id asc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// MarkFeedbackResolved sets resolved_at on item id. Resolving an already
// resolved item keeps the first timestamp. Returns ErrNotFound if the item
// does not exist.
func MarkFeedbackResolved(ctx context.Context, db *gorm.DB, id string, at time.Time) error {
	res := db.WithContext(ctx).
		Model(&domain.FeedbackItem{}).
		Where("id = ? AND resolved_at IS NULL", id).
		Update("resolved_at", at.UTC())
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}
	var n int64
	if err := db.WithContext(ctx).Model(&domain.FeedbackItem{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
