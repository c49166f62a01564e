// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository helpers for inbound receipts,
// which let transports answer a redelivered event without re-running it.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-feedback-bot/internal/domain"
)

// ErrDuplicate indicates that a receipt already exists for the given
// (identity_id, key) pair.
var ErrDuplicate = errors.New("duplicate")

// GetReceipt returns a non-expired receipt or ErrNotFound.
func GetReceipt(ctx context.Context, db *gorm.DB, identityID, key string, now time.Time) (*domain.InboundReceipt, error) {
	if strings.TrimSpace(key) == "" {
		return nil, ErrNotFound
	}
	var rec domain.InboundReceipt
	err := db.WithContext(ctx).
		Where("identity_id = ? AND key = ? AND expires_at > ?", identityID, key, now).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// CreateReceipt inserts a receipt and returns ErrDuplicate on unique violation.
// Options are stored newline-joined.
func CreateReceipt(ctx context.Context, db *gorm.DB, identityID, key, text string, options []string, status int, ttl time.Duration) (*domain.InboundReceipt, error) {
	now := time.Now().UTC()
	rec := &domain.InboundReceipt{
		ID:         uuid.NewString(),
		IdentityID: identityID,
		Key:        key,
		ReplyText:  text,
		Options:    strings.Join(options, "\n"),
		Status:     status,
		CreatedAt:  now,
		ExpiresAt:  now.Add(ttl),
	}
	if err := db.WithContext(ctx).Create(rec).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return rec, nil
}

// PurgeExpiredReceipts deletes receipts that expired before now and returns
// how many rows were removed.
func PurgeExpiredReceipts(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	res := db.WithContext(ctx).Where("expires_at <= ?", now).Delete(&domain.InboundReceipt{})
	return res.RowsAffected, res.Error
}

// ReceiptOptions splits the stored option list back into labels.
func ReceiptOptions(rec *domain.InboundReceipt) []string {
	if rec == nil || rec.Options == "" {
		return nil
	}
	return strings.Split(rec.Options, "\n")
}

// isUniqueViolation matches unique-key errors across drivers; glebarez/sqlite
// often returns plain-text errors for UNIQUE violations.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "unique constraint failed") ||
		strings.Contains(low, "constraint failed: unique") ||
		strings.Contains(low, "duplicate key value")
}
