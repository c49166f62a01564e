// Package archive appends formatted feedback records to a long-lived external
// document. Archival is best-effort; callers log failures and move on.
package archive

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tbourn/go-feedback-bot/internal/domain"
)

// ErrDisabled is returned by Noop.
var ErrDisabled = errors.New("archive: disabled")

// DateLayout is the timestamp format written into each entry.
const DateLayout = "2006-01-02 15:04:05"

// Record is the archived view of one feedback item.
type Record struct {
	FeedbackID  string
	CreatedAt   time.Time
	RoleLabel   string
	Branch      string
	Sentiment   domain.Sentiment
	Criticality int
	Message     string
	Resolution  string
	// Escalating is true when the item qualifies for an escalation card.
	Escalating bool
}

// Archiver appends a record and returns an opaque reference to it.
type Archiver interface {
	Append(ctx context.Context, rec Record) (ref string, err error)
}

// Noop is used when no document is configured.
type Noop struct{}

// Append implements Archiver.
func (Noop) Append(context.Context, Record) (string, error) { return "", ErrDisabled }

// FormatRecord renders rec as the plain-text entry block.
func FormatRecord(rec Record) string {
	escalation := "N/A"
	if rec.Escalating {
		escalation = "Requested"
	}
	return fmt.Sprintf("=== FEEDBACK ENTRY ===\n"+
		"Date: %s\n"+
		"Position: %s\n"+
		"Branch: %s\n"+
		"Sentiment: %s\n"+
		"Criticality: %d/5\n"+
		"Message: %s\n"+
		"Suggested Solution: %s\n"+
		"Escalation: %s\n\n",
		rec.CreatedAt.Format(DateLayout),
		rec.RoleLabel,
		rec.Branch,
		rec.Sentiment,
		rec.Criticality,
		rec.Message,
		rec.Resolution,
		escalation,
	)
}
