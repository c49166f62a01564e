// Package escalate creates external tracking cards for high-criticality
// feedback. Escalation is best-effort; callers log failures and keep the
// feedback item without a reference.
package escalate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tbourn/go-feedback-bot/internal/domain"
)

// DueOffset is how long management has to act on an escalated item.
const DueOffset = 72 * time.Hour

// ErrDisabled is returned by Noop; it counts as a failed escalation.
var ErrDisabled = errors.New("escalate: disabled")

// Card is the summary sent to the tracking tool.
type Card struct {
	FeedbackID  string
	CreatedAt   time.Time
	RoleLabel   string
	Branch      string
	Sentiment   domain.Sentiment
	Criticality int
	Message     string
	Resolution  string
}

// Due is the card deadline, DueOffset after the feedback was created.
func (c Card) Due() time.Time { return c.CreatedAt.Add(DueOffset) }

// Title is the short card name.
func (c Card) Title() string {
	return fmt.Sprintf("Critical Feedback - %s (%s)", c.RoleLabel, c.Branch)
}

// Description is the markdown card body.
func (c Card) Description() string {
	return fmt.Sprintf("**CRITICAL FEEDBACK ALERT**\n\n"+
		"**Date:** %s\n"+
		"**Employee Position:** %s\n"+
		"**Branch:** %s\n"+
		"**Sentiment:** %s\n"+
		"**Criticality Level:** %d/5\n\n"+
		"**Feedback Message:**\n%s\n\n"+
		"**AI Suggested Solution:**\n%s\n\n"+
		"**Action Required:** This feedback requires immediate attention due to high criticality level.\n"+
		"**Deadline:** Please address within 3 business days.",
		c.CreatedAt.Format("2006-01-02 15:04:05"),
		c.RoleLabel,
		c.Branch,
		c.Sentiment,
		c.Criticality,
		c.Message,
		c.Resolution,
	)
}

// Escalator creates a card and returns its external reference.
type Escalator interface {
	Escalate(ctx context.Context, card Card) (ref string, err error)
}

// Noop is used when no tracking tool is configured.
type Noop struct{}

// Escalate implements Escalator.
func (Noop) Escalate(context.Context, Card) (string, error) { return "", ErrDisabled }
