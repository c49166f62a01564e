// Package services – FeedbackPipeline
//
// This file implements FeedbackPipeline, which turns the text of a registered
// identity into a classified, persisted and optionally escalated feedback
// item, and composes the acknowledgement sent back to the employee.
//
// The pipeline is an ordered list of named steps, each with a failure policy:
//
//	classify  fallback  failure substitutes domain.DefaultVerdict()
//	persist   abort     failure ends the request with ErrPersistence
//	archive   continue  failure is logged
//	escalate  continue  only for criticality >= threshold; failure is logged
//	compose   abort     builds the reply from the verdict only
//
// Observability: every step runs in its own span and is counted in
// feedbackbot_pipeline_steps_total. Message text is never logged or traced.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-feedback-bot/internal/archive"
	"github.com/tbourn/go-feedback-bot/internal/classify"
	"github.com/tbourn/go-feedback-bot/internal/domain"
	"github.com/tbourn/go-feedback-bot/internal/escalate"
	"github.com/tbourn/go-feedback-bot/internal/repo"

	// OpenTelemetry
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Step names.
const (
	StepClassify = "classify"
	StepPersist  = "persist"
	StepArchive  = "archive"
	StepEscalate = "escalate"
	StepCompose  = "compose"
)

// Step outcomes as reported in metrics and Submission.Outcomes.
const (
	OutcomeOK       = "ok"
	OutcomeFallback = "fallback"
	OutcomeFailed   = "failed"
	OutcomeSkipped  = "skipped"
)

// Default external call budgets, applied when the corresponding field is zero.
const (
	DefaultClassifyTimeout     = 30 * time.Second
	DefaultArchiveTimeout      = 15 * time.Second
	DefaultEscalateTimeout     = 15 * time.Second
	DefaultEscalationThreshold = 4
)

// StepPolicy decides what a step failure does to the rest of the run.
type StepPolicy int

const (
	// PolicyAbort stops the run and returns the error.
	PolicyAbort StepPolicy = iota
	// PolicyFallback applies the step's fallback and continues.
	PolicyFallback
	// PolicyContinue logs the failure and continues.
	PolicyContinue
)

func (p StepPolicy) String() string {
	switch p {
	case PolicyAbort:
		return "abort"
	case PolicyFallback:
		return "fallback"
	case PolicyContinue:
		return "continue"
	}
	return "unknown"
}

// Step is one named unit of the pipeline.
type Step struct {
	Name    string
	Policy  StepPolicy
	Timeout time.Duration // zero runs the step without its own deadline

	// Skip, when set and true, skips the step without calling Run.
	Skip func(*Submission) bool
	// Run performs the step and records its results on the submission.
	Run func(context.Context, *Submission) error
	// Fallback is applied when Run fails under PolicyFallback.
	Fallback func(*Submission)
}

// StepOutcome records how a step ended.
type StepOutcome struct {
	Step    string
	Outcome string
	Err     error
}

// Submission is the state carried through one pipeline run.
type Submission struct {
	Identity domain.Identity
	Text     string

	Verdict    domain.Verdict
	Classified bool // false when the default verdict was substituted

	Item          *domain.FeedbackItem
	ArchiveRef    *string
	EscalationRef *string

	Reply    Reply
	Outcomes []StepOutcome
}

// Outcome returns the recorded outcome of step, or "" if it never ran.
func (s *Submission) Outcome(step string) string {
	for _, o := range s.Outcomes {
		if o.Step == step {
			return o.Outcome
		}
	}
	return ""
}

// FeedbackPipeline orchestrates classification, persistence, archival and
// escalation for one message of a registered identity.
type FeedbackPipeline struct {
	DB         *gorm.DB
	Classifier classify.Classifier
	Archiver   archive.Archiver
	Escalator  escalate.Escalator
	Roles      domain.RoleCatalog

	// EscalationThreshold is the minimum criticality that opens a card.
	EscalationThreshold int

	ClassifyTimeout time.Duration
	ArchiveTimeout  time.Duration
	EscalateTimeout time.Duration

	// Log defaults to the global zerolog logger.
	Log *zerolog.Logger
	// Now defaults to time.Now; tests pin it.
	Now func() time.Time
}

// Submit runs the pipeline for text authored by ident and returns the
// acknowledgement. The only error is ErrPersistence (wrapped): once the item
// is stored the reply is always produced.
func (p *FeedbackPipeline) Submit(ctx context.Context, ident domain.Identity, text string) (Reply, error) {
	sub, err := p.Run(ctx, ident, text)
	if err != nil {
		return Reply{}, err
	}
	return sub.Reply, nil
}

// Run executes every step and returns the full submission for inspection.
func (p *FeedbackPipeline) Run(ctx context.Context, ident domain.Identity, text string) (*Submission, error) {
	tr := otel.Tracer("services/FeedbackPipeline")
	ctx, span := tr.Start(ctx, "Run",
		trace.WithAttributes(
			attribute.String("identity.id", ident.ID),
			attribute.Int("text.len", len(text)),
		),
	)
	defer span.End()

	sub := &Submission{Identity: ident, Text: text}
	if err := p.runSteps(ctx, sub, p.Steps()); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "pipeline aborted")
		return sub, err
	}
	if sub.Item != nil {
		span.SetAttributes(attribute.String("feedback.id", sub.Item.ID))
	}
	return sub, nil
}

// Steps returns the ordered step list.
func (p *FeedbackPipeline) Steps() []Step {
	return []Step{
		{
			Name:     StepClassify,
			Policy:   PolicyFallback,
			Timeout:  durOr(p.ClassifyTimeout, DefaultClassifyTimeout),
			Run:      p.classify,
			Fallback: func(s *Submission) { s.Verdict, s.Classified = domain.DefaultVerdict(), false },
		},
		{
			Name:   StepPersist,
			Policy: PolicyAbort,
			Run:    p.persist,
		},
		{
			Name:    StepArchive,
			Policy:  PolicyContinue,
			Timeout: durOr(p.ArchiveTimeout, DefaultArchiveTimeout),
			Run:     p.archive,
		},
		{
			Name:    StepEscalate,
			Policy:  PolicyContinue,
			Timeout: durOr(p.EscalateTimeout, DefaultEscalateTimeout),
			Skip:    func(s *Submission) bool { return s.Verdict.Criticality < p.threshold() },
			Run:     p.escalate,
		},
		{
			Name:   StepCompose,
			Policy: PolicyAbort,
			Run: func(_ context.Context, s *Submission) error {
				s.Reply = Reply{Text: FormatAcknowledgement(s.Verdict)}
				return nil
			},
		},
	}
}

// runSteps applies each step's policy in order.
func (p *FeedbackPipeline) runSteps(ctx context.Context, sub *Submission, steps []Step) error {
	tr := otel.Tracer("services/FeedbackPipeline")
	for _, st := range steps {
		if st.Skip != nil && st.Skip(sub) {
			p.record(sub, st.Name, OutcomeSkipped, nil)
			continue
		}

		sctx, span := tr.Start(ctx, "step."+st.Name,
			trace.WithAttributes(attribute.String("step.policy", st.Policy.String())),
		)
		var cancel context.CancelFunc = func() {}
		if st.Timeout > 0 {
			sctx, cancel = context.WithTimeout(sctx, st.Timeout)
		}
		start := time.Now()
		err := st.Run(sctx, sub)
		cancel()
		pipelineStepDur.WithLabelValues(st.Name).Observe(time.Since(start).Seconds())

		if err == nil {
			span.End()
			p.record(sub, st.Name, OutcomeOK, nil)
			continue
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, st.Name+" failed")
		span.End()

		switch st.Policy {
		case PolicyFallback:
			if st.Fallback != nil {
				st.Fallback(sub)
			}
			p.record(sub, st.Name, OutcomeFallback, err)
			p.logStepFailure(zerolog.WarnLevel, sub, st.Name, err)
		case PolicyContinue:
			p.record(sub, st.Name, OutcomeFailed, err)
			p.logStepFailure(zerolog.WarnLevel, sub, st.Name, err)
		default:
			p.record(sub, st.Name, OutcomeFailed, err)
			p.logStepFailure(zerolog.ErrorLevel, sub, st.Name, err)
			return err
		}
	}
	return nil
}

func (p *FeedbackPipeline) record(sub *Submission, step, outcome string, err error) {
	sub.Outcomes = append(sub.Outcomes, StepOutcome{Step: step, Outcome: outcome, Err: err})
	pipelineSteps.WithLabelValues(step, outcome).Inc()
}

func (p *FeedbackPipeline) logStepFailure(level zerolog.Level, sub *Submission, step string, err error) {
	ev := p.logger().WithLevel(level).
		Str("step", step).
		Str("identity_id", sub.Identity.ID).
		Err(err)
	if sub.Item != nil {
		ev = ev.Str("feedback_id", sub.Item.ID)
	}
	ev.Msg("feedback pipeline step failed")
}

func (p *FeedbackPipeline) classify(ctx context.Context, sub *Submission) error {
	if p.Classifier == nil {
		return fmt.Errorf("%w: no classifier", classify.ErrUnavailable)
	}
	v, err := p.Classifier.Classify(ctx, sub.Text)
	if err != nil {
		return err
	}
	// Backends are expected to return valid verdicts; anything else is malformed.
	if !v.Valid() {
		return fmt.Errorf("%w: invalid verdict %+v", classify.ErrMalformed, v)
	}
	sub.Verdict, sub.Classified = v, true
	return nil
}

func (p *FeedbackPipeline) persist(ctx context.Context, sub *Submission) error {
	item := &domain.FeedbackItem{
		IdentityID:  sub.Identity.ID,
		Message:     sub.Text,
		Sentiment:   sub.Verdict.Sentiment,
		Criticality: sub.Verdict.Criticality,
		Resolution:  sub.Verdict.Resolution,
		CreatedAt:   p.now().UTC(),
	}
	if err := repo.CreateFeedback(ctx, p.DB, item); err != nil {
		return fmt.Errorf("%w: create feedback: %v", ErrPersistence, err)
	}
	sub.Item = item
	return nil
}

func (p *FeedbackPipeline) archive(ctx context.Context, sub *Submission) error {
	if p.Archiver == nil {
		return archive.ErrDisabled
	}
	ref, err := p.Archiver.Append(ctx, archive.Record{
		FeedbackID:  sub.Item.ID,
		CreatedAt:   sub.Item.CreatedAt,
		RoleLabel:   p.roles().Label(sub.Identity.Role),
		Branch:      sub.Identity.BranchOrEmpty(),
		Sentiment:   sub.Item.Sentiment,
		Criticality: sub.Item.Criticality,
		Message:     sub.Item.Message,
		Resolution:  sub.Item.Resolution,
		Escalating:  sub.Item.Criticality >= p.threshold(),
	})
	if err != nil {
		return err
	}
	if ref != "" {
		sub.ArchiveRef = &ref
	}
	return nil
}

// escalate opens a card and then performs the single follow-up write that
// attaches the escalation reference (and the archive reference, if any).
func (p *FeedbackPipeline) escalate(ctx context.Context, sub *Submission) error {
	if p.Escalator == nil {
		return escalate.ErrDisabled
	}
	ref, err := p.Escalator.Escalate(ctx, escalate.Card{
		FeedbackID:  sub.Item.ID,
		CreatedAt:   sub.Item.CreatedAt,
		RoleLabel:   p.roles().Label(sub.Identity.Role),
		Branch:      sub.Identity.BranchOrEmpty(),
		Sentiment:   sub.Item.Sentiment,
		Criticality: sub.Item.Criticality,
		Message:     sub.Item.Message,
		Resolution:  sub.Item.Resolution,
	})
	if err != nil {
		return err
	}
	if strings.TrimSpace(ref) == "" {
		return errors.New("escalate: empty reference")
	}

	// The card exists even if this write fails; the item stays valid without it.
	if err := repo.AttachExternalRefs(context.WithoutCancel(ctx), p.DB, sub.Item.ID, sub.ArchiveRef, &ref); err != nil {
		return fmt.Errorf("attach escalation ref %s: %w", ref, err)
	}
	sub.EscalationRef = &ref
	sub.Item.EscalationRef = &ref
	sub.Item.ArchiveRef = sub.ArchiveRef
	return nil
}

func (p *FeedbackPipeline) threshold() int {
	if p.EscalationThreshold > 0 {
		return p.EscalationThreshold
	}
	return DefaultEscalationThreshold
}

func (p *FeedbackPipeline) roles() domain.RoleCatalog {
	if p.Roles.Len() == 0 {
		return domain.DefaultRoleCatalog()
	}
	return p.Roles
}

func (p *FeedbackPipeline) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

func (p *FeedbackPipeline) logger() *zerolog.Logger {
	if p.Log != nil {
		return p.Log
	}
	return &log.Logger
}

// FormatAcknowledgement renders the reply for v. It depends on the verdict
// only, never on archival or escalation results.
func FormatAcknowledgement(v domain.Verdict) string {
	return fmt.Sprintf("Thank you for your feedback! ✅\n\n"+
		"Analysis:\n"+
		"• Sentiment: %s\n"+
		"• Priority Level: %d/5\n"+
		"• Suggested Solution: %s\n\n"+
		"Your feedback has been recorded anonymously and will be reviewed by management.",
		strings.ToLower(string(v.Sentiment)), v.Criticality, v.Resolution)
}

func durOr(d, def time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return def
}
