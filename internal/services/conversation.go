// Package services – ConversationService
//
// This file implements ConversationService, the registration state machine.
// Each inbound text event for an identity is handled under that identity's
// FIFO lock: the stored state is re-read, the single allowed transition is
// applied and persisted, and the reply is composed. Registered identities are
// forwarded to the FeedbackPipeline.
//
// Events are never cancelled by the caller once scheduled; external calls are
// bounded by the pipeline timeouts instead.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-feedback-bot/internal/domain"
	"github.com/tbourn/go-feedback-bot/internal/keylock"
	"github.com/tbourn/go-feedback-bot/internal/repo"

	// OpenTelemetry
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultStartCommand begins registration.
const DefaultStartCommand = "/start"

// Fixed conversation texts.
const (
	RolePromptText        = "Please select your position:"
	BranchPromptText      = "Great! Now please enter your branch name:"
	BranchRepromptText    = "Please enter your branch name:"
	AlreadyRegisteredText = "You're already registered! Send your feedback message."

	// ErrorReplyText is what transports send when an event fails.
	ErrorReplyText = "Sorry, an error occurred while processing your message."
)

// Reply is the outbound message for one inbound event. Options, when set,
// are rendered by the transport as selectable choices.
type Reply struct {
	Text    string   `json:"text"`
	Options []string `json:"options,omitempty"`
}

// ConversationService drives the per-identity registration flow.
type ConversationService struct {
	DB       *gorm.DB
	Pipeline *FeedbackPipeline
	Roles    domain.RoleCatalog

	// StartCommand defaults to DefaultStartCommand.
	StartCommand string

	// Locks serializes events per identity. A nil Locks uses an internal
	// locker created on first use.
	Locks *keylock.Locker

	// Log defaults to the global zerolog logger.
	Log *zerolog.Logger

	initLocks atomic.Pointer[keylock.Locker]
}

// Job is an inbound event whose place in its identity's queue is already
// reserved. Run or Cancel must be called exactly once.
type Job struct {
	svc        *ConversationService
	identifier string
	text       string
	ticket     *keylock.Ticket
	err        error
	done       atomic.Bool
}

// HandleInboundText processes one event and returns the reply.
func (s *ConversationService) HandleInboundText(ctx context.Context, identifier, text string) (Reply, error) {
	return s.Schedule(identifier, text).Run(ctx)
}

// Schedule reserves the identity's slot without blocking. Jobs for the same
// identifier run in the order Schedule was called, whichever goroutine runs
// them.
func (s *ConversationService) Schedule(identifier, text string) *Job {
	identifier = strings.TrimSpace(identifier)
	j := &Job{svc: s, identifier: identifier, text: text}
	if identifier == "" {
		j.err = ErrEmptyIdentifier
		return j
	}
	j.ticket = s.locks().Reserve(identifier)
	return j
}

// Identifier returns the identity the job belongs to.
func (j *Job) Identifier() string { return j.identifier }

// Run waits for the identity's turn and handles the event. The caller's
// cancellation is not propagated; tracing values on ctx are kept.
func (j *Job) Run(ctx context.Context) (Reply, error) {
	if !j.done.CompareAndSwap(false, true) {
		return Reply{}, ErrJobDone
	}
	if j.err != nil {
		return Reply{}, j.err
	}
	defer j.ticket.Release()
	j.ticket.Wait()
	return j.svc.handle(context.WithoutCancel(ctx), j.identifier, j.text)
}

// Cancel withdraws a job that will not be run, letting later jobs for the
// same identity proceed.
func (j *Job) Cancel() error {
	if !j.done.CompareAndSwap(false, true) {
		return ErrJobDone
	}
	if j.ticket != nil {
		j.ticket.Release()
	}
	return nil
}

func (s *ConversationService) handle(ctx context.Context, id, text string) (Reply, error) {
	tr := otel.Tracer("services/ConversationService")
	ctx, span := tr.Start(ctx, "HandleInboundText",
		trace.WithAttributes(attribute.String("identity.id", id)),
	)
	defer span.End()

	reply, err := s.dispatch(ctx, id, text)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "inbound event failed")
	}
	return reply, err
}

// dispatch is the state machine. It must run under the identity's lock.
func (s *ConversationService) dispatch(ctx context.Context, id, text string) (Reply, error) {
	ident, err := repo.GetIdentity(ctx, s.DB, id)
	switch {
	case errors.Is(err, repo.ErrNotFound):
		ident = nil
	case err != nil:
		s.logger().Error().Err(err).Str("identity_id", id).Msg("load identity failed")
		return Reply{}, fmt.Errorf("%w: load identity: %v", ErrPersistence, err)
	}

	state := domain.StateNew
	if ident != nil {
		state = ident.State
	}
	isStart := strings.TrimSpace(text) == s.startCommand()

	switch state {
	case domain.StateNew:
		if !isStart {
			return Reply{Text: fmt.Sprintf("Welcome! Please start by typing %s", s.startCommand())}, nil
		}
		next := domain.Identity{ID: id, State: domain.StateAwaitingRole}
		if ident != nil {
			next.CreatedAt = ident.CreatedAt
		}
		if err := s.transition(ctx, state, &next); err != nil {
			return Reply{}, err
		}
		return s.rolePrompt(), nil

	case domain.StateAwaitingRole:
		role, ok := s.roles().Match(text)
		if !ok {
			return s.rolePrompt(), nil
		}
		next := *ident
		next.Role = role
		next.State = domain.StateAwaitingBranch
		if err := s.transition(ctx, state, &next); err != nil {
			return Reply{}, err
		}
		return Reply{Text: BranchPromptText}, nil

	case domain.StateAwaitingBranch:
		if strings.TrimSpace(text) == "" {
			return Reply{Text: BranchRepromptText}, nil
		}
		branch := text
		next := *ident
		next.Branch = &branch
		next.State = domain.StateRegistered
		if err := s.transition(ctx, state, &next); err != nil {
			return Reply{}, err
		}
		return Reply{Text: fmt.Sprintf(
			"Perfect! You're registered as a %s at %s branch. You can now send your feedback anonymously. Share any complaints, suggestions, or proposals!",
			next.Role, branch,
		)}, nil

	case domain.StateRegistered:
		if isStart {
			return Reply{Text: AlreadyRegisteredText}, nil
		}
		if s.Pipeline == nil {
			return Reply{}, errors.New("services: feedback pipeline not configured")
		}
		return s.Pipeline.Submit(ctx, *ident, text)

	default:
		return Reply{}, fmt.Errorf("%w: %q for identity %s", ErrUnknownState, state, id)
	}
}

// transition persists next after checking the move from current is allowed.
func (s *ConversationService) transition(ctx context.Context, from domain.State, next *domain.Identity) error {
	if !from.CanTransitionTo(next.State) {
		return fmt.Errorf("services: illegal transition %s -> %s", from, next.State)
	}
	if err := repo.UpsertIdentity(ctx, s.DB, next); err != nil {
		s.logger().Error().Err(err).
			Str("identity_id", next.ID).
			Str("from", string(from)).
			Str("to", string(next.State)).
			Msg("persist transition failed")
		return fmt.Errorf("%w: save identity: %v", ErrPersistence, err)
	}
	stateTransitions.WithLabelValues(string(from), string(next.State)).Inc()
	s.logger().Debug().
		Str("identity_id", next.ID).
		Str("from", string(from)).
		Str("to", string(next.State)).
		Msg("state transition")
	return nil
}

func (s *ConversationService) rolePrompt() Reply {
	return Reply{Text: RolePromptText, Options: s.roles().Codes()}
}

// StartCommandText returns the effective start command.
func (s *ConversationService) StartCommandText() string { return s.startCommand() }

func (s *ConversationService) startCommand() string {
	if c := strings.TrimSpace(s.StartCommand); c != "" {
		return c
	}
	return DefaultStartCommand
}

func (s *ConversationService) roles() domain.RoleCatalog {
	if s.Roles.Len() == 0 {
		return domain.DefaultRoleCatalog()
	}
	return s.Roles
}

func (s *ConversationService) locks() *keylock.Locker {
	if s.Locks != nil {
		return s.Locks
	}
	if l := s.initLocks.Load(); l != nil {
		return l
	}
	s.initLocks.CompareAndSwap(nil, keylock.New())
	return s.initLocks.Load()
}

func (s *ConversationService) logger() *zerolog.Logger {
	if s.Log != nil {
		return s.Log
	}
	return &log.Logger
}
