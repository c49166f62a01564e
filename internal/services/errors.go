// Package services defines the business logic of the feedback bot: the
// registration conversation, the feedback pipeline and the admin queries.
// This file centralizes common service-level error values so that they can be
// consistently returned by service methods and checked by callers.
//
// Translation into user-facing replies or HTTP status codes is performed by
// the transports and handlers.
package services

import "errors"

// Conversation errors.
var (
	// ErrPersistence wraps any store failure that aborts the current inbound
	// event. The event can be retried: state is re-read before each transition.
	ErrPersistence = errors.New("persistence failure")

	// ErrEmptyIdentifier is returned when an inbound event carries no identity.
	ErrEmptyIdentifier = errors.New("identifier is empty")

	// ErrUnknownState is returned when a stored identity has a state outside
	// the registration order.
	ErrUnknownState = errors.New("identity has unknown state")

	// ErrJobDone is returned when a scheduled job is run or cancelled twice.
	ErrJobDone = errors.New("job already finished")
)

// Admin errors.
var (
	// ErrFeedbackNotFound indicates that the requested feedback item does not exist.
	ErrFeedbackNotFound = errors.New("feedback not found")

	// ErrInvalidQuery is returned for out-of-range filter or sort parameters.
	ErrInvalidQuery = errors.New("invalid query")
)
