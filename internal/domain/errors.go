package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidValves signals a valve value that failed validation.
	ErrInvalidValves = errors.New("invalid valve configuration")
	// ErrEmptyConversation signals a request without a user message.
	ErrEmptyConversation = errors.New("conversation has no user message")
	// ErrNoToolCall signals an extraction response without a usable tool call.
	ErrNoToolCall = errors.New("no tool call in model response")
	// ErrIndexUnavailable signals an activity index transport or server failure.
	ErrIndexUnavailable = errors.New("activity index unavailable")
	// ErrIndexRejected signals the activity index refused the search parameters.
	ErrIndexRejected = errors.New("activity index rejected request")
	// ErrCompletionFailed signals a completion backend failure.
	ErrCompletionFailed = errors.New("completion backend error")
	// ErrTokenBudgetExceeded signals an exhausted LLM token budget.
	ErrTokenBudgetExceeded = errors.New("token budget exceeded")
)

// ValveError wraps ErrInvalidValves with the offending valve name.
type ValveError struct {
	Name   string
	Reason string
}

func (e *ValveError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrInvalidValves.Error(), e.Name, e.Reason)
}

func (e *ValveError) Unwrap() error { return ErrInvalidValves }

// NewValveError creates a validation error for a single valve.
func NewValveError(name, reason string) error {
	return &ValveError{Name: name, Reason: reason}
}
