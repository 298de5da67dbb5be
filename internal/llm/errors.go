// Package llm contains the provider key store, the HTTP client for
// chat-completion providers, and the failover router that selects a
// provider and key for each outbound call.
package llm

import (
	"errors"
	"fmt"
)

// FailureKind classifies an upstream call failure for routing decisions.
type FailureKind int

const (
	// FailureOther is an unclassified error; it propagates immediately.
	FailureOther FailureKind = iota
	// FailureRateLimited is HTTP 429: the key is done for the day.
	FailureRateLimited
	// FailureAuth is HTTP 401/403: the key is unusable for the day.
	FailureAuth
	// FailureUnavailable is a timeout or 5xx: the key cools down briefly.
	FailureUnavailable
)

var (
	// ErrNoCapacity means no provider has an eligible key.
	ErrNoCapacity = errors.New("no provider capacity")
	// ErrCallFailed means all routing attempts were exhausted.
	ErrCallFailed = errors.New("llm call failed")
)

// CallError wraps an upstream failure with its routing classification.
type CallError struct {
	Kind       FailureKind
	StatusCode int
	Err        error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("llm call error (status %d): %v", e.StatusCode, e.Err)
}

func (e *CallError) Unwrap() error { return e.Err }

// Classify returns the failure kind for an error, FailureOther when the
// error is not a CallError.
func Classify(err error) FailureKind {
	var ce *CallError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return FailureOther
}
