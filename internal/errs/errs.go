// Package errs defines the shared error taxonomy used across the trading
// platform's subsystems so that callers can branch on error kind without
// string matching.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an error into one of the abstract categories every
// subsystem reports against.
type Kind string

const (
	// KindInput covers malformed payloads, auth failures, and bad config.
	KindInput Kind = "input"
	// KindCapacity covers exhausted resources: no provider, no agent, full queue.
	KindCapacity Kind = "capacity"
	// KindTimeout covers deadline and call timeouts.
	KindTimeout Kind = "timeout"
	// KindIntegrity covers invariant breaches that must never occur.
	KindIntegrity Kind = "integrity"
	// KindExternal covers failures in systems we don't own (RPC, HSM, vector store).
	KindExternal Kind = "external"
	// KindTransient covers single-call failures eligible for retry/failover.
	KindTransient Kind = "transient"
)

// DomainError wraps an underlying error with a Kind and a component tag so
// that API handlers and callers can report a stable error kind plus a
// human-readable message without reaching into subsystem internals.
type DomainError struct {
	Kind      Kind
	Component string
	Message   string
	Err       error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Component, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Component, e.Message)
}

func (e *DomainError) Unwrap() error { return e.Err }

// New builds a DomainError with no wrapped cause.
func New(kind Kind, component, message string) *DomainError {
	return &DomainError{Kind: kind, Component: component, Message: message}
}

// Wrap builds a DomainError around an existing error.
func Wrap(kind Kind, component, message string, err error) *DomainError {
	return &DomainError{Kind: kind, Component: component, Message: message, Err: err}
}

// KindOf extracts the Kind from err if it (or something it wraps) is a
// *DomainError; otherwise returns "" and false.
func KindOf(err error) (Kind, bool) {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Kind, true
	}
	return "", false
}

// Is reports whether err's Kind matches kind.
func Is(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

// Sentinel errors reused by multiple subsystems (checked with errors.Is).
var (
	ErrNoProvider      = New(KindCapacity, "rpcrouter", "no eligible provider")
	ErrNoAgent         = New(KindCapacity, "tasks", "no available agent")
	ErrQueueFull       = New(KindCapacity, "tasks", "priority queue full")
	ErrCacheExhausted  = New(KindCapacity, "cache", "byte budget exhausted")
	ErrExpired         = New(KindTimeout, "messaging", "message expired")
	ErrDeadlineMissed  = New(KindTimeout, "tasks", "task deadline missed")
	ErrHSMDisconnected = New(KindExternal, "hsm", "HSM not connected")
	ErrSignatureBad    = New(KindIntegrity, "multisig", "signature verification failed")
	ErrTornCacheEntry  = New(KindIntegrity, "cache", "torn cache entry observed")
)
