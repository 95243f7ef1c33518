// Package ctxerr defines the tagged error taxonomy surfaced by the
// context engine's public API. Every fallible boundary returns one of
// these kinds (possibly wrapping a lower-level cause), never a bare
// error the caller has to string-match.
package ctxerr

import (
	"errors"
	"fmt"
)

// Kind identifies one of the engine's error categories.
type Kind string

// Error kinds.
const (
	KindNodeNotFound                 Kind = "node_not_found"
	KindUnauthorized                 Kind = "unauthorized"
	KindInvalidFrame                 Kind = "invalid_frame"
	KindFrameMetadataPolicyViolation Kind = "frame_metadata_policy_violation"
	KindMissingPromptContractField   Kind = "missing_prompt_contract_field"
	KindConfigError                  Kind = "config_error"
	KindStorageError                 Kind = "storage_error"
	KindProviderNotConfigured        Kind = "provider_not_configured"
	KindProviderAuthFailed           Kind = "provider_auth_failed"
	KindProviderRateLimit            Kind = "provider_rate_limit"
	KindProviderRequestFailed        Kind = "provider_request_failed"
	KindProviderModelNotFound        Kind = "provider_model_not_found"
	KindProviderError                Kind = "provider_error"
	KindGenerationFailed             Kind = "generation_failed"
)

// Error is the concrete error type returned across the context engine's
// public surfaces. It carries a Kind so callers (and the queue's retry
// classifier) can branch on category without parsing strings.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is supports errors.Is(err, ctxerr.New(kind, "")) style comparisons by
// matching on Kind alone.
func (e *Error) Is(target error) bool {
	var te *Error
	if errors.As(target, &te) {
		return e.Kind == te.Kind
	}
	return false
}

// New creates an *Error of the given kind with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an *Error of the given kind wrapping cause.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// KindOf extracts the Kind from err, or "" if err is not (or does not
// wrap) a *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Is reports whether err is (or wraps) an *Error of the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// NodeNotFound constructs a KindNodeNotFound error.
func NodeNotFound(nodeID fmt.Stringer) *Error {
	return New(KindNodeNotFound, "node %s not found or tombstoned", nodeID)
}

// Unauthorized constructs a KindUnauthorized error.
func Unauthorized(msg string) *Error { return New(KindUnauthorized, "%s", msg) }

// MissingPromptContractField constructs the dedicated error kind for
// writer agents missing a required prompt metadata key, so the
// generation queue can refuse such requests before any provider IO.
func MissingPromptContractField(agentID, field string) *Error {
	return New(KindMissingPromptContractField,
		"agent %q missing required prompt contract field %q", agentID, field)
}
