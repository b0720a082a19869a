package mcp

import (
	"errors"
	"fmt"
	"strings"
)

// Kind is the caller-visible error taxonomy of spec.md §7. Collaborators
// branch on Kind via errors.As/Is, never by inspecting an error's message.
type Kind int

const (
	// KindUnclassified covers anything the classifier doesn't recognize.
	KindUnclassified Kind = iota
	// KindRetryable is transient: transport breakage or a retry-class
	// JSON-RPC error. A fresh submission is expected to succeed.
	KindRetryable
	// KindNonRetryable is a permanent JSON-RPC failure: method-not-found,
	// invalid-params, and the like.
	KindNonRetryable
	// KindVersionMismatch means initialize negotiated a protocol version
	// outside the client's accepted set.
	KindVersionMismatch
	// KindTimeout means a deadline elapsed before a response arrived.
	KindTimeout
	// KindCancelled means the caller cancelled the request explicitly.
	KindCancelled
	// KindParseError means an inbound frame failed to decode.
	KindParseError
	// KindCapabilityMissing means the operation requires a capability the
	// negotiated session context does not have.
	KindCapabilityMissing
	// KindTransportClosed means the operation raced a closed transport.
	KindTransportClosed
)

func (k Kind) String() string {
	switch k {
	case KindRetryable:
		return "retryable"
	case KindNonRetryable:
		return "non_retryable"
	case KindVersionMismatch:
		return "version_mismatch"
	case KindTimeout:
		return "timeout"
	case KindCancelled:
		return "cancelled"
	case KindParseError:
		return "parse_error"
	case KindCapabilityMissing:
		return "capability_missing"
	case KindTransportClosed:
		return "transport_closed"
	default:
		return "unclassified"
	}
}

// Error is the single error type this package raises. It wraps an
// underlying cause (if any) and is always tagged with a Kind, so a caller
// can distinguish what happened without parsing a message string.
type Error struct {
	Kind Kind
	Op   string
	Err  error

	// WantVersions/GotVersion are populated only for KindVersionMismatch, per
	// spec.md §4.5's requirement that both versions travel with the error.
	WantVersions []string
	GotVersion   string
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.Op != "" {
		b.WriteString(" ")
		b.WriteString(e.Op)
	}
	if e.Kind == KindVersionMismatch {
		fmt.Fprintf(&b, " (got %q, accepted %v)", e.GotVersion, e.WantVersions)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// newError builds an *Error of the given kind wrapping cause (which may be
// nil).
func newError(kind Kind, op string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Err: cause}
}

// KindOf reports the Kind carried by err, or KindUnclassified if err is nil
// or was not produced by this package.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnclassified
}

// IsRetryable reports whether err should be retried under spec.md §4.4's
// policy.
func IsRetryable(err error) bool {
	return KindOf(err) == KindRetryable
}

// authFailureMarkers are substrings that, when found in a JSON-RPC error's
// message or data, mark it as an authentication-adjacent failure. Per
// spec.md §3, these must surface as Retryable so a collaborator can
// re-authenticate and resubmit, even though they'd otherwise classify as
// permanent.
var authFailureMarkers = []string{"401", "unauthorized", "unauthenticated", "forbidden", "403"}

// classifyRPCError maps a JSON-RPC Error Response to a Kind, applying the
// retryable-code-range and authentication-adjacent overrides from
// spec.md §3.
func classifyRPCError(obj *ErrorObject) Kind {
	if obj == nil {
		return KindUnclassified
	}
	haystack := strings.ToLower(obj.Message)
	if obj.Data != nil {
		haystack += " " + strings.ToLower(fmt.Sprint(obj.Data))
	}
	for _, marker := range authFailureMarkers {
		if strings.Contains(haystack, marker) {
			return KindRetryable
		}
	}

	switch obj.Code {
	case CodeParseError, CodeInvalidRequest, CodeMethodNotFound, CodeInvalidParams:
		return KindNonRetryable
	case CodeInternalError:
		return KindNonRetryable
	}
	if obj.Code >= CodeServerErrorRangeStart && obj.Code <= CodeServerErrorRangeEnd {
		return KindRetryable
	}
	return KindNonRetryable
}
