package ai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"strings"
)

// TransportKind categorizes failures of the call to the model service.
type TransportKind string

const (
	TransportConnection   TransportKind = "connection"
	TransportTimeout      TransportKind = "timeout"
	TransportServiceError TransportKind = "service-error"
)

// TransportFailure is any failure to obtain a usable text body from the model
// service: connection errors, timeouts, non-2xx statuses, and responses whose
// outer envelope does not carry the expected text path.
type TransportFailure struct {
	Kind   TransportKind
	Status int // HTTP status, set for service-error
	Err    error
}

func (e *TransportFailure) Error() string {
	if e.Kind == TransportServiceError && e.Status != 0 {
		return fmt.Sprintf("model service: %s (status %d): %v", e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("model service: %s: %v", e.Kind, e.Err)
}

func (e *TransportFailure) Unwrap() error { return e.Err }

// retryable reports whether another attempt could plausibly succeed.
// Only connection errors and timeouts are retried; a status error would
// come back the same.
func (e *TransportFailure) retryable() bool {
	return e.Kind == TransportConnection || e.Kind == TransportTimeout
}

// MalformedResponse means the model returned a text body that is not valid
// structured data. Never retried.
type MalformedResponse struct {
	Err     error
	Preview string
}

func (e *MalformedResponse) Error() string {
	return fmt.Sprintf("malformed model response: %v", e.Err)
}

func (e *MalformedResponse) Unwrap() error { return e.Err }

// UnrecognizedResponseShape means the body parsed but reply_components was
// found neither at the top level nor under any known wrapper key. Keys holds
// the top-level keys actually present, for diagnostics.
type UnrecognizedResponseShape struct {
	Keys []string
}

func (e *UnrecognizedResponseShape) Error() string {
	return fmt.Sprintf("unrecognized model response shape, top-level keys: [%s]", strings.Join(e.Keys, ", "))
}

// InvalidComponent means reply_components was found but one of its elements
// does not satisfy the component contract. Index is -1 when the value as a
// whole is not a usable sequence.
type InvalidComponent struct {
	Index  int
	Reason string
}

func (e *InvalidComponent) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("invalid reply_components: %s", e.Reason)
	}
	return fmt.Sprintf("invalid reply component at index %d: %s", e.Index, e.Reason)
}

// ValidationError rejects caller input before anything is attempted. It is
// the only error surfaced directly from the reply pipeline.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// PersistenceFailure wraps a failed collaborator write.
type PersistenceFailure struct {
	Op  string
	Err error
}

func (e *PersistenceFailure) Error() string {
	return fmt.Sprintf("persistence: %s: %v", e.Op, e.Err)
}

func (e *PersistenceFailure) Unwrap() error { return e.Err }

// classifyTransportErr maps an http.Client error to a transport failure kind.
func classifyTransportErr(err error) *TransportFailure {
	kind := TransportConnection
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		kind = TransportTimeout
	}
	return &TransportFailure{Kind: kind, Err: err}
}

func sortedKeys(doc map[string]any) []string {
	keys := make([]string, 0, len(doc))
	for k := range doc {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func containsAny(s string, patterns ...string) bool {
	lower := strings.ToLower(s)
	for _, p := range patterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

func preview(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
