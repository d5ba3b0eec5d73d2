// Package problem defines the normalized error payload that crosses Facet's
// service boundaries: cell fetch results, HTTP error bodies, and compute
// socket failures all surface as a Problem rather than a raw error.
package problem

import (
	"context"
	"errors"
	"fmt"
)

// Well-known problem types.
const (
	TypeInternal    = "internal"
	TypeInvalid     = "invalid-argument"
	TypeNotFound    = "not-found"
	TypeUnavailable = "unavailable"
	TypeCancelled   = "cancelled"
	TypeTimeout     = "timeout"
	TypeFetch       = "fetch-failed"
)

// Problem is a normalized error: a stable machine-readable type, a short
// human-readable title, and optional detail.
type Problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Detail string `json:"detail,omitempty"`
}

// New creates a Problem.
func New(ptype, title, detail string) *Problem {
	return &Problem{Type: ptype, Title: title, Detail: detail}
}

// Newf creates a Problem with a formatted detail message.
func Newf(ptype, title, format string, args ...any) *Problem {
	return &Problem{Type: ptype, Title: title, Detail: fmt.Sprintf(format, args...)}
}

// Error implements the error interface.
func (p *Problem) Error() string {
	if p.Detail == "" {
		return p.Title
	}
	return p.Title + ": " + p.Detail
}

// From normalizes an arbitrary error into a Problem. Existing Problems pass
// through unchanged, context errors map to cancelled/timeout, and anything
// else becomes an internal Problem carrying the error text.
func From(err error) *Problem {
	if err == nil {
		return nil
	}
	var p *Problem
	if errors.As(err, &p) {
		return p
	}
	switch {
	case errors.Is(err, context.Canceled):
		return New(TypeCancelled, "request cancelled", err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return New(TypeTimeout, "request timed out", err.Error())
	default:
		return New(TypeInternal, "internal error", err.Error())
	}
}

// IsType reports whether err normalizes to a Problem of the given type.
func IsType(err error, ptype string) bool {
	var p *Problem
	return errors.As(err, &p) && p.Type == ptype
}
