package core

import (
	"errors"
	"fmt"

	"valsync/internal/renderstate"
)

// Sentinels for errors.Is matching of the typed diagnostics below.
var (
	ErrMissingTemplate = errors.New("missing template node")
	ErrUnexpectedOwner = errors.New("unexpected owner")
	ErrInvariant       = errors.New("traversal invariant violated")

	// ErrBadPlaceholder reports a slot placeholder key that is not
	// `<component key>~<param>`.
	ErrBadPlaceholder = errors.New("malformed slot placeholder key")

	// ErrNoFrame reports a node reached before any frame id was seen.
	ErrNoFrame = errors.New("no frame id")
)

// MissingTemplateError reports an instance key whose last segment does not
// resolve to a template node.
type MissingTemplateError struct {
	InstanceKey string
	UUID        string
}

func (e *MissingTemplateError) Error() string {
	return fmt.Sprintf("couldn't find template node %q for instance key %q", e.UUID, e.InstanceKey)
}

// Is matches ErrMissingTemplate.
func (e *MissingTemplateError) Is(target error) bool { return target == ErrMissingTemplate }

// UnexpectedOwnerError reports a node whose owner was not visited before it.
type UnexpectedOwnerError struct {
	InstanceKey string
	OwnerKey    string
}

func (e *UnexpectedOwnerError) Error() string {
	return fmt.Sprintf("owner %q of %q is not on the traversal stack", e.OwnerKey, e.InstanceKey)
}

// Is matches ErrUnexpectedOwner.
func (e *UnexpectedOwnerError) Is(target error) bool { return target == ErrUnexpectedOwner }

// InvariantError reports a traversal bookkeeping bug.
type InvariantError struct {
	Detail string
	Err    error
}

func (e *InvariantError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invariant violated: %s: %v", e.Detail, e.Err)
	}
	return "invariant violated: " + e.Detail
}

// Is matches ErrInvariant.
func (e *InvariantError) Is(target error) bool { return target == ErrInvariant }

// Unwrap returns the underlying cause.
func (e *InvariantError) Unwrap() error { return e.Err }

func invariantf(format string, args ...any) *InvariantError {
	return &InvariantError{Detail: fmt.Sprintf(format, args...)}
}

func (e *InvariantError) withCause(err error) *InvariantError {
	e.Err = err
	return e
}

type errorCategory uint8

const (
	categoryOther errorCategory = iota
	categoryMissingTemplate
	categoryOwner
	categoryInvariant
	categoryKindMismatch
	categoryPlaceholder
	categoryFrame
)

func categorize(err error) errorCategory {
	switch {
	case errors.Is(err, ErrUnexpectedOwner):
		return categoryOwner
	case errors.Is(err, ErrInvariant):
		return categoryInvariant
	case errors.Is(err, ErrMissingTemplate):
		return categoryMissingTemplate
	case errors.Is(err, renderstate.ErrKindMismatch):
		return categoryKindMismatch
	case errors.Is(err, ErrBadPlaceholder):
		return categoryPlaceholder
	case errors.Is(err, ErrNoFrame):
		return categoryFrame
	default:
		return categoryOther
	}
}

// panicError turns a recovered value into an error.
func panicError(r any) error {
	if err, ok := r.(error); ok {
		return fmt.Errorf("recovered panic: %w", err)
	}
	return fmt.Errorf("recovered panic: %v", r)
}
