package store

import (
	"errors"
	"fmt"
)

// Kind classifies a store failure. Callers branch on the kind: SchemaMissing
// and RequestFailed make the failover layer retry against the fallback store,
// Conflict and NotFound are authoritative and propagate.
type Kind int

const (
	KindRequestFailed Kind = iota
	KindSchemaMissing
	KindConflict
	KindNotFound
	KindInvalid
)

// String returns the kind's wire/display name.
func (k Kind) String() string {
	switch k {
	case KindSchemaMissing:
		return "schema_missing"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	case KindInvalid:
		return "invalid"
	default:
		return "request_failed"
	}
}

// Error is the classified failure returned by every store operation.
type Error struct {
	Kind    Kind
	Op      string // e.g. "AddSchedule", "ListTodos"
	Message string // human-readable detail, shown verbatim for conflicts
	Err     error  // underlying cause, if any
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s failed: %s", e.Op, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s failed (%s)", e.Op, e.Kind)
}

// Unwrap returns the underlying error for errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewConflict builds the Conflict error for a duplicate shift assignment.
// The message format is part of the contract: it is surfaced to the end user
// unchanged.
func NewConflict(op, memberName, date string, slot TimeSlot) *Error {
	return &Error{
		Kind:    KindConflict,
		Op:      op,
		Message: fmt.Sprintf("%s already has a %s shift on %s", memberName, slot, date),
	}
}

// NewSchemaMissing reports that the expected remote collection does not
// exist yet.
func NewSchemaMissing(op string, err error) *Error {
	return &Error{Kind: KindSchemaMissing, Op: op, Err: err}
}

// NewRequestFailed wraps any other remote failure with its diagnostic.
func NewRequestFailed(op string, err error) *Error {
	return &Error{Kind: KindRequestFailed, Op: op, Err: err}
}

// NewNotFound reports an absent profile or todo.
func NewNotFound(op, detail string) *Error {
	return &Error{Kind: KindNotFound, Op: op, Message: detail}
}

// NewInvalid reports rejected input. Rule rejections are authoritative in
// the same way conflicts are: they never fall back.
func NewInvalid(op, detail string) *Error {
	return &Error{Kind: KindInvalid, Op: op, Message: detail}
}

// KindOf extracts the classification from err, defaulting to RequestFailed
// for unclassified errors.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindRequestFailed
}

// IsSchemaMissing reports whether err is classified SchemaMissing.
func IsSchemaMissing(err error) bool {
	var se *Error
	return errors.As(err, &se) && se.Kind == KindSchemaMissing
}

// IsConflict reports whether err is classified Conflict.
func IsConflict(err error) bool {
	var se *Error
	return errors.As(err, &se) && se.Kind == KindConflict
}

// IsNotFound reports whether err is classified NotFound.
func IsNotFound(err error) bool {
	var se *Error
	return errors.As(err, &se) && se.Kind == KindNotFound
}

// IsInvalid reports whether err is a rule rejection.
func IsInvalid(err error) bool {
	var se *Error
	return errors.As(err, &se) && se.Kind == KindInvalid
}

// ShouldFallback reports whether the failover layer may resolve err by
// replaying the operation against the local store. Conflicts and NotFound
// are authoritative and never fall back.
func ShouldFallback(err error) bool {
	if err == nil {
		return false
	}
	var se *Error
	if errors.As(err, &se) {
		return se.Kind == KindSchemaMissing || se.Kind == KindRequestFailed
	}
	// Unclassified errors are treated as request failures.
	return true
}
