package vamana

import "fmt"

// Kind names one of the typed error conditions the core surfaces to the
// driver: a typed error per failure mode satisfying errors.Unwrap rather
// than bare sentinel errors.
type Kind string

const (
	// KindDuplicateTag means a tag passed to Insert already resolves to a slot.
	KindDuplicateTag Kind = "DuplicateTag"
	// KindUnknownTag means a tag passed to LazyDelete does not resolve.
	KindUnknownTag Kind = "UnknownTag"
	// KindCapacity means no free or new slot is available.
	KindCapacity Kind = "Capacity"
	// KindDimensionMismatch means a vector's length differs from the index's dimension.
	KindDimensionMismatch Kind = "DimensionMismatch"
	// KindIOFailure means a snapshot read or write failed.
	KindIOFailure Kind = "IOFailure"
	// KindFileSizeMismatch means an input vector file's size disagrees with its header.
	KindFileSizeMismatch Kind = "FileSizeMismatch"
	// KindInvalidConfig means a configuration value is invalid or inconsistent.
	KindInvalidConfig Kind = "InvalidConfig"
)

// Error is the typed error every core-level failure is reported as. The
// original cause, if any, is reachable via errors.Unwrap.
type Error struct {
	kind  Kind
	Msg   string
	cause error
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return string(e.kind)
	}
	return fmt.Sprintf("%s: %s", e.kind, e.Msg)
}

// Kind reports which of the core's typed error conditions this is.
func (e *Error) Kind() string { return string(e.kind) }

func (e *Error) Unwrap() error { return e.cause }

func newError(kind Kind, msg string) *Error {
	return &Error{kind: kind, Msg: msg}
}

func wrapError(kind Kind, msg string, cause error) *Error {
	return &Error{kind: kind, Msg: msg, cause: cause}
}
