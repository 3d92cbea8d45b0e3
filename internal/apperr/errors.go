// Package apperr defines the error kinds shared by every layer and a
// structured error type that carries the kind together with its context.
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound              = errors.New("not found")
	ErrConflict              = errors.New("conflicting write")
	ErrAlreadyExists         = errors.New("already exists")
	ErrInvalidArgument       = errors.New("invalid argument")
	ErrMalformedInput        = errors.New("malformed input")
	ErrInsufficientData      = errors.New("insufficient data")
	ErrDependencyUnavailable = errors.New("dependency unavailable")
)

// NoOffset marks an Error that is not tied to a byte position.
const NoOffset int64 = -1

// Error is a failure of a known kind. Kind is one of the sentinels above and
// is matched through errors.Is.
type Error struct {
	Kind   error
	Op     string
	Key    string
	Offset int64
	Err    error
}

// New builds an Error of the given kind for op.
func New(kind error, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Offset: NoOffset, Err: err}
}

// Malformed builds a MalformedInput error positioned at offset.
func Malformed(op string, offset int64, format string, args ...any) *Error {
	return &Error{
		Kind:   ErrMalformedInput,
		Op:     op,
		Offset: offset,
		Err:    fmt.Errorf(format, args...),
	}
}

// NotFound builds a NotFound error for key.
func NotFound(op, key string) *Error {
	return &Error{Kind: ErrNotFound, Op: op, Key: key, Offset: NoOffset}
}

// WithKey returns a copy of e annotated with key.
func (e *Error) WithKey(key string) *Error {
	c := *e
	c.Key = key
	return &c
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	if e.Key != "" {
		b.WriteString(e.Key)
		b.WriteString(": ")
	}
	if e.Kind != nil {
		b.WriteString(e.Kind.Error())
	} else {
		b.WriteString("error")
	}
	if e.Offset >= 0 {
		fmt.Fprintf(&b, " at offset %d", e.Offset)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

var kinds = []struct {
	err  error
	name string
}{
	{ErrMalformedInput, "malformed_input"},
	{ErrNotFound, "not_found"},
	{ErrInsufficientData, "insufficient_data"},
	{ErrConflict, "conflicting_write"},
	{ErrDependencyUnavailable, "dependency_unavailable"},
	{ErrAlreadyExists, "already_exists"},
	{ErrInvalidArgument, "invalid_argument"},
}

// KindOf returns the sentinel kind err matches, or nil.
func KindOf(err error) error {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.err
		}
	}
	return nil
}

// KindName returns a stable snake_case name for the kind of err.
// Errors without a known kind are reported as "internal".
func KindName(err error) string {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return "internal"
}
