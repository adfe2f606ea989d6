package store

import (
	"fmt"
	"strings"
)

// NormalizationError reports a programmer error encountered while
// normalizing a response payload: a missing required __typename on an
// abstract narrow, a reference to an undefined type, or similarly malformed
// input. Per spec.md §7 it is raised immediately, rejecting the offending
// payload with no partial state published.
type NormalizationError struct {
	DataID DataID
	Field  string
	Msg    string
	Err    error
}

func (e *NormalizationError) Unwrap() error { return e.Err }

func (e *NormalizationError) Error() string {
	var buf strings.Builder
	buf.WriteString("normalize")
	if e.DataID != "" {
		buf.WriteByte('/')
		buf.WriteString(string(e.DataID))
	}
	if e.Field != "" {
		buf.WriteByte('.')
		buf.WriteString(e.Field)
	}
	buf.WriteString(": ")
	buf.WriteString(e.Msg)
	if e.Err != nil {
		buf.WriteString(": ")
		buf.WriteString(e.Err.Error())
	}
	return buf.String()
}

// HandlerError reports that a handle field payload named a handle with no
// registered implementation — a fatal programmer error per spec.md §7.
type HandlerError struct {
	Handle     string
	DataID     DataID
	FieldKey   string
	HandleKey  string
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("no handler registered for handle %q (record %s, field %s -> %s)",
		e.Handle, e.DataID, e.FieldKey, e.HandleKey)
}

// OptimisticUpdateError reports that applyUpdate was given an update that is
// not one of the three recognized OptimisticUpdate variants.
type OptimisticUpdateError struct {
	Msg string
}

func (e *OptimisticUpdateError) Error() string {
	return "invalid optimistic update: " + e.Msg
}

// ReentrantRunError reports that PublishQueue.run was invoked from inside a
// subscription callback fired by a run already in progress — disallowed
// per spec.md §7.
type ReentrantRunError struct {
	Detail string
}

func (e *ReentrantRunError) Error() string {
	return "reentrant PublishQueue.run() detected: " + e.Detail
}

// panicked wraps a recovered panic from a user-supplied closure (updater or
// handler) so callers can distinguish it from an ordinary error while still
// reporting the original stack.
type panicked struct {
	reason any
	stack  string
}

func (p panicked) Error() string {
	return fmt.Sprintf("panic: %v\n\n%s", p.reason, p.stack)
}
