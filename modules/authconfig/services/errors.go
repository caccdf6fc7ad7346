package services

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jacksonlee411/authhooks/modules/authconfig/domain/types"
)

type ErrorKind string

const (
	KindFetchFailed      ErrorKind = "FETCH_FAILED"
	KindUnknownField     ErrorKind = "UNKNOWN_FIELD"
	KindValidationFailed ErrorKind = "VALIDATION_FAILED"
	KindSubmitInProgress ErrorKind = "SUBMIT_IN_PROGRESS"
	KindPermissionDenied ErrorKind = "PERMISSION_DENIED"
	KindSubmitFailed     ErrorKind = "SUBMIT_FAILED"
	KindSessionClosed    ErrorKind = "SESSION_CLOSED"
	KindSessionNotFound  ErrorKind = "SESSION_NOT_FOUND"
)

// FieldErrors maps a field to a user-facing validation message.
type FieldErrors map[types.Field]string

func (fe FieldErrors) Fields() []types.Field {
	out := make([]types.Field, 0, len(fe))
	for f := range fe {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Error is the single error type surfaced by the synchronizer.
type Error struct {
	Kind   ErrorKind
	Field  types.Field
	Fields FieldErrors
	Err    error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("authconfig: ")
	b.WriteString(strings.ToLower(string(e.Kind)))
	if e.Field != "" {
		fmt.Fprintf(&b, " (%s)", e.Field)
	}
	if len(e.Fields) > 0 {
		parts := make([]string, 0, len(e.Fields))
		for _, f := range e.Fields.Fields() {
			parts = append(parts, string(f)+": "+e.Fields[f])
		}
		b.WriteString(": ")
		b.WriteString(strings.Join(parts, "; "))
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind ErrorKind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

func KindOf(err error) (ErrorKind, bool) {
	e, ok := errors.AsType[*Error](err)
	if !ok {
		return "", false
	}
	return e.Kind, true
}

func IsKind(err error, kind ErrorKind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
