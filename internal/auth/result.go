package auth

import (
	"strings"

	"github.com/aelexs/authkit/internal/domain"
)

// Result is the terminal outcome of a login attempt: Success, *Error or
// Cancellation.
type Result interface {
	isResult()
}

// Success ends an attempt with a session token. Username is empty when
// neither the backend nor the caller supplied one.
type Success struct {
	Token    string
	UserID   string
	Username string
}

// Error ends an attempt with a failure. Kind is one of the domain outcome
// sentinels (domain.ErrWrongCode, domain.ErrNetwork, ...); Cause is the
// underlying fault, if any.
//
// *Error also implements error so inner steps of an attempt can return it
// and have it reach the attempt boundary unchanged.
type Error struct {
	Kind    error
	Message string
	Cause   error
}

// Cancellation ends an attempt the caller abandoned.
type Cancellation struct{}

func (Success) isResult()      {}
func (*Error) isResult()       {}
func (Cancellation) isResult() {}

// NewError builds an Error of the given kind whose message is the kind's text.
func NewError(kind, cause error) *Error {
	e := &Error{Kind: kind, Cause: cause}
	if kind != nil {
		e.Message = kind.Error()
	}
	return e
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	if b.Len() == 0 && e.Kind != nil {
		b.WriteString(e.Kind.Error())
	}
	if e.Cause != nil {
		if b.Len() > 0 {
			b.WriteString(": ")
		}
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap exposes both Kind and Cause to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	return errs
}

// KindOf labels r for metrics and logs.
func KindOf(r Result) domain.ResultKind {
	switch r.(type) {
	case Success:
		return domain.ResultKindSuccess
	case *Error:
		return domain.ResultKindError
	case Cancellation:
		return domain.ResultKindCancellation
	default:
		return ""
	}
}
