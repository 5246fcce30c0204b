// Package apierr holds the error taxonomy shared by the gateway, the updater
// and the CLI.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	Unknown Kind = iota
	Network
	Auth
	Validation
	NotFound
	Server
)

func (k Kind) String() string {
	switch k {
	case Network:
		return "network"
	case Auth:
		return "auth"
	case Validation:
		return "validation"
	case NotFound:
		return "not found"
	case Server:
		return "server"
	default:
		return "unknown"
	}
}

type Error struct {
	Kind    Kind
	Op      string
	Status  int
	Message string
	Field   string // offending input field for client-side validation
	Err     error
}

var (
	ErrNetwork    = &Error{Kind: Network}
	ErrAuth       = &Error{Kind: Auth}
	ErrValidation = &Error{Kind: Validation}
	ErrNotFound   = &Error{Kind: NotFound}
	ErrServer     = &Error{Kind: Server}
)

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if msg == "" {
		msg = e.Kind.String() + " error"
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, msg)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so errors.Is(err, ErrNotFound) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}

func IsNotFound(err error) bool {
	return KindOf(err) == NotFound
}

func IsAuth(err error) bool {
	return KindOf(err) == Auth
}

// FromStatus classifies a non-2xx response.
func FromStatus(op string, status int, message string) *Error {
	if message == "" {
		message = fmt.Sprintf("HTTP %d", status)
	}
	e := &Error{Op: op, Status: status, Message: message}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		e.Kind = Auth
	case status == http.StatusNotFound:
		e.Kind = NotFound
	case status >= 400 && status < 500:
		e.Kind = Validation
	default:
		e.Kind = Server
	}
	return e
}

func NewNetwork(op string, err error) *Error {
	return &Error{Kind: Network, Op: op, Err: err}
}

func Validationf(field, format string, args ...interface{}) *Error {
	return &Error{Kind: Validation, Field: field, Message: fmt.Sprintf(format, args...)}
}

func NotFoundf(format string, args ...interface{}) *Error {
	return &Error{Kind: NotFound, Message: fmt.Sprintf(format, args...)}
}
