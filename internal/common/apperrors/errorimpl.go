package apperrors

import (
	"errors"
	"fmt"
	"strings"
)

// appError is the only implementation of Error.
type appError struct {
	msg           string  // primary error message
	base          error   // error this one was derived from
	wrappedErrors []error // additional causes
	statuscode    int     // transport status code, if any
}

func (e *appError) Error() string {
	return e.msg
}

// ErrorAll returns the message followed by every wrapped cause that adds information.
// Causes whose text equals the message are skipped.
func (e *appError) ErrorAll() string {
	var b strings.Builder
	b.WriteString(e.msg)
	for _, err := range e.wrappedErrors {
		if err == nil || err.Error() == e.msg {
			continue
		}
		b.WriteString("; ")
		b.WriteString(err.Error())
	}
	return b.String()
}

func (e *appError) Unwrap() error {
	return e.base
}

func (e *appError) UnwrapAll() []error {
	return e.wrappedErrors
}

func (e *appError) Msg(msg string) Error {
	return &appError{
		msg:           msg,
		base:          e,
		wrappedErrors: append([]error{e}, e.wrappedErrors...),
		statuscode:    e.statuscode,
	}
}

func (e *appError) Msgf(format string, args ...any) Error {
	return e.Msg(fmt.Sprintf(format, args...))
}

func (e *appError) New(msg string) Error {
	return &appError{
		msg:        msg,
		base:       e,
		statuscode: e.statuscode,
	}
}

func (e *appError) MsgErr(msg string, errs ...error) Error {
	return &appError{
		msg:           msg,
		base:          e,
		wrappedErrors: append([]error{e}, errs...),
		statuscode:    e.statuscode,
	}
}

func (e *appError) Err(errs ...error) Error {
	return &appError{
		msg:           e.msg,
		base:          e,
		wrappedErrors: append([]error{e}, errs...),
		statuscode:    e.statuscode,
	}
}

func (e *appError) SetStatusCode(code int) Error {
	cp := *e
	cp.statuscode = code
	return &cp
}

func (e *appError) StatusCode() int {
	return e.statuscode
}

// New creates a root error.
func New(msg string) Error {
	return &appError{
		msg: msg,
	}
}

// Is matches the target against the base chain and every wrapped cause.
func (e *appError) Is(target error) bool {
	if target == nil {
		return false
	}
	if errors.Is(e.base, target) {
		return true
	}
	for _, err := range e.wrappedErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// StatusCodeOf returns the status code carried by err or any Error in its chain.
func StatusCodeOf(err error) int {
	var ae Error
	if errors.As(err, &ae) {
		if code := ae.StatusCode(); code != 0 {
			return code
		}
		for _, w := range ae.UnwrapAll() {
			if w == err {
				continue
			}
			if code := StatusCodeOf(w); code != 0 {
				return code
			}
		}
	}
	return 0
}
