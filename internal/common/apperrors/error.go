// Package apperrors provides the chainable error type shared by every package in the server.
// An Error carries a message, an optional status code and a list of wrapped causes. Errors
// derived from one another stay comparable with errors.Is, so a package can expose a single
// root error and a tree of more specific sentinels beneath it.
package apperrors

// Error is the application error interface. All derivation methods return a new Error and
// leave the receiver untouched, so package-level sentinels can be shared safely.
type Error interface {
	error
	Unwrap() error // support for errors.Is / errors.As

	New(msg string) Error                  // new error with msg, derived from the receiver
	Msg(msg string) Error                  // new message, receiver kept as a cause
	Msgf(format string, args ...any) Error // Msg with formatting
	MsgErr(msg string, err ...error) Error // new message plus extra causes
	Err(err ...error) Error                // same message plus extra causes
	SetStatusCode(int) Error               // copy with a status code
	StatusCode() int                       // status code, 0 when unset
	ErrorAll() string                      // message followed by the causes
	UnwrapAll() []error                    // all causes in insertion order
}
