package mds

import (
	"net/http"
	"time"
)

const (
	DefaultHost    = "localhost"
	DefaultPort    = 9003
	DefaultTimeout = 30 * time.Second

	defaultRetries = 3
	defaultBackoff = 500 * time.Millisecond
)

// Options configures a Client. Zero values fall back to the defaults above.
type Options struct {
	Host     string
	Port     int
	Password string // MDS password; empty leaves the client unauthenticated

	// Timeout bounds every request (login, command, confirmation), retries included.
	Timeout time.Duration

	// UseHTTP selects plain HTTP. MDS serves HTTPS by default.
	UseHTTP bool

	// VerifyTLS enables certificate verification. The node ships a self-signed
	// certificate, so verification is off unless asked for.
	VerifyTLS bool

	// DisableAutoConfirm makes pending commands fail with ErrPendingCommand instead of
	// being confirmed on the caller's behalf.
	DisableAutoConfirm bool

	Retry RetryPolicy

	// Observer, when set, is called after every command with the command name (its first
	// word), the elapsed time and the outcome.
	Observer func(command string, elapsed time.Duration, err error)

	// HTTPClient overrides the transport entirely. Timeout and Retry are ignored when set.
	HTTPClient *http.Client
}

// RetryPolicy controls transport level retries. Retries never re-run authentication.
type RetryPolicy struct {
	MaxRetries int           // retries after the first attempt; negative disables retries
	Backoff    time.Duration // base delay, doubled on each retry
	Statuses   []int         // response codes that trigger a retry
}

// DefaultRetryStatuses are the statuses retried by default. Only 503 says the request was
// turned away before it ran; a 500 or a gateway error may follow a command that executed.
var DefaultRetryStatuses = []int{
	http.StatusServiceUnavailable,
}

func (o Options) withDefaults() Options {
	if o.Host == "" {
		o.Host = DefaultHost
	}
	if o.Port == 0 {
		o.Port = DefaultPort
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.Retry.MaxRetries == 0 {
		o.Retry.MaxRetries = defaultRetries
	}
	if o.Retry.Backoff <= 0 {
		o.Retry.Backoff = defaultBackoff
	}
	if o.Retry.Statuses == nil {
		o.Retry.Statuses = DefaultRetryStatuses
	}
	return o
}

func (o Options) scheme() string {
	if o.UseHTTP {
		return "http"
	}
	return "https"
}
