package mds

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"slices"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/rs/zerolog/log"
)

const maxRetryDelay = 8 * time.Second

// newHTTPClient builds the pooled client shared by every request of a Client.
func newHTTPClient(opts Options) *http.Client {
	if opts.HTTPClient != nil {
		return opts.HTTPClient
	}
	base := http.DefaultTransport.(*http.Transport).Clone()
	if !opts.VerifyTLS {
		base.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: true,
		}
	}
	var rt http.RoundTripper = base
	if opts.Retry.MaxRetries > 0 {
		rt = &retryTransport{base: base, policy: opts.Retry}
	}
	return &http.Client{
		Transport: rt,
		Timeout:   opts.Timeout,
	}
}

// retryStatusError marks a response whose status is in the retry list.
type retryStatusError struct {
	code int
}

func (e *retryStatusError) Error() string {
	return fmt.Sprintf("retryable status %d", e.code)
}

// retryTransport replays a request with exponential backoff when the node never received
// it (dial failures) or answered with a retryable status. Errors after the connection was
// made are not replayed: every command is a POST and the node may already have run it.
// When retries run out on a status, the last response is returned as is so the caller
// sees the real status and body.
type retryTransport struct {
	base   http.RoundTripper
	policy RetryPolicy
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	var last *http.Response
	attempt := 0

	err := retry.Do(func() error {
		if last != nil {
			io.Copy(io.Discard, last.Body)
			last.Body.Close()
			last = nil
		}
		r := req
		if attempt > 0 && req.Body != nil {
			if req.GetBody == nil {
				return retry.Unrecoverable(errors.New("request body cannot be replayed"))
			}
			body, err := req.GetBody()
			if err != nil {
				return retry.Unrecoverable(err)
			}
			r = req.Clone(req.Context())
			r.Body = body
		}
		attempt++

		resp, err := t.base.RoundTrip(r)
		if err != nil {
			return err
		}
		last = resp
		if slices.Contains(t.policy.Statuses, resp.StatusCode) {
			return &retryStatusError{code: resp.StatusCode}
		}
		return nil
	},
		retry.Attempts(uint(t.policy.MaxRetries)+1),
		retry.Delay(t.policy.Backoff),
		retry.MaxDelay(maxRetryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.Context(req.Context()),
		retry.RetryIf(replayable),
		retry.OnRetry(func(n uint, err error) {
			log.Debug().Str("url", req.URL.Path).Uint("retry", n+1).Err(err).Msg("retrying node request")
		}),
	)

	var statusErr *retryStatusError
	if err != nil && errors.As(err, &statusErr) && last != nil {
		return last, nil
	}
	if err != nil {
		if last != nil {
			last.Body.Close()
		}
		return nil, err
	}
	return last, nil
}

// replayable reports whether a failed attempt is safe to send again.
func replayable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var statusErr *retryStatusError
	if errors.As(err, &statusErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}
