package events

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/rs/zerolog/log"
)

// WebhookPayload is the JSON body POSTed to a subscription's webhook.
type WebhookPayload struct {
	SubscriptionID string `json:"subscription_id"`
	Event          Event  `json:"event"`
}

// WebhookSender POSTs events with bounded retries. Server errors, 429 and transport
// failures are retried; other client errors are not.
type WebhookSender struct {
	client  *http.Client
	retries uint
	backoff time.Duration
}

func NewWebhookSender(timeout time.Duration, retries int) *WebhookSender {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if retries < 0 {
		retries = 0
	}
	return &WebhookSender{
		client:  &http.Client{Timeout: timeout},
		retries: uint(retries),
		backoff: 200 * time.Millisecond,
	}
}

type webhookStatusError struct {
	code int
	body string
}

func (e *webhookStatusError) Error() string {
	return fmt.Sprintf("webhook answered %d: %s", e.code, e.body)
}

func (s *WebhookSender) Deliver(ctx context.Context, sub *Subscription, e Event) error {
	body, err := json.Marshal(WebhookPayload{SubscriptionID: sub.ID, Event: e})
	if err != nil {
		return ErrDelivery.MsgErr("unable to encode webhook payload", err)
	}

	err = retry.Do(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.WebhookURL, bytes.NewReader(body))
		if err != nil {
			return retry.Unrecoverable(err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Minima-Event", string(e.Type))

		resp, err := s.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}
		serr := &webhookStatusError{code: resp.StatusCode, body: string(excerpt)}
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return serr
		}
		return retry.Unrecoverable(serr)
	},
		retry.Attempts(s.retries+1),
		retry.Delay(s.backoff),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			log.Debug().Str("subscription_id", sub.ID).Uint("retry", n+1).Err(err).Msg("retrying webhook")
		}),
	)
	if err != nil {
		return ErrDelivery.MsgErr("webhook delivery to "+sub.WebhookURL+" failed", err)
	}
	return nil
}
