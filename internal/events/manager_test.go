package events

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tansive/minima-mcp/internal/store"
)

func newTestManager(t *testing.T, d Deliverer) *Manager {
	t.Helper()
	m := NewManager(ManagerOptions{HistorySize: 100, Store: store.NewMemoryStore(), Webhooks: d})
	m.Start(context.Background())
	t.Cleanup(m.Close)
	return m
}

func TestSubscribeValidation(t *testing.T) {
	m := newTestManager(t, nil)
	ctx := context.Background()

	_, err := m.Subscribe(ctx, SubscribeRequest{})
	assert.ErrorIs(t, err, ErrInvalidEventType)

	_, err = m.Subscribe(ctx, SubscribeRequest{EventTypes: []string{"NEWBLOCK", "SOMETHING"}})
	assert.ErrorIs(t, err, ErrInvalidEventType)

	_, err = m.Subscribe(ctx, SubscribeRequest{EventTypes: []string{"NEWBLOCK"}, WebhookURL: "ftp://x"})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	sub, err := m.Subscribe(ctx, SubscribeRequest{EventTypes: []string{"NEWBLOCK"}, ID: "mine"})
	require.NoError(t, err)
	assert.Equal(t, "mine", sub.ID)
	assert.True(t, sub.Active)

	generated, err := m.Subscribe(ctx, SubscribeRequest{EventTypes: []string{"MAXIMA"}})
	require.NoError(t, err)
	assert.Contains(t, generated.ID, "sub_")

	subs, err := m.Subscriptions(ctx)
	require.NoError(t, err)
	assert.Len(t, subs, 2)

	require.NoError(t, m.Unsubscribe(ctx, "mine"))
	assert.ErrorIs(t, m.Unsubscribe(ctx, "mine"), ErrNotFound)
}

func TestPollAdvancesCursor(t *testing.T) {
	m := newTestManager(t, nil)
	ctx := context.Background()

	m.Record(NewBlock, map[string]int{"block": 1})
	sub, err := m.Subscribe(ctx, SubscribeRequest{EventTypes: []string{"NEWBLOCK", "MAXIMA"}})
	require.NoError(t, err)

	evs, err := m.Poll(ctx, sub.ID)
	require.NoError(t, err)
	assert.Empty(t, evs, "events before the subscription are not replayed")

	m.Record(NewBlock, map[string]int{"block": 2})
	m.Record(NewBalance, map[string]string{})
	m.Record(Maxima, map[string]string{"from": "0xAB"})

	evs, err = m.Poll(ctx, sub.ID)
	require.NoError(t, err)
	require.Len(t, evs, 2)
	assert.Equal(t, NewBlock, evs[0].Type)
	assert.Equal(t, Maxima, evs[1].Type)

	evs, err = m.Poll(ctx, sub.ID)
	require.NoError(t, err)
	assert.Empty(t, evs)

	recent, err := m.Poll(ctx, "")
	require.NoError(t, err)
	assert.Len(t, recent, 4)

	_, err = m.Poll(ctx, "unknown")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestIngest(t *testing.T) {
	m := newTestManager(t, nil)
	e, err := m.Ingest("maxima", json.RawMessage(`{"from":"MxG1","application":"chat","data":"hi"}`))
	require.NoError(t, err)
	assert.Equal(t, Maxima, e.Type)
	assert.Equal(t, 1, m.History().Len())

	_, err = m.Ingest("BOGUS", nil)
	assert.ErrorIs(t, err, ErrInvalidEventType)
	_, err = m.Ingest("MINING", json.RawMessage(`{broken`))
	assert.ErrorIs(t, err, ErrInvalidRequest)

	e, err = m.Ingest("MINING", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(e.Data))
}

func TestWatchTracksActivity(t *testing.T) {
	m := newTestManager(t, nil)
	ctx := context.Background()

	_, err := m.WatchAddress(ctx, " ", nil)
	assert.ErrorIs(t, err, ErrInvalidRequest)

	w, err := m.WatchAddress(ctx, "0xADDR1", nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultWatchTypes, w.EventTypes)
	other, err := m.WatchAddress(ctx, "0xADDR2", []string{"MAXIMA"})
	require.NoError(t, err)

	m.Record(NewBlock, map[string]int{"block": 5})
	m.Record(NewBalance, map[string]string{"address": "0xADDR1"})
	m.Record(NewBalance, map[string]string{"address": "0xOTHER"})
	m.Record(Maxima, map[string]string{"address": "0xADDR2"})

	require.Eventually(t, func() bool {
		watches, err := m.Watches(ctx)
		if err != nil || len(watches) != 2 {
			return false
		}
		byID := map[string]Watch{}
		for _, w := range watches {
			byID[w.ID] = w
		}
		return len(byID[w.ID].Activity) == 2 && len(byID[other.ID].Activity) == 1
	}, time.Second, 10*time.Millisecond)

	addr, err := m.Unwatch(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, "0xADDR1", addr)
	_, err = m.Unwatch(ctx, w.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStats(t *testing.T) {
	m := newTestManager(t, nil)
	ctx := context.Background()
	m.Record(NewBlock, nil)
	m.Record(NewBlock, nil)
	m.Record(Timer10s, nil)
	_, err := m.Subscribe(ctx, SubscribeRequest{EventTypes: []string{"NEWBLOCK"}})
	require.NoError(t, err)
	_, err = m.WatchAddress(ctx, "0x1", nil)
	require.NoError(t, err)

	s, err := m.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, s.TotalEvents)
	assert.Equal(t, 2, s.EventsByType[NewBlock])
	assert.Equal(t, 3, s.RecentEvents1h)
	assert.Equal(t, 1, s.ActiveSubscriptions)
	assert.Equal(t, 1, s.WatchedAddresses)
}

func TestWebhookDelivery(t *testing.T) {
	var mu sync.Mutex
	var payloads []WebhookPayload
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		body, _ := io.ReadAll(r.Body)
		var p WebhookPayload
		if err := json.Unmarshal(body, &p); err == nil {
			mu.Lock()
			payloads = append(payloads, p)
			mu.Unlock()
		}
		assert.Equal(t, "NEWBLOCK", r.Header.Get("X-Minima-Event"))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	sender := NewWebhookSender(time.Second, 2)
	sender.backoff = time.Millisecond
	m := newTestManager(t, sender)
	ctx := context.Background()

	sub, err := m.Subscribe(ctx, SubscribeRequest{EventTypes: []string{"NEWBLOCK"}, WebhookURL: srv.URL})
	require.NoError(t, err)
	m.Record(NewBalance, nil)
	m.Record(NewBlock, map[string]int{"block": 9})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(payloads) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, sub.ID, payloads[0].SubscriptionID)
	assert.Equal(t, NewBlock, payloads[0].Event.Type)

	require.Eventually(t, func() bool {
		subs, _ := m.Subscriptions(ctx)
		return len(subs) == 1 && subs[0].Delivered == 1
	}, time.Second, 10*time.Millisecond)
}

func TestWebhookClientErrorNotRetried(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusGone)
	}))
	defer srv.Close()

	sender := NewWebhookSender(time.Second, 3)
	sender.backoff = time.Millisecond
	err := sender.Deliver(context.Background(), &Subscription{ID: "s", WebhookURL: srv.URL}, Event{Type: NewBlock})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDelivery)
	assert.EqualValues(t, 1, attempts.Load())
}
