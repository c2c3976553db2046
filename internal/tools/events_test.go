package tools

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tansive/minima-mcp/internal/events"
)

func TestSubscribeAndPoll(t *testing.T) {
	h := newHarness(t)
	// Recorded before subscribing, so never polled.
	h.events.Record(events.NewBlock, map[string]any{"block": 1})

	env := h.ok(t, "subscribe_to_events", map[string]any{"event_types": []any{"newblock", "MAXIMA"}})
	id := env.Get("data.subscription_id").String()
	require.NotEmpty(t, id)
	assert.Equal(t, []any{"NEWBLOCK", "MAXIMA"}, env.Get("data.event_types").Value())
	assert.Equal(t, "Subscribed to 2 event types", env.Get("message").String())

	h.events.Record(events.NewBlock, map[string]any{"block": 2})
	h.events.Record(events.NewBalance, map[string]any{"balance": "5"})

	env = h.ok(t, "poll_events", map[string]any{"subscription_id": id})
	assert.Equal(t, int64(1), env.Get("data.count").Int())
	assert.Equal(t, int64(2), env.Get("data.events.0.data.block").Int())
	assert.Equal(t, id, env.Get("data.subscription_id").String())

	env = h.ok(t, "poll_events", map[string]any{"subscription_id": id})
	assert.Equal(t, int64(0), env.Get("data.count").Int())

	env = h.ok(t, "poll_events", nil)
	assert.Equal(t, int64(3), env.Get("data.count").Int())
	assert.False(t, env.Get("data.subscription_id").Exists())

	env = h.ok(t, "list_event_subscriptions", nil)
	assert.Equal(t, int64(1), env.Get("data.count").Int())

	h.ok(t, "unsubscribe_from_events", map[string]any{"subscription_id": id})
	msg := h.fail(t, "unsubscribe_from_events", map[string]any{"subscription_id": id})
	assert.Equal(t, "Subscription "+id+" not found", msg)

	msg = h.fail(t, "poll_events", map[string]any{"subscription_id": id})
	assert.Equal(t, "Subscription "+id+" not found", msg)
}

func TestSubscribeValidation(t *testing.T) {
	h := newHarness(t)

	msg := h.fail(t, "subscribe_to_events", map[string]any{"event_types": []any{"NEWBLOCK", "BOGUS"}})
	assert.Equal(t, "invalid event types: [BOGUS]", msg)

	msg = h.fail(t, "subscribe_to_events", map[string]any{"event_types": []any{}})
	assert.Contains(t, msg, "event_types")

	msg = h.fail(t, "subscribe_to_events", map[string]any{"event_types": []any{"NEWBLOCK"}, "webhook_url": "ftp://x"})
	assert.Contains(t, msg, "webhook_url must be an http(s) URL")

	env := h.ok(t, "subscribe_to_events", map[string]any{"event_types": []any{"NEWBLOCK"}, "subscription_id": "mine"})
	assert.Equal(t, "mine", env.Get("data.subscription_id").String())
}

func TestEventHistory(t *testing.T) {
	h := newHarness(t)
	for i := 1; i <= 3; i++ {
		h.events.Record(events.NewBlock, map[string]any{"block": i})
	}
	h.events.Record(events.MinimaLog, map[string]any{"message": "hello"})

	env := h.ok(t, "get_event_history", map[string]any{"event_type": "NEWBLOCK", "limit": 2})
	require.Equal(t, int64(2), env.Get("data.count").Int())
	assert.Equal(t, int64(2), env.Get("data.events.0.data.block").Int())
	assert.Equal(t, int64(3), env.Get("data.events.1.data.block").Int())

	env = h.ok(t, "get_event_history", nil)
	assert.Equal(t, int64(4), env.Get("data.count").Int())

	future := time.Now().Add(time.Hour).UTC().Format(time.RFC3339)
	env = h.ok(t, "get_event_history", map[string]any{"start_time": future})
	assert.Equal(t, int64(0), env.Get("data.count").Int())

	msg := h.fail(t, "get_event_history", map[string]any{"start_time": "yesterday"})
	assert.Equal(t, "start_time is not a timestamp: yesterday", msg)

	msg = h.fail(t, "get_event_history", map[string]any{"limit": 0})
	assert.Equal(t, "limit must be at least 1", msg)
}

func TestParseTime(t *testing.T) {
	for _, s := range []string{"2025-01-02T03:04:05Z", "2025-01-02T03:04:05.123", "2025-01-02T03:04:05+02:00", "2025-01-02"} {
		got, err := parseTime("start_time", s)
		require.NoError(t, err, s)
		assert.Equal(t, 2025, got.Year(), s)
	}
	got, err := parseTime("start_time", "")
	require.NoError(t, err)
	assert.True(t, got.IsZero())
}

func TestWatchAddress(t *testing.T) {
	h := newHarness(t)

	env := h.ok(t, "watch_address", map[string]any{"address": "MxWATCH"})
	watchID := env.Get("data.watch_id").String()
	require.NotEmpty(t, watchID)
	assert.Equal(t, "Now watching address MxWATCH", env.Get("message").String())

	env = h.ok(t, "get_watched_addresses", nil)
	assert.Equal(t, int64(1), env.Get("data.count").Int())
	assert.Equal(t, "MxWATCH", env.Get("data.watches.0.address").String())

	env = h.ok(t, "unwatch_address", map[string]any{"watch_id": watchID})
	assert.Equal(t, "Stopped watching MxWATCH", env.Get("message").String())

	msg := h.fail(t, "unwatch_address", map[string]any{"watch_id": watchID})
	assert.Equal(t, "Watch "+watchID+" not found", msg)

	msg = h.fail(t, "watch_address", map[string]any{"address": "MxWATCH", "event_types": []any{"NOPE"}})
	assert.Equal(t, "invalid event types: [NOPE]", msg)
}

func TestEventStatisticsAndTypes(t *testing.T) {
	h := newHarness(t)
	h.events.Record(events.NewBlock, map[string]any{"block": 1})
	h.events.Record(events.NewBlock, map[string]any{"block": 2})
	h.ok(t, "subscribe_to_events", map[string]any{"event_types": []any{"NEWBLOCK"}})

	env := h.ok(t, "get_event_statistics", nil)
	assert.Equal(t, int64(2), env.Get("data.total_events").Int())
	assert.Equal(t, int64(2), env.Get("data.events_by_type.NEWBLOCK").Int())
	assert.Equal(t, int64(1), env.Get("data.active_subscriptions").Int())

	env = h.ok(t, "get_available_event_types", nil)
	assert.Equal(t, int64(len(events.AllTypes)), env.Get("data.count").Int())
	assert.Equal(t, "NEWBLOCK", env.Get("data.event_types.0.type").String())
	assert.Equal(t, "New block added to the chain", env.Get("data.event_types.0.description").String())
}

func TestPendingTransactions(t *testing.T) {
	h := newHarness(t)
	h.node.HandleResponse("txnlist", []any{map[string]any{"id": "t"}})

	env := h.ok(t, "get_pending_transactions", nil)
	assert.Equal(t, "txnlist", h.lastCommand(t))
	assert.Equal(t, "t", env.Get("data.0.id").String())
}

func TestMaximaMessages(t *testing.T) {
	h := newHarness(t)

	env := h.ok(t, "get_maxima_messages", nil)
	assert.Equal(t, int64(0), env.Get("data.count").Int())
	assert.NotEmpty(t, env.Get("data.note").String())

	_, err := h.events.Ingest("maxima", json.RawMessage(`{"application":"chat","from":"MxA","data":"hi"}`))
	require.NoError(t, err)
	_, err = h.events.Ingest("MAXIMA", json.RawMessage(`{"application":"game","from":"MxB","data":"move"}`))
	require.NoError(t, err)
	_, err = h.events.Ingest("MAXIMA", json.RawMessage(`{"application":"chat","from":"MxB","data":"yo"}`))
	require.NoError(t, err)

	env = h.ok(t, "get_maxima_messages", map[string]any{"application": "chat"})
	assert.Equal(t, int64(2), env.Get("data.count").Int())
	assert.False(t, env.Get("data.note").Exists())

	env = h.ok(t, "get_maxima_messages", map[string]any{"application": "chat", "from_address": "MxB"})
	require.Equal(t, int64(1), env.Get("data.count").Int())
	assert.Equal(t, "yo", env.Get("data.messages.0.data.data").String())

	env = h.ok(t, "get_maxima_messages", map[string]any{"limit": 1})
	require.Equal(t, int64(1), env.Get("data.count").Int())
	assert.Equal(t, "yo", env.Get("data.messages.0.data.data").String())
}

func TestMaximaCommands(t *testing.T) {
	h := newHarness(t)
	h.node.HandleResponse("maxsend", map[string]any{"delivered": true})
	h.node.HandleResponse("maxcontacts", map[string]any{})
	h.node.HandleResponse("maxima", map[string]any{"name": "node"})
	h.node.HandleResponse("maxcreate", map[string]any{"publickey": "0xPK"})

	env := h.ok(t, "send_maxima_message", map[string]any{"to_address": "MxB", "message": "hello world"})
	assert.Equal(t, `maxsend to:MxB application:general data:"hello world"`, h.lastCommand(t))
	assert.Equal(t, "general", env.Get("data.application").String())

	h.ok(t, "add_maxima_contact", map[string]any{"name": "Bob Smith", "address": "MAX#abc"})
	assert.Equal(t, `maxcontacts action:add name:"Bob Smith" address:MAX#abc`, h.lastCommand(t))

	h.ok(t, "remove_maxima_contact", map[string]any{"name": "Bob Smith"})
	assert.Equal(t, `maxcontacts action:remove name:"Bob Smith"`, h.lastCommand(t))

	env = h.ok(t, "set_maxima_name", map[string]any{"name": "My Node"})
	assert.Equal(t, `maxima action:setname name:"My Node"`, h.lastCommand(t))
	assert.Equal(t, "Maxima name set to 'My Node'", env.Get("message").String())

	h.ok(t, "create_static_maxima_address", nil)
	assert.Equal(t, "maxcreate", h.lastCommand(t))

	env = h.ok(t, "get_maxima_info", nil)
	assert.Equal(t, "node", env.Get("data.name").String())
}
