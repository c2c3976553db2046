package eventbus

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchTopic(t *testing.T) {
	tests := []struct {
		pattern, topic string
		want           bool
	}{
		{"*", "node.NEWBLOCK", true},
		{"node.*", "node.NEWBLOCK", true},
		{"node.NEWBLOCK", "node.NEWBLOCK", true},
		{"node.NEWBALANCE", "node.NEWBLOCK", false},
		{"node.*", "node.a.b", false},
		{"*.NEWBLOCK", "node.NEWBLOCK", true},
		{"", "node.NEWBLOCK", false},
		{"node.*", "", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MatchTopic(tt.pattern, tt.topic), "%s vs %s", tt.pattern, tt.topic)
	}
}

func TestPublishSubscribe(t *testing.T) {
	bus := New()
	all, unsubAll := bus.Subscribe("node.*", 4)
	blocks, unsubBlocks := bus.Subscribe("node.NEWBLOCK", 4)
	defer unsubAll()
	defer unsubBlocks()

	assert.Equal(t, 2, bus.Publish("node.NEWBLOCK", 10, 0))
	assert.Equal(t, 1, bus.Publish("node.NEWBALANCE", "x", 0))
	assert.Equal(t, 0, bus.Publish("other.NEWBLOCK", nil, 0))

	e := <-all
	assert.Equal(t, "node.NEWBLOCK", e.Topic)
	assert.Equal(t, 10, e.Data)
	assert.Equal(t, "node.NEWBALANCE", (<-all).Topic)
	assert.Equal(t, 10, (<-blocks).Data)
	assert.Equal(t, 2, bus.Subscribers())
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	bus := New()
	ch, unsub := bus.Subscribe("node.*", 1)
	unsub()
	unsub()

	_, ok := <-ch
	assert.False(t, ok)
	assert.Zero(t, bus.Subscribers())
	assert.Zero(t, bus.Publish("node.NEWBLOCK", 1, 0))
}

func TestSlowSubscriberDropsEvents(t *testing.T) {
	bus := New()
	_, unsub := bus.Subscribe("node.*", 1)
	defer unsub()

	assert.Equal(t, 1, bus.Publish("node.A", 1, 0))
	start := time.Now()
	assert.Equal(t, 0, bus.Publish("node.A", 2, 20*time.Millisecond))
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
	assert.EqualValues(t, 1, bus.Dropped())
}

func TestSubscribeFunc(t *testing.T) {
	bus := New()
	var mu sync.Mutex
	var got []any
	stop := bus.SubscribeFunc("node.*", 8, func(e Event) {
		if e.Data == "panic" {
			panic("handler failure")
		}
		mu.Lock()
		got = append(got, e.Data)
		mu.Unlock()
	})

	bus.Publish("node.A", 1, time.Second)
	bus.Publish("node.A", "panic", time.Second)
	bus.Publish("node.A", 2, time.Second)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	}, time.Second, 5*time.Millisecond)
	stop()
	assert.Equal(t, []any{1, 2}, got)
}

func TestShutdown(t *testing.T) {
	bus := New()
	ch1, _ := bus.Subscribe("a", 1)
	ch2, _ := bus.Subscribe("b.*", 1)
	bus.Shutdown()

	_, ok := <-ch1
	assert.False(t, ok)
	_, ok = <-ch2
	assert.False(t, ok)
	assert.Zero(t, bus.Subscribers())
}
