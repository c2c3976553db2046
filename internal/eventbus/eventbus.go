// Package eventbus is an in-memory topic pub/sub used to fan node events out from the
// watcher to webhook delivery, the MQTT sink and address watches. Topics are dot separated
// and subscriptions may use "*" for a single segment, or a lone "*" for everything.
package eventbus

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// Event is one published message.
type Event struct {
	Topic string
	Data  any
}

// subscriber owns a buffered channel. Sends and close are serialized by mu so a publish
// never races an unsubscribe.
type subscriber struct {
	id      string
	pattern string
	ch      chan Event
	ctx     context.Context
	cancel  context.CancelFunc

	mu     sync.Mutex
	closed bool
}

func (s *subscriber) send(e Event, timeout time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	if timeout <= 0 {
		select {
		case s.ch <- e:
			return true
		default:
			return false
		}
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case s.ch <- e:
		return true
	case <-s.ctx.Done():
		return false
	case <-t.C:
		return false
	}
}

func (s *subscriber) close() {
	s.cancel()
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// EventBus routes published events to every subscriber whose pattern matches the topic.
type EventBus struct {
	mu      sync.RWMutex
	subs    map[string]map[string]*subscriber // pattern -> id -> subscriber
	counter atomic.Uint64
	dropped atomic.Uint64
}

func New() *EventBus {
	return &EventBus{subs: make(map[string]map[string]*subscriber)}
}

// Subscribe returns a channel receiving events matching pattern and a function that
// unsubscribes and closes the channel. Calling the function twice is safe.
func (bus *EventBus) Subscribe(pattern string, bufferSize int) (<-chan Event, func()) {
	id := "s" + strconv.FormatUint(bus.counter.Add(1), 10)
	ctx, cancel := context.WithCancel(context.Background())
	sub := &subscriber{
		id:      id,
		pattern: pattern,
		ch:      make(chan Event, bufferSize),
		ctx:     ctx,
		cancel:  cancel,
	}

	bus.mu.Lock()
	if _, ok := bus.subs[pattern]; !ok {
		bus.subs[pattern] = make(map[string]*subscriber)
	}
	bus.subs[pattern][id] = sub
	bus.mu.Unlock()

	return sub.ch, func() { bus.remove(pattern, id) }
}

// SubscribeFunc runs handler on its own goroutine for every matching event until the
// returned function is called. The returned function waits for an in-flight handler.
func (bus *EventBus) SubscribeFunc(pattern string, bufferSize int, handler func(Event)) func() {
	ch, unsubscribe := bus.Subscribe(pattern, bufferSize)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for e := range ch {
			func() {
				defer func() {
					if p := recover(); p != nil {
						log.Error().Interface("panic", p).Str("topic", e.Topic).Msg("event handler panicked")
					}
				}()
				handler(e)
			}()
		}
	}()
	return func() {
		unsubscribe()
		<-done
	}
}

func (bus *EventBus) remove(pattern, id string) {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	subMap, ok := bus.subs[pattern]
	if !ok {
		return
	}
	if s, ok := subMap[id]; ok {
		s.close()
		delete(subMap, id)
		if len(subMap) == 0 {
			delete(bus.subs, pattern)
		}
	}
}

// Publish delivers an event to every matching subscriber, waiting up to timeout for room
// in a full buffer. Events a slow subscriber cannot take are dropped and counted. It
// returns the number of subscribers that received the event.
func (bus *EventBus) Publish(topic string, data any, timeout time.Duration) int {
	e := Event{Topic: topic, Data: data}

	bus.mu.RLock()
	var targets []*subscriber
	for pattern, subMap := range bus.subs {
		if !MatchTopic(pattern, topic) {
			continue
		}
		for _, s := range subMap {
			targets = append(targets, s)
		}
	}
	bus.mu.RUnlock()

	delivered := 0
	for _, s := range targets {
		if s.send(e, timeout) {
			delivered++
		} else {
			bus.dropped.Add(1)
		}
	}
	return delivered
}

// Dropped reports how many deliveries were dropped since the bus was created.
func (bus *EventBus) Dropped() uint64 {
	return bus.dropped.Load()
}

// Subscribers counts active subscriptions.
func (bus *EventBus) Subscribers() int {
	bus.mu.RLock()
	defer bus.mu.RUnlock()
	n := 0
	for _, m := range bus.subs {
		n += len(m)
	}
	return n
}

// Shutdown closes every subscription.
func (bus *EventBus) Shutdown() {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	for _, subMap := range bus.subs {
		for _, s := range subMap {
			s.close()
		}
	}
	bus.subs = make(map[string]map[string]*subscriber)
}

// MatchTopic reports whether topic matches pattern segment by segment.
func MatchTopic(pattern, topic string) bool {
	if pattern == "" || topic == "" {
		return false
	}
	if pattern == "*" || pattern == topic {
		return true
	}
	pp := strings.Split(pattern, ".")
	tp := strings.Split(topic, ".")
	if len(pp) != len(tp) {
		return false
	}
	for i := range pp {
		if pp[i] != "*" && pp[i] != tp[i] {
			return false
		}
	}
	return true
}
