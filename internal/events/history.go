package events

import (
	"sync"
	"time"
)

// DefaultHistorySize is the number of events kept when no size is configured.
const DefaultHistorySize = 1000

// History is a fixed-size ring of the most recent events.
type History struct {
	mu    sync.RWMutex
	buf   []Event
	start int // index of the oldest event
	n     int
	seq   uint64
}

func NewHistory(size int) *History {
	if size <= 0 {
		size = DefaultHistorySize
	}
	return &History{buf: make([]Event, size)}
}

// Append stamps e with the next sequence number, and with the current time when it
// carries none, then stores it, evicting the oldest event when full.
func (h *History) Append(e Event) Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seq++
	e.Seq = h.seq
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	if h.n < len(h.buf) {
		h.buf[(h.start+h.n)%len(h.buf)] = e
		h.n++
	} else {
		h.buf[h.start] = e
		h.start = (h.start + 1) % len(h.buf)
	}
	return e
}

// Filter selects events. Zero fields match everything. Limit keeps the newest events.
type Filter struct {
	Types    []EventType
	Start    time.Time
	End      time.Time
	AfterSeq uint64
	Limit    int
}

func (f Filter) match(e Event) bool {
	if e.Seq <= f.AfterSeq {
		return false
	}
	if len(f.Types) > 0 {
		found := false
		for _, t := range f.Types {
			if t == e.Type {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if !f.Start.IsZero() && e.Timestamp.Before(f.Start) {
		return false
	}
	if !f.End.IsZero() && e.Timestamp.After(f.End) {
		return false
	}
	return true
}

// Query returns matching events, oldest first.
func (h *History) Query(f Filter) []Event {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Event, 0)
	for i := 0; i < h.n; i++ {
		e := h.buf[(h.start+i)%len(h.buf)]
		if f.match(e) {
			out = append(out, e)
		}
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[len(out)-f.Limit:]
	}
	return out
}

// Len is the number of stored events.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.n
}

// Seq is the sequence number of the last recorded event.
func (h *History) Seq() uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.seq
}

// Counts tallies stored events by type, and how many are newer than since.
func (h *History) Counts(since time.Time) (map[EventType]int, int) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	byType := make(map[EventType]int)
	recent := 0
	for i := 0; i < h.n; i++ {
		e := h.buf[(h.start+i)%len(h.buf)]
		byType[e.Type]++
		if e.Timestamp.After(since) {
			recent++
		}
	}
	return byType, recent
}
