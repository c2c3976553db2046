// Package events records node events into a bounded history and fans them out to
// subscriptions (polling cursors and webhooks), address watches and an optional MQTT
// broker. Events come from the Watcher, which polls the node, or from Ingest.
package events

import (
	"encoding/json"
	"slices"
	"strings"
	"time"

	"github.com/tansive/minima-mcp/internal/common/apperrors"
)

var (
	ErrEvents           apperrors.Error = apperrors.New("event system error")
	ErrInvalidEventType apperrors.Error = ErrEvents.New("invalid event types").SetStatusCode(400)
	ErrNotFound         apperrors.Error = ErrEvents.New("not found").SetStatusCode(404)
	ErrInvalidRequest   apperrors.Error = ErrEvents.New("invalid request").SetStatusCode(400)
	ErrDelivery         apperrors.Error = ErrEvents.New("event delivery failed")
)

// EventType names a kind of node event, using the node's own MDS event names.
type EventType string

const (
	NewBlock    EventType = "NEWBLOCK"
	NewBalance  EventType = "NEWBALANCE"
	Mining      EventType = "MINING"
	MinimaLog   EventType = "MINIMALOG"
	Maxima      EventType = "MAXIMA"
	MDSPending  EventType = "MDS_PENDING"
	Timer10s    EventType = "MDS_TIMER_10SECONDS"
	Timer1h     EventType = "MDS_TIMER_1HOUR"
	MDSShutdown EventType = "MDS_SHUTDOWN"
	TopicPrefix           = "node."
)

// AllTypes lists every event type in documentation order.
var AllTypes = []EventType{NewBlock, NewBalance, Mining, MinimaLog, Maxima, MDSPending, Timer10s, Timer1h, MDSShutdown}

var descriptions = map[EventType]string{
	NewBlock:    "New block added to the chain",
	NewBalance:  "Balance changed (new coin received)",
	Mining:      "Mining started or stopped",
	MinimaLog:   "New log message available",
	Maxima:      "Maxima P2P message received",
	MDSPending:  "Pending transaction requires confirmation",
	Timer10s:    "10 second timer tick",
	Timer1h:     "1 hour timer tick",
	MDSShutdown: "System shutting down",
}

func (t EventType) Description() string { return descriptions[t] }

func (t EventType) Valid() bool { return slices.Contains(AllTypes, t) }

// Topic is the event bus topic events of this type are published on.
func (t EventType) Topic() string { return TopicPrefix + string(t) }

// ParseTypes validates names, reporting every unknown one at once. Names are matched
// case-insensitively.
func ParseTypes(names []string) ([]EventType, error) {
	out := make([]EventType, 0, len(names))
	var invalid []string
	for _, n := range names {
		t := EventType(strings.ToUpper(strings.TrimSpace(n)))
		if !t.Valid() {
			invalid = append(invalid, n)
			continue
		}
		if !slices.Contains(out, t) {
			out = append(out, t)
		}
	}
	if len(invalid) > 0 {
		return nil, ErrInvalidEventType.Msgf("invalid event types: [%s]", strings.Join(invalid, ", "))
	}
	return out, nil
}

// Event is one recorded node event. Seq increases by one per recorded event and is the
// cursor used by polling subscriptions.
type Event struct {
	Seq       uint64          `json:"seq"`
	Type      EventType       `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// Subscription selects event types for polling and, when WebhookURL is set, for push
// delivery.
type Subscription struct {
	ID         string      `json:"id"`
	EventTypes []EventType `json:"event_types"`
	WebhookURL string      `json:"webhook_url,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
	Active     bool        `json:"active"`
	LastSeq    uint64      `json:"last_seq"`
	Delivered  int         `json:"delivered"`
	Failed     int         `json:"failed"`
}

func (s *Subscription) wants(t EventType) bool {
	return s.Active && slices.Contains(s.EventTypes, t)
}

// maxWatchActivity bounds the activity kept per watch.
const maxWatchActivity = 50

// Watch tracks events that concern one address.
type Watch struct {
	ID         string      `json:"id"`
	Address    string      `json:"address"`
	EventTypes []EventType `json:"event_types"`
	CreatedAt  time.Time   `json:"created_at"`
	Activity   []Event     `json:"activity"`
}

// DefaultWatchTypes are used when a watch names no types.
var DefaultWatchTypes = []EventType{NewBalance, NewBlock}
