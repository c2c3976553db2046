package events

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/tansive/minima-mcp/internal/common/uuid"
	"github.com/tansive/minima-mcp/internal/eventbus"
	"github.com/tansive/minima-mcp/internal/store"
)

const (
	publishTimeout = 100 * time.Millisecond
	// pollWindow is how many recent events a poll without subscription returns.
	pollWindow = 10
	// maxPollBatch caps the events handed out by one subscription poll.
	maxPollBatch = 100
)

// Deliverer pushes one event to a subscription's webhook.
type Deliverer interface {
	Deliver(ctx context.Context, sub *Subscription, e Event) error
}

// Manager owns the event history and the stored subscriptions and watches.
type Manager struct {
	history  *History
	bus      *eventbus.EventBus
	store    store.Store
	webhooks Deliverer

	// mu serializes read-modify-write cycles on stored records.
	mu     sync.Mutex
	stop   []func()
	logger zerolog.Logger
}

type ManagerOptions struct {
	HistorySize int
	Bus         *eventbus.EventBus
	Store       store.Store
	Webhooks    Deliverer // nil disables webhook delivery
}

func NewManager(opts ManagerOptions) *Manager {
	bus := opts.Bus
	if bus == nil {
		bus = eventbus.New()
	}
	st := opts.Store
	if st == nil {
		st = store.NewMemoryStore()
	}
	return &Manager{
		history:  NewHistory(opts.HistorySize),
		bus:      bus,
		store:    st,
		webhooks: opts.Webhooks,
		logger:   log.With().Str("component", "events").Logger(),
	}
}

func (m *Manager) Bus() *eventbus.EventBus { return m.bus }

func (m *Manager) History() *History { return m.history }

// Start attaches webhook delivery and watch tracking to the event bus. Close detaches them.
func (m *Manager) Start(ctx context.Context) {
	m.stop = append(m.stop,
		m.bus.SubscribeFunc(TopicPrefix+"*", 256, func(be eventbus.Event) {
			if e, ok := be.Data.(Event); ok {
				m.trackWatches(ctx, e)
			}
		}),
	)
	if m.webhooks != nil {
		m.stop = append(m.stop,
			m.bus.SubscribeFunc(TopicPrefix+"*", 256, func(be eventbus.Event) {
				if e, ok := be.Data.(Event); ok {
					m.deliverWebhooks(ctx, e)
				}
			}),
		)
	}
}

func (m *Manager) Close() {
	for _, stop := range m.stop {
		stop()
	}
	m.stop = nil
}

// Record appends an event to the history and publishes it.
func (m *Manager) Record(t EventType, data any) Event {
	raw, err := json.Marshal(data)
	if err != nil {
		raw, _ = json.Marshal(map[string]string{"error": err.Error()})
	}
	return m.record(Event{Type: t, Data: raw})
}

func (m *Manager) record(e Event) Event {
	e = m.history.Append(e)
	m.logger.Debug().Str("type", string(e.Type)).Uint64("seq", e.Seq).Msg("event recorded")
	m.bus.Publish(e.Type.Topic(), e, publishTimeout)
	return e
}

// Ingest records an event pushed from outside, e.g. a MiniDapp relaying MAXIMA messages.
func (m *Manager) Ingest(typeName string, data json.RawMessage) (Event, error) {
	types, err := ParseTypes([]string{typeName})
	if err != nil {
		return Event{}, err
	}
	if len(data) == 0 {
		data = json.RawMessage(`{}`)
	}
	if !json.Valid(data) {
		return Event{}, ErrInvalidRequest.Msg("event data must be JSON")
	}
	return m.record(Event{Type: types[0], Data: data}), nil
}

// SubscribeRequest creates or replaces a subscription. An empty ID gets a generated one.
type SubscribeRequest struct {
	EventTypes []string
	WebhookURL string
	ID         string
}

func (m *Manager) Subscribe(ctx context.Context, req SubscribeRequest) (*Subscription, error) {
	if len(req.EventTypes) == 0 {
		return nil, ErrInvalidEventType.Msg("at least one event type is required")
	}
	types, err := ParseTypes(req.EventTypes)
	if err != nil {
		return nil, err
	}
	if req.WebhookURL != "" && !strings.HasPrefix(req.WebhookURL, "http://") && !strings.HasPrefix(req.WebhookURL, "https://") {
		return nil, ErrInvalidRequest.Msgf("webhook_url must be an http(s) URL: %s", req.WebhookURL)
	}
	id := req.ID
	if id == "" {
		id = uuid.NewID("sub")
	}
	sub := &Subscription{
		ID:         id,
		EventTypes: types,
		WebhookURL: req.WebhookURL,
		CreatedAt:  time.Now().UTC(),
		Active:     true,
		// New subscriptions see events from now on.
		LastSeq: m.history.Seq(),
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.store.Put(ctx, store.Subscriptions, id, sub); err != nil {
		return nil, err
	}
	m.logger.Info().Str("subscription_id", id).Int("types", len(types)).Msg("created event subscription")
	return sub, nil
}

func (m *Manager) Unsubscribe(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.store.Delete(ctx, store.Subscriptions, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound.Msgf("Subscription %s not found", id)
		}
		return err
	}
	m.logger.Info().Str("subscription_id", id).Msg("removed event subscription")
	return nil
}

func (m *Manager) Subscriptions(ctx context.Context) ([]Subscription, error) {
	return store.ListAs[Subscription](ctx, m.store, store.Subscriptions)
}

// Poll returns events recorded since the subscription's previous poll, up to a batch,
// and advances its cursor. Without an id it returns the most recent events. An unknown
// id is an error.
func (m *Manager) Poll(ctx context.Context, id string) ([]Event, error) {
	if id == "" {
		return m.history.Query(Filter{Limit: pollWindow}), nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	var sub Subscription
	if err := m.store.Get(ctx, store.Subscriptions, id, &sub); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound.Msgf("Subscription %s not found", id)
		}
		return nil, err
	}
	evs := m.history.Query(Filter{Types: sub.EventTypes, AfterSeq: sub.LastSeq})
	if len(evs) > maxPollBatch {
		evs = evs[:maxPollBatch]
	}
	if len(evs) > 0 {
		sub.LastSeq = evs[len(evs)-1].Seq
	} else {
		sub.LastSeq = max(sub.LastSeq, m.history.Seq())
	}
	if err := m.store.Put(ctx, store.Subscriptions, id, &sub); err != nil {
		return nil, err
	}
	return evs, nil
}

// WatchAddress starts tracking events for address.
func (m *Manager) WatchAddress(ctx context.Context, address string, typeNames []string) (*Watch, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, ErrInvalidRequest.Msg("address is required")
	}
	types := DefaultWatchTypes
	if len(typeNames) > 0 {
		var err error
		if types, err = ParseTypes(typeNames); err != nil {
			return nil, err
		}
	}
	w := &Watch{
		ID:         uuid.NewID("watch"),
		Address:    address,
		EventTypes: types,
		CreatedAt:  time.Now().UTC(),
		Activity:   []Event{},
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.store.Put(ctx, store.Watches, w.ID, w); err != nil {
		return nil, err
	}
	m.logger.Info().Str("watch_id", w.ID).Str("address", address).Msg("watching address")
	return w, nil
}

// Unwatch stops a watch and returns the address it tracked.
func (m *Manager) Unwatch(ctx context.Context, id string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var w Watch
	if err := m.store.Get(ctx, store.Watches, id, &w); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", ErrNotFound.Msgf("Watch %s not found", id)
		}
		return "", err
	}
	if err := m.store.Delete(ctx, store.Watches, id); err != nil {
		return "", err
	}
	return w.Address, nil
}

func (m *Manager) Watches(ctx context.Context) ([]Watch, error) {
	return store.ListAs[Watch](ctx, m.store, store.Watches)
}

// Stats summarizes the history and registrations.
type Stats struct {
	TotalEvents         int               `json:"total_events"`
	EventsByType        map[EventType]int `json:"events_by_type"`
	RecentEvents1h      int               `json:"recent_events_1h"`
	ActiveSubscriptions int               `json:"active_subscriptions"`
	WatchedAddresses    int               `json:"watched_addresses"`
	DroppedDeliveries   uint64            `json:"dropped_deliveries"`
}

func (m *Manager) Stats(ctx context.Context) (*Stats, error) {
	byType, recent := m.history.Counts(time.Now().Add(-time.Hour))
	subs, err := m.store.List(ctx, store.Subscriptions)
	if err != nil {
		return nil, err
	}
	watches, err := m.store.List(ctx, store.Watches)
	if err != nil {
		return nil, err
	}
	return &Stats{
		TotalEvents:         m.history.Len(),
		EventsByType:        byType,
		RecentEvents1h:      recent,
		ActiveSubscriptions: len(subs),
		WatchedAddresses:    len(watches),
		DroppedDeliveries:   m.bus.Dropped(),
	}, nil
}

// watchMatches reports whether e concerns w. Events whose data names no address at all
// (new blocks, timers) match every watch that selected their type.
func watchMatches(w *Watch, e Event) bool {
	found := false
	for _, t := range w.EventTypes {
		if t == e.Type {
			found = true
			break
		}
	}
	if !found {
		return false
	}
	data := string(e.Data)
	if strings.Contains(data, w.Address) {
		return true
	}
	return !strings.Contains(data, `"address"`)
}

func (m *Manager) trackWatches(ctx context.Context, e Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	watches, err := store.ListAs[Watch](ctx, m.store, store.Watches)
	if err != nil {
		m.logger.Error().Err(err).Msg("unable to load watches")
		return
	}
	for i := range watches {
		w := &watches[i]
		if !watchMatches(w, e) {
			continue
		}
		w.Activity = append(w.Activity, e)
		if len(w.Activity) > maxWatchActivity {
			w.Activity = w.Activity[len(w.Activity)-maxWatchActivity:]
		}
		if err := m.store.Put(ctx, store.Watches, w.ID, w); err != nil {
			m.logger.Error().Err(err).Str("watch_id", w.ID).Msg("unable to record watch activity")
		}
	}
}

func (m *Manager) deliverWebhooks(ctx context.Context, e Event) {
	subs, err := m.Subscriptions(ctx)
	if err != nil {
		m.logger.Error().Err(err).Msg("unable to load subscriptions")
		return
	}
	for i := range subs {
		sub := &subs[i]
		if sub.WebhookURL == "" || !sub.wants(e.Type) {
			continue
		}
		derr := m.webhooks.Deliver(ctx, sub, e)
		if derr != nil {
			m.logger.Warn().Err(derr).Str("subscription_id", sub.ID).Msg("webhook delivery failed")
		}
		m.countDelivery(ctx, sub.ID, derr == nil)
	}
}

func (m *Manager) countDelivery(ctx context.Context, id string, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var sub Subscription
	if err := m.store.Get(ctx, store.Subscriptions, id, &sub); err != nil {
		// Unsubscribed while delivering.
		return
	}
	if ok {
		sub.Delivered++
	} else {
		sub.Failed++
	}
	if err := m.store.Put(ctx, store.Subscriptions, id, &sub); err != nil {
		m.logger.Error().Err(err).Str("subscription_id", id).Msg("unable to update delivery counters")
	}
}
