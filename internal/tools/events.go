package tools

import (
	"context"
	"strconv"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/tansive/minima-mcp/internal/events"
)

const defaultHistoryLimit = 100

type eventTools struct{ Deps }

func (g *eventTools) Name() string { return "events" }

func eventTypeNames() []string {
	names := make([]string, len(events.AllTypes))
	for i, t := range events.AllTypes {
		names[i] = string(t)
	}
	return names
}

func (g *eventTools) Tools() []server.ServerTool {
	types := eventTypeNames()
	return []server.ServerTool{
		tool(mcp.NewTool("subscribe_to_events",
			mcp.WithDescription("Subscribe to node events. Subscribed events can be polled with poll_events or pushed to a webhook."),
			mcp.WithArray("event_types", mcp.Required(), mcp.Description("Event types to subscribe to"),
				mcp.Items(map[string]any{"type": "string", "enum": types})),
			mcp.WithString("webhook_url", mcp.Description("Optional webhook URL receiving each event as a POST")),
			mcp.WithString("subscription_id", mcp.Description("Optional subscription ID; replaces an existing subscription with the same ID")),
		), g.subscribe),
		tool(mcp.NewTool("unsubscribe_from_events",
			mcp.WithDescription("Remove an event subscription."),
			mcp.WithString("subscription_id", mcp.Required(), mcp.Description("Subscription ID")),
		), g.unsubscribe),
		tool(mcp.NewTool("get_event_history",
			mcp.WithDescription("Get past events from the history, newest last."),
			mcp.WithString("event_type", mcp.Description("Filter by event type"), mcp.Enum(types...)),
			mcp.WithString("start_time", mcp.Description("Start timestamp (RFC 3339)")),
			mcp.WithString("end_time", mcp.Description("End timestamp (RFC 3339)")),
			mcp.WithNumber("limit", mcp.Description("Max results"), mcp.DefaultNumber(defaultHistoryLimit)),
		), g.history),
		tool(mcp.NewTool("poll_events",
			mcp.WithDescription("Get events recorded since the previous poll of a subscription, or the most recent events without one."),
			mcp.WithString("subscription_id", mcp.Description("Subscription ID")),
		), g.poll),
		tool(mcp.NewTool("watch_address",
			mcp.WithDescription("Monitor an address for activity."),
			mcp.WithString("address", mcp.Required(), mcp.Description("Address to monitor")),
			mcp.WithArray("event_types", mcp.Description("Event types to track; NEWBALANCE and NEWBLOCK by default"),
				mcp.Items(map[string]any{"type": "string", "enum": types})),
		), g.watch),
		tool(mcp.NewTool("unwatch_address",
			mcp.WithDescription("Stop watching an address."),
			mcp.WithString("watch_id", mcp.Required(), mcp.Description("Watch ID")),
		), g.unwatch),
		tool(mcp.NewTool("get_watched_addresses",
			mcp.WithDescription("List watched addresses with their recorded activity."),
		), g.watches),
		tool(mcp.NewTool("get_event_statistics",
			mcp.WithDescription("Get event counts by type and subscription totals."),
		), g.stats),
		tool(mcp.NewTool("get_pending_transactions",
			mcp.WithDescription("Get transactions waiting on the node."),
		), g.pending),
		tool(mcp.NewTool("list_event_subscriptions",
			mcp.WithDescription("List all event subscriptions."),
		), g.subscriptions),
		tool(mcp.NewTool("get_available_event_types",
			mcp.WithDescription("List the event types with descriptions."),
		), g.types),
	}
}

func (g *eventTools) subscribe(ctx context.Context, req mcp.CallToolRequest) (*Reply, error) {
	var args struct {
		EventTypes     []string `json:"event_types" validate:"required,min=1"`
		WebhookURL     string   `json:"webhook_url"`
		SubscriptionID string   `json:"subscription_id"`
	}
	if err := bind(req, &args); err != nil {
		return nil, err
	}
	sub, err := g.Events.Subscribe(ctx, events.SubscribeRequest{
		EventTypes: args.EventTypes,
		WebhookURL: args.WebhookURL,
		ID:         args.SubscriptionID,
	})
	if err != nil {
		return nil, err
	}
	return reply(map[string]any{
		"subscription_id": sub.ID,
		"event_types":     sub.EventTypes,
		"webhook_url":     sub.WebhookURL,
	}).msg("Subscribed to " + strconv.Itoa(len(sub.EventTypes)) + " event types"), nil
}

func (g *eventTools) unsubscribe(ctx context.Context, req mcp.CallToolRequest) (*Reply, error) {
	var args struct {
		SubscriptionID string `json:"subscription_id" validate:"required"`
	}
	if err := bind(req, &args); err != nil {
		return nil, err
	}
	if err := g.Events.Unsubscribe(ctx, args.SubscriptionID); err != nil {
		return nil, err
	}
	return reply(map[string]any{"subscription_id": args.SubscriptionID}).
		msg("Unsubscribed from " + args.SubscriptionID), nil
}

var timeLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999", "2006-01-02"}

// parseTime accepts RFC 3339 and zone-less ISO 8601 timestamps, the latter read as UTC.
func parseTime(field, s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, ErrInvalidArgs.Msgf("%s is not a timestamp: %s", field, s)
}

func (g *eventTools) history(_ context.Context, req mcp.CallToolRequest) (*Reply, error) {
	args := struct {
		EventType string `json:"event_type"`
		StartTime string `json:"start_time"`
		EndTime   string `json:"end_time"`
		Limit     int    `json:"limit" validate:"min=1"`
	}{Limit: defaultHistoryLimit}
	if err := bind(req, &args); err != nil {
		return nil, err
	}
	var f events.Filter
	if args.EventType != "" {
		types, err := events.ParseTypes([]string{args.EventType})
		if err != nil {
			return nil, err
		}
		f.Types = types
	}
	var err error
	if f.Start, err = parseTime("start_time", args.StartTime); err != nil {
		return nil, err
	}
	if f.End, err = parseTime("end_time", args.EndTime); err != nil {
		return nil, err
	}
	f.Limit = args.Limit
	h := g.Events.History()
	evs := h.Query(f)
	return reply(map[string]any{
		"events":       evs,
		"count":        len(evs),
		"total_stored": h.Len(),
	}), nil
}

func (g *eventTools) poll(ctx context.Context, req mcp.CallToolRequest) (*Reply, error) {
	var args struct {
		SubscriptionID string `json:"subscription_id"`
	}
	if err := bind(req, &args); err != nil {
		return nil, err
	}
	evs, err := g.Events.Poll(ctx, args.SubscriptionID)
	if err != nil {
		return nil, err
	}
	data := map[string]any{"events": evs, "count": len(evs)}
	if args.SubscriptionID != "" {
		data["subscription_id"] = args.SubscriptionID
	}
	return reply(data), nil
}

func (g *eventTools) watch(ctx context.Context, req mcp.CallToolRequest) (*Reply, error) {
	var args struct {
		Address    string   `json:"address" validate:"required"`
		EventTypes []string `json:"event_types"`
	}
	if err := bind(req, &args); err != nil {
		return nil, err
	}
	w, err := g.Events.WatchAddress(ctx, args.Address, args.EventTypes)
	if err != nil {
		return nil, err
	}
	return reply(map[string]any{
		"watch_id":    w.ID,
		"address":     w.Address,
		"event_types": w.EventTypes,
	}).msg("Now watching address " + w.Address), nil
}

func (g *eventTools) unwatch(ctx context.Context, req mcp.CallToolRequest) (*Reply, error) {
	var args struct {
		WatchID string `json:"watch_id" validate:"required"`
	}
	if err := bind(req, &args); err != nil {
		return nil, err
	}
	address, err := g.Events.Unwatch(ctx, args.WatchID)
	if err != nil {
		return nil, err
	}
	return reply(map[string]any{"watch_id": args.WatchID}).msg("Stopped watching " + address), nil
}

func (g *eventTools) watches(ctx context.Context, _ mcp.CallToolRequest) (*Reply, error) {
	ws, err := g.Events.Watches(ctx)
	if err != nil {
		return nil, err
	}
	return reply(map[string]any{"watches": ws, "count": len(ws)}), nil
}

func (g *eventTools) stats(ctx context.Context, _ mcp.CallToolRequest) (*Reply, error) {
	st, err := g.Events.Stats(ctx)
	if err != nil {
		return nil, err
	}
	return reply(st), nil
}

func (g *eventTools) pending(ctx context.Context, _ mcp.CallToolRequest) (*Reply, error) {
	out, err := g.Node.Execute(ctx, "txnlist")
	if err != nil {
		return nil, err
	}
	return reply(out), nil
}

func (g *eventTools) subscriptions(ctx context.Context, _ mcp.CallToolRequest) (*Reply, error) {
	subs, err := g.Events.Subscriptions(ctx)
	if err != nil {
		return nil, err
	}
	return reply(map[string]any{"subscriptions": subs, "count": len(subs)}), nil
}

func (g *eventTools) types(context.Context, mcp.CallToolRequest) (*Reply, error) {
	list := make([]map[string]string, 0, len(events.AllTypes))
	for _, t := range events.AllTypes {
		list = append(list, map[string]string{"type": string(t), "description": t.Description()})
	}
	return reply(map[string]any{"event_types": list, "count": len(list)}), nil
}
