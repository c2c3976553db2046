package cli

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/tansive/minima-mcp/internal/config"
	"github.com/tansive/minima-mcp/internal/events"
	"github.com/tansive/minima-mcp/internal/mcpserver"
	"github.com/tansive/minima-mcp/internal/mds"
	"github.com/tansive/minima-mcp/internal/metrics"
	"github.com/tansive/minima-mcp/internal/store"
	"github.com/tansive/minima-mcp/internal/tools"
)

// app holds the wired server components.
type app struct {
	cfg     *config.ConfigParam
	client  *mds.Client
	store   store.Store
	events  *events.Manager
	watcher *events.Watcher
	mqtt    *events.MQTTSink
	server  *mcpserver.Server
}

func newClient(ctx context.Context, c *config.ConfigParam) (*mds.Client, error) {
	opts := c.Node.MDSOptions()
	opts.Observer = metrics.ObserveCommand
	return mds.New(ctx, opts)
}

// newApp connects to the node and the store and builds the MCP server. Nothing runs until
// start is called.
func newApp(ctx context.Context, c *config.ConfigParam) (*app, error) {
	a := &app{cfg: c}
	var err error
	if a.client, err = newClient(ctx, c); err != nil {
		return nil, err
	}
	if !a.client.Authenticated() {
		log.Warn().Str("node", a.client.BaseURL()).Msg("MDS login gave no session, commands may be rejected")
	}
	if a.store, err = store.Open(ctx, c.Store.Options()); err != nil {
		a.close()
		return nil, err
	}

	a.events = events.NewManager(events.ManagerOptions{
		HistorySize: c.Events.HistorySize,
		Store:       a.store,
		Webhooks:    events.NewWebhookSender(c.Events.WebhookDeadline(), c.Events.WebhookRetries),
	})
	a.watcher = events.NewWatcher(a.client, a.events, c.Events.PollEvery())

	if c.MQTT.Broker != "" {
		a.mqtt, err = events.ConnectMQTT(events.MQTTOptions{
			Broker:      c.MQTT.Broker,
			ClientID:    c.MQTT.ClientID,
			Username:    c.MQTT.Username,
			Password:    c.MQTT.Password,
			TopicPrefix: c.MQTT.TopicPrefix,
			QoS:         byte(c.MQTT.QoS),
		})
		if err != nil {
			// Events still reach polling and webhook subscribers.
			log.Error().Err(err).Msg("MQTT sink disabled")
			a.mqtt = nil
		}
	}

	a.server, err = mcpserver.New(mcpserver.Options{
		Version: Version,
		Tools: tools.Deps{
			Node:            a.client,
			Events:          a.events,
			Store:           a.store,
			MaxPackageSize:  c.MiniDapp.MaxPackageSize,
			DefaultCategory: c.MiniDapp.DefaultCategory,
			StorePublicBase: c.MiniDapp.StorePublicBase,
		},
		HandleCORS:     c.MCP.HandleCORS,
		AllowedOrigins: c.MCP.AllowedOrigins,
		Stateless:      c.MCP.Stateless,
	})
	if err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

// start attaches event delivery and runs the watcher until ctx ends.
func (a *app) start(ctx context.Context) {
	a.events.Start(ctx)
	if a.mqtt != nil {
		a.mqtt.Attach(a.events.Bus())
	}
	go a.watcher.Run(ctx)
}

func (a *app) close() {
	if a.server != nil {
		a.server.Close()
	}
	if a.mqtt != nil {
		a.mqtt.Close()
	}
	if a.events != nil {
		a.events.Close()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			log.Warn().Err(err).Msg("closing store")
		}
	}
	if a.client != nil {
		a.client.Close()
	}
}
