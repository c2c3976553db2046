package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/tansive/minima-mcp/internal/events"
	"github.com/tansive/minima-mcp/internal/mds"
	"github.com/tidwall/gjson"
)

const (
	defaultMaximaApplication = "general"
	defaultMessageLimit      = 50
)

type maximaTools struct{ Deps }

func (g *maximaTools) Name() string { return "maxima" }

func (g *maximaTools) Tools() []server.ServerTool {
	return []server.ServerTool{
		tool(mcp.NewTool("get_maxima_address",
			mcp.WithDescription("Get your Maxima P2P address and status."),
		), g.info),
		tool(mcp.NewTool("send_maxima_message",
			mcp.WithDescription("Send a P2P message via Maxima."),
			mcp.WithString("to_address", mcp.Required(), mcp.Description("Recipient Maxima address")),
			mcp.WithString("message", mcp.Required(), mcp.Description("Message content")),
			mcp.WithString("application", mcp.Description("Application identifier"), mcp.DefaultString(defaultMaximaApplication)),
		), g.send),
		tool(mcp.NewTool("get_maxima_contacts",
			mcp.WithDescription("List Maxima contacts."),
		), g.contacts),
		tool(mcp.NewTool("add_maxima_contact",
			mcp.WithDescription("Add a Maxima contact."),
			mcp.WithString("name", mcp.Required(), mcp.Description("Contact name")),
			mcp.WithString("address", mcp.Required(), mcp.Description("Maxima address")),
		), g.addContact),
		tool(mcp.NewTool("remove_maxima_contact",
			mcp.WithDescription("Remove a Maxima contact."),
			mcp.WithString("name", mcp.Required(), mcp.Description("Contact name")),
		), g.removeContact),
		tool(mcp.NewTool("get_maxima_messages",
			mcp.WithDescription("Get received Maxima messages. Messages are MAXIMA events pushed to the server by a MiniDapp, see the events ingest endpoint."),
			mcp.WithString("application", mcp.Description("Filter by application")),
			mcp.WithString("from_address", mcp.Description("Filter by sender")),
			mcp.WithNumber("limit", mcp.Description("Max results"), mcp.DefaultNumber(defaultMessageLimit)),
		), g.messages),
		tool(mcp.NewTool("create_static_maxima_address",
			mcp.WithDescription("Create a static Maxima address."),
			mcp.WithString("name", mcp.Description("Optional name")),
		), g.createStatic),
		tool(mcp.NewTool("get_maxima_info",
			mcp.WithDescription("Get detailed Maxima status and configuration."),
		), g.info),
		tool(mcp.NewTool("set_maxima_name",
			mcp.WithDescription("Set your Maxima display name."),
			mcp.WithString("name", mcp.Required(), mcp.Description("Display name")),
		), g.setName),
	}
}

func (g *maximaTools) info(ctx context.Context, _ mcp.CallToolRequest) (*Reply, error) {
	out, err := g.Node.Execute(ctx, "maxima")
	if err != nil {
		return nil, err
	}
	return reply(out), nil
}

func (g *maximaTools) send(ctx context.Context, req mcp.CallToolRequest) (*Reply, error) {
	args := struct {
		To          string `json:"to_address" validate:"required"`
		Message     string `json:"message" validate:"required"`
		Application string `json:"application"`
	}{Application: defaultMaximaApplication}
	if err := bind(req, &args); err != nil {
		return nil, err
	}
	out, err := g.Node.Execute(ctx, "maxsend",
		mds.P("to", args.To),
		mds.P("application", args.Application),
		mds.P("data", mds.Quote(args.Message)),
	)
	if err != nil {
		return nil, err
	}
	return reply(map[string]any{
		"to":          args.To,
		"application": args.Application,
		"result":      out,
	}).msg("Message sent successfully"), nil
}

func (g *maximaTools) contacts(ctx context.Context, _ mcp.CallToolRequest) (*Reply, error) {
	out, err := g.Node.Execute(ctx, "maxcontacts")
	if err != nil {
		return nil, err
	}
	return reply(out), nil
}

func (g *maximaTools) addContact(ctx context.Context, req mcp.CallToolRequest) (*Reply, error) {
	var args struct {
		Name    string `json:"name" validate:"required"`
		Address string `json:"address" validate:"required"`
	}
	if err := bind(req, &args); err != nil {
		return nil, err
	}
	out, err := g.Node.Execute(ctx, "maxcontacts",
		mds.P("action", "add"),
		mds.P("name", mds.Quote(args.Name)),
		mds.P("address", args.Address),
	)
	if err != nil {
		return nil, err
	}
	return reply(map[string]any{"name": args.Name, "address": args.Address, "result": out}).
		msg("Contact '" + args.Name + "' added"), nil
}

func (g *maximaTools) removeContact(ctx context.Context, req mcp.CallToolRequest) (*Reply, error) {
	var args struct {
		Name string `json:"name" validate:"required"`
	}
	if err := bind(req, &args); err != nil {
		return nil, err
	}
	out, err := g.Node.Execute(ctx, "maxcontacts", mds.P("action", "remove"), mds.P("name", mds.Quote(args.Name)))
	if err != nil {
		return nil, err
	}
	return reply(map[string]any{"name": args.Name, "result": out}).
		msg("Contact '" + args.Name + "' removed"), nil
}

// messages serves MAXIMA events from the history. The node does not keep received
// messages, so only those ingested since startup are available.
func (g *maximaTools) messages(_ context.Context, req mcp.CallToolRequest) (*Reply, error) {
	args := struct {
		Application string `json:"application"`
		From        string `json:"from_address"`
		Limit       int    `json:"limit" validate:"min=1"`
	}{Limit: defaultMessageLimit}
	if err := bind(req, &args); err != nil {
		return nil, err
	}
	all := g.Events.History().Query(events.Filter{Types: []events.EventType{events.Maxima}})
	msgs := make([]events.Event, 0, len(all))
	for _, e := range all {
		if args.Application != "" && gjson.GetBytes(e.Data, "application").String() != args.Application {
			continue
		}
		if args.From != "" && gjson.GetBytes(e.Data, "from").String() != args.From {
			continue
		}
		msgs = append(msgs, e)
	}
	if len(msgs) > args.Limit {
		msgs = msgs[len(msgs)-args.Limit:]
	}
	data := map[string]any{"messages": msgs, "count": len(msgs)}
	if len(msgs) == 0 {
		data["note"] = "Messages are received via MAXIMA events. Subscribe to events to receive messages in real-time."
	}
	return reply(data), nil
}

func (g *maximaTools) createStatic(ctx context.Context, req mcp.CallToolRequest) (*Reply, error) {
	var args struct {
		Name string `json:"name"`
	}
	if err := bind(req, &args); err != nil {
		return nil, err
	}
	var name any
	if args.Name != "" {
		name = mds.Quote(args.Name)
	}
	out, err := g.Node.Execute(ctx, "maxcreate", mds.P("name", name))
	if err != nil {
		return nil, err
	}
	return reply(out).msg("Static Maxima address created"), nil
}

func (g *maximaTools) setName(ctx context.Context, req mcp.CallToolRequest) (*Reply, error) {
	var args struct {
		Name string `json:"name" validate:"required"`
	}
	if err := bind(req, &args); err != nil {
		return nil, err
	}
	out, err := g.Node.Execute(ctx, "maxima", mds.P("action", "setname"), mds.P("name", mds.Quote(args.Name)))
	if err != nil {
		return nil, err
	}
	return reply(map[string]any{"name": args.Name, "result": out}).
		msg("Maxima name set to '" + args.Name + "'"), nil
}
