package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/tansive/minima-mcp/internal/mds"
	"github.com/tidwall/sjson"
)

// nodeTools are thin wrappers over the node's own commands.
type nodeTools struct{ Deps }

func (g *nodeTools) Name() string { return "node" }

func (g *nodeTools) Tools() []server.ServerTool {
	return []server.ServerTool{
		tool(mcp.NewTool("get_balance",
			mcp.WithDescription("Get balance of Minima or specific tokens. Returns total balance across all addresses or for a specific address/token."),
			mcp.WithString("address", mcp.Description("Specific address to check balance for")),
			mcp.WithString("tokenid", mcp.Description("Token ID to check (0x00 for Minima)")),
			mcp.WithNumber("confirmations", mcp.Description("Minimum confirmations for a coin to count")),
		), g.balance),
		tool(mcp.NewTool("get_node_status",
			mcp.WithDescription("Get current node status and blockchain information: chain height, version, sync status and other node details."),
		), g.status),
		tool(mcp.NewTool("get_address",
			mcp.WithDescription("Get a Minima address for receiving funds."),
		), g.address),
		tool(mcp.NewTool("list_tokens",
			mcp.WithDescription("List all tokens or get information about a specific token."),
			mcp.WithString("tokenid", mcp.Description("Specific token ID to query")),
		), g.tokens),
		tool(mcp.NewTool("get_coins",
			mcp.WithDescription("Get coins (UTxOs) that can be used in transactions."),
			mcp.WithBoolean("relevant", mcp.Description("Show only relevant coins"), mcp.DefaultBool(true)),
			mcp.WithBoolean("sendable", mcp.Description("Show only sendable coins"), mcp.DefaultBool(false)),
			mcp.WithString("address", mcp.Description("Filter by specific address")),
			mcp.WithString("tokenid", mcp.Description("Filter by token ID")),
		), g.coins),
		tool(mcp.NewTool("send_minima",
			mcp.WithDescription("Send Minima or tokens to an address. Creates and broadcasts a transaction; requires the wallet to be unlocked."),
			mcp.WithString("amount", mcp.Required(), mcp.Description("Amount to send")),
			mcp.WithString("address", mcp.Required(), mcp.Description("Recipient address")),
			mcp.WithString("tokenid", mcp.Description("Token ID (0x00 for Minima)"), mcp.DefaultString(mds.MinimaTokenID)),
		), g.send),
		tool(mcp.NewTool("create_token",
			mcp.WithDescription("Create a new token on the Minima blockchain."),
			mcp.WithString("name", mcp.Required(), mcp.Description("Token name")),
			mcp.WithString("amount", mcp.Required(), mcp.Description("Total token amount")),
			mcp.WithNumber("decimals", mcp.Description("Decimal places"), mcp.DefaultNumber(8)),
			mcp.WithString("description", mcp.Description("Token description")),
			mcp.WithString("icon", mcp.Description("Icon URL or path")),
			mcp.WithString("proof", mcp.Description("Proof data")),
		), g.createToken),
		tool(mcp.NewTool("get_transaction",
			mcp.WithDescription("Get details of a specific transaction by its TxPoW ID."),
			mcp.WithString("txpowid", mcp.Required(), mcp.Description("Transaction PoW ID")),
		), g.transaction),
		tool(mcp.NewTool("search_blockchain",
			mcp.WithDescription("Search the Minima blockchain by block number, address or token ID."),
			mcp.WithNumber("block", mcp.Description("Specific block number")),
			mcp.WithString("address", mcp.Description("Search by address")),
			mcp.WithString("tokenid", mcp.Description("Search by token ID")),
		), g.search),
		tool(mcp.NewTool("get_network_info",
			mcp.WithDescription("Get network statistics and connection details."),
		), g.network),
		tool(mcp.NewTool("get_peers",
			mcp.WithDescription("Get the nodes currently connected to this node."),
		), g.peers),
		tool(mcp.NewTool("list_minidapps",
			mcp.WithDescription("List all MiniDapps installed on the node."),
		), g.minidapps),
		tool(mcp.NewTool("install_minidapp",
			mcp.WithDescription("Install a MiniDapp from a .mds.zip file readable by the node."),
			mcp.WithString("file_path", mcp.Required(), mcp.Description("Path to .mds.zip file")),
		), g.install),
		tool(mcp.NewTool("get_minidapp_info",
			mcp.WithDescription("Get name, version and status of an installed MiniDapp."),
			mcp.WithString("uid", mcp.Required(), mcp.Description("MiniDapp UID")),
		), g.minidappInfo),
		tool(mcp.NewTool("execute_command",
			mcp.WithDescription(`Execute any Minima terminal command. Advanced; use with caution. Example: "status" or "balance confirmations:3".`),
			mcp.WithString("command", mcp.Required(), mcp.Description("Minima command to execute")),
		), g.execute),
		{
			Tool: mcp.NewTool("health_check",
				mcp.WithDescription("Check if the Minima node is responsive and healthy."),
			),
			Handler: g.health,
		},
	}
}

func (g *nodeTools) balance(ctx context.Context, req mcp.CallToolRequest) (*Reply, error) {
	var args struct {
		Address       string `json:"address"`
		TokenID       string `json:"tokenid"`
		Confirmations *int   `json:"confirmations" validate:"omitempty,min=0"`
	}
	if err := bind(req, &args); err != nil {
		return nil, err
	}
	out, err := g.Node.Balance(ctx, mds.BalanceQuery{
		Address:       args.Address,
		TokenID:       args.TokenID,
		Confirmations: args.Confirmations,
	})
	if err != nil {
		return nil, err
	}
	return reply(out), nil
}

func (g *nodeTools) status(ctx context.Context, _ mcp.CallToolRequest) (*Reply, error) {
	out, err := g.Node.Status(ctx)
	if err != nil {
		return nil, err
	}
	return reply(out), nil
}

func (g *nodeTools) address(ctx context.Context, _ mcp.CallToolRequest) (*Reply, error) {
	out, err := g.Node.NewAddress(ctx)
	if err != nil {
		return nil, err
	}
	return reply(out), nil
}

func (g *nodeTools) tokens(ctx context.Context, req mcp.CallToolRequest) (*Reply, error) {
	var args struct {
		TokenID string `json:"tokenid"`
	}
	if err := bind(req, &args); err != nil {
		return nil, err
	}
	out, err := g.Node.Tokens(ctx, args.TokenID)
	if err != nil {
		return nil, err
	}
	return reply(out), nil
}

func (g *nodeTools) coins(ctx context.Context, req mcp.CallToolRequest) (*Reply, error) {
	args := struct {
		Relevant bool   `json:"relevant"`
		Sendable bool   `json:"sendable"`
		Address  string `json:"address"`
		TokenID  string `json:"tokenid"`
	}{Relevant: true}
	if err := bind(req, &args); err != nil {
		return nil, err
	}
	out, err := g.Node.Coins(ctx, mds.CoinQuery{
		Relevant: args.Relevant,
		Sendable: args.Sendable,
		Address:  args.Address,
		TokenID:  args.TokenID,
	})
	if err != nil {
		return nil, err
	}
	return reply(out), nil
}

func (g *nodeTools) send(ctx context.Context, req mcp.CallToolRequest) (*Reply, error) {
	args := struct {
		Amount  string `json:"amount" validate:"required"`
		Address string `json:"address" validate:"required"`
		TokenID string `json:"tokenid"`
	}{TokenID: mds.MinimaTokenID}
	if err := bind(req, &args); err != nil {
		return nil, err
	}
	out, err := g.Node.Send(ctx, mds.SendRequest{Amount: args.Amount, Address: args.Address, TokenID: args.TokenID})
	if err != nil {
		return nil, err
	}
	return reply(out).msg("Successfully sent " + args.Amount + " to " + args.Address), nil
}

func (g *nodeTools) createToken(ctx context.Context, req mcp.CallToolRequest) (*Reply, error) {
	args := struct {
		Name        string `json:"name" validate:"required"`
		Amount      string `json:"amount" validate:"required"`
		Decimals    int    `json:"decimals" validate:"min=0,max=16"`
		Description string `json:"description"`
		Icon        string `json:"icon"`
		Proof       string `json:"proof"`
	}{Decimals: 8}
	if err := bind(req, &args); err != nil {
		return nil, err
	}
	out, err := g.Node.CreateToken(ctx, mds.TokenRequest{
		Name:        args.Name,
		Amount:      args.Amount,
		Decimals:    &args.Decimals,
		Description: args.Description,
		Icon:        args.Icon,
		Proof:       args.Proof,
	})
	if err != nil {
		return nil, err
	}
	return reply(out).msg("Token '" + args.Name + "' created successfully"), nil
}

func (g *nodeTools) transaction(ctx context.Context, req mcp.CallToolRequest) (*Reply, error) {
	var args struct {
		TxPoWID string `json:"txpowid" validate:"required"`
	}
	if err := bind(req, &args); err != nil {
		return nil, err
	}
	out, err := g.Node.TxPoW(ctx, args.TxPoWID)
	if err != nil {
		return nil, err
	}
	return reply(out), nil
}

func (g *nodeTools) search(ctx context.Context, req mcp.CallToolRequest) (*Reply, error) {
	var args struct {
		Block   *int64 `json:"block" validate:"omitempty,min=0"`
		Address string `json:"address"`
		TokenID string `json:"tokenid"`
	}
	if err := bind(req, &args); err != nil {
		return nil, err
	}
	out, err := g.Node.Search(ctx, mds.SearchQuery{Block: args.Block, Address: args.Address, TokenID: args.TokenID})
	if err != nil {
		return nil, err
	}
	return reply(out), nil
}

func (g *nodeTools) network(ctx context.Context, _ mcp.CallToolRequest) (*Reply, error) {
	out, err := g.Node.Network(ctx)
	if err != nil {
		return nil, err
	}
	return reply(out), nil
}

func (g *nodeTools) peers(ctx context.Context, _ mcp.CallToolRequest) (*Reply, error) {
	out, err := g.Node.Peers(ctx)
	if err != nil {
		return nil, err
	}
	return reply(out), nil
}

func (g *nodeTools) minidapps(ctx context.Context, _ mcp.CallToolRequest) (*Reply, error) {
	out, err := g.Node.MiniDapps(ctx)
	if err != nil {
		return nil, err
	}
	return reply(out), nil
}

func (g *nodeTools) install(ctx context.Context, req mcp.CallToolRequest) (*Reply, error) {
	var args struct {
		FilePath string `json:"file_path" validate:"required"`
	}
	if err := bind(req, &args); err != nil {
		return nil, err
	}
	out, err := g.Node.InstallMiniDapp(ctx, args.FilePath)
	if err != nil {
		return nil, err
	}
	return reply(out).msg("MiniDapp installed successfully from " + args.FilePath), nil
}

func (g *nodeTools) minidappInfo(ctx context.Context, req mcp.CallToolRequest) (*Reply, error) {
	var args struct {
		UID string `json:"uid" validate:"required"`
	}
	if err := bind(req, &args); err != nil {
		return nil, err
	}
	out, err := g.Node.MiniDappInfo(ctx, args.UID)
	if err != nil {
		return nil, err
	}
	return reply(out), nil
}

func (g *nodeTools) execute(ctx context.Context, req mcp.CallToolRequest) (*Reply, error) {
	var args struct {
		Command string `json:"command" validate:"required"`
	}
	if err := bind(req, &args); err != nil {
		return nil, err
	}
	out, err := g.Node.ExecuteRaw(ctx, args.Command)
	if err != nil {
		return nil, err
	}
	return reply(out), nil
}

// health reports healthy:true beside the status, or a failure carrying healthy:false.
func (g *nodeTools) health(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if g.Node.Healthy(ctx) {
		status, err := g.Node.Status(ctx)
		if err == nil {
			return handle(func(context.Context, mcp.CallToolRequest) (*Reply, error) {
				return reply(status).msg("Minima node is responsive").with("healthy", true), nil
			})(ctx, req)
		}
	}
	doc := []byte(`{"success":false,"healthy":false}`)
	doc, _ = sjson.SetBytes(doc, "message", "Minima node is not responsive")
	return mcp.NewToolResultError(string(doc)), nil
}
