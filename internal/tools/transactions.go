package tools

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/tansive/minima-mcp/internal/common/uuid"
	"github.com/tansive/minima-mcp/internal/mds"
	"github.com/tansive/minima-mcp/internal/store"
	"github.com/tidwall/gjson"
)

// Builder session states.
const (
	TxnCreated  = "created"
	TxnSigned   = "signed"
	TxnPosted   = "posted"
	TxnImported = "imported"
)

// TxnSession tracks a custom transaction the node is building, so its inputs and outputs
// can be reviewed before posting.
type TxnSession struct {
	ID        string          `json:"id"`
	State     string          `json:"state"`
	Inputs    []TxnInput      `json:"inputs"`
	Outputs   []TxnOutput     `json:"outputs"`
	CreatedAt time.Time       `json:"created_at"`
	Result    json.RawMessage `json:"result,omitempty"`
	TxPoW     json.RawMessage `json:"txpow,omitempty"`
}

type TxnInput struct {
	CoinID string `json:"coin_id"`
	Amount string `json:"amount,omitempty"`
	Script string `json:"script,omitempty"`
}

type TxnOutput struct {
	Address string            `json:"address"`
	Amount  string            `json:"amount"`
	TokenID string            `json:"tokenid"`
	State   map[string]string `json:"state,omitempty"`
}

type txnTemplate struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Steps       []string `json:"steps"`
}

var txnTemplates = map[string]txnTemplate{
	"simple_send": {
		Name:        "Simple Send",
		Description: "Basic Minima send transaction",
		Steps:       []string{"1. Create transaction", "2. Add input (coin to spend)", "3. Add output (recipient)", "4. Sign transaction", "5. Post to network"},
	},
	"token_transfer": {
		Name:        "Token Transfer",
		Description: "Send custom tokens",
		Steps:       []string{"1. Create transaction", "2. Add input with token", "3. Add output with tokenid", "4. Sign and post"},
	},
	"multisig_send": {
		Name:        "Multisig Send",
		Description: "Transaction requiring multiple signatures",
		Steps:       []string{"1. Create transaction", "2. Add inputs with multisig script", "3. Add outputs", "4. Sign with first key", "5. Share for additional signatures", "6. Post when fully signed"},
	},
	"atomic_swap": {
		Name:        "Atomic Swap",
		Description: "Cross-chain or token swap",
		Steps:       []string{"1. Create transaction with HTLC script", "2. Add inputs for both parties", "3. Add locked outputs", "4. Share hash preimage", "5. Complete or refund"},
	},
}

type transactionTools struct {
	Deps
	// mu serializes session updates.
	mu sync.Mutex
}

func (g *transactionTools) Name() string { return "transactions" }

func txnID() mcp.ToolOption {
	return mcp.WithString("transaction_id", mcp.Required(), mcp.Description("Transaction ID"))
}

func (g *transactionTools) Tools() []server.ServerTool {
	return []server.ServerTool{
		tool(mcp.NewTool("create_custom_transaction",
			mcp.WithDescription("Start building a custom transaction on the node."),
			mcp.WithString("transaction_id", mcp.Description("Optional transaction ID; one is generated when omitted")),
		), g.create),
		tool(mcp.NewTool("add_transaction_input",
			mcp.WithDescription("Add an input coin to a custom transaction."),
			txnID(),
			mcp.WithString("coin_id", mcp.Required(), mcp.Description("Coin ID to spend")),
			mcp.WithString("amount", mcp.Description("Amount")),
			mcp.WithString("script", mcp.Description("Custom script")),
			mcp.WithBoolean("scriptmmr", mcp.Description("Add the script proofs from the MMR"), mcp.DefaultBool(true)),
		), g.addInput),
		tool(mcp.NewTool("add_transaction_output",
			mcp.WithDescription("Add an output to a custom transaction."),
			txnID(),
			mcp.WithString("address", mcp.Required(), mcp.Description("Recipient address")),
			mcp.WithString("amount", mcp.Required(), mcp.Description("Amount to send")),
			mcp.WithString("tokenid", mcp.Description("Token ID"), mcp.DefaultString(mds.MinimaTokenID)),
			mcp.WithObject("state", mcp.Description("State variables, port to value"), mcp.AdditionalProperties(map[string]any{"type": "string"})),
		), g.addOutput),
		tool(mcp.NewTool("sign_transaction",
			mcp.WithDescription("Sign a custom transaction with the wallet keys."),
			txnID(),
			mcp.WithString("publickey", mcp.Description("Sign with this public key only")),
		), g.sign),
		tool(mcp.NewTool("post_transaction",
			mcp.WithDescription("Broadcast a signed custom transaction to the network."),
			txnID(),
		), g.post),
		tool(mcp.NewTool("simulate_transaction",
			mcp.WithDescription("Check a custom transaction without broadcasting it."),
			txnID(),
		), g.simulate),
		tool(mcp.NewTool("get_transaction_status",
			mcp.WithDescription("Get the node's view and the tracked state of a custom transaction."),
			txnID(),
		), g.status),
		tool(mcp.NewTool("delete_transaction",
			mcp.WithDescription("Delete a custom transaction."),
			txnID(),
		), g.delete),
		tool(mcp.NewTool("get_transaction_templates",
			mcp.WithDescription("List step-by-step recipes for common custom transactions."),
		), g.templates),
		tool(mcp.NewTool("list_active_transactions",
			mcp.WithDescription("List the custom transactions being tracked."),
		), g.list),
		tool(mcp.NewTool("import_transaction",
			mcp.WithDescription("Import a transaction from exported hex data."),
			mcp.WithString("transaction_data", mcp.Required(), mcp.Description("Transaction hex data")),
		), g.importTxn),
		tool(mcp.NewTool("export_transaction",
			mcp.WithDescription("Export a custom transaction as hex data."),
			txnID(),
		), g.export),
	}
}

// session loads a tracked session. ok is false when the transaction is not tracked, which
// is not an error: it may have been built outside this server.
func (g *transactionTools) session(ctx context.Context, id string) (*TxnSession, bool, error) {
	var s TxnSession
	if err := g.Store.Get(ctx, store.Transactions, id, &s); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return &s, true, nil
}

// update applies fn to a tracked session and saves it.
func (g *transactionTools) update(ctx context.Context, id string, fn func(*TxnSession)) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, ok, err := g.session(ctx, id)
	if err != nil || !ok {
		return err
	}
	fn(s)
	return g.Store.Put(ctx, store.Transactions, id, s)
}

func (g *transactionTools) create(ctx context.Context, req mcp.CallToolRequest) (*Reply, error) {
	var args struct {
		TransactionID string `json:"transaction_id"`
	}
	if err := bind(req, &args); err != nil {
		return nil, err
	}
	id := args.TransactionID
	if id == "" {
		id = uuid.NewID("txn")
	}
	out, err := g.Node.Execute(ctx, "txncreate", mds.P("id", id))
	if err != nil {
		return nil, err
	}
	if nodeID := gjson.GetBytes(out, "id").String(); nodeID != "" {
		id = nodeID
	}
	s := &TxnSession{
		ID:        id,
		State:     TxnCreated,
		Inputs:    []TxnInput{},
		Outputs:   []TxnOutput{},
		CreatedAt: time.Now().UTC(),
		Result:    out,
	}
	g.mu.Lock()
	err = g.Store.Put(ctx, store.Transactions, id, s)
	g.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return reply(map[string]any{"transaction_id": id, "transaction": s}).msg("Transaction created"), nil
}

func (g *transactionTools) addInput(ctx context.Context, req mcp.CallToolRequest) (*Reply, error) {
	args := struct {
		TransactionID string `json:"transaction_id" validate:"required"`
		CoinID        string `json:"coin_id" validate:"required"`
		Amount        string `json:"amount"`
		Script        string `json:"script"`
		ScriptMMR     bool   `json:"scriptmmr"`
	}{ScriptMMR: true}
	if err := bind(req, &args); err != nil {
		return nil, err
	}
	params := []mds.Param{
		mds.P("id", args.TransactionID),
		mds.P("coinid", args.CoinID),
		mds.Opt("amount", args.Amount),
	}
	if args.Script != "" {
		params = append(params, mds.P("script", mds.Quote(args.Script)))
	}
	if args.ScriptMMR {
		params = append(params, mds.P("scriptmmr", "true"))
	}
	out, err := g.Node.Execute(ctx, "txninput", params...)
	if err != nil {
		return nil, err
	}
	in := TxnInput{CoinID: args.CoinID, Amount: args.Amount, Script: args.Script}
	if err := g.update(ctx, args.TransactionID, func(s *TxnSession) { s.Inputs = append(s.Inputs, in) }); err != nil {
		return nil, err
	}
	return reply(map[string]any{
		"transaction_id": args.TransactionID,
		"input":          in,
		"result":         out,
	}).msg("Input added to transaction"), nil
}

func (g *transactionTools) addOutput(ctx context.Context, req mcp.CallToolRequest) (*Reply, error) {
	args := struct {
		TransactionID string            `json:"transaction_id" validate:"required"`
		Address       string            `json:"address" validate:"required"`
		Amount        string            `json:"amount" validate:"required"`
		TokenID       string            `json:"tokenid"`
		State         map[string]string `json:"state"`
	}{TokenID: mds.MinimaTokenID}
	if err := bind(req, &args); err != nil {
		return nil, err
	}
	params := []mds.Param{
		mds.P("id", args.TransactionID),
		mds.P("address", args.Address),
		mds.P("amount", args.Amount),
		mds.P("tokenid", args.TokenID),
	}
	ports := make([]string, 0, len(args.State))
	for port := range args.State {
		ports = append(ports, port)
	}
	sort.Strings(ports)
	for _, port := range ports {
		params = append(params, mds.P("state", port+":"+args.State[port]))
	}
	out, err := g.Node.Execute(ctx, "txnoutput", params...)
	if err != nil {
		return nil, err
	}
	o := TxnOutput{Address: args.Address, Amount: args.Amount, TokenID: args.TokenID, State: args.State}
	if err := g.update(ctx, args.TransactionID, func(s *TxnSession) { s.Outputs = append(s.Outputs, o) }); err != nil {
		return nil, err
	}
	return reply(map[string]any{
		"transaction_id": args.TransactionID,
		"output":         o,
		"result":         out,
	}).msg("Output added to transaction"), nil
}

func (g *transactionTools) sign(ctx context.Context, req mcp.CallToolRequest) (*Reply, error) {
	var args struct {
		TransactionID string `json:"transaction_id" validate:"required"`
		PublicKey     string `json:"publickey"`
	}
	if err := bind(req, &args); err != nil {
		return nil, err
	}
	out, err := g.Node.Execute(ctx, "txnsign", mds.P("id", args.TransactionID), mds.Opt("publickey", args.PublicKey))
	if err != nil {
		return nil, err
	}
	if err := g.update(ctx, args.TransactionID, func(s *TxnSession) { s.State = TxnSigned }); err != nil {
		return nil, err
	}
	return reply(map[string]any{"transaction_id": args.TransactionID, "result": out}).msg("Transaction signed"), nil
}

func (g *transactionTools) post(ctx context.Context, req mcp.CallToolRequest) (*Reply, error) {
	var args struct {
		TransactionID string `json:"transaction_id" validate:"required"`
	}
	if err := bind(req, &args); err != nil {
		return nil, err
	}
	out, err := g.Node.Execute(ctx, "txnpost", mds.P("id", args.TransactionID))
	if err != nil {
		return nil, err
	}
	err = g.update(ctx, args.TransactionID, func(s *TxnSession) {
		s.State = TxnPosted
		s.TxPoW = out
	})
	if err != nil {
		return nil, err
	}
	return reply(map[string]any{"transaction_id": args.TransactionID, "result": out}).msg("Transaction posted to network"), nil
}

func (g *transactionTools) simulate(ctx context.Context, req mcp.CallToolRequest) (*Reply, error) {
	var args struct {
		TransactionID string `json:"transaction_id" validate:"required"`
	}
	if err := bind(req, &args); err != nil {
		return nil, err
	}
	out, err := g.Node.Execute(ctx, "txncheck", mds.P("id", args.TransactionID))
	if err != nil {
		return nil, err
	}
	warnings := []string{}
	s, ok, err := g.session(ctx, args.TransactionID)
	if err != nil {
		return nil, err
	}
	if ok {
		if len(s.Inputs) == 0 {
			warnings = append(warnings, "No inputs specified")
		}
		if len(s.Outputs) == 0 {
			warnings = append(warnings, "No outputs specified")
		}
	}
	valid := len(warnings) == 0
	if v := gjson.GetBytes(out, "valid.transaction"); v.Exists() && !v.Bool() {
		valid = false
	}
	return reply(map[string]any{
		"transaction_id": args.TransactionID,
		"valid":          valid,
		"warnings":       warnings,
		"simulation":     out,
	}), nil
}

func (g *transactionTools) status(ctx context.Context, req mcp.CallToolRequest) (*Reply, error) {
	var args struct {
		TransactionID string `json:"transaction_id" validate:"required"`
	}
	if err := bind(req, &args); err != nil {
		return nil, err
	}
	out, err := g.Node.Execute(ctx, "txnlist", mds.P("id", args.TransactionID))
	if err != nil {
		return nil, err
	}
	s, ok, err := g.session(ctx, args.TransactionID)
	if err != nil {
		return nil, err
	}
	data := map[string]any{
		"transaction_id": args.TransactionID,
		"local_state":    "unknown",
		"minima_data":    out,
		"inputs":         []TxnInput{},
		"outputs":        []TxnOutput{},
	}
	if ok {
		data["local_state"] = s.State
		data["inputs"] = s.Inputs
		data["outputs"] = s.Outputs
	}
	return reply(data), nil
}

func (g *transactionTools) delete(ctx context.Context, req mcp.CallToolRequest) (*Reply, error) {
	var args struct {
		TransactionID string `json:"transaction_id" validate:"required"`
	}
	if err := bind(req, &args); err != nil {
		return nil, err
	}
	out, err := g.Node.Execute(ctx, "txndelete", mds.P("id", args.TransactionID))
	if err != nil {
		return nil, err
	}
	g.mu.Lock()
	err = g.Store.Delete(ctx, store.Transactions, args.TransactionID)
	g.mu.Unlock()
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	return reply(map[string]any{"transaction_id": args.TransactionID, "result": out}).msg("Transaction deleted"), nil
}

func (g *transactionTools) templates(context.Context, mcp.CallToolRequest) (*Reply, error) {
	return reply(map[string]any{"templates": txnTemplates, "count": len(txnTemplates)}), nil
}

func (g *transactionTools) list(ctx context.Context, _ mcp.CallToolRequest) (*Reply, error) {
	sessions, err := store.ListAs[TxnSession](ctx, g.Store, store.Transactions)
	if err != nil {
		return nil, err
	}
	return reply(map[string]any{"transactions": sessions, "count": len(sessions)}), nil
}

func (g *transactionTools) importTxn(ctx context.Context, req mcp.CallToolRequest) (*Reply, error) {
	var args struct {
		Data string `json:"transaction_data" validate:"required"`
	}
	if err := bind(req, &args); err != nil {
		return nil, err
	}
	out, err := g.Node.Execute(ctx, "txnimport", mds.P("data", args.Data))
	if err != nil {
		return nil, err
	}
	id := gjson.GetBytes(out, "id").String()
	if id == "" {
		return nil, ErrUnexpectedReply.Msg("Failed to import transaction: no id returned")
	}
	s := &TxnSession{
		ID:        id,
		State:     TxnImported,
		Inputs:    []TxnInput{},
		Outputs:   []TxnOutput{},
		CreatedAt: time.Now().UTC(),
		Result:    out,
	}
	g.mu.Lock()
	err = g.Store.Put(ctx, store.Transactions, id, s)
	g.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return reply(map[string]any{"transaction_id": id, "result": out}).msg("Transaction imported"), nil
}

func (g *transactionTools) export(ctx context.Context, req mcp.CallToolRequest) (*Reply, error) {
	var args struct {
		TransactionID string `json:"transaction_id" validate:"required"`
	}
	if err := bind(req, &args); err != nil {
		return nil, err
	}
	out, err := g.Node.Execute(ctx, "txnexport", mds.P("id", args.TransactionID))
	if err != nil {
		return nil, err
	}
	return reply(map[string]any{"transaction_id": args.TransactionID, "export_data": out}), nil
}
