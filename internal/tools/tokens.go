package tools

import (
	"context"
	"encoding/json"
	"math/big"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/tansive/minima-mcp/internal/mds"
	"github.com/tidwall/gjson"
)

const (
	defaultTokenTxnLimit = 50
	// concentrationThreshold is the holder count under which a token counts as concentrated.
	concentrationThreshold = 10
	amountPrecision        = 44
)

type tokenTools struct{ Deps }

func (g *tokenTools) Name() string { return "tokens" }

func tokenIDArg() mcp.ToolOption {
	return mcp.WithString("tokenid", mcp.Required(), mcp.Description("Token ID"))
}

func (g *tokenTools) Tools() []server.ServerTool {
	return []server.ServerTool{
		tool(mcp.NewTool("get_token_details",
			mcp.WithDescription("Get token information together with the wallet balance of the token."),
			tokenIDArg(),
		), g.details),
		tool(mcp.NewTool("search_tokens",
			mcp.WithDescription("Search known tokens by name or token ID."),
			mcp.WithString("query", mcp.Description("Search term")),
		), g.search),
		tool(mcp.NewTool("get_token_holders",
			mcp.WithDescription("Get the addresses holding a token, largest first, from the coins the node tracks."),
			tokenIDArg(),
		), g.holdersTool),
		tool(mcp.NewTool("get_token_transactions",
			mcp.WithDescription("Get transactions involving a token."),
			tokenIDArg(),
			mcp.WithNumber("limit", mcp.Description("Max results"), mcp.DefaultNumber(defaultTokenTxnLimit)),
		), g.transactions),
		tool(mcp.NewTool("validate_token_script",
			mcp.WithDescription("Validate a token script and try compiling it on the node."),
			mcp.WithString("script", mcp.Required(), mcp.Description("Token script to validate")),
		), g.validateScript),
		tool(mcp.NewTool("get_token_supply",
			mcp.WithDescription("Get total and circulating supply of a token."),
			tokenIDArg(),
		), g.supplyTool),
		tool(mcp.NewTool("analyze_token",
			mcp.WithDescription("Analyze a token: details, holders, supply and concentration."),
			tokenIDArg(),
		), g.analyze),
	}
}

// parseAmount reads a node amount. Amounts are decimal strings with up to 44 places, so
// they are summed exactly.
func parseAmount(r gjson.Result) *big.Rat {
	v, ok := new(big.Rat).SetString(strings.TrimSpace(r.String()))
	if !ok {
		return new(big.Rat)
	}
	return v
}

// formatAmount renders r without trailing zeros.
func formatAmount(r *big.Rat) string {
	s := r.FloatString(amountPrecision)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}

type holder struct {
	Address string `json:"address"`
	Balance string `json:"balance"`
	amount  *big.Rat
}

type holdersReport struct {
	TokenID     string   `json:"tokenid"`
	Holders     []holder `json:"holders"`
	HolderCount int      `json:"holder_count"`
	TotalSupply string   `json:"total_supply"`
	total       *big.Rat
}

type supplyReport struct {
	TokenID           string          `json:"tokenid"`
	TotalSupply       string          `json:"total_supply"`
	CirculatingSupply string          `json:"circulating_supply"`
	TokenInfo         json.RawMessage `json:"token_info"`
	total             *big.Rat
}

// tokenRecord picks the token object out of a tokens reply, which is a list or, for a
// single token id on some nodes, the object itself.
func tokenRecord(raw json.RawMessage) gjson.Result {
	if items := mds.ListItems(raw, "tokens"); len(items) > 0 {
		return items[0]
	}
	r := gjson.ParseBytes(raw)
	if r.IsObject() {
		return r
	}
	return gjson.Result{}
}

func (g *tokenTools) holders(ctx context.Context, tokenID string) (*holdersReport, error) {
	coins, err := g.Node.Coins(ctx, mds.CoinQuery{Relevant: true, TokenID: tokenID})
	if err != nil {
		return nil, err
	}
	byAddress := make(map[string]*big.Rat)
	for _, c := range mds.ListItems(coins, "coins") {
		address := c.Get("address").String()
		if address == "" {
			continue
		}
		if byAddress[address] == nil {
			byAddress[address] = new(big.Rat)
		}
		byAddress[address].Add(byAddress[address], parseAmount(c.Get("amount")))
	}
	report := &holdersReport{TokenID: tokenID, Holders: []holder{}, total: new(big.Rat)}
	for address, amount := range byAddress {
		report.Holders = append(report.Holders, holder{Address: address, Balance: formatAmount(amount), amount: amount})
		report.total.Add(report.total, amount)
	}
	sort.Slice(report.Holders, func(i, j int) bool {
		if c := report.Holders[i].amount.Cmp(report.Holders[j].amount); c != 0 {
			return c > 0
		}
		return report.Holders[i].Address < report.Holders[j].Address
	})
	report.HolderCount = len(report.Holders)
	report.TotalSupply = formatAmount(report.total)
	return report, nil
}

func (g *tokenTools) supply(ctx context.Context, tokenID string) (*supplyReport, error) {
	info, err := g.Node.Tokens(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	holders, err := g.holders(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	total := parseAmount(tokenRecord(info).Get("total"))
	return &supplyReport{
		TokenID:           tokenID,
		TotalSupply:       formatAmount(total),
		CirculatingSupply: holders.TotalSupply,
		TokenInfo:         info,
		total:             total,
	}, nil
}

func bindTokenID(req mcp.CallToolRequest) (string, error) {
	var args struct {
		TokenID string `json:"tokenid" validate:"required"`
	}
	if err := bind(req, &args); err != nil {
		return "", err
	}
	return args.TokenID, nil
}

func (g *tokenTools) tokenDetails(ctx context.Context, tokenID string) (map[string]any, error) {
	info, err := g.Node.Tokens(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	balance, err := g.Node.Balance(ctx, mds.BalanceQuery{TokenID: tokenID})
	if err != nil {
		return nil, err
	}
	return map[string]any{"token_info": info, "balance": balance}, nil
}

func (g *tokenTools) details(ctx context.Context, req mcp.CallToolRequest) (*Reply, error) {
	tokenID, err := bindTokenID(req)
	if err != nil {
		return nil, err
	}
	d, err := g.tokenDetails(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	return reply(d), nil
}

func (g *tokenTools) search(ctx context.Context, req mcp.CallToolRequest) (*Reply, error) {
	var args struct {
		Query string `json:"query"`
	}
	if err := bind(req, &args); err != nil {
		return nil, err
	}
	raw, err := g.Node.Tokens(ctx, "")
	if err != nil {
		return nil, err
	}
	q := strings.ToLower(args.Query)
	tokens := []json.RawMessage{}
	for _, t := range mds.ListItems(raw, "tokens") {
		// Token names are either plain strings or objects carrying a name member.
		name := t.Get("name.name").String()
		if name == "" {
			name = t.Get("name").String()
		}
		if q == "" || strings.Contains(strings.ToLower(name), q) ||
			strings.Contains(strings.ToLower(t.Get("tokenid").String()), q) {
			tokens = append(tokens, json.RawMessage(t.Raw))
		}
	}
	var query any
	if args.Query != "" {
		query = args.Query
	}
	return reply(map[string]any{"tokens": tokens, "count": len(tokens), "query": query}), nil
}

func (g *tokenTools) holdersTool(ctx context.Context, req mcp.CallToolRequest) (*Reply, error) {
	tokenID, err := bindTokenID(req)
	if err != nil {
		return nil, err
	}
	h, err := g.holders(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	return reply(h), nil
}

func (g *tokenTools) transactions(ctx context.Context, req mcp.CallToolRequest) (*Reply, error) {
	args := struct {
		TokenID string `json:"tokenid" validate:"required"`
		Limit   int    `json:"limit" validate:"min=1"`
	}{Limit: defaultTokenTxnLimit}
	if err := bind(req, &args); err != nil {
		return nil, err
	}
	out, err := g.Node.Search(ctx, mds.SearchQuery{TokenID: args.TokenID})
	if err != nil {
		return nil, err
	}
	txns := []json.RawMessage{}
	for _, t := range mds.ListItems(out, "txpows") {
		if len(txns) == args.Limit {
			break
		}
		txns = append(txns, json.RawMessage(t.Raw))
	}
	return reply(map[string]any{"tokenid": args.TokenID, "transactions": txns, "count": len(txns)}), nil
}

func (g *tokenTools) validateScript(ctx context.Context, req mcp.CallToolRequest) (*Reply, error) {
	var args struct {
		Script string `json:"script"`
	}
	if err := bind(req, &args); err != nil {
		return nil, err
	}
	problems := []string{}
	warnings := []string{}
	if strings.TrimSpace(args.Script) == "" {
		problems = append(problems, "Script is empty")
	}
	if !strings.Contains(strings.ToUpper(args.Script), "RETURN TRUE") {
		warnings = append(warnings, "Script should end with RETURN TRUE for spendable tokens")
	}
	compiled := false
	var address any
	if len(problems) == 0 {
		out, err := compileScript(ctx, g.Node, args.Script)
		if err != nil {
			problems = append(problems, "Compilation error: "+errorText(err))
		} else {
			compiled = true
			if a := gjson.GetBytes(out, "address").String(); a != "" {
				address = a
			}
		}
	}
	return reply(map[string]any{
		"valid":          len(problems) == 0,
		"compiled":       compiled,
		"errors":         problems,
		"warnings":       warnings,
		"script_address": address,
	}), nil
}

func (g *tokenTools) supplyTool(ctx context.Context, req mcp.CallToolRequest) (*Reply, error) {
	tokenID, err := bindTokenID(req)
	if err != nil {
		return nil, err
	}
	s, err := g.supply(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	return reply(s), nil
}

func (g *tokenTools) analyze(ctx context.Context, req mcp.CallToolRequest) (*Reply, error) {
	tokenID, err := bindTokenID(req)
	if err != nil {
		return nil, err
	}
	details, err := g.tokenDetails(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	holders, err := g.holders(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	supply, err := g.supply(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	topShare := 0.0
	if len(holders.Holders) > 0 && supply.total.Sign() > 0 {
		share := new(big.Rat).Quo(holders.Holders[0].amount, supply.total)
		share.Mul(share, big.NewRat(100, 1))
		topShare, _ = share.Float64()
	}
	return reply(map[string]any{
		"tokenid": tokenID,
		"details": details,
		"holders": holders,
		"supply":  supply,
		"analysis": map[string]any{
			"is_concentrated":       holders.HolderCount < concentrationThreshold,
			"top_holder_percentage": topShare,
		},
	}), nil
}
