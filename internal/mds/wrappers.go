package mds

import (
	"context"
	"encoding/json"
	"strconv"
)

// BalanceQuery filters a balance lookup. Empty fields are left out of the command.
type BalanceQuery struct {
	Address       string
	TokenID       string
	Confirmations *int
}

// Balance returns wallet balances.
func (c *Client) Balance(ctx context.Context, q BalanceQuery) (json.RawMessage, error) {
	return c.Execute(ctx, "balance",
		Opt("address", q.Address),
		Opt("tokenid", q.TokenID),
		P("confirmations", q.Confirmations),
	)
}

// Status returns node and chain status.
func (c *Client) Status(ctx context.Context) (json.RawMessage, error) {
	return c.Execute(ctx, "status")
}

// SendRequest describes a value transfer. TokenID defaults to Minima (0x00).
type SendRequest struct {
	Amount  string
	Address string
	TokenID string
	State   map[string]string
}

// Send transfers Minima or a token to an address.
func (c *Client) Send(ctx context.Context, r SendRequest) (json.RawMessage, error) {
	if r.Amount == "" || r.Address == "" {
		return nil, ErrInvalidArgument.Msg("amount and address are required")
	}
	tokenID := r.TokenID
	if tokenID == "" {
		tokenID = MinimaTokenID
	}
	params := []Param{P("amount", r.Amount), P("address", r.Address), P("tokenid", tokenID)}
	if len(r.State) > 0 {
		state, err := json.Marshal(r.State)
		if err != nil {
			return nil, ErrInvalidArgument.MsgErr("invalid state", err)
		}
		params = append(params, P("state", string(state)))
	}
	return c.Execute(ctx, "send", params...)
}

// TokenRequest describes a token to mint. Decimals defaults to 8 when nil.
type TokenRequest struct {
	Name        string
	Amount      string
	Decimals    *int
	Description string
	Icon        string
	Proof       string
}

// CreateToken mints a new token.
func (c *Client) CreateToken(ctx context.Context, r TokenRequest) (json.RawMessage, error) {
	if r.Name == "" || r.Amount == "" {
		return nil, ErrInvalidArgument.Msg("name and amount are required")
	}
	decimals := 8
	if r.Decimals != nil {
		decimals = *r.Decimals
	}
	return c.Execute(ctx, "tokencreate",
		P("name", r.Name),
		P("amount", r.Amount),
		P("decimals", decimals),
		Opt("description", r.Description),
		Opt("icon", r.Icon),
		Opt("proof", r.Proof),
	)
}

// Tokens lists known tokens, or one token when tokenID is set.
func (c *Client) Tokens(ctx context.Context, tokenID string) (json.RawMessage, error) {
	return c.Execute(ctx, "tokens", Opt("tokenid", tokenID))
}

// NewAddress returns a wallet address.
func (c *Client) NewAddress(ctx context.Context) (json.RawMessage, error) {
	return c.Execute(ctx, "getaddress")
}

// CoinQuery filters a coin listing. Relevant and Sendable are always sent.
type CoinQuery struct {
	Relevant bool
	Sendable bool
	Address  string
	TokenID  string
}

// Coins lists unspent coins.
func (c *Client) Coins(ctx context.Context, q CoinQuery) (json.RawMessage, error) {
	return c.Execute(ctx, "coins",
		P("relevant", strconv.FormatBool(q.Relevant)),
		P("sendable", strconv.FormatBool(q.Sendable)),
		Opt("address", q.Address),
		Opt("tokenid", q.TokenID),
	)
}

// MiniDapps lists installed MiniDapps.
func (c *Client) MiniDapps(ctx context.Context) (json.RawMessage, error) {
	return c.Execute(ctx, "mds")
}

// InstallMiniDapp installs a .mds.zip that is readable by the node.
func (c *Client) InstallMiniDapp(ctx context.Context, path string) (json.RawMessage, error) {
	return c.Execute(ctx, "mds", P("action", "install"), P("file", path))
}

// InstallMiniDappText installs a .mds.zip and returns the node's raw acknowledgement.
func (c *Client) InstallMiniDappText(ctx context.Context, path string) (string, error) {
	return c.ExecuteText(ctx, "mds", P("action", "install"), P("file", path))
}

// MiniDappInfo describes one installed MiniDapp.
func (c *Client) MiniDappInfo(ctx context.Context, uid string) (json.RawMessage, error) {
	return c.Execute(ctx, "mds", P("action", "info"), P("uid", uid))
}

func (c *Client) Network(ctx context.Context) (json.RawMessage, error) {
	return c.Execute(ctx, "network")
}

func (c *Client) Peers(ctx context.Context) (json.RawMessage, error) {
	return c.Execute(ctx, "peers")
}

// TxPoW looks up a transaction proof of work by id.
func (c *Client) TxPoW(ctx context.Context, txpowID string) (json.RawMessage, error) {
	return c.Execute(ctx, "txpow", P("txpowid", txpowID))
}

// SearchQuery filters a chain search.
type SearchQuery struct {
	Block   *int64
	Address string
	TokenID string
}

// Search searches the chain by block, address or token.
func (c *Client) Search(ctx context.Context, q SearchQuery) (json.RawMessage, error) {
	return c.Execute(ctx, "search",
		P("block", q.Block),
		Opt("address", q.Address),
		Opt("tokenid", q.TokenID),
	)
}
