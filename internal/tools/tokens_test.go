package tools

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestFormatAmount(t *testing.T) {
	cases := map[string]string{
		"1.50000":   "1.5",
		"10":        "10",
		"0":         "0",
		"0.0000001": "0.0000001",
		"-2.5":      "-2.5",
	}
	for in, want := range cases {
		assert.Equal(t, want, formatAmount(parseAmount(gjson.Parse(`"`+in+`"`))), in)
	}
	assert.Equal(t, 0, parseAmount(gjson.Parse(`"not a number"`)).Cmp(new(big.Rat)))
	// Summing stays exact where float64 would drift.
	sum := new(big.Rat).Add(parseAmount(gjson.Parse(`"0.1"`)), parseAmount(gjson.Parse(`"0.2"`)))
	assert.Equal(t, "0.3", formatAmount(sum))
}

func tokenNode(h *harness) {
	h.node.HandleResponse("tokens", []map[string]any{
		{"tokenid": "0xT", "name": map[string]any{"name": "Gold"}, "total": "100"},
		{"tokenid": "0xS", "name": "Silver", "total": "5"},
	})
	h.node.HandleResponse("coins", []map[string]any{
		{"address": "MxA", "amount": "1.5", "tokenid": "0xT"},
		{"address": "MxB", "amount": "10", "tokenid": "0xT"},
		{"address": "MxA", "amount": "0.25", "tokenid": "0xT"},
		{"amount": "3"},
	})
	h.node.HandleResponse("balance", []map[string]any{{"tokenid": "0xT", "confirmed": "11.75"}})
}

func TestTokenHolders(t *testing.T) {
	h := newHarness(t)
	tokenNode(h)

	env := h.ok(t, "get_token_holders", map[string]any{"tokenid": "0xT"})
	assert.Equal(t, "coins relevant:true sendable:false tokenid:0xT", h.lastCommand(t))
	assert.Equal(t, int64(2), env.Get("data.holder_count").Int())
	assert.Equal(t, "MxB", env.Get("data.holders.0.address").String())
	assert.Equal(t, "10", env.Get("data.holders.0.balance").String())
	assert.Equal(t, "1.75", env.Get("data.holders.1.balance").String())
	assert.Equal(t, "11.75", env.Get("data.total_supply").String())

	msg := h.fail(t, "get_token_holders", nil)
	assert.Equal(t, "tokenid is required", msg)
}

func TestTokenSupplyAndAnalysis(t *testing.T) {
	h := newHarness(t)
	tokenNode(h)

	env := h.ok(t, "get_token_supply", map[string]any{"tokenid": "0xT"})
	// The fake node answers every tokens query with the full list, so the first entry is read.
	assert.Equal(t, "100", env.Get("data.total_supply").String())
	assert.Equal(t, "11.75", env.Get("data.circulating_supply").String())

	env = h.ok(t, "analyze_token", map[string]any{"tokenid": "0xT"})
	assert.True(t, env.Get("data.analysis.is_concentrated").Bool())
	assert.InDelta(t, 10.0, env.Get("data.analysis.top_holder_percentage").Float(), 1e-9)
	assert.Equal(t, "11.75", env.Get("data.details.balance.0.confirmed").String())
}

func TestSearchTokens(t *testing.T) {
	h := newHarness(t)
	tokenNode(h)

	env := h.ok(t, "search_tokens", map[string]any{"query": "gold"})
	require.Equal(t, int64(1), env.Get("data.count").Int())
	assert.Equal(t, "0xT", env.Get("data.tokens.0.tokenid").String())
	assert.Equal(t, "gold", env.Get("data.query").String())

	env = h.ok(t, "search_tokens", map[string]any{"query": "0xs"})
	require.Equal(t, int64(1), env.Get("data.count").Int())
	assert.Equal(t, "Silver", env.Get("data.tokens.0.name").String())

	env = h.ok(t, "search_tokens", nil)
	assert.Equal(t, int64(2), env.Get("data.count").Int())
	assert.Equal(t, gjson.Null, env.Get("data.query").Type)
}

func TestTokenTransactions(t *testing.T) {
	h := newHarness(t)
	h.node.HandleResponse("search", map[string]any{"txpows": []map[string]any{{"txpowid": "0x1"}, {"txpowid": "0x2"}, {"txpowid": "0x3"}}})

	env := h.ok(t, "get_token_transactions", map[string]any{"tokenid": "0xT", "limit": 2})
	assert.Equal(t, "search tokenid:0xT", h.lastCommand(t))
	assert.Equal(t, int64(2), env.Get("data.count").Int())
	assert.Equal(t, "0x2", env.Get("data.transactions.1.txpowid").String())
}

func TestValidateTokenScript(t *testing.T) {
	h := newHarness(t)
	h.node.HandleResponse("newscript", map[string]any{"address": "0xADDR"})

	env := h.ok(t, "validate_token_script", map[string]any{"script": "RETURN SIGNEDBY(0xAB)"})
	assert.True(t, env.Get("data.valid").Bool())
	assert.True(t, env.Get("data.compiled").Bool())
	assert.Equal(t, "0xADDR", env.Get("data.script_address").String())
	assert.Equal(t, "Script should end with RETURN TRUE for spendable tokens", env.Get("data.warnings.0").String())

	env = h.ok(t, "validate_token_script", map[string]any{"script": "  "})
	assert.False(t, env.Get("data.valid").Bool())
	assert.False(t, env.Get("data.compiled").Bool())
	assert.Equal(t, "Script is empty", env.Get("data.errors.0").String())
}
