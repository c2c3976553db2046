package mds

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// MinimaTokenID is the token id of native Minima.
const MinimaTokenID = "0x00"

// NodeStatus holds the status fields the tool layer reads. Missing string fields are
// reported as "unknown" the way the node's own tooling does.
type NodeStatus struct {
	Version    string          `json:"version"`
	Uptime     string          `json:"uptime"`
	DataDir    string          `json:"data"`
	Chain      ChainStatus     `json:"chain"`
	Memory     MemoryUsage     `json:"memory"`
	RawPayload json.RawMessage `json:"-"`
}

type ChainStatus struct {
	Block      int64  `json:"block"`
	Weight     string `json:"weight"`
	Length     int64  `json:"length"`
	Sync       string `json:"sync"`
	Cascade    string `json:"cascade"`
	Difficulty string `json:"difficulty"`
}

// MemoryUsage carries the node's human readable memory figures, e.g. "512.0 MB".
type MemoryUsage struct {
	Total string `json:"total"`
	Used  string `json:"used"`
	Free  string `json:"free"`
}

// DecodeStatus checks the shape of a status payload and extracts its known fields.
// Only an object with a chain member is accepted.
func DecodeStatus(raw json.RawMessage) (*NodeStatus, error) {
	if !gjson.ValidBytes(raw) {
		return nil, ErrInvalidResponse.Msg("status payload is not valid JSON")
	}
	r := gjson.ParseBytes(raw)
	if !r.IsObject() {
		return nil, ErrInvalidResponse.Msgf("status payload is %s, want object", r.Type.String())
	}
	chain := r.Get("chain")
	if !chain.IsObject() {
		return nil, ErrInvalidResponse.Msg("status payload has no chain object")
	}
	return &NodeStatus{
		Version: stringOr(r.Get("version"), "unknown"),
		Uptime:  stringOr(r.Get("uptime"), "unknown"),
		DataDir: stringOr(r.Get("data"), "unknown"),
		Chain: ChainStatus{
			Block:      chain.Get("block").Int(),
			Weight:     stringOr(chain.Get("weight"), "0"),
			Length:     chain.Get("length").Int(),
			Sync:       stringOr(chain.Get("sync"), "unknown"),
			Cascade:    stringOr(chain.Get("cascade"), "unknown"),
			Difficulty: stringOr(chain.Get("difficulty"), "unknown"),
		},
		Memory: MemoryUsage{
			Total: stringOr(r.Get("memory.total"), "unknown"),
			Used:  stringOr(r.Get("memory.used"), "unknown"),
			Free:  stringOr(r.Get("memory.free"), "unknown"),
		},
		RawPayload: raw,
	}, nil
}

// ListItems returns the elements of a list payload. Nodes answer list commands either
// with a bare array or with an object holding the array under key; both are accepted.
// Anything else yields nil.
func ListItems(raw json.RawMessage, key string) []gjson.Result {
	r := gjson.ParseBytes(raw)
	if r.IsArray() {
		return r.Array()
	}
	if v := r.Get(key); r.IsObject() && v.IsArray() {
		return v.Array()
	}
	return nil
}

// ParseSize converts a figure such as "1.5 GB" or "512MB" to bytes. Unknown units and
// unparsable numbers give 0.
func ParseSize(s string) float64 {
	s = strings.ToUpper(strings.TrimSpace(s))
	units := []struct {
		suffix string
		mult   float64
	}{
		{"TB", 1 << 40}, {"GB", 1 << 30}, {"MB", 1 << 20}, {"KB", 1 << 10}, {"B", 1},
	}
	for _, u := range units {
		if strings.HasSuffix(s, u.suffix) {
			n, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(s, u.suffix)), 64)
			if err != nil {
				return 0
			}
			return n * u.mult
		}
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return n
}

func stringOr(r gjson.Result, def string) string {
	if !r.Exists() || r.Type == gjson.Null {
		return def
	}
	return r.String()
}
