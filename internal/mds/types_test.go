package mds

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeStatus(t *testing.T) {
	raw := json.RawMessage(`{
		"version": "1.0.45",
		"uptime": "2 Days 3 Hours",
		"data": "/home/minima/.minima",
		"memory": {"total": "1.0 GB", "used": "256.0 MB", "free": "768.0 MB"},
		"chain": {"block": 1234567, "weight": "9.9E10", "length": 1700, "sync": "100%", "cascade": 256, "difficulty": "0x00FF"}
	}`)
	s, err := DecodeStatus(raw)
	require.NoError(t, err)
	assert.Equal(t, "1.0.45", s.Version)
	assert.Equal(t, int64(1234567), s.Chain.Block)
	assert.Equal(t, "9.9E10", s.Chain.Weight)
	assert.Equal(t, "256", s.Chain.Cascade)
	assert.Equal(t, "256.0 MB", s.Memory.Used)
	assert.Equal(t, "/home/minima/.minima", s.DataDir)

	s, err = DecodeStatus(json.RawMessage(`{"chain":{}}`))
	require.NoError(t, err)
	assert.Equal(t, "unknown", s.Version)
	assert.Equal(t, "unknown", s.Chain.Sync)
	assert.Equal(t, "0", s.Chain.Weight)

	for _, bad := range []string{`[]`, `{"version":"1"}`, `nope`, `"text"`} {
		_, err := DecodeStatus(json.RawMessage(bad))
		assert.ErrorIs(t, err, ErrInvalidResponse, bad)
	}
}

func TestListItems(t *testing.T) {
	assert.Len(t, ListItems(json.RawMessage(`[1,2,3]`), "coins"), 3)
	assert.Len(t, ListItems(json.RawMessage(`{"coins":[{"a":1}]}`), "coins"), 1)
	assert.Nil(t, ListItems(json.RawMessage(`{"other":[1]}`), "coins"))
	assert.Nil(t, ListItems(json.RawMessage(`"x"`), "coins"))
}

func TestParseSize(t *testing.T) {
	assert.Equal(t, float64(512*1024*1024), ParseSize("512.0 MB"))
	assert.Equal(t, 1.5*(1<<30), ParseSize("1.5GB"))
	assert.Equal(t, float64(100), ParseSize("100"))
	assert.Zero(t, ParseSize("lots"))
	assert.Zero(t, ParseSize("x KB"))
}
