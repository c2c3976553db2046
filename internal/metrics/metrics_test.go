package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tansive/minima-mcp/internal/mds"
)

func TestOutcome(t *testing.T) {
	assert.Equal(t, "ok", Outcome(nil))
	assert.Equal(t, "pending", Outcome(mds.ErrPendingCommand.Msg("needs approval")))
	assert.Equal(t, "rejected", Outcome(mds.ErrNotAuthenticated))
	assert.Equal(t, "rejected", Outcome(mds.ErrInvalidArgument.Msg("amount is required")))
	assert.Equal(t, "failed", Outcome(mds.ErrCommandFailed.Msg("command failed: Insufficient funds")))
	assert.Equal(t, "failed", Outcome(mds.ErrConfirmFailed.MsgErr("confirmation failed: nope", mds.ErrCommandFailed)))
	assert.Equal(t, "error", Outcome(errors.New("boom")))
}

func TestObserve(t *testing.T) {
	before := testutil.ToFloat64(commands.WithLabelValues("balance", "ok"))
	ObserveCommand("balance", 20*time.Millisecond, nil)
	ObserveCommand("balance", 20*time.Millisecond, nil)
	assert.Equal(t, before+2, testutil.ToFloat64(commands.WithLabelValues("balance", "ok")))

	ObserveTool("get_balance", time.Millisecond, true)
	assert.Equal(t, float64(1), testutil.ToFloat64(toolCalls.WithLabelValues("get_balance", "error")))

	ObserveEvent("NEWBLOCK")
	SetBlockHeight(1234)
	assert.Equal(t, float64(1234), testutil.ToFloat64(blockHeight))

	srv := httptest.NewServer(Handler())
	defer srv.Close()
	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), `minima_mcp_mds_commands_total{command="balance",outcome="ok"}`)
	assert.Contains(t, string(body), `minima_mcp_events_recorded_total{type="NEWBLOCK"} 1`)
}
