package mds

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tansive/minima-mcp/internal/mds/mdstest"
)

const testPassword = "s3cret"

func newTestNode(t *testing.T) *mdstest.Node {
	t.Helper()
	n := mdstest.NewNode(testPassword)
	t.Cleanup(n.Close)
	return n
}

func testOptions(n *mdstest.Node) Options {
	return Options{
		Host:     n.Host(),
		Port:     n.Port(),
		Password: testPassword,
		UseHTTP:  true,
		Timeout:  5 * time.Second,
		Retry:    RetryPolicy{MaxRetries: 2, Backoff: time.Millisecond},
	}
}

func newTestClient(t *testing.T, n *mdstest.Node) *Client {
	t.Helper()
	c, err := New(context.Background(), testOptions(n))
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func TestExtractSessionUID(t *testing.T) {
	tests := []struct {
		body string
		want string
		ok   bool
	}{
		{mdstest.LoginPage("0xABCDEF"), "0xABCDEF", true},
		{"garbage before UID=0xabc123 and after uid=0xFFFF", "0xabc123", true},
		{"location: /index.html?Uid=0X1f", "0X1f", true},
		{"no token here", "", false},
		{"uid=0x", "", false},
	}
	for _, tt := range tests {
		got, ok := extractSessionUID([]byte(tt.body))
		assert.Equal(t, tt.ok, ok, tt.body)
		assert.Equal(t, tt.want, got, tt.body)
	}
}

func TestNewAuthenticates(t *testing.T) {
	n := newTestNode(t)
	n.HandleResponse("status", map[string]any{"version": "1.0.45"})

	c := newTestClient(t, n)
	assert.True(t, c.Authenticated())
	assert.Equal(t, 1, n.Logins())

	_, err := c.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{mdstest.DefaultUID}, n.UIDs())
}

func TestNewFallbackToken(t *testing.T) {
	n := newTestNode(t)
	n.SetLoginBody("<html>welcome</html>")
	n.Handle("status", func(string) mdstest.Reply {
		return mdstest.Reply{Status: http.StatusUnauthorized, Body: "invalid uid"}
	})

	c := newTestClient(t, n)
	assert.False(t, c.Authenticated())

	_, err := c.Status(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRequestFailed)
	assert.Equal(t, []string{fallbackSessionUID}, n.UIDs(), "the fallback token is still sent")
}

func TestNewTransportFailure(t *testing.T) {
	n := mdstest.NewNode(testPassword)
	opts := testOptions(n)
	n.Close()

	_, err := New(context.Background(), opts)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAuthentication)
	assert.ErrorIs(t, err, ErrConnection)
	assert.ErrorIs(t, err, ErrClient)
}

func TestExecuteWithoutPassword(t *testing.T) {
	n := newTestNode(t)
	opts := testOptions(n)
	opts.Password = ""

	c, err := New(context.Background(), opts)
	require.NoError(t, err)
	assert.False(t, c.Authenticated())
	assert.Zero(t, n.Logins())

	_, err = c.Execute(context.Background(), "status")
	assert.ErrorIs(t, err, ErrNotAuthenticated)
	_, err = c.ExecuteText(context.Background(), "status")
	assert.ErrorIs(t, err, ErrNotAuthenticated)
	assert.Empty(t, n.Commands(), "no request is sent without a token")
}

func TestExecuteReturnsResponseMember(t *testing.T) {
	n := newTestNode(t)
	n.HandleResponse("balance", []map[string]any{{"token": "Minima", "confirmed": "10"}})
	c := newTestClient(t, n)

	got, err := c.Balance(context.Background(), BalanceQuery{TokenID: "0x00"})
	require.NoError(t, err)
	assert.JSONEq(t, `[{"token":"Minima","confirmed":"10"}]`, string(got))
	assert.Equal(t, []string{"balance tokenid:0x00"}, n.Commands())
}

func TestExecuteReturnsWholeObjectWithoutResponse(t *testing.T) {
	n := newTestNode(t)
	n.HandleJSON("peers", map[string]any{"status": true, "peers": []string{"a", "b"}})
	n.HandleJSON("network", []int{1, 2})
	c := newTestClient(t, n)

	got, err := c.Peers(context.Background())
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":true,"peers":["a","b"]}`, string(got))

	got, err = c.Network(context.Background())
	require.NoError(t, err)
	assert.JSONEq(t, `[1,2]`, string(got))
}

func TestExecuteCommandFailure(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"message", `{"status":false,"message":"Insufficient funds"}`, "Insufficient funds"},
		{"error", `{"status":false,"error":"bad address"}`, "bad address"},
		{"neither", `{"status":false}`, "Unknown error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := newTestNode(t)
			n.Handle("send", func(string) mdstest.Reply { return mdstest.Reply{Body: tt.body} })
			c := newTestClient(t, n)

			_, err := c.Send(context.Background(), SendRequest{Amount: "1", Address: "0xFF"})
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrCommandFailed)
			assert.ErrorIs(t, err, ErrClient)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestExecutePendingIsConfirmed(t *testing.T) {
	n := newTestNode(t)
	n.HandleJSON("send", map[string]any{"status": true, "pending": true, "pendinguid": "0xPEND1"})
	n.HandleResponse("mds action:confirm", map[string]any{"txpowid": "0xTX"})
	c := newTestClient(t, n)

	got, err := c.Send(context.Background(), SendRequest{
		Amount:  "2",
		Address: "0xFF",
		State:   map[string]string{"0": "0xAA"},
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"txpowid":"0xTX"}`, string(got))
	assert.Equal(t, []string{
		`send amount:2 address:0xFF tokenid:0x00 state:{"0":"0xAA"}`,
		"mds action:confirm uid:0xPEND1",
	}, n.Commands())
}

func TestExecutePendingConfirmationFails(t *testing.T) {
	tests := []struct {
		name  string
		reply mdstest.Reply
		also  error
	}{
		{"http status", mdstest.Reply{Status: http.StatusNotFound, Body: "gone"}, ErrRequestFailed},
		{"invalid json", mdstest.Reply{Body: "<html>"}, ErrInvalidResponse},
		{"rejected", mdstest.Reply{Body: `{"status":false,"message":"denied"}`}, ErrCommandFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := newTestNode(t)
			n.HandleJSON("send", map[string]any{"status": true, "pending": true, "pendinguid": "0xP"})
			n.Handle("mds action:confirm", func(string) mdstest.Reply { return tt.reply })
			c := newTestClient(t, n)

			_, err := c.Send(context.Background(), SendRequest{Amount: "1", Address: "0xFF"})
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrConfirmFailed)
			assert.ErrorIs(t, err, tt.also)
			assert.Len(t, n.Commands(), 2, "the confirmation is attempted exactly once")
		})
	}
}

func TestExecutePendingWithoutUIDIsNotConfirmed(t *testing.T) {
	n := newTestNode(t)
	n.HandleJSON("send", map[string]any{"status": true, "pending": true, "response": "queued"})
	c := newTestClient(t, n)

	got, err := c.Send(context.Background(), SendRequest{Amount: "1", Address: "0xFF"})
	require.NoError(t, err)
	assert.JSONEq(t, `"queued"`, string(got))
	assert.Len(t, n.Commands(), 1)
}

func TestExecuteDisableAutoConfirm(t *testing.T) {
	n := newTestNode(t)
	n.HandleJSON("send", map[string]any{"status": true, "pending": true, "pendinguid": "0xP"})
	opts := testOptions(n)
	opts.DisableAutoConfirm = true
	c, err := New(context.Background(), opts)
	require.NoError(t, err)

	_, err = c.Send(context.Background(), SendRequest{Amount: "1", Address: "0xFF"})
	assert.ErrorIs(t, err, ErrPendingCommand)
	assert.Contains(t, err.Error(), "0xP")
	assert.Len(t, n.Commands(), 1)
}

func TestExecuteNon2xxBeforeParse(t *testing.T) {
	n := newTestNode(t)
	long := strings.Repeat("E", 1000)
	n.Handle("status", func(string) mdstest.Reply {
		return mdstest.Reply{Status: http.StatusForbidden, Body: long}
	})
	c := newTestClient(t, n)

	_, err := c.Status(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRequestFailed)
	assert.NotErrorIs(t, err, ErrInvalidResponse)

	var ae interface{ StatusCode() int }
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, http.StatusForbidden, ae.StatusCode())
	assert.Contains(t, err.Error(), "[403]")
	assert.LessOrEqual(t, len(err.Error()), len("request failed [403]: ")+200)
}

func TestExecuteInvalidJSON(t *testing.T) {
	n := newTestNode(t)
	n.Handle("status", func(string) mdstest.Reply { return mdstest.Reply{Body: "not json " + strings.Repeat("x", 400)} })
	c := newTestClient(t, n)

	_, err := c.Status(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidResponse)
	assert.LessOrEqual(t, len(err.Error()), len("invalid JSON: ")+200)
}

func TestExecuteTextSkipsInterpretation(t *testing.T) {
	n := newTestNode(t)
	n.Handle("mds action:install", func(string) mdstest.Reply {
		return mdstest.Reply{Body: `{"status":false,"pending":true,"pendinguid":"0x1"}`}
	})
	c := newTestClient(t, n)

	got, err := c.InstallMiniDappText(context.Background(), "/tmp/app.mds.zip")
	require.NoError(t, err)
	assert.Equal(t, `{"status":false,"pending":true,"pendinguid":"0x1"}`, got)
	assert.Equal(t, []string{"mds action:install file:/tmp/app.mds.zip"}, n.Commands())

	n.Handle("mds action:install", func(string) mdstest.Reply { return mdstest.Reply{Status: http.StatusBadGateway, Body: "down"} })
	opts := testOptions(n)
	opts.Retry.MaxRetries = -1
	c2, err := New(context.Background(), opts)
	require.NoError(t, err)
	_, err = c2.InstallMiniDappText(context.Background(), "/tmp/app.mds.zip")
	assert.ErrorIs(t, err, ErrRequestFailed)
}

func TestExecuteRaw(t *testing.T) {
	n := newTestNode(t)
	n.HandleResponse("balance", "ok")
	c := newTestClient(t, n)

	_, err := c.ExecuteRaw(context.Background(), "  balance tokenid:0x00 ")
	require.NoError(t, err)
	assert.Equal(t, []string{"balance tokenid:0x00"}, n.Commands())

	_, err = c.ExecuteRaw(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestRetryOnServerError(t *testing.T) {
	n := newTestNode(t)
	var calls atomic.Int32
	n.Handle("status", func(string) mdstest.Reply {
		if calls.Add(1) < 3 {
			return mdstest.Reply{Status: http.StatusServiceUnavailable, Body: "busy"}
		}
		return mdstest.Reply{Body: `{"status":true,"response":{"chain":{"block":7}}}`}
	})
	c := newTestClient(t, n)

	got, err := c.Status(context.Background())
	require.NoError(t, err)
	assert.JSONEq(t, `{"chain":{"block":7}}`, string(got))
	assert.EqualValues(t, 3, calls.Load())
	assert.Equal(t, 1, n.Logins(), "retries never re-authenticate")
	for _, cmd := range n.Commands() {
		assert.Equal(t, "status", cmd, "the body is replayed intact")
	}
}

func TestRetryExhausted(t *testing.T) {
	n := newTestNode(t)
	n.Handle("status", func(string) mdstest.Reply {
		return mdstest.Reply{Status: http.StatusServiceUnavailable, Body: "boom"}
	})
	c := newTestClient(t, n)

	_, err := c.Status(context.Background())
	assert.ErrorIs(t, err, ErrRequestFailed)
	assert.Len(t, n.Commands(), 3)
}

func TestNoRetryOnInternalError(t *testing.T) {
	n := newTestNode(t)
	n.Handle("send", func(string) mdstest.Reply {
		return mdstest.Reply{Status: http.StatusInternalServerError, Body: "boom"}
	})
	c := newTestClient(t, n)

	_, err := c.Send(context.Background(), SendRequest{Amount: "1", Address: "0xFF"})
	assert.ErrorIs(t, err, ErrRequestFailed)
	assert.Len(t, n.Commands(), 1, "a 500 may follow an executed command")
}

func TestNoReplayAfterRequestSent(t *testing.T) {
	n := newTestNode(t)
	n.Handle("send", func(string) mdstest.Reply { return mdstest.Reply{Hangup: true} })
	c := newTestClient(t, n)

	_, err := c.Send(context.Background(), SendRequest{Amount: "1", Address: "0xFF"})
	require.Error(t, err)
	assert.Len(t, n.Commands(), 1, "the node received the send and must not see it again")
}

func TestReplayable(t *testing.T) {
	dial := &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}
	read := &net.OpError{Op: "read", Net: "tcp", Err: syscall.ECONNRESET}

	assert.True(t, replayable(dial))
	assert.True(t, replayable(fmt.Errorf("wrapped: %w", dial)))
	assert.True(t, replayable(&retryStatusError{code: http.StatusServiceUnavailable}))
	assert.False(t, replayable(read))
	assert.False(t, replayable(io.EOF))
	assert.False(t, replayable(io.ErrUnexpectedEOF))
	assert.False(t, replayable(context.DeadlineExceeded))
	assert.False(t, replayable(&net.OpError{Op: "dial", Err: context.Canceled}))
}

func TestNoRetryOnClientError(t *testing.T) {
	n := newTestNode(t)
	n.Handle("status", func(string) mdstest.Reply { return mdstest.Reply{Status: http.StatusBadRequest, Body: "bad"} })
	c := newTestClient(t, n)

	_, err := c.Status(context.Background())
	assert.ErrorIs(t, err, ErrRequestFailed)
	assert.Len(t, n.Commands(), 1)
}

func TestConcurrentUse(t *testing.T) {
	n := newTestNode(t)
	n.HandleResponse("status", map[string]any{"chain": map[string]any{"block": 1}})
	n.HandleJSON("send", map[string]any{"pending": true, "pendinguid": "0xP"})
	n.HandleResponse("mds action:confirm", map[string]any{"txpowid": "0x1"})
	c := newTestClient(t, n)

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := c.Status(context.Background())
			errs <- err
		}()
		go func() {
			defer wg.Done()
			_, err := c.Send(context.Background(), SendRequest{Amount: "1", Address: "0xFF"})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Len(t, n.Commands(), 30)
	assert.Equal(t, 1, n.Logins())
}

func TestHealthy(t *testing.T) {
	n := newTestNode(t)
	n.HandleResponse("status", map[string]any{"chain": map[string]any{"block": 1}})
	c := newTestClient(t, n)
	assert.True(t, c.Healthy(context.Background()))

	n.Handle("status", func(string) mdstest.Reply { return mdstest.Reply{Body: `{"status":false,"message":"starting"}`} })
	assert.False(t, c.Healthy(context.Background()))
}

func TestTypedWrapperCommands(t *testing.T) {
	n := newTestNode(t)
	for _, prefix := range []string{"tokencreate", "tokens", "getaddress", "coins", "mds", "txpow", "search"} {
		n.HandleResponse(prefix, map[string]any{})
	}
	c := newTestClient(t, n)
	ctx := context.Background()

	block := int64(0)
	_, err := c.CreateToken(ctx, TokenRequest{Name: "Gold", Amount: "100", Description: "shiny"})
	require.NoError(t, err)
	_, err = c.Tokens(ctx, "")
	require.NoError(t, err)
	_, err = c.NewAddress(ctx)
	require.NoError(t, err)
	_, err = c.Coins(ctx, CoinQuery{Relevant: true, TokenID: "0x00"})
	require.NoError(t, err)
	_, err = c.MiniDapps(ctx)
	require.NoError(t, err)
	_, err = c.MiniDappInfo(ctx, "0xD1")
	require.NoError(t, err)
	_, err = c.TxPoW(ctx, "0xT1")
	require.NoError(t, err)
	_, err = c.Search(ctx, SearchQuery{Block: &block})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"tokencreate name:Gold amount:100 decimals:8 description:shiny",
		"tokens",
		"getaddress",
		"coins relevant:true sendable:false tokenid:0x00",
		"mds",
		"mds action:info uid:0xD1",
		"txpow txpowid:0xT1",
		"search block:0",
	}, n.Commands())

	_, err = c.Send(ctx, SendRequest{Amount: "1"})
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = c.CreateToken(ctx, TokenRequest{Name: "x"})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestObserverSeesEveryCommand(t *testing.T) {
	n := newTestNode(t)
	n.HandleResponse("balance", []any{})
	type call struct {
		name string
		err  bool
	}
	var calls []call
	opts := testOptions(n)
	opts.Observer = func(name string, elapsed time.Duration, err error) {
		assert.GreaterOrEqual(t, elapsed, time.Duration(0))
		calls = append(calls, call{name, err != nil})
	}
	c, err := New(context.Background(), opts)
	require.NoError(t, err)
	defer c.Close()

	_, err = c.ExecuteRaw(context.Background(), "balance tokenid:0x00")
	require.NoError(t, err)
	_, err = c.Execute(context.Background(), "nosuchcommand")
	require.Error(t, err)
	_, err = c.ExecuteText(context.Background(), "balance")
	require.NoError(t, err)

	assert.Equal(t, []call{{"balance", false}, {"nosuchcommand", true}, {"balance", false}}, calls)
}
