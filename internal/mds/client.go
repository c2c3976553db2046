// Package mds implements the authenticated command client for a Minima node's MDS
// (MiniDapp System) HTTP interface. A Client logs in once with the MDS password, then
// posts percent-encoded command lines to the command endpoint, auto-confirms commands
// the node parks as pending, and normalizes every failure into the ErrClient family.
//
// A Client is safe for concurrent use: the session token is fixed at construction and
// the pooled http.Client is shared. The event watcher and concurrent tool calls use one
// Client. Each pending command is confirmed with its own pending UID, so concurrent
// confirmations do not cross; their ordering on the node is the node's concern.
package mds

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
)

const (
	loginPath   = "/login.html"
	commandPath = "/mdscommand_/cmd"

	// errorBodyLimit caps the response excerpt carried in error messages.
	errorBodyLimit = 200
	// logBodyLimit caps the response excerpt written to debug logs.
	logBodyLimit = 500
)

// Client executes MDS commands against one node with one session.
type Client struct {
	baseURL       *url.URL
	httpClient    *http.Client
	opts          Options
	token         string
	authenticated bool
	logger        zerolog.Logger
}

// New creates a Client. When a password is set it authenticates immediately: a transport
// failure during login is returned as ErrAuthentication, while a login page without a
// session UID leaves the client holding a fallback UID and reporting Authenticated false.
func New(ctx context.Context, opts Options) (*Client, error) {
	opts = opts.withDefaults()
	c := &Client{
		baseURL: &url.URL{
			Scheme: opts.scheme(),
			Host:   net.JoinHostPort(opts.Host, strconv.Itoa(opts.Port)),
		},
		httpClient: newHTTPClient(opts),
		opts:       opts,
		logger:     log.With().Str("component", "mds").Logger(),
	}

	if opts.Password == "" {
		c.logger.Warn().Str("node", c.baseURL.String()).Msg("no MDS password configured, commands will be rejected")
		return c, nil
	}
	if err := c.authenticate(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// BaseURL returns scheme://host:port of the node.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// Authenticated reports whether login produced a real session UID.
func (c *Client) Authenticated() bool {
	return c.authenticated
}

// Close releases idle connections.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}

// Execute runs a named command and returns the resolved payload: the response member of
// the node's reply, or the whole reply when there is none.
func (c *Client) Execute(ctx context.Context, name string, params ...Param) (json.RawMessage, error) {
	if c.token == "" {
		return nil, ErrNotAuthenticated
	}
	command := BuildCommand(name, params...)
	c.logger.Debug().Str("command", command).Msg("executing command")
	start := time.Now()
	out, err := c.run(ctx, command)
	c.observe(command, start, err)
	return out, err
}

// ExecuteRaw runs a complete command line as typed by a user, e.g. "balance tokenid:0x00".
func (c *Client) ExecuteRaw(ctx context.Context, line string) (json.RawMessage, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, ErrInvalidArgument.Msg("empty command")
	}
	return c.Execute(ctx, line)
}

// ExecuteText runs a named command and returns the raw response text. Pending replies and
// status:false are not interpreted; only the HTTP status is checked.
func (c *Client) ExecuteText(ctx context.Context, name string, params ...Param) (string, error) {
	if c.token == "" {
		return "", ErrNotAuthenticated
	}
	command := BuildCommand(name, params...)
	c.logger.Debug().Str("command", command).Msg("executing text command")
	start := time.Now()
	body, err := c.post(ctx, command)
	c.observe(command, start, err)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// Healthy reports whether a status query succeeds with a payload. Failures are logged and
// swallowed.
func (c *Client) Healthy(ctx context.Context) bool {
	status, err := c.Status(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Msg("health check failed")
		return false
	}
	return len(status) > 0 && string(status) != "null"
}

func (c *Client) observe(command string, start time.Time, err error) {
	if c.opts.Observer == nil {
		return
	}
	name, _, _ := strings.Cut(command, " ")
	c.opts.Observer(name, time.Since(start), err)
}

func (c *Client) run(ctx context.Context, command string) (json.RawMessage, error) {
	body, err := c.post(ctx, command)
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(body) {
		return nil, ErrInvalidResponse.Msgf("invalid JSON: %s", truncate(body, errorBodyLimit))
	}

	reply := gjson.ParseBytes(body)
	if !reply.IsObject() {
		return json.RawMessage(body), nil
	}

	if uid := pendingUID(reply); uid != "" {
		if c.opts.DisableAutoConfirm {
			return nil, ErrPendingCommand.Msgf("command requires confirmation, pending UID %s", uid)
		}
		c.logger.Info().Str("pending_uid", uid).Msg("command pending, auto-confirming")
		return c.confirm(ctx, uid)
	}

	if reply.Get("status").Type == gjson.False {
		return nil, ErrCommandFailed.Msgf("command failed: %s", failureMessage(reply))
	}
	return payload(reply), nil
}

// confirm issues the follow-up confirmation for a pending command. Its resolved payload
// is the result of the original call.
func (c *Client) confirm(ctx context.Context, uid string) (json.RawMessage, error) {
	body, err := c.post(ctx, BuildCommand("mds", P("action", "confirm"), P("uid", uid)))
	if err != nil {
		return nil, ErrConfirmFailed.MsgErr("confirmation failed: "+err.Error(), err)
	}
	if !gjson.ValidBytes(body) {
		return nil, ErrConfirmFailed.MsgErr("invalid JSON in confirmation: "+truncate(body, errorBodyLimit), ErrInvalidResponse)
	}
	reply := gjson.ParseBytes(body)
	if !reply.IsObject() {
		return json.RawMessage(body), nil
	}
	if reply.Get("status").Type == gjson.False {
		return nil, ErrConfirmFailed.MsgErr("confirmation failed: "+failureMessage(reply), ErrCommandFailed)
	}
	c.logger.Info().Str("pending_uid", uid).Msg("command confirmed")
	return payload(reply), nil
}

// post sends one encoded command and returns the body of a 2xx reply.
func (c *Client) post(ctx context.Context, command string) ([]byte, error) {
	u := c.baseURL.JoinPath(commandPath)
	u.RawQuery = url.Values{"uid": {c.token}}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), strings.NewReader(Encode(command)))
	if err != nil {
		return nil, ErrConnection.MsgErr("connection failed: "+err.Error(), err)
	}
	req.Header.Set("Content-Type", "text/plain")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, ErrConnection.MsgErr("connection failed: "+err.Error(), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, ErrConnection.MsgErr("connection failed: "+err.Error(), err)
	}
	c.logger.Debug().Int("status", resp.StatusCode).Str("body", truncate(body, logBodyLimit)).Msg("command response")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, ErrRequestFailed.
			Msgf("request failed [%d]: %s", resp.StatusCode, truncate(body, errorBodyLimit)).
			SetStatusCode(resp.StatusCode)
	}
	return body, nil
}

func pendingUID(reply gjson.Result) string {
	if reply.Get("pending").Type != gjson.True {
		return ""
	}
	return reply.Get("pendinguid").String()
}

func failureMessage(reply gjson.Result) string {
	if m := reply.Get("message"); m.Exists() && m.String() != "" {
		return m.String()
	}
	if e := reply.Get("error"); e.Exists() && e.String() != "" {
		return e.String()
	}
	return "Unknown error"
}

func payload(reply gjson.Result) json.RawMessage {
	if r := reply.Get("response"); r.Exists() {
		return json.RawMessage(r.Raw)
	}
	return json.RawMessage(reply.Raw)
}
