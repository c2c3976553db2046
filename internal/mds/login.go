package mds

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
)

// fallbackSessionUID is stored when the login page carries no session UID. Commands are
// still attempted with it and fail at the node.
const fallbackSessionUID = "0x00"

// The login reply redirects via script to a page carrying ?uid=0x....
var sessionUIDPattern = regexp.MustCompile(`(?i)uid=(0x[a-f0-9]+)`)

// extractSessionUID finds the session UID embedded anywhere in a login reply.
func extractSessionUID(body []byte) (string, bool) {
	m := sessionUIDPattern.FindSubmatch(body)
	if m == nil {
		return "", false
	}
	return string(m[1]), true
}

func (c *Client) authenticate(ctx context.Context) error {
	form := url.Values{"password": {c.opts.Password}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL.JoinPath(loginPath).String(), strings.NewReader(form.Encode()))
	if err != nil {
		return ErrAuthentication.MsgErr("failed to authenticate with MDS: "+err.Error(), err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	// The redirect target is what carries the UID, so it must not be followed.
	lc := *c.httpClient
	lc.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}

	resp, err := lc.Do(req)
	if err != nil {
		c.logger.Error().Err(err).Msg("authentication failed")
		return ErrAuthentication.MsgErr("failed to authenticate with MDS: "+err.Error(), ErrConnection, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.logger.Error().Err(err).Msg("authentication failed")
		return ErrAuthentication.MsgErr("failed to authenticate with MDS: "+err.Error(), ErrConnection, err)
	}

	c.logger.Debug().Int("status", resp.StatusCode).Str("body", truncate(body, logBodyLimit)).Msg("login response")

	// Location headers carry the same redirect on nodes that answer with a plain 30x.
	uid, ok := extractSessionUID(body)
	if !ok {
		uid, ok = extractSessionUID([]byte(resp.Header.Get("Location")))
	}
	if !ok {
		c.logger.Warn().Msg("login succeeded but couldn't extract session UID")
		c.token = fallbackSessionUID
		c.authenticated = false
		return nil
	}

	c.token = uid
	c.authenticated = true
	c.logger.Info().Str("session_uid", uidPrefix(uid)).Msg("authenticated with MDS")
	return nil
}

func uidPrefix(uid string) string {
	if len(uid) > 20 {
		return uid[:20] + "..."
	}
	return uid
}
