package mds

import (
	"net/http"

	"github.com/tansive/minima-mcp/internal/common/apperrors"
)

// Every failure surfaced by the client derives from ErrClient. Callers are expected to
// report these upward rather than branch on them; the sentinels exist for logging and tests.
var (
	ErrClient apperrors.Error = apperrors.New("minima client error")

	// ErrNotAuthenticated is returned when no session token is available.
	ErrNotAuthenticated apperrors.Error = ErrClient.New("not authenticated - no session UID").SetStatusCode(http.StatusUnauthorized)

	// ErrAuthentication is returned when the login request cannot be completed.
	ErrAuthentication apperrors.Error = ErrClient.New("failed to authenticate with MDS")

	// ErrConnection covers dial, TLS, timeout and body read failures.
	ErrConnection apperrors.Error = ErrClient.New("connection failed")

	// ErrRequestFailed is returned for non-2xx responses from the command endpoint.
	ErrRequestFailed apperrors.Error = ErrClient.New("request failed")

	// ErrInvalidResponse is returned when a body that should be JSON is not.
	ErrInvalidResponse apperrors.Error = ErrClient.New("invalid JSON")

	// ErrCommandFailed is returned when the node answers with status:false.
	ErrCommandFailed apperrors.Error = ErrClient.New("command failed")

	// ErrConfirmFailed is returned when the follow-up confirmation of a pending command fails.
	ErrConfirmFailed apperrors.Error = ErrClient.New("confirmation failed")

	// ErrPendingCommand is returned instead of confirming when auto-confirm is disabled.
	ErrPendingCommand apperrors.Error = ErrClient.New("command requires confirmation")

	// ErrInvalidArgument is returned by typed wrappers for missing required values.
	ErrInvalidArgument apperrors.Error = ErrClient.New("invalid argument").SetStatusCode(http.StatusBadRequest)
)
