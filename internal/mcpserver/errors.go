package mcpserver

import (
	"net/http"

	"github.com/tansive/minima-mcp/internal/common/apperrors"
)

var (
	// ErrMCPServiceError is the base error for the MCP server.
	ErrMCPServiceError apperrors.Error = apperrors.New("mcp service error").SetStatusCode(http.StatusInternalServerError)

	// ErrInvalidOptions is returned by New when a required dependency is missing.
	ErrInvalidOptions apperrors.Error = ErrMCPServiceError.New("invalid server options")

	// ErrInvalidRequest is returned when an HTTP request body cannot be used.
	ErrInvalidRequest apperrors.Error = ErrMCPServiceError.New("invalid request").SetStatusCode(http.StatusBadRequest)

	// ErrTransport wraps failures of the stdio or HTTP transport.
	ErrTransport apperrors.Error = ErrMCPServiceError.New("transport failed")
)
