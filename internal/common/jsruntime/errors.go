package jsruntime

import (
	"net/http"

	"github.com/tansive/minima-mcp/internal/common/apperrors"
)

var (
	ErrJSRuntime = apperrors.New("jsruntime error")
	ErrSyntax    = ErrJSRuntime.New("javascript syntax error").SetStatusCode(http.StatusBadRequest)
)
