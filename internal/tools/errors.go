package tools

import (
	"net/http"

	"github.com/tansive/minima-mcp/internal/common/apperrors"
)

var (
	ErrTool apperrors.Error = apperrors.New("tool error")
	// ErrInvalidArgs is returned when tool arguments fail to decode or validate.
	ErrInvalidArgs apperrors.Error = ErrTool.New("invalid arguments").SetStatusCode(http.StatusBadRequest)
	ErrNotFound    apperrors.Error = ErrTool.New("not found").SetStatusCode(http.StatusNotFound)
	// ErrUnexpectedReply is returned when the node answers with a payload a tool cannot use.
	ErrUnexpectedReply apperrors.Error = ErrTool.New("unexpected node reply")
)
