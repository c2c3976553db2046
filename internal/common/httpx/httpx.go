// Package httpx holds the small set of JSON response helpers used by the HTTP surface
// next to the MCP endpoint: health and error replies.
package httpx

import (
	"context"
	"errors"
	"net/http"

	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog/log"
	"github.com/tansive/minima-mcp/internal/common/apperrors"
	"github.com/tansive/minima-mcp/internal/common/logtrace"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Response is what a RequestHandler produces.
type Response struct {
	StatusCode int
	Response   any
}

type RequestHandler func(r *http.Request) (*Response, error)

// WrapHttpRsp adapts a RequestHandler, translating errors into JSON error replies.
func WrapHttpRsp(handler RequestHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rsp, err := handler(r)
		if err != nil {
			SendError(w, err)
			return
		}
		if rsp == nil {
			ErrApplicationError().Send(w)
			return
		}
		SendJsonRsp(r.Context(), w, rsp.StatusCode, rsp.Response)
	}
}

// SendJsonRsp marshals msg and writes it with statusCode. Raw JSON may be passed as
// []byte.
func SendJsonRsp(ctx context.Context, w http.ResponseWriter, statusCode int, msg any) {
	var b []byte
	if raw, ok := msg.([]byte); ok && json.Valid(raw) {
		b = raw
	} else {
		var err error
		b, err = json.Marshal(msg)
		if err != nil {
			log.Ctx(ctx).Error().Err(err).Msg("unable to marshal json")
			ErrApplicationError("request id: " + logtrace.RequestIDFromContext(ctx)).Send(w)
			return
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	w.Write(b)
}

// Error is an HTTP error reply.
type Error struct {
	Description string `json:"description"`
	StatusCode  int    `json:"http_status_code"`
}

type errorRsp struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func (e *Error) Error() string {
	return e.Description
}

func (e *Error) Send(w http.ResponseWriter) {
	if w == nil {
		return
	}
	b, err := json.Marshal(&errorRsp{Error: e.Description})
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.StatusCode)
	w.Write(b)
}

// SendError writes err, using the status code carried by an apperrors.Error when present.
func SendError(w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	var he *Error
	if errors.As(err, &he) {
		he.Send(w)
		return
	}
	code := apperrors.StatusCodeOf(err)
	if code < 400 || code > 599 {
		code = http.StatusInternalServerError
	}
	desc := err.Error()
	var ae apperrors.Error
	if errors.As(err, &ae) {
		desc = ae.ErrorAll()
	}
	(&Error{StatusCode: code, Description: desc}).Send(w)
}

func ErrApplicationError(msg ...string) *Error {
	s := "unable to process request"
	if len(msg) > 0 {
		s = msg[0]
	}
	return &Error{Description: s, StatusCode: http.StatusInternalServerError}
}

func ErrRequestTimeout() *Error {
	return &Error{Description: "request timed out", StatusCode: http.StatusGatewayTimeout}
}

func ErrServiceUnavailable(msg string) *Error {
	return &Error{Description: msg, StatusCode: http.StatusServiceUnavailable}
}
