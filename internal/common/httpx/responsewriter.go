package httpx

import (
	"net/http"
)

// ResponseWriter tracks the status and size of a reply. Recovery and timeout middleware use
// Written to decide whether an error body can still be sent; the request logger reports
// Status and Bytes.
type ResponseWriter struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func NewResponseWriter(w http.ResponseWriter) *ResponseWriter {
	if rw, ok := w.(*ResponseWriter); ok {
		return rw
	}
	return &ResponseWriter{ResponseWriter: w}
}

// WriteHeader is a no-op after the first call.
func (rw *ResponseWriter) WriteHeader(code int) {
	if rw.status != 0 {
		return
	}
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *ResponseWriter) Write(b []byte) (int, error) {
	rw.WriteHeader(http.StatusOK)
	n, err := rw.ResponseWriter.Write(b)
	rw.bytes += int64(n)
	return n, err
}

func (rw *ResponseWriter) Written() bool {
	return rw.status != 0
}

// Status returns the written status, 200 when none was set.
func (rw *ResponseWriter) Status() int {
	if rw.status == 0 {
		return http.StatusOK
	}
	return rw.status
}

func (rw *ResponseWriter) Bytes() int64 {
	return rw.bytes
}

// Flush is needed by the streamable HTTP transport for server-sent events.
func (rw *ResponseWriter) Flush() {
	rw.WriteHeader(http.StatusOK)
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (rw *ResponseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}
