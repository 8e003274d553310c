package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

// sseStream writes Server-Sent Events on an echo response
type sseStream struct {
	resp    *echo.Response
	flusher http.Flusher
}

// startSSE sets stream headers and returns a writer, or an error when the
// underlying writer cannot flush
func startSSE(c echo.Context) (*sseStream, error) {
	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set(echo.HeaderCacheControl, "no-cache")
	resp.Header().Set("Connection", "keep-alive")
	resp.WriteHeader(http.StatusOK)

	flusher, ok := resp.Writer.(http.Flusher)
	if !ok {
		return nil, echo.NewHTTPError(http.StatusServiceUnavailable, "streaming unsupported")
	}
	return &sseStream{resp: resp, flusher: flusher}, nil
}

// send writes one named event with a JSON payload and flushes
func (s *sseStream) send(event string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.resp, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}
