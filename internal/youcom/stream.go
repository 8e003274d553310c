package youcom

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
)

const (
	sseDataPrefix = "data: "
	sseDoneMarker = "[DONE]"
)

// Stream is a lazy, finite, non-restartable sequence of agent events.
// Consumers range over Events; the channel closes when the server sends the
// [DONE] sentinel, the body ends, or the stream is closed. Err reports any
// terminal failure after the channel closes; a consumer-initiated Close is
// not an error.
type Stream struct {
	events chan AgentEvent
	cancel context.CancelFunc

	quit      chan struct{}
	closeOnce sync.Once

	mu  sync.Mutex
	err error
}

// Events returns the event channel
func (s *Stream) Events() <-chan AgentEvent { return s.events }

// Err returns the terminal error, if any, once Events is closed
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close stops the stream early. Safe to call more than once.
func (s *Stream) Close() {
	s.closeOnce.Do(func() {
		close(s.quit)
		s.cancel()
	})
}

func (s *Stream) setErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// StreamAgent starts a streaming agent run. Establishing the connection goes
// through the same retry policy as blocking calls; once the body is open,
// mid-stream failures are terminal.
func (c *Client) StreamAgent(ctx context.Context, input, agent string, tools []AgentTool) (*Stream, error) {
	reqBody := AgentRunRequest{Agent: agent, Input: input, Stream: true, Tools: tools}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("agent-stream: marshalling request: %w", err)
	}

	endpoint := "agent-stream"
	target := c.agentBase + "/agents/runs"
	resp, cancel, err := c.doWithRetry(ctx, endpoint, c.streamTimeout, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return nil, err
	}

	stream := &Stream{
		events: make(chan AgentEvent),
		cancel: cancel,
		quit:   make(chan struct{}),
	}
	go stream.consume(resp.Body)
	return stream, nil
}

// consume reads the SSE body line by line. Only data-marked lines are
// significant; malformed JSON payloads are dropped so a single bad frame
// cannot abort an otherwise good stream. A trailing partial line at body end
// is parsed once more before completion.
func (s *Stream) consume(body io.ReadCloser) {
	defer close(s.events)
	defer body.Close()
	defer s.Close()

	reader := bufio.NewReader(body)
	for {
		line, err := reader.ReadString('\n')
		if len(line) > 0 {
			if s.emitLine(line) {
				return
			}
		}
		if err != nil {
			if err != io.EOF && !closedByConsumer(err, s.quit) {
				s.setErr(err)
			}
			return
		}
	}
}

// emitLine parses one SSE line and pushes the event, reporting whether the
// stream is finished (sentinel seen or consumer gone).
func (s *Stream) emitLine(line string) bool {
	line = strings.TrimRight(line, "\r\n")
	if !strings.HasPrefix(line, sseDataPrefix) {
		return false
	}
	payload := strings.TrimSpace(line[len(sseDataPrefix):])
	if payload == "" {
		return false
	}
	if payload == sseDoneMarker {
		return true
	}

	var event AgentEvent
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		// lenient parsing: skip malformed frames
		return false
	}
	select {
	case s.events <- event:
		return false
	case <-s.quit:
		return true
	}
}

// closedByConsumer reports whether a body read error is the expected result
// of the consumer closing the stream, as opposed to a genuine failure.
func closedByConsumer(err error, quit <-chan struct{}) bool {
	select {
	case <-quit:
	default:
		return false
	}
	msg := err.Error()
	return errors.Is(err, context.Canceled) ||
		strings.Contains(msg, "context canceled") ||
		strings.Contains(msg, "use of closed")
}
