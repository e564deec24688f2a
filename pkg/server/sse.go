package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/modelmux/modelmux/pkg/relay"
)

// endSentinel terminates every successful stream. It is protocol-level,
// never a data frame, so clients can tell "done" from "a frame that says
// done".
const endSentinel = "data: [DONE]\n\n"

// sseSink adapts an HTTP response into a relay.Sink. Each Send writes and
// flushes one frame before returning, which gives the relay its pull-based
// pacing: the next chunk is only requested after this one hit the wire.
type sseSink struct {
	w       io.Writer
	flusher http.Flusher
}

func newSSESink(w http.ResponseWriter) (*sseSink, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, errors.New("server: response does not support streaming")
	}
	headers := w.Header()
	headers.Set("Content-Type", "text/event-stream")
	headers.Set("Cache-Control", "no-cache")
	headers.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return &sseSink{w: w, flusher: flusher}, nil
}

// Send writes one frame.
func (s *sseSink) Send(frame relay.Frame) error {
	body, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("server: marshal SSE frame: %w", err)
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", body); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// Close emits the end sentinel.
func (s *sseSink) Close() error {
	if _, err := io.WriteString(s.w, endSentinel); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}
