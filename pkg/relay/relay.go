// Package relay normalizes adapter output into a uniform chunked wire
// protocol. Token-incremental backends pass their chunks through; whole-text
// backends are split into fixed-size chunks so every stream looks the same
// to the transport.
package relay

import (
	"context"

	"github.com/modelmux/modelmux/pkg/model"
)

// DefaultChunkSize is the fragment size used when splitting whole-text
// results for streaming.
const DefaultChunkSize = 48

// Frame is one wire-level streaming frame. Exactly one field is set: a
// content fragment or a terminal error. End-of-stream is signalled by the
// transport sentinel, never by a frame field.
type Frame struct {
	Content string `json:"content,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Sink receives frames in order. Send must not be called again until the
// previous call returned (pull-based: the relay only produces the next
// frame once the previous one is flushed). Close emits the protocol end
// sentinel.
type Sink interface {
	Send(Frame) error
	Close() error
}

// ChunkText splits text into fragments of at most size runes. The
// concatenation of the fragments equals the input; an input of N runes
// yields ceil(N/size) fragments.
func ChunkText(text string, size int) []string {
	if text == "" {
		return nil
	}
	if size <= 0 {
		size = DefaultChunkSize
	}
	var chunks []string
	runes := []rune(text)
	for start := 0; start < len(runes); start += size {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks
}

// Relay bridges adapter callbacks to a Sink.
type Relay struct {
	sink      Sink
	chunkSize int
}

// New builds a relay over sink. chunkSize <= 0 selects DefaultChunkSize.
func New(sink Sink, chunkSize int) *Relay {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Relay{sink: sink, chunkSize: chunkSize}
}

// Callback returns a StreamCallback that forwards each chunk as one frame.
// Cancellation of ctx stops the stream before the next frame, releasing the
// producing adapter.
func (r *Relay) Callback(ctx context.Context) model.StreamCallback {
	return func(chunk model.StreamChunk) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if chunk.Content == "" {
			return nil
		}
		return r.sink.Send(Frame{Content: chunk.Content})
	}
}

// RelayText splits a whole-text result into ordered frames.
func (r *Relay) RelayText(ctx context.Context, text string) error {
	cb := r.Callback(ctx)
	for _, part := range ChunkText(text, r.chunkSize) {
		if err := cb(model.StreamChunk{Content: part}); err != nil {
			return err
		}
	}
	return nil
}

// Fail emits a terminal error frame. Used for mid-stream failures where the
// fallback chain can no longer substitute a whole answer.
func (r *Relay) Fail(message string) error {
	return r.sink.Send(Frame{Error: message})
}

// Finish emits the end sentinel.
func (r *Relay) Finish() error {
	return r.sink.Close()
}

// StreamText is the helper whole-text adapters use to satisfy the
// streaming half of the adapter contract: it chunks their unary result
// through the caller's callback.
func StreamText(ctx context.Context, text string, chunkSize int, cb model.StreamCallback) error {
	for _, part := range ChunkText(text, chunkSize) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := cb(model.StreamChunk{Content: part}); err != nil {
			return err
		}
	}
	return nil
}
