// Package model defines the shared data model for the generation pipeline
// and the contract every backend adapter must implement.
package model

import "context"

// Adapter describes the behavior every generation backend must support.
// Generate is a unary request/response call, while GenerateStream delivers
// incremental chunks through the supplied callback. The callback doubles as
// backpressure: an adapter must not produce the next chunk until the
// previous callback invocation has returned, and must stop promptly when
// ctx is cancelled.
type Adapter interface {
	Generate(ctx context.Context, messages []Message, desc Descriptor, opts Options) (*Result, error)
	GenerateStream(ctx context.Context, messages []Message, desc Descriptor, opts Options, cb StreamCallback) error
}

// StreamCallback consumes incremental output produced by GenerateStream.
// Returning a non-nil error aborts the stream.
type StreamCallback func(StreamChunk) error

// StreamChunk is one ordered fragment of streamed output. Chunks carry data
// only; end-of-stream is a transport-level sentinel, never a chunk.
type StreamChunk struct {
	Content string `json:"content"`
}
