package dispatch

import (
	"context"
	"strings"
	"testing"

	"github.com/modelmux/modelmux/pkg/augment"
	"github.com/modelmux/modelmux/pkg/fault"
	"github.com/modelmux/modelmux/pkg/model"
	"github.com/modelmux/modelmux/pkg/relay"
)

type memorySink struct {
	frames []relay.Frame
	closed bool
}

func (s *memorySink) Send(f relay.Frame) error { s.frames = append(s.frames, f); return nil }
func (s *memorySink) Close() error             { s.closed = true; return nil }

func (s *memorySink) content() string {
	var sb strings.Builder
	for _, f := range s.frames {
		sb.WriteString(f.Content)
	}
	return sb.String()
}

func streamFixture(t *testing.T) (*fixture, *memorySink, *relay.Relay) {
	t.Helper()
	f := newFixture(t, false)
	sink := &memorySink{}
	return f, sink, relay.New(sink, 16)
}

func TestStreamHappyPath(t *testing.T) {
	f, sink, r := streamFixture(t)
	f.daemon.streamFn = func(_ context.Context, _ []model.Message, _ model.Descriptor, _ model.Options, cb model.StreamCallback) error {
		for _, part := range []string{"one ", "two ", "three"} {
			if err := cb(model.StreamChunk{Content: part}); err != nil {
				return err
			}
		}
		return nil
	}

	err := f.d.ExecuteStream(context.Background(), request("daemon/llama3", "count"), r)
	if err != nil {
		t.Fatalf("ExecuteStream: %v", err)
	}
	if sink.content() != "one two three" {
		t.Fatalf("content = %q", sink.content())
	}
	if !sink.closed {
		t.Fatal("successful stream must end with the sentinel")
	}
	for _, fr := range sink.frames {
		if fr.Error != "" {
			t.Fatalf("unexpected error frame: %q", fr.Error)
		}
	}
}

func TestStreamFallsBackBeforeFirstChunk(t *testing.T) {
	f, sink, r := streamFixture(t)
	f.daemon.streamFn = func(context.Context, []model.Message, model.Descriptor, model.Options, model.StreamCallback) error {
		return fault.New(fault.ClassConnRefused, "no model daemon is listening at http://localhost:11434 (is it running?)")
	}

	err := f.d.ExecuteStream(context.Background(), request("daemon/llama3", "what is docker?"), r)
	if err != nil {
		t.Fatalf("pre-emission failure should degrade, not error: %v", err)
	}
	if !sink.closed {
		t.Fatal("fallback stream must still end with the sentinel")
	}
	content := sink.content()
	if !strings.Contains(content, "daemon/llama3") {
		t.Fatalf("leading notice block missing: %q", content)
	}
	// The notice travels ahead of the substituted answer.
	if !strings.Contains(sink.frames[0].Content, "could not be reached") {
		t.Fatalf("first frame should carry the fallback notice: %q", sink.frames[0].Content)
	}
	if len(sink.frames) < 2 {
		t.Fatal("fallback answer frames missing")
	}
}

func TestStreamFallbackNoticesMatchUnary(t *testing.T) {
	connRefused := fault.New(fault.ClassConnRefused, "no model daemon is listening at http://localhost:11434 (is it running?)")

	unary := newCustomFixture(t, noticeCatalog(), false, nil)
	unary.daemon.generateFn = func(context.Context, []model.Message, model.Descriptor, model.Options) (*model.Result, error) {
		return nil, connRefused
	}
	res, err := unary.d.Execute(context.Background(), request("daemon/llama3", "what is docker?"))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	streamed := newCustomFixture(t, noticeCatalog(), false, nil)
	streamed.daemon.streamFn = func(context.Context, []model.Message, model.Descriptor, model.Options, model.StreamCallback) error {
		return connRefused
	}
	sink := &memorySink{}
	if err := streamed.d.ExecuteStream(context.Background(), request("daemon/llama3", "what is docker?"), relay.New(sink, 16)); err != nil {
		t.Fatalf("ExecuteStream: %v", err)
	}
	if len(sink.frames) == 0 {
		t.Fatal("no frames emitted")
	}

	// Both transports substitute the same model, so they must explain the
	// substitution with the same notices.
	lead := sink.frames[0].Content
	for _, n := range res.Notices {
		if !strings.Contains(lead, n) {
			t.Fatalf("leading block missing notice %q:\n%s", n, lead)
		}
	}
	if !strings.Contains(lead, "Offline answers are simplified.") {
		t.Fatalf("answering model's static notice missing:\n%s", lead)
	}
	if strings.Contains(sink.content(), "not fact-checked") {
		t.Fatalf("failed model's static notice must not survive the fallback:\n%s", sink.content())
	}
}

func TestStreamStaticNoticeLeadsAnswer(t *testing.T) {
	f, sink, r := streamFixture(t)

	err := f.d.ExecuteStream(context.Background(), request("tiny-chat", "hello"), r)
	if err != nil {
		t.Fatalf("ExecuteStream: %v", err)
	}
	if len(sink.frames) == 0 {
		t.Fatal("no frames emitted")
	}
	if !strings.Contains(sink.frames[0].Content, "small on-device model") {
		t.Fatalf("static notice should lead the stream: %q", sink.frames[0].Content)
	}
	if !sink.closed {
		t.Fatal("stream must end with the sentinel")
	}
}

func TestStreamImageShortCircuitCarriesStaticNotice(t *testing.T) {
	stage := augment.New(nil, &stubImages{url: "https://img.example/cat.png"}, nil, nil)
	f := newCustomFixture(t, noticeCatalog(), false, stage)
	sink := &memorySink{}

	err := f.d.ExecuteStream(context.Background(), request("daemon/llama3", "draw a picture of a cat"), relay.New(sink, 16))
	if err != nil {
		t.Fatalf("ExecuteStream: %v", err)
	}
	if !strings.Contains(sink.frames[0].Content, "Offline answers are simplified.") {
		t.Fatalf("answering model's static notice missing: %q", sink.frames[0].Content)
	}
	if !strings.Contains(sink.content(), "https://img.example/cat.png") {
		t.Fatalf("image interception missing from stream: %q", sink.content())
	}
	if !sink.closed {
		t.Fatal("stream must end with the sentinel")
	}
}

func TestStreamMidStreamFailureEmitsErrorFrame(t *testing.T) {
	f, sink, r := streamFixture(t)
	f.daemon.streamFn = func(_ context.Context, _ []model.Message, _ model.Descriptor, _ model.Options, cb model.StreamCallback) error {
		if err := cb(model.StreamChunk{Content: "partial "}); err != nil {
			return err
		}
		return fault.New(fault.ClassUnavailable, "daemon crashed mid-answer")
	}

	err := f.d.ExecuteStream(context.Background(), request("daemon/llama3", "hi"), r)
	if err == nil {
		t.Fatal("mid-stream failure should surface to the transport")
	}
	last := sink.frames[len(sink.frames)-1]
	if last.Error == "" || !strings.Contains(last.Error, "crashed") {
		t.Fatalf("terminal error frame missing: %+v", sink.frames)
	}
	if sink.closed {
		t.Fatal("a failed stream must not emit the success sentinel")
	}
	if sink.content() != "partial " {
		t.Fatalf("partial output lost: %q", sink.content())
	}
}

func TestStreamAuthFailureEmitsErrorFrame(t *testing.T) {
	f, sink, r := streamFixture(t)
	f.cloud.streamFn = func(context.Context, []model.Message, model.Descriptor, model.Options, model.StreamCallback) error {
		return fault.New(fault.ClassAuth, "cloud API rejected the credential; check the configured API key")
	}

	err := f.d.ExecuteStream(context.Background(), request("gpt-4o", "hi"), r)
	if err == nil {
		t.Fatal("auth failure must surface")
	}
	if len(sink.frames) != 1 || sink.frames[0].Error == "" {
		t.Fatalf("auth failure should be exactly one error frame: %+v", sink.frames)
	}
	if sink.closed {
		t.Fatal("auth failure must not emit the success sentinel")
	}
}

func TestStreamCancelledConsumerStopsAdapter(t *testing.T) {
	f, sink, r := streamFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	chunksSent := 0
	f.daemon.streamFn = func(ctx context.Context, _ []model.Message, _ model.Descriptor, _ model.Options, cb model.StreamCallback) error {
		for i := 0; i < 100; i++ {
			if err := cb(model.StreamChunk{Content: "x"}); err != nil {
				return err
			}
			chunksSent++
			if chunksSent == 3 {
				cancel()
			}
		}
		return nil
	}

	err := f.d.ExecuteStream(ctx, request("daemon/llama3", "hi"), r)
	if err == nil {
		t.Fatal("cancelled stream should return the context error")
	}
	if chunksSent > 4 {
		t.Fatalf("adapter kept producing after cancellation: %d chunks", chunksSent)
	}
	if sink.closed {
		t.Fatal("cancelled stream must not emit the success sentinel")
	}
}

func TestStreamUnknownModelNoticeLeadsAnswer(t *testing.T) {
	f, sink, r := streamFixture(t)

	err := f.d.ExecuteStream(context.Background(), request("never-heard-of-it", "hello"), r)
	if err != nil {
		t.Fatalf("ExecuteStream: %v", err)
	}
	if len(sink.frames) == 0 {
		t.Fatal("no frames emitted")
	}
	if !strings.Contains(sink.frames[0].Content, "never-heard-of-it") {
		t.Fatalf("substitution notice should lead the stream: %q", sink.frames[0].Content)
	}
	if !sink.closed {
		t.Fatal("stream must end with the sentinel")
	}
}
