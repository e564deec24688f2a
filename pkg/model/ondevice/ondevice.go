// Package ondevice runs text generation fully in-process. Pipelines are
// expensive to construct, so the adapter memoizes one per model id for the
// process lifetime; construction happens exactly once even under concurrent
// first use.
package ondevice

import (
	"context"
	"strings"
	"sync"

	"github.com/modelmux/modelmux/pkg/fault"
	"github.com/modelmux/modelmux/pkg/model"
	"github.com/modelmux/modelmux/pkg/relay"
)

// Pipeline is one loaded in-process generator. Complete returns the model's
// raw continuation, which conventionally echoes the prompt as a prefix.
type Pipeline interface {
	Complete(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// Factory constructs a pipeline for a model id.
type Factory func(modelID string) (Pipeline, error)

// Adapter implements model.Adapter over cached pipelines.
type Adapter struct {
	factory Factory

	mu    sync.Mutex
	cache map[string]*pipelineEntry
}

// pipelineEntry memoizes one construction attempt. The sync.Once means the
// two-requests-race on first use resolves to a single winner; a failed
// construction is cached too, so a broken model id fails fast on retry.
type pipelineEntry struct {
	once sync.Once
	pipe Pipeline
	err  error
}

var _ model.Adapter = (*Adapter)(nil)

// New builds the adapter. A nil factory selects the built-in generator.
func New(factory Factory) *Adapter {
	if factory == nil {
		factory = func(modelID string) (Pipeline, error) {
			return newTinyPipeline(modelID), nil
		}
	}
	return &Adapter{factory: factory, cache: make(map[string]*pipelineEntry)}
}

func (a *Adapter) pipeline(id string) (Pipeline, error) {
	a.mu.Lock()
	entry, ok := a.cache[id]
	if !ok {
		entry = &pipelineEntry{}
		a.cache[id] = entry
	}
	a.mu.Unlock()

	entry.once.Do(func() {
		entry.pipe, entry.err = a.factory(id)
	})
	if entry.err != nil {
		return nil, fault.Wrap(fault.ClassUnavailable, "on-device pipeline failed to load", entry.err)
	}
	return entry.pipe, nil
}

// Generate runs the cached pipeline and strips the echoed prompt prefix
// from the raw continuation.
func (a *Adapter) Generate(ctx context.Context, messages []model.Message, desc model.Descriptor, opts model.Options) (*model.Result, error) {
	pipe, err := a.pipeline(desc.ID)
	if err != nil {
		return nil, err
	}
	prompt := flatten(messages)
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = desc.MaxTokens
	}
	raw, err := pipe.Complete(ctx, prompt, maxTokens)
	if err != nil {
		return nil, fault.Wrap(fault.ClassUnavailable, "on-device generation failed", err)
	}
	return &model.Result{
		Text:      stripEcho(raw, prompt),
		Model:     desc.ID,
		ModelInfo: desc,
	}, nil
}

// GenerateStream chunks the unary result; the in-process generator has no
// incremental token protocol of its own.
func (a *Adapter) GenerateStream(ctx context.Context, messages []model.Message, desc model.Descriptor, opts model.Options, cb model.StreamCallback) error {
	res, err := a.Generate(ctx, messages, desc, opts)
	if err != nil {
		return err
	}
	return relay.StreamText(ctx, res.Text, relay.DefaultChunkSize, cb)
}

// flatten renders the conversation as a plain prompt for completion-style
// generation.
func flatten(messages []model.Message) string {
	var sb strings.Builder
	for _, m := range messages {
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		switch m.Role {
		case model.RoleSystem:
			sb.WriteString(m.Content)
			sb.WriteString("\n\n")
		case model.RoleAssistant:
			sb.WriteString("Assistant: ")
			sb.WriteString(m.Content)
			sb.WriteString("\n")
		default:
			sb.WriteString("User: ")
			sb.WriteString(m.Content)
			sb.WriteString("\n")
		}
	}
	sb.WriteString("Assistant:")
	return sb.String()
}

// stripEcho removes the prompt prefix that completion models echo back.
func stripEcho(raw, prompt string) string {
	out := raw
	if strings.HasPrefix(out, prompt) {
		out = out[len(prompt):]
	}
	return strings.TrimSpace(out)
}
