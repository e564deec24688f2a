// Package cloudchat adapts an OpenAI-compatible chat-completions API. The
// credential is read from the descriptor's environment variable at call
// time, so a key added after startup is picked up without a restart and a
// missing key is reported as an auth failure rather than guessed at during
// registration.
package cloudchat

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	openaisdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/modelmux/modelmux/pkg/fault"
	"github.com/modelmux/modelmux/pkg/model"
	"github.com/modelmux/modelmux/pkg/telemetry"
)

const defaultTimeout = 45 * time.Second

// Adapter implements model.Adapter over the official SDK.
type Adapter struct {
	baseURL    string
	httpClient *http.Client
}

var _ model.Adapter = (*Adapter)(nil)

// New builds an adapter. baseURL may be empty for the provider default; a
// nil client gets a bounded timeout.
func New(baseURL string, client *http.Client) *Adapter {
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	return &Adapter{baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"), httpClient: client}
}

func (a *Adapter) client(desc model.Descriptor) (openaisdk.Client, error) {
	key := ""
	if desc.RequiresCredential != "" {
		key = os.Getenv(desc.RequiresCredential)
	}
	if key == "" {
		return openaisdk.Client{}, fault.New(fault.ClassAuth,
			fmt.Sprintf("no API key found for %s (set %s)", desc.ID, desc.RequiresCredential))
	}
	opts := []option.RequestOption{
		option.WithAPIKey(key),
		option.WithHTTPClient(a.httpClient),
	}
	if a.baseURL != "" {
		opts = append(opts, option.WithBaseURL(a.baseURL))
	}
	return openaisdk.NewClient(opts...), nil
}

func (a *Adapter) params(messages []model.Message, desc model.Descriptor, opts model.Options) openaisdk.ChatCompletionNewParams {
	params := openaisdk.ChatCompletionNewParams{
		Messages: toSDKMessages(messages, desc.SupportsVision),
		Model:    openaisdk.ChatModel(desc.ID),
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = desc.MaxTokens
	}
	if maxTokens > 0 {
		params.MaxTokens = openaisdk.Int(int64(maxTokens))
	}
	if opts.Temperature != nil {
		params.Temperature = openaisdk.Float(*opts.Temperature)
	}
	return params
}

// Generate performs a blocking chat completion call.
func (a *Adapter) Generate(ctx context.Context, messages []model.Message, desc model.Descriptor, opts model.Options) (_ *model.Result, err error) {
	ctx, span := telemetry.StartSpan(ctx, "model.cloudchat.generate",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(telemetry.SanitizeAttributes(
			attribute.String("llm.provider", "cloud_chat"),
			attribute.String("llm.model", desc.ID),
			attribute.Bool("llm.stream", false),
		)...),
	)
	defer func() { telemetry.EndSpan(span, err) }()

	client, err := a.client(desc)
	if err != nil {
		return nil, err
	}
	completion, err := client.Chat.Completions.New(ctx, a.params(messages, desc, opts))
	if err != nil {
		return nil, classify(err)
	}
	if len(completion.Choices) == 0 {
		return nil, fault.New(fault.ClassMalformed, "cloud API returned no choices")
	}
	msg := completion.Choices[0].Message
	text := msg.Content
	if text == "" && strings.TrimSpace(msg.Refusal) != "" {
		text = msg.Refusal
	}
	return &model.Result{
		Text:      text,
		Model:     desc.ID,
		ModelInfo: desc,
	}, nil
}

// GenerateStream relays the provider's native incremental delta protocol.
func (a *Adapter) GenerateStream(ctx context.Context, messages []model.Message, desc model.Descriptor, opts model.Options, cb model.StreamCallback) (err error) {
	if cb == nil {
		return errors.New("cloudchat: stream callback is required")
	}
	ctx, span := telemetry.StartSpan(ctx, "model.cloudchat.generate_stream",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(telemetry.SanitizeAttributes(
			attribute.String("llm.provider", "cloud_chat"),
			attribute.String("llm.model", desc.ID),
			attribute.Bool("llm.stream", true),
		)...),
	)
	defer func() { telemetry.EndSpan(span, err) }()

	client, err := a.client(desc)
	if err != nil {
		return err
	}
	stream := client.Chat.Completions.NewStreaming(ctx, a.params(messages, desc, opts))
	defer stream.Close()

	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		if delta := chunk.Choices[0].Delta.Content; delta != "" {
			if err := cb(model.StreamChunk{Content: delta}); err != nil {
				return err
			}
		}
	}
	if err := stream.Err(); err != nil {
		return classify(err)
	}
	return nil
}

// classify maps SDK errors onto the failure taxonomy using the upstream
// status code when one is present.
func classify(err error) *fault.Failure {
	var apiErr *openaisdk.Error
	if errors.As(err, &apiErr) {
		class := fault.FromStatus(apiErr.StatusCode)
		f := &fault.Failure{
			Class:   class,
			Message: fmt.Sprintf("cloud API error (HTTP %d)", apiErr.StatusCode),
			Loading: class == fault.ClassUnavailable,
			Err:     err,
		}
		switch class {
		case fault.ClassAuth:
			f.Message = "cloud API rejected the credential; check the configured API key"
		case fault.ClassRateLimited:
			f.Message = "cloud API rate limit reached"
		}
		return f
	}
	return fault.Classify(err)
}
