// Package localdaemon talks to a locally running, Ollama-style model
// serving daemon over HTTP. It supports a one-shot chat call and the
// daemon's newline-delimited-JSON streaming protocol, and it keeps the two
// failure modes the user cares about distinct: "the daemon is not running"
// versus "the daemon is up but the model is not ready".
package localdaemon

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"syscall"
	"time"

	"github.com/modelmux/modelmux/pkg/fault"
	"github.com/modelmux/modelmux/pkg/model"
)

const (
	chatPath       = "/api/chat"
	defaultBaseURL = "http://localhost:11434"
	defaultTimeout = 60 * time.Second

	// NDJSON lines are usually small; the cap guards against a
	// misbehaving daemon.
	maxLineBytes = 1 << 20
)

// Adapter implements model.Adapter against one daemon instance.
type Adapter struct {
	client  *http.Client
	baseURL string
}

var _ model.Adapter = (*Adapter)(nil)

// New builds an adapter for the daemon at baseURL. Empty baseURL selects
// the conventional local address; a nil client gets a bounded timeout so a
// hung daemon turns into service_unavailable instead of a stuck request.
func New(baseURL string, client *http.Client) *Adapter {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		trimmed = defaultBaseURL
	}
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	return &Adapter{client: client, baseURL: trimmed}
}

// BaseURL reports the daemon address, used in user-facing notices.
func (a *Adapter) BaseURL() string { return a.baseURL }

type chatMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

type chatRequest struct {
	Model    string         `json:"model"`
	Messages []chatMessage  `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

type chatResponse struct {
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Done  bool   `json:"done"`
	Error string `json:"error,omitempty"`
}

// Generate performs a one-shot completion call.
func (a *Adapter) Generate(ctx context.Context, messages []model.Message, desc model.Descriptor, opts model.Options) (*model.Result, error) {
	resp, err := a.do(ctx, messages, desc, opts, false)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fault.Wrap(fault.ClassMalformed, "daemon returned an unreadable response", err)
	}
	if out.Error != "" {
		return nil, daemonError(http.StatusInternalServerError, out.Error)
	}
	return &model.Result{
		Text:      out.Message.Content,
		Model:     desc.ID,
		ModelInfo: desc,
	}, nil
}

// GenerateStream consumes the daemon's NDJSON stream, forwarding each
// message fragment as one chunk.
func (a *Adapter) GenerateStream(ctx context.Context, messages []model.Message, desc model.Descriptor, opts model.Options, cb model.StreamCallback) error {
	if cb == nil {
		return errors.New("localdaemon: stream callback is required")
	}
	resp, err := a.do(ctx, messages, desc, opts, true)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var chunk chatResponse
		if err := json.Unmarshal(line, &chunk); err != nil {
			return fault.Wrap(fault.ClassMalformed, "daemon stream sent an unreadable line", err)
		}
		if chunk.Error != "" {
			return daemonError(http.StatusInternalServerError, chunk.Error)
		}
		if chunk.Message.Content != "" {
			if err := cb(model.StreamChunk{Content: chunk.Message.Content}); err != nil {
				return err
			}
		}
		if chunk.Done {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return fault.Wrap(fault.ClassUnavailable, "daemon stream ended unexpectedly", err)
	}
	return nil
}

func (a *Adapter) do(ctx context.Context, messages []model.Message, desc model.Descriptor, opts model.Options, stream bool) (*http.Response, error) {
	payload := chatRequest{
		Model:    daemonModelName(desc.ID),
		Messages: toDaemonMessages(messages),
		Stream:   stream,
	}
	options := map[string]any{}
	if opts.Temperature != nil {
		options["temperature"] = *opts.Temperature
	}
	if n := opts.MaxTokens; n > 0 {
		options["num_predict"] = n
	} else if desc.MaxTokens > 0 {
		options["num_predict"] = desc.MaxTokens
	}
	if len(options) > 0 {
		payload.Options = options
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(payload); err != nil {
		return nil, fault.Wrap(fault.ClassMalformed, "encode daemon request", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+chatPath, &buf)
	if err != nil {
		return nil, fault.Wrap(fault.ClassMalformed, "build daemon request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		if errors.Is(err, syscall.ECONNREFUSED) {
			return nil, fault.Wrap(fault.ClassConnRefused,
				fmt.Sprintf("no model daemon is listening at %s (is it running?)", a.baseURL), err)
		}
		classified := fault.Classify(err)
		classified.Message = fmt.Sprintf("model daemon at %s: %s", a.baseURL, classified.Message)
		return nil, classified
	}
	if resp.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, daemonError(resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return resp, nil
}

// daemonError maps the daemon's descriptive error body. The daemon being up
// but the model unready ("loading", "not found") is the retry-shortly case.
func daemonError(status int, detail string) *fault.Failure {
	lower := strings.ToLower(detail)
	loading := strings.Contains(lower, "load")
	class := fault.FromStatus(status)
	if loading || strings.Contains(lower, "not found") {
		class = fault.ClassUnavailable
	}
	msg := fmt.Sprintf("model daemon error (HTTP %d)", status)
	if detail != "" {
		msg = fmt.Sprintf("model daemon error (HTTP %d): %s", status, detail)
	}
	return &fault.Failure{Class: class, Message: msg, Loading: class == fault.ClassUnavailable}
}

func daemonModelName(id string) string {
	// Registry ids are namespaced ("daemon/llama3"); the daemon wants the
	// bare model name.
	if _, rest, ok := strings.Cut(id, "/"); ok && rest != "" {
		return rest
	}
	return id
}

func toDaemonMessages(messages []model.Message) []chatMessage {
	out := make([]chatMessage, 0, len(messages))
	for _, m := range messages {
		dm := chatMessage{Role: m.Role, Content: m.Content}
		if len(m.Image) > 0 {
			dm.Images = []string{base64.StdEncoding.EncodeToString(m.Image)}
		}
		out = append(out, dm)
	}
	return out
}
