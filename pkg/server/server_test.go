package server

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/modelmux/modelmux/pkg/analyze"
	"github.com/modelmux/modelmux/pkg/dispatch"
	"github.com/modelmux/modelmux/pkg/fault"
	"github.com/modelmux/modelmux/pkg/model"
	"github.com/modelmux/modelmux/pkg/model/rulebased"
	"github.com/modelmux/modelmux/pkg/registry"
	"github.com/modelmux/modelmux/pkg/relay"
)

type scriptedAdapter struct {
	text string
	err  error
}

func (a *scriptedAdapter) Generate(_ context.Context, _ []model.Message, desc model.Descriptor, _ model.Options) (*model.Result, error) {
	if a.err != nil {
		return nil, a.err
	}
	return &model.Result{Text: a.text, Model: desc.ID, ModelInfo: desc}, nil
}

func (a *scriptedAdapter) GenerateStream(ctx context.Context, messages []model.Message, desc model.Descriptor, opts model.Options, cb model.StreamCallback) error {
	if a.err != nil {
		return a.err
	}
	return relay.StreamText(ctx, a.text, 8, cb)
}

func newTestServer(t *testing.T, cloud model.Adapter) *httptest.Server {
	t.Helper()
	descs := []model.Descriptor{
		{ID: "gpt-4o", Kind: model.KindCloudChat, RequiresCredential: "SERVER_TEST_KEY", MaxTokens: 4096},
		{ID: "daemon/llama3", Kind: model.KindLocalDaemon},
		{ID: "tiny-chat", Kind: model.KindOnDevice},
		{ID: "offline-rules", Kind: model.KindRuleBased},
	}
	reg, err := registry.New(descs, "offline-rules")
	require.NoError(t, err)

	if cloud == nil {
		cloud = &scriptedAdapter{text: "cloud answer"}
	}
	d, err := dispatch.New(reg, dispatch.Adapters{
		model.KindCloudChat:   cloud,
		model.KindLocalDaemon: &scriptedAdapter{text: "daemon answer"},
		model.KindOnDevice:    &scriptedAdapter{text: "tiny answer"},
		model.KindRuleBased:   rulebased.New(analyze.NewBasic()),
	}, nil, nil, nil)
	require.NoError(t, err)

	srv := httptest.NewServer(New(d, reg, nil))
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url string, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	return resp
}

func TestChatEndpoint(t *testing.T) {
	srv := newTestServer(t, nil)

	resp := postJSON(t, srv.URL+"/api/chat", `{"model":"daemon/llama3","messages":[{"role":"user","content":"hi"}]}`)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var res model.Result
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
	require.Equal(t, "daemon answer", res.Text)
	require.Equal(t, "daemon/llama3", res.Model)
}

func TestChatRejectsEmptyMessages(t *testing.T) {
	srv := newTestServer(t, nil)

	resp := postJSON(t, srv.URL+"/api/chat", `{"model":"daemon/llama3","messages":[]}`)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestChatRejectsBadJSON(t *testing.T) {
	srv := newTestServer(t, nil)

	resp := postJSON(t, srv.URL+"/api/chat", `{"model": nope`)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestChatRejectsGet(t *testing.T) {
	srv := newTestServer(t, nil)

	resp, err := http.Get(srv.URL + "/api/chat")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestChatAuthFailureIs401(t *testing.T) {
	cloud := &scriptedAdapter{err: fault.New(fault.ClassAuth, "no API key found for gpt-4o (set SERVER_TEST_KEY)")}
	srv := newTestServer(t, cloud)

	resp := postJSON(t, srv.URL+"/api/chat", `{"model":"gpt-4o","messages":[{"role":"user","content":"hi"}]}`)
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Contains(t, body["error"], "SERVER_TEST_KEY")
}

func TestChatUnknownModelStillAnswers(t *testing.T) {
	srv := newTestServer(t, nil)

	resp := postJSON(t, srv.URL+"/api/chat", `{"model":"nonexistent","messages":[{"role":"user","content":"hello"}]}`)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var res model.Result
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
	require.Equal(t, "offline-rules", res.Model)
	require.NotEmpty(t, res.Notices)
}

func TestStreamEndpointFramesAndSentinel(t *testing.T) {
	srv := newTestServer(t, nil)

	resp := postJSON(t, srv.URL+"/api/chat/stream", `{"model":"daemon/llama3","messages":[{"role":"user","content":"hi"}]}`)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	var content strings.Builder
	sawSentinel := false
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		payload := strings.TrimPrefix(line, "data: ")
		if payload == "[DONE]" {
			sawSentinel = true
			continue
		}
		var frame relay.Frame
		require.NoError(t, json.Unmarshal([]byte(payload), &frame))
		require.Empty(t, frame.Error)
		content.WriteString(frame.Content)
	}
	require.NoError(t, scanner.Err())
	require.True(t, sawSentinel, "stream must end with the [DONE] sentinel")
	require.Equal(t, "daemon answer", content.String())
}

func TestStreamEmitsErrorFrameWithoutSentinel(t *testing.T) {
	cloud := &scriptedAdapter{err: fault.New(fault.ClassAuth, "cloud API rejected the credential; check the configured API key")}
	srv := newTestServer(t, cloud)

	resp := postJSON(t, srv.URL+"/api/chat/stream", `{"model":"gpt-4o","messages":[{"role":"user","content":"hi"}]}`)
	defer resp.Body.Close()

	sawError := false
	sawSentinel := false
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		payload := strings.TrimPrefix(line, "data: ")
		if payload == "[DONE]" {
			sawSentinel = true
			continue
		}
		var frame relay.Frame
		require.NoError(t, json.Unmarshal([]byte(payload), &frame))
		if frame.Error != "" {
			sawError = true
		}
	}
	require.True(t, sawError, "terminal error frame expected")
	require.False(t, sawSentinel, "failed stream must not emit the sentinel")
}

func TestModelsEndpoint(t *testing.T) {
	t.Setenv("SERVER_TEST_KEY", "sk-test")
	srv := newTestServer(t, nil)

	resp, err := http.Get(srv.URL + "/api/models")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Models []struct {
			ID        string `json:"id"`
			Provider  string `json:"provider"`
			Available bool   `json:"available"`
		} `json:"models"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Models, 4)
	require.Equal(t, "gpt-4o", body.Models[0].ID)
	require.Equal(t, "cloud_chat", body.Models[0].Provider)
	require.True(t, body.Models[0].Available)
	require.Equal(t, "rule_based", body.Models[3].Provider)
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t, nil)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}
