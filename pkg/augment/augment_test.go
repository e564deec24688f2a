package augment

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/modelmux/modelmux/pkg/model"
	"github.com/modelmux/modelmux/pkg/search"
)

var imageDesc = model.Descriptor{ID: "offline-rules", Kind: model.KindRuleBased}

type fakeSearcher struct {
	results []search.Result
	err     error
	queries []string
}

func (s *fakeSearcher) Search(_ context.Context, query string) ([]search.Result, error) {
	s.queries = append(s.queries, query)
	return s.results, s.err
}

type fakeImages struct {
	url string
	err error
}

func (g *fakeImages) GenerateImage(_ context.Context, prompt string) (string, error) {
	return g.url, g.err
}

func chatRequest(content string) *model.Request {
	return &model.Request{
		Messages: []model.Message{{Role: model.RoleUser, Content: content}},
		Model:    "gpt-4o",
	}
}

func TestClassifyIntent(t *testing.T) {
	cases := []struct {
		message string
		want    Intent
	}{
		{"draw a picture of a lighthouse", IntentImage},
		{"generate an image of a red fox", IntentImage},
		{"what's the latest news on the election", IntentNews},
		{"search for the best pizza in Naples", IntentSearch},
		{"what is the weather in Berlin", IntentSearch},
		{"help me debug this function", IntentCode},
		{"tell me a story about a dragon", IntentChat},
		{"", IntentChat},
	}
	for _, tc := range cases {
		if got := ClassifyIntent(tc.message); got != tc.want {
			t.Fatalf("ClassifyIntent(%q) = %s, want %s", tc.message, got, tc.want)
		}
	}
}

func TestImageIntentShortCircuits(t *testing.T) {
	images := &fakeImages{url: "https://img.example/fox.png"}
	stage := New(nil, images, nil, nil)

	req := chatRequest("draw a picture of a red fox")
	res, err := stage.Apply(context.Background(), req, imageDesc)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if res == nil {
		t.Fatal("image intent should short-circuit with a result")
	}
	if !strings.Contains(res.Text, "![") || !strings.Contains(res.Text, images.url) {
		t.Fatalf("result should be a markdown image reference: %q", res.Text)
	}
	if !req.Augmented {
		t.Fatal("short-circuited request must be marked augmented")
	}
}

func TestImageFailureFallsThroughToChat(t *testing.T) {
	images := &fakeImages{err: errors.New("renderer offline")}
	stage := New(nil, images, nil, nil)

	req := chatRequest("draw a picture of a red fox")
	res, err := stage.Apply(context.Background(), req, imageDesc)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if res != nil {
		t.Fatal("failed image generation must not short-circuit")
	}
	if !req.Augmented {
		t.Fatal("request should still be marked augmented")
	}
}

func TestSearchInjectedIntoSystemMessage(t *testing.T) {
	searcher := &fakeSearcher{results: []search.Result{
		{Title: "Result A", Link: "https://a.example", Snippet: "first"},
		{Title: "Result B", Link: "https://b.example", Snippet: "second"},
	}}
	stage := New(searcher, nil, nil, nil)

	req := chatRequest("search for current go release notes")
	if _, err := stage.Apply(context.Background(), req, imageDesc); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	if len(searcher.queries) != 1 {
		t.Fatalf("expected one search, got %v", searcher.queries)
	}
	if req.Messages[0].Role != model.RoleSystem {
		t.Fatalf("system message should be created first, got %+v", req.Messages[0])
	}
	system := req.Messages[0].Content
	if !strings.Contains(system, "Result A") || !strings.Contains(system, "https://b.example") {
		t.Fatalf("results missing from system message: %q", system)
	}
}

func TestSearchOffSuppressesAugmentation(t *testing.T) {
	searcher := &fakeSearcher{results: []search.Result{{Title: "X", Link: "https://x"}}}
	stage := New(searcher, nil, nil, nil)

	req := chatRequest("search for something")
	req.Options.SearchMode = model.SearchOff
	if _, err := stage.Apply(context.Background(), req, imageDesc); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(searcher.queries) != 0 {
		t.Fatal("search must not run when explicitly off")
	}
}

func TestSearchOnForcesAugmentation(t *testing.T) {
	searcher := &fakeSearcher{results: []search.Result{{Title: "X", Link: "https://x", Snippet: "s"}}}
	stage := New(searcher, nil, nil, nil)

	req := chatRequest("tell me a bedtime story")
	req.Options.SearchMode = model.SearchOn
	if _, err := stage.Apply(context.Background(), req, imageDesc); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(searcher.queries) != 1 {
		t.Fatal("search must run when explicitly on, whatever the intent")
	}
}

func TestApplyIsIdempotent(t *testing.T) {
	searcher := &fakeSearcher{results: []search.Result{{Title: "X", Link: "https://x", Snippet: "s"}}}
	stage := New(searcher, nil, StaticIntegrations{{Name: "crm", Description: "customer api", BaseURL: "https://crm.example"}}, nil)

	req := chatRequest("search for current release notes")
	if _, err := stage.Apply(context.Background(), req, imageDesc); err != nil {
		t.Fatalf("first Apply: %v", err)
	}
	snapshot := make([]model.Message, len(req.Messages))
	copy(snapshot, req.Messages)

	if _, err := stage.Apply(context.Background(), req, imageDesc); err != nil {
		t.Fatalf("second Apply: %v", err)
	}
	if len(req.Messages) != len(snapshot) {
		t.Fatalf("second pass changed the message count: %d -> %d", len(snapshot), len(req.Messages))
	}
	if !reflect.DeepEqual(req.Messages, snapshot) {
		t.Fatal("second pass mutated the messages")
	}
	if len(searcher.queries) != 1 {
		t.Fatalf("second pass re-ran search: %v", searcher.queries)
	}
}

func TestIntegrationsInjected(t *testing.T) {
	integrations := StaticIntegrations{
		{Name: "weather-api", Description: "live weather", BaseURL: "https://wx.example"},
	}
	stage := New(nil, nil, integrations, nil)

	req := &model.Request{Messages: []model.Message{
		{Role: model.RoleSystem, Content: "be helpful"},
		{Role: model.RoleUser, Content: "hello"},
	}}
	if _, err := stage.Apply(context.Background(), req, imageDesc); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	system := req.Messages[0].Content
	if !strings.HasPrefix(system, "be helpful") {
		t.Fatalf("existing system prompt clobbered: %q", system)
	}
	if !strings.Contains(system, "weather-api") || !strings.Contains(system, "https://wx.example") {
		t.Fatalf("integration catalog missing: %q", system)
	}
}
