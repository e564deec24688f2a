// Package augment rewrites the message list before dispatch: it classifies
// the user's intent, injects web-search and integration context into the
// system message, and intercepts image-generation requests entirely so no
// chat adapter is ever involved in producing an image.
package augment

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/modelmux/modelmux/pkg/model"
	"github.com/modelmux/modelmux/pkg/search"
)

// ImageGenerator is the image-generation collaborator: prompt in, image
// reference/URL out.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt string) (string, error)
}

// Integration describes one configured external API.
type Integration struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
	BaseURL     string `json:"baseUrl" yaml:"base_url"`
}

// IntegrationSource lists the configured external APIs.
type IntegrationSource interface {
	Integrations() []Integration
}

// StaticIntegrations adapts a fixed list into an IntegrationSource.
type StaticIntegrations []Integration

// Integrations implements IntegrationSource.
func (s StaticIntegrations) Integrations() []Integration { return s }

// Stage runs all pre-dispatch augmentation. Collaborators may be nil, in
// which case the corresponding injection is skipped.
type Stage struct {
	searcher     search.Searcher
	images       ImageGenerator
	integrations IntegrationSource
	log          *zap.Logger
}

// New builds a stage. A nil logger is replaced with a no-op one.
func New(searcher search.Searcher, images ImageGenerator, integrations IntegrationSource, log *zap.Logger) *Stage {
	if log == nil {
		log = zap.NewNop()
	}
	return &Stage{searcher: searcher, images: images, integrations: integrations, log: log}
}

// Apply runs the stage over req. It returns a non-nil Result only for the
// image-interception short circuit, in which case dispatch must be skipped
// and the result returned to the caller as-is.
//
// Apply is idempotent: once a request is marked Augmented, a second pass
// changes nothing.
func (s *Stage) Apply(ctx context.Context, req *model.Request, imageDesc model.Descriptor) (*model.Result, error) {
	if req.Augmented {
		return nil, nil
	}
	userMsg := req.LastUserContent()
	intent := ClassifyIntent(userMsg)
	s.log.Debug("classified intent",
		zap.String("intent", string(intent)),
		zap.String("model", req.Model))

	if intent == IntentImage && s.images != nil {
		url, err := s.images.GenerateImage(ctx, userMsg)
		if err != nil {
			// Image generation failing is not fatal: fall through and
			// let a chat model answer instead.
			s.log.Warn("image generation failed, continuing as chat", zap.Error(err))
		} else {
			req.Augmented = true
			return &model.Result{
				Text:      fmt.Sprintf("![%s](%s)", strings.TrimSpace(userMsg), url),
				Model:     imageDesc.ID,
				ModelInfo: imageDesc,
			}, nil
		}
	}

	if s.shouldSearch(req.Options.SearchMode, intent) {
		s.injectSearch(ctx, req, userMsg)
	}
	s.injectIntegrations(req)
	req.Augmented = true
	return nil, nil
}

func (s *Stage) shouldSearch(mode model.SearchMode, intent Intent) bool {
	if s.searcher == nil {
		return false
	}
	switch mode {
	case model.SearchOn:
		return true
	case model.SearchOff:
		return false
	default:
		return searchLike(intent)
	}
}

func (s *Stage) injectSearch(ctx context.Context, req *model.Request, query string) {
	results, err := s.searcher.Search(ctx, query)
	if err != nil {
		s.log.Warn("search augmentation failed", zap.Error(err))
		return
	}
	if len(results) == 0 {
		return
	}
	var sb strings.Builder
	sb.WriteString("Web search results for the user's question:\n")
	for i, r := range results {
		fmt.Fprintf(&sb, "%d. %s (%s)\n   %s\n", i+1, r.Title, r.Link, r.Snippet)
	}
	sb.WriteString("Use these results when they are relevant and cite the source link.")
	appendToSystem(req, sb.String())
}

func (s *Stage) injectIntegrations(req *model.Request) {
	if s.integrations == nil {
		return
	}
	list := s.integrations.Integrations()
	if len(list) == 0 {
		return
	}
	var sb strings.Builder
	sb.WriteString("External API integrations available to the user:\n")
	for _, integ := range list {
		fmt.Fprintf(&sb, "- %s: %s (%s)\n", integ.Name, integ.Description, integ.BaseURL)
	}
	appendToSystem(req, sb.String())
}

// appendToSystem extends the first system message, creating one if the
// conversation has none.
func appendToSystem(req *model.Request, block string) {
	block = strings.TrimSpace(block)
	if block == "" {
		return
	}
	for i := range req.Messages {
		if req.Messages[i].Role == model.RoleSystem {
			req.Messages[i].Content = strings.TrimRight(req.Messages[i].Content, "\n") + "\n\n" + block
			return
		}
	}
	req.Messages = append([]model.Message{{Role: model.RoleSystem, Content: block}}, req.Messages...)
}
