package augment

import (
	"context"
	"errors"
	"net/url"
	"strings"
)

// URLImageGenerator is the default image collaborator: it targets services
// that render an image directly from a prompt-bearing URL, so "generation"
// is just URL construction and needs no request-time network call.
type URLImageGenerator struct {
	base string
}

// NewURLImageGenerator builds a generator over base, e.g.
// "https://image.pollinations.ai/prompt/".
func NewURLImageGenerator(base string) *URLImageGenerator {
	return &URLImageGenerator{base: strings.TrimRight(base, "/") + "/"}
}

var _ ImageGenerator = (*URLImageGenerator)(nil)

// GenerateImage implements ImageGenerator.
func (g *URLImageGenerator) GenerateImage(ctx context.Context, prompt string) (string, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", errors.New("imagegen: empty prompt")
	}
	return g.base + url.PathEscape(prompt), nil
}
