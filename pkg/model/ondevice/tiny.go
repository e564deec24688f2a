package ondevice

import (
	"context"
	"fmt"
	"strings"
)

// tinyPipeline is the built-in generator used when no real on-device
// backend is injected. It is deterministic and completion-shaped: the
// output echoes the prompt and appends a short templated continuation, the
// same raw form a real pipeline produces before echo stripping.
type tinyPipeline struct {
	modelID string
}

func newTinyPipeline(modelID string) *tinyPipeline {
	return &tinyPipeline{modelID: modelID}
}

func (p *tinyPipeline) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	subject := lastUserLine(prompt)
	var continuation string
	switch {
	case subject == "":
		continuation = " Hello! What would you like to talk about?"
	case strings.HasSuffix(strings.TrimSpace(subject), "?"):
		continuation = fmt.Sprintf(" That's a good question about %s. The short answer, from what this small on-device model knows: %s is worth breaking into smaller parts; ask me about one of them and I can go a little deeper.", topicOf(subject), topicOf(subject))
	default:
		continuation = fmt.Sprintf(" Noted. Regarding %s, I can offer a brief take even while fully offline; ask a follow-up question for more.", topicOf(subject))
	}
	if maxTokens > 0 {
		continuation = truncateWords(continuation, maxTokens)
	}
	return prompt + continuation, nil
}

func lastUserLine(prompt string) string {
	lines := strings.Split(prompt, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if rest, ok := strings.CutPrefix(line, "User:"); ok {
			return strings.TrimSpace(rest)
		}
	}
	return ""
}

func topicOf(subject string) string {
	words := strings.Fields(strings.Trim(subject, "?!. "))
	if len(words) == 0 {
		return "that"
	}
	if len(words) > 4 {
		words = words[len(words)-4:]
	}
	return strings.ToLower(strings.Join(words, " "))
}

func truncateWords(text string, max int) string {
	words := strings.Fields(text)
	if len(words) <= max {
		return text
	}
	return strings.Join(words[:max], " ")
}
