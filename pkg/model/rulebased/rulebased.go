// Package rulebased implements the terminal fallback adapter. It must
// produce a reasonable answer for any input, including empty input, without
// network access, and it must never return an error: this is the guarantee
// the whole fallback chain rests on.
package rulebased

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/modelmux/modelmux/pkg/analyze"
	"github.com/modelmux/modelmux/pkg/model"
	"github.com/modelmux/modelmux/pkg/relay"
)

// Adapter answers from a fixed rule set and small knowledge base.
type Adapter struct {
	analyzer analyze.Analyzer
	now      func() time.Time
}

var _ model.Adapter = (*Adapter)(nil)

// New builds the adapter. A nil analyzer falls back to the built-in one.
func New(analyzer analyze.Analyzer) *Adapter {
	if analyzer == nil {
		analyzer = analyze.NewBasic()
	}
	return &Adapter{analyzer: analyzer, now: time.Now}
}

// Generate never fails. The answer is derived from the latest user message;
// everything upstream of it (system prompts, history) is ignored because
// the rule engine has no use for long context.
func (a *Adapter) Generate(ctx context.Context, messages []model.Message, desc model.Descriptor, opts model.Options) (*model.Result, error) {
	prompt := latestUser(messages)
	return &model.Result{
		Text:      a.answer(prompt),
		Model:     desc.ID,
		ModelInfo: desc,
	}, nil
}

// GenerateStream chunks the unary answer through the relay chunker.
func (a *Adapter) GenerateStream(ctx context.Context, messages []model.Message, desc model.Descriptor, opts model.Options, cb model.StreamCallback) error {
	res, _ := a.Generate(ctx, messages, desc, opts)
	return relay.StreamText(ctx, res.Text, relay.DefaultChunkSize, cb)
}

func latestUser(messages []model.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == model.RoleUser {
			return messages[i].Content
		}
	}
	if n := len(messages); n > 0 {
		return messages[n-1].Content
	}
	return ""
}

// answer walks the rule chain in priority order: smalltalk, clock, math,
// knowledge base, then the reflective default.
func (a *Adapter) answer(prompt string) string {
	trimmed := strings.TrimSpace(prompt)
	if trimmed == "" {
		return "Hello! I'm running in offline mode right now. Ask me anything and I'll do my best with what I know."
	}
	lower := strings.ToLower(trimmed)

	if reply, ok := smalltalk(lower); ok {
		return reply
	}
	if reply, ok := a.clock(lower); ok {
		return reply
	}
	if reply, ok := evalArithmetic(trimmed); ok {
		return reply
	}
	if reply, ok := lookupKnowledge(lower); ok {
		return reply
	}
	return a.reflective(trimmed)
}

func smalltalk(lower string) (string, bool) {
	switch {
	case hasAnyPrefix(lower, "hello", "hi ", "hi!", "hey", "good morning", "good afternoon", "good evening") || lower == "hi":
		return "Hello! How can I help you today?", true
	case strings.Contains(lower, "how are you"):
		return "I'm doing well, thanks for asking. What can I do for you?", true
	case hasAny(lower, "bye", "goodbye", "see you", "good night"):
		return "Goodbye! Feel free to come back any time.", true
	case hasAny(lower, "thank you", "thanks", "thx"):
		return "You're welcome! Anything else I can help with?", true
	case hasAny(lower, "who are you", "what are you"):
		return "I'm a lightweight offline assistant. I step in when the larger models are unavailable, so my answers are simpler but always on.", true
	case hasAny(lower, "help", "what can you do"):
		return "I can chat, answer simple factual questions, do arithmetic, and tell you the time and date. For deeper answers, try again when a larger model is reachable.", true
	}
	return "", false
}

func (a *Adapter) clock(lower string) (string, bool) {
	now := a.now()
	switch {
	case strings.Contains(lower, "what time") || strings.Contains(lower, "the time"):
		return fmt.Sprintf("It's %s right now.", now.Format("3:04 PM")), true
	case strings.Contains(lower, "what day") || strings.Contains(lower, "what date") || strings.Contains(lower, "today's date") || strings.Contains(lower, "the date"):
		return fmt.Sprintf("Today is %s.", now.Format("Monday, January 2, 2006")), true
	}
	return "", false
}

// reflective is the last-resort response: it mirrors the analyzer's view of
// the prompt back so the reply stays on topic even without a model.
func (a *Adapter) reflective(prompt string) string {
	analysis := a.analyzer.Analyze(prompt)

	var topic string
	switch {
	case len(analysis.Entities) > 0:
		topic = analysis.Entities[0]
	case len(analysis.Keywords) > 0:
		topic = analysis.Keywords[0]
	}

	var sb strings.Builder
	switch analysis.Sentiment {
	case "negative":
		sb.WriteString("That sounds frustrating. ")
	case "positive":
		sb.WriteString("Glad to hear it! ")
	}

	if topic != "" {
		fmt.Fprintf(&sb, "You're asking about %s. ", topic)
	}
	if analysis.Intent == "question" {
		sb.WriteString("I don't have a detailed answer for that while running offline, but here's what I can offer: ")
	} else {
		sb.WriteString("I understand. ")
	}
	if len(analysis.Keywords) > 1 {
		fmt.Fprintf(&sb, "the key points seem to be %s. ", strings.Join(analysis.Keywords[:min(3, len(analysis.Keywords))], ", "))
	}
	sb.WriteString("Could you rephrase or narrow it down, or retry once a larger model is back online?")
	return sb.String()
}

func hasAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func hasAnyPrefix(s string, prefixes ...string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
