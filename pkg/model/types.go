package model

import "strings"

// Message roles. The pipeline never persists conversation history; the
// caller owns the message list.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a conversation. Image holds an optional inline
// payload (raw bytes, typically decoded from base64 by the transport).
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	Image   []byte `json:"image,omitempty"`
}

// SearchMode controls web-search augmentation.
type SearchMode string

const (
	SearchAuto SearchMode = "auto"
	SearchOn   SearchMode = "on"
	SearchOff  SearchMode = "off"
)

// Options carries per-request generation tuning.
type Options struct {
	Temperature *float64   `json:"temperature,omitempty"`
	MaxTokens   int        `json:"maxTokens,omitempty"`
	SearchMode  SearchMode `json:"searchMode,omitempty"`
}

// Request is one generation call. Augmented is set once the augmentation
// stage has injected context, making repeated passes idempotent.
type Request struct {
	Messages  []Message `json:"messages"`
	Model     string    `json:"model"`
	Options   Options   `json:"options"`
	Augmented bool      `json:"-"`
}

// LastUserContent returns the content of the most recent user message, or
// the last message of any role when no user message exists.
func (r *Request) LastUserContent() string {
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if r.Messages[i].Role == RoleUser {
			return r.Messages[i].Content
		}
	}
	if n := len(r.Messages); n > 0 {
		return r.Messages[n-1].Content
	}
	return ""
}

// Result is the outcome of one generation call. Model is the id that
// actually answered, which may differ from the requested id after fallback
// but is always a registered id. Loading is true only when the failure that
// triggered fallback indicates the original model may succeed shortly.
type Result struct {
	Text      string     `json:"message"`
	Model     string     `json:"model"`
	ModelInfo Descriptor `json:"modelInfo"`
	Notices   []string   `json:"notices"`
	Loading   bool       `json:"loading"`
}

// AddNotice appends an advisory string, skipping empty and duplicate text.
func (r *Result) AddNotice(notice string) {
	notice = strings.TrimSpace(notice)
	if notice == "" {
		return
	}
	for _, existing := range r.Notices {
		if existing == notice {
			return
		}
	}
	r.Notices = append(r.Notices, notice)
}
