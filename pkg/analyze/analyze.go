// Package analyze provides the linguistic-analysis contract consumed by the
// augmentation stage and the rule-based adapter, plus a lightweight
// offline implementation of it.
package analyze

import (
	"sort"
	"strings"
	"unicode"
)

// Analysis is the read-only view the pipeline consumes.
type Analysis struct {
	Entities  []string `json:"entities"`
	Sentiment string   `json:"sentiment"` // positive, negative, neutral
	Keywords  []string `json:"keywords"`
	Intent    string   `json:"intent"`
	Stats     Stats    `json:"stats"`
}

// Stats carries basic token counts.
type Stats struct {
	Words     int `json:"words"`
	Sentences int `json:"sentences"`
}

// Analyzer produces an Analysis for raw text.
type Analyzer interface {
	Analyze(text string) Analysis
}

// Basic is a dependency-free Analyzer: capitalized-span entities, lexicon
// sentiment, stopword-filtered keyword frequency.
type Basic struct{}

// NewBasic returns the default analyzer.
func NewBasic() *Basic { return &Basic{} }

var positiveWords = map[string]bool{
	"good": true, "great": true, "love": true, "excellent": true,
	"happy": true, "thanks": true, "wonderful": true, "awesome": true,
	"best": true, "nice": true, "amazing": true,
}

var negativeWords = map[string]bool{
	"bad": true, "terrible": true, "hate": true, "awful": true,
	"sad": true, "angry": true, "broken": true, "worst": true,
	"wrong": true, "fail": true, "horrible": true,
}

var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true,
	"but": true, "is": true, "are": true, "was": true, "were": true,
	"be": true, "to": true, "of": true, "in": true, "on": true,
	"for": true, "with": true, "at": true, "by": true, "it": true,
	"this": true, "that": true, "i": true, "you": true, "me": true,
	"my": true, "your": true, "what": true, "how": true, "do": true,
	"does": true, "can": true, "could": true, "would": true, "about": true,
	"please": true, "tell": true,
}

// Analyze implements Analyzer.
func (b *Basic) Analyze(text string) Analysis {
	words := fields(text)
	a := Analysis{
		Entities: entities(text),
		Keywords: keywords(words),
		Stats: Stats{
			Words:     len(words),
			Sentences: sentenceCount(text),
		},
	}
	a.Sentiment = sentiment(words)
	a.Intent = intentOf(text)
	return a
}

func fields(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r) && r != '\''
	})
}

func sentenceCount(text string) int {
	count := 0
	for _, r := range text {
		if r == '.' || r == '!' || r == '?' {
			count++
		}
	}
	if count == 0 && strings.TrimSpace(text) != "" {
		count = 1
	}
	return count
}

// entities collects runs of capitalized words, skipping sentence starts
// that are stopwords when lowercased.
func entities(text string) []string {
	words := strings.Fields(text)
	var out []string
	seen := map[string]bool{}
	var run []string
	flush := func() {
		if len(run) > 0 {
			ent := strings.Join(run, " ")
			if !seen[ent] && !stopwords[strings.ToLower(ent)] {
				seen[ent] = true
				out = append(out, ent)
			}
			run = nil
		}
	}
	for _, w := range words {
		trimmed := strings.TrimFunc(w, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsNumber(r)
		})
		if trimmed == "" {
			flush()
			continue
		}
		first := []rune(trimmed)[0]
		if unicode.IsUpper(first) {
			run = append(run, trimmed)
		} else {
			flush()
		}
	}
	flush()
	return out
}

func sentiment(words []string) string {
	score := 0
	for _, w := range words {
		lw := strings.ToLower(w)
		if positiveWords[lw] {
			score++
		}
		if negativeWords[lw] {
			score--
		}
	}
	switch {
	case score > 0:
		return "positive"
	case score < 0:
		return "negative"
	default:
		return "neutral"
	}
}

func keywords(words []string) []string {
	freq := map[string]int{}
	order := map[string]int{}
	for i, w := range words {
		lw := strings.ToLower(w)
		if len(lw) < 3 || stopwords[lw] {
			continue
		}
		if _, ok := freq[lw]; !ok {
			order[lw] = i
		}
		freq[lw]++
	}
	keys := make([]string, 0, len(freq))
	for k := range freq {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if freq[keys[i]] != freq[keys[j]] {
			return freq[keys[i]] > freq[keys[j]]
		}
		return order[keys[i]] < order[keys[j]]
	})
	if len(keys) > 8 {
		keys = keys[:8]
	}
	return keys
}

func intentOf(text string) string {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "?"):
		return "question"
	case strings.HasPrefix(lower, "please") || strings.HasPrefix(lower, "can you"):
		return "request"
	default:
		return "statement"
	}
}
