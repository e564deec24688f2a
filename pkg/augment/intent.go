package augment

import "strings"

// Intent is the classified purpose of the latest user message.
type Intent string

const (
	IntentChat   Intent = "chat"
	IntentSearch Intent = "search"
	IntentImage  Intent = "image"
	IntentCode   Intent = "code"
	IntentNews   Intent = "news"
)

// intentCategory scores one intent: each matched keyword contributes its
// priority weight. Declaration order breaks score ties, so more specific
// categories are listed first.
type intentCategory struct {
	intent   Intent
	keywords map[string]int
}

var intentTable = []intentCategory{
	{
		intent: IntentImage,
		keywords: map[string]int{
			"draw":               4,
			"sketch":             4,
			"generate an image":  6,
			"generate a picture": 6,
			"create an image":    6,
			"make an image":      5,
			"picture of":         5,
			"image of":           5,
			"illustration":       3,
			"painting of":        4,
			"logo for":           3,
		},
	},
	{
		intent: IntentNews,
		keywords: map[string]int{
			"news":      5,
			"headline":  4,
			"latest":    2,
			"today":     1,
			"happening": 2,
			"breaking":  4,
		},
	},
	{
		intent: IntentSearch,
		keywords: map[string]int{
			"search":      5,
			"look up":     5,
			"google":      4,
			"find out":    3,
			"current":     2,
			"who is":      2,
			"what is the": 1,
			"weather":     3,
			"price of":    3,
			"stock":       2,
			"score":       2,
		},
	},
	{
		intent: IntentCode,
		keywords: map[string]int{
			"code":      3,
			"function":  2,
			"bug":       3,
			"compile":   3,
			"refactor":  4,
			"implement": 2,
			"snippet":   3,
			"debug":     4,
		},
	},
}

// ClassifyIntent scores the message against the fixed category table. The
// highest cumulative score wins; ties go to the earliest declared category;
// zero everywhere means plain chat.
func ClassifyIntent(message string) Intent {
	lower := strings.ToLower(message)
	best := IntentChat
	bestScore := 0
	for _, cat := range intentTable {
		score := 0
		for kw, weight := range cat.keywords {
			if strings.Contains(lower, kw) {
				score += weight
			}
		}
		if score > bestScore {
			bestScore = score
			best = cat.intent
		}
	}
	return best
}

// searchLike reports whether an intent should trigger search in auto mode.
func searchLike(intent Intent) bool {
	return intent == IntentSearch || intent == IntentNews
}
