// Package safety is the policy backstop for offline backends. Cloud
// providers moderate their own traffic; local and on-device models have no
// server-side layer, so prompts bound for them pass through this filter
// before any adapter is touched.
package safety

import (
	"fmt"
	"regexp"
)

// Verdict is the outcome of a policy check.
type Verdict struct {
	Blocked  bool   `json:"blocked"`
	Category string `json:"category,omitempty"`
	Message  string `json:"message,omitempty"`
}

type rule struct {
	category string
	pattern  *regexp.Regexp
}

// Filter matches prompts against a fixed rule set. Rules are compiled once
// at construction; Check is safe for concurrent use.
type Filter struct {
	rules []rule
}

// New returns the filter with the default policy categories.
func New() *Filter {
	return &Filter{rules: defaultRules()}
}

func defaultRules() []rule {
	return []rule{
		{
			category: "security_exploitation",
			pattern: regexp.MustCompile(`(?i)\b(write|create|build|generate)\b.{0,40}\b(malware|ransomware|keylogger|rootkit|botnet|exploit\s+code)\b` +
				`|\bsql\s+injection\s+(payload|attack)\b.{0,30}\b(against|target)\b` +
				`|\b(steal|exfiltrate)\b.{0,30}\b(passwords|credentials|cookies)\b`),
		},
		{
			category: "weaponization",
			pattern: regexp.MustCompile(`(?i)\b(how\s+to\s+)?(make|build|synthesize|manufacture|assemble)\b.{0,40}\b(bomb|explosive|nerve\s+agent|sarin|ricin|bioweapon|chemical\s+weapon|pipe\s+bomb|ghost\s+gun)\b` +
				`|\benrich(ing)?\s+uranium\b`),
		},
		{
			category: "self_harm",
			pattern:  regexp.MustCompile(`(?i)\b(how\s+to|best\s+way\s+to|help\s+me)\b.{0,30}\b(kill\s+myself|commit\s+suicide|self[-\s]harm|hurt\s+myself)\b`),
		},
		{
			category: "hateful_content",
			pattern:  regexp.MustCompile(`(?i)\b(write|generate|compose)\b.{0,40}\b(racist|antisemitic|homophobic|hateful)\b.{0,30}\b(joke|rant|screed|manifesto|slur)\b`),
		},
		{
			category: "impersonation",
			pattern: regexp.MustCompile(`(?i)\b(impersonate|pretend\s+to\s+be|pose\s+as)\b.{0,40}\b(police|officer|doctor|lawyer|bank|government\s+official)\b.{0,40}\b(scam|fraud|deceive|trick)\b` +
				`|\b(phishing)\s+(email|page|site)\b`),
		},
	}
}

// Check runs the prompt against every rule and returns the first match as a
// blocking verdict. A clean prompt returns the zero verdict.
func (f *Filter) Check(text string) Verdict {
	for _, r := range f.rules {
		if r.pattern.MatchString(text) {
			return Verdict{
				Blocked:  true,
				Category: r.category,
				Message:  refusalMessage(r.category),
			}
		}
	}
	return Verdict{}
}

func refusalMessage(category string) string {
	return fmt.Sprintf("I can't help with that request (policy: %s). If you have a different question, I'm happy to help.", category)
}
