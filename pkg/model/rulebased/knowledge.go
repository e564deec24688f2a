package rulebased

import "strings"

// knowledgeEntry is one topic the offline assistant can speak to. Keywords
// are matched against the lowercased prompt; the longest keyword match wins
// so "machine learning" beats "machine".
type knowledgeEntry struct {
	keywords []string
	answer   string
}

var knowledgeBase = []knowledgeEntry{
	{
		keywords: []string{"machine learning", "neural network", "deep learning"},
		answer:   "Machine learning is a way of building software that improves from data instead of hand-written rules. Models are trained on examples, then generalize to new inputs. Neural networks, the workhorse of deep learning, stack layers of simple functions whose weights are tuned by gradient descent.",
	},
	{
		keywords: []string{"large language model", "llm", "transformer model"},
		answer:   "Large language models are neural networks trained on huge text corpora to predict the next token. That simple objective turns out to capture grammar, facts, and some reasoning, which is why the same model can chat, summarize, and write code.",
	},
	{
		keywords: []string{"golang", "go programming", "go language"},
		answer:   "Go is a statically typed, compiled language from Google, designed for simple, readable concurrent programs. Goroutines and channels make concurrency cheap, and the single-binary toolchain keeps deployment simple.",
	},
	{
		keywords: []string{"python"},
		answer:   "Python is a dynamically typed, interpreted language known for readable syntax and a huge ecosystem. It dominates data science and scripting, and libraries like NumPy push the heavy lifting into native code.",
	},
	{
		keywords: []string{"http", "rest api"},
		answer:   "HTTP is the request/response protocol of the web: a client sends a method, path, and headers, and the server replies with a status code and body. REST APIs layer resource-oriented conventions on top of it.",
	},
	{
		keywords: []string{"docker", "container"},
		answer:   "Containers package an application with its dependencies into an isolated process that shares the host kernel. Docker popularized the image format and tooling; containers start in milliseconds, unlike full virtual machines.",
	},
	{
		keywords: []string{"kubernetes", "k8s"},
		answer:   "Kubernetes schedules containers across a cluster of machines. You declare the desired state - how many replicas, what image, what resources - and its controllers continuously reconcile reality toward it.",
	},
	{
		keywords: []string{"git ", "version control"},
		answer:   "Git is a distributed version control system: every clone holds the full history as a graph of commits. Branches are cheap pointers into that graph, which is why workflows built on frequent branching work so well.",
	},
	{
		keywords: []string{"database", "sql"},
		answer:   "A database stores structured data for reliable querying. Relational databases organize data in tables and speak SQL, trading some flexibility for strong consistency; document and key-value stores make the opposite trade.",
	},
	{
		keywords: []string{"encryption", "cryptography"},
		answer:   "Encryption scrambles data so only a key holder can read it. Symmetric schemes like AES use one shared key and are fast; asymmetric schemes like RSA use a public/private key pair and make key exchange and signatures possible.",
	},
	{
		keywords: []string{"weather"},
		answer:   "I can't check live weather while offline. Once a cloud model or the search integration is reachable again, ask me and I'll look it up.",
	},
	{
		keywords: []string{"meaning of life"},
		answer:   "42, if you trust Douglas Adams. Philosophers have spent rather longer on it: most answers come down to the meaning you build from relationships, work, and curiosity.",
	},
}

// lookupKnowledge scans the knowledge base and returns the entry whose
// matched keyword is longest.
func lookupKnowledge(lower string) (string, bool) {
	bestLen := 0
	var best string
	for _, entry := range knowledgeBase {
		for _, kw := range entry.keywords {
			if strings.Contains(lower, kw) && len(kw) > bestLen {
				bestLen = len(kw)
				best = entry.answer
			}
		}
	}
	return best, bestLen > 0
}
