// Package search implements the web-search collaborator consumed by the
// augmentation stage: a query in, a ranked list of title/link/snippet
// results out. It scrapes the DuckDuckGo HTML endpoint, which needs no API
// key.
package search

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	xhtml "golang.org/x/net/html"
)

const (
	defaultEndpoint = "https://html.duckduckgo.com/html/"
	defaultTimeout  = 15 * time.Second
	maxResults      = 5
)

// Result is one ranked search hit.
type Result struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
}

// Searcher is the contract the augmentation stage consumes.
type Searcher interface {
	Search(ctx context.Context, query string) ([]Result, error)
}

// Client queries an HTML search endpoint.
type Client struct {
	httpClient *http.Client
	endpoint   string
}

var _ Searcher = (*Client)(nil)

// New builds a client. Empty endpoint selects the default; a nil client
// gets a bounded timeout.
func New(endpoint string, client *http.Client) *Client {
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{httpClient: client, endpoint: endpoint}
}

// Search fetches and parses results for query.
func (c *Client) Search(ctx context.Context, query string) ([]Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"?q="+url.QueryEscape(query), nil)
	if err != nil {
		return nil, fmt.Errorf("search: build request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; modelmux/1.0)")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search: endpoint returned HTTP %d", resp.StatusCode)
	}

	doc, err := xhtml.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("search: parse response: %w", err)
	}
	return extractResults(doc), nil
}

// extractResults walks the parsed document collecting the endpoint's result
// blocks: anchors classed result__a for titles and result__snippet nodes
// for summaries.
func extractResults(doc *xhtml.Node) []Result {
	var results []Result
	var current *Result

	var walk func(n *xhtml.Node)
	walk = func(n *xhtml.Node) {
		if len(results) >= maxResults && current == nil {
			return
		}
		if n.Type == xhtml.ElementNode {
			classes := attr(n, "class")
			switch {
			case n.Data == "a" && strings.Contains(classes, "result__a"):
				if current != nil && current.Title != "" {
					results = append(results, *current)
				}
				current = &Result{
					Title: strings.TrimSpace(textOf(n)),
					Link:  cleanLink(attr(n, "href")),
				}
			case strings.Contains(classes, "result__snippet"):
				if current != nil && current.Snippet == "" {
					current.Snippet = strings.TrimSpace(textOf(n))
				}
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)
	if current != nil && current.Title != "" && len(results) < maxResults {
		results = append(results, *current)
	}
	if len(results) > maxResults {
		results = results[:maxResults]
	}
	return results
}

func attr(n *xhtml.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

func textOf(n *xhtml.Node) string {
	var sb strings.Builder
	var walk func(*xhtml.Node)
	walk = func(node *xhtml.Node) {
		if node.Type == xhtml.TextNode {
			sb.WriteString(node.Data)
		}
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(n)
	return sb.String()
}

// cleanLink unwraps the endpoint's redirect URLs (//duckduckgo.com/l/?uddg=...)
// down to the target.
func cleanLink(href string) string {
	if href == "" {
		return ""
	}
	if strings.Contains(href, "uddg=") {
		if u, err := url.Parse(href); err == nil {
			if target := u.Query().Get("uddg"); target != "" {
				if decoded, err := url.QueryUnescape(target); err == nil {
					return decoded
				}
				return target
			}
		}
	}
	if strings.HasPrefix(href, "//") {
		return "https:" + href
	}
	return href
}
