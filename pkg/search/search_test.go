package search

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

const resultsPage = `<html><body>
<div class="result">
  <a class="result__a" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fgo.dev%2Fdoc%2F&rut=abc">Go Documentation</a>
  <a class="result__snippet" href="#">The Go programming language documentation.</a>
</div>
<div class="result">
  <a class="result__a" href="https://en.wikipedia.org/wiki/Go_(programming_language)">Go (programming language) - Wikipedia</a>
  <div class="result__snippet">Go is a statically typed language.</div>
</div>
</body></html>`

func TestSearchParsesResults(t *testing.T) {
	var query string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.Query().Get("q")
		w.Write([]byte(resultsPage))
	}))
	defer srv.Close()

	c := New(srv.URL, srv.Client())
	results, err := c.Search(context.Background(), "golang docs")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if query != "golang docs" {
		t.Fatalf("query not forwarded: %q", query)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d: %+v", len(results), results)
	}
	if results[0].Title != "Go Documentation" {
		t.Fatalf("title = %q", results[0].Title)
	}
	if results[0].Link != "https://go.dev/doc/" {
		t.Fatalf("redirect link not unwrapped: %q", results[0].Link)
	}
	if results[0].Snippet == "" || results[1].Snippet == "" {
		t.Fatalf("snippets missing: %+v", results)
	}
	if results[1].Link != "https://en.wikipedia.org/wiki/Go_(programming_language)" {
		t.Fatalf("direct link mangled: %q", results[1].Link)
	}
}

func TestSearchEmptyQueryIsNoop(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	c := New(srv.URL, srv.Client())
	results, err := c.Search(context.Background(), "   ")
	if err != nil || results != nil {
		t.Fatalf("empty query: results=%v err=%v", results, err)
	}
	if called {
		t.Fatal("empty query should not hit the endpoint")
	}
}

func TestSearchRejectsNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "blocked", http.StatusForbidden)
	}))
	defer srv.Close()

	c := New(srv.URL, srv.Client())
	if _, err := c.Search(context.Background(), "golang"); err == nil {
		t.Fatal("expected error for non-200 response")
	}
}

func TestCleanLink(t *testing.T) {
	cases := map[string]string{
		"https://example.com/page":                                   "https://example.com/page",
		"//duckduckgo.com/l/?uddg=https%3A%2F%2Fexample.com%2Fa%20b": "https://example.com/a b",
		"//html.duckduckgo.com/html":                                 "https://html.duckduckgo.com/html",
		"":                                                           "",
	}
	for in, want := range cases {
		if got := cleanLink(in); got != want {
			t.Fatalf("cleanLink(%q) = %q, want %q", in, got, want)
		}
	}
}
