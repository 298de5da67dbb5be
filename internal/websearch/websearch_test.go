package websearch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

const instantAnswerBody = `{
	"Heading": "Palantir Technologies",
	"AbstractText": "Palantir Technologies Inc. is an American software company.",
	"AbstractURL": "https://en.wikipedia.org/wiki/Palantir_Technologies",
	"RelatedTopics": [
		{"Text": "Alex Karp - CEO of Palantir Technologies.", "FirstURL": "https://en.wikipedia.org/wiki/Alex_Karp"},
		{"Topics": [
			{"Text": "Gotham - A Palantir platform.", "FirstURL": "https://example.com/gotham"}
		]},
		{"Text": "", "FirstURL": "https://example.com/empty"}
	]
}`

func TestSearchParsesAbstractAndTopics(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("q"); got != "palantir" {
			t.Errorf("q = %q", got)
		}
		if got := r.URL.Query().Get("format"); got != "json" {
			t.Errorf("format = %q", got)
		}
		_, _ = w.Write([]byte(instantAnswerBody))
	}))
	defer server.Close()

	client := NewClient(server.URL)
	results, err := client.Search(context.Background(), "palantir", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("results = %d, want 3 (abstract + 2 topics, empty one dropped)", len(results))
	}
	if results[0].Title != "Palantir Technologies" {
		t.Errorf("results[0].Title = %q", results[0].Title)
	}
	if results[1].Title != "Alex Karp" {
		t.Errorf("results[1].Title = %q, want title cut before separator", results[1].Title)
	}
	if results[2].URL != "https://example.com/gotham" {
		t.Errorf("results[2].URL = %q, nested topic group not flattened", results[2].URL)
	}
}

func TestSearchHonorsLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(instantAnswerBody))
	}))
	defer server.Close()

	client := NewClient(server.URL)
	results, err := client.Search(context.Background(), "palantir", 1)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("results = %d, want 1", len(results))
	}
}

func TestSearchEmptyIsNotError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"Heading": "", "AbstractText": "", "RelatedTopics": []}`))
	}))
	defer server.Close()

	client := NewClient(server.URL)
	results, err := client.Search(context.Background(), "xzzqy", 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("results = %d, want 0", len(results))
	}
}
