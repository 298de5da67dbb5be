package papers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

const openAlexSearchBody = `{
	"results": [{
		"id": "https://openalex.org/W2741809807",
		"title": "Attention Is All You Need",
		"publication_year": 2017,
		"doi": "https://doi.org/10.5555/3295222.3295349",
		"relevance_score": 812.4,
		"primary_location": {"source": {"display_name": "NeurIPS"}},
		"authorships": [
			{"author": {"display_name": "Ashish Vaswani"}},
			{"author": {"display_name": "Noam Shazeer"}}
		],
		"abstract_inverted_index": {"dominant": [2], "The": [0], "sequence": [3], "models": [4], "are": [1]}
	}]
}`

func TestOpenAlexSearch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("search"); got != "attention transformers" {
			t.Errorf("search = %q", got)
		}
		_, _ = w.Write([]byte(openAlexSearchBody))
	}))
	defer server.Close()

	client := NewOpenAlexClient()
	client.baseURL = server.URL

	papers, err := client.Search(context.Background(), "attention transformers", 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(papers) != 1 {
		t.Fatalf("papers = %d, want 1", len(papers))
	}
	p := papers[0]
	if p.ID != "openalex:W2741809807" {
		t.Errorf("ID = %q", p.ID)
	}
	if p.DOI != "10.5555/3295222.3295349" {
		t.Errorf("DOI = %q, want resolver prefix stripped", p.DOI)
	}
	if p.Venue != "NeurIPS" {
		t.Errorf("Venue = %q", p.Venue)
	}
	if len(p.Authors) != 2 || p.Authors[0] != "Ashish Vaswani" {
		t.Errorf("Authors = %v", p.Authors)
	}
	if p.Abstract != "The are dominant sequence models" {
		t.Errorf("Abstract = %q, inverted index not reconstructed in order", p.Abstract)
	}
}

func TestOpenAlexRetriesOn422(t *testing.T) {
	var queries []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		queries = append(queries, r.URL.Query().Get("search"))
		if len(queries) == 1 {
			w.WriteHeader(http.StatusUnprocessableEntity)
			return
		}
		_, _ = w.Write([]byte(`{"results": []}`))
	}))
	defer server.Close()

	client := NewOpenAlexClient()
	client.baseURL = server.URL

	if _, err := client.Search(context.Background(), `"operator:heavy" AND (query)`, 5); err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(queries) != 2 {
		t.Fatalf("requests = %d, want retry after 422", len(queries))
	}
	if queries[1] != "operator heavy AND query" {
		t.Errorf("retry query = %q, want operators stripped", queries[1])
	}
}

const crossrefSearchBody = `{
	"message": {
		"items": [{
			"DOI": "10.1038/nature14539",
			"title": ["Deep learning"],
			"container-title": ["Nature"],
			"issued": {"date-parts": [[2015, 5]]},
			"score": 104.7,
			"abstract": "<jats:p>Deep learning allows computational models.</jats:p>",
			"author": [
				{"given": "Yann", "family": "LeCun"},
				{"given": "Yoshua", "family": "Bengio"},
				{"given": "Geoffrey", "family": "Hinton"}
			]
		}]
	}
}`

func TestCrossrefSearch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("mailto"); got != "ops@veriscope.dev" {
			t.Errorf("mailto = %q, want polite-pool identification", got)
		}
		_, _ = w.Write([]byte(crossrefSearchBody))
	}))
	defer server.Close()

	client := NewCrossrefClient("ops@veriscope.dev")
	client.baseURL = server.URL

	papers, err := client.Search(context.Background(), "deep learning", 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(papers) != 1 {
		t.Fatalf("papers = %d, want 1", len(papers))
	}
	p := papers[0]
	if p.ID != "doi:10.1038/nature14539" {
		t.Errorf("ID = %q", p.ID)
	}
	if p.Year != 2015 {
		t.Errorf("Year = %d", p.Year)
	}
	if len(p.Authors) != 3 || p.Authors[0] != "Yann LeCun" {
		t.Errorf("Authors = %v", p.Authors)
	}
	if p.Abstract != "Deep learning allows computational models." {
		t.Errorf("Abstract = %q, JATS markup not stripped", p.Abstract)
	}
}

func TestCrossrefGetByDOI(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/works/10.1038%2Fnature14539" && r.URL.Path != "/works/10.1038/nature14539" {
			t.Errorf("path = %q", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"message": {"DOI": "10.1038/nature14539", "title": ["Deep learning"], "issued": {"date-parts": [[2015]]}}}`))
	}))
	defer server.Close()

	client := NewCrossrefClient("")
	client.baseURL = server.URL

	p, err := client.Get(context.Background(), "doi:10.1038/nature14539")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if p.Title != "Deep learning" {
		t.Errorf("Title = %q", p.Title)
	}
}
