// Package papers aggregates academic-paper search across scholarly
// indexes into one deduplicated, validated result set.
package papers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/veriscope/veriscope-api/internal/models"
)

// ErrNotFound is returned when a paper ID resolves to nothing.
var ErrNotFound = errors.New("paper not found")

const openAlexBaseURL = "https://api.openalex.org"

// OpenAlexClient queries the OpenAlex works index.
type OpenAlexClient struct {
	httpClient *http.Client
	baseURL    string
}

// NewOpenAlexClient creates an OpenAlex source.
func NewOpenAlexClient() *OpenAlexClient {
	return &OpenAlexClient{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		baseURL:    openAlexBaseURL,
	}
}

func (c *OpenAlexClient) Name() string { return "openalex" }

// Search runs a relevance-ranked works query. A 422 (the index rejects
// some query syntax) is retried once with the query stripped to bare
// terms.
func (c *OpenAlexClient) Search(ctx context.Context, query string, limit int) ([]*models.Paper, error) {
	body, status, err := c.get(ctx, c.searchURL(query, limit))
	if err != nil {
		return nil, err
	}
	if status == http.StatusUnprocessableEntity {
		body, status, err = c.get(ctx, c.searchURL(simplifyQuery(query), limit))
		if err != nil {
			return nil, err
		}
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("openalex status %d", status)
	}

	var papers []*models.Paper
	gjson.GetBytes(body, "results").ForEach(func(_, work gjson.Result) bool {
		papers = append(papers, parseOpenAlexWork(work))
		return true
	})
	return papers, nil
}

// Get fetches one work by its OpenAlex ID ("openalex:W2741809807").
func (c *OpenAlexClient) Get(ctx context.Context, id string) (*models.Paper, error) {
	workID := strings.TrimPrefix(id, "openalex:")
	body, status, err := c.get(ctx, fmt.Sprintf("%s/works/%s", c.baseURL, url.PathEscape(workID)))
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("openalex status %d for %s", status, id)
	}
	return parseOpenAlexWork(gjson.ParseBytes(body)), nil
}

func (c *OpenAlexClient) searchURL(query string, limit int) string {
	q := url.Values{}
	q.Set("search", query)
	q.Set("per-page", fmt.Sprintf("%d", limit))
	q.Set("sort", "relevance_score:desc")
	return c.baseURL + "/works?" + q.Encode()
}

func (c *OpenAlexClient) get(ctx context.Context, rawURL string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("openalex request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, 0, err
	}
	return body, resp.StatusCode, nil
}

func parseOpenAlexWork(work gjson.Result) *models.Paper {
	p := &models.Paper{
		ID:     "openalex:" + strings.TrimPrefix(work.Get("id").String(), "https://openalex.org/"),
		Title:  work.Get("title").String(),
		Year:   int(work.Get("publication_year").Int()),
		Venue:  work.Get("primary_location.source.display_name").String(),
		DOI:    normalizeDOI(work.Get("doi").String()),
		Score:  work.Get("relevance_score").Float(),
		Source: "openalex",
	}
	work.Get("authorships").ForEach(func(_, a gjson.Result) bool {
		if name := a.Get("author.display_name").String(); name != "" {
			p.Authors = append(p.Authors, name)
		}
		return true
	})
	p.Abstract = reconstructAbstract(work.Get("abstract_inverted_index"))
	return p
}

// reconstructAbstract rebuilds plain text from OpenAlex's inverted
// index ({"word": [positions...]}).
func reconstructAbstract(index gjson.Result) string {
	if !index.Exists() {
		return ""
	}
	type posWord struct {
		pos  int
		word string
	}
	var words []posWord
	index.ForEach(func(word, positions gjson.Result) bool {
		positions.ForEach(func(_, pos gjson.Result) bool {
			words = append(words, posWord{pos: int(pos.Int()), word: word.String()})
			return true
		})
		return true
	})
	sort.Slice(words, func(i, j int) bool { return words[i].pos < words[j].pos })

	parts := make([]string, len(words))
	for i, w := range words {
		parts[i] = w.word
	}
	return strings.Join(parts, " ")
}

// simplifyQuery strips operators and punctuation that trip up query
// parsers, leaving bare search terms.
func simplifyQuery(query string) string {
	var b strings.Builder
	for _, r := range query {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == ' ':
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// normalizeDOI lowercases and strips resolver prefixes so DOIs from
// different sources compare equal.
func normalizeDOI(doi string) string {
	doi = strings.TrimSpace(strings.ToLower(doi))
	for _, prefix := range []string{"https://doi.org/", "http://doi.org/", "doi:"} {
		doi = strings.TrimPrefix(doi, prefix)
	}
	return doi
}
