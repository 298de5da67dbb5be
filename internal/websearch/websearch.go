// Package websearch provides general web lookups for queries outside
// the structured finance and paper domains.
package websearch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// ErrNoResults is returned when the engine finds nothing at all.
var ErrNoResults = errors.New("no search results")

// Result is one web search hit.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// Client queries the DuckDuckGo instant-answer API. Responses are
// abstracts plus related topics rather than a full SERP, which is
// enough for grounding context.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient creates a web search client against the given base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    baseURL,
	}
}

// Search returns up to limit results for the query. An empty result
// set is not an error here; callers flag it instead.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	q := url.Values{}
	q.Set("q", query)
	q.Set("format", "json")
	q.Set("no_html", "1")
	q.Set("skip_disambig", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("web search request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("web search status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, err
	}
	return parseResults(body, limit), nil
}

func parseResults(body []byte, limit int) []Result {
	var results []Result

	root := gjson.ParseBytes(body)
	if abstract := root.Get("AbstractText").String(); abstract != "" {
		results = append(results, Result{
			Title:   root.Get("Heading").String(),
			URL:     root.Get("AbstractURL").String(),
			Snippet: abstract,
		})
	}

	root.Get("RelatedTopics").ForEach(func(_, topic gjson.Result) bool {
		if len(results) >= limit {
			return false
		}
		// Category groups nest their topics one level down.
		if sub := topic.Get("Topics"); sub.Exists() {
			sub.ForEach(func(_, t gjson.Result) bool {
				if len(results) >= limit {
					return false
				}
				if r, ok := topicResult(t); ok {
					results = append(results, r)
				}
				return true
			})
			return true
		}
		if r, ok := topicResult(topic); ok {
			results = append(results, r)
		}
		return true
	})

	if len(results) > limit {
		results = results[:limit]
	}
	return results
}

func topicResult(topic gjson.Result) (Result, bool) {
	text := topic.Get("Text").String()
	firstURL := topic.Get("FirstURL").String()
	if text == "" || firstURL == "" {
		return Result{}, false
	}
	// Topic text runs the title and snippet together; the title is the
	// leading segment before the first separator.
	title := text
	if head, _, ok := strings.Cut(text, " - "); ok {
		title = head
	}
	return Result{Title: title, URL: firstURL, Snippet: text}, true
}
