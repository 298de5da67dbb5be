package papers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/veriscope/veriscope-api/internal/models"
)

const crossrefBaseURL = "https://api.crossref.org"

// CrossrefClient queries the Crossref works index.
type CrossrefClient struct {
	httpClient *http.Client
	baseURL    string
	mailto     string // polite-pool identification
}

// NewCrossrefClient creates a Crossref source. mailto joins Crossref's
// polite pool, which gets better rate limits.
func NewCrossrefClient(mailto string) *CrossrefClient {
	return &CrossrefClient{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		baseURL:    crossrefBaseURL,
		mailto:     mailto,
	}
}

func (c *CrossrefClient) Name() string { return "crossref" }

// Search runs a bibliographic query. Crossref rejects some query
// strings with 422; those are retried once with bare terms.
func (c *CrossrefClient) Search(ctx context.Context, query string, limit int) ([]*models.Paper, error) {
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
		return nil, fmt.Errorf("crossref status %d", status)
	}

	var papers []*models.Paper
	gjson.GetBytes(body, "message.items").ForEach(func(_, item gjson.Result) bool {
		papers = append(papers, parseCrossrefItem(item))
		return true
	})
	return papers, nil
}

// Get fetches one work by DOI ("doi:10.1038/nature14539").
func (c *CrossrefClient) Get(ctx context.Context, id string) (*models.Paper, error) {
	doi := normalizeDOI(strings.TrimPrefix(id, "doi:"))
	body, status, err := c.get(ctx, fmt.Sprintf("%s/works/%s", c.baseURL, url.PathEscape(doi)))
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("crossref status %d for %s", status, id)
	}
	return parseCrossrefItem(gjson.GetBytes(body, "message")), nil
}

func (c *CrossrefClient) searchURL(query string, limit int) string {
	q := url.Values{}
	q.Set("query.bibliographic", query)
	q.Set("rows", fmt.Sprintf("%d", limit))
	if c.mailto != "" {
		q.Set("mailto", c.mailto)
	}
	return c.baseURL + "/works?" + q.Encode()
}

func (c *CrossrefClient) get(ctx context.Context, rawURL string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("crossref request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, 0, err
	}
	return body, resp.StatusCode, nil
}

func parseCrossrefItem(item gjson.Result) *models.Paper {
	doi := normalizeDOI(item.Get("DOI").String())
	p := &models.Paper{
		ID:       "doi:" + doi,
		Title:    item.Get("title.0").String(),
		Year:     int(item.Get("issued.date-parts.0.0").Int()),
		Venue:    item.Get("container-title.0").String(),
		DOI:      doi,
		Abstract: stripJATS(item.Get("abstract").String()),
		Score:    item.Get("score").Float(),
		Source:   "crossref",
	}
	item.Get("author").ForEach(func(_, a gjson.Result) bool {
		given, family := a.Get("given").String(), a.Get("family").String()
		switch {
		case given != "" && family != "":
			p.Authors = append(p.Authors, given+" "+family)
		case family != "":
			p.Authors = append(p.Authors, family)
		}
		return true
	})
	return p
}

// stripJATS removes the XML markup Crossref embeds in abstracts.
func stripJATS(s string) string {
	var b strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
