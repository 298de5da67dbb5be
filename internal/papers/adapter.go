package papers

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/veriscope/veriscope-api/internal/models"
)

// Source is one scholarly index the adapter can query.
type Source interface {
	Name() string
	Search(ctx context.Context, query string, limit int) ([]*models.Paper, error)
	Get(ctx context.Context, id string) (*models.Paper, error)
}

// Adapter fans a search out to every configured source concurrently,
// drops records missing a title or year, deduplicates across sources,
// and returns one ranked list. One failing source degrades the result
// set instead of failing the search; all sources failing is an error.
type Adapter struct {
	sources []Source
	logger  *slog.Logger
}

// NewAdapter creates an adapter over the given sources, queried in the
// given preference order.
func NewAdapter(logger *slog.Logger, sources ...Source) *Adapter {
	return &Adapter{
		sources: sources,
		logger:  logger.With("component", "paper-adapter"),
	}
}

// Search queries all sources concurrently and merges the results.
// The second return value reports whether any source failed (the
// caller surfaces that as partial context).
func (a *Adapter) Search(ctx context.Context, query string, limit int) ([]*models.Paper, bool, error) {
	if len(a.sources) == 0 {
		return nil, false, fmt.Errorf("no paper sources configured")
	}

	var (
		mu       sync.Mutex
		bySource = make(map[string][]*models.Paper)
		failed   int
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, source := range a.sources {
		g.Go(func() error {
			papers, err := source.Search(gctx, query, limit)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed++
				a.logger.Warn("paper source failed", "source", source.Name(), "error", err)
				return nil // degrade, don't cancel the siblings
			}
			bySource[source.Name()] = papers
			return nil
		})
	}
	_ = g.Wait()

	if failed == len(a.sources) {
		return nil, true, fmt.Errorf("all %d paper sources failed", failed)
	}

	merged := a.merge(bySource, limit)
	return merged, failed > 0, nil
}

// GetByID routes a paper ID to the source that minted it.
func (a *Adapter) GetByID(ctx context.Context, id string) (*models.Paper, error) {
	prefix, _, ok := strings.Cut(id, ":")
	if !ok {
		return nil, fmt.Errorf("%w: malformed id %q", ErrNotFound, id)
	}
	for _, source := range a.sources {
		if sourceForPrefix(prefix) == source.Name() {
			return source.Get(ctx, id)
		}
	}
	return nil, fmt.Errorf("%w: no source for id %q", ErrNotFound, id)
}

func sourceForPrefix(prefix string) string {
	if prefix == "doi" {
		return "crossref"
	}
	return prefix
}

// merge validates, deduplicates, and ranks papers from all sources.
// Duplicates collapse on DOI when both sides have one, otherwise on
// (title, year, first-author surname); the copy with the richer
// metadata wins.
func (a *Adapter) merge(bySource map[string][]*models.Paper, limit int) []*models.Paper {
	seen := make(map[string]*models.Paper)
	order := make(map[string]int) // stable rank for insertion ties

	// Iterate sources in configured preference order so earlier sources
	// win insertion-order ties.
	for _, source := range a.sources {
		for _, p := range bySource[source.Name()] {
			if !p.Valid() {
				continue
			}
			key := dedupeKey(p)
			if existing, ok := seen[key]; ok {
				seen[key] = richer(existing, p)
				continue
			}
			seen[key] = p
			order[key] = len(order)
		}
	}

	merged := make([]*models.Paper, 0, len(seen))
	for _, p := range seen {
		merged = append(merged, p)
	}
	sort.Slice(merged, func(i, j int) bool {
		if merged[i].Score != merged[j].Score {
			return merged[i].Score > merged[j].Score
		}
		return order[dedupeKey(merged[i])] < order[dedupeKey(merged[j])]
	})

	if len(merged) > limit {
		merged = merged[:limit]
	}
	return merged
}

func dedupeKey(p *models.Paper) string {
	if p.DOI != "" {
		return "doi|" + p.DOI
	}
	first := ""
	if len(p.Authors) > 0 {
		parts := strings.Fields(p.Authors[0])
		first = strings.ToLower(parts[len(parts)-1])
	}
	return fmt.Sprintf("meta|%s|%d|%s", normalizeTitle(p.Title), p.Year, first)
}

func normalizeTitle(title string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(title) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == ' ' {
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// richer keeps the duplicate with more filled-in metadata.
func richer(a, b *models.Paper) *models.Paper {
	if metadataScore(b) > metadataScore(a) {
		return b
	}
	return a
}

func metadataScore(p *models.Paper) int {
	score := len(p.Authors)
	if p.Abstract != "" {
		score += 4
	}
	if p.Venue != "" {
		score += 2
	}
	if p.DOI != "" {
		score += 2
	}
	return score
}
