package papers

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/veriscope/veriscope-api/internal/models"
)

// fakeSource is a scripted Source for adapter tests.
type fakeSource struct {
	name   string
	papers []*models.Paper
	err    error
	byID   map[string]*models.Paper
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) Search(_ context.Context, _ string, _ int) ([]*models.Paper, error) {
	return f.papers, f.err
}

func (f *fakeSource) Get(_ context.Context, id string) (*models.Paper, error) {
	if p, ok := f.byID[id]; ok {
		return p, nil
	}
	return nil, ErrNotFound
}

func paper(source, id, title string, year int, doi string, score float64) *models.Paper {
	return &models.Paper{
		ID:      id,
		Title:   title,
		Authors: []string{"Jane Smith", "Wei Chen"},
		Year:    year,
		DOI:     doi,
		Score:   score,
		Source:  source,
	}
}

func TestAdapterMergesAndRanks(t *testing.T) {
	openalex := &fakeSource{name: "openalex", papers: []*models.Paper{
		paper("openalex", "openalex:W1", "Attention Is All You Need", 2017, "10.5555/3295222", 98.5),
		paper("openalex", "openalex:W2", "Deep Residual Learning", 2016, "10.1109/cvpr.2016.90", 42.0),
	}}
	crossref := &fakeSource{name: "crossref", papers: []*models.Paper{
		paper("crossref", "doi:10.5555/3295222", "Attention Is All You Need", 2017, "10.5555/3295222", 77.0),
		paper("crossref", "doi:10.1038/nature14539", "Deep Learning", 2015, "10.1038/nature14539", 88.0),
	}}
	adapter := NewAdapter(slog.Default(), openalex, crossref)

	papers, degraded, err := adapter.Search(context.Background(), "deep learning", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if degraded {
		t.Error("degraded = true with both sources healthy")
	}
	if len(papers) != 3 {
		t.Fatalf("papers = %d, want 3 after DOI dedupe", len(papers))
	}
	// Ranked by score: the duplicate keeps the first-seen copy's score.
	if papers[0].DOI != "10.5555/3295222" {
		t.Errorf("papers[0].DOI = %q, want the top-scored duplicate", papers[0].DOI)
	}
}

func TestAdapterDedupesByTitleYearAuthor(t *testing.T) {
	// Same paper, no DOI on either side, differing title case.
	a := &fakeSource{name: "openalex", papers: []*models.Paper{
		paper("openalex", "openalex:W9", "Scaling Laws for Neural Language Models", 2020, "", 10),
	}}
	b := &fakeSource{name: "crossref", papers: []*models.Paper{
		paper("crossref", "doi:none", "Scaling laws for neural language models", 2020, "", 9),
	}}
	adapter := NewAdapter(slog.Default(), a, b)

	papers, _, err := adapter.Search(context.Background(), "scaling laws", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(papers) != 1 {
		t.Errorf("papers = %d, want 1 after metadata dedupe", len(papers))
	}
}

func TestAdapterDropsInvalidRecords(t *testing.T) {
	source := &fakeSource{name: "openalex", papers: []*models.Paper{
		{ID: "openalex:W1", Title: "", Year: 2020, Source: "openalex"},  // no title
		{ID: "openalex:W2", Title: "Untitled Draft", Source: "openalex"}, // no year
		paper("openalex", "openalex:W3", "A Real Paper", 2021, "", 5),
	}}
	adapter := NewAdapter(slog.Default(), source)

	papers, _, err := adapter.Search(context.Background(), "q", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(papers) != 1 || papers[0].Title != "A Real Paper" {
		t.Errorf("papers = %+v, want only the valid record", papers)
	}
}

func TestAdapterDegradesOnOneSourceFailure(t *testing.T) {
	healthy := &fakeSource{name: "openalex", papers: []*models.Paper{
		paper("openalex", "openalex:W1", "A Paper", 2021, "", 5),
	}}
	broken := &fakeSource{name: "crossref", err: errors.New("upstream 500")}
	adapter := NewAdapter(slog.Default(), healthy, broken)

	papers, degraded, err := adapter.Search(context.Background(), "q", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if !degraded {
		t.Error("degraded = false with a failed source")
	}
	if len(papers) != 1 {
		t.Errorf("papers = %d, want the healthy source's results", len(papers))
	}
}

func TestAdapterAllSourcesFailed(t *testing.T) {
	adapter := NewAdapter(slog.Default(),
		&fakeSource{name: "openalex", err: errors.New("down")},
		&fakeSource{name: "crossref", err: errors.New("down")},
	)

	if _, _, err := adapter.Search(context.Background(), "q", 10); err == nil {
		t.Error("expected error when every source fails")
	}
}

func TestAdapterGetByID(t *testing.T) {
	want := paper("openalex", "openalex:W42", "Found It", 2022, "", 1)
	adapter := NewAdapter(slog.Default(),
		&fakeSource{name: "openalex", byID: map[string]*models.Paper{"openalex:W42": want}},
		&fakeSource{name: "crossref", byID: map[string]*models.Paper{}},
	)

	got, err := adapter.GetByID(context.Background(), "openalex:W42")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Title != "Found It" {
		t.Errorf("Title = %q", got.Title)
	}

	if _, err := adapter.GetByID(context.Background(), "doi:10.0/missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	if _, err := adapter.GetByID(context.Background(), "garbage"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound for malformed id", err)
	}
}

func TestDedupeKeyNormalization(t *testing.T) {
	a := &models.Paper{Title: "Deep Learning: A Survey!", Year: 2021, Authors: []string{"Ada Lovelace"}}
	b := &models.Paper{Title: "deep learning a survey", Year: 2021, Authors: []string{"A. Lovelace"}}
	if dedupeKey(a) != dedupeKey(b) {
		t.Errorf("keys differ: %q vs %q", dedupeKey(a), dedupeKey(b))
	}
}
