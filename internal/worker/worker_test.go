package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/veriscope/veriscope-api/internal/models"
)

type fakeSweeper struct {
	mu     sync.Mutex
	sweeps int
}

func (f *fakeSweeper) Sweep() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sweeps++
	return 2
}

func (f *fakeSweeper) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sweeps
}

type fakeQuotaRepo struct {
	mu      sync.Mutex
	cutoffs []string
}

func (f *fakeQuotaRepo) Get(_ context.Context, _, _ string) (*models.DailyQuota, error) {
	return nil, nil
}

func (f *fakeQuotaRepo) Add(_ context.Context, _, _ string, _ int64) error { return nil }

func (f *fakeQuotaRepo) DeleteBefore(_ context.Context, utcDate string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cutoffs = append(f.cutoffs, utcDate)
	return 1, nil
}

func TestNewDefaults(t *testing.T) {
	w := New(&fakeSweeper{}, &fakeQuotaRepo{}, Config{}, nil)

	if w.interval != 10*time.Minute {
		t.Errorf("interval = %v, want 10m default", w.interval)
	}
	if w.retention != 90*24*time.Hour {
		t.Errorf("retention = %v, want 90d default", w.retention)
	}
	if w.logger == nil {
		t.Error("logger should fall back to default")
	}
}

func TestSweepEvictsAndPrunes(t *testing.T) {
	sweeper := &fakeSweeper{}
	repo := &fakeQuotaRepo{}
	w := New(sweeper, repo, Config{QuotaRetention: 48 * time.Hour}, nil)

	w.sweep(context.Background())

	if sweeper.count() != 1 {
		t.Errorf("sweeps = %d, want 1", sweeper.count())
	}
	repo.mu.Lock()
	defer repo.mu.Unlock()
	if len(repo.cutoffs) != 1 {
		t.Fatalf("cutoffs = %v", repo.cutoffs)
	}
	want := time.Now().UTC().Add(-48 * time.Hour).Format("2006-01-02")
	if repo.cutoffs[0] != want {
		t.Errorf("cutoff = %q, want %q", repo.cutoffs[0], want)
	}
}

func TestStartStopRunsOnTicker(t *testing.T) {
	sweeper := &fakeSweeper{}
	w := New(sweeper, &fakeQuotaRepo{}, Config{SweepInterval: 10 * time.Millisecond}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w.Start(ctx)
	time.Sleep(60 * time.Millisecond)
	w.Stop()

	if sweeper.count() == 0 {
		t.Error("expected at least one sweep while running")
	}
}
