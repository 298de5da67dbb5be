package handlers

import (
	"context"
	"testing"

	"github.com/veriscope/veriscope-api/internal/models"
)

type fakeQuotaReader struct {
	usage   *models.DailyQuota
	ceiling int64
}

func (f *fakeQuotaReader) Usage(_ context.Context, _ string) (*models.DailyQuota, error) {
	return f.usage, nil
}

func (f *fakeQuotaReader) Ceiling() int64 { return f.ceiling }

func TestGetUsage(t *testing.T) {
	h := NewUsageHandler(&fakeQuotaReader{
		usage:   &models.DailyQuota{UserID: "u1", UTCDate: "2026-08-24", TokensConsumed: 1200},
		ceiling: 25000,
	})

	out, err := h.GetUsage(authedCtx("u1"), nil)
	if err != nil {
		t.Fatalf("GetUsage: %v", err)
	}
	if out.Body.TokensConsumed != 1200 || out.Body.Remaining != 23800 {
		t.Errorf("body = %+v", out.Body)
	}
}

func TestGetUsageClampsOvershoot(t *testing.T) {
	// Recorded overshoot can push the ledger past the ceiling.
	h := NewUsageHandler(&fakeQuotaReader{
		usage:   &models.DailyQuota{UserID: "u1", UTCDate: "2026-08-24", TokensConsumed: 25040},
		ceiling: 25000,
	})

	out, err := h.GetUsage(authedCtx("u1"), nil)
	if err != nil {
		t.Fatalf("GetUsage: %v", err)
	}
	if out.Body.TokensConsumed != 25040 {
		t.Errorf("TokensConsumed = %d, overshoot must stay visible", out.Body.TokensConsumed)
	}
	if out.Body.Remaining != 0 {
		t.Errorf("Remaining = %d, want clamped to 0", out.Body.Remaining)
	}
}

func TestGetUsageRequiresAuth(t *testing.T) {
	h := NewUsageHandler(&fakeQuotaReader{})
	_, err := h.GetUsage(context.Background(), nil)
	wantStatus(t, err, 401)
}

func TestHealthCheck(t *testing.T) {
	out, err := HealthCheck(context.Background(), nil)
	if err != nil {
		t.Fatalf("HealthCheck: %v", err)
	}
	if out.Body.Status != "healthy" || out.Body.Version == "" {
		t.Errorf("body = %+v", out.Body)
	}
}

func TestLivez(t *testing.T) {
	out, err := Livez(context.Background(), nil)
	if err != nil {
		t.Fatalf("Livez: %v", err)
	}
	if out.Body.Status != "ok" {
		t.Errorf("status = %q", out.Body.Status)
	}
}
