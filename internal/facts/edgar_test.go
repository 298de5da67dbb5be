package facts

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

const companyConceptBody = `{
	"cik": 320193,
	"taxonomy": "us-gaap",
	"tag": "Revenues",
	"units": {
		"USD": [
			{"start": "2025-03-30", "end": "2025-06-28", "val": 94036000000,
			 "accn": "0000320193-25-000073", "fy": 2025, "fp": "Q3", "form": "10-Q"},
			{"start": "2023-10-01", "end": "2024-09-28", "val": 391035000000,
			 "accn": "0000320193-24-000123", "fy": 2024, "fp": "FY", "form": "10-K"}
		]
	}
}`

func TestEdgarCompanyConcept(t *testing.T) {
	var gotUA, gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotPath = r.URL.Path
		_, _ = w.Write([]byte(companyConceptBody))
	}))
	defer server.Close()

	client := NewEdgarClient("veriscope-test/1.0 (test@example.com)", 2, slog.Default())
	client.baseURL = server.URL

	obs, err := client.CompanyConcept(context.Background(), "0000320193", "Revenues")
	if err != nil {
		t.Fatalf("CompanyConcept: %v", err)
	}
	if len(obs) != 2 {
		t.Fatalf("observations = %d, want 2", len(obs))
	}
	if obs[0].Value != 94_036e6 || obs[0].Unit != "USD" {
		t.Errorf("obs[0] = %+v", obs[0])
	}
	if obs[0].AccessionID != "0000320193-25-000073" {
		t.Errorf("AccessionID = %q", obs[0].AccessionID)
	}
	if obs[1].FiscalPer != "FY" {
		t.Errorf("FiscalPer = %q, want FY", obs[1].FiscalPer)
	}
	if gotPath != "/api/xbrl/companyconcept/CIK0000320193/us-gaap/Revenues.json" {
		t.Errorf("path = %q", gotPath)
	}
	if gotUA != "veriscope-test/1.0 (test@example.com)" {
		t.Errorf("User-Agent = %q, SEC requires a descriptive one", gotUA)
	}
}

func TestEdgarNotFoundIsNoData(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewEdgarClient("ua", 2, slog.Default())
	client.baseURL = server.URL

	if _, err := client.CompanyConcept(context.Background(), "0000000001", "Revenues"); !errors.Is(err, ErrNoData) {
		t.Errorf("err = %v, want ErrNoData", err)
	}
}

func TestEdgarEmptyUnits(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"units": {}}`))
	}))
	defer server.Close()

	client := NewEdgarClient("ua", 2, slog.Default())
	client.baseURL = server.URL

	if _, err := client.CompanyConcept(context.Background(), "0000320193", "Revenues"); !errors.Is(err, ErrNoData) {
		t.Errorf("err = %v, want ErrNoData for empty units", err)
	}
}
