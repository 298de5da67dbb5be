package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/veriscope/veriscope-api/internal/config"
	"github.com/veriscope/veriscope-api/internal/facts"
	"github.com/veriscope/veriscope-api/internal/llm"
	"github.com/veriscope/veriscope-api/internal/models"
	"github.com/veriscope/veriscope-api/internal/websearch"
)

// Pipeline fakes.

type fakeFinance struct {
	result *models.CalcResult
	err    error
}

func (f *fakeFinance) Compute(_ context.Context, _, _, _ string) (*models.CalcResult, error) {
	return f.result, f.err
}

func (f *fakeFinance) Quote(_ context.Context, _ string) (*facts.Quote, error) {
	return nil, errors.New("no quotes in tests")
}

type fakePapers struct {
	papers   []*models.Paper
	degraded bool
	err      error
}

func (f *fakePapers) Search(_ context.Context, _ string, _ int) ([]*models.Paper, bool, error) {
	return f.papers, f.degraded, f.err
}

type fakeWeb struct {
	results []websearch.Result
	err     error
}

func (f *fakeWeb) Search(_ context.Context, _ string, _ int) ([]websearch.Result, error) {
	return f.results, f.err
}

type fakeRouter struct {
	result     *llm.RouteResult
	err        error
	lastPrompt string
	calls      int
}

func (f *fakeRouter) Complete(_ context.Context, prompt string, _ llm.CallOptions) (*llm.RouteResult, error) {
	f.calls++
	f.lastPrompt = prompt
	return f.result, f.err
}

type queryFixture struct {
	svc    *QueryService
	quota  *QuotaService
	router *fakeRouter
}

func newQueryFixture(t *testing.T, finance *fakeFinance, papers *fakePapers, web *fakeWeb, router *fakeRouter) *queryFixture {
	t.Helper()
	cfg := &config.Config{
		DailyCeiling: 25000,
		FanoutBudget: 5 * time.Second,
	}
	quota := NewQuotaService(cfg, newMemQuotaRepo(), slog.Default())
	svc := NewQueryService(cfg, quota, finance, papers, web, router, facts.NewSymbolMap(), nil, slog.Default())
	return &queryFixture{svc: svc, quota: quota, router: router}
}

func revenueResult() *models.CalcResult {
	fact := &models.Fact{
		Ticker: "AAPL", Concept: "revenue", Value: 94e9, Unit: "USD",
		PeriodLabel: "2025-Q2",
		PeriodStart: time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:   time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC),
		AccessionID: "0000320193-25-000073", Source: "sec-edgar",
		Frequency: models.FreqQuarterly,
	}
	return &models.CalcResult{
		Ticker: "AAPL", Metric: "revenue", Period: "2025-Q2",
		Value: 94e9, Unit: "USD",
		Inputs: map[string]*models.Fact{"revenue": fact},
	}
}

func TestQueryGroundedFinanceAnswer(t *testing.T) {
	router := &fakeRouter{result: &llm.RouteResult{
		Content:      "Apple reported $94B revenue in the June quarter [0000320193-25-000073].",
		PromptTokens: 900, CompletionTokens: 80, Provider: "cerebras",
	}}
	fx := newQueryFixture(t, &fakeFinance{result: revenueResult()}, &fakePapers{}, &fakeWeb{}, router)

	resp, err := fx.svc.Query(context.Background(), "u1", "What was $AAPL revenue in 2025-Q2?", nil)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(resp.Citations) != 1 || resp.Citations[0].ID != "0000320193-25-000073" {
		t.Errorf("Citations = %+v, want the cited accession", resp.Citations)
	}
	if resp.TokensCharged != 980 {
		t.Errorf("TokensCharged = %d, want provider-reported 980", resp.TokensCharged)
	}
	if len(resp.ToolsUsed) != 1 || resp.ToolsUsed[0] != ToolFinance {
		t.Errorf("ToolsUsed = %v", resp.ToolsUsed)
	}
	if !strings.Contains(router.lastPrompt, "0000320193-25-000073") {
		t.Error("prompt does not carry the fact's citation id")
	}

	// The ledger records provider-reported usage.
	usage, _ := fx.quota.Usage(context.Background(), "u1")
	if usage.TokensConsumed != 980 {
		t.Errorf("ledger = %d, want 980", usage.TokensConsumed)
	}
}

func TestQueryDropsUncitedCandidates(t *testing.T) {
	router := &fakeRouter{result: &llm.RouteResult{
		Content:      "The answer does not reference any retrieved record.",
		PromptTokens: 500, CompletionTokens: 50, Provider: "groq",
	}}
	fx := newQueryFixture(t, &fakeFinance{result: revenueResult()}, &fakePapers{}, &fakeWeb{}, router)

	resp, err := fx.svc.Query(context.Background(), "u1", "AAPL revenue in 2025-Q2", nil)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(resp.Citations) != 0 {
		t.Errorf("Citations = %+v, want none when the answer cites nothing", resp.Citations)
	}
}

func TestQueryQuotaExceededBlocksBeforeLLM(t *testing.T) {
	router := &fakeRouter{result: &llm.RouteResult{Content: "ok", Provider: "cerebras"}}
	fx := newQueryFixture(t, &fakeFinance{err: errors.New("unused")}, &fakePapers{}, &fakeWeb{}, router)

	// Exhaust the day first.
	fx.quota.Record(context.Background(), "u1", 25000)

	_, err := fx.svc.Query(context.Background(), "u1", "What is the capital of France?", nil)
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("err = %v, want ErrQuotaExceeded", err)
	}
	if router.calls != 0 {
		t.Error("no LLM call should happen once the day is full")
	}
	usage, _ := fx.quota.Usage(context.Background(), "u1")
	if usage.TokensConsumed != 25000 {
		t.Errorf("ledger = %d, refused request must not charge", usage.TokensConsumed)
	}
}

func TestQueryNearCeilingServesAndRecordsOvershoot(t *testing.T) {
	router := &fakeRouter{result: &llm.RouteResult{
		Content:      "Short answer [0000320193-25-000073].",
		PromptTokens: 30, CompletionTokens: 20, Provider: "cerebras",
	}}
	fx := newQueryFixture(t, &fakeFinance{result: revenueResult()}, &fakePapers{}, &fakeWeb{}, router)

	// 10 tokens of headroom: the precheck admits the request and the
	// 50-token response lands the day at 25040.
	fx.quota.Record(context.Background(), "u1", 24990)

	resp, err := fx.svc.Query(context.Background(), "u1", "AAPL revenue 2025-Q2", nil)
	if err != nil {
		t.Fatalf("Query with headroom remaining: %v", err)
	}
	if resp.TokensCharged != 50 {
		t.Errorf("TokensCharged = %d, want 50", resp.TokensCharged)
	}
	usage, _ := fx.quota.Usage(context.Background(), "u1")
	if usage.TokensConsumed != 25040 {
		t.Errorf("ledger = %d, want 25040", usage.TokensConsumed)
	}

	// The next request finds the day closed.
	if _, err := fx.svc.Query(context.Background(), "u1", "and Q3?", nil); !errors.Is(err, ErrQuotaExceeded) {
		t.Errorf("err = %v, want ErrQuotaExceeded after overshoot", err)
	}
}

func TestQueryLLMFailureDoesNotCharge(t *testing.T) {
	router := &fakeRouter{err: llm.ErrNoCapacity}
	fx := newQueryFixture(t, &fakeFinance{result: revenueResult()}, &fakePapers{}, &fakeWeb{}, router)

	_, err := fx.svc.Query(context.Background(), "u1", "AAPL revenue 2025-Q2", nil)
	if !errors.Is(err, llm.ErrNoCapacity) {
		t.Fatalf("err = %v, want ErrNoCapacity", err)
	}
	usage, _ := fx.quota.Usage(context.Background(), "u1")
	if usage.TokensConsumed != 0 {
		t.Errorf("ledger = %d, failed request must not charge", usage.TokensConsumed)
	}
}

func TestQueryEmptyFanoutFlagsAndDirects(t *testing.T) {
	router := &fakeRouter{result: &llm.RouteResult{
		Content: "I could not find relevant data.", PromptTokens: 300, CompletionTokens: 30, Provider: "cerebras",
	}}
	// Web search is the only intent and it returns nothing.
	fx := newQueryFixture(t, &fakeFinance{}, &fakePapers{}, &fakeWeb{results: nil}, router)

	resp, err := fx.svc.Query(context.Background(), "u1", "something utterly obscure", nil)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if !hasQueryFlag(resp.QualityFlags, models.FlagEmptyResults) {
		t.Errorf("flags = %v, want EMPTY_RESULTS", resp.QualityFlags)
	}
	if !strings.Contains(router.lastPrompt, "No supporting material was retrieved") {
		t.Error("prompt should direct the model to admit missing data")
	}
}

func TestQueryPartialContextFlag(t *testing.T) {
	router := &fakeRouter{result: &llm.RouteResult{
		Content: "Partial answer [openalex:W1].", PromptTokens: 400, CompletionTokens: 40, Provider: "cerebras",
	}}
	papers := &fakePapers{papers: []*models.Paper{{
		ID: "openalex:W1", Title: "A Study", Year: 2023, Source: "openalex",
	}}, degraded: true}
	fx := newQueryFixture(t, &fakeFinance{}, papers, &fakeWeb{}, router)

	resp, err := fx.svc.Query(context.Background(), "u1", "papers on distributed consensus", nil)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if !hasQueryFlag(resp.QualityFlags, models.FlagPartialContext) {
		t.Errorf("flags = %v, want PARTIAL_CONTEXT when a source degraded", resp.QualityFlags)
	}
	if len(resp.Citations) != 1 || resp.Citations[0].Kind != "paper" {
		t.Errorf("Citations = %+v", resp.Citations)
	}
}

func TestQueryMarksEmptySlotNextToPopulatedOne(t *testing.T) {
	router := &fakeRouter{result: &llm.RouteResult{
		Content:      "Revenue was $94B [0000320193-25-000073]; no supporting papers were found.",
		PromptTokens: 800, CompletionTokens: 60, Provider: "cerebras",
	}}
	// Finance resolves, the paper search runs cleanly and finds nothing.
	fx := newQueryFixture(t, &fakeFinance{result: revenueResult()}, &fakePapers{}, &fakeWeb{}, router)

	resp, err := fx.svc.Query(context.Background(), "u1", "What papers support $AAPL revenue growth in 2025-Q2?", nil)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if !hasQueryFlag(resp.QualityFlags, models.FlagEmptyResults) {
		t.Errorf("flags = %v, want EMPTY_RESULTS for the empty papers slot", resp.QualityFlags)
	}
	if hasQueryFlag(resp.QualityFlags, models.FlagPartialContext) {
		t.Errorf("flags = %v, an empty slot is not a failed one", resp.QualityFlags)
	}
	if !strings.Contains(router.lastPrompt, "No results were found by the papers tool") {
		t.Error("prompt should forbid fabricating entries for the empty slot")
	}
	if !strings.Contains(router.lastPrompt, "0000320193-25-000073") {
		t.Error("prompt should still carry the populated finance section")
	}
}

func TestQueryHistoryWindowKeepsLastTurns(t *testing.T) {
	router := &fakeRouter{result: &llm.RouteResult{
		Content: "ok", PromptTokens: 100, CompletionTokens: 10, Provider: "groq",
	}}
	web := &fakeWeb{results: []websearch.Result{{Title: "t", URL: "https://example.com", Snippet: "s"}}}
	fx := newQueryFixture(t, &fakeFinance{}, &fakePapers{}, web, router)

	history := []models.Exchange{
		{Role: "user", Content: "turn-one"},
		{Role: "assistant", Content: "turn-two"},
		{Role: "user", Content: "turn-three"},
		{Role: "assistant", Content: "turn-four"},
		{Role: "user", Content: "turn-five"},
	}
	if _, err := fx.svc.Query(context.Background(), "u1", "anything else about that?", history); err != nil {
		t.Fatalf("Query: %v", err)
	}
	for _, dropped := range []string{"turn-one", "turn-two"} {
		if strings.Contains(router.lastPrompt, dropped) {
			t.Errorf("prompt carries %q, turns outside the window should be dropped", dropped)
		}
	}
	for _, kept := range []string{"turn-three", "turn-four", "turn-five"} {
		if !strings.Contains(router.lastPrompt, kept) {
			t.Errorf("prompt missing recent turn %q", kept)
		}
	}
}

func TestQueryRejectsBlankQuestion(t *testing.T) {
	fx := newQueryFixture(t, &fakeFinance{}, &fakePapers{}, &fakeWeb{}, &fakeRouter{})
	if _, err := fx.svc.Query(context.Background(), "u1", "   ", nil); !errors.Is(err, ErrEmptyQuestion) {
		t.Errorf("err = %v, want ErrEmptyQuestion", err)
	}
}

func hasQueryFlag(flags []string, want string) bool {
	for _, f := range flags {
		if f == want {
			return true
		}
	}
	return false
}
