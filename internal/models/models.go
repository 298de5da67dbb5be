// Package models contains shared domain types.
package models

import "time"

// Frequency identifies the reporting cadence of a financial fact.
type Frequency string

const (
	FreqQuarterly Frequency = "Q"
	FreqAnnual    Frequency = "A"
)

// Quality flags attached to otherwise-successful responses.
// Clients are expected to render these; the service never drops them.
const (
	FlagPeriodMismatch = "PERIOD_MISMATCH"
	FlagOldData        = "OLD_DATA"
	FlagEmptyResults   = "EMPTY_RESULTS"
	FlagStaleCache     = "STALE_CACHE"
	FlagPartialContext = "PARTIAL_CONTEXT"
)

// User is an authenticated account. Passwords are stored only as a
// salted hash verifier.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// DailyQuota tracks token consumption for one user on one UTC day.
type DailyQuota struct {
	UserID         string `json:"user_id"`
	UTCDate        string `json:"utc_date"` // YYYY-MM-DD
	TokensConsumed int64  `json:"tokens_consumed"`
}

// Fact is a normalized financial observation with provenance.
type Fact struct {
	Ticker      string    `json:"ticker"`
	Concept     string    `json:"concept"`
	Value       float64   `json:"value"`
	Unit        string    `json:"unit"`
	PeriodLabel string    `json:"period_label"` // e.g. "2025-Q2" or "2024"
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`
	AccessionID string    `json:"accession_id"`
	Source      string    `json:"source"`
	Frequency   Frequency `json:"frequency"`
}

// DurationDays returns the period length in whole days.
func (f *Fact) DurationDays() int {
	return int(f.PeriodEnd.Sub(f.PeriodStart).Hours() / 24)
}

// SamePeriod reports whether two facts cover an identical date range.
func (f *Fact) SamePeriod(other *Fact) bool {
	return f.PeriodStart.Equal(other.PeriodStart) && f.PeriodEnd.Equal(other.PeriodEnd)
}

// Paper is a normalized academic-paper record.
type Paper struct {
	ID       string   `json:"paper_id"`
	Title    string   `json:"title"`
	Authors  []string `json:"authors"`
	Year     int      `json:"year"`
	Venue    string   `json:"venue,omitempty"`
	DOI      string   `json:"doi,omitempty"`
	Abstract string   `json:"abstract,omitempty"`
	Source   string   `json:"source"`
	Score    float64  `json:"-"` // source-supplied relevance, 0 when absent
}

// Valid reports whether the paper meets the minimum-metadata bar:
// a non-empty title and a known publication year.
func (p *Paper) Valid() bool {
	return p.Title != "" && p.Year != 0
}

// CalcResult is a resolved financial metric with its input provenance.
type CalcResult struct {
	Ticker       string           `json:"ticker"`
	Metric       string           `json:"metric"`
	Period       string           `json:"period"`
	Value        float64          `json:"value"`
	Unit         string           `json:"unit"`
	Inputs       map[string]*Fact `json:"inputs"`
	QualityFlags []string         `json:"quality_flags"`
}

// HasFlag reports whether the result carries the given quality flag.
func (r *CalcResult) HasFlag(flag string) bool {
	for _, f := range r.QualityFlags {
		if f == flag {
			return true
		}
	}
	return false
}

// Citation identifies an upstream record backing a statement.
type Citation struct {
	Kind        string `json:"kind"` // "paper" or "fact"
	ID          string `json:"id"`   // paper_id or accession_id
	Source      string `json:"source"`
	Title       string `json:"title,omitempty"`
	PeriodStart string `json:"period_start,omitempty"`
	PeriodEnd   string `json:"period_end,omitempty"`
}

// QueryResponse is the assembled answer returned by the query pipeline.
type QueryResponse struct {
	AnswerText    string     `json:"answer_text"`
	Citations     []Citation `json:"citations"`
	ToolsUsed     []string   `json:"tools_used"`
	QualityFlags  []string   `json:"quality_flags"`
	TokensCharged int64      `json:"tokens_charged"`
}

// Exchange is one prior turn of conversation supplied by the client.
type Exchange struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}
