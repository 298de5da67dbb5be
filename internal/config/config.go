// Package config handles application configuration.
package config

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ProviderKeyConfig describes one LLM credential with its daily request limit.
type ProviderKeyConfig struct {
	Key        string
	DailyLimit int
}

// Config holds all application configuration.
type Config struct {
	// Server settings
	Port    int
	BaseURL string

	// Database
	DatabaseURL string

	// Authentication
	TokenSecret           string
	TokenExpiry           time.Duration // bearer token lifetime (default 30 days)
	AutoRegisterOnUnknown bool          // login with unknown email registers transparently

	// Quota
	DailyCeiling int64 // max tokens per user per UTC day

	// LLM routing
	ProviderPriority []string                       // ordered provider names
	ProviderKeys     map[string][]ProviderKeyConfig // provider -> keys
	LLMTimeout       time.Duration                  // T_llm
	LLMCooldown      time.Duration                  // T_cool
	LLMMaxAttempts   int
	LLMConcurrency   int64 // concurrent calls per provider

	// Facts
	FactCacheTTL   time.Duration
	QuarterMinDays int
	QuarterMaxDays int
	AnnualMinDays  int
	AnnualMaxDays  int
	SECUserAgent   string // SEC requires a descriptive User-Agent
	SECConcurrency int64
	QuoteBaseURL   string

	// Papers
	PaperSources []string
	ContactEmail string // polite-pool identification for scholarly APIs

	// Web search
	WebSearchURL string

	// Pipeline timing
	FanoutBudget   time.Duration // T_fanout
	UpstreamWait   time.Duration // T_wait before BUSY
	RequestTimeout time.Duration // end-to-end deadline

	// CORS
	CORSOrigins []string

	// Maintenance
	SweepInterval  time.Duration // worker sweep cadence
	QuotaRetention time.Duration // how long to keep old daily_quota rows
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnvInt("PORT", 8080),
		BaseURL:     getEnv("BASE_URL", "http://localhost:8080"),
		DatabaseURL: getEnv("DATABASE_URL", "file:veriscope.db?_journal=WAL&_timeout=5000"),

		TokenSecret:           getEnv("TOKEN_SECRET", ""),
		TokenExpiry:           getEnvDuration("TOKEN_EXPIRY", 30*24*time.Hour),
		AutoRegisterOnUnknown: getEnvBool("AUTO_REGISTER_ON_UNKNOWN", false),

		DailyCeiling: int64(getEnvInt("DAILY_CEILING", 25000)),

		ProviderPriority: getEnvSlice("LLM_PROVIDER_PRIORITY", []string{"cerebras", "groq", "cloudflare"}),
		LLMTimeout:       getEnvDuration("T_LLM", 30*time.Second),
		LLMCooldown:      getEnvDuration("T_COOL", 60*time.Second),
		LLMMaxAttempts:   getEnvInt("MAX_ATTEMPTS", 5),
		LLMConcurrency:   int64(getEnvInt("LLM_CONCURRENCY", 4)),

		FactCacheTTL:   getEnvDuration("FACT_CACHE_TTL", 24*time.Hour),
		SECUserAgent:   getEnv("SEC_USER_AGENT", "veriscope-api/1.0 (ops@veriscope.dev)"),
		SECConcurrency: int64(getEnvInt("SEC_CONCURRENCY", 8)),
		QuoteBaseURL:   getEnv("QUOTE_BASE_URL", "https://query1.finance.yahoo.com"),

		PaperSources: getEnvSlice("PAPER_SOURCES", []string{"openalex", "crossref"}),
		ContactEmail: getEnv("CONTACT_EMAIL", "ops@veriscope.dev"),
		WebSearchURL: getEnv("WEB_SEARCH_URL", "https://api.duckduckgo.com"),

		FanoutBudget:   getEnvDuration("T_FANOUT", 20*time.Second),
		UpstreamWait:   getEnvDuration("T_WAIT", 5*time.Second),
		RequestTimeout: getEnvDuration("REQUEST_TIMEOUT", 60*time.Second),

		CORSOrigins: getEnvSlice("CORS_ORIGINS", []string{"http://localhost:3000"}),

		SweepInterval:  getEnvDuration("SWEEP_INTERVAL", 10*time.Minute),
		QuotaRetention: getEnvDuration("QUOTA_RETENTION", 90*24*time.Hour),
	}

	if err := cfg.loadDurationBands(); err != nil {
		return nil, err
	}
	cfg.loadProviderKeys()

	if cfg.TokenSecret == "" {
		// Tokens become unverifiable across restarts without a stable secret;
		// a generated one keeps dev setups working.
		cfg.TokenSecret = generateRandomSecret(64)
	}

	if cfg.DailyCeiling <= 0 {
		return nil, fmt.Errorf("DAILY_CEILING must be positive, got %d", cfg.DailyCeiling)
	}
	if cfg.LLMMaxAttempts <= 0 {
		return nil, fmt.Errorf("MAX_ATTEMPTS must be positive, got %d", cfg.LLMMaxAttempts)
	}

	return cfg, nil
}

// loadDurationBands parses DURATION_BAND_Q / DURATION_BAND_A ("min,max" days).
func (c *Config) loadDurationBands() error {
	var err error
	c.QuarterMinDays, c.QuarterMaxDays, err = parseBand(getEnv("DURATION_BAND_Q", "60,120"))
	if err != nil {
		return fmt.Errorf("DURATION_BAND_Q: %w", err)
	}
	c.AnnualMinDays, c.AnnualMaxDays, err = parseBand(getEnv("DURATION_BAND_A", "300,400"))
	if err != nil {
		return fmt.Errorf("DURATION_BAND_A: %w", err)
	}
	return nil
}

// loadProviderKeys reads LLM_KEYS_<PROVIDER> env vars.
// Format: comma-separated "key:daily_limit" entries, limit optional (default 1000).
// Example: LLM_KEYS_GROQ="gsk_abc:14400,gsk_def:14400"
func (c *Config) loadProviderKeys() {
	c.ProviderKeys = make(map[string][]ProviderKeyConfig)
	for _, provider := range c.ProviderPriority {
		envKey := "LLM_KEYS_" + strings.ToUpper(provider)
		raw := os.Getenv(envKey)
		if raw == "" {
			continue
		}
		var keys []ProviderKeyConfig
		for _, entry := range strings.Split(raw, ",") {
			entry = strings.TrimSpace(entry)
			if entry == "" {
				continue
			}
			kc := ProviderKeyConfig{Key: entry, DailyLimit: 1000}
			if idx := strings.LastIndex(entry, ":"); idx > 0 {
				if limit, err := strconv.Atoi(entry[idx+1:]); err == nil && limit > 0 {
					kc.Key = entry[:idx]
					kc.DailyLimit = limit
				}
			}
			keys = append(keys, kc)
		}
		if len(keys) > 0 {
			c.ProviderKeys[provider] = keys
		}
	}
}

func parseBand(s string) (min, max int, err error) {
	parts := strings.SplitN(s, ",", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("expected \"min,max\", got %q", s)
	}
	min, err = strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid min %q", parts[0])
	}
	max, err = strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid max %q", parts[1])
	}
	if min <= 0 || max < min {
		return 0, 0, fmt.Errorf("invalid band [%d,%d]", min, max)
	}
	return min, max, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		lower := strings.ToLower(value)
		return lower == "true" || lower == "1" || lower == "yes"
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return defaultValue
}

func generateRandomSecret(length int) string {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		panic("config: failed to read random bytes: " + err.Error())
	}
	return base64.URLEncoding.EncodeToString(bytes)
}
