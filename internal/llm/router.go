package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/veriscope/veriscope-api/internal/config"
)

// completer is the outbound-call seam; satisfied by *Client and by test fakes.
type completer interface {
	Complete(ctx context.Context, spec ProviderSpec, apiKey, prompt string, opts CallOptions) (*Result, error)
}

// RouteResult is a successful completion with its routing attribution.
type RouteResult struct {
	Content          string
	PromptTokens     int
	CompletionTokens int
	Provider         string
}

// TokensUsed is the provider-reported total charged to the caller.
func (r *RouteResult) TokensUsed() int64 {
	return int64(r.PromptTokens + r.CompletionTokens)
}

// Router selects a provider and key for each outbound LLM call,
// failing over across keys and providers per the routing policy:
// first priority provider with an eligible key, round-robin within the
// provider, 429/auth benches a key for the day, timeout/5xx cools it
// down, and two unavailable strikes exclude the provider for the
// remainder of the request.
type Router struct {
	store       *KeyStore
	client      completer
	priority    []string
	timeout     time.Duration
	cooldown    time.Duration
	maxAttempts int
	acquireWait time.Duration
	sems        map[string]*semaphore.Weighted
	logger      *slog.Logger
	now         func() time.Time
}

// NewRouter creates an LLM router over the given key store.
func NewRouter(cfg *config.Config, store *KeyStore, client completer, logger *slog.Logger) *Router {
	sems := make(map[string]*semaphore.Weighted, len(cfg.ProviderPriority))
	for _, p := range cfg.ProviderPriority {
		sems[p] = semaphore.NewWeighted(cfg.LLMConcurrency)
	}
	return &Router{
		store:       store,
		client:      client,
		priority:    cfg.ProviderPriority,
		timeout:     cfg.LLMTimeout,
		cooldown:    cfg.LLMCooldown,
		maxAttempts: cfg.LLMMaxAttempts,
		acquireWait: cfg.UpstreamWait,
		sems:        sems,
		logger:      logger.With("component", "llm-router"),
		now:         time.Now,
	}
}

// Complete routes one chat request through the provider chain.
// Returns ErrNoCapacity when no provider has an eligible key and
// ErrCallFailed when the attempt budget is exhausted.
func (r *Router) Complete(ctx context.Context, prompt string, opts CallOptions) (*RouteResult, error) {
	if opts.Timeout == 0 {
		opts.Timeout = r.timeout
	}

	attempts := 0
	excluded := make(map[string]bool)

	for attempts < r.maxAttempts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		provider := r.pickProvider(excluded)
		if provider == "" {
			return nil, ErrNoCapacity
		}
		spec, ok := LookupProvider(provider)
		if !ok {
			excluded[provider] = true
			continue
		}

		strikes := 0
		for attempts < r.maxAttempts {
			key := r.store.NextEligible(provider, r.now())
			if key == nil {
				excluded[provider] = true
				break
			}
			attempts++

			res, err := r.callWithKey(ctx, spec, key, prompt, opts)
			if err == nil {
				key.MarkUsed(r.now())
				r.store.MarkSuccess(provider, key)
				return &RouteResult{
					Content:          res.Content,
					PromptTokens:     res.PromptTokens,
					CompletionTokens: res.CompletionTokens,
					Provider:         provider,
				}, nil
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}

			switch Classify(err) {
			case FailureRateLimited, FailureAuth:
				// Benched for the rest of the UTC day; counter untouched.
				key.MarkExhausted(r.now())
				r.logger.Warn("key benched for the day", "provider", provider, "error", err)
			case FailureUnavailable:
				key.StartCooldown(r.now(), r.cooldown)
				strikes++
				r.logger.Warn("key cooling down",
					"provider", provider,
					"strikes", strikes,
					"cooldown", r.cooldown.String(),
					"error", err,
				)
				if strikes >= 2 {
					excluded[provider] = true
				}
			default:
				return nil, fmt.Errorf("%w: %v", ErrCallFailed, err)
			}
			if excluded[provider] {
				break
			}
		}
	}

	return nil, fmt.Errorf("%w: attempt budget (%d) exhausted", ErrCallFailed, r.maxAttempts)
}

// pickProvider returns the first priority provider that is not excluded
// and has at least one eligible key.
func (r *Router) pickProvider(excluded map[string]bool) string {
	for _, p := range r.priority {
		if excluded[p] {
			continue
		}
		if r.store.HasEligible(p, r.now()) {
			return p
		}
	}
	return ""
}

// callWithKey performs one bounded outbound call under the provider's
// concurrency ceiling.
func (r *Router) callWithKey(ctx context.Context, spec ProviderSpec, key *Key, prompt string, opts CallOptions) (*Result, error) {
	if sem := r.sems[spec.Name]; sem != nil {
		acquireCtx, cancel := context.WithTimeout(ctx, r.acquireWait)
		err := sem.Acquire(acquireCtx, 1)
		cancel()
		if err != nil {
			return nil, &CallError{Kind: FailureUnavailable, Err: fmt.Errorf("provider %s busy: %w", spec.Name, err)}
		}
		defer sem.Release(1)
	}
	return r.client.Complete(ctx, spec, key.Material(), prompt, opts)
}
