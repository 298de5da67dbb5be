package llm

import (
	"sync"
	"time"

	"github.com/veriscope/veriscope-api/internal/config"
)

// Key is one provider credential with its per-day accounting.
// All counter access goes through the key's mutex; the UTC-day rollover
// check happens under the same lock so a key is never double-reset.
type Key struct {
	mu sync.Mutex

	material   string
	dailyLimit int

	requestsToday  int
	lastResetDate  string // UTC date of the counter
	ineligibleDate string // UTC date for which the key is benched (429/auth)
	cooldownUntil  time.Time
}

// Material returns the credential string.
func (k *Key) Material() string { return k.material }

// rolloverLocked resets the day counter when the UTC date has changed.
// Caller must hold k.mu.
func (k *Key) rolloverLocked(now time.Time) {
	today := utcDate(now)
	if k.lastResetDate != today {
		k.requestsToday = 0
		k.lastResetDate = today
	}
}

// Eligible reports whether the key can serve a request right now.
func (k *Key) Eligible(now time.Time) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.rolloverLocked(now)
	if k.ineligibleDate == utcDate(now) {
		return false
	}
	if now.Before(k.cooldownUntil) {
		return false
	}
	return k.requestsToday < k.dailyLimit
}

// MarkUsed records one successful request against the daily limit.
func (k *Key) MarkUsed(now time.Time) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.rolloverLocked(now)
	k.requestsToday++
}

// MarkExhausted benches the key for the rest of the UTC day without
// touching its request counter (the rejected request did not count).
func (k *Key) MarkExhausted(now time.Time) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.ineligibleDate = utcDate(now)
}

// StartCooldown benches the key until now+d.
func (k *Key) StartCooldown(now time.Time, d time.Duration) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.cooldownUntil = now.Add(d)
}

// RequestsToday returns the current day counter.
func (k *Key) RequestsToday(now time.Time) int {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.rolloverLocked(now)
	return k.requestsToday
}

// KeyStore owns all provider credentials. The router borrows a key for
// one outbound call; it never retains one across calls.
type KeyStore struct {
	mu        sync.Mutex
	providers map[string][]*Key
	next      map[string]int // round-robin cursor per provider
}

// NewKeyStore builds a key store from configuration.
func NewKeyStore(keys map[string][]config.ProviderKeyConfig) *KeyStore {
	s := &KeyStore{
		providers: make(map[string][]*Key),
		next:      make(map[string]int),
	}
	for provider, configs := range keys {
		for _, kc := range configs {
			s.providers[provider] = append(s.providers[provider], &Key{
				material:   kc.Key,
				dailyLimit: kc.DailyLimit,
			})
		}
	}
	return s
}

// HasEligible reports whether the provider has at least one usable key.
func (s *KeyStore) HasEligible(provider string, now time.Time) bool {
	s.mu.Lock()
	keys := s.providers[provider]
	s.mu.Unlock()
	for _, k := range keys {
		if k.Eligible(now) {
			return true
		}
	}
	return false
}

// NextEligible returns the next eligible key of the provider in
// deterministic round-robin order, starting after the last key that
// served a successful request. Returns nil when every key is benched.
func (s *KeyStore) NextEligible(provider string, now time.Time) *Key {
	s.mu.Lock()
	keys := s.providers[provider]
	start := s.next[provider]
	s.mu.Unlock()

	n := len(keys)
	for i := 0; i < n; i++ {
		k := keys[(start+i)%n]
		if k.Eligible(now) {
			return k
		}
	}
	return nil
}

// MarkSuccess advances the round-robin cursor past the key that just
// served a request, so the next call starts from its successor.
func (s *KeyStore) MarkSuccess(provider string, key *Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, k := range s.providers[provider] {
		if k == key {
			s.next[provider] = (i + 1) % len(s.providers[provider])
			return
		}
	}
}

// Keys returns the provider's keys. Intended for tests and diagnostics.
func (s *KeyStore) Keys(provider string) []*Key {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.providers[provider]
}

func utcDate(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
