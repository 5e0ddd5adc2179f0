package resilience

import (
	"strings"
	"sync"
)

// AttemptLedger counts retries per key across batches. Once a key has used
// its allowance it gets no further retries until Reset.
type AttemptLedger struct {
	mu     sync.Mutex
	max    int
	counts map[string]int
}

// NewAttemptLedger allows maxRetries retries per key.
func NewAttemptLedger(maxRetries int) *AttemptLedger {
	if maxRetries < 0 {
		maxRetries = DefaultMaxRetries
	}
	return &AttemptLedger{max: maxRetries, counts: make(map[string]int)}
}

// Consume records one retry for key and reports whether it was allowed.
func (l *AttemptLedger) Consume(key string) bool {
	key = normalizeKey(key)
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.counts[key] >= l.max {
		return false
	}
	l.counts[key]++
	return true
}

// Used returns the retries recorded for key.
func (l *AttemptLedger) Used(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.counts[normalizeKey(key)]
}

// Exhausted reports whether key has no retries left.
func (l *AttemptLedger) Exhausted(key string) bool {
	return l.Used(key) >= l.max
}

// Reset forgets every key.
func (l *AttemptLedger) Reset() {
	l.mu.Lock()
	l.counts = make(map[string]int)
	l.mu.Unlock()
}

// Budget returns a Budget drawing on key's allowance.
func (l *AttemptLedger) Budget(key string) Budget {
	return ledgerBudget{l: l, key: key}
}

type ledgerBudget struct {
	l   *AttemptLedger
	key string
}

func (b ledgerBudget) Acquire() bool { return b.l.Consume(b.key) }

func normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}
