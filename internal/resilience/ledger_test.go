package resilience

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAttemptLedger_ConsumeUntilExhausted(t *testing.T) {
	t.Parallel()

	l := NewAttemptLedger(2)
	assert.True(t, l.Consume("Alice Smith"))
	assert.True(t, l.Consume("alice smith "))
	assert.False(t, l.Consume("ALICE SMITH"))
	assert.Equal(t, 2, l.Used("alice smith"))
	assert.True(t, l.Exhausted("Alice Smith"))

	assert.False(t, l.Exhausted("Bob Jones"))
}

func TestAttemptLedger_Reset(t *testing.T) {
	t.Parallel()

	l := NewAttemptLedger(1)
	assert.True(t, l.Consume("a"))
	assert.False(t, l.Consume("a"))
	l.Reset()
	assert.Equal(t, 0, l.Used("a"))
	assert.True(t, l.Consume("a"))
}

func TestAttemptLedger_Budget(t *testing.T) {
	t.Parallel()

	l := NewAttemptLedger(1)
	b := l.Budget("carol")
	assert.True(t, b.Acquire())
	assert.False(t, b.Acquire())
	// A fresh budget for the same key shares the allowance.
	assert.False(t, l.Budget("Carol").Acquire())
}

func TestAttemptLedger_Concurrent(t *testing.T) {
	t.Parallel()

	l := NewAttemptLedger(2)
	var wg sync.WaitGroup
	var mu sync.Mutex
	granted := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Consume("same") {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 2, granted)
}
