// Package token implements TokenBudget: per-session input/output token
// tracking with reservations for not-yet-consumed planned work, and a
// one-shot 80% warning.
package token

import "sync"

// PerAgent tracks one agent's input/output token totals.
type PerAgent struct {
	Input  int64
	Output int64
}

// Budget tracks token usage for one session. All methods are safe for
// concurrent use by the scheduler's worker pool.
type Budget struct {
	mu sync.Mutex

	actualInput  int64
	actualOutput int64
	reserved     int64
	costUSD      float64
	warned80     bool
	maxBudget    int64

	perAgent map[string]*PerAgent
}

// New returns a Budget with the given maximum effective budget.
func New(maxBudget int64) *Budget {
	return &Budget{
		maxBudget: maxBudget,
		perAgent:  make(map[string]*PerAgent),
	}
}

// Reserve adds n tokens to the reservation. Reservations model planned
// but not-yet-consumed work so the scheduler can budget-check before
// dispatch rather than after the fact.
func (b *Budget) Reserve(n int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reserved += n
}

// Release removes n tokens from the reservation, floored at zero. It is
// called once a task completes and its actual usage is recorded via Add.
func (b *Budget) Release(n int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reserved -= n
	if b.reserved < 0 {
		b.reserved = 0
	}
}

// Add records actual usage for an agent's turn.
func (b *Budget) Add(agentName string, inputTokens, outputTokens int64, costUSD float64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.actualInput += inputTokens
	b.actualOutput += outputTokens
	b.costUSD += costUSD

	pa, ok := b.perAgent[agentName]
	if !ok {
		pa = &PerAgent{}
		b.perAgent[agentName] = pa
	}
	pa.Input += inputTokens
	pa.Output += outputTokens
}

// Effective returns actual + reserved, the figure scheduling decisions
// are based on.
func (b *Budget) Effective() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.actualInput + b.actualOutput + b.reserved
}

// ExceedsMax reports whether the effective budget is at or past maxBudget.
func (b *Budget) ExceedsMax() bool {
	return b.Effective() >= b.maxBudget
}

// WarnThresholdCrossed reports whether the effective budget has just
// crossed warnPercent of maxBudget for the first time, and marks the
// warning as fired so it is never reported twice.
func (b *Budget) WarnThresholdCrossed(warnPercent int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.warned80 {
		return false
	}
	effective := b.actualInput + b.actualOutput + b.reserved
	threshold := b.maxBudget * int64(warnPercent) / 100
	if effective >= threshold {
		b.warned80 = true
		return true
	}
	return false
}

// Snapshot is an immutable view of the budget for event emission.
type Snapshot struct {
	ActualInput  int64
	ActualOutput int64
	Reserved     int64
	Effective    int64
	CostUSD      float64
	MaxBudget    int64
	PerAgent     map[string]PerAgent
}

// Snapshot returns the current state of the budget.
func (b *Budget) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	perAgent := make(map[string]PerAgent, len(b.perAgent))
	for k, v := range b.perAgent {
		perAgent[k] = *v
	}

	return Snapshot{
		ActualInput:  b.actualInput,
		ActualOutput: b.actualOutput,
		Reserved:     b.reserved,
		Effective:    b.actualInput + b.actualOutput + b.reserved,
		CostUSD:      b.costUSD,
		MaxBudget:    b.maxBudget,
		PerAgent:     perAgent,
	}
}
