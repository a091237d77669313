package guard

import (
	"sync"

	"github.com/tasknexus/decomp-engine/internal/domain"
)

// TimeBudget enforces a wall-clock spend limit across one verification batch.
type TimeBudget struct {
	// CapSeconds is the batch budget. A non-positive cap disables the budget.
	CapSeconds float64
	// WarnRatio is the fraction of budget at which a warning is issued (default 0.8).
	WarnRatio float64
	// HaltRatio is the fraction of budget at which execution is halted (default 1.0).
	HaltRatio float64

	mu   sync.Mutex
	used float64
}

// NewTimeBudget creates a budget with standard thresholds.
func NewTimeBudget(capSeconds float64) *TimeBudget {
	return &TimeBudget{
		CapSeconds: capSeconds,
		WarnRatio:  0.8,
		HaltRatio:  1.0,
	}
}

// Record adds spent seconds to the batch and returns the resulting action.
func (b *TimeBudget) Record(seconds float64) domain.BudgetAction {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.used += seconds
	return b.evaluate(b.used, b.CapSeconds)
}

// Check evaluates the current spend without modifying it.
func (b *TimeBudget) Check() domain.BudgetAction {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.evaluate(b.used, b.CapSeconds)
}

// Reset clears the spend for a new batch.
func (b *TimeBudget) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.used = 0
}

// UsedSeconds reports the spend recorded so far.
func (b *TimeBudget) UsedSeconds() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.used
}

func (b *TimeBudget) evaluate(used, cap float64) domain.BudgetAction {
	if cap <= 0 {
		return domain.BudgetContinue
	}
	ratio := used / cap
	if ratio >= b.HaltRatio {
		return domain.BudgetHalt
	}
	if ratio >= b.WarnRatio {
		return domain.BudgetWarn
	}
	return domain.BudgetContinue
}
