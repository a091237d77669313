// Package guard gates every external command the verification runner wants
// to execute: an allow/deny policy, a per-batch wall-clock budget, and a
// per-kind rate limit. Refusals are written to the journal's audit log.
package guard

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/tasknexus/decomp-engine/internal/domain"
	"github.com/tasknexus/decomp-engine/internal/journal"
)

// Config holds the guard's policy lists and limits.
type Config struct {
	AllowedCommands    []string
	DeniedPatterns     []string
	RateLimitPerMinute int
	BatchBudgetSec     float64
}

// Guard coordinates budget, policy, and rate checks.
type Guard struct {
	Policy    *CommandPolicy
	Budget    *TimeBudget
	Rate      *RateGate
	AuditRepo *journal.AuditRepo
	DB        *sql.DB
}

// NewGuard creates a Guard from the given config.
func NewGuard(db *sql.DB, cfg Config) *Guard {
	return &Guard{
		Policy:    NewCommandPolicy(cfg.AllowedCommands, cfg.DeniedPatterns),
		Budget:    NewTimeBudget(cfg.BatchBudgetSec),
		Rate:      NewRateGate(cfg.RateLimitPerMinute),
		AuditRepo: &journal.AuditRepo{},
		DB:        db,
	}
}

// CheckAll runs all checks in order: budget, policy, rate limit.
// It short-circuits on the first refusal, and every refusal is audited.
func (g *Guard) CheckAll(ctx context.Context, kind, command string) error {
	if g.Budget.Check() == domain.BudgetHalt {
		g.auditRefusal(ctx, "budget_halted", command, fmt.Sprintf("%.1fs spent of %.1fs budget", g.Budget.UsedSeconds(), g.Budget.CapSeconds))
		return domain.ErrBudgetExceeded
	}

	if err := g.Policy.Check(command); err != nil {
		g.auditRefusal(ctx, "command_denied", command, "refused by policy")
		return err
	}

	if err := g.Rate.Allow(kind); err != nil {
		g.auditRefusal(ctx, "rate_limited", command, "rate limit exceeded for kind: "+kind)
		return err
	}

	return nil
}

// RecordSpend folds one command's wall time into the batch budget and
// returns the resulting action so callers can warn before the halt.
func (g *Guard) RecordSpend(seconds float64) domain.BudgetAction {
	return g.Budget.Record(seconds)
}

// ResetBudget opens a fresh budget window for the next batch.
func (g *Guard) ResetBudget() {
	g.Budget.Reset()
}

func (g *Guard) auditRefusal(ctx context.Context, action, command, reason string) {
	now := time.Now()
	_ = g.AuditRepo.Record(ctx, g.DB, domain.AuditRecord{
		ID:            fmt.Sprintf("aud-guard-%d", now.UnixNano()),
		Category:      "guard",
		Action:        action,
		Detail:        fmt.Sprintf("command %q: %s", command, reason),
		Severity:      "warning",
		CreatedAtUnix: now.Unix(),
	})
}
