package guard

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/tasknexus/decomp-engine/internal/domain"
)

// RateGate enforces a per-kind command rate limit. Each kind (test, build,
// smoke) gets its own token bucket so a burst of one kind cannot starve
// the others.
type RateGate struct {
	perMinute int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewRateGate creates a gate allowing perMinute commands per kind.
// A non-positive limit disables the gate.
func NewRateGate(perMinute int) *RateGate {
	return &RateGate{
		perMinute: perMinute,
		limiters:  make(map[string]*rate.Limiter),
	}
}

// Allow consumes one token for the kind. Returns ErrRateLimitExceeded when
// the kind's bucket is empty.
func (g *RateGate) Allow(kind string) error {
	if g.perMinute <= 0 {
		return nil
	}

	g.mu.Lock()
	limiter, ok := g.limiters[kind]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(g.perMinute)), g.perMinute)
		g.limiters[kind] = limiter
	}
	g.mu.Unlock()

	if !limiter.Allow() {
		return domain.ErrRateLimitExceeded
	}
	return nil
}
