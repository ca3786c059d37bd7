// Package ratelimit provides per-tool token bucket rate limiting for MCP
// tools on top of golang.org/x/time/rate.
package ratelimit

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Rate is a token bucket configuration.
type Rate struct {
	PerSecond float64 // refill rate
	Burst     int     // bucket size, also the initial token count
}

// PerMinute returns a rate of n tokens per minute.
func PerMinute(n float64, burst int) Rate {
	return Rate{PerSecond: n / 60, Burst: burst}
}

// LimitError is returned when a tool has no tokens left.
type LimitError struct {
	Tool       string
	RetryAfter time.Duration // zero when the bucket never refills
}

func (e *LimitError) Error() string {
	if e.RetryAfter <= 0 {
		return fmt.Sprintf("rate limit exceeded for %s", e.Tool)
	}
	return fmt.Sprintf("rate limit exceeded for %s, retry in %s", e.Tool, e.RetryAfter.Round(time.Millisecond))
}

// Limiter holds one token bucket per tool. It is safe for concurrent use.
type Limiter struct {
	mu       sync.Mutex // serializes reserve and cancel
	limiters map[string]*rate.Limiter
	nowFunc  func() time.Time // injectable clock for testing
}

// New creates a limiter for the given tool rates. Tools without a rate
// are never limited.
func New(rates map[string]Rate) *Limiter {
	l := &Limiter{limiters: make(map[string]*rate.Limiter, len(rates)), nowFunc: time.Now}
	for tool, r := range rates {
		l.limiters[tool] = rate.NewLimiter(rate.Limit(r.PerSecond), r.Burst)
	}
	return l
}

// DefaultToolRates are generous enough for interactive agents. Loading the
// container from disk and writing render files cost the most.
func DefaultToolRates() map[string]Rate {
	return map[string]Rate{
		"scenario_info":    PerMinute(60, 10),
		"scene_frame":      PerMinute(120, 20),
		"resolve_identity": PerMinute(120, 20),
		"trajectory":       PerMinute(60, 10),
		"render_scenario":  PerMinute(20, 5),
		"reload":           PerMinute(6, 2),
	}
}

// Check takes a token for tool. A nil Limiter allows everything.
func (l *Limiter) Check(tool string) error {
	if l == nil {
		return nil
	}
	lim, ok := l.limiters[tool]
	if !ok {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.nowFunc()
	r := lim.ReserveN(now, 1)
	if !r.OK() {
		return &LimitError{Tool: tool}
	}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		if lim.Limit() == 0 {
			// A zero-rate bucket never refills.
			return &LimitError{Tool: tool}
		}
		return &LimitError{Tool: tool, RetryAfter: delay}
	}
	return nil
}
