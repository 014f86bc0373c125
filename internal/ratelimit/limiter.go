// Package ratelimit provides per-key token bucket rate limiting for MCP tools.
package ratelimit

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter keeps one token bucket per key, each with the same rate and burst.
// It is safe for concurrent use.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*rate.Limiter
	rate    rate.Limit
	burst   int
	nowFunc func() time.Time // injectable clock for testing
}

// NewLimiter creates a rate limiter with the given rate (tokens/sec) and burst size.
// The burst size also serves as the initial number of tokens available.
func NewLimiter(perSecond float64, burst int) *Limiter {
	return &Limiter{
		buckets: make(map[string]*rate.Limiter),
		rate:    rate.Limit(perSecond),
		burst:   burst,
		nowFunc: time.Now,
	}
}

// Allow reports whether a request for key may proceed, consuming a token if so.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		b = rate.NewLimiter(l.rate, l.burst)
		l.buckets[key] = b
	}
	return b.AllowN(l.nowFunc(), 1)
}

// Burst returns the bucket size.
func (l *Limiter) Burst() int { return l.burst }

// Tool names with a configured limiter.
const (
	ToolSurveyRun           = "survey_run"
	ToolCoverageOrientation = "coverage_orientation"
	ToolSurveyHistory       = "survey_history"
)

// ToolLimiters maps tool names to their rate limiters.
type ToolLimiters map[string]*Limiter

// NewToolLimiters creates the per-tool limiters. survey_run, the only tool
// that runs a simulation, uses the given rate and burst; the read-only
// tools get a fixed, more generous budget.
func NewToolLimiters(perSecond float64, burst int) ToolLimiters {
	return ToolLimiters{
		ToolSurveyRun:           NewLimiter(perSecond, burst),
		ToolCoverageOrientation: NewLimiter(1.0, 10), // 60/minute, burst 10
		ToolSurveyHistory:       NewLimiter(1.0, 10), // 60/minute, burst 10
	}
}

// CheckLimit checks the rate limit for a given tool name.
// Returns nil if allowed, or an error if rate limited.
// Tools without a configured limiter are always allowed.
func CheckLimit(limiters ToolLimiters, toolName string) error {
	limiter, ok := limiters[toolName]
	if !ok {
		return nil
	}

	if !limiter.Allow(toolName) {
		return fmt.Errorf("rate limit exceeded for %s, please try again shortly", toolName)
	}

	return nil
}
