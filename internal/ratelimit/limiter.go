// Package ratelimit provides per-provider sliding-window call admission.
package ratelimit

import (
	"sync"
	"time"

	"github.com/bobmcallan/tapewatch/internal/interfaces"
)

// Limiter tracks call timestamps per provider over a sliding window, plus a
// daily diagnostic counter that resets at local midnight. Each provider has
// its own lock so providers do not serialize each other.
type Limiter struct {
	mu        sync.Mutex // guards the providers map only
	providers map[string]*providerState
	now       func() time.Time
}

type providerState struct {
	mu         sync.Mutex
	calls      []time.Time // ascending dispatch times within the window
	dailyCount int
	dailyReset time.Time
}

// NewLimiter creates an empty limiter.
func NewLimiter() *Limiter {
	return &Limiter{
		providers: make(map[string]*providerState),
		now:       time.Now,
	}
}

// state returns the provider entry, creating it on first use.
func (l *Limiter) state(provider string) *providerState {
	l.mu.Lock()
	defer l.mu.Unlock()

	st, ok := l.providers[provider]
	if !ok {
		st = &providerState{dailyReset: nextMidnight(l.now())}
		l.providers[provider] = st
	}
	return st
}

// CanCall reports whether another call to the provider fits within limit
// calls per window. Entries older than the window are evicted first. A
// provider with no recorded history always admits.
func (l *Limiter) CanCall(provider string, limit int, window time.Duration) bool {
	st := l.state(provider)

	st.mu.Lock()
	defer st.mu.Unlock()

	now := l.now()
	st.rollDaily(now)

	cutoff := now.Add(-window)
	i := 0
	for i < len(st.calls) && st.calls[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		st.calls = append(st.calls[:0], st.calls[i:]...)
	}

	return len(st.calls) < limit
}

// RecordCall counts a dispatched call against the provider.
func (l *Limiter) RecordCall(provider string) {
	st := l.state(provider)

	st.mu.Lock()
	defer st.mu.Unlock()

	now := l.now()
	st.rollDaily(now)
	st.calls = append(st.calls, now)
	st.dailyCount++
}

// DailyCount returns today's call count for the provider. Diagnostic only;
// admission control uses the sliding window.
func (l *Limiter) DailyCount(provider string) int {
	st := l.state(provider)

	st.mu.Lock()
	defer st.mu.Unlock()

	st.rollDaily(l.now())
	return st.dailyCount
}

// rollDaily resets the daily counter when local midnight has passed.
// Caller holds st.mu.
func (st *providerState) rollDaily(now time.Time) {
	if now.Before(st.dailyReset) {
		return
	}
	st.dailyCount = 0
	st.dailyReset = nextMidnight(now)
}

func nextMidnight(now time.Time) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, now.Location()).AddDate(0, 0, 1)
}

// Ensure Limiter implements the RateLimiter contract
var _ interfaces.RateLimiter = (*Limiter)(nil)
