// Package quota tracks per-provider search call budgets with calendar resets.
package quota

import (
	"sync"
	"time"

	"github.com/uxforge/design-scout/internal/design"
)

// Limits defines the static budget for one provider. A zero limit means
// the dimension is unmetered.
type Limits struct {
	Daily   int
	Monthly int
}

// Remaining reports how many calls are left. A nil pointer means the
// dimension is unlimited.
type Remaining struct {
	Daily   *int
	Monthly *int
}

type providerState struct {
	limits       Limits
	dailyCalls   int
	monthlyCalls int
	dailyReset   time.Time
	monthlyReset time.Time
}

// Tracker counts calls per provider against static limits. It is safe
// for concurrent use; the orchestrator loop and the reset sweep may
// touch the same counters.
type Tracker struct {
	mu        sync.Mutex
	providers map[string]*providerState
	clock     design.Clock
}

// New builds a Tracker for the given provider limits.
func New(limits map[string]Limits, clock design.Clock) *Tracker {
	now := clock.Now().UTC()
	providers := make(map[string]*providerState, len(limits))
	for name, l := range limits {
		providers[name] = &providerState{
			limits:       l,
			dailyReset:   now,
			monthlyReset: now,
		}
	}
	return &Tracker{providers: providers, clock: clock}
}

// HasQuotaRemaining reports whether the provider can still be called.
// Unknown and unmetered providers are always available.
func (t *Tracker) HasQuotaRemaining(provider string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.providers[provider]
	if !ok {
		return true
	}
	if s.limits.Daily > 0 && s.dailyCalls >= s.limits.Daily {
		return false
	}
	if s.limits.Monthly > 0 && s.monthlyCalls >= s.limits.Monthly {
		return false
	}
	return true
}

// RecordCall increments both counters for the provider.
func (t *Tracker) RecordCall(provider string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.providers[provider]
	if !ok {
		return
	}
	s.dailyCalls++
	s.monthlyCalls++
}

// GetRemainingCalls returns the remaining daily and monthly budget.
// Nil means unlimited in that dimension.
func (t *Tracker) GetRemainingCalls(provider string) Remaining {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.providers[provider]
	if !ok {
		return Remaining{}
	}
	var out Remaining
	if s.limits.Daily > 0 {
		d := max(s.limits.Daily-s.dailyCalls, 0)
		out.Daily = &d
	}
	if s.limits.Monthly > 0 {
		m := max(s.limits.Monthly-s.monthlyCalls, 0)
		out.Monthly = &m
	}
	return out
}

// ResetExpiredQuotas zeroes counters whose reset marker belongs to a
// previous UTC calendar day or month. Callers must invoke this before
// every quota check so stale counters never block valid calls.
func (t *Tracker) ResetExpiredQuotas() {
	now := t.clock.Now().UTC()
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, s := range t.providers {
		if beforeDay(s.dailyReset, now) {
			s.dailyCalls = 0
			s.dailyReset = now
		}
		if beforeMonth(s.monthlyReset, now) {
			s.monthlyCalls = 0
			s.monthlyReset = now
		}
	}
}

func beforeDay(marker, now time.Time) bool {
	my, mm, md := marker.UTC().Date()
	ny, nm, nd := now.Date()
	if my != ny {
		return my < ny
	}
	if mm != nm {
		return mm < nm
	}
	return md < nd
}

func beforeMonth(marker, now time.Time) bool {
	my, mm, _ := marker.UTC().Date()
	ny, nm, _ := now.Date()
	if my != ny {
		return my < ny
	}
	return mm < nm
}
