// ABOUTME: Process-wide provider health table with a Healthy/Degraded/Unavailable state machine
// ABOUTME: Consecutive failures inside a sliding window trip a provider into an exponential cooldown

package generation

import (
	"sort"
	"sync"
	"time"
)

// Health is the observed state of a provider.
type Health string

const (
	Healthy     Health = "healthy"
	Degraded    Health = "degraded"
	Unavailable Health = "unavailable"
)

// HealthPolicy configures when a provider trips and for how long.
type HealthPolicy struct {
	// Window bounds how far apart consecutive failures may be and still count.
	Window time.Duration
	// Threshold is the number of consecutive failures that trips the provider.
	Threshold int
	// Cooldown is the first trip's unavailability period. It doubles per trip.
	Cooldown    time.Duration
	MaxCooldown time.Duration
}

// DefaultHealthPolicy trips after three failures in five minutes.
func DefaultHealthPolicy() HealthPolicy {
	return HealthPolicy{
		Window:      5 * time.Minute,
		Threshold:   3,
		Cooldown:    30 * time.Second,
		MaxCooldown: 10 * time.Minute,
	}
}

// ProviderHealth is a point-in-time view of one provider.
type ProviderHealth struct {
	Name             string    `json:"name"`
	State            Health    `json:"state"`
	ConsecutiveFails int       `json:"consecutive_failures"`
	Trips            int       `json:"trips"`
	UnavailableUntil time.Time `json:"unavailable_until,omitzero"`
	Successes        int64     `json:"successes"`
	Failures         int64     `json:"failures"`
	LastError        string    `json:"last_error,omitempty"`
}

type providerHealth struct {
	state            Health
	recent           []time.Time // consecutive failure times inside the window
	trips            int
	probing          bool
	unavailableUntil time.Time
	successes        int64
	failures         int64
	lastErr          string
}

// HealthTable tracks provider health. It is safe for concurrent use.
type HealthTable struct {
	mu      sync.Mutex
	policy  HealthPolicy
	now     func() time.Time
	entries map[string]*providerHealth
}

// NewHealthTable creates an empty table. Unknown providers are Healthy.
func NewHealthTable(policy HealthPolicy) *HealthTable {
	def := DefaultHealthPolicy()
	if policy.Threshold < 1 {
		policy.Threshold = def.Threshold
	}
	if policy.Window <= 0 {
		policy.Window = def.Window
	}
	if policy.Cooldown <= 0 {
		policy.Cooldown = def.Cooldown
	}
	if policy.MaxCooldown < policy.Cooldown {
		policy.MaxCooldown = policy.Cooldown
	}
	return &HealthTable{
		policy:  policy,
		now:     time.Now,
		entries: make(map[string]*providerHealth),
	}
}

// entry returns the record for name, creating it. Must be called with mu held.
func (h *HealthTable) entry(name string) *providerHealth {
	e, ok := h.entries[name]
	if !ok {
		e = &providerHealth{state: Healthy}
		h.entries[name] = e
	}
	return e
}

// Available reports whether the provider may be attempted now. A provider
// whose cooldown has elapsed moves to Degraded and admits a single trial
// call; other callers are turned away until that call is recorded.
func (h *HealthTable) Available(name string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	e := h.entry(name)
	if e.state != Unavailable {
		return !e.probing
	}
	if h.now().Before(e.unavailableUntil) {
		return false
	}
	e.state = Degraded
	e.probing = true
	return true
}

// Ready reports whether Available would admit a caller now without
// claiming the trial call of a provider whose cooldown has elapsed.
func (h *HealthTable) Ready(name string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	e := h.entry(name)
	if e.state != Unavailable {
		return !e.probing
	}
	return !h.now().Before(e.unavailableUntil)
}

// RecordSuccess resets the provider to Healthy.
func (h *HealthTable) RecordSuccess(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	e := h.entry(name)
	e.state = Healthy
	e.recent = e.recent[:0]
	e.trips = 0
	e.probing = false
	e.unavailableUntil = time.Time{}
	e.successes++
}

// RecordFailure marks the provider Degraded, or Unavailable once the
// threshold of consecutive failures inside the window is reached. A failed
// trial call after a cooldown trips again immediately with a longer cooldown.
func (h *HealthTable) RecordFailure(name string, err error) Health {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := h.now()
	e := h.entry(name)
	e.failures++
	if err != nil {
		e.lastErr = err.Error()
	}

	cutoff := now.Add(-h.policy.Window)
	kept := e.recent[:0]
	for _, ts := range e.recent {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	e.recent = append(kept, now)

	if e.probing || len(e.recent) >= h.policy.Threshold {
		e.trips++
		e.state = Unavailable
		e.unavailableUntil = now.Add(h.cooldown(e.trips))
		e.recent = e.recent[:0]
		e.probing = false
		return e.state
	}

	e.state = Degraded
	return e.state
}

// cooldown is base * 2^(trips-1), capped at MaxCooldown.
func (h *HealthTable) cooldown(trips int) time.Duration {
	d := h.policy.Cooldown
	for i := 1; i < trips; i++ {
		d *= 2
		if d >= h.policy.MaxCooldown {
			return h.policy.MaxCooldown
		}
	}
	return d
}

// State returns the current state of a provider without side effects.
func (h *HealthTable) State(name string) Health {
	h.mu.Lock()
	defer h.mu.Unlock()

	e, ok := h.entries[name]
	if !ok {
		return Healthy
	}
	return e.state
}

// Snapshot lists every known provider sorted by name.
func (h *HealthTable) Snapshot() []ProviderHealth {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]ProviderHealth, 0, len(h.entries))
	for name, e := range h.entries {
		out = append(out, ProviderHealth{
			Name:             name,
			State:            e.state,
			ConsecutiveFails: len(e.recent),
			Trips:            e.trips,
			UnavailableUntil: e.unavailableUntil,
			Successes:        e.successes,
			Failures:         e.failures,
			LastError:        e.lastErr,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
