// Package clock provides the process-wide "now" abstraction. Unlike the
// teacher's simulator (a single global time.Time plus a package-level
// mutex), every component here receives its Clock explicitly at
// construction, per spec.md §9's "Global mutable state" design note.
package clock

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"cossmic/internal/id"
)

// Clock returns the current logical time. Implementations must be safe
// for concurrent use and must never return a value earlier than a
// previously returned value (spec.md §8 invariant 7).
type Clock interface {
	Now() id.Time
}

// System is the default wall-clock implementation.
type System struct{}

// Now returns the current wall-clock time as a Unix second count.
func (System) Now() id.Time { return id.Time(time.Now().Unix()) }

// Fixed is a clock pinned to a constant time, for deterministic tests.
type Fixed struct {
	t id.Time
}

// NewFixed builds a Fixed clock starting at t.
func NewFixed(t id.Time) *Fixed { return &Fixed{t: t} }

// Now returns the fixed time.
func (f *Fixed) Now() id.Time { return f.t }

// Advance moves the fixed clock forward by delta seconds. Advancing by a
// negative amount panics: a Clock must never go backwards.
func (f *Fixed) Advance(delta id.Time) {
	if delta < 0 {
		panic("clock: Fixed.Advance given a negative delta")
	}
	f.t += delta
}

// Set moves the fixed clock to an absolute time. Setting it earlier than
// the current value panics, preserving the monotonicity invariant.
func (f *Fixed) Set(t id.Time) {
	if t < f.t {
		panic("clock: Fixed.Set given a time before the current time")
	}
	f.t = t
}

// Injected wraps an arbitrary function as a Clock, for tests that need a
// clock driven by something other than Fixed's explicit Advance/Set.
type Injected func() id.Time

// Now invokes the wrapped function.
func (i Injected) Now() id.Time { return i() }

// Simulator pulls "now" from an external simulator harness endpoint,
// fetched once by NewSimulator and again on each Poll call, and cached
// between fetches; it does not poll on its own. This mirrors the
// teacher's cmd/ha-fetch-history pattern of polling an external HTTP
// endpoint and decoding a small JSON payload from it.
type Simulator struct {
	url    string
	client *http.Client
	cached atomic.Int64
}

// simTimePayload is the JSON body expected from the simulator endpoint.
type simTimePayload struct {
	UnixSeconds int64 `json:"unix_seconds"`
}

// NewSimulator builds a Simulator clock polling url. It performs one
// synchronous fetch before returning so Now() never observes the zero
// value.
func NewSimulator(ctx context.Context, url string) (*Simulator, error) {
	s := &Simulator{url: url, client: &http.Client{Timeout: 5 * time.Second}}
	if err := s.poll(ctx); err != nil {
		return nil, fmt.Errorf("clock: initial simulator poll: %w", err)
	}
	return s, nil
}

// Poll fetches the latest time from the simulator endpoint and updates
// the cached value if it has advanced. A regression in the fetched time
// is ignored (monotonicity invariant), not propagated.
func (s *Simulator) Poll(ctx context.Context) error { return s.poll(ctx) }

func (s *Simulator) poll(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var payload simTimePayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return err
	}

	for {
		cur := s.cached.Load()
		if payload.UnixSeconds <= cur {
			return nil
		}
		if s.cached.CompareAndSwap(cur, payload.UnixSeconds) {
			return nil
		}
	}
}

// Now returns the most recently polled simulator time.
func (s *Simulator) Now() id.Time { return id.Time(s.cached.Load()) }
