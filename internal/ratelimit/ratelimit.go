// Package ratelimit enforces a fixed-window request quota per external
// source. The window resets entirely once its duration elapses; a
// denied request is rejected, never queued.
//
// The in-memory counters are authoritative for the life of the process.
// Each permitted request is also written through to durable storage so
// a restart does not silently reopen a provider's quota; persistence is
// best-effort and a failed write never blocks the caller.
package ratelimit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"geopipe/internal/logging"
)

// Policy is one source's quota: at most MaxRequests per Window.
type Policy struct {
	MaxRequests int
	Window      time.Duration
}

// Decision is the outcome of CheckAndConsume.
type Decision struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// WindowState is a persisted counter snapshot.
type WindowState struct {
	Source       string
	RequestCount int
	WindowStart  time.Time
}

// Store persists window counters. Implementations must tolerate being
// called concurrently; failures are logged by the limiter, not returned.
type Store interface {
	PutWindow(ctx context.Context, state WindowState) error
	ListWindows(ctx context.Context) ([]WindowState, error)
}

type window struct {
	count int
	start time.Time
}

// Limiter owns one fixed window per configured source. Construct once
// at process start and inject wherever throttling is needed.
type Limiter struct {
	mu       sync.Mutex
	policies map[string]Policy
	windows  map[string]*window
	store    Store
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithStore attaches a durable counter store.
func WithStore(s Store) Option {
	return func(l *Limiter) { l.store = s }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// New builds a limiter for the given per-source policies. If a store is
// attached, previously persisted counters are restored so a restart
// does not reset live windows.
func New(policies map[string]Policy, logger *slog.Logger, opts ...Option) *Limiter {
	l := &Limiter{
		policies: policies,
		windows:  make(map[string]*window, len(policies)),
		logger:   logging.Default(logger).With("component", "ratelimit"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}

	if l.store != nil {
		states, err := l.store.ListWindows(context.Background())
		if err != nil {
			l.logger.Warn("restoring rate-limit counters failed", "error", err)
		}
		for _, st := range states {
			if _, known := l.policies[st.Source]; !known {
				continue
			}
			l.windows[st.Source] = &window{count: st.RequestCount, start: st.WindowStart}
		}
	}
	return l
}

// CheckAndConsume evaluates and, if allowed, consumes one request for
// the source. The check and the increment happen under one lock so
// interleaved callers cannot both observe the last remaining slot.
// Unknown sources are allowed through but logged as a configuration gap.
func (l *Limiter) CheckAndConsume(ctx context.Context, source string) Decision {
	l.mu.Lock()

	policy, known := l.policies[source]
	if !known {
		l.mu.Unlock()
		l.logger.Warn("no rate-limit policy for source, allowing", "source", source)
		return Decision{Allowed: true, Remaining: -1}
	}

	now := l.now()
	w := l.windows[source]
	if w == nil {
		w = &window{start: now}
		l.windows[source] = w
	}
	l.resetIfElapsed(w, policy, now)

	resetAt := w.start.Add(policy.Window)
	if w.count >= policy.MaxRequests {
		l.mu.Unlock()
		return Decision{Allowed: false, Remaining: 0, ResetAt: resetAt}
	}

	w.count++
	state := WindowState{Source: source, RequestCount: w.count, WindowStart: w.start}
	remaining := policy.MaxRequests - w.count
	l.mu.Unlock()

	if l.store != nil {
		if err := l.store.PutWindow(ctx, state); err != nil {
			l.logger.Warn("persisting rate-limit counter failed", "source", source, "error", err)
		}
	}
	return Decision{Allowed: true, Remaining: remaining, ResetAt: resetAt}
}

// SourceStatus is one source's window snapshot.
type SourceStatus struct {
	Source      string
	Used        int
	MaxRequests int
	Window      time.Duration
	ResetAt     time.Time
}

// Status returns a snapshot of every configured source's window,
// applying the same lazy reset as CheckAndConsume but consuming nothing.
func (l *Limiter) Status() []SourceStatus {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	out := make([]SourceStatus, 0, len(l.policies))
	for source, policy := range l.policies {
		w := l.windows[source]
		if w == nil {
			w = &window{start: now}
			l.windows[source] = w
		}
		l.resetIfElapsed(w, policy, now)
		out = append(out, SourceStatus{
			Source:      source,
			Used:        w.count,
			MaxRequests: policy.MaxRequests,
			Window:      policy.Window,
			ResetAt:     w.start.Add(policy.Window),
		})
	}
	return out
}

// resetIfElapsed clears the window when its duration has passed.
// Callers hold l.mu.
func (l *Limiter) resetIfElapsed(w *window, policy Policy, now time.Time) {
	if now.Sub(w.start) > policy.Window {
		w.count = 0
		w.start = now
	}
}
