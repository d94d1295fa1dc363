// Package ratelimit bounds per-caller request rates with a sliding window
// anchored at the first request seen in the window, while keeping the
// limiter's own memory bounded regardless of key cardinality.
package ratelimit

import (
	"container/list"
	"log/slog"
	"sync"
	"time"

	"github.com/lumenlms/federation-gateway/internal/observability"
)

// Result is the outcome of a single rate-limit check. Check never fails:
// callers always receive a usable decision.
type Result struct {
	Allowed   bool
	Remaining int
	// ResetAt is the epoch-millisecond wall-clock time when the caller's
	// current window expires.
	ResetAt int64
}

type entry struct {
	key         string
	windowStart time.Time
	count       int
	elem        *list.Element
}

// Limiter tracks request counts per caller key. The tracked-key set has a
// hard capacity ceiling; when a new key would exceed it, the
// oldest-inserted entry is evicted first. Insertion-order eviction is a
// deliberate approximation of LRU: true recency tracking would touch every
// entry on read for little gain on this hot path.
type Limiter struct {
	max      int
	window   time.Duration
	capacity int

	mu      sync.Mutex
	entries map[string]*entry
	order   *list.List // front = oldest inserted

	sweepInterval time.Duration
	stopCh        chan struct{}
	started       bool
	stopped       bool

	logger  *slog.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

// New creates a limiter allowing max requests per window, tracking at most
// capacity distinct keys, with a background sweep at sweepInterval.
func New(max int, window time.Duration, capacity int, sweepInterval time.Duration, m *observability.Metrics, logger *slog.Logger) *Limiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Limiter{
		max:           max,
		window:        window,
		capacity:      capacity,
		entries:       make(map[string]*entry),
		order:         list.New(),
		sweepInterval: sweepInterval,
		stopCh:        make(chan struct{}),
		logger:        logger,
		metrics:       m,
		now:           time.Now,
	}
}

// Check records one request for key and reports whether it is within the
// limit. It never panics outward: an internal invariant violation denies
// the request rather than taking down the gateway.
func (l *Limiter) Check(key string) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("rate limiter invariant violation, failing closed", "panic", r)
			res = Result{Allowed: false, Remaining: 0, ResetAt: time.Now().Add(l.window).UnixMilli()}
		}
	}()

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	e, ok := l.entries[key]
	switch {
	case !ok:
		e = l.insert(key, now)
	case now.Sub(e.windowStart) >= l.window:
		// Window expired: restart the count rather than carry stale history.
		e.windowStart = now
		e.count = 1
	default:
		e.count++
	}

	resetAt := e.windowStart.Add(l.window).UnixMilli()
	if e.count > l.max {
		return Result{Allowed: false, Remaining: 0, ResetAt: resetAt}
	}
	return Result{Allowed: true, Remaining: l.max - e.count, ResetAt: resetAt}
}

// insert adds a fresh entry, evicting the oldest-inserted one when the
// store is at capacity. Caller holds l.mu.
func (l *Limiter) insert(key string, now time.Time) *entry {
	if len(l.entries) >= l.capacity {
		if oldest := l.order.Front(); oldest != nil {
			victim := oldest.Value.(*entry)
			l.order.Remove(oldest)
			delete(l.entries, victim.key)
			if l.metrics != nil {
				l.metrics.RateLimitEvictions.WithLabelValues("capacity").Inc()
			}
		}
	}

	e := &entry{key: key, windowStart: now, count: 1}
	e.elem = l.order.PushBack(e)
	l.entries[key] = e
	if l.metrics != nil {
		l.metrics.RateLimitTrackedKeys.Set(float64(len(l.entries)))
	}
	return e
}

// Len returns the number of currently tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Start launches the background sweep that drops expired entries, keeping
// steady-state size proportional to active traffic rather than historical
// peak. Calling Start more than once is a no-op.
func (l *Limiter) Start() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.started || l.stopped {
		return
	}
	l.started = true

	go func() {
		ticker := time.NewTicker(l.sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-l.stopCh:
				return
			case <-ticker.C:
				l.sweep()
			}
		}
	}()
}

// Stop terminates the background sweep. It is idempotent and safe to call
// when Start was never invoked, so embedding processes and test harnesses
// can always tear down cleanly.
func (l *Limiter) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopped {
		return
	}
	l.stopped = true
	close(l.stopCh)
}

// sweep removes entries whose window has fully expired.
func (l *Limiter) sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for elem := l.order.Front(); elem != nil; {
		next := elem.Next()
		e := elem.Value.(*entry)
		if now.Sub(e.windowStart) >= l.window {
			l.order.Remove(elem)
			delete(l.entries, e.key)
			removed++
		}
		elem = next
	}

	if l.metrics != nil {
		l.metrics.RateLimitTrackedKeys.Set(float64(len(l.entries)))
		if removed > 0 {
			l.metrics.RateLimitEvictions.WithLabelValues("sweep").Add(float64(removed))
		}
	}
	if removed > 0 {
		l.logger.Debug("rate limiter sweep", "removed", removed, "tracked", len(l.entries))
	}
}
