// Package ratelimit holds the per-address token buckets shared by the QUIC
// handshake path and the debug HTTP surface.
package ratelimit

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// Config configures an IPLimiter.
type Config struct {
	PerSecond       float64
	Burst           int
	CleanupInterval time.Duration
}

type entry struct {
	limiter  *rate.Limiter
	lastSeen atomic.Int64 // unix nanos
}

// IPLimiter keeps one token bucket per remote address.
type IPLimiter struct {
	limiters sync.Map // string -> *entry
	cfg      Config
	stop     chan struct{}
	stopOnce sync.Once

	allowed  atomic.Uint64
	rejected atomic.Uint64
}

// NewIPLimiter starts the janitor goroutine; call Stop to release it.
func NewIPLimiter(cfg Config) *IPLimiter {
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = 5 * time.Minute
	}
	if cfg.Burst < 1 {
		cfg.Burst = 1
	}
	l := &IPLimiter{cfg: cfg, stop: make(chan struct{})}
	go l.cleanupLoop()
	return l
}

func (l *IPLimiter) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
}

func (l *IPLimiter) get(ip string) *rate.Limiter {
	now := time.Now().UnixNano()
	if v, ok := l.limiters.Load(ip); ok {
		e := v.(*entry)
		e.lastSeen.Store(now)
		return e.limiter
	}
	e := &entry{limiter: rate.NewLimiter(rate.Limit(l.cfg.PerSecond), l.cfg.Burst)}
	e.lastSeen.Store(now)
	actual, _ := l.limiters.LoadOrStore(ip, e)
	return actual.(*entry).limiter
}

func (l *IPLimiter) cleanupLoop() {
	ticker := time.NewTicker(l.cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			l.cleanup(time.Now())
		}
	}
}

func (l *IPLimiter) cleanup(now time.Time) {
	cutoff := now.Add(-2 * l.cfg.CleanupInterval).UnixNano()
	l.limiters.Range(func(k, v any) bool {
		if v.(*entry).lastSeen.Load() < cutoff {
			l.limiters.Delete(k)
		}
		return true
	})
}

// Allow takes one token from ip's bucket.
func (l *IPLimiter) Allow(ip string) bool {
	if l.get(ip).Allow() {
		l.allowed.Add(1)
		return true
	}
	l.rejected.Add(1)
	return false
}

// Stats reports allowed and rejected totals.
func (l *IPLimiter) Stats() (allowed, rejected uint64) {
	return l.allowed.Load(), l.rejected.Load()
}

// Middleware rejects requests over the limit with 429. onReject may be nil.
func (l *IPLimiter) Middleware(onReject func()) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.Allow(ClientIP(r)) {
				if onReject != nil {
					onReject()
				}
				w.Header().Set("Retry-After", "1")
				http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// HostOf strips the port from a host:port address.
func HostOf(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}

// ClientIP prefers proxy headers, then RemoteAddr. The headers are spoofable
// unless a trusted proxy sets them.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if i := strings.IndexByte(xff, ','); i >= 0 {
			return strings.TrimSpace(xff[:i])
		}
		return strings.TrimSpace(xff)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	return HostOf(r.RemoteAddr)
}

// ConnLimiter caps concurrent long-lived connections per address.
type ConnLimiter struct {
	conns    sync.Map // string -> *atomic.Int32
	maxPerIP int32
	rejected atomic.Uint64
}

func NewConnLimiter(maxPerIP int) *ConnLimiter {
	return &ConnLimiter{maxPerIP: int32(maxPerIP)}
}

// Acquire reserves a slot for ip. Pair every true result with Release.
func (c *ConnLimiter) Acquire(ip string) bool {
	v, _ := c.conns.LoadOrStore(ip, new(atomic.Int32))
	n := v.(*atomic.Int32)
	for {
		cur := n.Load()
		if cur >= c.maxPerIP {
			c.rejected.Add(1)
			return false
		}
		if n.CompareAndSwap(cur, cur+1) {
			return true
		}
	}
}

func (c *ConnLimiter) Release(ip string) {
	if v, ok := c.conns.Load(ip); ok {
		v.(*atomic.Int32).Add(-1)
	}
}

func (c *ConnLimiter) Count(ip string) int {
	if v, ok := c.conns.Load(ip); ok {
		return int(v.(*atomic.Int32).Load())
	}
	return 0
}

func (c *ConnLimiter) Rejected() uint64 { return c.rejected.Load() }
