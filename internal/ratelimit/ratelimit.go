// Package ratelimit implements per-IP, per-operation windowed counters:
// separate buckets for authentication, token issuance, ballot
// submission, and admin reset, each breaching into TooManyRequests with a
// retry hint.
//
// Counters live in a ristretto cache keyed by "operation:ip", each entry
// holding a small atomic counter for the current window.
package ratelimit

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/ristretto"

	"github.com/sosialistaflokkurinn/ekklesia-sub013/internal/apperrors"
)

// Operation names the bucket a request falls into.
type Operation string

const (
	OpAuthentication Operation = "authentication"
	OpTokenIssuance  Operation = "token_issuance"
	OpBallot         Operation = "ballot_submission"
	OpAdminReset     Operation = "admin_reset"
)

type window struct {
	count   atomic.Int64
	resetAt atomic.Int64 // unix nanos
}

// Limiter enforces a fixed max-per-window count per (operation, IP) pair.
type Limiter struct {
	cache   *ristretto.Cache
	window  time.Duration
	maxByOp map[Operation]int
}

// New builds a Limiter. maxByOp supplies the per-operation ceiling within
// windowLength; operations absent from the map are unlimited.
func New(windowLength time.Duration, maxByOp map[Operation]int) (*Limiter, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1_000_000,
		MaxCost:     100_000,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create rate limit cache: %w", err)
	}
	return &Limiter{cache: cache, window: windowLength, maxByOp: maxByOp}, nil
}

// Allow increments the counter for (op, ip) and reports whether the
// request stays within the operation's budget for the current window.
func (l *Limiter) Allow(op Operation, ip string) bool {
	max, limited := l.maxByOp[op]
	if !limited {
		return true
	}

	key := string(op) + ":" + ip
	now := time.Now()

	val, found := l.cache.Get(key)
	w, ok := val.(*window)
	if !found || !ok || now.UnixNano() > w.resetAt.Load() {
		w = &window{}
		w.resetAt.Store(now.Add(l.window).UnixNano())
		l.cache.Set(key, w, 1)
		l.cache.Wait()
	}

	n := w.count.Add(1)
	return int(n) <= max
}

// Check is the HTTP-facing variant: it returns an *apperrors.Error of
// KindTooManyRequests when the caller has exceeded the operation's budget.
func (l *Limiter) Check(op Operation, r *http.Request) error {
	if l.Allow(op, ClientIP(r)) {
		return nil
	}
	return apperrors.New(apperrors.KindTooManyRequests, "ratelimit.Check",
		fmt.Sprintf("rate limit exceeded for %s", op))
}

// ClientIP extracts the caller's IP, preferring X-Forwarded-For's first hop
// when present (the services sit behind a reverse proxy in production)
// and falling back to RemoteAddr.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return first
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
