package bridge

import (
	"context"
	"sync/atomic"

	"go.uber.org/ratelimit"
	"golang.org/x/time/rate"
)

// RecvLimiter applies a token bucket to the inbound frame rate of one
// transport, protecting the dispatch path from a flooding peer. The limiter
// pointer is swapped atomically so rate settings can be hot-reloaded
// without racing the read pumps.
type RecvLimiter struct {
	limiter atomic.Pointer[rate.Limiter]
}

// NewRecvLimiter creates a token bucket limiter allowing limit frames per
// second with the given burst size.
func NewRecvLimiter(limit int, burst int) *RecvLimiter {
	limiter := rate.NewLimiter(rate.Limit(limit), burst)
	if limiter == nil {
		return nil
	}
	l := &RecvLimiter{}
	l.limiter.Store(limiter)
	return l
}

// Take blocks until a token is available. Called by the receive loop before
// dispatching each inbound frame.
func (l *RecvLimiter) Take() error {
	return l.limiter.Load().Wait(context.Background())
}

// Reload replaces the rate settings at runtime.
func (l *RecvLimiter) Reload(limit int, burst int) {
	limiter := rate.NewLimiter(rate.Limit(limit), burst)
	if limiter == nil {
		return
	}
	l.limiter.Store(limiter)
}

// FunnelLimiter implements a leaky bucket pacer using Uber's ratelimit
// package. The bridge uses it to pace broadcast fan-out so one broadcast
// burst cannot monopolize every session's send queue at once.
type FunnelLimiter struct {
	limiter atomic.Pointer[ratelimit.Limiter]
}

// NewFunnelLimiter creates a leaky bucket pacer allowing limit operations
// per second.
func NewFunnelLimiter(limit int) *FunnelLimiter {
	limiter := ratelimit.New(limit)
	if limiter == nil {
		return nil
	}
	l := &FunnelLimiter{}
	l.limiter.Store(&limiter)
	return l
}

// Take blocks until the pacer allows the next operation.
func (l *FunnelLimiter) Take() {
	_ = (*l.limiter.Load()).Take()
}

// Reload replaces the pacing rate at runtime.
func (l *FunnelLimiter) Reload(limit int) {
	limiter := ratelimit.New(limit)
	if limiter == nil {
		return
	}
	l.limiter.Store(&limiter)
}
