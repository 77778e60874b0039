// Package clients provides the HTTP transport used to reach the CRM: a
// request limiter, a circuit breaker and a retry policy for service
// protection throttling.
package clients

import (
	"context"
	"sync"
	"time"
)

// RateLimiter paces outgoing requests
type RateLimiter interface {
	// Wait blocks until the request may be sent or ctx is done
	Wait(ctx context.Context) error
	// Backoff holds every caller for d
	Backoff(d time.Duration)
}

// LimiterStats reports limiter activity
type LimiterStats struct {
	Rate        float64       `json:"rate"`
	Burst       int           `json:"burst"`
	Granted     int64         `json:"granted"`
	Rejected    int64         `json:"rejected"`
	Backoffs    int64         `json:"backoffs"`
	Tokens      float64       `json:"tokens"`
	PausedUntil time.Time     `json:"paused_until"`
	AverageWait time.Duration `json:"average_wait"`
}

// Limiter paces requests to one organization with a token bucket and
// holds all of them while the service has asked callers to back off.
// Service protection limits are counted per user, so one throttled
// response pauses every worker sharing the limiter. A zero rate leaves
// requests unpaced but still honours backoffs.
type Limiter struct {
	rate   float64
	burst  int
	tokens float64
	last   time.Time

	pausedUntil time.Time
	now         func() time.Time

	granted   int64
	rejected  int64
	backoffs  int64
	totalWait time.Duration

	mu sync.Mutex
}

// NewLimiter creates a limiter starting with a full bucket
func NewLimiter(rate float64, burst int) *Limiter {
	if burst < 1 {
		burst = 1
	}
	l := &Limiter{rate: rate, burst: burst, tokens: float64(burst), now: time.Now}
	l.last = l.now()
	return l
}

// Allow takes a token if the request may be sent right now
func (l *Limiter) Allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.reserve() == 0 {
		l.granted++
		return true
	}
	l.rejected++
	return false
}

// Wait blocks until a token is available and no backoff is in force
func (l *Limiter) Wait(ctx context.Context) error {
	start := l.now()

	for {
		l.mu.Lock()
		delay := l.reserve()
		if delay == 0 {
			l.granted++
			l.totalWait += l.now().Sub(start)
			l.mu.Unlock()
			return nil
		}
		l.mu.Unlock()

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			l.mu.Lock()
			l.rejected++
			l.mu.Unlock()
			return ctx.Err()
		}
	}
}

// Backoff pauses all callers for d. Overlapping backoffs keep the later end.
func (l *Limiter) Backoff(d time.Duration) {
	if d <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	l.backoffs++
	if until := l.now().Add(d); until.After(l.pausedUntil) {
		l.pausedUntil = until
	}
}

// reserve takes a token and returns 0, or returns how long to wait before
// trying again. Callers hold mu.
func (l *Limiter) reserve() time.Duration {
	now := l.now()
	if now.Before(l.pausedUntil) {
		return l.pausedUntil.Sub(now)
	}
	if l.rate <= 0 {
		return 0
	}

	l.tokens += now.Sub(l.last).Seconds() * l.rate
	if l.tokens > float64(l.burst) {
		l.tokens = float64(l.burst)
	}
	l.last = now

	if l.tokens >= 1 {
		l.tokens--
		return 0
	}
	return time.Duration((1 - l.tokens) / l.rate * float64(time.Second))
}

// Stats returns limiter statistics
func (l *Limiter) Stats() LimiterStats {
	l.mu.Lock()
	defer l.mu.Unlock()

	var avg time.Duration
	if l.granted > 0 {
		avg = l.totalWait / time.Duration(l.granted)
	}
	return LimiterStats{
		Rate:        l.rate,
		Burst:       l.burst,
		Granted:     l.granted,
		Rejected:    l.rejected,
		Backoffs:    l.backoffs,
		Tokens:      l.tokens,
		PausedUntil: l.pausedUntil,
		AverageWait: avg,
	}
}
