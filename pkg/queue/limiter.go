package queue

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// agentLimiter bounds a single agent_id to MaxConcurrentPerAgent
// in-flight provider calls and at least MinDelay between successive
// calls. The semaphore enforces concurrency; the rate.Limiter (one
// token per MinDelay, burst 1) enforces spacing. rate.Limiter.Wait
// reserves and commits the next slot atomically under its own mutex,
// so the agent's "last request time" advances between permit
// acquisition and handing control to the worker.
type agentLimiter struct {
	sem     chan struct{}
	spacing *rate.Limiter
}

// release is returned by Acquire to free the concurrency slot.
type release func()

// rateLimiters lazily creates one agentLimiter per agent_id.
type rateLimiters struct {
	mu            sync.Mutex
	limiters      map[string]*agentLimiter
	maxConcurrent int
	minDelay      time.Duration
}

func newRateLimiters(maxConcurrent int, minDelay time.Duration) *rateLimiters {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &rateLimiters{
		limiters:      make(map[string]*agentLimiter),
		maxConcurrent: maxConcurrent,
		minDelay:      minDelay,
	}
}

func (rl *rateLimiters) get(agentID string) *agentLimiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	l, ok := rl.limiters[agentID]
	if !ok {
		var spacing *rate.Limiter
		if rl.minDelay > 0 {
			spacing = rate.NewLimiter(rate.Every(rl.minDelay), 1)
		}
		l = &agentLimiter{
			sem:     make(chan struct{}, rl.maxConcurrent),
			spacing: spacing,
		}
		rl.limiters[agentID] = l
	}
	return l
}

// Acquire suspends until a concurrency slot is free and (if a minimum
// delay is configured) at least MinDelay has elapsed since the agent's
// last acquired request. Returns a release func to call when the
// worker is done with the permit.
func (rl *rateLimiters) Acquire(ctx context.Context, agentID string) (release, error) {
	l := rl.get(agentID)

	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if l.spacing != nil {
		if err := l.spacing.Wait(ctx); err != nil {
			<-l.sem
			return nil, err
		}
	}

	return func() { <-l.sem }, nil
}
