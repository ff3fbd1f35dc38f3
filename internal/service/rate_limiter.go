package service

import (
	"context"
	"sync"
	"time"
)

// RateLimiter caps export submissions per minute. Exports are expensive
// enough that unbounded submission would let one client fill the queue.
type RateLimiter struct {
	mu sync.Mutex

	maxSubmissionsPerMinute int
	windowCount             int
	windowEnd               time.Time
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(maxSubmissionsPerMinute int) *RateLimiter {
	return &RateLimiter{
		maxSubmissionsPerMinute: maxSubmissionsPerMinute,
	}
}

// CheckSubmissionRate checks whether another export may be submitted
func (rl *RateLimiter) CheckSubmissionRate(ctx context.Context) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	if now.After(rl.windowEnd) {
		rl.windowCount = 1
		rl.windowEnd = now.Add(1 * time.Minute)
		return nil
	}

	if rl.windowCount >= rl.maxSubmissionsPerMinute {
		return ErrRateLimitExceeded
	}

	rl.windowCount++
	return nil
}
