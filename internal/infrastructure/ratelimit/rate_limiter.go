package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	ActionSendMessage = "send_message"
	ActionRecordPitch = "record_pitch"
	ActionAPI         = "api"
)

// Policy is the sustained rate and burst allowed for one action.
type Policy struct {
	Limit rate.Limit
	Burst int
}

// PerMinute allows n actions per minute with a burst of n.
func PerMinute(n int) Policy {
	if n <= 0 {
		n = 1
	}
	return Policy{Limit: rate.Every(time.Minute / time.Duration(n)), Burst: n}
}

// PerHour allows n actions per hour with a burst of n.
func PerHour(n int) Policy {
	if n <= 0 {
		n = 1
	}
	return Policy{Limit: rate.Every(time.Hour / time.Duration(n)), Burst: n}
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter manages per-user limits keyed by "userID:action".
type RateLimiter struct {
	mu       sync.Mutex
	policies map[string]Policy
	fallback Policy
	buckets  map[string]*bucket
	now      func() time.Time
}

func NewRateLimiter(policies map[string]Policy) *RateLimiter {
	p := make(map[string]Policy, len(policies))
	for action, policy := range policies {
		p[action] = policy
	}
	return &RateLimiter{
		policies: p,
		fallback: PerMinute(20),
		buckets:  make(map[string]*bucket),
		now:      time.Now,
	}
}

// DefaultPolicies mirrors the limits used when nothing is configured.
func DefaultPolicies(messagesPerMinute, pitchesPerHour int) map[string]Policy {
	return map[string]Policy{
		ActionSendMessage: PerMinute(messagesPerMinute),
		ActionRecordPitch: PerHour(pitchesPerHour),
		ActionAPI:         PerMinute(120),
	}
}

// SetClock replaces the time source. Tests use it to step time.
func (rl *RateLimiter) SetClock(now func() time.Time) {
	rl.mu.Lock()
	rl.now = now
	rl.mu.Unlock()
}

// Allow consumes one token for the user action. When the bucket is empty it
// returns false and the wait until the next token.
func (rl *RateLimiter) Allow(userID, action string) (bool, time.Duration) {
	key := userID + ":" + action

	rl.mu.Lock()
	now := rl.now()
	b, ok := rl.buckets[key]
	if !ok {
		policy, found := rl.policies[action]
		if !found {
			policy = rl.fallback
		}
		b = &bucket{limiter: rate.NewLimiter(policy.Limit, policy.Burst)}
		rl.buckets[key] = b
	}
	b.lastSeen = now
	rl.mu.Unlock()

	r := b.limiter.ReserveN(now, 1)
	if !r.OK() {
		return false, time.Hour
	}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return false, delay
	}
	return true, 0
}

// Tokens reports the tokens left for a user action, or the burst for an
// action the user has not performed yet.
func (rl *RateLimiter) Tokens(userID, action string) (tokens float64, burst int) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if b, ok := rl.buckets[userID+":"+action]; ok {
		return b.limiter.TokensAt(rl.now()), b.limiter.Burst()
	}
	policy, found := rl.policies[action]
	if !found {
		policy = rl.fallback
	}
	return float64(policy.Burst), policy.Burst
}

// Cleanup drops buckets idle for longer than maxIdle.
func (rl *RateLimiter) Cleanup(maxIdle time.Duration) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	removed := 0
	for key, b := range rl.buckets {
		if now.Sub(b.lastSeen) > maxIdle {
			delete(rl.buckets, key)
			removed++
		}
	}
	return removed
}

// StartCleanupRoutine runs Cleanup every interval until ctx is done.
func (rl *RateLimiter) StartCleanupRoutine(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				rl.Cleanup(time.Hour)
			}
		}
	}()
}
