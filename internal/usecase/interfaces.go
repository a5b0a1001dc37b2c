package usecase

import "time"

// RateLimiter is satisfied by ratelimit.RateLimiter.
type RateLimiter interface {
	Allow(userID, action string) (bool, time.Duration)
}

// Identity is what the identity provider tells us about a signed-in user.
type Identity struct {
	UID         string
	Email       string
	DisplayName string
}
