package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAllowExhaustsBurstThenRefills(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(map[string]Policy{ActionSendMessage: PerMinute(2)})
	rl.SetClock(func() time.Time { return now })

	ok, _ := rl.Allow("u1", ActionSendMessage)
	assert.True(t, ok)
	ok, _ = rl.Allow("u1", ActionSendMessage)
	assert.True(t, ok)

	ok, wait := rl.Allow("u1", ActionSendMessage)
	assert.False(t, ok)
	assert.Equal(t, 30*time.Second, wait)

	now = now.Add(30 * time.Second)
	ok, _ = rl.Allow("u1", ActionSendMessage)
	assert.True(t, ok)
}

func TestAllowIsPerUserAndAction(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(map[string]Policy{ActionRecordPitch: PerHour(1)})
	rl.SetClock(func() time.Time { return now })

	ok, _ := rl.Allow("u1", ActionRecordPitch)
	assert.True(t, ok)
	ok, _ = rl.Allow("u1", ActionRecordPitch)
	assert.False(t, ok)

	ok, _ = rl.Allow("u2", ActionRecordPitch)
	assert.True(t, ok)
	ok, _ = rl.Allow("u1", ActionSendMessage)
	assert.True(t, ok)
}

func TestRejectedCallDoesNotConsume(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(map[string]Policy{ActionSendMessage: PerMinute(1)})
	rl.SetClock(func() time.Time { return now })

	rl.Allow("u1", ActionSendMessage)
	for i := 0; i < 3; i++ {
		ok, _ := rl.Allow("u1", ActionSendMessage)
		assert.False(t, ok)
	}
	now = now.Add(time.Minute)
	ok, _ := rl.Allow("u1", ActionSendMessage)
	assert.True(t, ok)
}

func TestCleanupDropsIdleBuckets(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(nil)
	rl.SetClock(func() time.Time { return now })

	rl.Allow("u1", ActionAPI)
	tokens, burst := rl.Tokens("u1", ActionAPI)
	assert.Equal(t, 20, burst)
	assert.InDelta(t, 19, tokens, 0.001)

	now = now.Add(2 * time.Hour)
	assert.Equal(t, 1, rl.Cleanup(time.Hour))
	assert.Zero(t, rl.Cleanup(time.Hour))
}
