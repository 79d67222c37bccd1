package middleware

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"
)

func TestRateLimiter_EnforcesBurst(t *testing.T) {
	limiter := NewRateLimiter(rate.Every(time.Hour), 2, time.Hour)

	assert.True(t, limiter.Allow("user-1"))
	assert.True(t, limiter.Allow("user-1"))
	assert.False(t, limiter.Allow("user-1"))
}

func TestRateLimiter_KeysAreIndependent(t *testing.T) {
	limiter := NewRateLimiter(rate.Every(time.Hour), 1, time.Hour)

	assert.True(t, limiter.Allow("user-1"))
	assert.False(t, limiter.Allow("user-1"))
	assert.True(t, limiter.Allow("user-2"))
}

func TestRateLimiter_EvictsIdleKeys(t *testing.T) {
	limiter := NewRateLimiter(rate.Every(time.Millisecond), 1, 20*time.Millisecond)

	limiter.Allow("user-1")
	limiter.Allow("user-2")
	assert.Equal(t, 2, limiter.Len())

	time.Sleep(50 * time.Millisecond)

	// The next call triggers a prune pass; the two idle keys go away.
	limiter.Allow("user-3")
	assert.Equal(t, 1, limiter.Len())
}
