package federation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBreakerOpensAfterThreshold(t *testing.T) {
	b := NewBreaker(3, time.Minute)
	host := "http://node-b.test"

	assert.True(t, b.Allow(host))
	assert.False(t, b.Failure(host))
	assert.False(t, b.Failure(host))
	assert.True(t, b.Allow(host))
	assert.True(t, b.Failure(host))
	assert.False(t, b.Allow(host))

	assert.True(t, b.Allow("http://node-c.test"), "other peers are unaffected")
}

func TestBreakerSuccessResets(t *testing.T) {
	b := NewBreaker(2, time.Minute)
	host := "http://node-b.test"

	b.Failure(host)
	b.Success(host)
	b.Failure(host)
	assert.True(t, b.Allow(host), "failures must be consecutive")
}

func TestBreakerCooldown(t *testing.T) {
	b := NewBreaker(1, 50*time.Millisecond)
	host := "http://node-b.test"

	b.Failure(host)
	assert.False(t, b.Allow(host))

	assert.Eventually(t, func() bool { return b.Allow(host) }, time.Second, 10*time.Millisecond)
}
