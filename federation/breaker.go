package federation

import (
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// Breaker stops traffic to a peer after threshold consecutive failures.
// The failure count expires cooldown after the last failure, which closes
// the breaker again; any success closes it at once.
type Breaker struct {
	mu        sync.Mutex
	failures  *ttlcache.Cache[string, int]
	threshold int
}

func NewBreaker(threshold int, cooldown time.Duration) *Breaker {
	if threshold < 1 {
		threshold = 1
	}
	return &Breaker{
		failures: ttlcache.New(
			ttlcache.WithTTL[string, int](cooldown),
			ttlcache.WithDisableTouchOnHit[string, int](),
		),
		threshold: threshold,
	}
}

// Allow reports whether host may be called.
func (b *Breaker) Allow(host string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	item := b.failures.Get(host)
	return item == nil || item.Value() < b.threshold
}

func (b *Breaker) Success(host string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures.Delete(host)
}

// Failure records a failed call and reports whether the breaker is now open.
func (b *Breaker) Failure(host string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 1
	if item := b.failures.Get(host); item != nil {
		n = item.Value() + 1
	}
	b.failures.Set(host, n, ttlcache.DefaultTTL)
	return n >= b.threshold
}
