package fetch

import (
	"math/rand"
	"sync"
	"time"
)

// UAPool hands out realistic browser user-agent strings. The pool itself is
// immutable after construction, so concurrent reads need no locking; only the
// random source is guarded.
type UAPool struct {
	agents []string
	mu     sync.Mutex
	rng    *rand.Rand
}

// NewUAPool builds a pool from the built-in agent list.
func NewUAPool() *UAPool {
	return &UAPool{
		agents: []string{
			"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
			"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
			"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
			"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:126.0) Gecko/20100101 Firefox/126.0",
			"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
			"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36 Edg/123.0.2420.97",
		},
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Pick returns one agent at random. A fetch client picks once per session so
// a site sees a stable browser identity, not a new one per request.
func (p *UAPool) Pick() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.agents[p.rng.Intn(len(p.agents))]
}
