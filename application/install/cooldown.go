package install

import (
	"sync"
	"time"
)

// cooldownTracker remembers when each capability last exhausted its recipes.
// State is process-local and lost on restart.
type cooldownTracker struct {
	until  map[string]time.Time
	window time.Duration
	mu     sync.Mutex
}

func newCooldownTracker(window time.Duration) *cooldownTracker {
	return &cooldownTracker{until: make(map[string]time.Time), window: window}
}

func (c *cooldownTracker) start(id string, now time.Time) {
	if c.window <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.until[id] = now.Add(c.window)
}

func (c *cooldownTracker) clear(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.until, id)
}

// remaining returns zero once the window has passed, pruning the entry.
func (c *cooldownTracker) remaining(id string, now time.Time) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	until, ok := c.until[id]
	if !ok {
		return 0
	}
	if left := until.Sub(now); left > 0 {
		return left
	}
	delete(c.until, id)
	return 0
}
