package install

import (
	"context"
	"sync"
)

// installLocks serializes installs of the same capability. Waiters give up
// when their context ends.
type installLocks struct {
	slots map[string]chan struct{}
	mu    sync.Mutex
}

func newInstallLocks() *installLocks {
	return &installLocks{slots: make(map[string]chan struct{})}
}

// acquire blocks until id is free or ctx ends. The returned func releases it.
func (l *installLocks) acquire(ctx context.Context, id string) (func(), error) {
	l.mu.Lock()
	slot, ok := l.slots[id]
	if !ok {
		slot = make(chan struct{}, 1)
		l.slots[id] = slot
	}
	l.mu.Unlock()

	select {
	case slot <- struct{}{}:
		return func() { <-slot }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
