package lock

import (
	"context"
	"sync"

	"github.com/FiveStarManagement/LWS-Workflow/internal/domain/workflow"
)

// MemoryLocker serializes per-order processing within a single process.
// Suitable for the default single-worker deployment.
type MemoryLocker struct {
	mu   sync.Mutex
	held map[int]struct{}
}

// NewMemoryLocker creates a MemoryLocker
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: make(map[int]struct{})}
}

// Acquire takes the lock for an order, or returns ErrOrderLocked
func (l *MemoryLocker) Acquire(ctx context.Context, orderNum int) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, taken := l.held[orderNum]; taken {
		return nil, workflow.ErrOrderLocked
	}
	l.held[orderNum] = struct{}{}

	var once sync.Once
	release := func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, orderNum)
			l.mu.Unlock()
		})
	}
	return release, nil
}

// Ensure MemoryLocker implements workflow.OrderLocker
var _ workflow.OrderLocker = (*MemoryLocker)(nil)
