package bridge

import (
	"sort"
	"sync"
	"time"

	"github.com/Diamondbanana420/xeriaco-frontend-sub000/internal/domain"
)

// PendingTask describes a command still waiting for its callback.
type PendingTask struct {
	CorrelationID string             `json:"correlation_id"`
	Type          domain.CommandType `json:"type"`
	IssuedAt      time.Time          `json:"issued_at"`
	Deadline      time.Time          `json:"deadline"`
}

type waiter struct {
	task PendingTask
	// Buffered so the resolver never blocks on a caller that already left.
	reply chan Reply
}

// table maps correlation ids to waiters. An entry is removed by exactly one
// of resolve, expiry or cancellation; whoever deletes it owns the outcome.
type table struct {
	mu      sync.Mutex
	waiters map[string]*waiter
}

func newTable() *table {
	return &table{waiters: make(map[string]*waiter)}
}

func (t *table) add(task PendingTask) *waiter {
	w := &waiter{task: task, reply: make(chan Reply, 1)}
	t.mu.Lock()
	t.waiters[task.CorrelationID] = w
	t.mu.Unlock()
	return w
}

func (t *table) take(correlationID string) (*waiter, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	w, ok := t.waiters[correlationID]
	if ok {
		delete(t.waiters, correlationID)
	}
	return w, ok
}

func (t *table) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.waiters)
}

func (t *table) snapshot() []PendingTask {
	t.mu.Lock()
	tasks := make([]PendingTask, 0, len(t.waiters))
	for _, w := range t.waiters {
		tasks = append(tasks, w.task)
	}
	t.mu.Unlock()
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].IssuedAt.Before(tasks[j].IssuedAt) })
	return tasks
}
