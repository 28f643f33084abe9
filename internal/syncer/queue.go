package syncer

import "sync"

// Queue is the concurrency gate in front of the engine. Acquire succeeds
// only when a global permit is free and the target is not already in
// progress, so at most one pass per target and at most N passes total ever
// run concurrently.
type Queue struct {
	mu         sync.Mutex
	permits    chan struct{}
	inProgress map[string]struct{}
}

// NewQueue returns a queue allowing at most limit concurrent passes. A limit
// below 1 is treated as 1.
func NewQueue(limit int) *Queue {
	if limit < 1 {
		limit = 1
	}
	return &Queue{
		permits:    make(chan struct{}, limit),
		inProgress: make(map[string]struct{}),
	}
}

// Acquire attempts to claim a slot for the target without blocking. A false
// result means the caller should try again on the next tick, not that
// anything failed.
func (q *Queue) Acquire(targetID string) (*Guard, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, busy := q.inProgress[targetID]; busy {
		return nil, false
	}
	select {
	case q.permits <- struct{}{}:
	default:
		return nil, false
	}
	q.inProgress[targetID] = struct{}{}
	return &Guard{queue: q, targetID: targetID}, true
}

// InProgress reports whether a pass for the target currently holds a guard.
func (q *Queue) InProgress(targetID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, busy := q.inProgress[targetID]
	return busy
}

// Guard represents one claimed slot. Release must be called by the same
// task that acquired it, once the pass is finished.
type Guard struct {
	once     sync.Once
	queue    *Queue
	targetID string
}

// Release frees the permit and the in-progress marker synchronously and
// immediately. Calling it more than once is a no-op.
func (g *Guard) Release() {
	g.once.Do(func() {
		g.queue.mu.Lock()
		delete(g.queue.inProgress, g.targetID)
		g.queue.mu.Unlock()
		<-g.queue.permits
	})
}
