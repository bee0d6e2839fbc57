// Package timer is a small deferred-task scheduler. The server uses it
// for housekeeping that must be cancellable: room idle sweeps and
// finished-session retention. Tasks run on their own goroutines so a
// slow callback never delays the next deadline.
package timer

import (
	"container/heap"
	"sync"
	"time"
)

type task struct {
	id       int64
	runAt    time.Time
	interval time.Duration // 0 means one-shot
	fn       func()
	index    int
}

type taskQueue []*task

func (q taskQueue) Len() int { return len(q) }

func (q taskQueue) Less(i, j int) bool {
	return q[i].runAt.Before(q[j].runAt)
}

func (q taskQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *taskQueue) Push(x any) {
	t := x.(*task)
	t.index = len(*q)
	*q = append(*q, t)
}

func (q *taskQueue) Pop() any {
	old := *q
	n := len(old)
	t := old[n-1]
	t.index = -1
	*q = old[:n-1]
	return t
}

type Manager struct {
	mu     sync.Mutex
	queue  taskQueue
	nextID int64
	wake   chan struct{}
	done   chan struct{}
	once   sync.Once
}

func NewManager() *Manager {
	m := &Manager{
		queue:  make(taskQueue, 0),
		nextID: 1,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	heap.Init(&m.queue)
	go m.run()
	return m
}

// Schedule registers fn to run after delay. A non-zero interval makes
// it repeat. The returned id can be passed to Cancel.
func (m *Manager) Schedule(delay, interval time.Duration, fn func()) int64 {
	m.mu.Lock()
	t := &task{
		id:       m.nextID,
		runAt:    time.Now().Add(delay),
		interval: interval,
		fn:       fn,
	}
	m.nextID++
	heap.Push(&m.queue, t)
	m.mu.Unlock()

	m.poke()
	return t.id
}

// Cancel removes a pending task. Cancelling an id that already fired
// (or never existed) is a no-op.
func (m *Manager) Cancel(id int64) {
	m.mu.Lock()
	for i, t := range m.queue {
		if t.id == id {
			heap.Remove(&m.queue, i)
			break
		}
	}
	m.mu.Unlock()

	m.poke()
}

// Stop shuts the scheduler down. Pending tasks do not fire.
func (m *Manager) Stop() {
	m.once.Do(func() { close(m.done) })
}

func (m *Manager) poke() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *Manager) run() {
	for {
		m.mu.Lock()
		var wait time.Duration = -1
		if m.queue.Len() > 0 {
			wait = time.Until(m.queue[0].runAt)
		}
		m.mu.Unlock()

		if wait < 0 {
			// Nothing queued, sleep until poked.
			select {
			case <-m.wake:
				continue
			case <-m.done:
				return
			}
		}

		t := time.NewTimer(wait)
		select {
		case <-t.C:
			m.fireDue()
		case <-m.wake:
			t.Stop()
		case <-m.done:
			t.Stop()
			return
		}
	}
}

func (m *Manager) fireDue() {
	now := time.Now()

	m.mu.Lock()
	var due []*task
	for m.queue.Len() > 0 && !m.queue[0].runAt.After(now) {
		t := heap.Pop(&m.queue).(*task)
		due = append(due, t)
		if t.interval > 0 {
			next := &task{
				id:       t.id,
				runAt:    now.Add(t.interval),
				interval: t.interval,
				fn:       t.fn,
			}
			heap.Push(&m.queue, next)
		}
	}
	m.mu.Unlock()

	for _, t := range due {
		go t.fn()
	}
}
