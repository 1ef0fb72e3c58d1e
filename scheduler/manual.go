package scheduler

import (
	"sync"
	"time"
)

// Manual is a Scheduler driven by hand: time only moves on Advance and
// posted functions only run on RunPending. Used by tests.
type Manual struct {
	mu     sync.Mutex
	now    time.Time
	posted []func()
	tasks  []*manualTask
}

type manualTask struct {
	m         *Manual
	interval  time.Duration
	next      time.Time
	fn        func()
	cancelled bool
}

func (t *manualTask) Cancel() {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	t.cancelled = true
}

func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Manual) Post(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.posted = append(m.posted, fn)
}

func (m *Manual) Every(interval time.Duration, fn func()) Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &manualTask{m: m, interval: interval, next: m.now.Add(interval), fn: fn}
	m.tasks = append(m.tasks, t)
	return t
}

// RunPending runs posted functions, including ones they post, in order.
func (m *Manual) RunPending() {
	for {
		m.mu.Lock()
		if len(m.posted) == 0 {
			m.mu.Unlock()
			return
		}
		fn := m.posted[0]
		m.posted = m.posted[1:]
		m.mu.Unlock()
		fn()
	}
}

// Advance moves the clock forward by d, firing due ticks in time order.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now.Add(d)
	m.mu.Unlock()

	for {
		m.mu.Lock()
		var due *manualTask
		for _, t := range m.tasks {
			if t.cancelled || t.next.After(target) {
				continue
			}
			if due == nil || t.next.Before(due.next) {
				due = t
			}
		}
		if due == nil {
			m.now = target
			m.mu.Unlock()
			m.RunPending()
			return
		}
		m.now = due.next
		due.next = due.next.Add(due.interval)
		m.mu.Unlock()

		due.fn()
		m.RunPending()
	}
}

// Active counts tasks that have not been cancelled.
func (m *Manual) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.tasks {
		if !t.cancelled {
			n++
		}
	}
	return n
}
