package schedule

import (
	"sort"
	"sync"
	"time"
)

// Manual is a Scheduler driven by an explicit virtual clock.
// Nothing runs until Advance moves the clock past an action's due time.
type Manual struct {
	mu      sync.Mutex
	now     time.Time
	pending []*Action
}

// NewManual creates a manual scheduler starting at the given time.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

// After implements Scheduler.
func (m *Manual) After(d time.Duration, fn func()) *Action {
	m.mu.Lock()
	defer m.mu.Unlock()

	a := newAction(m.now.Add(d), fn)
	m.pending = append(m.pending, a)
	return a
}

// Now returns the virtual time.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves the clock forward and runs every action that became due,
// in due order. Actions are run without holding the scheduler lock so they
// may schedule further actions.
func (m *Manual) Advance(d time.Duration) int {
	m.mu.Lock()
	m.now = m.now.Add(d)
	now := m.now

	var due, rest []*Action
	for _, a := range m.pending {
		if !a.due.After(now) {
			due = append(due, a)
		} else {
			rest = append(rest, a)
		}
	}
	m.pending = rest
	m.mu.Unlock()

	sort.SliceStable(due, func(i, j int) bool { return due[i].due.Before(due[j].due) })

	ran := 0
	for _, a := range due {
		if a.Cancelled() {
			continue
		}
		a.run()
		ran++
	}
	return ran
}

// Pending returns the number of actions not yet run or cancelled.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, a := range m.pending {
		if !a.Cancelled() {
			n++
		}
	}
	return n
}
