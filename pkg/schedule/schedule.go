// Package schedule provides cancellable delayed actions.
//
// Redirects after a successful recognition and the auto-dismiss of success
// statuses are both delayed side effects. Returning them as an Action lets
// callers cancel them on teardown and lets tests drive them with a Manual
// clock instead of racing a real timer.
package schedule

import (
	"sync"
	"time"
)

// Scheduler runs a function once after a delay.
type Scheduler interface {
	After(d time.Duration, fn func()) *Action
}

// Action is a single scheduled call.
type Action struct {
	due  time.Time
	fn   func()
	stop func() bool

	mu        sync.Mutex
	fired     bool
	cancelled bool
	done      chan struct{}
}

func newAction(due time.Time, fn func()) *Action {
	return &Action{
		due:  due,
		fn:   fn,
		done: make(chan struct{}),
	}
}

// run executes the action unless it was cancelled or already ran.
func (a *Action) run() {
	a.mu.Lock()
	if a.fired || a.cancelled {
		a.mu.Unlock()
		return
	}
	a.fired = true
	a.mu.Unlock()

	defer close(a.done)
	a.fn()
}

// Cancel prevents the action from running.
// Returns false if the action already ran or was already cancelled.
func (a *Action) Cancel() bool {
	if a == nil {
		return false
	}
	a.mu.Lock()
	if a.fired || a.cancelled {
		a.mu.Unlock()
		return false
	}
	a.cancelled = true
	stop := a.stop
	a.mu.Unlock()

	if stop != nil {
		stop()
	}
	close(a.done)
	return true
}

// Done is closed once the action has run or been cancelled.
func (a *Action) Done() <-chan struct{} {
	return a.done
}

// Fired reports whether the action ran.
func (a *Action) Fired() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.fired
}

// Cancelled reports whether the action was cancelled before running.
func (a *Action) Cancelled() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cancelled
}

// Due returns when the action is scheduled to run.
func (a *Action) Due() time.Time {
	return a.due
}

// Real schedules actions on wall-clock timers.
type Real struct{}

// After implements Scheduler using time.AfterFunc.
func (Real) After(d time.Duration, fn func()) *Action {
	a := newAction(time.Now().Add(d), fn)
	a.mu.Lock()
	t := time.AfterFunc(d, a.run)
	a.stop = t.Stop
	a.mu.Unlock()
	return a
}
