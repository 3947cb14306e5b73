// Package status renders controller feedback: a single current status that
// each new status replaces, plus a loading indicator with a caption.
package status

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-facegate/pkg/schedule"
)

// Kind classifies a status for rendering and dismissal.
type Kind int

const (
	KindInfo Kind = iota
	KindSuccess
	KindWarning
	KindError
)

// String returns the kind name used on the wire.
func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindWarning:
		return "warning"
	case KindError:
		return "error"
	default:
		return "info"
	}
}

// MarshalText encodes the kind by name.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Status is one rendered message.
type Status struct {
	ID      string    `json:"id"`
	Kind    Kind      `json:"kind"`
	Code    string    `json:"code,omitempty"` // error kind name, when applicable
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Sink is where statuses are rendered: the kiosk page, a log, a test
// recorder.
type Sink interface {
	// Render replaces whatever status is shown.
	Render(s Status)
	// Clear removes the shown status.
	Clear(id string)
	// Loading shows or hides the loading indicator.
	Loading(visible bool, text string)
}

// DefaultDismissAfter is how long success statuses stay visible.
const DefaultDismissAfter = 5 * time.Second

// Display is the single status-display operation for one controller.
type Display struct {
	sink         Sink
	sched        schedule.Scheduler
	dismissAfter time.Duration
	now          func() time.Time

	// render is held across a state change and its sink call so the sink
	// sees changes in the order the display applied them.
	render sync.Mutex

	mu      sync.Mutex
	current *Status
	dismiss *schedule.Action
	loading bool
}

// Option configures a Display.
type Option func(*Display)

// WithScheduler sets the scheduler used for auto-dismiss.
func WithScheduler(s schedule.Scheduler) Option {
	return func(d *Display) { d.sched = s }
}

// WithDismissAfter sets how long success statuses stay visible.
func WithDismissAfter(t time.Duration) Option {
	return func(d *Display) { d.dismissAfter = t }
}

// WithClock sets the time source for Status.At.
func WithClock(now func() time.Time) Option {
	return func(d *Display) { d.now = now }
}

// NewDisplay creates a display rendering to sink.
func NewDisplay(sink Sink, opts ...Option) *Display {
	d := &Display{
		sink:         sink,
		sched:        schedule.Real{},
		dismissAfter: DefaultDismissAfter,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.sink == nil {
		d.sink = NewLogSink(slog.Default())
	}
	return d
}

// Show replaces the current status. Success statuses are cleared after the
// dismiss delay unless replaced first; other kinds persist.
func (d *Display) Show(kind Kind, code, message string) Status {
	s := Status{
		ID:      uuid.NewString(),
		Kind:    kind,
		Code:    code,
		Message: message,
		At:      d.now(),
	}

	d.render.Lock()
	defer d.render.Unlock()

	d.mu.Lock()
	d.dismiss.Cancel()
	d.dismiss = nil
	d.current = &s
	if kind == KindSuccess && d.dismissAfter > 0 {
		id := s.ID
		d.dismiss = d.sched.After(d.dismissAfter, func() { d.clearIf(id) })
	}
	d.mu.Unlock()

	d.sink.Render(s)
	return s
}

// Success shows a success status.
func (d *Display) Success(message string) Status {
	return d.Show(KindSuccess, "", message)
}

// Info shows an informational status.
func (d *Display) Info(message string) Status {
	return d.Show(KindInfo, "", message)
}

// Warning shows a warning with an error code.
func (d *Display) Warning(code, message string) Status {
	return d.Show(KindWarning, code, message)
}

// Error shows an error with an error code.
func (d *Display) Error(code, message string) Status {
	return d.Show(KindError, code, message)
}

// Clear removes the current status.
func (d *Display) Clear() {
	d.render.Lock()
	defer d.render.Unlock()

	d.mu.Lock()
	cur := d.current
	d.dismiss.Cancel()
	d.dismiss = nil
	d.current = nil
	d.mu.Unlock()

	if cur != nil {
		d.sink.Clear(cur.ID)
	}
}

func (d *Display) clearIf(id string) {
	d.render.Lock()
	defer d.render.Unlock()

	d.mu.Lock()
	if d.current == nil || d.current.ID != id {
		d.mu.Unlock()
		return
	}
	d.current = nil
	d.dismiss = nil
	d.mu.Unlock()

	d.sink.Clear(id)
}

// Current returns the shown status, if any.
func (d *Display) Current() (Status, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.current == nil {
		return Status{}, false
	}
	return *d.current, true
}

// Loading shows the loading indicator with a caption.
func (d *Display) Loading(text string) {
	d.render.Lock()
	defer d.render.Unlock()

	d.mu.Lock()
	d.loading = true
	d.mu.Unlock()
	d.sink.Loading(true, text)
}

// Idle hides the loading indicator.
func (d *Display) Idle() {
	d.render.Lock()
	defer d.render.Unlock()

	d.mu.Lock()
	was := d.loading
	d.loading = false
	d.mu.Unlock()
	if was {
		d.sink.Loading(false, "")
	}
}

// IsLoading reports whether the loading indicator is visible.
func (d *Display) IsLoading() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.loading
}
