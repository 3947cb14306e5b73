package status

import (
	"context"
	"log/slog"
	"sync"
)

// LogSink renders statuses as log lines.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a sink logging through l.
func NewLogSink(l *slog.Logger) *LogSink {
	return &LogSink{logger: l.With("component", "status")}
}

// Render implements Sink.
func (s *LogSink) Render(st Status) {
	level := slog.LevelInfo
	switch st.Kind {
	case KindWarning:
		level = slog.LevelWarn
	case KindError:
		level = slog.LevelError
	}
	s.logger.Log(context.Background(), level, st.Message, "kind", st.Kind.String(), "code", st.Code)
}

// Clear implements Sink.
func (s *LogSink) Clear(id string) {
	s.logger.Debug("status cleared", "id", id)
}

// Loading implements Sink.
func (s *LogSink) Loading(visible bool, text string) {
	if visible {
		s.logger.Info(text, "loading", true)
	}
}

// Multi fans out to several sinks.
type Multi []Sink

// Render implements Sink.
func (m Multi) Render(st Status) {
	for _, s := range m {
		s.Render(st)
	}
}

// Clear implements Sink.
func (m Multi) Clear(id string) {
	for _, s := range m {
		s.Clear(id)
	}
}

// Loading implements Sink.
func (m Multi) Loading(visible bool, text string) {
	for _, s := range m {
		s.Loading(visible, text)
	}
}

// Recorder keeps every rendered status. Useful for tests.
type Recorder struct {
	mu       sync.Mutex
	statuses []Status
	shown    *Status
	loading  bool
	caption  string
}

// Render implements Sink.
func (r *Recorder) Render(st Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, st)
	r.shown = &st
}

// Clear implements Sink.
func (r *Recorder) Clear(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.shown != nil && r.shown.ID == id {
		r.shown = nil
	}
}

// Loading implements Sink.
func (r *Recorder) Loading(visible bool, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loading = visible
	r.caption = text
}

// All returns every status rendered so far.
func (r *Recorder) All() []Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Status(nil), r.statuses...)
}

// Last returns the most recently rendered status.
func (r *Recorder) Last() (Status, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.statuses) == 0 {
		return Status{}, false
	}
	return r.statuses[len(r.statuses)-1], true
}

// Shown returns the status currently on screen.
func (r *Recorder) Shown() (Status, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.shown == nil {
		return Status{}, false
	}
	return *r.shown, true
}

// Codes returns the codes of every rendered status, in order.
func (r *Recorder) Codes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.statuses))
	for i, s := range r.statuses {
		out[i] = s.Code
	}
	return out
}

// LoadingVisible reports the loading indicator state and caption.
func (r *Recorder) LoadingVisible() (bool, string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loading, r.caption
}
