package detection

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-facegate/pkg/camera"
)

// ErrNoFrame is returned by Sample when the source has nothing to offer.
var ErrNoFrame = errors.New("detection: no frame available")

// FrameSource returns the latest frame, or nil.
type FrameSource func() image.Image

// Event is published when face presence changes.
type Event struct {
	Present bool       `json:"present"`
	Count   int        `json:"count"`
	Best    *Detection `json:"best,omitempty"`
	At      time.Time  `json:"at"`
}

// Loop samples a frame source at a fixed interval and runs a detector on it.
type Loop struct {
	det     Detector
	src     FrameSource
	cfg     Config
	onEvent func(Event)
	logger  *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	present bool
	last    Event
}

// LoopOption configures a Loop.
type LoopOption func(*Loop)

// WithConfig overrides the loop configuration.
func WithConfig(cfg Config) LoopOption {
	return func(l *Loop) { l.cfg = cfg }
}

// WithLogger sets the loop logger.
func WithLogger(logger *slog.Logger) LoopOption {
	return func(l *Loop) { l.logger = logger }
}

// NewLoop creates a stopped loop. onEvent may be nil.
func NewLoop(det Detector, src FrameSource, onEvent func(Event), opts ...LoopOption) *Loop {
	l := &Loop{
		det:     det,
		src:     src,
		cfg:     DefaultConfig(),
		onEvent: onEvent,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.With("component", "detection")
	if l.cfg.Interval <= 0 {
		l.cfg.Interval = DefaultConfig().Interval
	}
	return l
}

// Start begins sampling. Starting a running loop is a no-op.
func (l *Loop) Start(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.done = make(chan struct{})
	l.present = false
	go l.run(ctx, l.done)
}

// Stop halts sampling and waits for the loop to exit. Safe to call
// repeatedly.
func (l *Loop) Stop() {
	l.mu.Lock()
	cancel, done := l.cancel, l.done
	l.cancel, l.done = nil, nil
	l.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Running reports whether the loop is sampling.
func (l *Loop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cancel != nil
}

// Last returns the most recent sample result.
func (l *Loop) Last() Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.last
}

func (l *Loop) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(l.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ev, err := l.Sample()
			if err != nil {
				if !errors.Is(err, ErrNoFrame) {
					l.logger.Debug("detection failed", "error", err)
				}
				continue
			}
			l.publish(ctx, ev)
		}
	}
}

func (l *Loop) publish(ctx context.Context, ev Event) {
	l.mu.Lock()
	changed := ev.Present != l.present
	l.present = ev.Present
	l.mu.Unlock()

	if !changed || l.onEvent == nil || ctx.Err() != nil {
		return
	}
	l.onEvent(ev)
}

// Sample runs one detection pass on the current frame.
func (l *Loop) Sample() (Event, error) {
	img := l.src()
	if img == nil {
		return Event{}, ErrNoFrame
	}

	data, err := camera.Encode(img, camera.FormatJPEG, 70)
	if err != nil {
		return Event{}, fmt.Errorf("encode frame: %w", err)
	}
	dets, err := l.det.Detect(data)
	if err != nil {
		return Event{}, fmt.Errorf("detect: %w", err)
	}
	dets = Filter(dets, l.cfg.MinFaceArea)

	ev := Event{
		Present: len(dets) > 0,
		Count:   len(dets),
		At:      time.Now(),
	}
	if best := SelectBest(dets); best != nil {
		b := *best
		ev.Best = &b
	}

	l.mu.Lock()
	l.last = ev
	l.mu.Unlock()
	return ev, nil
}
