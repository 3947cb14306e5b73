package camera

import (
	"context"
	"errors"
	"image"
	"log/slog"
	"sync"
	"time"
)

// ReadyState mirrors the readiness levels of a video element.
type ReadyState int

const (
	HaveNothing     ReadyState = iota // no stream data yet
	HaveMetadata                      // frame geometry known
	HaveCurrentData                   // a decoded frame is available
	HaveFutureData
	HaveEnoughData
)

// String returns the readiness name.
func (r ReadyState) String() string {
	switch r {
	case HaveNothing:
		return "nothing"
	case HaveMetadata:
		return "metadata"
	case HaveCurrentData:
		return "current_data"
	case HaveFutureData:
		return "future_data"
	case HaveEnoughData:
		return "enough_data"
	default:
		return "unknown"
	}
}

// Preview is the live preview surface: it plays a bound stream, keeps the
// most recent frame and reports readiness. It never owns the stream; the
// controller that bound it stops the tracks.
type Preview struct {
	interval time.Duration
	logger   *slog.Logger

	mu       sync.RWMutex
	source   Stream
	frame    image.Image
	state    ReadyState
	width    int
	height   int
	metadata chan struct{} // closed on the first frame of the current source
	cancel   context.CancelFunc
	done     chan struct{}

	// OnFrame is called from the pump goroutine with every frame read.
	OnFrame func(img image.Image)
}

// PreviewOption configures a Preview.
type PreviewOption func(*Preview)

// WithFrameInterval sets the pacing of the frame pump.
func WithFrameInterval(d time.Duration) PreviewOption {
	return func(p *Preview) { p.interval = d }
}

// WithPreviewLogger sets the structured logger.
func WithPreviewLogger(l *slog.Logger) PreviewOption {
	return func(p *Preview) { p.logger = l }
}

// NewPreview creates an unbound preview.
func NewPreview(opts ...PreviewOption) *Preview {
	p := &Preview{
		interval: time.Second / 15,
		logger:   slog.Default(),
		metadata: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With("component", "camera.preview")
	return p
}

// SetSource binds s to the preview, or detaches the current stream when s
// is nil. Any running pump is stopped and readiness resets to HaveNothing.
func (p *Preview) SetSource(s Stream) {
	p.stopPump()

	p.mu.Lock()
	p.source = s
	p.frame = nil
	p.state = HaveNothing
	p.width, p.height = 0, 0
	p.metadata = make(chan struct{})
	p.mu.Unlock()
}

// Source returns the bound stream, or nil.
func (p *Preview) Source() Stream {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.source
}

// Play starts pulling frames from the bound stream.
// Calling Play while already playing is a no-op.
func (p *Preview) Play(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.source == nil {
		return ErrNoSource
	}
	if p.cancel != nil {
		return nil
	}

	// The pump outlives the Play call; only SetSource stops it.
	pumpCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.pump(pumpCtx, p.source, p.metadata, p.done)
	return nil
}

// WaitMetadata blocks until the first frame of the bound stream arrived.
func (p *Preview) WaitMetadata(ctx context.Context) error {
	p.mu.RLock()
	if p.source == nil {
		p.mu.RUnlock()
		return ErrNoSource
	}
	ch := p.metadata
	p.mu.RUnlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ReadyState reports how much stream data is available.
func (p *Preview) ReadyState() ReadyState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// VideoSize returns the native size of the live video, or zeros before the
// first frame.
func (p *Preview) VideoSize() (int, int) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.width, p.height
}

// CurrentFrame returns the most recent frame, or nil.
func (p *Preview) CurrentFrame() image.Image {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.frame
}

func (p *Preview) stopPump() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

func (p *Preview) pump(ctx context.Context, src Stream, metadata chan struct{}, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	first := true
	for {
		img, err := src.ReadFrame(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, ErrStreamStopped) {
				return
			}
			p.logger.Debug("frame read failed", "error", err)
		} else if img != nil {
			b := img.Bounds()
			p.mu.Lock()
			if p.source != src {
				p.mu.Unlock()
				return
			}
			p.frame = img
			p.width, p.height = b.Dx(), b.Dy()
			p.state = HaveEnoughData
			p.mu.Unlock()

			if first {
				first = false
				close(metadata)
			}
			if p.OnFrame != nil {
				p.OnFrame(img)
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
