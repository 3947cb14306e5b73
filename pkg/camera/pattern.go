package camera

import (
	"context"
	"image"
	"image/color"
	"math/rand"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// PatternDevices is a synthetic camera producing a moving, noisy test
// pattern. It backs the CLI's "pattern" device and the controller tests.
type PatternDevices struct {
	// Fail, when set, is returned by GetUserMedia instead of a stream.
	Fail error

	// Blank makes streams deliver no frames until Unblank is called.
	Blank bool

	mu      sync.Mutex
	opened  int
	streams []*PatternStream
}

// GetUserMedia implements MediaDevices.
func (d *PatternDevices) GetUserMedia(ctx context.Context, c Constraints) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, &DeviceError{Name: ErrNameAbort, Err: err}
	}
	if d.Fail != nil {
		return nil, d.Fail
	}
	if !c.Video {
		return nil, &DeviceError{Name: ErrNameOverconstrained, Message: "video track required"}
	}

	w, h := c.Width, c.Height
	if w <= 0 || h <= 0 {
		w, h = 640, 480
	}
	facing := c.FacingMode
	if facing == "" {
		facing = FacingUser
	}

	s := &PatternStream{
		id:    uuid.NewString(),
		rng:   rand.New(rand.NewSource(int64(w*h + len(facing)))),
		blank: d.Blank,
	}
	s.track = &patternTrack{
		stream: s,
		settings: TrackSettings{
			Width:      w,
			Height:     h,
			Framerate:  c.Framerate,
			FacingMode: facing,
			DeviceID:   "pattern:" + facing,
		},
	}

	d.mu.Lock()
	d.opened++
	d.streams = append(d.streams, s)
	d.mu.Unlock()
	return s, nil
}

// Opened returns how many streams were acquired.
func (d *PatternDevices) Opened() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opened
}

// Streams returns every stream acquired so far.
func (d *PatternDevices) Streams() []*PatternStream {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*PatternStream(nil), d.streams...)
}

// Live returns how many acquired streams still have a running track.
func (d *PatternDevices) Live() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, s := range d.streams {
		if !s.Stopped() {
			n++
		}
	}
	return n
}

// PatternStream is a stream from PatternDevices.
type PatternStream struct {
	id    string
	track *patternTrack

	mu      sync.Mutex
	rng     *rand.Rand
	frame   int
	blank   bool
	stopped atomic.Bool
}

// ID implements Stream.
func (s *PatternStream) ID() string { return s.id }

// Tracks implements Stream.
func (s *PatternStream) Tracks() []Track { return []Track{s.track} }

// Stopped reports whether the track was stopped.
func (s *PatternStream) Stopped() bool { return s.stopped.Load() }

// Unblank lets a Blank stream start delivering frames.
func (s *PatternStream) Unblank() {
	s.mu.Lock()
	s.blank = false
	s.mu.Unlock()
}

// ReadFrame implements Stream.
func (s *PatternStream) ReadFrame(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.stopped.Load() {
		return nil, ErrStreamStopped
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.blank {
		return nil, nil
	}

	set := s.track.settings
	img := image.NewRGBA(image.Rect(0, 0, set.Width, set.Height))
	bar := (s.frame * 8) % set.Width
	for y := 0; y < set.Height; y++ {
		for x := 0; x < set.Width; x++ {
			n := uint8(s.rng.Intn(64))
			v := uint8((x * 255) / set.Width)
			if x >= bar && x < bar+16 {
				v = 255 - v
			}
			img.Pix[img.PixOffset(x, y)+0] = v/2 + n
			img.Pix[img.PixOffset(x, y)+1] = uint8((y*255)/set.Height)/2 + n
			img.Pix[img.PixOffset(x, y)+2] = 128 + n
			img.Pix[img.PixOffset(x, y)+3] = 255
		}
	}
	s.frame++
	return img, nil
}

type patternTrack struct {
	stream   *PatternStream
	settings TrackSettings
}

func (t *patternTrack) Kind() string            { return "video" }
func (t *patternTrack) Label() string           { return "Test pattern (" + t.settings.FacingMode + ")" }
func (t *patternTrack) Settings() TrackSettings { return t.settings }
func (t *patternTrack) Stop()                   { t.stream.stopped.Store(true) }

// Solid returns a w x h image filled with c. Useful for tests.
func Solid(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}
