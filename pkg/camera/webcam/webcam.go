// Package webcam implements camera.MediaDevices on top of OpenCV capture
// devices (V4L2 on Linux, AVFoundation on macOS).
package webcam

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io/fs"
	"log/slog"
	"os"
	"runtime"
	"sync"

	"github.com/google/uuid"
	"gocv.io/x/gocv"

	"github.com/teslashibe/go-facegate/pkg/camera"
)

// MaxProbe is how many device indexes List inspects.
const MaxProbe = 8

// Devices opens local cameras by index. FacingMode maps to an index when
// the constraints do not name one explicitly.
type Devices struct {
	// Facing maps a facing mode to a device index.
	Facing map[string]int

	Logger *slog.Logger
}

// New returns Devices with the usual laptop layout: the front camera is
// index 0 and a rear/external camera is index 1.
func New(logger *slog.Logger) *Devices {
	if logger == nil {
		logger = slog.Default()
	}
	return &Devices{
		Facing: map[string]int{
			camera.FacingUser:        0,
			camera.FacingEnvironment: 1,
		},
		Logger: logger.With("component", "camera.webcam"),
	}
}

func (d *Devices) index(c camera.Constraints) int {
	if c.DeviceIndex >= 0 {
		return c.DeviceIndex
	}
	if i, ok := d.Facing[c.FacingMode]; ok {
		return i
	}
	return 0
}

// probe maps filesystem state of a V4L2 node to a device error name.
func probe(index int) error {
	if runtime.GOOS != "linux" {
		return nil
	}
	path := fmt.Sprintf("/dev/video%d", index)
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	switch {
	case err == nil:
		f.Close()
		return nil
	case errors.Is(err, fs.ErrNotExist):
		return &camera.DeviceError{Name: camera.ErrNameNotFound, Message: path + " does not exist", Err: err}
	case errors.Is(err, fs.ErrPermission):
		return &camera.DeviceError{Name: camera.ErrNameNotAllowed, Message: "no access to " + path, Err: err}
	default:
		return &camera.DeviceError{Name: camera.ErrNameNotReadable, Err: err}
	}
}

// GetUserMedia implements camera.MediaDevices.
func (d *Devices) GetUserMedia(ctx context.Context, c camera.Constraints) (camera.Stream, error) {
	if !c.Video {
		return nil, &camera.DeviceError{Name: camera.ErrNameOverconstrained, Message: "video track required"}
	}
	if c.Audio {
		return nil, &camera.DeviceError{Name: camera.ErrNameOverconstrained, Message: "audio capture not supported"}
	}
	if err := ctx.Err(); err != nil {
		return nil, &camera.DeviceError{Name: camera.ErrNameAbort, Err: err}
	}

	idx := d.index(c)
	if err := probe(idx); err != nil {
		return nil, err
	}

	vc, err := gocv.OpenVideoCapture(idx)
	if err != nil {
		return nil, &camera.DeviceError{Name: camera.ErrNameNotReadable, Err: err}
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, &camera.DeviceError{Name: camera.ErrNameNotFound, Message: fmt.Sprintf("camera %d did not open", idx)}
	}

	if c.Width > 0 && c.Height > 0 {
		vc.Set(gocv.VideoCaptureFrameWidth, float64(c.Width))
		vc.Set(gocv.VideoCaptureFrameHeight, float64(c.Height))
	}
	if c.Framerate > 0 {
		vc.Set(gocv.VideoCaptureFPS, float64(c.Framerate))
	}

	s := &Stream{
		id:  uuid.NewString(),
		vc:  vc,
		mat: gocv.NewMat(),
	}
	s.track = &track{
		stream: s,
		settings: camera.TrackSettings{
			Width:      int(vc.Get(gocv.VideoCaptureFrameWidth)),
			Height:     int(vc.Get(gocv.VideoCaptureFrameHeight)),
			Framerate:  int(vc.Get(gocv.VideoCaptureFPS)),
			FacingMode: c.FacingMode,
			DeviceID:   fmt.Sprintf("video%d", idx),
		},
	}

	d.Logger.Info("camera opened",
		"device", s.track.settings.DeviceID,
		"width", s.track.settings.Width,
		"height", s.track.settings.Height)
	return s, nil
}

// Info describes a local capture device.
type Info struct {
	Index    int    `json:"index"`
	DeviceID string `json:"device_id"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
}

// List probes device indexes and returns the cameras that open.
func (d *Devices) List() []Info {
	var out []Info
	for i := 0; i < MaxProbe; i++ {
		if probe(i) != nil {
			continue
		}
		vc, err := gocv.OpenVideoCapture(i)
		if err != nil {
			continue
		}
		if vc.IsOpened() {
			out = append(out, Info{
				Index:    i,
				DeviceID: fmt.Sprintf("video%d", i),
				Width:    int(vc.Get(gocv.VideoCaptureFrameWidth)),
				Height:   int(vc.Get(gocv.VideoCaptureFrameHeight)),
			})
		}
		vc.Close()
	}
	return out
}

// Stream is an open OpenCV capture.
type Stream struct {
	id    string
	track *track

	mu      sync.Mutex
	vc      *gocv.VideoCapture
	mat     gocv.Mat
	stopped bool
}

// ID implements camera.Stream.
func (s *Stream) ID() string { return s.id }

// Tracks implements camera.Stream.
func (s *Stream) Tracks() []camera.Track { return []camera.Track{s.track} }

// ReadFrame implements camera.Stream. The read blocks for one frame period.
func (s *Stream) ReadFrame(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return nil, camera.ErrStreamStopped
	}
	if ok := s.vc.Read(&s.mat); !ok {
		return nil, fmt.Errorf("webcam: cannot read frame")
	}
	if s.mat.Empty() {
		return nil, fmt.Errorf("webcam: frame is empty")
	}
	return s.mat.ToImage()
}

func (s *Stream) stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	s.stopped = true
	s.vc.Close()
	s.mat.Close()
}

type track struct {
	stream   *Stream
	settings camera.TrackSettings
}

func (t *track) Kind() string                   { return "video" }
func (t *track) Label() string                  { return "OpenCV " + t.settings.DeviceID }
func (t *track) Settings() camera.TrackSettings { return t.settings }
func (t *track) Stop()                          { t.stream.stop() }
