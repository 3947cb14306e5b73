package camera

import (
	"context"
	"errors"
	"fmt"
	"image"
)

// Device error names. These follow the names browsers use for getUserMedia
// failures so backends and kiosk pages agree on them.
const (
	ErrNameNotAllowed       = "NotAllowedError"
	ErrNamePermissionDenied = "PermissionDeniedError"
	ErrNameSecurity         = "SecurityError"
	ErrNameNotFound         = "NotFoundError"
	ErrNameDevicesNotFound  = "DevicesNotFoundError"
	ErrNameNotReadable      = "NotReadableError"
	ErrNameOverconstrained  = "OverconstrainedError"
	ErrNameAbort            = "AbortError"
)

var (
	// ErrNoSource is returned by Preview operations when no stream is bound.
	ErrNoSource = errors.New("camera: no stream bound")

	// ErrStreamStopped is returned by ReadFrame after the stream's tracks stopped.
	ErrStreamStopped = errors.New("camera: stream stopped")
)

// DeviceError is a named failure from media device acquisition.
type DeviceError struct {
	Name    string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *DeviceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("camera: %s: %s", e.Name, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("camera: %s: %v", e.Name, e.Err)
	}
	return "camera: " + e.Name
}

// Unwrap returns the underlying error.
func (e *DeviceError) Unwrap() error {
	return e.Err
}

// ErrorName extracts the device error name from err, or "" if err is not
// a DeviceError.
func ErrorName(err error) string {
	var de *DeviceError
	if errors.As(err, &de) {
		return de.Name
	}
	return ""
}

// Constraints describes the stream requested from a device.
type Constraints struct {
	Video       bool
	Audio       bool
	Width       int // ideal width
	Height      int // ideal height
	Framerate   int
	FacingMode  string
	DeviceIndex int // -1 selects by FacingMode
}

// TrackSettings are the values a device actually applied.
type TrackSettings struct {
	Width      int
	Height     int
	Framerate  int
	FacingMode string
	DeviceID   string
}

// Track is one media track of a stream.
type Track interface {
	Kind() string // "video" or "audio"
	Label() string
	Settings() TrackSettings
	// Stop releases the underlying device. Safe to call more than once.
	Stop()
}

// Stream is an acquired media stream.
type Stream interface {
	ID() string
	Tracks() []Track
	// ReadFrame blocks until the next video frame is available.
	ReadFrame(ctx context.Context) (image.Image, error)
}

// MediaDevices acquires streams from camera hardware.
type MediaDevices interface {
	GetUserMedia(ctx context.Context, c Constraints) (Stream, error)
}

// MediaDevicesFunc adapts a function to MediaDevices.
type MediaDevicesFunc func(ctx context.Context, c Constraints) (Stream, error)

// GetUserMedia calls f.
func (f MediaDevicesFunc) GetUserMedia(ctx context.Context, c Constraints) (Stream, error) {
	return f(ctx, c)
}

// StopAll stops every track of s.
func StopAll(s Stream) {
	if s == nil {
		return
	}
	for _, t := range s.Tracks() {
		t.Stop()
	}
}
