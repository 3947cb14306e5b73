package capture

import (
	"errors"
	"fmt"
)

// Kind classifies a controller failure.
type Kind int

const (
	KindUnknown Kind = iota
	UnsupportedEnvironment
	PermissionDenied
	DeviceNotFound
	DeviceError
	CaptureNotReady
	Busy
	TransportError
	ConnectivityError
	ServerRejected
	AlreadyActive
	Stale
	LowQuality
	Unexpected
)

var kindNames = map[Kind]string{
	KindUnknown:            "unknown",
	UnsupportedEnvironment: "unsupported_environment",
	PermissionDenied:       "permission_denied",
	DeviceNotFound:         "device_not_found",
	DeviceError:            "device_error",
	CaptureNotReady:        "capture_not_ready",
	Busy:                   "busy",
	TransportError:         "transport_error",
	ConnectivityError:      "connectivity_error",
	ServerRejected:         "server_rejected",
	AlreadyActive:          "already_active",
	Stale:                  "stale",
	LowQuality:             "low_quality",
	Unexpected:             "unexpected",
}

// String returns the snake_case code used in statuses and API bodies.
func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// MarshalText encodes the kind by code.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Warning reports whether the kind is rendered as a warning rather than an
// error.
func (k Kind) Warning() bool {
	switch k {
	case Busy, CaptureNotReady, AlreadyActive, LowQuality:
		return true
	}
	return false
}

// Error is returned by every controller operation that fails.
type Error struct {
	Kind       Kind
	StatusCode int    // HTTP status, for TransportError
	Message    string // localized, as shown to the user
	Err        error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := "capture: " + e.Kind.String()
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (HTTP %d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	} else if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error of the same kind, so errors.Is(err, &Error{Kind: Busy})
// works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.StatusCode == 0 || t.StatusCode == e.StatusCode)
}

// KindOf returns the kind of a controller error, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsKind reports whether err is a controller error of kind k.
func IsKind(err error, k Kind) bool {
	return err != nil && KindOf(err) == k
}

func newError(k Kind, err error) *Error {
	return &Error{Kind: k, Err: err}
}

var (
	errNoSurface          = errors.New("preview or capture surface not bound")
	errNotReady           = errors.New("video has no decoded frame")
	errSmallFrame         = errors.New("encoded frame below minimum size")
	errNoDevices          = errors.New("no media devices available")
	errStoppedDuringStart = errors.New("camera stopped during start")
)
