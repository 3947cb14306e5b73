// Package camera provides the camera session primitives used by the capture
// controller: configuration, media device interfaces, the live preview and
// the offscreen canvas frames are drawn into.
package camera

import (
	"fmt"
	"strings"
)

// Image formats supported by Canvas.ToDataURL.
const (
	FormatJPEG = "image/jpeg"
	FormatPNG  = "image/png"
)

// Facing modes, as requested from the device.
const (
	FacingUser        = "user"
	FacingEnvironment = "environment"
)

// Config holds the camera parameters for a session.
// A session copies the config when it starts; later changes apply to the
// next session only.
type Config struct {
	// === Resolution ===
	Width     int `json:"width" toml:"width"`         // Ideal frame width, also the capture fallback
	Height    int `json:"height" toml:"height"`       // Ideal frame height, also the capture fallback
	Framerate int `json:"framerate" toml:"framerate"` // Preview pump rate

	// === Device selection ===
	// FacingMode is "user" (front) or "environment" (rear).
	FacingMode string `json:"facing_mode" toml:"facing_mode"`

	// DeviceIndex overrides FacingMode when >= 0.
	DeviceIndex int `json:"device_index" toml:"device_index"`

	// === Encoding ===
	Format  string `json:"format" toml:"format"`   // image/jpeg or image/png
	Quality int    `json:"quality" toml:"quality"` // JPEG quality 1-100

	// MinPayloadBytes is the smallest data URL accepted as a real capture.
	MinPayloadBytes int `json:"min_payload_bytes" toml:"min_payload_bytes"`
}

// Limits for a USB/laptop webcam.
const (
	MaxWidth     = 3840
	MaxHeight    = 2160
	MaxFramerate = 60
)

// DefaultConfig returns the kiosk configuration: 640x480 front camera,
// JPEG at quality 80.
func DefaultConfig() Config {
	return Config{
		Width:           640,
		Height:          480,
		Framerate:       15,
		FacingMode:      FacingUser,
		DeviceIndex:     -1,
		Format:          FormatJPEG,
		Quality:         80,
		MinPayloadBytes: 1000,
	}
}

// Validate checks if the config values are within valid ranges.
// Returns a list of validation errors, or nil if valid.
func (c *Config) Validate() []string {
	var errors []string

	if c.Width < 160 || c.Width > MaxWidth {
		errors = append(errors, fmt.Sprintf("width must be between 160 and %d", MaxWidth))
	}
	if c.Height < 120 || c.Height > MaxHeight {
		errors = append(errors, fmt.Sprintf("height must be between 120 and %d", MaxHeight))
	}
	if c.Framerate < 1 || c.Framerate > MaxFramerate {
		errors = append(errors, fmt.Sprintf("framerate must be between 1 and %d", MaxFramerate))
	}
	if c.Quality < 1 || c.Quality > 100 {
		errors = append(errors, "quality must be between 1 and 100")
	}

	switch c.Format {
	case FormatJPEG, FormatPNG:
	default:
		errors = append(errors, "format must be image/jpeg or image/png")
	}

	switch c.FacingMode {
	case "", FacingUser, FacingEnvironment:
	default:
		errors = append(errors, "facing_mode must be user or environment")
	}

	if c.MinPayloadBytes < 1 {
		errors = append(errors, "min_payload_bytes must be positive")
	}

	return errors
}

// Err returns Validate's findings as a single error.
func (c *Config) Err() error {
	if errs := c.Validate(); len(errs) > 0 {
		return fmt.Errorf("camera config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Constraints derives the video-only device request for this config.
func (c Config) Constraints() Constraints {
	return Constraints{
		Video:       true,
		Width:       c.Width,
		Height:      c.Height,
		Framerate:   c.Framerate,
		FacingMode:  c.FacingMode,
		DeviceIndex: c.DeviceIndex,
	}
}
