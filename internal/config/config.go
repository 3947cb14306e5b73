// Package config holds the facegate command configuration.
//
// Values are layered: defaults, then the TOML file, then FACEGATE_*
// environment variables (optionally loaded from .env), then flags the user
// set explicitly on the command line.
package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/teslashibe/go-facegate/internal/httpc"
	"github.com/teslashibe/go-facegate/pkg/camera"
	"github.com/teslashibe/go-facegate/pkg/capture"
	"github.com/teslashibe/go-facegate/pkg/detection"
	"github.com/teslashibe/go-facegate/pkg/recognition"
	"github.com/teslashibe/go-facegate/pkg/status"
)

// Defaults that are not owned by another package.
const (
	DefaultBackend = "http://localhost:8000"
	DefaultAddr    = ":8080"
	DefaultDevice  = "0"

	// DevicePattern selects the synthetic camera.
	DevicePattern = "pattern"
)

// Config holds CLI configuration for facegate.
type Config struct {
	LogLevel string
	Language string

	Backend     string
	CSRFCookie  string
	HTTPTimeout time.Duration

	Device  string
	Preset  string
	Quality int

	PagePath    string
	LoginPath   string
	ListingPath string

	RedirectDelay   time.Duration
	MetadataTimeout time.Duration
	DismissAfter    time.Duration

	Addr      string
	StaticDir string

	QualityGate bool
	Detection   bool
	ModelPath   string
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		LogLevel:        "info",
		Language:        capture.DefaultLanguage,
		Backend:         DefaultBackend,
		CSRFCookie:      recognition.DefaultCSRFCookie,
		HTTPTimeout:     httpc.DefaultTimeout,
		Device:          DefaultDevice,
		Preset:          camera.PresetDefault,
		PagePath:        capture.DefaultPagePath,
		LoginPath:       capture.DefaultLoginPath,
		ListingPath:     capture.DefaultListingPath,
		RedirectDelay:   capture.DefaultRedirectDelay,
		MetadataTimeout: capture.DefaultMetadataTimeout,
		DismissAfter:    status.DefaultDismissAfter,
		Addr:            DefaultAddr,
		ModelPath:       detection.DefaultConfig().ModelPath,
	}
}

// Validate checks the configuration for errors and normalizes it.
func (c *Config) Validate() error {
	c.Backend = strings.TrimRight(strings.TrimSpace(c.Backend), "/")
	if c.Backend == "" {
		return fmt.Errorf("backend is required")
	}
	u, err := url.Parse(c.Backend)
	if err != nil {
		return fmt.Errorf("backend: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("backend must be an http or https URL, got %q", c.Backend)
	}

	if c.Device != DevicePattern {
		if _, err := c.DeviceIndex(); err != nil {
			return err
		}
	}

	if camera.GetPreset(c.Preset) == nil {
		return fmt.Errorf("unknown preset %q (available: %s)", c.Preset, strings.Join(camera.PresetNames(), ", "))
	}
	if c.Quality < 0 || c.Quality > 100 {
		return fmt.Errorf("quality must be between 1 and 100, or 0 to keep the preset")
	}

	for name, p := range map[string]string{
		"page-path":    c.PagePath,
		"login-path":   c.LoginPath,
		"listing-path": c.ListingPath,
	} {
		if !strings.HasPrefix(p, "/") {
			return fmt.Errorf("%s must start with /, got %q", name, p)
		}
	}

	if c.RedirectDelay < 0 {
		return fmt.Errorf("redirect delay must not be negative")
	}
	if c.MetadataTimeout <= 0 {
		return fmt.Errorf("metadata timeout must be positive")
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("http timeout must be positive")
	}
	if c.DismissAfter <= 0 {
		return fmt.Errorf("dismiss-after must be positive")
	}

	if c.Language == "" {
		c.Language = capture.DefaultLanguage
	}
	if c.CSRFCookie == "" {
		c.CSRFCookie = recognition.DefaultCSRFCookie
	}
	if c.Detection && c.ModelPath == "" {
		return fmt.Errorf("detection needs a model path")
	}
	return nil
}

// UsePattern reports whether the synthetic camera is selected.
func (c Config) UsePattern() bool {
	return c.Device == DevicePattern
}

// DeviceIndex parses Device as a camera index.
func (c Config) DeviceIndex() (int, error) {
	i, err := strconv.Atoi(c.Device)
	if err != nil || i < 0 {
		return 0, fmt.Errorf("device must be %q or a camera index, got %q", DevicePattern, c.Device)
	}
	return i, nil
}

// CameraConfig resolves the preset with the quality and device overrides.
func (c Config) CameraConfig() (camera.Config, error) {
	p := camera.GetPreset(c.Preset)
	if p == nil {
		return camera.Config{}, fmt.Errorf("unknown preset %q", c.Preset)
	}
	cfg := *p
	if c.Quality > 0 {
		cfg.Quality = c.Quality
	}
	if !c.UsePattern() {
		if i, err := c.DeviceIndex(); err == nil {
			cfg.DeviceIndex = i
		}
	}
	if err := cfg.Err(); err != nil {
		return camera.Config{}, err
	}
	return cfg, nil
}

// configSetter applies values while respecting flag precedence. A value is
// only applied when the matching flag was not set explicitly.
type configSetter struct {
	changed map[string]bool
}

func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

func (s *configSetter) setInt(flag string, value int, dst *int) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}

func (s *configSetter) setBool(flag string, value *bool, dst *bool) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setIntFromString parses environment values, which arrive as strings.
func (s *configSetter) setIntFromString(flag, value string, dst *int) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if i <= 0 {
		return nil
	}
	*dst = i
	return nil
}

// setBoolFromString accepts "true" and "1" as true.
func (s *configSetter) setBoolFromString(flag, value string, dst *bool) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value == "true" || value == "1"
}
