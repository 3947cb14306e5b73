package capture

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/teslashibe/go-facegate/pkg/camera"
	"github.com/teslashibe/go-facegate/pkg/detection"
	"github.com/teslashibe/go-facegate/pkg/schedule"
	"github.com/teslashibe/go-facegate/pkg/status"
)

// ErrNoBackend is returned by New when no backend was configured.
var ErrNoBackend = errors.New("capture: backend is required")

type options struct {
	devices         camera.MediaDevices
	video           Video
	canvas          Surface
	backend         Backend
	display         *status.Display
	nav             Navigator
	sched           schedule.Scheduler
	cameras         *camera.Manager
	gate            QualityGate
	loop            *detection.Loop
	logger          *slog.Logger
	language        string
	pagePath        string
	loginPath       string
	listingPath     string
	redirectDelay   time.Duration
	metadataTimeout time.Duration
	now             func() time.Time
}

func defaultOptions() *options {
	return &options{
		video:           camera.NewPreview(),
		canvas:          camera.NewCanvas(),
		sched:           schedule.Real{},
		cameras:         camera.NewManager(camera.DefaultConfig()),
		logger:          slog.Default(),
		language:        DefaultLanguage,
		pagePath:        DefaultPagePath,
		loginPath:       DefaultLoginPath,
		listingPath:     DefaultListingPath,
		redirectDelay:   DefaultRedirectDelay,
		metadataTimeout: DefaultMetadataTimeout,
		now:             time.Now,
	}
}

func (o *options) validate() error {
	if o.backend == nil {
		return ErrNoBackend
	}
	if o.cameras == nil {
		return errors.New("capture: camera manager is required")
	}
	cfg := o.cameras.Config()
	if err := cfg.Err(); err != nil {
		return fmt.Errorf("capture: %w", err)
	}
	if o.redirectDelay < 0 {
		return fmt.Errorf("capture: negative redirect delay %s", o.redirectDelay)
	}
	if o.metadataTimeout <= 0 {
		return fmt.Errorf("capture: metadata timeout must be positive, got %s", o.metadataTimeout)
	}
	if o.sched == nil {
		return errors.New("capture: scheduler is required")
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return nil
}

// Option configures a Controller.
type Option func(*options)

// WithDevices sets the media devices used to acquire streams.
func WithDevices(d camera.MediaDevices) Option {
	return func(o *options) { o.devices = d }
}

// WithVideo sets the live preview surface. Passing nil leaves the
// controller without a preview, so captures fail as not ready.
func WithVideo(v Video) Option {
	return func(o *options) { o.video = v }
}

// WithCanvas sets the offscreen drawing surface. Passing nil leaves the
// controller without one, so captures fail as not ready.
func WithCanvas(s Surface) Option {
	return func(o *options) { o.canvas = s }
}

// WithBackend sets the recognition backend.
func WithBackend(b Backend) Option {
	return func(o *options) { o.backend = b }
}

// WithDisplay sets the status display.
func WithDisplay(d *status.Display) Option {
	return func(o *options) { o.display = d }
}

// WithNavigator sets the target of scheduled redirects.
func WithNavigator(n Navigator) Option {
	return func(o *options) { o.nav = n }
}

// WithScheduler sets the scheduler for redirects.
func WithScheduler(s schedule.Scheduler) Option {
	return func(o *options) { o.sched = s }
}

// WithCameraManager sets the camera configuration source.
func WithCameraManager(m *camera.Manager) Option {
	return func(o *options) { o.cameras = m }
}

// WithCameraConfig is shorthand for WithCameraManager(camera.NewManager(cfg)).
func WithCameraConfig(cfg camera.Config) Option {
	return func(o *options) { o.cameras = camera.NewManager(cfg) }
}

// WithQualityGate enables a pre-submission frame check.
func WithQualityGate(g QualityGate) Option {
	return func(o *options) { o.gate = g }
}

// WithDetectionLoop sets a loop run while the camera is active.
func WithDetectionLoop(l *detection.Loop) Option {
	return func(o *options) { o.loop = l }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithLanguage sets the language of user-facing messages.
func WithLanguage(lang string) Option {
	return func(o *options) { o.language = lang }
}

// WithPaths sets the enrollment page, login and listing paths. Empty
// values keep the defaults.
func WithPaths(page, login, listing string) Option {
	return func(o *options) {
		if page != "" {
			o.pagePath = page
		}
		if login != "" {
			o.loginPath = login
		}
		if listing != "" {
			o.listingPath = listing
		}
	}
}

// WithRedirectDelay sets the delay before scheduled navigation.
func WithRedirectDelay(d time.Duration) Option {
	return func(o *options) { o.redirectDelay = d }
}

// WithMetadataTimeout bounds the wait for the first frame in StartCamera.
func WithMetadataTimeout(d time.Duration) Option {
	return func(o *options) { o.metadataTimeout = d }
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}
