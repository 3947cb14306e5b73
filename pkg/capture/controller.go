// Package capture drives one facial-recognition capture session: it owns the
// camera stream, grabs still frames from the live preview and submits them
// to the recognition backend, allowing at most one submission in flight.
package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-facegate/pkg/camera"
	"github.com/teslashibe/go-facegate/pkg/detection"
	"github.com/teslashibe/go-facegate/pkg/liveness"
	"github.com/teslashibe/go-facegate/pkg/recognition"
	"github.com/teslashibe/go-facegate/pkg/schedule"
	"github.com/teslashibe/go-facegate/pkg/status"
)

// Backend accepts an encoded frame and returns a match decision.
// *recognition.Client and *recognition.Mock implement it.
type Backend interface {
	Submit(ctx context.Context, endpoint string, r recognition.Request) (*recognition.Response, error)
}

// Video is the live preview surface. *camera.Preview implements it.
type Video interface {
	SetSource(s camera.Stream)
	Play(ctx context.Context) error
	WaitMetadata(ctx context.Context) error
	ReadyState() camera.ReadyState
	VideoSize() (int, int)
	CurrentFrame() image.Image
}

// Surface is the offscreen drawing surface. *camera.Canvas implements it.
type Surface interface {
	Resize(width, height int)
	DrawImage(src image.Image)
	ToDataURL(format string, quality int) (string, error)
}

// Navigator performs page navigation for scheduled redirects.
type Navigator interface {
	Navigate(target string)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(target string)

// Navigate implements Navigator.
func (f NavigatorFunc) Navigate(target string) { f(target) }

// QualityGate vets a frame before submission. *liveness.Checker implements it.
type QualityGate interface {
	Check(img image.Image) liveness.Result
}

// Phase is the camera lifecycle phase.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseStarting
	PhaseActive
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case PhaseStarting:
		return "starting"
	case PhaseActive:
		return "active"
	default:
		return "idle"
	}
}

// Default backend routes and timings.
const (
	DefaultPagePath        = "/facial/cadastro/"
	DefaultLoginPath       = "/facial/login/"
	DefaultListingPath     = "/perfil/"
	DefaultRedirectDelay   = 2 * time.Second
	DefaultMetadataTimeout = 10 * time.Second
	DefaultLanguage        = "pt-BR"

	// FieldAccount is the request field carrying the account identifier.
	FieldAccount = "username"
)

// State is a point-in-time snapshot of the controller.
type State struct {
	Phase           string    `json:"phase"`
	CameraActive    bool      `json:"camera_active"`
	Processing      bool      `json:"processing"`
	SessionID       string    `json:"session_id,omitempty"`
	Generation      uint64    `json:"generation"`
	StartedAt       time.Time `json:"started_at,omitempty"`
	Width           int       `json:"width,omitempty"`
	Height          int       `json:"height,omitempty"`
	RedirectPending bool      `json:"redirect_pending"`
	RedirectTarget  string    `json:"redirect_target,omitempty"`
}

type session struct {
	id          string
	generation  uint64
	stream      camera.Stream
	constraints camera.Constraints
	started     time.Time
}

// Controller owns one camera session and the submission pipeline.
type Controller struct {
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
	msgs            *Messages
	logger          *slog.Logger
	pagePath        string
	loginPath       string
	listingPath     string
	redirectDelay   time.Duration
	metadataTimeout time.Duration
	now             func() time.Time

	mu             sync.Mutex
	phase          Phase
	sess           *session
	generation     uint64 // bumped on every start and stop
	redirect       *schedule.Action
	redirectTarget string
	startCancel    context.CancelFunc

	// flight holds the ticket of the submission in flight, or 0.
	flight  atomic.Uint64
	tickets atomic.Uint64
}

// New creates a controller. A backend is required; everything else has a
// default. Media devices default to none, in which case StartCamera fails
// with UnsupportedEnvironment.
func New(opts ...Option) (*Controller, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	if err := o.validate(); err != nil {
		return nil, err
	}

	logger := o.logger.With("component", "capture")
	display := o.display
	if display == nil {
		display = status.NewDisplay(status.NewLogSink(o.logger), status.WithScheduler(o.sched))
	}

	return &Controller{
		devices:         o.devices,
		video:           o.video,
		canvas:          o.canvas,
		backend:         o.backend,
		display:         display,
		nav:             o.nav,
		sched:           o.sched,
		cameras:         o.cameras,
		gate:            o.gate,
		loop:            o.loop,
		msgs:            NewMessages(o.language),
		logger:          logger,
		pagePath:        o.pagePath,
		loginPath:       o.loginPath,
		listingPath:     o.listingPath,
		redirectDelay:   o.redirectDelay,
		metadataTimeout: o.metadataTimeout,
		now:             o.now,
	}, nil
}

// Display returns the status display.
func (c *Controller) Display() *status.Display { return c.display }

// Cameras returns the camera configuration manager. Changes apply from the
// next StartCamera.
func (c *Controller) Cameras() *camera.Manager { return c.cameras }

// Messages returns the localized message set.
func (c *Controller) Messages() *Messages { return c.msgs }

// StartCamera acquires a video stream, binds it to the preview and returns
// once the first frame geometry is known.
func (c *Controller) StartCamera(ctx context.Context) error {
	if c.devices == nil {
		return c.fail(newError(UnsupportedEnvironment, errNoDevices))
	}

	c.mu.Lock()
	if c.phase != PhaseIdle {
		c.mu.Unlock()
		return c.fail(newError(AlreadyActive, nil))
	}
	c.phase = PhaseStarting
	c.generation++
	gen := c.generation
	constraints := c.cameras.Config().Constraints()
	sctx, cancel := context.WithCancel(ctx)
	c.startCancel = cancel
	c.mu.Unlock()
	defer cancel()

	c.display.Loading(c.msgs.Text(msgStarting))
	defer c.display.Idle()

	stream, err := c.devices.GetUserMedia(sctx, constraints)
	if err != nil {
		if c.abortStart(gen, stream) {
			return newError(Stale, err)
		}
		return c.fail(deviceError(err))
	}

	c.mu.Lock()
	if c.generation != gen {
		c.mu.Unlock()
		camera.StopAll(stream)
		return newError(Stale, errStoppedDuringStart)
	}
	if c.video != nil {
		c.video.SetSource(stream)
	}
	c.mu.Unlock()

	if c.video != nil {
		if err := c.video.Play(sctx); err != nil {
			if c.abortStart(gen, stream) {
				return newError(Stale, err)
			}
			return c.fail(newError(DeviceError, err))
		}
		wctx, wcancel := context.WithTimeout(sctx, c.metadataTimeout)
		err := c.video.WaitMetadata(wctx)
		wcancel()
		if err != nil {
			if c.abortStart(gen, stream) {
				return newError(Stale, err)
			}
			return c.fail(newError(DeviceError, fmt.Errorf("waiting for first frame: %w", err)))
		}
	}

	c.mu.Lock()
	if c.generation != gen {
		c.mu.Unlock()
		camera.StopAll(stream)
		return newError(Stale, errStoppedDuringStart)
	}
	c.sess = &session{
		id:          uuid.NewString(),
		generation:  gen,
		stream:      stream,
		constraints: constraints,
		started:     c.now(),
	}
	c.phase = PhaseActive
	c.startCancel = nil
	id := c.sess.id
	// Started under mu so a concurrent StopCamera always sees it running.
	if c.loop != nil {
		c.loop.Start(context.WithoutCancel(ctx))
	}
	c.mu.Unlock()

	w, h := 0, 0
	if c.video != nil {
		w, h = c.video.VideoSize()
	}
	c.logger.Info("camera started", "session", id, "stream", stream.ID(), "width", w, "height", h)
	c.display.Success(c.msgs.Text(msgStarted))
	return nil
}

// abortStart undoes a failed start and releases stream, which may be nil.
// It reports whether the start had already been superseded by StopCamera.
func (c *Controller) abortStart(gen uint64, stream camera.Stream) bool {
	c.mu.Lock()
	current := c.generation == gen && c.phase == PhaseStarting
	if current {
		c.phase = PhaseIdle
		c.startCancel = nil
		if c.video != nil && stream != nil {
			c.video.SetSource(nil)
		}
	}
	c.mu.Unlock()

	if stream != nil {
		camera.StopAll(stream)
	}
	return !current
}

func deviceError(err error) *Error {
	switch camera.ErrorName(err) {
	case camera.ErrNameNotAllowed, camera.ErrNamePermissionDenied, camera.ErrNameSecurity:
		return newError(PermissionDenied, err)
	case camera.ErrNameNotFound, camera.ErrNameDevicesNotFound:
		return newError(DeviceNotFound, err)
	default:
		return newError(DeviceError, err)
	}
}

// StopCamera releases the device: it stops every track, detaches the
// preview and clears the in-flight and active flags. Safe to call at any
// time. A submission still in flight is not aborted; its response is
// discarded as stale.
func (c *Controller) StopCamera() {
	c.flight.Store(0)

	c.mu.Lock()
	if c.phase == PhaseIdle {
		c.mu.Unlock()
		return
	}
	sess := c.sess
	c.sess = nil
	c.phase = PhaseIdle
	c.generation++
	if c.startCancel != nil {
		c.startCancel()
		c.startCancel = nil
	}
	if c.video != nil {
		c.video.SetSource(nil)
	}
	c.mu.Unlock()

	if c.loop != nil {
		c.loop.Stop()
	}
	if sess != nil {
		camera.StopAll(sess.stream)
		c.logger.Info("camera stopped", "session", sess.id, "duration", c.now().Sub(sess.started))
	}
}

// CaptureFrame encodes the current preview frame as a data URL. It returns
// false, and reports a warning, when the preview is not ready.
func (c *Controller) CaptureFrame() (string, bool) {
	payload, _, err := c.capture()
	if err != nil {
		c.fail(err)
		return "", false
	}
	return payload, true
}

func (c *Controller) capture() (payload string, frame image.Image, cerr *Error) {
	defer func() {
		if r := recover(); r != nil {
			payload, frame = "", nil
			cerr = newError(CaptureNotReady, fmt.Errorf("capture failed: %v", r))
		}
	}()

	if c.video == nil || c.canvas == nil {
		return "", nil, newError(CaptureNotReady, errNoSurface)
	}
	if c.video.ReadyState() < camera.HaveCurrentData {
		return "", nil, newError(CaptureNotReady, errNotReady)
	}
	frame = c.video.CurrentFrame()
	if frame == nil {
		return "", nil, newError(CaptureNotReady, errNotReady)
	}

	cfg := c.cameras.Config()
	w, h := c.video.VideoSize()
	if w <= 0 || h <= 0 {
		w, h = cfg.Width, cfg.Height
	}
	c.canvas.Resize(w, h)
	c.canvas.DrawImage(frame)

	payload, err := c.canvas.ToDataURL(cfg.Format, cfg.Quality)
	if err != nil {
		return "", nil, newError(CaptureNotReady, err)
	}
	if payload == "" || len(payload) < cfg.MinPayloadBytes {
		return "", nil, newError(CaptureNotReady, errSmallFrame)
	}
	return payload, frame, nil
}

// ProcessImage submits payload to endpoint. Only one submission may be in
// flight; a concurrent call fails immediately with Busy. A rejection by the
// backend returns the parsed response together with a ServerRejected error.
func (c *Controller) ProcessImage(ctx context.Context, payload, endpoint string, fields map[string]string) (*recognition.Response, error) {
	return c.process(ctx, payload, endpoint, fields, msgAccepted)
}

// process is ProcessImage with a flow-specific success message used when
// the backend sends none.
func (c *Controller) process(ctx context.Context, payload, endpoint string, fields map[string]string, fallback string) (*recognition.Response, error) {
	if payload == "" {
		return nil, c.fail(newError(CaptureNotReady, recognition.ErrEmptyImage))
	}

	ticket := c.tickets.Add(1)
	if !c.flight.CompareAndSwap(0, ticket) {
		return nil, c.fail(newError(Busy, nil))
	}
	return c.submit(ctx, ticket, payload, endpoint, fields, fallback)
}

func (c *Controller) submit(ctx context.Context, ticket uint64, payload, endpoint string, fields map[string]string, fallback string) (resp *recognition.Response, err error) {
	gen := c.currentGeneration()

	defer c.flight.CompareAndSwap(ticket, 0)
	defer c.display.Idle()
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("submission panicked", "endpoint", endpoint, "panic", r)
			resp = nil
			err = c.fail(newError(Unexpected, fmt.Errorf("%v", r)))
		}
	}()

	c.display.Loading(c.msgs.Text(msgProcess))

	start := c.now()
	resp, serr := c.backend.Submit(ctx, endpoint, recognition.Request{Image: payload, Fields: fields})
	c.logger.Debug("submission settled", "endpoint", endpoint, "duration", c.now().Sub(start), "error", serr)

	if c.currentGeneration() != gen {
		c.logger.Info("discarding stale response", "endpoint", endpoint, "generation", gen)
		return nil, newError(Stale, serr)
	}
	if serr != nil {
		return nil, c.fail(submitError(serr))
	}
	if resp == nil {
		return nil, c.fail(newError(TransportError, recognition.ErrInvalidResponse))
	}
	if !resp.Success {
		e := newError(ServerRejected, nil)
		e.Message = resp.Message
		return resp, c.fail(e)
	}

	msg := resp.Message
	if msg == "" {
		msg = c.msgs.Text(fallback)
	}
	c.display.Success(msg)
	return resp, nil
}

func submitError(err error) *Error {
	if se, ok := recognition.IsTransport(err); ok {
		e := newError(TransportError, err)
		// An undecodable 2xx body is not an HTTP failure.
		if !errors.Is(err, recognition.ErrInvalidResponse) {
			e.StatusCode = se.StatusCode
		}
		return e
	}
	if recognition.IsNetwork(err) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return newError(ConnectivityError, err)
	}
	return newError(TransportError, err)
}

// fail renders e as a status and returns it. Stale errors are not shown.
func (c *Controller) fail(e *Error) error {
	if e.Message == "" {
		e.Message = c.msgs.For(e)
	}

	switch {
	case e.Kind == Stale:
		return e
	case e.Kind.Warning():
		c.logger.Warn("capture warning", "kind", e.Kind.String(), "error", e.Err)
		c.display.Warning(e.Kind.String(), e.Message)
	default:
		c.logger.Error("capture failed", "kind", e.Kind.String(), "status", e.StatusCode, "error", e.Err)
		c.display.Error(e.Kind.String(), e.Message)
	}
	return e
}

func (c *Controller) currentGeneration() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

// Processing reports whether a submission is in flight.
func (c *Controller) Processing() bool {
	return c.flight.Load() != 0
}

// Active reports whether a camera session is active.
func (c *Controller) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase == PhaseActive
}

// State returns a snapshot of the controller.
func (c *Controller) State() State {
	c.mu.Lock()
	st := State{
		Phase:        c.phase.String(),
		CameraActive: c.phase == PhaseActive,
		Generation:   c.generation,
	}
	if c.sess != nil {
		st.SessionID = c.sess.id
		st.StartedAt = c.sess.started
		st.Width = c.sess.constraints.Width
		st.Height = c.sess.constraints.Height
	}
	if c.redirect != nil && !c.redirect.Fired() && !c.redirect.Cancelled() {
		st.RedirectPending = true
		st.RedirectTarget = c.redirectTarget
	}
	c.mu.Unlock()

	if c.video != nil && st.CameraActive {
		if w, h := c.video.VideoSize(); w > 0 && h > 0 {
			st.Width, st.Height = w, h
		}
	}
	st.Processing = c.Processing()
	return st
}

// Close is the teardown hook: it stops the camera and any detection loop
// and cancels a pending redirect. Safe to call repeatedly.
func (c *Controller) Close() {
	c.StopCamera()
	if c.loop != nil {
		c.loop.Stop()
	}

	c.mu.Lock()
	pending := c.redirect
	c.redirect = nil
	c.redirectTarget = ""
	c.mu.Unlock()

	if pending.Cancel() {
		c.logger.Info("pending redirect cancelled")
	}
	c.display.Idle()
}
