package capture

import (
	"context"
	"errors"
	"image"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-facegate/pkg/camera"
	"github.com/teslashibe/go-facegate/pkg/detection"
	"github.com/teslashibe/go-facegate/pkg/liveness"
	"github.com/teslashibe/go-facegate/pkg/recognition"
	"github.com/teslashibe/go-facegate/pkg/schedule"
	"github.com/teslashibe/go-facegate/pkg/status"
)

const redirectDelay = 1500 * time.Millisecond

type navRecorder struct {
	mu      sync.Mutex
	targets []string
}

func (n *navRecorder) Navigate(target string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.targets = append(n.targets, target)
}

func (n *navRecorder) Targets() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.targets...)
}

// spyCanvas counts drawing and encoding calls.
type spyCanvas struct {
	mu      sync.Mutex
	resized int
	drawn   int
	encoded int
	width   int
	height  int
	payload string
	panicOn string
}

func (s *spyCanvas) Resize(w, h int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resized++
	s.width, s.height = w, h
}

func (s *spyCanvas) size() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.width, s.height
}

// unsizedVideo is a preview that never reports its dimensions.
type unsizedVideo struct {
	*camera.Preview
}

func (unsizedVideo) VideoSize() (int, int) { return 0, 0 }

func (s *spyCanvas) DrawImage(img image.Image) {
	s.mu.Lock()
	s.drawn++
	p := s.panicOn
	s.mu.Unlock()
	if p == "draw" {
		panic("draw exploded")
	}
}

func (s *spyCanvas) ToDataURL(format string, quality int) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.encoded++
	return s.payload, nil
}

func (s *spyCanvas) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resized + s.drawn + s.encoded
}

type harness struct {
	ctrl    *Controller
	devices *camera.PatternDevices
	preview *camera.Preview
	backend *recognition.Mock
	rec     *status.Recorder
	clock   *schedule.Manual
	nav     *navRecorder
}

func testCameraConfig() camera.Config {
	cfg := camera.DefaultConfig()
	cfg.Width = 160
	cfg.Height = 120
	cfg.Framerate = 30
	return cfg
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()

	h := &harness{
		devices: &camera.PatternDevices{},
		preview: camera.NewPreview(camera.WithFrameInterval(5 * time.Millisecond)),
		backend: recognition.NewMock(),
		rec:     &status.Recorder{},
		clock:   schedule.NewManual(time.Unix(1700000000, 0)),
		nav:     &navRecorder{},
	}
	display := status.NewDisplay(h.rec,
		status.WithScheduler(h.clock),
		status.WithClock(h.clock.Now))

	base := []Option{
		WithDevices(h.devices),
		WithVideo(h.preview),
		WithBackend(h.backend),
		WithDisplay(display),
		WithScheduler(h.clock),
		WithNavigator(h.nav),
		WithCameraConfig(testCameraConfig()),
		WithLanguage("en"),
		WithRedirectDelay(redirectDelay),
		WithMetadataTimeout(2 * time.Second),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithClock(h.clock.Now),
	}
	ctrl, err := New(append(base, opts...)...)
	require.NoError(t, err)
	h.ctrl = ctrl
	t.Cleanup(ctrl.Close)
	return h
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	require.NoError(t, h.ctrl.StartCamera(context.Background()))
}

func (h *harness) lastStatus(t *testing.T) status.Status {
	t.Helper()
	st, ok := h.rec.Last()
	require.True(t, ok, "expected a status to be rendered")
	return st
}

// blockingBackend holds every submission until release is closed.
func blockingBackend(m *recognition.Mock, resp *recognition.Response) (entered <-chan struct{}, release chan struct{}) {
	in := make(chan struct{}, 8)
	release = make(chan struct{})
	m.SubmitFunc = func(ctx context.Context, endpoint string, r recognition.Request) (*recognition.Response, error) {
		in <- struct{}{}
		<-release
		return resp, nil
	}
	return in, release
}

func TestNewRequiresBackend(t *testing.T) {
	_, err := New()
	assert.ErrorIs(t, err, ErrNoBackend)

	bad := camera.DefaultConfig()
	bad.Quality = 0
	_, err = New(WithBackend(recognition.NewMock()), WithCameraConfig(bad))
	assert.Error(t, err)
}

func TestStartCameraUnsupported(t *testing.T) {
	h := newHarness(t, WithDevices(nil))

	err := h.ctrl.StartCamera(context.Background())
	assert.True(t, IsKind(err, UnsupportedEnvironment), "got %v", err)
	assert.False(t, h.ctrl.Active())

	st := h.lastStatus(t)
	assert.Equal(t, status.KindError, st.Kind)
	assert.Equal(t, "unsupported_environment", st.Code)
}

func TestStartCameraErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"not allowed", &camera.DeviceError{Name: camera.ErrNameNotAllowed}, PermissionDenied},
		{"permission denied", &camera.DeviceError{Name: camera.ErrNamePermissionDenied}, PermissionDenied},
		{"security", &camera.DeviceError{Name: camera.ErrNameSecurity}, PermissionDenied},
		{"not found", &camera.DeviceError{Name: camera.ErrNameNotFound}, DeviceNotFound},
		{"devices not found", &camera.DeviceError{Name: camera.ErrNameDevicesNotFound}, DeviceNotFound},
		{"not readable", &camera.DeviceError{Name: camera.ErrNameNotReadable, Message: "device busy"}, DeviceError},
		{"overconstrained", &camera.DeviceError{Name: camera.ErrNameOverconstrained}, DeviceError},
		{"plain error", errors.New("usb reset"), DeviceError},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			h.devices.Fail = tc.err

			err := h.ctrl.StartCamera(context.Background())
			require.Error(t, err)
			assert.Equal(t, tc.want, KindOf(err))
			assert.ErrorIs(t, err, tc.err)
			assert.False(t, h.ctrl.Active())
			assert.Equal(t, "idle", h.ctrl.State().Phase)

			st := h.lastStatus(t)
			assert.Equal(t, status.KindError, st.Kind)
			assert.Equal(t, tc.want.String(), st.Code)
			if tc.want == DeviceError {
				var de *camera.DeviceError
				if errors.As(tc.err, &de) && de.Message != "" {
					assert.Contains(t, st.Message, de.Message)
				}
			}
		})
	}
}

func TestDeviceErrorKeepsUnderlyingMessage(t *testing.T) {
	h := newHarness(t)
	h.devices.Fail = errors.New("usb reset")

	err := h.ctrl.StartCamera(context.Background())
	require.Error(t, err)
	assert.Contains(t, h.lastStatus(t).Message, "usb reset")
}

func TestStartCamera(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	assert.True(t, h.ctrl.Active())
	assert.GreaterOrEqual(t, h.preview.ReadyState(), camera.HaveCurrentData,
		"StartCamera must not return before the first frame")

	st := h.ctrl.State()
	assert.True(t, st.CameraActive)
	assert.NotEmpty(t, st.SessionID)
	assert.Equal(t, 160, st.Width)
	assert.Equal(t, 120, st.Height)

	last := h.lastStatus(t)
	assert.Equal(t, status.KindSuccess, last.Kind)
	assert.Equal(t, "Camera started.", last.Message)
	visible, _ := h.rec.LoadingVisible()
	assert.False(t, visible)
}

func TestStartCameraAlreadyActive(t *testing.T) {
	h := newHarness(t)
	h.start(t)
	id := h.ctrl.State().SessionID

	err := h.ctrl.StartCamera(context.Background())
	assert.True(t, IsKind(err, AlreadyActive), "got %v", err)
	assert.Equal(t, 1, h.devices.Opened(), "no second stream may be acquired")
	assert.Equal(t, id, h.ctrl.State().SessionID)
	assert.Equal(t, status.KindWarning, h.lastStatus(t).Kind)
}

func TestStartCameraReleasesStreamWithoutFrames(t *testing.T) {
	h := newHarness(t, WithMetadataTimeout(30*time.Millisecond))
	h.devices.Blank = true

	err := h.ctrl.StartCamera(context.Background())
	assert.True(t, IsKind(err, DeviceError), "got %v", err)
	assert.Equal(t, 0, h.devices.Live(), "partially acquired stream must be released")
	assert.Nil(t, h.preview.Source())
	assert.False(t, h.ctrl.Active())

	// A failed start leaves the controller able to start again.
	h.devices.Blank = false
	h.start(t)
	assert.True(t, h.ctrl.Active())
}

func TestStopCameraIdempotent(t *testing.T) {
	h := newHarness(t)

	before := h.ctrl.State()
	h.ctrl.StopCamera()
	h.ctrl.StopCamera()
	assert.Equal(t, before, h.ctrl.State())
	assert.Empty(t, h.rec.All())

	h.start(t)
	stream := h.devices.Streams()[0]
	h.ctrl.StopCamera()

	assert.False(t, h.ctrl.Active())
	assert.False(t, h.ctrl.State().CameraActive)
	assert.True(t, stream.Stopped(), "tracks must be stopped")
	assert.Nil(t, h.preview.Source(), "stream must be detached from the preview")
	assert.Equal(t, 0, h.devices.Live())

	h.ctrl.StopCamera()
	assert.False(t, h.ctrl.Active())
}

func TestCaptureFrameNotReady(t *testing.T) {
	spy := &spyCanvas{payload: "data:image/jpeg;base64," + strings.Repeat("A", 4096)}
	h := newHarness(t, WithCanvas(spy))

	payload, ok := h.ctrl.CaptureFrame()
	assert.False(t, ok)
	assert.Empty(t, payload)
	assert.Zero(t, spy.calls(), "nothing may be drawn or encoded before the video is ready")

	st := h.lastStatus(t)
	assert.Equal(t, status.KindWarning, st.Kind)
	assert.Equal(t, "capture_not_ready", st.Code)
}

func TestCaptureFrameWithoutSurfaces(t *testing.T) {
	h := newHarness(t, WithCanvas(nil))
	h.start(t)

	payload, ok := h.ctrl.CaptureFrame()
	assert.False(t, ok)
	assert.Empty(t, payload)

	h2 := newHarness(t, WithVideo(nil))
	require.NoError(t, h2.ctrl.StartCamera(context.Background()))
	_, ok = h2.ctrl.CaptureFrame()
	assert.False(t, ok)
}

func TestCaptureFrame(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	payload, ok := h.ctrl.CaptureFrame()
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(payload, "data:image/jpeg;base64,"), payload[:32])
	assert.GreaterOrEqual(t, len(payload), testCameraConfig().MinPayloadBytes)

	mediaType, data, err := camera.DecodeDataURL(payload)
	require.NoError(t, err)
	assert.Equal(t, camera.FormatJPEG, mediaType)
	assert.NotEmpty(t, data)
}

func TestCaptureFrameFallsBackToConfiguredSize(t *testing.T) {
	spy := &spyCanvas{payload: "data:image/jpeg;base64," + strings.Repeat("A", 4096)}
	video := unsizedVideo{camera.NewPreview(camera.WithFrameInterval(5 * time.Millisecond))}
	h := newHarness(t, WithVideo(video), WithCanvas(spy))
	h.start(t)

	_, ok := h.ctrl.CaptureFrame()
	require.True(t, ok)

	w, ht := spy.size()
	assert.Equal(t, testCameraConfig().Width, w)
	assert.Equal(t, testCameraConfig().Height, ht)
}

func TestCaptureFrameRejectsSmallPayload(t *testing.T) {
	spy := &spyCanvas{payload: "data:image/jpeg;base64,AAAA"}
	h := newHarness(t, WithCanvas(spy))
	h.start(t)

	payload, ok := h.ctrl.CaptureFrame()
	assert.False(t, ok)
	assert.Empty(t, payload)
	assert.Equal(t, "capture_not_ready", h.lastStatus(t).Code)
}

func TestCaptureFrameRecoversPanic(t *testing.T) {
	spy := &spyCanvas{panicOn: "draw"}
	h := newHarness(t, WithCanvas(spy))
	h.start(t)

	assert.NotPanics(t, func() {
		_, ok := h.ctrl.CaptureFrame()
		assert.False(t, ok)
	})
}

func TestProcessImageBusy(t *testing.T) {
	h := newHarness(t)
	entered, release := blockingBackend(h.backend, &recognition.Response{Success: true, Message: "ok"})

	type result struct {
		resp *recognition.Response
		err  error
	}
	first := make(chan result, 1)
	go func() {
		resp, err := h.ctrl.ProcessImage(context.Background(), "data:image/jpeg;base64,AAAA", DefaultPagePath, nil)
		first <- result{resp, err}
	}()
	<-entered
	require.True(t, h.ctrl.Processing())

	resp, err := h.ctrl.ProcessImage(context.Background(), "data:image/jpeg;base64,BBBB", DefaultPagePath, nil)
	assert.Nil(t, resp)
	assert.True(t, IsKind(err, Busy), "got %v", err)
	assert.Equal(t, "busy", h.lastStatus(t).Code)

	close(release)
	r := <-first
	require.NoError(t, r.err)
	assert.True(t, r.resp.Success)

	assert.Equal(t, 1, h.backend.CallCount(), "exactly one submission may reach the backend")
	assert.False(t, h.ctrl.Processing())
}

func TestProcessImageClearsInFlight(t *testing.T) {
	tests := []struct {
		name   string
		submit func(ctx context.Context, endpoint string, r recognition.Request) (*recognition.Response, error)
		want   Kind
		resp   bool
	}{
		{
			name: "success",
			submit: func(context.Context, string, recognition.Request) (*recognition.Response, error) {
				return &recognition.Response{Success: true, Message: "ok"}, nil
			},
			resp: true,
		},
		{
			name: "rejected",
			submit: func(context.Context, string, recognition.Request) (*recognition.Response, error) {
				return &recognition.Response{Success: false, Message: "not recognized"}, nil
			},
			want: ServerRejected,
			resp: true,
		},
		{
			name: "http error",
			submit: func(_ context.Context, endpoint string, _ recognition.Request) (*recognition.Response, error) {
				return nil, &recognition.StatusError{StatusCode: 500, Endpoint: endpoint}
			},
			want: TransportError,
		},
		{
			name: "network error",
			submit: func(_ context.Context, endpoint string, _ recognition.Request) (*recognition.Response, error) {
				return nil, &recognition.NetworkError{Endpoint: endpoint, Err: errors.New("connection refused")}
			},
			want: ConnectivityError,
		},
		{
			name: "empty response",
			submit: func(context.Context, string, recognition.Request) (*recognition.Response, error) {
				return nil, nil
			},
			want: TransportError,
		},
		{
			name: "panic",
			submit: func(context.Context, string, recognition.Request) (*recognition.Response, error) {
				panic("encoder blew up")
			},
			want: Unexpected,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			h.backend.SubmitFunc = tc.submit

			var (
				resp *recognition.Response
				err  error
			)
			assert.NotPanics(t, func() {
				resp, err = h.ctrl.ProcessImage(context.Background(), "data:image/jpeg;base64,AAAA", "/x/", nil)
			})
			assert.False(t, h.ctrl.Processing(), "in-flight flag must be cleared")
			visible, _ := h.rec.LoadingVisible()
			assert.False(t, visible, "loading indicator must be hidden")

			if tc.want == KindUnknown {
				assert.NoError(t, err)
			} else {
				assert.Equal(t, tc.want, KindOf(err))
				assert.Equal(t, tc.want.String(), h.lastStatus(t).Code)
			}
			assert.Equal(t, tc.resp, resp != nil)

			// The controller accepts the next submission.
			h.backend.SubmitFunc = func(context.Context, string, recognition.Request) (*recognition.Response, error) {
				return &recognition.Response{Success: true}, nil
			}
			_, err = h.ctrl.ProcessImage(context.Background(), "data:image/jpeg;base64,AAAA", "/x/", nil)
			assert.NoError(t, err)
		})
	}
}

func TestProcessImageEmptyPayload(t *testing.T) {
	h := newHarness(t)

	resp, err := h.ctrl.ProcessImage(context.Background(), "", DefaultPagePath, nil)
	assert.Nil(t, resp)
	assert.True(t, IsKind(err, CaptureNotReady))
	assert.Zero(t, h.backend.CallCount())
}

func TestEnrollSchedulesRedirect(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	out, err := h.ctrl.Enroll(context.Background())
	require.NoError(t, err)
	require.NotNil(t, out)

	assert.True(t, out.Response.Success)
	assert.Equal(t, DefaultListingPath, out.Target)
	require.NotNil(t, out.Redirect)
	assert.Equal(t, h.clock.Now().Add(redirectDelay), out.RedirectAt())

	calls := h.backend.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, DefaultPagePath, calls[0].Endpoint)
	assert.Empty(t, calls[0].Request.Fields)
	assert.True(t, strings.HasPrefix(calls[0].Request.Image, "data:image/jpeg;base64,"))

	st := h.lastStatus(t)
	assert.Equal(t, status.KindSuccess, st.Kind)
	assert.Equal(t, "ok", st.Message)
	assert.True(t, h.ctrl.State().RedirectPending)

	h.clock.Advance(redirectDelay)
	assert.Equal(t, []string{DefaultListingPath}, h.nav.Targets())
	assert.True(t, out.Redirect.Fired())
	assert.False(t, h.ctrl.State().RedirectPending)
}

func TestEnrollDefaultSuccessMessage(t *testing.T) {
	h := newHarness(t)
	h.backend.SubmitFunc = func(context.Context, string, recognition.Request) (*recognition.Response, error) {
		return &recognition.Response{Success: true}, nil
	}
	h.start(t)

	_, err := h.ctrl.Enroll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Face enrolled successfully.", h.lastStatus(t).Message)
}

func TestEnrollServerErrorKeepsCamera(t *testing.T) {
	h := newHarness(t)
	h.backend.SubmitFunc = func(_ context.Context, endpoint string, _ recognition.Request) (*recognition.Response, error) {
		return nil, &recognition.StatusError{StatusCode: 500, Endpoint: endpoint}
	}
	h.start(t)

	out, err := h.ctrl.Enroll(context.Background())
	assert.Nil(t, out)

	var ce *Error
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, TransportError, ce.Kind)
	assert.Equal(t, 500, ce.StatusCode)
	assert.ErrorIs(t, err, &Error{Kind: TransportError, StatusCode: 500})

	assert.False(t, h.ctrl.Processing())
	assert.True(t, h.ctrl.Active(), "a failed submission must not stop the camera")
	assert.Equal(t, status.KindError, h.lastStatus(t).Kind)
	assert.Contains(t, h.lastStatus(t).Message, "500")

	h.clock.Advance(time.Minute)
	assert.Empty(t, h.nav.Targets())
}

func TestEnrollUndecodableResponse(t *testing.T) {
	h := newHarness(t)
	h.backend.SubmitFunc = func(_ context.Context, endpoint string, _ recognition.Request) (*recognition.Response, error) {
		return nil, &recognition.StatusError{StatusCode: 200, Endpoint: endpoint, Err: recognition.ErrInvalidResponse}
	}
	h.start(t)

	_, err := h.ctrl.Enroll(context.Background())
	var ce *Error
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, TransportError, ce.Kind)
	assert.Zero(t, ce.StatusCode)
	assert.ErrorIs(t, err, recognition.ErrInvalidResponse)

	st := h.lastStatus(t)
	assert.Equal(t, "The server sent an unreadable response.", st.Message)
	assert.NotContains(t, st.Message, "HTTP")
}

func TestEnrollShortCircuitsWithoutCapture(t *testing.T) {
	h := newHarness(t)

	out, err := h.ctrl.Enroll(context.Background())
	assert.Nil(t, out)
	assert.True(t, IsKind(err, CaptureNotReady))
	assert.Zero(t, h.backend.CallCount())
}

func TestVerifyRedirect(t *testing.T) {
	h := newHarness(t)
	h.backend.SubmitFunc = func(context.Context, string, recognition.Request) (*recognition.Response, error) {
		return &recognition.Response{Success: true, Message: "Bem-vinda", RedirectURL: "/home"}, nil
	}
	h.start(t)

	out, err := h.ctrl.Verify(context.Background(), "maria")
	require.NoError(t, err)
	assert.Equal(t, "/home", out.Target)

	calls := h.backend.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, DefaultLoginPath, calls[0].Endpoint)
	assert.Equal(t, map[string]string{FieldAccount: "maria"}, calls[0].Request.Fields)

	h.clock.Advance(redirectDelay - time.Millisecond)
	assert.Empty(t, h.nav.Targets(), "navigation must wait for the delay")
	h.clock.Advance(time.Millisecond)
	assert.Equal(t, []string{"/home"}, h.nav.Targets())
}

func TestVerifyWithoutAccount(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	out, err := h.ctrl.Verify(context.Background(), "")
	require.NoError(t, err)
	assert.Nil(t, out.Redirect, "no redirect without a target")
	assert.Nil(t, h.backend.Calls()[0].Request.Fields)
}

func TestVerifyRejected(t *testing.T) {
	h := newHarness(t)
	h.backend.SubmitFunc = func(context.Context, string, recognition.Request) (*recognition.Response, error) {
		return &recognition.Response{Success: false, Message: "not recognized"}, nil
	}
	h.start(t)

	out, err := h.ctrl.Verify(context.Background(), "maria")
	assert.True(t, IsKind(err, ServerRejected), "got %v", err)
	require.NotNil(t, out)
	assert.Equal(t, "not recognized", out.Response.Message)
	assert.Nil(t, out.Redirect)

	st := h.lastStatus(t)
	assert.Equal(t, status.KindError, st.Kind)
	assert.Equal(t, "not recognized", st.Message)

	h.clock.Advance(time.Minute)
	assert.Empty(t, h.nav.Targets())
	assert.True(t, h.ctrl.Active())
}

func TestStaleResponseDiscarded(t *testing.T) {
	h := newHarness(t)
	entered, release := blockingBackend(h.backend, &recognition.Response{Success: true, RedirectURL: "/home"})
	h.start(t)

	type result struct {
		out *Outcome
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := h.ctrl.Verify(context.Background(), "maria")
		done <- result{out, err}
	}()
	<-entered

	h.ctrl.StopCamera()
	assert.False(t, h.ctrl.Processing(), "StopCamera clears the in-flight flag")
	shown := len(h.rec.All())

	close(release)
	r := <-done
	assert.Nil(t, r.out)
	assert.True(t, IsKind(r.err, Stale), "got %v", r.err)
	assert.Len(t, h.rec.All(), shown, "a stale response must not update the status")

	h.clock.Advance(time.Minute)
	assert.Empty(t, h.nav.Targets())
}

type gateFunc func(image.Image) liveness.Result

func (f gateFunc) Check(img image.Image) liveness.Result { return f(img) }

func TestQualityGate(t *testing.T) {
	gate := gateFunc(func(image.Image) liveness.Result {
		return liveness.Result{Reason: liveness.Blurred, Sharpness: 12}
	})
	h := newHarness(t, WithQualityGate(gate))
	h.start(t)

	out, err := h.ctrl.Enroll(context.Background())
	assert.Nil(t, out)
	assert.True(t, IsKind(err, LowQuality), "got %v", err)
	assert.Zero(t, h.backend.CallCount(), "a low-quality frame is never sent")

	st := h.lastStatus(t)
	assert.Equal(t, status.KindWarning, st.Kind)
	assert.Contains(t, st.Message, "blurred")
}

func TestQualityGatePassesPattern(t *testing.T) {
	h := newHarness(t, WithQualityGate(liveness.New()))
	h.start(t)

	_, err := h.ctrl.Enroll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, h.backend.CallCount())
}

func TestCloseCancelsRedirect(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	out, err := h.ctrl.Enroll(context.Background())
	require.NoError(t, err)

	h.ctrl.Close()
	h.ctrl.Close()

	assert.True(t, out.Redirect.Cancelled())
	assert.False(t, h.ctrl.Active())
	assert.Equal(t, 0, h.devices.Live())

	h.clock.Advance(time.Minute)
	assert.Empty(t, h.nav.Targets())
}

func TestDetectionLoopFollowsSession(t *testing.T) {
	preview := camera.NewPreview(camera.WithFrameInterval(5 * time.Millisecond))
	cfg := detection.DefaultConfig()
	cfg.Interval = 5 * time.Millisecond
	loop := detection.NewLoop(detection.NewMock(), preview.CurrentFrame, nil, detection.WithConfig(cfg))

	h := newHarness(t, WithVideo(preview), WithDetectionLoop(loop))
	assert.False(t, loop.Running())

	h.start(t)
	assert.True(t, loop.Running())

	h.ctrl.StopCamera()
	assert.False(t, loop.Running())
}

func TestDetectionLoopStopsWithRacingStop(t *testing.T) {
	preview := camera.NewPreview(camera.WithFrameInterval(5 * time.Millisecond))
	cfg := detection.DefaultConfig()
	cfg.Interval = 5 * time.Millisecond
	loop := detection.NewLoop(detection.NewMock(), preview.CurrentFrame, nil, detection.WithConfig(cfg))
	h := newHarness(t, WithVideo(preview), WithDetectionLoop(loop))

	for i := 0; i < 50; i++ {
		done := make(chan struct{})
		go func() {
			h.ctrl.StartCamera(context.Background())
			close(done)
		}()
		h.ctrl.StopCamera()
		<-done

		assert.Equal(t, h.ctrl.Active(), loop.Running(), "iteration %d", i)
		h.ctrl.StopCamera()
		require.False(t, loop.Running(), "iteration %d", i)
	}
}

func TestErrorIs(t *testing.T) {
	err := error(&Error{Kind: TransportError, StatusCode: 502, Err: io.ErrUnexpectedEOF})

	assert.ErrorIs(t, err, &Error{Kind: TransportError})
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.NotErrorIs(t, err, &Error{Kind: TransportError, StatusCode: 500})
	assert.NotErrorIs(t, err, &Error{Kind: Busy})
	assert.Equal(t, KindUnknown, KindOf(errors.New("plain")))
}
