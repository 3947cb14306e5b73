package web

import (
	"context"
	"encoding/json"
	"image/color"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-facegate/pkg/camera"
	"github.com/teslashibe/go-facegate/pkg/capture"
	"github.com/teslashibe/go-facegate/pkg/hub"
	"github.com/teslashibe/go-facegate/pkg/recognition"
	"github.com/teslashibe/go-facegate/pkg/schedule"
	"github.com/teslashibe/go-facegate/pkg/status"
)

type fixture struct {
	server  *Server
	ctrl    *capture.Controller
	devices *camera.PatternDevices
	backend *recognition.Mock
	clock   *schedule.Manual
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFixture(t *testing.T, opts ...capture.Option) *fixture {
	t.Helper()

	f := &fixture{
		devices: &camera.PatternDevices{},
		backend: recognition.NewMock(),
		clock:   schedule.NewManual(time.Unix(1700000000, 0)),
	}
	f.server = NewServer(DefaultConfig(), quietLogger())

	cfg := camera.DefaultConfig()
	cfg.Width, cfg.Height = 160, 120

	base := []capture.Option{
		capture.WithDevices(f.devices),
		capture.WithVideo(camera.NewPreview(camera.WithFrameInterval(5 * time.Millisecond))),
		capture.WithBackend(f.backend),
		capture.WithDisplay(status.NewDisplay(f.server, status.WithScheduler(f.clock))),
		capture.WithNavigator(f.server),
		capture.WithScheduler(f.clock),
		capture.WithCameraConfig(cfg),
		capture.WithLanguage("en"),
		capture.WithLogger(quietLogger()),
	}
	ctrl, err := capture.New(append(base, opts...)...)
	require.NoError(t, err)
	f.ctrl = ctrl
	f.server.Bind(ctrl)

	t.Cleanup(func() {
		ctrl.Close()
		f.server.Shutdown()
	})
	return f
}

func (f *fixture) do(t *testing.T, method, path, body string) (int, map[string]interface{}) {
	t.Helper()

	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := f.server.App().Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var out map[string]interface{}
	if len(data) > 0 && data[0] == '{' {
		require.NoError(t, json.Unmarshal(data, &out), string(data))
	}
	return resp.StatusCode, out
}

func TestHTTPStatusMapping(t *testing.T) {
	tests := map[capture.Kind]int{
		capture.Busy:                   http.StatusConflict,
		capture.AlreadyActive:          http.StatusConflict,
		capture.UnsupportedEnvironment: http.StatusNotImplemented,
		capture.PermissionDenied:       http.StatusForbidden,
		capture.DeviceNotFound:         http.StatusNotFound,
		capture.DeviceError:            http.StatusInternalServerError,
		capture.CaptureNotReady:        http.StatusUnprocessableEntity,
		capture.LowQuality:             http.StatusUnprocessableEntity,
		capture.ServerRejected:         http.StatusUnauthorized,
		capture.TransportError:         http.StatusBadGateway,
		capture.ConnectivityError:      http.StatusGatewayTimeout,
	}
	for kind, want := range tests {
		assert.Equal(t, want, httpStatus(kind), kind.String())
	}
}

func TestUnboundServer(t *testing.T) {
	s := NewServer(DefaultConfig(), quietLogger())
	defer s.Shutdown()

	req := httptest.NewRequest(http.MethodPost, "/api/camera/start", nil)
	resp, err := s.App().Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	req = httptest.NewRequest(http.MethodGet, "/api/status", nil)
	resp, err = s.App().Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCameraStartStop(t *testing.T) {
	f := newFixture(t)

	code, body := f.do(t, http.MethodPost, "/api/camera/start", "")
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, true, body["camera_active"])

	code, body = f.do(t, http.MethodPost, "/api/camera/start", "")
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "already_active", body["error"])

	code, body = f.do(t, http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, code)
	shown := body["status"].(map[string]interface{})
	assert.Equal(t, "warning", shown["kind"])

	code, body = f.do(t, http.MethodPost, "/api/camera/stop", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, body["camera_active"])
	assert.Equal(t, 0, f.devices.Live())
}

func TestCameraStartErrors(t *testing.T) {
	f := newFixture(t, capture.WithDevices(nil))
	code, body := f.do(t, http.MethodPost, "/api/camera/start", "")
	assert.Equal(t, http.StatusNotImplemented, code)
	assert.Equal(t, "unsupported_environment", body["error"])

	f = newFixture(t)
	f.devices.Fail = &camera.DeviceError{Name: camera.ErrNameNotAllowed}
	code, body = f.do(t, http.MethodPost, "/api/camera/start", "")
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "permission_denied", body["error"])
	assert.NotEmpty(t, body["message"])
}

func TestEnroll(t *testing.T) {
	f := newFixture(t)

	code, body := f.do(t, http.MethodPost, "/api/enroll", "")
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, "capture_not_ready", body["error"])

	code, _ = f.do(t, http.MethodPost, "/api/camera/start", "")
	require.Equal(t, http.StatusOK, code)

	code, body = f.do(t, http.MethodPost, "/api/enroll", "")
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, capture.DefaultListingPath, body["target"])
	assert.Equal(t, 1, f.backend.CallCount())
	assert.Equal(t, capture.DefaultPagePath, f.backend.Calls()[0].Endpoint)
}

func TestVerify(t *testing.T) {
	f := newFixture(t)
	f.backend.SubmitFunc = func(_ context.Context, _ string, r recognition.Request) (*recognition.Response, error) {
		if r.Fields[capture.FieldAccount] != "maria" {
			return &recognition.Response{Success: false, Message: "not recognized"}, nil
		}
		return &recognition.Response{Success: true, Message: "welcome", RedirectURL: "/home"}, nil
	}

	code, _ := f.do(t, http.MethodPost, "/api/camera/start", "")
	require.Equal(t, http.StatusOK, code)

	code, body := f.do(t, http.MethodPost, "/api/verify", `{"account": " maria "}`)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "/home", body["target"])

	code, body = f.do(t, http.MethodPost, "/api/verify", `{"account": "joao"}`)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "server_rejected", body["error"])
	assert.Equal(t, "not recognized", body["message"])
	outcome := body["outcome"].(map[string]interface{})
	resp := outcome["response"].(map[string]interface{})
	assert.Equal(t, false, resp["success"])

	code, _ = f.do(t, http.MethodPost, "/api/verify", `{"account":`)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestCameraConfig(t *testing.T) {
	f := newFixture(t)

	code, body := f.do(t, http.MethodGet, "/api/camera/config", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(160), body["width"])

	code, body = f.do(t, http.MethodPut, "/api/camera/config", `{"preset": "720p", "quality": 90}`)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, float64(1280), body["width"])
	assert.Equal(t, float64(90), body["quality"])

	code, body = f.do(t, http.MethodPut, "/api/camera/config", `{"bogus": 1}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "invalid_config", body["error"])
}

func serve(t *testing.T, s *Server) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go s.Serve(ln)
	return ln.Addr().String()
}

func dial(t *testing.T, addr, path string) *websocket.Conn {
	t.Helper()
	var (
		conn *websocket.Conn
		err  error
	)
	require.Eventually(t, func() bool {
		conn, _, err = websocket.DefaultDialer.Dial("ws://"+addr+path, nil)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond, "dial %s", path)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn, eventType string) json.RawMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)

		var ev struct {
			Type string          `json:"type"`
			Data json.RawMessage `json:"data"`
		}
		require.NoError(t, json.Unmarshal(data, &ev))
		if ev.Type == eventType {
			return ev.Data
		}
	}
}

func TestStatusWebSocket(t *testing.T) {
	f := newFixture(t)
	addr := serve(t, f.server)
	conn := dial(t, addr, "/ws/status")

	var hello struct {
		State capture.State `json:"state"`
	}
	require.NoError(t, json.Unmarshal(readEvent(t, conn, EventHello), &hello))
	assert.Equal(t, "idle", hello.State.Phase)

	require.NoError(t, f.ctrl.StartCamera(context.Background()))
	var st map[string]interface{}
	for st["kind"] != "success" {
		require.NoError(t, json.Unmarshal(readEvent(t, conn, EventStatus), &st))
	}
	assert.Equal(t, "Camera started.", st["message"])

	f.server.Navigate("/home")
	var nav map[string]string
	require.NoError(t, json.Unmarshal(readEvent(t, conn, EventNavigate), &nav))
	assert.Equal(t, "/home", nav["target"])
}

func TestCameraConfigBroadcast(t *testing.T) {
	f := newFixture(t)
	addr := serve(t, f.server)
	conn := dial(t, addr, "/ws/status")
	readEvent(t, conn, EventHello)

	code, body := f.do(t, http.MethodPut, "/api/camera/config", `{"quality": 70}`)
	require.Equal(t, http.StatusOK, code, body)

	var cfg map[string]interface{}
	require.NoError(t, json.Unmarshal(readEvent(t, conn, EventConfig), &cfg))
	assert.Equal(t, float64(70), cfg["quality"])
}

func TestCameraWebSocket(t *testing.T) {
	f := newFixture(t)
	addr := serve(t, f.server)
	conn := dial(t, addr, "/ws/camera")

	require.Eventually(t, func() bool { return f.server.cameraHub.ClientCount() == 1 },
		2*time.Second, 5*time.Millisecond)

	f.server.SendFrame(camera.Solid(64, 48, color.Gray{Y: 128}))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	mt, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.BinaryMessage, mt)
	require.Greater(t, len(data), 2)
	assert.Equal(t, []byte{0xff, 0xd8}, data[:2], "expected a JPEG frame")
}

func TestSendFrameWithoutViewers(t *testing.T) {
	s := NewServer(DefaultConfig(), quietLogger())
	defer s.Shutdown()

	// Nothing to encode or queue.
	s.SendFrame(camera.Solid(8, 8, color.Gray{Y: 128}))
	s.SendFrame(nil)
	assert.Equal(t, 0, s.cameraHub.ClientCount())
}

func TestEventEnvelope(t *testing.T) {
	msg, err := hub.EncodeEvent(EventLoading, LoadingState{Visible: true, Text: "Processing..."})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"loading","data":{"visible":true,"text":"Processing..."}}`, string(msg.Data))
}
