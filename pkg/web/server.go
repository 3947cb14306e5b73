// Package web serves the kiosk: a small REST API that drives the capture
// controller, plus websockets streaming status changes and preview frames.
package web

import (
	"context"
	"image"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-facegate/pkg/camera"
	"github.com/teslashibe/go-facegate/pkg/capture"
	"github.com/teslashibe/go-facegate/pkg/detection"
	"github.com/teslashibe/go-facegate/pkg/hub"
	"github.com/teslashibe/go-facegate/pkg/status"
)

// Event types sent on /ws/status.
const (
	EventHello    = "hello"
	EventStatus   = "status"
	EventClear    = "clear"
	EventLoading  = "loading"
	EventNavigate = "navigate"
	EventFace     = "face"
	EventState    = "state"
	EventConfig   = "camera_config"
)

// Controller is the capture controller surface the kiosk drives.
// *capture.Controller implements it.
type Controller interface {
	StartCamera(ctx context.Context) error
	StopCamera()
	Enroll(ctx context.Context) (*capture.Outcome, error)
	Verify(ctx context.Context, account string) (*capture.Outcome, error)
	State() capture.State
	Cameras() *camera.Manager
}

// Config holds server settings.
type Config struct {
	Addr          string        `toml:"addr"`
	StaticDir     string        `toml:"static_dir"`
	FrameInterval time.Duration `toml:"-"` // minimum gap between preview frames
	FrameQuality  int           `toml:"frame_quality"`
}

// DefaultConfig returns the kiosk defaults.
func DefaultConfig() Config {
	return Config{
		Addr:          ":8080",
		FrameInterval: 100 * time.Millisecond,
		FrameQuality:  70,
	}
}

// LoadingState is the loading indicator as shown on the page.
type LoadingState struct {
	Visible bool   `json:"visible"`
	Text    string `json:"text,omitempty"`
}

// Snapshot is the body of GET /api/status and the hello event.
type Snapshot struct {
	State   capture.State  `json:"state"`
	Status  *status.Status `json:"status,omitempty"`
	Loading LoadingState   `json:"loading"`
}

// Server is the kiosk web server.
type Server struct {
	app    *fiber.App
	cfg    Config
	logger *slog.Logger

	mu      sync.RWMutex
	ctrl    Controller
	current *status.Status
	loading LoadingState

	frameMu   sync.Mutex
	lastFrame time.Time

	statusHub *hub.Hub
	cameraHub *hub.Hub
	hubsOnce  sync.Once
}

// NewServer creates the kiosk server. Bind a controller before serving.
func NewServer(cfg Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.FrameQuality <= 0 {
		cfg.FrameQuality = DefaultConfig().FrameQuality
	}

	s := &Server{
		cfg:       cfg,
		logger:    logger.With("component", "web"),
		statusHub: hub.New("status", logger),
		cameraHub: hub.New("camera", logger),
	}

	app := fiber.New(fiber.Config{
		AppName:               "facegate kiosk",
		DisableStartupMessage: true,
	})
	app.Use(recover.New())
	app.Use(cors.New())

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/camera/presets", s.handleListPresets)
	api.Post("/camera/start", s.needController, s.handleCameraStart)
	api.Post("/camera/stop", s.needController, s.handleCameraStop)
	api.Get("/camera/config", s.needController, s.handleGetCameraConfig)
	api.Put("/camera/config", s.needController, s.handleUpdateCameraConfig)
	api.Post("/enroll", s.needController, s.handleEnroll)
	api.Post("/verify", s.needController, s.handleVerify)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/status", websocket.New(s.handleStatusWS))
	app.Get("/ws/camera", websocket.New(s.handleCameraWS))

	if cfg.StaticDir != "" {
		app.Static("/", cfg.StaticDir)
	}

	s.app = app
	return s
}

// Bind attaches the controller the API drives.
func (s *Server) Bind(ctrl Controller) {
	s.mu.Lock()
	s.ctrl = ctrl
	s.mu.Unlock()

	if ctrl == nil {
		return
	}
	if m := ctrl.Cameras(); m != nil {
		m.OnConfigChange(func(cfg camera.Config) { s.broadcast(EventConfig, cfg) })
	}
}

func (s *Server) controller() Controller {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ctrl
}

// App exposes the fiber app, mainly for tests.
func (s *Server) App() *fiber.App { return s.app }

func (s *Server) startHubs() {
	s.hubsOnce.Do(func() {
		go s.statusHub.Run()
		go s.cameraHub.Run()
	})
}

// Start serves on the configured address until Shutdown.
func (s *Server) Start() error {
	s.startHubs()
	s.logger.Info("kiosk listening", "addr", s.cfg.Addr)
	return s.app.Listen(s.cfg.Addr)
}

// Serve serves on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.startHubs()
	s.logger.Info("kiosk listening", "addr", ln.Addr().String())
	return s.app.Listener(ln)
}

// Shutdown stops the server and disconnects websocket clients.
func (s *Server) Shutdown() error {
	s.statusHub.Stop()
	s.cameraHub.Stop()
	return s.app.Shutdown()
}

// Render implements status.Sink.
func (s *Server) Render(st status.Status) {
	s.mu.Lock()
	s.current = &st
	s.mu.Unlock()
	s.broadcast(EventStatus, st)
}

// Clear implements status.Sink.
func (s *Server) Clear(id string) {
	s.mu.Lock()
	if s.current != nil && s.current.ID == id {
		s.current = nil
	}
	s.mu.Unlock()
	s.broadcast(EventClear, fiber.Map{"id": id})
}

// Loading implements status.Sink.
func (s *Server) Loading(visible bool, text string) {
	ls := LoadingState{Visible: visible, Text: text}
	s.mu.Lock()
	s.loading = ls
	s.mu.Unlock()
	s.broadcast(EventLoading, ls)
}

// Navigate implements capture.Navigator by telling the page to move.
func (s *Server) Navigate(target string) {
	s.logger.Info("redirecting kiosk", "target", target)
	s.broadcast(EventNavigate, fiber.Map{"target": target})
}

// FaceEvent publishes a face presence change.
func (s *Server) FaceEvent(ev detection.Event) {
	s.broadcast(EventFace, ev)
}

// SendFrame pushes a preview frame to /ws/camera clients, throttled to the
// configured interval. Frames are only encoded while someone is watching.
func (s *Server) SendFrame(img image.Image) {
	if img == nil || s.cameraHub.ClientCount() == 0 {
		return
	}

	s.frameMu.Lock()
	now := time.Now()
	if now.Sub(s.lastFrame) < s.cfg.FrameInterval {
		s.frameMu.Unlock()
		return
	}
	s.lastFrame = now
	s.frameMu.Unlock()

	data, err := camera.Encode(img, camera.FormatJPEG, s.cfg.FrameQuality)
	if err != nil {
		s.logger.Debug("preview frame encode failed", "error", err)
		return
	}
	s.cameraHub.BroadcastBinary(data)
}

func (s *Server) broadcast(eventType string, data interface{}) {
	if err := s.statusHub.BroadcastEvent(eventType, data); err != nil {
		s.logger.Warn("broadcast failed", "event", eventType, "error", err)
	}
}

func (s *Server) snapshot() Snapshot {
	var snap Snapshot
	if ctrl := s.controller(); ctrl != nil {
		snap.State = ctrl.State()
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current != nil {
		cur := *s.current
		snap.Status = &cur
	}
	snap.Loading = s.loading
	return snap
}
