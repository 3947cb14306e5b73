package web

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-facegate/pkg/camera"
	"github.com/teslashibe/go-facegate/pkg/capture"
	"github.com/teslashibe/go-facegate/pkg/hub"
)

// VerifyRequest is the body of POST /api/verify.
type VerifyRequest struct {
	Account string `json:"account"`
}

// ErrorResponse is the body of every failed API call.
type ErrorResponse struct {
	Error      string           `json:"error"`
	Message    string           `json:"message"`
	StatusCode int              `json:"status_code,omitempty"`
	Outcome    *capture.Outcome `json:"outcome,omitempty"`
}

// httpStatus maps controller error kinds to HTTP status codes.
func httpStatus(k capture.Kind) int {
	switch k {
	case capture.Busy, capture.AlreadyActive, capture.Stale:
		return fiber.StatusConflict
	case capture.UnsupportedEnvironment:
		return fiber.StatusNotImplemented
	case capture.PermissionDenied:
		return fiber.StatusForbidden
	case capture.DeviceNotFound:
		return fiber.StatusNotFound
	case capture.CaptureNotReady, capture.LowQuality:
		return fiber.StatusUnprocessableEntity
	case capture.ServerRejected:
		return fiber.StatusUnauthorized
	case capture.TransportError:
		return fiber.StatusBadGateway
	case capture.ConnectivityError:
		return fiber.StatusGatewayTimeout
	default:
		return fiber.StatusInternalServerError
	}
}

func (s *Server) controllerError(c *fiber.Ctx, err error, out *capture.Outcome) error {
	var ce *capture.Error
	if !errors.As(err, &ce) {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Error:   capture.Unexpected.String(),
			Message: err.Error(),
		})
	}
	return c.Status(httpStatus(ce.Kind)).JSON(ErrorResponse{
		Error:      ce.Kind.String(),
		Message:    ce.Message,
		StatusCode: ce.StatusCode,
		Outcome:    out,
	})
}

// needController rejects requests until a controller is bound.
func (s *Server) needController(c *fiber.Ctx) error {
	if s.controller() == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(ErrorResponse{
			Error:   "unavailable",
			Message: "controller not ready",
		})
	}
	return c.Next()
}

// handleStatus returns the controller state and the shown status.
func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.snapshot())
}

func (s *Server) handleCameraStart(c *fiber.Ctx) error {
	ctrl := s.controller()
	if err := ctrl.StartCamera(c.UserContext()); err != nil {
		return s.controllerError(c, err, nil)
	}
	state := ctrl.State()
	s.broadcast(EventState, state)
	return c.JSON(state)
}

func (s *Server) handleCameraStop(c *fiber.Ctx) error {
	ctrl := s.controller()
	ctrl.StopCamera()
	state := ctrl.State()
	s.broadcast(EventState, state)
	return c.JSON(state)
}

func (s *Server) handleEnroll(c *fiber.Ctx) error {
	ctrl := s.controller()
	out, err := ctrl.Enroll(c.UserContext())
	if err != nil {
		return s.controllerError(c, err, out)
	}
	return c.JSON(out)
}

func (s *Server) handleVerify(c *fiber.Ctx) error {
	ctrl := s.controller()

	var req VerifyRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
				Error:   "bad_request",
				Message: err.Error(),
			})
		}
	}

	out, err := ctrl.Verify(c.UserContext(), strings.TrimSpace(req.Account))
	if err != nil {
		return s.controllerError(c, err, out)
	}
	return c.JSON(out)
}

func (s *Server) handleGetCameraConfig(c *fiber.Ctx) error {
	ctrl := s.controller()
	return c.JSON(ctrl.Cameras().Config())
}

// handleUpdateCameraConfig applies a partial update; it takes effect on the
// next camera start.
func (s *Server) handleUpdateCameraConfig(c *fiber.Ctx) error {
	ctrl := s.controller()

	var params map[string]interface{}
	if err := c.BodyParser(&params); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Error:   "bad_request",
			Message: err.Error(),
		})
	}
	if err := ctrl.Cameras().UpdateConfig(params); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Error:   "invalid_config",
			Message: err.Error(),
		})
	}
	return c.JSON(ctrl.Cameras().Config())
}

func (s *Server) handleListPresets(c *fiber.Ctx) error {
	return c.JSON(camera.PresetNames())
}

// handleStatusWS streams status events, starting with a snapshot.
func (s *Server) handleStatusWS(conn *websocket.Conn) {
	hello, err := hub.EncodeEvent(EventHello, s.snapshot())
	if err != nil {
		s.logger.Warn("encode hello failed", "error", err)
		return
	}
	hub.NewClient(s.statusHub, conn, hello).Run()
}

// handleCameraWS streams JPEG preview frames.
func (s *Server) handleCameraWS(conn *websocket.Conn) {
	hub.NewClient(s.cameraHub, conn).Run()
}
