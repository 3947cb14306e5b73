package main

import (
	"context"
	"fmt"
	"image"
	"log/slog"

	"github.com/teslashibe/go-facegate/internal/log"
	"github.com/teslashibe/go-facegate/pkg/camera"
	"github.com/teslashibe/go-facegate/pkg/camera/webcam"
	"github.com/teslashibe/go-facegate/pkg/capture"
	"github.com/teslashibe/go-facegate/pkg/detection"
	"github.com/teslashibe/go-facegate/pkg/detection/yunet"
	"github.com/teslashibe/go-facegate/pkg/liveness"
	"github.com/teslashibe/go-facegate/pkg/recognition"
	"github.com/teslashibe/go-facegate/pkg/status"
)

func newDevices(logger *slog.Logger) camera.MediaDevices {
	if cfg.UsePattern() {
		return &camera.PatternDevices{}
	}
	return webcam.New(logger)
}

func newBackend(ctx context.Context, logger *slog.Logger) (*recognition.Client, error) {
	client, err := recognition.NewClient(cfg.Backend,
		recognition.WithTimeout(cfg.HTTPTimeout),
		recognition.WithCSRF(cfg.CSRFCookie, ""),
		recognition.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	logger.Info("using recognition backend", "url", client.BaseURL())

	// The backend hands out the anti-forgery cookie with the enrollment page.
	if err := client.Prime(ctx, cfg.PagePath); err != nil {
		logger.Warn("could not fetch anti-forgery cookie", "path", cfg.PagePath, "error", err)
	}
	return client, nil
}

// newController wires a capture controller from cfg. onFrame and onFace
// may be nil. The returned func releases the camera and the detector.
func newController(
	ctx context.Context, sink status.Sink, nav capture.Navigator,
	onFrame func(image.Image), onFace func(detection.Event),
) (*capture.Controller, func(), error) {
	logger := log.L()

	camCfg, err := cfg.CameraConfig()
	if err != nil {
		return nil, nil, err
	}

	client, err := newBackend(ctx, logger)
	if err != nil {
		return nil, nil, err
	}

	preview := camera.NewPreview(camera.WithPreviewLogger(logger))
	preview.OnFrame = onFrame

	opts := []capture.Option{
		capture.WithDevices(newDevices(logger)),
		capture.WithVideo(preview),
		capture.WithBackend(client),
		capture.WithDisplay(status.NewDisplay(sink, status.WithDismissAfter(cfg.DismissAfter))),
		capture.WithNavigator(nav),
		capture.WithCameraConfig(camCfg),
		capture.WithLanguage(cfg.Language),
		capture.WithPaths(cfg.PagePath, cfg.LoginPath, cfg.ListingPath),
		capture.WithRedirectDelay(cfg.RedirectDelay),
		capture.WithMetadataTimeout(cfg.MetadataTimeout),
		capture.WithLogger(logger),
	}
	if cfg.QualityGate {
		opts = append(opts, capture.WithQualityGate(liveness.New()))
	}

	release := func() {}
	if cfg.Detection {
		dcfg := detection.DefaultConfig()
		dcfg.ModelPath = cfg.ModelPath

		det, err := yunet.New(dcfg, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("load face detector: %w", err)
		}
		loop := detection.NewLoop(det, preview.CurrentFrame, onFace,
			detection.WithConfig(dcfg),
			detection.WithLogger(logger),
		)
		opts = append(opts, capture.WithDetectionLoop(loop))
		release = func() { det.Close() }
	}

	ctrl, err := capture.New(opts...)
	if err != nil {
		release()
		return nil, nil, err
	}
	return ctrl, func() {
		ctrl.Close()
		release()
	}, nil
}
