// Package yunet implements detection.Detector with OpenCV's FaceDetectorYN.
package yunet

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"sync"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-facegate/pkg/detection"
)

// ErrEmptyImage is returned when the frame decodes to nothing.
var ErrEmptyImage = errors.New("yunet: empty image")

// Detector wraps a gocv FaceDetectorYN. Safe for concurrent use.
type Detector struct {
	detector gocv.FaceDetectorYN
	config   detection.Config
	logger   *slog.Logger
	mu       sync.Mutex // protects inference
}

// New loads the ONNX model named in cfg.
func New(cfg detection.Config, logger *slog.Logger) (*Detector, error) {
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("model file not found: %s: %w", cfg.ModelPath, err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	// Input size is reset per frame.
	det := gocv.NewFaceDetectorYNWithParams(
		cfg.ModelPath,
		"",
		image.Pt(cfg.InputWidth, cfg.InputHeight),
		float32(cfg.ConfidenceThresh),
		0.3,  // NMS threshold
		5000, // top K
		int(gocv.NetBackendDefault),
		int(gocv.NetTargetCPU),
	)

	return &Detector{
		detector: det,
		config:   cfg,
		logger:   logger.With("component", "yunet"),
	}, nil
}

// Detect finds faces in the JPEG frame.
func (d *Detector) Detect(jpeg []byte) ([]detection.Detection, error) {
	if len(jpeg) == 0 {
		return nil, ErrEmptyImage
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	img, err := gocv.IMDecode(jpeg, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	defer img.Close()

	if img.Empty() {
		return nil, ErrEmptyImage
	}

	imgW := float64(img.Cols())
	imgH := float64(img.Rows())
	d.detector.SetInputSize(image.Pt(img.Cols(), img.Rows()))

	faces := gocv.NewMat()
	defer faces.Close()
	d.detector.Detect(img, &faces)

	// Rows are x, y, w, h, five landmark pairs, then the score.
	var out []detection.Detection
	for r := 0; r < faces.Rows(); r++ {
		out = append(out, detection.Detection{
			X:          float64(faces.GetFloatAt(r, 0)) / imgW,
			Y:          float64(faces.GetFloatAt(r, 1)) / imgH,
			W:          float64(faces.GetFloatAt(r, 2)) / imgW,
			H:          float64(faces.GetFloatAt(r, 3)) / imgH,
			Confidence: float64(faces.GetFloatAt(r, 14)),
		})
	}

	if len(out) > 0 {
		d.logger.Debug("faces found", "count", len(out))
	}
	return out, nil
}

// Close releases the detector.
func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.detector.Close()
	return nil
}
