package yunet

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"

	"github.com/teslashibe/go-facegate/pkg/detection"
)

func testConfig(t *testing.T) detection.Config {
	t.Helper()
	path := findModelPath()
	if path == "" {
		t.Skip("YuNet model not found, skipping test")
	}
	cfg := detection.DefaultConfig()
	cfg.ModelPath = path
	return cfg
}

func TestNewInvalidPath(t *testing.T) {
	cfg := detection.DefaultConfig()
	cfg.ModelPath = "/nonexistent/path/model.onnx"

	if _, err := New(cfg, nil); err == nil {
		t.Error("Expected error for invalid model path")
	}
}

func TestDetectInvalidImage(t *testing.T) {
	d, err := New(testConfig(t), nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer d.Close()

	if _, err := d.Detect(nil); err == nil {
		t.Error("Expected error for empty image")
	}
	if _, err := d.Detect([]byte("not a jpeg")); err == nil {
		t.Error("Expected error for invalid JPEG")
	}
}

func TestDetectSolidImage(t *testing.T) {
	d, err := New(testConfig(t), nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer d.Close()

	dets, err := d.Detect(solidJPEG(320, 240, color.RGBA{0, 0, 255, 255}))
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if len(dets) > 0 {
		t.Errorf("Expected no detections in solid color image, got %d", len(dets))
	}
}

func findModelPath() string {
	if p := os.Getenv("FACEGATE_DETECTION_MODEL"); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}
	for dir := cwd; dir != "/"; dir = filepath.Dir(dir) {
		p := filepath.Join(dir, "models", "face_detection_yunet.onnx")
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

func solidJPEG(width, height int, c color.Color) []byte {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	jpeg.Encode(&buf, img, nil)
	return buf.Bytes()
}
