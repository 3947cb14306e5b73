// Package detection reports whether a face is in front of the camera while a
// capture session is active.
package detection

import "time"

// Detection is one face in normalized image coordinates.
type Detection struct {
	X, Y       float64 // Top-left corner (0-1 normalized)
	W, H       float64 // Width and height (0-1 normalized)
	Confidence float64 // Detection confidence (0-1)
}

// Center returns the center point of the detection.
func (d Detection) Center() (x, y float64) {
	return d.X + d.W/2, d.Y + d.H/2
}

// Area returns the area of the bounding box.
func (d Detection) Area() float64 {
	return d.W * d.H
}

// Detector is the interface for face detection backends.
type Detector interface {
	// Detect finds faces in a JPEG-encoded frame.
	Detect(jpeg []byte) ([]Detection, error)

	// Close releases resources.
	Close() error
}

// Config holds detector and loop configuration.
type Config struct {
	ModelPath        string        `toml:"model_path"`
	ConfidenceThresh float64       `toml:"confidence"`
	InputWidth       int           `toml:"input_width"`
	InputHeight      int           `toml:"input_height"`
	Interval         time.Duration `toml:"-"`
	MinFaceArea      float64       `toml:"min_face_area"` // faces smaller than this are ignored
}

// DefaultConfig returns production defaults for YuNet.
func DefaultConfig() Config {
	return Config{
		ModelPath:        "models/face_detection_yunet.onnx",
		ConfidenceThresh: 0.6,
		InputWidth:       320,
		InputHeight:      320,
		Interval:         500 * time.Millisecond,
		MinFaceArea:      0.02,
	}
}

// SelectBest picks the face to report when several are visible.
// Priority: confidence * 0.7 + relative area * 0.3.
func SelectBest(dets []Detection) *Detection {
	if len(dets) == 0 {
		return nil
	}
	if len(dets) == 1 {
		return &dets[0]
	}

	maxArea := 0.0
	for _, d := range dets {
		if d.Area() > maxArea {
			maxArea = d.Area()
		}
	}

	bestScore := -1.0
	var best *Detection
	for i := range dets {
		score := dets[i].Confidence * 0.7
		if maxArea > 0 {
			score += (dets[i].Area() / maxArea) * 0.3
		}
		if score > bestScore {
			bestScore = score
			best = &dets[i]
		}
	}
	return best
}

// Filter drops detections smaller than minArea.
func Filter(dets []Detection, minArea float64) []Detection {
	if minArea <= 0 {
		return dets
	}
	out := dets[:0:0]
	for _, d := range dets {
		if d.Area() >= minArea {
			out = append(out, d)
		}
	}
	return out
}
