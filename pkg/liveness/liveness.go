// Package liveness scores a captured frame before it is submitted: a blurred
// frame or one with a flat tonal range (a printed photo held to the lens)
// is turned away on the client instead of costing a backend round-trip.
package liveness

import (
	"image"
	"image/color"
	"math"

	"gonum.org/v1/gonum/stat"
)

// Default thresholds, matching the backend's own checks.
const (
	DefaultMinSharpness = 100.0 // Laplacian variance
	DefaultMinEntropy   = 4.5   // bits
)

// Reason says why a frame failed.
type Reason int

const (
	Passed Reason = iota
	Blurred
	FlatHistogram
	EmptyFrame
)

// String returns the reason name.
func (r Reason) String() string {
	switch r {
	case Passed:
		return "passed"
	case Blurred:
		return "blurred"
	case FlatHistogram:
		return "flat_histogram"
	case EmptyFrame:
		return "empty_frame"
	default:
		return "unknown"
	}
}

// Result is the outcome of a check.
type Result struct {
	Reason    Reason
	Sharpness float64
	Entropy   float64
}

// OK reports whether the frame passed.
func (r Result) OK() bool { return r.Reason == Passed }

// Checker holds the thresholds.
type Checker struct {
	MinSharpness float64
	MinEntropy   float64
}

// New returns a checker with the default thresholds.
func New() *Checker {
	return &Checker{
		MinSharpness: DefaultMinSharpness,
		MinEntropy:   DefaultMinEntropy,
	}
}

// Check scores img. Sharpness is evaluated first.
func (c *Checker) Check(img image.Image) Result {
	gray := toGray(img)
	b := gray.Bounds()
	if b.Dx() < 3 || b.Dy() < 3 {
		return Result{Reason: EmptyFrame}
	}

	res := Result{
		Sharpness: Sharpness(gray),
		Entropy:   Entropy(gray),
	}
	switch {
	case res.Sharpness < c.MinSharpness:
		res.Reason = Blurred
	case res.Entropy < c.MinEntropy:
		res.Reason = FlatHistogram
	default:
		res.Reason = Passed
	}
	return res
}

func toGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}
	b := img.Bounds()
	g := image.NewGray(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			g.Set(x, y, color.GrayModel.Convert(img.At(x, y)))
		}
	}
	return g
}

// Sharpness returns the variance of the 4-neighbour Laplacian response.
func Sharpness(g *image.Gray) float64 {
	b := g.Bounds()
	resp := make([]float64, 0, (b.Dx()-2)*(b.Dy()-2))
	for y := b.Min.Y + 1; y < b.Max.Y-1; y++ {
		for x := b.Min.X + 1; x < b.Max.X-1; x++ {
			c := float64(g.GrayAt(x, y).Y)
			sum := float64(g.GrayAt(x-1, y).Y) +
				float64(g.GrayAt(x+1, y).Y) +
				float64(g.GrayAt(x, y-1).Y) +
				float64(g.GrayAt(x, y+1).Y)
			resp = append(resp, sum-4*c)
		}
	}
	if len(resp) < 2 {
		return 0
	}
	_, variance := stat.PopMeanVariance(resp, nil)
	return variance
}

// Entropy returns the Shannon entropy of the 256-bin histogram in bits.
func Entropy(g *image.Gray) float64 {
	b := g.Bounds()
	total := float64(b.Dx() * b.Dy())
	if total == 0 {
		return 0
	}

	hist := make([]float64, 256)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			hist[g.GrayAt(x, y).Y]++
		}
	}
	for i := range hist {
		hist[i] /= total
	}
	return stat.Entropy(hist) / math.Ln2
}
