package camera

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"strings"
	"sync"

	"golang.org/x/image/draw"
)

// Canvas is the offscreen drawing surface a frame is captured into.
type Canvas struct {
	mu  sync.Mutex
	img *image.RGBA
}

// NewCanvas creates an empty canvas.
func NewCanvas() *Canvas {
	return &Canvas{img: image.NewRGBA(image.Rect(0, 0, 0, 0))}
}

// Resize sets the canvas dimensions, clearing its content.
func (c *Canvas) Resize(width, height int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.img = image.NewRGBA(image.Rect(0, 0, width, height))
}

// Size returns the canvas dimensions.
func (c *Canvas) Size() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b := c.img.Bounds()
	return b.Dx(), b.Dy()
}

// DrawImage draws src over the whole canvas, scaling when the sizes differ.
func (c *Canvas) DrawImage(src image.Image) {
	c.mu.Lock()
	defer c.mu.Unlock()

	dst := c.img.Bounds()
	sb := src.Bounds()
	if sb.Dx() == dst.Dx() && sb.Dy() == dst.Dy() {
		draw.Draw(c.img, dst, src, sb.Min, draw.Src)
		return
	}
	draw.CatmullRom.Scale(c.img, dst, src, sb, draw.Src, nil)
}

// Image returns a copy of the canvas content.
func (c *Canvas) Image() image.Image {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := image.NewRGBA(c.img.Bounds())
	copy(out.Pix, c.img.Pix)
	return out
}

// ToDataURL encodes the canvas as a data URL ("data:image/jpeg;base64,...").
// Quality applies to JPEG only.
func (c *Canvas) ToDataURL(format string, quality int) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	b := c.img.Bounds()
	if b.Empty() {
		return "", fmt.Errorf("canvas: empty surface")
	}

	data, err := Encode(c.img, format, quality)
	if err != nil {
		return "", err
	}
	return DataURL(format, data), nil
}

// Encode encodes img in the given format.
func Encode(img image.Image, format string, quality int) ([]byte, error) {
	var buf bytes.Buffer
	switch format {
	case FormatJPEG, "":
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return nil, fmt.Errorf("canvas: encode jpeg: %w", err)
		}
	case FormatPNG:
		if err := png.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("canvas: encode png: %w", err)
		}
	default:
		return nil, fmt.Errorf("canvas: unsupported format %q", format)
	}
	return buf.Bytes(), nil
}

// DataURL wraps encoded image bytes in a base64 data URL.
func DataURL(format string, data []byte) string {
	if format == "" {
		format = FormatJPEG
	}
	return "data:" + format + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// DecodeDataURL returns the media type and raw bytes of a base64 data URL.
func DecodeDataURL(s string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(s, "data:")
	if !ok {
		return "", nil, fmt.Errorf("canvas: not a data URL")
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, fmt.Errorf("canvas: malformed data URL")
	}
	mediaType, ok := strings.CutSuffix(meta, ";base64")
	if !ok {
		return "", nil, fmt.Errorf("canvas: data URL is not base64")
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("canvas: decode data URL: %w", err)
	}
	return mediaType, data, nil
}
