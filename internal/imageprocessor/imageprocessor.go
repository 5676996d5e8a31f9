// Package imageprocessor turns uploaded image bytes into model input tensors.
package imageprocessor

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/nfnt/resize"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// Model input geometry.
const (
	DefaultHeight = 224
	DefaultWidth  = 224
	Channels      = 3

	// DefaultMaxPixels bounds width*height of an accepted image, checked
	// from the header before any pixel data is decoded.
	DefaultMaxPixels = 40_000_000
)

var (
	// ErrEmptyImage is returned for a zero-length buffer.
	ErrEmptyImage = errors.New("image data cannot be empty")
	// ErrImageTooLarge is returned when the declared dimensions exceed the pixel limit.
	ErrImageTooLarge = errors.New("image dimensions exceed the pixel limit")
)

// Tensor is a batch of one HWC image with float32 channel intensities in [0, 255].
type Tensor struct {
	Shape []int64
	Data  []float32
}

// Len is the number of elements the shape describes.
func (t *Tensor) Len() int {
	n := 1
	for _, d := range t.Shape {
		n *= int(d)
	}
	return n
}

// Decoder decodes and resizes images to a fixed input size. It holds no
// mutable state and is safe for concurrent use.
type Decoder struct {
	height    int
	width     int
	maxPixels int64
}

// Option configures a Decoder.
type Option func(*Decoder)

// WithMaxPixels overrides DefaultMaxPixels. Non-positive values are ignored.
func WithMaxPixels(n int64) Option {
	return func(d *Decoder) {
		if n > 0 {
			d.maxPixels = n
		}
	}
}

// NewDecoder returns a decoder producing height x width tensors.
func NewDecoder(height, width int, opts ...Option) *Decoder {
	if height <= 0 {
		height = DefaultHeight
	}
	if width <= 0 {
		width = DefaultWidth
	}
	d := &Decoder{height: height, width: width, maxPixels: DefaultMaxPixels}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Shape is the tensor shape produced by Decode.
func (d *Decoder) Shape() []int64 {
	return []int64{1, int64(d.height), int64(d.width), Channels}
}

// Decode decodes data as an image, resizes it bilinearly and lays it out
// as [1, height, width, 3].
func (d *Decoder) Decode(data []byte) (*Tensor, error) {
	if len(data) == 0 {
		return nil, ErrEmptyImage
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image header: %w", err)
	}
	if pixels := int64(cfg.Width) * int64(cfg.Height); pixels > d.maxPixels {
		return nil, fmt.Errorf("decode %s image %dx%d: %w", format, cfg.Width, cfg.Height, ErrImageTooLarge)
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	if b := img.Bounds(); b.Empty() {
		return nil, fmt.Errorf("decode %s image: empty bounds %v", format, b)
	}

	resized := resize.Resize(uint(d.width), uint(d.height), img, resize.Bilinear)
	return d.toTensor(resized), nil
}

func (d *Decoder) toTensor(img image.Image) *Tensor {
	bounds := img.Bounds()
	out := make([]float32, d.height*d.width*Channels)

	for y := 0; y < d.height; y++ {
		for x := 0; x < d.width; x++ {
			px := color.NRGBAModel.Convert(img.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.NRGBA)
			i := (y*d.width + x) * Channels
			out[i] = float32(px.R)
			out[i+1] = float32(px.G)
			out[i+2] = float32(px.B)
		}
	}

	return &Tensor{Shape: d.Shape(), Data: out}
}
