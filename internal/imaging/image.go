package imaging

import (
	"fmt"
	"image"
	"math"
)

// Image is a single-channel floating-point image stored row-major.
//
// Pixel (x, y) lives at Pix[y*Width+x]. The origin is the first stored row;
// for FITS data that is the bottom row of the sky frame, for PNG/JPEG it is
// the top row. Nothing in the estimators depends on which.
type Image struct {
	Width  int
	Height int
	Pix    []float64
}

// NewImage allocates a zero-filled image.
func NewImage(width, height int) (*Image, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid image size %dx%d", width, height)
	}
	return &Image{Width: width, Height: height, Pix: make([]float64, width*height)}, nil
}

// NewImageFrom wraps an existing pixel slice. The slice is not copied.
func NewImageFrom(width, height int, pix []float64) (*Image, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid image size %dx%d", width, height)
	}
	if len(pix) != width*height {
		return nil, fmt.Errorf("pixel count %d does not match %dx%d", len(pix), width, height)
	}
	return &Image{Width: width, Height: height, Pix: pix}, nil
}

// At returns the pixel value at (x, y). It panics if out of range.
func (m *Image) At(x, y int) float64 {
	return m.Pix[y*m.Width+x]
}

// Set stores v at (x, y). It panics if out of range.
func (m *Image) Set(x, y int, v float64) {
	m.Pix[y*m.Width+x] = v
}

// Len returns the number of pixels.
func (m *Image) Len() int {
	return len(m.Pix)
}

// Clone returns a deep copy.
func (m *Image) Clone() *Image {
	pix := make([]float64, len(m.Pix))
	copy(pix, m.Pix)
	return &Image{Width: m.Width, Height: m.Height, Pix: pix}
}

// Sub returns a copy of the region (x1,y1)-(x2,y2), with x2/y2 exclusive.
func (m *Image) Sub(x1, y1, x2, y2 int) (*Image, error) {
	if x1 < 0 || y1 < 0 || x2 > m.Width || y2 > m.Height {
		return nil, fmt.Errorf("region (%d,%d)-(%d,%d) outside image bounds (0,0)-(%d,%d)",
			x1, y1, x2, y2, m.Width, m.Height)
	}
	if x1 >= x2 || y1 >= y2 {
		return nil, fmt.Errorf("invalid region: x1 must be < x2, y1 must be < y2")
	}
	w, h := x2-x1, y2-y1
	out := &Image{Width: w, Height: h, Pix: make([]float64, w*h)}
	for y := 0; y < h; y++ {
		copy(out.Pix[y*w:(y+1)*w], m.Pix[(y+y1)*m.Width+x1:(y+y1)*m.Width+x2])
	}
	return out, nil
}

// Subtract returns m - other as a new image.
func (m *Image) Subtract(other *Image) (*Image, error) {
	if other.Width != m.Width || other.Height != m.Height {
		return nil, fmt.Errorf("shape mismatch: %dx%d vs %dx%d", m.Width, m.Height, other.Width, other.Height)
	}
	out := m.Clone()
	for i, v := range other.Pix {
		out.Pix[i] -= v
	}
	return out, nil
}

// MinMax returns the smallest and largest finite pixel values. Both are NaN
// when the image holds no finite value.
func (m *Image) MinMax() (lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, v := range m.Pix {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	if lo > hi {
		return math.NaN(), math.NaN()
	}
	return lo, hi
}

// FromImage converts a decoded image to luminance using ITU-R BT.601 weights.
// Values are kept at 16-bit depth (0-65535) so 16-bit PNGs lose nothing.
func FromImage(img image.Image) *Image {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	out := &Image{Width: w, Height: h, Pix: make([]float64, w*h)}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			switch src := img.(type) {
			case *image.Gray16:
				out.Pix[y*w+x] = float64(src.Gray16At(x+bounds.Min.X, y+bounds.Min.Y).Y)
			case *image.Gray:
				out.Pix[y*w+x] = float64(src.GrayAt(x+bounds.Min.X, y+bounds.Min.Y).Y) * 257
			default:
				r, g, b, _ := img.At(x+bounds.Min.X, y+bounds.Min.Y).RGBA()
				out.Pix[y*w+x] = 0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)
			}
		}
	}
	return out
}

// Mask is a boolean image of the same layout as Image. True marks a pixel
// that must be excluded from statistics.
type Mask struct {
	Width  int
	Height int
	Bits   []bool
}

// NewMask allocates an all-false mask.
func NewMask(width, height int) *Mask {
	return &Mask{Width: width, Height: height, Bits: make([]bool, width*height)}
}

// MaskFor allocates an all-false mask shaped like img.
func MaskFor(img *Image) *Mask {
	return NewMask(img.Width, img.Height)
}

// At reports whether (x, y) is masked.
func (m *Mask) At(x, y int) bool {
	return m.Bits[y*m.Width+x]
}

// Set marks or clears (x, y).
func (m *Mask) Set(x, y int, v bool) {
	m.Bits[y*m.Width+x] = v
}

// Count returns the number of masked pixels.
func (m *Mask) Count() int {
	n := 0
	for _, b := range m.Bits {
		if b {
			n++
		}
	}
	return n
}

// Clone returns a deep copy.
func (m *Mask) Clone() *Mask {
	bits := make([]bool, len(m.Bits))
	copy(bits, m.Bits)
	return &Mask{Width: m.Width, Height: m.Height, Bits: bits}
}

// SameShape reports whether the mask matches img's dimensions.
func (m *Mask) SameShape(img *Image) bool {
	return m.Width == img.Width && m.Height == img.Height && len(m.Bits) == len(img.Pix)
}

// Or returns the union of two masks. Either may be nil.
func Or(a, b *Mask) (*Mask, error) {
	switch {
	case a == nil && b == nil:
		return nil, nil
	case a == nil:
		return b.Clone(), nil
	case b == nil:
		return a.Clone(), nil
	}
	if a.Width != b.Width || a.Height != b.Height {
		return nil, fmt.Errorf("mask shape mismatch: %dx%d vs %dx%d", a.Width, a.Height, b.Width, b.Height)
	}
	out := a.Clone()
	for i, v := range b.Bits {
		if v {
			out.Bits[i] = true
		}
	}
	return out, nil
}

// CheckMask returns an error when mask is non-nil and not shaped like img.
func CheckMask(img *Image, mask *Mask) error {
	if mask == nil {
		return nil
	}
	if !mask.SameShape(img) {
		return fmt.Errorf("mask shape %dx%d does not match image %dx%d",
			mask.Width, mask.Height, img.Width, img.Height)
	}
	return nil
}

// Sub returns a copy of the region (x1,y1)-(x2,y2), with x2/y2 exclusive.
func (m *Mask) Sub(x1, y1, x2, y2 int) (*Mask, error) {
	if x1 < 0 || y1 < 0 || x2 > m.Width || y2 > m.Height || x1 >= x2 || y1 >= y2 {
		return nil, fmt.Errorf("invalid mask region (%d,%d)-(%d,%d) for %dx%d mask",
			x1, y1, x2, y2, m.Width, m.Height)
	}
	out := NewMask(x2-x1, y2-y1)
	for y := y1; y < y2; y++ {
		copy(out.Bits[(y-y1)*out.Width:(y-y1+1)*out.Width], m.Bits[y*m.Width+x1:y*m.Width+x2])
	}
	return out, nil
}

// MaskFromImage treats every non-zero or non-finite pixel of img as masked.
func MaskFromImage(img *Image) *Mask {
	out := MaskFor(img)
	for i, v := range img.Pix {
		out.Bits[i] = v != 0 || math.IsNaN(v)
	}
	return out
}

// ToImage returns the mask as 1 for masked and 0 for unmasked pixels.
func (m *Mask) ToImage() *Image {
	out := &Image{Width: m.Width, Height: m.Height, Pix: make([]float64, len(m.Bits))}
	for i, b := range m.Bits {
		if b {
			out.Pix[i] = 1
		}
	}
	return out
}
