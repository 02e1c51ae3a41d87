package imaging

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"sort"

	"github.com/disintegration/imaging"
	"github.com/lucasb-eyer/go-colorful"
	"gonum.org/v1/gonum/stat"
)

// PreviewResult contains a rendered PNG preview of a float image or mask.
type PreviewResult struct {
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	ImageBase64 string  `json:"image_base64"`
	MimeType    string  `json:"mime_type"`
	StretchLow  float64 `json:"stretch_low"`
	StretchHigh float64 `json:"stretch_high"`
}

// Colormap maps [0,1] onto a sequence of colour stops blended in CIE-Lab.
type Colormap []colorful.Color

// At returns the colour for t, clamped to [0,1].
func (c Colormap) At(t float64) colorful.Color {
	if len(c) == 0 {
		return colorful.Color{}
	}
	if len(c) == 1 || t <= 0 || math.IsNaN(t) {
		return c[0]
	}
	if t >= 1 {
		return c[len(c)-1]
	}
	pos := t * float64(len(c)-1)
	i := int(pos)
	return c[i].BlendLab(c[i+1], pos-float64(i)).Clamped()
}

// Built-in colormaps.
var (
	Gray    = Colormap{mustHex("#000000"), mustHex("#ffffff")}
	Viridis = Colormap{
		mustHex("#440154"), mustHex("#3b528b"), mustHex("#21918c"),
		mustHex("#5ec962"), mustHex("#fde725"),
	}
)

// ColormapByName returns a built-in colormap. The empty name is Viridis.
func ColormapByName(name string) (Colormap, error) {
	switch name {
	case "", "viridis":
		return Viridis, nil
	case "gray", "grey":
		return Gray, nil
	}
	return nil, fmt.Errorf("unknown colormap %q (want viridis or gray)", name)
}

func mustHex(s string) colorful.Color {
	c, err := colorful.Hex(s)
	if err != nil {
		panic(err)
	}
	return c
}

// PercentileStretch returns the lo and hi percentiles (0-100) of the finite pixels.
func PercentileStretch(img *Image, loPct, hiPct float64) (lo, hi float64) {
	vals := make([]float64, 0, len(img.Pix))
	for _, v := range img.Pix {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			vals = append(vals, v)
		}
	}
	if len(vals) == 0 {
		return 0, 0
	}
	sort.Float64s(vals)
	return stat.Quantile(loPct/100, stat.Empirical, vals, nil),
		stat.Quantile(hiPct/100, stat.Empirical, vals, nil)
}

// RenderPreview colour-maps img with a 0.5%-99.5% percentile stretch and
// encodes it as PNG. Non-finite pixels are drawn black. If maxDim > 0 the
// preview is shrunk to fit inside maxDim x maxDim.
func RenderPreview(img *Image, maxDim int, cmap Colormap) (*PreviewResult, error) {
	lo, hi := PercentileStretch(img, 0.5, 99.5)
	rgba := renderStretched(img, lo, hi, cmap)
	return encodePreview(rgba, maxDim, lo, hi)
}

// RenderMask draws masked pixels white on black.
func RenderMask(mask *Mask, maxDim int) (*PreviewResult, error) {
	out := image.NewNRGBA(image.Rect(0, 0, mask.Width, mask.Height))
	for y := 0; y < mask.Height; y++ {
		for x := 0; x < mask.Width; x++ {
			c := color.NRGBA{0, 0, 0, 255}
			if mask.At(x, y) {
				c = color.NRGBA{255, 255, 255, 255}
			}
			out.SetNRGBA(x, y, c)
		}
	}
	return encodePreview(out, maxDim, 0, 1)
}

func renderStretched(img *Image, lo, hi float64, cmap Colormap) *image.NRGBA {
	out := image.NewNRGBA(image.Rect(0, 0, img.Width, img.Height))
	span := hi - lo
	for y := 0; y < img.Height; y++ {
		for x := 0; x < img.Width; x++ {
			v := img.At(x, y)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				out.SetNRGBA(x, y, color.NRGBA{0, 0, 0, 255})
				continue
			}
			t := 0.0
			if span > 0 {
				t = (v - lo) / span
			}
			r, g, b := cmap.At(t).RGB255()
			out.SetNRGBA(x, y, color.NRGBA{r, g, b, 255})
		}
	}
	return out
}

func encodePreview(src image.Image, maxDim int, lo, hi float64) (*PreviewResult, error) {
	var out image.Image = src
	b := src.Bounds()
	if maxDim > 0 && (b.Dx() > maxDim || b.Dy() > maxDim) {
		out = imaging.Fit(src, maxDim, maxDim, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, out); err != nil {
		return nil, fmt.Errorf("failed to encode preview: %w", err)
	}

	return &PreviewResult{
		Width:       out.Bounds().Dx(),
		Height:      out.Bounds().Dy(),
		ImageBase64: base64.StdEncoding.EncodeToString(buf.Bytes()),
		MimeType:    "image/png",
		StretchLow:  lo,
		StretchHigh: hi,
	}, nil
}
