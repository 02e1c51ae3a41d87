package segmentation

import (
	"fmt"
	"math"

	"github.com/ironsheep/skybg-mcp/internal/imaging"
)

// circularFootprint returns the offsets with dx*dx+dy*dy <= r*r.
func circularFootprint(r int) []point {
	fp := make([]point, 0, (2*r+1)*(2*r+1))
	for dy := -r; dy <= r; dy++ {
		for dx := -r; dx <= r; dx++ {
			if dx*dx+dy*dy <= r*r {
				fp = append(fp, point{X: dx, Y: dy})
			}
		}
	}
	return fp
}

// Dilate grows every masked pixel by a disk of the given radius. A radius of
// zero returns a copy of mask.
func Dilate(mask *imaging.Mask, radius int) (*imaging.Mask, error) {
	if radius < 0 {
		return nil, fmt.Errorf("%w: dilation radius must be >= 0, got %d", ErrInvalidParams, radius)
	}
	out := mask.Clone()
	if radius == 0 {
		return out, nil
	}

	fp := circularFootprint(radius)
	w, h := mask.Width, mask.Height
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if !mask.Bits[y*w+x] {
				continue
			}
			for _, d := range fp {
				nx, ny := x+d.X, y+d.Y
				if nx >= 0 && nx < w && ny >= 0 && ny < h {
					out.Bits[ny*w+nx] = true
				}
			}
		}
	}
	return out, nil
}

// gaussianKernel1D returns a normalised 1D Gaussian for the given FWHM,
// truncated at +/-3 sigma (at least 3 taps).
func gaussianKernel1D(fwhm float64) []float64 {
	sigma := fwhm / (2 * math.Sqrt(2*math.Ln2))
	half := int(math.Ceil(3 * sigma))
	if half < 1 {
		half = 1
	}
	k := make([]float64, 2*half+1)
	var sum float64
	for i := range k {
		d := float64(i - half)
		k[i] = math.Exp(-d * d / (2 * sigma * sigma))
		sum += k[i]
	}
	for i := range k {
		k[i] /= sum
	}
	return k
}

// Smooth convolves img with a circular Gaussian of the given FWHM in pixels.
// The kernel is applied separably with edges extended. Non-finite taps are
// skipped and the remaining weights renormalised, so a NaN never spreads.
func Smooth(img *imaging.Image, fwhm float64) (*imaging.Image, error) {
	if !(fwhm > 0) || math.IsInf(fwhm, 1) {
		return nil, fmt.Errorf("%w: smoothing FWHM must be finite and > 0, got %g", ErrInvalidParams, fwhm)
	}
	k := gaussianKernel1D(fwhm)
	half := len(k) / 2
	w, h := img.Width, img.Height

	tmp := make([]float64, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			tmp[y*w+x] = convolveAt(k, half, func(i int) float64 {
				return img.Pix[y*w+clamp(x+i, 0, w-1)]
			})
		}
	}

	out := &imaging.Image{Width: w, Height: h, Pix: make([]float64, w*h)}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			out.Pix[y*w+x] = convolveAt(k, half, func(i int) float64 {
				return tmp[clamp(y+i, 0, h-1)*w+x]
			})
		}
	}
	return out, nil
}

func convolveAt(k []float64, half int, sample func(i int) float64) float64 {
	var acc, norm float64
	for j, kv := range k {
		v := sample(j - half)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		acc += kv * v
		norm += kv
	}
	if norm == 0 {
		return math.NaN()
	}
	return acc / norm
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
