package background

import (
	"fmt"

	"gonum.org/v1/gonum/interp"
)

// Interpolation selects how the mesh is resampled to full resolution.
type Interpolation int

const (
	// InterpBicubic fits natural cubic splines along each axis.
	InterpBicubic Interpolation = iota
	// InterpBilinear interpolates linearly along each axis.
	InterpBilinear
)

func (m Interpolation) String() string {
	switch m {
	case InterpBicubic:
		return "bicubic"
	case InterpBilinear:
		return "bilinear"
	}
	return fmt.Sprintf("Interpolation(%d)", int(m))
}

// ParseInterpolation accepts "bicubic" and "bilinear". Empty means bicubic.
func ParseInterpolation(s string) (Interpolation, error) {
	switch s {
	case "", "bicubic", "cubic":
		return InterpBicubic, nil
	case "bilinear", "linear":
		return InterpBilinear, nil
	}
	return 0, fmt.Errorf("%w: unknown interpolation %q", ErrInvalidConfig, s)
}

// curve is a 1D interpolant that continues linearly past its end knots.
type curve struct {
	pred     interp.Predictor
	constant bool
	c        float64

	lo, hi           float64
	yLo, yHi         float64
	slopeLo, slopeHi float64
}

func fitCurve(xs, ys []float64, method Interpolation) (*curve, error) {
	n := len(xs)
	if n == 1 {
		return &curve{constant: true, c: ys[0]}, nil
	}

	var fp interp.FittablePredictor
	if method == InterpBicubic && n >= 3 {
		fp = &interp.NaturalCubic{}
	} else {
		fp = &interp.PiecewiseLinear{}
	}
	if err := fp.Fit(xs, ys); err != nil {
		return nil, fmt.Errorf("fit %s curve: %w", method, err)
	}

	c := &curve{
		pred: fp,
		lo:   xs[0],
		hi:   xs[n-1],
		yLo:  ys[0],
		yHi:  ys[n-1],
	}
	// End slopes from a short step inside the first and last intervals.
	hLo := (xs[1] - xs[0]) * 1e-3
	hHi := (xs[n-1] - xs[n-2]) * 1e-3
	c.slopeLo = (fp.Predict(c.lo+hLo) - c.yLo) / hLo
	c.slopeHi = (c.yHi - fp.Predict(c.hi-hHi)) / hHi
	return c, nil
}

func (c *curve) at(x float64) float64 {
	switch {
	case c.constant:
		return c.c
	case x < c.lo:
		return c.yLo + c.slopeLo*(x-c.lo)
	case x > c.hi:
		return c.yHi + c.slopeHi*(x-c.hi)
	}
	return c.pred.Predict(x)
}

// upsample resamples a ny x nx grid anchored at (yc, xc) onto every pixel
// of a width x height image, first along x for each grid row and then along
// y for each pixel column.
func upsample(grid []float64, yc, xc []float64, width, height int, method Interpolation) ([]float64, error) {
	ny, nx := len(yc), len(xc)

	rows := make([]float64, ny*width)
	for iy := 0; iy < ny; iy++ {
		c, err := fitCurve(xc, grid[iy*nx:(iy+1)*nx], method)
		if err != nil {
			return nil, err
		}
		for x := 0; x < width; x++ {
			rows[iy*width+x] = c.at(float64(x))
		}
	}

	out := make([]float64, width*height)
	col := make([]float64, ny)
	for x := 0; x < width; x++ {
		for iy := 0; iy < ny; iy++ {
			col[iy] = rows[iy*width+x]
		}
		c, err := fitCurve(yc, col, method)
		if err != nil {
			return nil, err
		}
		for y := 0; y < height; y++ {
			out[y*width+x] = c.at(float64(y))
		}
	}
	return out, nil
}
