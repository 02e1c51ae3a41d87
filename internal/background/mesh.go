package background

import (
	"fmt"
	"math"

	"github.com/ironsheep/skybg-mcp/internal/stats"
)

// EdgeMethod decides what happens when the image size is not a multiple of
// the box size.
type EdgeMethod int

const (
	// EdgePad extends the image to a whole number of boxes. The padding
	// counts as masked when deciding whether a cell is usable.
	EdgePad EdgeMethod = iota
	// EdgeCrop drops the partial boxes; their pixels get extrapolated values.
	EdgeCrop
	// EdgeResize stretches the last row and column of boxes to the edge.
	EdgeResize
)

func (e EdgeMethod) String() string {
	switch e {
	case EdgePad:
		return "pad"
	case EdgeCrop:
		return "crop"
	case EdgeResize:
		return "resize"
	}
	return fmt.Sprintf("EdgeMethod(%d)", int(e))
}

// ParseEdgeMethod accepts "pad", "crop" and "resize". Empty means pad.
func ParseEdgeMethod(s string) (EdgeMethod, error) {
	switch s {
	case "", "pad":
		return EdgePad, nil
	case "crop":
		return EdgeCrop, nil
	case "resize":
		return EdgeResize, nil
	}
	return 0, fmt.Errorf("%w: unknown edge method %q", ErrInvalidConfig, s)
}

// Mesh is the coarse grid of per-cell estimates.
type Mesh struct {
	NY   int `json:"ny"`
	NX   int `json:"nx"`
	BoxH int `json:"box_height"`
	BoxW int `json:"box_width"`

	// YCentres and XCentres are the pixel coordinates the cell values are
	// anchored at during interpolation.
	YCentres []float64 `json:"y_centres"`
	XCentres []float64 `json:"x_centres"`

	// Background and RMS are row-major NY x NX after filling and filtering.
	Background []float64 `json:"background"`
	RMS        []float64 `json:"rms"`

	// Valid marks cells that had enough unmasked pixels of their own.
	Valid  []bool `json:"valid"`
	NValid int    `json:"n_valid"`
}

// At returns the background and rms of cell (ix, iy).
func (m *Mesh) At(ix, iy int) (bkg, rms float64) {
	i := iy*m.NX + ix
	return m.Background[i], m.RMS[i]
}

type span struct{ start, end int }

// axisSpans splits n pixels into boxes along one axis and returns each
// box's pixel span and anchor coordinate.
func axisSpans(n, box int, edge EdgeMethod) ([]span, []float64) {
	var count int
	if edge == EdgePad {
		count = (n + box - 1) / box
	} else {
		count = n / box
	}

	spans := make([]span, count)
	centres := make([]float64, count)
	half := float64(box)/2 - 0.5
	for i := range spans {
		start := i * box
		end := start + box
		switch {
		case edge == EdgePad && end > n:
			end = n
		case edge == EdgeResize && i == count-1:
			end = n
		}
		spans[i] = span{start, end}
		centres[i] = float64(start) + half
		if edge == EdgeResize && i == count-1 {
			centres[i] = float64(start+end)/2 - 0.5
		}
	}
	return spans, centres
}

// MeshEdges returns the cell boundaries Estimate2D uses along an axis of n
// pixels: the start of every cell followed by the end of the last one.
// With EdgeCrop the pixels past the last boundary belong to no cell. It
// returns nil when box does not fit.
func MeshEdges(n, box int, edge EdgeMethod) []int {
	if n < 1 || box < 1 {
		return nil
	}
	spans, _ := axisSpans(n, box, edge)
	if len(spans) == 0 {
		return nil
	}
	edges := make([]int, 0, len(spans)+1)
	for _, sp := range spans {
		edges = append(edges, sp.start)
	}
	return append(edges, spans[len(spans)-1].end)
}

// cell is one box of the mesh.
type cell struct {
	ix, iy int
	x, y   span
	// nominal is the pixel count used for the masked-fraction test; for
	// padded edge cells it includes the missing pixels.
	nominal int
}

func (c cell) area() int {
	return (c.x.end - c.x.start) * (c.y.end - c.y.start)
}

type layout struct {
	ny, nx   int
	cells    []cell
	ycentres []float64
	xcentres []float64
}

func newLayout(width, height, boxW, boxH int, edge EdgeMethod) *layout {
	ys, yc := axisSpans(height, boxH, edge)
	xs, xc := axisSpans(width, boxW, edge)

	l := &layout{ny: len(ys), nx: len(xs), ycentres: yc, xcentres: xc}
	l.cells = make([]cell, 0, l.ny*l.nx)
	for iy, y := range ys {
		for ix, x := range xs {
			c := cell{ix: ix, iy: iy, x: x, y: y}
			c.nominal = c.area()
			if edge == EdgePad {
				c.nominal = boxW * boxH
			}
			l.cells = append(l.cells, c)
		}
	}
	return l
}

// fillInvalid replaces invalid cells with the inverse-distance-squared
// weighted mean of all valid cells, measured in cell units. It reports
// false if there is no valid cell.
func fillInvalid(values []float64, valid []bool, ny, nx int) bool {
	type known struct {
		x, y, v float64
	}
	pts := make([]known, 0, len(values))
	for i, ok := range valid {
		if ok {
			pts = append(pts, known{float64(i % nx), float64(i / nx), values[i]})
		}
	}
	if len(pts) == 0 {
		return false
	}

	for i, ok := range valid {
		if ok {
			continue
		}
		x, y := float64(i%nx), float64(i/nx)
		var num, den float64
		for _, p := range pts {
			d2 := (p.x-x)*(p.x-x) + (p.y-y)*(p.y-y)
			w := 1 / d2
			num += w * p.v
			den += w
		}
		values[i] = num / den
	}
	return true
}

// medianFilter applies a fh x fw median filter to a ny x nx grid. Indices
// past the grid edges repeat the nearest edge cell, which leaves a linear
// gradient unchanged.
func medianFilter(values []float64, ny, nx, fh, fw int) []float64 {
	out := make([]float64, len(values))
	if fh <= 1 && fw <= 1 {
		copy(out, values)
		return out
	}
	hy, hx := fh/2, fw/2
	window := make([]float64, 0, fh*fw)
	for y := 0; y < ny; y++ {
		for x := 0; x < nx; x++ {
			window = window[:0]
			for dy := -hy; dy <= hy; dy++ {
				yy := min(max(y+dy, 0), ny-1)
				for dx := -hx; dx <= hx; dx++ {
					xx := min(max(x+dx, 0), nx-1)
					if v := values[yy*nx+xx]; !math.IsNaN(v) {
						window = append(window, v)
					}
				}
			}
			out[y*nx+x] = stats.Median(window)
		}
	}
	return out
}
