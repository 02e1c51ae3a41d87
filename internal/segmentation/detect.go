package segmentation

import (
	"errors"
	"fmt"
	"math"

	"github.com/ironsheep/skybg-mcp/internal/imaging"
	"github.com/ironsheep/skybg-mcp/internal/stats"
)

// ErrInvalidParams is returned for out-of-range detection parameters.
var ErrInvalidParams = errors.New("invalid segmentation parameters")

// Connectivity selects which neighbours join two pixels into one segment.
type Connectivity int

const (
	// Connectivity8 joins pixels that share an edge or a corner.
	Connectivity8 Connectivity = 8
	// Connectivity4 joins pixels that share an edge only.
	Connectivity4 Connectivity = 4
)

func (c Connectivity) offsets() ([]point, error) {
	switch c {
	case Connectivity8, 0:
		return []point{{-1, -1}, {0, -1}, {1, -1}, {-1, 0}, {1, 0}, {-1, 1}, {0, 1}, {1, 1}}, nil
	case Connectivity4:
		return []point{{0, -1}, {-1, 0}, {1, 0}, {0, 1}}, nil
	}
	return nil, fmt.Errorf("%w: connectivity must be 4 or 8, got %d", ErrInvalidParams, int(c))
}

type point struct{ X, Y int }

// Bounds is a bounding box with inclusive (X1,Y1) and exclusive (X2,Y2).
type Bounds struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

// Segment describes one detected source.
type Segment struct {
	Label int     `json:"label"`
	Area  int     `json:"area"`
	BBox  Bounds  `json:"bbox"`
	Peak  float64 `json:"peak"`
	// Centroid is the unweighted mean pixel position.
	CentroidX float64 `json:"centroid_x"`
	CentroidY float64 `json:"centroid_y"`
}

// SegmentationMap labels every pixel with the segment it belongs to, 0 for none.
type SegmentationMap struct {
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	Labels    []int     `json:"-"`
	Segments  []Segment `json:"segments"`
	Threshold float64   `json:"threshold"`
}

// Mask returns a mask that is true on every labelled pixel.
func (s *SegmentationMap) Mask() *imaging.Mask {
	m := imaging.NewMask(s.Width, s.Height)
	for i, l := range s.Labels {
		m.Bits[i] = l != 0
	}
	return m
}

// Threshold is a per-image detection level derived from clipped statistics.
type Threshold struct {
	Level      float64 `json:"level"`
	Background float64 `json:"background"`
	Std        float64 `json:"std"`
	NSigma     float64 `json:"nsigma"`
}

// DetectThreshold returns background + nsigma*std, where background is the
// sigma-clipped median and std the clipped standard deviation of the
// unmasked pixels.
func DetectThreshold(img *imaging.Image, mask *imaging.Mask, nsigma float64, clip stats.ClipConfig) (*Threshold, error) {
	if !(nsigma > 0) {
		return nil, fmt.Errorf("%w: nsigma must be > 0, got %g", ErrInvalidParams, nsigma)
	}
	st, err := stats.SigmaClipImage(img, mask, clip)
	if err != nil {
		return nil, fmt.Errorf("detection threshold: %w", err)
	}
	return &Threshold{
		Level:      st.Median + nsigma*st.Std,
		Background: st.Median,
		Std:        st.Std,
		NSigma:     nsigma,
	}, nil
}

// DetectSources labels connected groups of pixels strictly above threshold.
//
// Masked and non-finite pixels never join a segment. Groups with fewer than
// npixels members are discarded. Surviving segments are numbered 1..N in the
// raster order of their first pixel.
func DetectSources(img *imaging.Image, threshold float64, npixels int, conn Connectivity, mask *imaging.Mask) (*SegmentationMap, error) {
	if npixels < 1 {
		return nil, fmt.Errorf("%w: npixels must be >= 1, got %d", ErrInvalidParams, npixels)
	}
	if math.IsNaN(threshold) {
		return nil, fmt.Errorf("%w: threshold is NaN", ErrInvalidParams)
	}
	if err := imaging.CheckMask(img, mask); err != nil {
		return nil, err
	}
	neighbours, err := conn.offsets()
	if err != nil {
		return nil, err
	}

	w, h := img.Width, img.Height
	above := make([]bool, w*h)
	for i, v := range img.Pix {
		if mask != nil && mask.Bits[i] {
			continue
		}
		above[i] = v > threshold && !math.IsInf(v, 0)
	}

	segm := &SegmentationMap{
		Width:     w,
		Height:    h,
		Labels:    make([]int, w*h),
		Segments:  make([]Segment, 0),
		Threshold: threshold,
	}
	visited := make([]bool, w*h)

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			if !above[i] || visited[i] {
				continue
			}
			component := floodFill(above, visited, x, y, w, h, neighbours)
			if len(component) < npixels {
				continue
			}
			label := len(segm.Segments) + 1
			segm.Segments = append(segm.Segments, describe(img, component, label, segm.Labels))
		}
	}

	return segm, nil
}

// floodFill collects the component containing (startX, startY).
//
// Uses an explicit stack so large sources cannot overflow the goroutine stack.
func floodFill(above, visited []bool, startX, startY, width, height int, neighbours []point) []point {
	component := make([]point, 0, 16)
	stack := []point{{X: startX, Y: startY}}
	visited[startY*width+startX] = true

	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		component = append(component, p)

		for _, d := range neighbours {
			nx, ny := p.X+d.X, p.Y+d.Y
			if nx < 0 || nx >= width || ny < 0 || ny >= height {
				continue
			}
			j := ny*width + nx
			if visited[j] || !above[j] {
				continue
			}
			visited[j] = true
			stack = append(stack, point{X: nx, Y: ny})
		}
	}
	return component
}

func describe(img *imaging.Image, component []point, label int, labels []int) Segment {
	seg := Segment{
		Label: label,
		Area:  len(component),
		BBox:  Bounds{X1: component[0].X, Y1: component[0].Y, X2: component[0].X + 1, Y2: component[0].Y + 1},
		Peak:  math.Inf(-1),
	}
	var sx, sy float64
	for _, p := range component {
		labels[p.Y*img.Width+p.X] = label
		if v := img.At(p.X, p.Y); v > seg.Peak {
			seg.Peak = v
		}
		seg.BBox.X1 = min(seg.BBox.X1, p.X)
		seg.BBox.Y1 = min(seg.BBox.Y1, p.Y)
		seg.BBox.X2 = max(seg.BBox.X2, p.X+1)
		seg.BBox.Y2 = max(seg.BBox.Y2, p.Y+1)
		sx += float64(p.X)
		sy += float64(p.Y)
	}
	seg.CentroidX = sx / float64(len(component))
	seg.CentroidY = sy / float64(len(component))
	return seg
}
