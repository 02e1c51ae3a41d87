package background

import (
	"errors"
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"

	"github.com/ironsheep/skybg-mcp/internal/imaging"
	"github.com/ironsheep/skybg-mcp/internal/segmentation"
	"github.com/ironsheep/skybg-mcp/internal/stats"
)

// Config2D controls Estimate2D.
type Config2D struct {
	// BoxH and BoxW are the cell size in pixels. Both must fit in the image.
	BoxH int
	BoxW int

	Edge EdgeMethod

	// FilterH and FilterW size the median filter applied to the mesh.
	// Both must be odd; 1x1 disables filtering.
	FilterH int
	FilterW int

	// ExcludePercentile is the largest percentage of masked pixels a cell
	// may contain and still be estimated on its own.
	ExcludePercentile float64

	Clip   stats.ClipConfig
	Bkg    BkgEstimator
	RMS    RMSEstimator
	Interp Interpolation

	// Mask marks pixels to exclude. May be nil.
	Mask *imaging.Mask

	// SourceMask configures source detection over the whole image before
	// tiling. Nil skips it.
	SourceMask *segmentation.MaskConfig

	// Workers bounds how many cells are estimated concurrently; 0 or 1
	// runs serially.
	Workers int
}

// DefaultConfig2D returns the usual settings for the given box size: a 3x3
// mesh filter, 10% exclusion, default source masking, clipped median and
// std, and bicubic interpolation.
func DefaultConfig2D(boxH, boxW int) Config2D {
	mc := segmentation.DefaultMaskConfig()
	return Config2D{
		BoxH:              boxH,
		BoxW:              boxW,
		Edge:              EdgePad,
		FilterH:           3,
		FilterW:           3,
		ExcludePercentile: 10,
		Clip:              stats.DefaultClipConfig(),
		Bkg:               BkgMedian,
		RMS:               RMSStd,
		Interp:            InterpBicubic,
		SourceMask:        &mc,
	}
}

// Validate checks everything that does not depend on the image.
func (c Config2D) Validate() error {
	if c.BoxH < 1 || c.BoxW < 1 {
		return fmt.Errorf("%w: box size must be >= 1, got %dx%d", ErrInvalidConfig, c.BoxW, c.BoxH)
	}
	if c.FilterH < 1 || c.FilterW < 1 || c.FilterH%2 == 0 || c.FilterW%2 == 0 {
		return fmt.Errorf("%w: filter size must be odd and >= 1, got %dx%d", ErrInvalidConfig, c.FilterW, c.FilterH)
	}
	if !(c.ExcludePercentile >= 0 && c.ExcludePercentile <= 100) {
		return fmt.Errorf("%w: exclude percentile must be in [0, 100], got %g", ErrInvalidConfig, c.ExcludePercentile)
	}
	if c.Edge < EdgePad || c.Edge > EdgeResize {
		return fmt.Errorf("%w: unknown edge method %d", ErrInvalidConfig, int(c.Edge))
	}
	if c.Interp != InterpBicubic && c.Interp != InterpBilinear {
		return fmt.Errorf("%w: unknown interpolation %d", ErrInvalidConfig, int(c.Interp))
	}
	if c.Workers < 0 {
		return fmt.Errorf("%w: workers must be >= 0, got %d", ErrInvalidConfig, c.Workers)
	}
	if err := validEstimators(c.Bkg, c.RMS); err != nil {
		return err
	}
	if err := c.Clip.Validate(); err != nil {
		return err
	}
	if c.SourceMask != nil {
		if err := c.SourceMask.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Result holds full-resolution background and noise maps.
type Result struct {
	Background *imaging.Image
	RMS        *imaging.Image
	Mesh       *Mesh

	// BackgroundMedian and RMSMedian are medians over the final mesh.
	BackgroundMedian float64
	RMSMedian        float64

	MaskedPixels int
	Sources      int
	Workers      int
}

// Subtract returns img minus the background map.
func (r *Result) Subtract(img *imaging.Image) (*imaging.Image, error) {
	return img.Subtract(r.Background)
}

type cellEstimate struct {
	bkg, rms float64
	valid    bool
}

// Estimate2D estimates a spatially varying background.
//
// Sources are masked once over the whole image, the image is tiled into
// BoxW x BoxH cells, and each cell with few enough masked pixels is reduced
// to a background and rms with the same clipping and estimators as
// EstimateScalar. Cells that cannot be estimated are filled from their valid
// neighbours by inverse-distance weighting, the mesh is median filtered, and
// both maps are interpolated back to the image size. Pixels beyond the outer
// cell centres are extrapolated linearly, and the rms map is floored at zero.
func Estimate2D(img *imaging.Image, cfg Config2D) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.BoxW > img.Width || cfg.BoxH > img.Height {
		return nil, fmt.Errorf("%w: box %dx%d larger than image %dx%d",
			ErrInvalidConfig, cfg.BoxW, cfg.BoxH, img.Width, img.Height)
	}

	mask, segments, err := buildMask(img, cfg.Mask, cfg.SourceMask)
	if err != nil {
		return nil, err
	}
	masked := 0
	if mask != nil {
		masked = mask.Count()
	}

	l := newLayout(img.Width, img.Height, cfg.BoxW, cfg.BoxH, cfg.Edge)
	cells, workers, err := estimateCells(img, mask, l, cfg)
	if err != nil {
		return nil, err
	}

	n := len(cells)
	mesh := &Mesh{
		NY: l.ny, NX: l.nx,
		BoxH: cfg.BoxH, BoxW: cfg.BoxW,
		YCentres: l.ycentres, XCentres: l.xcentres,
		Valid: make([]bool, n),
	}
	bkg := make([]float64, n)
	rms := make([]float64, n)
	for i, c := range cells {
		bkg[i], rms[i] = c.bkg, c.rms
		mesh.Valid[i] = c.valid
		if c.valid {
			mesh.NValid++
		}
	}

	if !fillInvalid(bkg, mesh.Valid, l.ny, l.nx) {
		return nil, fmt.Errorf("%w: none of the %d mesh cells could be estimated", ErrInsufficientData, n)
	}
	fillInvalid(rms, mesh.Valid, l.ny, l.nx)

	mesh.Background = medianFilter(bkg, l.ny, l.nx, cfg.FilterH, cfg.FilterW)
	mesh.RMS = medianFilter(rms, l.ny, l.nx, cfg.FilterH, cfg.FilterW)

	bkgPix, err := upsample(mesh.Background, l.ycentres, l.xcentres, img.Width, img.Height, cfg.Interp)
	if err != nil {
		return nil, fmt.Errorf("interpolate background: %w", err)
	}
	rmsPix, err := upsample(mesh.RMS, l.ycentres, l.xcentres, img.Width, img.Height, cfg.Interp)
	if err != nil {
		return nil, fmt.Errorf("interpolate rms: %w", err)
	}
	// Extrapolation and cubic overshoot can cross zero; noise cannot.
	for i, v := range rmsPix {
		if v < 0 {
			rmsPix[i] = 0
		}
	}

	return &Result{
		Background:       &imaging.Image{Width: img.Width, Height: img.Height, Pix: bkgPix},
		RMS:              &imaging.Image{Width: img.Width, Height: img.Height, Pix: rmsPix},
		Mesh:             mesh,
		BackgroundMedian: stats.Median(mesh.Background),
		RMSMedian:        stats.Median(mesh.RMS),
		MaskedPixels:     masked,
		Sources:          segments,
		Workers:          workers,
	}, nil
}

// estimateCells reduces every cell of l. Each cell writes only its own slot,
// so the result does not depend on the worker count.
func estimateCells(img *imaging.Image, mask *imaging.Mask, l *layout, cfg Config2D) ([]cellEstimate, int, error) {
	out := make([]cellEstimate, len(l.cells))

	if cfg.Workers <= 1 {
		for i, c := range l.cells {
			est, err := estimateCell(img, mask, c, cfg)
			if err != nil {
				return nil, 1, err
			}
			out[i] = est
		}
		return out, 1, nil
	}

	var g errgroup.Group
	g.SetLimit(cfg.Workers)
	for i, c := range l.cells {
		g.Go(func() error {
			est, err := estimateCell(img, mask, c, cfg)
			if err != nil {
				return err
			}
			out[i] = est
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, cfg.Workers, err
	}
	return out, cfg.Workers, nil
}

func estimateCell(img *imaging.Image, mask *imaging.Mask, c cell, cfg Config2D) (cellEstimate, error) {
	data := make([]float64, 0, c.area())
	masked := c.nominal - c.area()
	for y := c.y.start; y < c.y.end; y++ {
		for x := c.x.start; x < c.x.end; x++ {
			v := img.At(x, y)
			if (mask != nil && mask.At(x, y)) || math.IsNaN(v) || math.IsInf(v, 0) {
				masked++
				continue
			}
			data = append(data, v)
		}
	}

	if float64(masked)*100 > cfg.ExcludePercentile*float64(c.nominal) {
		return cellEstimate{}, nil
	}

	level, noise, _, err := estimateSample(data, nil, cfg.Clip, cfg.Bkg, cfg.RMS)
	if errors.Is(err, stats.ErrInsufficientData) {
		return cellEstimate{}, nil
	}
	if err != nil {
		return cellEstimate{}, fmt.Errorf("cell (%d, %d): %w", c.ix, c.iy, err)
	}
	return cellEstimate{bkg: level, rms: noise, valid: true}, nil
}
