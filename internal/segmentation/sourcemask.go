package segmentation

import (
	"fmt"
	"math"

	"github.com/ironsheep/skybg-mcp/internal/imaging"
	"github.com/ironsheep/skybg-mcp/internal/stats"
)

// MaskConfig controls MakeSourceMask.
type MaskConfig struct {
	// NSigma is the detection threshold above the clipped background, in
	// units of the clipped standard deviation.
	NSigma float64 `json:"nsigma"`

	// NPixels is the minimum number of connected pixels in a source.
	NPixels int `json:"npixels"`

	// DilateRadius grows each detected source by a disk of this radius.
	DilateRadius int `json:"dilate_radius"`

	// SmoothFWHM, when > 0, smooths the image with a Gaussian of this FWHM
	// before thresholding. Statistics are always taken on the raw image.
	SmoothFWHM float64 `json:"smooth_fwhm,omitempty"`

	Connectivity Connectivity     `json:"connectivity"`
	Clip         stats.ClipConfig `json:"clip"`
}

// DefaultMaskConfig returns nsigma=2, npixels=5, an 11-pixel-wide dilation
// disk, 8-connectivity and the default clip settings.
func DefaultMaskConfig() MaskConfig {
	return MaskConfig{
		NSigma:       2,
		NPixels:      5,
		DilateRadius: 5,
		Connectivity: Connectivity8,
		Clip:         stats.DefaultClipConfig(),
	}
}

// Validate checks every field without touching any image.
func (c MaskConfig) Validate() error {
	if !(c.NSigma > 0) {
		return fmt.Errorf("%w: nsigma must be > 0, got %g", ErrInvalidParams, c.NSigma)
	}
	if c.NPixels < 1 {
		return fmt.Errorf("%w: npixels must be >= 1, got %d", ErrInvalidParams, c.NPixels)
	}
	if c.DilateRadius < 0 {
		return fmt.Errorf("%w: dilation radius must be >= 0, got %d", ErrInvalidParams, c.DilateRadius)
	}
	if !(c.SmoothFWHM >= 0) || math.IsInf(c.SmoothFWHM, 1) {
		return fmt.Errorf("%w: smoothing FWHM must be finite and >= 0, got %g", ErrInvalidParams, c.SmoothFWHM)
	}
	if _, err := c.Connectivity.offsets(); err != nil {
		return err
	}
	return c.Clip.Validate()
}

// MakeSourceMask finds sources in img and returns a dilated mask covering them.
//
// The pipeline is: sigma-clipped statistics of the pixels not covered by
// mask give a threshold; the (optionally smoothed) image is thresholded and
// split into connected segments; segments smaller than NPixels are dropped;
// the rest are dilated by DilateRadius. mask may be nil and is not included
// in the returned mask.
func MakeSourceMask(img *imaging.Image, mask *imaging.Mask, cfg MaskConfig) (*imaging.Mask, *SegmentationMap, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	if err := imaging.CheckMask(img, mask); err != nil {
		return nil, nil, err
	}

	thr, err := DetectThreshold(img, mask, cfg.NSigma, cfg.Clip)
	if err != nil {
		return nil, nil, err
	}

	detection := img
	if cfg.SmoothFWHM > 0 {
		if detection, err = Smooth(img, cfg.SmoothFWHM); err != nil {
			return nil, nil, err
		}
	}

	segm, err := DetectSources(detection, thr.Level, cfg.NPixels, cfg.Connectivity, mask)
	if err != nil {
		return nil, nil, err
	}

	out, err := Dilate(segm.Mask(), cfg.DilateRadius)
	if err != nil {
		return nil, nil, err
	}
	return out, segm, nil
}
