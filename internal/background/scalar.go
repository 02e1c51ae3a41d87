package background

import (
	"errors"
	"fmt"

	"github.com/ironsheep/skybg-mcp/internal/imaging"
	"github.com/ironsheep/skybg-mcp/internal/segmentation"
	"github.com/ironsheep/skybg-mcp/internal/stats"
)

var (
	// ErrInvalidConfig is returned for inconsistent estimator settings.
	ErrInvalidConfig = errors.New("invalid background configuration")

	// ErrInsufficientData aliases stats.ErrInsufficientData so callers of
	// this package need not import stats to test for it.
	ErrInsufficientData = stats.ErrInsufficientData
)

// ScalarConfig controls EstimateScalar.
type ScalarConfig struct {
	// Mask marks pixels to exclude in addition to detected sources. May be nil.
	Mask *imaging.Mask

	// SourceMask configures source detection. Nil skips source masking and
	// clips the raw (caller-masked) pixels directly.
	SourceMask *segmentation.MaskConfig

	Clip stats.ClipConfig
	Bkg  BkgEstimator
	RMS  RMSEstimator
}

// DefaultScalarConfig masks sources with the default detection settings and
// reports the clipped median and standard deviation.
func DefaultScalarConfig() ScalarConfig {
	mc := segmentation.DefaultMaskConfig()
	return ScalarConfig{
		SourceMask: &mc,
		Clip:       stats.DefaultClipConfig(),
		Bkg:        BkgMedian,
		RMS:        RMSStd,
	}
}

// ScalarResult is a single background level and noise estimate for an image.
type ScalarResult struct {
	Background float64            `json:"background"`
	RMS        float64            `json:"rms"`
	Stats      stats.ClippedStats `json:"stats"`
	// MaskedPixels counts pixels excluded before clipping (caller mask,
	// detected sources and their dilation).
	MaskedPixels int `json:"masked_pixels"`
	// Sources is the number of detected segments, 0 when masking is skipped.
	Sources int `json:"sources"`
}

// EstimateScalar masks sources in img and sigma-clips what remains.
//
// Sources are found with segmentation.MakeSourceMask using cfg.SourceMask,
// the result is OR-ed with cfg.Mask, and the unmasked pixels are
// sigma-clipped with cfg.Clip. The background and rms are then taken from
// the clipped sample using cfg.Bkg and cfg.RMS. img is not modified and
// repeated calls return identical results.
func EstimateScalar(img *imaging.Image, cfg ScalarConfig) (*ScalarResult, error) {
	if err := validEstimators(cfg.Bkg, cfg.RMS); err != nil {
		return nil, err
	}
	if err := cfg.Clip.Validate(); err != nil {
		return nil, err
	}

	mask, segments, err := buildMask(img, cfg.Mask, cfg.SourceMask)
	if err != nil {
		return nil, err
	}

	var bits []bool
	masked := 0
	if mask != nil {
		bits = mask.Bits
		masked = mask.Count()
	}

	level, noise, st, err := estimateSample(img.Pix, bits, cfg.Clip, cfg.Bkg, cfg.RMS)
	if err != nil {
		return nil, fmt.Errorf("scalar background: %w", err)
	}

	return &ScalarResult{
		Background:   level,
		RMS:          noise,
		Stats:        *st,
		MaskedPixels: masked,
		Sources:      segments,
	}, nil
}

// buildMask combines the caller mask with a detected source mask. The
// returned mask may be nil when neither is requested.
func buildMask(img *imaging.Image, mask *imaging.Mask, sourceCfg *segmentation.MaskConfig) (*imaging.Mask, int, error) {
	if err := imaging.CheckMask(img, mask); err != nil {
		return nil, 0, err
	}
	if sourceCfg == nil {
		return mask, 0, nil
	}

	sources, segm, err := segmentation.MakeSourceMask(img, mask, *sourceCfg)
	if err != nil {
		return nil, 0, fmt.Errorf("source mask: %w", err)
	}
	combined, err := imaging.Or(mask, sources)
	if err != nil {
		return nil, 0, err
	}
	return combined, len(segm.Segments), nil
}
