package stats

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/ironsheep/skybg-mcp/internal/imaging"
)

var (
	// ErrInsufficientData is returned when no usable value is left: the
	// input was empty, fully masked, non-finite, or clipped away entirely.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrInvalidConfig is returned for non-positive sigma or iteration limits.
	ErrInvalidConfig = errors.New("invalid sigma-clip configuration")
)

// CenterFunc selects the statistic the clipping bounds are centred on.
type CenterFunc int

const (
	// CenterMean centres the bounds on the mean of the surviving values.
	CenterMean CenterFunc = iota
	// CenterMedian centres the bounds on the median, which is more robust
	// when bright sources are left unmasked.
	CenterMedian
)

// String implements fmt.Stringer.
func (c CenterFunc) String() string {
	switch c {
	case CenterMean:
		return "mean"
	case CenterMedian:
		return "median"
	}
	return fmt.Sprintf("CenterFunc(%d)", int(c))
}

// ParseCenterFunc maps "mean" and "median" to a CenterFunc. The empty string
// yields CenterMean.
func ParseCenterFunc(s string) (CenterFunc, error) {
	switch s {
	case "", "mean":
		return CenterMean, nil
	case "median":
		return CenterMedian, nil
	}
	return 0, fmt.Errorf("%w: unknown center function %q", ErrInvalidConfig, s)
}

// ClipConfig controls iterative sigma clipping.
type ClipConfig struct {
	// Sigma is the symmetric rejection threshold in standard deviations.
	Sigma float64 `json:"sigma"`

	// SigmaLower and SigmaUpper override Sigma on one side when non-zero.
	SigmaLower float64 `json:"sigma_lower,omitempty"`
	SigmaUpper float64 `json:"sigma_upper,omitempty"`

	// MaxIters caps the number of clipping passes.
	MaxIters int `json:"max_iters"`

	// Center selects the statistic the bounds are centred on.
	Center CenterFunc `json:"center"`
}

// DefaultClipConfig returns sigma=3, five iterations, mean-centred.
func DefaultClipConfig() ClipConfig {
	return ClipConfig{Sigma: 3, MaxIters: 5, Center: CenterMean}
}

// Validate rejects non-positive thresholds and iteration limits.
func (c ClipConfig) Validate() error {
	if !(c.Sigma > 0) {
		return fmt.Errorf("%w: sigma must be > 0, got %g", ErrInvalidConfig, c.Sigma)
	}
	if c.SigmaLower < 0 || c.SigmaUpper < 0 || math.IsNaN(c.SigmaLower) || math.IsNaN(c.SigmaUpper) {
		return fmt.Errorf("%w: sigma_lower/sigma_upper must be >= 0", ErrInvalidConfig)
	}
	if c.MaxIters <= 0 {
		return fmt.Errorf("%w: max iterations must be > 0, got %d", ErrInvalidConfig, c.MaxIters)
	}
	if c.Center != CenterMean && c.Center != CenterMedian {
		return fmt.Errorf("%w: unknown center function %d", ErrInvalidConfig, int(c.Center))
	}
	return nil
}

func (c ClipConfig) lowerUpper() (lower, upper float64) {
	lower, upper = c.Sigma, c.Sigma
	if c.SigmaLower > 0 {
		lower = c.SigmaLower
	}
	if c.SigmaUpper > 0 {
		upper = c.SigmaUpper
	}
	return lower, upper
}

// ClippedStats is the result of a sigma-clipping run.
type ClippedStats struct {
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	// Std is the population standard deviation of the surviving values.
	Std float64 `json:"std"`
	// MADStd is 1.4826 times the median absolute deviation of the survivors.
	MADStd float64 `json:"mad_std"`

	// NInput counts finite, unmasked input values.
	NInput int `json:"n_input"`
	// NUsed counts values that survived clipping.
	NUsed int `json:"n_used"`
	// NClipped is NInput - NUsed.
	NClipped int `json:"n_clipped"`
	// Iterations is the number of clipping passes performed.
	Iterations int `json:"iterations"`
	// Converged is true when the last pass rejected nothing.
	Converged bool `json:"converged"`
}

// SigmaClip computes sigma-clipped statistics of data.
//
// Values whose mask entry is true, and all NaN or infinite values, are
// ignored. Each pass computes the centre (mean or median) and population
// standard deviation of the surviving values and rejects those outside
// [centre - lower*std, centre + upper*std]. Clipping stops when a pass
// rejects nothing or after MaxIters passes.
//
// The input slices are not modified.
func SigmaClip(data []float64, mask []bool, cfg ClipConfig) (*ClippedStats, error) {
	kept, st, err := clip(data, mask, cfg)
	if err != nil {
		return nil, err
	}
	summarize(kept, st)
	return st, nil
}

// SigmaClipImage runs SigmaClip over every pixel of img. mask may be nil.
func SigmaClipImage(img *imaging.Image, mask *imaging.Mask, cfg ClipConfig) (*ClippedStats, error) {
	if err := imaging.CheckMask(img, mask); err != nil {
		return nil, err
	}
	var bits []bool
	if mask != nil {
		bits = mask.Bits
	}
	return SigmaClip(img.Pix, bits, cfg)
}

// ClipMask returns a mask, parallel to data, that is true for every value
// that did not survive: masked on input, non-finite, or rejected by clipping.
func ClipMask(data []float64, mask []bool, cfg ClipConfig) ([]bool, error) {
	kept, _, err := clip(data, mask, cfg)
	if err != nil {
		return nil, err
	}
	lo, hi := kept[0], kept[len(kept)-1]
	out := make([]bool, len(data))
	for i, v := range data {
		if !usable(v, mask, i) || v < lo || v > hi {
			out[i] = true
		}
	}
	return out, nil
}

// ClipMaskImage runs ClipMask over every pixel of img. mask may be nil.
func ClipMaskImage(img *imaging.Image, mask *imaging.Mask, cfg ClipConfig) (*imaging.Mask, error) {
	if err := imaging.CheckMask(img, mask); err != nil {
		return nil, err
	}
	var bits []bool
	if mask != nil {
		bits = mask.Bits
	}
	out, err := ClipMask(img.Pix, bits, cfg)
	if err != nil {
		return nil, err
	}
	return &imaging.Mask{Width: img.Width, Height: img.Height, Bits: out}, nil
}

func usable(v float64, mask []bool, i int) bool {
	if mask != nil && mask[i] {
		return false
	}
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// clip returns the sorted surviving values. Because the sample is sorted once
// up front, every pass keeps a contiguous window and the median is O(1).
func clip(data []float64, mask []bool, cfg ClipConfig) ([]float64, *ClippedStats, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	if mask != nil && len(mask) != len(data) {
		return nil, nil, fmt.Errorf("mask length %d does not match data length %d", len(mask), len(data))
	}

	vals := make([]float64, 0, len(data))
	for i, v := range data {
		if usable(v, mask, i) {
			vals = append(vals, v)
		}
	}
	if len(vals) == 0 {
		return nil, nil, fmt.Errorf("%w: no unmasked finite values", ErrInsufficientData)
	}
	sort.Float64s(vals)

	st := &ClippedStats{NInput: len(vals)}
	lower, upper := cfg.lowerUpper()

	for st.Iterations < cfg.MaxIters {
		var center float64
		if cfg.Center == CenterMedian {
			center = medianSorted(vals)
		} else {
			center = Mean(vals)
		}
		std := PopStd(vals)
		if !(std > 0) {
			// Identical values; rounding in the centre must not reject them.
			st.Iterations++
			st.Converged = true
			break
		}
		lo, hi := center-lower*std, center+upper*std

		start := sort.SearchFloat64s(vals, lo)
		end := sort.Search(len(vals), func(i int) bool { return vals[i] > hi })
		st.Iterations++

		if start >= end {
			return nil, nil, fmt.Errorf("%w: all %d values clipped", ErrInsufficientData, st.NInput)
		}
		if start == 0 && end == len(vals) {
			st.Converged = true
			break
		}
		vals = vals[start:end]
	}

	st.NUsed = len(vals)
	st.NClipped = st.NInput - st.NUsed
	return vals, st, nil
}

func summarize(sorted []float64, st *ClippedStats) {
	st.Mean = Mean(sorted)
	st.Median = medianSorted(sorted)
	st.Std = PopStd(sorted)
	st.MADStd = madStdSorted(sorted, st.Median)
}
