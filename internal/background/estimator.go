package background

import (
	"fmt"

	"github.com/ironsheep/skybg-mcp/internal/stats"
)

// BkgEstimator picks the background level from a sigma-clipped sample.
type BkgEstimator int

const (
	// BkgMedian uses the clipped median.
	BkgMedian BkgEstimator = iota
	// BkgMean uses the clipped mean.
	BkgMean
	// BkgModeEstimator uses 3*median - 2*mean.
	BkgModeEstimator
	// BkgSExtractor uses 2.5*median - 1.5*mean, falling back to the median
	// when (mean - median)/std > 0.3 and to the mean when std is zero.
	BkgSExtractor
)

var bkgNames = map[BkgEstimator]string{
	BkgMedian:        "median",
	BkgMean:          "mean",
	BkgModeEstimator: "mode",
	BkgSExtractor:    "sextractor",
}

func (e BkgEstimator) String() string {
	if s, ok := bkgNames[e]; ok {
		return s
	}
	return fmt.Sprintf("BkgEstimator(%d)", int(e))
}

// ParseBkgEstimator accepts the names returned by String. Empty means median.
func ParseBkgEstimator(s string) (BkgEstimator, error) {
	if s == "" {
		return BkgMedian, nil
	}
	for e, name := range bkgNames {
		if name == s {
			return e, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown background estimator %q", ErrInvalidConfig, s)
}

// Level returns the background level for st.
func (e BkgEstimator) Level(st *stats.ClippedStats) float64 {
	switch e {
	case BkgMean:
		return st.Mean
	case BkgModeEstimator:
		return 3*st.Median - 2*st.Mean
	case BkgSExtractor:
		if st.Std == 0 {
			return st.Mean
		}
		if (st.Mean-st.Median)/st.Std > 0.3 {
			return st.Median
		}
		return 2.5*st.Median - 1.5*st.Mean
	}
	return st.Median
}

// RMSEstimator picks the background noise level from a sigma-clipped sample.
type RMSEstimator int

const (
	// RMSStd uses the clipped population standard deviation.
	RMSStd RMSEstimator = iota
	// RMSMADStd uses the scaled median absolute deviation.
	RMSMADStd
)

func (e RMSEstimator) String() string {
	switch e {
	case RMSStd:
		return "std"
	case RMSMADStd:
		return "mad_std"
	}
	return fmt.Sprintf("RMSEstimator(%d)", int(e))
}

// ParseRMSEstimator accepts "std" and "mad_std". Empty means std.
func ParseRMSEstimator(s string) (RMSEstimator, error) {
	switch s {
	case "", "std":
		return RMSStd, nil
	case "mad_std":
		return RMSMADStd, nil
	}
	return 0, fmt.Errorf("%w: unknown rms estimator %q", ErrInvalidConfig, s)
}

// RMS returns the noise level for st.
func (e RMSEstimator) RMS(st *stats.ClippedStats) float64 {
	if e == RMSMADStd {
		return st.MADStd
	}
	return st.Std
}

func validEstimators(b BkgEstimator, r RMSEstimator) error {
	if _, ok := bkgNames[b]; !ok {
		return fmt.Errorf("%w: unknown background estimator %d", ErrInvalidConfig, int(b))
	}
	if r != RMSStd && r != RMSMADStd {
		return fmt.Errorf("%w: unknown rms estimator %d", ErrInvalidConfig, int(r))
	}
	return nil
}

// estimateSample clips the unmasked values and applies both estimators.
func estimateSample(data []float64, mask []bool, clip stats.ClipConfig, bkg BkgEstimator, rms RMSEstimator) (level, noise float64, st *stats.ClippedStats, err error) {
	st, err = stats.SigmaClip(data, mask, clip)
	if err != nil {
		return 0, 0, nil, err
	}
	return bkg.Level(st), rms.RMS(st), st, nil
}
