package background

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironsheep/skybg-mcp/internal/imaging"
	"github.com/ironsheep/skybg-mcp/internal/segmentation"
	"github.com/ironsheep/skybg-mcp/internal/stats"
)

type star struct {
	x, y       float64
	amp, sigma float64
}

// skyImage returns level(x, y) plus Gaussian noise and stars.
func skyImage(seed uint64, w, h int, level func(x, y float64) float64, noise float64, stars []star) *imaging.Image {
	r := rand.New(rand.NewPCG(seed, 11))
	img := &imaging.Image{Width: w, Height: h, Pix: make([]float64, w*h)}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			fx, fy := float64(x), float64(y)
			v := level(fx, fy) + noise*r.NormFloat64()
			for _, s := range stars {
				dx, dy := fx-s.x, fy-s.y
				v += s.amp * math.Exp(-(dx*dx+dy*dy)/(2*s.sigma*s.sigma))
			}
			img.Pix[y*w+x] = v
		}
	}
	return img
}

func flat(v float64) func(x, y float64) float64 {
	return func(float64, float64) float64 { return v }
}

func TestEstimateScalar_FlatNoise(t *testing.T) {
	t.Parallel()

	img := skyImage(1, 120, 120, flat(1000), 5, nil)
	res, err := EstimateScalar(img, DefaultScalarConfig())
	require.NoError(t, err)

	assert.InDelta(t, 1000, res.Background, 0.2)
	assert.InDelta(t, 5, res.RMS, 0.2)
	assert.Equal(t, 120*120, res.Stats.NInput+res.MaskedPixels)
}

func TestEstimateScalar_MaskingBeatsClipping(t *testing.T) {
	t.Parallel()

	stars := []star{
		{30, 30, 60, 4}, {90, 40, 80, 3}, {60, 95, 50, 5},
		{20, 100, 70, 3}, {100, 100, 40, 4},
	}
	img := skyImage(2, 128, 128, flat(100), 2, stars)

	clipOnly := DefaultScalarConfig()
	clipOnly.SourceMask = nil
	clipOnly.Bkg = BkgMean
	raw, err := EstimateScalar(img, clipOnly)
	require.NoError(t, err)

	masked := DefaultScalarConfig()
	masked.Bkg = BkgMean
	got, err := EstimateScalar(img, masked)
	require.NoError(t, err)

	assert.Positive(t, got.Sources)
	assert.Less(t, math.Abs(got.Background-100), math.Abs(raw.Background-100))
	assert.InDelta(t, 100, got.Background, 0.1)
	assert.InDelta(t, 2, got.RMS, 0.1)
}

func TestEstimateScalar_CallerMask(t *testing.T) {
	t.Parallel()

	img := skyImage(3, 64, 64, flat(10), 1, nil)
	mask := imaging.MaskFor(img)
	for x := 0; x < 64; x++ {
		img.Set(x, 0, 1e6)
		mask.Set(x, 0, true)
	}

	cfg := DefaultScalarConfig()
	cfg.SourceMask = nil
	cfg.Mask = mask
	res, err := EstimateScalar(img, cfg)
	require.NoError(t, err)
	assert.Equal(t, 64, res.MaskedPixels)
	assert.Equal(t, 64*63, res.Stats.NInput)
	assert.InDelta(t, 10, res.Background, 0.1)
}

func TestEstimateScalar_Idempotent(t *testing.T) {
	t.Parallel()

	img := skyImage(4, 80, 60, flat(50), 3, []star{{40, 30, 100, 2}})
	before := img.Clone()

	a, err := EstimateScalar(img, DefaultScalarConfig())
	require.NoError(t, err)
	b, err := EstimateScalar(img, DefaultScalarConfig())
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Equal(t, before.Pix, img.Pix)
}

func TestEstimateScalar_Errors(t *testing.T) {
	t.Parallel()

	img := skyImage(5, 16, 16, flat(1), 1, nil)

	all := imaging.MaskFor(img)
	for i := range all.Bits {
		all.Bits[i] = true
	}
	cfg := DefaultScalarConfig()
	cfg.SourceMask = nil
	cfg.Mask = all
	_, err := EstimateScalar(img, cfg)
	assert.ErrorIs(t, err, ErrInsufficientData)

	cfg = DefaultScalarConfig()
	cfg.Clip.Sigma = -1
	_, err = EstimateScalar(img, cfg)
	assert.ErrorIs(t, err, stats.ErrInvalidConfig)

	cfg = DefaultScalarConfig()
	cfg.Bkg = BkgEstimator(42)
	_, err = EstimateScalar(img, cfg)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	cfg = DefaultScalarConfig()
	cfg.Mask = imaging.NewMask(3, 3)
	_, err = EstimateScalar(img, cfg)
	assert.Error(t, err)

	cfg = DefaultScalarConfig()
	bad := segmentation.DefaultMaskConfig()
	bad.NPixels = 0
	cfg.SourceMask = &bad
	_, err = EstimateScalar(img, cfg)
	assert.ErrorIs(t, err, segmentation.ErrInvalidParams)
}

func TestBkgEstimator_Level(t *testing.T) {
	t.Parallel()

	st := &stats.ClippedStats{Mean: 10, Median: 9, Std: 4, MADStd: 3}
	skewed := &stats.ClippedStats{Mean: 12, Median: 9, Std: 4}
	constant := &stats.ClippedStats{Mean: 7, Median: 7}

	tests := []struct {
		est  BkgEstimator
		st   *stats.ClippedStats
		want float64
	}{
		{BkgMedian, st, 9},
		{BkgMean, st, 10},
		{BkgModeEstimator, st, 3*9 - 2*10},
		{BkgSExtractor, st, 2.5*9 - 1.5*10},
		{BkgSExtractor, skewed, 9},
		{BkgSExtractor, constant, 7},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, tt.est.Level(tt.st), 1e-12, "%s", tt.est)
	}

	assert.Equal(t, 4.0, RMSStd.RMS(st))
	assert.Equal(t, 3.0, RMSMADStd.RMS(st))
}

func TestParseEstimators(t *testing.T) {
	t.Parallel()

	for _, e := range []BkgEstimator{BkgMedian, BkgMean, BkgModeEstimator, BkgSExtractor} {
		got, err := ParseBkgEstimator(e.String())
		require.NoError(t, err)
		assert.Equal(t, e, got)
	}
	b, err := ParseBkgEstimator("")
	require.NoError(t, err)
	assert.Equal(t, BkgMedian, b)
	_, err = ParseBkgEstimator("biweight")
	assert.ErrorIs(t, err, ErrInvalidConfig)

	r, err := ParseRMSEstimator("mad_std")
	require.NoError(t, err)
	assert.Equal(t, RMSMADStd, r)
	_, err = ParseRMSEstimator("iqr")
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
