package background

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironsheep/skybg-mcp/internal/imaging"
	"github.com/ironsheep/skybg-mcp/internal/stats"
)

func gradient(x, y float64) float64 {
	return 100 + 0.05*x + 0.03*y
}

func residualStats(t *testing.T, img *imaging.Image, res *Result) (mean, median, std float64) {
	t.Helper()
	diff, err := res.Subtract(img)
	require.NoError(t, err)
	return stats.Mean(diff.Pix), stats.Median(diff.Pix), stats.PopStd(diff.Pix)
}

func TestEstimate2D_RecoversGradient(t *testing.T) {
	t.Parallel()

	img := skyImage(10, 200, 150, gradient, 2, nil)

	for _, method := range []Interpolation{InterpBicubic, InterpBilinear} {
		t.Run(method.String(), func(t *testing.T) {
			cfg := DefaultConfig2D(25, 25)
			cfg.SourceMask = nil
			cfg.Interp = method
			cfg.FilterH, cfg.FilterW = 1, 1

			res, err := Estimate2D(img, cfg)
			require.NoError(t, err)
			assert.Equal(t, 6, res.Mesh.NY)
			assert.Equal(t, 8, res.Mesh.NX)
			assert.Equal(t, 48, res.Mesh.NValid)

			mean, median, std := residualStats(t, img, res)
			assert.InDelta(t, 0, mean, 0.1)
			assert.InDelta(t, 0, median, 0.15)
			assert.InDelta(t, 2, std, 0.1)

			// Corners are extrapolated from the outer mesh centres.
			assert.InDelta(t, gradient(0, 0), res.Background.At(0, 0), 0.5)
			assert.InDelta(t, gradient(199, 149), res.Background.At(199, 149), 0.5)
			assert.InDelta(t, 2, res.RMSMedian, 0.15)
		})
	}
}

func TestEstimate2D_SourceMaskImprovesBackground(t *testing.T) {
	t.Parallel()

	stars := []star{
		{40, 40, 50, 4}, {150, 60, 60, 4}, {100, 110, 50, 5},
		{30, 160, 40, 4}, {170, 170, 60, 3}, {90, 30, 45, 4},
	}
	img := skyImage(11, 200, 200, flat(100), 2, stars)

	meanAbsError := func(res *Result) float64 {
		var sum float64
		for _, v := range res.Background.Pix {
			sum += math.Abs(v - 100)
		}
		return sum / float64(len(res.Background.Pix))
	}

	// Without the mesh filter every contaminated cell reaches the map.
	withMask := DefaultConfig2D(25, 25)
	withMask.FilterH, withMask.FilterW = 1, 1
	noMask := withMask
	noMask.SourceMask = nil

	raw, err := Estimate2D(img, noMask)
	require.NoError(t, err)
	masked, err := Estimate2D(img, withMask)
	require.NoError(t, err)

	assert.Positive(t, masked.Sources)
	assert.Less(t, masked.Mesh.NValid, raw.Mesh.NValid, "cells covered by sources are excluded")
	assert.Less(t, meanAbsError(masked), meanAbsError(raw))
	assert.Less(t, meanAbsError(masked), 0.25)
}

func TestEstimate2D_EdgeMethods(t *testing.T) {
	t.Parallel()

	img := skyImage(12, 203, 151, gradient, 2, nil)

	tests := []struct {
		edge   EdgeMethod
		ny, nx int
	}{
		{EdgePad, 7, 9},
		{EdgeCrop, 6, 8},
		{EdgeResize, 6, 8},
	}
	for _, tt := range tests {
		t.Run(tt.edge.String(), func(t *testing.T) {
			cfg := DefaultConfig2D(25, 25)
			cfg.SourceMask = nil
			cfg.Edge = tt.edge
			cfg.FilterH, cfg.FilterW = 1, 1

			res, err := Estimate2D(img, cfg)
			require.NoError(t, err)

			assert.Equal(t, tt.ny, res.Mesh.NY)
			assert.Equal(t, tt.nx, res.Mesh.NX)
			assert.Equal(t, img.Width, res.Background.Width)
			assert.Equal(t, img.Height, res.Background.Height)
			assert.Len(t, res.RMS.Pix, len(img.Pix))
			for i, v := range res.Background.Pix {
				require.False(t, math.IsNaN(v) || math.IsInf(v, 0), "pixel %d", i)
			}

			mean, _, std := residualStats(t, img, res)
			assert.InDelta(t, 0, mean, 0.5)
			assert.InDelta(t, 2, std, 0.5)

			// Away from the partial cells the gradient is recovered as usual.
			inner, err := img.Sub(0, 0, 125, 100)
			require.NoError(t, err)
			innerBkg, err := res.Background.Sub(0, 0, 125, 100)
			require.NoError(t, err)
			diff, err := inner.Subtract(innerBkg)
			require.NoError(t, err)
			assert.InDelta(t, 0, stats.Mean(diff.Pix), 0.1)
			assert.InDelta(t, 2, stats.PopStd(diff.Pix), 0.1)
		})
	}
}

func TestEstimate2D_PadExcludesPartialCells(t *testing.T) {
	t.Parallel()

	img := skyImage(13, 103, 100, flat(5), 1, nil)
	cfg := DefaultConfig2D(25, 25)
	cfg.SourceMask = nil
	cfg.FilterH, cfg.FilterW = 1, 1

	res, err := Estimate2D(img, cfg)
	require.NoError(t, err)
	require.Equal(t, 5, res.Mesh.NX)
	for iy := 0; iy < res.Mesh.NY; iy++ {
		assert.True(t, res.Mesh.Valid[iy*5+3])
		assert.False(t, res.Mesh.Valid[iy*5+4], "row %d: 3 of 25 columns present", iy)
	}

	cfg.ExcludePercentile = 100
	res, err = Estimate2D(img, cfg)
	require.NoError(t, err)
	assert.Equal(t, 20, res.Mesh.NValid)
}

func TestEstimate2D_ParallelMatchesSerial(t *testing.T) {
	t.Parallel()

	img := skyImage(14, 160, 120, gradient, 3, []star{{80, 60, 200, 2}})

	serial := DefaultConfig2D(20, 16)
	parallel := serial
	parallel.Workers = 4

	a, err := Estimate2D(img, serial)
	require.NoError(t, err)
	b, err := Estimate2D(img, parallel)
	require.NoError(t, err)

	assert.Equal(t, 1, a.Workers)
	assert.Equal(t, 4, b.Workers)
	if diff := cmp.Diff(a.Mesh, b.Mesh); diff != "" {
		t.Errorf("mesh differs (-serial +parallel):\n%s", diff)
	}
	assert.Equal(t, a.Background.Pix, b.Background.Pix)
	assert.Equal(t, a.RMS.Pix, b.RMS.Pix)
}

func TestEstimate2D_Idempotent(t *testing.T) {
	t.Parallel()

	img := skyImage(15, 100, 80, gradient, 1, []star{{50, 40, 80, 2}})
	before := img.Clone()

	a, err := Estimate2D(img, DefaultConfig2D(20, 20))
	require.NoError(t, err)
	b, err := Estimate2D(img, DefaultConfig2D(20, 20))
	require.NoError(t, err)

	assert.Equal(t, a.Background.Pix, b.Background.Pix)
	assert.Equal(t, a.RMS.Pix, b.RMS.Pix)
	assert.Equal(t, before.Pix, img.Pix)
}

func TestEstimate2D_AllMasked(t *testing.T) {
	t.Parallel()

	img := skyImage(16, 50, 50, flat(1), 1, nil)
	all := imaging.MaskFor(img)
	for i := range all.Bits {
		all.Bits[i] = true
	}

	cfg := DefaultConfig2D(10, 10)
	cfg.SourceMask = nil
	cfg.Mask = all
	_, err := Estimate2D(img, cfg)
	assert.ErrorIs(t, err, ErrInsufficientData)

	nan := img.Clone()
	for i := range nan.Pix {
		nan.Pix[i] = math.NaN()
	}
	cfg.Mask = nil
	_, err = Estimate2D(nan, cfg)
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestEstimate2D_FillsMaskedCells(t *testing.T) {
	t.Parallel()

	img := skyImage(17, 100, 100, flat(20), 0.5, nil)
	mask := imaging.MaskFor(img)
	for y := 40; y < 60; y++ {
		for x := 40; x < 60; x++ {
			img.Set(x, y, 1e4)
			mask.Set(x, y, true)
		}
	}

	cfg := DefaultConfig2D(20, 20)
	cfg.SourceMask = nil
	cfg.Mask = mask
	cfg.FilterH, cfg.FilterW = 1, 1

	res, err := Estimate2D(img, cfg)
	require.NoError(t, err)
	assert.False(t, res.Mesh.Valid[2*5+2])
	assert.Equal(t, 24, res.Mesh.NValid)
	bkg, _ := res.Mesh.At(2, 2)
	assert.InDelta(t, 20, bkg, 0.1)
	assert.InDelta(t, 20, res.Background.At(50, 50), 0.1)
}

func TestEstimate2D_RMSNonNegativeAtEdges(t *testing.T) {
	t.Parallel()

	// Two cells with very different noise: the linear extension of the rms
	// map past the quiet cell's centre would dip below zero.
	img := &imaging.Image{Width: 128, Height: 64, Pix: make([]float64, 128*64)}
	for y := 0; y < img.Height; y++ {
		for x := 0; x < img.Width; x++ {
			amp := 1.0
			if x >= 64 {
				amp = 6
			}
			if (x+y)%2 == 1 {
				amp = -amp
			}
			img.Set(x, y, 100+amp)
		}
	}

	cfg := DefaultConfig2D(64, 64)
	cfg.SourceMask = nil
	cfg.Interp = InterpBilinear
	cfg.FilterH, cfg.FilterW = 1, 1

	res, err := Estimate2D(img, cfg)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{1, 6}, res.Mesh.RMS, 1e-9)

	lo, hi := res.RMS.MinMax()
	assert.GreaterOrEqual(t, lo, 0.0)
	assert.Equal(t, 0.0, res.RMS.At(0, 0))
	assert.Greater(t, hi, 6.0)

	// Between the centres the map is untouched.
	assert.InDelta(t, 1+5*(63-31.5)/64, res.RMS.At(63, 10), 1e-9)
}

func TestConfig2D_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config2D)
	}{
		{"zero box", func(c *Config2D) { c.BoxH = 0 }},
		{"even filter", func(c *Config2D) { c.FilterW = 4 }},
		{"zero filter", func(c *Config2D) { c.FilterH = 0 }},
		{"percentile", func(c *Config2D) { c.ExcludePercentile = 101 }},
		{"nan percentile", func(c *Config2D) { c.ExcludePercentile = math.NaN() }},
		{"edge", func(c *Config2D) { c.Edge = EdgeMethod(9) }},
		{"interp", func(c *Config2D) { c.Interp = Interpolation(9) }},
		{"workers", func(c *Config2D) { c.Workers = -1 }},
		{"rms", func(c *Config2D) { c.RMS = RMSEstimator(9) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig2D(10, 10)
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}

	cfg := DefaultConfig2D(10, 10)
	cfg.Clip.MaxIters = 0
	assert.ErrorIs(t, cfg.Validate(), stats.ErrInvalidConfig)

	img := skyImage(18, 30, 30, flat(1), 1, nil)
	_, err := Estimate2D(img, DefaultConfig2D(31, 10))
	assert.ErrorIs(t, err, ErrInvalidConfig)

	cfg = DefaultConfig2D(10, 10)
	cfg.Mask = imaging.NewMask(5, 5)
	_, err = Estimate2D(img, cfg)
	assert.Error(t, err)
}
