package background

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAxisSpans(t *testing.T) {
	t.Parallel()

	tests := []struct {
		edge        EdgeMethod
		wantSpans   []span
		wantCentres []float64
	}{
		{EdgePad, []span{{0, 4}, {4, 8}, {8, 10}}, []float64{1.5, 5.5, 9.5}},
		{EdgeCrop, []span{{0, 4}, {4, 8}}, []float64{1.5, 5.5}},
		{EdgeResize, []span{{0, 4}, {4, 10}}, []float64{1.5, 6.5}},
	}
	for _, tt := range tests {
		spans, centres := axisSpans(10, 4, tt.edge)
		if diff := cmp.Diff(tt.wantSpans, spans, cmp.AllowUnexported(span{})); diff != "" {
			t.Errorf("%s spans (-want +got):\n%s", tt.edge, diff)
		}
		assert.Equal(t, tt.wantCentres, centres, "%s centres", tt.edge)
	}

	spans, centres := axisSpans(12, 4, EdgePad)
	assert.Len(t, spans, 3)
	assert.Equal(t, []float64{1.5, 5.5, 9.5}, centres)
}

func TestMeshEdges(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []int{0, 4, 8, 10}, MeshEdges(10, 4, EdgePad))
	assert.Equal(t, []int{0, 4, 8}, MeshEdges(10, 4, EdgeCrop))
	assert.Equal(t, []int{0, 4, 10}, MeshEdges(10, 4, EdgeResize))
	assert.Equal(t, []int{0, 4, 8, 12}, MeshEdges(12, 4, EdgeCrop))

	assert.Equal(t, []int{0, 10}, MeshEdges(10, 16, EdgePad))
	assert.Nil(t, MeshEdges(10, 16, EdgeCrop))
	assert.Nil(t, MeshEdges(10, 16, EdgeResize))
	assert.Nil(t, MeshEdges(10, 0, EdgePad))
}

func TestNewLayout_NominalArea(t *testing.T) {
	t.Parallel()

	l := newLayout(10, 6, 4, 3, EdgePad)
	require.Equal(t, 2, l.ny)
	require.Equal(t, 3, l.nx)

	last := l.cells[len(l.cells)-1]
	assert.Equal(t, 6, last.area())
	assert.Equal(t, 12, last.nominal)

	r := newLayout(10, 6, 4, 3, EdgeResize)
	last = r.cells[len(r.cells)-1]
	assert.Equal(t, 18, last.area())
	assert.Equal(t, last.area(), last.nominal)
}

func TestFillInvalid(t *testing.T) {
	t.Parallel()

	values := []float64{1, 0, 3}
	ok := fillInvalid(values, []bool{true, false, true}, 1, 3)
	require.True(t, ok)
	assert.InDelta(t, 2, values[1], 1e-12)

	// Nearer cells dominate.
	values = []float64{10, 0, 0, 0, 20}
	fillInvalid(values, []bool{true, false, false, false, true}, 1, 5)
	assert.InDelta(t, (10+20.0/9)/(1+1.0/9), values[1], 1e-9)
	assert.InDelta(t, 15, values[2], 1e-12)

	assert.False(t, fillInvalid([]float64{0, 0}, []bool{false, false}, 1, 2))
}

func TestMedianFilter(t *testing.T) {
	t.Parallel()

	grid := []float64{
		1, 1, 1,
		1, 50, 1,
		1, 1, 1,
	}
	got := medianFilter(grid, 3, 3, 3, 3)
	assert.Equal(t, 1.0, got[4], "outlier removed")
	assert.Equal(t, 50.0, grid[4], "input untouched")

	// A linear ramp along one axis survives with edge replication.
	ramp := []float64{0, 1, 2, 3, 4}
	assert.Equal(t, ramp, medianFilter(ramp, 1, 5, 1, 3))

	assert.Equal(t, grid, medianFilter(grid, 3, 3, 1, 1))
}

func TestCurve_ExtrapolatesLinearly(t *testing.T) {
	t.Parallel()

	xs := []float64{2, 6, 10, 14}
	ys := []float64{5, 13, 21, 29} // y = 2x + 1

	for _, method := range []Interpolation{InterpBicubic, InterpBilinear} {
		c, err := fitCurve(xs, ys, method)
		require.NoError(t, err)
		for _, x := range []float64{0, 2, 4.5, 11, 14, 17} {
			assert.InDelta(t, 2*x+1, c.at(x), 1e-6, "%s at %g", method, x)
		}
	}

	c, err := fitCurve([]float64{3}, []float64{7}, InterpBicubic)
	require.NoError(t, err)
	assert.Equal(t, 7.0, c.at(-100))
	assert.Equal(t, 7.0, c.at(100))

	c, err = fitCurve([]float64{0, 10}, []float64{0, 5}, InterpBicubic)
	require.NoError(t, err)
	assert.InDelta(t, -2.5, c.at(-5), 1e-6)
	assert.InDelta(t, 7.5, c.at(15), 1e-6)
}

func TestUpsample_Plane(t *testing.T) {
	t.Parallel()

	yc := []float64{1.5, 5.5, 9.5}
	xc := []float64{1.5, 5.5, 9.5, 13.5}
	plane := func(x, y float64) float64 { return 3 + 0.5*x - 0.25*y }

	grid := make([]float64, 0, 12)
	for _, y := range yc {
		for _, x := range xc {
			grid = append(grid, plane(x, y))
		}
	}

	out, err := upsample(grid, yc, xc, 16, 12, InterpBicubic)
	require.NoError(t, err)
	for y := 0; y < 12; y++ {
		for x := 0; x < 16; x++ {
			assert.InDelta(t, plane(float64(x), float64(y)), out[y*16+x], 1e-6, "(%d, %d)", x, y)
		}
	}
}

func TestParseEdgeAndInterpolation(t *testing.T) {
	t.Parallel()

	for _, e := range []EdgeMethod{EdgePad, EdgeCrop, EdgeResize} {
		got, err := ParseEdgeMethod(e.String())
		require.NoError(t, err)
		assert.Equal(t, e, got)
	}
	_, err := ParseEdgeMethod("wrap")
	assert.ErrorIs(t, err, ErrInvalidConfig)

	m, err := ParseInterpolation("bilinear")
	require.NoError(t, err)
	assert.Equal(t, InterpBilinear, m)
	m, err = ParseInterpolation("")
	require.NoError(t, err)
	assert.Equal(t, InterpBicubic, m)
	_, err = ParseInterpolation("nearest")
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
