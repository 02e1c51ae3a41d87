package stats

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// MADScale converts a median absolute deviation into a Gaussian sigma.
const MADScale = 1.482602218505602

// Mean returns the arithmetic mean, or NaN for an empty slice.
func Mean(x []float64) float64 {
	if len(x) == 0 {
		return math.NaN()
	}
	return floats.Sum(x) / float64(len(x))
}

// PopStd returns the population (ddof=0) standard deviation, or NaN for an
// empty slice.
func PopStd(x []float64) float64 {
	if len(x) == 0 {
		return math.NaN()
	}
	_, variance := stat.PopMeanVariance(x, nil)
	if variance < 0 {
		// Compensated summation can undershoot zero for identical values.
		return 0
	}
	return math.Sqrt(variance)
}

// Median returns the median of x, averaging the two middle values for even
// lengths. x is not modified. NaN for an empty slice.
func Median(x []float64) float64 {
	if len(x) == 0 {
		return math.NaN()
	}
	s := make([]float64, len(x))
	copy(s, x)
	sort.Float64s(s)
	return medianSorted(s)
}

// MADStd returns MADScale times the median absolute deviation of x.
func MADStd(x []float64) float64 {
	if len(x) == 0 {
		return math.NaN()
	}
	s := make([]float64, len(x))
	copy(s, x)
	sort.Float64s(s)
	return madStdSorted(s, medianSorted(s))
}

func medianSorted(s []float64) float64 {
	n := len(s)
	if n == 0 {
		return math.NaN()
	}
	if n%2 == 1 {
		return s[n/2]
	}
	return (s[n/2-1] + s[n/2]) / 2
}

func madStdSorted(s []float64, med float64) float64 {
	if len(s) == 0 {
		return math.NaN()
	}
	dev := make([]float64, len(s))
	for i, v := range s {
		dev[i] = math.Abs(v - med)
	}
	sort.Float64s(dev)
	return MADScale * medianSorted(dev)
}
