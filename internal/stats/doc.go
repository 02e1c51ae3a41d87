// Package stats implements sigma-clipped descriptive statistics.
//
// The pixel distribution of a sky image is a mixture: Gaussian-ish background
// noise plus a long bright tail contributed by sources. SigmaClip iteratively
// trims values more than N standard deviations from the centre so that the
// remaining mean, median and standard deviation describe the background only.
//
// Degenerate inputs (empty, fully masked, or clipped away) are reported as
// ErrInsufficientData rather than as zero or NaN, and bad parameters as
// ErrInvalidConfig. Both can be tested with errors.Is.
package stats
