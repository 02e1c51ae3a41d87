// Package segmentation detects sources in an image and builds masks from them.
//
// Detection thresholds the image at a level derived from sigma-clipped
// statistics, groups the pixels above it into connected segments with an
// iterative flood fill, drops segments below a minimum size, and optionally
// dilates the result so that the faint wings of each source are covered too.
// The resulting mask is what the background estimators exclude.
package segmentation
