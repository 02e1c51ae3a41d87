// Package background estimates the sky background of an image and its noise.
//
// EstimateScalar reduces the whole image to one level and one rms after
// masking detected sources and sigma clipping. Estimate2D does the same per
// cell of a coarse mesh, fills and median-filters the mesh, and interpolates
// it back to full resolution so that the result can be subtracted from the
// image pixel by pixel.
package background
