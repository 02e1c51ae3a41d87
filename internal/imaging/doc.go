// Package imaging holds the pixel model and the file plumbing around the
// background estimators.
//
// Images are single-channel float64 arrays (Image) with a parallel boolean
// Mask in which true means "exclude this pixel from statistics". The package
// loads FITS data through astrogo/fitsio and PNG/JPEG/GIF through the standard
// decoders, caches loaded images by path, writes results back out as FITS,
// and renders colour-mapped PNG previews for clients that want to look at a
// background map.
//
// # Coordinate System
//
// Pixel (x, y) is stored at Pix[y*Width+x]. Regions use an inclusive top-left
// corner (x1,y1) and an exclusive bottom-right corner (x2,y2).
//
// # Non-finite Values
//
// NaN and infinite pixels are carried through unchanged. The statistics code
// treats them as masked; previews draw them black.
//
// # Thread Safety
//
// The ImageCache type is safe for concurrent use. Images returned from the
// cache are shared and must not be modified.
package imaging
