package imaging

import (
	"fmt"
	"image"
	_ "image/gif"  // Register GIF format decoder
	_ "image/jpeg" // Register JPEG format decoder
	_ "image/png"  // Register PNG format decoder
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ImageCache provides thread-safe caching of loaded images to avoid redundant disk reads.
//
// The cache stores decoded float images keyed by their file path. Once an image
// is loaded, subsequent Load() calls for the same path return the cached copy without
// disk I/O. Callers must treat returned images as read-only; the estimators never
// modify their input.
//
// ImageCache is safe for concurrent use by multiple goroutines.
//
// # Example Usage
//
//	cache := imaging.NewImageCache()
//	img, err := cache.Load("/data/m31.fits")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	cache.Evict("/data/m31.fits") // Optional: free memory
type ImageCache struct {
	mu     sync.RWMutex
	images map[string]*Image
}

// NewImageCache creates and initializes a new empty image cache.
func NewImageCache() *ImageCache {
	return &ImageCache{
		images: make(map[string]*Image),
	}
}

// Load retrieves an image from the cache or loads it from disk if not cached.
//
// Parameters:
//   - path: File path to the image. FITS files (.fits, .fit, .fts) are read as
//     raw floating-point data; PNG, JPEG and GIF are converted to luminance.
//
// Returns:
//   - *Image: The decoded image.
//   - error: Non-nil if the file cannot be opened or decoded.
//
// The image is cached using the exact path string provided. Different paths to the
// same file (e.g., relative vs absolute) will result in separate cache entries.
func (c *ImageCache) Load(path string) (*Image, error) {
	c.mu.RLock()
	if img, ok := c.images[path]; ok {
		c.mu.RUnlock()
		return img, nil
	}
	c.mu.RUnlock()

	img, err := loadFile(path)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.images[path] = img
	c.mu.Unlock()

	return img, nil
}

func loadFile(path string) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	if isFITS(path) {
		return LoadFITS(f)
	}

	decoded, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return FromImage(decoded), nil
}

func isFITS(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".fits", ".fit", ".fts":
		return true
	}
	return false
}

// Clear removes all images from the cache, freeing the associated memory.
func (c *ImageCache) Clear() {
	c.mu.Lock()
	c.images = make(map[string]*Image)
	c.mu.Unlock()
}

// Evict removes a specific image from the cache by its path.
//
// If the path is not in the cache, this method does nothing.
// After eviction, the next Load() call for this path will read from disk.
func (c *ImageCache) Evict(path string) {
	c.mu.Lock()
	delete(c.images, path)
	c.mu.Unlock()
}

// ImageInfo contains metadata about a loaded image file.
type ImageInfo struct {
	// Width is the image width in pixels.
	Width int `json:"width"`

	// Height is the image height in pixels.
	Height int `json:"height"`

	// Format is "fits", "png", "jpeg", "gif" or "unknown", from the file extension.
	Format string `json:"format"`

	// Min and Max are the smallest and largest finite pixel values.
	Min float64 `json:"min"`
	Max float64 `json:"max"`

	// NonFinite counts NaN and infinite pixels. They are always excluded
	// from background statistics.
	NonFinite int `json:"non_finite"`

	// FileSizeBytes is the size of the image file on disk in bytes.
	FileSizeBytes int64 `json:"file_size_bytes"`
}

// LoadImageInfo loads an image through the cache and returns its metadata.
func LoadImageInfo(cache *ImageCache, path string) (*ImageInfo, error) {
	img, err := cache.Load(path)
	if err != nil {
		return nil, err
	}

	stat, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	format := "unknown"
	switch strings.ToLower(filepath.Ext(path)) {
	case ".fits", ".fit", ".fts":
		format = "fits"
	case ".png":
		format = "png"
	case ".jpg", ".jpeg":
		format = "jpeg"
	case ".gif":
		format = "gif"
	}

	lo, hi := img.MinMax()
	if math.IsNaN(lo) {
		// JSON cannot carry NaN; NonFinite == Width*Height tells the story.
		lo, hi = 0, 0
	}
	nonFinite := 0
	for _, v := range img.Pix {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			nonFinite++
		}
	}

	return &ImageInfo{
		Width:         img.Width,
		Height:        img.Height,
		Format:        format,
		Min:           lo,
		Max:           hi,
		NonFinite:     nonFinite,
		FileSizeBytes: stat.Size(),
	}, nil
}
