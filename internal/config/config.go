// Package config loads estimator defaults for the server from a YAML file.
//
// Every field is optional. Missing fields fall back to the built-in defaults
// of the stats, segmentation and background packages, and tool arguments
// override whatever the file sets.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/ironsheep/skybg-mcp/internal/background"
	"github.com/ironsheep/skybg-mcp/internal/imaging"
	"github.com/ironsheep/skybg-mcp/internal/segmentation"
	"github.com/ironsheep/skybg-mcp/internal/stats"
)

// EnvConfigPath names the environment variable consulted when no --config
// flag is given.
const EnvConfigPath = "SKYBG_MCP_CONFIG"

const maxFileSize = 1 << 20

// Config is the root of the YAML document.
type Config struct {
	Clip       ClipSection       `yaml:"clip"`
	SourceMask SourceMaskSection `yaml:"source_mask"`
	Background BackgroundSection `yaml:"background"`
	Mesh       MeshSection       `yaml:"mesh"`
	Preview    PreviewSection    `yaml:"preview"`
}

type ClipSection struct {
	Sigma      *float64 `yaml:"sigma,omitempty"`
	SigmaLower *float64 `yaml:"sigma_lower,omitempty"`
	SigmaUpper *float64 `yaml:"sigma_upper,omitempty"`
	MaxIters   *int     `yaml:"max_iters,omitempty"`
	Center     *string  `yaml:"center,omitempty"` // "mean" or "median"
}

type SourceMaskSection struct {
	Enabled      *bool    `yaml:"enabled,omitempty"`
	NSigma       *float64 `yaml:"nsigma,omitempty"`
	NPixels      *int     `yaml:"npixels,omitempty"`
	DilateRadius *int     `yaml:"dilate_radius,omitempty"`
	SmoothFWHM   *float64 `yaml:"smooth_fwhm,omitempty"`
	Connectivity *int     `yaml:"connectivity,omitempty"` // 4 or 8
}

type BackgroundSection struct {
	Estimator *string `yaml:"estimator,omitempty"` // median, mean, mode, sextractor
	RMS       *string `yaml:"rms,omitempty"`       // std, mad_std
}

type MeshSection struct {
	BoxSize           *int     `yaml:"box_size,omitempty"`
	FilterSize        *int     `yaml:"filter_size,omitempty"`
	Edge              *string  `yaml:"edge,omitempty"` // pad, crop, resize
	ExcludePercentile *float64 `yaml:"exclude_percentile,omitempty"`
	Interpolation     *string  `yaml:"interpolation,omitempty"` // bicubic, bilinear
	Workers           *int     `yaml:"workers,omitempty"`
}

type PreviewSection struct {
	MaxDim   *int    `yaml:"max_dim,omitempty"`
	Colormap *string `yaml:"colormap,omitempty"`
}

// Load reads and validates a YAML config file. The path must end in .yaml
// or .yml and the file must be under 1MB.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("config file must have .yaml or .yml extension, got %q", ext)
	}

	info, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates YAML. Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Resolve loads the file named by flagPath, or by $SKYBG_MCP_CONFIG when the
// flag is empty. With neither set it returns an empty Config.
func Resolve(flagPath string) (*Config, string, error) {
	path := flagPath
	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path == "" {
		return &Config{}, "", nil
	}
	cfg, err := Load(path)
	return cfg, path, err
}

// Validate converts every section once so errors surface at load time.
func (c *Config) Validate() error {
	if _, err := c.ClipConfig(); err != nil {
		return err
	}
	if _, err := c.MaskConfig(); err != nil {
		return err
	}
	if _, err := c.Config2D(); err != nil {
		return err
	}
	if c.Preview.MaxDim != nil && *c.Preview.MaxDim < 16 {
		return fmt.Errorf("preview.max_dim must be >= 16, got %d", *c.Preview.MaxDim)
	}
	if c.Preview.Colormap != nil {
		if _, err := imaging.ColormapByName(*c.Preview.Colormap); err != nil {
			return err
		}
	}
	return nil
}

// ClipConfig returns the clip section applied over stats.DefaultClipConfig.
func (c *Config) ClipConfig() (stats.ClipConfig, error) {
	out := stats.DefaultClipConfig()
	s := c.Clip
	if s.Sigma != nil {
		out.Sigma = *s.Sigma
	}
	if s.SigmaLower != nil {
		out.SigmaLower = *s.SigmaLower
	}
	if s.SigmaUpper != nil {
		out.SigmaUpper = *s.SigmaUpper
	}
	if s.MaxIters != nil {
		out.MaxIters = *s.MaxIters
	}
	if s.Center != nil {
		center, err := stats.ParseCenterFunc(*s.Center)
		if err != nil {
			return out, fmt.Errorf("clip.center: %w", err)
		}
		out.Center = center
	}
	if err := out.Validate(); err != nil {
		return out, fmt.Errorf("clip: %w", err)
	}
	return out, nil
}

// MaskConfig returns the source mask settings, or nil when
// source_mask.enabled is false.
func (c *Config) MaskConfig() (*segmentation.MaskConfig, error) {
	s := c.SourceMask
	if s.Enabled != nil && !*s.Enabled {
		return nil, nil
	}
	clip, err := c.ClipConfig()
	if err != nil {
		return nil, err
	}

	out := segmentation.DefaultMaskConfig()
	out.Clip = clip
	if s.NSigma != nil {
		out.NSigma = *s.NSigma
	}
	if s.NPixels != nil {
		out.NPixels = *s.NPixels
	}
	if s.DilateRadius != nil {
		out.DilateRadius = *s.DilateRadius
	}
	if s.SmoothFWHM != nil {
		out.SmoothFWHM = *s.SmoothFWHM
	}
	if s.Connectivity != nil {
		out.Connectivity = segmentation.Connectivity(*s.Connectivity)
	}
	if err := out.Validate(); err != nil {
		return nil, fmt.Errorf("source_mask: %w", err)
	}
	return &out, nil
}

func (c *Config) estimators() (background.BkgEstimator, background.RMSEstimator, error) {
	var name, rmsName string
	if c.Background.Estimator != nil {
		name = *c.Background.Estimator
	}
	if c.Background.RMS != nil {
		rmsName = *c.Background.RMS
	}
	bkg, err := background.ParseBkgEstimator(name)
	if err != nil {
		return 0, 0, fmt.Errorf("background.estimator: %w", err)
	}
	rms, err := background.ParseRMSEstimator(rmsName)
	if err != nil {
		return 0, 0, fmt.Errorf("background.rms: %w", err)
	}
	return bkg, rms, nil
}

// ScalarConfig returns settings for background.EstimateScalar.
func (c *Config) ScalarConfig() (background.ScalarConfig, error) {
	out := background.DefaultScalarConfig()
	var err error
	if out.Clip, err = c.ClipConfig(); err != nil {
		return out, err
	}
	if out.SourceMask, err = c.MaskConfig(); err != nil {
		return out, err
	}
	if out.Bkg, out.RMS, err = c.estimators(); err != nil {
		return out, err
	}
	return out, nil
}

// DefaultBoxSize is used when neither the file nor the caller sets one.
const DefaultBoxSize = 64

// Config2D returns settings for background.Estimate2D. The box size is
// mesh.box_size or DefaultBoxSize.
func (c *Config) Config2D() (background.Config2D, error) {
	m := c.Mesh
	box := DefaultBoxSize
	if m.BoxSize != nil {
		box = *m.BoxSize
	}
	out := background.DefaultConfig2D(box, box)

	var err error
	if out.Clip, err = c.ClipConfig(); err != nil {
		return out, err
	}
	if out.SourceMask, err = c.MaskConfig(); err != nil {
		return out, err
	}
	if out.Bkg, out.RMS, err = c.estimators(); err != nil {
		return out, err
	}
	if m.FilterSize != nil {
		out.FilterH, out.FilterW = *m.FilterSize, *m.FilterSize
	}
	if m.Edge != nil {
		if out.Edge, err = background.ParseEdgeMethod(*m.Edge); err != nil {
			return out, fmt.Errorf("mesh.edge: %w", err)
		}
	}
	if m.ExcludePercentile != nil {
		out.ExcludePercentile = *m.ExcludePercentile
	}
	if m.Interpolation != nil {
		if out.Interp, err = background.ParseInterpolation(*m.Interpolation); err != nil {
			return out, fmt.Errorf("mesh.interpolation: %w", err)
		}
	}
	if m.Workers != nil {
		out.Workers = *m.Workers
	}
	if err := out.Validate(); err != nil {
		return out, fmt.Errorf("mesh: %w", err)
	}
	return out, nil
}

// GetPreviewMaxDim returns preview.max_dim or 1024.
func (c *Config) GetPreviewMaxDim() int {
	if c.Preview.MaxDim == nil {
		return 1024
	}
	return *c.Preview.MaxDim
}

// GetColormap returns preview.colormap or "viridis".
func (c *Config) GetColormap() string {
	if c.Preview.Colormap == nil {
		return "viridis"
	}
	return *c.Preview.Colormap
}
