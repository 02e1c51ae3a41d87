package server

import (
	"encoding/json"
	"fmt"
	"log"

	"github.com/astrogo/fitsio"

	"github.com/ironsheep/skybg-mcp/internal/background"
	"github.com/ironsheep/skybg-mcp/internal/config"
	"github.com/ironsheep/skybg-mcp/internal/imaging"
	"github.com/ironsheep/skybg-mcp/internal/segmentation"
	"github.com/ironsheep/skybg-mcp/internal/stats"
)

// ToolCallParams represents the parameters for a tools/call MCP request.
type ToolCallParams struct {
	// Name is the tool to invoke (e.g., "image_load", "background_2d").
	Name string `json:"name"`

	// Arguments contains the tool-specific parameters as JSON.
	Arguments json.RawMessage `json:"arguments"`
}

// handleToolsCall processes a tools/call request and executes the specified tool.
//
// The response wraps the tool result in MCP's content format:
//
//	{
//	  "content": [{"type": "text", "text": "<JSON result>"}]
//	}
//
// Tool execution errors return a JSON-RPC error response with code -32000.
func (s *Server) handleToolsCall(req *MCPRequest) *MCPResponse {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.errorResponse(req.ID, -32602, "Invalid params", err.Error())
	}

	result, err := s.executeTool(s.config(), params.Name, params.Arguments)
	if err != nil {
		if s.debug {
			log.Printf("tool %s failed: %v", params.Name, err)
		}
		return s.errorResponse(req.ID, -32000, "Tool execution failed", err.Error())
	}

	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"content": []map[string]interface{}{
				{
					"type": "text",
					"text": mustMarshalJSON(result),
				},
			},
		},
	}
}

// executeTool dispatches tool execution to the appropriate handler function.
// cfg is the config snapshot for the whole call; a reload mid-call does not
// reach it.
//
// Each tool handler:
//  1. Unmarshals arguments from JSON
//  2. Starts from the config file defaults and applies argument overrides
//  3. Loads the image (and optional mask) from cache
//  4. Calls the stats, segmentation or background function
//  5. Returns the result or error
func (s *Server) executeTool(cfg *config.Config, name string, args json.RawMessage) (interface{}, error) {
	switch name {
	case "image_load":
		return s.handleImageLoad(args)
	case "background_stats":
		return s.handleBackgroundStats(cfg, args)
	case "background_source_mask":
		return s.handleSourceMask(cfg, args)
	case "background_scalar":
		return s.handleBackgroundScalar(cfg, args)
	case "background_2d":
		return s.handleBackground2D(cfg, args)
	case "background_mesh_overlay":
		return s.handleMeshOverlay(cfg, args)
	default:
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
}

// errorResponse creates a JSON-RPC error response with the given details.
func (s *Server) errorResponse(id interface{}, code int, message, data string) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &MCPError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
}

// mustMarshalJSON converts a value to pretty-printed JSON string.
// Panics are suppressed; on marshal failure, returns an empty string.
func mustMarshalJSON(v interface{}) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}

// === Shared argument groups ===

type clipArgs struct {
	Sigma      *float64 `json:"sigma"`
	SigmaLower *float64 `json:"sigma_lower"`
	SigmaUpper *float64 `json:"sigma_upper"`
	MaxIters   *int     `json:"max_iters"`
	Center     *string  `json:"center"`
}

func (a clipArgs) apply(c *stats.ClipConfig) error {
	if a.Sigma != nil {
		c.Sigma = *a.Sigma
	}
	if a.SigmaLower != nil {
		c.SigmaLower = *a.SigmaLower
	}
	if a.SigmaUpper != nil {
		c.SigmaUpper = *a.SigmaUpper
	}
	if a.MaxIters != nil {
		c.MaxIters = *a.MaxIters
	}
	if a.Center != nil {
		center, err := stats.ParseCenterFunc(*a.Center)
		if err != nil {
			return err
		}
		c.Center = center
	}
	return nil
}

type sourceMaskArgs struct {
	NSigma       *float64 `json:"nsigma"`
	NPixels      *int     `json:"npixels"`
	DilateRadius *int     `json:"dilate_radius"`
	SmoothFWHM   *float64 `json:"smooth_fwhm"`
	Connectivity *int     `json:"connectivity"`
}

func (a sourceMaskArgs) apply(mc *segmentation.MaskConfig) {
	if a.NSigma != nil {
		mc.NSigma = *a.NSigma
	}
	if a.NPixels != nil {
		mc.NPixels = *a.NPixels
	}
	if a.DilateRadius != nil {
		mc.DilateRadius = *a.DilateRadius
	}
	if a.SmoothFWHM != nil {
		mc.SmoothFWHM = *a.SmoothFWHM
	}
	if a.Connectivity != nil {
		mc.Connectivity = segmentation.Connectivity(*a.Connectivity)
	}
}

type estimatorArgs struct {
	SourceMask   *bool   `json:"source_mask"`
	Estimator    *string `json:"estimator"`
	RMSEstimator *string `json:"rms_estimator"`
}

// resolveSourceMask returns the detection settings to use, or nil when
// masking is off. base is the config file's choice and may be nil.
func resolveSourceMask(base *segmentation.MaskConfig, enabled *bool, a sourceMaskArgs, clip stats.ClipConfig) *segmentation.MaskConfig {
	if enabled != nil && !*enabled {
		return nil
	}
	if base == nil && enabled == nil {
		return nil
	}
	mc := segmentation.DefaultMaskConfig()
	if base != nil {
		mc = *base
	}
	a.apply(&mc)
	mc.Clip = clip
	return &mc
}

func (a estimatorArgs) apply(bkg *background.BkgEstimator, rms *background.RMSEstimator) error {
	var err error
	if a.Estimator != nil {
		if *bkg, err = background.ParseBkgEstimator(*a.Estimator); err != nil {
			return err
		}
	}
	if a.RMSEstimator != nil {
		if *rms, err = background.ParseRMSEstimator(*a.RMSEstimator); err != nil {
			return err
		}
	}
	return nil
}

// loadWithMask loads the image and, when maskPath is set, the mask image.
func (s *Server) loadWithMask(path, maskPath string) (*imaging.Image, *imaging.Mask, error) {
	img, err := s.cache.Load(path)
	if err != nil {
		return nil, nil, err
	}
	if maskPath == "" {
		return img, nil, nil
	}
	mimg, err := s.cache.Load(maskPath)
	if err != nil {
		return nil, nil, fmt.Errorf("mask: %w", err)
	}
	mask := imaging.MaskFromImage(mimg)
	if err := imaging.CheckMask(img, mask); err != nil {
		return nil, nil, err
	}
	return img, mask, nil
}

func previewMaxDim(cfg *config.Config, arg int) int {
	if arg > 0 {
		return arg
	}
	return cfg.GetPreviewMaxDim()
}

// === Image Information ===

type imageLoadArgs struct {
	Path string `json:"path"`
}

func (s *Server) handleImageLoad(args json.RawMessage) (interface{}, error) {
	var a imageLoadArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	return imaging.LoadImageInfo(s.cache, a.Path)
}

// === Statistics ===

type regionArgs struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

type backgroundStatsArgs struct {
	clipArgs
	Path     string      `json:"path"`
	MaskPath string      `json:"mask_path"`
	Region   *regionArgs `json:"region"`
}

type backgroundStatsResult struct {
	stats.ClippedStats
	Region *regionArgs `json:"region,omitempty"`
}

func (s *Server) handleBackgroundStats(cfg *config.Config, args json.RawMessage) (interface{}, error) {
	var a backgroundStatsArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	clip, err := cfg.ClipConfig()
	if err != nil {
		return nil, err
	}
	if err := a.clipArgs.apply(&clip); err != nil {
		return nil, err
	}

	img, mask, err := s.loadWithMask(a.Path, a.MaskPath)
	if err != nil {
		return nil, err
	}
	if r := a.Region; r != nil {
		if img, err = img.Sub(r.X1, r.Y1, r.X2, r.Y2); err != nil {
			return nil, err
		}
		if mask != nil {
			if mask, err = mask.Sub(r.X1, r.Y1, r.X2, r.Y2); err != nil {
				return nil, err
			}
		}
	}

	st, err := stats.SigmaClipImage(img, mask, clip)
	if err != nil {
		return nil, err
	}
	return &backgroundStatsResult{ClippedStats: *st, Region: a.Region}, nil
}

// === Source Mask ===

type sourceMaskToolArgs struct {
	clipArgs
	sourceMaskArgs
	Path       string `json:"path"`
	MaskPath   string `json:"mask_path"`
	Preview    bool   `json:"preview"`
	MaxDim     int    `json:"max_dim"`
	OutputPath string `json:"output_path"`

	// ClippedOutputPath saves the pixels a plain sigma clip of the whole
	// image rejects, for comparison with the segmented mask.
	ClippedOutputPath string `json:"clipped_output_path"`
}

type sourceMaskResult struct {
	Width          int                    `json:"width"`
	Height         int                    `json:"height"`
	MaskedPixels   int                    `json:"masked_pixels"`
	MaskedFraction float64                `json:"masked_fraction"`
	Threshold      float64                `json:"threshold"`
	Segments       []segmentation.Segment `json:"segments"`
	ClippedPixels  int                    `json:"clipped_pixels,omitempty"`
	Preview        *imaging.PreviewResult `json:"preview,omitempty"`
	Saved          []string               `json:"saved,omitempty"`
}

func (s *Server) handleSourceMask(cfg *config.Config, args json.RawMessage) (interface{}, error) {
	var a sourceMaskToolArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	clip, err := cfg.ClipConfig()
	if err != nil {
		return nil, err
	}
	if err := a.clipArgs.apply(&clip); err != nil {
		return nil, err
	}
	base, err := cfg.MaskConfig()
	if err != nil {
		return nil, err
	}
	enabled := true
	mc := resolveSourceMask(base, &enabled, a.sourceMaskArgs, clip)

	img, mask, err := s.loadWithMask(a.Path, a.MaskPath)
	if err != nil {
		return nil, err
	}
	sources, segm, err := segmentation.MakeSourceMask(img, mask, *mc)
	if err != nil {
		return nil, err
	}

	count := sources.Count()
	result := &sourceMaskResult{
		Width:          img.Width,
		Height:         img.Height,
		MaskedPixels:   count,
		MaskedFraction: float64(count) / float64(img.Len()),
		Threshold:      segm.Threshold,
		Segments:       segm.Segments,
	}
	if a.Preview {
		if result.Preview, err = imaging.RenderMask(sources, previewMaxDim(cfg, a.MaxDim)); err != nil {
			return nil, err
		}
	}
	if a.OutputPath != "" {
		cards := []fitsio.Card{
			{Name: "NSIGMA", Value: mc.NSigma, Comment: "detection threshold in sigma"},
			{Name: "NPIXELS", Value: mc.NPixels, Comment: "minimum source area"},
			{Name: "DILATE", Value: mc.DilateRadius, Comment: "dilation radius"},
			{Name: "NSOURCES", Value: len(segm.Segments), Comment: "detected sources"},
		}
		if err := imaging.SaveFITS(a.OutputPath, sources.ToImage(), cards...); err != nil {
			return nil, err
		}
		result.Saved = append(result.Saved, a.OutputPath)
	}
	if a.ClippedOutputPath != "" {
		clipped, err := stats.ClipMaskImage(img, mask, clip)
		if err != nil {
			return nil, err
		}
		result.ClippedPixels = clipped.Count()
		cards := []fitsio.Card{
			{Name: "CLSIGMA", Value: clip.Sigma, Comment: "clipping threshold in sigma"},
			{Name: "CLITERS", Value: clip.MaxIters, Comment: "maximum clipping passes"},
			{Name: "NCLIPPED", Value: result.ClippedPixels, Comment: "rejected pixels"},
		}
		if err := imaging.SaveFITS(a.ClippedOutputPath, clipped.ToImage(), cards...); err != nil {
			return nil, err
		}
		result.Saved = append(result.Saved, a.ClippedOutputPath)
	}
	return result, nil
}

// === Scalar Background ===

type backgroundScalarArgs struct {
	clipArgs
	sourceMaskArgs
	estimatorArgs
	Path     string `json:"path"`
	MaskPath string `json:"mask_path"`
}

func (s *Server) handleBackgroundScalar(cfg *config.Config, args json.RawMessage) (interface{}, error) {
	var a backgroundScalarArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	sc, err := cfg.ScalarConfig()
	if err != nil {
		return nil, err
	}
	if err := a.clipArgs.apply(&sc.Clip); err != nil {
		return nil, err
	}
	if err := a.estimatorArgs.apply(&sc.Bkg, &sc.RMS); err != nil {
		return nil, err
	}
	sc.SourceMask = resolveSourceMask(sc.SourceMask, a.SourceMask, a.sourceMaskArgs, sc.Clip)

	img, mask, err := s.loadWithMask(a.Path, a.MaskPath)
	if err != nil {
		return nil, err
	}
	sc.Mask = mask
	return background.EstimateScalar(img, sc)
}

// === 2D Background ===

type boxArgs struct {
	BoxSize   int `json:"box_size"`
	BoxWidth  int `json:"box_width"`
	BoxHeight int `json:"box_height"`
}

// resolve returns the box size from the arguments, falling back to def.
func (a boxArgs) resolve(defW, defH int) (w, h int) {
	w, h = defW, defH
	if a.BoxSize > 0 {
		w, h = a.BoxSize, a.BoxSize
	}
	if a.BoxWidth > 0 {
		w = a.BoxWidth
	}
	if a.BoxHeight > 0 {
		h = a.BoxHeight
	}
	return w, h
}

type background2DArgs struct {
	clipArgs
	sourceMaskArgs
	estimatorArgs
	boxArgs
	Path              string   `json:"path"`
	MaskPath          string   `json:"mask_path"`
	FilterSize        *int     `json:"filter_size"`
	Edge              *string  `json:"edge"`
	ExcludePercentile *float64 `json:"exclude_percentile"`
	Interpolation     *string  `json:"interpolation"`
	Workers           *int     `json:"workers"`

	Preview              string `json:"preview"`
	Colormap             string `json:"colormap"`
	MaxDim               int    `json:"max_dim"`
	OutputPath           string `json:"output_path"`
	RMSOutputPath        string `json:"rms_output_path"`
	SubtractedOutputPath string `json:"subtracted_output_path"`
}

type background2DResult struct {
	Width            int                    `json:"width"`
	Height           int                    `json:"height"`
	BackgroundMedian float64                `json:"background_median"`
	RMSMedian        float64                `json:"rms_median"`
	BackgroundMin    float64                `json:"background_min"`
	BackgroundMax    float64                `json:"background_max"`
	MaskedPixels     int                    `json:"masked_pixels"`
	Sources          int                    `json:"sources"`
	Workers          int                    `json:"workers"`
	Edge             string                 `json:"edge"`
	Interpolation    string                 `json:"interpolation"`
	Mesh             *background.Mesh       `json:"mesh"`
	Preview          *imaging.PreviewResult `json:"preview,omitempty"`
	Saved            []string               `json:"saved,omitempty"`
}

func (a background2DArgs) config(base background.Config2D) (background.Config2D, error) {
	cfg := base
	cfg.BoxW, cfg.BoxH = a.boxArgs.resolve(base.BoxW, base.BoxH)

	if err := a.clipArgs.apply(&cfg.Clip); err != nil {
		return cfg, err
	}
	if err := a.estimatorArgs.apply(&cfg.Bkg, &cfg.RMS); err != nil {
		return cfg, err
	}
	cfg.SourceMask = resolveSourceMask(cfg.SourceMask, a.SourceMask, a.sourceMaskArgs, cfg.Clip)

	var err error
	if a.FilterSize != nil {
		cfg.FilterH, cfg.FilterW = *a.FilterSize, *a.FilterSize
	}
	if a.Edge != nil {
		if cfg.Edge, err = background.ParseEdgeMethod(*a.Edge); err != nil {
			return cfg, err
		}
	}
	if a.ExcludePercentile != nil {
		cfg.ExcludePercentile = *a.ExcludePercentile
	}
	if a.Interpolation != nil {
		if cfg.Interp, err = background.ParseInterpolation(*a.Interpolation); err != nil {
			return cfg, err
		}
	}
	if a.Workers != nil {
		cfg.Workers = *a.Workers
	}
	return cfg, nil
}

func (s *Server) handleBackground2D(cfg *config.Config, args json.RawMessage) (interface{}, error) {
	var a background2DArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	base, err := cfg.Config2D()
	if err != nil {
		return nil, err
	}
	bc, err := a.config(base)
	if err != nil {
		return nil, err
	}

	img, mask, err := s.loadWithMask(a.Path, a.MaskPath)
	if err != nil {
		return nil, err
	}
	bc.Mask = mask

	res, err := background.Estimate2D(img, bc)
	if err != nil {
		return nil, err
	}

	lo, hi := res.Background.MinMax()
	out := &background2DResult{
		Width:            img.Width,
		Height:           img.Height,
		BackgroundMedian: res.BackgroundMedian,
		RMSMedian:        res.RMSMedian,
		BackgroundMin:    lo,
		BackgroundMax:    hi,
		MaskedPixels:     res.MaskedPixels,
		Sources:          res.Sources,
		Workers:          res.Workers,
		Edge:             bc.Edge.String(),
		Interpolation:    bc.Interp.String(),
		Mesh:             res.Mesh,
	}

	var subtracted *imaging.Image
	if a.Preview == "subtracted" || a.SubtractedOutputPath != "" {
		if subtracted, err = res.Subtract(img); err != nil {
			return nil, err
		}
	}

	if a.Preview != "" && a.Preview != "none" {
		var target *imaging.Image
		switch a.Preview {
		case "background":
			target = res.Background
		case "rms":
			target = res.RMS
		case "subtracted":
			target = subtracted
		default:
			return nil, fmt.Errorf("unknown preview %q (want background, rms or subtracted)", a.Preview)
		}
		name := a.Colormap
		if name == "" {
			name = cfg.GetColormap()
		}
		cmap, err := imaging.ColormapByName(name)
		if err != nil {
			return nil, err
		}
		if out.Preview, err = imaging.RenderPreview(target, previewMaxDim(cfg, a.MaxDim), cmap); err != nil {
			return nil, err
		}
	}

	cards := []fitsio.Card{
		{Name: "BKGBOXW", Value: bc.BoxW, Comment: "background box width"},
		{Name: "BKGBOXH", Value: bc.BoxH, Comment: "background box height"},
		{Name: "BKGEST", Value: bc.Bkg.String(), Comment: "background estimator"},
		{Name: "RMSEST", Value: bc.RMS.String(), Comment: "rms estimator"},
		{Name: "BKGMED", Value: res.BackgroundMedian, Comment: "median of background mesh"},
		{Name: "RMSMED", Value: res.RMSMedian, Comment: "median of rms mesh"},
	}
	saves := []struct {
		path string
		img  *imaging.Image
	}{
		{a.OutputPath, res.Background},
		{a.RMSOutputPath, res.RMS},
		{a.SubtractedOutputPath, subtracted},
	}
	for _, sv := range saves {
		if sv.path == "" {
			continue
		}
		if err := imaging.SaveFITS(sv.path, sv.img, cards...); err != nil {
			return nil, err
		}
		out.Saved = append(out.Saved, sv.path)
	}
	return out, nil
}

// === Mesh Overlay ===

type meshOverlayArgs struct {
	boxArgs
	Path       string  `json:"path"`
	Edge       *string `json:"edge"`
	ShowLabels *bool   `json:"show_labels"`
	GridColor  string  `json:"grid_color"`
	MaxDim     int     `json:"max_dim"`
}

// handleMeshOverlay draws the cells background_2d would use for the same
// box size and edge method.
func (s *Server) handleMeshOverlay(cfg *config.Config, args json.RawMessage) (interface{}, error) {
	var a meshOverlayArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	base, err := cfg.Config2D()
	if err != nil {
		return nil, err
	}
	w, h := a.boxArgs.resolve(base.BoxW, base.BoxH)
	if w < 1 || h < 1 {
		return nil, fmt.Errorf("invalid mesh box %dx%d", w, h)
	}
	edge := base.Edge
	if a.Edge != nil {
		if edge, err = background.ParseEdgeMethod(*a.Edge); err != nil {
			return nil, err
		}
	}

	showLabels := true
	if a.ShowLabels != nil {
		showLabels = *a.ShowLabels
	}
	if a.GridColor == "" {
		a.GridColor = "#FF000080"
	}

	img, err := s.cache.Load(a.Path)
	if err != nil {
		return nil, err
	}
	grid := imaging.MeshGrid{
		BoxWidth:  w,
		BoxHeight: h,
		Edge:      edge.String(),
		XEdges:    background.MeshEdges(img.Width, w, edge),
		YEdges:    background.MeshEdges(img.Height, h, edge),
	}
	if grid.XEdges == nil || grid.YEdges == nil {
		return nil, fmt.Errorf("box %dx%d does not fit image %dx%d with edge %s", w, h, img.Width, img.Height, edge)
	}
	return imaging.MeshOverlay(img, grid, showLabels, a.GridColor, previewMaxDim(cfg, a.MaxDim))
}
