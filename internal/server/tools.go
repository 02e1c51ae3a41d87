package server

// Tool represents an MCP tool definition
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

func pathProperty() map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": "Absolute path to the image file (FITS, PNG, JPEG or GIF)",
	}
}

func maskPathProperty() map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": "Optional path to a mask image of the same size. Non-zero pixels are excluded.",
	}
}

func edgeProperty() map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"enum":        []string{"pad", "crop", "resize"},
		"description": "Handling of partial boxes at the image edge (default pad)",
	}
}

// clipProperties are accepted by every tool that sigma-clips.
func clipProperties() map[string]interface{} {
	return map[string]interface{}{
		"sigma": map[string]interface{}{
			"type":        "number",
			"description": "Clipping threshold in standard deviations (default 3)",
		},
		"sigma_lower": map[string]interface{}{
			"type":        "number",
			"description": "Lower clipping threshold; overrides sigma below the centre",
		},
		"sigma_upper": map[string]interface{}{
			"type":        "number",
			"description": "Upper clipping threshold; overrides sigma above the centre",
		},
		"max_iters": map[string]interface{}{
			"type":        "integer",
			"description": "Maximum clipping iterations (default 5)",
		},
		"center": map[string]interface{}{
			"type":        "string",
			"enum":        []string{"mean", "median"},
			"description": "Statistic the clipping bounds are centred on (default mean)",
		},
	}
}

// sourceMaskProperties control source detection before estimation.
func sourceMaskProperties() map[string]interface{} {
	return map[string]interface{}{
		"nsigma": map[string]interface{}{
			"type":        "number",
			"description": "Detection threshold above the background in units of its std (default 2)",
		},
		"npixels": map[string]interface{}{
			"type":        "integer",
			"description": "Minimum connected pixels in a source (default 5)",
		},
		"dilate_radius": map[string]interface{}{
			"type":        "integer",
			"description": "Radius of the disk each source is grown by (default 5)",
		},
		"smooth_fwhm": map[string]interface{}{
			"type":        "number",
			"description": "FWHM in pixels of a Gaussian applied before thresholding; 0 disables",
		},
		"connectivity": map[string]interface{}{
			"type":        "integer",
			"enum":        []int{4, 8},
			"description": "Pixel connectivity for grouping sources (default 8)",
		},
	}
}

func estimatorProperties() map[string]interface{} {
	return map[string]interface{}{
		"source_mask": map[string]interface{}{
			"type":        "boolean",
			"description": "Detect and mask sources before estimating (default true)",
		},
		"estimator": map[string]interface{}{
			"type":        "string",
			"enum":        []string{"median", "mean", "mode", "sextractor"},
			"description": "Background statistic of the clipped sample (default median)",
		},
		"rms_estimator": map[string]interface{}{
			"type":        "string",
			"enum":        []string{"std", "mad_std"},
			"description": "Noise statistic of the clipped sample (default std)",
		},
	}
}

func merge(groups ...map[string]interface{}) map[string]interface{} {
	out := map[string]interface{}{}
	for _, g := range groups {
		for k, v := range g {
			out[k] = v
		}
	}
	return out
}

// GetToolDefinitions returns all available tools
func GetToolDefinitions() []Tool {
	return []Tool{
		{
			Name:        "image_load",
			Description: "Load an image file and return its dimensions, format, finite pixel range and count of NaN/Inf pixels. The image stays cached for later calls.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty(),
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "background_stats",
			Description: "Sigma-clipped mean, median, std and MAD-std of an image or a rectangular region of it.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": merge(clipProperties(), map[string]interface{}{
					"path":      pathProperty(),
					"mask_path": maskPathProperty(),
					"region": map[string]interface{}{
						"type":        "object",
						"description": "Optional region; x2/y2 are exclusive",
						"properties": map[string]interface{}{
							"x1": map[string]interface{}{"type": "integer"},
							"y1": map[string]interface{}{"type": "integer"},
							"x2": map[string]interface{}{"type": "integer"},
							"y2": map[string]interface{}{"type": "integer"},
						},
					},
				}),
				"required": []string{"path"},
			},
		},
		{
			Name:        "background_source_mask",
			Description: "Detect sources above a sigma-clipped threshold, grow them by a circular dilation, and return the mask summary, the detected segments and an optional preview.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": merge(clipProperties(), sourceMaskProperties(), map[string]interface{}{
					"path":      pathProperty(),
					"mask_path": maskPathProperty(),
					"preview": map[string]interface{}{
						"type":        "boolean",
						"description": "Include a PNG of the mask (white = masked)",
						"default":     false,
					},
					"max_dim": map[string]interface{}{
						"type":        "integer",
						"description": "Longest side of the preview in pixels",
					},
					"output_path": map[string]interface{}{
						"type":        "string",
						"description": "Optional FITS path to save the mask to (1 = masked)",
					},
					"clipped_output_path": map[string]interface{}{
						"type":        "string",
						"description": "Optional FITS path for the pixels a plain sigma clip of the image rejects (1 = rejected)",
					},
				}),
				"required": []string{"path"},
			},
		},
		{
			Name:        "background_scalar",
			Description: "Estimate one background level and noise for the whole image after masking sources and sigma clipping.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": merge(clipProperties(), sourceMaskProperties(), estimatorProperties(), map[string]interface{}{
					"path":      pathProperty(),
					"mask_path": maskPathProperty(),
				}),
				"required": []string{"path"},
			},
		},
		{
			Name:        "background_2d",
			Description: "Estimate a spatially varying background and rms map on a mesh of boxes, interpolated to full resolution. Returns the mesh, summary medians, an optional preview and optionally writes FITS maps.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": merge(clipProperties(), sourceMaskProperties(), estimatorProperties(), map[string]interface{}{
					"path":      pathProperty(),
					"mask_path": maskPathProperty(),
					"box_size": map[string]interface{}{
						"type":        "integer",
						"description": "Square box size in pixels (default 64)",
					},
					"box_width": map[string]interface{}{
						"type":        "integer",
						"description": "Box width; overrides box_size",
					},
					"box_height": map[string]interface{}{
						"type":        "integer",
						"description": "Box height; overrides box_size",
					},
					"filter_size": map[string]interface{}{
						"type":        "integer",
						"description": "Odd size of the median filter over the mesh; 1 disables (default 3)",
					},
					"edge": edgeProperty(),
					"exclude_percentile": map[string]interface{}{
						"type":        "number",
						"description": "Boxes with more than this percent masked are filled from neighbours (default 10)",
					},
					"interpolation": map[string]interface{}{
						"type":        "string",
						"enum":        []string{"bicubic", "bilinear"},
						"description": "Mesh upsampling method (default bicubic)",
					},
					"workers": map[string]interface{}{
						"type":        "integer",
						"description": "Boxes estimated concurrently; 0 or 1 is serial",
					},
					"preview": map[string]interface{}{
						"type":        "string",
						"enum":        []string{"none", "background", "rms", "subtracted"},
						"description": "Which map to render as a PNG preview (default none)",
					},
					"colormap": map[string]interface{}{
						"type":        "string",
						"enum":        []string{"viridis", "gray"},
						"description": "Preview colormap",
					},
					"max_dim": map[string]interface{}{
						"type":        "integer",
						"description": "Longest side of the preview in pixels",
					},
					"output_path": map[string]interface{}{
						"type":        "string",
						"description": "Optional FITS path for the background map",
					},
					"rms_output_path": map[string]interface{}{
						"type":        "string",
						"description": "Optional FITS path for the rms map",
					},
					"subtracted_output_path": map[string]interface{}{
						"type":        "string",
						"description": "Optional FITS path for the background-subtracted image",
					},
				}),
				"required": []string{"path"},
			},
		},
		{
			Name:        "background_mesh_overlay",
			Description: "Return a grayscale preview of the image with the background mesh boxes drawn on it, to check a box size against the sources in the field.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty(),
					"box_size": map[string]interface{}{
						"type":        "integer",
						"description": "Square box size in pixels (default 64)",
					},
					"box_width": map[string]interface{}{
						"type":        "integer",
						"description": "Box width; overrides box_size",
					},
					"box_height": map[string]interface{}{
						"type":        "integer",
						"description": "Box height; overrides box_size",
					},
					"edge": edgeProperty(),
					"show_labels": map[string]interface{}{
						"type":        "boolean",
						"description": "Label each box with its column,row index",
						"default":     true,
					},
					"grid_color": map[string]interface{}{
						"type":        "string",
						"description": "Grid line color as hex (default #FF000080 - semi-transparent red)",
						"default":     "#FF000080",
					},
					"max_dim": map[string]interface{}{
						"type":        "integer",
						"description": "Longest side of the preview in pixels",
					},
				},
				"required": []string{"path"},
			},
		},
	}
}

// handleToolsList returns the list of available tools
func (s *Server) handleToolsList(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"tools": GetToolDefinitions(),
		},
	}
}
