package server

import (
	"encoding/json"
	"testing"
)

func TestGetToolDefinitions(t *testing.T) {
	tools := GetToolDefinitions()

	expectedTools := []string{
		"image_load",
		"background_stats",
		"background_source_mask",
		"background_scalar",
		"background_2d",
		"background_mesh_overlay",
	}

	if len(tools) != len(expectedTools) {
		t.Errorf("got %d tools, want %d", len(tools), len(expectedTools))
	}

	toolMap := make(map[string]Tool)
	for _, tool := range tools {
		toolMap[tool.Name] = tool
	}
	for _, name := range expectedTools {
		if _, ok := toolMap[name]; !ok {
			t.Errorf("Expected tool %s not found", name)
		}
	}
}

func TestToolDefinitions_Structure(t *testing.T) {
	for _, tool := range GetToolDefinitions() {
		t.Run(tool.Name, func(t *testing.T) {
			if tool.Description == "" {
				t.Error("Tool description is empty")
			}
			if tool.InputSchema["type"] != "object" {
				t.Errorf("InputSchema type: got %v, want 'object'", tool.InputSchema["type"])
			}

			props, ok := tool.InputSchema["properties"].(map[string]interface{})
			if !ok {
				t.Fatal("InputSchema properties is not a map")
			}
			required, ok := tool.InputSchema["required"].([]string)
			if !ok {
				t.Fatal("InputSchema required is not a []string")
			}
			for _, name := range required {
				if _, ok := props[name]; !ok {
					t.Errorf("required property %q not defined", name)
				}
			}
			if _, ok := props["path"]; !ok {
				t.Error("every tool takes a path")
			}
		})
	}
}

func TestToolDefinitions_SharedProperties(t *testing.T) {
	tools := make(map[string]Tool)
	for _, tool := range GetToolDefinitions() {
		tools[tool.Name] = tool
	}

	tests := []struct {
		tool  string
		props []string
	}{
		{"background_stats", []string{"sigma", "max_iters", "center", "mask_path", "region"}},
		{"background_source_mask", []string{"sigma", "nsigma", "npixels", "dilate_radius", "smooth_fwhm", "connectivity", "output_path", "clipped_output_path"}},
		{"background_scalar", []string{"sigma", "nsigma", "source_mask", "estimator", "rms_estimator"}},
		{"background_2d", []string{"box_size", "filter_size", "edge", "exclude_percentile", "interpolation", "workers", "preview", "output_path"}},
		{"background_mesh_overlay", []string{"box_size", "edge", "show_labels", "grid_color"}},
	}
	for _, tt := range tests {
		props := tools[tt.tool].InputSchema["properties"].(map[string]interface{})
		for _, p := range tt.props {
			if _, ok := props[p]; !ok {
				t.Errorf("%s: missing property %q", tt.tool, p)
			}
		}
	}
}

func TestToolsList_Serializable(t *testing.T) {
	s := New(nil)
	resp := s.handleToolsList(&MCPRequest{JSONRPC: "2.0", ID: 1, Method: "tools/list"})

	b, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("marshal tools/list: %v", err)
	}

	var decoded struct {
		Result struct {
			Tools []Tool `json:"tools"`
		} `json:"result"`
	}
	if err := json.Unmarshal(b, &decoded); err != nil {
		t.Fatalf("unmarshal tools/list: %v", err)
	}
	if len(decoded.Result.Tools) != len(GetToolDefinitions()) {
		t.Errorf("got %d tools after round trip", len(decoded.Result.Tools))
	}
}
