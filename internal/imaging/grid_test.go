package imaging

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"testing"
)

func decodePreview(t *testing.T, p *PreviewResult) image.Image {
	t.Helper()
	data, err := base64.StdEncoding.DecodeString(p.ImageBase64)
	if err != nil {
		t.Fatalf("failed to decode base64: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("failed to decode PNG: %v", err)
	}
	return img
}

func rgb8(c color.Color) (uint8, uint8, uint8) {
	r, g, b, _ := c.RGBA()
	return uint8(r >> 8), uint8(g >> 8), uint8(b >> 8)
}

// uniformGrid splits width x height into boxW x boxH cells from the origin,
// keeping a partial last row and column.
func uniformGrid(width, height, boxW, boxH int) MeshGrid {
	edges := func(n, box int) []int {
		e := []int{0}
		for v := box; v < n; v += box {
			e = append(e, v)
		}
		return append(e, n)
	}
	return MeshGrid{BoxWidth: boxW, BoxHeight: boxH, XEdges: edges(width, boxW), YEdges: edges(height, boxH)}
}

func TestMeshOverlay(t *testing.T) {
	img := constantImage(t, 100, 80, 10)

	result, err := MeshOverlay(img, uniformGrid(100, 80, 25, 30), false, "#FF0000", 0)
	if err != nil {
		t.Fatalf("MeshOverlay failed: %v", err)
	}

	if result.Width != 100 || result.Height != 80 {
		t.Errorf("dimensions: got %dx%d, want 100x80", result.Width, result.Height)
	}
	if result.Columns != 4 || result.Rows != 3 {
		t.Errorf("grid: got %dx%d, want 4x3", result.Columns, result.Rows)
	}
	if result.BoxWidth != 25 || result.BoxHeight != 30 {
		t.Errorf("box: got %dx%d, want 25x30", result.BoxWidth, result.BoxHeight)
	}
	if result.MimeType != "image/png" {
		t.Errorf("MimeType: got %s, want image/png", result.MimeType)
	}
}

func TestMeshOverlay_GridLines(t *testing.T) {
	img := constantImage(t, 100, 100, 0)

	result, err := MeshOverlay(img, uniformGrid(100, 100, 25, 25), false, "#FF0000FF", 0)
	if err != nil {
		t.Fatalf("MeshOverlay failed: %v", err)
	}
	out := decodePreview(t, &result.PreviewResult)

	if r, g, b := rgb8(out.At(25, 50)); r != 255 || g != 0 || b != 0 {
		t.Errorf("grid line color at (25,50): got (%d,%d,%d), want (255,0,0)", r, g, b)
	}
	if r, g, b := rgb8(out.At(50, 75)); r != 255 || g != 0 || b != 0 {
		t.Errorf("grid line color at (50,75): got (%d,%d,%d), want (255,0,0)", r, g, b)
	}
	// A constant image stretches to the bottom of the gray ramp.
	if r, g, b := rgb8(out.At(15, 15)); r != 0 || g != 0 || b != 0 {
		t.Errorf("non-grid position at (15,15): got (%d,%d,%d), want (0,0,0)", r, g, b)
	}
}

func TestMeshOverlay_Labels(t *testing.T) {
	img := constantImage(t, 100, 100, 0)

	result, err := MeshOverlay(img, uniformGrid(100, 100, 50, 50), true, "#FF0000", 0)
	if err != nil {
		t.Fatalf("MeshOverlay failed: %v", err)
	}
	out := decodePreview(t, &result.PreviewResult)

	// The top stroke of the "0" glyph for cell 0,0 starts at (2,2).
	if r, g, b := rgb8(out.At(2, 2)); r != 255 || g != 255 || b != 255 {
		t.Errorf("label pixel at (2,2): got (%d,%d,%d), want white", r, g, b)
	}
}

func TestMeshOverlay_PartialCellsAndShrink(t *testing.T) {
	img := constantImage(t, 210, 105, 1)

	result, err := MeshOverlay(img, uniformGrid(210, 105, 50, 50), false, "#00FF00", 70)
	if err != nil {
		t.Fatalf("MeshOverlay failed: %v", err)
	}
	if result.Columns != 5 || result.Rows != 3 {
		t.Errorf("grid: got %dx%d, want 5x3", result.Columns, result.Rows)
	}
	if result.Width != 70 || result.Height != 35 {
		t.Errorf("preview: got %dx%d, want 70x35", result.Width, result.Height)
	}
}

func TestMeshOverlay_InvalidGrid(t *testing.T) {
	img := constantImage(t, 10, 10, 0)
	good := []int{0, 5, 10}
	tests := []struct {
		name string
		grid MeshGrid
	}{
		{"zero box width", MeshGrid{BoxWidth: 0, BoxHeight: 5, XEdges: good, YEdges: good}},
		{"negative box", MeshGrid{BoxWidth: -1, BoxHeight: -1, XEdges: good, YEdges: good}},
		{"no cells", MeshGrid{BoxWidth: 5, BoxHeight: 5, XEdges: nil, YEdges: good}},
		{"past the image", MeshGrid{BoxWidth: 5, BoxHeight: 5, XEdges: []int{0, 5, 11}, YEdges: good}},
		{"not increasing", MeshGrid{BoxWidth: 5, BoxHeight: 5, XEdges: good, YEdges: []int{0, 5, 5}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := MeshOverlay(img, tt.grid, false, "#FF0000", 0); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestMeshOverlay_CropAndResizeEdges(t *testing.T) {
	img := constantImage(t, 100, 40, 0)

	// Cropped: two 40-pixel columns, the last 20 pixels belong to no cell.
	crop := MeshGrid{BoxWidth: 40, BoxHeight: 40, Edge: "crop", XEdges: []int{0, 40, 80}, YEdges: []int{0, 40}}
	result, err := MeshOverlay(img, crop, false, "#FF0000FF", 0)
	if err != nil {
		t.Fatalf("MeshOverlay failed: %v", err)
	}
	if result.Columns != 2 || result.Rows != 1 || result.Edge != "crop" {
		t.Errorf("crop grid: got %dx%d edge %q, want 2x1 crop", result.Columns, result.Rows, result.Edge)
	}
	out := decodePreview(t, &result.PreviewResult)
	if r, _, _ := rgb8(out.At(80, 20)); r != 255 {
		t.Errorf("crop boundary at x=80: got red %d, want 255", r)
	}

	// Resized: the last column stretches from 40 to the edge.
	resize := MeshGrid{BoxWidth: 40, BoxHeight: 40, Edge: "resize", XEdges: []int{0, 40, 100}, YEdges: []int{0, 40}}
	result, err = MeshOverlay(img, resize, false, "#FF0000FF", 0)
	if err != nil {
		t.Fatalf("MeshOverlay failed: %v", err)
	}
	if result.Columns != 2 {
		t.Errorf("resize columns: got %d, want 2", result.Columns)
	}
	out = decodePreview(t, &result.PreviewResult)
	if r, g, b := rgb8(out.At(80, 20)); r != 0 || g != 0 || b != 0 {
		t.Errorf("no line expected at x=80 when resizing: got (%d,%d,%d)", r, g, b)
	}
}

func TestParseHexColor(t *testing.T) {
	tests := []struct {
		input   string
		want    color.RGBA
		wantErr bool
	}{
		{"#FF0000", color.RGBA{255, 0, 0, 255}, false},
		{"00FF00", color.RGBA{0, 255, 0, 255}, false},
		{"#FF000080", color.RGBA{255, 0, 0, 128}, false},
		{"", color.RGBA{}, true},
		{"#FFF", color.RGBA{}, true},
		{"#GGGGGG", color.RGBA{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := parseHexColor(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("parseHexColor(%q): expected error", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseHexColor(%q): %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("parseHexColor(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}
