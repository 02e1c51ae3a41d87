package imaging

import (
	"fmt"
	"image"
	"image/color"
	"strconv"
)

// MeshOverlayResult contains an image preview with the background mesh drawn on it.
type MeshOverlayResult struct {
	PreviewResult
	BoxWidth  int    `json:"box_width"`
	BoxHeight int    `json:"box_height"`
	Edge      string `json:"edge,omitempty"`
	Columns   int    `json:"columns"`
	Rows      int    `json:"rows"`
}

// MeshGrid describes how an image is split into mesh cells. XEdges and
// YEdges hold the start of every cell followed by the end of the last one,
// so a grid of n columns has n+1 x edges. Pixels past the last edge belong
// to no cell.
type MeshGrid struct {
	BoxWidth  int
	BoxHeight int
	// Edge names the split that produced the edges. It is only reported.
	Edge   string
	XEdges []int
	YEdges []int
}

func checkEdges(edges []int, n int, axis string) error {
	if len(edges) < 2 {
		return fmt.Errorf("mesh has no cells along %s", axis)
	}
	if edges[0] < 0 || edges[len(edges)-1] > n {
		return fmt.Errorf("mesh %s edges [%d, %d] outside image of %d pixels", axis, edges[0], edges[len(edges)-1], n)
	}
	for i := 1; i < len(edges); i++ {
		if edges[i] <= edges[i-1] {
			return fmt.Errorf("mesh %s edges not increasing at %d", axis, i)
		}
	}
	return nil
}

// MeshOverlay draws the background mesh cell boundaries over a grayscale
// preview of img. With showLabels each cell is tagged with its "column,row"
// index.
func MeshOverlay(img *Image, grid MeshGrid, showLabels bool, gridColorHex string, maxDim int) (*MeshOverlayResult, error) {
	if grid.BoxWidth <= 0 || grid.BoxHeight <= 0 {
		return nil, fmt.Errorf("invalid mesh box %dx%d", grid.BoxWidth, grid.BoxHeight)
	}
	if err := checkEdges(grid.XEdges, img.Width, "x"); err != nil {
		return nil, err
	}
	if err := checkEdges(grid.YEdges, img.Height, "y"); err != nil {
		return nil, err
	}

	gridColor, err := parseHexColor(gridColorHex)
	if err != nil {
		gridColor = color.RGBA{255, 0, 0, 255} // Default: red
	}

	lo, hi := PercentileStretch(img, 0.5, 99.5)
	nrgba := renderStretched(img, lo, hi, Gray)
	result := image.NewRGBA(nrgba.Bounds())
	for y := 0; y < img.Height; y++ {
		for x := 0; x < img.Width; x++ {
			result.Set(x, y, nrgba.NRGBAAt(x, y))
		}
	}

	// Vertical lines
	for _, x := range grid.XEdges {
		if x <= 0 || x >= img.Width {
			continue
		}
		for y := 0; y < img.Height; y++ {
			result.Set(x, y, gridColor)
		}
	}

	// Horizontal lines
	for _, y := range grid.YEdges {
		if y <= 0 || y >= img.Height {
			continue
		}
		for x := 0; x < img.Width; x++ {
			result.Set(x, y, gridColor)
		}
	}

	cols := len(grid.XEdges) - 1
	rows := len(grid.YEdges) - 1

	if showLabels {
		labelColor := color.RGBA{255, 255, 255, 255}
		bgColor := color.RGBA{0, 0, 0, 180}
		for r := 0; r < rows; r++ {
			for c := 0; c < cols; c++ {
				drawLabel(result, grid.XEdges[c]+2, grid.YEdges[r]+2, fmt.Sprintf("%d,%d", c, r), labelColor, bgColor)
			}
		}
	}

	preview, err := encodePreview(result, maxDim, lo, hi)
	if err != nil {
		return nil, err
	}

	return &MeshOverlayResult{
		PreviewResult: *preview,
		BoxWidth:      grid.BoxWidth,
		BoxHeight:     grid.BoxHeight,
		Edge:          grid.Edge,
		Columns:       cols,
		Rows:          rows,
	}, nil
}

// parseHexColor parses a hex color string like "#FF0000" or "#FF000080"
func parseHexColor(hex string) (color.RGBA, error) {
	if len(hex) == 0 {
		return color.RGBA{}, fmt.Errorf("empty color string")
	}
	if hex[0] == '#' {
		hex = hex[1:]
	}

	var r, g, b, a uint8 = 0, 0, 0, 255

	switch len(hex) {
	case 6:
		val, err := strconv.ParseUint(hex, 16, 32)
		if err != nil {
			return color.RGBA{}, err
		}
		r = uint8(val >> 16)
		g = uint8(val >> 8)
		b = uint8(val)
	case 8:
		val, err := strconv.ParseUint(hex, 16, 32)
		if err != nil {
			return color.RGBA{}, err
		}
		r = uint8(val >> 24)
		g = uint8(val >> 16)
		b = uint8(val >> 8)
		a = uint8(val)
	default:
		return color.RGBA{}, fmt.Errorf("invalid hex color length")
	}

	return color.RGBA{R: r, G: g, B: b, A: a}, nil
}

// drawLabel draws a cell index label using a 3x5 pixel font.
func drawLabel(img *image.RGBA, x, y int, text string, fg, bg color.RGBA) {
	glyphs := map[rune][]string{
		'0': {"111", "101", "101", "101", "111"},
		'1': {"010", "110", "010", "010", "111"},
		'2': {"111", "001", "111", "100", "111"},
		'3': {"111", "001", "111", "001", "111"},
		'4': {"101", "101", "111", "001", "001"},
		'5': {"111", "100", "111", "001", "111"},
		'6': {"111", "100", "111", "101", "111"},
		'7': {"111", "001", "001", "001", "001"},
		'8': {"111", "101", "111", "101", "111"},
		'9': {"111", "101", "111", "001", "111"},
		',': {"000", "000", "000", "010", "010"},
	}

	bounds := img.Bounds()
	inside := func(px, py int) bool {
		return px >= bounds.Min.X && px < bounds.Max.X && py >= bounds.Min.Y && py < bounds.Max.Y
	}

	const charWidth, labelHeight = 4, 7
	labelWidth := len(text) * charWidth
	for dy := -1; dy < labelHeight; dy++ {
		for dx := -1; dx < labelWidth; dx++ {
			if inside(x+dx, y+dy) {
				img.Set(x+dx, y+dy, bg)
			}
		}
	}

	cx := x
	for _, ch := range text {
		for row, line := range glyphs[ch] {
			for col, pixel := range line {
				if pixel == '1' && inside(cx+col, y+row) {
					img.Set(cx+col, y+row, fg)
				}
			}
		}
		cx += charWidth
	}
}
