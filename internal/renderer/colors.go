package renderer

import (
	"image/color"
	"strconv"
)

// parseColor converts a #rrggbb string to an opaque color. Malformed input yields black.
func parseColor(hexColor string) color.RGBA {
	if len(hexColor) > 0 && hexColor[0] == '#' {
		hexColor = hexColor[1:]
	}
	if len(hexColor) != 6 {
		return color.RGBA{A: 255}
	}

	r, errR := strconv.ParseUint(hexColor[0:2], 16, 8)
	g, errG := strconv.ParseUint(hexColor[2:4], 16, 8)
	b, errB := strconv.ParseUint(hexColor[4:6], 16, 8)
	if errR != nil || errG != nil || errB != nil {
		return color.RGBA{A: 255}
	}
	return color.RGBA{R: uint8(r), G: uint8(g), B: uint8(b), A: 255}
}
