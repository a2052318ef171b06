package renderer

import (
	"bytes"
	"fmt"
	"html"
)

// SVGRenderer serializes a scene as an SVG document
type SVGRenderer struct {
	buf *bytes.Buffer
}

// NewSVGRenderer creates a new SVG renderer
func NewSVGRenderer() *SVGRenderer {
	return &SVGRenderer{buf: &bytes.Buffer{}}
}

// Render generates SVG from the scene
func (r *SVGRenderer) Render(s *scene) []byte {
	r.buf.Reset()
	r.writeHeader(canvasSize, canvasSize)

	rings, lines, discs := s.layers()
	for _, c := range rings {
		r.writeCircle(c)
	}
	for _, l := range lines {
		r.writeLine(l)
	}
	for _, c := range discs {
		r.writeCircle(c)
	}
	for _, l := range s.labels {
		r.writeLabel(l)
	}

	r.buf.WriteString("</svg>\n")
	return r.buf.Bytes()
}

// writeHeader writes the SVG header and text styles
func (r *SVGRenderer) writeHeader(width, height float64) {
	r.buf.WriteString(fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="%.0f" height="%.0f" viewBox="0 0 %.0f %.0f">
<defs>
  <style>
    text { font-family: 'Noto Sans CJK JP', 'Yu Gothic', Arial, sans-serif; text-anchor: middle; dominant-baseline: middle; }
  </style>
</defs>
<rect width="100%%" height="100%%" fill="white"/>
`, width, height, width, height))
}

func (r *SVGRenderer) writeCircle(c circle) {
	r.buf.WriteString(fmt.Sprintf(`<circle class="%s" cx="%.2f" cy="%.2f" r="%.2f" fill="%s" stroke="%s" stroke-width="%.0f"/>
`, c.class, c.cx, c.cy, c.r, c.fill, c.stroke, c.strokeWidth))
}

func (r *SVGRenderer) writeLine(l line) {
	r.buf.WriteString(fmt.Sprintf(`<line x1="%.2f" y1="%.2f" x2="%.2f" y2="%.2f" stroke="%s" stroke-width="%.0f"/>
`, l.x1, l.y1, l.x2, l.y2, l.stroke, l.width))
}

func (r *SVGRenderer) writeLabel(l label) {
	weight := "normal"
	if l.bold {
		weight = "bold"
	}
	r.buf.WriteString(fmt.Sprintf(`<text class="%s" x="%.2f" y="%.2f" font-size="%.0f" font-weight="%s" fill="%s">%s</text>
`, l.class, l.x, l.y, l.size, weight, l.fill, html.EscapeString(l.text)))
}
