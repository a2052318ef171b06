package renderer

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/font/sfnt"
	"golang.org/x/image/math/fixed"
	"golang.org/x/image/vector"
)

// kappa places cubic control points for a quarter ellipse
const kappa = 0.5522847498

// PNGRenderer rasterizes a scene onto a white canvas
type PNGRenderer struct {
	img    *image.RGBA
	z      *vector.Rasterizer
	sx, sy float64
	font   *sfnt.Font
	faces  map[float64]font.Face
}

// NewPNGRenderer creates a new PNG renderer. A nil font draws labels with basicfont.
func NewPNGRenderer(f *sfnt.Font) *PNGRenderer {
	return &PNGRenderer{font: f, faces: make(map[float64]font.Face)}
}

// Render rasterizes the scene at width x height
func (r *PNGRenderer) Render(s *scene, width, height int) ([]byte, error) {
	r.img = image.NewRGBA(image.Rect(0, 0, width, height))
	r.z = vector.NewRasterizer(width, height)
	r.sx = float64(width) / canvasSize
	r.sy = float64(height) / canvasSize

	// Fill white background
	draw.Draw(r.img, r.img.Bounds(), &image.Uniform{color.White}, image.Point{}, draw.Src)

	rings, lines, discs := s.layers()
	for _, c := range rings {
		r.drawCircle(c)
	}
	for _, l := range lines {
		r.drawLine(l)
	}
	for _, c := range discs {
		r.drawCircle(c)
	}
	for _, l := range s.labels {
		r.drawLabel(l)
	}

	// Encode to PNG
	buf := &bytes.Buffer{}
	if err := png.Encode(buf, r.img); err != nil {
		return nil, fmt.Errorf("failed to encode PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// fill paints the current rasterizer path and resets it
func (r *PNGRenderer) fill(col color.Color) {
	b := r.img.Bounds()
	r.z.Draw(r.img, b, image.NewUniform(col), image.Point{})
	r.z.Reset(b.Dx(), b.Dy())
}

// ellipse appends a closed ellipse path in device space
func (r *PNGRenderer) ellipse(cx, cy, rx, ry float64, clockwise bool) {
	kx, ky := rx*kappa, ry*kappa
	f := func(v float64) float32 { return float32(v) }
	r.z.MoveTo(f(cx+rx), f(cy))
	if clockwise {
		r.z.CubeTo(f(cx+rx), f(cy+ky), f(cx+kx), f(cy+ry), f(cx), f(cy+ry))
		r.z.CubeTo(f(cx-kx), f(cy+ry), f(cx-rx), f(cy+ky), f(cx-rx), f(cy))
		r.z.CubeTo(f(cx-rx), f(cy-ky), f(cx-kx), f(cy-ry), f(cx), f(cy-ry))
		r.z.CubeTo(f(cx+kx), f(cy-ry), f(cx+rx), f(cy-ky), f(cx+rx), f(cy))
	} else {
		r.z.CubeTo(f(cx+rx), f(cy-ky), f(cx+kx), f(cy-ry), f(cx), f(cy-ry))
		r.z.CubeTo(f(cx-kx), f(cy-ry), f(cx-rx), f(cy-ky), f(cx-rx), f(cy))
		r.z.CubeTo(f(cx-rx), f(cy+ky), f(cx-kx), f(cy+ry), f(cx), f(cy+ry))
		r.z.CubeTo(f(cx+kx), f(cy+ry), f(cx+rx), f(cy+ky), f(cx+rx), f(cy))
	}
	r.z.ClosePath()
}

// drawCircle fills the disc, then paints the stroke as an annulus
func (r *PNGRenderer) drawCircle(c circle) {
	cx, cy := c.cx*r.sx, c.cy*r.sy
	rx, ry := c.r*r.sx, c.r*r.sy

	r.ellipse(cx, cy, rx, ry, true)
	r.fill(parseColor(c.fill))

	if c.strokeWidth <= 0 {
		return
	}
	half := math.Max(c.strokeWidth*math.Min(r.sx, r.sy), 1) / 2
	// Opposite windings leave the inside unpainted
	r.ellipse(cx, cy, rx+half, ry+half, true)
	r.ellipse(cx, cy, math.Max(rx-half, 0), math.Max(ry-half, 0), false)
	r.fill(parseColor(c.stroke))
}

// drawLine paints a line segment as a thin quad
func (r *PNGRenderer) drawLine(l line) {
	x1, y1 := l.x1*r.sx, l.y1*r.sy
	x2, y2 := l.x2*r.sx, l.y2*r.sy
	dx, dy := x2-x1, y2-y1
	length := math.Hypot(dx, dy)
	if length == 0 {
		return
	}
	half := math.Max(l.width*math.Min(r.sx, r.sy), 1) / 2
	nx, ny := -dy/length*half, dx/length*half

	r.z.MoveTo(float32(x1+nx), float32(y1+ny))
	r.z.LineTo(float32(x2+nx), float32(y2+ny))
	r.z.LineTo(float32(x2-nx), float32(y2-ny))
	r.z.LineTo(float32(x1-nx), float32(y1-ny))
	r.z.ClosePath()
	r.fill(parseColor(l.stroke))
}

// face returns a face for the label size and whether it can draw text
func (r *PNGRenderer) face(size float64, text string) (font.Face, bool) {
	if r.font == nil || !covers(r.font, text) {
		return basicfont.Face7x13, false
	}
	px := size * math.Min(r.sx, r.sy)
	if f, ok := r.faces[px]; ok {
		return f, true
	}
	f, err := opentype.NewFace(r.font, &opentype.FaceOptions{
		Size:    px,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return basicfont.Face7x13, false
	}
	r.faces[px] = f
	return f, true
}

// covers reports whether every rune of s has a glyph in f
func covers(f *sfnt.Font, s string) bool {
	var buf sfnt.Buffer
	for _, c := range s {
		idx, err := f.GlyphIndex(&buf, c)
		if err != nil || idx == 0 {
			return false
		}
	}
	return true
}

// drawLabel draws text centered on its anchor
func (r *PNGRenderer) drawLabel(l label) {
	face, ok := r.face(l.size, l.text)
	text := l.text
	if !ok {
		text = l.ascii
	}
	if text == "" {
		return
	}

	d := &font.Drawer{
		Dst:  r.img,
		Src:  image.NewUniform(parseColor(l.fill)),
		Face: face,
	}
	m := face.Metrics()
	width := d.MeasureString(text)
	x := fixed.Int26_6(l.x*r.sx*64) - width/2
	y := fixed.Int26_6(l.y*r.sy*64) + (m.Ascent-m.Descent)/2

	d.Dot = fixed.Point26_6{X: x, Y: y}
	d.DrawString(text)
	if l.bold && !ok {
		// basicfont has no bold cut; overdraw one pixel right
		d.Dot = fixed.Point26_6{X: x + fixed.I(1), Y: y}
		d.DrawString(text)
	}
}
