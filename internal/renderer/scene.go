package renderer

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/ankek/unmeiori/internal/report"
)

// Diagram geometry in canvas units. Both output formats scale from this canvas.
const (
	canvasSize      = 300.0
	center          = canvasSize / 2
	orbitRadius     = 120.0
	ringRadius      = orbitRadius + 20
	centerRadius    = 30.0
	satelliteRadius = 25.0
)

const (
	colorRing      = "#f5f5f5"
	colorAccent    = "#1976d2"
	colorGuide     = "#e0e0e0"
	colorCenter    = "#dc004e"
	colorText      = "#424242"
	colorMuted     = "#666666"
	colorDiscFill  = "#ffffff"
	placeholderTag = "方位盤"
)

// ErrInvalidDiagram wraps every input validation failure
var ErrInvalidDiagram = errors.New("invalid diagram data")

type circle struct {
	cx, cy, r   float64
	fill        string
	stroke      string
	strokeWidth float64
	class       string
}

type line struct {
	x1, y1, x2, y2 float64
	stroke         string
	width          float64
}

type label struct {
	x, y  float64
	size  float64
	fill  string
	text  string
	ascii string // used when the face cannot draw text
	bold  bool
	class string
}

// scene is the format-independent shape list of one diagram
type scene struct {
	circles     []circle
	lines       []line
	labels      []label
	satellites  int
	placeholder bool
}

// offset returns the satellite position for d; north is up and angles run clockwise
func offset(d report.Direction, radius float64) (float64, float64) {
	rad := d.Degrees() * math.Pi / 180
	return center + radius*math.Sin(rad), center - radius*math.Cos(rad)
}

// buildScene validates data and lays out the diagram
func buildScene(data report.DirectionalDiagramData) (*scene, error) {
	seen := make(map[report.Direction]bool, len(data.Entries))
	type placed struct {
		dir  report.Direction
		star int
	}
	entries := make([]placed, 0, len(data.Entries))
	for i, e := range data.Entries {
		dir, err := report.ParseDirection(e.Direction)
		if err != nil {
			return nil, fmt.Errorf("%w: entry %d: %v", ErrInvalidDiagram, i, err)
		}
		if seen[dir] {
			return nil, fmt.Errorf("%w: duplicate direction %s", ErrInvalidDiagram, dir.Label())
		}
		if _, ok := report.StarName(e.Star); !ok {
			return nil, fmt.Errorf("%w: star %d for %s out of range", ErrInvalidDiagram, e.Star, dir.Label())
		}
		seen[dir] = true
		entries = append(entries, placed{dir: dir, star: e.Star})
	}

	s := &scene{}

	// Background ring
	s.circles = append(s.circles, circle{
		cx: center, cy: center, r: ringRadius,
		fill: colorRing, stroke: colorAccent, strokeWidth: 2, class: "ring",
	})

	// Guide lines through the center
	diag := orbitRadius*math.Sqrt2/2 + 14
	s.lines = append(s.lines,
		line{center, center - ringRadius, center, center + ringRadius, colorGuide, 1},
		line{center - ringRadius, center, center + ringRadius, center, colorGuide, 1},
		line{center - diag, center - diag, center + diag, center + diag, colorGuide, 1},
		line{center + diag, center - diag, center - diag, center + diag, colorGuide, 1},
	)

	// Center disc
	centerLabel := truncate(data.ResolvedCenterLabel(), maxCenterRunes)
	s.circles = append(s.circles, circle{
		cx: center, cy: center, r: centerRadius,
		fill: colorDiscFill, stroke: colorAccent, strokeWidth: 2, class: "center",
	})
	s.labels = append(s.labels, label{
		x: center, y: center, size: 16, fill: colorCenter,
		text: centerLabel, ascii: centerASCII(data), bold: true, class: "center-text",
	})

	// Satellites in compass order so output is stable regardless of input order
	for _, dir := range report.AllDirections {
		for _, e := range entries {
			if e.dir != dir {
				continue
			}
			x, y := offset(dir, orbitRadius)
			num := strconv.Itoa(e.star)
			s.circles = append(s.circles, circle{
				cx: x, cy: y, r: satelliteRadius,
				fill: colorDiscFill, stroke: colorGuide, strokeWidth: 1, class: "satellite",
			})
			s.labels = append(s.labels,
				label{x: x, y: y - 8, size: 14, fill: colorText, text: dir.Label(), ascii: dir.Abbrev(), class: "direction-text"},
				label{x: x, y: y + 8, size: 12, fill: colorAccent, text: num, ascii: num, bold: true, class: "star-text"},
			)
			s.satellites++
		}
	}
	return s, nil
}

func centerASCII(data report.DirectionalDiagramData) string {
	if data.CenterStar >= 1 && data.CenterStar <= 9 {
		return strconv.Itoa(data.CenterStar)
	}
	return "5"
}

// placeholderScene is drawn whenever the real diagram cannot be built
func placeholderScene() *scene {
	return &scene{
		placeholder: true,
		circles: []circle{
			{cx: center, cy: center, r: orbitRadius, fill: colorRing, stroke: colorAccent, strokeWidth: 2, class: "ring"},
			{cx: center, cy: center, r: centerRadius, fill: colorDiscFill, stroke: colorAccent, strokeWidth: 2, class: "center"},
		},
		lines: []line{
			{center, center - orbitRadius, center, center + orbitRadius, colorGuide, 1},
			{center - orbitRadius, center, center + orbitRadius, center, colorGuide, 1},
		},
		labels: []label{
			{x: center, y: center, size: 14, fill: colorMuted, text: placeholderTag, ascii: "N/A", class: "fallback-text"},
		},
	}
}

// layers splits circles into the rings painted under the guide lines and the discs painted over them
func (s *scene) layers() (rings []circle, lines []line, discs []circle) {
	for _, c := range s.circles {
		if c.class == "ring" {
			rings = append(rings, c)
		} else {
			discs = append(discs, c)
		}
	}
	return rings, s.lines, discs
}
