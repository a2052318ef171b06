package report

import (
	"fmt"
	"strings"
)

// Direction is one of the eight compass points
type Direction int

const (
	North Direction = iota
	NorthEast
	East
	SouthEast
	South
	SouthWest
	West
	NorthWest
)

// AllDirections lists the compass points clockwise from north
var AllDirections = []Direction{North, NorthEast, East, SouthEast, South, SouthWest, West, NorthWest}

var directionLabels = [...]struct{ ja, en string }{
	North:     {"北", "N"},
	NorthEast: {"北東", "NE"},
	East:      {"東", "E"},
	SouthEast: {"南東", "SE"},
	South:     {"南", "S"},
	SouthWest: {"南西", "SW"},
	West:      {"西", "W"},
	NorthWest: {"北西", "NW"},
}

// Label returns the Japanese direction name
func (d Direction) Label() string {
	if d < North || d > NorthWest {
		return ""
	}
	return directionLabels[d].ja
}

// Abbrev returns the English compass abbreviation
func (d Direction) Abbrev() string {
	if d < North || d > NorthWest {
		return ""
	}
	return directionLabels[d].en
}

// Degrees returns the clockwise angle from north
func (d Direction) Degrees() float64 {
	return float64(d) * 45
}

// ParseDirection accepts Japanese names or English abbreviations
func ParseDirection(s string) (Direction, error) {
	s = strings.TrimSpace(s)
	for i, l := range directionLabels {
		if s == l.ja || strings.EqualFold(s, l.en) {
			return Direction(i), nil
		}
	}
	return 0, fmt.Errorf("unknown direction %q", s)
}

// starNames are the nine star designations indexed by number
var starNames = [...]string{
	1: "一白水星",
	2: "二黒土星",
	3: "三碧木星",
	4: "四緑木星",
	5: "五黄土星",
	6: "六白金星",
	7: "七赤金星",
	8: "八白土星",
	9: "九紫火星",
}

// DefaultCenterLabel is used when a diagram carries no resolvable center star
const DefaultCenterLabel = "五黄土星"

// StarName returns the designation for a star number in 1..9
func StarName(n int) (string, bool) {
	if n < 1 || n > 9 {
		return "", false
	}
	return starNames[n], true
}

// DiagramEntry is one satellite of the directional diagram
type DiagramEntry struct {
	Direction string `json:"direction"`
	Star      int    `json:"star"`
}

// DirectionalDiagramData is the input of the diagram renderer
type DirectionalDiagramData struct {
	CenterLabel string         `json:"center_label,omitempty"`
	CenterStar  int            `json:"center_star,omitempty"`
	Entries     []DiagramEntry `json:"entries,omitempty"`
}

// ResolvedCenterLabel returns the explicit label, else the center star name, else the default
func (d DirectionalDiagramData) ResolvedCenterLabel() string {
	if l := strings.TrimSpace(d.CenterLabel); l != "" {
		return l
	}
	if name, ok := StarName(d.CenterStar); ok {
		return name
	}
	return DefaultCenterLabel
}

// FormData is the client part of a flow document request
type FormData struct {
	Name      string `json:"name"`
	Gender    string `json:"gender,omitempty"`
	BirthDate string `json:"birth_date,omitempty"`
}

// GenderLabel renders the gender for display
func (f FormData) GenderLabel() string {
	switch strings.ToLower(f.Gender) {
	case "male":
		return "男性"
	case "female":
		return "女性"
	case "":
		return "不明"
	default:
		return f.Gender
	}
}

// BirthDetails are the star names shown as detail rows
type BirthDetails struct {
	Year  string `json:"year,omitempty"`
	Month string `json:"month,omitempty"`
	Day   string `json:"day,omitempty"`
}

// Empty reports whether no component is set
func (b *BirthDetails) Empty() bool {
	return b == nil || (b.Year == "" && b.Month == "" && b.Day == "")
}

// DirectionDetail is one row of the directional-detail table
type DirectionDetail struct {
	Direction       string `json:"direction"`
	YearStar        string `json:"year_star,omitempty"`
	MonthStar       string `json:"month_star,omitempty"`
	DayStar         string `json:"day_star,omitempty"`
	FavorableType   string `json:"favorable_type,omitempty"`
	UnfavorableType string `json:"unfavorable_type,omitempty"`
}

// Verdict classifies a direction detail row
type Verdict int

const (
	VerdictNone Verdict = iota
	VerdictFavorable
	VerdictUnfavorable
)

// Verdict returns the classification and its display text. Unfavorable wins when both are set.
func (d DirectionDetail) Verdict() (Verdict, string) {
	switch {
	case d.UnfavorableType != "":
		return VerdictUnfavorable, d.UnfavorableType
	case d.FavorableType != "":
		return VerdictFavorable, d.FavorableType
	default:
		return VerdictNone, "-"
	}
}

// CompositeReportData is the input of the flow document builder
type CompositeReportData struct {
	Form             FormData                `json:"form"`
	Calendar         *CalendarResult         `json:"calendar,omitempty"`
	Names            *StrokeAggregates       `json:"names,omitempty"`
	DiagramPNG       []byte                  `json:"diagram_png,omitempty"`
	Diagram          *DirectionalDiagramData `json:"diagram,omitempty"`
	Details          *BirthDetails           `json:"details,omitempty"`
	DirectionDetails []DirectionDetail       `json:"direction_details,omitempty"`
	Comment          string                  `json:"comment,omitempty" validate:"max=200"`
	TargetDate       string                  `json:"target_date,omitempty"`
}
