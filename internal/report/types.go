// Package report defines the data model shared by the document builders: client and divination
// results, operator branding, diagram input, the content-block model and artifact naming.
package report

import (
	"strings"
	"time"
	"unicode/utf8"
)

// MaxCommentLength is the upper bound for an operator comment, counted in characters
const MaxCommentLength = 200

// ClientInfo holds the client's biographical data
type ClientInfo struct {
	Surname    string `json:"surname" validate:"required,max=50"`
	GivenName  string `json:"given_name" validate:"required,max=50"`
	BirthDate  string `json:"birth_date" validate:"required,datetime=2006-01-02"`
	BirthTime  string `json:"birth_time,omitempty"`
	BirthPlace string `json:"birth_place,omitempty"`
	Gender     string `json:"gender,omitempty" validate:"omitempty,oneof=male female other"`
	Email      string `json:"email,omitempty" validate:"omitempty,email"`
}

// FullName returns surname and given name joined without a separator
func (c ClientInfo) FullName() string {
	return c.Surname + c.GivenName
}

// Star is one star designation of the calendar computation
type Star struct {
	Name        string `json:"name"`
	Element     string `json:"element,omitempty"`
	Description string `json:"description,omitempty"`
}

// CalendarResult is the year, month and day star designations. Each may be absent.
type CalendarResult struct {
	Year  *Star `json:"year,omitempty"`
	Month *Star `json:"month,omitempty"`
	Day   *Star `json:"day,omitempty"`
}

// Empty reports whether no star is set
func (c *CalendarResult) Empty() bool {
	return c == nil || (c.Year == nil && c.Month == nil && c.Day == nil)
}

// DirectionFavor lists favorable and unfavorable directions for one year
type DirectionFavor struct {
	Favorable   []string `json:"favorable,omitempty"`
	Unfavorable []string `json:"unfavorable,omitempty"`
}

// Directions maps a year key to its direction lists
type Directions map[string]DirectionFavor

// CharacterBreakdown is the per-character part of a name analysis
type CharacterBreakdown struct {
	Character string `json:"character"`
	Strokes   int    `json:"strokes"`
	Element   string `json:"element,omitempty"`
	Polarity  string `json:"polarity,omitempty"`
}

// StrokeAggregates are the five stroke-count sums of a name
type StrokeAggregates struct {
	Heaven      int `json:"heaven"`
	Personality int `json:"personality"`
	Earth       int `json:"earth"`
	Total       int `json:"total"`
	External    int `json:"external"`
}

// CategoryScore is one scored category of a name analysis
type CategoryScore struct {
	Category string `json:"category"`
	Score    int    `json:"score"`
	Message  string `json:"message,omitempty"`
}

// NameAnalysisResult is the output of the name-stroke computation
type NameAnalysisResult struct {
	Characters   []CharacterBreakdown `json:"characters,omitempty"`
	Aggregates   StrokeAggregates     `json:"aggregates"`
	Categories   []CategoryScore      `json:"categories,omitempty"`
	OverallScore int                  `json:"overall_score,omitempty"`
	Grade        string               `json:"grade,omitempty"`
}

// ReportResult aggregates everything the paginated document renders.
// Calendar, Names and Directions are optional.
type ReportResult struct {
	Client     ClientInfo              `json:"client"`
	Calendar   *CalendarResult         `json:"calendar,omitempty"`
	Names      *NameAnalysisResult     `json:"names,omitempty"`
	Directions Directions              `json:"directions,omitempty"`
	Diagram    *DirectionalDiagramData `json:"diagram,omitempty"`
	Comment    string                  `json:"comment,omitempty" validate:"max=200"`
}

// ClampComment trims a comment to MaxCommentLength characters
func ClampComment(s string) string {
	if utf8.RuneCountInString(s) <= MaxCommentLength {
		return s
	}
	return string([]rune(s)[:MaxCommentLength])
}

// Record is a persisted report
type Record struct {
	ID           string       `json:"id"`
	OperatorID   string       `json:"operator_id"`
	Result       ReportResult `json:"result"`
	PDFGenerated bool         `json:"pdf_generated"`
	PDFFilename  string       `json:"pdf_filename,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// Theme is one of the fixed color themes
type Theme string

const (
	ThemeBlue  Theme = "blue"
	ThemeGreen Theme = "green"
	ThemeRed   Theme = "red"
	ThemeBlack Theme = "black"
)

// RGB is an 8-bit color
type RGB struct {
	R, G, B uint8
}

// Hex returns the color as six lowercase hex digits
func (c RGB) Hex() string {
	const digits = "0123456789abcdef"
	b := []byte{
		digits[c.R>>4], digits[c.R&0x0f],
		digits[c.G>>4], digits[c.G&0x0f],
		digits[c.B>>4], digits[c.B&0x0f],
	}
	return string(b)
}

// Palette is the primary/secondary color pair of a theme
type Palette struct {
	Theme     Theme
	Primary   RGB
	Secondary RGB
}

var gray = RGB{128, 128, 128}

var palettes = map[Theme]Palette{
	ThemeBlue:  {Theme: ThemeBlue, Primary: RGB{0, 0, 255}, Secondary: gray},
	ThemeGreen: {Theme: ThemeGreen, Primary: RGB{0, 128, 0}, Secondary: gray},
	ThemeRed:   {Theme: ThemeRed, Primary: RGB{255, 0, 0}, Secondary: gray},
	ThemeBlack: {Theme: ThemeBlack, Primary: RGB{0, 0, 0}, Secondary: gray},
}

// PaletteFor resolves a theme name; unrecognized names fall back to blue
func PaletteFor(theme string) Palette {
	if p, ok := palettes[Theme(strings.ToLower(strings.TrimSpace(theme)))]; ok {
		return p
	}
	return palettes[ThemeBlue]
}

// TemplateSettings is the per-operator branding
type TemplateSettings struct {
	OperatorID       string `json:"operator_id"`
	BusinessName     string `json:"business_name" validate:"max=100"`
	OperatorName     string `json:"operator_name" validate:"max=100"`
	Theme            string `json:"theme" validate:"omitempty,oneof=blue green red black"`
	LogoPath         string `json:"logo_path,omitempty"`
	IncludeLogo      bool   `json:"include_logo"`
	IncludeSignature bool   `json:"include_signature"`
	CustomMessage    string `json:"custom_message,omitempty" validate:"max=1000"`
}

// DefaultTemplate returns the settings created on first access for an operator
func DefaultTemplate(operatorID string) TemplateSettings {
	return TemplateSettings{
		OperatorID:       operatorID,
		BusinessName:     "開運鑑定所",
		OperatorName:     "鑑定士",
		Theme:            string(ThemeBlue),
		IncludeLogo:      true,
		IncludeSignature: true,
	}
}

// ContentType tags a rendered artifact
type ContentType string

const (
	ContentPDF          ContentType = "pdf"
	ContentFlowDocument ContentType = "flow-document"
)

// MIME returns the media type for the content type
func (c ContentType) MIME() string {
	switch c {
	case ContentPDF:
		return "application/pdf"
	case ContentFlowDocument:
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	default:
		return "application/octet-stream"
	}
}

// RenderedAsset is a finished document. The caller owns Bytes after return.
type RenderedAsset struct {
	Bytes        []byte
	ContentType  ContentType
	Filename     string
	Degradations []Degradation
}

// RenderedImage is a rasterized diagram. PNG is always a decodable image.
type RenderedImage struct {
	PNG          []byte
	Width        int
	Height       int
	Placeholder  bool
	Degradations []Degradation
}
