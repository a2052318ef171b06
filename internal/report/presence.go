package report

import "strings"

// Sources are the optional inputs both document builders inspect
type Sources struct {
	Calendar         *CalendarResult
	Names            bool
	Directions       Directions
	Diagram          bool
	Details          *BirthDetails
	DirectionDetails []DirectionDetail
	Comment          string
	Template         *TemplateSettings
}

// Sections says which optional sections a document contains
type Sections struct {
	Logo             bool
	Calendar         bool
	NameAnalysis     bool
	Directions       bool
	Diagram          bool
	Details          bool
	DirectionDetails bool
	CustomMessage    bool
	Comment          bool
	Signature        bool
}

// Present decides section presence. It is the only place either builder makes that decision.
func Present(s Sources) Sections {
	out := Sections{
		Calendar:         !s.Calendar.Empty(),
		NameAnalysis:     s.Names,
		Directions:       len(s.Directions) > 0,
		Diagram:          s.Diagram,
		Details:          !s.Details.Empty(),
		DirectionDetails: len(s.DirectionDetails) > 0,
		Comment:          strings.TrimSpace(s.Comment) != "",
	}
	if t := s.Template; t != nil {
		out.Logo = t.IncludeLogo && strings.TrimSpace(t.LogoPath) != ""
		out.CustomMessage = strings.TrimSpace(t.CustomMessage) != ""
		out.Signature = t.IncludeSignature
	}
	return out
}

// Sources returns the presence inputs of a report result under the given branding
func (r ReportResult) Sources(t TemplateSettings) Sources {
	return Sources{
		Calendar:   r.Calendar,
		Names:      r.Names != nil,
		Directions: r.Directions,
		Diagram:    r.Diagram != nil,
		Comment:    r.Comment,
		Template:   &t,
	}
}

// Sources returns the presence inputs of a flow document request
func (c CompositeReportData) Sources() Sources {
	return Sources{
		Calendar:         c.Calendar,
		Names:            c.Names != nil,
		Diagram:          len(c.DiagramPNG) > 0 || c.Diagram != nil,
		Details:          c.Details,
		DirectionDetails: c.DirectionDetails,
		Comment:          c.Comment,
	}
}
