package report

// Reason identifies why a document was produced in degraded form
type Reason string

const (
	ReasonFontUnavailable     Reason = "font_unavailable"
	ReasonFontRejected        Reason = "font_rejected"
	ReasonDiagramPlaceholder  Reason = "diagram_placeholder"
	ReasonLogoUnavailable     Reason = "logo_unavailable"
	ReasonImagePlaceholder    Reason = "image_placeholder"
	ReasonRendererUnavailable Reason = "renderer_unavailable"
	ReasonRendererFailed      Reason = "renderer_failed"
	ReasonMinimalCoreFont     Reason = "minimal_core_font"
)

// Degradation records one substitution made while building a document
type Degradation struct {
	Reason Reason `json:"reason"`
	Detail string `json:"detail,omitempty"`
}

// Degrade is a shorthand constructor
func Degrade(reason Reason, detail string) Degradation {
	return Degradation{Reason: reason, Detail: detail}
}

// HasReason reports whether any degradation carries the given reason
func HasReason(ds []Degradation, reason Reason) bool {
	for _, d := range ds {
		if d.Reason == reason {
			return true
		}
	}
	return false
}
