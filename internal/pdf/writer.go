package pdf

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/png"
	"strings"

	"github.com/go-pdf/fpdf"

	"github.com/ankek/unmeiori/internal/interfaces"
	"github.com/ankek/unmeiori/internal/report"
)

const (
	lineHeight   = 6.0
	rowHeight    = 7.0
	keyWidth     = 40.0
	imageWidthMM = 70.0
	diagramPx    = 400
)

var (
	labelFill   = report.RGB{R: 0xf5, G: 0xf5, B: 0xf5}
	favorFill   = report.RGB{R: 0xe6, G: 0xf3, B: 0xff}
	unfavorFill = report.RGB{R: 0xff, G: 0xe6, B: 0xe6}
	bodyText    = report.RGB{R: 0x33, G: 0x33, B: 0x33}
)

// writer draws blocks onto one document
type writer struct {
	pdf      *fpdf.Fpdf
	ctx      context.Context
	family   string
	text     func(string) string
	palette  report.Palette
	diagrams interfaces.DiagramRenderer

	images   int
	degraded []report.Degradation
}

func (w *writer) setColor(c report.RGB) {
	w.pdf.SetTextColor(int(c.R), int(c.G), int(c.B))
}

func (w *writer) setFill(c report.RGB) {
	w.pdf.SetFillColor(int(c.R), int(c.G), int(c.B))
}

// contentWidth is the printable width between the margins
func (w *writer) contentWidth() float64 {
	pageW, _ := w.pdf.GetPageSize()
	left, _, right, _ := w.pdf.GetMargins()
	return pageW - left - right
}

// ensureSpace starts a new page when h millimetres do not fit
func (w *writer) ensureSpace(h float64) {
	_, pageH := w.pdf.GetPageSize()
	_, _, _, bottom := w.pdf.GetMargins()
	if w.pdf.GetY()+h > pageH-bottom {
		w.pdf.AddPage()
	}
}

func (w *writer) pageFooter() {
	w.pdf.SetY(-15)
	w.pdf.SetFont(w.family, "", 8)
	w.setColor(w.palette.Secondary)
	w.pdf.CellFormat(0, 10, fmt.Sprintf("- %d -", w.pdf.PageNo()), "", 0, "C", false, 0, "")
}

func (w *writer) block(b report.Block) {
	switch v := b.(type) {
	case report.Heading:
		w.heading(v)
	case report.Paragraph:
		w.paragraph(v)
	case report.Spacer:
		w.pdf.Ln(w.pdf.PointConvert(v.Points))
	case report.KeyValueTable:
		w.keyValues(v)
	case report.Grid:
		w.grid(v)
	case report.Table:
		w.table(v)
	case report.Image:
		w.image(v)
	case report.Footer:
		w.footer(v)
	}
}

func (w *writer) heading(h report.Heading) {
	if h.Level <= 1 {
		w.ensureSpace(14)
		w.pdf.SetFont(w.family, "B", 24)
		w.setColor(w.palette.Primary)
		w.pdf.CellFormat(0, 14, w.text(h.Text), "", 1, "C", false, 0, "")
		return
	}
	// Keep a section title with at least two lines of its body
	w.ensureSpace(10 + 2*lineHeight)
	w.pdf.SetFont(w.family, "B", 14)
	w.setColor(w.palette.Primary)
	w.pdf.CellFormat(0, 10, w.text(h.Text), "", 1, "L", false, 0, "")
	w.pdf.Ln(2)
}

func (w *writer) paragraph(p report.Paragraph) {
	size, align, col := 11.0, "L", bodyText
	switch p.Style {
	case report.StyleSmall:
		size, col = 9, w.palette.Secondary
	case report.StyleCenter:
		size, align = 12, "C"
	case report.StyleSubtitle:
		size, align, col = 12, "C", w.palette.Secondary
	case report.StyleItalic:
		col = w.palette.Secondary
	}
	w.pdf.SetFont(w.family, "", size)
	w.setColor(col)
	w.pdf.MultiCell(0, lineHeight, w.text(p.Text), "", align, false)
}

func (w *writer) keyValues(t report.KeyValueTable) {
	border := ""
	if t.Bordered {
		border = "1"
	}
	valueWidth := w.contentWidth() - keyWidth
	w.setFill(labelFill)
	for _, row := range t.Rows {
		w.ensureSpace(rowHeight)
		w.pdf.SetFont(w.family, "B", 10)
		w.setColor(bodyText)
		w.pdf.CellFormat(keyWidth, rowHeight, w.text(row.Key), border, 0, "L", t.Bordered, 0, "")
		w.pdf.SetFont(w.family, "", 10)
		w.pdf.MultiCell(valueWidth, rowHeight, w.text(row.Value), border, "L", false)
	}
}

func (w *writer) grid(g report.Grid) {
	if g.Columns <= 0 {
		return
	}
	colWidth := w.contentWidth() / float64(g.Columns)
	w.setFill(labelFill)
	for i, row := range g.Rows {
		w.ensureSpace(rowHeight + 1)
		for c := 0; c < g.Columns; c++ {
			cell := ""
			if c < len(row) {
				cell = row[c]
			}
			label := g.LabelRows[i] || (g.LabelColumns && c%2 == 0)
			style := ""
			if label {
				style = "B"
			}
			w.pdf.SetFont(w.family, style, 10)
			w.setColor(bodyText)
			w.pdf.CellFormat(colWidth, rowHeight+1, w.text(cell), "1", 0, "C", label, 0, "")
		}
		w.pdf.Ln(-1)
	}
}

func (w *writer) table(t report.Table) {
	cols := len(t.Header)
	if cols == 0 {
		return
	}
	colWidth := w.contentWidth() / float64(cols)

	w.ensureSpace(2 * rowHeight)
	w.pdf.SetFont(w.family, "B", 10)
	w.setColor(bodyText)
	w.setFill(labelFill)
	for _, h := range t.Header {
		w.pdf.CellFormat(colWidth, rowHeight, w.text(h), "1", 0, "C", true, 0, "")
	}
	w.pdf.Ln(-1)

	w.pdf.SetFont(w.family, "", 10)
	for _, row := range t.Rows {
		w.ensureSpace(rowHeight)
		for c := 0; c < cols; c++ {
			cell := ""
			if c < len(row.Cells) {
				cell = row.Cells[c]
			}
			fill := false
			if c == cols-1 {
				switch row.Verdict {
				case report.VerdictUnfavorable:
					w.setFill(unfavorFill)
					fill = true
				case report.VerdictFavorable:
					w.setFill(favorFill)
					fill = true
				}
			}
			w.pdf.CellFormat(colWidth, rowHeight, w.text(cell), "1", 0, "C", fill, 0, "")
		}
		w.pdf.Ln(-1)
	}
}

// image embeds the diagram, drawing it from data when no bytes are supplied
func (w *writer) image(img report.Image) {
	data := img.PNG
	if len(data) == 0 && img.Diagram != nil && w.diagrams != nil {
		r := w.diagrams.Render(w.ctx, *img.Diagram, diagramPx, diagramPx)
		w.degraded = append(w.degraded, r.Degradations...)
		data = r.PNG
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil || format != "png" || cfg.Width == 0 {
		detail := "no image data"
		if err != nil {
			detail = err.Error()
		}
		w.degraded = append(w.degraded, report.Degrade(report.ReasonImagePlaceholder, detail))
		w.paragraph(report.Paragraph{Text: w.placeholderText(img.Placeholder), Style: report.StyleItalic})
		return
	}

	height := imageWidthMM * float64(cfg.Height) / float64(cfg.Width)
	w.ensureSpace(height)

	w.images++
	name := fmt.Sprintf("image%d", w.images)
	opts := fpdf.ImageOptions{ImageType: "PNG", ReadDpi: false}
	w.pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(data))

	pageW, _ := w.pdf.GetPageSize()
	x := (pageW - imageWidthMM) / 2
	w.pdf.ImageOptions(name, x, w.pdf.GetY(), imageWidthMM, height, true, opts, 0, "")
}

// placeholderText keeps the placeholder readable with the core font
func (w *writer) placeholderText(s string) string {
	if w.family == core {
		return "[diagram]"
	}
	return s
}

func (w *writer) footer(f report.Footer) {
	lines := len(f.Lines) + len(f.Signature)
	w.ensureSpace(float64(lines+1) * lineHeight)

	w.pdf.SetFont(w.family, "", 9)
	w.setColor(w.palette.Secondary)
	for _, l := range f.Lines {
		w.pdf.CellFormat(0, lineHeight, w.text(l), "", 1, "R", false, 0, "")
	}
	if len(f.Signature) > 0 {
		w.pdf.Ln(4)
		w.pdf.SetFont(w.family, "B", 11)
		w.setColor(bodyText)
		for _, l := range f.Signature {
			w.pdf.CellFormat(0, lineHeight, w.text(l), "", 1, "R", false, 0, "")
		}
	}
	if f.Left != "" || f.Right != "" {
		half := w.contentWidth() / 2
		w.pdf.SetFont(w.family, "", 9)
		w.setColor(w.palette.Secondary)
		w.pdf.CellFormat(half, lineHeight, w.text(f.Left), "T", 0, "L", false, 0, "")
		w.pdf.CellFormat(half, lineHeight, w.text(f.Right), "T", 1, "R", false, 0, "")
	}
}

// latin1 maps text to the core font encoding; runes outside Latin-1 become '?'
func latin1(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '\n' || r == '\t':
			b.WriteByte(byte(r))
		case r >= 0x20 && r < 0x7f:
			b.WriteByte(byte(r))
		case r >= 0xa0 && r <= 0xff:
			b.WriteByte(byte(r))
		default:
			b.WriteByte('?')
		}
	}
	return b.String()
}
