package docx

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"image"
	_ "image/png"
	"strings"

	"github.com/ankek/unmeiori/internal/interfaces"
	"github.com/ankek/unmeiori/internal/report"
)

const (
	// Inline diagram width, 4 inches in EMU
	imageWidthEMU = 3657600
	diagramPx     = 400
	spacerTwips   = 20 // per point
)

const (
	labelShade   = "f5f5f5"
	favorShade   = "e6f3ff"
	unfavorShade = "ffe6e6"
)

// document accumulates the body of word/document.xml and the media it references
type document struct {
	ctx      context.Context
	diagrams interfaces.DiagramRenderer

	body     strings.Builder
	footer   report.Footer
	media    [][]byte
	pending  float64
	degraded []report.Degradation
}

func escape(s string) string {
	var b bytes.Buffer
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}

func (d *document) block(b report.Block) {
	switch v := b.(type) {
	case report.Heading:
		d.heading(v)
	case report.Paragraph:
		d.paragraph(v)
	case report.Spacer:
		d.pending += v.Points
	case report.KeyValueTable:
		d.keyValues(v)
	case report.Grid:
		d.grid(v)
	case report.Table:
		d.table(v)
	case report.Image:
		d.image(v)
	case report.Footer:
		d.footer = v
	}
}

// takeSpacing consumes accumulated spacer points as paragraph spacing
func (d *document) takeSpacing() string {
	if d.pending <= 0 {
		return ""
	}
	s := fmt.Sprintf(`<w:spacing w:before="%d"/>`, int(d.pending*spacerTwips))
	d.pending = 0
	return s
}

// flushSpacing emits pending space ahead of a table, which carries no paragraph spacing of its own
func (d *document) flushSpacing() {
	if d.pending <= 0 {
		return
	}
	fmt.Fprintf(&d.body, `<w:p><w:pPr><w:spacing w:before="%d" w:after="0"/></w:pPr></w:p>`, int(d.pending*spacerTwips))
	d.pending = 0
}

// runs writes text as runs, turning embedded newlines into line breaks
func runs(text, rPr string) string {
	var b strings.Builder
	for i, line := range strings.Split(text, "\n") {
		b.WriteString(`<w:r>`)
		if rPr != "" {
			b.WriteString(`<w:rPr>` + rPr + `</w:rPr>`)
		}
		if i > 0 {
			b.WriteString(`<w:br/>`)
		}
		b.WriteString(`<w:t xml:space="preserve">` + escape(line) + `</w:t></w:r>`)
	}
	return b.String()
}

// para writes one paragraph. Properties follow the schema order: style, spacing, justification.
func (d *document) para(style, jc, text, rPr string) {
	pPr := ""
	if style != "" {
		pPr += `<w:pStyle w:val="` + style + `"/>`
	}
	pPr += d.takeSpacing()
	if jc != "" {
		pPr += `<w:jc w:val="` + jc + `"/>`
	}
	d.body.WriteString(`<w:p>`)
	if pPr != "" {
		d.body.WriteString(`<w:pPr>` + pPr + `</w:pPr>`)
	}
	d.body.WriteString(runs(text, rPr))
	d.body.WriteString(`</w:p>`)
}

func (d *document) heading(h report.Heading) {
	style := "Heading1"
	if h.Level <= 1 {
		style = "Title"
	}
	d.para(style, "", h.Text, "")
}

func (d *document) paragraph(p report.Paragraph) {
	switch p.Style {
	case report.StyleSubtitle:
		d.para("Subtitle", "", p.Text, "")
	case report.StyleCenter:
		d.para("", "center", p.Text, "")
	case report.StyleSmall:
		d.para("", "", p.Text, `<w:color w:val="808080"/><w:sz w:val="18"/><w:szCs w:val="18"/>`)
	case report.StyleItalic:
		d.para("", "center", p.Text, `<w:i/><w:color w:val="808080"/>`)
	default:
		d.para("", "", p.Text, "")
	}
}

type cell struct {
	text  string
	shade string
	bold  bool
	align string
}

func (d *document) startTable(cols int) {
	d.flushSpacing()
	d.body.WriteString(`<w:tbl><w:tblPr><w:tblStyle w:val="TableGrid"/><w:tblW w:w="5000" w:type="pct"/></w:tblPr><w:tblGrid>`)
	w := contentWidth / cols
	for i := 0; i < cols; i++ {
		fmt.Fprintf(&d.body, `<w:gridCol w:w="%d"/>`, w)
	}
	d.body.WriteString(`</w:tblGrid>`)
}

func (d *document) row(cells []cell, width int) {
	d.body.WriteString(`<w:tr>`)
	for _, c := range cells {
		fmt.Fprintf(&d.body, `<w:tc><w:tcPr><w:tcW w:w="%d" w:type="dxa"/>`, width)
		if c.shade != "" {
			d.body.WriteString(`<w:shd w:val="clear" w:color="auto" w:fill="` + c.shade + `"/>`)
		}
		d.body.WriteString(`</w:tcPr><w:p><w:pPr><w:spacing w:before="40" w:after="40"/>`)
		if c.align != "" {
			d.body.WriteString(`<w:jc w:val="` + c.align + `"/>`)
		}
		d.body.WriteString(`</w:pPr>`)
		rPr := ""
		if c.bold {
			rPr = `<w:b/>`
		}
		d.body.WriteString(runs(c.text, rPr))
		d.body.WriteString(`</w:p></w:tc>`)
	}
	d.body.WriteString(`</w:tr>`)
}

func (d *document) keyValues(t report.KeyValueTable) {
	if len(t.Rows) == 0 {
		return
	}
	d.startTable(2)
	for _, kv := range t.Rows {
		d.row([]cell{
			{text: kv.Key, shade: labelShade, bold: true},
			{text: kv.Value},
		}, contentWidth/2)
	}
	d.body.WriteString(`</w:tbl>`)
}

func (d *document) grid(g report.Grid) {
	if g.Columns <= 0 || len(g.Rows) == 0 {
		return
	}
	d.startTable(g.Columns)
	for i, r := range g.Rows {
		cells := make([]cell, g.Columns)
		for c := range cells {
			if c < len(r) {
				cells[c].text = r[c]
			}
			if g.LabelRows[i] || (g.LabelColumns && c%2 == 0) {
				cells[c].shade = labelShade
				cells[c].bold = true
			}
			cells[c].align = "center"
		}
		d.row(cells, contentWidth/g.Columns)
	}
	d.body.WriteString(`</w:tbl>`)
}

func (d *document) table(t report.Table) {
	cols := len(t.Header)
	if cols == 0 {
		return
	}
	d.startTable(cols)
	header := make([]cell, cols)
	for i, h := range t.Header {
		header[i] = cell{text: h, shade: labelShade, bold: true, align: "center"}
	}
	d.row(header, contentWidth/cols)

	for _, r := range t.Rows {
		cells := make([]cell, cols)
		for c := range cells {
			if c < len(r.Cells) {
				cells[c].text = r.Cells[c]
			}
			cells[c].align = "center"
		}
		switch r.Verdict {
		case report.VerdictUnfavorable:
			cells[cols-1].shade = unfavorShade
		case report.VerdictFavorable:
			cells[cols-1].shade = favorShade
		}
		d.row(cells, contentWidth/cols)
	}
	d.body.WriteString(`</w:tbl>`)
}

// image embeds supplied PNG bytes, or the diagram rendered from data when none are supplied
func (d *document) image(img report.Image) {
	data := img.PNG
	if len(data) == 0 && img.Diagram != nil && d.diagrams != nil {
		r := d.diagrams.Render(d.ctx, *img.Diagram, diagramPx, diagramPx)
		d.degraded = append(d.degraded, r.Degradations...)
		data = r.PNG
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil || format != "png" || cfg.Width == 0 || cfg.Height == 0 {
		detail := "no image data"
		if err != nil {
			detail = err.Error()
		}
		d.degraded = append(d.degraded, report.Degrade(report.ReasonImagePlaceholder, detail))
		d.paragraph(report.Paragraph{Text: img.Placeholder, Style: report.StyleItalic})
		return
	}

	d.media = append(d.media, data)
	n := len(d.media)
	cx := int64(imageWidthEMU)
	cy := cx * int64(cfg.Height) / int64(cfg.Width)

	pPr := d.takeSpacing() + `<w:jc w:val="center"/>`
	fmt.Fprintf(&d.body,
		`<w:p><w:pPr>%s</w:pPr><w:r><w:drawing>`+
			`<wp:inline distT="0" distB="0" distL="0" distR="0">`+
			`<wp:extent cx="%d" cy="%d"/>`+
			`<wp:docPr id="%d" name="Diagram %d"/>`+
			`<wp:cNvGraphicFramePr><a:graphicFrameLocks noChangeAspect="1"/></wp:cNvGraphicFramePr>`+
			`<a:graphic><a:graphicData uri="%s"><pic:pic>`+
			`<pic:nvPicPr><pic:cNvPr id="%d" name="%s"/><pic:cNvPicPr/></pic:nvPicPr>`+
			`<pic:blipFill><a:blip r:embed="%s"/><a:stretch><a:fillRect/></a:stretch></pic:blipFill>`+
			`<pic:spPr><a:xfrm><a:off x="0" y="0"/><a:ext cx="%d" cy="%d"/></a:xfrm><a:prstGeom prst="rect"><a:avLst/></a:prstGeom></pic:spPr>`+
			`</pic:pic></a:graphicData></a:graphic></wp:inline></w:drawing></w:r></w:p>`,
		pPr, cx, cy, n, n, nsPic, n, imageName(n), imageRelID(n), cx, cy)
}

// documentXML wraps the body with the section properties
func (d *document) documentXML() string {
	var b strings.Builder
	b.WriteString(xmlHeader)
	b.WriteString(`<w:document xmlns:w="` + nsW + `" xmlns:r="` + nsR + `" xmlns:wp="` + nsWP +
		`" xmlns:a="` + nsA + `" xmlns:pic="` + nsPic + `"><w:body>`)
	b.WriteString(d.body.String())
	fmt.Fprintf(&b, `<w:sectPr><w:footerReference w:type="default" r:id="rIdFooter1"/>`+
		`<w:pgSz w:w="%d" w:h="%d"/>`+
		`<w:pgMar w:top="%d" w:right="%d" w:bottom="%d" w:left="%d" w:header="425" w:footer="425" w:gutter="0"/>`+
		`</w:sectPr>`, pageWidth, pageHeight, pageMargin, pageMargin, pageMargin, pageMargin)
	b.WriteString(`</w:body></w:document>`)
	return b.String()
}

// footerXML renders the split footer line as a borderless two-cell table
func (d *document) footerXML() string {
	half := contentWidth / 2
	small := `<w:color w:val="808080"/><w:sz w:val="18"/><w:szCs w:val="18"/>`
	var b strings.Builder
	b.WriteString(xmlHeader)
	b.WriteString(`<w:ftr xmlns:w="` + nsW + `" xmlns:r="` + nsR + `">`)
	for _, l := range d.footer.Lines {
		b.WriteString(`<w:p><w:pPr><w:jc w:val="right"/></w:pPr>` + runs(l, small) + `</w:p>`)
	}
	fmt.Fprintf(&b, `<w:tbl><w:tblPr><w:tblW w:w="5000" w:type="pct"/>`+
		`<w:tblBorders><w:top w:val="single" w:sz="4" w:space="0" w:color="BDBDBD"/></w:tblBorders></w:tblPr>`+
		`<w:tblGrid><w:gridCol w:w="%d"/><w:gridCol w:w="%d"/></w:tblGrid><w:tr>`, half, half)
	fmt.Fprintf(&b, `<w:tc><w:tcPr><w:tcW w:w="%d" w:type="dxa"/></w:tcPr><w:p><w:pPr><w:jc w:val="left"/></w:pPr>%s</w:p></w:tc>`,
		half, runs(d.footer.Left, small))
	fmt.Fprintf(&b, `<w:tc><w:tcPr><w:tcW w:w="%d" w:type="dxa"/></w:tcPr><w:p><w:pPr><w:jc w:val="right"/></w:pPr>%s</w:p></w:tc>`,
		half, runs(d.footer.Right, small))
	b.WriteString(`</w:tr></w:tbl><w:p/></w:ftr>`)
	return b.String()
}
