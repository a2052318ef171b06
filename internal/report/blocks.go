package report

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Block is one element of a composed document. The concrete types below are the only implementations.
type Block interface {
	block()
}

// TextStyle selects paragraph formatting
type TextStyle int

const (
	StyleBody TextStyle = iota
	StyleSmall
	StyleCenter
	StyleSubtitle
	StyleItalic
)

// Heading is a document title (Level 1) or section title (Level 2)
type Heading struct {
	Text  string
	Level int
}

// Paragraph is a single run of text
type Paragraph struct {
	Text  string
	Style TextStyle
}

// Spacer is vertical space in points
type Spacer struct {
	Points float64
}

// KeyValue is one row of a KeyValueTable
type KeyValue struct {
	Key   string
	Value string
}

// KeyValueTable is a two-column label/value table
type KeyValueTable struct {
	Rows     []KeyValue
	Bordered bool
}

// Grid is a fixed-column cell layout. LabelRows marks rows rendered as labels.
type Grid struct {
	Columns   int
	Rows      [][]string
	LabelRows map[int]bool
	// LabelColumns marks even columns as labels (label, value, label, value)
	LabelColumns bool
}

// TableRow is a data row whose last cell may be shaded by verdict
type TableRow struct {
	Cells   []string
	Verdict Verdict
}

// Table is a header row plus data rows
type Table struct {
	Header []string
	Rows   []TableRow
}

// Image embeds a raster. Builders render Diagram when PNG is empty and show Placeholder on failure.
type Image struct {
	PNG         []byte
	Diagram     *DirectionalDiagramData
	Placeholder string
}

// Footer closes a document. Lines stack top to bottom; Left and Right form a split footer line.
type Footer struct {
	Lines     []string
	Signature []string
	Left      string
	Right     string
}

func (Heading) block()       {}
func (Paragraph) block()     {}
func (Spacer) block()        {}
func (KeyValueTable) block() {}
func (Grid) block()          {}
func (Table) block()         {}
func (Image) block()         {}
func (Footer) block()        {}

const unknown = "不明"

// ProductSignature is the fixed right-hand footer line of flow documents
const ProductSignature = "運命織 - プロフェッショナル鑑定書作成システム"

// DiagramPlaceholder is shown when a diagram image cannot be embedded
const DiagramPlaceholder = "【方位盤画像】"

// JapaneseDate formats a date the way documents display it
func JapaneseDate(t time.Time) string {
	return t.Format("2006年01月02日")
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return unknown
	}
	return s
}

// CommentBlocks splits a comment into paragraphs. Blank lines become spacing, never empty paragraphs.
func CommentBlocks(comment string, style TextStyle) []Block {
	var blocks []Block
	lines := strings.Split(strings.ReplaceAll(comment, "\r\n", "\n"), "\n")
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			// Collapse runs of blank lines into one gap
			if len(blocks) > 0 {
				if _, ok := blocks[len(blocks)-1].(Spacer); ok {
					continue
				}
			}
			blocks = append(blocks, Spacer{Points: 6})
			continue
		}
		blocks = append(blocks, Paragraph{Text: line, Style: style})
	}
	// Leading and trailing gaps carry no meaning
	for len(blocks) > 0 {
		if _, ok := blocks[0].(Spacer); !ok {
			break
		}
		blocks = blocks[1:]
	}
	for len(blocks) > 0 {
		if _, ok := blocks[len(blocks)-1].(Spacer); !ok {
			break
		}
		blocks = blocks[:len(blocks)-1]
	}
	return blocks
}

// AggregateRows returns the five stroke aggregates in their fixed display order
func AggregateRows(a StrokeAggregates) []KeyValue {
	return []KeyValue{
		{Key: "天格", Value: fmt.Sprintf("%d画", a.Heaven)},
		{Key: "人格", Value: fmt.Sprintf("%d画", a.Personality)},
		{Key: "地格", Value: fmt.Sprintf("%d画", a.Earth)},
		{Key: "総格", Value: fmt.Sprintf("%d画", a.Total)},
		{Key: "外格", Value: fmt.Sprintf("%d画", a.External)},
	}
}

// SortedYears returns the year keys in ascending order
func (d Directions) SortedYears() []string {
	years := make([]string, 0, len(d))
	for y := range d {
		years = append(years, y)
	}
	sort.Slice(years, func(i, j int) bool {
		if len(years[i]) != len(years[j]) {
			return len(years[i]) < len(years[j])
		}
		return years[i] < years[j]
	})
	return years
}

func starLine(label string, s *Star) string {
	if s.Element == "" {
		return fmt.Sprintf("%s: %s", label, s.Name)
	}
	return fmt.Sprintf("%s: %s (%s)", label, s.Name, s.Element)
}

// ComposePaginated lays out a report for the paginated builder
func ComposePaginated(r ReportResult, t TemplateSettings, now time.Time) []Block {
	sec := Present(r.Sources(t))
	business := t.BusinessName
	if business == "" {
		business = DefaultTemplate("").BusinessName
	}

	var blocks []Block

	// Header
	if sec.Logo {
		blocks = append(blocks, Paragraph{Text: "ロゴ: " + business, Style: StyleCenter})
	}
	blocks = append(blocks,
		Paragraph{Text: business, Style: StyleCenter},
		Spacer{Points: 20},
		Heading{Text: "鑑定書", Level: 1},
		Spacer{Points: 12},
	)

	// Client information rows are never omitted
	blocks = append(blocks,
		Heading{Text: "■ お客様情報", Level: 2},
		KeyValueTable{Rows: []KeyValue{
			{Key: "お名前", Value: orUnknown(r.Client.FullName())},
			{Key: "生年月日", Value: orUnknown(r.Client.BirthDate)},
			{Key: "生年月時", Value: orUnknown(r.Client.BirthTime)},
			{Key: "性別", Value: FormData{Gender: r.Client.Gender}.GenderLabel()},
			{Key: "出生地", Value: orUnknown(r.Client.BirthPlace)},
		}},
		Spacer{Points: 15},
	)

	if sec.Calendar {
		blocks = append(blocks, Heading{Text: "■ 九星気学鑑定結果", Level: 2})
		if s := r.Calendar.Year; s != nil {
			blocks = append(blocks, Paragraph{Text: starLine("本命星", s)})
			if s.Description != "" {
				blocks = append(blocks, Paragraph{Text: "特徴: " + s.Description, Style: StyleSmall})
			}
		}
		if s := r.Calendar.Month; s != nil {
			blocks = append(blocks, Paragraph{Text: starLine("月命星", s)})
		}
		if s := r.Calendar.Day; s != nil {
			blocks = append(blocks, Paragraph{Text: starLine("日命星", s)})
		}
		blocks = append(blocks, Spacer{Points: 15})
	}

	if sec.Diagram {
		blocks = append(blocks,
			Heading{Text: "■ 方位盤", Level: 2},
			Image{Diagram: r.Diagram, Placeholder: DiagramPlaceholder},
			Spacer{Points: 15},
		)
	}

	if sec.NameAnalysis {
		n := r.Names
		blocks = append(blocks, Heading{Text: "■ 姓名判断鑑定結果", Level: 2})
		if len(n.Characters) > 0 {
			blocks = append(blocks, Paragraph{Text: "文字構成:"})
			for _, c := range n.Characters {
				line := fmt.Sprintf("「%s」 %d画", c.Character, c.Strokes)
				if c.Element != "" {
					line += " " + c.Element + "行"
				}
				if c.Polarity != "" {
					line += " " + c.Polarity
				}
				blocks = append(blocks, Paragraph{Text: line, Style: StyleSmall})
			}
			blocks = append(blocks, Spacer{Points: 10})
		}
		blocks = append(blocks,
			Paragraph{Text: "画数構成:"},
			KeyValueTable{Rows: AggregateRows(n.Aggregates), Bordered: true},
		)
		if len(n.Categories) > 0 {
			blocks = append(blocks, Spacer{Points: 10}, Paragraph{Text: "鑑定結果:"})
			for _, c := range n.Categories {
				blocks = append(blocks, Paragraph{Text: fmt.Sprintf("%s: %d点", c.Category, c.Score)})
				if c.Message != "" {
					blocks = append(blocks, Paragraph{Text: c.Message, Style: StyleSmall})
				}
			}
		}
		if n.OverallScore > 0 {
			blocks = append(blocks,
				Spacer{Points: 10},
				Paragraph{Text: fmt.Sprintf("総合評価: %d点 (グレード: %s)", n.OverallScore, n.Grade)},
			)
		}
		blocks = append(blocks, Spacer{Points: 15})
	}

	if sec.Directions {
		blocks = append(blocks, Heading{Text: "■ 吉方位情報", Level: 2})
		for _, year := range r.Directions.SortedYears() {
			d := r.Directions[year]
			blocks = append(blocks, Paragraph{Text: year + "年:"})
			if len(d.Favorable) > 0 {
				blocks = append(blocks, Paragraph{Text: "吉方位: " + strings.Join(d.Favorable, ", "), Style: StyleSmall})
			}
			if len(d.Unfavorable) > 0 {
				blocks = append(blocks, Paragraph{Text: "凶方位: " + strings.Join(d.Unfavorable, ", "), Style: StyleSmall})
			}
		}
		blocks = append(blocks, Spacer{Points: 15})
	}

	if sec.CustomMessage {
		blocks = append(blocks,
			Heading{Text: "■ 鑑定士からのメッセージ", Level: 2},
			Paragraph{Text: t.CustomMessage},
			Spacer{Points: 15},
		)
	}

	if sec.Comment {
		blocks = append(blocks, Heading{Text: "■ 鑑定士からのコメント", Level: 2})
		blocks = append(blocks, CommentBlocks(r.Comment, StyleBody)...)
		blocks = append(blocks, Spacer{Points: 15})
	}

	footer := Footer{Lines: []string{"作成日: " + JapaneseDate(now)}}
	if sec.Signature {
		operator := t.OperatorName
		if operator == "" {
			operator = DefaultTemplate("").OperatorName
		}
		footer.Signature = []string{business, operator}
	}
	blocks = append(blocks, Spacer{Points: 30}, footer)
	return blocks
}

func starValue(s *Star) string {
	if s == nil || s.Name == "" {
		return "未計算"
	}
	return s.Name
}

// ComposeFlow lays out a composite report for the flow document builder
func ComposeFlow(c CompositeReportData, now time.Time) []Block {
	sec := Present(c.Sources())
	target := c.TargetDate
	if strings.TrimSpace(target) == "" {
		target = JapaneseDate(now)
	}

	blocks := []Block{
		Heading{Text: "総合鑑定書", Level: 1},
		Paragraph{Text: "九星気学・姓名判断による詳細鑑定", Style: StyleSubtitle},
		Grid{
			Columns: 4,
			Rows: [][]string{
				{"氏名:", orUnknown(c.Form.Name), "性別:", c.Form.GenderLabel()},
				{"生年月日:", orUnknown(c.Form.BirthDate), "鑑定日:", target},
			},
			LabelColumns: true,
		},
		Spacer{Points: 11},
	}

	if sec.Calendar {
		blocks = append(blocks,
			Heading{Text: "九星気学結果", Level: 2},
			Grid{
				Columns: 3,
				Rows: [][]string{
					{"本命星", "月命星", "日命星"},
					{starValue(c.Calendar.Year), starValue(c.Calendar.Month), starValue(c.Calendar.Day)},
				},
				LabelRows: map[int]bool{0: true},
			},
			Spacer{Points: 11},
		)
	}

	if sec.Diagram {
		blocks = append(blocks,
			Heading{Text: "方位盤", Level: 2},
			Image{PNG: c.DiagramPNG, Diagram: c.Diagram, Placeholder: DiagramPlaceholder},
			Spacer{Points: 11},
		)
	}

	if sec.NameAnalysis {
		a := c.Names
		blocks = append(blocks,
			Heading{Text: "姓名判断結果", Level: 2},
			Grid{
				Columns: 4,
				Rows: [][]string{
					{"天格", "人格", "地格", "総画"},
					{
						fmt.Sprintf("%d画", a.Heaven),
						fmt.Sprintf("%d画", a.Personality),
						fmt.Sprintf("%d画", a.Earth),
						fmt.Sprintf("%d画", a.Total),
					},
				},
				LabelRows: map[int]bool{0: true},
			},
			Spacer{Points: 11},
		)
	}

	if sec.Details {
		var rows []KeyValue
		if c.Details.Year != "" {
			rows = append(rows, KeyValue{Key: "本命星", Value: c.Details.Year})
		}
		if c.Details.Month != "" {
			rows = append(rows, KeyValue{Key: "月命星", Value: c.Details.Month})
		}
		if c.Details.Day != "" {
			rows = append(rows, KeyValue{Key: "日命星", Value: c.Details.Day})
		}
		blocks = append(blocks, Heading{Text: "詳細情報", Level: 2}, KeyValueTable{Rows: rows}, Spacer{Points: 11})
	}

	if sec.DirectionDetails {
		t := Table{Header: []string{"方位", "年盤", "月盤", "日盤", "判定"}}
		for _, d := range c.DirectionDetails {
			verdict, text := d.Verdict()
			day := d.DayStar
			if day == "" {
				day = "-"
			}
			t.Rows = append(t.Rows, TableRow{
				Cells:   []string{d.Direction, d.YearStar, d.MonthStar, day, text},
				Verdict: verdict,
			})
		}
		blocks = append(blocks, Heading{Text: "方位詳細", Level: 2}, t, Spacer{Points: 11})
	}

	if sec.Comment {
		blocks = append(blocks, Heading{Text: "鑑定士からのコメント", Level: 2})
		blocks = append(blocks, CommentBlocks(c.Comment, StyleBody)...)
	}

	blocks = append(blocks, Footer{Left: target, Right: ProductSignature})
	return blocks
}

// MinimalBlocks is the fallback notice for a report whose preview could not be printed
func MinimalBlocks(reportID string) []Block {
	return []Block{
		Heading{Text: "鑑定書", Level: 1},
		Spacer{Points: 12},
		Paragraph{Text: "鑑定ID: " + reportID},
		Spacer{Points: 12},
		Paragraph{Text: "印刷プレビューからのPDF生成に失敗したため、フォールバックPDFを生成しました。"},
		Spacer{Points: 6},
		Paragraph{Text: "ブラウザの印刷機能をご利用ください。"},
		Spacer{Points: 12},
		Paragraph{Text: "手順:"},
		Paragraph{Text: "1. 印刷プレビューを開く"},
		Paragraph{Text: "2. ブラウザの「印刷」ボタンをクリック"},
		Paragraph{Text: "3. 印刷ダイアログで「PDFとして保存」を選択"},
	}
}

// MinimalBlocksASCII is the last-resort notice when no CJK font can be used
func MinimalBlocksASCII(reportID string) []Block {
	return []Block{
		Heading{Text: "Kantei Report", Level: 1},
		Spacer{Points: 12},
		Paragraph{Text: "Kantei ID: " + reportID},
		Paragraph{Text: "PDF generation from print preview failed."},
		Paragraph{Text: "Please use browser print function."},
		Spacer{Points: 12},
		Paragraph{Text: "1. Open the print preview"},
		Paragraph{Text: "2. Click the browser Print button"},
		Paragraph{Text: "3. Choose \"Save as PDF\" in the print dialog"},
	}
}
