//go:build ignore

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/ankek/unmeiori/internal/docx"
	"github.com/ankek/unmeiori/internal/fonts"
	"github.com/ankek/unmeiori/internal/pdf"
	"github.com/ankek/unmeiori/internal/renderer"
	"github.com/ankek/unmeiori/internal/report"
)

func main() {
	outDir := flag.String("out", "samples", "output directory")
	fontDir := flag.String("fonts", "fonts", "font cache directory")
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	ctx := context.Background()
	now := time.Now()

	resolver := fonts.New(fonts.Options{Dir: *fontDir, Logger: log})
	resolver.EnsureReady(ctx)
	diagrams := renderer.New(renderer.Options{Fonts: resolver, Logger: log})

	diagram := &report.DirectionalDiagramData{CenterStar: 5}
	for i, d := range report.AllDirections {
		diagram.Entries = append(diagram.Entries, report.DiagramEntry{Direction: d.Abbrev(), Star: i%9 + 1})
	}

	result := report.ReportResult{
		Client: report.ClientInfo{Surname: "山田", GivenName: "太郎", BirthDate: "1990-05-15", Gender: "male"},
		Calendar: &report.CalendarResult{
			Year:  &report.Star{Name: "一白水星", Element: "水"},
			Month: &report.Star{Name: "六白金星", Element: "金"},
			Day:   &report.Star{Name: "九紫火星", Element: "火"},
		},
		Names: &report.NameAnalysisResult{
			Aggregates:   report.StrokeAggregates{Heaven: 8, Personality: 9, Earth: 13, Total: 21, External: 12},
			OverallScore: 82,
			Grade:        "吉",
		},
		Diagram: diagram,
		Comment: "本年は北の方位に吉兆があります。",
	}

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "FAIL: %v\n", err)
		os.Exit(1)
	}

	paginated, err := pdf.New(pdf.Options{Fonts: resolver, Diagrams: diagrams, Logger: log}).
		Build(ctx, result, report.DefaultTemplate("sample"), now)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FAIL: pdf: %v\n", err)
		os.Exit(1)
	}
	write(*outDir, paginated)

	flow, err := docx.New(docx.Options{Diagrams: diagrams, Logger: log}).Build(ctx, report.CompositeReportData{
		Form:     report.FormData{Name: result.Client.FullName(), Gender: "male", BirthDate: result.Client.BirthDate},
		Calendar: result.Calendar,
		Names:    &result.Names.Aggregates,
		Diagram:  diagram,
		Comment:  result.Comment,
	}, now)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FAIL: docx: %v\n", err)
		os.Exit(1)
	}
	write(*outDir, flow)
}

func write(dir string, asset report.RenderedAsset) {
	path := filepath.Join(dir, asset.Filename)
	if err := os.WriteFile(path, asset.Bytes, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "FAIL: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("%s (%d bytes)\n", path, len(asset.Bytes))
	for _, d := range asset.Degradations {
		fmt.Printf("  degraded: %s %s\n", d.Reason, d.Detail)
	}
}
