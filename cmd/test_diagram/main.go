package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/ankek/unmeiori/internal/renderer"
	"github.com/ankek/unmeiori/internal/report"
	"github.com/ankek/unmeiori/internal/validation"
)

// sampleDiagram is a full board with the fifth star in the center
func sampleDiagram() report.DirectionalDiagramData {
	data := report.DirectionalDiagramData{CenterStar: 5}
	for i, d := range report.AllDirections {
		data.Entries = append(data.Entries, report.DiagramEntry{Direction: d.Abbrev(), Star: i%9 + 1})
	}
	return data
}

func main() {
	out := flag.String("out", "diagram.png", "output PNG path")
	size := flag.Int("size", 600, "image width and height in pixels")
	flag.Parse()

	if err := validation.ValidateOutputPath(*out); err != nil {
		fmt.Fprintf(os.Stderr, "FAIL: %v\n", err)
		os.Exit(1)
	}

	// No font source: labels use the built-in bitmap face
	r := renderer.New(renderer.Options{Logger: zerolog.New(os.Stderr)})
	if err := r.ExportDiagram(context.Background(), sampleDiagram(), *out, *size, *size); err != nil {
		fmt.Fprintf(os.Stderr, "FAIL: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Diagram written to %s\n", *out)
}
