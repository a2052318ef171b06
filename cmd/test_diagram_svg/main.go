package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/ankek/unmeiori/internal/renderer"
	"github.com/ankek/unmeiori/internal/report"
	"github.com/ankek/unmeiori/internal/validation"
)

// sampleDiagram uses Japanese direction names and an explicit center label
func sampleDiagram() report.DirectionalDiagramData {
	return report.DirectionalDiagramData{
		CenterLabel: "本命星",
		CenterStar:  1,
		Entries: []report.DiagramEntry{
			{Direction: "北", Star: 6},
			{Direction: "東", Star: 8},
			{Direction: "南", Star: 5},
			{Direction: "西", Star: 3},
		},
	}
}

func main() {
	out := flag.String("out", "diagram.svg", "output SVG path")
	flag.Parse()

	if err := validation.ValidateOutputPath(*out); err != nil {
		fmt.Fprintf(os.Stderr, "FAIL: %v\n", err)
		os.Exit(1)
	}

	svg, err := renderer.New(renderer.Options{}).SVG(sampleDiagram())
	if err != nil {
		fmt.Fprintf(os.Stderr, "FAIL: %v\n", err)
		os.Exit(1)
	}
	if err := os.WriteFile(*out, svg, 0644); err != nil {
		fmt.Fprintf(os.Stderr, "FAIL: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("SVG written to %s\n", *out)
}
