package renderer

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ankek/unmeiori/internal/report"
)

// ExportDiagram writes data to outputPath. The format follows the file extension (.svg or .png).
func (r *Renderer) ExportDiagram(ctx context.Context, data report.DirectionalDiagramData, outputPath string, width, height int) error {
	// Check context before starting
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	switch format := strings.ToLower(filepath.Ext(outputPath)); format {
	case ".svg":
		svgData, err := r.SVG(data)
		if err != nil {
			return fmt.Errorf("failed to generate SVG: %w", err)
		}
		return writeFile(outputPath, svgData)
	case ".png":
		img := r.Render(ctx, data, width, height)
		if img.Placeholder {
			r.log.Warn().Str("path", outputPath).Msg("Exporting placeholder diagram")
		}
		return writeFile(outputPath, img.PNG)
	default:
		return fmt.Errorf("unsupported format: %q (use .svg or .png)", format)
	}
}
