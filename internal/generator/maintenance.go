package generator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ankek/unmeiori/internal/metrics"
	"github.com/ankek/unmeiori/internal/report"
	"github.com/ankek/unmeiori/internal/storage"
)

// PDFExpiry is how long a stored PDF is advertised as available
const PDFExpiry = 365 * 24 * time.Hour

// PDFInfo describes the stored PDF of a report
type PDFInfo struct {
	ReportID   string    `json:"report_id"`
	Filename   string    `json:"filename"`
	Size       int64     `json:"size"`
	CreatedAt  time.Time `json:"created_at"`
	ModifiedAt time.Time `json:"modified_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// storedPDF resolves the file name of a report's PDF and checks that it is on disk
func (g *Generator) storedPDF(ctx context.Context, op, id string) (*report.Record, storage.FileInfo, error) {
	rec, err := g.Record(ctx, id)
	if err != nil {
		return nil, storage.FileInfo{}, err
	}
	if !rec.PDFGenerated || rec.PDFFilename == "" {
		return nil, storage.FileInfo{}, fatal(op, fmt.Errorf("report %s: %w", id, ErrPDFNotGenerated))
	}
	info, err := g.content.Stat(rec.PDFFilename)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, storage.FileInfo{}, fatal(op, fmt.Errorf("%s: %w", rec.PDFFilename, ErrPDFMissing))
	}
	if err != nil {
		return nil, storage.FileInfo{}, unexpected(op, err)
	}
	return rec, info, nil
}

// PDFInfo returns size and dates of the stored PDF
func (g *Generator) PDFInfo(ctx context.Context, id string) (*PDFInfo, error) {
	_, info, err := g.storedPDF(ctx, "pdf info", id)
	if err != nil {
		return nil, err
	}
	return &PDFInfo{
		ReportID:   id,
		Filename:   info.Name,
		Size:       info.Size,
		CreatedAt:  info.CreatedAt,
		ModifiedAt: info.ModifiedAt,
		ExpiresAt:  info.CreatedAt.Add(PDFExpiry),
	}, nil
}

// OpenPDF returns the bytes and file name of the stored PDF
func (g *Generator) OpenPDF(ctx context.Context, id string) ([]byte, string, error) {
	rec, _, err := g.storedPDF(ctx, "download pdf", id)
	if err != nil {
		return nil, "", err
	}
	data, err := g.content.Read(rec.PDFFilename)
	if err != nil {
		return nil, "", unexpected("download pdf", err)
	}
	return data, rec.PDFFilename, nil
}

// DeletePDF removes the stored PDF and clears the record's reference to it
func (g *Generator) DeletePDF(ctx context.Context, id string) (bool, error) {
	rec, err := g.Record(ctx, id)
	if err != nil {
		return false, err
	}
	if rec.PDFFilename == "" {
		return false, nil
	}

	removed, err := g.content.Delete(rec.PDFFilename)
	if err != nil {
		return false, unexpected("delete pdf", err)
	}
	_, err = g.records.Update(ctx, id, func(r *report.Record) error {
		r.PDFGenerated = false
		r.PDFFilename = ""
		return nil
	})
	if err != nil {
		return removed, unexpected("delete pdf", err)
	}
	return removed, nil
}

// CleanupOld deletes generated PDFs older than days. Zero or negative days use the configured retention.
func (g *Generator) CleanupOld(ctx context.Context, days int) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if days <= 0 {
		days = g.retention
	}
	cutoff := g.clock().AddDate(0, 0, -days)

	removed, err := g.content.Sweep(cutoff, ".pdf")
	if removed > 0 {
		metrics.FilesSwept.Add(float64(removed))
	}
	if err != nil {
		return removed, unexpected("cleanup", err)
	}
	g.log.Debug().Int("days", days).Int("removed", removed).Msg("Cleanup finished")
	return removed, nil
}
