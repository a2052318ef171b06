package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ankek/unmeiori/internal/generator"
	"github.com/ankek/unmeiori/internal/report"
)

const degradationHeader = "X-Degradations"

func (s *Server) handleCalculate(w http.ResponseWriter, r *http.Request) {
	var req generator.CalculateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.OperatorID = operatorID(r)

	calc, err := s.gen.Calculate(r.Context(), req)
	if err != nil {
		s.respondFailure(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, calc)
}

func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	recs, err := s.gen.Records(r.Context(), operatorID(r))
	if err != nil {
		s.respondFailure(w, r, err)
		return
	}
	if recs == nil {
		recs = []*report.Record{}
	}
	respondJSON(w, http.StatusOK, recs)
}

func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	rec, err := s.gen.Record(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondFailure(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

func (s *Server) handleUpdateComment(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Comment string `json:"comment"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	rec, err := s.gen.UpdateComment(r.Context(), chi.URLParam(r, "id"), body.Comment)
	if err != nil {
		s.respondFailure(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

func (s *Server) handleGeneratePDF(w http.ResponseWriter, r *http.Request) {
	out, err := s.gen.GeneratePDF(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondFailure(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handlePreviewPDF(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	previewURL := strings.TrimSuffix(s.previewBaseURL, "/") + "/" + id

	// The converter outlives slow clients; only its own timeout bounds it
	ctx := context.WithoutCancel(r.Context())
	out, err := s.gen.RenderFromPreview(ctx, id, previewURL)
	if err != nil {
		s.respondFailure(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handlePDFInfo(w http.ResponseWriter, r *http.Request) {
	info, err := s.gen.PDFInfo(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondFailure(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, info)
}

func (s *Server) handleDownloadPDF(w http.ResponseWriter, r *http.Request) {
	data, name, err := s.gen.OpenPDF(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondFailure(w, r, err)
		return
	}
	w.Header().Set("Content-Type", report.ContentPDF.MIME())
	w.Header().Set("Content-Disposition", attachment(name))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) handleDeletePDF(w http.ResponseWriter, r *http.Request) {
	removed, err := s.gen.DeletePDF(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondFailure(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"deleted": removed})
}

func (s *Server) handleFlowDocument(w http.ResponseWriter, r *http.Request) {
	var data report.CompositeReportData
	if !decodeJSON(w, r, &data) {
		return
	}
	asset, err := s.gen.BuildFlowDocument(r.Context(), data)
	if err != nil {
		s.respondFailure(w, r, err)
		return
	}

	w.Header().Set("Content-Type", asset.ContentType.MIME())
	w.Header().Set("Content-Disposition", attachment(asset.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(asset.Bytes)))
	if len(asset.Degradations) > 0 {
		reasons := make([]string, 0, len(asset.Degradations))
		for _, d := range asset.Degradations {
			reasons = append(reasons, string(d.Reason))
		}
		w.Header().Set(degradationHeader, strings.Join(reasons, ","))
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(asset.Bytes)
}

func (s *Server) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	t, err := s.gen.Template(r.Context(), operatorID(r))
	if err != nil {
		s.respondFailure(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, t)
}

func (s *Server) handleUpdateTemplate(w http.ResponseWriter, r *http.Request) {
	var t report.TemplateSettings
	if !decodeJSON(w, r, &t) {
		return
	}
	saved, err := s.gen.UpdateTemplate(r.Context(), operatorID(r), t)
	if err != nil {
		s.respondFailure(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, saved)
}

func (s *Server) handleFonts(w http.ResponseWriter, r *http.Request) {
	if s.fonts == nil {
		respondJSON(w, http.StatusOK, []any{})
		return
	}
	respondJSON(w, http.StatusOK, s.fonts.ListAvailable())
}

func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	days := 0
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			respondError(w, http.StatusBadRequest, "INVALID_PARAMETER", "days must be a positive integer", nil)
			return
		}
		days = n
	}
	removed, err := s.gen.CleanupOld(r.Context(), days)
	if err != nil {
		s.respondFailure(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

// handleHealth reports the dependencies. Documents still render without them, so the status code stays 200.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ok"
	services := make(map[string]string, len(s.health))
	for name, hc := range s.health {
		if err := hc.Healthy(ctx); err != nil {
			services[name] = err.Error()
			status = "degraded"
			continue
		}
		services[name] = "ok"
	}
	respondJSON(w, http.StatusOK, map[string]any{"status": status, "services": services})
}
