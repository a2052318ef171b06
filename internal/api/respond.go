package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/ankek/unmeiori/internal/generator"
	"github.com/ankek/unmeiori/internal/validation"
)

// maxBodyBytes bounds request bodies; flow document requests may carry a diagram PNG
const maxBodyBytes = 10 << 20

// Response is the envelope of every JSON reply
type Response struct {
	Status    string    `json:"status"`
	Data      any       `json:"data,omitempty"`
	Error     *APIError `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// APIError describes a rejected request
type APIError struct {
	Code    string                  `json:"code"`
	Message string                  `json:"message"`
	Fields  []validation.FieldError `json:"fields,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	writeEnvelope(w, status, Response{Status: "success", Data: data, Timestamp: time.Now().UTC()})
}

func respondError(w http.ResponseWriter, status int, code, message string, fields []validation.FieldError) {
	writeEnvelope(w, status, Response{
		Status:    "error",
		Error:     &APIError{Code: code, Message: message, Fields: fields},
		Timestamp: time.Now().UTC(),
	})
}

func writeEnvelope(w http.ResponseWriter, status int, resp Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// respondFailure maps a generator error to a status code
func (s *Server) respondFailure(w http.ResponseWriter, r *http.Request, err error) {
	switch generator.KindOf(err) {
	case generator.KindInvalid:
		var fields []validation.FieldError
		var ie *validation.InputError
		if errors.As(err, &ie) {
			fields = ie.Fields
		}
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "request failed validation", fields)
	case generator.KindFatal:
		respondError(w, http.StatusNotFound, "NOT_FOUND", err.Error(), nil)
	default:
		s.log.Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "the request could not be completed", nil)
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, "INVALID_JSON", fmt.Sprintf("invalid request body: %v", err), nil)
		return false
	}
	return true
}

// attachment builds a Content-Disposition value that survives non-ASCII file names
func attachment(filename string) string {
	var ascii strings.Builder
	for _, r := range filename {
		if r < 0x20 || r > 0x7e || r == '"' || r == '\\' {
			ascii.WriteByte('_')
			continue
		}
		ascii.WriteRune(r)
	}
	return fmt.Sprintf(`attachment; filename="%s"; filename*=UTF-8''%s`, ascii.String(), url.PathEscape(filename))
}
