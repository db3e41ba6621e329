// Package api exposes the job triggers over HTTP. The Report is the sole
// channel for partial-failure visibility: a success response with warnings
// is a valid outcome, not a contradiction.
package api

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/SamoM225/the-bible-translations/internal/domain"
	"github.com/SamoM225/the-bible-translations/internal/ingest"
	"github.com/SamoM225/the-bible-translations/internal/pipeline"
	"github.com/SamoM225/the-bible-translations/internal/service/langdir"
	"github.com/SamoM225/the-bible-translations/pkg/errors"
)

const maxUploadBytes = 16 << 20

type Handlers struct {
	orchestrator *pipeline.Orchestrator
	languages    *langdir.Directory
	logger       *zap.Logger
}

func NewHandlers(orchestrator *pipeline.Orchestrator, languages *langdir.Directory, logger *zap.Logger) *Handlers {
	return &Handlers{
		orchestrator: orchestrator,
		languages:    languages,
		logger:       logger,
	}
}

func (h *Handlers) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/jobs/language", h.handleLanguageJob)
	mux.HandleFunc("POST /api/jobs/import", h.handleImportJob)
	mux.HandleFunc("POST /api/upload", h.handleUpload)
	mux.HandleFunc("POST /api/languages", h.handleRegisterLanguage)
}

type languageJobRequest struct {
	TargetLanguage string `json:"target_language"`
	Offset         int    `json:"offset"`
}

func (h *Handlers) handleLanguageJob(w http.ResponseWriter, r *http.Request) {
	var req languageJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.TargetLanguage) == "" {
		h.writeError(w, http.StatusBadRequest, "target_language is required")
		return
	}

	result, err := h.orchestrator.TranslateLanguage(r.Context(), req.TargetLanguage, domain.JobCursor{Offset: req.Offset})
	if err != nil {
		h.logger.Error("Language job failed",
			zap.String("language", req.TargetLanguage),
			zap.Error(err),
		)
		h.writeError(w, statusFor(err), err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}

type importJobRequest struct {
	Rows []domain.SourceEntry `json:"rows"`
}

func (h *Handlers) handleImportJob(w http.ResponseWriter, r *http.Request) {
	var req importJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.orchestrator.TranslateImport(r.Context(), req.Rows)
	if err != nil {
		h.logger.Error("Import job failed", zap.Error(err))
		h.writeError(w, statusFor(err), err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}

// handleUpload parses a delimited or XML file body and runs the import job
// on the parsed rows. Nothing is persisted when parsing fails, and an
// oversize body is rejected whole rather than truncated into a partial file.
func (h *Handlers) handleUpload(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxUploadBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			h.writeError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("upload exceeds the %d byte limit", tooLarge.Limit))
			return
		}
		h.writeError(w, http.StatusBadRequest, "cannot read request body")
		return
	}

	rows, err := ingest.Parse(string(body))
	if err != nil {
		h.logger.Warn("Upload rejected", zap.Error(err))
		h.writeError(w, statusFor(err), err.Error())
		return
	}

	result, jobErr := h.orchestrator.TranslateImport(r.Context(), rows)
	if jobErr != nil {
		h.logger.Error("Import job failed after upload", zap.Error(jobErr))
		h.writeError(w, statusFor(jobErr), jobErr.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}

type registerLanguageRequest struct {
	Code     string `json:"code"`
	Name     string `json:"name"`
	IsActive bool   `json:"is_active"`
}

func (h *Handlers) handleRegisterLanguage(w http.ResponseWriter, r *http.Request) {
	var req registerLanguageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Code) == "" || strings.TrimSpace(req.Name) == "" {
		h.writeError(w, http.StatusBadRequest, "code and name are required")
		return
	}

	lang := domain.Language{Code: req.Code, Name: req.Name, IsActive: req.IsActive}
	if err := h.languages.Register(r.Context(), lang); err != nil {
		h.logger.Error("Language registration failed", zap.String("code", req.Code), zap.Error(err))
		h.writeError(w, statusFor(err), err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]any{"success": false, "error": message})
}

func statusFor(err error) int {
	switch {
	case errors.IsFormat(err):
		return http.StatusBadRequest
	case errors.IsRateLimit(err):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
