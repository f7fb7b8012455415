package api

import (
	"encoding/json"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"

	"github.com/nanoslide/nanoslide/internal/domain"
	"github.com/nanoslide/nanoslide/internal/monitoring"
	"github.com/nanoslide/nanoslide/internal/observability"
	"github.com/nanoslide/nanoslide/internal/pipeline"
)

type statusHandler struct {
	orch   *pipeline.Orchestrator
	logger *observability.Logger
}

func newStatusHandler(orch *pipeline.Orchestrator, logger *observability.Logger) *statusHandler {
	return &statusHandler{orch: orch, logger: logger.WithOperation("api")}
}

type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func (h *statusHandler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error().Err(err).Msg("Failed to encode response")
	}
}

func (h *statusHandler) writeError(w http.ResponseWriter, status int, msg, details string) {
	h.writeJSON(w, status, errorResponse{Error: msg, Details: details})
}

type documentListResponse struct {
	Documents []domain.DocumentID `json:"documents"`
}

// ListDocuments handles GET /api/v1/documents.
func (h *statusHandler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := h.orch.Documents()
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to list documents", err.Error())
		return
	}
	if docs == nil {
		docs = []domain.DocumentID{}
	}
	h.writeJSON(w, http.StatusOK, documentListResponse{Documents: docs})
}

// GetStatus handles GET /api/v1/documents/{id}/status.
func (h *statusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	doc := domain.DocumentID(chi.URLParam(r, "id"))
	if !h.documentExists(doc) {
		h.writeError(w, http.StatusNotFound, "unknown document", string(doc))
		return
	}

	status, err := h.orch.Status(doc)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to compute status", err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, status)
}

type lineageResponse struct {
	Document domain.DocumentID `json:"document"`
	Runs     []runWithStages   `json:"runs"`
}

type runWithStages struct {
	monitoring.RunRecord
	Stages []monitoring.StageRecord `json:"stages"`
}

// GetLineage handles GET /api/v1/documents/{id}/lineage.
func (h *statusHandler) GetLineage(w http.ResponseWriter, r *http.Request) {
	doc := domain.DocumentID(chi.URLParam(r, "id"))
	if !h.documentExists(doc) {
		h.writeError(w, http.StatusNotFound, "unknown document", string(doc))
		return
	}

	l, err := h.orch.Lineage(doc)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to open lineage", err.Error())
		return
	}
	defer l.Close()

	runs, err := l.Runs(r.Context())
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to read lineage", err.Error())
		return
	}

	resp := lineageResponse{Document: doc, Runs: []runWithStages{}}
	for _, run := range runs {
		stages, err := l.StageRuns(r.Context(), run.ID)
		if err != nil {
			h.writeError(w, http.StatusInternalServerError, "failed to read stage lineage", err.Error())
			return
		}
		if stages == nil {
			stages = []monitoring.StageRecord{}
		}
		resp.Runs = append(resp.Runs, runWithStages{RunRecord: run, Stages: stages})
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *statusHandler) documentExists(doc domain.DocumentID) bool {
	info, err := os.Stat(h.orch.Store().DocumentRoot(doc))
	return err == nil && info.IsDir()
}
