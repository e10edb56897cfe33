package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"lectern/internal/ingestion"
	"lectern/internal/logging"
	"lectern/internal/preflight"
	"lectern/internal/services"
)

func (h *handler) startIngestion(w http.ResponseWriter, r *http.Request) {
	var body StartIngestionRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	result, err := h.ingestion.Start(r.Context(), ingestion.StartRequest{
		BookID:   chi.URLParam(r, "bookID"),
		VoiceID:  body.VoiceID,
		Provider: body.Provider,
		Model:    body.Model,
		Sections: body.Sections,
	})
	if err != nil {
		h.fail(w, r, "start ingestion", err)
		return
	}
	writeJSON(w, http.StatusAccepted, FromStartResult(result))
}

func (h *handler) getIngestion(w http.ResponseWriter, r *http.Request) {
	status, err := h.ingestion.Status(r.Context(), chi.URLParam(r, "bookID"))
	if err != nil {
		h.fail(w, r, "ingestion status", err)
		return
	}
	writeJSON(w, http.StatusOK, FromStatus(status))
}

func (h *handler) resetIngestion(w http.ResponseWriter, r *http.Request) {
	var opts ingestion.ResetOptions
	if raw := strings.TrimSpace(r.URL.Query().Get("purgeAudio")); raw != "" {
		purge, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid purgeAudio %q", raw))
			return
		}
		opts.PurgeAudio = purge
	}
	result, err := h.ingestion.Reset(r.Context(), chi.URLParam(r, "bookID"), opts)
	if err != nil {
		h.fail(w, r, "reset ingestion", err)
		return
	}
	writeJSON(w, http.StatusOK, ResetResponse{
		BookID:        result.BookID,
		HadIngestion:  result.HadIngestion,
		PurgedObjects: result.PurgedObjects,
	})
}

func (h *handler) cancelIngestion(w http.ResponseWriter, r *http.Request) {
	status, err := h.ingestion.Cancel(r.Context(), chi.URLParam(r, "bookID"))
	if err != nil {
		h.fail(w, r, "cancel ingestion", err)
		return
	}
	writeJSON(w, http.StatusOK, FromIngestionStatus(status))
}

func (h *handler) listJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.ingestion.Jobs(r.Context(), chi.URLParam(r, "bookID"))
	if err != nil {
		h.fail(w, r, "list jobs", err)
		return
	}
	writeJSON(w, http.StatusOK, JobListResponse{Jobs: FromJobs(jobs)})
}

func (h *handler) resetJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "jobID")
	job, err := h.ingestion.Job(r.Context(), id)
	if err != nil {
		h.fail(w, r, "reset job", err)
		return
	}
	n, err := h.ingestion.ResetJobs(r.Context(), id)
	if err != nil {
		h.fail(w, r, "reset job", err)
		return
	}
	if n == 0 {
		writeError(w, http.StatusConflict, fmt.Sprintf("job %s is %s; only failed jobs can be reset", id, job.Status))
		return
	}
	writeJSON(w, http.StatusOK, JobResetResponse{Reset: n})
}

func (h *handler) getHealth(w http.ResponseWriter, r *http.Request) {
	var results []preflight.Result
	if h.health != nil {
		results = h.health(r.Context())
	}
	resp := HealthResponse{
		Healthy: len(preflight.Failed(results)) == 0,
		Checks:  FromCheckResults(results),
	}
	if h.workflow != nil {
		resp.Workflow = FromStatusSummary(h.workflow.Status(r.Context()))
	}
	status := http.StatusOK
	if !resp.Healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

// fail writes err with its mapped status. Server-side failures are logged.
func (h *handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := StatusFromError(err)
	if status >= http.StatusInternalServerError {
		details := services.Details(err)
		logging.WithContext(r.Context(), h.logger).Error(op+" failed",
			logging.String(logging.FieldErrorKind, string(details.Kind)),
			logging.Error(err),
		)
	}
	writeError(w, status, err.Error())
}
