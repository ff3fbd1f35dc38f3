package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"survey-export/internal/events"
	"survey-export/internal/metrics"
	"survey-export/internal/models"
	"survey-export/internal/service"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// EventSource provides per-job lifecycle event subscriptions
type EventSource interface {
	Subscribe(ctx context.Context, jobID string) events.Subscription
}

// ExportHandler handles HTTP requests for the export pipeline
type ExportHandler struct {
	exportService *service.ExportService
	bus           EventSource
	metrics       *metrics.Metrics
	logger        *logrus.Logger
}

// NewExportHandler creates a new export handler
func NewExportHandler(exportService *service.ExportService, bus EventSource, m *metrics.Metrics, logger *logrus.Logger) *ExportHandler {
	return &ExportHandler{
		exportService: exportService,
		bus:           bus,
		metrics:       m,
		logger:        logger,
	}
}

// SubmitExport handles POST /api/export
func (h *ExportHandler) SubmitExport(w http.ResponseWriter, r *http.Request) {
	var req models.SubmitExportRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]interface{}{
				"ok":    false,
				"error": "invalid request body",
			})
			return
		}
	}

	job, err := h.exportService.Submit(r.Context(), req.Filters)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrMalformedFilter):
			writeJSON(w, http.StatusBadRequest, map[string]interface{}{
				"ok":    false,
				"error": "filters reference unknown fields",
			})
		case errors.Is(err, service.ErrRateLimitExceeded):
			writeJSON(w, http.StatusTooManyRequests, map[string]interface{}{
				"ok":    false,
				"error": "rate limit exceeded",
			})
		default:
			h.logger.WithError(err).Error("error enqueueing export job")
			writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
				"ok":    false,
				"error": err.Error(),
			})
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":    true,
		"jobId": job.ID,
	})
}

type statusResponse struct {
	Status      models.JobStatus `json:"status"`
	Progress    int              `json:"progress"`
	DownloadURL *string          `json:"downloadUrl"`
}

// GetStatus handles GET /api/export/{jobId}/status
func (h *ExportHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["jobId"]

	job, err := h.exportService.GetJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, service.ErrJobNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"status": string(models.StatusNotFound)})
			return
		}
		h.logger.WithError(err).Error("error getting job status")
		http.Error(w, "failed to retrieve job status", http.StatusInternalServerError)
		return
	}

	resp := statusResponse{
		Status:   job.Status,
		Progress: job.Progress,
	}
	if job.Result != nil {
		resp.DownloadURL = &job.Result.DownloadURL
	}

	writeJSON(w, http.StatusOK, resp)
}

// Stream handles GET /api/export/{jobId}/stream as a server-sent event
// subscription. Events fired before the client connected are not
// replayed; callers poll the status endpoint first.
func (h *ExportHandler) Stream(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["jobId"]

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sub := h.bus.Subscribe(r.Context(), jobID)
	defer sub.Close()

	for {
		select {
		case <-r.Context().Done():
			return
		case event, ok := <-sub.Events():
			if !ok {
				return
			}
			if err := writeEventFrame(w, event); err != nil {
				h.logger.WithError(err).WithField("job_id", jobID).Warn("stream write failed, closing")
				return
			}
			flusher.Flush()

			if event.Type == events.TypeCompleted || event.Type == events.TypeFailed {
				return
			}
		}
	}
}

// writeEventFrame writes one named SSE frame
func writeEventFrame(w http.ResponseWriter, event events.Event) error {
	var data interface{}
	switch event.Type {
	case events.TypeProgress:
		data = map[string]int{"progress": event.Progress}
	case events.TypeCompleted:
		data = event.Result
	case events.TypeFailed:
		data = map[string]string{"error": event.Error}
	default:
		return nil
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}

	_, err = w.Write([]byte("event: " + string(event.Type) + "\ndata: " + string(payload) + "\n\n"))
	return err
}

// GetMetrics handles GET /api/metrics
func (h *ExportHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.metrics.GetSnapshot())
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
