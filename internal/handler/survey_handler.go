package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"survey-export/internal/models"
	"survey-export/internal/service"
	"survey-export/internal/store"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// SurveyHandler handles HTTP requests for survey collection
type SurveyHandler struct {
	surveyService *service.SurveyService
	logger        *logrus.Logger
}

// NewSurveyHandler creates a new survey handler
func NewSurveyHandler(surveyService *service.SurveyService, logger *logrus.Logger) *SurveyHandler {
	return &SurveyHandler{
		surveyService: surveyService,
		logger:        logger,
	}
}

// Ping handles GET /api/form/ping
func (h *SurveyHandler) Ping(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":   true,
		"time": time.Now().UTC().Format(time.RFC3339),
	})
}

// SubmitSurvey handles POST /api/form/submit
func (h *SurveyHandler) SubmitSurvey(w http.ResponseWriter, r *http.Request) {
	var req models.SubmitSurveyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	record, err := h.surveyService.Submit(r.Context(), &req)
	if err != nil {
		if errors.Is(err, service.ErrInvalidSubmission) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.logger.WithError(err).Error("error submitting survey")
		http.Error(w, "failed to submit survey", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"message": "Form submitted successfully",
		"data":    record,
	})
}

// ListSurveys handles GET /api/form/data
func (h *SurveyHandler) ListSurveys(w http.ResponseWriter, r *http.Request) {
	records, err := h.surveyService.List(r.Context())
	if err != nil {
		h.logger.WithError(err).Error("error listing surveys")
		http.Error(w, "failed to list surveys", http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []*models.SurveyRecord{}
	}

	writeJSON(w, http.StatusOK, records)
}

// DeleteSurvey handles DELETE /api/form/delete/{id}
func (h *SurveyHandler) DeleteSurvey(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if err := h.surveyService.Delete(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			http.Error(w, "survey record not found", http.StatusNotFound)
			return
		}
		h.logger.WithError(err).Error("error deleting survey")
		http.Error(w, "failed to delete survey", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Form entry deleted successfully"})
}
