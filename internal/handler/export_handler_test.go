package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"survey-export/internal/events"
	"survey-export/internal/metrics"
	"survey-export/internal/models"
	"survey-export/internal/repository"
	"survey-export/internal/service"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// memoryJobRepository is an in-memory queue backing handler tests
type memoryJobRepository struct {
	jobs map[string]*models.ExportJob
}

func newMemoryJobRepository() *memoryJobRepository {
	return &memoryJobRepository{jobs: make(map[string]*models.ExportJob)}
}

func (m *memoryJobRepository) Enqueue(ctx context.Context, job *models.ExportJob) error {
	job.Status = models.StatusWaiting
	m.jobs[job.ID] = job
	return nil
}

func (m *memoryJobRepository) GetJobByID(ctx context.Context, id string) (*models.ExportJob, error) {
	job, exists := m.jobs[id]
	if !exists {
		return nil, repository.ErrJobNotFound
	}
	return job, nil
}

func (m *memoryJobRepository) Lease(ctx context.Context, leaseDuration time.Duration) (*models.ExportJob, error) {
	return nil, nil
}

func (m *memoryJobRepository) UpdateProgress(ctx context.Context, id string, percent int) error {
	return nil
}

func (m *memoryJobRepository) Complete(ctx context.Context, id string, result *models.ExportResult) error {
	return nil
}

func (m *memoryJobRepository) Retry(ctx context.Context, id string, reason string, delay time.Duration) error {
	return nil
}

func (m *memoryJobRepository) Fail(ctx context.Context, id string, reason string) error {
	return nil
}

func (m *memoryJobRepository) Prune(ctx context.Context, age time.Duration, keep int) (int64, error) {
	return 0, nil
}

func newTestExportHandler(repo *memoryJobRepository) *ExportHandler {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	m := metrics.NewMetrics()
	svc := service.NewExportService(repo, service.NewRateLimiter(100), m, logger, 2)
	return NewExportHandler(svc, nil, m, logger)
}

func TestExportHandler_SubmitExport(t *testing.T) {
	handler := newTestExportHandler(newMemoryJobRepository())

	body := bytes.NewBufferString(`{"filters":{"wardNo":"12"}}`)
	req := httptest.NewRequest(http.MethodPost, "/api/export", body)
	w := httptest.NewRecorder()

	handler.SubmitExport(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	var resp map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["ok"] != true {
		t.Errorf("expected ok true, got %v", resp["ok"])
	}
	jobID, _ := resp["jobId"].(string)
	if jobID == "" {
		t.Error("expected a jobId in response")
	}
}

func TestExportHandler_SubmitExport_EmptyBody(t *testing.T) {
	handler := newTestExportHandler(newMemoryJobRepository())

	req := httptest.NewRequest(http.MethodPost, "/api/export", nil)
	w := httptest.NewRecorder()

	handler.SubmitExport(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200 for unfiltered export, got %d", w.Code)
	}
}

func TestExportHandler_SubmitExport_MalformedFilter(t *testing.T) {
	handler := newTestExportHandler(newMemoryJobRepository())

	body := bytes.NewBufferString(`{"filters":{"$where":"1"}}`)
	req := httptest.NewRequest(http.MethodPost, "/api/export", body)
	w := httptest.NewRecorder()

	handler.SubmitExport(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", w.Code)
	}
}

func TestExportHandler_SubmitExport_InvalidJSON(t *testing.T) {
	handler := newTestExportHandler(newMemoryJobRepository())

	body := bytes.NewBufferString(`{not json`)
	req := httptest.NewRequest(http.MethodPost, "/api/export", body)
	w := httptest.NewRecorder()

	handler.SubmitExport(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", w.Code)
	}
}

func TestExportHandler_GetStatus_NotFound(t *testing.T) {
	handler := newTestExportHandler(newMemoryJobRepository())

	req := httptest.NewRequest(http.MethodGet, "/api/export/unknown-id/status", nil)
	req = mux.SetURLVars(req, map[string]string{"jobId": "unknown-id"})
	w := httptest.NewRecorder()

	handler.GetStatus(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", w.Code)
	}

	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["status"] != "notfound" {
		t.Errorf("expected status notfound, got %q", resp["status"])
	}
}

func TestExportHandler_GetStatus_CompletedJob(t *testing.T) {
	repo := newMemoryJobRepository()
	url := "http://storage.local/survey-exports/exports/surveys_1.xlsx"
	repo.jobs["job-1"] = &models.ExportJob{
		ID:       "job-1",
		Status:   models.StatusCompleted,
		Progress: 100,
		Result:   &models.ExportResult{DownloadURL: url, TotalRows: 9},
	}
	handler := newTestExportHandler(repo)

	req := httptest.NewRequest(http.MethodGet, "/api/export/job-1/status", nil)
	req = mux.SetURLVars(req, map[string]string{"jobId": "job-1"})
	w := httptest.NewRecorder()

	handler.GetStatus(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	var resp struct {
		Status      string  `json:"status"`
		Progress    int     `json:"progress"`
		DownloadURL *string `json:"downloadUrl"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Status != "completed" {
		t.Errorf("expected status completed, got %q", resp.Status)
	}
	if resp.Progress != 100 {
		t.Errorf("expected progress 100, got %d", resp.Progress)
	}
	if resp.DownloadURL == nil || *resp.DownloadURL != url {
		t.Errorf("expected download url %q, got %v", url, resp.DownloadURL)
	}
}

// fakeEventSource hands out a canned subscription
type fakeEventSource struct {
	sub   *fakeSubscription
	jobID string
}

func (f *fakeEventSource) Subscribe(ctx context.Context, jobID string) events.Subscription {
	f.jobID = jobID
	return f.sub
}

type fakeSubscription struct {
	events chan events.Event
	closed bool
}

func (f *fakeSubscription) Events() <-chan events.Event { return f.events }

func (f *fakeSubscription) Close() error {
	f.closed = true
	return nil
}

func newStreamHandler(source *fakeEventSource) *ExportHandler {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	m := metrics.NewMetrics()
	svc := service.NewExportService(newMemoryJobRepository(), service.NewRateLimiter(100), m, logger, 2)
	return NewExportHandler(svc, source, m, logger)
}

func streamRequest(jobID string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/export/"+jobID+"/stream", nil)
	return mux.SetURLVars(req, map[string]string{"jobId": jobID})
}

func TestExportHandler_Stream_EndsOnCompletedEvent(t *testing.T) {
	sub := &fakeSubscription{events: make(chan events.Event, 3)}
	sub.events <- events.Event{JobID: "job-1", Type: events.TypeProgress, Progress: 42}
	sub.events <- events.Event{
		JobID: "job-1",
		Type:  events.TypeCompleted,
		Result: &models.ExportResult{
			DownloadURL: "http://storage.local/survey-exports/exports/surveys_1.xlsx",
			TotalRows:   3,
		},
	}
	// Queued after the terminal event; must never reach the client
	sub.events <- events.Event{JobID: "job-1", Type: events.TypeProgress, Progress: 99}

	source := &fakeEventSource{sub: sub}
	handler := newStreamHandler(source)

	w := httptest.NewRecorder()
	handler.Stream(w, streamRequest("job-1"))

	if source.jobID != "job-1" {
		t.Errorf("expected subscription for job-1, got %q", source.jobID)
	}
	if !sub.closed {
		t.Error("expected subscription to be closed")
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("expected text/event-stream, got %q", ct)
	}

	want := "event: progress\ndata: {\"progress\":42}\n\n" +
		"event: completed\ndata: {\"downloadUrl\":\"http://storage.local/survey-exports/exports/surveys_1.xlsx\",\"totalRows\":3}\n\n"
	if w.Body.String() != want {
		t.Errorf("expected frames %q, got %q", want, w.Body.String())
	}
}

func TestExportHandler_Stream_EndsOnFailedEvent(t *testing.T) {
	sub := &fakeSubscription{events: make(chan events.Event, 1)}
	sub.events <- events.Event{JobID: "job-1", Type: events.TypeFailed, Error: "upload failed"}

	source := &fakeEventSource{sub: sub}
	handler := newStreamHandler(source)

	w := httptest.NewRecorder()
	handler.Stream(w, streamRequest("job-1"))

	if !sub.closed {
		t.Error("expected subscription to be closed")
	}

	want := "event: failed\ndata: {\"error\":\"upload failed\"}\n\n"
	if w.Body.String() != want {
		t.Errorf("expected frame %q, got %q", want, w.Body.String())
	}
}

func TestExportHandler_Stream_EndsWhenSubscriptionCloses(t *testing.T) {
	sub := &fakeSubscription{events: make(chan events.Event)}
	close(sub.events)

	source := &fakeEventSource{sub: sub}
	handler := newStreamHandler(source)

	w := httptest.NewRecorder()
	handler.Stream(w, streamRequest("job-1"))

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}
	if w.Body.Len() != 0 {
		t.Errorf("expected no frames, got %q", w.Body.String())
	}
}

func TestWriteEventFrame(t *testing.T) {
	w := httptest.NewRecorder()
	if err := writeEventFrame(w, events.Event{
		JobID:    "job-1",
		Type:     events.TypeProgress,
		Progress: 42,
	}); err != nil {
		t.Fatalf("failed to write frame: %v", err)
	}

	want := "event: progress\ndata: {\"progress\":42}\n\n"
	if w.Body.String() != want {
		t.Errorf("expected frame %q, got %q", want, w.Body.String())
	}

	w = httptest.NewRecorder()
	if err := writeEventFrame(w, events.Event{
		JobID: "job-1",
		Type:  events.TypeFailed,
		Error: "upload failed",
	}); err != nil {
		t.Fatalf("failed to write frame: %v", err)
	}

	want = "event: failed\ndata: {\"error\":\"upload failed\"}\n\n"
	if w.Body.String() != want {
		t.Errorf("expected frame %q, got %q", want, w.Body.String())
	}
}

func TestExportHandler_GetStatus_ActiveJobHasNullURL(t *testing.T) {
	repo := newMemoryJobRepository()
	repo.jobs["job-1"] = &models.ExportJob{
		ID:       "job-1",
		Status:   models.StatusActive,
		Progress: 37,
	}
	handler := newTestExportHandler(repo)

	req := httptest.NewRequest(http.MethodGet, "/api/export/job-1/status", nil)
	req = mux.SetURLVars(req, map[string]string{"jobId": "job-1"})
	w := httptest.NewRecorder()

	handler.GetStatus(w, req)

	var resp map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["status"] != "active" {
		t.Errorf("expected status active, got %v", resp["status"])
	}
	if url, exists := resp["downloadUrl"]; !exists || url != nil {
		t.Errorf("expected downloadUrl to be null, got %v", url)
	}
}
