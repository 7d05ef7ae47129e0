package router

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cuongbtq/report-export/internal/api/dto"
	"github.com/cuongbtq/report-export/internal/api/handler"
	"github.com/cuongbtq/report-export/internal/artifact"
	"github.com/cuongbtq/report-export/internal/domain"
	"github.com/cuongbtq/report-export/shared/logger"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []*domain.ExportMessage
	err  error
}

func (p *fakePublisher) Publish(_ context.Context, msg *domain.ExportMessage) error {
	if p.err != nil {
		return p.err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, msg)
	return nil
}

type fakeStatusStore struct {
	mu       sync.Mutex
	statuses map[string]domain.JobStatus
	history  []string
}

func newFakeStatusStore() *fakeStatusStore {
	return &fakeStatusStore{statuses: make(map[string]domain.JobStatus)}
}

func (s *fakeStatusStore) SetJobStatus(_ context.Context, status *domain.JobStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[status.JobID] = *status
	s.history = append(s.history, status.Status)
	return nil
}

func (s *fakeStatusStore) GetJobStatus(_ context.Context, jobID string) (*domain.JobStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	status, ok := s.statuses[jobID]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	return &status, nil
}

type testServer struct {
	engine    *gin.Engine
	publisher *fakePublisher
	status    *fakeStatusStore
	store     *artifact.Store
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	s := &testServer{
		publisher: &fakePublisher{},
		status:    newFakeStatusStore(),
		store:     artifact.NewStore(t.TempDir(), logger.Discard()),
	}
	s.engine = SetupRouter(&handler.Dependencies{
		Logger:    logger.Discard(),
		Publisher: s.publisher,
		Status:    s.status,
		Artifacts: s.store,
	})
	return s
}

func (s *testServer) do(method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
}

func TestCreateExport(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodPost, "/api/v1/exports", `{
		"export_type": "category",
		"requested_by": "ops@example.com",
		"filters": {"parentCategoryId": "null"},
		"columns": ["Name"],
		"sort": {"key": "Name", "direction": "desc"}
	}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp dto.CreateExportResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, domain.JobStatusPending, resp.Status)
	_, err := uuid.Parse(resp.JobID)
	require.NoError(t, err)

	require.Len(t, s.publisher.msgs, 1)
	msg := s.publisher.msgs[0]
	assert.Equal(t, resp.JobID, msg.JobID)
	assert.Equal(t, "category", msg.ExportType)
	assert.Equal(t, map[string]string{"parentCategoryId": "null"}, msg.Filters)
	assert.Equal(t, &domain.Sort{Key: "Name", Direction: "desc"}, msg.Sort)
	assert.False(t, msg.RequestedAt.IsZero())

	assert.Equal(t, []string{domain.JobStatusPending}, s.status.history)
}

func TestCreateExport_BadRequests(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "not json", body: `{nope`},
		{name: "missing export type", body: `{"requested_by": "ops"}`},
		{name: "blank export type", body: `{"export_type": "   "}`},
		{name: "unsupported format", body: `{"export_type": "category", "format": "pdf"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t)

			rec := s.do(http.MethodPost, "/api/v1/exports", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Empty(t, s.publisher.msgs)
			assert.Empty(t, s.status.history)
		})
	}
}

func TestCreateExport_QueueUnavailable(t *testing.T) {
	s := newTestServer(t)
	s.publisher.err = &domain.PublishError{Queue: "export_category_queue", Err: errors.New("connection refused")}

	rec := s.do(http.MethodPost, "/api/v1/exports", `{"export_type": "category"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, []string{domain.JobStatusPending, domain.JobStatusFailed}, s.status.history)
}

func TestGetExportStatus(t *testing.T) {
	s := newTestServer(t)
	jobID := uuid.NewString()
	require.NoError(t, s.status.SetJobStatus(context.Background(), &domain.JobStatus{
		JobID:      jobID,
		ExportType: "category",
		Status:     domain.JobStatusCompleted,
		Artifact:   "category-20261017093000.xlsx",
		UpdatedAt:  time.Date(2026, 10, 17, 9, 30, 0, 0, time.UTC),
	}))

	rec := s.do(http.MethodGet, "/api/v1/exports/"+jobID, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp dto.JobStatusDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, domain.JobStatusCompleted, resp.Status)
	assert.Equal(t, "category-20261017093000.xlsx", resp.Artifact)
	assert.Equal(t, "2026-10-17T09:30:00Z", resp.UpdatedAt)

	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/api/v1/exports/"+uuid.NewString(), "").Code)
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, "/api/v1/exports/not-a-uuid", "").Code)
}

func TestGetExportStatus_TrackingDisabled(t *testing.T) {
	engine := SetupRouter(&handler.Dependencies{
		Logger:    logger.Discard(),
		Publisher: &fakePublisher{},
		Artifacts: artifact.NewStore(t.TempDir(), logger.Discard()),
	})

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/exports/"+uuid.NewString(), nil))
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestListAndDownloadArtifacts(t *testing.T) {
	s := newTestServer(t)

	base := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)
	names := []string{"category-20261017090000.xlsx", "category-20261017090100.xlsx", "category-20261017090200.csv"}
	for i, name := range names {
		path := filepath.Join(s.store.Dir(), name)
		require.NoError(t, os.WriteFile(path, []byte(name), 0o644))
		mod := base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, os.Chtimes(path, mod, mod))
	}

	rec := s.do(http.MethodGet, "/api/v1/exports/files?page_size=2", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var page1 dto.ListArtifactsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page1))
	require.Len(t, page1.Artifacts, 2)
	assert.Equal(t, names[2], page1.Artifacts[0].Name)
	assert.Equal(t, names[1], page1.Artifacts[1].Name)
	require.NotEmpty(t, page1.NextCursor)

	rec = s.do(http.MethodGet, "/api/v1/exports/files?page_size=2&cursor="+url.QueryEscape(page1.NextCursor), "")
	require.Equal(t, http.StatusOK, rec.Code)

	var page2 dto.ListArtifactsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page2))
	require.Len(t, page2.Artifacts, 1)
	assert.Equal(t, names[0], page2.Artifacts[0].Name)
	assert.Empty(t, page2.NextCursor)

	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, "/api/v1/exports/files?cursor=bm9waXBl", "").Code)

	rec = s.do(http.MethodGet, "/api/v1/exports/files/"+names[0], "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, names[0], rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Disposition"), names[0])

	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/api/v1/exports/files/missing.xlsx", "").Code)
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, "/api/v1/exports/files/.hidden", "").Code)
}

func TestPublishTest(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodPost, "/api/v1/exports/test", "")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, s.publisher.msgs, 1)
	assert.Equal(t, handler.TestExportType, s.publisher.msgs[0].ExportType)

	s.publisher.err = &domain.PublishError{Queue: "q", Err: errors.New("closed")}
	assert.Equal(t, http.StatusServiceUnavailable, s.do(http.MethodPost, "/api/v1/exports/test", "").Code)
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodOptions, "/api/v1/exports", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
