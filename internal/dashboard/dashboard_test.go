package dashboard

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wardenhq/warden/internal/model"
	"github.com/wardenhq/warden/internal/store"
)

func newTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	dir := t.TempDir()
	return NewServer(dir, "127.0.0.1:0", log.New(io.Discard, "", 0)), dir
}

func TestDocHandler_ServesStatus(t *testing.T) {
	s, dir := newTestServer(t)

	status := &model.LoopStatus{
		SchemaVersion: 1,
		FileType:      "loop_status",
		Iteration:     7,
		Status:        model.RunStatusRunning,
		PendingCount:  3,
	}
	require.NoError(t, store.AtomicWrite(filepath.Join(dir, "state", store.StatusDoc), status))

	h := s.docHandler(store.StatusDoc, func() any { return &model.LoopStatus{} })
	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var got model.LoopStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 7, got.Iteration)
	assert.Equal(t, 3, got.PendingCount)
}

func TestDocHandler_MissingDocument(t *testing.T) {
	s, _ := newTestServer(t)

	h := s.docHandler(store.ResourcesDoc, func() any { return &model.ResourceSnapshot{} })
	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/api/resources", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDocHandler_MethodNotAllowed(t *testing.T) {
	s, _ := newTestServer(t)

	h := s.docHandler(store.QueueDoc, func() any { return &model.QueueDocument{} })
	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodPost, "/api/queue", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
