package tasks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rpattn/sheetpipe/internal/config"
	"github.com/rpattn/sheetpipe/internal/logs"
	"github.com/rpattn/sheetpipe/internal/pipeline"
	"github.com/rpattn/sheetpipe/internal/repository"
	"github.com/rpattn/sheetpipe/internal/testutil"
)

const mimeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// manualOrchestrator holds jobs until runAll so tests control timing.
type manualOrchestrator struct {
	mu       sync.Mutex
	full     bool
	pending  map[uuid.UUID]Job
	statuses map[uuid.UUID]Status
}

var _ Orchestrator = (*manualOrchestrator)(nil)

func newManualOrchestrator() *manualOrchestrator {
	return &manualOrchestrator{pending: map[uuid.UUID]Job{}, statuses: map[uuid.UUID]Status{}}
}

func (o *manualOrchestrator) Submit(_ context.Context, id uuid.UUID, job Job) (Status, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.full {
		return "", ErrQueueFull
	}
	o.pending[id] = job
	o.statuses[id] = StatusPending
	return StatusPending, nil
}

func (o *manualOrchestrator) Status(_ context.Context, id uuid.UUID) (Status, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if status, ok := o.statuses[id]; ok {
		return status, nil
	}
	return StatusPending, nil
}

func (o *manualOrchestrator) runAll() {
	o.mu.Lock()
	jobs := o.pending
	o.pending = map[uuid.UUID]Job{}
	o.mu.Unlock()

	for id, job := range jobs {
		status := StatusSucceeded
		if err := job(context.Background()); err != nil {
			status = StatusFailed
		}
		o.mu.Lock()
		o.statuses[id] = status
		o.mu.Unlock()
	}
}

type fixture struct {
	orchestrator *manualOrchestrator
	driver       *pipeline.Driver
	server       http.Handler
}

func newFixture(t *testing.T, maxUpload int64) *fixture {
	cfg := config.ExcelConfig{
		FolderPath:  filepath.Join(t.TempDir(), "out"),
		MimeXLSX:    mimeXLSX,
		MimeXLS:     "application/vnd.ms-excel",
		ColumnDate:  "date",
		ColumnSales: "sales",
	}
	log := zaptest.NewLogger(t).Sugar()
	store := repository.NewMemoryOutcomeLogRepository()
	driver := pipeline.NewDriver(cfg, store, pipeline.WithLogger(log))
	orchestrator := newManualOrchestrator()

	mux := http.NewServeMux()
	NewHTTPHandler(orchestrator, driver, logs.NewService(store, log), maxUpload, log).Register(mux)
	return &fixture{orchestrator: orchestrator, driver: driver, server: mux}
}

func uploadRequest(t *testing.T, taskID, contentType string, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if taskID != "" {
		require.NoError(t, mw.WriteField("task_id", taskID))
	}
	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", `form-data; name="upload_file"; filename="sales.xlsx"`)
	header.Set("Content-Type", contentType)
	part, err := mw.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/task", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func (f *fixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) get(target string) *httptest.ResponseRecorder {
	return f.do(httptest.NewRequest(http.MethodGet, target, nil))
}

func decodeStatus(t *testing.T, rec *httptest.ResponseRecorder) statusResponse {
	t.Helper()
	var body statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func validWorkbook(t *testing.T) []byte {
	return testutil.XLSX(t,
		[]any{"date", "sales"},
		[]any{"2024-01-01", 10},
		[]any{"2024-01-02", nil},
		[]any{"2024-01-03", 30},
	)
}

func TestSubmitAndDownload(t *testing.T) {
	f := newFixture(t, 0)
	id := uuid.New()

	rec := f.do(uploadRequest(t, id.String(), mimeXLSX, validWorkbook(t)))
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	accepted := decodeStatus(t, rec)
	assert.Equal(t, id, accepted.TaskID)
	assert.Equal(t, StatusPending, accepted.Status)

	pending := decodeStatus(t, f.get("/task/"+id.String()))
	assert.Equal(t, StatusPending, pending.Status)
	assert.Contains(t, pending.Message, "not complete")

	f.orchestrator.runAll()

	status := decodeStatus(t, f.get("/task/check_status/"+id.String()))
	assert.Equal(t, StatusSucceeded, status.Status)

	download := f.get("/task/" + id.String())
	require.Equal(t, http.StatusOK, download.Code)
	assert.Equal(t, mimeXLSX, download.Header().Get("Content-Type"))
	assert.Contains(t, download.Header().Get("Content-Disposition"), id.String()+".xlsx")

	onDisk, err := os.ReadFile(f.driver.OutputPath(id))
	require.NoError(t, err)
	assert.Equal(t, onDisk, download.Body.Bytes())
}

func TestValidationFailureIsExplained(t *testing.T) {
	f := newFixture(t, 0)
	id := uuid.New()

	rec := f.do(uploadRequest(t, id.String(), "text/csv", []byte("date,sales")))
	require.Equal(t, http.StatusAccepted, rec.Code)
	f.orchestrator.runAll()

	// queue-level success: the run itself completed and logged the rejection
	body := decodeStatus(t, f.get("/task/"+id.String()))
	assert.Equal(t, StatusSucceeded, body.Status)
	assert.Contains(t, body.Message, "UNSUPPORTED_TYPE")
}

func TestSucceededButFileMissing(t *testing.T) {
	f := newFixture(t, 0)
	id := uuid.New()

	f.do(uploadRequest(t, id.String(), mimeXLSX, validWorkbook(t)))
	f.orchestrator.runAll()
	require.NoError(t, os.Remove(f.driver.OutputPath(id)))

	body := decodeStatus(t, f.get("/task/"+id.String()))
	assert.Equal(t, StatusSucceeded, body.Status)
	assert.Contains(t, body.Message, "output file is missing")
}

func TestSubmitTaskIDFromHeaderOrGenerated(t *testing.T) {
	f := newFixture(t, 0)

	headerID := uuid.New()
	req := uploadRequest(t, "", mimeXLSX, validWorkbook(t))
	req.Header.Set("X-Task-ID", headerID.String())
	assert.Equal(t, headerID, decodeStatus(t, f.do(req)).TaskID)

	generated := decodeStatus(t, f.do(uploadRequest(t, "", mimeXLSX, validWorkbook(t))))
	assert.NotEqual(t, uuid.Nil, generated.TaskID)
	assert.NotEqual(t, headerID, generated.TaskID)
}

func TestSubmitRejectsMalformedTaskID(t *testing.T) {
	f := newFixture(t, 0)
	rec := f.do(uploadRequest(t, "task-1", mimeXLSX, validWorkbook(t)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitRequiresUploadField(t *testing.T) {
	f := newFixture(t, 0)
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("task_id", uuid.NewString()))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/task", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	assert.Equal(t, http.StatusBadRequest, f.do(req).Code)
}

func TestSubmitQueueFull(t *testing.T) {
	f := newFixture(t, 0)
	f.orchestrator.full = true
	rec := f.do(uploadRequest(t, "", mimeXLSX, validWorkbook(t)))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSubmitTooLarge(t *testing.T) {
	f := newFixture(t, 64)
	rec := f.do(uploadRequest(t, "", mimeXLSX, bytes.Repeat([]byte("x"), 4096)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestStatusRejectsMalformedID(t *testing.T) {
	f := newFixture(t, 0)
	assert.Equal(t, http.StatusBadRequest, f.get("/task/check_status/nope").Code)
	assert.Equal(t, http.StatusBadRequest, f.get("/task/nope").Code)
}

func TestUnknownTaskIsPending(t *testing.T) {
	f := newFixture(t, 0)
	body := decodeStatus(t, f.get(fmt.Sprintf("/task/check_status/%s", uuid.New())))
	assert.Equal(t, StatusPending, body.Status)
}

func TestPoolEndToEnd(t *testing.T) {
	cfg := config.ExcelConfig{
		FolderPath: t.TempDir(), MimeXLSX: mimeXLSX, MimeXLS: "application/vnd.ms-excel",
		ColumnDate: "date", ColumnSales: "sales",
	}
	log := zaptest.NewLogger(t).Sugar()
	store := repository.NewMemoryOutcomeLogRepository()
	pool := newPool(t, 2, 8, 0)
	pool.Start()

	mux := http.NewServeMux()
	NewHTTPHandler(pool, pipeline.NewDriver(cfg, store), logs.NewService(store, log), 0, log).Register(mux)

	id := uuid.New()
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, uploadRequest(t, id.String(), mimeXLSX, validWorkbook(t)))
	require.Equal(t, http.StatusAccepted, rec.Code)

	waitForStatus(t, pool, id, StatusSucceeded)
	_, err := store.Get(context.Background(), id)
	require.NoError(t, err)
}
