package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap/zaptest"

	"github.com/rpattn/sheetpipe/internal/config"
	"github.com/rpattn/sheetpipe/internal/domain"
	"github.com/rpattn/sheetpipe/internal/ingestion"
	"github.com/rpattn/sheetpipe/internal/repository"
	"github.com/rpattn/sheetpipe/internal/testutil"
)

const mimeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func excelConfig(t *testing.T) config.ExcelConfig {
	return config.ExcelConfig{
		FolderPath:  filepath.Join(t.TempDir(), "out"),
		MimeXLSX:    mimeXLSX,
		MimeXLS:     "application/vnd.ms-excel",
		ColumnDate:  "date",
		ColumnSales: "sales",
	}
}

// stubStore counts Create calls and can fail individual steps.
type stubStore struct {
	*repository.MemoryOutcomeLogRepository
	mu        sync.Mutex
	creates   int
	beginErr  error
	createErr error
	commitErr error
}

var _ repository.OutcomeLogRepository = (*stubStore)(nil)

func newStubStore() *stubStore {
	return &stubStore{MemoryOutcomeLogRepository: repository.NewMemoryOutcomeLogRepository()}
}

func (s *stubStore) Begin(ctx context.Context) (repository.OutcomeLogTx, error) {
	if s.beginErr != nil {
		return nil, s.beginErr
	}
	tx, err := s.MemoryOutcomeLogRepository.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &stubTx{OutcomeLogTx: tx, store: s}, nil
}

type stubTx struct {
	repository.OutcomeLogTx
	store *stubStore
}

func (t *stubTx) Create(ctx context.Context, record domain.OutcomeLog) (domain.OutcomeLog, error) {
	t.store.mu.Lock()
	t.store.creates++
	t.store.mu.Unlock()
	if t.store.createErr != nil {
		return domain.OutcomeLog{}, t.store.createErr
	}
	return t.OutcomeLogTx.Create(ctx, record)
}

func (t *stubTx) Commit(ctx context.Context) error {
	if t.store.commitErr != nil {
		return t.store.commitErr
	}
	return t.OutcomeLogTx.Commit(ctx)
}

type panicReader struct{}

func (panicReader) Read([]byte) (domain.Table, error) {
	panic("reader exploded")
}

type countingReader struct{ calls int }

func (r *countingReader) Read(data []byte) (domain.Table, error) {
	r.calls++
	return ingestion.ExcelReader{}.Read(data)
}

type harness struct {
	cfg    config.ExcelConfig
	store  *stubStore
	driver *Driver
	states []domain.RunState
}

func newHarness(t *testing.T, opts ...Option) *harness {
	h := &harness{cfg: excelConfig(t), store: newStubStore()}
	opts = append([]Option{
		WithLogger(zaptest.NewLogger(t).Sugar()),
		WithStateObserver(func(_ uuid.UUID, state domain.RunState) {
			h.states = append(h.states, state)
		}),
	}, opts...)
	h.driver = NewDriver(h.cfg, h.store, opts...)
	return h
}

func (h *harness) logs(t *testing.T) []domain.OutcomeLog {
	t.Helper()
	logs, err := h.store.List(context.Background(), repository.SortAscending)
	require.NoError(t, err)
	return logs
}

func goodWorkbook(t *testing.T, last float64) []byte {
	return testutil.XLSX(t,
		[]any{"date", "sales"},
		[]any{"2024-01-03", nil},
		[]any{"2024-01-01", 10},
		[]any{"2024-01-02", nil},
		[]any{"2024-01-04", last},
	)
}

func submission(data []byte) Submission {
	return Submission{TaskID: uuid.New(), FileName: "sales.xlsx", ContentType: mimeXLSX, Data: data}
}

func TestProcessSuccess(t *testing.T) {
	h := newHarness(t)
	sub := submission(goodWorkbook(t, 40))

	record, err := h.driver.Process(context.Background(), sub)
	require.NoError(t, err)

	assert.Equal(t, domain.OutcomeStatusSuccess, record.Status)
	assert.Equal(t, domain.ErrorKindNone, record.ErrorKind)
	assert.Empty(t, record.Message)
	assert.Equal(t, sub.TaskID, record.UUID)
	assert.Equal(t, []domain.RunState{
		domain.RunStateReceived, domain.RunStateValidating, domain.RunStateTransforming, domain.RunStateLogged,
	}, h.states)
	assert.Equal(t, 1, h.store.creates)
	require.Len(t, h.logs(t), 1)

	wb, err := excelize.OpenFile(h.driver.OutputPath(sub.TaskID))
	require.NoError(t, err)
	defer wb.Close()
	sheet := wb.GetSheetName(0)
	raw := excelize.Options{RawCellValue: true}
	for cell, want := range map[string]string{"B2": "10", "B3": "20", "B4": "30", "B5": "40"} {
		got, err := wb.GetCellValue(sheet, cell, raw)
		require.NoError(t, err)
		assert.Equal(t, want, got, cell)
	}

	entries, err := os.ReadDir(h.cfg.FolderPath)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestProcessUnsupportedTypeNeverParses(t *testing.T) {
	reader := &countingReader{}
	h := newHarness(t, WithReader(reader))
	sub := submission(goodWorkbook(t, 40))
	sub.ContentType = "text/csv"

	record, err := h.driver.Process(context.Background(), sub)
	require.NoError(t, err)

	assert.Equal(t, domain.ErrorKindUnsupportedType, record.ErrorKind)
	assert.Equal(t, domain.OutcomeStatusFailed, record.Status)
	assert.Zero(t, reader.calls)
	assert.Equal(t, []domain.RunState{
		domain.RunStateReceived, domain.RunStateValidating, domain.RunStateLogged,
	}, h.states)
	_, statErr := os.Stat(h.driver.OutputPath(sub.TaskID))
	assert.True(t, os.IsNotExist(statErr))
}

func TestProcessColumnMismatchStopsBeforeRowChecks(t *testing.T) {
	h := newHarness(t)
	data := testutil.XLSX(t, []any{"Date", "sales"}, []any{"garbage", "garbage"})

	record, err := h.driver.Process(context.Background(), submission(data))
	require.NoError(t, err)
	assert.Equal(t, domain.ErrorKindInvalidColumns, record.ErrorKind)
	assert.Contains(t, record.Message, `"date"`)
}

func TestProcessReportsFirstBadRow(t *testing.T) {
	h := newHarness(t)
	data := testutil.XLSX(t,
		[]any{"date", "sales"},
		[]any{"2024-01-01", 1},
		[]any{"2024-01-02", 2},
		[]any{"2024-1-3", 3},
		[]any{"bad", 4},
	)

	record, err := h.driver.Process(context.Background(), submission(data))
	require.NoError(t, err)
	assert.Equal(t, domain.ErrorKindInvalidData, record.ErrorKind)
	assert.Contains(t, record.Message, "row 3")
	assert.Equal(t, 1, h.store.creates)
}

func TestProcessPanicIsRecordedAsOther(t *testing.T) {
	h := newHarness(t, WithReader(panicReader{}))
	sub := submission([]byte("x"))

	record, err := h.driver.Process(context.Background(), sub)
	require.Error(t, err)

	assert.Equal(t, domain.ErrorKindOther, record.ErrorKind)
	assert.Contains(t, record.Message, "reader exploded")
	assert.Contains(t, record.Message, "driver_test.go")
	assert.Equal(t, 1, h.store.creates)

	stored, getErr := h.store.Get(context.Background(), sub.TaskID)
	require.NoError(t, getErr)
	assert.Equal(t, domain.ErrorKindOther, stored.ErrorKind)
}

func TestProcessWriteFailureIsRecordedAsOther(t *testing.T) {
	h := newHarness(t)
	// the output directory path is occupied by a regular file
	require.NoError(t, os.WriteFile(h.cfg.FolderPath, []byte("not a dir"), 0o600))

	record, err := h.driver.Process(context.Background(), submission(goodWorkbook(t, 40)))
	require.Error(t, err)
	assert.Equal(t, domain.ErrorKindOther, record.ErrorKind)
	assert.Contains(t, record.Message, "ensure output directory")
	assert.Len(t, h.logs(t), 1)
}

func TestProcessExpiredContextStillLogs(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	record, err := h.driver.Process(ctx, submission(goodWorkbook(t, 40)))
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, domain.ErrorKindOther, record.ErrorKind)
	assert.Len(t, h.logs(t), 1)
}

func TestProcessResubmissionAppendsAndOverwrites(t *testing.T) {
	h := newHarness(t)
	sub := submission(goodWorkbook(t, 40))

	_, err := h.driver.Process(context.Background(), sub)
	require.NoError(t, err)
	sub.Data = goodWorkbook(t, 70)
	_, err = h.driver.Process(context.Background(), sub)
	require.NoError(t, err)

	logs := h.logs(t)
	require.Len(t, logs, 2)
	assert.Equal(t, sub.TaskID, logs[0].UUID)
	assert.Equal(t, sub.TaskID, logs[1].UUID)

	wb, err := excelize.OpenFile(h.driver.OutputPath(sub.TaskID))
	require.NoError(t, err)
	defer wb.Close()
	last, err := wb.GetCellValue(wb.GetSheetName(0), "B5", excelize.Options{RawCellValue: true})
	require.NoError(t, err)
	assert.Equal(t, "70", last)
}

func TestProcessLogFailureRevertsOutput(t *testing.T) {
	cases := map[string]func(*stubStore){
		"create": func(s *stubStore) { s.createErr = errors.New("insert refused") },
		"commit": func(s *stubStore) { s.commitErr = errors.New("commit refused") },
	}
	for name, breakStore := range cases {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t)
			breakStore(h.store)
			sub := submission(goodWorkbook(t, 40))

			_, err := h.driver.Process(context.Background(), sub)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "refused")
			assert.Equal(t, 1, h.store.creates)
			assert.Empty(t, h.logs(t))

			entries, err := os.ReadDir(h.cfg.FolderPath)
			require.NoError(t, err)
			assert.Empty(t, entries)
		})
	}
}

func TestProcessFailedResubmissionKeepsEarlierOutput(t *testing.T) {
	h := newHarness(t)
	sub := submission(goodWorkbook(t, 40))
	_, err := h.driver.Process(context.Background(), sub)
	require.NoError(t, err)

	h.store.commitErr = errors.New("commit refused")
	sub.Data = goodWorkbook(t, 70)
	_, err = h.driver.Process(context.Background(), sub)
	require.Error(t, err)

	logs := h.logs(t)
	require.Len(t, logs, 1)
	assert.Equal(t, domain.OutcomeStatusSuccess, logs[0].Status)

	wb, err := excelize.OpenFile(h.driver.OutputPath(sub.TaskID))
	require.NoError(t, err)
	defer wb.Close()
	last, err := wb.GetCellValue(wb.GetSheetName(0), "B5", excelize.Options{RawCellValue: true})
	require.NoError(t, err)
	assert.Equal(t, "40", last)

	entries, err := os.ReadDir(h.cfg.FolderPath)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestProcessStoreUnavailableDiscardsStagedFile(t *testing.T) {
	h := newHarness(t)
	h.store.beginErr = errors.New("connection refused")

	_, err := h.driver.Process(context.Background(), submission(goodWorkbook(t, 40)))
	require.Error(t, err)
	assert.Zero(t, h.store.creates)

	entries, err := os.ReadDir(h.cfg.FolderPath)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
