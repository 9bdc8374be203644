package logs

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rpattn/sheetpipe/internal/domain"
	"github.com/rpattn/sheetpipe/internal/repository"
)

func newService(t *testing.T) *Service {
	return NewService(repository.NewMemoryOutcomeLogRepository(), zaptest.NewLogger(t).Sugar())
}

func TestParseIDDistinguishesFormatErrors(t *testing.T) {
	id := uuid.New()
	parsed, err := ParseID(" " + id.String() + " ")
	require.NoError(t, err)
	assert.Equal(t, id, parsed)

	_, err = ParseID("not-a-uuid")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidID))
	assert.False(t, errors.Is(err, repository.ErrNotFound))
}

func TestLookupFormatErrorVersusNotFound(t *testing.T) {
	svc := newService(t)

	_, err := svc.Lookup(context.Background(), "1234")
	assert.True(t, errors.Is(err, ErrInvalidID))

	_, err = svc.Lookup(context.Background(), uuid.NewString())
	assert.True(t, errors.Is(err, repository.ErrNotFound))
	assert.False(t, errors.Is(err, ErrInvalidID))
}

func TestCreateLogAppendsDuplicates(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	id := uuid.New()

	first := domain.NewSuccessLog(id, "a.xlsx")
	first.CreatedAt = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	second := domain.NewFailureLog(id, "a.xlsx", *domain.NewFailure(domain.ErrorKindEmpty, "no rows"))
	second.CreatedAt = first.CreatedAt.Add(time.Minute)

	_, err := svc.CreateLog(ctx, first)
	require.NoError(t, err)
	_, err = svc.CreateLog(ctx, second)
	require.NoError(t, err)

	all, err := svc.GetLogs(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, domain.ErrorKindEmpty, all[0].ErrorKind, "newest first by default")

	latest, err := svc.GetLog(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.ErrorKindEmpty, latest.ErrorKind)

	asc, err := svc.GetLogs(ctx, repository.SortAscending)
	require.NoError(t, err)
	assert.Equal(t, domain.ErrorKindNone, asc[0].ErrorKind)
}

func TestDeleteLogIsNoOpForUnknownID(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	id := uuid.New()

	require.NoError(t, svc.DeleteLog(ctx, id))

	_, err := svc.CreateLog(ctx, domain.NewSuccessLog(id, "a.xlsx"))
	require.NoError(t, err)
	require.NoError(t, svc.DeleteLog(ctx, id))

	_, err = svc.GetLog(ctx, id)
	assert.True(t, errors.Is(err, repository.ErrNotFound))
}
