package repository

import (
	"time"

	"github.com/cockroachdb/errors"

	"github.com/rpattn/sheetpipe/internal/domain"
)

// prepareRecord applies insert defaults and rejects values outside the closed enums.
func prepareRecord(record domain.OutcomeLog) (domain.OutcomeLog, error) {
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	if record.ErrorKind == "" {
		record.ErrorKind = domain.ErrorKindNone
	}
	if !record.Status.Valid() {
		return domain.OutcomeLog{}, errors.Newf("invalid outcome status %q", record.Status)
	}
	if !record.ErrorKind.Valid() {
		return domain.OutcomeLog{}, errors.Newf("invalid error type %q", record.ErrorKind)
	}
	return record, nil
}
