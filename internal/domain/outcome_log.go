package domain

import (
	"time"

	"github.com/google/uuid"
)

// OutcomeStatus is the terminal status recorded for a processing run.
type OutcomeStatus string

const (
	OutcomeStatusSuccess OutcomeStatus = "SUCCESS"
	OutcomeStatusFailed  OutcomeStatus = "FAILED"
)

// Valid reports whether s is a known outcome status.
func (s OutcomeStatus) Valid() bool {
	switch s {
	case OutcomeStatusSuccess, OutcomeStatusFailed:
		return true
	default:
		return false
	}
}

// ErrorKind classifies why a run failed.
type ErrorKind string

const (
	ErrorKindNone            ErrorKind = "NONE"
	ErrorKindUnsupportedType ErrorKind = "UNSUPPORTED_TYPE"
	ErrorKindEmpty           ErrorKind = "EMPTY"
	// ErrorKindUnreadable keeps the wire value already stored by existing deployments.
	ErrorKindUnreadable     ErrorKind = "PANDAS_RELATED"
	ErrorKindInvalidColumns ErrorKind = "INVALID_COLUMNS"
	ErrorKindInvalidData    ErrorKind = "INVALID_DATA"
	ErrorKindOther          ErrorKind = "OTHER"
)

// Valid reports whether k is a known error kind.
func (k ErrorKind) Valid() bool {
	switch k {
	case ErrorKindNone, ErrorKindUnsupportedType, ErrorKindEmpty, ErrorKindUnreadable,
		ErrorKindInvalidColumns, ErrorKindInvalidData, ErrorKindOther:
		return true
	default:
		return false
	}
}

// OutcomeLog is the immutable record describing how one processing run ended.
type OutcomeLog struct {
	UUID      uuid.UUID     `json:"uuid"`
	CreatedAt time.Time     `json:"created_date"`
	FileName  string        `json:"filename"`
	Status    OutcomeStatus `json:"status"`
	Message   string        `json:"log"`
	ErrorKind ErrorKind     `json:"error_type"`
}

// NewSuccessLog builds the record written when a run completes cleanly.
func NewSuccessLog(id uuid.UUID, fileName string) OutcomeLog {
	return OutcomeLog{
		UUID:      id,
		CreatedAt: time.Now().UTC(),
		FileName:  fileName,
		Status:    OutcomeStatusSuccess,
		Message:   "",
		ErrorKind: ErrorKindNone,
	}
}

// NewFailureLog copies a failure descriptor into a record.
func NewFailureLog(id uuid.UUID, fileName string, failure Failure) OutcomeLog {
	return OutcomeLog{
		UUID:      id,
		CreatedAt: time.Now().UTC(),
		FileName:  fileName,
		Status:    OutcomeStatusFailed,
		Message:   failure.Message,
		ErrorKind: failure.Kind,
	}
}

// Succeeded reports whether the record describes a successful run.
func (l OutcomeLog) Succeeded() bool {
	return l.Status == OutcomeStatusSuccess
}
