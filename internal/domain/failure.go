package domain

import "fmt"

// Failure is returned by a validator that rejects its input. A nil *Failure means the check passed.
type Failure struct {
	Status  OutcomeStatus `json:"status"`
	Message string        `json:"message"`
	Kind    ErrorKind     `json:"error_type"`
}

// NewFailure builds a failed descriptor of the given kind.
func NewFailure(kind ErrorKind, format string, args ...any) *Failure {
	return &Failure{
		Status:  OutcomeStatusFailed,
		Message: fmt.Sprintf(format, args...),
		Kind:    kind,
	}
}

func (f *Failure) Error() string {
	if f == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}
