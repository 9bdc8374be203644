package logger

// Standard field names for structured logging.
const (
	FieldTaskID     = "task_id"
	FieldFileName   = "filename"
	FieldStatus     = "status"
	FieldState      = "state"
	FieldErrorType  = "error_type"
	FieldError      = "error"
	FieldDurationMS = "duration_ms"
	FieldCount      = "count"
	FieldMethod     = "method"
	FieldPath       = "path"
	FieldAddress    = "address"
	FieldDriver     = "driver"
)
