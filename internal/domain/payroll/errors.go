package payroll

import "errors"

var (
	ErrSheetNotFound  = errors.New("payroll sheet not found")
	ErrRecordNotFound = errors.New("payroll record not found")
	ErrInvalidStatus  = errors.New("status must be one of active, inactive, paid")
	ErrInvalidInput   = errors.New("invalid payroll input")

	ErrImportRunNotFound = errors.New("import run not found")
	ErrQueueUnavailable  = errors.New("import queue is not accepting work")

	ErrBinaryFile     = errors.New("file is not delimited text")
	ErrTooFewLines    = errors.New("file must contain a header row and one data row")
	ErrMissingColumns = errors.New("required columns missing")
	ErrNoValidRows    = errors.New("no valid rows found")
)

// ImportError is a structural import failure. It aborts the whole import and
// unwraps to one of the Err* sentinels above.
type ImportError struct {
	Err     error
	Message string
	Missing []Field
}

func (e *ImportError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Err.Error()
}

func (e *ImportError) Unwrap() error {
	return e.Err
}

// ValidationError lists field problems found while validating manual input.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	return ErrInvalidInput.Error()
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}
