package model

import (
	"encoding/csv"
	"errors"
	"fmt"
	"strings"
)

// ErrTooManyRows is returned when a table exceeds the configured row limit.
var ErrTooManyRows = errors.New("row limit exceeded")

// ErrEmptyTable is returned when an upload has no header row.
var ErrEmptyTable = errors.New("empty file: no header row")

// ErrRowOutOfRange is returned when a requested data row does not exist.
var ErrRowOutOfRange = errors.New("row index out of range")

// SchemaError reports required feature columns missing from a table.
type SchemaError struct {
	Missing []string
}

func (e *SchemaError) Error() string {
	quoted := make([]string, len(e.Missing))
	for i, m := range e.Missing {
		quoted[i] = fmt.Sprintf("%q", m)
	}
	return fmt.Sprintf("missing required columns: [%s]", strings.Join(quoted, ", "))
}

// InvalidFeatureError reports a feature cell that is not a finite number.
// Row is the file row number (header = 1), or 0 when unknown.
type InvalidFeatureError struct {
	Row    int
	Column string
	Value  string
	Reason string
}

func (e *InvalidFeatureError) Error() string {
	var b strings.Builder
	b.WriteString("invalid feature")
	if e.Column != "" {
		fmt.Fprintf(&b, " %q", e.Column)
	}
	if e.Row > 0 {
		fmt.Fprintf(&b, " at row %d", e.Row)
	}
	if e.Value != "" {
		fmt.Fprintf(&b, " (value %q)", e.Value)
	}
	if e.Reason != "" {
		b.WriteString(": " + e.Reason)
	}
	return b.String()
}

// ModelLoadError means the classifier artifact could not be used. It is
// fatal at startup.
type ModelLoadError struct {
	Path string
	Err  error
}

func (e *ModelLoadError) Error() string {
	return fmt.Sprintf("failed to load model %q: %v", e.Path, e.Err)
}

func (e *ModelLoadError) Unwrap() error { return e.Err }

// ReportWriteError means a report artifact could not be persisted.
type ReportWriteError struct {
	Path string
	Err  error
}

func (e *ReportWriteError) Error() string {
	return fmt.Sprintf("failed to write report %q: %v", e.Path, e.Err)
}

func (e *ReportWriteError) Unwrap() error { return e.Err }

// ProcessingError is the single failure a batch surfaces to its caller.
type ProcessingError struct {
	Err error
}

func (e *ProcessingError) Error() string {
	return "Error processing file: " + e.Err.Error()
}

func (e *ProcessingError) Unwrap() error { return e.Err }

// IsInputError reports whether err was caused by the uploaded data rather
// than by the service itself.
func IsInputError(err error) bool {
	var schemaErr *SchemaError
	var featureErr *InvalidFeatureError
	var parseErr *csv.ParseError
	return errors.As(err, &schemaErr) || errors.As(err, &featureErr) || errors.As(err, &parseErr) ||
		errors.Is(err, ErrTooManyRows) || errors.Is(err, ErrEmptyTable)
}

// VectorError locates a failure inside a batched classifier call.
type VectorError struct {
	Index int
	Err   error
}

func (e *VectorError) Error() string {
	return fmt.Sprintf("vector %d: %v", e.Index, e.Err)
}

func (e *VectorError) Unwrap() error { return e.Err }
