// Package errors provides centralized error definitions for the application.
// Errors are organized by domain to avoid duplication and provide consistent naming.
//
// Naming conventions:
//   - Exported errors (Err*): Use for errors that callers need to check with errors.Is
//   - Typed errors (*Error): Use when callers need row or field detail via errors.As
//   - All sentinel errors should be defined as variables, not inline errors.New calls
//   - Use fmt.Errorf with %w to wrap sentinel errors with context
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Source and header errors.
var (
	// ErrNoRecords indicates a source yielded zero data rows.
	ErrNoRecords = errors.New("no records")

	// ErrMissingHeader indicates a source had no header row to map columns from.
	ErrMissingHeader = errors.New("missing header row")

	// ErrUnknownColumn indicates a mapping names a column the source does not have.
	ErrUnknownColumn = errors.New("unknown column")

	// ErrEndOfStream indicates a streaming source ended before its
	// end-of-batch marker arrived.
	ErrEndOfStream = errors.New("unexpected end of stream")
)

// Validation errors.
var (
	// ErrInvalidInput indicates invalid input was provided.
	ErrInvalidInput = errors.New("invalid input")
)

// MalformedRecordError reports a single raw row that could not be turned
// into a canonical review. Row is the 1-based data row in the source;
// ReviewID is zero when the row was too broken to carry one.
type MalformedRecordError struct {
	Row      int
	Field    string
	ReviewID int64
	Reason   string
}

func (e *MalformedRecordError) Error() string {
	if e.ReviewID != 0 {
		return fmt.Sprintf("malformed record: row %d, review %d, field %q: %s", e.Row, e.ReviewID, e.Field, e.Reason)
	}

	return fmt.Sprintf("malformed record: row %d, field %q: %s", e.Row, e.Field, e.Reason)
}

// MalformedBatchError aggregates every malformed row found in one source so
// a single pass reports all of them. It unwraps to the individual
// *MalformedRecordError values for errors.As checks.
type MalformedBatchError struct {
	Records []*MalformedRecordError
}

func (e *MalformedBatchError) Error() string {
	if len(e.Records) == 1 {
		return e.Records[0].Error()
	}

	var b strings.Builder

	fmt.Fprintf(&b, "%d malformed records", len(e.Records))

	for _, rec := range e.Records {
		b.WriteString("\n\t")
		b.WriteString(rec.Error())
	}

	return b.String()
}

// Unwrap exposes the individual record errors to errors.Is and errors.As.
func (e *MalformedBatchError) Unwrap() []error {
	errs := make([]error, len(e.Records))
	for i, rec := range e.Records {
		errs[i] = rec
	}

	return errs
}

// SchemaError reports a value that passed row-level selection but violates
// the canonical schema, such as a non-numeric score reaching the bias
// calculator.
type SchemaError struct {
	ReviewID int64
	Reason   string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema error: review %d: %s", e.ReviewID, e.Reason)
}

// Is is a convenience wrapper around errors.Is.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As is a convenience wrapper around errors.As.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
