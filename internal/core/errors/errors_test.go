package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestMalformedRecordError_Message(t *testing.T) {
	tests := []struct {
		name string
		err  *MalformedRecordError
		want string
	}{
		{
			name: "with review id",
			err:  &MalformedRecordError{Row: 3, Field: "score", ReviewID: 42, Reason: "not numeric: abc"},
			want: `malformed record: row 3, review 42, field "score": not numeric: abc`,
		},
		{
			name: "without review id",
			err:  &MalformedRecordError{Row: 7, Field: "review_id", Reason: "missing required field"},
			want: `malformed record: row 7, field "review_id": missing required field`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMalformedBatchError_SingleRecord(t *testing.T) {
	rec := &MalformedRecordError{Row: 1, Field: "score", ReviewID: 5, Reason: "missing required field"}
	batch := &MalformedBatchError{Records: []*MalformedRecordError{rec}}

	if got := batch.Error(); got != rec.Error() {
		t.Errorf("Error() = %q, want single record message %q", got, rec.Error())
	}
}

func TestMalformedBatchError_MultipleRecords(t *testing.T) {
	batch := &MalformedBatchError{Records: []*MalformedRecordError{
		{Row: 1, Field: "score", ReviewID: 5, Reason: "missing required field"},
		{Row: 4, Field: "member_id", Reason: "not an integer: x"},
	}}

	msg := batch.Error()

	if !strings.HasPrefix(msg, "2 malformed records") {
		t.Errorf("Error() = %q, want count prefix", msg)
	}

	if got := strings.Count(msg, "\n\t"); got != 2 {
		t.Errorf("Error() lists %d records, want 2", got)
	}
}

func TestMalformedBatchError_Unwrap(t *testing.T) {
	batch := &MalformedBatchError{Records: []*MalformedRecordError{
		{Row: 1, Field: "score", ReviewID: 5, Reason: "missing required field"},
	}}

	wrapped := fmt.Errorf("strict mode: %w", batch)

	var rec *MalformedRecordError
	if !errors.As(wrapped, &rec) {
		t.Fatal("errors.As() did not find a record error through the batch")
	}

	if rec.ReviewID != 5 {
		t.Errorf("ReviewID = %d, want 5", rec.ReviewID)
	}

	var found *MalformedBatchError
	if !errors.As(wrapped, &found) {
		t.Error("errors.As() did not find the batch error itself")
	}
}

func TestSchemaError_Message(t *testing.T) {
	err := &SchemaError{ReviewID: 9, Reason: "score NaN is not finite"}

	want := "schema error: review 9: score NaN is not finite"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestSentinelWrapping(t *testing.T) {
	wrapped := fmt.Errorf("sheet All Reviews: %w", ErrMissingHeader)

	if !Is(wrapped, ErrMissingHeader) {
		t.Error("Is() did not match the wrapped sentinel")
	}

	if Is(wrapped, ErrNoRecords) {
		t.Error("Is() matched an unrelated sentinel")
	}
}
