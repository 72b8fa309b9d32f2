package domain

import "time"

// RawRecord is one data row of a review source after header mapping.
// Fields maps canonical column names to raw cell values; Row is the 1-based
// data row position in the source (header excluded), kept for error reports.
type RawRecord struct {
	Row    int
	Fields map[string]string
}

// Field returns the mapped value for a canonical column name, with ok=false
// when the source had no such column or the cell was empty.
func (r RawRecord) Field(name string) (string, bool) {
	v, ok := r.Fields[name]
	if !ok || v == "" {
		return "", false
	}

	return v, true
}

// Canonical column names used as keys in RawRecord.Fields.
const (
	FieldReviewID     = "review_id"
	FieldSubmissionID = "submission_id"
	FieldMemberID     = "member_id"
	FieldMemberName   = "member_name"
	FieldFirstName    = "first_name"
	FieldLastName     = "last_name"
	FieldScore        = "score"
	FieldScores       = "scores"
	FieldText         = "text"
	FieldDate         = "date"
	FieldTime         = "time"
	FieldDatetime     = "review_datetime"
	FieldPhdYear      = "phd_year"
	FieldTrack        = "track"
)

// Member is one row of the reviewer directory: the attributes review rows
// do not carry themselves, joined in by lowercased name.
type Member struct {
	Name    string
	Track   string
	PhdYear *int
}

// Review is one row of the canonical review table. Bias stays nil until the
// calculator runs and remains nil for reviews whose submission has fewer
// than MinGroupSize reviews; nil means "undefined" and is never conflated
// with a numeric zero.
type Review struct {
	ReviewID       int64
	SubmissionID   int64
	MemberID       int64
	MemberName     string
	PhdYear        *int
	Track          string
	Score          float64
	Bias           *float64
	ReviewLength   int
	ReviewDatetime time.Time
}

// MinGroupSize is the smallest per-submission review count for which the
// leave-one-out mean is defined; the formula divides by N-1.
const MinGroupSize = 2

// Run summarizes one pipeline invocation.
type Run struct {
	ID               string
	Source           string
	InputName        string
	StartedAt        time.Time
	FinishedAt       time.Time
	RawCount         int
	MalformedCount   int
	DuplicateCount   int
	CanonicalCount   int
	UndefinedBias    int
	UnmatchedMembers int
	Status           string
}

// Run status constants.
const (
	RunStatusRunning   = "running"
	RunStatusSucceeded = "succeeded"
	RunStatusFailed    = "failed"
)

// Review source kind constants.
const (
	SourceCSV      = "csv"
	SourceXLSX     = "xlsx"
	SourceAMQP     = "amqp"
	SourceDatabase = "database"
)
