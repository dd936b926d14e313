package services

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrReportNotFound  = errors.New("report not found")
	ErrUnauthorized    = errors.New("unauthorized to modify this resource")
	ErrUserNotFound    = errors.New("user not found")
	ErrMessageNotFound = errors.New("message not found")
	ErrSelfMessage     = errors.New("cannot send a message to yourself")
	ErrImageRejected   = errors.New("image rejected: violates community guidelines")
)

// ValidationError carries one message per offending field.
type ValidationError struct {
	Fields map[string]string
}

func NewValidationError(fields map[string]string) *ValidationError {
	return &ValidationError{Fields: fields}
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Stage names a step of the report pipeline.
type Stage string

const (
	StageValidating Stage = "validating"
	StageUploading  Stage = "uploading"
	StagePersisting Stage = "persisting"
)

// PipelineError wraps the error that stopped a report submission.
type PipelineError struct {
	Stage Stage
	Err   error
	// Compensated is the number of uploads rolled back.
	Compensated int
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("report pipeline failed while %s: %v", e.Stage, e.Err)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}
