package services

import (
	"errors"
	"fmt"
)

// Gateway and streamer errors.
var (
	ErrNotFound      = errors.New("file not found")
	ErrDeleteFailed  = errors.New("delete failed")
	ErrPathTraversal = errors.New("path escapes download directory")
	ErrEmptyTarget   = errors.New("url is required")
	ErrUnknownSource = errors.New("unknown source")
)

// Job runner errors, matched with errors.Is against a *JobError.
var (
	ErrToolTimeout      = errors.New("tool timed out")
	ErrToolFailure      = errors.New("tool failed")
	ErrNoOutputProduced = errors.New("no output produced")
)

// ErrorKind names a failure class that callers must be able to tell apart.
type ErrorKind string

const (
	KindToolTimeout      ErrorKind = "ToolTimeout"
	KindToolFailure      ErrorKind = "ToolFailure"
	KindNoOutputProduced ErrorKind = "NoOutputProduced"
)

// JobError describes why a fetch job did not succeed.
type JobError struct {
	Kind       ErrorKind
	Diagnostic string // captured tool output, possibly truncated
	Err        error
}

func (e *JobError) Error() string {
	msg := string(e.Kind)
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *JobError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match a JobError against the sentinel for its kind.
func (e *JobError) Is(target error) bool {
	switch target {
	case ErrToolTimeout:
		return e.Kind == KindToolTimeout
	case ErrToolFailure:
		return e.Kind == KindToolFailure
	case ErrNoOutputProduced:
		return e.Kind == KindNoOutputProduced
	}
	return false
}
