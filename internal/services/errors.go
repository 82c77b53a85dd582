package services

import (
	"errors"
	"strings"
)

var (
	ErrExternalTool  = errors.New("external tool error")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrTimeout       = errors.New("timeout")
	ErrTransient     = errors.New("transient failure")
)

// StageError is a classified failure of one pipeline stage operation.
// errors.Is matches both its Marker and the underlying Err.
type StageError struct {
	Marker    error
	Stage     string
	Operation string
	Message   string
	Err       error
}

func (e *StageError) Error() string {
	var b strings.Builder
	b.WriteString(e.Marker.Error())
	b.WriteString(": ")
	b.WriteString(e.detail())
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *StageError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Marker}
	}
	return []error{e.Marker, e.Err}
}

func (e *StageError) detail() string {
	parts := make([]string, 0, 3)
	for _, part := range []string{e.Stage, e.Operation, e.Message} {
		if part = strings.TrimSpace(part); part != "" {
			parts = append(parts, part)
		}
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}

// Wrap tags err with one of the sentinel markers above plus stage context.
// A nil marker is treated as ErrTransient; err may be nil.
func Wrap(marker error, stage, operation, message string, err error) error {
	if marker == nil {
		marker = ErrTransient
	}
	return &StageError{Marker: marker, Stage: stage, Operation: operation, Message: message, Err: err}
}

// ErrorHint maps a stage error to the operator hint attached to failure logs.
func ErrorHint(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrConfiguration):
		return "check the [jobs.commands] and [remote] sections of the config"
	case errors.Is(err, ErrValidation):
		return "the collaborator returned an incomplete result; inspect its output"
	case errors.Is(err, ErrTimeout):
		return "raise jobs.job_timeout_seconds or check the collaborator for hangs"
	case errors.Is(err, ErrExternalTool):
		return "run the stage command by hand to reproduce"
	default:
		return "retry the stage; see daemon logs for details"
	}
}

// Retryable reports whether the failure is worth resubmitting without changes.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, ErrValidation) && !errors.Is(err, ErrConfiguration)
}
