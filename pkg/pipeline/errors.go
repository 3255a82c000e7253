package pipeline

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidJob marks input errors: bad audio path, task or intervals.
	ErrInvalidJob = errors.New("invalid job")
	ErrNoSpeech   = errors.New("no speech detected")

	errCanceled = errors.New("job canceled")
)

// JobError is a stage-aware job failure.
type JobError struct {
	Stage   string
	Message string
	Err     error
}

func (e *JobError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil || e.Err.Error() == e.Message {
		return fmt.Sprintf("%s: %s", e.Stage, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Stage, e.Message, e.Err)
}

func (e *JobError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
