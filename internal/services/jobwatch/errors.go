package jobwatch

import (
	"errors"
)

var (
	// ErrNoSession is returned by Poll when no job has been started
	ErrNoSession = errors.New("no active job session")

	// ErrClosed is returned after the reconciler has been shut down
	ErrClosed = errors.New("reconciler is closed")
)

// JobStartFailedError reports that the backend refused or failed to start a job.
// Polling never begins after this error.
type JobStartFailedError struct {
	Message string
	Err     error
}

func (e *JobStartFailedError) Error() string {
	return "failed to start job: " + e.Message
}

func (e *JobStartFailedError) Unwrap() error {
	return e.Err
}
