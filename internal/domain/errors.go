package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrNodeUnreachable    = errors.New("processing node unreachable")
	ErrNodeRejected       = errors.New("processing node rejected request")
	ErrJobFailed          = errors.New("job failed")
	ErrJobCanceled        = errors.New("job canceled")
	ErrJobTimeout         = errors.New("timed out waiting for job")
	ErrJobNotCompleted    = errors.New("job has not completed")
	ErrDownloadIncomplete = errors.New("download incomplete")
	ErrUploadFailed       = errors.New("upload failed")
	ErrRegistrationFailed = errors.New("asset registration failed")
)

// JobError reports a job that reached a terminal state other than completed.
// Output holds every console line the node produced.
type JobError struct {
	JobID     string
	Status    JobStatus
	LastError string
	Output    []string
}

func (e *JobError) Error() string {
	msg := fmt.Sprintf("job %s %s", e.JobID, e.Status)
	if e.LastError != "" {
		msg += ": " + e.LastError
	}
	return msg
}

func (e *JobError) Unwrap() error {
	if e.Status == JobStatusCanceled {
		return ErrJobCanceled
	}
	return ErrJobFailed
}

// ConsoleOutput joins the captured console lines.
func (e *JobError) ConsoleOutput() string {
	return strings.Join(e.Output, "\n")
}
