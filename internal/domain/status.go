package domain

import "strings"

// JobStatus is the lifecycle state of a job on the processing node.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCanceled  JobStatus = "canceled"
)

// Status codes used on the NodeODM wire protocol.
var jobStatusCodes = map[int]JobStatus{
	10: JobStatusQueued,
	20: JobStatusRunning,
	30: JobStatusFailed,
	40: JobStatusCompleted,
	50: JobStatusCanceled,
}

var jobStatusLabels = map[string]JobStatus{
	"queued":    JobStatusQueued,
	"running":   JobStatusRunning,
	"completed": JobStatusCompleted,
	"failed":    JobStatusFailed,
	"canceled":  JobStatusCanceled,
	"cancelled": JobStatusCanceled,
}

// JobStatusFromCode maps a node status code to a JobStatus.
func JobStatusFromCode(code int) (JobStatus, bool) {
	status, ok := jobStatusCodes[code]
	return status, ok
}

// ParseJobStatus returns the status for a given label (case-insensitive).
func ParseJobStatus(label string) (JobStatus, bool) {
	status, ok := jobStatusLabels[strings.ToLower(strings.TrimSpace(label))]
	return status, ok
}

// Terminal reports whether no further transitions are possible.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCanceled:
		return true
	}
	return false
}

func (s JobStatus) String() string {
	return string(s)
}
