package domain

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// RunStatus is the state of one pipeline run.
type RunStatus string

const (
	RunStatusPending           RunStatus = "pending"
	RunStatusRunning           RunStatus = "running"
	RunStatusCompleted         RunStatus = "completed"
	RunStatusFailed            RunStatus = "failed"
	RunStatusNoImages          RunStatus = "no_images"
	RunStatusNoSupportedImages RunStatus = "no_supported_images"
)

// Finished reports whether the run will not change anymore.
func (s RunStatus) Finished() bool {
	return s != RunStatusPending && s != RunStatusRunning
}

// Flow names.
const (
	FlowImagery = "imagery"
	FlowIngest  = "ingest"
)

// Run tracks one execution of a flow.
type Run struct {
	ID           string     `json:"id" db:"id"`
	Flow         string     `json:"flow" db:"flow"`
	Bucket       string     `json:"bucket" db:"bucket"`
	Prefix       string     `json:"prefix" db:"prefix"`
	Status       RunStatus  `json:"status" db:"status"`
	JobID        string     `json:"job_id,omitempty" db:"job_id"`
	ErrorMessage string     `json:"error_message,omitempty" db:"error_message"`
	Summary      RunSummary `json:"summary,omitempty" db:"summary"`
	StartedAt    time.Time  `json:"started_at" db:"started_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty" db:"completed_at"`
}

// RunSummary is the JSON result document stored with a run.
type RunSummary []byte

func (s RunSummary) MarshalJSON() ([]byte, error) {
	if len(s) == 0 {
		return []byte("null"), nil
	}
	return s, nil
}

func (s *RunSummary) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*s = nil
		return nil
	}
	*s = append((*s)[:0], b...)
	return nil
}

// Scan copies the driver's bytes so the summary outlives the row.
func (s *RunSummary) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*s = nil
	case []byte:
		*s = append(RunSummary(nil), v...)
	case string:
		*s = RunSummary(v)
	default:
		return fmt.Errorf("run summary: unsupported type %T", src)
	}
	return nil
}

func (s RunSummary) Value() (driver.Value, error) {
	if len(s) == 0 {
		return nil, nil
	}
	return []byte(s), nil
}
