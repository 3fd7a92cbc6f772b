package domain

import (
	"errors"
	"testing"
)

func TestJobStatusFromCode(t *testing.T) {
	for code, want := range map[int]JobStatus{
		10: JobStatusQueued,
		20: JobStatusRunning,
		30: JobStatusFailed,
		40: JobStatusCompleted,
		50: JobStatusCanceled,
	} {
		got, ok := JobStatusFromCode(code)
		if !ok || got != want {
			t.Fatalf("JobStatusFromCode(%d) = %s, %v", code, got, ok)
		}
	}
	if _, ok := JobStatusFromCode(60); ok {
		t.Fatal("unknown code must not map to a status")
	}
}

func TestParseJobStatus(t *testing.T) {
	if s, ok := ParseJobStatus(" Cancelled "); !ok || s != JobStatusCanceled {
		t.Fatalf("unexpected parse %s %v", s, ok)
	}
	if _, ok := ParseJobStatus("paused"); ok {
		t.Fatal("unknown label must not parse")
	}
}

func TestTerminal(t *testing.T) {
	if JobStatusQueued.Terminal() || JobStatusRunning.Terminal() {
		t.Fatal("queued and running are not terminal")
	}
	if !JobStatusCompleted.Terminal() || !JobStatusFailed.Terminal() || !JobStatusCanceled.Terminal() {
		t.Fatal("completed, failed and canceled are terminal")
	}
}

func TestJobErrorUnwrap(t *testing.T) {
	failed := &JobError{JobID: "j1", Status: JobStatusFailed, LastError: "boom", Output: []string{"a", "b"}}
	if !errors.Is(failed, ErrJobFailed) || errors.Is(failed, ErrJobCanceled) {
		t.Fatal("failed job must unwrap to ErrJobFailed only")
	}
	if failed.Error() != "job j1 failed: boom" || failed.ConsoleOutput() != "a\nb" {
		t.Fatalf("unexpected rendering %q %q", failed.Error(), failed.ConsoleOutput())
	}
	canceled := &JobError{JobID: "j2", Status: JobStatusCanceled}
	if !errors.Is(canceled, ErrJobCanceled) {
		t.Fatal("canceled job must unwrap to ErrJobCanceled")
	}
}
