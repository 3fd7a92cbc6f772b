package nodeodm

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/andresuchdata/hydra-workflows/internal/domain"
	"github.com/andresuchdata/hydra-workflows/internal/testsupport"
)

type recordingListener struct {
	mu      sync.Mutex
	updates []ProgressUpdate
}

func (r *recordingListener) OnProgress(_ context.Context, u ProgressUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, u)
	return nil
}

func (r *recordingListener) lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, u := range r.updates {
		out = append(out, u.Lines...)
	}
	return out
}

func TestAwaitCompletionSucceeds(t *testing.T) {
	node := testsupport.NewFakeNode(t, "task-1",
		testsupport.NodeStep{Code: 10, Lines: []string{"queued"}},
		testsupport.NodeStep{Code: 20, Progress: 50, Lines: []string{"running opensfm", "running mvs"}},
		testsupport.NodeStep{Code: 40, Progress: 100, Lines: []string{"done"}},
	)
	client := newTestClient(t, node.URL())
	listener := &recordingListener{}

	job, err := client.AwaitCompletion(context.Background(), &domain.Job{ID: "task-1"}, AwaitOptions{Listener: listener})
	if err != nil {
		t.Fatalf("AwaitCompletion returned error: %v", err)
	}
	if job.Status != domain.JobStatusCompleted || job.Progress != 100 {
		t.Fatalf("unexpected final job %+v", job)
	}
	want := []string{"queued", "running opensfm", "running mvs", "done"}
	if !reflect.DeepEqual(job.Output, want) {
		t.Fatalf("unexpected output %v", job.Output)
	}
	if got := listener.lines(); !reflect.DeepEqual(got, want) {
		t.Fatalf("listener lines %v, want %v", got, want)
	}
}

func TestAwaitCompletionCursorNeverRewinds(t *testing.T) {
	node := testsupport.NewFakeNode(t, "task-1",
		testsupport.NodeStep{Code: 20, Progress: 10, Lines: []string{"a", "b"}},
		testsupport.NodeStep{Code: 20, Progress: 20},
		testsupport.NodeStep{Code: 20, Progress: 30, Lines: []string{"c"}},
		testsupport.NodeStep{Code: 40, Lines: []string{"d", "e"}},
	)
	client := newTestClient(t, node.URL())

	if _, err := client.AwaitCompletion(context.Background(), &domain.Job{ID: "task-1"}, AwaitOptions{}); err != nil {
		t.Fatalf("AwaitCompletion returned error: %v", err)
	}
	_, cursors := node.Stats()
	want := []int{0, 2, 2, 3}
	if !reflect.DeepEqual(cursors, want) {
		t.Fatalf("cursors %v, want %v", cursors, want)
	}
}

func TestAwaitCompletionFailedJob(t *testing.T) {
	node := testsupport.NewFakeNode(t, "task-1",
		testsupport.NodeStep{Code: 20, Lines: []string{"starting"}},
		testsupport.NodeStep{Code: 30, Error: "Not enough overlap", Lines: []string{"error: reconstruction failed"}},
	)
	client := newTestClient(t, node.URL())

	job, err := client.AwaitCompletion(context.Background(), &domain.Job{ID: "task-1"}, AwaitOptions{})
	if !errors.Is(err, domain.ErrJobFailed) {
		t.Fatalf("expected ErrJobFailed, got %v", err)
	}
	var jobErr *domain.JobError
	if !errors.As(err, &jobErr) {
		t.Fatalf("expected *JobError, got %T", err)
	}
	if jobErr.LastError != "Not enough overlap" {
		t.Fatalf("unexpected last error %q", jobErr.LastError)
	}
	if !reflect.DeepEqual(jobErr.Output, []string{"starting", "error: reconstruction failed"}) {
		t.Fatalf("unexpected captured output %v", jobErr.Output)
	}
	if !strings.Contains(jobErr.ConsoleOutput(), "reconstruction failed") {
		t.Fatalf("console output missing failure line: %q", jobErr.ConsoleOutput())
	}
	if job.Status != domain.JobStatusFailed {
		t.Fatalf("unexpected job status %s", job.Status)
	}
}

func TestAwaitCompletionCanceledJob(t *testing.T) {
	node := testsupport.NewFakeNode(t, "task-1", testsupport.NodeStep{Code: 50})
	client := newTestClient(t, node.URL())

	_, err := client.AwaitCompletion(context.Background(), &domain.Job{ID: "task-1"}, AwaitOptions{})
	if !errors.Is(err, domain.ErrJobCanceled) {
		t.Fatalf("expected ErrJobCanceled, got %v", err)
	}
}

func TestAwaitCompletionSurvivesPanickingListener(t *testing.T) {
	node := testsupport.NewFakeNode(t, "task-1",
		testsupport.NodeStep{Code: 20, Lines: []string{"one"}},
		testsupport.NodeStep{Code: 40, Lines: []string{"two"}},
	)
	client := newTestClient(t, node.URL())
	recorder := &recordingListener{}
	panicking := ProgressFunc(func(context.Context, ProgressUpdate) error {
		panic("listener exploded")
	})
	failing := ProgressFunc(func(context.Context, ProgressUpdate) error {
		return errors.New("cache down")
	})

	job, err := client.AwaitCompletion(context.Background(), &domain.Job{ID: "task-1"}, AwaitOptions{
		Listener: Listeners(panicking, failing, recorder),
	})
	if err != nil {
		t.Fatalf("AwaitCompletion returned error: %v", err)
	}
	if job.Status != domain.JobStatusCompleted {
		t.Fatalf("unexpected status %s", job.Status)
	}
	if got := recorder.lines(); !reflect.DeepEqual(got, []string{"one", "two"}) {
		t.Fatalf("recorder saw %v", got)
	}
}

func TestAwaitCompletionTimesOutWithoutCanceling(t *testing.T) {
	node := testsupport.NewFakeNode(t, "task-1", testsupport.NodeStep{Code: 20, Progress: 5})
	client := newTestClient(t, node.URL())

	job, err := client.AwaitCompletion(context.Background(), &domain.Job{ID: "task-1"}, AwaitOptions{
		Timeout:      50 * time.Millisecond,
		PollInterval: 5 * time.Millisecond,
	})
	if !errors.Is(err, domain.ErrJobTimeout) {
		t.Fatalf("expected ErrJobTimeout, got %v", err)
	}
	if job.Status != domain.JobStatusRunning {
		t.Fatalf("expected job to stay running, got %s", job.Status)
	}
	if got := node.Canceled(); len(got) != 0 {
		t.Fatalf("timeout must not cancel the task, canceled %v", got)
	}
}

func TestAwaitCompletionHonorsCallerCancel(t *testing.T) {
	node := testsupport.NewFakeNode(t, "task-1", testsupport.NodeStep{Code: 20})
	client := newTestClient(t, node.URL())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := client.AwaitCompletion(ctx, &domain.Job{ID: "task-1"}, AwaitOptions{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if errors.Is(err, domain.ErrJobTimeout) {
		t.Fatal("caller cancellation must not be reported as timeout")
	}
}

func TestAwaitCompletionRetriesTransientErrors(t *testing.T) {
	node := testsupport.NewFakeNode(t, "task-1", testsupport.NodeStep{Code: 40})
	node.InfoFailures = 2
	client := newTestClient(t, node.URL())

	if _, err := client.AwaitCompletion(context.Background(), &domain.Job{ID: "task-1"}, AwaitOptions{}); err != nil {
		t.Fatalf("expected retries to recover, got %v", err)
	}
}

func TestAwaitCompletionGivesUpWhenNodeStaysDown(t *testing.T) {
	node := testsupport.NewFakeNode(t, "task-1", testsupport.NodeStep{Code: 40})
	node.InfoFailures = 100
	client := newTestClient(t, node.URL())

	_, err := client.AwaitCompletion(context.Background(), &domain.Job{ID: "task-1"}, AwaitOptions{})
	if !errors.Is(err, domain.ErrNodeUnreachable) {
		t.Fatalf("expected ErrNodeUnreachable, got %v", err)
	}
}
