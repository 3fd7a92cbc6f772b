package nodeodm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/andresuchdata/hydra-workflows/internal/domain"
	"github.com/andresuchdata/hydra-workflows/internal/metrics"
	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
)

// AwaitOptions tunes a single AwaitCompletion call. Zero values fall back to
// the client's configuration.
type AwaitOptions struct {
	Timeout      time.Duration
	PollInterval time.Duration
	Listener     ProgressListener
}

// AwaitCompletion polls the node until the job reaches a terminal state.
//
// The job is updated in place: status, progress and last error mirror the
// node, and Output grows by the lines read past the current cursor. A failed
// or canceled job yields a *domain.JobError carrying the full output. When the
// timeout elapses domain.ErrJobTimeout is returned and the remote task is left
// running.
func (c *Client) AwaitCompletion(ctx context.Context, job *domain.Job, opts AwaitOptions) (*domain.Job, error) {
	if job == nil || job.ID == "" {
		return nil, errors.New("nodeodm: job id is required")
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = c.timeout
	}
	interval := opts.PollInterval
	if interval <= 0 {
		interval = c.pollInterval
	}

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	lastStatus := job.Status
	lastProgress := job.Progress
	first := true

	for {
		lines, err := c.poll(waitCtx, job)
		if err != nil {
			return job, c.waitError(ctx, waitCtx, job, timeout, err)
		}

		if opts.Listener != nil && (first || len(lines) > 0 || job.Status != lastStatus || job.Progress != lastProgress) {
			notify(ctx, opts.Listener, ProgressUpdate{
				JobID:    job.ID,
				Status:   job.Status,
				Progress: job.Progress,
				Lines:    lines,
			})
		}
		first = false
		lastStatus, lastProgress = job.Status, job.Progress

		if job.Status.Terminal() {
			break
		}

		select {
		case <-waitCtx.Done():
			return job, c.waitError(ctx, waitCtx, job, timeout, waitCtx.Err())
		case <-ticker.C:
		}
	}

	metrics.JobsFinished.WithLabelValues(job.Status.String()).Inc()
	logEvent := log.Info()
	if job.Status != domain.JobStatusCompleted {
		logEvent = log.Warn().Str("last_error", job.LastError)
	}
	logEvent.
		Str("job_id", job.ID).
		Str("status", job.Status.String()).
		Int("output_lines", len(job.Output)).
		Msg("task reached terminal state")

	switch job.Status {
	case domain.JobStatusFailed, domain.JobStatusCanceled:
		output := make([]string, len(job.Output))
		copy(output, job.Output)
		return job, &domain.JobError{
			JobID:     job.ID,
			Status:    job.Status,
			LastError: job.LastError,
			Output:    output,
		}
	}
	return job, nil
}

// poll refreshes the job from the node and returns console lines past the
// cursor. Info is read before output so lines emitted up to a terminal state
// are captured in the same poll.
func (c *Client) poll(ctx context.Context, job *domain.Job) ([]string, error) {
	var info *taskInfo
	err := c.retry(ctx, job.ID, func() error {
		var err error
		info, err = c.taskInfo(ctx, job.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if err := applyInfo(job, info); err != nil {
		return nil, err
	}

	cursor := job.OutputCursor()
	var lines []string
	err = c.retry(ctx, job.ID, func() error {
		var err error
		lines, err = c.taskOutput(ctx, job.ID, cursor)
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, nil
	}

	job.Output = append(job.Output, lines...)
	delivered := make([]string, len(lines))
	copy(delivered, lines)
	return delivered, nil
}

// retry runs op with exponential backoff while it fails with a transient
// node error. Any other error is returned immediately.
func (c *Client) retry(ctx context.Context, jobID string, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retryInterval
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.pollRetries)), ctx)
	return backoff.RetryNotify(func() error {
		err := op()
		if err == nil {
			return nil
		}
		if errors.Is(err, domain.ErrNodeUnreachable) {
			return err
		}
		return backoff.Permanent(err)
	}, policy, func(err error, next time.Duration) {
		metrics.PollErrors.Inc()
		log.Warn().Err(err).Str("job_id", jobID).Dur("retry_in", next).Msg("poll failed, retrying")
	})
}

// waitError classifies why polling stopped: caller cancellation is returned
// as is, expiry of the wait budget becomes ErrJobTimeout.
func (c *Client) waitError(parent, waitCtx context.Context, job *domain.Job, timeout time.Duration, err error) error {
	if parent.Err() != nil {
		return fmt.Errorf("nodeodm: await %s: %w", job.ID, parent.Err())
	}
	if errors.Is(waitCtx.Err(), context.DeadlineExceeded) {
		log.Warn().
			Str("job_id", job.ID).
			Dur("timeout", timeout).
			Str("status", job.Status.String()).
			Msg("gave up waiting for task, it keeps running on the node")
		return fmt.Errorf("nodeodm: job %s after %s: %w", job.ID, timeout, domain.ErrJobTimeout)
	}
	return err
}
