package nodeodm

import (
	"context"
	"fmt"

	"github.com/andresuchdata/hydra-workflows/internal/domain"
	"github.com/rs/zerolog/log"
)

// ProgressUpdate is delivered after every poll that observed a change.
// Lines holds only console lines not delivered before.
type ProgressUpdate struct {
	JobID    string
	Status   domain.JobStatus
	Progress float64
	Lines    []string
}

// ProgressListener observes a job while it is awaited. Errors and panics
// raised by a listener are logged and never interrupt polling.
type ProgressListener interface {
	OnProgress(ctx context.Context, update ProgressUpdate) error
}

// ProgressFunc adapts a function to ProgressListener.
type ProgressFunc func(ctx context.Context, update ProgressUpdate) error

func (f ProgressFunc) OnProgress(ctx context.Context, update ProgressUpdate) error {
	return f(ctx, update)
}

type multiListener []ProgressListener

// Listeners fans an update out to each listener in order. A failing listener
// does not prevent the others from being notified.
func Listeners(listeners ...ProgressListener) ProgressListener {
	filtered := make(multiListener, 0, len(listeners))
	for _, l := range listeners {
		if l != nil {
			filtered = append(filtered, l)
		}
	}
	return filtered
}

func (m multiListener) OnProgress(ctx context.Context, update ProgressUpdate) error {
	for _, l := range m {
		notify(ctx, l, update)
	}
	return nil
}

// LogListener writes status changes and console lines to the logger.
func LogListener(streamProgress, streamConsole bool) ProgressListener {
	var lastStatus domain.JobStatus
	lastProgress := -1.0
	return ProgressFunc(func(_ context.Context, u ProgressUpdate) error {
		if streamProgress && (u.Status != lastStatus || u.Progress != lastProgress) {
			log.Info().
				Str("job_id", u.JobID).
				Str("status", u.Status.String()).
				Msgf("ODM status: %s, progress: %.1f%%", u.Status, u.Progress)
			lastStatus, lastProgress = u.Status, u.Progress
		}
		if streamConsole {
			for _, line := range u.Lines {
				log.Info().Str("job_id", u.JobID).Msg("ODM: " + line)
			}
		}
		return nil
	})
}

func notify(ctx context.Context, l ProgressListener, update ProgressUpdate) {
	defer func() {
		if r := recover(); r != nil {
			log.Warn().
				Str("job_id", update.JobID).
				Err(fmt.Errorf("panic: %v", r)).
				Msg("progress listener panicked")
		}
	}()
	if err := l.OnProgress(ctx, update); err != nil {
		log.Warn().Err(err).Str("job_id", update.JobID).Msg("progress listener failed")
	}
}
