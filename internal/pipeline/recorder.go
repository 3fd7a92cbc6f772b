package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/andresuchdata/hydra-workflows/internal/domain"
	"github.com/andresuchdata/hydra-workflows/internal/metrics"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// RunRecorder persists the lifecycle of pipeline runs.
type RunRecorder interface {
	CreateRun(ctx context.Context, run *domain.Run) error
	UpdateRun(ctx context.Context, run *domain.Run) error
}

// RunStore is a RunRecorder that can also read runs back.
type RunStore interface {
	RunRecorder
	GetRun(ctx context.Context, id string) (*domain.Run, error)
	ListRuns(ctx context.Context, limit int) ([]domain.Run, error)
}

// NoopRecorder drops every run.
type NoopRecorder struct{}

func (NoopRecorder) CreateRun(context.Context, *domain.Run) error { return nil }
func (NoopRecorder) UpdateRun(context.Context, *domain.Run) error { return nil }

// MemoryRunStore keeps runs in process memory.
type MemoryRunStore struct {
	mu   sync.RWMutex
	runs map[string]domain.Run
}

func NewMemoryRunStore() *MemoryRunStore {
	return &MemoryRunStore{runs: map[string]domain.Run{}}
}

func (s *MemoryRunStore) CreateRun(_ context.Context, run *domain.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[run.ID]; ok {
		return fmt.Errorf("run %s already exists", run.ID)
	}
	s.runs[run.ID] = *run
	return nil
}

func (s *MemoryRunStore) UpdateRun(_ context.Context, run *domain.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[run.ID]; !ok {
		return fmt.Errorf("run %s: %w", run.ID, domain.ErrNotFound)
	}
	s.runs[run.ID] = *run
	return nil
}

func (s *MemoryRunStore) GetRun(_ context.Context, id string) (*domain.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return nil, fmt.Errorf("run %s: %w", id, domain.ErrNotFound)
	}
	return &run, nil
}

// ListRuns returns the most recently started runs first.
func (s *MemoryRunStore) ListRuns(_ context.Context, limit int) ([]domain.Run, error) {
	s.mu.RLock()
	runs := make([]domain.Run, 0, len(s.runs))
	for _, run := range s.runs {
		runs = append(runs, run)
	}
	s.mu.RUnlock()

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

// tracker wraps one run record. Recorder failures are logged and never fail
// the run itself.
type tracker struct {
	recorder RunRecorder
	run      *domain.Run
}

func startRun(ctx context.Context, recorder RunRecorder, id, flow, bucket, prefix string) *tracker {
	if id == "" {
		id = uuid.NewString()
	}
	t := &tracker{
		recorder: recorder,
		run: &domain.Run{
			ID:        id,
			Flow:      flow,
			Bucket:    bucket,
			Prefix:    prefix,
			Status:    domain.RunStatusRunning,
			StartedAt: time.Now().UTC(),
		},
	}
	if err := recorder.CreateRun(ctx, t.run); err != nil {
		log.Warn().Err(err).Str("run_id", id).Msg("failed to record run start")
	}
	return t
}

func (t *tracker) ID() string { return t.run.ID }

func (t *tracker) setJob(ctx context.Context, jobID string) {
	t.run.JobID = jobID
	t.update(ctx)
}

// finish stores the final status and summary. err is recorded as the run's
// error message when set.
func (t *tracker) finish(ctx context.Context, status domain.RunStatus, summary any, err error) {
	now := time.Now().UTC()
	t.run.Status = status
	t.run.CompletedAt = &now
	if err != nil {
		t.run.ErrorMessage = err.Error()
	}
	if summary != nil {
		raw, mErr := json.Marshal(summary)
		if mErr != nil {
			log.Warn().Err(mErr).Str("run_id", t.run.ID).Msg("failed to encode run summary")
		} else {
			t.run.Summary = raw
		}
	}
	metrics.RunsFinished.WithLabelValues(t.run.Flow, string(status)).Inc()
	t.update(context.WithoutCancel(ctx))
}

func (t *tracker) update(ctx context.Context) {
	if err := t.recorder.UpdateRun(ctx, t.run); err != nil {
		log.Warn().Err(err).Str("run_id", t.run.ID).Msg("failed to record run update")
	}
}
