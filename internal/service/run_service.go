package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/andresuchdata/hydra-workflows/internal/cache"
	"github.com/andresuchdata/hydra-workflows/internal/domain"
	"github.com/andresuchdata/hydra-workflows/internal/nodeodm"
	"github.com/andresuchdata/hydra-workflows/internal/pipeline"
	"github.com/rs/zerolog/log"
)

// ErrInvalidRequest marks caller input that cannot start a run.
var ErrInvalidRequest = errors.New("invalid request")

// Launcher starts flows in the background.
type Launcher interface {
	StartImagery(req pipeline.ImageryRequest) (string, error)
	StartIngest(req pipeline.IngestRequest) (string, error)
}

// NodeAPI is the part of the node client used outside of runs.
type NodeAPI interface {
	Job(ctx context.Context, id string) (*domain.Job, error)
	Cancel(ctx context.Context, job *domain.Job) error
	Info(ctx context.Context) (*nodeodm.NodeInfo, error)
}

// JobView is a job's state as served to clients.
type JobView struct {
	cache.JobSnapshot
	Source string `json:"source"`
}

type RunService struct {
	launcher Launcher
	runs     pipeline.RunStore
	jobs     cache.JobCache
	node     NodeAPI
}

func NewRunService(launcher Launcher, runs pipeline.RunStore, jobs cache.JobCache, node NodeAPI) *RunService {
	if jobs == nil {
		jobs = cache.NewNoopJobCache()
	}
	return &RunService{launcher: launcher, runs: runs, jobs: jobs, node: node}
}

func (s *RunService) StartImagery(req pipeline.ImageryRequest) (string, error) {
	if strings.TrimSpace(req.Bucket) == "" {
		return "", fmt.Errorf("%w: bucket is required", ErrInvalidRequest)
	}
	return s.launcher.StartImagery(req)
}

func (s *RunService) StartIngest(req pipeline.IngestRequest) (string, error) {
	if strings.TrimSpace(req.Bucket) == "" {
		return "", fmt.Errorf("%w: bucket is required", ErrInvalidRequest)
	}
	return s.launcher.StartIngest(req)
}

func (s *RunService) GetRun(ctx context.Context, id string) (*domain.Run, error) {
	return s.runs.GetRun(ctx, id)
}

func (s *RunService) ListRuns(ctx context.Context, limit int) ([]domain.Run, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.runs.ListRuns(ctx, limit)
}

// GetJob serves the cached snapshot of a job when there is one and asks the
// node otherwise.
func (s *RunService) GetJob(ctx context.Context, id string) (*JobView, error) {
	if snap, ok, err := s.jobs.GetJob(ctx, id); err == nil && ok {
		return &JobView{JobSnapshot: *snap, Source: "cache"}, nil
	} else if err != nil {
		log.Warn().Err(err).Str("job_id", id).Msg("job cache get failed")
	}

	job, err := s.node.Job(ctx, id)
	if errors.Is(err, domain.ErrNodeRejected) {
		return nil, fmt.Errorf("job %s: %w: %w", id, domain.ErrNotFound, err)
	}
	if err != nil {
		return nil, err
	}
	snap := cache.JobSnapshot{
		JobID:     job.ID,
		Status:    job.Status,
		Progress:  job.Progress,
		Tail:      []string{},
		UpdatedAt: time.Now().UTC(),
	}
	if job.Status.Terminal() {
		if err := s.jobs.SetJob(ctx, &snap); err != nil {
			log.Warn().Err(err).Str("job_id", id).Msg("job cache set failed")
		}
	}
	return &JobView{JobSnapshot: snap, Source: "node"}, nil
}

func (s *RunService) CancelJob(ctx context.Context, id string) error {
	return s.node.Cancel(ctx, &domain.Job{ID: id})
}

func (s *RunService) NodeInfo(ctx context.Context) (*nodeodm.NodeInfo, error) {
	return s.node.Info(ctx)
}
