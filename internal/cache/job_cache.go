package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/andresuchdata/hydra-workflows/internal/config"
	"github.com/andresuchdata/hydra-workflows/internal/domain"
	"github.com/andresuchdata/hydra-workflows/internal/nodeodm"
	"github.com/redis/go-redis/v9"
)

const (
	jobKeyPrefix     = "hydra:job:"
	jobScanBatchSize = 100
	// TailLines is how many recent console lines a snapshot keeps.
	TailLines = 50
)

// JobSnapshot is the last observed state of a job on the processing node.
type JobSnapshot struct {
	JobID       string           `json:"job_id"`
	Status      domain.JobStatus `json:"status"`
	Progress    float64          `json:"progress"`
	OutputLines int              `json:"output_lines"`
	Tail        []string         `json:"tail"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// Apply folds a progress update into the snapshot.
func (s *JobSnapshot) Apply(u nodeodm.ProgressUpdate, now time.Time) {
	s.JobID = u.JobID
	s.Status = u.Status
	s.Progress = u.Progress
	s.OutputLines += len(u.Lines)
	s.Tail = append(s.Tail, u.Lines...)
	if len(s.Tail) > TailLines {
		s.Tail = append([]string(nil), s.Tail[len(s.Tail)-TailLines:]...)
	}
	s.UpdatedAt = now
}

// JobCache stores the last known state of node jobs.
type JobCache interface {
	GetJob(ctx context.Context, jobID string) (*JobSnapshot, bool, error)
	SetJob(ctx context.Context, snapshot *JobSnapshot) error
	InvalidateAll(ctx context.Context) error
}

type redisJobCache struct {
	client *redis.Client
	ttl    time.Duration
}

type noopJobCache struct{}

// NewJobCache returns a redis-backed cache, or a no-op cache when caching is
// disabled.
func NewJobCache(cfg config.CacheConfig) (JobCache, error) {
	if !cfg.Enabled {
		return &noopJobCache{}, nil
	}

	client, ttl, err := newRedisClient(cfg)
	if err != nil {
		return nil, err
	}

	return &redisJobCache{
		client: client,
		ttl:    ttl,
	}, nil
}

func NewNoopJobCache() JobCache {
	return &noopJobCache{}
}

func (c *redisJobCache) GetJob(ctx context.Context, jobID string) (*JobSnapshot, bool, error) {
	payload, err := c.client.Get(ctx, jobKey(jobID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get failed: %w", err)
	}

	var snap JobSnapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return nil, false, fmt.Errorf("decode job cache: %w", err)
	}
	return &snap, true, nil
}

func (c *redisJobCache) SetJob(ctx context.Context, snapshot *JobSnapshot) error {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encode job cache: %w", err)
	}
	if err := c.client.Set(ctx, jobKey(snapshot.JobID), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (c *redisJobCache) InvalidateAll(ctx context.Context) error {
	return unlinkPrefix(ctx, c.client, jobKeyPrefix, jobScanBatchSize)
}

func (n *noopJobCache) GetJob(context.Context, string) (*JobSnapshot, bool, error) {
	return nil, false, nil
}

func (n *noopJobCache) SetJob(context.Context, *JobSnapshot) error {
	return nil
}

func (n *noopJobCache) InvalidateAll(context.Context) error {
	return nil
}

func jobKey(jobID string) string {
	return jobKeyPrefix + jobID
}

// Listener keeps the cached snapshot of an awaited job current. The
// snapshot is kept in memory between updates, so the cache is only written.
func Listener(c JobCache) nodeodm.ProgressListener {
	snap := &JobSnapshot{}
	return nodeodm.ProgressFunc(func(ctx context.Context, u nodeodm.ProgressUpdate) error {
		snap.Apply(u, time.Now().UTC())
		return c.SetJob(ctx, snap)
	})
}
