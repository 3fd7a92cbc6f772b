package nodeodm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/andresuchdata/hydra-workflows/internal/domain"
	"github.com/andresuchdata/hydra-workflows/internal/metrics"
	"github.com/rs/zerolog/log"
)

// taskInfo mirrors GET /task/{uuid}/info.
type taskInfo struct {
	UUID           string  `json:"uuid"`
	Name           string  `json:"name"`
	DateCreated    int64   `json:"dateCreated"`
	ProcessingTime int64   `json:"processingTime"`
	ImagesCount    int     `json:"imagesCount"`
	Progress       float64 `json:"progress"`
	Status         struct {
		Code         int    `json:"code"`
		ErrorMessage string `json:"errorMessage"`
	} `json:"status"`
}

// NodeInfo is the node's self description from GET /info.
type NodeInfo struct {
	Version         string `json:"version"`
	TaskQueueCount  int    `json:"taskQueueCount"`
	MaxImages       int    `json:"maxImages"`
	MaxParallel     int    `json:"maxParallelTasks"`
	Engine          string `json:"engine"`
	EngineVersion   string `json:"engineVersion"`
	AvailableMemory int64  `json:"availableMemory"`
	TotalMemory     int64  `json:"totalMemory"`
	CPUCores        int    `json:"cpuCores"`
}

type optionPair struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

type submitSettings struct {
	name string
}

// SubmitOption customizes a task submission.
type SubmitOption func(*submitSettings)

// WithName labels the task on the node.
func WithName(name string) SubmitOption {
	return func(s *submitSettings) { s.name = name }
}

// Submit uploads the input images and starts a task with the given options.
// The returned job is queued.
func (c *Client) Submit(ctx context.Context, inputs []string, opts domain.ProcessingOptions, options ...SubmitOption) (*domain.Job, error) {
	if len(inputs) == 0 {
		return nil, errors.New("nodeodm: at least one input image is required")
	}
	for _, p := range inputs {
		if _, err := os.Stat(p); err != nil {
			return nil, fmt.Errorf("nodeodm: input %s: %w", p, err)
		}
	}
	settings := submitSettings{}
	for _, opt := range options {
		opt(&settings)
	}

	encoded, err := encodeOptions(opts)
	if err != nil {
		return nil, err
	}

	pr, pw := io.Pipe()
	defer pr.Close()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeTaskForm(mw, inputs, settings.name, encoded))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(nil, "task", "new"), pr)
	if err != nil {
		return nil, fmt.Errorf("nodeodm: build request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var created struct {
		UUID string `json:"uuid"`
	}
	if err := c.doJSON(req, &created); err != nil {
		return nil, err
	}
	if created.UUID == "" {
		return nil, fmt.Errorf("nodeodm: task/new returned no uuid: %w", domain.ErrNodeRejected)
	}

	metrics.JobsSubmitted.Inc()
	log.Info().
		Str("job_id", created.UUID).
		Int("images", len(inputs)).
		Str("node", c.BaseURL()).
		Msg("task submitted")

	return &domain.Job{
		ID:          created.UUID,
		Name:        settings.name,
		Status:      domain.JobStatusQueued,
		ImagesCount: len(inputs),
		Output:      []string{},
	}, nil
}

func writeTaskForm(mw *multipart.Writer, inputs []string, name, options string) error {
	if name != "" {
		if err := mw.WriteField("name", name); err != nil {
			return err
		}
	}
	if err := mw.WriteField("options", options); err != nil {
		return err
	}
	for _, p := range inputs {
		if err := copyFormFile(mw, p); err != nil {
			return err
		}
	}
	return mw.Close()
}

func copyFormFile(mw *multipart.Writer, localPath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer f.Close()

	part, err := mw.CreateFormFile("images", filepath.Base(localPath))
	if err != nil {
		return err
	}
	_, err = io.Copy(part, f)
	return err
}

// encodeOptions renders options as the node's [{name, value}] list, ordered by name.
func encodeOptions(opts domain.ProcessingOptions) (string, error) {
	pairs := make([]optionPair, 0, len(opts))
	for _, k := range opts.SortedKeys() {
		pairs = append(pairs, optionPair{Name: k, Value: opts[k]})
	}
	b, err := json.Marshal(pairs)
	if err != nil {
		return "", fmt.Errorf("nodeodm: encode options: %w", err)
	}
	return string(b), nil
}

// Job reattaches to an existing task by id with a single info poll.
func (c *Client) Job(ctx context.Context, id string) (*domain.Job, error) {
	info, err := c.taskInfo(ctx, id)
	if err != nil {
		return nil, err
	}
	job := &domain.Job{ID: id, Output: []string{}}
	if err := applyInfo(job, info); err != nil {
		return nil, err
	}
	return job, nil
}

// Cancel asks the node to stop a task. Timeouts never cancel implicitly.
func (c *Client) Cancel(ctx context.Context, job *domain.Job) error {
	if err := c.taskCommand(ctx, "cancel", job.ID); err != nil {
		return err
	}
	log.Info().Str("job_id", job.ID).Msg("task cancel requested")
	return nil
}

// Remove deletes a task and its results from the node.
func (c *Client) Remove(ctx context.Context, job *domain.Job) error {
	if err := c.taskCommand(ctx, "remove", job.ID); err != nil {
		return err
	}
	log.Info().Str("job_id", job.ID).Msg("task removed")
	return nil
}

// Info returns the node's version and queue state.
func (c *Client) Info(ctx context.Context) (*NodeInfo, error) {
	var info NodeInfo
	if err := c.getJSON(ctx, &info, nil, "info"); err != nil {
		return nil, err
	}
	return &info, nil
}

func (c *Client) taskCommand(ctx context.Context, command, id string) error {
	var resp struct {
		Success bool `json:"success"`
	}
	if err := c.postForm(ctx, url.Values{"uuid": {id}}, &resp, "task", command); err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("nodeodm: task %s %s: %w", command, id, domain.ErrNodeRejected)
	}
	return nil
}

func (c *Client) taskInfo(ctx context.Context, id string) (*taskInfo, error) {
	var info taskInfo
	if err := c.getJSON(ctx, &info, nil, "task", id, "info"); err != nil {
		return nil, err
	}
	return &info, nil
}

func (c *Client) taskOutput(ctx context.Context, id string, cursor int) ([]string, error) {
	var lines []string
	if err := c.getJSON(ctx, &lines, lineQuery(cursor), "task", id, "output"); err != nil {
		return nil, err
	}
	return lines, nil
}

// applyInfo copies node state onto the job.
func applyInfo(job *domain.Job, info *taskInfo) error {
	status, ok := domain.JobStatusFromCode(info.Status.Code)
	if !ok {
		return fmt.Errorf("nodeodm: task %s: unknown status code %d: %w", job.ID, info.Status.Code, domain.ErrNodeRejected)
	}
	job.Status = status
	job.Progress = clampProgress(info.Progress)
	if info.Status.ErrorMessage != "" {
		job.LastError = info.Status.ErrorMessage
	}
	if info.Name != "" {
		job.Name = info.Name
	}
	if info.ImagesCount > 0 {
		job.ImagesCount = info.ImagesCount
	}
	job.ProcessingTime = info.ProcessingTime
	if info.DateCreated > 0 {
		job.DateCreated = time.UnixMilli(info.DateCreated).UTC()
	}
	if status == domain.JobStatusCompleted {
		job.Progress = 100
	}
	return nil
}

func clampProgress(p float64) float64 {
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	}
	return p
}
