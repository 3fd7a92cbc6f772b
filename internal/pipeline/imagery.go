package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/andresuchdata/hydra-workflows/internal/cache"
	"github.com/andresuchdata/hydra-workflows/internal/domain"
	"github.com/andresuchdata/hydra-workflows/internal/materialize"
	"github.com/andresuchdata/hydra-workflows/internal/nodeodm"
	"github.com/andresuchdata/hydra-workflows/internal/storage"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ImageryFlow turns a prefix of drone images into catalogued photogrammetry
// products.
type ImageryFlow struct {
	deps Deps
	mat  *materialize.Materializer
}

func NewImageryFlow(deps Deps) *ImageryFlow {
	deps = deps.withDefaults()
	return &ImageryFlow{
		deps: deps,
		mat:  materialize.New(deps.Store, deps.Registrar, deps.Config.UploadConcurrency),
	}
}

// Run executes the flow. A returned error means the run failed; the result
// is still populated with everything learned before the failure.
func (f *ImageryFlow) Run(ctx context.Context, req ImageryRequest) (*ImageryResult, error) {
	t := startRun(ctx, f.deps.Runs, req.RunID, domain.FlowImagery, req.Bucket, req.Prefix)
	logger := log.With().Str("run_id", t.ID()).Str("flow", domain.FlowImagery).Logger()
	result := &ImageryResult{
		RunID:     t.ID(),
		FlowStats: FlowStats{Bucket: req.Bucket, Prefix: req.Prefix},
	}

	objects, err := f.deps.Store.ListObjects(ctx, req.Bucket, req.Prefix, recursive(req.Recursive))
	if err != nil {
		return result, f.fail(ctx, t, result, fmt.Errorf("list %s/%s: %w", req.Bucket, req.Prefix, err))
	}
	result.FlowStats.TotalObjects = len(objects)
	if len(objects) == 0 {
		result.Status = domain.RunStatusNoImages
		result.Message = fmt.Sprintf("no objects found in %s/%s", req.Bucket, req.Prefix)
		logger.Warn().Msg(result.Message)
		t.finish(ctx, result.Status, result, nil)
		return result, nil
	}

	images := supportedImages(objects)
	if len(images) == 0 {
		result.Status = domain.RunStatusNoSupportedImages
		result.Message = fmt.Sprintf("no supported images among %d objects", len(objects))
		logger.Warn().Int("objects", len(objects)).Msg(result.Message)
		t.finish(ctx, result.Status, result, nil)
		return result, nil
	}
	result.FlowStats.ImagesProcessed = len(images)
	logger.Info().Int("objects", len(objects)).Int("images", len(images)).Msg("images selected for processing")

	if f.deps.Extractor != nil {
		report := f.deps.Extractor.Extract(ctx, images)
		summary := summarizeGPS(report)
		result.GPS = &summary
	}

	opts := domain.MergeOptions(f.deps.DefaultOptions, req.Options)
	job, err := f.submit(ctx, req, images, opts)
	if err != nil {
		return result, f.fail(ctx, t, result, err)
	}
	t.setJob(ctx, job.ID)
	logger = logger.With().Str("job_id", job.ID).Logger()

	job, err = f.deps.Node.AwaitCompletion(ctx, job, nodeodm.AwaitOptions{
		Timeout:  req.Timeout,
		Listener: f.listener(),
	})
	if job != nil {
		result.Task = taskInfo(job, opts)
	}
	if err != nil {
		return result, f.fail(ctx, t, result, err)
	}

	outputDir := req.OutputDir
	if outputDir == "" {
		outputDir = filepath.Join(f.deps.Config.OutputDir, job.ID)
	}
	tree, err := f.deps.Node.DownloadResults(ctx, job, outputDir)
	if err != nil {
		return result, f.fail(ctx, t, result, err)
	}
	result.OutputDir = tree.Root
	result.OutputFiles = tree.Entries

	dest := f.destination(req, outputDir)
	result.ResultsBucket, result.ResultsPrefix = dest.Bucket, dest.Prefix
	if err := f.deps.Store.EnsureBucket(ctx, dest.Bucket); err != nil {
		logger.Warn().Err(err).Str("bucket", dest.Bucket).Msg("could not ensure results bucket")
	}

	results := f.mat.Materialize(ctx, tree, materialize.Classify(tree), dest)
	result.Categories = results
	result.Assets = results.AssetIDs()
	result.FailedAssets = results.Failed()

	result.Status = domain.RunStatusCompleted
	logEvent := logger.Info()
	if len(result.FailedAssets) > 0 {
		logEvent = logger.Warn().Strs("failed_categories", result.FailedAssets)
	}
	logEvent.
		Int("assets", len(result.Assets)).
		Str("results", dest.Bucket+"/"+dest.Prefix).
		Msg("imagery run completed")
	t.finish(ctx, result.Status, result, nil)
	return result, nil
}

// Publish materializes an output directory that is already on disk, such as
// the results of an earlier run whose uploads failed. Empty destination
// fields fall back the same way a run's do.
func (f *ImageryFlow) Publish(ctx context.Context, outputDir string, dest materialize.Destination) (materialize.Results, error) {
	tree, err := materialize.ScanTree(outputDir)
	if err != nil {
		return nil, err
	}
	dest.Bucket = firstNonEmpty(dest.Bucket, f.deps.Config.ResultsBucket)
	if dest.Bucket == "" {
		return nil, fmt.Errorf("publish %s: no results bucket configured", outputDir)
	}
	prefix := firstNonEmpty(dest.Prefix, f.deps.Config.ResultsPrefix)
	if prefix == "" {
		prefix = DefaultResultsPrefix(outputDir)
	}
	dest.Prefix = storage.NormalizePrefix(prefix)
	dest.OwnerUUID = firstNonEmpty(dest.OwnerUUID, f.deps.Config.OwnerUUID)

	if err := f.deps.Store.EnsureBucket(ctx, dest.Bucket); err != nil {
		return nil, fmt.Errorf("publish %s: %w", outputDir, err)
	}
	results := f.mat.Materialize(ctx, tree, materialize.Classify(tree), dest)
	log.Info().
		Str("output_dir", outputDir).
		Str("results", dest.Bucket+"/"+dest.Prefix).
		Int("files", len(tree.Entries)).
		Strs("failed_categories", results.Failed()).
		Msg("output directory published")
	return results, nil
}

// submit stages the images in a temporary directory and hands them to the
// node. The staging directory is gone once submit returns.
func (f *ImageryFlow) submit(ctx context.Context, req ImageryRequest, images []domain.InputImage, opts domain.ProcessingOptions) (*domain.Job, error) {
	staging, err := os.MkdirTemp("", "hydra-inputs-*")
	if err != nil {
		return nil, fmt.Errorf("create staging directory: %w", err)
	}
	defer os.RemoveAll(staging)

	paths, err := downloadInputs(ctx, f.deps.Store, images, staging, f.deps.Config.GPSWorkers)
	if err != nil {
		return nil, err
	}

	name := req.Name
	if name == "" {
		name = taskName(req.Bucket, req.Prefix, time.Now().UTC())
	}
	return f.deps.Node.Submit(ctx, paths, opts, nodeodm.WithName(name))
}

func (f *ImageryFlow) listener() nodeodm.ProgressListener {
	listeners := []nodeodm.ProgressListener{
		nodeodm.LogListener(true, true),
		cache.Listener(f.deps.Jobs),
	}
	return nodeodm.Listeners(append(listeners, f.deps.Listeners...)...)
}

func (f *ImageryFlow) destination(req ImageryRequest, outputDir string) materialize.Destination {
	bucket := firstNonEmpty(req.ResultsBucket, f.deps.Config.ResultsBucket, req.Bucket)
	prefix := firstNonEmpty(req.ResultsPrefix, f.deps.Config.ResultsPrefix)
	if prefix == "" {
		prefix = DefaultResultsPrefix(outputDir)
	}
	return materialize.Destination{
		Bucket:    bucket,
		Prefix:    storage.NormalizePrefix(prefix),
		OwnerUUID: firstNonEmpty(req.OwnerUUID, f.deps.Config.OwnerUUID),
	}
}

func (f *ImageryFlow) fail(ctx context.Context, t *tracker, result *ImageryResult, err error) error {
	result.Status = domain.RunStatusFailed
	result.Message = err.Error()
	var jobErr *domain.JobError
	if errors.As(err, &jobErr) {
		result.ConsoleOutput = jobErr.Output
	}
	logFailure(log.With().Str("run_id", t.ID()).Logger(), err).Msg("imagery run failed")
	t.finish(ctx, result.Status, result, err)
	return err
}

func logFailure(logger zerolog.Logger, err error) *zerolog.Event {
	event := logger.Error().Err(err)
	var jobErr *domain.JobError
	if errors.As(err, &jobErr) {
		event = event.
			Str("job_id", jobErr.JobID).
			Int("output_lines", len(jobErr.Output)).
			Str("console_output", jobErr.ConsoleOutput())
	}
	return event
}

func supportedImages(objects []storage.ObjectInfo) []domain.InputImage {
	images := make([]domain.InputImage, 0, len(objects))
	for _, obj := range objects {
		if !IsSupportedImage(obj.Key) {
			continue
		}
		images = append(images, domain.InputImage{
			Bucket:       obj.Bucket,
			Key:          obj.Key,
			Size:         obj.Size,
			LastModified: obj.LastModified,
			ETag:         obj.ETag,
		})
	}
	return images
}

func taskName(bucket, prefix string, now time.Time) string {
	name := bucket
	if p := storage.NormalizePrefix(prefix); p != "" {
		name += "/" + p
	}
	return fmt.Sprintf("%s %s", name, now.Format("2006-01-02T15:04:05Z"))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
