package pipeline

import (
	"context"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/andresuchdata/hydra-workflows/internal/domain"
	"github.com/andresuchdata/hydra-workflows/internal/gps"
	"github.com/andresuchdata/hydra-workflows/internal/materialize"
	"github.com/andresuchdata/hydra-workflows/internal/nodeodm"
)

// SupportedImageExtensions are the input formats the processing node accepts.
var SupportedImageExtensions = []string{".jpg", ".jpeg", ".tif", ".tiff", ".png"}

// IsSupportedImage reports whether key has a supported image extension.
func IsSupportedImage(key string) bool {
	ext := strings.ToLower(path.Ext(key))
	for _, e := range SupportedImageExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// NodeClient is the part of the processing node client the imagery flow uses.
type NodeClient interface {
	Submit(ctx context.Context, inputs []string, opts domain.ProcessingOptions, options ...nodeodm.SubmitOption) (*domain.Job, error)
	AwaitCompletion(ctx context.Context, job *domain.Job, opts nodeodm.AwaitOptions) (*domain.Job, error)
	DownloadResults(ctx context.Context, job *domain.Job, dest string) (*domain.OutputTree, error)
}

// ImageryRequest parameters one imagery run. Empty fields fall back to the
// pipeline configuration.
type ImageryRequest struct {
	Bucket        string                   `json:"bucket" binding:"required"`
	Prefix        string                   `json:"prefix"`
	Recursive     *bool                    `json:"recursive,omitempty"`
	Options       domain.ProcessingOptions `json:"options,omitempty"`
	OutputDir     string                   `json:"output_dir,omitempty"`
	ResultsBucket string                   `json:"results_bucket,omitempty"`
	ResultsPrefix string                   `json:"results_prefix,omitempty"`
	OwnerUUID     string                   `json:"owner_uuid,omitempty"`
	Name          string                   `json:"name,omitempty"`
	Timeout       time.Duration            `json:"-"`
	RunID         string                   `json:"-"`
}

// IngestRequest parameters one ingest run.
type IngestRequest struct {
	Bucket    string `json:"bucket" binding:"required"`
	Prefix    string `json:"prefix"`
	Recursive *bool  `json:"recursive,omitempty"`
	OwnerUUID string `json:"owner_uuid,omitempty"`
	RunID     string `json:"-"`
}

func recursive(flag *bool) bool {
	return flag == nil || *flag
}

// TaskInfo describes the node task behind an imagery run.
type TaskInfo struct {
	UUID           string                   `json:"uuid"`
	Name           string                   `json:"name,omitempty"`
	DateCreated    time.Time                `json:"date_created,omitempty"`
	ProcessingTime int64                    `json:"processing_time_ms"`
	Status         domain.JobStatus         `json:"status"`
	LastError      string                   `json:"last_error,omitempty"`
	Options        domain.ProcessingOptions `json:"options"`
	ImagesCount    int                      `json:"images_count"`
	Progress       float64                  `json:"progress"`
}

func taskInfo(job *domain.Job, opts domain.ProcessingOptions) *TaskInfo {
	return &TaskInfo{
		UUID:           job.ID,
		Name:           job.Name,
		DateCreated:    job.DateCreated,
		ProcessingTime: job.ProcessingTime,
		Status:         job.Status,
		LastError:      job.LastError,
		Options:        opts,
		ImagesCount:    job.ImagesCount,
		Progress:       job.Progress,
	}
}

// FlowStats summarizes the listing stage.
type FlowStats struct {
	TotalObjects    int    `json:"total_objects_found"`
	ImagesProcessed int    `json:"total_images_processed"`
	Bucket          string `json:"bucket_name"`
	Prefix          string `json:"prefix"`
}

// GPSSummary counts extraction results.
type GPSSummary struct {
	Located    int       `json:"located"`
	Skipped    int       `json:"skipped"`
	BBox       []float64 `json:"bbox,omitempty"`
	GeoJSONKey string    `json:"geojson_key,omitempty"`
}

// summarizeGPS counts the report and records the [minLon, minLat, maxLon,
// maxLat] box of the located images.
func summarizeGPS(report gps.Report) GPSSummary {
	summary := GPSSummary{Located: len(report.Located), Skipped: len(report.Skipped)}
	if b, ok := gps.Bound(report); ok {
		summary.BBox = []float64{b.Min.Lon(), b.Min.Lat(), b.Max.Lon(), b.Max.Lat()}
	}
	return summary
}

// ImageryResult is the summary of an imagery run.
type ImageryResult struct {
	RunID         string              `json:"run_id"`
	Status        domain.RunStatus    `json:"status"`
	Message       string              `json:"message,omitempty"`
	Task          *TaskInfo           `json:"task_info,omitempty"`
	OutputDir     string              `json:"output_dir,omitempty"`
	OutputFiles   []string            `json:"output_files,omitempty"`
	FlowStats     FlowStats           `json:"flow_stats"`
	GPS           *GPSSummary         `json:"gps,omitempty"`
	ResultsBucket string              `json:"results_bucket,omitempty"`
	ResultsPrefix string              `json:"results_prefix,omitempty"`
	Assets        map[string]string   `json:"assets_created,omitempty"`
	Categories    materialize.Results `json:"categories,omitempty"`
	FailedAssets  []string            `json:"failed_categories,omitempty"`
	ConsoleOutput []string            `json:"console_output,omitempty"`
}

// IngestResult is the summary of an ingest run.
type IngestResult struct {
	RunID        string           `json:"run_id"`
	Status       domain.RunStatus `json:"status"`
	Message      string           `json:"message,omitempty"`
	Keys         []string         `json:"keys"`
	AssetIDs     []string         `json:"asset_ids"`
	FailedAssets []string         `json:"failed_keys,omitempty"`
	GPS          GPSSummary       `json:"gps"`
}

// DefaultResultsPrefix derives the results prefix from the output directory name.
func DefaultResultsPrefix(outputDir string) string {
	return "odm_results/" + filepath.Base(filepath.Clean(outputDir))
}
