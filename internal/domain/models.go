package domain

import (
	"sort"
	"time"
)

// InputImage identifies a source object listed from the object store.
type InputImage struct {
	Bucket       string    `json:"bucket"`
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
	ETag         string    `json:"etag,omitempty"`
}

// ProcessingOptions maps node option names to values. Keys the pipeline does
// not know about are forwarded to the node untouched.
type ProcessingOptions map[string]any

// DefaultProcessingOptions returns the option set applied to every job
// unless the caller overrides a key.
func DefaultProcessingOptions() ProcessingOptions {
	return ProcessingOptions{
		"dsm":                   true,
		"orthophoto-resolution": 4,
		"dem-resolution":        4,
		"pc-quality":            "medium",
	}
}

// MergeOptions returns a new option set with overrides applied on top of defaults.
func MergeOptions(defaults, overrides ProcessingOptions) ProcessingOptions {
	merged := make(ProcessingOptions, len(defaults)+len(overrides))
	for k, v := range defaults {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[k] = v
	}
	return merged
}

// SortedKeys returns option names in lexical order.
func (o ProcessingOptions) SortedKeys() []string {
	keys := make([]string, 0, len(o))
	for k := range o {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Job is the local view of a task running on the processing node.
type Job struct {
	ID             string    `json:"id"`
	Name           string    `json:"name,omitempty"`
	Status         JobStatus `json:"status"`
	Progress       float64   `json:"progress"`
	Output         []string  `json:"-"`
	LastError      string    `json:"last_error,omitempty"`
	ImagesCount    int       `json:"images_count,omitempty"`
	ProcessingTime int64     `json:"processing_time_ms,omitempty"`
	DateCreated    time.Time `json:"date_created,omitempty"`
}

// OutputCursor is the index of the next console line not yet seen.
func (j *Job) OutputCursor() int {
	return len(j.Output)
}

// OutputTree is the local materialization of a completed job's results.
type OutputTree struct {
	Root string `json:"root"`
	// Entries are slash-separated file paths relative to Root, sorted.
	Entries []string `json:"entries"`
}

// StorageType tells the catalog how an asset is persisted.
type StorageType string

const (
	StorageTypeObject StorageType = "OBJECT"
	StorageTypeTable  StorageType = "TABLE"
)

// CatalogAsset is one registered record describing a set of stored objects.
type CatalogAsset struct {
	ID              string      `json:"id" db:"id"`
	Path            string      `json:"path" db:"path"`
	StorageType     StorageType `json:"storage_type" db:"storage_type"`
	StorageLocation string      `json:"storage_location" db:"storage_location"`
	AssetType       string      `json:"asset_type" db:"asset_type"`
	OwnerUUID       string      `json:"owner_uuid" db:"owner_uuid"`
	ObjectKeys      []string    `json:"object_keys" db:"-"`
	CreatedAt       time.Time   `json:"date_created" db:"date_created"`
}
