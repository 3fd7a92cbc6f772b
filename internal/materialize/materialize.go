package materialize

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"

	"github.com/andresuchdata/hydra-workflows/internal/catalog"
	"github.com/andresuchdata/hydra-workflows/internal/domain"
	"github.com/andresuchdata/hydra-workflows/internal/metrics"
	"github.com/andresuchdata/hydra-workflows/internal/storage"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const defaultConcurrency = 4

// Uploader puts a local file into the object store.
type Uploader interface {
	UploadFile(ctx context.Context, bucket, key, localPath string) error
}

// Registrar records a set of uploaded objects as one asset.
type Registrar interface {
	CreateAsset(ctx context.Context, req catalog.AssetRequest) (*domain.CatalogAsset, error)
}

// Destination is where a tree's objects land.
type Destination struct {
	Bucket    string
	Prefix    string
	OwnerUUID string
}

// Outcome is the result for one category. Err wraps domain.ErrUploadFailed or
// domain.ErrRegistrationFailed when the category could not be materialized.
type Outcome struct {
	Category string               `json:"category"`
	Keys     []string             `json:"keys"`
	Asset    *domain.CatalogAsset `json:"asset,omitempty"`
	Error    string               `json:"error,omitempty"`
	Err      error                `json:"-"`
}

func (o *Outcome) fail(err error) *Outcome {
	o.Err = err
	o.Error = err.Error()
	return o
}

// Results holds one outcome per non-empty category.
type Results map[string]*Outcome

// AssetIDs maps each successful category to its asset id.
func (r Results) AssetIDs() map[string]string {
	ids := make(map[string]string, len(r))
	for name, o := range r {
		if o.Err == nil && o.Asset != nil {
			ids[name] = o.Asset.ID
		}
	}
	return ids
}

// Failed lists the categories that did not materialize, sorted.
func (r Results) Failed() []string {
	var names []string
	for name, o := range r {
		if o.Err != nil {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Materializer uploads classified trees and registers them.
type Materializer struct {
	uploader    Uploader
	registrar   Registrar
	concurrency int
}

func New(uploader Uploader, registrar Registrar, concurrency int) *Materializer {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	return &Materializer{uploader: uploader, registrar: registrar, concurrency: concurrency}
}

// Materialize processes every non-empty category concurrently. A category is
// registered only after all of its files uploaded. Failures are recorded in
// the category's outcome and never stop the other categories. A nil tree
// yields no outcomes.
func (m *Materializer) Materialize(ctx context.Context, tree *domain.OutputTree, cls Classification, dest Destination) Results {
	results := Results{}
	if tree == nil {
		return results
	}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.concurrency)

	for _, name := range cls.Categories() {
		files := cls[name]
		g.Go(func() error {
			outcome := m.materializeCategory(gctx, tree.Root, name, files, dest)
			metrics.ObserveMaterialize(name, outcome.Err)

			mu.Lock()
			results[name] = outcome
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	log.Info().
		Str("bucket", dest.Bucket).
		Str("prefix", dest.Prefix).
		Int("categories", len(results)).
		Strs("failed", results.Failed()).
		Msg("output tree materialized")
	return results
}

func (m *Materializer) materializeCategory(ctx context.Context, root, category string, files []string, dest Destination) *Outcome {
	outcome := &Outcome{Category: category, Keys: make([]string, 0, len(files))}
	logger := log.With().Str("category", category).Logger()

	for _, rel := range files {
		key := storage.JoinKey(dest.Prefix, rel)
		local := filepath.Join(root, filepath.FromSlash(rel))
		if err := m.uploader.UploadFile(ctx, dest.Bucket, key, local); err != nil {
			logger.Error().Err(err).Str("key", key).Msg("upload failed, skipping registration")
			return outcome.fail(fmt.Errorf("%s: %s: %w: %w", category, key, domain.ErrUploadFailed, err))
		}
		outcome.Keys = append(outcome.Keys, key)
	}

	asset, err := m.registrar.CreateAsset(ctx, catalog.AssetRequest{
		Keys:        outcome.Keys,
		Bucket:      dest.Bucket,
		AssetType:   category,
		OwnerUUID:   dest.OwnerUUID,
		StorageType: domain.StorageTypeObject,
	})
	if err != nil {
		logger.Error().Err(err).Msg("asset registration failed")
		return outcome.fail(fmt.Errorf("%s: %w: %w", category, domain.ErrRegistrationFailed, err))
	}
	outcome.Asset = asset
	logger.Info().Str("asset_id", asset.ID).Int("objects", len(outcome.Keys)).Msg("category registered")
	return outcome
}
