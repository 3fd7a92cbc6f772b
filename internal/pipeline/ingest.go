package pipeline

import (
	"context"
	"fmt"

	"github.com/andresuchdata/hydra-workflows/internal/catalog"
	"github.com/andresuchdata/hydra-workflows/internal/domain"
	"github.com/andresuchdata/hydra-workflows/internal/gps"
	"github.com/rs/zerolog/log"
)

// IngestFlow registers every object under a prefix as a raw data asset and
// extracts GPS positions from the ones that carry them.
type IngestFlow struct {
	deps Deps
}

func NewIngestFlow(deps Deps) *IngestFlow {
	return &IngestFlow{deps: deps.withDefaults()}
}

// Run executes the flow. Only a listing failure fails the run; per-object
// problems are logged and reported in the result.
func (f *IngestFlow) Run(ctx context.Context, req IngestRequest) (*IngestResult, error) {
	t := startRun(ctx, f.deps.Runs, req.RunID, domain.FlowIngest, req.Bucket, req.Prefix)
	logger := log.With().Str("run_id", t.ID()).Str("flow", domain.FlowIngest).Logger()
	result := &IngestResult{RunID: t.ID(), Keys: []string{}, AssetIDs: []string{}}

	objects, err := f.deps.Store.ListObjects(ctx, req.Bucket, req.Prefix, recursive(req.Recursive))
	if err != nil {
		err = fmt.Errorf("list %s/%s: %w", req.Bucket, req.Prefix, err)
		result.Status = domain.RunStatusFailed
		result.Message = err.Error()
		logger.Error().Err(err).Msg("ingest run failed")
		t.finish(ctx, result.Status, result, err)
		return result, err
	}
	if len(objects) == 0 {
		result.Status = domain.RunStatusNoImages
		result.Message = fmt.Sprintf("no objects found in %s/%s", req.Bucket, req.Prefix)
		logger.Warn().Msg(result.Message)
		t.finish(ctx, result.Status, result, nil)
		return result, nil
	}

	images := make([]domain.InputImage, 0, len(objects))
	for _, obj := range objects {
		result.Keys = append(result.Keys, obj.Key)
		images = append(images, domain.InputImage{
			Bucket:       obj.Bucket,
			Key:          obj.Key,
			Size:         obj.Size,
			LastModified: obj.LastModified,
			ETag:         obj.ETag,
		})
	}

	if f.deps.Extractor != nil {
		report := f.deps.Extractor.Extract(ctx, images)
		result.GPS = summarizeGPS(report)
		key := gps.CollectionKey(req.Prefix)
		written, err := gps.WriteFeatureCollection(ctx, f.deps.Store, req.Bucket, key, report)
		switch {
		case err != nil:
			logger.Warn().Err(err).Str("key", key).Msg("failed to write gps collection")
		case written:
			result.GPS.GeoJSONKey = key
		}
	}

	owner := firstNonEmpty(req.OwnerUUID, f.deps.Config.OwnerUUID)
	for _, key := range result.Keys {
		asset, err := f.deps.Registrar.CreateAsset(ctx, catalog.AssetRequest{
			Keys:        []string{key},
			Bucket:      req.Bucket,
			AssetType:   catalog.AssetTypeRawData,
			OwnerUUID:   owner,
			StorageType: domain.StorageTypeObject,
		})
		if err != nil {
			logger.Error().Err(err).Str("key", key).Msg("failed to register object")
			result.FailedAssets = append(result.FailedAssets, key)
			continue
		}
		result.AssetIDs = append(result.AssetIDs, asset.ID)
	}

	result.Status = domain.RunStatusCompleted
	logger.Info().
		Int("objects", len(result.Keys)).
		Int("assets", len(result.AssetIDs)).
		Int("gps_located", result.GPS.Located).
		Msg("ingest run completed")
	t.finish(ctx, result.Status, result, nil)
	return result, nil
}
