// Package catalog registers stored objects as data assets.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/andresuchdata/hydra-workflows/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ErrEmptyAssetKeys is returned when an asset would describe no objects.
var ErrEmptyAssetKeys = errors.New("catalog: asset requires at least one object key")

// AssetTypeRawData labels assets created for ingested source objects.
const AssetTypeRawData = "raw_data"

// AssetRequest describes the asset to register.
type AssetRequest struct {
	Keys        []string
	Bucket      string
	AssetType   string
	OwnerUUID   string
	StorageType domain.StorageType
}

// Store persists assets.
type Store interface {
	// InsertAsset stores the asset and fills in its generated ID and creation time.
	InsertAsset(ctx context.Context, asset *domain.CatalogAsset) error
	GetAsset(ctx context.Context, id string) (*domain.CatalogAsset, error)
	ListAssets(ctx context.Context, filter AssetFilter) ([]domain.CatalogAsset, error)
}

// AssetFilter narrows ListAssets. Zero values match everything.
type AssetFilter struct {
	AssetType       string
	StorageLocation string
	Limit           int
}

// Registrar creates catalog assets from object key sets.
type Registrar struct {
	store Store
}

func NewRegistrar(store Store) *Registrar {
	return &Registrar{store: store}
}

// CreateAsset registers one asset for the given keys.
func (r *Registrar) CreateAsset(ctx context.Context, req AssetRequest) (*domain.CatalogAsset, error) {
	if len(req.Keys) == 0 {
		return nil, ErrEmptyAssetKeys
	}
	if strings.TrimSpace(req.Bucket) == "" {
		return nil, errors.New("catalog: bucket is required")
	}

	owner := strings.TrimSpace(req.OwnerUUID)
	if owner == "" {
		owner = uuid.NewString()
	}
	assetType := req.AssetType
	if assetType == "" {
		assetType = AssetTypeRawData
	}
	storageType := req.StorageType
	if storageType == "" {
		storageType = domain.StorageTypeObject
	}

	asset := &domain.CatalogAsset{
		Path:            AssetPath(req.Bucket, req.Keys),
		StorageType:     storageType,
		StorageLocation: req.Bucket,
		AssetType:       assetType,
		OwnerUUID:       owner,
		ObjectKeys:      append([]string(nil), req.Keys...),
		CreatedAt:       time.Now().UTC(),
	}

	log.Info().
		Str("path", asset.Path).
		Str("asset_type", assetType).
		Int("objects", len(req.Keys)).
		Msg("creating data asset")

	if err := r.store.InsertAsset(ctx, asset); err != nil {
		return nil, fmt.Errorf("catalog: insert %s: %w", asset.Path, err)
	}
	return asset, nil
}

// Get returns a registered asset by id.
func (r *Registrar) Get(ctx context.Context, id string) (*domain.CatalogAsset, error) {
	return r.store.GetAsset(ctx, id)
}

// List returns registered assets, newest first.
func (r *Registrar) List(ctx context.Context, filter AssetFilter) ([]domain.CatalogAsset, error) {
	return r.store.ListAssets(ctx, filter)
}

// AssetPath is bucket/key for a single key, otherwise bucket joined with the
// longest common '/'-segment prefix of the keys, or the bare bucket.
func AssetPath(bucket string, keys []string) string {
	if len(keys) == 1 {
		return bucket + "/" + keys[0]
	}
	if prefix := CommonPrefix(keys); prefix != "" {
		return bucket + "/" + prefix
	}
	return bucket
}

// CommonPrefix returns the longest run of leading path segments shared by
// every non-empty key.
func CommonPrefix(keys []string) string {
	var split [][]string
	for _, k := range keys {
		if k == "" {
			continue
		}
		split = append(split, strings.Split(strings.Trim(k, "/"), "/"))
	}
	if len(split) == 0 {
		return ""
	}

	var common []string
	for i, seg := range split[0] {
		for _, parts := range split[1:] {
			if i >= len(parts) || parts[i] != seg {
				return strings.Join(common, "/")
			}
		}
		common = append(common, seg)
	}
	return strings.Join(common, "/")
}
