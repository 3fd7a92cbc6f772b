package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/andresuchdata/hydra-workflows/internal/catalog"
	"github.com/andresuchdata/hydra-workflows/internal/domain"
	"github.com/jmoiron/sqlx"
)

// AssetRepository persists catalog assets in data_assets.
type AssetRepository struct {
	db *DB
}

func NewAssetRepository(db *DB) *AssetRepository {
	return &AssetRepository{db: db}
}

// InsertAsset stores the asset and its object keys in one transaction.
func (r *AssetRepository) InsertAsset(ctx context.Context, asset *domain.CatalogAsset) error {
	return r.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		query := `
			INSERT INTO data_assets (
				path, storage_type, storage_location, asset_type, owner_uuid
			) VALUES ($1, $2, $3, $4, $5)
			RETURNING id, date_created
		`
		err := tx.QueryRowxContext(ctx, query,
			asset.Path, asset.StorageType, asset.StorageLocation, asset.AssetType, asset.OwnerUUID,
		).Scan(&asset.ID, &asset.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert data asset: %w", err)
		}

		for i, key := range asset.ObjectKeys {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO data_asset_objects (asset_id, position, object_key) VALUES ($1, $2, $3)`,
				asset.ID, i, key,
			); err != nil {
				return fmt.Errorf("insert object key %s: %w", key, err)
			}
		}
		return nil
	})
}

// GetAsset retrieves an asset with its object keys.
func (r *AssetRepository) GetAsset(ctx context.Context, id string) (*domain.CatalogAsset, error) {
	query := `
		SELECT id, path, storage_type, storage_location, asset_type, owner_uuid, date_created
		FROM data_assets
		WHERE id = $1
	`
	asset := &domain.CatalogAsset{}
	if err := r.db.GetContext(ctx, asset, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("asset %s: %w", id, domain.ErrNotFound)
		}
		return nil, err
	}

	err := r.db.SelectContext(ctx, &asset.ObjectKeys,
		`SELECT object_key FROM data_asset_objects WHERE asset_id = $1 ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("load object keys: %w", err)
	}
	return asset, nil
}

// ListAssets returns assets newest first, without object keys.
func (r *AssetRepository) ListAssets(ctx context.Context, filter catalog.AssetFilter) ([]domain.CatalogAsset, error) {
	query, args := listAssetsQuery(filter)
	assets := []domain.CatalogAsset{}
	if err := r.db.SelectContext(ctx, &assets, query, args...); err != nil {
		return nil, err
	}
	return assets, nil
}

func listAssetsQuery(filter catalog.AssetFilter) (string, []any) {
	var (
		where []string
		args  []any
	)
	if filter.AssetType != "" {
		args = append(args, filter.AssetType)
		where = append(where, fmt.Sprintf("asset_type = $%d", len(args)))
	}
	if filter.StorageLocation != "" {
		args = append(args, filter.StorageLocation)
		where = append(where, fmt.Sprintf("storage_location = $%d", len(args)))
	}

	query := "SELECT id, path, storage_type, storage_location, asset_type, owner_uuid, date_created FROM data_assets"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY date_created DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	return query, args
}

var _ catalog.Store = (*AssetRepository)(nil)
