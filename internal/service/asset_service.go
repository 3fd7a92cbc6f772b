package service

import (
	"context"

	"github.com/andresuchdata/hydra-workflows/internal/catalog"
	"github.com/andresuchdata/hydra-workflows/internal/domain"
)

type AssetService struct {
	registrar *catalog.Registrar
}

func NewAssetService(registrar *catalog.Registrar) *AssetService {
	return &AssetService{registrar: registrar}
}

func (s *AssetService) GetAsset(ctx context.Context, id string) (*domain.CatalogAsset, error) {
	return s.registrar.Get(ctx, id)
}

func (s *AssetService) ListAssets(ctx context.Context, filter catalog.AssetFilter) ([]domain.CatalogAsset, error) {
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 100
	}
	return s.registrar.List(ctx, filter)
}
