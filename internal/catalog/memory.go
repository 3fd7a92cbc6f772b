package catalog

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/andresuchdata/hydra-workflows/internal/domain"
)

// MemoryStore keeps assets in process. It backs the CLI when no database is
// configured and is used by tests.
type MemoryStore struct {
	mu     sync.Mutex
	seq    int
	assets []domain.CatalogAsset

	// Fail, when set, is consulted before every insert.
	Fail func(asset *domain.CatalogAsset) error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) InsertAsset(_ context.Context, asset *domain.CatalogAsset) error {
	if s.Fail != nil {
		if err := s.Fail(asset); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	asset.ID = strconv.Itoa(s.seq)
	s.assets = append(s.assets, *asset)
	return nil
}

func (s *MemoryStore) GetAsset(_ context.Context, id string) (*domain.CatalogAsset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.assets {
		if s.assets[i].ID == id {
			asset := s.assets[i]
			return &asset, nil
		}
	}
	return nil, fmt.Errorf("asset %s: %w", id, domain.ErrNotFound)
}

func (s *MemoryStore) ListAssets(_ context.Context, filter AssetFilter) ([]domain.CatalogAsset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.CatalogAsset, 0, len(s.assets))
	for i := len(s.assets) - 1; i >= 0; i-- {
		a := s.assets[i]
		if filter.AssetType != "" && a.AssetType != filter.AssetType {
			continue
		}
		if filter.StorageLocation != "" && a.StorageLocation != filter.StorageLocation {
			continue
		}
		out = append(out, a)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

// Assets returns every stored asset ordered by asset type.
func (s *MemoryStore) Assets() []domain.CatalogAsset {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]domain.CatalogAsset(nil), s.assets...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].AssetType < out[j].AssetType })
	return out
}
