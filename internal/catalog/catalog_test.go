package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/andresuchdata/hydra-workflows/internal/domain"
	"github.com/google/uuid"
)

func TestAssetPath(t *testing.T) {
	cases := []struct {
		name string
		keys []string
		want string
	}{
		{"single key", []string{"odm_results/site/log.json"}, "data/odm_results/site/log.json"},
		{"shared directory", []string{"odm_results/site/odm_dem/dsm.tif", "odm_results/site/odm_dem/dtm.tif"}, "data/odm_results/site/odm_dem"},
		{"no shared segment", []string{"a/x.tif", "b/y.tif"}, "data"},
		{"partial segment names do not count", []string{"odm_dem/a.tif", "odm_dem2/b.tif"}, "data"},
		{"leading slashes ignored", []string{"/flight/a.jpg", "flight/b.jpg"}, "data/flight"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := AssetPath("data", tc.keys); got != tc.want {
				t.Fatalf("AssetPath(%v) = %q, want %q", tc.keys, got, tc.want)
			}
		})
	}
}

func TestCreateAssetDefaults(t *testing.T) {
	store := NewMemoryStore()
	reg := NewRegistrar(store)

	asset, err := reg.CreateAsset(context.Background(), AssetRequest{
		Keys:   []string{"odm_results/site/odm_orthophoto/odm_orthophoto.tif"},
		Bucket: "results",
	})
	if err != nil {
		t.Fatalf("CreateAsset returned error: %v", err)
	}
	if asset.ID == "" {
		t.Fatal("expected generated id")
	}
	if asset.AssetType != AssetTypeRawData || asset.StorageType != domain.StorageTypeObject {
		t.Fatalf("unexpected defaults %+v", asset)
	}
	if _, err := uuid.Parse(asset.OwnerUUID); err != nil {
		t.Fatalf("owner %q is not a uuid: %v", asset.OwnerUUID, err)
	}
	if asset.StorageLocation != "results" {
		t.Fatalf("unexpected storage location %q", asset.StorageLocation)
	}

	got, err := reg.Get(context.Background(), asset.ID)
	if err != nil || got.Path != asset.Path {
		t.Fatalf("Get returned %+v (%v)", got, err)
	}
}

func TestCreateAssetRejectsEmptyKeys(t *testing.T) {
	store := NewMemoryStore()
	reg := NewRegistrar(store)

	_, err := reg.CreateAsset(context.Background(), AssetRequest{Bucket: "results"})
	if !errors.Is(err, ErrEmptyAssetKeys) {
		t.Fatalf("expected ErrEmptyAssetKeys, got %v", err)
	}
	if len(store.Assets()) != 0 {
		t.Fatal("no asset may be stored for an empty key set")
	}
}

func TestCreateAssetKeepsOwner(t *testing.T) {
	reg := NewRegistrar(NewMemoryStore())
	asset, err := reg.CreateAsset(context.Background(), AssetRequest{
		Keys:      []string{"a.jpg", "b.jpg"},
		Bucket:    "raw",
		AssetType: "orthophoto",
		OwnerUUID: "5b7c8a4e-2f57-4a31-9d0c-1b1f0f6b8a11",
	})
	if err != nil {
		t.Fatalf("CreateAsset returned error: %v", err)
	}
	if asset.OwnerUUID != "5b7c8a4e-2f57-4a31-9d0c-1b1f0f6b8a11" || asset.Path != "raw" {
		t.Fatalf("unexpected asset %+v", asset)
	}
}

func TestListFiltersNewestFirst(t *testing.T) {
	reg := NewRegistrar(NewMemoryStore())
	ctx := context.Background()
	for _, typ := range []string{"orthophoto", "report", "orthophoto"} {
		if _, err := reg.CreateAsset(ctx, AssetRequest{Keys: []string{typ}, Bucket: "b", AssetType: typ}); err != nil {
			t.Fatalf("CreateAsset: %v", err)
		}
	}
	list, err := reg.List(ctx, AssetFilter{AssetType: "orthophoto"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 || list[0].ID != "3" || list[1].ID != "1" {
		t.Fatalf("unexpected listing %+v", list)
	}
}
