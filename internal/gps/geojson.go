package gps

import (
	"bytes"
	"context"
	"fmt"

	"github.com/andresuchdata/hydra-workflows/internal/storage"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// FeatureCollection renders located images as GeoJSON points.
func FeatureCollection(report Report) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, loc := range report.Located {
		f := geojson.NewFeature(orb.Point{loc.Longitude, loc.Latitude})
		f.Properties["filename"] = loc.Filename
		f.Properties["size"] = loc.Size
		f.Properties["last_modified"] = loc.LastModified
		fc.Append(f)
	}
	return fc
}

// Bound is the bounding box of every located image.
func Bound(report Report) (orb.Bound, bool) {
	if len(report.Located) == 0 {
		return orb.Bound{}, false
	}
	mp := make(orb.MultiPoint, 0, len(report.Located))
	for _, loc := range report.Located {
		mp = append(mp, orb.Point{loc.Longitude, loc.Latitude})
	}
	return mp.Bound(), true
}

// CollectionKey is where the collection for an ingest prefix is stored.
func CollectionKey(prefix string) string {
	return storage.JoinKey(storage.JoinKey(metaPrefix, prefix), "gps.geojson")
}

// WriteFeatureCollection stores the report's GeoJSON under key. Nothing is
// written when no image was located.
func WriteFeatureCollection(ctx context.Context, store storage.ObjectStorage, bucket, key string, report Report) (bool, error) {
	if len(report.Located) == 0 {
		return false, nil
	}
	payload, err := FeatureCollection(report).MarshalJSON()
	if err != nil {
		return false, fmt.Errorf("encode geojson: %w", err)
	}
	if err := store.PutObject(ctx, bucket, key, bytes.NewReader(payload), int64(len(payload)), "application/geo+json"); err != nil {
		return false, fmt.Errorf("put %s: %w", key, err)
	}
	return true, nil
}
