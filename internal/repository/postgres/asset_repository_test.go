package postgres

import (
	"reflect"
	"strings"
	"testing"

	"github.com/andresuchdata/hydra-workflows/internal/catalog"
)

func TestListAssetsQuery(t *testing.T) {
	tests := []struct {
		name      string
		filter    catalog.AssetFilter
		wantWhere string
		wantArgs  []any
	}{
		{name: "unfiltered", filter: catalog.AssetFilter{}, wantWhere: "", wantArgs: nil},
		{
			name:      "type and bucket",
			filter:    catalog.AssetFilter{AssetType: "orthophoto", StorageLocation: "results", Limit: 10},
			wantWhere: " WHERE asset_type = $1 AND storage_location = $2 ORDER BY date_created DESC LIMIT $3",
			wantArgs:  []any{"orthophoto", "results", 10},
		},
		{
			name:      "bucket only",
			filter:    catalog.AssetFilter{StorageLocation: "raw"},
			wantWhere: " WHERE storage_location = $1 ORDER BY",
			wantArgs:  []any{"raw"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			query, args := listAssetsQuery(tt.filter)
			if !strings.HasPrefix(query, "SELECT id, path") || !strings.Contains(query, "FROM data_assets") {
				t.Fatalf("unexpected query %q", query)
			}
			if tt.wantWhere == "" && strings.Contains(query, "WHERE") {
				t.Fatalf("unfiltered query must not have a WHERE clause: %q", query)
			}
			if tt.wantWhere != "" && !strings.Contains(query, tt.wantWhere) {
				t.Fatalf("query %q does not contain %q", query, tt.wantWhere)
			}
			if !reflect.DeepEqual(args, tt.wantArgs) {
				t.Fatalf("unexpected args %v, want %v", args, tt.wantArgs)
			}
		})
	}
}

func TestSchemaDefinesCatalogTables(t *testing.T) {
	for _, table := range []string{"data_assets", "data_asset_objects", "pipeline_runs"} {
		if !strings.Contains(schema, "CREATE TABLE IF NOT EXISTS "+table) {
			t.Fatalf("schema is missing table %s", table)
		}
	}
}
