package domain

import "testing"

func TestProductCategoryMatches(t *testing.T) {
	dem := ProductCategory{Name: "digital-surface-model", Kind: MatchDirectory, Target: "odm_dem"}
	log := ProductCategory{Name: "processing-log", Kind: MatchFile, Target: "log.json"}

	cases := []struct {
		cat  ProductCategory
		path string
		want bool
	}{
		{dem, "odm_dem/dsm.tif", true},
		{dem, "odm_dem/sub/dtm.tif", true},
		{dem, "odm_dem/", false},
		{dem, "odm_dem.tif", false},
		{dem, "x/odm_dem/dsm.tif", false},
		{log, "log.json", true},
		{log, "odm_report/log.json", false},
	}
	for _, c := range cases {
		if got := c.cat.Matches(c.path); got != c.want {
			t.Errorf("%s.Matches(%q) = %v, want %v", c.cat.Name, c.path, got, c.want)
		}
	}
}

func TestProductCategoriesAreUnique(t *testing.T) {
	seen := map[string]bool{}
	for _, c := range ProductCategories {
		if seen[c.Name] {
			t.Fatalf("duplicate category %s", c.Name)
		}
		seen[c.Name] = true
	}
	if len(ProductCategories) != 10 {
		t.Fatalf("expected 10 categories, got %d", len(ProductCategories))
	}
}
