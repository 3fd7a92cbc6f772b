// Package materialize maps a downloaded output tree onto catalog assets,
// one asset per product category.
package materialize

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"

	"github.com/andresuchdata/hydra-workflows/internal/domain"
)

// Classification maps a category name to the sorted relative paths it owns.
// Categories without entries are absent.
type Classification map[string][]string

// Categories returns the classified category names in declaration order.
func (c Classification) Categories() []string {
	names := make([]string, 0, len(c))
	for _, cat := range domain.ProductCategories {
		if len(c[cat.Name]) > 0 {
			names = append(names, cat.Name)
		}
	}
	return names
}

// ScanTree walks root and returns its regular files as an OutputTree.
func ScanTree(root string) (*domain.OutputTree, error) {
	var entries []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		entries = append(entries, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", root, err)
	}
	sort.Strings(entries)
	return &domain.OutputTree{Root: root, Entries: entries}, nil
}

// Classify assigns each entry to the first category that matches it.
// Entries matching no category are left out.
func Classify(tree *domain.OutputTree) Classification {
	out := Classification{}
	if tree == nil {
		return out
	}
	for _, entry := range tree.Entries {
		for _, cat := range domain.ProductCategories {
			if cat.Matches(entry) {
				out[cat.Name] = append(out[cat.Name], entry)
				break
			}
		}
	}
	for name := range out {
		sort.Strings(out[name])
	}
	return out
}
