package domain

// MatchKind selects how a product category is located in an output tree.
type MatchKind int

const (
	// MatchDirectory matches every entry below a top-level directory.
	MatchDirectory MatchKind = iota
	// MatchFile matches a single entry by exact relative path.
	MatchFile
)

// ProductCategory is a named class of output artifact grouped into one catalog asset.
type ProductCategory struct {
	Name   string
	Kind   MatchKind
	Target string
}

// ProductCategories is the fixed enumeration in declaration order. Earlier
// entries win if two categories ever match the same path.
var ProductCategories = []ProductCategory{
	{Name: "digital-surface-model", Kind: MatchDirectory, Target: "odm_dem"},
	{Name: "point-cloud", Kind: MatchDirectory, Target: "entwine_pointcloud"},
	{Name: "orthophoto", Kind: MatchDirectory, Target: "odm_orthophoto"},
	{Name: "report", Kind: MatchDirectory, Target: "odm_report"},
	{Name: "georeferencing-data", Kind: MatchDirectory, Target: "odm_georeferencing"},
	{Name: "texture-data", Kind: MatchDirectory, Target: "odm_texturing"},
	{Name: "processing-log", Kind: MatchFile, Target: "log.json"},
	{Name: "image-manifest", Kind: MatchFile, Target: "images.json"},
	{Name: "task-output-log", Kind: MatchFile, Target: "task_output.txt"},
	{Name: "camera-parameters", Kind: MatchFile, Target: "cameras.json"},
}

// Matches reports whether a slash-separated relative path belongs to the category.
func (c ProductCategory) Matches(relPath string) bool {
	switch c.Kind {
	case MatchDirectory:
		prefix := c.Target + "/"
		return len(relPath) > len(prefix) && relPath[:len(prefix)] == prefix
	case MatchFile:
		return relPath == c.Target
	}
	return false
}
