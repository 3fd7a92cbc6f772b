package storage

import "strings"

// NormalizePrefix strips leading and trailing slashes from a key prefix.
func NormalizePrefix(prefix string) string {
	return strings.Trim(strings.TrimSpace(prefix), "/")
}

// JoinKey composes an object key from a prefix and a relative path using
// forward slashes regardless of the host OS.
func JoinKey(prefix, rel string) string {
	rel = strings.TrimPrefix(strings.ReplaceAll(rel, "\\", "/"), "/")
	prefix = NormalizePrefix(prefix)
	if prefix == "" {
		return rel
	}
	if rel == "" {
		return prefix
	}
	return prefix + "/" + rel
}
