package storage

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog/log"
)

// DetectContentType sniffs the MIME type of a local file, falling back to
// application/octet-stream.
func DetectContentType(localPath string) string {
	mt, err := mimetype.DetectFile(localPath)
	if err != nil || mt == nil {
		return "application/octet-stream"
	}
	return mt.String()
}

// UploadDirectory recursively uploads localDir under prefix and returns the
// uploaded keys in walk order.
func UploadDirectory(ctx context.Context, store ObjectStorage, localDir, bucket, prefix string) ([]string, error) {
	if err := store.EnsureBucket(ctx, bucket); err != nil {
		return nil, err
	}

	var uploaded []string
	err := filepath.WalkDir(localDir, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(localDir, p)
		if err != nil {
			return err
		}
		key := JoinKey(prefix, filepath.ToSlash(rel))
		if err := store.UploadFile(ctx, bucket, key, p); err != nil {
			return fmt.Errorf("upload %s -> %s: %w", p, key, err)
		}
		log.Debug().Str("bucket", bucket).Str("key", key).Msg("uploaded object")
		uploaded = append(uploaded, key)
		return nil
	})
	if err != nil {
		return uploaded, err
	}

	log.Info().Str("bucket", bucket).Str("prefix", NormalizePrefix(prefix)).Int("objects", len(uploaded)).Msg("directory uploaded")
	return uploaded, nil
}
