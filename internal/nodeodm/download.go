package nodeodm

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/andresuchdata/hydra-workflows/internal/domain"
	"github.com/dustin/go-humanize"
	"github.com/klauspost/compress/zip"
	"github.com/rs/zerolog/log"
)

// DownloadResults fetches the full result archive of a completed job and
// extracts it into dest. The transfer is checked against Content-Length and
// every archive entry against its CRC; any mismatch yields
// domain.ErrDownloadIncomplete.
func (c *Client) DownloadResults(ctx context.Context, job *domain.Job, dest string) (*domain.OutputTree, error) {
	if job == nil || job.Status != domain.JobStatusCompleted {
		status := domain.JobStatus("unknown")
		id := ""
		if job != nil {
			status, id = job.Status, job.ID
		}
		return nil, fmt.Errorf("nodeodm: download %s (status %s): %w", id, status, domain.ErrJobNotCompleted)
	}
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return nil, fmt.Errorf("nodeodm: create destination %s: %w", dest, err)
	}

	archive, err := os.CreateTemp("", "odm-"+job.ID+"-*.zip")
	if err != nil {
		return nil, fmt.Errorf("nodeodm: create archive file: %w", err)
	}
	defer func() {
		archive.Close()
		os.Remove(archive.Name())
	}()

	size, err := c.fetchArchive(ctx, job.ID, archive)
	if err != nil {
		return nil, err
	}

	entries, extracted, err := extractArchive(archive, size, dest)
	if err != nil {
		return nil, fmt.Errorf("nodeodm: extract %s: %w: %w", job.ID, domain.ErrDownloadIncomplete, err)
	}

	log.Info().
		Str("job_id", job.ID).
		Str("dest", dest).
		Str("archive", humanize.Bytes(uint64(size))).
		Str("extracted", humanize.Bytes(extracted)).
		Int("files", len(entries)).
		Msg("results downloaded")

	return &domain.OutputTree{Root: dest, Entries: entries}, nil
}

func (c *Client) fetchArchive(ctx context.Context, id string, w io.Writer) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(nil, "task", id, "download", "all.zip"), nil)
	if err != nil {
		return 0, fmt.Errorf("nodeodm: build request: %w", err)
	}
	resp, err := c.send(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", domain.ErrDownloadIncomplete, err)
	}
	defer resp.Body.Close()

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("nodeodm: download %s after %s: %w: %w", id, humanize.Bytes(uint64(n)), domain.ErrDownloadIncomplete, err)
	}
	if resp.ContentLength >= 0 && n != resp.ContentLength {
		return n, fmt.Errorf("nodeodm: download %s: got %d of %d bytes: %w", id, n, resp.ContentLength, domain.ErrDownloadIncomplete)
	}
	return n, nil
}

// extractArchive unpacks every file entry below dest and returns the sorted
// slash-separated relative paths and the number of bytes written.
func extractArchive(r io.ReaderAt, size int64, dest string) ([]string, uint64, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, 0, err
	}

	var (
		entries []string
		total   uint64
	)
	for _, f := range zr.File {
		rel, err := entryPath(f.Name)
		if err != nil {
			return nil, total, err
		}
		if rel == "" {
			continue
		}
		target := filepath.Join(dest, filepath.FromSlash(rel))
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return nil, total, err
			}
			continue
		}
		n, err := extractFile(f, target)
		if err != nil {
			return nil, total, fmt.Errorf("%s: %w", f.Name, err)
		}
		total += n
		entries = append(entries, rel)
	}
	sort.Strings(entries)
	return entries, total, nil
}

// entryPath cleans an archive entry name and rejects names escaping the root.
func entryPath(name string) (string, error) {
	name = strings.ReplaceAll(name, "\\", "/")
	for _, seg := range strings.Split(name, "/") {
		if seg == ".." {
			return "", fmt.Errorf("illegal archive entry %q", name)
		}
	}
	return strings.TrimPrefix(path.Clean("/"+name), "/"), nil
}

func extractFile(f *zip.File, target string) (uint64, error) {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return 0, err
	}
	rc, err := f.Open()
	if err != nil {
		return 0, err
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, err
	}
	// Reading to EOF makes the zip reader verify the entry's CRC.
	n, copyErr := io.Copy(out, rc)
	closeErr := out.Close()
	if copyErr != nil {
		return uint64(n), copyErr
	}
	if closeErr != nil {
		return uint64(n), closeErr
	}
	if uint64(n) != f.UncompressedSize64 {
		return uint64(n), fmt.Errorf("wrote %d of %d bytes", n, f.UncompressedSize64)
	}
	return uint64(n), nil
}
