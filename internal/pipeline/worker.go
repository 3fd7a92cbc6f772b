package pipeline

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/andresuchdata/hydra-workflows/internal/domain"
	"github.com/andresuchdata/hydra-workflows/internal/storage"
	"github.com/rs/zerolog/log"
)

const defaultDownloadWorkers = 4

type downloadJob struct {
	image domain.InputImage
	dest  string
}

// downloadInputs fetches images into dir and returns their local paths in
// the order of images. Files are named by base name; a name already taken,
// ignoring case, gets the lowest numeric prefix that makes it unique.
func downloadInputs(ctx context.Context, store storage.ObjectStorage, images []domain.InputImage, dir string, workers int) ([]string, error) {
	if workers < 1 {
		workers = defaultDownloadWorkers
	}

	jobs := make([]downloadJob, len(images))
	used := make(map[string]bool, len(images))
	for i, img := range images {
		base := path.Base(img.Key)
		name := base
		for n := 1; used[strings.ToLower(name)]; n++ {
			name = fmt.Sprintf("%d_%s", n, base)
		}
		used[strings.ToLower(name)] = true
		jobs[i] = downloadJob{image: img, dest: filepath.Join(dir, name)}
	}

	jobChan := make(chan downloadJob, len(jobs))
	errChan := make(chan error, workers)
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for job := range jobChan {
				if err := ctx.Err(); err != nil {
					return
				}
				if err := store.DownloadObject(ctx, job.image.Bucket, job.image.Key, job.dest); err != nil {
					log.Error().Err(err).Int("worker", workerID).Str("key", job.image.Key).Msg("input download failed")
					select {
					case errChan <- fmt.Errorf("download %s: %w", job.image.Key, err):
					default:
					}
				}
			}
		}(i)
	}

	for _, job := range jobs {
		jobChan <- job
	}
	close(jobChan)

	wg.Wait()
	close(errChan)

	if err := <-errChan; err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	paths := make([]string, len(jobs))
	for i, job := range jobs {
		paths[i] = job.dest
	}
	return paths, nil
}
