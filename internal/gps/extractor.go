package gps

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"sort"
	"sync"
	"time"

	"github.com/andresuchdata/hydra-workflows/internal/domain"
	"github.com/andresuchdata/hydra-workflows/internal/metrics"
	"github.com/andresuchdata/hydra-workflows/internal/storage"
	"github.com/rs/zerolog/log"
)

const (
	metaPrefix     = "meta"
	defaultWorkers = 4
)

// Location is the position recorded for one image. It is also the sidecar
// document written next to the image metadata.
type Location struct {
	Filename     string  `json:"filename"`
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
	Size         int64   `json:"size"`
	LastModified string  `json:"last_modified"`
	Bucket       string  `json:"-"`
}

// Skip records an image without a usable position.
type Skip struct {
	Key    string `json:"key"`
	Reason string `json:"reason"`
}

// Report collects extraction results ordered by object key.
type Report struct {
	Located []Location `json:"located"`
	Skipped []Skip     `json:"skipped"`
}

// Extractor reads GPS positions with a bounded pool of workers.
type Extractor struct {
	store   storage.ObjectStorage
	decoder Decoder
	workers int
}

// Option customizes an Extractor.
type Option func(*Extractor)

// WithDecoder replaces the EXIF decoder.
func WithDecoder(d Decoder) Option {
	return func(e *Extractor) { e.decoder = d }
}

// WithWorkers bounds the number of concurrent reads.
func WithWorkers(n int) Option {
	return func(e *Extractor) {
		if n > 0 {
			e.workers = n
		}
	}
}

func NewExtractor(store storage.ObjectStorage, opts ...Option) *Extractor {
	e := &Extractor{store: store, decoder: ExifDecoder{}, workers: defaultWorkers}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SidecarKey is where the position of key is stored.
func SidecarKey(key string) string {
	return metaPrefix + "/" + path.Base(key) + ".gps.json"
}

// Extract reads every image and writes a sidecar for each located one.
// Per-image problems are logged and recorded as skips; Extract never fails.
func (e *Extractor) Extract(ctx context.Context, images []domain.InputImage) Report {
	log.Info().Int("images", len(images)).Msg("extracting GPS coordinates")

	var (
		mu     sync.Mutex
		report Report
		wg     sync.WaitGroup
	)
	jobs := make(chan domain.InputImage, len(images))

	workers := e.workers
	if workers > len(images) {
		workers = len(images)
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for img := range jobs {
				loc, err := e.locate(ctx, img)

				mu.Lock()
				if err != nil {
					report.Skipped = append(report.Skipped, Skip{Key: img.Key, Reason: err.Error()})
				} else {
					report.Located = append(report.Located, *loc)
				}
				mu.Unlock()
			}
		}()
	}

	for _, img := range images {
		jobs <- img
	}
	close(jobs)
	wg.Wait()

	sort.Slice(report.Located, func(i, j int) bool { return report.Located[i].Filename < report.Located[j].Filename })
	sort.Slice(report.Skipped, func(i, j int) bool { return report.Skipped[i].Key < report.Skipped[j].Key })

	if len(report.Located) == 0 {
		log.Warn().Int("skipped", len(report.Skipped)).Msg("no GPS coordinates were extracted from any images")
	} else {
		log.Info().Int("located", len(report.Located)).Int("skipped", len(report.Skipped)).Msg("GPS extraction finished")
	}
	return report
}

func (e *Extractor) locate(ctx context.Context, img domain.InputImage) (*Location, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	logger := log.With().Str("bucket", img.Bucket).Str("key", img.Key).Logger()

	rc, err := e.store.GetObject(ctx, img.Bucket, img.Key)
	if err != nil {
		metrics.GPSOutcomes.WithLabelValues("error").Inc()
		logger.Error().Err(err).Msg("failed to read image")
		return nil, fmt.Errorf("get object: %w", err)
	}
	lat, lon, err := e.decoder.Decode(rc)
	rc.Close()
	if err != nil {
		if errors.Is(err, ErrNoGPS) {
			metrics.GPSOutcomes.WithLabelValues("no_gps").Inc()
			logger.Warn().Msg("no GPS data found")
		} else {
			metrics.GPSOutcomes.WithLabelValues("error").Inc()
			logger.Warn().Err(err).Msg("could not read EXIF data")
		}
		return nil, err
	}

	loc := &Location{
		Filename:     img.Key,
		Latitude:     lat,
		Longitude:    lon,
		Size:         img.Size,
		LastModified: img.LastModified.UTC().Format(time.RFC3339),
		Bucket:       img.Bucket,
	}
	metrics.GPSOutcomes.WithLabelValues("located").Inc()
	logger.Debug().Float64("lat", lat).Float64("lon", lon).Msg("extracted coordinates")

	if err := e.writeSidecar(ctx, loc); err != nil {
		logger.Error().Err(err).Msg("failed to write GPS sidecar")
	}
	return loc, nil
}

func (e *Extractor) writeSidecar(ctx context.Context, loc *Location) error {
	payload, err := json.Marshal(loc)
	if err != nil {
		return err
	}
	key := SidecarKey(loc.Filename)
	return e.store.PutObject(ctx, loc.Bucket, key, bytes.NewReader(payload), int64(len(payload)), "application/json")
}
