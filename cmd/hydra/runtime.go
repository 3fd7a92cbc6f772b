package main

import (
	"context"
	"fmt"

	"github.com/andresuchdata/hydra-workflows/internal/cache"
	"github.com/andresuchdata/hydra-workflows/internal/catalog"
	"github.com/andresuchdata/hydra-workflows/internal/config"
	"github.com/andresuchdata/hydra-workflows/internal/gps"
	"github.com/andresuchdata/hydra-workflows/internal/nodeodm"
	"github.com/andresuchdata/hydra-workflows/internal/pipeline"
	"github.com/andresuchdata/hydra-workflows/internal/repository/postgres"
	"github.com/andresuchdata/hydra-workflows/internal/storage"
	"github.com/andresuchdata/hydra-workflows/pkg/logger"
)

// runtime holds the collaborators shared by every command.
type runtime struct {
	cfg       *config.Config
	store     *storage.MinioClient
	node      *nodeodm.Client
	registrar *catalog.Registrar
	runs      pipeline.RunStore
	jobs      cache.JobCache
	db        *postgres.DB
}

// newRuntime connects to the object store, the node, the job cache and the
// catalog. With memoryCatalog the catalog and run history live in process.
func newRuntime(ctx context.Context, cfg *config.Config, memoryCatalog bool) (*runtime, error) {
	rt := &runtime{cfg: cfg}
	log := logger.Component("runtime")

	store, err := storage.NewMinioClient(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("object store: %w", err)
	}
	rt.store = store

	node, err := nodeodm.NewFromConfig(cfg.Node)
	if err != nil {
		return nil, fmt.Errorf("processing node: %w", err)
	}
	rt.node = node

	jobs, err := cache.NewJobCache(cfg.Cache)
	if err != nil {
		log.Warn().Err(err).Msg("job cache unavailable, continuing without it")
		jobs = cache.NewNoopJobCache()
	}
	rt.jobs = jobs

	if memoryCatalog {
		rt.registrar = catalog.NewRegistrar(catalog.NewMemoryStore())
		rt.runs = pipeline.NewMemoryRunStore()
		return rt, nil
	}

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("catalog database: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	rt.db = db
	log.Info().Msg("catalog backed by postgres")
	rt.registrar = catalog.NewRegistrar(postgres.NewAssetRepository(db))
	rt.runs = postgres.NewRunRepository(db)
	return rt, nil
}

func (rt *runtime) deps() pipeline.Deps {
	return pipeline.Deps{
		Store:          rt.store,
		Node:           rt.node,
		Registrar:      rt.registrar,
		Extractor:      gps.NewExtractor(rt.store, gps.WithWorkers(rt.cfg.Pipeline.GPSWorkers)),
		Runs:           rt.runs,
		Jobs:           rt.jobs,
		Config:         rt.cfg.Pipeline,
		DefaultOptions: rt.cfg.Node.DefaultOptions,
	}
}

func (rt *runtime) Close() {
	if rt.db != nil {
		if err := rt.db.Close(); err != nil {
			log := logger.Component("runtime")
			log.Warn().Err(err).Msg("closing database")
		}
	}
}
