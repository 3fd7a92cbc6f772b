package pipeline

import (
	"context"
	"errors"
	"sync"

	"github.com/andresuchdata/hydra-workflows/internal/cache"
	"github.com/andresuchdata/hydra-workflows/internal/config"
	"github.com/andresuchdata/hydra-workflows/internal/domain"
	"github.com/andresuchdata/hydra-workflows/internal/gps"
	"github.com/andresuchdata/hydra-workflows/internal/materialize"
	"github.com/andresuchdata/hydra-workflows/internal/nodeodm"
	"github.com/andresuchdata/hydra-workflows/internal/storage"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ErrShuttingDown is returned when a run is started after Shutdown.
var ErrShuttingDown = errors.New("pipeline is shutting down")

// Deps wires the flows to their collaborators. Store, Node and Registrar are
// required; the rest have working defaults.
type Deps struct {
	Store          storage.ObjectStorage
	Node           NodeClient
	Registrar      materialize.Registrar
	Extractor      *gps.Extractor
	Runs           RunRecorder
	Jobs           cache.JobCache
	Listeners      []nodeodm.ProgressListener
	Config         config.PipelineConfig
	DefaultOptions domain.ProcessingOptions
}

func (d Deps) withDefaults() Deps {
	if d.Runs == nil {
		d.Runs = NoopRecorder{}
	}
	if d.Jobs == nil {
		d.Jobs = cache.NewNoopJobCache()
	}
	if d.DefaultOptions == nil {
		d.DefaultOptions = domain.DefaultProcessingOptions()
	}
	return d
}

// Orchestrator runs flows in the background, one goroutine per run.
type Orchestrator struct {
	imagery *ImageryFlow
	ingest  *IngestFlow

	mu       sync.Mutex
	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
	draining bool
}

// NewOrchestrator creates a new Orchestrator.
func NewOrchestrator(deps Deps) *Orchestrator {
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		imagery: NewImageryFlow(deps),
		ingest:  NewIngestFlow(deps),
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (o *Orchestrator) Imagery() *ImageryFlow { return o.imagery }
func (o *Orchestrator) Ingest() *IngestFlow   { return o.ingest }

// StartImagery launches an imagery run and returns its id immediately.
func (o *Orchestrator) StartImagery(req ImageryRequest) (string, error) {
	if req.RunID == "" {
		req.RunID = uuid.NewString()
	}
	return req.RunID, o.spawn(func(ctx context.Context) {
		if _, err := o.imagery.Run(ctx, req); err != nil {
			log.Debug().Err(err).Str("run_id", req.RunID).Msg("background imagery run ended with error")
		}
	})
}

// StartIngest launches an ingest run and returns its id immediately.
func (o *Orchestrator) StartIngest(req IngestRequest) (string, error) {
	if req.RunID == "" {
		req.RunID = uuid.NewString()
	}
	return req.RunID, o.spawn(func(ctx context.Context) {
		if _, err := o.ingest.Run(ctx, req); err != nil {
			log.Debug().Err(err).Str("run_id", req.RunID).Msg("background ingest run ended with error")
		}
	})
}

func (o *Orchestrator) spawn(run func(ctx context.Context)) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.draining {
		return ErrShuttingDown
	}
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		run(o.ctx)
	}()
	return nil
}

// Shutdown stops accepting runs and waits for the running ones. When ctx
// expires first the remaining runs are canceled; their node tasks keep
// running remotely.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	o.draining = true
	o.mu.Unlock()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		o.cancel()
		return nil
	case <-ctx.Done():
		o.cancel()
		<-done
		return ctx.Err()
	}
}
