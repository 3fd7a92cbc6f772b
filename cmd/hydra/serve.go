package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/andresuchdata/hydra-workflows/internal/api"
	"github.com/andresuchdata/hydra-workflows/internal/pipeline"
	"github.com/andresuchdata/hydra-workflows/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the HTTP API and run flows in the background",
		Flags: []cli.Flag{
			&cli.DurationFlag{Name: "shutdown-timeout", Value: 30 * time.Second, Usage: "How long running flows get to finish on shutdown"},
		},
		Action: withRuntime(serve),
	}
}

func serve(c *cli.Context, rt *runtime) error {
	cfg := rt.cfg
	if cfg.Server.Mode == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	orch := pipeline.NewOrchestrator(rt.deps())
	router := api.NewRouter(&api.Services{
		RunService:   service.NewRunService(orch, rt.runs, rt.jobs, rt.node),
		AssetService: service.NewAssetService(rt.registrar),
	}, cfg.Server.AllowedOrigins)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.Server.Port).Str("node", rt.node.BaseURL()).Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		return err
	}
	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), c.Duration("shutdown-timeout"))
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	if err := orch.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("Running flows canceled before completion")
	}

	log.Info().Msg("Server exiting")
	return nil
}
