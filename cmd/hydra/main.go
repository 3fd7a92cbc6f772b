package main

import (
	"encoding/json"
	"errors"
	"os"
	"strings"

	"github.com/andresuchdata/hydra-workflows/internal/config"
	"github.com/andresuchdata/hydra-workflows/internal/domain"
	"github.com/andresuchdata/hydra-workflows/internal/materialize"
	"github.com/andresuchdata/hydra-workflows/internal/pipeline"
	"github.com/andresuchdata/hydra-workflows/internal/storage"
	"github.com/andresuchdata/hydra-workflows/pkg/logger"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "hydra",
		Usage: "Drone imagery processing and cataloguing pipelines",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				EnvVars: []string{"LOG_LEVEL"},
			},
			&cli.BoolFlag{
				Name:    "memory-catalog",
				Usage:   "Keep the asset catalog and run history in memory instead of Postgres",
				EnvVars: []string{"HYDRA_MEMORY_CATALOG"},
			},
		},
		Before: func(c *cli.Context) error {
			cfg := config.Load()
			level := c.String("log-level")
			if level == "" {
				level = cfg.LogLevel
			}
			logger.SetLevel(level)
			return nil
		},
		Commands: []*cli.Command{
			serveCommand(),
			processCommand(),
			ingestCommand(),
			publishCommand(),
			uploadCommand(),
			nodeCommand(),
			cacheCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal().Err(err).Msg("hydra failed")
	}
}

func withRuntime(action func(c *cli.Context, rt *runtime) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		rt, err := newRuntime(c.Context, config.Load(), c.Bool("memory-catalog"))
		if err != nil {
			return err
		}
		defer rt.Close()
		return action(c, rt)
	}
}

func locationFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "bucket", Usage: "Source bucket", Required: true},
		&cli.StringFlag{Name: "prefix", Usage: "Key prefix inside the bucket"},
		&cli.BoolFlag{Name: "no-recursive", Usage: "Only list objects directly under the prefix"},
		&cli.StringFlag{Name: "owner", Usage: "Owner UUID recorded on created assets", EnvVars: []string{"PIPELINE_OWNER_UUID"}},
	}
}

func recursiveFlag(c *cli.Context) *bool {
	recursive := !c.Bool("no-recursive")
	return &recursive
}

func processCommand() *cli.Command {
	return &cli.Command{
		Name:  "process",
		Usage: "Process a prefix of drone images on the node and catalog the products",
		Flags: append(locationFlags(),
			&cli.StringSliceFlag{Name: "option", Aliases: []string{"o"}, Usage: "Processing option as key=value, repeatable"},
			&cli.StringFlag{Name: "name", Usage: "Task name shown by the node"},
			&cli.StringFlag{Name: "output-dir", Usage: "Where results are downloaded"},
			&cli.StringFlag{Name: "results-bucket", Usage: "Bucket receiving the products"},
			&cli.StringFlag{Name: "results-prefix", Usage: "Key prefix for the products"},
			&cli.DurationFlag{Name: "timeout", Usage: "Give up waiting for the task after this long"},
		),
		Action: withRuntime(func(c *cli.Context, rt *runtime) error {
			opts, err := config.ParseOptions(strings.Join(c.StringSlice("option"), ","))
			if err != nil {
				return err
			}
			res, runErr := pipeline.NewImageryFlow(rt.deps()).Run(c.Context, pipeline.ImageryRequest{
				Bucket:        c.String("bucket"),
				Prefix:        c.String("prefix"),
				Recursive:     recursiveFlag(c),
				Options:       opts,
				Name:          c.String("name"),
				OutputDir:     c.String("output-dir"),
				ResultsBucket: c.String("results-bucket"),
				ResultsPrefix: c.String("results-prefix"),
				OwnerUUID:     c.String("owner"),
				Timeout:       c.Duration("timeout"),
			})
			if err := printJSON(res); err != nil {
				return err
			}
			return runErr
		}),
	}
}

func ingestCommand() *cli.Command {
	return &cli.Command{
		Name:  "ingest",
		Usage: "Register every object under a prefix as raw data and extract GPS positions",
		Flags: locationFlags(),
		Action: withRuntime(func(c *cli.Context, rt *runtime) error {
			res, runErr := pipeline.NewIngestFlow(rt.deps()).Run(c.Context, pipeline.IngestRequest{
				Bucket:    c.String("bucket"),
				Prefix:    c.String("prefix"),
				Recursive: recursiveFlag(c),
				OwnerUUID: c.String("owner"),
			})
			if err := printJSON(res); err != nil {
				return err
			}
			return runErr
		}),
	}
}

func publishCommand() *cli.Command {
	return &cli.Command{
		Name:      "publish",
		Usage:     "Upload and catalog an output directory that is already on disk",
		ArgsUsage: "<output-dir>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "results-bucket", Usage: "Bucket receiving the products"},
			&cli.StringFlag{Name: "results-prefix", Usage: "Key prefix for the products"},
			&cli.StringFlag{Name: "owner", Usage: "Owner UUID recorded on created assets", EnvVars: []string{"PIPELINE_OWNER_UUID"}},
		},
		Action: withRuntime(func(c *cli.Context, rt *runtime) error {
			dir := c.Args().First()
			if dir == "" {
				return errors.New("publish: output directory argument is required")
			}
			results, err := pipeline.NewImageryFlow(rt.deps()).Publish(c.Context, dir, materialize.Destination{
				Bucket:    c.String("results-bucket"),
				Prefix:    c.String("results-prefix"),
				OwnerUUID: c.String("owner"),
			})
			if err != nil {
				return err
			}
			return printJSON(results)
		}),
	}
}

func uploadCommand() *cli.Command {
	return &cli.Command{
		Name:      "upload",
		Usage:     "Upload a local directory of images to a bucket",
		ArgsUsage: "<dir>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bucket", Usage: "Destination bucket", Required: true},
			&cli.StringFlag{Name: "prefix", Usage: "Destination key prefix"},
		},
		Action: withRuntime(func(c *cli.Context, rt *runtime) error {
			dir := c.Args().First()
			if dir == "" {
				return errors.New("upload: directory argument is required")
			}
			keys, err := storage.UploadDirectory(c.Context, rt.store, dir, c.String("bucket"), c.String("prefix"))
			if err != nil {
				return err
			}
			return printJSON(map[string]any{"bucket": c.String("bucket"), "keys": keys})
		}),
	}
}

func nodeCommand() *cli.Command {
	jobFlag := func() cli.Flag {
		return &cli.StringFlag{Name: "job", Usage: "Task UUID on the node", Required: true}
	}
	return &cli.Command{
		Name:  "node",
		Usage: "Inspect and control the processing node",
		Subcommands: []*cli.Command{
			{
				Name:  "info",
				Usage: "Show node version and queue",
				Action: withRuntime(func(c *cli.Context, rt *runtime) error {
					info, err := rt.node.Info(c.Context)
					if err != nil {
						return err
					}
					return printJSON(info)
				}),
			},
			{
				Name:  "status",
				Usage: "Show the state of a task",
				Flags: []cli.Flag{jobFlag()},
				Action: withRuntime(func(c *cli.Context, rt *runtime) error {
					job, err := rt.node.Job(c.Context, c.String("job"))
					if err != nil {
						return err
					}
					return printJSON(job)
				}),
			},
			{
				Name:  "cancel",
				Usage: "Cancel a queued or running task",
				Flags: []cli.Flag{jobFlag()},
				Action: withRuntime(func(c *cli.Context, rt *runtime) error {
					return rt.node.Cancel(c.Context, &domain.Job{ID: c.String("job")})
				}),
			},
			{
				Name:  "remove",
				Usage: "Remove a task and its results from the node",
				Flags: []cli.Flag{jobFlag()},
				Action: withRuntime(func(c *cli.Context, rt *runtime) error {
					return rt.node.Remove(c.Context, &domain.Job{ID: c.String("job")})
				}),
			},
		},
	}
}

func cacheCommand() *cli.Command {
	return &cli.Command{
		Name:  "cache",
		Usage: "Manage the job status cache",
		Subcommands: []*cli.Command{
			{
				Name:  "flush",
				Usage: "Drop every cached job snapshot",
				Action: withRuntime(func(c *cli.Context, rt *runtime) error {
					if err := rt.jobs.InvalidateAll(c.Context); err != nil {
						return err
					}
					log.Info().Msg("job cache flushed")
					return nil
				}),
			},
		},
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
