// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/poiesic/retailrag"
	"github.com/poiesic/retailrag/config"
	"github.com/poiesic/retailrag/core"
	"github.com/poiesic/retailrag/ingestion"
	"github.com/poiesic/retailrag/recommend"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
)

const configKey = "config"

// openApp builds the application from cfg. Tests replace it to inject
// in-memory components.
var openApp = func(ctx context.Context, cfg *config.Config) (*retailrag.App, error) {
	return retailrag.NewApp(ctx, cfg, retailrag.WithLogger(slog.Default()))
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "retailrag",
		Usage: "Multimodal product recommendations over a retail catalog",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error); overrides LOG_LEVEL",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a YAML configuration file",
			},
			&cli.StringSliceFlag{
				Name:  "env-file",
				Usage: "Dotenv files loaded before reading the environment",
				Value: cli.NewStringSlice(".env"),
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Serve the recommendation API",
				Action: serveCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "addr",
						Usage: "Listen address; overrides LISTEN_ADDR",
					},
					&cli.IntFlag{
						Name:  "top-k",
						Usage: "Products retrieved per query; overrides TOP_K",
					},
					&cli.BoolFlag{
						Name:  "skip-probe",
						Usage: "Do not verify embedding dimensions at startup",
					},
					&cli.BoolFlag{
						Name:  "ingest-on-start",
						Usage: "Refresh the catalog in the background while serving",
					},
				},
			},
			{
				Name:   "ingest",
				Usage:  "Load the catalog CSV into the vector store",
				Action: ingestCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "file",
						Usage: "Catalog file name in the data bucket; overrides MASTER_CATALOG_FILE_NAME",
					},
					&cli.StringFlag{
						Name:  "table",
						Usage: "Destination table; overrides CATALOG_TABLE_NAME",
					},
					&cli.IntFlag{
						Name:  "workers",
						Usage: "Concurrent embedding requests; overrides INGEST_WORKERS",
					},
					&cli.IntFlag{
						Name:  "chunk-size",
						Usage: "Rows per embedding chunk; overrides INGEST_CHUNK_SIZE",
					},
					&cli.BoolFlag{
						Name:  "no-progress",
						Usage: "Disable progress bars",
					},
				},
			},
			{
				Name:   "init-db",
				Usage:  "Drop and recreate the catalog database",
				Action: initDBCommand,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "yes",
						Usage: "Confirm dropping the existing database",
					},
				},
			},
			{
				Name:   "reindex",
				Usage:  "Rebuild the ANN indexes on the catalog table",
				Action: reindexCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "method",
						Usage: "Index method (scann, ivfflat); overrides ANN_INDEX_METHOD",
					},
					&cli.IntFlag{
						Name:  "num-leaves",
						Usage: "Index partitions; overrides NUM_LEAVES_VALUE",
					},
				},
			},
			{
				Name:   "query",
				Usage:  "Ask for recommendations from the command line",
				Action: queryCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "text",
						Aliases: []string{"t"},
						Usage:   "Query text",
					},
					&cli.StringFlag{
						Name:    "image",
						Aliases: []string{"i"},
						Usage:   "Query image as a gs:// URI",
					},
					&cli.IntFlag{
						Name:  "top-k",
						Usage: "Products retrieved; overrides TOP_K",
					},
					&cli.BoolFlag{
						Name:    "verbose",
						Aliases: []string{"v"},
						Usage:   "Print the retrieved products and the prompt",
					},
				},
			},
			{
				Name:      "write-config",
				Usage:     "Write the effective configuration as YAML",
				ArgsUsage: "<path>",
				Action:    writeConfigCommand,
			},
		},
	}
}

func serveCommand(c *cli.Context) error {
	cfg := configFrom(c)
	if c.IsSet("addr") {
		cfg.Server.ListenAddr = c.String("addr")
	}
	if c.IsSet("top-k") {
		cfg.Server.TopK = c.Int("top-k")
	}
	if err := cfg.RequireLLM(); err != nil {
		return err
	}
	if !c.Bool("skip-probe") {
		if err := cfg.RequireProbe(); err != nil {
			return fmt.Errorf("%w (or pass --skip-probe)", err)
		}
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := openApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	if !c.Bool("skip-probe") {
		if err := app.Probe(ctx); err != nil {
			return fmt.Errorf("embedding endpoints failed the startup probe: %w", err)
		}
	}

	srv, err := app.NewServer()
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx)
	})
	if c.Bool("ingest-on-start") {
		g.Go(func() error {
			result, err := app.Ingest(gctx)
			if err != nil {
				// The previous table keeps serving.
				slog.Error("background ingestion failed", "err", err)
				return nil
			}
			slog.Info("background ingestion finished", "rows", result.RowsLoaded, "elapsed", result.Elapsed)
			return nil
		})
	}
	return g.Wait()
}

func ingestCommand(c *cli.Context) error {
	cfg := configFrom(c)
	if c.IsSet("file") {
		cfg.Catalog.FileName = c.String("file")
	}
	if c.IsSet("table") {
		cfg.Catalog.Table = c.String("table")
	}
	if c.IsSet("workers") {
		cfg.Ingest.Workers = c.Int("workers")
	}
	if c.IsSet("chunk-size") {
		cfg.Ingest.ChunkSize = c.Int("chunk-size")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := cfg.RequireIngest(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := openApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	w := c.App.ErrWriter
	fmt.Fprintf(w, "Source: %s\n", cfg.CatalogSource())
	fmt.Fprintf(w, "Table: %s\n", cfg.Catalog.Table)
	fmt.Fprintln(w)

	var opts []ingestion.Option
	if !c.Bool("no-progress") {
		opts = append(opts, ingestion.WithMonitor(newProgressMonitor(w)))
	}
	result, err := app.Ingest(ctx, opts...)
	if result != nil {
		printSummary(c.App.Writer, result)
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return fmt.Errorf("ingestion interrupted, previous table kept: %w", err)
		}
		return fmt.Errorf("ingestion failed: %w", err)
	}
	return nil
}

func initDBCommand(c *cli.Context) error {
	cfg := configFrom(c)
	if !c.Bool("yes") {
		return fmt.Errorf("init-db drops database %q; rerun with --yes to confirm", cfg.Database.Name)
	}
	if err := retailrag.InitDatabase(c.Context, cfg, slog.Default()); err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	fmt.Fprintf(c.App.Writer, "Database %s created\n", cfg.Database.Name)
	return nil
}

func reindexCommand(c *cli.Context) error {
	cfg := configFrom(c)
	if c.IsSet("method") {
		cfg.Index.Method = c.String("method")
	}
	if c.IsSet("num-leaves") {
		cfg.Index.NumLeaves = c.Int("num-leaves")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	app, err := openApp(c.Context, cfg)
	if err != nil {
		return err
	}
	defer app.Close()
	return app.Reindex(c.Context)
}

func queryCommand(c *cli.Context) error {
	cfg := configFrom(c)
	if c.IsSet("top-k") {
		cfg.Server.TopK = c.Int("top-k")
	}
	q := core.Query{Text: c.String("text"), ImageURI: c.String("image")}
	if _, err := core.ValidateQuery(q); err != nil {
		return err
	}

	app, err := openApp(c.Context, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	svc, err := app.NewRecommender()
	if err != nil {
		return err
	}

	var monitor recommend.Monitor = quietMonitor{}
	if c.Bool("verbose") {
		monitor = &traceMonitor{w: c.App.ErrWriter}
	}
	answer, err := svc.RecommendWithMonitor(c.Context, q, monitor)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, answer)
	return nil
}

func writeConfigCommand(c *cli.Context) error {
	path := c.Args().First()
	if path == "" {
		return errors.New("write-config requires a destination path")
	}
	return configFrom(c).Save(path)
}

func configFrom(c *cli.Context) *config.Config {
	cfg, _ := c.App.Metadata[configKey].(*config.Config)
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return cfg
}

// setupLogger loads dotenv files and the configuration, then installs the
// default slog logger at the configured level.
func setupLogger(c *cli.Context) error {
	if err := config.LoadDotEnv(c.StringSlice("env-file")...); err != nil {
		return err
	}
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	if c.IsSet("log-level") {
		cfg.Logging.Level = c.String("log-level")
	}
	level, err := cfg.LogLevel()
	if err != nil {
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", cfg.Logging.Level)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	if c.App.Metadata == nil {
		c.App.Metadata = map[string]any{}
	}
	c.App.Metadata[configKey] = cfg
	slog.Debug("configuration loaded",
		"table", cfg.Catalog.Table,
		"index", cfg.Index.Method,
		"dimension", cfg.Embedding.Dimension)
	return nil
}
