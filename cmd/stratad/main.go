// Command stratad wires configuration into the engine: it loads the
// declarative schema, resolves pipelines, ingests a directory into a
// dataset, and serves ad-hoc queries from the command line.
//
// Usage:
//
//	stratad ingest <dataset> <strategy> <database> <dir>
//	stratad query <database> [retrieval] <query text>
//
// The app config path comes from STRATA_CONFIG (default stratad.toml);
// the engine schema path from its engine_path key.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	strata "github.com/hexleaf/strata"
	"github.com/hexleaf/strata/engine"
	"github.com/hexleaf/strata/internal/config"
	"github.com/hexleaf/strata/observer"
)

func main() {
	cfg := config.Load(os.Getenv("STRATA_CONFIG"))
	logger := newLogger(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	resolverOpts := []engine.ResolverOption{engine.WithLogger(logger)}
	if cfg.Observer.Enabled {
		inst, shutdown, err := observer.Init(ctx)
		if err != nil {
			log.Fatalf("observer init: %v", err)
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				logger.Warn("observer shutdown", "error", err)
			}
		}()
		resolverOpts = append(resolverOpts, engine.WithInstruments(inst))
	}

	engCfg, err := engine.Load(cfg.EnginePath)
	if err != nil {
		log.Fatalf("load engine config %s: %v", cfg.EnginePath, err)
	}
	resolver, err := engine.NewResolver(engCfg, resolverOpts...)
	if err != nil {
		log.Fatalf("resolve config: %v", err)
	}
	eng := engine.New(resolver,
		engine.WithEngineLogger(logger),
		engine.WithOrchestrator(engine.NewOrchestrator(
			engine.WithWorkers(cfg.Ingest.Workers),
			engine.WithOrchestratorLogger(logger),
		)))
	defer eng.Close()

	if len(os.Args) < 2 {
		usage()
	}
	switch os.Args[1] {
	case "ingest":
		if len(os.Args) != 6 {
			usage()
		}
		runIngest(ctx, eng, logger, os.Args[2], os.Args[3], os.Args[4], os.Args[5])
	case "query":
		if len(os.Args) < 4 {
			usage()
		}
		retrieval := ""
		text := os.Args[3]
		if len(os.Args) > 4 {
			retrieval = os.Args[3]
			text = os.Args[4]
		}
		runQuery(ctx, eng, os.Args[2], retrieval, text)
	default:
		usage()
	}
}

func runIngest(ctx context.Context, eng *engine.Engine, logger *slog.Logger, dataset, strategy, database, dir string) {
	d, err := eng.CreateDataset(ctx, dataset, strategy, database)
	if err != nil {
		log.Fatalf("create dataset: %v", err)
	}

	var files int
	err = filepath.WalkDir(dir, func(path string, de os.DirEntry, err error) error {
		if err != nil || de.IsDir() {
			return err
		}
		content, err := os.ReadFile(path)
		if err != nil {
			logger.Warn("skipping unreadable file", "file", path, "error", err)
			return nil
		}
		rel, relErr := filepath.Rel(dir, path)
		if relErr != nil {
			rel = path
		}
		d.AddFile(rel, content)
		files++
		return nil
	})
	if err != nil {
		log.Fatalf("walk %s: %v", dir, err)
	}
	logger.Info("directory staged", "dataset", dataset, "files", files)

	task, err := eng.Process(ctx, dataset)
	if err != nil {
		log.Fatalf("process: %v", err)
	}
	state, outcomes, err := task.Await(ctx)
	if err != nil {
		log.Fatalf("await task: %v", err)
	}
	fmt.Printf("task %s: %s\n", task.ID(), state)
	for _, o := range outcomes {
		fmt.Printf("  %-40s %-20s chunks=%d", o.Filename, o.Status, o.ChunksStored)
		if o.Error != "" {
			fmt.Printf(" error=%s", o.Error)
		}
		fmt.Println()
	}
	if state == engine.TaskFailed {
		os.Exit(1)
	}
}

func runQuery(ctx context.Context, eng *engine.Engine, database, retrieval, text string) {
	results, err := eng.Query(ctx, database, retrieval, text, strata.QueryOptions{})
	if err != nil {
		log.Fatalf("query: %v", err)
	}
	if len(results) == 0 {
		fmt.Println("no results")
		return
	}
	for i, r := range results {
		fmt.Printf("%2d. [%.4f] %s\n", i+1, r.Score, firstLine(r.Text))
	}
}

func firstLine(s string) string {
	for i, c := range s {
		if c == '\n' || i > 120 {
			return s[:i] + "…"
		}
	}
	return s
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage:
  stratad ingest <dataset> <strategy> <database> <dir>
  stratad query <database> [retrieval] <query text>`)
	os.Exit(2)
}
