// Package main is the kbindex CLI entry point.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/neuralstark/kbindex/internal/chunker"
	"github.com/neuralstark/kbindex/internal/config"
	"github.com/neuralstark/kbindex/internal/embedding"
	"github.com/neuralstark/kbindex/internal/extract"
	"github.com/neuralstark/kbindex/internal/health"
	"github.com/neuralstark/kbindex/internal/ingest"
	"github.com/neuralstark/kbindex/internal/models"
	"github.com/neuralstark/kbindex/internal/rerank"
	"github.com/neuralstark/kbindex/internal/retrieval"
	"github.com/neuralstark/kbindex/internal/store"
	"github.com/neuralstark/kbindex/internal/watcher"
	"github.com/neuralstark/kbindex/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/kbindex/config.yaml"

func main() {
	// Local .env overrides are optional.
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	switch os.Args[1] {
	case "run":
		runService()
	case "query":
		runQuery()
	case "index":
		runIndexFiles()
	case "delete":
		runDelete()
	case "status":
		runStatus()
	case "health":
		runHealth()
	case "backup":
		runBackup()
	case "restore":
		runRestore()
	case "recover":
		runRecover()
	case "version", "--version", "-v":
		fmt.Printf("kbindex version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`kbindex - watched-directory document index with semantic retrieval

Usage: kbindex <command> [flags]

Commands:
  run       Watch the document roots and serve the index until interrupted
  query     Retrieve context for a question
  index     Ingest one or more files by path
  delete    Remove a document from the index by path
  status    Show index statistics
  health    Run a health check (exit 1 when unhealthy)
  backup    Create an index backup (or list with -list)
  restore   Restore the index from a backup (most recent when unnamed)
  recover   Run recovery for a corruption class
  version   Print version
`)
}

// loadConfig loads config from path. When path is the default, a config.yaml
// in the current directory takes precedence (for development).
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, err := os.Getwd(); err == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, err := os.Stat(fallback); err == nil {
				cfg, err := config.Load(fallback)
				if err != nil {
					return nil, "", err
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// components bundles everything a command needs.
type components struct {
	cfg      *config.Config
	logger   *zap.Logger
	embedder embedding.Embedder
	reranker rerank.Reranker
	index    *store.Index
	engine   *retrieval.Engine
	proc     *ingest.Processor
	health   *health.Manager
}

func initComponents(cfg *config.Config, logger *zap.Logger) (*components, error) {
	var embedder embedding.Embedder
	onnxEmbedder, err := embedding.NewONNXEmbedder(
		cfg.Embedding.ModelPath,
		cfg.Embedding.Dimensions,
		cfg.Embedding.MaxTokens,
		cfg.Embedding.CacheSize,
	)
	if err != nil {
		logger.Warn("ONNX embedder unavailable, using deterministic fallback", zap.Error(err))
		embedder = embedding.NewMockEmbedder(cfg.Embedding.Dimensions)
	} else {
		embedder = onnxEmbedder
	}

	var reranker rerank.Reranker
	onnxReranker, err := rerank.NewONNXReranker(cfg.Rerank.ModelPath, cfg.Rerank.MaxTokens)
	if err != nil {
		logger.Warn("ONNX reranker unavailable, using word-overlap fallback", zap.Error(err))
		reranker = rerank.NewMockReranker()
	} else {
		reranker = onnxReranker
	}

	index, err := store.Acquire(cfg.Store.IndexDir, embedder, cfg.Embedding.BatchSize,
		utils.ComponentLogger(logger, "store"))
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}

	engine := retrieval.NewEngine(index, reranker,
		cfg.Retrieval.CandidateK, cfg.Retrieval.RerankTopN, cfg.Retrieval.ScoreThreshold,
		retrieval.WithLogger(utils.ComponentLogger(logger, "retrieval")),
		retrieval.WithTimeout(cfg.Retrieval.Timeout()),
	)

	proc := ingest.NewProcessor(index, extract.NewExtractor(),
		chunker.NewSplitter(cfg.Chunking.ChunkSize, cfg.Chunking.ChunkOverlap),
		cfg.Watch.InternalDir, cfg.Watch.ExternalDir,
		ingest.WithLogger(utils.ComponentLogger(logger, "ingest")),
		ingest.WithRetryPolicy(ingest.RetryPolicy{
			MaxAttempts: cfg.Ingest.MaxRetries,
			Delay:       cfg.Ingest.RetryDelay(),
		}),
		ingest.WithTimeLimits(cfg.Ingest.SoftTimeLimit(), cfg.Ingest.HardTimeLimit()),
	)

	healthMgr := health.NewManager(
		cfg.Store.IndexDir, cfg.Store.BackupDir,
		[]string{cfg.Watch.InternalDir, cfg.Watch.ExternalDir},
		cfg.Health.BackupRetention, index,
		health.WithLogger(utils.ComponentLogger(logger, "health")),
	)

	return &components{
		cfg:      cfg,
		logger:   logger,
		embedder: embedder,
		reranker: reranker,
		index:    index,
		engine:   engine,
		proc:     proc,
		health:   healthMgr,
	}, nil
}

func (c *components) close() {
	_ = store.Release(c.cfg.Store.IndexDir)
	_ = c.embedder.Close()
	_ = c.reranker.Close()
}

// setup is the shared preamble: flags, config, logger, components.
func setup(args []string, fs *flag.FlagSet) (*components, []string) {
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(args)

	cfg, resolved, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug || *debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	logger.Info("config loaded", zap.String("config_path", resolved))

	c, err := initComponents(cfg, logger)
	if err != nil {
		logger.Fatal("initialization failed", zap.Error(err))
	}
	return c, fs.Args()
}

func runService() {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	c, _ := setup(os.Args[2:], fs)
	defer c.close()
	defer c.logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool := ingest.NewPool(c.proc, c.cfg.Ingest.Workers, c.cfg.Ingest.QueueSize,
		ingest.WithPoolLogger(utils.ComponentLogger(c.logger, "pool")))
	pool.Start(ctx)

	w := watcher.New(
		[]string{c.cfg.Watch.InternalDir, c.cfg.Watch.ExternalDir},
		c.cfg.Watch.Extensions,
		pool,
		watcher.WithLogger(utils.ComponentLogger(c.logger, "watcher")),
	)
	if err := w.Start(ctx); err != nil {
		c.logger.Fatal("watcher start failed", zap.Error(err))
	}
	go w.SyncExisting(ctx)
	go c.health.Run(ctx, c.cfg.Health.CheckInterval())

	c.logger.Info("kbindex running",
		zap.Strings("roots", w.Roots()),
		zap.String("index_dir", c.cfg.Store.IndexDir))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	c.logger.Info("shutting down")
	w.Stop()
	cancel()
	if err := pool.Close(); err != nil {
		c.logger.Warn("pool shutdown", zap.Error(err))
	}
}

func runQuery() {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	asJSON := fs.Bool("json", false, "print the raw response as JSON")
	sourceType := fs.String("source-type", "", "restrict to one document root: internal or external")
	c, args := setup(os.Args[2:], fs)
	defer c.close()

	query := strings.TrimSpace(strings.Join(args, " "))
	if query == "" {
		fmt.Fprintln(os.Stderr, "Usage: kbindex query [flags] <question>")
		os.Exit(1)
	}
	var filter store.Filter
	if *sourceType != "" {
		filter = store.Filter{"source_type": *sourceType}
	}

	resp := c.engine.Query(context.Background(), query, filter)
	if *asJSON {
		data, _ := json.MarshalIndent(resp, "", "  ")
		fmt.Println(string(data))
		return
	}
	switch resp.Status {
	case models.QueryOK:
		fmt.Println(resp.Context)
		fmt.Printf("\nSources: %s\n", strings.Join(resp.Sources, ", "))
	case models.QueryNoInformation:
		fmt.Println("No relevant information in the index.")
	default:
		fmt.Fprintln(os.Stderr, "Index unavailable; try again or run: kbindex health")
		os.Exit(1)
	}
	fmt.Printf("(%d ms)\n", resp.QueryTimeMS)
}

func runIndexFiles() {
	fs := flag.NewFlagSet("index", flag.ExitOnError)
	c, args := setup(os.Args[2:], fs)
	defer c.close()

	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "Usage: kbindex index [flags] <path> [path...]")
		os.Exit(1)
	}
	failed := 0
	for _, path := range args {
		result := c.proc.Run(context.Background(), ingest.NewJob(path, models.EventCreated))
		fmt.Printf("%s: %s", result.Job.Path, result.Status)
		if result.ChunksIndexed > 0 {
			fmt.Printf(" (%d chunks)", result.ChunksIndexed)
		}
		if result.Err != "" {
			fmt.Printf(" - %s", result.Err)
			failed++
		}
		fmt.Println()
	}
	if failed > 0 {
		os.Exit(1)
	}
}

func runDelete() {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	c, args := setup(os.Args[2:], fs)
	defer c.close()

	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "Usage: kbindex delete [flags] <path>")
		os.Exit(1)
	}
	result := c.proc.Run(context.Background(), ingest.NewJob(args[0], models.EventDeleted))
	fmt.Printf("%s: %s (%d chunks removed)\n", result.Job.Path, result.Status, result.ChunksIndexed)
	if result.Err != "" {
		fmt.Fprintln(os.Stderr, result.Err)
		os.Exit(1)
	}
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	c, _ := setup(os.Args[2:], fs)
	defer c.close()
	ctx := context.Background()

	count, err := c.index.Count(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Index unavailable: %v\n", err)
		os.Exit(1)
	}
	sources, _ := c.index.Sources(ctx)
	fmt.Printf("Index:    %s\n", c.cfg.Store.IndexDir)
	fmt.Printf("Chunks:   %d\n", count)
	fmt.Printf("Vectors:  %d\n", c.index.VectorCount())
	fmt.Printf("Sources:  %d\n", len(sources))
	for _, src := range sources {
		fmt.Printf("  %s\n", src)
	}
	if backups, err := c.health.ListBackups(); err == nil {
		fmt.Printf("Backups:  %d\n", len(backups))
	}
	if events, err := c.health.Journal().Events(); err == nil && len(events) > 0 {
		last := events[len(events)-1]
		fmt.Printf("Last recovery: %s (%s) at %s\n",
			last.Action, last.CorruptionType, last.Timestamp.Format("2006-01-02 15:04:05"))
	}
}

func runHealth() {
	fs := flag.NewFlagSet("health", flag.ExitOnError)
	asJSON := fs.Bool("json", false, "print the report as JSON")
	c, _ := setup(os.Args[2:], fs)
	defer c.close()

	report := c.health.Check(context.Background())
	if *asJSON {
		data, _ := json.MarshalIndent(report, "", "  ")
		fmt.Println(string(data))
	} else {
		if report.Healthy {
			fmt.Println("Healthy")
		} else {
			fmt.Println("Unhealthy")
		}
		for _, issue := range report.Issues {
			fmt.Printf("  issue: %s\n", issue)
		}
		for _, warn := range report.Warnings {
			fmt.Printf("  warning: %s\n", warn)
		}
		for k, v := range report.Stats {
			fmt.Printf("  %s: %s\n", k, v)
		}
	}
	if !report.Healthy {
		os.Exit(1)
	}
}

func runBackup() {
	fs := flag.NewFlagSet("backup", flag.ExitOnError)
	list := fs.Bool("list", false, "list backups instead of creating one")
	reason := fs.String("reason", "manual", "reason tag for the backup name")
	c, _ := setup(os.Args[2:], fs)
	defer c.close()

	if *list {
		backups, err := c.health.ListBackups()
		if err != nil {
			fmt.Fprintf(os.Stderr, "List failed: %v\n", err)
			os.Exit(1)
		}
		for _, b := range backups {
			fmt.Printf("%s  %s  %s\n", b.Name, utils.FormatBytes(b.SizeBytes),
				b.CreatedAt.Format("2006-01-02 15:04:05"))
		}
		return
	}
	info, err := c.health.CreateBackup(*reason)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Backup failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Created %s (%s)\n", info.Name, utils.FormatBytes(info.SizeBytes))
}

func runRestore() {
	fs := flag.NewFlagSet("restore", flag.ExitOnError)
	c, args := setup(os.Args[2:], fs)
	defer c.close()

	if len(args) > 1 {
		fmt.Fprintln(os.Stderr, "Usage: kbindex restore [flags] [backup-name]")
		os.Exit(1)
	}
	name := ""
	if len(args) == 1 {
		name = args[0]
	}
	if err := store.Release(c.cfg.Store.IndexDir); err != nil {
		c.logger.Warn("index release before restore", zap.Error(err))
	}
	restored, err := c.health.RestoreFromBackup(name)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Restore failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Restored from %s\n", restored)
}

func runRecover() {
	fs := flag.NewFlagSet("recover", flag.ExitOnError)
	corruption := fs.String("type", health.CorruptionUnknown,
		"corruption class: empty_files, connection_failure, index_corruption or unknown")
	reason := fs.String("reason", "manual recovery", "reason recorded in the journal")
	c, _ := setup(os.Args[2:], fs)
	defer c.close()

	event, err := c.health.AutoRecover(context.Background(), *corruption, *reason)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Recovery failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Recovery complete (%s), pre-recovery backup at %s\n",
		event.CorruptionType, event.BackupPath)
}
