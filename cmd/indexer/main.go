package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/Adithya-Monish-Kumar-K/codesearch/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/codesearch/internal/codesearch"
	"github.com/Adithya-Monish-Kumar-K/codesearch/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/codesearch/internal/indexer/progress"
	"github.com/Adithya-Monish-Kumar-K/codesearch/internal/watch"
	"github.com/Adithya-Monish-Kumar-K/codesearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/codesearch/pkg/database"
	apperrors "github.com/Adithya-Monish-Kumar-K/codesearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/codesearch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/codesearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/codesearch/pkg/metrics"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to a YAML or TOML config file")
	sourceDir := flag.String("source", "", "directory to index (default: indexer.sourceDir or .)")
	indexDir := flag.String("index", "", "index directory (default: indexer.indexDir)")
	exts := flag.String("ext", "", "comma-separated file extensions, e.g. .go,.md")
	name := flag.String("name", "", "register the index in the catalog under this name")
	watchMode := flag.Bool("watch", false, "rebuild the index whenever the source tree changes")
	verbose := flag.Bool("v", false, "log every indexed file")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "failed to read .env: %v\n", err)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return apperrors.ExitUsage
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	src := firstNonEmpty(*sourceDir, cfg.Indexer.SourceDir, ".")
	idx := firstNonEmpty(*indexDir, cfg.Indexer.IndexDir)
	extensions := cfg.Indexer.Extensions
	if *exts != "" {
		extensions = splitList(*exts)
	}
	if !filepath.IsAbs(idx) && *indexDir == "" {
		idx = filepath.Join(src, idx)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)
	if cfg.Metrics.Enabled {
		srv, err := metrics.StartServer(cfg.Metrics.Port, reg)
		if err != nil {
			slog.Error("failed to start metrics server", "error", err)
			return apperrors.ExitFailure
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(sctx)
		}()
	}

	writerOpts := []indexer.Option{indexer.WithMetrics(m)}
	if cfg.Kafka.Enabled {
		progressTopic := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topics.IndexProgress)
		completeTopic := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topics.IndexComplete)
		defer progressTopic.Close()
		defer completeTopic.Close()
		collector := progress.NewCollector(progressTopic, completeTopic, progress.CollectorConfig{})
		collector.Start(ctx)
		defer collector.Close()
		writerOpts = append(writerOpts, indexer.WithPublisher(collector))
		slog.Info("publishing build progress", "brokers", cfg.Kafka.Brokers, "topic", progressTopic.Topic())
	}

	engineOpts := []codesearch.Option{codesearch.WithIndexerOptions(writerOpts...)}
	if cfg.Catalog.Enabled || *name != "" {
		db, err := database.Open(cfg.Catalog)
		if err != nil {
			slog.Error("failed to open catalog", "error", err)
			return apperrors.ExitCode(err)
		}
		defer db.Close()
		cat, err := catalog.New(ctx, db)
		if err != nil {
			slog.Error("failed to prepare catalog", "error", err)
			return apperrors.ExitFailure
		}
		engineOpts = append(engineOpts, codesearch.WithCatalog(cat))
	}
	engine := codesearch.New(cfg, engineOpts...)

	events := codesearch.Events{
		Completed: func(n int64, elapsed time.Duration) {
			slog.Info("index complete", "files", n, "elapsed", elapsed)
		},
	}
	if *verbose {
		events.FileIndexed = func(path string) { slog.Info("indexed", "file", path) }
	}

	build := func(ctx context.Context) error {
		stats, err := engine.CreateIndex(ctx, src, idx, extensions, events).Wait()
		if err != nil {
			return err
		}
		if stats.Failed > 0 || stats.FailedDirs > 0 {
			slog.Warn("some entries could not be read", "files", stats.Failed, "dirs", stats.FailedDirs)
		}
		abs, _ := filepath.Abs(idx)
		absSrc, _ := filepath.Abs(src)
		return engine.Register(ctx, *name, absSrc, abs, extensions, stats)
	}

	if err := build(ctx); err != nil {
		slog.Error("index build failed", "error", err)
		return apperrors.ExitCode(err)
	}
	if !*watchMode {
		return apperrors.ExitOK
	}

	w, err := watch.New(src, extensions, cfg.Watch.Debounce, build, idx)
	if err != nil {
		slog.Error("failed to start watcher", "error", err)
		return apperrors.ExitFailure
	}
	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("watcher stopped", "error", err)
		return apperrors.ExitFailure
	}
	return apperrors.ExitOK
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
