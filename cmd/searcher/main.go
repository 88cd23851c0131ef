package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Adithya-Monish-Kumar-K/codesearch/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/codesearch/internal/codesearch"
	"github.com/Adithya-Monish-Kumar-K/codesearch/internal/export"
	"github.com/Adithya-Monish-Kumar-K/codesearch/internal/searcher"
	"github.com/Adithya-Monish-Kumar-K/codesearch/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/codesearch/internal/searcher/result"
	"github.com/Adithya-Monish-Kumar-K/codesearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/codesearch/pkg/database"
	apperrors "github.com/Adithya-Monish-Kumar-K/codesearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/codesearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/codesearch/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/codesearch/pkg/redis"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to a YAML or TOML config file")
	indexDir := flag.String("index", "", "index directory or catalog name (default: indexer.indexDir)")
	wildcard := flag.Bool("wildcard", false, "treat the pattern as a wildcard ('?' one character, '*' any run)")
	limit := flag.Int("n", 0, "maximum number of hits (default: search.defaultLimit)")
	withFindings := flag.Bool("export", false, "list the line and position of every occurrence")
	asJSON := flag.Bool("json", false, "write results as JSON")
	list := flag.Bool("list", false, "list the indexes registered in the catalog and exit")
	drop := flag.String("drop", "", "delete the named index, its files and its cached results, then exit")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] pattern\n", os.Args[0])
		flag.PrintDefaults()
	}
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(prometheus.NewRegistry())
	engineOpts := []codesearch.Option{
		codesearch.WithSearcherOptions(searcher.WithMetrics(m), searcher.WithTimeout(cfg.Search.Timeout)),
	}
	var qc *cache.QueryCache
	if cfg.Redis.Enabled {
		rc, err := pkgredis.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, search caching disabled", "error", err)
		} else {
			defer rc.Close()
			qc = cache.New(rc, cfg.Redis.CacheTTL, m)
			engineOpts = append(engineOpts, codesearch.WithCache(qc))
			slog.Debug("search cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}

	if cfg.Catalog.Enabled || *list || *drop != "" {
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

	if *list {
		return listIndexes(ctx, engine.Catalog(), *asJSON)
	}
	if *drop != "" {
		if err := engine.Drop(ctx, *drop); err != nil {
			slog.Error("drop failed", "name", *drop, "error", err)
			return apperrors.ExitCode(err)
		}
		return apperrors.ExitOK
	}
	if flag.NArg() != 1 {
		flag.Usage()
		return apperrors.ExitUsage
	}
	pattern := flag.Arg(0)

	maxHits := *limit
	if maxHits == 0 {
		maxHits = cfg.Search.DefaultLimit
	}
	maxHits = min(maxHits, cfg.Search.MaxResults)

	idx := *indexDir
	if idx == "" {
		idx = cfg.Indexer.IndexDir
	}
	res, err := engine.Search(ctx, idx, pattern, maxHits, *wildcard)
	if err != nil {
		slog.Error("search failed", "error", err)
		return apperrors.ExitCode(err)
	}
	if qc != nil {
		hits, misses := qc.Stats()
		slog.Debug("cache", "hits", hits, "misses", misses)
	}

	if !*withFindings {
		if err := printResults(os.Stdout, res, *asJSON); err != nil {
			slog.Error("writing results", "error", err)
			return apperrors.ExitFailure
		}
		return apperrors.ExitOK
	}
	details, err := engine.Export(ctx, res, pattern, *wildcard)
	if err != nil {
		slog.Error("export failed", "error", err)
		return apperrors.ExitCode(err)
	}
	for _, d := range details {
		if d.Err != nil {
			slog.Warn("file could not be read", "path", d.Path, "error", d.Err)
		}
	}
	if err := printDetails(os.Stdout, details, *asJSON); err != nil {
		slog.Error("writing results", "error", err)
		return apperrors.ExitFailure
	}
	return apperrors.ExitOK
}

func printResults(w io.Writer, res *result.Container, asJSON bool) error {
	if asJSON {
		return json.NewEncoder(w).Encode(struct {
			Hits    int             `json:"hits"`
			Total   int             `json:"total"`
			Results []result.Result `json:"results"`
		}{res.NumberOfHits(), res.TotalMatches(), res.Results()})
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for r := range res.All() {
		fmt.Fprintf(tw, "%.4f\t%s\n", r.Score, r.Path)
	}
	fmt.Fprintf(tw, "\n%d of %d matching files\n", res.NumberOfHits(), res.TotalMatches())
	return tw.Flush()
}

func printDetails(w io.Writer, details []export.DetailedResult, asJSON bool) error {
	if asJSON {
		return json.NewEncoder(w).Encode(details)
	}
	for _, d := range details {
		for _, f := range d.Findings {
			if _, err := fmt.Fprintf(w, "%s:%d:%d\n", d.Path, f.Line, f.Position); err != nil {
				return err
			}
		}
	}
	return nil
}

func listIndexes(ctx context.Context, cat *catalog.Catalog, asJSON bool) int {
	entries, err := cat.List(ctx)
	if err != nil {
		slog.Error("listing catalog", "error", err)
		return apperrors.ExitFailure
	}
	if asJSON {
		if err := json.NewEncoder(os.Stdout).Encode(entries); err != nil {
			return apperrors.ExitFailure
		}
		return apperrors.ExitOK
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tFILES\tSOURCE\tINDEX\tUPDATED")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\n", e.Name, e.FileCount, e.Source, e.IndexPath, e.UpdatedAt.Format("2006-01-02 15:04"))
	}
	tw.Flush()
	return apperrors.ExitOK
}
