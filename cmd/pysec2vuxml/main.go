package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/freebsd-sec/pysec2vuxml/internal/cache"
	"github.com/freebsd-sec/pysec2vuxml/internal/config"
	"github.com/freebsd-sec/pysec2vuxml/internal/errors"
	"github.com/freebsd-sec/pysec2vuxml/internal/feed"
	"github.com/freebsd-sec/pysec2vuxml/internal/observability"
	"github.com/freebsd-sec/pysec2vuxml/internal/policy"
	"github.com/freebsd-sec/pysec2vuxml/internal/ports"
	"github.com/freebsd-sec/pysec2vuxml/internal/recon"
	"github.com/freebsd-sec/pysec2vuxml/internal/report"
	"github.com/freebsd-sec/pysec2vuxml/internal/suppress"
	"github.com/freebsd-sec/pysec2vuxml/internal/vuxml"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		// Structural failures (snapshot or suppression lists unreadable)
		// get a distinct exit code so cron wrappers can tell them from
		// an ordinary failed pass
		if errors.IsFatal(err) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel)
	logger.Info("starting pysec2vuxml",
		"index_path", cfg.Catalog.IndexPath,
		"log_level", cfg.Observability.LogLevel)

	metrics := observability.GetMetrics()

	logger.Debug("initializing cache store", "type", cfg.Cache.Type)
	var store cache.Store
	switch cfg.Cache.Type {
	case "sqlite":
		store, err = cache.NewSQLiteStore(cfg.Cache.SQLitePath)
		if err != nil {
			return fmt.Errorf("failed to initialize sqlite cache: %w", err)
		}
	case "memory":
		store = cache.NewMemoryStore()
	default:
		return fmt.Errorf("unsupported cache type: %s", cfg.Cache.Type)
	}
	defer store.Close()

	if swept, err := store.Sweep(ctx); err != nil {
		logger.Warn("cache sweep failed", "error", err)
	} else if swept > 0 {
		logger.Debug("cache swept", "expired_entries", swept)
	}

	flavors := ports.FlavorRange{
		Major:      cfg.Catalog.FlavorMajor,
		FirstMinor: cfg.Catalog.FlavorFirstMinor,
		LastMinor:  cfg.Catalog.FlavorLastMinor,
	}

	records, err := ports.LoadCatalog(cfg.Catalog.IndexPath, logger, metrics)
	if err != nil {
		return fmt.Errorf("failed to load ports catalog: %w", err)
	}
	logger.Info("catalog loaded",
		"flavored_packages", len(records),
		"flavor_range", fmt.Sprintf("py%d%d-py%d%d",
			flavors.Major, flavors.FirstMinor, flavors.Major, flavors.LastMinor))

	snapshot, err := vuxml.Load(cfg.Database.VuXMLPath, logger)
	if err != nil {
		return fmt.Errorf("failed to load vulnerability database: %w", err)
	}

	lists, err := suppress.LoadLists(cfg.Database.IgnorePath, cfg.Database.ReportedPath)
	if err != nil {
		return fmt.Errorf("failed to load suppression lists: %w", err)
	}
	logger.Debug("suppression lists loaded",
		"ignored", lists.Ignore.Len(),
		"reported", lists.Reported.Len())

	engine, err := policy.NewEngine(logger, policy.Config{
		Expression:     cfg.Policy.Expression,
		FailureMessage: cfg.Policy.FailureMessage,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize review policy: %w", err)
	}

	feedClient := feed.NewClient(feed.Config{
		Endpoint:      cfg.Feed.Endpoint,
		Timeout:       cfg.Feed.Timeout,
		RetryAttempts: cfg.Feed.RetryAttempts,
		RetryBackoff:  cfg.Feed.RetryBackoff,
		CacheTTL:      cfg.Feed.CacheTTL,
	}, store, logger, metrics)
	cveClient := feed.NewCVEClient(cfg.Feed.CVEEndpoint, cfg.Feed.Timeout, store, logger)

	driver := recon.NewDriver(
		feedClient,
		cveClient,
		recon.NewMatcher(logger, metrics),
		recon.NewFilter(logger, lists, snapshot),
		engine,
		recon.NewRenderer(),
		recon.Config{Concurrency: cfg.Feed.Concurrency},
		logger,
		metrics,
	)

	result, err := driver.Run(ctx, records)
	if err != nil {
		return fmt.Errorf("reconciliation pass failed: %w", err)
	}

	out := report.NewWriter(os.Stdout)
	if err := out.WriteTable(result.Candidates); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	if err := out.WriteRelated(result.Candidates, records); err != nil {
		return fmt.Errorf("failed to write related-ports listing: %w", err)
	}
	if err := out.WriteSummary(result.Summary); err != nil {
		return fmt.Errorf("failed to write summary: %w", err)
	}

	if err := report.WriteEntriesFile(cfg.Output.NewEntriesPath, result.NewEntries); err != nil {
		return err
	}
	if err := report.WriteEntriesFile(cfg.Output.ModifiedEntriesPath, result.ModifiedEntries); err != nil {
		return err
	}
	if len(result.NewEntries) > 0 {
		logger.Info("new entries written", "path", cfg.Output.NewEntriesPath, "count", len(result.NewEntries))
	}
	if len(result.ModifiedEntries) > 0 {
		logger.Info("modified entries written", "path", cfg.Output.ModifiedEntriesPath, "count", len(result.ModifiedEntries))
	}

	for _, cand := range result.Candidates {
		if cand.NeedsReview {
			logger.Warn("candidate needs review",
				"vuln_id", cand.ID,
				"reason", cand.ReviewReason)
		}
	}

	if cfg.Output.MetricsTextfile != "" {
		if err := observability.WriteTextfile(cfg.Output.MetricsTextfile); err != nil {
			logger.Warn("failed to write metrics textfile", "error", err)
		}
	}

	return nil
}
