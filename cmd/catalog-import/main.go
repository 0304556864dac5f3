// Command catalog-import merges product dumps into the catalog database.
//
//	catalog-import -database-url postgres://... dump1.jsonl.gz dump2.jsonl.gz
//
// Each dump holds one JSON product per line. Records in later dumps replace
// records with the same ID in earlier ones.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront-cart/internal/catalog"
	"github.com/xenking/storefront-cart/internal/storage/postgres"
)

func main() {
	var (
		databaseURL string
		cfg         catalog.ImportConfig
	)
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.UintVar(&cfg.ExpectedRecords, "expected-records", 1_000_000, "expected records per dump, sizes bloom filters")
	flag.Float64Var(&cfg.FalsePositiveRate, "fpr", 0.001, "bloom filter false positive rate")
	flag.IntVar(&cfg.BatchSize, "batch-size", 500, "products per upsert batch")
	flag.Parse()

	lg, _ := zap.NewProduction()
	defer func() { _ = lg.Sync() }()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		lg.Fatal("Database URL is required: set --database-url or DATABASE_URL")
	}
	files := flag.Args()
	if len(files) == 0 {
		lg.Fatal("At least one dump file is required")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	ctx = zctx.Base(ctx, lg)

	stats, err := run(ctx, databaseURL, files, cfg)
	if err != nil {
		lg.Fatal("Catalog import failed", zap.Error(err))
	}
	lg.Info("Catalog import completed",
		zap.Int("files", stats.Files),
		zap.Int64("records", stats.Records),
		zap.Int64("invalid", stats.Invalid),
		zap.Int("candidates", stats.Candidates),
		zap.Int64("upserted", stats.Upserted),
		zap.Int64("superseded", stats.Superseded),
	)
}

func run(ctx context.Context, databaseURL string, files []string, cfg catalog.ImportConfig) (*catalog.Stats, error) {
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			return nil, errors.Wrapf(err, "check file %s", f)
		}
	}

	zctx.From(ctx).Info("Connecting to database")
	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return nil, errors.Wrap(err, "run migrations")
	}

	return catalog.NewImporter(postgres.NewProductRepository(pool), cfg).Import(ctx, files)
}
