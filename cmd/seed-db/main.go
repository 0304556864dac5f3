package main

import (
	"context"
	"flag"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront-cart/db"
	"github.com/xenking/storefront-cart/internal/catalog"
	"github.com/xenking/storefront-cart/internal/domain/auth"
	"github.com/xenking/storefront-cart/internal/storage/postgres"
)

func main() {
	var (
		databaseURL    string
		productsFile   string
		apiToken       string
		apiTokenPepper string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&productsFile, "products-file", "", "path to products JSON file (default: embedded catalog)")
	flag.StringVar(&apiToken, "api-token", "", "bearer token to seed (or STOREFRONT_SEED_API_TOKEN env)")
	flag.StringVar(&apiTokenPepper, "api-token-pepper", "", "HMAC pepper for token hashing (or STOREFRONT_API_TOKEN_PEPPER env)")
	flag.Parse()

	lg, _ := zap.NewProduction()
	defer func() { _ = lg.Sync() }()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		lg.Fatal("Database URL is required: set --database-url or DATABASE_URL")
	}
	if apiToken == "" {
		apiToken = os.Getenv("STOREFRONT_SEED_API_TOKEN")
	}
	if apiToken == "" {
		lg.Fatal("API token is required: set --api-token or STOREFRONT_SEED_API_TOKEN")
	}
	if apiTokenPepper == "" {
		apiTokenPepper = os.Getenv("STOREFRONT_API_TOKEN_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	ctx = zctx.Base(ctx, lg)

	if err := run(ctx, databaseURL, productsFile, apiToken, apiTokenPepper); err != nil {
		lg.Fatal("Seed failed", zap.Error(err))
	}
	lg.Info("Seed completed")
}

func run(ctx context.Context, databaseURL, productsFile, apiToken, pepper string) error {
	lg := zctx.From(ctx)
	lg.Info("Connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	lg.Info("Running migrations")
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedProducts(ctx, postgres.NewProductRepository(pool), productsFile); err != nil {
		return errors.Wrap(err, "seed products")
	}
	if err := seedToken(ctx, postgres.NewTokenRepository(pool), apiToken, pepper); err != nil {
		return errors.Wrap(err, "seed api token")
	}
	return nil
}

func seedProducts(ctx context.Context, repo *postgres.ProductRepository, productsFile string) error {
	lg := zctx.From(ctx)

	data := db.SeedProducts
	if productsFile != "" {
		lg.Info("Reading products file", zap.String("path", productsFile))
		b, err := os.ReadFile(productsFile)
		if err != nil {
			return errors.Wrap(err, "read products file")
		}
		data = b
	}

	products, err := catalog.DecodeBytes(data)
	if err != nil {
		return err
	}
	lg.Info("Upserting products", zap.Int("count", len(products)))
	return repo.Upsert(ctx, products)
}

func seedToken(ctx context.Context, repo *postgres.TokenRepository, apiToken, pepper string) error {
	info := auth.TokenInfo{
		ID:        "default",
		TokenHash: auth.HashToken([]byte(pepper), apiToken),
		Name:      "Default test token",
		Role:      "customer",
	}
	if err := repo.Upsert(ctx, info); err != nil {
		return errors.Wrap(err, "upsert default token")
	}
	zctx.From(ctx).Info("Upserted API token", zap.String("id", info.ID), zap.String("name", info.Name))
	return nil
}
