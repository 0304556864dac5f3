// Package app wires the storefront service together.
package app

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xenking/storefront-cart/db"
	"github.com/xenking/storefront-cart/internal/catalog"
	"github.com/xenking/storefront-cart/internal/domain/auth"
	"github.com/xenking/storefront-cart/internal/domain/cart"
	"github.com/xenking/storefront-cart/internal/domain/order"
	"github.com/xenking/storefront-cart/internal/domain/product"
	"github.com/xenking/storefront-cart/internal/handler"
	"github.com/xenking/storefront-cart/internal/orderapi"
	"github.com/xenking/storefront-cart/internal/storage/memory"
	"github.com/xenking/storefront-cart/internal/storage/postgres"
	"github.com/xenking/storefront-cart/pkg/health"
	"github.com/xenking/storefront-cart/pkg/httpmiddleware"
)

// backend groups the storage implementations selected by Config.Storage.
type backend struct {
	carts    cart.Storage
	products product.Repository
	tokens   auth.Repository
	pool     *pgxpool.Pool
}

func (b *backend) Close() {
	if b.pool != nil {
		b.pool.Close()
	}
}

func openBackend(ctx context.Context, lg *zap.Logger, cfg *Config) (*backend, error) {
	if cfg.Storage == StoragePostgres {
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, errors.Wrap(err, "create db pool")
		}
		if err := postgres.RunMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, errors.Wrap(err, "run migrations")
		}
		return &backend{
			carts:    postgres.NewCartStorage(pool),
			products: postgres.NewProductRepository(pool),
			tokens:   postgres.NewTokenRepository(pool),
			pool:     pool,
		}, nil
	}

	products, err := catalog.DecodeBytes(db.SeedProducts)
	if err != nil {
		return nil, errors.Wrap(err, "load seed catalog")
	}
	tokens := memory.NewTokenRepository()
	pepper := []byte(cfg.APITokenPepper)
	for i, raw := range cfg.Tokens {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if err := tokens.Upsert(ctx, auth.TokenInfo{
			ID:        "config-" + strconv.Itoa(i+1),
			TokenHash: auth.HashToken(pepper, raw),
			Name:      "config",
			Role:      "customer",
		}); err != nil {
			return nil, errors.Wrap(err, "register token")
		}
	}
	if len(cfg.Tokens) == 0 {
		lg.Warn("No bearer tokens configured, checkout will reject every request")
	}
	lg.Info("Using in-memory storage", zap.Int("products", len(products)))
	return &backend{
		carts:    memory.NewCartStorage(),
		products: memory.NewProductRepository(products),
		tokens:   tokens,
	}, nil
}

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr), zap.String("storage", cfg.Storage))

	policy, err := cfg.FeePolicy()
	if err != nil {
		return err
	}

	store, err := openBackend(ctx, lg, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	orders, err := orderapi.New(orderapi.Config{
		BaseURL: cfg.OrderAPI.BaseURL,
		Timeout: cfg.OrderAPI.Timeout,
	}, m.TracerProvider(), m.MeterProvider())
	if err != nil {
		return errors.Wrap(err, "create order api client")
	}

	// Health check service.
	healthSvc := health.New()
	if store.pool != nil {
		healthSvc.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck(store.pool))
	}
	healthSvc.AddReadinessCheck("order_api", 5*time.Second, health.PingCheck(orders),
		health.WithThresholds(3, 1))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// Domain services.
	registry := cart.NewRegistry(store.carts, cart.RegistryConfig{
		Cart:    cart.Config{MaxQuantity: cfg.Cart.MaxQuantity},
		IdleTTL: cfg.Cart.IdleTTL,
	})
	registry.StartCleanup(ctx)

	orderService, err := order.NewService(registry, store.products, orders, policy, m.TracerProvider(), m.MeterProvider())
	if err != nil {
		return errors.Wrap(err, "create order service")
	}

	// HTTP handlers.
	h, err := handler.New(handler.Config{
		ImageBaseURL: cfg.ImageBaseURL,
		SecureCookie: cfg.Cookie.Secure,
		CookieMaxAge: cfg.Cookie.MaxAge,
		KeepAlive:    cfg.Events.KeepAlive,
	}, store.products, registry, orderService, m.MeterProvider())
	if err != nil {
		return errors.Wrap(err, "create handler")
	}
	securityHandler := handler.NewSecurityHandler(store.tokens, []byte(cfg.APITokenPepper))

	// Mux: health endpoints + API routes on one server.
	mux := http.NewServeMux()
	mux.HandleFunc("GET /livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("GET /readyz", healthSvc.ReadyEndpoint)
	h.Register(mux, securityHandler)
	routeFinder := httpmiddleware.MakeRouteFinder(mux)

	isEvents := func(r *http.Request) bool { return r.URL.Path == handler.EventsPath }
	isProbe := func(r *http.Request) bool { return r.URL.Path == "/livez" || r.URL.Path == "/readyz" }

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      cfg.OrderAPI.Timeout + 10*time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization", handler.CartHeader, httpmiddleware.RequestIDHeader},
				ExposeHeaders:    []string{handler.CartHeader, httpmiddleware.RequestIDHeader},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
				Skip:   func(r *http.Request) bool { return isProbe(r) || isEvents(r) },
			}),
			httpmiddleware.Instrument(httpmiddleware.InstrumentConfig{
				Service:        "storefront-api",
				Routes:         routeFinder,
				TracerProvider: m.TracerProvider(),
				MeterProvider:  m.MeterProvider(),
				Skip:           isEvents,
			}),
			httpmiddleware.LogRequests(routeFinder),
			httpmiddleware.Labeler(routeFinder),
		),
	}

	// Event streams never finish on their own.
	server.RegisterOnShutdown(h.CloseStreams)

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}
