package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/zaya-storefront/internal/domain/auth"
	"github.com/xenking/zaya-storefront/internal/domain/cart"
	"github.com/xenking/zaya-storefront/internal/domain/coupon"
	"github.com/xenking/zaya-storefront/internal/domain/order"
	"github.com/xenking/zaya-storefront/internal/domain/wishlist"
	"github.com/xenking/zaya-storefront/internal/handler"
	"github.com/xenking/zaya-storefront/internal/kv"
	"github.com/xenking/zaya-storefront/internal/notify"
	"github.com/xenking/zaya-storefront/internal/storage/cache"
	"github.com/xenking/zaya-storefront/internal/storage/postgres"
	"github.com/xenking/zaya-storefront/pkg/health"
	"github.com/xenking/zaya-storefront/pkg/httpmiddleware"
)

const serviceName = "zaya-storefront"

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Redis backs device storage, the order cache and the rate limiter.
	rdb, err := kv.Dial(ctx, cfg.RedisURL)
	if err != nil {
		return errors.Wrap(err, "connect redis")
	}
	defer func() { _ = rdb.Close() }()

	// Health check service.
	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck(pool))
	healthSvc.AddReadinessCheck("redis", 2*time.Second, health.RedisCheck(rdb))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.Start(ctx, 10*time.Second)

	// Notifications.
	var sender notify.Sender = notify.Log{}
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := notify.NewKafka(cfg.Kafka.Brokers, cfg.Kafka.Topic, lg.Named("notify"))
		if err != nil {
			return errors.Wrap(err, "create notification producer")
		}
		defer func() {
			if err := producer.Close(); err != nil {
				lg.Warn("Close notification producer", zap.Error(err))
			}
		}()
		sender = producer
	}

	// Repositories.
	listener := postgres.NewListener(pool)
	productRepo := postgres.NewProductRepository(pool)
	userRepo := postgres.NewUserRepository(pool)
	cartRepo := postgres.NewCartRepository(pool)
	pgOrders := postgres.NewOrderRepository(pool)
	orderRepo := cache.NewOrderRepository(pgOrders, rdb, cfg.OrderCacheTTL)
	savedRepo := postgres.NewSavedItemRepository(pool)

	// Domain services.
	carts := cart.NewProvider(cartRepo, listener.Carts(), cfg.GuestPollInterval)
	orderService, err := order.NewService(orderRepo, productRepo, sender, listener.Orders(),
		order.WithMeter(m.MeterProvider().Meter(serviceName)),
		order.WithTracer(m.TracerProvider().Tracer(serviceName)),
		order.WithCalculator(cfg.Pricing.Calculator()),
		// Status changes are read uncached: the change notification can
		// arrive before the cache entry is dropped.
		order.WithFreshReader(pgOrders),
	)
	if err != nil {
		return errors.Wrap(err, "create order service")
	}

	h := handler.New(
		handler.Config{ImageBaseURL: cfg.ImageBaseURL, Heartbeat: cfg.StreamHeartbeat},
		handler.Deps{
			Products: productRepo,
			Carts:    carts,
			Merger:   cart.NewMerger(carts),
			Coupons:  coupon.NewResolver(),
			Orders:   orderService,
			Saved:    wishlist.NewService(savedRepo, productRepo),
			Auth:     auth.NewAuthenticator(userRepo, []byte(cfg.TokenPepper)),
			Devices:  kv.NewRedis(rdb, "zaya:device:", cfg.DeviceTTL),
		},
	)

	// Mux: health endpoints + API routes on one server.
	mux := http.NewServeMux()
	mux.HandleFunc("GET /livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("GET /readyz", healthSvc.ReadyEndpoint)
	h.Register(mux)
	routeFinder := httpmiddleware.MakeRouteFinder(mux)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization", handler.DeviceHeader},
				ExposeHeaders:    []string{handler.DeviceHeader, httpmiddleware.RequestIDHeader},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimit(httpmiddleware.RateLimitConfig{
				Max:     cfg.RateLimit.Max,
				Window:  cfg.RateLimit.Window,
				Limiter: httpmiddleware.NewRedisLimiter(rdb, cfg.RateLimit.Max, cfg.RateLimit.Window),
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Instrument(serviceName, routeFinder, m),
			httpmiddleware.LogRequests(routeFinder),
			httpmiddleware.Labeler(routeFinder),
		),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return listener.Run(gctx)
	})
	g.Go(func() error {
		lg.Info("Server listening", zap.String("addr", cfg.Addr))
		healthSvc.SetReady(true)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})
	// Graceful shutdown: wait for cancellation, drain, then stop.
	g.Go(func() error {
		<-gctx.Done()
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
		return nil
	})
	return g.Wait()
}
