package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-cart/internal/auth"
	"github.com/noah-isme/toko-cart/internal/cache"
	"github.com/noah-isme/toko-cart/internal/cart"
	"github.com/noah-isme/toko-cart/internal/catalog"
	"github.com/noah-isme/toko-cart/internal/checkout"
	"github.com/noah-isme/toko-cart/internal/common"
	"github.com/noah-isme/toko-cart/internal/config"
	"github.com/noah-isme/toko-cart/internal/db"
	"github.com/noah-isme/toko-cart/internal/events"
	"github.com/noah-isme/toko-cart/internal/health"
	"github.com/noah-isme/toko-cart/internal/lock"
	"github.com/noah-isme/toko-cart/internal/obs"
	"github.com/noah-isme/toko-cart/internal/pricing"
	"github.com/noah-isme/toko-cart/internal/ratelimit"
	"github.com/noah-isme/toko-cart/internal/resilience"
	"github.com/noah-isme/toko-cart/internal/security"
	"github.com/noah-isme/toko-cart/internal/voucher"
)

const shutdownGrace = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.NewLogger(cfg.Obs.LogFormat, cfg.Obs.LogLevel, obs.LogFile{
		Path:       cfg.Obs.LogFile,
		MaxSizeMB:  cfg.Obs.LogFileMaxSizeMB,
		MaxBackups: cfg.Obs.LogFileMaxBackups,
		Compress:   true,
	}).With().Str("env", cfg.AppEnv).Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("server exited unexpectedly")
	}
}

func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	if cfg.Obs.MetricsEnabled {
		obs.MustRegisterDomainMetrics(cfg.Obs.MetricsNamespace, nil)
		if err := resilience.RegisterMetrics(nil); err != nil {
			return err
		}
	}

	shutdownTracer, err := obs.InitTracer(ctx, obs.TracingConfig{
		Enabled:       cfg.Obs.TracingEnabled,
		ServiceName:   "toko-cart",
		Endpoint:      cfg.Obs.OTLPEndpoint,
		Exporter:      cfg.Obs.TracingExporter,
		SamplingRatio: cfg.Obs.TracingRatio,
		Environment:   cfg.AppEnv,
	})
	if err != nil {
		logger.Error().Err(err).Msg("initialise tracing")
		shutdownTracer = func(context.Context) error { return nil }
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logger.Error().Err(err).Msg("shutdown tracer")
		}
	}()

	pool, err := openPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()
	queries := db.New(pool)

	redisClient, err := openRedis(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()

	notFound := func(err error) bool { return errors.Is(err, pgx.ErrNoRows) }
	catalogSvc := catalog.NewService(catalog.ServiceConfig{
		Queries: queries,
		Cache:   cache.New(redisClient, cfg.Lookup.CatalogCacheTTL),
		Guard:   newGuard("catalog", cfg.Lookup, notFound, logger),
		Logger:  logger.With().Str("component", "catalog").Logger(),
	})
	voucherSvc := &voucher.Service{
		Q:     queries,
		Cache: cache.New(redisClient, cfg.Lookup.VoucherCacheTTL),
		Guard: newGuard("voucher", cfg.Lookup, notFound, logger),
		Log:   logger.With().Str("component", "voucher").Logger(),
	}

	cartSvc := &cart.Service{
		Store:    cart.Store{R: redisClient, TTL: cfg.Cart.TTL},
		Catalog:  catalogSvc,
		Vouchers: voucherSvc,
		Locker:   lock.Locker{R: redisClient, RetryBackoff: 25 * time.Millisecond, Wait: cfg.Cart.LockTTL},
		LockTTL:  cfg.Cart.LockTTL,
		Fees: pricing.FeeTable{
			pricing.MethodStandard: pricing.Money(cfg.Cart.ShippingFeeStandard),
			pricing.MethodExpress:  pricing.Money(cfg.Cart.ShippingFeeExpress),
		},
		Limits:   cart.Limits{MaxLines: cfg.Cart.MaxLines, MaxQtyPerLine: cfg.Cart.MaxQtyPerLine},
		Currency: cfg.Currency,
		Log:      logger.With().Str("component", "cart").Logger(),
	}

	bus, closeBus := newEventBus(ctx, cfg.Kafka, queries, logger)
	defer closeBus()

	checkoutSvc := &checkout.Service{
		DB:      pool,
		Carts:   cartSvc,
		Catalog: catalogSvc,
		Events:  bus,
		Log:     logger.With().Str("component", "checkout").Logger(),
	}

	verifier, err := auth.NewVerifier(auth.Config{
		Secret:   cfg.JWTSecret,
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
	})
	if err != nil {
		return err
	}
	authMiddleware := auth.Middleware{Tokens: verifier}

	voucherLimiter, err := newVoucherLimiter(cfg, redisClient, logger)
	if err != nil {
		return err
	}

	probes := []health.Probe{health.Postgres(pool), health.Redis(redisClient)}
	if len(cfg.Kafka.Brokers) > 0 {
		probes = append(probes, health.Kafka(cfg.Kafka.Brokers))
	}

	r := newRouter(routerDeps{
		cfg:            cfg,
		logger:         logger,
		cartHandler:    &cart.Handler{Svc: cartSvc},
		voucherHandler: &voucher.Handler{Svc: voucherSvc},
		checkout:       &checkout.Handler{Svc: checkoutSvc},
		auth:           authMiddleware,
		idem:           common.Idem{R: redisClient, TTL: cfg.IdemTTL},
		voucherLimiter: voucherLimiter,
		health:         health.Handler{Probes: probes},
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	health.SetReady(false)
	logger.Info().Msg("server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

func openPool(ctx context.Context, url string) (*pgxpool.Pool, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, err
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = "toko-cart"

	pool, err := pgxpool.NewWithConfig(connectCtx, poolConfig)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

func openRedis(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	if err := redisotel.InstrumentTracing(client); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if cfg.Obs.MetricsEnabled {
		if err := redisotel.InstrumentMetrics(client); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

func newGuard(target string, cfg config.LookupConfig, expected func(error) bool, logger zerolog.Logger) *resilience.Guard {
	return &resilience.Guard{
		Breaker: resilience.NewBreaker(cfg.BreakerMinRequests, cfg.BreakerFailureRatio, cfg.BreakerOpenFor).
			WithTarget(target).
			WithLogger(logger),
		Timeout:  cfg.Timeout,
		Expected: expected,
	}
}

func newEventBus(ctx context.Context, cfg config.KafkaConfig, store events.EventStore, logger zerolog.Logger) (*events.Bus, func()) {
	eventLog := logger.With().Str("component", "events").Logger()
	if len(cfg.Brokers) == 0 {
		return &events.Bus{Store: store, Notifiers: []events.Notifier{events.LogNotifier{Log: eventLog}}}, func() {}
	}
	if cfg.CreateTopics {
		topicCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err := events.EnsureTopics(topicCtx, cfg.Brokers, cfg.TopicPartitions, cfg.TopicReplication, events.Topics(cfg.TopicPrefix)...)
		cancel()
		if err != nil {
			eventLog.Warn().Err(err).Msg("kafka_topic_setup_failed")
		}
	}
	writer := events.NewKafkaWriter(cfg.Brokers)
	bus := &events.Bus{
		Store: store,
		Notifiers: []events.Notifier{&events.KafkaNotifier{
			Writer:      writer,
			TopicPrefix: cfg.TopicPrefix,
			Log:         eventLog,
		}},
	}
	return bus, func() {
		if err := writer.Close(); err != nil {
			eventLog.Error().Err(err).Msg("close kafka writer")
		}
	}
}

func newVoucherLimiter(cfg *config.Config, rdb *redis.Client, logger zerolog.Logger) (ratelimit.Handler, error) {
	var allower ratelimit.Allower = ratelimit.SlidingWindow{Client: rdb, Prefix: "rl:"}
	if cfg.Limits.Backend == "ulule" {
		store, err := ratelimit.NewUluleStore(rdb, "limiter:voucher")
		if err != nil {
			return ratelimit.Handler{}, err
		}
		allower = ratelimit.Ulule{Store: store}
	}
	return ratelimit.Handler{
		Limiter: allower,
		Limit:   ratelimit.Limit{Window: cfg.Limits.VoucherWindow, Max: cfg.Limits.VoucherMax},
		Key:     ratelimit.KeyByUserOrIP("voucher"),
		OnError: func(err error) {
			logger.Warn().Err(err).Msg("rate_limiter_unavailable")
		},
	}, nil
}

type routerDeps struct {
	cfg            *config.Config
	logger         zerolog.Logger
	cartHandler    *cart.Handler
	voucherHandler *voucher.Handler
	checkout       *checkout.Handler
	auth           auth.Middleware
	idem           common.Idem
	voucherLimiter ratelimit.Handler
	health         health.Handler
}

func newRouter(d routerDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if d.cfg.Obs.TracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	if d.cfg.Obs.MetricsEnabled {
		buckets := obs.ParseBucketsCSV(d.cfg.Obs.MetricsBucketsMS)
		r.Use(obs.HTTPObs{Metrics: obs.NewHTTPMetrics(d.cfg.Obs.MetricsNamespace, buckets, nil)}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: d.logger}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(d.cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(security.Headers{Enable: true, EnableHSTS: d.cfg.IsProduction(), HSTSIncludeSubdomains: true}.Middleware)
	r.Use(security.BodyLimit{Max: d.cfg.BodySize}.Middleware)

	if d.cfg.Obs.MetricsEnabled {
		r.Handle("/metrics", promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{}))
	}
	r.Get("/health/live", d.health.Live)
	r.Get("/health/ready", d.health.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.Use(d.auth.Authenticate)

		v.Get("/vouchers/available", d.voucherHandler.Available)

		v.Route("/carts", func(c chi.Router) {
			c.Post("/", d.cartHandler.Create)
			c.Route("/{id}", func(one chi.Router) {
				one.Get("/", d.cartHandler.Get)
				one.Post("/items", d.cartHandler.AddItem)
				one.Patch("/items/{itemId}", d.cartHandler.UpdateItem)
				one.Delete("/items/{itemId}", d.cartHandler.RemoveItem)
				one.With(d.voucherLimiter.Middleware).Post("/voucher", d.cartHandler.ApplyVoucher)
				one.Delete("/voucher", d.cartHandler.RemoveVoucher)
				one.Put("/shipping", d.cartHandler.SetShipping)
				one.With(d.auth.RequireAuth).Post("/claim", d.cartHandler.Claim)
			})
		})

		v.With(d.auth.RequireAuth, d.idem.Middleware).Post("/checkout", d.checkout.Checkout)
	})
	return r
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}
