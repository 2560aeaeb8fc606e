package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/minicart-api/internal/cart"
	"github.com/noah-isme/minicart-api/internal/common"
	"github.com/noah-isme/minicart-api/internal/config"
	"github.com/noah-isme/minicart-api/internal/events"
	"github.com/noah-isme/minicart-api/internal/giftcard"
	"github.com/noah-isme/minicart-api/internal/health"
	"github.com/noah-isme/minicart-api/internal/notify"
	"github.com/noah-isme/minicart-api/internal/obs"
	"github.com/noah-isme/minicart-api/internal/pricing"
	"github.com/noah-isme/minicart-api/internal/ratelimit"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("env", cfg.AppEnv).Logger()

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metricsNamespace := envOrDefault("OBS_METRICS_NAMESPACE", "minicart")
	metricsEnabled := envBool("OBS_ENABLE_PROMETHEUS", true)

	tracingEnabled := envBool("OBS_ENABLE_TRACING", false)
	if tracingEnabled {
		shutdown, err := obs.InitTracer(rootCtx, obs.TracingConfig{
			ServiceName:    "minicart-api",
			ServiceVersion: envOrDefault("APP_VERSION", "dev"),
			Endpoint:       envOrDefault("OBS_OTLP_ENDPOINT", ""),
			Exporter:       envOrDefault("OBS_TRACING_EXPORTER", "otlp"),
			SamplingRatio:  envFloat("OBS_TRACING_SAMPLING_RATIO", 1.0),
			Environment:    cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdown(ctx); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	redisClient := connectRedis(rootCtx, cfg, metricsEnabled, logger)
	if redisClient != nil {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Error().Err(err).Msg("close redis")
			}
		}()
	}

	seed, err := loadSeed(cfg.CartSeedPath)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.CartSeedPath).Msg("load cart seed")
	}

	bus := &events.Bus{Notifiers: []events.Notifier{events.LogNotifier{Logger: logger}}}
	var webhook *notify.Webhook
	if cfg.WebhookURL != "" {
		var replay notify.ReplayProtector
		if redisClient != nil {
			replay = notify.RedisReplayProtector{Client: redisClient}
		}
		webhook, err = notify.NewWebhook(notify.WebhookConfig{
			URL:        cfg.WebhookURL,
			Secret:     cfg.WebhookSecret,
			Timeout:    cfg.WebhookTimeout,
			BufferSize: cfg.WebhookBufferSize,
			Replay:     replay,
			Logger:     logger,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("initialise cart webhook")
		}
		webhook.Start(context.WithoutCancel(rootCtx))
		bus.Notifiers = append(bus.Notifiers, webhook)
	}

	var (
		httpMetrics *obs.HTTPMetrics
		cartMetrics *obs.CartMetrics
		gatherer    prometheus.Gatherer
	)
	if metricsEnabled {
		buckets := obs.ParseBucketsCSV(envOrDefault("OBS_METRICS_BUCKETS_MS", ""))
		httpMetrics = obs.NewHTTPMetrics(metricsNamespace, buckets, nil)
		cartMetrics = obs.NewCartMetrics(metricsNamespace, nil)
		gatherer = prometheus.DefaultGatherer
	}

	engineLogger := logger.With().Str("component", "cart.engine").Logger()
	engine, err := cart.NewEngine(seed, cart.EngineOptions{
		Policy: cart.Policy{
			Pricing:   pricing.Policy{PaymentFee: pricing.Money(cfg.CartPaymentFee)},
			GiftCards: giftcard.Policy{HonorStatus: cfg.GiftCardHonor},
		},
		Currency: cfg.CurrencyCode,
		Events:   bus,
		Metrics:  cartMetrics,
		Logger:   &engineLogger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise cart engine")
	}

	limiter, err := newLimiter(cfg, redisClient)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise rate limiter")
	}

	probes := map[string]health.Probe{"cart": engine.Check}
	if redisClient != nil {
		probes["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	var pprofHandler http.Handler
	if envBool("OBS_ENABLE_PPROF", false) {
		user := envOrDefault("SECURE_PPROF_BASIC_AUTH_USER", "")
		pass := envOrDefault("SECURE_PPROF_BASIC_AUTH_PASS", "")
		pprofHandler = protectPprof(newPprofMux(), user, pass)
	}

	handler := newRouter(routerDeps{
		Logger:          logger,
		Cart:            engine,
		Health:          health.Handler{Probes: probes, Timeout: envDurationMillis("HEALTH_READY_TIMEOUT_MS", 500)},
		Idem:            common.Idem{R: redisClient, TTL: cfg.IdempotencyTTL},
		Limiter:         limiter,
		RateLimitMax:    cfg.RateLimitMax,
		RateLimitWindow: cfg.RateLimitWindow,
		BodyLimit:       cfg.BodyLimitBytes,
		SecurityHeaders: cfg.SecurityHeaders,
		AllowedOrigins:  cfg.CORSAllowedOrigins,
		HTTPMetrics:     httpMetrics,
		Gatherer:        gatherer,
		Tracing:         tracingEnabled,
		Pprof:           pprofHandler,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Str("currency", cfg.CurrencyCode).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			logger.Fatal().Err(err).Msg("server exited unexpectedly")
		}
	case <-rootCtx.Done():
	}

	health.SetReady(false)
	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown")
	}
	if webhook != nil {
		if err := webhook.Close(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("drain cart webhook")
		}
	}
}

func loadSeed(path string) (*cart.Cart, error) {
	if strings.TrimSpace(path) == "" {
		return cart.DefaultSeed()
	}
	return cart.LoadFile(path)
}

func connectRedis(ctx context.Context, cfg *config.Config, metricsEnabled bool, logger zerolog.Logger) *redis.Client {
	if cfg.RedisURL == "" {
		logger.Info().Msg("redis not configured; idempotency disabled and rate limits are process-local")
		return nil
	}
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	client := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(client); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if metricsEnabled {
		if err := redisotel.InstrumentMetrics(client); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}
	return client
}

func newLimiter(cfg *config.Config, client *redis.Client) (ratelimit.Limiter, error) {
	if cfg.RateLimitStrategy == "sliding" && client != nil {
		return ratelimit.SlidingWindow{Client: client, Prefix: "minicart:rl:"}, nil
	}
	store, err := ratelimit.NewStore(client, "minicart:rl")
	if err != nil {
		return nil, err
	}
	return ratelimit.FixedWindow{Store: store}, nil
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "1", "t", "true", "yes", "on":
			return true
		case "0", "f", "false", "no", "off":
			return false
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return parsed
		}
	}
	return fallback
}

func envDurationMillis(key string, fallback int) time.Duration {
	return time.Duration(envInt(key, fallback)) * time.Millisecond
}

func newPprofMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", pprof.Index)
	mux.HandleFunc("/cmdline", pprof.Cmdline)
	mux.HandleFunc("/profile", pprof.Profile)
	mux.HandleFunc("/symbol", pprof.Symbol)
	mux.HandleFunc("/trace", pprof.Trace)
	mux.Handle("/heap", pprof.Handler("heap"))
	mux.Handle("/goroutine", pprof.Handler("goroutine"))
	mux.Handle("/mutex", pprof.Handler("mutex"))
	return mux
}

func protectPprof(handler http.Handler, user, pass string) http.Handler {
	user = strings.TrimSpace(user)
	pass = strings.TrimSpace(pass)
	if user == "" {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 || subtle.ConstantTimeCompare([]byte(p), []byte(pass)) != 1 {
			w.Header().Set("WWW-Authenticate", "Basic realm=restricted")
			http.Error(w, "unauthorised", http.StatusUnauthorized)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
