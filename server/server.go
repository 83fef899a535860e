// Package server assembles wallkit's stores, limiter, recorder and HTTP
// surface from a config.Config.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	wallgin "github.com/PaulFidika/wallkit/adapters/gin"
	"github.com/PaulFidika/wallkit/adapters/ginutil"
	"github.com/PaulFidika/wallkit/catalog"
	"github.com/PaulFidika/wallkit/config"
	"github.com/PaulFidika/wallkit/core"
	"github.com/PaulFidika/wallkit/entitlements"
	"github.com/PaulFidika/wallkit/identity"
	jwtkit "github.com/PaulFidika/wallkit/jwt"
	"github.com/PaulFidika/wallkit/logging"
	"github.com/PaulFidika/wallkit/metrics"
	"github.com/PaulFidika/wallkit/ratelimit"
	memorylimiter "github.com/PaulFidika/wallkit/ratelimit/memory"
	redislimiter "github.com/PaulFidika/wallkit/ratelimit/redis"
	memorystore "github.com/PaulFidika/wallkit/storage/memory"
	pgstore "github.com/PaulFidika/wallkit/storage/postgres"
	redisstore "github.com/PaulFidika/wallkit/storage/redis"
	"github.com/PaulFidika/wallkit/urlsign"
	"github.com/PaulFidika/wallkit/usage"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/sirupsen/logrus"
)

const shutdownTimeout = 15 * time.Second

// Per-IP throttles for the public routes.
var throttleLimits = map[string]memorylimiter.Limit{
	ginutil.RLDownloadURL:    {Limit: 60, Window: time.Minute},
	ginutil.RLDownloadRedeem: {Limit: 120, Window: time.Minute},
	ginutil.RLAdmin:          {Limit: 60, Window: time.Minute},
}

// backend is satisfied by both the Postgres and the in-memory store.
type backend interface {
	catalog.Store
	core.DownloadSink
	core.DownloadHistory
	ratelimit.SettingsStore
	ratelimit.EventCounter
	usage.CounterReconciler
}

type Server struct {
	log        *logrus.Logger
	http       *http.Server
	pg         *pgxpool.Pool
	rdb        *redis.Client
	queue      *river.Client[pgx.Tx]
	queued     *usage.QueueRecorder
	async      *usage.AsyncRecorder
	reconciler *usage.Reconciler
	memCache   *memorystore.EntitlementCache
}

// New connects to the configured backends and builds the HTTP handler. ctx
// bounds the JWKS key cache refreshers.
func New(ctx context.Context, cfg config.Config, log *logrus.Logger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Server{log: log}
	ok := false
	defer func() {
		if !ok {
			s.close()
		}
	}()

	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		s.rdb = redis.NewClient(opts)
	}

	var (
		store backend
		ents  entitlements.Source
	)
	switch cfg.Store {
	case config.StorePostgres:
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		s.pg = pool
		store = pgstore.New(pool, cfg.DBSchema)
		ents = identity.NewStore(pool, cfg.DBSchema)
	default:
		mem := memorystore.NewStore()
		store, ents = mem, mem
		log.Warn("using in-memory store, data is lost on restart")
	}

	if cfg.EntitlementCacheTTL > 0 {
		var cache entitlements.Cache
		if s.rdb != nil {
			cache = redisstore.NewEntitlementCache(s.rdb, "wallkit:ent:", cfg.EntitlementCacheTTL)
		} else {
			s.memCache = memorystore.NewEntitlementCache(cfg.EntitlementCacheTTL)
			cache = s.memCache
		}
		ents = entitlements.NewCachedSource(ents, cache, log)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	var policy ratelimit.Policy = ratelimit.EventWindow{Counter: store}
	if cfg.RateLimitPolicy == config.PolicyRedis {
		policy = ratelimit.SlidingWindow{Limiter: redislimiter.New(s.rdb, nil)}
	}
	limiter := ratelimit.NewGrantLimiter(policy, cfg.RateLimitSettings(), store, log)
	limiter.OnLookupError = func(error) { m.RateLimitLookupFailed() }

	var throttle ginutil.RateLimiter
	if s.rdb != nil {
		limits := make(map[string]redislimiter.Limit, len(throttleLimits))
		for k, v := range throttleLimits {
			limits[k] = redislimiter.Limit{Limit: v.Limit, Window: v.Window}
		}
		throttle = redislimiter.New(s.rdb, limits)
	} else {
		throttle = memorylimiter.New(throttleLimits)
	}

	signer, err := urlsign.New([]byte(cfg.SigningSecret), cfg.BaseURL,
		urlsign.WithTTL(cfg.GrantTTL), urlsign.WithSignatureLength(cfg.SignatureLength))
	if err != nil {
		return nil, err
	}

	var recorder core.UsageRecorder
	switch cfg.Recorder {
	case config.RecorderQueue:
		client, err := river.NewClient(riverpgxv5.New(s.pg), &river.Config{
			Queues:  map[string]river.QueueConfig{river.QueueDefault: {MaxWorkers: 10}},
			Workers: usage.NewWorkers(store),
		})
		if err != nil {
			return nil, fmt.Errorf("river client: %w", err)
		}
		s.queue = client
		s.queued = usage.NewQueueRecorder(client, m, log)
		recorder = s.queued
	default:
		s.async = usage.NewAsyncRecorder(store, cfg.RecorderTimeout, m, log)
		recorder = s.async
	}

	if cfg.ReconcileSchedule != "" {
		s.reconciler, err = usage.NewReconciler(cfg.ReconcileSchedule, store, log)
		if err != nil {
			return nil, fmt.Errorf("reconcile schedule: %w", err)
		}
	}

	svc, err := core.NewService(core.Deps{
		Entitlements: ents,
		Resources:    store,
		Limiter:      limiter,
		Signer:       signer,
		Recorder:     recorder,
		Metrics:      m,
		Log:          log,
	})
	if err != nil {
		return nil, err
	}

	ac, err := cfg.AcceptConfig()
	if err != nil {
		return nil, err
	}
	verifier, err := jwtkit.NewVerifier(ctx, ac)
	if err != nil {
		return nil, err
	}

	if !log.IsLevelEnabled(logrus.DebugLevel) {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), logging.Middleware(log))
	wallgin.Routes{
		Service:  svc,
		Admin:    core.NewAdmin(store, cfg.RateLimitSettings(), store),
		Verifier: verifier,
		Throttle: throttle,
		Metrics:  promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
	}.Register(r)

	s.http = &http.Server{
		Addr:              cfg.Listen,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	ok = true
	return s, nil
}

// Handler returns the HTTP handler, for tests.
func (s *Server) Handler() http.Handler { return s.http.Handler }

// Run serves until ctx is cancelled, then drains requests and background work.
func (s *Server) Run(ctx context.Context) error {
	defer s.close()

	if s.queue != nil {
		if err := s.queue.Start(ctx); err != nil {
			return fmt.Errorf("start river: %w", err)
		}
	}
	if s.reconciler != nil {
		s.reconciler.Start()
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", s.http.Addr).Info("wallkit listening")
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		s.log.WithError(err).Warn("http shutdown")
	}
	if s.reconciler != nil {
		s.reconciler.Stop()
	}
	if s.queued != nil {
		s.queued.Wait()
	}
	if s.queue != nil {
		if err := s.queue.Stop(shutdownCtx); err != nil {
			s.log.WithError(err).Warn("river shutdown")
		}
	}
	if s.async != nil {
		s.async.Wait()
	}
	s.log.Info("wallkit stopped")
	return serveErr
}

func (s *Server) close() {
	if s.memCache != nil {
		_ = s.memCache.Close()
	}
	if s.rdb != nil {
		_ = s.rdb.Close()
	}
	if s.pg != nil {
		s.pg.Close()
	}
}
