// Package app wires the vidshare runtime: config, logging, persistence, the shared
// router, metrics, the cache and message broker clients, and the process lifecycle.
package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"golang.org/x/sync/errgroup"

	"vidshare/cmd/catalog"
	"vidshare/cmd/identity"
	authapi "vidshare/cmd/internal/auth/api"
	"vidshare/cmd/internal/auth/access"
	"vidshare/cmd/internal/events"
	"vidshare/cmd/internal/profilecache"
	"vidshare/cmd/internal/realtime"
	"vidshare/cmd/security/password"
)

// App is the vidshare runtime. Both entry points build one; only the server
// entry point calls Run.
type App struct {
	cfg Config
	log Logger

	stores  *stores
	metrics *Metrics
	api     *authapi.Handler
	hub     *realtime.Hub
	ws      *realtime.WSGateway

	redis     *redis.Client
	publisher *events.Publisher
	consumer  *events.Consumer
}

// New constructs a fully wired App from config and logger.
// Optional collaborators (Redis, RabbitMQ) are enabled only when configured.
func New(ctx context.Context, cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}

	accCfg, err := access.LoadConfigFromEnv()
	if err != nil {
		return nil, err
	}
	if err := ValidateSecurityConfig(cfg, accCfg); err != nil {
		return nil, err
	}
	tokens, err := access.NewManager(accCfg)
	if err != nil {
		return nil, err
	}
	hasher, err := password.FromEnv()
	if err != nil {
		return nil, err
	}

	st, err := openStores(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	a := &App{cfg: cfg, log: log, stores: st, metrics: NewMetrics()}

	idOpts := []identity.ServiceOption{identity.WithLogger(log)}

	if cfg.RedisAddr != "" {
		cache, rdb, err := profilecache.Open(ctx, profilecache.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			TTL:      cfg.ProfileCacheTTL,
		})
		if err != nil {
			a.Close()
			return nil, err
		}
		a.redis = rdb
		idOpts = append(idOpts, identity.WithProfileCache(cache))
		log.Info("profilecache.enabled", "addr", cfg.RedisAddr, "ttl", cfg.ProfileCacheTTL)
	}

	if cfg.AMQPURL != "" {
		pub, err := events.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.publisher = pub
		idOpts = append(idOpts, identity.WithEventPublisher(pub))
		log.Info("events.publisher.enabled", "exchange", cfg.AMQPExchange)
	}

	users, err := identity.NewService(st.users, hasher, idOpts...)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.hub = realtime.NewHub(log)
	cat, err := catalog.NewService(st.catalog, catalog.WithLogger(log), catalog.WithStatusListener(a.hub))
	if err != nil {
		a.Close()
		return nil, err
	}
	a.ws, err = realtime.NewWSGateway(log, a.hub, tokens, realtime.Options{
		OriginRequired: cfg.WSOriginRequired,
		AllowedOrigins: cfg.WSAllowedOrigins,
		HeartbeatEvery: cfg.WSHeartbeatInterval,
		SendQueueSize:  cfg.WSSendQueue,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	a.api, err = authapi.NewHandler(log, authapi.LoadConfigFromEnv(), users, cat, tokens,
		authapi.WithEventRecorder(a.metrics),
	)
	if err != nil {
		a.Close()
		return nil, err
	}

	if cfg.AMQPURL != "" && cfg.PipelineConsumer {
		a.consumer = events.NewConsumer(events.ConsumerConfig{
			URL:      cfg.AMQPURL,
			Exchange: cfg.AMQPExchange,
			Queue:    cfg.AMQPQueue,

			RetryDelay:    cfg.PipelineRetryDelay,
			MaxRetryDelay: cfg.PipelineMaxRetryDelay,
		}, cat, log)
		if err := a.consumer.Connect(); err != nil {
			a.Close()
			return nil, err
		}
	}

	return a, nil
}

// Run starts the HTTP server (and the pipeline consumer when configured) and blocks
// until context cancellation or a fatal error. Resources are closed on return.
func (a *App) Run(ctx context.Context) error {
	defer a.Close()

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.ServerHandler(),
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.log.Info("server.start", "addr", a.cfg.HTTPAddr, "backend", a.stores.backend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("server.fail", "err", err)
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		a.log.Info("server.stop", "reason", "context_done")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), nonZeroDuration(a.cfg.ShutdownTimeout, 10*time.Second))
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.log.Error("server.shutdown.fail", "err", err)
			return err
		}
		return nil
	})

	if a.consumer != nil {
		g.Go(func() error { return a.consumer.Run(gctx) })
	}

	err := g.Wait()
	a.log.Info("server.stopped")
	return err
}

// Close releases every owned resource. It is safe to call more than once.
func (a *App) Close() {
	if a.consumer != nil {
		_ = a.consumer.Close()
		a.consumer = nil
	}
	if a.publisher != nil {
		_ = a.publisher.Close()
		a.publisher = nil
	}
	if a.redis != nil {
		_ = a.redis.Close()
		a.redis = nil
	}
	if a.stores != nil {
		a.stores.Close()
		a.stores = nil
	}
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
