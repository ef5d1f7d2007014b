package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/oriys/fmidb/internal/backend"
	"github.com/oriys/fmidb/internal/cache"
	"github.com/oriys/fmidb/internal/cldb"
	"github.com/oriys/fmidb/internal/config"
	"github.com/oriys/fmidb/internal/db"
	"github.com/oriys/fmidb/internal/logging"
	"github.com/oriys/fmidb/internal/metrics"
	"github.com/oriys/fmidb/internal/neons"
	"github.com/oriys/fmidb/internal/observability"
	"github.com/oriys/fmidb/internal/pool"
	"github.com/oriys/fmidb/internal/radon"
	"github.com/oriys/fmidb/internal/verif"
)

// Logical database names accepted on the command line.
const (
	dbRadon = "radon"
	dbNeons = "neons"
	dbCLDB  = "cldb"
	dbVerif = "verif"
)

// runtime holds everything a command needs after start-up.
type runtime struct {
	cfg         *config.Config
	sessionOpts []db.Option

	redis  *redis.Client
	remote *cache.RedisCache
	local  cache.Cache
	shared cache.Cache

	radon *pool.Pool[*radon.Repository]
	neons *pool.Pool[*neons.Repository]
	cldb  *pool.Pool[*cldb.Repository]
	verif *pool.Pool[*verif.Repository]
}

func loadConfig() (*config.Config, error) {
	cfg := config.DefaultConfig()
	if configPath != "" {
		var err error
		cfg, err = config.LoadFromFile(configPath)
		if err != nil {
			return nil, err
		}
	}
	config.LoadFromEnv(cfg)
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}
	return cfg, nil
}

// bootstrap loads configuration and starts logging, metrics, tracing, the
// shared cache and the pools. Pools connect lazily.
func bootstrap(ctx context.Context) (*runtime, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	logging.InitStructured(cfg.Log.Format, cfg.Log.Level)
	if cfg.Log.StatementFile != "" {
		if err := logging.Statements().SetOutput(cfg.Log.StatementFile); err != nil {
			return nil, fmt.Errorf("statement log: %w", err)
		}
	}
	metrics.InitPrometheus(cfg.Metrics.Namespace, cfg.Metrics.Buckets)
	if err := observability.Init(ctx, observability.Config{
		Enabled:     cfg.Telemetry.Enabled,
		Exporter:    cfg.Telemetry.Exporter,
		Endpoint:    cfg.Telemetry.Endpoint,
		ServiceName: "fmidb",
		SampleRate:  cfg.Telemetry.SampleRate,
	}); err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	opts, err := backend.CodecOptions(cfg.Codec)
	if err != nil {
		return nil, err
	}
	rt := &runtime{cfg: cfg, sessionOpts: opts}

	if cfg.Cache.Enabled() {
		rc := cache.NewRedisCache(cache.RedisConfig{
			Addr:      cfg.Cache.RedisAddr,
			Password:  cfg.Cache.RedisPassword,
			DB:        cfg.Cache.RedisDB,
			KeyPrefix: cfg.Cache.KeyPrefix,
		})
		if err := rc.Ping(ctx); err != nil {
			logging.Op().Warn("shared cache unreachable, continuing without it", "addr", cfg.Cache.RedisAddr, "error", err)
			rc.Close()
		} else {
			rt.redis = rc.Client()
			rt.remote = rc
			rt.local = cache.NewInMemoryCache(0)
			rt.shared = cache.NewTieredCache(rt.local, rc, cfg.Cache.LocalTTL)
			logging.Op().Info("shared cache enabled", "addr", cfg.Cache.RedisAddr, "ttl", cfg.Cache.TTL)
		}
	}

	rt.radon = radon.NewPool(rt.settings(cfg.Databases.Radon))
	rt.neons = neons.NewPool(rt.settings(cfg.Databases.Neons))
	rt.cldb = cldb.NewPool(rt.settings(cfg.Databases.CLDB))
	rt.verif = verif.NewPool(rt.settings(cfg.Databases.Verif))
	return rt, nil
}

func (rt *runtime) settings(dbc config.DatabaseConfig) pool.Settings {
	return pool.Settings{
		Database:       dbc,
		Pool:           rt.cfg.Pool,
		SessionOptions: rt.sessionOpts,
		Shared:         rt.shared,
		SharedTTL:      rt.cfg.Cache.TTL,
	}
}

func (rt *runtime) database(name string) (config.DatabaseConfig, error) {
	switch name {
	case dbRadon:
		return rt.cfg.Databases.Radon, nil
	case dbNeons:
		return rt.cfg.Databases.Neons, nil
	case dbCLDB:
		return rt.cfg.Databases.CLDB, nil
	case dbVerif:
		return rt.cfg.Databases.Verif, nil
	default:
		return config.DatabaseConfig{}, fmt.Errorf("unknown database %q (radon, neons, cldb, verif)", name)
	}
}

// session opens and connects a raw session outside the pools.
func (rt *runtime) session(ctx context.Context, name string) (db.Session, error) {
	dbc, err := rt.database(name)
	if err != nil {
		return nil, err
	}
	s, err := backend.Open(dbc, nil, rt.sessionOpts...)
	if err != nil {
		return nil, err
	}
	if err := s.Connect(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Close releases pools, caches and exporters. Errors are joined.
func (rt *runtime) Close(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	errs := []error{
		rt.radon.Close(ctx),
		rt.neons.Close(ctx),
		rt.cldb.Close(ctx),
		rt.verif.Close(ctx),
	}
	if rt.shared != nil {
		errs = append(errs, rt.shared.Close())
	}
	errs = append(errs, observability.Shutdown(ctx))
	logging.Statements().Close()
	return errors.Join(errs...)
}
