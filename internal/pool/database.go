package pool

import (
	"context"
	"fmt"
	"time"

	"github.com/oriys/fmidb/internal/backend"
	"github.com/oriys/fmidb/internal/cache"
	"github.com/oriys/fmidb/internal/circuitbreaker"
	"github.com/oriys/fmidb/internal/config"
	"github.com/oriys/fmidb/internal/db"
	"github.com/oriys/fmidb/internal/logging"
	"github.com/oriys/fmidb/internal/repository"
)

// Opener returns a disconnected session for a slot.
type Opener func(ctx context.Context, slot int) (db.Session, error)

// Settings carries what a per-database pool needs to build its
// repositories.
type Settings struct {
	Database config.DatabaseConfig
	Pool     config.PoolConfig
	// LookupEnv resolves PasswordEnv. Nil means os.LookupEnv.
	LookupEnv      func(string) (string, bool)
	SessionOptions []db.Option
	// Shared, when set, is consulted by every repository the pool builds.
	Shared    cache.Cache
	SharedTTL time.Duration
	// Open overrides how sessions are created, e.g. in tests.
	Open Opener
}

func (s Settings) opener() Opener {
	if s.Open != nil {
		return s.Open
	}
	return func(context.Context, int) (db.Session, error) {
		return backend.Open(s.Database, s.LookupEnv, s.SessionOptions...)
	}
}

// Repository is what a per-database pool hands out.
type Repository interface {
	Resource
	Connect(ctx context.Context) error
}

// Builder wraps a session in a repository.
type Builder[R Repository] func(session db.Session, opts ...repository.Option) R

// ForDatabase returns a pool whose slots hold repositories built by build
// over sessions from s. Every repository of the pool shares one warm-up
// guard, the connect breaker and, when configured, the shared cache tier.
// A warm-up runs on the first slot asking for it. Without a shared tier
// only that slot's tables are filled; the others load lazily per lookup.
func ForDatabase[R Repository](name string, s Settings, build Builder[R]) *Pool[R] {
	open := s.opener()
	warmer := repository.NewWarmer()
	breaker := circuitbreaker.New(name, circuitbreaker.Config{
		Threshold: s.Pool.BreakerThreshold,
		Cooldown:  s.Pool.BreakerCooldown,
	})
	repoOpts := []repository.Option{repository.WithWarmer(warmer)}
	if s.Shared != nil {
		repoOpts = append(repoOpts, repository.WithSharedCache(s.Shared, s.SharedTTL))
	}

	factory := func(ctx context.Context, slot int) (R, error) {
		var zero R
		session, err := open(ctx, slot)
		if err != nil {
			return zero, err
		}
		repo := build(session, repoOpts...)
		if err := breaker.Do(func() error { return repo.Connect(ctx) }); err != nil {
			return zero, fmt.Errorf("connect %s: %w", name, err)
		}
		logging.Op().Info("repository connected", "pool", name, "slot", slot, "session", session.ID(), "backend", session.Kind())
		return repo, nil
	}

	return New(name, factory,
		WithMaxWorkers(s.Pool.MaxWorkers),
		WithAcquireTimeout(s.Pool.AcquireTimeout))
}
