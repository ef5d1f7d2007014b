// Package repository holds the read-through machinery shared by the
// metadata repositories: memo tables keyed by comparable structs, an
// optional shared cache tier, and query helpers over a db.Session.
//
// A repository instance, and with it every memo table, belongs to one
// goroutine at a time (one pool slot). Tables are never evicted; a cached
// empty result suppresses the query for the lifetime of the instance.
package repository

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/oriys/fmidb/internal/cache"
	"github.com/oriys/fmidb/internal/db"
	"github.com/oriys/fmidb/internal/domain"
	"github.com/oriys/fmidb/internal/logging"
)

// Base is embedded by every repository.
type Base struct {
	name      string
	session   db.Session
	shared    cache.Cache
	sharedTTL time.Duration
	warmer    *Warmer
}

// Option configures a Base.
type Option func(*Base)

// WithSharedCache consults c between the memo table and SQL. Values are
// stored as JSON with the given TTL (zero keeps them).
func WithSharedCache(c cache.Cache, ttl time.Duration) Option {
	return func(b *Base) {
		b.shared = c
		b.sharedTTL = ttl
	}
}

// WithWarmer shares the warm-up guard between repository instances.
func WithWarmer(w *Warmer) Option {
	return func(b *Base) { b.warmer = w }
}

// NewBase returns a Base for the named repository over session.
func NewBase(name string, session db.Session, opts ...Option) *Base {
	b := &Base{name: name, session: session}
	for _, opt := range opts {
		opt(b)
	}
	if b.warmer == nil {
		b.warmer = NewWarmer()
	}
	return b
}

func (b *Base) Name() string { return b.name }

// Session returns the underlying session.
func (b *Base) Session() db.Session { return b.session }

// Warmer returns the warm-up guard.
func (b *Base) Warmer() *Warmer { return b.warmer }

// Log returns the operational logger scoped to the repository and session.
func (b *Base) Log() *slog.Logger {
	return logging.Op().With("repository", b.name, "session", b.session.ID())
}

// Connect connects the session.
func (b *Base) Connect(ctx context.Context) error { return b.session.Connect(ctx) }

// Disconnect disconnects the session.
func (b *Base) Disconnect(ctx context.Context) error { return b.session.Disconnect(ctx) }

// Rollback rolls back the session's implicit transaction.
func (b *Base) Rollback(ctx context.Context) error { return b.session.Rollback(ctx) }

// Commit commits the session's implicit transaction.
func (b *Base) Commit(ctx context.Context) error { return b.session.Commit(ctx) }

// QueryRows runs sql and reads every row.
func (b *Base) QueryRows(ctx context.Context, sql string) ([]domain.Row, error) {
	if err := b.session.Query(ctx, sql); err != nil {
		return nil, fmt.Errorf("%s: %w", b.name, err)
	}
	rows, err := db.Drain(ctx, b.session)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.name, err)
	}
	return rows, nil
}

// QueryRow runs sql and returns its first row, or an empty row. The cursor
// is drained so the connection is free afterwards.
func (b *Base) QueryRow(ctx context.Context, sql string) (domain.Row, error) {
	rows, err := b.QueryRows(ctx, sql)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0], nil
}

// QueryOne returns the first row of sql as an AttributeMap named by names,
// or an empty map.
func (b *Base) QueryOne(ctx context.Context, sql string, names ...string) (domain.AttributeMap, error) {
	row, err := b.QueryRow(ctx, sql)
	if err != nil {
		return nil, err
	}
	if row.Empty() {
		return domain.AttributeMap{}, nil
	}
	return domain.FromRow(row, names...), nil
}

// QueryAll returns every row of sql as an AttributeMap named by names.
func (b *Base) QueryAll(ctx context.Context, sql string, names ...string) (domain.AttributeList, error) {
	rows, err := b.QueryRows(ctx, sql)
	if err != nil {
		return nil, err
	}
	list := make(domain.AttributeList, 0, len(rows))
	for _, row := range rows {
		list = append(list, domain.FromRow(row, names...))
	}
	return list, nil
}

// FirstRow tries each statement in order and returns the first row found,
// or an empty row.
func (b *Base) FirstRow(ctx context.Context, statements ...string) (domain.Row, error) {
	for _, sql := range statements {
		row, err := b.QueryRow(ctx, sql)
		if err != nil {
			return nil, err
		}
		if !row.Empty() {
			return row, nil
		}
	}
	return nil, nil
}

// FirstOf is FirstRow with the row named by names.
func (b *Base) FirstOf(ctx context.Context, names []string, statements ...string) (domain.AttributeMap, error) {
	row, err := b.FirstRow(ctx, statements...)
	if err != nil {
		return nil, err
	}
	if row.Empty() {
		return domain.AttributeMap{}, nil
	}
	return domain.FromRow(row, names...), nil
}
