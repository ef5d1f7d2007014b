package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/oriys/fmidb/internal/cache"
	"github.com/oriys/fmidb/internal/domain"
	"github.com/oriys/fmidb/internal/logging"
	"github.com/oriys/fmidb/internal/metrics"
	"github.com/oriys/fmidb/internal/observability"
)

// Cache lookup results reported to metrics and spans.
const (
	ResultHit    = "hit"
	ResultShared = "shared"
	ResultMiss   = "miss"
)

// Table is one memo table of a repository. Keys are comparable structs
// holding the lookup inputs, so adjacent fields can never collide. Map and
// slice values are copied on the way in and out; callers own what they get.
type Table[K comparable, V any] struct {
	base *Base
	name string

	mu      sync.RWMutex
	entries map[K]V
}

// NewTable creates a memo table named name, e.g. "producer".
func NewTable[K comparable, V any](b *Base, name string) *Table[K, V] {
	return &Table[K, V]{base: b, name: name, entries: make(map[K]V)}
}

func (t *Table[K, V]) Name() string { return t.name }

// Get returns the cached value for key.
func (t *Table[K, V]) Get(key K) (V, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.entries[key]
	return detach(v), ok
}

// Put stores v unconditionally.
func (t *Table[K, V]) Put(key K, v V) {
	v = detach(v)
	t.mu.Lock()
	t.entries[key] = v
	t.mu.Unlock()
}

// PutIfAbsent stores v unless key is cached and reports whether it did.
func (t *Table[K, V]) PutIfAbsent(key K, v V) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.entries[key]; ok {
		return false
	}
	t.entries[key] = detach(v)
	return true
}

// Len returns the number of cached keys.
func (t *Table[K, V]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// SharedKey is the shared tier key for key.
func (t *Table[K, V]) SharedKey(key K) string {
	return fmt.Sprintf("%s:%s:%#v", t.base.name, t.name, key)
}

// Lookup returns the cached value for key, or calls load and caches what
// it returns, including empty results. Errors from load are not cached.
func (t *Table[K, V]) Lookup(ctx context.Context, key K, load func(ctx context.Context) (V, error)) (V, error) {
	if v, ok := t.Get(key); ok {
		t.record(ResultHit, key)
		return v, nil
	}

	ctx, span := observability.StartSpan(ctx, "lookup."+t.name,
		observability.AttrRepository.String(t.base.name))
	defer span.End()

	if v, ok := t.fromShared(ctx, key); ok {
		t.Put(key, v)
		span.SetAttributes(observability.AttrCacheResult.String(ResultShared))
		t.record(ResultShared, key)
		return v, nil
	}

	v, err := load(ctx)
	if err != nil {
		observability.SetSpanError(span, err)
		var zero V
		return zero, err
	}
	t.Put(key, v)
	t.toShared(ctx, key, v)
	span.SetAttributes(observability.AttrCacheResult.String(ResultMiss))
	t.record(ResultMiss, key)
	return v, nil
}

// Store puts v locally and in the shared tier unless key is already cached
// locally. Warm-up uses it so it never overwrites an entry.
func (t *Table[K, V]) Store(ctx context.Context, key K, v V) bool {
	if !t.PutIfAbsent(key, v) {
		return false
	}
	t.toShared(ctx, key, v)
	return true
}

func (t *Table[K, V]) fromShared(ctx context.Context, key K) (V, bool) {
	var v V
	if t.base.shared == nil {
		return v, false
	}
	err := cache.GetJSON(ctx, t.base.shared, t.SharedKey(key), &v)
	if err != nil {
		if !errors.Is(err, cache.ErrNotFound) {
			t.base.Log().Warn("shared cache read failed", "table", t.name, "error", err)
		}
		var zero V
		return zero, false
	}
	return v, true
}

func (t *Table[K, V]) toShared(ctx context.Context, key K, v V) {
	if t.base.shared == nil {
		return
	}
	if err := cache.SetJSON(ctx, t.base.shared, t.SharedKey(key), v, t.base.sharedTTL); err != nil {
		t.base.Log().Warn("shared cache write failed", "table", t.name, "error", err)
	}
}

func (t *Table[K, V]) record(result string, key K) {
	metrics.RecordCacheLookup(t.base.name, t.name, result)
	if result == ResultHit && logging.Level() <= slog.LevelDebug {
		t.base.Log().Debug("cache hit", "op", t.name, "key", fmt.Sprintf("%+v", key))
	}
}

// detach copies the value kinds the repositories cache that share storage.
func detach[V any](v V) V {
	var out any
	switch x := any(v).(type) {
	case domain.AttributeMap:
		if x == nil {
			return v
		}
		out = x.Clone()
	case domain.AttributeList:
		out = x.Clone()
	case domain.StationList:
		out = x.Clone()
	case map[int64]domain.AttributeMap:
		out = map[int64]domain.AttributeMap(domain.StationList(x).Clone())
	case []domain.Row:
		if x == nil {
			return v
		}
		rows := make([]domain.Row, len(x))
		for i, row := range x {
			rows[i] = append(domain.Row(nil), row...)
		}
		out = rows
	default:
		return v
	}
	return out.(V)
}
