// Package pool hands out repository instances from a fixed but growable set
// of slots. A slot is constructed on first use, handed to one caller at a
// time and rolled back on release. Callers that find every slot busy wait
// on a condition variable, bounded by their context and the pool's acquire
// timeout.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/oriys/fmidb/internal/logging"
	"github.com/oriys/fmidb/internal/metrics"
)

// DefaultMaxWorkers is the initial slot count.
const DefaultMaxWorkers = 2

var (
	// ErrShrink is returned by SetMaxWorkers for a capacity below the
	// current one. Capacity is unchanged.
	ErrShrink = errors.New("pool: capacity can only grow")
	// ErrTimeout is returned by Get when the acquire timeout elapses.
	ErrTimeout = errors.New("pool: timed out waiting for a free slot")
	// ErrClosed is returned by Get after Close.
	ErrClosed = errors.New("pool: closed")
	// ErrForeignHandle is returned by Release for a handle that is not
	// currently lent out by the pool.
	ErrForeignHandle = errors.New("pool: handle not borrowed from this pool")
)

// Resource is what a pool manages: a repository over one session.
type Resource interface {
	comparable
	Rollback(ctx context.Context) error
	Disconnect(ctx context.Context) error
}

// Factory constructs and connects the resource for a slot.
type Factory[R Resource] func(ctx context.Context, slot int) (R, error)

// State is the lifecycle state of a slot.
type State int

const (
	Uninitialized State = iota
	Idle
	Busy
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Idle:
		return "idle"
	case Busy:
		return "busy"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

type slot[R Resource] struct {
	state State
	res   R
}

// Pool is safe for concurrent use.
type Pool[R Resource] struct {
	name           string
	factory        Factory[R]
	acquireTimeout time.Duration

	// getSem admits one acquirer at a time; queued acquirers still honor
	// their context. releaseMu serializes releasers. Slot state is guarded
	// by mu, which is also the cond's lock.
	getSem    chan struct{}
	releaseMu sync.Mutex

	mu      sync.Mutex
	cond    *sync.Cond
	slots   []*slot[R]
	lent    map[R]int
	waiters int
	closed  bool
}

// Option configures a Pool.
type Option func(*options)

type options struct {
	maxWorkers     int
	acquireTimeout time.Duration
}

// WithMaxWorkers sets the initial capacity.
func WithMaxWorkers(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxWorkers = n
		}
	}
}

// WithAcquireTimeout bounds how long Get waits for a free slot. Zero waits
// until the context ends.
func WithAcquireTimeout(d time.Duration) Option {
	return func(o *options) { o.acquireTimeout = d }
}

// New returns a pool whose slots are built by factory on first use.
func New[R Resource](name string, factory Factory[R], opts ...Option) *Pool[R] {
	o := options{maxWorkers: DefaultMaxWorkers}
	for _, opt := range opts {
		opt(&o)
	}
	p := &Pool[R]{
		name:           name,
		factory:        factory,
		acquireTimeout: o.acquireTimeout,
		getSem:         make(chan struct{}, 1),
		lent:           make(map[R]int),
	}
	p.cond = sync.NewCond(&p.mu)
	for i := 0; i < o.maxWorkers; i++ {
		p.slots = append(p.slots, &slot[R]{})
	}
	p.publishLocked()
	return p
}

func (p *Pool[R]) Name() string { return p.name }

// Get returns an idle resource, builds one in an uninitialized slot, or
// waits for a release.
func (p *Pool[R]) Get(ctx context.Context) (R, error) {
	var zero R
	start := time.Now()
	if err := p.enter(ctx); err != nil {
		p.recordAcquire(acquireResult(err), start)
		return zero, err
	}
	defer func() { <-p.getSem }()

	p.mu.Lock()
	for {
		if p.closed {
			p.mu.Unlock()
			p.recordAcquire("closed", start)
			return zero, ErrClosed
		}

		if i, ok := p.findLocked(Idle); ok {
			sl := p.slots[i]
			sl.state = Busy
			p.lent[sl.res] = i
			p.publishLocked()
			p.mu.Unlock()
			p.recordAcquire("ok", start)
			return sl.res, nil
		}

		if i, ok := p.findLocked(Uninitialized); ok {
			sl := p.slots[i]
			sl.state = Busy
			p.mu.Unlock()
			return p.build(ctx, i, sl, start)
		}

		wait := time.Duration(0)
		if p.acquireTimeout > 0 {
			wait = p.acquireTimeout - time.Since(start)
			if wait <= 0 {
				p.mu.Unlock()
				p.recordAcquire("timeout", start)
				return zero, fmt.Errorf("%w: %s after %s", ErrTimeout, p.name, p.acquireTimeout)
			}
		}
		if err := p.waitLocked(ctx, wait); err != nil {
			p.mu.Unlock()
			p.recordAcquire("cancelled", start)
			return zero, err
		}
	}
}

// enter takes the acquirer semaphore.
func (p *Pool[R]) enter(ctx context.Context) error {
	select {
	case p.getSem <- struct{}{}:
		return nil
	default:
	}
	var timeout <-chan time.Time
	if p.acquireTimeout > 0 {
		t := time.NewTimer(p.acquireTimeout)
		defer t.Stop()
		timeout = t.C
	}
	select {
	case p.getSem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timeout:
		return fmt.Errorf("%w: %s after %s", ErrTimeout, p.name, p.acquireTimeout)
	}
}

func acquireResult(err error) string {
	if errors.Is(err, ErrTimeout) {
		return "timeout"
	}
	return "cancelled"
}

func (p *Pool[R]) build(ctx context.Context, i int, sl *slot[R], start time.Time) (R, error) {
	res, err := p.factory(ctx, i)

	p.mu.Lock()
	defer p.mu.Unlock()
	if err != nil {
		sl.state = Uninitialized
		p.cond.Signal()
		p.recordAcquire("error", start)
		var zero R
		return zero, fmt.Errorf("%s slot %d: %w", p.name, i, err)
	}
	sl.res = res
	p.lent[res] = i
	p.publishLocked()
	p.recordAcquire("ok", start)
	logging.Op().Debug("pool slot constructed", "pool", p.name, "slot", i)
	return res, nil
}

// waitLocked blocks on the cond until a slot frees up, ctx ends or wait
// elapses (0 = no deadline). Must be called with p.mu held.
func (p *Pool[R]) waitLocked(ctx context.Context, wait time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.waiters++
	defer func() { p.waiters-- }()

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			p.mu.Lock()
			p.cond.Broadcast()
			p.mu.Unlock()
		case <-done:
		}
	}()

	var timer *time.Timer
	if wait > 0 {
		timer = time.AfterFunc(wait, func() {
			p.mu.Lock()
			p.cond.Broadcast()
			p.mu.Unlock()
		})
	}

	p.cond.Wait()
	close(done)
	if timer != nil {
		timer.Stop()
	}
	return ctx.Err()
}

func (p *Pool[R]) findLocked(state State) (int, bool) {
	for i, sl := range p.slots {
		if sl.state == state {
			return i, true
		}
	}
	return 0, false
}

// Release rolls back res and returns its slot to the idle set. A resource
// whose rollback fails is disconnected and its slot rebuilt on next use.
func (p *Pool[R]) Release(ctx context.Context, res R) error {
	p.releaseMu.Lock()
	defer p.releaseMu.Unlock()

	p.mu.Lock()
	i, ok := p.lent[res]
	if !ok {
		p.mu.Unlock()
		return ErrForeignHandle
	}
	sl := p.slots[i]
	closed := p.closed
	p.mu.Unlock()

	rbErr := res.Rollback(ctx)
	if rbErr != nil {
		logging.Op().Warn("rollback on release failed, discarding slot", "pool", p.name, "slot", i, "error", rbErr)
	}
	if rbErr != nil || closed {
		if err := res.Disconnect(ctx); err != nil {
			logging.Op().Warn("disconnect on release failed", "pool", p.name, "slot", i, "error", err)
		}
	}

	p.mu.Lock()
	delete(p.lent, res)
	switch {
	case rbErr != nil || closed:
		var zero R
		sl.res = zero
		sl.state = Uninitialized
	default:
		sl.state = Idle
	}
	p.publishLocked()
	p.cond.Signal()
	p.mu.Unlock()
	return rbErr
}

// Do borrows a resource for the duration of fn.
func (p *Pool[R]) Do(ctx context.Context, fn func(R) error) error {
	res, err := p.Get(ctx)
	if err != nil {
		return err
	}
	err = fn(res)
	if relErr := p.Release(ctx, res); relErr != nil && err == nil {
		err = relErr
	}
	return err
}

// SetMaxWorkers grows capacity to n by appending uninitialized slots.
func (p *Pool[R]) SetMaxWorkers(n int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n < len(p.slots) {
		return fmt.Errorf("%w: %s has %d slots, requested %d", ErrShrink, p.name, len(p.slots), n)
	}
	for len(p.slots) < n {
		p.slots = append(p.slots, &slot[R]{})
	}
	p.publishLocked()
	p.cond.Broadcast()
	return nil
}

// MaxWorkers returns the current capacity.
func (p *Pool[R]) MaxWorkers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.slots)
}

// Close disconnects idle resources and fails pending and future Gets.
// Borrowed resources are disconnected when released.
func (p *Pool[R]) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	var idle []R
	for _, sl := range p.slots {
		if sl.state == Idle {
			idle = append(idle, sl.res)
			var zero R
			sl.res = zero
			sl.state = Uninitialized
		}
	}
	p.publishLocked()
	p.cond.Broadcast()
	p.mu.Unlock()

	var errs []error
	for _, res := range idle {
		errs = append(errs, res.Disconnect(ctx))
	}
	return errors.Join(errs...)
}

func (p *Pool[R]) recordAcquire(result string, start time.Time) {
	metrics.RecordPoolAcquire(p.name, result, time.Since(start))
}
