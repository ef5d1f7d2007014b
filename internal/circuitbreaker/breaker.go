// Package circuitbreaker stops a pool from dialing a database that keeps
// refusing connections.
//
// The breaker has three states:
//
//	Closed ──(Threshold consecutive failures)──► Open ──(Cooldown elapsed)──► HalfOpen
//	  ▲                                                                         │
//	  └───────────────────────(probe succeeds)──────────────────────────────────┘
//	                          (probe fails) ───────────────────────────────► Open
//
// In HalfOpen exactly one connect attempt is let through at a time.
package circuitbreaker

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrOpen is returned by Do while the breaker rejects attempts.
var ErrOpen = errors.New("circuitbreaker: open")

// State represents the circuit breaker state.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Config holds the breaker thresholds.
type Config struct {
	// Threshold is the number of consecutive failures that opens the
	// breaker. Zero disables the breaker.
	Threshold int
	// Cooldown is how long the breaker stays open before a probe.
	Cooldown time.Duration
}

// Breaker guards one database. Safe for concurrent use.
type Breaker struct {
	name string
	cfg  Config
	now  func() time.Time

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probing  bool
	lastErr  error
}

// New returns a breaker named after the database it guards, or nil when
// cfg disables breaking. A nil breaker allows everything.
func New(name string, cfg Config) *Breaker {
	if cfg.Threshold <= 0 {
		return nil
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	return &Breaker{name: name, cfg: cfg, now: time.Now}
}

// Do runs fn unless the breaker is open and records its outcome.
func (b *Breaker) Do(fn func() error) error {
	if b == nil {
		return fn()
	}
	if err := b.allow(); err != nil {
		return err
	}
	err := fn()
	b.record(err)
	return err
}

func (b *Breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.advanceLocked()
	switch b.state {
	case StateOpen:
		return b.rejectLocked()
	case StateHalfOpen:
		if b.probing {
			return b.rejectLocked()
		}
		b.probing = true
	}
	return nil
}

func (b *Breaker) rejectLocked() error {
	retry := b.cfg.Cooldown - b.now().Sub(b.openedAt)
	if retry < 0 {
		retry = 0
	}
	return fmt.Errorf("%w: %s after %d failures, retry in %s: %v",
		ErrOpen, b.name, b.failures, retry.Round(time.Second), b.lastErr)
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		b.state = StateClosed
		b.failures = 0
		b.probing = false
		b.lastErr = nil
		return
	}
	b.failures++
	b.lastErr = err
	if b.state == StateHalfOpen || b.failures >= b.cfg.Threshold {
		b.state = StateOpen
		b.openedAt = b.now()
	}
	b.probing = false
}

// advanceLocked moves an expired open breaker to half-open.
func (b *Breaker) advanceLocked() {
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.cfg.Cooldown {
		b.state = StateHalfOpen
		b.probing = false
	}
}

// State returns the current state. A nil breaker is always closed.
func (b *Breaker) State() State {
	if b == nil {
		return StateClosed
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.advanceLocked()
	return b.state
}
