// Package fakedb provides a scripted in-memory Session. Statements are
// matched by substring against registered results and every statement is
// recorded, so tests can assert how much SQL a lookup issued.
package fakedb

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/oriys/fmidb/internal/db"
	"github.com/oriys/fmidb/internal/domain"
	"github.com/oriys/fmidb/internal/rowcodec"
)

type script struct {
	match string
	cols  []string
	rows  [][]string
	err   error
	code  string
}

// Session is a db.ProcedureSession whose results come from scripts.
type Session struct {
	id string

	mu        sync.Mutex
	scripts   []script
	log       []string
	connected bool
	inTx      bool

	// ConnectErr, when set, is returned by Connect.
	ConnectErr error

	Connects  atomic.Int64
	Queries   atomic.Int64
	Executes  atomic.Int64
	Commits   atomic.Int64
	Rollbacks atomic.Int64

	codec  *rowcodec.Codec
	stream *db.Stream
	proc   *db.Stream
}

var (
	_ db.ProcedureSession = (*Session)(nil)
	_ db.DateMasker       = (*Session)(nil)
)

// New returns a disconnected fake session.
func New() *Session {
	codec := db.BuildOptions().Codec(db.KindFake)
	return &Session{
		id:     uuid.New().String(),
		codec:  codec,
		stream: db.NewStream(codec),
		proc:   db.NewStream(codec),
	}
}

// Connected returns a fake session that is already connected.
func Connected() *Session {
	s := New()
	s.connected = true
	return s
}

// On registers rows returned for statements containing match. Scripts are
// tried in registration order; statements matching none return no rows.
func (s *Session) On(match string, cols []string, rows ...[]string) *Session {
	s.mu.Lock()
	s.scripts = append(s.scripts, script{match: match, cols: cols, rows: rows})
	s.mu.Unlock()
	return s
}

// OnError makes statements containing match fail with err.
func (s *Session) OnError(match string, err error) *Session {
	s.mu.Lock()
	s.scripts = append(s.scripts, script{match: match, err: err})
	s.mu.Unlock()
	return s
}

// OnCode makes statements containing match fail with a native error code,
// e.g. "955" for an object that already exists.
func (s *Session) OnCode(match, code string) *Session {
	s.mu.Lock()
	s.scripts = append(s.scripts, script{match: match, err: fmt.Errorf("scripted failure %s", code), code: code})
	s.mu.Unlock()
	return s
}

// Statements returns every Query, Execute and procedure statement seen.
func (s *Session) Statements() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.log...)
}

// Count returns how many recorded statements contain substr.
func (s *Session) Count(substr string) int {
	n := 0
	for _, stmt := range s.Statements() {
		if strings.Contains(stmt, substr) {
			n++
		}
	}
	return n
}

// Reset clears the statement log and counters, keeping scripts.
func (s *Session) Reset() {
	s.mu.Lock()
	s.log = nil
	s.mu.Unlock()
	s.Queries.Store(0)
	s.Executes.Store(0)
	s.Commits.Store(0)
	s.Rollbacks.Store(0)
}

// InTransaction reports whether an Execute opened the implicit transaction.
func (s *Session) InTransaction() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inTx
}

func (s *Session) Kind() db.Kind { return db.KindFake }
func (s *Session) ID() string    { return s.id }

func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *Session) Connect(context.Context) error {
	s.Connects.Add(1)
	if s.ConnectErr != nil {
		return fmt.Errorf("%w: %w", db.ErrConnectionFailed, s.ConnectErr)
	}
	s.mu.Lock()
	s.connected = true
	s.mu.Unlock()
	return nil
}

func (s *Session) Disconnect(context.Context) error {
	s.stream.Close()
	s.proc.Close()
	s.mu.Lock()
	s.connected = false
	s.inTx = false
	s.mu.Unlock()
	return nil
}

func (s *Session) record(stmt string) (script, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return script{}, false, db.ErrNotConnected
	}
	s.log = append(s.log, stmt)
	for _, sc := range s.scripts {
		if strings.Contains(stmt, sc.match) {
			return sc, true, nil
		}
	}
	return script{}, false, nil
}

func (s *Session) open(stream *db.Stream, stmt string) error {
	sc, ok, err := s.record(stmt)
	if err != nil {
		return err
	}
	if sc.err != nil {
		return &db.ExecError{Backend: db.KindFake, Code: sc.code, SQL: stmt, Err: sc.err}
	}
	src := &db.MemorySource{}
	if ok {
		src.Cols = make([]rowcodec.Column, len(sc.cols))
		for i, name := range sc.cols {
			src.Cols[i] = rowcodec.Column{Name: name, Tag: rowcodec.TagText, DatabaseType: "TEXT", Nullable: true}
		}
		for _, r := range sc.rows {
			values := make([]any, len(r))
			for i, v := range r {
				values[i] = v
			}
			src.Rows = append(src.Rows, values)
		}
	}
	return stream.Open(src)
}

func (s *Session) Query(_ context.Context, sql string) error {
	s.Queries.Add(1)
	s.stream.Close()
	return s.open(s.stream, sql)
}

func (s *Session) FetchRow(ctx context.Context) (domain.Row, error) {
	if !s.Connected() {
		return nil, db.ErrNotConnected
	}
	return s.stream.Fetch(ctx)
}

func (s *Session) Execute(_ context.Context, sql string) error {
	s.Executes.Add(1)
	sc, _, err := s.record(sql)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.inTx = true
	s.mu.Unlock()
	if sc.err != nil {
		return &db.ExecError{Backend: db.KindFake, Code: sc.code, SQL: sql, Err: sc.err}
	}
	return nil
}

func (s *Session) ExecuteProcedure(_ context.Context, call string) error {
	s.proc.Close()
	return s.open(s.proc, call)
}

func (s *Session) FetchRowFromCursor(ctx context.Context) (domain.Row, error) {
	if !s.Connected() {
		return nil, db.ErrNotConnected
	}
	return s.proc.Fetch(ctx)
}

func (s *Session) Commit(context.Context) error {
	if !s.Connected() {
		return db.ErrNotConnected
	}
	s.Commits.Add(1)
	s.mu.Lock()
	s.inTx = false
	s.mu.Unlock()
	return nil
}

func (s *Session) Rollback(context.Context) error {
	if !s.Connected() {
		return db.ErrNotConnected
	}
	s.Rollbacks.Add(1)
	s.stream.Close()
	s.proc.Close()
	s.mu.Lock()
	s.inTx = false
	s.mu.Unlock()
	return nil
}

func (s *Session) SetDateMask(_ context.Context, mask string) error {
	return s.codec.SetDateMask(mask)
}

// DateMask returns the mask timestamps are currently rendered with.
func (s *Session) DateMask() string {
	return s.codec.DateMask().String()
}
