// Package db defines the database driver capability that every metadata
// repository is built on. A Session owns exactly one physical connection and
// at most one open result stream; backends live in subpackages (postgres,
// sqldb, oracle) and implement the same contract.
package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/oriys/fmidb/internal/domain"
)

// Kind names a backend protocol.
type Kind string

const (
	KindPostgres Kind = "postgres"
	KindOracle   Kind = "oracle"
	KindSQL      Kind = "sql"
	KindFake     Kind = "fake"
)

var (
	// ErrNotConnected is returned by statement operations on a session that
	// has not been connected.
	ErrNotConnected = errors.New("db: must be connected before executing query")
	// ErrNoCursor is returned by FetchRow when no result stream is open,
	// including after the stream reported exhaustion.
	ErrNoCursor = errors.New("db: no open cursor")
	// ErrConnectionFailed wraps every connect failure.
	ErrConnectionFailed = errors.New("db: connection failed")
	// ErrProcedureUnsupported is returned when a backend cannot bind output
	// cursors.
	ErrProcedureUnsupported = errors.New("db: stored procedure cursors not supported by backend")
)

// Session is one authenticated connection with a single implicit
// transaction. A Session is not safe for concurrent use.
type Session interface {
	// Connect opens the connection. It is a no-op when already connected.
	Connect(ctx context.Context) error
	// Disconnect closes any open stream and the connection.
	Disconnect(ctx context.Context) error
	Connected() bool

	// Query opens a forward-only cursor for sql, closing any previous one.
	Query(ctx context.Context, sql string) error
	// FetchRow returns the next row of the open cursor. An empty row is
	// returned exactly once on exhaustion, after which the cursor is closed.
	FetchRow(ctx context.Context) (domain.Row, error)
	// Execute runs a statement without a result set. Failures are returned
	// as *ExecError.
	Execute(ctx context.Context, sql string) error

	Commit(ctx context.Context) error
	// Rollback closes any open cursor and rolls the transaction back.
	Rollback(ctx context.Context) error

	Kind() Kind
	// ID identifies the session in logs and traces.
	ID() string
}

// ProcedureSession is implemented by backends that can call a stored
// function returning a cursor. The procedure cursor is a stream independent
// of the Query cursor.
type ProcedureSession interface {
	Session
	ExecuteProcedure(ctx context.Context, call string) error
	FetchRowFromCursor(ctx context.Context) (domain.Row, error)
}

// DateMasker is implemented by sessions whose timestamp rendering can be
// changed after construction.
type DateMasker interface {
	SetDateMask(ctx context.Context, mask string) error
}

// ExecError is a statement failure carrying the backend's native error code.
type ExecError struct {
	Backend Kind
	Code    string
	SQL     string
	Err     error
}

func (e *ExecError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("%s: execution failed: %v", e.Backend, e.Err)
	}
	return fmt.Sprintf("%s: execution failed (code %s): %v", e.Backend, e.Code, e.Err)
}

func (e *ExecError) Unwrap() error { return e.Err }

// ErrorCode returns the native code of the first ExecError in err's chain.
func ErrorCode(err error) (string, bool) {
	var ee *ExecError
	if errors.As(err, &ee) && ee.Code != "" {
		return ee.Code, true
	}
	return "", false
}

// IsCode reports whether err carries one of the given native codes.
func IsCode(err error, codes ...string) bool {
	code, ok := ErrorCode(err)
	if !ok {
		return false
	}
	for _, c := range codes {
		if c == code {
			return true
		}
	}
	return false
}

// Native codes for "object already exists" on the supported backends.
var AlreadyExistsCodes = []string{"955", "42P07", "1050"}

// Quote renders s as a SQL string literal.
func Quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// Drain reads rows until the cursor is exhausted.
func Drain(ctx context.Context, s Session) ([]domain.Row, error) {
	var rows []domain.Row
	for {
		row, err := s.FetchRow(ctx)
		if err != nil {
			return rows, err
		}
		if row.Empty() {
			return rows, nil
		}
		rows = append(rows, row)
	}
}
