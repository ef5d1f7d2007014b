// Package sqldb is the bridging backend: any database/sql driver registered
// in the process can serve a Session. The mysql and sqlite drivers are
// linked in; local sqlite files hold metadata snapshots.
package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/oriys/fmidb/internal/db"
	"github.com/oriys/fmidb/internal/domain"
	"github.com/oriys/fmidb/internal/logging"
	"github.com/oriys/fmidb/internal/rowcodec"
	"modernc.org/sqlite"
)

// Driver names accepted by New.
const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"
)

// Variant describes one database/sql backend flavour. Backends that need
// more than the Session contract (the enterprise backend's procedure
// cursors) wrap a Session built from their own Variant.
type Variant struct {
	Kind   db.Kind
	Driver string
	// DSN renders credentials; nil uses the package DSN function.
	DSN func(db.Credentials) (string, error)
	// Code extracts a native error code; nil uses ErrorCode.
	Code func(error) string
	// OnConnect runs once on the pinned connection after login.
	OnConnect func(ctx context.Context, conn *sql.Conn) error
}

// Session is a db.Session over one pinned database/sql connection.
type Session struct {
	variant Variant
	creds   db.Credentials
	opts    db.Options
	id      string

	pool *sql.DB
	conn *sql.Conn
	tx   *sql.Tx

	codec  *rowcodec.Codec
	stream *db.Stream
}

var (
	_ db.Session    = (*Session)(nil)
	_ db.DateMasker = (*Session)(nil)
)

// New returns a disconnected session for the named driver.
func New(driver string, creds db.Credentials, opts ...db.Option) *Session {
	return NewVariant(Variant{Kind: db.KindSQL, Driver: driver}, creds, opts...)
}

// NewVariant returns a disconnected session for v.
func NewVariant(v Variant, creds db.Credentials, opts ...db.Option) *Session {
	if v.Kind == "" {
		v.Kind = db.KindSQL
	}
	if v.DSN == nil {
		driver := v.Driver
		v.DSN = func(c db.Credentials) (string, error) { return DSN(driver, c) }
	}
	if v.Code == nil {
		v.Code = ErrorCode
	}
	o := db.BuildOptions(opts...)
	codec := o.Codec(v.Kind)
	return &Session{
		variant: v,
		creds:   creds,
		opts:    o,
		id:      uuid.New().String(),
		codec:   codec,
		stream:  db.NewStream(codec),
	}
}

func (s *Session) Kind() db.Kind   { return s.variant.Kind }
func (s *Session) ID() string      { return s.id }
func (s *Session) Connected() bool { return s.conn != nil }

// Driver returns the database/sql driver name.
func (s *Session) Driver() string { return s.variant.Driver }

// Codec returns the session's row codec.
func (s *Session) Codec() *rowcodec.Codec { return s.codec }

// Options returns the options the session was built with.
func (s *Session) Options() db.Options { return s.opts }

// ExecRaw runs query with bind arguments inside the open transaction, or
// directly on the connection when none is open. It bypasses tracing and
// statement bookkeeping; callers wrap it in db.Observe.
func (s *Session) ExecRaw(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if s.conn == nil {
		return nil, db.ErrNotConnected
	}
	if s.tx != nil {
		return s.tx.ExecContext(ctx, query, args...)
	}
	return s.conn.ExecContext(ctx, query, args...)
}

// ExecError wraps a driver error with the variant's native code.
func (s *Session) ExecError(stmt string, err error) error {
	return &db.ExecError{Backend: s.variant.Kind, Code: s.variant.Code(err), SQL: stmt, Err: err}
}

// DSN renders credentials in the driver's connection string format.
func DSN(driver string, c db.Credentials) (string, error) {
	if c.DSN != "" {
		return c.DSN, nil
	}
	switch driver {
	case DriverMySQL:
		cfg := mysql.NewConfig()
		cfg.Net = "tcp"
		cfg.Addr = c.Address()
		cfg.DBName = c.Database
		if !c.External {
			cfg.User = c.User
			cfg.Passwd = c.Password
		}
		return cfg.FormatDSN(), nil
	case DriverSQLite:
		return c.Database, nil
	default:
		return "", fmt.Errorf("%w: driver %q needs an explicit DSN", db.ErrConnectionFailed, driver)
	}
}

func (s *Session) Connect(ctx context.Context) error {
	if s.conn != nil {
		return nil
	}
	if s.variant.Driver != DriverSQLite {
		if err := s.creds.Validate(); err != nil {
			return err
		}
	}
	dsn, err := s.variant.DSN(s.creds)
	if err != nil {
		return err
	}

	err = db.Observe(ctx, s.statement("connect", ""), func(ctx context.Context) error {
		pool, err := sql.Open(s.variant.Driver, dsn)
		if err != nil {
			return err
		}
		pool.SetMaxOpenConns(1)
		conn, err := pool.Conn(ctx)
		if err != nil {
			pool.Close()
			return err
		}
		if err := conn.PingContext(ctx); err != nil {
			conn.Close()
			pool.Close()
			return err
		}
		if s.variant.OnConnect != nil {
			if err := s.variant.OnConnect(ctx, conn); err != nil {
				conn.Close()
				pool.Close()
				return err
			}
		}
		s.pool, s.conn = pool, conn
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %s %s: %w", db.ErrConnectionFailed, s.variant.Driver, s.creds.Redacted(), err)
	}
	logging.Op().Info("connected", "backend", s.variant.Kind, "driver", s.variant.Driver, "session", s.id)
	return nil
}

func (s *Session) Disconnect(ctx context.Context) error {
	if s.conn == nil {
		return nil
	}
	if err := s.stream.Close(); err != nil {
		logging.Op().Warn("closing cursor on disconnect", "session", s.id, "error", err)
	}
	if s.tx != nil {
		if err := s.tx.Rollback(); err != nil {
			logging.Op().Warn("rollback on disconnect failed", "session", s.id, "error", err)
		}
		s.tx = nil
	}
	err := errors.Join(s.conn.Close(), s.pool.Close())
	s.conn, s.pool = nil, nil
	logging.Op().Info("disconnected", "backend", s.variant.Kind, "driver", s.variant.Driver, "session", s.id)
	return err
}

func (s *Session) Query(ctx context.Context, query string) error {
	if s.conn == nil {
		return db.ErrNotConnected
	}
	if s.opts.TestMode {
		db.LogTestMode(s.variant.Kind, s.id, "query", query)
		return nil
	}
	s.stream.Close()

	return db.Observe(ctx, s.statement("query", query), func(ctx context.Context) error {
		var rows *sql.Rows
		var err error
		if s.tx != nil {
			rows, err = s.tx.QueryContext(ctx, query)
		} else {
			rows, err = s.conn.QueryContext(ctx, query)
		}
		if err != nil {
			return s.execError(query, err)
		}
		src, err := newSource(rows)
		if err != nil {
			rows.Close()
			return s.execError(query, err)
		}
		return s.stream.Open(src)
	})
}

func (s *Session) FetchRow(ctx context.Context) (domain.Row, error) {
	if s.conn == nil {
		return nil, db.ErrNotConnected
	}
	return s.stream.Fetch(ctx)
}

func (s *Session) Execute(ctx context.Context, stmt string) error {
	if s.conn == nil {
		return db.ErrNotConnected
	}
	if s.opts.TestMode {
		db.LogTestMode(s.variant.Kind, s.id, "execute", stmt)
		return nil
	}
	s.stream.Close()

	return db.Observe(ctx, s.statement("execute", stmt), func(ctx context.Context) error {
		if s.tx == nil {
			tx, err := s.conn.BeginTx(ctx, nil)
			if err != nil {
				return s.execError("BEGIN", err)
			}
			s.tx = tx
		}
		if _, err := s.tx.ExecContext(ctx, stmt); err != nil {
			return s.execError(stmt, err)
		}
		return nil
	})
}

func (s *Session) Commit(ctx context.Context) error {
	if s.conn == nil {
		return db.ErrNotConnected
	}
	if s.tx == nil {
		return nil
	}
	s.stream.Close()
	tx := s.tx
	s.tx = nil
	return db.Observe(ctx, s.statement("commit", ""), func(context.Context) error {
		if err := tx.Commit(); err != nil {
			return s.execError("COMMIT", err)
		}
		return nil
	})
}

func (s *Session) Rollback(ctx context.Context) error {
	if s.conn == nil {
		return db.ErrNotConnected
	}
	s.stream.Close()
	if s.tx == nil {
		return nil
	}
	tx := s.tx
	s.tx = nil
	return db.Observe(ctx, s.statement("rollback", ""), func(context.Context) error {
		if err := tx.Rollback(); err != nil {
			return s.execError("ROLLBACK", err)
		}
		return nil
	})
}

// SetDateMask changes timestamp rendering for subsequent fetches.
func (s *Session) SetDateMask(_ context.Context, mask string) error {
	return s.codec.SetDateMask(mask)
}

func (s *Session) statement(op, sql string) db.Statement {
	return db.Statement{Backend: s.variant.Kind, Session: s.id, Op: op, SQL: sql}
}

func (s *Session) execError(stmt string, err error) error {
	return s.ExecError(stmt, err)
}

// ErrorCode extracts the driver's native error number, or "".
func ErrorCode(err error) string {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return strconv.Itoa(int(myErr.Number))
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		return strconv.Itoa(liteErr.Code())
	}
	return ""
}

// ─── Cursor ─────────────────────────────────────────────────────────────────

type source struct {
	rows *sql.Rows
	cols []rowcodec.Column
}

func newSource(rows *sql.Rows) (*source, error) {
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}
	return &source{rows: rows, cols: Columns(types)}, nil
}

func (src *source) Columns() []rowcodec.Column { return src.cols }

func (src *source) Next(ctx context.Context) ([]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !src.rows.Next() {
		if err := src.rows.Err(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}
	values := make([]any, len(src.cols))
	dest := make([]any, len(values))
	for i := range values {
		dest[i] = &values[i]
	}
	if err := src.rows.Scan(dest...); err != nil {
		return nil, err
	}
	return values, nil
}

func (src *source) Close() error { return src.rows.Close() }

// Columns converts driver column types. Columns without a declared type
// (sqlite expressions) are treated as text.
func Columns(types []*sql.ColumnType) []rowcodec.Column {
	cols := make([]rowcodec.Column, len(types))
	for i, ct := range types {
		name := ct.DatabaseTypeName()
		tag := rowcodec.TagText
		if name != "" {
			tag = rowcodec.TagFor(name)
		}
		nullable, ok := ct.Nullable()
		cols[i] = rowcodec.Column{
			Name:         ct.Name(),
			Tag:          tag,
			DatabaseType: name,
			Nullable:     nullable || !ok,
		}
	}
	return cols
}
