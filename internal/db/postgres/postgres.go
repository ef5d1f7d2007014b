// Package postgres is the open-source RDBMS backend. Results are requested
// in the text format so numeric and timestamp values arrive exactly as the
// server renders them.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/oriys/fmidb/internal/db"
	"github.com/oriys/fmidb/internal/domain"
	"github.com/oriys/fmidb/internal/logging"
	"github.com/oriys/fmidb/internal/rowcodec"
)

// querier is satisfied by both *pgx.Conn and pgx.Tx.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Session is a db.Session over one pgx connection.
type Session struct {
	creds  db.Credentials
	opts   db.Options
	id     string
	conn   *pgx.Conn
	tx     pgx.Tx
	codec  *rowcodec.Codec
	stream *db.Stream
}

var (
	_ db.Session    = (*Session)(nil)
	_ db.DateMasker = (*Session)(nil)
)

// New returns a disconnected session.
func New(creds db.Credentials, opts ...db.Option) *Session {
	o := db.BuildOptions(opts...)
	codec := o.Codec(db.KindPostgres)
	return &Session{
		creds:  creds,
		opts:   o,
		id:     uuid.New().String(),
		codec:  codec,
		stream: db.NewStream(codec),
	}
}

func (s *Session) Kind() db.Kind   { return db.KindPostgres }
func (s *Session) ID() string      { return s.id }
func (s *Session) Connected() bool { return s.conn != nil }

// ConnString renders the credentials as a libpq keyword/value string. With
// external authentication user and password are left to the environment
// (PGUSER, PGPASSFILE).
func ConnString(c db.Credentials) string {
	if c.DSN != "" {
		return c.DSN
	}
	var parts []string
	add := func(k, v string) {
		if v == "" {
			return
		}
		v = strings.ReplaceAll(v, `\`, `\\`)
		v = strings.ReplaceAll(v, `'`, `\'`)
		parts = append(parts, k+"='"+v+"'")
	}
	add("host", c.Host)
	if c.Port != 0 {
		add("port", strconv.Itoa(c.Port))
	}
	add("dbname", c.Database)
	if !c.External {
		add("user", c.User)
		add("password", c.Password)
	}
	return strings.Join(parts, " ")
}

func (s *Session) Connect(ctx context.Context) error {
	if s.conn != nil {
		return nil
	}
	if err := s.creds.Validate(); err != nil {
		return err
	}
	err := db.Observe(ctx, s.statement("connect", ""), func(ctx context.Context) error {
		conn, err := pgx.Connect(ctx, ConnString(s.creds))
		if err != nil {
			return err
		}
		s.conn = conn
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %s: %w", db.ErrConnectionFailed, s.creds.Redacted(), err)
	}
	logging.Op().Info("connected", "backend", db.KindPostgres, "session", s.id, "target", s.creds.Redacted())
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
		if err := s.tx.Rollback(ctx); err != nil {
			logging.Op().Warn("rollback on disconnect failed", "session", s.id, "error", err)
		}
		s.tx = nil
	}
	err := s.conn.Close(ctx)
	s.conn = nil
	logging.Op().Info("disconnected", "backend", db.KindPostgres, "session", s.id)
	return err
}

func (s *Session) querier() querier {
	if s.tx != nil {
		return s.tx
	}
	return s.conn
}

func (s *Session) Query(ctx context.Context, sql string) error {
	if s.conn == nil {
		return db.ErrNotConnected
	}
	if s.opts.TestMode {
		db.LogTestMode(db.KindPostgres, s.id, "query", sql)
		return nil
	}
	s.stream.Close()

	return db.Observe(ctx, s.statement("query", sql), func(ctx context.Context) error {
		rows, err := s.querier().Query(ctx, sql, pgx.QueryResultFormats{pgx.TextFormatCode})
		if err != nil {
			return s.execError(sql, err)
		}
		src, err := s.newSource(rows)
		if err != nil {
			return s.execError(sql, err)
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

// Execute begins the implicit transaction if none is open. An open cursor
// is closed first since the connection serves one statement at a time.
func (s *Session) Execute(ctx context.Context, sql string) error {
	if s.conn == nil {
		return db.ErrNotConnected
	}
	if s.opts.TestMode {
		db.LogTestMode(db.KindPostgres, s.id, "execute", sql)
		return nil
	}
	s.stream.Close()

	return db.Observe(ctx, s.statement("execute", sql), func(ctx context.Context) error {
		if s.tx == nil {
			tx, err := s.conn.Begin(ctx)
			if err != nil {
				return s.execError("BEGIN", err)
			}
			s.tx = tx
		}
		if _, err := s.tx.Exec(ctx, sql); err != nil {
			return s.execError(sql, err)
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
	return db.Observe(ctx, s.statement("commit", ""), func(ctx context.Context) error {
		if err := tx.Commit(ctx); err != nil {
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
	return db.Observe(ctx, s.statement("rollback", ""), func(ctx context.Context) error {
		if err := tx.Rollback(ctx); err != nil {
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
	return db.Statement{Backend: db.KindPostgres, Session: s.id, Op: op, SQL: sql}
}

func (s *Session) execError(sql string, err error) error {
	var pgErr *pgconn.PgError
	code := ""
	if errors.As(err, &pgErr) {
		code = pgErr.Code
	}
	return &db.ExecError{Backend: db.KindPostgres, Code: code, SQL: sql, Err: err}
}

// ─── Cursor ─────────────────────────────────────────────────────────────────

// source adapts pgx.Rows. The first row is fetched eagerly so that
// statement errors surface from Query rather than from the first FetchRow.
type source struct {
	rows    pgx.Rows
	cols    []rowcodec.Column
	pending []any
	done    bool
}

func (s *Session) newSource(rows pgx.Rows) (*source, error) {
	src := &source{rows: rows}
	src.cols = columns(s.conn.TypeMap(), rows.FieldDescriptions())
	if rows.Next() {
		src.pending = rawValues(rows)
		return src, nil
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	src.done = true
	return src, nil
}

func (src *source) Columns() []rowcodec.Column { return src.cols }

func (src *source) Next(ctx context.Context) ([]any, error) {
	if src.pending != nil {
		v := src.pending
		src.pending = nil
		return v, nil
	}
	if src.done {
		return nil, io.EOF
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if src.rows.Next() {
		return rawValues(src.rows), nil
	}
	src.done = true
	if err := src.rows.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

func (src *source) Close() error {
	src.rows.Close()
	return src.rows.Err()
}

// rawValues copies the text-format values of the current row. NULL becomes
// nil.
func rawValues(rows pgx.Rows) []any {
	raw := rows.RawValues()
	values := make([]any, len(raw))
	for i, b := range raw {
		if b != nil {
			values[i] = string(b)
		}
	}
	return values
}

var oidTags = map[uint32]rowcodec.Tag{
	pgtype.TextOID:        rowcodec.TagText,
	pgtype.VarcharOID:     rowcodec.TagText,
	pgtype.BPCharOID:      rowcodec.TagText,
	pgtype.NameOID:        rowcodec.TagText,
	pgtype.QCharOID:       rowcodec.TagText,
	pgtype.Int2OID:        rowcodec.TagInt16,
	pgtype.Int4OID:        rowcodec.TagInt32,
	pgtype.OIDOID:         rowcodec.TagInt64,
	pgtype.Int8OID:        rowcodec.TagInt64,
	pgtype.NumericOID:     rowcodec.TagNumeric,
	pgtype.Float4OID:      rowcodec.TagNumeric,
	pgtype.Float8OID:      rowcodec.TagNumeric,
	pgtype.TimestampOID:   rowcodec.TagTimestamp,
	pgtype.TimestamptzOID: rowcodec.TagTimestamp,
	pgtype.DateOID:        rowcodec.TagTimestamp,
	pgtype.ByteaOID:       rowcodec.TagBinary,
}

// TagForOID maps a server type OID to a codec tag.
func TagForOID(oid uint32) rowcodec.Tag {
	if tag, ok := oidTags[oid]; ok {
		return tag
	}
	return rowcodec.TagUnknown
}

func columns(tm *pgtype.Map, fields []pgconn.FieldDescription) []rowcodec.Column {
	cols := make([]rowcodec.Column, len(fields))
	for i, f := range fields {
		name := strconv.FormatUint(uint64(f.DataTypeOID), 10)
		if t, ok := tm.TypeForOID(f.DataTypeOID); ok {
			name = t.Name
		}
		cols[i] = rowcodec.Column{
			Name:         f.Name,
			Tag:          TagForOID(f.DataTypeOID),
			DatabaseType: name,
			Nullable:     true,
		}
	}
	return cols
}
