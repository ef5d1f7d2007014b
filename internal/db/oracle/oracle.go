// Package oracle is the enterprise RDBMS backend. It speaks the native
// protocol through go-ora and adds stored function calls returning a
// REF CURSOR, iterated independently of the Query cursor.
package oracle

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"strconv"

	go_ora "github.com/sijms/go-ora/v2"
	"github.com/sijms/go-ora/v2/network"

	"github.com/oriys/fmidb/internal/db"
	"github.com/oriys/fmidb/internal/db/sqldb"
	"github.com/oriys/fmidb/internal/domain"
	"github.com/oriys/fmidb/internal/rowcodec"
)

// DriverName is the database/sql name go-ora registers.
const DriverName = "oracle"

// DefaultPort is the listener port used when credentials carry none.
const DefaultPort = 1521

// Session is a db.ProcedureSession on the enterprise RDBMS.
type Session struct {
	*sqldb.Session
	proc *db.Stream
}

var (
	_ db.ProcedureSession = (*Session)(nil)
	_ db.DateMasker       = (*Session)(nil)
)

// New returns a disconnected session.
func New(creds db.Credentials, opts ...db.Option) *Session {
	s := &Session{}
	s.Session = sqldb.NewVariant(sqldb.Variant{
		Kind:      db.KindOracle,
		Driver:    DriverName,
		DSN:       DSN,
		Code:      ErrorCode,
		OnConnect: s.applyDateFormat,
	}, creds, opts...)
	s.proc = db.NewStream(s.Codec())
	return s
}

// DSN renders credentials as a go-ora URL. The database name is the
// service name. External authentication defers to the client OS account.
func DSN(c db.Credentials) (string, error) {
	if c.DSN != "" {
		return c.DSN, nil
	}
	port := c.Port
	if port == 0 {
		port = DefaultPort
	}
	user, password := c.User, c.Password
	var options map[string]string
	if c.External {
		user, password = "", ""
		options = map[string]string{"AUTH TYPE": "OS"}
	}
	return go_ora.BuildUrl(c.Host, port, c.Database, user, password, options), nil
}

// ErrorCode returns the ORA error number without prefix, e.g. "955".
func ErrorCode(err error) string {
	var oraErr *network.OracleError
	if errors.As(err, &oraErr) {
		return strconv.Itoa(oraErr.ErrCode)
	}
	return ""
}

// DateFormatStatement is issued at login and whenever the mask changes.
func DateFormatStatement(mask rowcodec.DateMask) string {
	return "ALTER SESSION SET NLS_DATE_FORMAT = " + db.Quote(mask.String())
}

func (s *Session) applyDateFormat(ctx context.Context, conn *sql.Conn) error {
	_, err := conn.ExecContext(ctx, DateFormatStatement(s.Codec().DateMask()))
	return err
}

// WrapCall renders the anonymous block binding the function result to an
// output cursor.
func WrapCall(call string) string {
	return "BEGIN\n:1 := " + call + ";\nEND;"
}

// ExecuteProcedure calls a stored function returning a cursor, e.g.
// "stations_pkg.list_for_producer(20015)". Rows are read with
// FetchRowFromCursor.
func (s *Session) ExecuteProcedure(ctx context.Context, call string) error {
	if !s.Connected() {
		return db.ErrNotConnected
	}
	block := WrapCall(call)
	if s.Options().TestMode {
		db.LogTestMode(db.KindOracle, s.ID(), "procedure", block)
		return nil
	}
	s.proc.Close()

	st := db.Statement{Backend: db.KindOracle, Session: s.ID(), Op: "procedure", SQL: block}
	return db.Observe(ctx, st, func(ctx context.Context) error {
		var cursor go_ora.RefCursor
		if _, err := s.ExecRaw(ctx, block, sql.Out{Dest: &cursor}); err != nil {
			return s.ExecError(block, err)
		}
		rows, err := cursor.Query()
		if err != nil {
			cursor.Close()
			return s.ExecError(block, err)
		}
		return s.proc.Open(newCursorSource(rows, &cursor))
	})
}

// FetchRowFromCursor returns the next row of the procedure cursor with the
// same exhaustion contract as FetchRow.
func (s *Session) FetchRowFromCursor(ctx context.Context) (domain.Row, error) {
	if !s.Connected() {
		return nil, db.ErrNotConnected
	}
	return s.proc.Fetch(ctx)
}

// SetDateMask validates mask, changes the server date format when
// connected and switches client side rendering.
func (s *Session) SetDateMask(ctx context.Context, mask string) error {
	m, err := rowcodec.ParseDateMask(mask)
	if err != nil {
		return err
	}
	if s.Connected() {
		stmt := DateFormatStatement(m)
		st := db.Statement{Backend: db.KindOracle, Session: s.ID(), Op: "execute", SQL: stmt}
		err := db.Observe(ctx, st, func(ctx context.Context) error {
			if _, err := s.ExecRaw(ctx, stmt); err != nil {
				return s.ExecError(stmt, err)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return s.Codec().SetDateMask(mask)
}

// Rollback closes both cursors before rolling back.
func (s *Session) Rollback(ctx context.Context) error {
	s.proc.Close()
	return s.Session.Rollback(ctx)
}

func (s *Session) Disconnect(ctx context.Context) error {
	s.proc.Close()
	return s.Session.Disconnect(ctx)
}

// ─── Procedure cursor ───────────────────────────────────────────────────────

type columnTyper interface {
	ColumnTypeDatabaseTypeName(index int) string
}

type cursorSource struct {
	rows   driver.Rows
	cursor *go_ora.RefCursor
	cols   []rowcodec.Column
}

func newCursorSource(rows driver.Rows, cursor *go_ora.RefCursor) *cursorSource {
	names := rows.Columns()
	cols := make([]rowcodec.Column, len(names))
	typer, _ := rows.(columnTyper)
	for i, name := range names {
		col := rowcodec.Column{Name: name, Tag: rowcodec.TagText, Nullable: true}
		if typer != nil {
			col.DatabaseType = typer.ColumnTypeDatabaseTypeName(i)
			col.Tag = rowcodec.TagFor(col.DatabaseType)
		}
		cols[i] = col
	}
	return &cursorSource{rows: rows, cursor: cursor, cols: cols}
}

func (c *cursorSource) Columns() []rowcodec.Column { return c.cols }

func (c *cursorSource) Next(ctx context.Context) ([]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dest := make([]driver.Value, len(c.cols))
	if err := c.rows.Next(dest); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, err
	}
	values := make([]any, len(dest))
	for i, v := range dest {
		values[i] = v
	}
	return values, nil
}

func (c *cursorSource) Close() error {
	err := c.rows.Close()
	if c.cursor != nil {
		err = errors.Join(err, c.cursor.Close())
	}
	return err
}
