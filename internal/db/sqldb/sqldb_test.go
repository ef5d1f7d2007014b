package sqldb

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/oriys/fmidb/internal/db"
	"github.com/oriys/fmidb/internal/domain"
	"github.com/stretchr/testify/require"
)

func newSQLite(t *testing.T, opts ...db.Option) *Session {
	t.Helper()
	path := filepath.Join(t.TempDir(), "meta.db")
	s := New(DriverSQLite, db.Credentials{Database: path}, opts...)
	require.NoError(t, s.Connect(context.Background()))
	t.Cleanup(func() { s.Disconnect(context.Background()) })
	return s
}

func TestMySQLDSN(t *testing.T) {
	dsn, err := DSN(DriverMySQL, db.Credentials{
		User: "radon_client", Password: "pw", Host: "vorlon", Port: 3306, Database: "radon",
	})
	require.NoError(t, err)

	cfg, err := mysql.ParseDSN(dsn)
	require.NoError(t, err)
	require.Equal(t, "radon_client", cfg.User)
	require.Equal(t, "pw", cfg.Passwd)
	require.Equal(t, "vorlon:3306", cfg.Addr)
	require.Equal(t, "radon", cfg.DBName)
}

func TestUnknownDriverNeedsDSN(t *testing.T) {
	_, err := DSN("odbc", db.Credentials{User: "u", Password: "p", Database: "d"})
	require.ErrorIs(t, err, db.ErrConnectionFailed)

	dsn, err := DSN("odbc", db.Credentials{DSN: "DSN=neons"})
	require.NoError(t, err)
	require.Equal(t, "DSN=neons", dsn)
}

func TestConnectIsIdempotent(t *testing.T) {
	s := newSQLite(t)
	id := s.ID()
	require.NoError(t, s.Connect(context.Background()))
	require.True(t, s.Connected())
	require.Equal(t, id, s.ID())
	require.Equal(t, db.KindSQL, s.Kind())
}

func TestQueryFetchExhaustion(t *testing.T) {
	ctx := context.Background()
	s := newSQLite(t)

	require.NoError(t, s.Execute(ctx, "CREATE TABLE producer (id INTEGER, name VARCHAR(20), scale REAL, blob BLOB)"))
	require.NoError(t, s.Execute(ctx, "INSERT INTO producer VALUES (230, 'HARMONIE', 30.0, x'A100FF')"))
	require.NoError(t, s.Execute(ctx, "INSERT INTO producer VALUES (131, 'ECG', 30.1033, NULL)"))
	require.NoError(t, s.Commit(ctx))

	require.NoError(t, s.Query(ctx, "SELECT id, name, scale, blob FROM producer ORDER BY id DESC"))

	rows, err := db.Drain(ctx, s)
	require.NoError(t, err)
	require.Equal(t, []domain.Row{
		{"230", "HARMONIE", "30", "a100ff"},
		{"131", "ECG", "30.1033", ""},
	}, rows)

	_, err = s.FetchRow(ctx)
	require.ErrorIs(t, err, db.ErrNoCursor)
}

func TestQueryReplacesOpenCursor(t *testing.T) {
	ctx := context.Background()
	s := newSQLite(t)

	require.NoError(t, s.Query(ctx, "SELECT 1 UNION ALL SELECT 2"))
	row, err := s.FetchRow(ctx)
	require.NoError(t, err)
	require.Equal(t, domain.Row{"1"}, row)

	require.NoError(t, s.Query(ctx, "SELECT 'second'"))
	row, err = s.FetchRow(ctx)
	require.NoError(t, err)
	require.Equal(t, domain.Row{"second"}, row)
}

func TestRollbackDiscardsAndClosesCursor(t *testing.T) {
	ctx := context.Background()
	s := newSQLite(t)

	require.NoError(t, s.Execute(ctx, "CREATE TABLE t (a INTEGER)"))
	require.NoError(t, s.Commit(ctx))

	require.NoError(t, s.Execute(ctx, "INSERT INTO t VALUES (1)"))
	require.NoError(t, s.Query(ctx, "SELECT count(*) FROM t"))
	require.NoError(t, s.Rollback(ctx))

	_, err := s.FetchRow(ctx)
	require.ErrorIs(t, err, db.ErrNoCursor)

	require.NoError(t, s.Query(ctx, "SELECT count(*) FROM t"))
	row, err := s.FetchRow(ctx)
	require.NoError(t, err)
	require.Equal(t, "0", row.At(0))

	// no open transaction
	require.NoError(t, s.Commit(ctx))
	require.NoError(t, s.Rollback(ctx))
}

func TestExecuteFailureCarriesCode(t *testing.T) {
	ctx := context.Background()
	s := newSQLite(t)

	err := s.Execute(ctx, "INSERT INTO missing VALUES (1)")
	var execErr *db.ExecError
	require.ErrorAs(t, err, &execErr)
	require.Equal(t, db.KindSQL, execErr.Backend)
	require.Equal(t, "1", execErr.Code)
	require.NotErrorIs(t, err, db.ErrConnectionFailed)
}

func TestTestModeSendsNothing(t *testing.T) {
	ctx := context.Background()
	s := newSQLite(t, db.WithTestMode())

	require.NoError(t, s.Execute(ctx, "DROP TABLE does_not_exist"))
	require.NoError(t, s.Query(ctx, "SELECT * FROM does_not_exist"))
	_, err := s.FetchRow(ctx)
	require.ErrorIs(t, err, db.ErrNoCursor)
}

func TestNotConnected(t *testing.T) {
	s := New(DriverSQLite, db.Credentials{Database: ":memory:"})
	ctx := context.Background()
	require.ErrorIs(t, s.Query(ctx, "SELECT 1"), db.ErrNotConnected)
	require.ErrorIs(t, s.Execute(ctx, "SELECT 1"), db.ErrNotConnected)
	require.ErrorIs(t, s.Commit(ctx), db.ErrNotConnected)
	_, err := s.FetchRow(ctx)
	require.True(t, errors.Is(err, db.ErrNotConnected))
	require.NoError(t, s.Disconnect(ctx))
}
