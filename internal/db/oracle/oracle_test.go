package oracle

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/sijms/go-ora/v2/network"

	"github.com/oriys/fmidb/internal/db"
	"github.com/oriys/fmidb/internal/rowcodec"
)

func TestWrapCall(t *testing.T) {
	got := WrapCall("stations_pkg.list(20015)")
	want := "BEGIN\n:1 := stations_pkg.list(20015);\nEND;"
	if got != want {
		t.Fatalf("WrapCall = %q, want %q", got, want)
	}
}

func TestDateFormatStatement(t *testing.T) {
	mask, err := rowcodec.ParseDateMask("yyyy-mm-dd hh24:mi:ss")
	if err != nil {
		t.Fatal(err)
	}
	got := DateFormatStatement(mask)
	if got != "ALTER SESSION SET NLS_DATE_FORMAT = 'YYYY-MM-DD HH24:MI:SS'" {
		t.Fatalf("statement = %q", got)
	}
}

func TestDSN(t *testing.T) {
	dsn, err := DSN(db.Credentials{User: "neons_client", Password: "pw", Host: "dbhost", Database: "neons"})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(dsn, "oracle://neons_client:pw@dbhost:1521/neons") {
		t.Fatalf("DSN = %q", dsn)
	}

	raw, _ := DSN(db.Credentials{DSN: "oracle://u:p@h:1522/svc"})
	if raw != "oracle://u:p@h:1522/svc" {
		t.Fatalf("raw DSN = %q", raw)
	}
}

func TestErrorCode(t *testing.T) {
	err := fmt.Errorf("exec: %w", &network.OracleError{ErrCode: 955, ErrMsg: "ORA-00955: name is already used"})
	if got := ErrorCode(err); got != "955" {
		t.Fatalf("ErrorCode = %q", got)
	}
	if got := ErrorCode(errors.New("other")); got != "" {
		t.Fatalf("ErrorCode of plain error = %q", got)
	}
}

func TestProcedureRequiresConnection(t *testing.T) {
	ctx := context.Background()
	s := New(db.Credentials{User: "u", Password: "p", Host: "h", Database: "cldb"})

	if err := s.ExecuteProcedure(ctx, "f()"); !errors.Is(err, db.ErrNotConnected) {
		t.Fatalf("ExecuteProcedure: %v", err)
	}
	if _, err := s.FetchRowFromCursor(ctx); !errors.Is(err, db.ErrNotConnected) {
		t.Fatalf("FetchRowFromCursor: %v", err)
	}
	if s.Kind() != db.KindOracle {
		t.Fatalf("Kind = %v", s.Kind())
	}
}

func TestSetDateMaskDisconnected(t *testing.T) {
	s := New(db.Credentials{})
	ctx := context.Background()

	if err := s.SetDateMask(ctx, "DD.MM.YYYY"); !errors.Is(err, rowcodec.ErrInvalidDateMask) {
		t.Fatalf("invalid mask: %v", err)
	}
	if s.Codec().DateMask().String() != rowcodec.MaskCompact {
		t.Fatal("invalid mask replaced the current one")
	}
	if err := s.SetDateMask(ctx, rowcodec.MaskISO); err != nil {
		t.Fatal(err)
	}
	if s.Codec().DateMask().String() != rowcodec.MaskISO {
		t.Fatal("mask not applied")
	}
}

type fakeRows struct {
	cols   []string
	types  []string
	rows   [][]driver.Value
	closed bool
}

func (f *fakeRows) Columns() []string { return f.cols }
func (f *fakeRows) Close() error      { f.closed = true; return nil }
func (f *fakeRows) ColumnTypeDatabaseTypeName(i int) string {
	return f.types[i]
}

func (f *fakeRows) Next(dest []driver.Value) error {
	if len(f.rows) == 0 {
		return io.EOF
	}
	copy(dest, f.rows[0])
	f.rows = f.rows[1:]
	return nil
}

func TestCursorSourceDecodes(t *testing.T) {
	rows := &fakeRows{
		cols:  []string{"STATION_ID", "NAME", "ELEVATION", "START_DATE", "SHAPE"},
		types: []string{"NUMBER", "VARCHAR2", "NUMBER", "DATE", "LONG RAW"},
		rows: [][]driver.Value{
			{int64(100971), "Helsinki Kaisaniemi", 3.5, time.Date(1844, 1, 1, 0, 0, 0, 0, time.UTC), []byte{0xa1, 0x00, 0xff}},
		},
	}
	stream := db.NewStream(db.BuildOptions().Codec(db.KindOracle))
	if err := stream.Open(newCursorSource(rows, nil)); err != nil {
		t.Fatal(err)
	}

	row, err := stream.Fetch(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"100971", "Helsinki Kaisaniemi", "3.5", "184401010000", "a100ff"}
	for i := range want {
		if row[i] != want[i] {
			t.Fatalf("row = %q, want %q", row, want)
		}
	}

	row, err = stream.Fetch(context.Background())
	if err != nil || !row.Empty() {
		t.Fatalf("exhaustion = %v, %v", row, err)
	}
	if !rows.closed {
		t.Fatal("cursor not closed on exhaustion")
	}
}
