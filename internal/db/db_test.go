package db

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/oriys/fmidb/internal/logging"
	"github.com/oriys/fmidb/internal/rowcodec"
)

func TestExecErrorCodes(t *testing.T) {
	base := errors.New("name is already used by an existing object")
	err := fmt.Errorf("create table: %w", &ExecError{Backend: KindOracle, Code: "955", SQL: "CREATE TABLE t (a int)", Err: base})

	code, ok := ErrorCode(err)
	if !ok || code != "955" {
		t.Fatalf("ErrorCode = %q, %v", code, ok)
	}
	if !IsCode(err, AlreadyExistsCodes...) {
		t.Fatal("expected already-exists code")
	}
	if IsCode(err, "942") {
		t.Fatal("unexpected code match")
	}
	if !errors.Is(err, base) {
		t.Fatal("ExecError should unwrap to the driver error")
	}
	if _, ok := ErrorCode(errors.New("plain")); ok {
		t.Fatal("plain errors carry no code")
	}
}

func TestQuote(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"HARMONIE", "'HARMONIE'"},
		{"", "''"},
		{"o'neill", "'o''neill'"},
	}
	for _, tt := range tests {
		if got := Quote(tt.in); got != tt.want {
			t.Errorf("Quote(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestStreamLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewStream(BuildOptions().Codec(KindFake))

	if _, err := s.Fetch(ctx); !errors.Is(err, ErrNoCursor) {
		t.Fatalf("fetch on closed stream: %v", err)
	}

	src := &MemorySource{
		Cols: []rowcodec.Column{{Name: "id", Tag: rowcodec.TagInt32}, {Name: "name", Tag: rowcodec.TagText}},
		Rows: [][]any{{int32(1), "a"}, {int32(2), nil}},
	}
	if err := s.Open(src); err != nil {
		t.Fatal(err)
	}

	row, err := s.Fetch(ctx)
	if err != nil || len(row) != 2 || row[0] != "1" || row[1] != "a" {
		t.Fatalf("row 1 = %v, %v", row, err)
	}
	row, err = s.Fetch(ctx)
	if err != nil || row[0] != "2" || row[1] != "" {
		t.Fatalf("row 2 = %v, %v", row, err)
	}
	row, err = s.Fetch(ctx)
	if err != nil || !row.Empty() {
		t.Fatalf("exhaustion = %v, %v", row, err)
	}
	if !src.Closed() || s.IsOpen() {
		t.Fatal("exhaustion should close the stream")
	}
	if _, err := s.Fetch(ctx); !errors.Is(err, ErrNoCursor) {
		t.Fatalf("fetch after exhaustion: %v", err)
	}
}

type brokenSource struct{ next, close error }

func (b *brokenSource) Columns() []rowcodec.Column          { return nil }
func (b *brokenSource) Next(context.Context) ([]any, error) { return nil, b.next }
func (b *brokenSource) Close() error                        { return b.close }

func TestStreamFetchErrorClosesAndLogs(t *testing.T) {
	var buf bytes.Buffer
	prev := logging.Op()
	logging.SetLogger(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { logging.SetLogger(prev) })

	s := NewStream(BuildOptions().Codec(KindFake))
	src := &brokenSource{next: errors.New("ORA-03113"), close: errors.New("cursor already gone")}
	s.Open(src)

	if _, err := s.Fetch(context.Background()); !errors.Is(err, src.next) {
		t.Fatalf("fetch error = %v, want the cursor error", err)
	}
	if s.IsOpen() {
		t.Fatal("failed cursor left attached")
	}
	if !strings.Contains(buf.String(), "cursor already gone") {
		t.Fatalf("close failure not logged: %q", buf.String())
	}
}

func TestStreamOpenClosesPrevious(t *testing.T) {
	s := NewStream(BuildOptions().Codec(KindFake))
	first := &MemorySource{Rows: [][]any{{}}}
	second := &MemorySource{}

	s.Open(first)
	s.Open(second)
	if !first.Closed() {
		t.Fatal("previous source left open")
	}
	if second.Closed() {
		t.Fatal("new source closed")
	}
}

func TestStreamTimestampsFollowMask(t *testing.T) {
	mask, err := rowcodec.ParseDateMask(rowcodec.MaskISO)
	if err != nil {
		t.Fatal(err)
	}
	s := NewStream(BuildOptions(WithDateMask(mask)).Codec(KindFake))
	s.Open(&MemorySource{
		Cols: []rowcodec.Column{{Name: "t", Tag: rowcodec.TagTimestamp}},
		Rows: [][]any{{time.Date(2024, 3, 5, 6, 7, 8, 0, time.UTC)}},
	})
	row, err := s.Fetch(context.Background())
	if err != nil || row[0] != "2024-03-05 06:07:08" {
		t.Fatalf("row = %v, %v", row, err)
	}
}

func TestCredentialsValidate(t *testing.T) {
	tests := []struct {
		name string
		c    Credentials
		ok   bool
	}{
		{"password login", Credentials{User: "radon_client", Password: "x", Database: "radon"}, true},
		{"missing password", Credentials{User: "radon_client", Database: "radon"}, false},
		{"missing user", Credentials{Password: "x", Database: "radon"}, false},
		{"missing database", Credentials{User: "u", Password: "x"}, false},
		{"external auth", Credentials{External: true, Database: "neons"}, true},
		{"raw dsn", Credentials{DSN: "file:meta.db"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.c.Validate()
			if tt.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tt.ok && !errors.Is(err, ErrConnectionFailed) {
				t.Fatalf("err = %v, want ErrConnectionFailed", err)
			}
		})
	}
}

func TestCredentialsRedacted(t *testing.T) {
	c := Credentials{User: "radon_client", Password: "secret", Host: "vorlon", Port: 5432, Database: "radon"}
	if got := c.Redacted(); got != "radon_client/*@vorlon:5432/radon" {
		t.Fatalf("Redacted = %q", got)
	}
}
