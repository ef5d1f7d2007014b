package backend

import (
	"errors"
	"testing"

	"github.com/oriys/fmidb/internal/config"
	"github.com/oriys/fmidb/internal/db"
	"github.com/oriys/fmidb/internal/rowcodec"
)

func TestNewByDriver(t *testing.T) {
	creds := db.Credentials{User: "u", Password: "p", Host: "h", Database: "d"}
	tests := []struct {
		driver string
		kind   db.Kind
	}{
		{"postgres", db.KindPostgres},
		{"PostgreSQL", db.KindPostgres},
		{"oracle", db.KindOracle},
		{"mysql", db.KindSQL},
		{"sqlite", db.KindSQL},
	}
	for _, tt := range tests {
		s, err := New(tt.driver, creds)
		if err != nil {
			t.Fatalf("%s: %v", tt.driver, err)
		}
		if s.Kind() != tt.kind {
			t.Errorf("%s: kind = %s, want %s", tt.driver, s.Kind(), tt.kind)
		}
		if s.Connected() {
			t.Errorf("%s: new session is connected", tt.driver)
		}
	}
}

func TestNewUnknownDriver(t *testing.T) {
	if _, err := New("db2", db.Credentials{Database: "x"}); err == nil {
		t.Fatal("expected error for unknown driver")
	}
	if _, err := New("", db.Credentials{Database: "x"}); err == nil {
		t.Fatal("expected error for empty driver")
	}
}

func TestOpenMissingCredential(t *testing.T) {
	cfg := config.DefaultConfig().Databases.Radon
	_, err := Open(cfg, func(string) (string, bool) { return "", false })
	if !errors.Is(err, config.ErrMissingCredential) {
		t.Fatalf("err = %v", err)
	}
}

func TestCodecOptions(t *testing.T) {
	opts, err := CodecOptions(config.CodecConfig{DateMask: "yyyy-mm-dd hh24:mi:ss", UnknownPolicy: "text"})
	if err != nil {
		t.Fatal(err)
	}
	o := db.BuildOptions(opts...)
	if o.DateMask.String() != rowcodec.MaskISO || o.Unknown != rowcodec.UnknownText {
		t.Fatalf("options = %+v", o)
	}

	if _, err := CodecOptions(config.CodecConfig{DateMask: "DD.MM.YYYY"}); !errors.Is(err, rowcodec.ErrInvalidDateMask) {
		t.Fatalf("err = %v", err)
	}
}

func TestAvailable(t *testing.T) {
	found := map[string]bool{}
	for _, info := range Available() {
		found[info.Name] = info.Available
	}
	for _, name := range []string{"postgres", "oracle", "mysql", "sqlite"} {
		if !found[name] {
			t.Errorf("%s not available", name)
		}
	}
}
