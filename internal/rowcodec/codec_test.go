package rowcodec

import (
	"errors"
	"reflect"
	"testing"
	"time"
)

func roundTripColumns() []Column {
	return []Column{
		{Name: "name", Tag: TagText},
		{Name: "small", Tag: TagInt16},
		{Name: "big", Tag: TagInt64},
		{Name: "whole", Tag: TagNumeric},
		{Name: "fraction", Tag: TagNumeric},
		{Name: "analysis_time", Tag: TagTimestamp},
		{Name: "blob", Tag: TagBinary},
	}
}

func TestDecodeRoundTrip(t *testing.T) {
	ts := time.Date(2024, time.March, 5, 6, 7, 8, 0, time.UTC)
	values := []any{"text", int16(42), int64(42), 30.0, 30.1033, ts, []byte{0xA1, 0x00, 0xFF}}

	tests := []struct {
		mask string
		want string
	}{
		{MaskCompact, "202403050607"},
		{MaskISO, "2024-03-05 06:07:08"},
	}
	for _, tt := range tests {
		t.Run(tt.mask, func(t *testing.T) {
			c := New()
			if err := c.SetDateMask(tt.mask); err != nil {
				t.Fatalf("SetDateMask: %v", err)
			}
			row, err := c.Decode(roundTripColumns(), values)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			want := []string{"text", "42", "42", "30", "30.1033", tt.want, "a100ff"}
			if !reflect.DeepEqual([]string(row), want) {
				t.Fatalf("got %q, want %q", row, want)
			}
		})
	}
}

func TestDecodeTextProtocolValues(t *testing.T) {
	c := New(WithDateMask(DefaultDateMask))
	values := []any{"text", "42", "42", "30.000", "30.1033", "2024-03-05 06:07:08+00", `\xA100FF`}
	row, err := c.Decode(roundTripColumns(), values)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	want := []string{"text", "42", "42", "30", "30.1033", "202403050607", "a100ff"}
	if !reflect.DeepEqual([]string(row), want) {
		t.Fatalf("got %q, want %q", row, want)
	}
}

func TestDecodeNullIsEmpty(t *testing.T) {
	c := New()
	cols := roundTripColumns()
	values := make([]any, len(cols))
	row, err := c.Decode(cols, values)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(row) != len(cols) {
		t.Fatalf("expected %d columns, got %d", len(cols), len(row))
	}
	for i, v := range row {
		if v != "" {
			t.Fatalf("column %d: expected empty string for NULL, got %q", i, v)
		}
	}
}

func TestFractionalNumericKeepsPrecision(t *testing.T) {
	for _, tt := range []struct {
		in   any
		want string
	}{
		{30.1033, "30.1033"},
		{float32(0.1), "0.1"},
		{-2.5, "-2.5"},
		{float64(-7), "-7"},
		{int64(9), "9"},
		{[]byte("12.50"), "12.50"},
		{"1e3", "1000"},
	} {
		got, err := renderNumeric(tt.in)
		if err != nil {
			t.Fatalf("renderNumeric(%v): %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("renderNumeric(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestUnknownColumnPolicies(t *testing.T) {
	cols := []Column{
		{Name: "id", Tag: TagInt32},
		{Name: "geom", Tag: TagUnknown, DatabaseType: "SDO_GEOMETRY"},
		{Name: "name", Tag: TagText},
	}
	values := []any{int32(1), struct{}{}, "x"}

	var seen []string
	skip := New(WithUnknownHook(func(c Column) { seen = append(seen, c.Name) }))
	row, err := skip.Decode(cols, values)
	if err != nil {
		t.Fatalf("skip: %v", err)
	}
	if !reflect.DeepEqual([]string(row), []string{"1", "x"}) {
		t.Fatalf("skip: got %q", row)
	}
	if !reflect.DeepEqual(seen, []string{"geom"}) {
		t.Fatalf("hook not called for unknown column: %v", seen)
	}

	_, err = New(WithUnknownPolicy(UnknownFail)).Decode(cols, values)
	if !errors.Is(err, ErrUnknownColumnType) {
		t.Fatalf("fail: expected ErrUnknownColumnType, got %v", err)
	}

	row, err = New(WithUnknownPolicy(UnknownText)).Decode(cols, []any{int32(1), "POINT(1 2)", "x"})
	if err != nil {
		t.Fatalf("text: %v", err)
	}
	if !reflect.DeepEqual([]string(row), []string{"1", "POINT(1 2)", "x"}) {
		t.Fatalf("text: got %q", row)
	}
}

func TestDecodeColumnCountMismatch(t *testing.T) {
	_, err := New().Decode([]Column{{Name: "a", Tag: TagText}}, nil)
	if !errors.Is(err, ErrColumnCount) {
		t.Fatalf("expected ErrColumnCount, got %v", err)
	}
}

func TestParseDateMask(t *testing.T) {
	if _, err := ParseDateMask("yyyymmddhh24miss"); err != nil {
		t.Fatalf("lower case compact mask must be accepted: %v", err)
	}
	if _, err := ParseDateMask("DD.MM.YYYY"); !errors.Is(err, ErrInvalidDateMask) {
		t.Fatalf("expected ErrInvalidDateMask, got %v", err)
	}

	c := New()
	if err := c.SetDateMask("bogus"); err == nil {
		t.Fatal("expected error for invalid mask")
	}
	if c.DateMask().String() != MaskCompact {
		t.Fatalf("invalid mask must keep previous one, got %s", c.DateMask())
	}
}

func TestTagFor(t *testing.T) {
	for name, want := range map[string]Tag{
		"VARCHAR2":      TagText,
		"varchar(20)":   TagText,
		"NUMBER":        TagNumeric,
		"NUMBER(10,2)":  TagNumeric,
		"LONG RAW":      TagBinary,
		"int8":          TagInt64,
		"SMALLINT":      TagInt16,
		"DATE":          TagTimestamp,
		"SDO_GEOMETRY":  TagUnknown,
		"UNSIGNED INT":  TagInt32,
		"BINARY_DOUBLE": TagNumeric,
	} {
		if got := TagFor(name); got != want {
			t.Errorf("TagFor(%q) = %s, want %s", name, got, want)
		}
	}
}
