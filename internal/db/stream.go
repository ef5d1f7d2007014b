package db

import (
	"context"
	"errors"
	"io"

	"github.com/oriys/fmidb/internal/domain"
	"github.com/oriys/fmidb/internal/logging"
	"github.com/oriys/fmidb/internal/rowcodec"
)

// Source is a backend cursor. Next returns io.EOF once the cursor is
// exhausted.
type Source interface {
	Columns() []rowcodec.Column
	Next(ctx context.Context) ([]any, error)
	Close() error
}

// Stream holds at most one open Source and decodes its rows to text.
// A session keeps one Stream per cursor it can have open.
type Stream struct {
	src   Source
	codec *rowcodec.Codec
}

// NewStream returns a closed stream decoding through codec.
func NewStream(codec *rowcodec.Codec) *Stream {
	return &Stream{codec: codec}
}

// Open replaces the current source, closing the previous one.
func (s *Stream) Open(src Source) error {
	err := s.Close()
	s.src = src
	return err
}

// IsOpen reports whether a source is attached.
func (s *Stream) IsOpen() bool { return s.src != nil }

// Fetch decodes the next row. On exhaustion it returns an empty row and
// closes the source; later calls return ErrNoCursor.
func (s *Stream) Fetch(ctx context.Context) (domain.Row, error) {
	if s.src == nil {
		return nil, ErrNoCursor
	}
	values, err := s.src.Next(ctx)
	if errors.Is(err, io.EOF) {
		return domain.Row{}, s.Close()
	}
	if err != nil {
		if cerr := s.Close(); cerr != nil {
			logging.Op().Warn("closing failed cursor", "error", cerr)
		}
		return nil, err
	}
	return s.codec.Decode(s.src.Columns(), values)
}

// Close closes the attached source, if any.
func (s *Stream) Close() error {
	if s.src == nil {
		return nil
	}
	err := s.src.Close()
	s.src = nil
	return err
}

// MemorySource serves fixed rows. Backends use it for results that are fully
// materialized by the driver; tests use it directly.
type MemorySource struct {
	Cols   []rowcodec.Column
	Rows   [][]any
	next   int
	closed bool
}

func (m *MemorySource) Columns() []rowcodec.Column { return m.Cols }

func (m *MemorySource) Next(ctx context.Context) ([]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.closed || m.next >= len(m.Rows) {
		return nil, io.EOF
	}
	row := m.Rows[m.next]
	m.next++
	return row, nil
}

func (m *MemorySource) Close() error {
	m.closed = true
	return nil
}

// Closed reports whether Close was called.
func (m *MemorySource) Closed() bool { return m.closed }
