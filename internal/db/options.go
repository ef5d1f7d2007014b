package db

import (
	"github.com/oriys/fmidb/internal/metrics"
	"github.com/oriys/fmidb/internal/rowcodec"
)

// Options configures a backend session.
type Options struct {
	// TestMode turns Query and Execute into no-ops that only log the SQL.
	TestMode bool
	DateMask rowcodec.DateMask
	Unknown  rowcodec.UnknownPolicy
}

// Option is a functional option for backend constructors.
type Option func(*Options)

// WithTestMode makes Query and Execute log the statement without sending it.
func WithTestMode() Option {
	return func(o *Options) { o.TestMode = true }
}

// WithDateMask sets the initial timestamp rendering.
func WithDateMask(m rowcodec.DateMask) Option {
	return func(o *Options) { o.DateMask = m }
}

// WithUnknownPolicy sets how columns of unsupported type are handled.
func WithUnknownPolicy(p rowcodec.UnknownPolicy) Option {
	return func(o *Options) { o.Unknown = p }
}

// BuildOptions applies opts over the defaults.
func BuildOptions(opts ...Option) Options {
	o := Options{
		DateMask: rowcodec.DefaultDateMask,
		Unknown:  rowcodec.UnknownSkip,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Codec builds the row codec for a session of the given kind. Unknown
// columns are counted per backend.
func (o Options) Codec(kind Kind) *rowcodec.Codec {
	return rowcodec.New(
		rowcodec.WithDateMask(o.DateMask),
		rowcodec.WithUnknownPolicy(o.Unknown),
		rowcodec.WithUnknownHook(func(col rowcodec.Column) {
			metrics.RecordUnknownColumn(string(kind), col.DatabaseType)
		}),
	)
}
