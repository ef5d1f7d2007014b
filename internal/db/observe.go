package db

import (
	"context"
	"time"

	"github.com/oriys/fmidb/internal/logging"
	"github.com/oriys/fmidb/internal/metrics"
	"github.com/oriys/fmidb/internal/observability"
	"go.opentelemetry.io/otel/attribute"
)

var systems = map[Kind]string{
	KindPostgres: "postgresql",
	KindOracle:   "oracle",
	KindSQL:      "other_sql",
	KindFake:     "other_sql",
}

// Statement describes one round trip for Observe.
type Statement struct {
	Backend Kind
	Session string
	// Op is the session operation: query, execute, commit, rollback,
	// procedure, connect.
	Op  string
	SQL string
}

// Observe runs fn as a traced, timed and logged statement. The error from
// fn is returned unchanged.
func Observe(ctx context.Context, st Statement, fn func(ctx context.Context) error) error {
	attrs := []attribute.KeyValue{
		observability.AttrDBSystem.String(systems[st.Backend]),
		observability.AttrSession.String(st.Session),
	}
	if st.SQL != "" {
		attrs = append(attrs, observability.AttrDBStatement.String(st.SQL))
	}
	ctx, span := observability.StartClientSpan(ctx, "db."+st.Op, attrs...)

	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start)

	code, _ := ErrorCode(err)
	if code != "" {
		span.SetAttributes(observability.AttrErrorCode.String(code))
	}
	observability.EndSpan(span, err)
	metrics.RecordStatement(string(st.Backend), st.Op, elapsed, err == nil)

	entry := &logging.StatementLog{
		Timestamp:  start,
		SessionID:  st.Session,
		Backend:    string(st.Backend),
		Kind:       st.Op,
		SQL:        st.SQL,
		DurationMs: elapsed.Milliseconds(),
		Success:    err == nil,
		Code:       code,
	}
	if err != nil {
		entry.Error = err.Error()
	}
	logging.Statements().Log(entry)

	log := logging.OpWithTrace(observability.GetTraceID(ctx), observability.GetSpanID(ctx))
	if err != nil {
		log.Debug("statement failed", "backend", st.Backend, "session", st.Session, "op", st.Op, "sql", st.SQL, "error", err)
	} else {
		log.Debug("statement", "backend", st.Backend, "session", st.Session, "op", st.Op, "sql", st.SQL, "duration", elapsed)
	}
	return err
}

// LogTestMode records a statement skipped because the session is in test
// mode.
func LogTestMode(backend Kind, session, op, sql string) {
	logging.Op().Info("test mode: statement not sent", "backend", backend, "session", session, "op", op, "sql", sql)
}
