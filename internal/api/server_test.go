package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/oriys/fmidb/internal/config"
	"github.com/oriys/fmidb/internal/db"
	"github.com/oriys/fmidb/internal/db/fakedb"
	"github.com/oriys/fmidb/internal/neons"
	"github.com/oriys/fmidb/internal/pool"
	"github.com/oriys/fmidb/internal/radon"
	"github.com/stretchr/testify/require"
)

func settings(s *fakedb.Session) pool.Settings {
	return pool.Settings{
		Pool: config.PoolConfig{MaxWorkers: 1},
		Open: func(context.Context, int) (db.Session, error) { return s, nil },
	}
}

func get(t *testing.T, h http.Handler, path string) (int, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return rec.Code, body
}

func TestHealth(t *testing.T) {
	h := (&Handler{}).Router()
	code, body := get(t, h, "/healthz")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "ok", body["status"])
}

func TestRadonProducerLookup(t *testing.T) {
	s := fakedb.Connected().
		On("WHERE f.id = 230", []string{"id", "name", "class_id", "ident", "centre"},
			[]string{"230", "HARMONIE", "1", "130", "86"})
	p := radon.NewPool(settings(s))
	h := (&Handler{Pools: Pools{Radon: p}}).Router()

	code, body := get(t, h, "/v1/radon/producers/230")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "HARMONIE", body["ref_prod"])

	// released handle is rolled back and reused with its cache
	code, _ = get(t, h, "/v1/radon/producers/230")
	require.Equal(t, http.StatusOK, code)
	require.EqualValues(t, 1, s.Queries.Load())
	require.EqualValues(t, 2, s.Rollbacks.Load())
	require.Equal(t, 1, p.Stats().Idle)
}

func TestRadonProducerNotFound(t *testing.T) {
	s := fakedb.Connected()
	h := (&Handler{Pools: Pools{Radon: radon.NewPool(settings(s))}}).Router()

	code, body := get(t, h, "/v1/radon/producers/UNKNOWN")
	require.Equal(t, http.StatusNotFound, code)
	require.Equal(t, "not found", body["error"])
}

func TestBadRequests(t *testing.T) {
	s := fakedb.Connected()
	h := (&Handler{Pools: Pools{Radon: radon.NewPool(settings(s)), Neons: neons.NewPool(settings(s))}}).Router()

	for _, path := range []string{
		"/v1/radon/stations/wmo/2974",
		"/v1/radon/stations/nosuch/2974",
		"/v1/radon/latest/MEPS?offset=x",
		"/v1/neons/stations?min_lat=60",
		"/v1/neons/parameters/1/abc",
	} {
		code, _ := get(t, h, path)
		require.Equal(t, http.StatusBadRequest, code, path)
	}
	require.Zero(t, s.Queries.Load())
}

func TestUnconfiguredDatabase(t *testing.T) {
	h := (&Handler{}).Router()
	code, body := get(t, h, "/v1/cldb/producers/20011")
	require.Equal(t, http.StatusNotFound, code)
	require.Equal(t, errNotConfigured.Error(), body["error"])
}

func TestNeonsLatestTime(t *testing.T) {
	s := fakedb.Connected().
		On("model_type = 'HIR'", []string{"rank", "base_date"}, []string{"1", "202401010000"})
	h := (&Handler{Pools: Pools{Neons: neons.NewPool(settings(s))}}).Router()

	code, body := get(t, h, "/v1/neons/latest/HIR?geometry=foo")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "202401010000", body["analysis_time"])

	empty := fakedb.Connected()
	h = (&Handler{Pools: Pools{Neons: neons.NewPool(settings(empty))}}).Router()
	code, _ = get(t, h, "/v1/neons/latest/HIR")
	require.Equal(t, http.StatusNotFound, code)
}

func TestStatsListsPools(t *testing.T) {
	s := fakedb.Connected()
	h := (&Handler{Pools: Pools{Radon: radon.NewPool(settings(s))}}).Router()

	code, body := get(t, h, "/v1/stats")
	require.Equal(t, http.StatusOK, code)
	pools := body["pools"].([]any)
	require.Len(t, pools, 1)
	require.Equal(t, radon.Name, pools[0].(map[string]any)["name"])
	require.Contains(t, body, "counters")
}
