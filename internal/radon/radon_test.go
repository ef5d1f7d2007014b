package radon

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/oriys/fmidb/internal/config"
	"github.com/oriys/fmidb/internal/db"
	"github.com/oriys/fmidb/internal/db/fakedb"
	"github.com/oriys/fmidb/internal/db/sqldb"
	"github.com/oriys/fmidb/internal/domain"
	"github.com/oriys/fmidb/internal/pool"
	"github.com/stretchr/testify/require"
)

var producerCols = []string{"id", "name", "class_id", "ident", "centre"}

func TestProducerDefinitionIsMemoized(t *testing.T) {
	ctx := context.Background()
	s := fakedb.Connected().On("WHERE f.id = 230", producerCols, []string{"230", "HARMONIE", "1", "130", "86"})
	r := New(s)

	first, err := r.ProducerDefinition(ctx, 230)
	require.NoError(t, err)
	require.Equal(t, domain.AttributeMap{
		"producer_id":    "230",
		"ref_prod":       "HARMONIE",
		"producer_class": "1",
		"model_id":       "130",
		"ident_id":       "86",
	}, first)

	second, err := r.ProducerDefinition(ctx, 230)
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.EqualValues(t, 1, s.Queries.Load(), "second call must not issue SQL")
}

func TestModifiedResultLeavesCacheIntact(t *testing.T) {
	ctx := context.Background()
	s := fakedb.Connected().On("WHERE f.id = 230", producerCols, []string{"230", "HARMONIE", "1", "130", "86"})
	r := New(s)

	first, err := r.ProducerDefinition(ctx, 230)
	require.NoError(t, err)
	first["ref_prod"] = "MEPS"

	second, err := r.ProducerDefinition(ctx, 230)
	require.NoError(t, err)
	require.Equal(t, "HARMONIE", second["ref_prod"])
	require.EqualValues(t, 1, s.Queries.Load())
}

func TestNotFoundIsMemoized(t *testing.T) {
	ctx := context.Background()
	s := fakedb.Connected()
	r := New(s)

	for i := 0; i < 3; i++ {
		m, err := r.ProducerDefinition(ctx, -1)
		require.NoError(t, err)
		require.False(t, m.Found())
	}
	require.EqualValues(t, 1, s.Queries.Load())
}

func TestProducerByNameSharesIDTable(t *testing.T) {
	ctx := context.Background()
	s := fakedb.Connected().
		On("WHERE name = 'HARMONIE'", []string{"id"}, []string{"230"}).
		On("WHERE f.id = 230", producerCols, []string{"230", "HARMONIE", "1", "130", "86"})
	r := New(s)

	byName, err := r.ProducerDefinitionByName(ctx, "HARMONIE")
	require.NoError(t, err)
	require.Equal(t, "230", byName["producer_id"])
	require.EqualValues(t, 2, s.Queries.Load())

	byID, err := r.ProducerDefinition(ctx, 230)
	require.NoError(t, err)
	require.Equal(t, byName, byID)

	_, err = r.ProducerDefinitionByName(ctx, "HARMONIE")
	require.NoError(t, err)
	require.EqualValues(t, 2, s.Queries.Load())

	missing, err := r.ProducerDefinitionByName(ctx, "NOSUCH")
	require.NoError(t, err)
	require.False(t, missing.Found())
}

func TestProducerNameIsQuoted(t *testing.T) {
	ctx := context.Background()
	s := fakedb.Connected()
	r := New(s)

	_, err := r.ProducerDefinitionByName(ctx, "O'Brien")
	require.NoError(t, err)
	require.Equal(t, 1, s.Count("name = 'O''Brien'"))
}

func TestProducerFromGrib(t *testing.T) {
	ctx := context.Background()
	s := fakedb.Connected().On("p.centre = 86 AND p.ident = 130 AND t.id = 1",
		[]string{"id", "name", "class_id", "type_id"}, []string{"230", "HARMONIE", "1", "1"})
	r := New(s)

	m, err := r.ProducerFromGrib(ctx, 86, 130, 1)
	require.NoError(t, err)
	require.Equal(t, "230", m["id"])
	require.Equal(t, "86", m["centre"])
	require.Equal(t, "130", m["ident"])
}

func TestParameterFromGrib2FallsBackToTemplate(t *testing.T) {
	ctx := context.Background()
	s := fakedb.Connected().On("param_grib2_template",
		[]string{"id", "name", "version", "unit", "interp", "interp_name", "level_id", "level_value"},
		[]string{"4", "T-K", "1", "", "1", "", "", ""})
	r := New(s)

	m, err := r.ParameterFromGrib2(ctx, 230, 0, 0, 0, 103, 2)
	require.NoError(t, err)
	require.Equal(t, "T-K", m["name"])
	require.Equal(t, "0", m["grib2_discipline"])
	require.Equal(t, "0", m["grib2_number"])
	require.Equal(t, "", m["level_id"])

	stmts := s.Statements()
	require.Len(t, stmts, 2)
	require.Contains(t, stmts[0], "FROM param_grib2 g")
	require.Contains(t, stmts[1], "param_grib2_template")

	_, err = r.ParameterFromGrib2(ctx, 230, 0, 0, 0, 103, 2)
	require.NoError(t, err)
	require.Len(t, s.Statements(), 2)
}

func TestParameterLevelFilterOrdering(t *testing.T) {
	ctx := context.Background()
	s := fakedb.Connected()
	r := New(s)

	_, err := r.ParameterFromGrib1(ctx, 230, 203, 11, 0, 105, 2)
	require.NoError(t, err)
	stmt := s.Statements()[0]
	require.Contains(t, stmt, "l.grib_level_id = 105")
	require.Contains(t, stmt, "(level_value IS NULL OR level_value = 2)")
	require.True(t, strings.HasSuffix(stmt, "ORDER BY g.level_id NULLS LAST, level_value NULLS LAST LIMIT 1"), stmt)
}

// grib1Schema seeds one parameter with a mapping for level id 3 at 2 m, one
// for level id 3 at any height and one for any level.
var grib1Schema = []string{
	"CREATE TABLE fmi_producer (id INTEGER)",
	"CREATE TABLE param (id INTEGER, name TEXT, version INTEGER, unit_id INTEGER, interpolation_id INTEGER)",
	"CREATE TABLE param_unit (id INTEGER, name TEXT)",
	"CREATE TABLE interpolation_method (id INTEGER, name TEXT)",
	"CREATE TABLE level_grib1 (level_id INTEGER, producer_id INTEGER, grib_level_id INTEGER)",
	"CREATE TABLE param_grib1 (producer_id INTEGER, param_id INTEGER, table_version INTEGER, number INTEGER," +
		" timerange_indicator INTEGER, level_id INTEGER, level_value REAL)",
	"INSERT INTO fmi_producer VALUES (230)",
	"INSERT INTO param_unit VALUES (1, 'K')",
	"INSERT INTO interpolation_method VALUES (1, 'bilinear')",
	"INSERT INTO level_grib1 VALUES (3, 230, 105), (4, 230, 109)",
	"INSERT INTO param VALUES (4, 'T-K', 1, 1, 1), (5, 'T-K-2M', 1, 1, 1), (6, 'T-K-HEIGHT', 1, 1, 1)",
	"INSERT INTO param_grib1 VALUES (230, 4, 203, 11, 0, NULL, NULL)",
	"INSERT INTO param_grib1 VALUES (230, 6, 203, 11, 0, 3, NULL)",
	"INSERT INTO param_grib1 VALUES (230, 5, 203, 11, 0, 3, 2)",
}

func newGrib1SQLite(t *testing.T) *sqldb.Session {
	t.Helper()
	ctx := context.Background()
	s := sqldb.New(sqldb.DriverSQLite, db.Credentials{Database: filepath.Join(t.TempDir(), "radon.db")})
	require.NoError(t, s.Connect(ctx))
	t.Cleanup(func() { s.Disconnect(context.Background()) })
	for _, stmt := range grib1Schema {
		require.NoError(t, s.Execute(ctx, stmt))
	}
	require.NoError(t, s.Commit(ctx))
	return s
}

func TestParameterLevelFallbackOnEngine(t *testing.T) {
	ctx := context.Background()
	r := New(newGrib1SQLite(t))

	tests := []struct {
		level int64
		value float64
		name  string
	}{
		// exact level type and value
		{105, 2, "T-K-2M"},
		// level type matches, the value does not: row without a value
		{105, 10, "T-K-HEIGHT"},
		// no mapping for the level type: generic row
		{109, 2, "T-K"},
		{1, 0, "T-K"},
	}
	for _, tt := range tests {
		m, err := r.ParameterFromGrib1(ctx, 230, 203, 11, 0, tt.level, tt.value)
		require.NoError(t, err)
		require.Equal(t, tt.name, m["name"], "level %d value %v", tt.level, tt.value)
	}

	m, err := r.ParameterFromGrib1(ctx, 230, 203, 99, 0, 105, 2)
	require.NoError(t, err)
	require.False(t, m.Found())
}

func TestParameterLevelValueIsPartOfKey(t *testing.T) {
	ctx := context.Background()
	s := fakedb.Connected().On("param_grib1 g", encodedParamColumns, []string{"4", "T-K", "1", "K", "1", "bilinear", "", ""})
	r := New(s)

	for _, v := range []float64{0, 2, 2, 10} {
		m, err := r.ParameterFromGrib1(ctx, 230, 203, 11, 0, 105, v)
		require.NoError(t, err)
		require.Equal(t, "T-K", m["name"])
		require.Equal(t, "203", m["grib1_table_version"])
		require.Equal(t, "11", m["grib1_number"])
	}
	require.EqualValues(t, 3, s.Queries.Load())
}

func TestParameterFromDatabaseNameDefaults(t *testing.T) {
	ctx := context.Background()
	s := fakedb.Connected().
		On("FROM param WHERE name = 'T-K'", []string{"id", "name", "version"}, []string{"4", "T-K", "1"}).
		On("param_grib2_template", []string{"discipline", "category", "number"}, []string{"0", "0", "0"})
	r := New(s)

	m, err := r.ParameterFromDatabaseName(ctx, 230, "T-K", 3, 2)
	require.NoError(t, err)
	require.Equal(t, domain.AttributeMap{
		"id":                  "4",
		"name":                "T-K",
		"version":             "1",
		"grib1_table_version": "",
		"grib1_number":        "",
		"grib2_discipline":    "0",
		"grib2_category":      "0",
		"grib2_number":        "0",
		"univ_id":             "",
		"scale":               "1",
		"base":                "0",
	}, m)
	require.Equal(t, 1, s.Count("param_grib1_v"))
	require.Equal(t, 1, s.Count("FROM param_grib2 WHERE"))
	require.Equal(t, 1, s.Count("param_newbase"))
}

func TestParameterFromNewbaseID(t *testing.T) {
	ctx := context.Background()
	s := fakedb.Connected().On("g.univ_id = 4 AND g.producer_id = 230",
		[]string{"id", "name", "base", "scale", "univ_id"}, []string{"4", "T-K", "-273.15", "1", "4"})
	r := New(s)

	m, err := r.ParameterFromNewbaseID(ctx, 230, 4)
	require.NoError(t, err)
	require.Equal(t, "T-K", m["parm_name"])
	require.Equal(t, "-273.15", m["base"])
}

func TestLevelFromGribSelectsEditionTable(t *testing.T) {
	ctx := context.Background()
	s := fakedb.Connected().On("level_grib2 g", []string{"id", "name"}, []string{"2", "HEIGHT"})
	r := New(s)

	m, err := r.LevelFromGrib(ctx, 230, 103, 2)
	require.NoError(t, err)
	require.Equal(t, domain.AttributeMap{"id": "2", "name": "HEIGHT", "grib1Number": "103"}, m)

	m, err = r.LevelFromGrib(ctx, 230, 103, 1)
	require.NoError(t, err)
	require.False(t, m.Found())
	require.Equal(t, 1, s.Count("level_grib1 g"))
}

func TestGeometryDefinitionLatLon(t *testing.T) {
	ctx := context.Background()
	s := fakedb.Connected().
		On("FROM geom WHERE name = 'RCR068'", []string{"id", "name", "projection_id"}, []string{"17", "RCR068", "1"}).
		On("geom_latitude_longitude_v", []string{"ni", "nj", "first_lat", "first_lon", "di", "dj", "scanning_mode"},
			[]string{"1030", "816", "-15.1", "-26.2", "0.068", "0.068", "+x+y"})
	r := New(s)

	m, err := r.GeometryDefinition(ctx, "RCR068")
	require.NoError(t, err)
	require.Equal(t, "17", m["geom_id"])
	require.Equal(t, "1", m["grid_type_id"])
	require.Equal(t, "1", m["prjn_id"])
	require.Equal(t, "1030", m["col_cnt"])
	require.Equal(t, "816", m["row_cnt"])
	require.Equal(t, "+x+y", m["stor_desc"])
	require.Equal(t, "-15.1", m["lat_orig"])
	require.Equal(t, "0", m["geom_parm_1"])
	require.Contains(t, s.Statements()[1], "WHERE geometry_id = 17")
}

func TestGeometryDefinitionReducedGaussian(t *testing.T) {
	ctx := context.Background()
	s := fakedb.Connected().
		On("FROM geom WHERE name = 'N640'", []string{"id", "name", "projection_id"}, []string{"90", "N640", "6"}).
		On("geom_reduced_gaussian_v", make([]string, 8),
			[]string{"1280", "89.9", "0", "-89.9", "359.8", "640", "+x-y", "{20,25,36}"})
	r := New(s)

	m, err := r.GeometryDefinition(ctx, "N640")
	require.NoError(t, err)
	require.Equal(t, "20,25,36", m["longitudes_along_parallels"])
	require.Equal(t, "640", m["n"])
	_, legacy := m["col_cnt"]
	require.False(t, legacy)
}

func TestGeometryFromAreaUnsupportedProjection(t *testing.T) {
	ctx := context.Background()
	s := fakedb.Connected().On("FROM projection", []string{"id"}, []string{"3"})
	r := New(s)

	shape := GridShape{Ni: 10, Nj: 10, Lat: 60, Lon: 20, Di: 1, Dj: 1, Edition: 1, GridType: 3}
	_, err := r.GeometryFromArea(ctx, shape)
	require.ErrorIs(t, err, domain.ErrUnsupportedProjection)

	_, err = r.GeometryFromArea(ctx, shape)
	require.ErrorIs(t, err, domain.ErrUnsupportedProjection)
	require.EqualValues(t, 2, s.Queries.Load(), "errors are not cached")
}

func TestGeometryFromArea(t *testing.T) {
	ctx := context.Background()
	s := fakedb.Connected().
		On("grib2_number = 0", []string{"id"}, []string{"1"}).
		On("geom_latitude_longitude_v", []string{"geometry_id", "geometry_name"}, []string{"17", "RCR068"})
	r := New(s)

	m, err := r.GeometryFromArea(ctx, GridShape{Ni: 1030, Nj: 816, Lat: -15.1, Lon: -26.2, Di: 0.068, Dj: 0.068, Edition: 2})
	require.NoError(t, err)
	require.Equal(t, domain.AttributeMap{"id": "17", "name": "RCR068"}, m)
	require.Contains(t, s.Statements()[1], "first_lat = -15.1 AND di = 0.068")
}

func TestStationDefinitionNetworks(t *testing.T) {
	ctx := context.Background()
	s := fakedb.Connected().On("m.local_station_id = '100971'", make([]string, 10),
		[]string{"3", "Helsinki Kaisaniemi", "24.94", "60.17", "4", "2978", "", "", "", "100971"})
	r := New(s)

	_, err := r.StationDefinition(ctx, domain.NetworkWMO, 2978)
	require.ErrorIs(t, err, domain.ErrUnsupportedNetwork)
	require.Zero(t, s.Queries.Load())

	m, err := r.StationDefinition(ctx, domain.NetworkFmiSID, 100971)
	require.NoError(t, err)
	require.Equal(t, "Helsinki Kaisaniemi", m["station_name"])
	require.Equal(t, "2978", m["wmoid"])
	require.Equal(t, "100971", m["fmisid"])
}

func TestLatestTime(t *testing.T) {
	ctx := context.Background()

	s := fakedb.Connected().On("FROM as_grid_v", []string{"min", "max", "partition"},
		[]string{"202610140000", "202610140000", "grid_harmonie_20261014"})
	latest, err := New(s).LatestTime(ctx, "HARMONIE", "", 0)
	require.NoError(t, err)
	require.Equal(t, "202610140000", latest)
	require.Equal(t, 1, s.Count("OFFSET 0"))

	s = fakedb.Connected().
		On("FROM as_grid_v", []string{"min", "max", "partition"},
			[]string{"202610010000", "202610310000", "grid_ecmwf_202610"}).
		On("max(analysis_time) FROM grid_ecmwf_202610", []string{"max"}, []string{"202610141200"})
	latest, err = New(s).LatestTime(ctx, "ECGMTA", "ECGLO0100", 2)
	require.NoError(t, err)
	require.Equal(t, "202610141200", latest)
	require.Contains(t, s.Statements()[0], "geometry_name = 'ECGLO0100'")
	require.Contains(t, s.Statements()[0], "OFFSET 2")

	latest, err = New(fakedb.Connected()).LatestTime(ctx, "NONE", "", 0)
	require.NoError(t, err)
	require.Empty(t, latest)

	s = fakedb.Connected()
	_, err = New(s).LatestTime(ctx, "HARMONIE", "", -1)
	require.Error(t, err)
	require.Empty(t, s.Statements(), "a negative offset must not reach the database")
}

func TestProbabilityLimitMissing(t *testing.T) {
	ctx := context.Background()
	s := fakedb.Connected().On("station_id = 1", []string{"probability_limit"}, []string{"0.35"})
	r := New(s)

	v, err := r.ProbabilityLimitForStation(ctx, 1, "PROB-TC-0")
	require.NoError(t, err)
	require.Equal(t, 0.35, v)

	v, err = r.ProbabilityLimitForStation(ctx, 2, "PROB-TC-0")
	require.NoError(t, err)
	require.Equal(t, domain.MissingValue, v)
}

func TestProducerMetaDataIsMemoized(t *testing.T) {
	ctx := context.Background()
	s := fakedb.Connected().On("attribute = 'last hybrid level number'", []string{"value"}, []string{"65"})
	r := New(s)

	for i := 0; i < 2; i++ {
		v, err := r.ProducerMetaData(ctx, 230, MetaLastHybridLevel)
		require.NoError(t, err)
		require.Equal(t, "65", v)
	}
	require.EqualValues(t, 1, s.Queries.Load())
}

var warmGrib1Cols = append(append([]string{}, encodedParamColumns...), "table_version", "number", "timerange_indicator", "grib_level_id")

func warmSession() *fakedb.Session {
	return fakedb.Connected().
		On("'first hybrid level number'", []string{"value"}, []string{"1"}).
		On("'last hybrid level number'", []string{"value"}, []string{"3"}).
		On("FROM param_grib1 g JOIN", warmGrib1Cols,
			[]string{"5", "T-K-2M", "1", "K", "1", "bilinear", "3", "2", "203", "11", "0", "105"},
			[]string{"4", "T-K", "1", "K", "1", "bilinear", "", "", "203", "11", "0", ""})
}

func TestWarmParameterCache(t *testing.T) {
	ctx := context.Background()
	s := warmSession()
	r := New(s)

	require.NoError(t, r.WarmParameterCache(ctx, 230))
	require.Equal(t, 1, s.Count("FROM param_grib1 g JOIN"))
	require.Equal(t, 1, s.Count("FROM param_grib2 g JOIN"))
	s.Reset()

	tests := []struct {
		level int64
		value float64
		name  string
	}{
		{105, 2, "T-K-2M"},
		{105, 0, "T-K"},
		{105, 10, "T-K"},
		{1, 0, "T-K"},
		{109, 1, "T-K"},
		{109, 3, "T-K"},
	}
	for _, tt := range tests {
		m, err := r.ParameterFromGrib1(ctx, 230, 203, 11, 0, tt.level, tt.value)
		require.NoError(t, err)
		require.Equal(t, tt.name, m["name"], "level %d value %v", tt.level, tt.value)
		require.Equal(t, "203", m["grib1_table_version"])
	}
	require.Empty(t, s.Statements(), "warmed lookups must not issue SQL")

	_, err := r.ParameterFromGrib1(ctx, 230, 203, 11, 0, 109, 4)
	require.NoError(t, err)
	require.Len(t, s.Statements(), 1, "values outside the hybrid range are not synthesized")

	s.Reset()
	require.NoError(t, r.WarmParameterCache(ctx, 230))
	require.Empty(t, s.Statements(), "second warm-up is a no-op")
}

func TestWarmedEntriesAreIndependent(t *testing.T) {
	ctx := context.Background()
	r := New(warmSession())
	require.NoError(t, r.WarmParameterCache(ctx, 230))

	ground, err := r.ParameterFromGrib1(ctx, 230, 203, 11, 0, 1, 0)
	require.NoError(t, err)
	require.Equal(t, "T-K", ground["name"])
	ground["name"] = "changed"

	// generated from the same row as the ground level entry
	for _, level := range []struct {
		typ   int64
		value float64
	}{{1, 0}, {105, 10}, {109, 2}} {
		m, err := r.ParameterFromGrib1(ctx, 230, 203, 11, 0, level.typ, level.value)
		require.NoError(t, err)
		require.Equal(t, "T-K", m["name"], "level %d value %v", level.typ, level.value)
	}
}

func TestWarmNeverOverwrites(t *testing.T) {
	ctx := context.Background()
	s := warmSession().On("FROM param_grib1 g,", encodedParamColumns,
		[]string{"9", "CACHED", "1", "K", "1", "bilinear", "", ""})
	r := New(s)

	m, err := r.ParameterFromGrib1(ctx, 230, 203, 11, 0, 105, 2)
	require.NoError(t, err)
	require.Equal(t, "CACHED", m["name"])

	require.NoError(t, r.WarmParameterCache(ctx, 230))
	m, err = r.ParameterFromGrib1(ctx, 230, 203, 11, 0, 105, 2)
	require.NoError(t, err)
	require.Equal(t, "CACHED", m["name"])
}

func TestPoolSharesWarmUp(t *testing.T) {
	ctx := context.Background()
	var sessions []*fakedb.Session
	p := NewPool(pool.Settings{
		Pool: config.PoolConfig{MaxWorkers: 2},
		Open: func(context.Context, int) (db.Session, error) {
			s := warmSession()
			sessions = append(sessions, s)
			return s, nil
		},
	})

	a, err := p.Get(ctx)
	require.NoError(t, err)
	b, err := p.Get(ctx)
	require.NoError(t, err)

	require.NoError(t, a.WarmParameterCache(ctx, 230))
	require.NoError(t, b.WarmParameterCache(ctx, 230))
	require.Equal(t, 1, sessions[0].Count("FROM param_grib1 g JOIN"))
	require.Zero(t, sessions[1].Count("FROM param_grib1 g JOIN"))

	// without a shared tier the second slot loads on demand
	_, err = b.ParameterFromGrib1(ctx, 230, 203, 11, 0, 105, 2)
	require.NoError(t, err)
	require.Equal(t, 1, sessions[1].Count("FROM param_grib1 g,"))
	_, err = a.ParameterFromGrib1(ctx, 230, 203, 11, 0, 105, 2)
	require.NoError(t, err)
	require.Zero(t, sessions[0].Count("FROM param_grib1 g,"))

	require.NoError(t, p.Release(ctx, a))
	require.NoError(t, p.Release(ctx, b))
	again, err := p.Get(ctx)
	require.NoError(t, err)
	require.Contains(t, []*Repository{a, b}, again)
	require.NoError(t, p.Close(ctx))
}
