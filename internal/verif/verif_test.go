package verif

import (
	"context"
	"errors"
	"testing"

	"github.com/oriys/fmidb/internal/db/fakedb"
	"github.com/oriys/fmidb/internal/domain"
	"github.com/stretchr/testify/require"
)

func metaSession() *fakedb.Session {
	return fakedb.Connected().
		On("from verifng.estimators", []string{"id", "name"}, []string{"1", "ME"}, []string{"7", "FAR"}).
		On("from verifng.periods", []string{"id", "name"}, []string{"10", "month,20240101,20240131"})
}

func TestStationInfo(t *testing.T) {
	ctx := context.Background()
	s := fakedb.Connected().On("FROM locations", stationColumns,
		[]string{"1", "100968", "2974", "", "Helsinki-Vantaa", "60.3", "24.9", "", "", ""},
		[]string{"2", "101004", "2978", "", "Kumpula", "60.2", "24.96", "", "", ""})
	r := New(s)

	m, err := r.StationInfo(ctx, 101004, true)
	require.NoError(t, err)
	require.Equal(t, "Kumpula", m["station_name"])
	require.NotContains(t, s.Statements()[0], "WHERE")

	m, err = r.StationInfo(ctx, 100968, true)
	require.NoError(t, err)
	require.Equal(t, "2974", m["wmon"])
	require.EqualValues(t, 1, s.Queries.Load())

	_, err = r.StationInfo(ctx, 1, false)
	require.NoError(t, err)
	require.Contains(t, s.Statements()[1], "FROM locations WHERE fmisid = 1")
}

func TestStationListForArea(t *testing.T) {
	ctx := context.Background()
	s := fakedb.Connected().On("FROM rw_stations r, locations l", areaColumns,
		[]string{"100001", "60.1", "24.1", "Road 1", "100001", "", "10"})
	r := New(s)

	list, err := r.StationListForArea(ctx, domain.BoundingBox{MinLat: 60, MaxLat: 60.5, MinLon: 24, MaxLon: 25})
	require.NoError(t, err)
	require.Equal(t, "Road 1", list[100001]["station_name"])
	require.Contains(t, s.Statements()[0], "l.latitude BETWEEN 60 AND 60.5 AND l.longitude BETWEEN 24 AND 25")

	require.Zero(t, r.station.Len(), "road stations must not answer target lookups")
	_, err = r.StationInfo(ctx, 100001, false)
	require.NoError(t, err)
	require.Contains(t, s.Statements()[1], "FROM locations WHERE fmisid = 100001")
}

func TestParameterDefinition(t *testing.T) {
	ctx := context.Background()
	s := fakedb.Connected().On("FROM clim_param_xref WHERE producer_no = 1", parameterColumns,
		[]string{"4", "TA", "1", "1", "1", "1", "0", "float"})
	r := New(s)

	m, err := r.ParameterDefinition(ctx, 1, 4)
	require.NoError(t, err)
	require.Equal(t, "TA", m["responding_col"])

	missing, err := r.ParameterDefinition(ctx, 1, 5)
	require.NoError(t, err)
	require.False(t, missing.Found())
	require.EqualValues(t, 1, s.Queries.Load())
}

func TestProducerDefinition(t *testing.T) {
	ctx := context.Background()
	s := fakedb.Connected().On("WHERE name = 'ECMWF'", []string{"id", "name"}, []string{"3", "ECMWF"})
	r := New(s)

	m, err := r.ProducerDefinition(ctx, "ECMWF")
	require.NoError(t, err)
	require.Equal(t, domain.AttributeMap{"id": "3", "name": "ECMWF"}, m)

	_, err = r.ProducerDefinition(ctx, "ECMWF")
	require.NoError(t, err)
	require.EqualValues(t, 1, s.Queries.Load())
}

func TestStatIDAliasAndMetadataOnce(t *testing.T) {
	ctx := context.Background()
	s := metaSession()
	r := New(s)

	id, err := r.StatID(ctx, "ME")
	require.NoError(t, err)
	require.Equal(t, 1, id)

	id, err = r.StatID(ctx, "FARE")
	require.NoError(t, err)
	require.Equal(t, 7, id)

	_, err = r.StatID(ctx, "NOSUCH")
	require.True(t, errors.Is(err, ErrUnknownStat))
	require.EqualValues(t, 2, s.Queries.Load(), "metadata is loaded once")
}

func TestPeriodTypeID(t *testing.T) {
	r := New(fakedb.Connected())
	for name, want := range map[string]int{"annual": 1, "seasonal": 2, "monthly": 3} {
		id, err := r.PeriodTypeID(name)
		require.NoError(t, err)
		require.Equal(t, want, id)
	}
	_, err := r.PeriodTypeID("weekly")
	require.True(t, errors.Is(err, ErrUnknownPeriodType))
}

func TestPeriodIDExisting(t *testing.T) {
	ctx := context.Background()
	s := metaSession()
	r := New(s)

	id, err := r.PeriodID(ctx, "month,20240101,20240131")
	require.NoError(t, err)
	require.Equal(t, 10, id)
	require.Zero(t, s.Executes.Load())
}

func TestPeriodIDInsertsMissing(t *testing.T) {
	ctx := context.Background()
	s := metaSession().On("SELECT id FROM verifng.periods WHERE period = 'month'", []string{"id"}, []string{"11"})
	r := New(s)

	id, err := r.PeriodID(ctx, "month,20240201,20240229")
	require.NoError(t, err)
	require.Equal(t, 11, id)
	require.EqualValues(t, 1, s.Executes.Load())
	require.EqualValues(t, 1, s.Commits.Load())
	require.Equal(t, 1, s.Count("insert into verifng.periods (period,start_date,end_date) values ('month','20240201','20240229')"))

	again, err := r.PeriodID(ctx, "month,20240201,20240229")
	require.NoError(t, err)
	require.Equal(t, 11, again)
	require.EqualValues(t, 1, s.Executes.Load())
}

func TestPeriodIDInvalid(t *testing.T) {
	ctx := context.Background()
	s := metaSession()
	r := New(s)

	_, err := r.PeriodID(ctx, "month,20240201")
	require.True(t, errors.Is(err, domain.ErrInvalidPeriod))
	require.Zero(t, s.Executes.Load())
}
