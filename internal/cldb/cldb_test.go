package cldb

import (
	"context"
	"errors"
	"testing"

	"github.com/oriys/fmidb/internal/db"
	"github.com/oriys/fmidb/internal/db/fakedb"
	"github.com/oriys/fmidb/internal/domain"
	"github.com/stretchr/testify/require"
)

func TestProducerDefinition(t *testing.T) {
	ctx := context.Background()
	s := fakedb.Connected().On("FROM clim_producers WHERE producer_no = 1001", []string{"producer_no", "producer_name", "table_name"}, []string{"1001", "SYNOP", "synop_data"})
	r := New(s)

	m, err := r.ProducerDefinition(ctx, 1001)
	require.NoError(t, err)
	require.Equal(t, domain.AttributeMap{"producer_no": "1001", "producer_name": "SYNOP", "table_name": "synop_data"}, m)

	_, err = r.ProducerDefinition(ctx, 1001)
	require.NoError(t, err)
	require.EqualValues(t, 1, s.Queries.Load())
}

func TestParameterDefinitionLoadsProducerOnce(t *testing.T) {
	ctx := context.Background()
	s := fakedb.Connected().On("FROM clim_param_xref WHERE producer_no = 1001", parameterColumns,
		[]string{"4", "TA", "1", "1001", "1", "1", "0", "float", "11"},
		[]string{"21", "WS", "1", "1001", "1", "1", "0", "float", "12"})
	r := New(s)

	ta, err := r.ParameterDefinition(ctx, 1001, 4)
	require.NoError(t, err)
	require.Equal(t, "TA", ta["responding_col"])

	ws, err := r.ParameterDefinition(ctx, 1001, 21)
	require.NoError(t, err)
	require.Equal(t, "12", ws["responding_id"])

	missing, err := r.ParameterDefinition(ctx, 1001, 99)
	require.NoError(t, err)
	require.False(t, missing.Found())
	require.EqualValues(t, 1, s.Queries.Load())
}

func TestParameterMapping(t *testing.T) {
	ctx := context.Background()
	s := fakedb.Connected().On("FROM clim_param_xref_ng", []string{"measurand_id", "sensor_no", "scale", "base"},
		[]string{"1", "1", "1", "0"}, []string{"1", "2", "1", "0"})
	r := New(s)

	list, err := r.ParameterMapping(ctx, 1001, 4)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "2", list[1]["sensor_no"])
	require.Contains(t, s.Statements()[0], "producer_id = 1001 AND univ_id = 4")

	empty, err := r.ParameterMapping(ctx, 1001, 5)
	require.NoError(t, err)
	require.Empty(t, empty)
	_, err = r.ParameterMapping(ctx, 1001, 5)
	require.NoError(t, err)
	require.EqualValues(t, 2, s.Queries.Load())
}

func TestExtSynopStationPadsWMO(t *testing.T) {
	ctx := context.Background()
	s := fakedb.Connected().On("FROM wmostations r", synopColumns,
		[]string{"02974", "60.3", "24.9", "Helsinki-Vantaa", "100968", "51"})
	r := New(s)

	m, err := r.StationInfo(ctx, domain.ProducerExtSynop, 2974, false)
	require.NoError(t, err)
	require.Equal(t, "2974", m["station_id"])
	require.Equal(t, "100968", m["fmisid"])
	require.Contains(t, s.Statements()[0], "AND r.wmon = '02974'")
}

func TestRoadStationAggressive(t *testing.T) {
	ctx := context.Background()
	s := fakedb.Connected().On("FROM stations r, locations l", roadColumns,
		[]string{"100001", "60.1", "24.1", "Road 1", "10"},
		[]string{"100002", "60.2", "24.2", "Road 2", "20"})
	r := New(s)

	m, err := r.StationInfo(ctx, domain.ProducerRoadWeather, 100002, true)
	require.NoError(t, err)
	require.Equal(t, "Road 2", m["station_name"])
	require.Equal(t, "100002", m["fmisid"])
	require.NotContains(t, s.Statements()[0], "AND r.fmisid =")

	m, err = r.StationInfo(ctx, domain.ProducerRoadWeather, 100001, true)
	require.NoError(t, err)
	require.Equal(t, "Road 1", m["station_name"])
	require.EqualValues(t, 1, s.Queries.Load())

	_, err = r.StationInfo(ctx, domain.ProducerRoadWeather, 5, true)
	require.NoError(t, err)
	require.Contains(t, s.Statements()[1], "AND r.fmisid = 5")
}

func TestSwedishRoadStation(t *testing.T) {
	ctx := context.Background()
	s := fakedb.Connected().On("n.network_id IN (50,67,64)", roadColumns,
		[]string{"200001", "59.1", "18.1", "Stockholm", "12"})
	r := New(s)

	m, err := r.StationInfo(ctx, domain.ProducerSwedishRoad, 200001, false)
	require.NoError(t, err)
	require.Equal(t, "Stockholm", m["station_name"])
	require.Contains(t, s.Statements()[0], "AND s.station_id = 200001")
}

func TestFMIStationByWMOAndFmisid(t *testing.T) {
	ctx := context.Background()
	s := fakedb.Connected().On("LEFT OUTER JOIN network_members_v1", fmiColumns,
		[]string{"02974", "60.3", "24.9", "Helsinki-Vantaa", "100968", "", "51"})
	r := New(s)

	byWMO, err := r.StationInfo(ctx, domain.ProducerFinnishStations, 2974, false)
	require.NoError(t, err)
	require.Equal(t, "02974", byWMO["wmon"])
	require.Equal(t, "100968", byWMO["station_id"])
	require.Contains(t, s.Statements()[0], "WHERE (s.station_id = 2974 OR to_number(n.member_code) = 2974)")

	byFmisid, err := r.StationInfo(ctx, domain.ProducerFMIStationFmisid, 100968, false)
	require.NoError(t, err)
	require.Equal(t, "Helsinki-Vantaa", byFmisid["station_name"])
	require.EqualValues(t, 2, s.Queries.Load())

	again, err := r.StationInfo(ctx, domain.ProducerFinnishStations, 2974, false)
	require.NoError(t, err)
	require.Equal(t, byWMO, again)
	require.EqualValues(t, 2, s.Queries.Load())
}

func TestFMIStationKeysArePadded(t *testing.T) {
	ctx := context.Background()
	box := domain.BoundingBox{MinLat: 60, MaxLat: 61, MinLon: 24, MaxLon: 25}

	// the area statement selects the WMO number first
	s := fakedb.Connected().
		On("s.country_id = 0", areaColumns, []string{"2974", "60.3", "24.9", "Helsinki-Vantaa", "100968", "", ""}).
		On("LEFT OUTER JOIN network_members_v1", fmiColumns,
			[]string{"2978", "60.2", "24.96", "Kumpula", "101004", "", "24"})
	r := New(s)

	list, err := r.StationListForArea(ctx, domain.ProducerFinnishStations, box)
	require.NoError(t, err)
	require.Contains(t, list, int64(2974))

	m, err := r.StationInfo(ctx, domain.ProducerFinnishStations, 2974, false)
	require.NoError(t, err)
	require.Equal(t, "Helsinki-Vantaa", m["station_name"])
	require.EqualValues(t, 1, s.Queries.Load(), "the area result answers the lookup")

	m, err = r.StationInfo(ctx, domain.ProducerFinnishStations, 2978, false)
	require.NoError(t, err)
	require.Equal(t, "Kumpula", m["station_name"])
	require.True(t, r.fmiStations.Len() >= 2)
	_, ok := r.fmiStations.Get(fmiKey{Producer: domain.ProducerFinnishStations, Station: "02978"})
	require.True(t, ok)
}

func TestFMIStationMatchesFmisidForWMOProducer(t *testing.T) {
	ctx := context.Background()
	s := fakedb.Connected().On("LEFT OUTER JOIN network_members_v1", fmiColumns,
		[]string{"", "60.1", "24.1", "Rain gauge", "110001", "", ""})
	r := New(s)

	m, err := r.StationInfo(ctx, 1, 110001, false)
	require.NoError(t, err)
	require.Equal(t, "Rain gauge", m["station_name"])
}

func TestIceBuoyUsesLatestLocation(t *testing.T) {
	ctx := context.Background()
	s := fakedb.Connected().On("moving_locations_v1", fmiColumns,
		[]string{"", "64.5", "23.1", "Buoy 7", "300007", "", "0"})
	r := New(s)

	m, err := r.StationInfo(ctx, domain.ProducerIceBuoy, 300007, true)
	require.NoError(t, err)
	require.Equal(t, "Buoy 7", m["station_name"])
	require.Contains(t, s.Statements()[0], "where station_id = 300007)")
}

func TestStationListForArea(t *testing.T) {
	ctx := context.Background()
	box := domain.BoundingBox{MinLat: 60, MaxLat: 61, MinLon: 24, MaxLon: 25}

	s := fakedb.Connected().On("FROM stations r, stations_v1 s, locations l", areaColumns,
		[]string{"100001", "60.1", "24.1", "Road 1", "100001", "", "10"})
	r := New(s)

	list, err := r.StationListForArea(ctx, domain.ProducerRoadWeather, box)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "Road 1", list[100001]["station_name"])
	require.Contains(t, s.Statements()[0], "l.latitude BETWEEN 60.000000 AND 61.000000")

	m, err := r.StationInfo(ctx, domain.ProducerRoadWeather, 100001, false)
	require.NoError(t, err)
	require.Equal(t, "Road 1", m["station_name"])
	require.EqualValues(t, 1, s.Queries.Load())
}

func TestStationListForAreaStatements(t *testing.T) {
	ctx := context.Background()
	box := domain.BoundingBox{MinLat: 60, MaxLat: 61, MinLon: 24, MaxLon: 25}
	cases := map[int64]string{
		domain.ProducerExtSynop:        "FROM wmostations r WHERE r.lat BETWEEN",
		domain.ProducerSwedishRoad:     "n.network_id IN (50,67,64)",
		domain.ProducerSounding:        "gm.group_id = 125 OR gm.group_id = 127",
		domain.ProducerFinnishStations: "s.country_id = 0",
		1:                              "FROM stations_v1 s, network_members_v1 n",
	}
	for producer, want := range cases {
		s := fakedb.Connected()
		_, err := New(s).StationListForArea(ctx, producer, box)
		require.NoError(t, err)
		require.Contains(t, s.Statements()[0], want, "producer %d", producer)
	}

	s := fakedb.Connected()
	_, err := New(s).StationListForArea(ctx, 1, box)
	require.NoError(t, err)
	require.NotContains(t, s.Statements()[0], "network_id IN")
}

func TestStationListForAreaUnsupportedProducer(t *testing.T) {
	s := fakedb.Connected()
	_, err := New(s).StationListForArea(context.Background(), domain.ProducerFMIStationFmisid, domain.BoundingBox{})
	require.True(t, errors.Is(err, domain.ErrUnsupportedProducer))
	require.Zero(t, s.Queries.Load())
}

func TestExecuteProcedure(t *testing.T) {
	ctx := context.Background()
	s := fakedb.Connected().On("station_list", []string{"id", "name"}, []string{"1", "a"}, []string{"2", "b"})
	r := New(s)

	rows, err := r.ExecuteProcedure(ctx, "station_list(1001)")
	require.NoError(t, err)
	require.Equal(t, []domain.Row{{"1", "a"}, {"2", "b"}}, rows)

	s.OnError("broken", errors.New("boom"))
	_, err = r.ExecuteProcedure(ctx, "broken()")
	var execErr *db.ExecError
	require.ErrorAs(t, err, &execErr)
}
