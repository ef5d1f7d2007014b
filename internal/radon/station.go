package radon

import (
	"context"
	"fmt"
	"strconv"

	"github.com/oriys/fmidb/internal/db"
	"github.com/oriys/fmidb/internal/domain"
)

type stationKey struct {
	Network domain.StationNetwork
	ID      int64
}

var stationColumns = []string{
	"id", "station_name", "longitude", "latitude", "altitude", "wmoid", "icaoid", "lpnn", "rwid", "fmisid",
}

const stationSelect = "SELECT s.id, s.name, st_x(s.position) AS longitude, st_y(s.position) AS latitude, s.elevation," +
	" wmo.local_station_id AS wmoid, icao.local_station_id AS icaoid, lpnn.local_station_id AS lpnn," +
	" rw.local_station_id AS road_weather_id, fs.local_station_id AS fmisid" +
	" FROM station s" +
	" LEFT OUTER JOIN station_network_mapping wmo ON (s.id = wmo.station_id AND wmo.network_id = 1)" +
	" LEFT OUTER JOIN station_network_mapping icao ON (s.id = icao.station_id AND icao.network_id = 2)" +
	" LEFT OUTER JOIN station_network_mapping lpnn ON (s.id = lpnn.station_id AND lpnn.network_id = 3)" +
	" LEFT OUTER JOIN station_network_mapping rw ON (s.id = rw.station_id AND rw.network_id = 4)" +
	" LEFT OUTER JOIN station_network_mapping fs ON (s.id = fs.station_id AND fs.network_id = 5)"

// StationDefinition returns a station by its id in network. Only the FMISID
// network is supported. Keys: id, station_name, longitude, latitude,
// altitude, wmoid, icaoid, lpnn, rwid, fmisid.
func (r *Repository) StationDefinition(ctx context.Context, network domain.StationNetwork, id int64) (domain.AttributeMap, error) {
	if network != domain.NetworkFmiSID {
		return nil, fmt.Errorf("%w: %s (%d)", domain.ErrUnsupportedNetwork, network, int(network))
	}
	return r.station.Lookup(ctx, stationKey{Network: network, ID: id}, func(ctx context.Context) (domain.AttributeMap, error) {
		sql := stationSelect +
			" JOIN station_network_mapping m ON (s.id = m.station_id AND m.network_id = 5" +
			" AND m.local_station_id = " + db.Quote(itoa(id)) + ")"
		return r.QueryOne(ctx, sql, stationColumns...)
	})
}

// ProbabilityLimitForStation returns the probability threshold of a
// parameter at a station, or domain.MissingValue. Not cached.
func (r *Repository) ProbabilityLimitForStation(ctx context.Context, station int64, param string) (float64, error) {
	row, err := r.QueryRow(ctx, "SELECT probability_limit FROM station_probability_limit_v WHERE station_id = "+
		itoa(station)+" AND param_name = "+db.Quote(param))
	if err != nil {
		return 0, err
	}
	if row.Empty() || row.At(0) == "" {
		return domain.MissingValue, nil
	}
	v, err := strconv.ParseFloat(row.At(0), 64)
	if err != nil {
		return 0, fmt.Errorf("%s: probability limit %q: %w", Name, row.At(0), err)
	}
	return v, nil
}
