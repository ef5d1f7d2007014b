package cldb

import (
	"context"
	"fmt"
	"strconv"

	"github.com/oriys/fmidb/internal/domain"
	"github.com/oriys/fmidb/internal/repository"
)

// StationInfo returns station of producer. Ext synop stations are keyed by
// WMO number, road weather and Swedish road stations by fmisid, FMI
// stations by WMO number except for producers 20015 and 20022 which use
// fmisid. In aggressive mode the first lookup of a producer family loads
// all of its stations.
func (r *Repository) StationInfo(ctx context.Context, producer, station int64, aggressive bool) (domain.AttributeMap, error) {
	switch producer {
	case domain.ProducerExtSynop:
		return r.synopStation(ctx, station, aggressive)
	case domain.ProducerRoadWeather:
		return r.roadStation(ctx, station, aggressive)
	case domain.ProducerSwedishRoad:
		return r.swedishStation(ctx, station, aggressive)
	default:
		return r.fmiStation(ctx, producer, station, aggressive)
	}
}

// loadStations is the shared miss path: one statement, every returned
// station cached, the wanted one returned. A non-nil also accepts a row
// keyed differently as the answer when no row has the wanted key.
func loadStations[K comparable](ctx context.Context, r *Repository, table *repository.Table[K, domain.AttributeMap],
	want K, aggressive bool, sql func(all bool) string, names []string,
	normalize func(domain.AttributeMap) (K, bool, error), also func(domain.AttributeMap) bool) (domain.AttributeMap, error) {
	return table.Lookup(ctx, want, func(ctx context.Context) (domain.AttributeMap, error) {
		list, err := r.QueryAll(ctx, sql(aggressive && table.Len() == 0), names...)
		if err != nil {
			return nil, err
		}
		found, exact := domain.AttributeMap{}, false
		for _, m := range list {
			k, ok, err := normalize(m)
			if err != nil {
				return nil, err
			}
			switch {
			case ok && k == want:
				found, exact = m, true
				continue
			case !exact && !found.Found() && also != nil && also(m):
				found = m
			}
			if ok {
				table.Store(ctx, k, m)
			}
		}
		return found, nil
	})
}

// stationID parses the leading station id column and rewrites it without
// padding.
func stationID(m domain.AttributeMap, col string) (int64, error) {
	id, err := strconv.ParseInt(m[col], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("cldb: station id %q: %w", m[col], err)
	}
	m["station_id"] = strconv.FormatInt(id, 10)
	return id, nil
}

var synopColumns = []string{"station_id", "latitude", "longitude", "station_name", "fmisid", "elevation"}

func (r *Repository) synopStation(ctx context.Context, wmo int64, aggressive bool) (domain.AttributeMap, error) {
	sql := func(all bool) string {
		q := "SELECT r.wmon as station_id, r.lat as latitude, r.lon as longitude, r.station_name, r.fmisid," +
			" r.h as elevation FROM wmostations r" +
			" WHERE membership_end = to_date('9999-12-31', 'yyyy-mm-dd') AND loc_end = to_date('9999-12-31', 'yyyy-mm-dd')"
		if !all {
			q += fmt.Sprintf(" AND r.wmon = '%05d'", wmo)
		}
		return q
	}
	return loadStations(ctx, r, r.synopStations, wmo, aggressive, sql, synopColumns, normalizeByID, nil)
}

func normalizeByID(m domain.AttributeMap) (int64, bool, error) {
	id, err := stationID(m, "station_id")
	if err != nil {
		return 0, false, err
	}
	m["lpnn"] = ""
	return id, true, nil
}

var roadColumns = []string{"station_id", "latitude", "longitude", "station_name", "elevation"}

func normalizeByFmisid(m domain.AttributeMap) (int64, bool, error) {
	id, ok, err := normalizeByID(m)
	if err != nil {
		return 0, false, err
	}
	m["fmisid"] = m["station_id"]
	return id, ok, nil
}

func (r *Repository) roadStation(ctx context.Context, fmisid int64, aggressive bool) (domain.AttributeMap, error) {
	sql := func(all bool) string {
		q := "WITH stations AS (SELECT rw.rw_station_id, rw.fmisid, rw.station_formal_name FROM rw_stations rw" +
			" UNION ALL SELECT to_number(member_code), station_id, NULL as name FROM network_members_v1 WHERE network_id = 31)" +
			" SELECT r.fmisid AS station_id, l.latitude, l.longitude, r.station_formal_name, l.elevation" +
			" FROM stations r, locations l WHERE r.fmisid = l.fmisid"
		if !all {
			q += " AND r.fmisid = " + itoa(fmisid)
		}
		return q
	}
	return loadStations(ctx, r, r.roadStations, fmisid, aggressive, sql, roadColumns, normalizeByFmisid, nil)
}

const swedishNetworks = "n.network_id IN (50,67,64)"

const openMembership = "n.membership_end = to_date('9999-12-31 00:00:00', 'yyyy-mm-dd hh24:mi:ss')"

func (r *Repository) swedishStation(ctx context.Context, fmisid int64, aggressive bool) (domain.AttributeMap, error) {
	sql := func(all bool) string {
		q := "SELECT s.station_id as station_id, round(s.station_geometry.sdo_point.y, 5) as latitude," +
			" round(s.station_geometry.sdo_point.x, 5) as longitude, s.station_name, s.station_elevation" +
			" FROM stations_v1 s, network_members_v1 n WHERE s.station_id = n.station_id AND " + swedishNetworks +
			" AND " + openMembership
		if !all {
			q += " AND s.station_id = " + itoa(fmisid)
		}
		return q
	}
	return loadStations(ctx, r, r.swedishStations, fmisid, aggressive, sql, roadColumns, normalizeByFmisid, nil)
}

var fmiColumns = []string{"wmon", "latitude", "longitude", "station_name", "fmisid", "lpnn", "elevation"}

// keyedByFmisid reports whether FMI stations of producer are identified by
// fmisid instead of WMO number.
func keyedByFmisid(producer int64) bool {
	return producer == domain.ProducerFMIStationFmisid || producer == domain.ProducerIceBuoy
}

func fmiStationKey(producer, station int64) fmiKey {
	if keyedByFmisid(producer) {
		return fmiKey{Producer: producer, Station: itoa(station)}
	}
	return fmiKey{Producer: producer, Station: fmt.Sprintf("%05d", station)}
}

// fmiRowKey is fmiStationKey for a fetched row holding wmon and fmisid.
// Rows without the identifying column have no key.
func fmiRowKey(producer int64, m domain.AttributeMap) (fmiKey, bool) {
	col := "wmon"
	if keyedByFmisid(producer) {
		col = "fmisid"
	}
	n, err := strconv.ParseInt(m[col], 10, 64)
	if err != nil {
		return fmiKey{}, false
	}
	return fmiStationKey(producer, n), true
}

const fmiStationSelect = "SELECT n.member_code AS wmon, round(s.station_geometry.sdo_point.y, 5) AS latitude," +
	" round(s.station_geometry.sdo_point.x, 5) AS longitude, s.station_name, s.station_id, NULL, s.station_elevation" +
	" FROM stations_v1 s LEFT OUTER JOIN network_members_v1 n ON (s.station_id = n.station_id AND n.network_id = 20)"

func (r *Repository) fmiStation(ctx context.Context, producer, station int64, aggressive bool) (domain.AttributeMap, error) {
	want := fmiStationKey(producer, station)
	sql := func(all bool) string {
		if producer == domain.ProducerIceBuoy {
			return "SELECT NULL AS wmon, m.lat AS latitude, m.lon AS longitude, s.station_name, s.station_id," +
				" NULL AS lpnn, m.elev as elevation FROM stations_v1 s JOIN moving_locations_v1 m ON m.station_id = s.station_id" +
				" WHERE m.created = (select max(created) from moving_locations_v1 where station_id = " + itoa(station) + ")"
		}
		if all {
			return fmiStationSelect
		}
		return fmiStationSelect + " WHERE (s.station_id = " + itoa(station) +
			" OR to_number(n.member_code) = " + itoa(station) + ")"
	}
	normalize := func(m domain.AttributeMap) (fmiKey, bool, error) {
		m["station_id"] = m["fmisid"]
		k, ok := fmiRowKey(producer, m)
		return k, ok, nil
	}
	// The single station statement also matches by fmisid.
	byFmisid := func(m domain.AttributeMap) bool { return m["fmisid"] == itoa(station) }
	return loadStations(ctx, r, r.fmiStations, want, aggressive, sql, fmiColumns, normalize, byFmisid)
}

var areaColumns = []string{"station_id", "latitude", "longitude", "station_name", "fmisid", "lpnn", "elevation"}

func between(expr string, lo, hi float64) string {
	return fmt.Sprintf("%s BETWEEN %f AND %f", expr, lo, hi)
}

func areaSQL(producer int64, box domain.BoundingBox) (string, error) {
	const sdoLat, sdoLon = "round(s.station_geometry.sdo_point.y, 5)", "round(s.station_geometry.sdo_point.x, 5)"
	switch producer {
	case domain.ProducerExtSynop:
		return "SELECT r.wmon AS station_id, r.lat, r.lon, r.station_name, r.fmisid, NULL AS lpnn, r.h FROM wmostations r WHERE " +
			between("r.lat", box.MinLat, box.MaxLat) + " AND " + between("r.lon", box.MinLon, box.MaxLon), nil
	case domain.ProducerRoadWeather:
		return "WITH stations AS (SELECT rw.rw_station_id, rw.fmisid FROM rw_stations rw" +
			" UNION ALL SELECT to_number(member_code), station_id FROM network_members_v1 WHERE network_id = 31)" +
			" SELECT r.fmisid AS station_id, l.latitude, l.longitude, s.station_name, r.fmisid, NULL AS lpnn, l.elevation" +
			" FROM stations r, stations_v1 s, locations l WHERE r.fmisid = l.fmisid AND s.station_id = l.fmisid AND " +
			between("l.latitude", box.MinLat, box.MaxLat) + " AND " + between("l.longitude", box.MinLon, box.MaxLon), nil
	case domain.ProducerFMIStationFmisid:
		return "", fmt.Errorf("%w: area queries for producer %d", domain.ErrUnsupportedProducer, producer)
	case domain.ProducerSounding:
		return "SELECT w.wmon, " + sdoLat + " as latitude, " + sdoLon + " as longitude, s.station_name," +
			" s.station_id AS fmisid, NULL as lpnn, s.station_elevation" +
			" FROM stations_v1 s, group_members_v1 gm, wmostations w WHERE (gm.group_id = 125 OR gm.group_id = 127)" +
			" AND w.fmisid = s.station_id AND gm.station_id = s.station_id AND sysdate BETWEEN gm.valid_from AND gm.valid_to" +
			" AND gm.membership_on = 'Y' AND " + between(sdoLon, box.MinLon, box.MaxLon) +
			" AND " + between(sdoLat, box.MinLat, box.MaxLat), nil
	case domain.ProducerFinnishStations:
		return "SELECT w.wmon, " + sdoLat + " as latitude, " + sdoLon + " as longitude, s.station_name," +
			" s.station_id as fmisid, NULL as lpnn, NULL as elevation" +
			" FROM stations_v1 s, group_members_v1 gm, wmostations w WHERE s.station_id = w.fmisid" +
			" AND s.station_id = gm.station_id AND s.country_id = 0 AND gm.membership_on = 'Y'" +
			" AND sysdate BETWEEN gm.valid_from AND gm.valid_to AND " + between(sdoLon, box.MinLon, box.MaxLon) +
			" AND " + between(sdoLat, box.MinLat, box.MaxLat), nil
	}

	sql := "SELECT s.station_id as station_id, " + sdoLat + " as latitude, " + sdoLon + " as longitude, s.station_name," +
		" s.station_id as fmisid, NULL as lpnn, s.station_elevation FROM stations_v1 s, network_members_v1 n" +
		" WHERE s.station_id = n.station_id"
	if producer == domain.ProducerSwedishRoad {
		sql += " AND " + swedishNetworks
	}
	return sql + " AND " + openMembership + " AND " + between(sdoLat, box.MinLat, box.MaxLat) +
		" AND " + between(sdoLon, box.MinLon, box.MaxLon), nil
}

// StationListForArea returns the stations of producer inside box keyed by
// their leading id column. Every station found also answers later
// StationInfo calls of the same producer.
func (r *Repository) StationListForArea(ctx context.Context, producer int64, box domain.BoundingBox) (domain.StationList, error) {
	sql, err := areaSQL(producer, box)
	if err != nil {
		return nil, err
	}
	list, err := r.QueryAll(ctx, sql, areaColumns...)
	if err != nil {
		return nil, err
	}
	stations := make(domain.StationList, len(list))
	for _, m := range list {
		id, err := stationID(m, "station_id")
		if err != nil {
			return nil, err
		}
		stations[id] = m

		switch producer {
		case domain.ProducerExtSynop:
			r.synopStations.Store(ctx, id, m)
		case domain.ProducerRoadWeather:
			r.roadStations.Store(ctx, id, m)
		case domain.ProducerSwedishRoad:
			r.swedishStations.Store(ctx, id, m)
		default:
			key := fmiStationKey(producer, id)
			if keyedByFmisid(producer) {
				var ok bool
				if key, ok = fmiRowKey(producer, m); !ok {
					continue
				}
			}
			r.fmiStations.Store(ctx, key, m)
		}
	}
	return stations, nil
}
