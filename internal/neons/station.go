package neons

import (
	"context"
	"fmt"
	"strconv"

	"github.com/oriys/fmidb/internal/domain"
)

var stationColumns = []string{
	"indicatif_omm", "station_name", "latitude", "longitude", "lpnn", "aws_id", "country_id", "elevation",
	"indicatif_oaci", "indicatif_ship", "niveau_pression", "elevation_sondage1", "elevation_sondage2",
	"elevation_hp", "elevation_ha", "numero_region_mto", "station_principale",
	"obs00", "obs03", "obs06", "obs09", "obs12", "obs15", "obs18", "obs21",
	"obsalti00", "obsalti06", "obsalti12", "obsalti18",
	"heure00", "heure06", "heure12", "heure18",
}

const stationSelect = "SELECT indicatif_omm, nom_station, round(lat/100000, 4) as lat, round(lon/100000, 4) as lon," +
	" lpnn, aws_id, country_id," +
	" CASE WHEN elevation_hp IS NOT NULL THEN elevation_hp WHEN elevation_ha IS NOT NULL THEN elevation_ha ELSE NULL END AS elevation," +
	" indicatif_oaci, indicatif_ship, niveau_pression, elevation_sondage1, elevation_sondage2, elevation_hp, elevation_ha," +
	" numero_region_mto, station_principale, obs00, obs03, obs06, obs09, obs12, obs15, obs18, obs21," +
	" obsalti00, obsalti06, obsalti12, obsalti18, heure00, heure06, heure12, heure18" +
	" FROM station WHERE indicatif_omm IS NOT NULL"

// StationInfo returns the station with WMO number wmo. In aggressive mode
// the first lookup loads every station in one statement; later misses query
// the single station.
func (r *Repository) StationInfo(ctx context.Context, wmo int64, aggressive bool) (domain.AttributeMap, error) {
	return r.station.Lookup(ctx, wmo, func(ctx context.Context) (domain.AttributeMap, error) {
		sql := stationSelect
		if !aggressive || r.station.Len() > 0 {
			sql += " AND indicatif_omm = " + itoa(wmo)
		}
		rows, err := r.QueryRows(ctx, sql)
		if err != nil {
			return nil, err
		}
		found := domain.AttributeMap{}
		for _, row := range rows {
			id, err := strconv.ParseInt(row.At(0), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("neons: station id %q: %w", row.At(0), err)
			}
			m := domain.FromRow(row, stationColumns...)
			if id == wmo {
				found = m
				continue
			}
			r.station.Store(ctx, id, m)
		}
		return found, nil
	})
}

var areaColumns = []string{
	"indicatif_omm", "indicatif_oaci", "indicatif_ship", "indicatif_insee", "station_name",
	"latitude", "longitude", "lpnn", "aws_id", "country_id", "elevation",
}

// Keys of an area query result.
var areaKeys = []string{
	"indicatif_omm", "station_name", "latitude", "longitude", "lpnn", "aws_id", "country_id", "elevation",
}

const soundingFilter = " AND ( (OBSALTI00 LIKE '%W%' OR OBSALTI00  LIKE '%P%')" +
	"OR (OBSALTI06  LIKE '%W%' OR OBSALTI06  LIKE '%P%')" +
	"OR (OBSALTI12  LIKE '%W%' OR OBSALTI12  LIKE '%P%')" +
	"OR (OBSALTI18  LIKE '%W%' OR OBSALTI18  LIKE '%P%'))"

// StationListForArea returns the stations inside box keyed by WMO number,
// only sounding stations when soundingOnly is set. Every station found also
// answers later StationInfo calls.
func (r *Repository) StationListForArea(ctx context.Context, box domain.BoundingBox, soundingOnly bool) (domain.StationList, error) {
	sql := "SELECT indicatif_omm, indicatif_oaci, indicatif_ship, indicatif_insee, nom_station, lat/100000, lon/100000," +
		" lpnn, aws_id, country_id," +
		" CASE WHEN elevation_hp IS NOT NULL THEN elevation_hp WHEN elevation_ha IS NOT NULL THEN elevation_ha ELSE NULL END AS elevation" +
		" FROM station WHERE indicatif_omm IS NOT NULL" +
		fmt.Sprintf(" AND lat/100000 BETWEEN %f AND %f AND lon/100000 BETWEEN %f AND %f",
			box.MinLat, box.MaxLat, box.MinLon, box.MaxLon)
	if soundingOnly {
		sql += soundingFilter
	}
	sql += " ORDER BY lat DESC, lon"

	rows, err := r.QueryRows(ctx, sql)
	if err != nil {
		return nil, err
	}
	list := make(domain.StationList, len(rows))
	for _, row := range rows {
		id, err := strconv.ParseInt(row.At(0), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("neons: station id %q: %w", row.At(0), err)
		}
		all := domain.FromRow(row, areaColumns...)
		m := make(domain.AttributeMap, len(areaKeys))
		for _, k := range areaKeys {
			m[k] = all[k]
		}
		list[id] = m
		r.station.Store(ctx, id, m)
	}
	return list, nil
}
