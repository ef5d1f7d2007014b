// Package verif is the forecast verification repository: stations,
// parameters and producers plus the estimator and period ids verification
// results are stored under.
package verif

import (
	"context"
	"fmt"
	"strconv"

	"github.com/oriys/fmidb/internal/db"
	"github.com/oriys/fmidb/internal/domain"
	"github.com/oriys/fmidb/internal/pool"
	"github.com/oriys/fmidb/internal/repository"
)

const Name = "verif"

// Repository resolves verification metadata.
type Repository struct {
	*repository.Base

	station    *repository.Table[int64, domain.AttributeMap]
	parameters *repository.Table[int64, map[int64]domain.AttributeMap]
	producer   *repository.Table[string, domain.AttributeMap]

	meta *metadata
}

// New wraps session.
func New(session db.Session, opts ...repository.Option) *Repository {
	b := repository.NewBase(Name, session, opts...)
	return &Repository{
		Base:       b,
		station:    repository.NewTable[int64, domain.AttributeMap](b, "station"),
		parameters: repository.NewTable[int64, map[int64]domain.AttributeMap](b, "parameter"),
		producer:   repository.NewTable[string, domain.AttributeMap](b, "producer"),
	}
}

// NewPool returns a pool of verif repositories.
func NewPool(s pool.Settings) *pool.Pool[*Repository] {
	return pool.ForDatabase[*Repository](Name, s, New)
}

var stationColumns = []string{"target_id", "fmisid", "wmon", "station_id", "name", "latitude", "longitude", "x", "y", "external_info"}

const stationSelect = "SELECT target_id, fmisid, wmon, station_id, name, latitude, longitude, x, y, external_info FROM locations"

// StationInfo returns the verification target with the given fmisid. In
// aggressive mode the first lookup loads every target.
func (r *Repository) StationInfo(ctx context.Context, fmisid int64, aggressive bool) (domain.AttributeMap, error) {
	return r.station.Lookup(ctx, fmisid, func(ctx context.Context) (domain.AttributeMap, error) {
		sql := stationSelect
		if !aggressive || r.station.Len() > 0 {
			sql += " WHERE fmisid = " + itoa(fmisid)
		}
		list, err := r.QueryAll(ctx, sql, stationColumns...)
		if err != nil {
			return nil, err
		}
		found := domain.AttributeMap{}
		for _, m := range list {
			m["station_name"] = m["name"]
			id, err := strconv.ParseInt(m["fmisid"], 10, 64)
			if err != nil {
				continue
			}
			if id == fmisid {
				found = m
				continue
			}
			r.station.Store(ctx, id, m)
		}
		return found, nil
	})
}

var areaColumns = []string{"station_id", "latitude", "longitude", "station_name", "fmisid", "lpnn", "elevation"}

// StationListForArea returns the road weather stations inside box keyed by
// fmisid. Road stations carry a different attribute set than the targets
// of StationInfo, so they are not stored in its table.
func (r *Repository) StationListForArea(ctx context.Context, box domain.BoundingBox) (domain.StationList, error) {
	sql := "SELECT r.fmisid AS station_id, l.latitude, l.longitude, r.station_formal_name AS station_name, r.fmisid," +
		" NULL AS lpnn, l.elevation FROM rw_stations r, locations l WHERE r.fmisid = l.fmisid" +
		" AND l.latitude BETWEEN " + ftoa(box.MinLat) + " AND " + ftoa(box.MaxLat) +
		" AND l.longitude BETWEEN " + ftoa(box.MinLon) + " AND " + ftoa(box.MaxLon)
	list, err := r.QueryAll(ctx, sql, areaColumns...)
	if err != nil {
		return nil, err
	}
	stations := make(domain.StationList, len(list))
	for _, m := range list {
		id, err := strconv.ParseInt(m["station_id"], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("verif: station id %q: %w", m["station_id"], err)
		}
		stations[id] = m
	}
	return stations, nil
}

var parameterColumns = []string{
	"univ_id", "responding_col", "responding_sensor", "producer_no", "scale", "precision", "base", "data_type",
}

// ParameterDefinition returns the universal parameter univ of producer. The
// first lookup for a producer loads all of its parameters.
func (r *Repository) ParameterDefinition(ctx context.Context, producer, univ int64) (domain.AttributeMap, error) {
	params, err := r.parameters.Lookup(ctx, producer, func(ctx context.Context) (map[int64]domain.AttributeMap, error) {
		list, err := r.QueryAll(ctx, "SELECT univ_id, responding_col, responding_sensor, producer_no, 1 AS scale,"+
			" precision, 0 AS base, data_type FROM clim_param_xref WHERE producer_no = "+itoa(producer), parameterColumns...)
		if err != nil {
			return nil, err
		}
		params := make(map[int64]domain.AttributeMap, len(list))
		for _, m := range list {
			id, err := strconv.ParseInt(m["univ_id"], 10, 64)
			if err != nil {
				return nil, fmt.Errorf("verif: univ_id %q: %w", m["univ_id"], err)
			}
			params[id] = m
		}
		return params, nil
	})
	if err != nil {
		return nil, err
	}
	if m, ok := params[univ]; ok {
		return m, nil
	}
	return domain.AttributeMap{}, nil
}

// ProducerDefinition returns id and name of the named producer.
func (r *Repository) ProducerDefinition(ctx context.Context, name string) (domain.AttributeMap, error) {
	return r.producer.Lookup(ctx, name, func(ctx context.Context) (domain.AttributeMap, error) {
		return r.QueryOne(ctx, "SELECT id, name FROM verifng.producers WHERE name = "+db.Quote(name), "id", "name")
	})
}

func itoa(v int64) string { return strconv.FormatInt(v, 10) }

func ftoa(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
