// Package cldb is the climate station repository. Station lookups dispatch
// on the observation producer since every producer keeps its stations in
// a different view.
package cldb

import (
	"context"
	"fmt"
	"strconv"

	"github.com/oriys/fmidb/internal/db"
	"github.com/oriys/fmidb/internal/domain"
	"github.com/oriys/fmidb/internal/pool"
	"github.com/oriys/fmidb/internal/repository"
)

const Name = "cldb"

type fmiKey struct {
	Producer int64
	Station  string
}

type univKey struct {
	Producer int64
	Univ     int64
}

// Repository resolves climate database metadata.
type Repository struct {
	*repository.Base

	roadStations    *repository.Table[int64, domain.AttributeMap]
	swedishStations *repository.Table[int64, domain.AttributeMap]
	synopStations   *repository.Table[int64, domain.AttributeMap]
	fmiStations     *repository.Table[fmiKey, domain.AttributeMap]
	parameters      *repository.Table[int64, map[int64]domain.AttributeMap]
	mapping         *repository.Table[univKey, domain.AttributeList]
	producer        *repository.Table[int64, domain.AttributeMap]
}

// New wraps session.
func New(session db.Session, opts ...repository.Option) *Repository {
	b := repository.NewBase(Name, session, opts...)
	return &Repository{
		Base:            b,
		roadStations:    repository.NewTable[int64, domain.AttributeMap](b, "road_station"),
		swedishStations: repository.NewTable[int64, domain.AttributeMap](b, "swedish_road_station"),
		synopStations:   repository.NewTable[int64, domain.AttributeMap](b, "ext_synop_station"),
		fmiStations:     repository.NewTable[fmiKey, domain.AttributeMap](b, "fmi_station"),
		parameters:      repository.NewTable[int64, map[int64]domain.AttributeMap](b, "parameter"),
		mapping:         repository.NewTable[univKey, domain.AttributeList](b, "parameter_mapping"),
		producer:        repository.NewTable[int64, domain.AttributeMap](b, "producer"),
	}
}

// NewPool returns a pool of cldb repositories.
func NewPool(s pool.Settings) *pool.Pool[*Repository] {
	return pool.ForDatabase[*Repository](Name, s, New)
}

// ProducerDefinition returns producer_no, producer_name and table_name.
func (r *Repository) ProducerDefinition(ctx context.Context, id int64) (domain.AttributeMap, error) {
	return r.producer.Lookup(ctx, id, func(ctx context.Context) (domain.AttributeMap, error) {
		return r.QueryOne(ctx, "SELECT producer_no, producer_name, table_name FROM clim_producers WHERE producer_no = "+
			itoa(id), "producer_no", "producer_name", "table_name")
	})
}

var parameterColumns = []string{
	"univ_id", "responding_col", "responding_sensor", "producer_no", "scale", "precision", "base",
	"data_type", "responding_id",
}

// ParameterDefinition returns the universal parameter univ of producer.
// The first lookup for a producer loads all of its parameters.
func (r *Repository) ParameterDefinition(ctx context.Context, producer, univ int64) (domain.AttributeMap, error) {
	params, err := r.parameters.Lookup(ctx, producer, func(ctx context.Context) (map[int64]domain.AttributeMap, error) {
		list, err := r.QueryAll(ctx, "SELECT univ_id, responding_col, responding_sensor, producer_no, 1 AS scale,"+
			" precision, 0 AS base, data_type, responding_id FROM clim_param_xref WHERE producer_no = "+itoa(producer),
			parameterColumns...)
		if err != nil {
			return nil, err
		}
		params := make(map[int64]domain.AttributeMap, len(list))
		for _, m := range list {
			id, err := strconv.ParseInt(m["univ_id"], 10, 64)
			if err != nil {
				return nil, fmt.Errorf("cldb: univ_id %q: %w", m["univ_id"], err)
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

// ParameterMapping returns the measurand and sensor rows univ maps to.
func (r *Repository) ParameterMapping(ctx context.Context, producer, univ int64) (domain.AttributeList, error) {
	return r.mapping.Lookup(ctx, univKey{Producer: producer, Univ: univ}, func(ctx context.Context) (domain.AttributeList, error) {
		return r.QueryAll(ctx, "SELECT measurand_id, sensor_no, scale, base FROM clim_param_xref_ng WHERE producer_id = "+
			itoa(producer)+" AND univ_id = "+itoa(univ), "measurand_id", "sensor_no", "scale", "base")
	})
}

// ExecuteProcedure calls a cursor returning stored function and reads the
// cursor to the end.
func (r *Repository) ExecuteProcedure(ctx context.Context, call string) ([]domain.Row, error) {
	ps, ok := r.Session().(db.ProcedureSession)
	if !ok {
		return nil, fmt.Errorf("%s: %w", Name, db.ErrProcedureUnsupported)
	}
	if err := ps.ExecuteProcedure(ctx, call); err != nil {
		return nil, fmt.Errorf("%s: %w", Name, err)
	}
	var rows []domain.Row
	for {
		row, err := ps.FetchRowFromCursor(ctx)
		if err != nil {
			return rows, fmt.Errorf("%s: %w", Name, err)
		}
		if row.Empty() {
			return rows, nil
		}
		rows = append(rows, row)
	}
}

func itoa(v int64) string { return strconv.FormatInt(v, 10) }
