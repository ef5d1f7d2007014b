package neons

import (
	"context"
	"strconv"

	"github.com/oriys/fmidb/internal/db"
	"github.com/oriys/fmidb/internal/domain"
)

// Producer classes of fmi_producers.
const (
	ClassGrid  = 1
	ClassPoint = 2
	ClassPrevi = 3
)

var producerColumns = []string{
	"producer_id", "ref_prod", "seq_type_prfx", "producer_class", "no_vers", "dbclass_id", "hours_for_latest",
}

// ProducerDefinition returns producer_id, ref_prod, seq_type_prfx,
// producer_class, no_vers, dbclass_id and hours_for_latest (24 when
// unset).
func (r *Repository) ProducerDefinition(ctx context.Context, id int64) (domain.AttributeMap, error) {
	return r.producer.Lookup(ctx, id, func(ctx context.Context) (domain.AttributeMap, error) {
		return r.QueryOne(ctx, "SELECT producer_id, ref_prod, seq_type_prfx, producer_class, no_vers, dbclass_id,"+
			" nvl(hours_for_latest,24) FROM fmi_producers WHERE producer_id = "+itoa(id), producerColumns...)
	})
}

// ProducerDefinitionByName resolves ref_prod to an id and shares the id
// keyed definition.
func (r *Repository) ProducerDefinitionByName(ctx context.Context, name string) (domain.AttributeMap, error) {
	id, err := r.producerName.Lookup(ctx, name, func(ctx context.Context) (int64, error) {
		row, err := r.QueryRow(ctx, "SELECT producer_id FROM fmi_producers WHERE ref_prod = "+db.Quote(name))
		if err != nil || row.Empty() {
			return 0, err
		}
		return strconv.ParseInt(row.At(0), 10, 64)
	})
	if err != nil {
		return nil, err
	}
	if id == 0 {
		return domain.AttributeMap{}, nil
	}
	return r.ProducerDefinition(ctx, id)
}

// GridModelDefinition returns the grid model of a grid class producer.
// Keys: ref_prod, no_vers, model_name, flag_mod, model_desc, model_id,
// ident_name, ident_id, model_type.
func (r *Repository) GridModelDefinition(ctx context.Context, id int64) (domain.AttributeMap, error) {
	return r.model.Lookup(ctx, id, func(ctx context.Context) (domain.AttributeMap, error) {
		sql := "SELECT fmi_producers.ref_prod, fmi_producers.no_vers, grid_model.model_name, grid_model.flag_mod," +
			" grid_model_name.model_desc, grid_num_model_grib.model_id, grid_model_ident.ident_name," +
			" grid_model_ident.ident_id, grid_model.model_type" +
			" FROM fmi_producers, grid_model, grid_model_name, grid_num_model_grib, grid_model_ident" +
			" WHERE fmi_producers.producer_id = " + itoa(id) +
			" AND fmi_producers.producer_class = 1" +
			" AND fmi_producers.ref_prod = grid_model.model_type" +
			" AND grid_model_name.model_name = grid_model.model_name" +
			" AND grid_num_model_grib.model_name = grid_model.model_name" +
			" AND grid_model_ident.ident_id = grid_num_model_grib.ident_id"
		return r.QueryOne(ctx, sql, "ref_prod", "no_vers", "model_name", "flag_mod", "model_desc",
			"model_id", "ident_name", "ident_id", "model_type")
	})
}
