package radon

import (
	"context"
	"strconv"

	"github.com/oriys/fmidb/internal/db"
	"github.com/oriys/fmidb/internal/domain"
)

type gribProducerKey struct {
	Centre, Process, Type int64
}

type producerMetaKey struct {
	Producer  int64
	Attribute string
}

// ProducerFromGrib resolves a GRIB originating centre and generating
// process of the given producer type. Keys: id, name, class_id, type_id,
// centre, ident.
func (r *Repository) ProducerFromGrib(ctx context.Context, centre, process, typeID int64) (domain.AttributeMap, error) {
	key := gribProducerKey{Centre: centre, Process: process, Type: typeID}
	return r.gribProducer.Lookup(ctx, key, func(ctx context.Context) (domain.AttributeMap, error) {
		sql := "SELECT f.id, f.name, f.class_id, f.type_id" +
			" FROM fmi_producer f, producer_grib p, producer_type t" +
			" WHERE f.id = p.producer_id AND f.type_id = t.id" +
			" AND p.centre = " + itoa(centre) + " AND p.ident = " + itoa(process) + " AND t.id = " + itoa(typeID)
		m, err := r.QueryOne(ctx, sql, "id", "name", "class_id", "type_id")
		if err != nil || !m.Found() {
			return m, err
		}
		m["centre"] = itoa(centre)
		m["ident"] = itoa(process)
		return m, nil
	})
}

// ProducerDefinition returns producer_id, ref_prod, producer_class,
// model_id and ident_id.
func (r *Repository) ProducerDefinition(ctx context.Context, id int64) (domain.AttributeMap, error) {
	return r.producer.Lookup(ctx, id, func(ctx context.Context) (domain.AttributeMap, error) {
		sql := "SELECT f.id, f.name, f.class_id, g.ident, g.centre" +
			" FROM fmi_producer f" +
			" LEFT OUTER JOIN producer_grib g ON (f.id = g.producer_id)" +
			" WHERE f.id = " + itoa(id)
		return r.QueryOne(ctx, sql, "producer_id", "ref_prod", "producer_class", "model_id", "ident_id")
	})
}

// ProducerDefinitionByName resolves name to an id and shares the id
// keyed definition.
func (r *Repository) ProducerDefinitionByName(ctx context.Context, name string) (domain.AttributeMap, error) {
	id, err := r.producerName.Lookup(ctx, name, func(ctx context.Context) (int64, error) {
		row, err := r.QueryRow(ctx, "SELECT id FROM fmi_producer WHERE name = "+db.Quote(name))
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

// ProducerMetaData returns one free-form producer attribute, or "".
func (r *Repository) ProducerMetaData(ctx context.Context, producer int64, attribute string) (string, error) {
	key := producerMetaKey{Producer: producer, Attribute: attribute}
	return r.producerMeta.Lookup(ctx, key, func(ctx context.Context) (string, error) {
		row, err := r.QueryRow(ctx, "SELECT value FROM producer_meta WHERE producer_id = "+itoa(producer)+
			" AND attribute = "+db.Quote(attribute))
		return row.At(0), err
	})
}
