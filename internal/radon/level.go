package radon

import (
	"context"

	"github.com/oriys/fmidb/internal/db"
	"github.com/oriys/fmidb/internal/domain"
)

type levelGribKey struct {
	Producer, Number, Edition int64
}

type transformKey struct {
	Producer, Param, Level int64
	LevelValue             float64
}

// LevelFromDatabaseName returns id and name of a level, matching the
// name case insensitively.
func (r *Repository) LevelFromDatabaseName(ctx context.Context, name string) (domain.AttributeMap, error) {
	return r.levelName.Lookup(ctx, name, func(ctx context.Context) (domain.AttributeMap, error) {
		return r.QueryOne(ctx, "SELECT id, name FROM level WHERE upper("+db.Quote(name)+") = name", "id", "name")
	})
}

// LevelFromGrib maps a GRIB level type of the given edition. Keys: id,
// name, grib1Number (the level type, for either edition).
func (r *Repository) LevelFromGrib(ctx context.Context, producer, number, edition int64) (domain.AttributeMap, error) {
	key := levelGribKey{Producer: producer, Number: number, Edition: edition}
	return r.levelGrib.Lookup(ctx, key, func(ctx context.Context) (domain.AttributeMap, error) {
		table := "level_grib1"
		if edition == 2 {
			table = "level_grib2"
		}
		sql := "SELECT id, name FROM level l, " + table + " g WHERE l.id = g.level_id" +
			" AND g.producer_id = " + itoa(producer) + " AND g.grib_level_id = " + itoa(number)
		m, err := r.QueryOne(ctx, sql, "id", "name")
		if err != nil || !m.Found() {
			return m, err
		}
		m["grib1Number"] = itoa(number)
		return m, nil
	})
}

// LevelTransform returns the level a parameter is stored on when the
// producer does not use the requested one. Keys: id, name, value.
func (r *Repository) LevelTransform(ctx context.Context, producer, param, levelID int64, levelValue float64) (domain.AttributeMap, error) {
	key := transformKey{Producer: producer, Param: param, Level: levelID, LevelValue: levelValue}
	return r.transform.Lookup(ctx, key, func(ctx context.Context) (domain.AttributeMap, error) {
		sql := "SELECT x.other_level_id, l.name AS other_level_name, x.other_level_value" +
			" FROM param_level_transform x, level l" +
			" WHERE x.other_level_id = l.id" +
			" AND x.producer_id = " + itoa(producer) +
			" AND x.param_id = " + itoa(param) +
			" AND x.fmi_level_id = " + itoa(levelID) +
			" AND (x.fmi_level_value IS NULL OR x.fmi_level_value = " + ftoa(levelValue) + ")" +
			" ORDER BY other_level_id, other_level_value NULLS LAST"
		return r.QueryOne(ctx, sql, "id", "name", "value")
	})
}
