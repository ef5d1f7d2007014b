package radon

import (
	"context"

	"github.com/oriys/fmidb/internal/db"
	"github.com/oriys/fmidb/internal/domain"
)

type newbaseKey struct {
	Producer, Univ int64
}

type paramNameKey struct {
	Producer   int64
	Name       string
	Level      int64
	LevelValue float64
}

type grib1Key struct {
	Producer, TableVersion, Number, TimeRange, Level int64
	LevelValue                                       float64
}

type grib2Key struct {
	Producer, Discipline, Category, Number, Level int64
	LevelValue                                    float64
}

// Columns of the encoding lookups, in select order.
var encodedParamColumns = []string{
	"id", "name", "version", "unit_name", "interpolation_method", "interpolation_name", "level_id", "level_value",
}

const encodedParamSelect = "SELECT p.id, p.name, p.version, u.name AS unit_name," +
	" p.interpolation_id, i.name AS interpolation_name, g.level_id, g.level_value"

// levelFilter matches rows for the level or for any level. Generic rows
// sort last so the most specific mapping wins.
func levelFilter(levelCol, valueCol, levelMatch string, levelValue float64) string {
	return " AND (" + levelCol + " IS NULL OR " + levelMatch + ")" +
		" AND (" + valueCol + " IS NULL OR " + valueCol + " = " + ftoa(levelValue) + ")" +
		" ORDER BY " + levelCol + " NULLS LAST, " + valueCol + " NULLS LAST LIMIT 1"
}

// ParameterFromNewbaseID maps a newbase universal id. Keys: id, name,
// parm_name, base, scale, univ_id.
func (r *Repository) ParameterFromNewbaseID(ctx context.Context, producer, univ int64) (domain.AttributeMap, error) {
	return r.paramNewbase.Lookup(ctx, newbaseKey{Producer: producer, Univ: univ}, func(ctx context.Context) (domain.AttributeMap, error) {
		sql := "SELECT p.id, p.name, g.base, g.scale, g.univ_id" +
			" FROM param_newbase g, param p" +
			" WHERE p.id = g.param_id AND g.univ_id = " + itoa(univ) + " AND g.producer_id = " + itoa(producer)
		m, err := r.QueryOne(ctx, sql, "id", "name", "base", "scale", "univ_id")
		if err != nil || !m.Found() {
			return m, err
		}
		m["parm_name"] = m["name"]
		return m, nil
	})
}

// ParameterFromDatabaseName resolves a radon parameter name together with
// its grib1, grib2 and newbase encodings for the producer and level.
// levelID is the database level id. Missing encodings are "", except
// scale and base which default to 1 and 0.
func (r *Repository) ParameterFromDatabaseName(ctx context.Context, producer int64, name string, levelID int64, levelValue float64) (domain.AttributeMap, error) {
	key := paramNameKey{Producer: producer, Name: name, Level: levelID, LevelValue: levelValue}
	return r.paramDB.Lookup(ctx, key, func(ctx context.Context) (domain.AttributeMap, error) {
		m, err := r.QueryOne(ctx, "SELECT id, name, version FROM param WHERE name = "+db.Quote(name),
			"id", "name", "version")
		if err != nil || !m.Found() {
			return m, err
		}

		scope := " param_id = " + m["id"] + " AND producer_id = " + itoa(producer)
		lf := levelFilter("level_id", "level_value", "level_id = "+itoa(levelID), levelValue)

		grib1, err := r.QueryOne(ctx, "SELECT table_version, number FROM param_grib1_v WHERE"+scope+lf,
			"grib1_table_version", "grib1_number")
		if err != nil {
			return nil, err
		}

		grib2Cols := []string{"grib2_discipline", "grib2_category", "grib2_number"}
		grib2, err := r.FirstOf(ctx, grib2Cols,
			"SELECT discipline, category, number FROM param_grib2 WHERE"+scope+lf,
			"SELECT discipline, category, number FROM param_grib2_template t WHERE param_id = "+m["id"])
		if err != nil {
			return nil, err
		}

		newbase, err := r.QueryOne(ctx, "SELECT univ_id, scale, base FROM param_newbase WHERE"+scope,
			"univ_id", "scale", "base")
		if err != nil {
			return nil, err
		}
		if !newbase.Found() {
			newbase = domain.AttributeMap{"univ_id": "", "scale": "1", "base": "0"}
		}

		for _, part := range []domain.AttributeMap{
			orEmpty(grib1, "grib1_table_version", "grib1_number"),
			orEmpty(grib2, grib2Cols...),
			newbase,
		} {
			for k, v := range part {
				m[k] = v
			}
		}
		return m, nil
	})
}

// orEmpty returns m, or a map of names set to "" when m is not found.
func orEmpty(m domain.AttributeMap, names ...string) domain.AttributeMap {
	if m.Found() {
		return m
	}
	return domain.FromRow(nil, names...)
}

func grib1SQL(producer, tableVersion, number, timeRange, level int64, levelValue float64) string {
	return encodedParamSelect +
		" FROM param_grib1 g, level_grib1 l, param p, param_unit u, interpolation_method i, fmi_producer f" +
		" WHERE g.param_id = p.id AND p.unit_id = u.id AND p.interpolation_id = i.id AND f.id = g.producer_id" +
		" AND f.id = " + itoa(producer) +
		" AND table_version = " + itoa(tableVersion) +
		" AND number = " + itoa(number) +
		" AND timerange_indicator = " + itoa(timeRange) +
		levelFilter("g.level_id", "level_value",
			"(g.level_id = l.level_id AND l.grib_level_id = "+itoa(level)+")", levelValue)
}

// ParameterFromGrib1 maps a GRIB1 table version and number. level is the
// GRIB1 level type. Keys: id, name, version, unit_name,
// interpolation_method, interpolation_name, level_id, level_value,
// grib1_table_version, grib1_number.
func (r *Repository) ParameterFromGrib1(ctx context.Context, producer, tableVersion, number, timeRange, level int64, levelValue float64) (domain.AttributeMap, error) {
	key := grib1Key{Producer: producer, TableVersion: tableVersion, Number: number, TimeRange: timeRange, Level: level, LevelValue: levelValue}
	return r.paramGrib1.Lookup(ctx, key, func(ctx context.Context) (domain.AttributeMap, error) {
		m, err := r.QueryOne(ctx, grib1SQL(producer, tableVersion, number, timeRange, level, levelValue), encodedParamColumns...)
		if err != nil || !m.Found() {
			return m, err
		}
		m["grib1_table_version"] = itoa(tableVersion)
		m["grib1_number"] = itoa(number)
		return m, nil
	})
}

func grib2SQL(producer, discipline, category, number, level int64, levelValue float64) string {
	return encodedParamSelect +
		" FROM param_grib2 g, level_grib2 l, param p, param_unit u, interpolation_method i, fmi_producer f" +
		" WHERE g.param_id = p.id AND p.unit_id = u.id AND p.interpolation_id = i.id AND f.id = g.producer_id" +
		" AND f.id = " + itoa(producer) +
		" AND discipline = " + itoa(discipline) +
		" AND category = " + itoa(category) +
		" AND number = " + itoa(number) +
		levelFilter("g.level_id", "level_value",
			"(g.level_id = l.level_id AND l.grib_level_id = "+itoa(level)+")", levelValue)
}

// grib2TemplateSQL is the WMO template mapping, not tied to a producer.
func grib2TemplateSQL(discipline, category, number int64) string {
	return "SELECT p.id, p.name, p.version, NULL, p.interpolation_id, NULL, NULL, NULL" +
		" FROM param p, param_grib2_template t" +
		" WHERE p.id = t.param_id AND t.discipline = " + itoa(discipline) +
		" AND t.category = " + itoa(category) + " AND t.number = " + itoa(number)
}

// ParameterFromGrib2 maps a GRIB2 discipline, category and number,
// falling back to the WMO template. Keys as ParameterFromGrib1 with
// grib2_discipline, grib2_category and grib2_number.
func (r *Repository) ParameterFromGrib2(ctx context.Context, producer, discipline, category, number, level int64, levelValue float64) (domain.AttributeMap, error) {
	key := grib2Key{Producer: producer, Discipline: discipline, Category: category, Number: number, Level: level, LevelValue: levelValue}
	return r.paramGrib2.Lookup(ctx, key, func(ctx context.Context) (domain.AttributeMap, error) {
		m, err := r.FirstOf(ctx, encodedParamColumns,
			grib2SQL(producer, discipline, category, number, level, levelValue),
			grib2TemplateSQL(discipline, category, number))
		if err != nil || !m.Found() {
			return m, err
		}
		grib2Encoding(m, discipline, category, number)
		return m, nil
	})
}

func grib2Encoding(m domain.AttributeMap, discipline, category, number int64) {
	m["grib2_discipline"] = itoa(discipline)
	m["grib2_category"] = itoa(category)
	m["grib2_number"] = itoa(number)
}

// ParameterFromNetCDF maps a NetCDF variable name. levelID is the database
// level id. Keys as ParameterFromGrib1 with netcdf_name.
func (r *Repository) ParameterFromNetCDF(ctx context.Context, producer int64, name string, levelID int64, levelValue float64) (domain.AttributeMap, error) {
	key := paramNameKey{Producer: producer, Name: name, Level: levelID, LevelValue: levelValue}
	return r.paramNetCDF.Lookup(ctx, key, func(ctx context.Context) (domain.AttributeMap, error) {
		sql := encodedParamSelect +
			" FROM param_netcdf g, param p, param_unit u, interpolation_method i, fmi_producer f" +
			" WHERE g.param_id = p.id AND p.unit_id = u.id AND p.interpolation_id = i.id AND f.id = g.producer_id" +
			" AND f.id = " + itoa(producer) +
			" AND g.netcdf_name = " + db.Quote(name) +
			levelFilter("g.level_id", "g.level_value", "g.level_id = "+itoa(levelID), levelValue)
		m, err := r.QueryOne(ctx, sql, encodedParamColumns...)
		if err != nil || !m.Found() {
			return m, err
		}
		m["netcdf_name"] = name
		return m, nil
	})
}

// ParameterPrecision returns id and precision of a parameter's rounding
// rule.
func (r *Repository) ParameterPrecision(ctx context.Context, name string) (domain.AttributeMap, error) {
	return r.precision.Lookup(ctx, name, func(ctx context.Context) (domain.AttributeMap, error) {
		return r.QueryOne(ctx, "SELECT pp.id, pp.precision FROM param_precision pp, param p"+
			" WHERE p.name = "+db.Quote(name)+" AND p.id = pp.param_id", "id", "precision")
	})
}
