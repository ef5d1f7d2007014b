package neons

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/oriys/fmidb/internal/db"
	"github.com/oriys/fmidb/internal/domain"
)

type paramIDKey struct {
	Version int64
	Name    string
}

type paramNameKey struct {
	ParmID     int64
	InVersion  int64
	OutVersion int64
	TimeRange  int64
	LevelType  int64
}

type paramGrib2Key struct {
	Param, Category, Discipline, Process int64
}

type univKey struct {
	Producer int64
	Univ     int64
}

type netcdfKey struct {
	Producer int64
	Name     string
}

// Grib2Code is a grib2 (category, number) pair. Both are -1 when unknown.
type Grib2Code struct {
	Category int
	Number   int
}

// Found reports whether the code resolved.
func (c Grib2Code) Found() bool { return c.Category >= 0 && c.Number >= 0 }

var unknownGrib2 = Grib2Code{Category: -1, Number: -1}

// GridParameterID returns the parm_id of name in code table version, or -1.
func (r *Repository) GridParameterID(ctx context.Context, version int64, name string) (int64, error) {
	return r.paramID.Lookup(ctx, paramIDKey{Version: version, Name: name}, func(ctx context.Context) (int64, error) {
		row, err := r.QueryRow(ctx, "SELECT parm_id FROM grid_param_grib WHERE no_vers = "+itoa(version)+
			" AND parm_name = "+db.Quote(name))
		if err != nil {
			return 0, err
		}
		if row.Empty() {
			return -1, nil
		}
		return strconv.ParseInt(row.At(0), 10, 64)
	})
}

// GridParameterName converts parmID of code table inVersion to a parameter
// name in outVersion. Point and previ producers of outVersion get the
// underscored name.
func (r *Repository) GridParameterName(ctx context.Context, parmID, inVersion, outVersion, timeRange, levelType int64) (string, error) {
	if inVersion != outVersion && outVersion <= 0 {
		return "", fmt.Errorf("neons: invalid output code table version %d", outVersion)
	}
	key := paramNameKey{ParmID: parmID, InVersion: inVersion, OutVersion: outVersion, TimeRange: timeRange, LevelType: levelType}
	return r.paramName.Lookup(ctx, key, func(ctx context.Context) (string, error) {
		var sql string
		if inVersion != outVersion {
			sql = "SELECT x2.parm_name FROM grid_param_grib g1, grid_param_xref x1, grid_param_xref x2" +
				" WHERE g1.parm_id = " + itoa(parmID) + " AND g1.no_vers = " + itoa(inVersion) +
				" AND g1.parm_name = x1.parm_name AND x1.no_vers = " + itoa(inVersion) +
				" AND x1.univ_id = " + itoa(parmID) +
				" AND x2.no_vers = " + itoa(outVersion) + " AND x1.univ_id = x2.univ_id"
		} else {
			sql = "SELECT parm_name FROM grid_param_grib WHERE parm_id = " + itoa(parmID) +
				" AND no_vers = " + itoa(inVersion) + " AND timerange_ind = " + itoa(timeRange) +
				" AND (lvl_type IS NULL OR lvl_type = " + itoa(levelType) + ") ORDER BY lvl_type NULLS LAST"
		}
		row, err := r.QueryRow(ctx, sql)
		if err != nil || row.Empty() {
			return "", err
		}
		name := row.At(0)

		// Code tables shared by several producer classes resolve to the
		// highest class.
		row, err = r.QueryRow(ctx, "SELECT max(producer_class) FROM fmi_producers WHERE no_vers = "+itoa(outVersion))
		if err != nil {
			return "", err
		}
		if c := row.At(0); c == strconv.Itoa(ClassPoint) || c == strconv.Itoa(ClassPrevi) {
			name = strings.Replace(name, "-", "_", 1)
		}
		return name, nil
	})
}

// GridParameterNameForGrib2 maps a grib2 parameter of a generating process
// to its neons name, falling back to the wildcard producer.
func (r *Repository) GridParameterNameForGrib2(ctx context.Context, param, category, discipline, process int64) (string, error) {
	key := paramGrib2Key{Param: param, Category: category, Discipline: discipline, Process: process}
	return r.paramGrib2.Lookup(ctx, key, func(ctx context.Context) (string, error) {
		row, err := r.FirstRow(ctx,
			"SELECT g.parm_name FROM grid_param_grib2 g, grid_num_model_grib gg WHERE discipline = "+itoa(discipline)+
				" AND g.producer = gg.ident_id AND g.category = "+itoa(category)+
				" AND gg.model_id = "+itoa(process)+" AND g.param = "+itoa(param),
			"SELECT parm_name FROM grid_param_grib2 WHERE discipline = "+itoa(discipline)+
				" AND category = "+itoa(category)+" AND producer = "+itoa(wildcard)+" AND param = "+itoa(param))
		return row.At(0), err
	})
}

// Grib2Parameter returns the grib2 code of universal parameter univ for
// producer. Producer specific rows sort before wildcard ones.
func (r *Repository) Grib2Parameter(ctx context.Context, producer, univ int64) (Grib2Code, error) {
	return r.grib2Param.Lookup(ctx, univKey{Producer: producer, Univ: univ}, func(ctx context.Context) (Grib2Code, error) {
		row, err := r.QueryRow(ctx, "SELECT g.parm_name FROM grid_param_xref g, fmi_producers f WHERE g.univ_id = "+
			itoa(univ)+" AND f.no_vers = g.no_vers AND f.producer_id = "+itoa(producer))
		if err != nil || row.Empty() {
			return unknownGrib2, err
		}
		row, err = r.QueryRow(ctx, "SELECT category, param FROM grid_param_grib2 WHERE parm_name = "+db.Quote(row.At(0))+
			" AND (producer = "+itoa(wildcard)+" OR producer = (SELECT ident_id FROM grid_num_model_grib g, fmi_producers f, grid_model m"+
			" WHERE f.producer_id = "+itoa(producer)+" AND f.ref_prod = m.model_type AND m.model_name = g.model_name))"+
			" ORDER BY producer")
		if err != nil || row.Empty() {
			return unknownGrib2, err
		}
		category, err := strconv.Atoi(row.At(0))
		if err != nil {
			return unknownGrib2, err
		}
		number, err := strconv.Atoi(row.At(1))
		if err != nil {
			return unknownGrib2, err
		}
		return Grib2Code{Category: category, Number: number}, nil
	})
}

// GribParameterNameFromNetCDF maps a netcdf variable name of producer to
// the neons parameter name.
func (r *Repository) GribParameterNameFromNetCDF(ctx context.Context, producer int64, ncName string) (string, error) {
	return r.netcdf.Lookup(ctx, netcdfKey{Producer: producer, Name: ncName}, func(ctx context.Context) (string, error) {
		row, err := r.QueryRow(ctx, "SELECT producer_id, parm_name, nc_name FROM grid_param_nc WHERE nc_name = "+
			db.Quote(ncName)+" AND producer_id = "+itoa(producer))
		return row.At(1), err
	})
}

var parameterColumns = []string{
	"parm_name", "base", "scale", "unit_name", "parm_desc", "unit_desc", "col_name", "univ_id",
}

// Sounding producers have no opened point columns.
var uncheckedProducers = map[int64]bool{1005: true, 1032: true, 1034: true}

// climateDBClass producers carry no table descriptions.
const climateDBClass = "11"

// ParameterDefinition returns the universal parameter univ as stored for
// producer. For point and previ producers the parameter must also exist as
// a column of the producer's sequence type, otherwise nothing is found.
func (r *Repository) ParameterDefinition(ctx context.Context, producer, univ int64) (domain.AttributeMap, error) {
	return r.parameter.Lookup(ctx, univKey{Producer: producer, Univ: univ}, func(ctx context.Context) (domain.AttributeMap, error) {
		prod, err := r.ProducerDefinition(ctx, producer)
		if err != nil || !prod.Found() {
			return domain.AttributeMap{}, err
		}
		m, err := r.QueryOne(ctx, "SELECT x.parm_name, x.base, x.scale, u.unit_name,"+
			" nvl(g.parm_desc,'No Description') AS parm_desc, nvl(u.unit_desc,'No Description') AS unit_desc,"+
			" replace(x.parm_name,'-','_') AS col_name, x.univ_id"+
			" FROM grid_param g, grid_unit u, grid_param_xref x"+
			" WHERE u.unit_id = g.unit_id AND x.parm_name = g.parm_name"+
			" AND x.univ_id = "+itoa(univ)+" AND x.no_vers = "+prod["no_vers"], parameterColumns...)
		if err != nil || !m.Found() {
			return m, err
		}

		var check string
		switch prod["producer_class"] {
		case strconv.Itoa(ClassPoint):
			if prod["dbclass_id"] == climateDBClass || uncheckedProducers[producer] {
				break
			}
			check = "SELECT 1 FROM lltbufr_seq_col WHERE col_name = replace(" + db.Quote(m["parm_name"]) +
				",'-','_') AND seq_type = " + db.Quote(prod["seq_type_prfx"])
		case strconv.Itoa(ClassPrevi):
			check = "SELECT 1 FROM previ_col WHERE col_name = replace(" + db.Quote(m["parm_name"]) +
				",'-','_') AND previ_type = " + db.Quote(prod["seq_type_prfx"])
		}
		if check == "" {
			return m, nil
		}
		row, err := r.QueryRow(ctx, check)
		if err != nil {
			return nil, err
		}
		if row.Empty() {
			return domain.AttributeMap{}, nil
		}
		return m, nil
	})
}

// ParameterDefinitionByName resolves parmName to a universal id in the
// producer's code table.
func (r *Repository) ParameterDefinitionByName(ctx context.Context, producer int64, parmName string) (domain.AttributeMap, error) {
	prod, err := r.ProducerDefinition(ctx, producer)
	if err != nil || !prod.Found() {
		return domain.AttributeMap{}, err
	}
	row, err := r.QueryRow(ctx, "SELECT univ_id FROM grid_param_xref WHERE no_vers = "+prod["no_vers"]+
		" AND parm_name = "+db.Quote(parmName))
	if err != nil || row.Empty() {
		return domain.AttributeMap{}, err
	}
	univ, err := strconv.ParseInt(row.At(0), 10, 64)
	if err != nil {
		return nil, err
	}
	return r.ParameterDefinition(ctx, producer, univ)
}
