package neons

import (
	"context"

	"github.com/oriys/fmidb/internal/db"
)

type levelNameKey struct {
	ParmName   string
	LevelID    int64
	InVersion  int64
	OutVersion int64
}

type levelGrib2Key struct {
	LevelID int64
	Process int64
}

// allOthers is the parameter name of generic level cross references.
const allOthers = "ALL_OTHERS"

// GridLevelName converts levelID of code table inVersion to the level type
// parmName uses in code table outVersion. Without a parameter specific or
// generic cross reference the inVersion level type is returned.
func (r *Repository) GridLevelName(ctx context.Context, parmName string, levelID, inVersion, outVersion int64) (string, error) {
	key := levelNameKey{ParmName: parmName, LevelID: levelID, InVersion: inVersion, OutVersion: outVersion}
	return r.levelName.Lookup(ctx, key, func(ctx context.Context) (string, error) {
		row, err := r.QueryRow(ctx, "SELECT lvl_type FROM grid_lvl_grib WHERE lvl_id = "+itoa(levelID)+
			" AND no_vers2 = "+itoa(inVersion))
		if err != nil || row.Empty() {
			return "", err
		}
		name := row.At(0)

		row, err = r.QueryRow(ctx, "SELECT univ_id FROM grid_lvl_xref WHERE lvl_type like "+db.Quote(name))
		if err != nil || row.Empty() {
			return "", err
		}
		univ := row.At(0)

		for _, parm := range []string{parmName, allOthers} {
			row, err = r.QueryRow(ctx, "SELECT lvl_type FROM grid_lvl_xref WHERE parm_name = "+db.Quote(parm)+
				" AND no_vers2 = "+itoa(outVersion)+" AND univ_id = "+univ)
			if err != nil {
				return "", err
			}
			if !row.Empty() {
				return row.At(0), nil
			}
		}
		return name, nil
	})
}

// GridLevelNameForParameter resolves the parameter name of parmID first.
func (r *Repository) GridLevelNameForParameter(ctx context.Context, parmID, levelID, inVersion, outVersion, timeRange, levelType int64) (string, error) {
	name, err := r.GridParameterName(ctx, parmID, inVersion, outVersion, timeRange, levelType)
	if err != nil || name == "" {
		return "", err
	}
	return r.GridLevelName(ctx, name, levelID, inVersion, outVersion)
}

// GridLevelNameForGrib2 maps a grib2 level type of a generating process to
// its neons name, falling back to the wildcard producer.
func (r *Repository) GridLevelNameForGrib2(ctx context.Context, levelID, process int64) (string, error) {
	return r.levelGrib2.Lookup(ctx, levelGrib2Key{LevelID: levelID, Process: process}, func(ctx context.Context) (string, error) {
		row, err := r.FirstRow(ctx,
			"SELECT l.lvltype_name FROM grid_lvltype_grib2 l, grid_num_model_grib g WHERE l.lvltype = "+itoa(levelID)+
				" AND g.model_id = "+itoa(process)+" AND l.producer = g.ident_id",
			"SELECT lvltype_name FROM grid_lvltype_grib2 WHERE lvltype = "+itoa(levelID)+
				" AND producer = "+itoa(wildcard))
		return row.At(0), err
	})
}
