package neons

import (
	"context"
	"fmt"

	"github.com/oriys/fmidb/internal/db"
	"github.com/oriys/fmidb/internal/domain"
)

type gridGeomsKey struct {
	RefProd      string
	AnalysisTime string
	GeomName     string
}

// AreaShape identifies a regular grid by its dimensions, first point and
// increments.
type AreaShape struct {
	Ni, Nj   int64
	Lat, Lon float64
	Di, Dj   float64
}

var geometryColumns = []string{
	"prjn_name", "row_cnt", "col_cnt", "lat_orig", "long_orig", "orig_row_num", "orig_col_num",
	"pas_longitude", "pas_latitude", "geom_parm_1", "geom_parm_2", "geom_parm_3", "stor_desc",
}

var areaGeometryColumns = append(append([]string{}, geometryColumns...), "geom_name")

const geometrySelect = "SELECT prjn_name, row_cnt, col_cnt, lat_orig, long_orig, orig_row_num, orig_col_num," +
	" pas_longitude, pas_latitude, geom_parm_1, geom_parm_2, geom_parm_3, stor_desc"

// GeometryDefinition returns the named grid geometry. prjn_id is always
// present and empty so callers can treat neons and radon alike.
func (r *Repository) GeometryDefinition(ctx context.Context, name string) (domain.AttributeMap, error) {
	return r.geometry.Lookup(ctx, name, func(ctx context.Context) (domain.AttributeMap, error) {
		m, err := r.QueryOne(ctx, geometrySelect+" FROM grid_reg_geom gr, grid_geom gm WHERE gr.geom_name = "+
			db.Quote(name)+" AND gr.geom_name = gm.geom_name", geometryColumns...)
		if err != nil || !m.Found() {
			return m, err
		}
		m["prjn_id"] = ""
		return m, nil
	})
}

// GeometryFromArea finds the geometry matching shape. Coordinates are
// compared at five decimals.
func (r *Repository) GeometryFromArea(ctx context.Context, shape AreaShape) (domain.AttributeMap, error) {
	return r.geometryShape.Lookup(ctx, shape, func(ctx context.Context) (domain.AttributeMap, error) {
		sql := geometrySelect + ", gr.geom_name FROM grid_reg_geom gr, grid_geom gm" +
			" WHERE row_cnt = " + itoa(shape.Nj) + " AND col_cnt = " + itoa(shape.Ni) +
			fmt.Sprintf(" AND lat_orig = %.5f AND long_orig = %.5f AND pas_latitude = %.5f AND pas_longitude = %.5f",
				shape.Lat, shape.Lon, shape.Dj, shape.Di) +
			" AND gr.geom_name = gm.geom_name"
		m, err := r.QueryOne(ctx, sql, areaGeometryColumns...)
		if err != nil || !m.Found() {
			return m, err
		}
		m["prjn_id"] = ""
		return m, nil
	})
}

// GridGeoms returns (geom_name, table_name, dset_id) rows of the datasets of
// refProd at analysisTime. refProd is a LIKE pattern.
func (r *Repository) GridGeoms(ctx context.Context, refProd, analysisTime, geomName string) ([]domain.Row, error) {
	key := gridGeomsKey{RefProd: refProd, AnalysisTime: analysisTime, GeomName: geomName}
	return r.gridGeoms.Lookup(ctx, key, func(ctx context.Context) ([]domain.Row, error) {
		sql := "SELECT geom_name, table_name, dset_id FROM as_grid WHERE rec_cnt_dset > 0" +
			" AND model_type like " + db.Quote(refProd) + " AND base_date = " + db.Quote(analysisTime)
		if geomName != "" {
			sql += " AND geom_name = " + db.Quote(geomName)
		}
		rows, err := r.QueryRows(ctx, sql)
		if err != nil {
			return nil, err
		}
		if rows == nil {
			rows = []domain.Row{}
		}
		return rows, nil
	})
}
