package radon

import (
	"context"
	"fmt"
	"strconv"

	"github.com/oriys/fmidb/internal/db"
	"github.com/oriys/fmidb/internal/domain"
)

// Grid types of the geom table and projection ids.
const (
	GridLatLon          = 1
	GridStereographic   = 2
	GridRotatedLatLon   = 4
	GridLambert         = 5
	GridReducedGaussian = 6
)

var geometryViews = map[int]string{
	GridLatLon:          "geom_latitude_longitude_v",
	GridStereographic:   "geom_stereographic_v",
	GridRotatedLatLon:   "geom_rotated_latitude_longitude_v",
	GridLambert:         "geom_lambert_conformal_v",
	GridReducedGaussian: "geom_reduced_gaussian_v",
}

// GridShape identifies a grid read from a file.
type GridShape struct {
	Ni, Nj   int64
	Lat, Lon float64
	Di, Dj   float64
	// Edition is the GRIB edition whose numbering GridType uses.
	Edition  int
	GridType int
}

type gridGeomsKey struct {
	RefProd, AnalysisTime, Geometry string
}

// GridGeoms lists the geometries holding data of a producer for an
// analysis time. Each row is geometry_id, table_name, id, geom_name.
// An empty geomName matches every geometry.
func (r *Repository) GridGeoms(ctx context.Context, refProd, analysisTime, geomName string) ([]domain.Row, error) {
	key := gridGeomsKey{RefProd: refProd, AnalysisTime: analysisTime, Geometry: geomName}
	return r.gridGeoms.Lookup(ctx, key, func(ctx context.Context) ([]domain.Row, error) {
		at := db.Quote(analysisTime)
		sql := "SELECT g.geometry_id, a.table_name, a.id, g.geom_name" +
			" FROM as_grid_v a, fmi_producer f, geom_v g" +
			" WHERE a.record_count > 0" +
			" AND f.name = " + db.Quote(refProd) +
			" AND a.producer_id = f.id" +
			" AND (min_analysis_time, max_analysis_time) OVERLAPS (" + at + ", " + at + ")" +
			" AND a.geometry_name = g.geom_name"
		if geomName != "" {
			sql += " AND g.geom_name = " + db.Quote(geomName)
		}
		rows, err := r.QueryRows(ctx, sql)
		if rows == nil && err == nil {
			rows = []domain.Row{}
		}
		return rows, err
	})
}

// GeometryDefinition returns the union schema of a named geometry. Every
// family has geom_id, prjn_name, grid_type_id, ni/nj (not reduced
// gaussian), first_point_lat/lon and scanning_mode; regular families also
// carry the legacy aliases col_cnt, row_cnt, pas_longitude, pas_latitude,
// stor_desc, lat_orig, long_orig and geom_parm_1..3.
func (r *Repository) GeometryDefinition(ctx context.Context, name string) (domain.AttributeMap, error) {
	return r.geometry.Lookup(ctx, name, func(ctx context.Context) (domain.AttributeMap, error) {
		head, err := r.QueryOne(ctx, "SELECT id, name, projection_id FROM geom WHERE name = "+db.Quote(name),
			"geom_id", "prjn_name", "grid_type_id")
		if err != nil || !head.Found() {
			return head, err
		}
		gridType, err := strconv.Atoi(head["grid_type_id"])
		if err != nil {
			return nil, fmt.Errorf("%s: geometry %s: grid type %q: %w", Name, name, head["grid_type_id"], err)
		}
		head["prjn_id"] = head["grid_type_id"]

		cols, names := geometryColumns(gridType)
		if cols == "" {
			return domain.AttributeMap{}, nil
		}
		body, err := r.QueryOne(ctx, "SELECT "+cols+" FROM "+geometryViews[gridType]+
			" WHERE geometry_id = "+head["geom_id"], names...)
		if err != nil || !body.Found() {
			return body, err
		}
		for k, v := range body {
			head[k] = v
		}
		legacyAliases(head, gridType)
		return head, nil
	})
}

func geometryColumns(gridType int) (string, []string) {
	common := []string{"ni", "nj", "first_point_lat", "first_point_lon", "di", "dj", "scanning_mode"}
	const commonCols = "ni, nj, first_lat, first_lon, di, dj, scanning_mode"
	switch gridType {
	case GridLatLon:
		return commonCols, common
	case GridStereographic:
		return commonCols + ", orientation", append(common, "orientation")
	case GridRotatedLatLon:
		return commonCols + ", south_pole_lat, south_pole_lon", append(common, "south_pole_lat", "south_pole_lon")
	case GridLambert:
		return commonCols + ", orientation, latin1, latin2, south_pole_lat, south_pole_lon",
			append(common, "orientation", "latin1", "latin2", "south_pole_lat", "south_pole_lon")
	case GridReducedGaussian:
		return "nj, first_lat, first_lon, last_lat, last_lon, n, scanning_mode, points_along_parallels",
			[]string{"nj", "first_point_lat", "first_point_lon", "last_point_lat", "last_point_lon", "n",
				"scanning_mode", "longitudes_along_parallels"}
	default:
		return "", nil
	}
}

func legacyAliases(m domain.AttributeMap, gridType int) {
	switch gridType {
	case GridLambert:
		return
	case GridReducedGaussian:
		m["longitudes_along_parallels"] = domain.TrimBraces(m["longitudes_along_parallels"])
		return
	}
	m["col_cnt"] = m["ni"]
	m["row_cnt"] = m["nj"]
	m["pas_longitude"] = m["di"]
	m["pas_latitude"] = m["dj"]
	m["stor_desc"] = m["scanning_mode"]
	m["lat_orig"] = m["first_point_lat"]
	m["long_orig"] = m["first_point_lon"]
	m["geom_parm_1"] = "0"
	m["geom_parm_2"] = "0"
	m["geom_parm_3"] = "0"
	switch gridType {
	case GridStereographic:
		m["geom_parm_1"] = m["orientation"]
	case GridRotatedLatLon:
		m["geom_parm_1"] = m["south_pole_lat"]
		m["geom_parm_2"] = m["south_pole_lon"]
	}
}

// GeometryFromArea maps a grid shape back to a named geometry. Keys: id,
// name. A projection radon has no view for is ErrUnsupportedProjection.
func (r *Repository) GeometryFromArea(ctx context.Context, shape GridShape) (domain.AttributeMap, error) {
	return r.geometryShape.Lookup(ctx, shape, func(ctx context.Context) (domain.AttributeMap, error) {
		row, err := r.QueryRow(ctx, "SELECT id FROM projection WHERE grib"+strconv.Itoa(shape.Edition)+
			"_number = "+strconv.Itoa(shape.GridType))
		if err != nil || row.Empty() {
			return domain.AttributeMap{}, err
		}
		projection, err := strconv.Atoi(row.At(0))
		view, ok := geometryViews[projection]
		if err != nil || !ok {
			return nil, fmt.Errorf("%w: database projection id %s", domain.ErrUnsupportedProjection, row.At(0))
		}
		sql := "SELECT geometry_id, geometry_name FROM " + view +
			" WHERE nj = " + itoa(shape.Nj) + " AND ni = " + itoa(shape.Ni) +
			" AND first_lon = " + ftoa(shape.Lon) + " AND first_lat = " + ftoa(shape.Lat) +
			" AND di = " + ftoa(shape.Di) + " AND dj = " + ftoa(shape.Dj)
		return r.QueryOne(ctx, sql, "id", "name")
	})
}
