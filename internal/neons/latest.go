package neons

import (
	"context"
	"fmt"
	"strconv"

	"github.com/oriys/fmidb/internal/db"
	"github.com/oriys/fmidb/internal/domain"
)

type datasetKey struct {
	Centre   int64
	Process  int64
	GeomName string
	BaseDate string
}

// LatestTime returns the offset'th newest base date (0 = newest) of refProd
// as YYYYMMDDHH24MI, or "" when there is none. Not cached.
func (r *Repository) LatestTime(ctx context.Context, refProd, geomName string, offset int) (string, error) {
	if offset < 0 {
		return "", fmt.Errorf("neons: negative offset %d", offset)
	}
	rank := strconv.Itoa(offset + 1)
	sql := "SELECT rank, base_date FROM (SELECT to_char(base_date,'YYYYMMDDHH24MI') AS base_date," +
		" row_number() OVER (ORDER BY base_date DESC) AS rank FROM as_grid WHERE model_type = " + db.Quote(refProd) +
		" AND rec_cnt_dset > 0"
	if geomName != "" {
		sql += " AND geom_name = " + db.Quote(geomName)
	}
	sql += " GROUP BY base_date) WHERE rank BETWEEN " + rank + " AND " + rank

	row, err := r.QueryRow(ctx, sql)
	if err != nil || row.Empty() {
		return "", err
	}
	return row.At(1), nil
}

// GridDatasetInfo returns dset_id and table_name of the analysis dataset of
// a grib model on geomName at baseDate.
func (r *Repository) GridDatasetInfo(ctx context.Context, centre, process int64, geomName, baseDate string) (domain.AttributeMap, error) {
	key := datasetKey{Centre: centre, Process: process, GeomName: geomName, BaseDate: baseDate}
	return r.dataset.Lookup(ctx, key, func(ctx context.Context) (domain.AttributeMap, error) {
		sql := "SELECT dset_id, table_name FROM as_grid a, grid_num_model_grib nu, grid_model m, grid_model_name na" +
			" WHERE nu.model_id = " + itoa(process) + " AND nu.ident_id = " + itoa(centre) + " AND m.flag_mod = 0" +
			" AND nu.model_name = na.model_name AND m.model_name = na.model_name AND m.model_type = a.model_type" +
			" AND geom_name = " + db.Quote(geomName) + " AND dset_name = 'AF' AND base_date = " + db.Quote(baseDate)
		return r.QueryOne(ctx, sql, "dset_id", "table_name")
	})
}

// Tables returns the daily point tables of a sequence type overlapping
// [start, end]. Not cached.
func (r *Repository) Tables(ctx context.Context, start, end, producer string) ([]string, error) {
	rows, err := r.QueryRows(ctx, "SELECT tbl_name FROM as_lltbufr WHERE min_dat <= "+db.Quote(end)+
		" AND max_dat >= "+db.Quote(start)+" AND seq_type = "+db.Quote(producer))
	if err != nil {
		return nil, err
	}
	tables := make([]string, 0, len(rows))
	for _, row := range rows {
		tables = append(tables, row.At(0))
	}
	return tables, nil
}
