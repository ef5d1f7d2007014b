package radon

import (
	"context"
	"fmt"
	"strconv"

	"github.com/oriys/fmidb/internal/db"
)

// LatestTime returns the offset-th most recent analysis time of a producer,
// optionally restricted to a geometry, or "" when there is none. offset 0
// is the latest. Not cached: new analyses arrive while a process runs.
func (r *Repository) LatestTime(ctx context.Context, refProd, geomName string, offset int) (string, error) {
	if offset < 0 {
		return "", fmt.Errorf("radon: negative offset %d", offset)
	}
	sql := "SELECT min_analysis_time::timestamp, max_analysis_time::timestamp, partition_name" +
		" FROM as_grid_v WHERE producer_name = " + db.Quote(refProd) + " AND record_count > 0"
	if geomName != "" {
		sql += " AND geometry_name = " + db.Quote(geomName)
	}
	sql += " GROUP BY min_analysis_time, max_analysis_time, partition_name" +
		" ORDER BY max_analysis_time DESC LIMIT 1 OFFSET " + strconv.Itoa(offset)

	row, err := r.QueryRow(ctx, sql)
	if err != nil || row.Empty() {
		return "", err
	}
	if row.At(0) == row.At(1) {
		// partitioned by analysis time
		return row.At(0), nil
	}
	row, err = r.QueryRow(ctx, "SELECT max(analysis_time) FROM "+row.At(2))
	return row.At(0), err
}
