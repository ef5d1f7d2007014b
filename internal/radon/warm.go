package radon

import (
	"context"
	"fmt"
	"strconv"

	"github.com/oriys/fmidb/internal/domain"
)

// Level types whose values are synthesized on warm-up, per GRIB edition.
type warmLevels struct {
	ground, height, hybrid int64
}

var (
	grib1Levels = warmLevels{ground: 1, height: 105, hybrid: 109}
	grib2Levels = warmLevels{ground: 1, height: 103, hybrid: 105}
)

// heightValues are the heights above ground callers ask for in practice.
var heightValues = []float64{0, 2, 10}

// Producer metadata bounding the hybrid levels of a model.
const (
	MetaFirstHybridLevel = "first hybrid level number"
	MetaLastHybridLevel  = "last hybrid level number"
)

const warmSelect = "SELECT p.id, p.name, p.version, u.name AS unit_name," +
	" p.interpolation_id, i.name AS interpolation_name, g.level_id, g.level_value"

const warmJoins = " JOIN param p ON (g.param_id = p.id)" +
	" JOIN param_unit u ON (p.unit_id = u.id)" +
	" JOIN interpolation_method i ON (p.interpolation_id = i.id)"

// WarmParameterCache loads every grib1 and grib2 mapping of producer in
// two queries. Mappings without a level value are stored for the values
// callers commonly ask for: 0 on the ground, 0, 2 and 10 m above ground and
// the producer's hybrid level range. It runs once per pool and producer and
// never replaces a cached entry. Other slots of the pool see the warmed
// entries only through the shared tier.
func (r *Repository) WarmParameterCache(ctx context.Context, producer int64) error {
	ran, err := r.Warmer().Do(fmt.Sprintf("%s:params:%d", Name, producer), func() error {
		hybrid, err := r.hybridRange(ctx, producer)
		if err != nil {
			return err
		}
		n1, err := r.warmGrib1(ctx, producer, hybrid)
		if err != nil {
			return err
		}
		n2, err := r.warmGrib2(ctx, producer, hybrid)
		if err != nil {
			return err
		}
		r.Log().Info("parameter cache warmed", "producer", producer, "grib1", n1, "grib2", n2)
		return nil
	})
	if err == nil && !ran {
		r.Log().Debug("parameter cache already warm", "producer", producer)
	}
	return err
}

func (r *Repository) hybridRange(ctx context.Context, producer int64) ([]float64, error) {
	first, err := r.ProducerMetaData(ctx, producer, MetaFirstHybridLevel)
	if err != nil {
		return nil, err
	}
	last, err := r.ProducerMetaData(ctx, producer, MetaLastHybridLevel)
	if err != nil {
		return nil, err
	}
	lo, err1 := strconv.Atoi(first)
	hi, err2 := strconv.Atoi(last)
	if err1 != nil || err2 != nil {
		return nil, nil
	}
	if lo > hi {
		lo, hi = hi, lo
	}
	values := make([]float64, 0, hi-lo+1)
	for v := lo; v <= hi; v++ {
		values = append(values, float64(v))
	}
	return values, nil
}

// expand lists the (level type, value) pairs a mapping row stands for. A
// row without a level applies to every synthesized family; a row whose
// level has no type in this edition stands for nothing.
func (l warmLevels) expand(levelID, levelType, levelValue string, hybrid []float64) map[int64][]float64 {
	types := []int64{l.ground, l.height, l.hybrid}
	if levelID != "" && levelType == "" {
		return nil
	}
	if levelType != "" {
		t, err := strconv.ParseInt(levelType, 10, 64)
		if err != nil {
			return nil
		}
		types = []int64{t}
	}
	out := make(map[int64][]float64, len(types))
	for _, t := range types {
		if levelValue != "" {
			if v, err := strconv.ParseFloat(levelValue, 64); err == nil {
				out[t] = []float64{v}
			}
			continue
		}
		switch t {
		case l.ground:
			out[t] = []float64{0}
		case l.height:
			out[t] = heightValues
		case l.hybrid:
			out[t] = hybrid
		}
	}
	return out
}

func (r *Repository) warmGrib1(ctx context.Context, producer int64, hybrid []float64) (int, error) {
	sql := warmSelect + ", g.table_version, g.number, g.timerange_indicator, l.grib_level_id" +
		" FROM param_grib1 g" + warmJoins +
		" LEFT OUTER JOIN level_grib1 l ON (g.level_id = l.level_id AND l.producer_id = g.producer_id)" +
		" WHERE g.producer_id = " + itoa(producer) +
		" ORDER BY g.level_id NULLS LAST, g.level_value NULLS LAST"
	rows, err := r.QueryRows(ctx, sql)
	if err != nil {
		return 0, err
	}
	stored := 0
	for _, row := range rows {
		tv, err1 := strconv.ParseInt(row.At(8), 10, 64)
		number, err2 := strconv.ParseInt(row.At(9), 10, 64)
		tr, err3 := strconv.ParseInt(row.At(10), 10, 64)
		if err1 != nil || err2 != nil || err3 != nil {
			continue
		}
		m := domain.FromRow(row, encodedParamColumns...)
		m["grib1_table_version"] = row.At(8)
		m["grib1_number"] = row.At(9)
		for levelType, values := range grib1Levels.expand(row.At(6), row.At(11), row.At(7), hybrid) {
			for _, v := range values {
				key := grib1Key{Producer: producer, TableVersion: tv, Number: number, TimeRange: tr, Level: levelType, LevelValue: v}
				if r.paramGrib1.Store(ctx, key, m) {
					stored++
				}
			}
		}
	}
	return stored, nil
}

func (r *Repository) warmGrib2(ctx context.Context, producer int64, hybrid []float64) (int, error) {
	sql := warmSelect + ", g.discipline, g.category, g.number, l.grib_level_id" +
		" FROM param_grib2 g" + warmJoins +
		" LEFT OUTER JOIN level_grib2 l ON (g.level_id = l.level_id AND l.producer_id = g.producer_id)" +
		" WHERE g.producer_id = " + itoa(producer) +
		" ORDER BY g.level_id NULLS LAST, g.level_value NULLS LAST"
	rows, err := r.QueryRows(ctx, sql)
	if err != nil {
		return 0, err
	}
	stored := 0
	for _, row := range rows {
		discipline, err1 := strconv.ParseInt(row.At(8), 10, 64)
		category, err2 := strconv.ParseInt(row.At(9), 10, 64)
		number, err3 := strconv.ParseInt(row.At(10), 10, 64)
		if err1 != nil || err2 != nil || err3 != nil {
			continue
		}
		m := domain.FromRow(row, encodedParamColumns...)
		grib2Encoding(m, discipline, category, number)
		for levelType, values := range grib2Levels.expand(row.At(6), row.At(11), row.At(7), hybrid) {
			for _, v := range values {
				key := grib2Key{Producer: producer, Discipline: discipline, Category: category, Number: number, Level: levelType, LevelValue: v}
				if r.paramGrib2.Store(ctx, key, m) {
					stored++
				}
			}
		}
	}
	return stored, nil
}
