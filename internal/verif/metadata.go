package verif

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/oriys/fmidb/internal/db"
	"github.com/oriys/fmidb/internal/domain"
)

var (
	ErrUnknownStat       = errors.New("verif: unknown estimator")
	ErrUnknownPeriodType = errors.New("verif: unknown period type")
)

// Period types are fixed.
var periodTypes = map[string]int{
	"annual":   1,
	"seasonal": 2,
	"monthly":  3,
}

// statAliases maps names that cannot be used as-is to estimator names.
// FAR is a reserved word elsewhere.
var statAliases = map[string]string{"FARE": "FAR"}

type metadata struct {
	stats   map[string]int
	periods map[string]int
}

// loadMetadata reads estimators and periods once per instance.
func (r *Repository) loadMetadata(ctx context.Context) (*metadata, error) {
	if r.meta != nil {
		return r.meta, nil
	}
	m := &metadata{stats: map[string]int{}, periods: map[string]int{}}

	rows, err := r.QueryRows(ctx, "select id,name from verifng.estimators order by id")
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		id, err := strconv.Atoi(row.At(0))
		if err != nil {
			return nil, fmt.Errorf("verif: estimator id %q: %w", row.At(0), err)
		}
		m.stats[row.At(1)] = id
	}

	rows, err = r.QueryRows(ctx, "select id,period||','||start_date||','||end_date from verifng.periods")
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		id, err := strconv.Atoi(row.At(0))
		if err != nil {
			return nil, fmt.Errorf("verif: period id %q: %w", row.At(0), err)
		}
		m.periods[row.At(1)] = id
	}

	r.meta = m
	r.Log().Debug("verification metadata loaded", "estimators", len(m.stats), "periods", len(m.periods))
	return m, nil
}

// StatID returns the estimator id of name.
func (r *Repository) StatID(ctx context.Context, name string) (int, error) {
	m, err := r.loadMetadata(ctx)
	if err != nil {
		return 0, err
	}
	if alias, ok := statAliases[name]; ok {
		name = alias
	}
	id, ok := m.stats[name]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownStat, name)
	}
	return id, nil
}

// PeriodTypeID returns the id of an annual, seasonal or monthly period type.
func (r *Repository) PeriodTypeID(name string) (int, error) {
	id, ok := periodTypes[name]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownPeriodType, name)
	}
	return id, nil
}

// PeriodID returns the id of period "period,start,end", inserting and
// committing the period when it does not exist yet.
func (r *Repository) PeriodID(ctx context.Context, name string) (int, error) {
	m, err := r.loadMetadata(ctx)
	if err != nil {
		return 0, err
	}
	if id, ok := m.periods[name]; ok {
		return id, nil
	}

	parts := strings.Split(name, ",")
	if len(parts) != 3 {
		return 0, fmt.Errorf("%w: %q is not period,start,end", domain.ErrInvalidPeriod, name)
	}
	period, start, end := db.Quote(parts[0]), db.Quote(parts[1]), db.Quote(parts[2])

	if err := r.Session().Execute(ctx, "insert into verifng.periods (period,start_date,end_date) values ("+
		period+","+start+","+end+")"); err != nil {
		return 0, fmt.Errorf("%s: insert period: %w", Name, err)
	}
	row, err := r.QueryRow(ctx, "SELECT id FROM verifng.periods WHERE period = "+period+
		" AND start_date = "+start+" AND end_date = "+end)
	if err != nil {
		return 0, err
	}
	if row.Empty() {
		return 0, fmt.Errorf("%s: inserted period %q not found", Name, name)
	}
	id, err := strconv.Atoi(row.At(0))
	if err != nil {
		return 0, fmt.Errorf("verif: period id %q: %w", row.At(0), err)
	}
	if err := r.Commit(ctx); err != nil {
		return 0, err
	}
	m.periods[name] = id
	r.Log().Info("period inserted", "period", name, "id", id)
	return id, nil
}
