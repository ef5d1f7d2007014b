// Package radon is the grid and model metadata repository on the
// open-source RDBMS. Attribute names follow the historic contract, which
// also carries the legacy aliases of the enterprise schema (col_cnt,
// ref_prod, ...) so callers can switch repositories without renaming.
package radon

import (
	"strconv"

	"github.com/oriys/fmidb/internal/db"
	"github.com/oriys/fmidb/internal/domain"
	"github.com/oriys/fmidb/internal/pool"
	"github.com/oriys/fmidb/internal/repository"
)

// Name identifies the repository in logs, metrics and shared cache keys.
const Name = "radon"

// Repository resolves radon metadata through per-instance memo tables.
// An instance is used by one goroutine at a time.
type Repository struct {
	*repository.Base

	gribProducer  *repository.Table[gribProducerKey, domain.AttributeMap]
	producer      *repository.Table[int64, domain.AttributeMap]
	producerName  *repository.Table[string, int64]
	producerMeta  *repository.Table[producerMetaKey, string]
	paramNewbase  *repository.Table[newbaseKey, domain.AttributeMap]
	paramDB       *repository.Table[paramNameKey, domain.AttributeMap]
	paramGrib1    *repository.Table[grib1Key, domain.AttributeMap]
	paramGrib2    *repository.Table[grib2Key, domain.AttributeMap]
	paramNetCDF   *repository.Table[paramNameKey, domain.AttributeMap]
	precision     *repository.Table[string, domain.AttributeMap]
	levelName     *repository.Table[string, domain.AttributeMap]
	levelGrib     *repository.Table[levelGribKey, domain.AttributeMap]
	transform     *repository.Table[transformKey, domain.AttributeMap]
	gridGeoms     *repository.Table[gridGeomsKey, []domain.Row]
	geometry      *repository.Table[string, domain.AttributeMap]
	geometryShape *repository.Table[GridShape, domain.AttributeMap]
	station       *repository.Table[stationKey, domain.AttributeMap]
}

// New wraps session.
func New(session db.Session, opts ...repository.Option) *Repository {
	b := repository.NewBase(Name, session, opts...)
	return &Repository{
		Base:          b,
		gribProducer:  repository.NewTable[gribProducerKey, domain.AttributeMap](b, "producer_grib"),
		producer:      repository.NewTable[int64, domain.AttributeMap](b, "producer"),
		producerName:  repository.NewTable[string, int64](b, "producer_name"),
		producerMeta:  repository.NewTable[producerMetaKey, string](b, "producer_meta"),
		paramNewbase:  repository.NewTable[newbaseKey, domain.AttributeMap](b, "param_newbase"),
		paramDB:       repository.NewTable[paramNameKey, domain.AttributeMap](b, "param_db"),
		paramGrib1:    repository.NewTable[grib1Key, domain.AttributeMap](b, "param_grib1"),
		paramGrib2:    repository.NewTable[grib2Key, domain.AttributeMap](b, "param_grib2"),
		paramNetCDF:   repository.NewTable[paramNameKey, domain.AttributeMap](b, "param_netcdf"),
		precision:     repository.NewTable[string, domain.AttributeMap](b, "param_precision"),
		levelName:     repository.NewTable[string, domain.AttributeMap](b, "level_name"),
		levelGrib:     repository.NewTable[levelGribKey, domain.AttributeMap](b, "level_grib"),
		transform:     repository.NewTable[transformKey, domain.AttributeMap](b, "level_transform"),
		gridGeoms:     repository.NewTable[gridGeomsKey, []domain.Row](b, "grid_geoms"),
		geometry:      repository.NewTable[string, domain.AttributeMap](b, "geometry"),
		geometryShape: repository.NewTable[GridShape, domain.AttributeMap](b, "geometry_area"),
		station:       repository.NewTable[stationKey, domain.AttributeMap](b, "station"),
	}
}

// NewPool returns a pool of radon repositories.
func NewPool(s pool.Settings) *pool.Pool[*Repository] {
	return pool.ForDatabase[*Repository](Name, s, New)
}

func itoa(v int64) string { return strconv.FormatInt(v, 10) }

// ftoa renders a level value the way it is compared in SQL.
func ftoa(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
