// Package neons is the legacy grid and model metadata repository on the
// enterprise RDBMS. Sessions use the compact date mask; a borrower that
// changes it gets it reset on release.
package neons

import (
	"context"
	"strconv"

	"github.com/oriys/fmidb/internal/db"
	"github.com/oriys/fmidb/internal/domain"
	"github.com/oriys/fmidb/internal/pool"
	"github.com/oriys/fmidb/internal/repository"
	"github.com/oriys/fmidb/internal/rowcodec"
)

const Name = "neons"

const wildcard = domain.WildcardProducer

// Repository resolves neons metadata through per-instance memo tables.
type Repository struct {
	*repository.Base

	maskChanged bool

	dataset       *repository.Table[datasetKey, domain.AttributeMap]
	levelName     *repository.Table[levelNameKey, string]
	levelGrib2    *repository.Table[levelGrib2Key, string]
	paramID       *repository.Table[paramIDKey, int64]
	paramName     *repository.Table[paramNameKey, string]
	paramGrib2    *repository.Table[paramGrib2Key, string]
	grib2Param    *repository.Table[univKey, Grib2Code]
	netcdf        *repository.Table[netcdfKey, string]
	parameter     *repository.Table[univKey, domain.AttributeMap]
	producer      *repository.Table[int64, domain.AttributeMap]
	producerName  *repository.Table[string, int64]
	gridGeoms     *repository.Table[gridGeomsKey, []domain.Row]
	model         *repository.Table[int64, domain.AttributeMap]
	geometry      *repository.Table[string, domain.AttributeMap]
	geometryShape *repository.Table[AreaShape, domain.AttributeMap]
	station       *repository.Table[int64, domain.AttributeMap]
}

// New wraps session.
func New(session db.Session, opts ...repository.Option) *Repository {
	b := repository.NewBase(Name, session, opts...)
	return &Repository{
		Base:          b,
		dataset:       repository.NewTable[datasetKey, domain.AttributeMap](b, "grid_dataset"),
		levelName:     repository.NewTable[levelNameKey, string](b, "grid_level_name"),
		levelGrib2:    repository.NewTable[levelGrib2Key, string](b, "grid_level_grib2"),
		paramID:       repository.NewTable[paramIDKey, int64](b, "grid_param_id"),
		paramName:     repository.NewTable[paramNameKey, string](b, "grid_param_name"),
		paramGrib2:    repository.NewTable[paramGrib2Key, string](b, "grid_param_grib2"),
		grib2Param:    repository.NewTable[univKey, Grib2Code](b, "grib2_param"),
		netcdf:        repository.NewTable[netcdfKey, string](b, "grid_param_nc"),
		parameter:     repository.NewTable[univKey, domain.AttributeMap](b, "parameter"),
		producer:      repository.NewTable[int64, domain.AttributeMap](b, "producer"),
		producerName:  repository.NewTable[string, int64](b, "producer_name"),
		gridGeoms:     repository.NewTable[gridGeomsKey, []domain.Row](b, "grid_geoms"),
		model:         repository.NewTable[int64, domain.AttributeMap](b, "grid_model"),
		geometry:      repository.NewTable[string, domain.AttributeMap](b, "geometry"),
		geometryShape: repository.NewTable[AreaShape, domain.AttributeMap](b, "geometry_area"),
		station:       repository.NewTable[int64, domain.AttributeMap](b, "station"),
	}
}

// NewPool returns a pool of neons repositories.
func NewPool(s pool.Settings) *pool.Pool[*Repository] {
	return pool.ForDatabase[*Repository](Name, s, New)
}

// SetDateMask changes timestamp rendering until the repository is released.
func (r *Repository) SetDateMask(ctx context.Context, mask string) error {
	dm, ok := r.Session().(db.DateMasker)
	if !ok {
		return nil
	}
	if err := dm.SetDateMask(ctx, mask); err != nil {
		return err
	}
	r.maskChanged = true
	return nil
}

// Rollback ends the transaction and restores the default date mask.
func (r *Repository) Rollback(ctx context.Context) error {
	if err := r.Base.Rollback(ctx); err != nil {
		return err
	}
	if !r.maskChanged {
		return nil
	}
	r.maskChanged = false
	return r.Session().(db.DateMasker).SetDateMask(ctx, rowcodec.MaskCompact)
}

func itoa(v int64) string { return strconv.FormatInt(v, 10) }
