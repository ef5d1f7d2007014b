package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/oriys/fmidb/internal/cldb"
	"github.com/oriys/fmidb/internal/domain"
	"github.com/oriys/fmidb/internal/neons"
	"github.com/oriys/fmidb/internal/radon"
	"github.com/oriys/fmidb/internal/verif"
)

var errBadRequest = errors.New("bad request")

func (h *Handler) radonRoutes(r chi.Router) {
	p := h.Pools.Radon
	r.Get("/producers/{id}", func(w http.ResponseWriter, req *http.Request) {
		id := chi.URLParam(req, "id")
		borrow(w, req, p, func(ctx context.Context, repo *radon.Repository) (any, error) {
			if n, err := strconv.ParseInt(id, 10, 64); err == nil {
				return repo.ProducerDefinition(ctx, n)
			}
			return repo.ProducerDefinitionByName(ctx, id)
		})
	})
	r.Get("/producers/{id}/meta/{attribute}", func(w http.ResponseWriter, req *http.Request) {
		id, err := pathInt(req, "id")
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		attr := chi.URLParam(req, "attribute")
		borrow(w, req, p, func(ctx context.Context, repo *radon.Repository) (any, error) {
			v, err := repo.ProducerMetaData(ctx, id, attr)
			return domain.AttributeMap{attr: v}, err
		})
	})
	r.Get("/geometries/{name}", func(w http.ResponseWriter, req *http.Request) {
		name := chi.URLParam(req, "name")
		borrow(w, req, p, func(ctx context.Context, repo *radon.Repository) (any, error) {
			return repo.GeometryDefinition(ctx, name)
		})
	})
	r.Get("/levels/{name}", func(w http.ResponseWriter, req *http.Request) {
		name := chi.URLParam(req, "name")
		borrow(w, req, p, func(ctx context.Context, repo *radon.Repository) (any, error) {
			return repo.LevelFromDatabaseName(ctx, name)
		})
	})
	r.Get("/parameters/{producer}/{name}", func(w http.ResponseWriter, req *http.Request) {
		producer, err := pathInt(req, "producer")
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		levelID, err := queryInt(req, "level_id", -1)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		levelValue, err := queryFloat(req, "level_value", -1)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		name := chi.URLParam(req, "name")
		borrow(w, req, p, func(ctx context.Context, repo *radon.Repository) (any, error) {
			return repo.ParameterFromDatabaseName(ctx, producer, name, levelID, levelValue)
		})
	})
	r.Get("/stations/{network}/{id}", func(w http.ResponseWriter, req *http.Request) {
		network, err := domain.ParseStationNetwork(chi.URLParam(req, "network"))
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		id, err := pathInt(req, "id")
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		borrow(w, req, p, func(ctx context.Context, repo *radon.Repository) (any, error) {
			return repo.StationDefinition(ctx, network, id)
		})
	})
	r.Get("/latest/{producer}", func(w http.ResponseWriter, req *http.Request) {
		producer := chi.URLParam(req, "producer")
		geom := req.URL.Query().Get("geometry")
		offset, err := queryInt(req, "offset", 0)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		borrow(w, req, p, func(ctx context.Context, repo *radon.Repository) (any, error) {
			t, err := repo.LatestTime(ctx, producer, geom, int(offset))
			return latest(producer, t), err
		})
	})
}

func (h *Handler) neonsRoutes(r chi.Router) {
	p := h.Pools.Neons
	r.Get("/producers/{id}", func(w http.ResponseWriter, req *http.Request) {
		id := chi.URLParam(req, "id")
		borrow(w, req, p, func(ctx context.Context, repo *neons.Repository) (any, error) {
			if n, err := strconv.ParseInt(id, 10, 64); err == nil {
				return repo.ProducerDefinition(ctx, n)
			}
			return repo.ProducerDefinitionByName(ctx, id)
		})
	})
	r.Get("/geometries/{name}", func(w http.ResponseWriter, req *http.Request) {
		name := chi.URLParam(req, "name")
		borrow(w, req, p, func(ctx context.Context, repo *neons.Repository) (any, error) {
			return repo.GeometryDefinition(ctx, name)
		})
	})
	r.Get("/parameters/{producer}/{univ}", func(w http.ResponseWriter, req *http.Request) {
		producer, univ, err := pathPair(req, "producer", "univ")
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		borrow(w, req, p, func(ctx context.Context, repo *neons.Repository) (any, error) {
			return repo.ParameterDefinition(ctx, producer, univ)
		})
	})
	r.Get("/stations", func(w http.ResponseWriter, req *http.Request) {
		box, err := queryBox(req)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		sounding := req.URL.Query().Get("sounding") == "true"
		borrow(w, req, p, func(ctx context.Context, repo *neons.Repository) (any, error) {
			return repo.StationListForArea(ctx, box, sounding)
		})
	})
	r.Get("/stations/{wmo}", func(w http.ResponseWriter, req *http.Request) {
		wmo, err := pathInt(req, "wmo")
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		aggressive := req.URL.Query().Get("aggressive") == "true"
		borrow(w, req, p, func(ctx context.Context, repo *neons.Repository) (any, error) {
			return repo.StationInfo(ctx, wmo, aggressive)
		})
	})
	r.Get("/latest/{producer}", func(w http.ResponseWriter, req *http.Request) {
		producer := chi.URLParam(req, "producer")
		geom := req.URL.Query().Get("geometry")
		offset, err := queryInt(req, "offset", 0)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		borrow(w, req, p, func(ctx context.Context, repo *neons.Repository) (any, error) {
			t, err := repo.LatestTime(ctx, producer, geom, int(offset))
			return latest(producer, t), err
		})
	})
}

func (h *Handler) cldbRoutes(r chi.Router) {
	p := h.Pools.CLDB
	r.Get("/producers/{id}", func(w http.ResponseWriter, req *http.Request) {
		id, err := pathInt(req, "id")
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		borrow(w, req, p, func(ctx context.Context, repo *cldb.Repository) (any, error) {
			return repo.ProducerDefinition(ctx, id)
		})
	})
	r.Get("/parameters/{producer}/{univ}", func(w http.ResponseWriter, req *http.Request) {
		producer, univ, err := pathPair(req, "producer", "univ")
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		borrow(w, req, p, func(ctx context.Context, repo *cldb.Repository) (any, error) {
			return repo.ParameterDefinition(ctx, producer, univ)
		})
	})
	r.Get("/stations/{producer}", func(w http.ResponseWriter, req *http.Request) {
		producer, err := pathInt(req, "producer")
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		box, err := queryBox(req)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		borrow(w, req, p, func(ctx context.Context, repo *cldb.Repository) (any, error) {
			return repo.StationListForArea(ctx, producer, box)
		})
	})
	r.Get("/stations/{producer}/{id}", func(w http.ResponseWriter, req *http.Request) {
		producer, id, err := pathPair(req, "producer", "id")
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		aggressive := req.URL.Query().Get("aggressive") == "true"
		borrow(w, req, p, func(ctx context.Context, repo *cldb.Repository) (any, error) {
			return repo.StationInfo(ctx, producer, id, aggressive)
		})
	})
}

func (h *Handler) verifRoutes(r chi.Router) {
	p := h.Pools.Verif
	r.Get("/producers/{name}", func(w http.ResponseWriter, req *http.Request) {
		name := chi.URLParam(req, "name")
		borrow(w, req, p, func(ctx context.Context, repo *verif.Repository) (any, error) {
			return repo.ProducerDefinition(ctx, name)
		})
	})
	r.Get("/stations", func(w http.ResponseWriter, req *http.Request) {
		box, err := queryBox(req)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		borrow(w, req, p, func(ctx context.Context, repo *verif.Repository) (any, error) {
			return repo.StationListForArea(ctx, box)
		})
	})
	r.Get("/stations/{fmisid}", func(w http.ResponseWriter, req *http.Request) {
		id, err := pathInt(req, "fmisid")
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		borrow(w, req, p, func(ctx context.Context, repo *verif.Repository) (any, error) {
			return repo.StationInfo(ctx, id, false)
		})
	})
	r.Get("/stats/{name}", func(w http.ResponseWriter, req *http.Request) {
		name := chi.URLParam(req, "name")
		borrow(w, req, p, func(ctx context.Context, repo *verif.Repository) (any, error) {
			id, err := repo.StatID(ctx, name)
			if err != nil {
				return nil, err
			}
			return map[string]any{"name": name, "id": id}, nil
		})
	})
}

// latest renders a LatestTime result. An empty time is reported as not
// found.
func latest(producer, t string) domain.AttributeMap {
	if t == "" {
		return domain.AttributeMap{}
	}
	return domain.AttributeMap{"producer": producer, "analysis_time": t}
}

func pathInt(r *http.Request, name string) (int64, error) {
	v, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", errBadRequest, name)
	}
	return v, nil
}

func pathPair(r *http.Request, a, b string) (int64, int64, error) {
	x, err := pathInt(r, a)
	if err != nil {
		return 0, 0, err
	}
	y, err := pathInt(r, b)
	if err != nil {
		return 0, 0, err
	}
	return x, y, nil
}

func queryInt(r *http.Request, name string, def int64) (int64, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return def, nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", errBadRequest, name)
	}
	return v, nil
}

func queryFloat(r *http.Request, name string, def float64) (float64, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be a number", errBadRequest, name)
	}
	return v, nil
}

// queryBox reads min_lat, max_lat, min_lon and max_lon. All four are
// required.
func queryBox(r *http.Request) (domain.BoundingBox, error) {
	var box domain.BoundingBox
	for _, f := range []struct {
		name string
		dst  *float64
	}{
		{"min_lat", &box.MinLat},
		{"max_lat", &box.MaxLat},
		{"min_lon", &box.MinLon},
		{"max_lon", &box.MaxLon},
	} {
		s := r.URL.Query().Get(f.name)
		if s == "" {
			return box, fmt.Errorf("%w: %s is required", errBadRequest, f.name)
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return box, fmt.Errorf("%w: %s must be a number", errBadRequest, f.name)
		}
		*f.dst = v
	}
	return box, nil
}
