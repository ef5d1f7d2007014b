package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"text/tabwriter"

	"github.com/oriys/fmidb/internal/cldb"
	"github.com/oriys/fmidb/internal/domain"
	"github.com/oriys/fmidb/internal/neons"
	"github.com/oriys/fmidb/internal/radon"
	"github.com/oriys/fmidb/internal/verif"
	"github.com/spf13/cobra"
)

// lookup borrows a repository of the named database for fn.
func lookup(ctx context.Context, rt *runtime, database string, fn lookupFuncs) error {
	switch database {
	case dbRadon:
		if fn.radon != nil {
			return rt.radon.Do(ctx, func(r *radon.Repository) error { return fn.radon(ctx, r) })
		}
	case dbNeons:
		if fn.neons != nil {
			return rt.neons.Do(ctx, func(r *neons.Repository) error { return fn.neons(ctx, r) })
		}
	case dbCLDB:
		if fn.cldb != nil {
			return rt.cldb.Do(ctx, func(r *cldb.Repository) error { return fn.cldb(ctx, r) })
		}
	case dbVerif:
		if fn.verif != nil {
			return rt.verif.Do(ctx, func(r *verif.Repository) error { return fn.verif(ctx, r) })
		}
	default:
		return fmt.Errorf("unknown database %q (radon, neons, cldb, verif)", database)
	}
	return fmt.Errorf("lookup not available on %s", database)
}

type lookupFuncs struct {
	radon func(context.Context, *radon.Repository) error
	neons func(context.Context, *neons.Repository) error
	cldb  func(context.Context, *cldb.Repository) error
	verif func(context.Context, *verif.Repository) error
}

func producerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "producer <database> <id|name>",
		Short: "Show a producer definition",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer rt.Close(ctx)

			key := args[1]
			id, idErr := strconv.ParseInt(key, 10, 64)
			var m domain.AttributeMap
			err = lookup(ctx, rt, args[0], lookupFuncs{
				radon: func(ctx context.Context, r *radon.Repository) (err error) {
					if idErr == nil {
						m, err = r.ProducerDefinition(ctx, id)
					} else {
						m, err = r.ProducerDefinitionByName(ctx, key)
					}
					return err
				},
				neons: func(ctx context.Context, r *neons.Repository) (err error) {
					if idErr == nil {
						m, err = r.ProducerDefinition(ctx, id)
					} else {
						m, err = r.ProducerDefinitionByName(ctx, key)
					}
					return err
				},
				cldb: func(ctx context.Context, r *cldb.Repository) (err error) {
					if idErr != nil {
						return fmt.Errorf("cldb producers are looked up by id: %w", idErr)
					}
					m, err = r.ProducerDefinition(ctx, id)
					return err
				},
				verif: func(ctx context.Context, r *verif.Repository) (err error) {
					m, err = r.ProducerDefinition(ctx, key)
					return err
				},
			})
			if err != nil {
				return err
			}
			return printAttributes(cmd.OutOrStdout(), m)
		},
	}
}

func geometryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "geometry <radon|neons> <name>",
		Short: "Show a geometry definition",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer rt.Close(ctx)

			var m domain.AttributeMap
			err = lookup(ctx, rt, args[0], lookupFuncs{
				radon: func(ctx context.Context, r *radon.Repository) (err error) {
					m, err = r.GeometryDefinition(ctx, args[1])
					return err
				},
				neons: func(ctx context.Context, r *neons.Repository) (err error) {
					m, err = r.GeometryDefinition(ctx, args[1])
					return err
				},
			})
			if err != nil {
				return err
			}
			return printAttributes(cmd.OutOrStdout(), m)
		},
	}
}

func stationCmd() *cobra.Command {
	var (
		network    string
		producer   int64
		aggressive bool
	)

	cmd := &cobra.Command{
		Use:   "station <database> <id>",
		Short: "Show one station",
		Long:  "Show one station: radon by --network id, neons by WMO number, cldb by --producer and station id, verif by fmisid",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("station id: %w", err)
			}
			ctx := cmd.Context()
			rt, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer rt.Close(ctx)

			var m domain.AttributeMap
			err = lookup(ctx, rt, args[0], lookupFuncs{
				radon: func(ctx context.Context, r *radon.Repository) error {
					n, err := domain.ParseStationNetwork(network)
					if err != nil {
						return err
					}
					m, err = r.StationDefinition(ctx, n, id)
					return err
				},
				neons: func(ctx context.Context, r *neons.Repository) (err error) {
					m, err = r.StationInfo(ctx, id, aggressive)
					return err
				},
				cldb: func(ctx context.Context, r *cldb.Repository) (err error) {
					m, err = r.StationInfo(ctx, producer, id, aggressive)
					return err
				},
				verif: func(ctx context.Context, r *verif.Repository) (err error) {
					m, err = r.StationInfo(ctx, id, aggressive)
					return err
				},
			})
			if err != nil {
				return err
			}
			return printAttributes(cmd.OutOrStdout(), m)
		},
	}

	cmd.Flags().StringVar(&network, "network", domain.NetworkFmiSID.String(), "Station network (radon)")
	cmd.Flags().Int64Var(&producer, "producer", domain.ProducerFinnishStations, "Station producer (cldb)")
	cmd.Flags().BoolVar(&aggressive, "aggressive", false, "Load every station of the network into the cache")
	return cmd
}

func stationsCmd() *cobra.Command {
	var (
		producer int64
		sounding bool
	)

	cmd := &cobra.Command{
		Use:   "stations <neons|cldb|verif> <min-lat> <max-lat> <min-lon> <max-lon>",
		Short: "List stations inside a bounding box",
		Args:  cobra.ExactArgs(5),
		RunE: func(cmd *cobra.Command, args []string) error {
			box, err := parseBox(args[1:])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			rt, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer rt.Close(ctx)

			var list domain.StationList
			err = lookup(ctx, rt, args[0], lookupFuncs{
				neons: func(ctx context.Context, r *neons.Repository) (err error) {
					list, err = r.StationListForArea(ctx, box, sounding)
					return err
				},
				cldb: func(ctx context.Context, r *cldb.Repository) (err error) {
					list, err = r.StationListForArea(ctx, producer, box)
					return err
				},
				verif: func(ctx context.Context, r *verif.Repository) (err error) {
					list, err = r.StationListForArea(ctx, box)
					return err
				},
			})
			if err != nil {
				return err
			}
			return printStations(cmd.OutOrStdout(), list)
		},
	}

	cmd.Flags().Int64Var(&producer, "producer", domain.ProducerFinnishStations, "Station producer (cldb)")
	cmd.Flags().BoolVar(&sounding, "sounding", false, "Only sounding stations (neons)")
	return cmd
}

func latestCmd() *cobra.Command {
	var (
		geometry string
		offset   int
	)

	cmd := &cobra.Command{
		Use:   "latest <radon|neons> <producer>",
		Short: "Show the latest analysis time of a producer",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer rt.Close(ctx)

			var t string
			err = lookup(ctx, rt, args[0], lookupFuncs{
				radon: func(ctx context.Context, r *radon.Repository) (err error) {
					t, err = r.LatestTime(ctx, args[1], geometry, offset)
					return err
				},
				neons: func(ctx context.Context, r *neons.Repository) (err error) {
					t, err = r.LatestTime(ctx, args[1], geometry, offset)
					return err
				},
			})
			if err != nil {
				return err
			}
			if t == "" {
				return fmt.Errorf("no analysis time for %s", args[1])
			}
			fmt.Fprintln(cmd.OutOrStdout(), t)
			return nil
		},
	}

	cmd.Flags().StringVar(&geometry, "geometry", "", "Restrict to a geometry")
	cmd.Flags().IntVar(&offset, "offset", 0, "0 is the latest, 1 the one before and so on")
	return cmd
}

func parseBox(args []string) (domain.BoundingBox, error) {
	var v [4]float64
	for i, a := range args {
		f, err := strconv.ParseFloat(a, 64)
		if err != nil {
			return domain.BoundingBox{}, fmt.Errorf("bounding box: %w", err)
		}
		v[i] = f
	}
	return domain.BoundingBox{MinLat: v[0], MaxLat: v[1], MinLon: v[2], MaxLon: v[3]}, nil
}

func printAttributes(w io.Writer, m domain.AttributeMap) error {
	if !m.Found() {
		return fmt.Errorf("not found")
	}
	if output == "json" {
		return printJSON(w, m)
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, k := range keys {
		fmt.Fprintf(tw, "%s:\t%s\n", k, m[k])
	}
	return tw.Flush()
}

func printStations(w io.Writer, list domain.StationList) error {
	if output == "json" {
		return printJSON(w, list)
	}
	ids := make([]int64, 0, len(list))
	for id := range list {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tLATITUDE\tLONGITUDE")
	for _, id := range ids {
		st := list[id]
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", id, st["station_name"], st["latitude"], st["longitude"])
	}
	return tw.Flush()
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
