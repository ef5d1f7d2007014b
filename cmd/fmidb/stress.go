package main

import (
	"context"
	"fmt"
	"sync/atomic"
	"text/tabwriter"
	"time"

	"github.com/oriys/fmidb/internal/cldb"
	"github.com/oriys/fmidb/internal/logging"
	"github.com/oriys/fmidb/internal/metrics"
	"github.com/oriys/fmidb/internal/neons"
	"github.com/oriys/fmidb/internal/pool"
	"github.com/oriys/fmidb/internal/radon"
	"github.com/oriys/fmidb/internal/verif"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func stressCmd() *cobra.Command {
	var (
		database   string
		workers    int
		iterations int
		producer   int64
		hold       time.Duration
	)

	cmd := &cobra.Command{
		Use:   "stress",
		Short: "Exercise a pool with concurrent lookups",
		Long:  "Run workers that repeatedly borrow a repository, look up a producer and release it, then report pool and cache counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer rt.Close(ctx)

			var (
				once  func(ctx context.Context) error
				stats func() pool.Stats
			)
			switch database {
			case dbRadon:
				once = cycle(rt.radon, hold, func(ctx context.Context, r *radon.Repository) error {
					_, err := r.ProducerDefinition(ctx, producer)
					return err
				})
				stats = rt.radon.Stats
			case dbNeons:
				once = cycle(rt.neons, hold, func(ctx context.Context, r *neons.Repository) error {
					_, err := r.ProducerDefinition(ctx, producer)
					return err
				})
				stats = rt.neons.Stats
			case dbCLDB:
				once = cycle(rt.cldb, hold, func(ctx context.Context, r *cldb.Repository) error {
					_, err := r.ProducerDefinition(ctx, producer)
					return err
				})
				stats = rt.cldb.Stats
			case dbVerif:
				once = cycle(rt.verif, hold, func(ctx context.Context, r *verif.Repository) error {
					_, err := r.StationInfo(ctx, producer, false)
					return err
				})
				stats = rt.verif.Stats
			default:
				return fmt.Errorf("unknown database %q (radon, neons, cldb, verif)", database)
			}

			var done atomic.Int64
			start := time.Now()
			g, gctx := errgroup.WithContext(ctx)
			for w := 0; w < workers; w++ {
				g.Go(func() error {
					for i := 0; i < iterations; i++ {
						if err := once(gctx); err != nil {
							return err
						}
						done.Add(1)
					}
					return nil
				})
			}
			err = g.Wait()
			elapsed := time.Since(start)
			if err != nil {
				logging.Op().Error("stress run failed", "database", database, "completed", done.Load(), "error", err)
			}

			snap := metrics.Global().Snapshot()
			st := stats()
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintf(tw, "Lookups:\t%d\n", done.Load())
			fmt.Fprintf(tw, "Elapsed:\t%s\n", elapsed.Round(time.Millisecond))
			if secs := elapsed.Seconds(); secs > 0 {
				fmt.Fprintf(tw, "Rate:\t%.1f/s\n", float64(done.Load())/secs)
			}
			fmt.Fprintf(tw, "Slots:\t%d (%d idle, %d uninitialized)\n", st.Capacity, st.Idle, st.Uninitialized)
			fmt.Fprintf(tw, "Cache:\t%v\n", snap["cache"])
			fmt.Fprintf(tw, "Pool:\t%v\n", snap["pool"])
			fmt.Fprintf(tw, "Statements:\t%v\n", snap["statements"])
			tw.Flush()
			return err
		},
	}

	cmd.Flags().StringVarP(&database, "database", "d", dbRadon, "Database whose pool is exercised")
	cmd.Flags().IntVarP(&workers, "workers", "w", 8, "Concurrent workers")
	cmd.Flags().IntVarP(&iterations, "iterations", "n", 100, "Lookups per worker")
	cmd.Flags().Int64Var(&producer, "producer", 1, "Producer (or fmisid for verif) looked up")
	cmd.Flags().DurationVar(&hold, "hold", 0, "Keep each repository borrowed this long")
	return cmd
}

// cycle returns one borrow, lookup and release round on p.
func cycle[R pool.Resource](p *pool.Pool[R], hold time.Duration, fn func(context.Context, R) error) func(context.Context) error {
	return func(ctx context.Context) error {
		return p.Do(ctx, func(r R) error {
			if err := fn(ctx, r); err != nil {
				return err
			}
			if hold > 0 {
				time.Sleep(hold)
			}
			return nil
		})
	}
}
