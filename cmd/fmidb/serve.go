package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/oriys/fmidb/internal/api"
	"github.com/oriys/fmidb/internal/cache"
	"github.com/oriys/fmidb/internal/logging"
	"github.com/oriys/fmidb/internal/metrics"
	"github.com/oriys/fmidb/internal/radon"
	"github.com/spf13/cobra"
)

func serveCmd() *cobra.Command {
	var (
		listenAddr string
		timeout    time.Duration
		warm       []int64
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the lookup API",
		Long:  "Serve metadata lookups, pool statistics and Prometheus metrics over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			rt, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer rt.Close(context.Background())

			for _, producer := range warm {
				err := rt.radon.Do(ctx, func(r *radon.Repository) error {
					return r.WarmParameterCache(ctx, producer)
				})
				if err != nil {
					logging.Op().Warn("parameter warm-up failed", "producer", producer, "error", err)
				}
			}

			if rt.redis != nil {
				inv := cache.NewInvalidator(rt.local, rt.redis)
				defer inv.Close()
				go func() {
					if err := inv.Start(ctx, nil); err != nil {
						logging.Op().Warn("cache invalidation listener stopped", "error", err)
					}
				}()
			}

			handler := &api.Handler{
				Pools: api.Pools{
					Radon: rt.radon,
					Neons: rt.neons,
					CLDB:  rt.cldb,
					Verif: rt.verif,
				},
				Shared:  rt.shared,
				Timeout: timeout,
			}
			servers := []*http.Server{{Addr: listenAddr, Handler: handler.Router()}}
			if addr := rt.cfg.Metrics.Addr; addr != "" && addr != listenAddr {
				mux := http.NewServeMux()
				mux.Handle("/metrics", metrics.Handler())
				servers = append(servers, &http.Server{Addr: addr, Handler: mux})
			}

			errCh := make(chan error, len(servers))
			for _, srv := range servers {
				go func(srv *http.Server) {
					logging.Op().Info("fmidb server started", "addr", srv.Addr)
					if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
						errCh <- err
					}
				}(srv)
			}

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

			select {
			case sig := <-sigCh:
				logging.Op().Info("shutdown signal received", "signal", sig.String())
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				for _, srv := range servers {
					if err := srv.Shutdown(shutdownCtx); err != nil {
						return fmt.Errorf("shutdown fmidb: %w", err)
					}
				}
				return nil
			case err := <-errCh:
				return fmt.Errorf("fmidb server error: %w", err)
			}
		},
	}

	cmd.Flags().StringVar(&listenAddr, "addr", ":8080", "Listen address")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Per request timeout")
	cmd.Flags().Int64SliceVar(&warm, "warm", nil, "Radon producers whose parameter mappings are loaded at start-up")
	return cmd
}
