package main

import (
	"errors"
	"fmt"

	"github.com/oriys/fmidb/internal/cache"
	"github.com/spf13/cobra"
)

var errNoSharedCache = errors.New("no shared cache configured (set cache.redis_addr or FMIDB_REDIS_ADDR)")

func cacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the shared lookup cache",
	}
	cmd.AddCommand(cacheInvalidateCmd(), cacheFlushCmd())
	return cmd
}

func cacheInvalidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "invalidate <key>...",
		Short: "Drop keys from the shared cache and from every running server",
		Long:  "Drop keys such as radon:producer:230 from Redis and announce them so running servers drop their local copies",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer rt.Close(ctx)
			if rt.remote == nil {
				return errNoSharedCache
			}

			for _, key := range args {
				if err := rt.remote.Delete(ctx, key); err != nil {
					return fmt.Errorf("delete %s: %w", key, err)
				}
				if err := cache.Publish(ctx, rt.redis, key); err != nil {
					return fmt.Errorf("publish %s: %w", key, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Invalidated %s\n", key)
			}
			return nil
		},
	}
}

func cacheFlushCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "flush",
		Short: "Delete every key under the configured prefix",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer rt.Close(ctx)
			if rt.remote == nil {
				return errNoSharedCache
			}

			n, err := rt.remote.Flush(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d keys\n", n)
			return nil
		},
	}
}
