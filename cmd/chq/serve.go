package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/thisisjab/chquery/api"
)

func newServeCommand(rootOpts *rootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := loadRuntime(rootOpts)
			if err != nil {
				return err
			}
			logger := rt.Logger

			// Setup signal handling to catch Ctrl+C (SIGINT) or Terminate (SIGTERM)
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			services := api.Services{Models: rt.Models}
			if rt.Storage != nil {
				if err := connect(ctx, rt); err != nil {
					return err
				}
				defer rt.Storage.Close(context.WithoutCancel(ctx)) //nolint:errcheck
				services.DB = rt.Executor
			} else {
				logger.Warn("no storage is configured, only compilation is available")
			}

			cfg := rt.API
			if addr != "" {
				cfg.Addr = addr
			}

			server, err := api.NewServer(cfg, logger, services)
			if err != nil {
				return err
			}

			if err := server.Serve(ctx); err != nil {
				return err
			}

			logger.Info("server stopped.")
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address, overrides api.addr")

	return cmd
}
