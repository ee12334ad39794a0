package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/thisisjab/chquery/config"
	"github.com/thisisjab/chquery/querier/plan"
	"github.com/thisisjab/chquery/source"
)

type queryOptions struct {
	*rootOptions
	Page     int
	PageSize int
}

func newQueryCommand(rootOpts *rootOptions) *cobra.Command {
	opts := &queryOptions{rootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "query <query-file>",
		Short: "Run a query definition and print its rows as JSON lines",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStatement(cmd, opts.rootOptions, args[0], func(ctx context.Context, stmt plan.Statement) error {
				enc := json.NewEncoder(cmd.OutOrStdout())

				if opts.Page != 0 {
					p, err := stmt.Paginate(ctx, opts.Page, opts.PageSize)
					if err != nil {
						return err
					}
					if opts.Format == "json" {
						return enc.Encode(p)
					}
					for _, row := range p.Objects {
						if err := enc.Encode(row); err != nil {
							return err
						}
					}
					_, err = fmt.Fprintf(cmd.ErrOrStderr(), "page %d of %d, %d rows in total\n", p.Number, p.PagesTotal, p.NumberOfObjects)
					return err
				}

				for row, err := range stmt.Iter(ctx) {
					if err != nil {
						return err
					}
					if err := enc.Encode(row); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&opts.Page, "page", 0, "page number to fetch, -1 for the last page")
	cmd.Flags().IntVar(&opts.PageSize, "page-size", 50, "rows per page")

	return cmd
}

func newCountCommand(rootOpts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "count <query-file>",
		Short: "Count the rows matched by a query definition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStatement(cmd, rootOpts, args[0], func(ctx context.Context, stmt plan.Statement) error {
				n, err := stmt.Count(ctx)
				if err != nil {
					return err
				}

				if rootOpts.Format == "json" {
					return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]uint64{"count": n})
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), n)
				return err
			})
		},
	}
}

// withStatement connects the configured storage and runs fn with the
// statement built from the query file.
func withStatement(cmd *cobra.Command, opts *rootOptions, path string, fn func(context.Context, plan.Statement) error) error {
	rt, err := loadRuntime(opts)
	if err != nil {
		return err
	}
	if rt.Storage == nil {
		return fmt.Errorf("no storage is configured")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := connect(ctx, rt); err != nil {
		return err
	}
	defer rt.Storage.Close(context.WithoutCancel(ctx)) //nolint:errcheck

	q, err := source.Load(path)
	if err != nil {
		return err
	}

	stmt, err := plan.Build(q, rt.Models, rt.Executor)
	if err != nil {
		return err
	}

	return fn(ctx, stmt)
}

func connect(ctx context.Context, rt *config.Runtime) error {
	if err := rt.Storage.Connect(ctx); err != nil {
		return fmt.Errorf("cannot connect to storage: %w", err)
	}
	rt.Logger.Debug("connected to storage")
	return nil
}
