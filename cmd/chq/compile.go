package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/thisisjab/chquery/querier/ast"
	"github.com/thisisjab/chquery/querier/plan"
	"github.com/thisisjab/chquery/schema"
	"github.com/thisisjab/chquery/source"
)

type compileOptions struct {
	*rootOptions
	Watch bool
}

type compiled struct {
	SQL        string `json:"sql"`
	Conditions string `json:"conditions"`
}

func newCompileCommand(rootOpts *rootOptions) *cobra.Command {
	opts := &compileOptions{rootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <query-file>",
		Short: "Print the SQL of a query definition",
		Long: `Compile a YAML or JSON query definition to ClickHouse SQL.

With --watch the file is compiled again every time it changes, until the
command is interrupted. Compilation errors are reported without exiting.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := loadRuntime(opts.rootOptions)
			if err != nil {
				return err
			}

			if !opts.Watch {
				q, err := source.Load(args[0])
				if err != nil {
					return err
				}
				return printCompiled(cmd.OutOrStdout(), opts.Format, q, rt.Models)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return watch(ctx, cmd, opts.Format, source.NewFileQuerySource(rt.Logger, args[0]), rt.Models)
		},
	}

	cmd.Flags().BoolVarP(&opts.Watch, "watch", "w", false, "recompile when the file changes")

	return cmd
}

func compile(q *ast.Query, models *schema.Registry) (compiled, error) {
	stmt, err := plan.Build(q, models, nil)
	if err != nil {
		return compiled{}, err
	}

	sql, err := stmt.SQL()
	if err != nil {
		return compiled{}, err
	}
	conditions, err := stmt.ConditionsSQL()
	if err != nil {
		return compiled{}, err
	}

	return compiled{SQL: sql, Conditions: conditions}, nil
}

func printCompiled(w io.Writer, format string, q *ast.Query, models *schema.Registry) error {
	c, err := compile(q, models)
	if err != nil {
		return err
	}

	if format == "json" {
		return json.NewEncoder(w).Encode(c)
	}
	_, err = fmt.Fprintln(w, c.SQL)
	return err
}

func watch(ctx context.Context, cmd *cobra.Command, format string, src source.QuerySource, models *schema.Registry) error {
	updates := make(chan source.Update)
	errs := make(chan error, 1)

	go func() {
		errs <- src.Provide(ctx, updates)
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case err := <-errs:
			if ctx.Err() != nil {
				return nil
			}
			return err

		case u := <-updates:
			err := u.Err
			if err == nil {
				err = printCompiled(cmd.OutOrStdout(), format, u.Query, models)
			}
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", src.Name(), err)
			}
		}
	}
}
