package main

import (
	"fmt"
	"os"
	"slices"

	"github.com/spf13/cobra"
	"github.com/thisisjab/chquery/config"
	"gopkg.in/yaml.v3"
)

type rootOptions struct {
	ConfigPath string
	Format     string // "text" | "json"
}

var validFormats = []string{"text", "json"}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "chq",
		Short: "Compile and run ClickHouse queries from declarative definitions",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(validFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, validFormats)
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "./.config.yaml", "path to config file")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(newCompileCommand(opts))
	cmd.AddCommand(newQueryCommand(opts))
	cmd.AddCommand(newCountCommand(opts))
	cmd.AddCommand(newServeCommand(opts))

	return cmd
}

func loadRuntime(opts *rootOptions) (*config.Runtime, error) {
	fileContent, err := os.ReadFile(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file content: %w", err)
	}

	var cfg config.Config
	if err := yaml.Unmarshal(fileContent, &cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file: %w", err)
	}

	rt, _, err := cfg.Parse()
	if err != nil {
		return nil, fmt.Errorf("cannot parse config file: %w", err)
	}
	return rt, nil
}
