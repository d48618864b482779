package main

import (
	"github.com/spf13/cobra"

	"github.com/coregx/relmap/internal/compiler"
	"github.com/coregx/relmap/internal/config"
	"github.com/coregx/relmap/internal/dialects"
	"github.com/coregx/relmap/internal/logger"
	"github.com/coregx/relmap/internal/meta"
	"github.com/coregx/relmap/internal/operation"
)

// RootOptions holds global flags and the configuration resolved from them.
type RootOptions struct {
	ConfigPath string
	// Flags carries command-line values overriding the configuration file.
	Flags config.Config

	Config *config.Config
	Logger logger.Logger
}

// NewRootCommand creates the root command of the relmap CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "relmap",
		Short: "Compile and run mapped entity queries",
		Long: `relmap compiles declarative operations over an entity model into SQL.

The entity model and the operations are YAML files; connection and logging
settings come from relmap.toml, overridden by flags.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.resolve(cmd)
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.ConfigPath, "config", "c", "", "configuration file (default "+config.DefaultFile+" if present)")
	flags.StringVar(&opts.Flags.Dialect, "dialect", "", "SQL dialect (postgres|mysql|sqlite)")
	flags.StringVar(&opts.Flags.Driver, "driver", "", "database/sql driver name")
	flags.StringVar(&opts.Flags.DSN, "dsn", "", "data source name")
	flags.StringVar(&opts.Flags.Model, "model", "", "entity model file")
	flags.StringVar(&opts.Flags.Operations, "operations", "", "operation descriptor file")
	flags.StringVar(&opts.Flags.LogLevel, "log-level", "", "log level (debug|info|warn|error)")
	flags.IntVar(&opts.Flags.StmtCacheCapacity, "stmt-cache", 0, "prepared statement cache capacity")

	cmd.AddCommand(NewExplainCommand(opts))
	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewListCommand(opts))

	return cmd
}

func (o *RootOptions) resolve(cmd *cobra.Command) error {
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return err
	}
	cfg.Merge(o.Flags)
	if err := cfg.Validate(); err != nil {
		return err
	}

	l, err := logger.New(cmd.ErrOrStderr(), cfg.LogLevel)
	if err != nil {
		return err
	}
	o.Config, o.Logger = cfg, l
	return nil
}

// load reads the entity model and compiles the operation set.
func (o *RootOptions) load() (*meta.Registry, *operation.Set, error) {
	reg, err := meta.LoadFile(o.Config.Model)
	if err != nil {
		return nil, nil, err
	}
	set := operation.NewSet(reg, compiler.WithLogger(o.Logger))
	if err := set.LoadFile(o.Config.Operations); err != nil {
		return nil, nil, err
	}
	return reg, set, nil
}

func (o *RootOptions) dialect() dialects.Dialect {
	return dialects.GetDialect(o.Config.Dialect)
}
