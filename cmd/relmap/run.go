package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/coregx/relmap/internal/logger"
	"github.com/coregx/relmap/internal/materialize"
	"github.com/coregx/relmap/internal/meta"
	"github.com/coregx/relmap/internal/repository"
	"github.com/coregx/relmap/internal/security"
	"github.com/coregx/relmap/internal/statement"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Env       []string
	Sensitive []string
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <operation> [arg...]",
		Short: "Execute an operation and print its results",
		Long: `Execute an operation against the configured database and print one JSON
object per result. Relations print as the related id.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOperation(cmd.Context(), opts, cmd, args[0], args[1:])
		},
	}

	cmd.Flags().StringArrayVarP(&opts.Env, "env", "e", nil, "default-value environment entry key=value (repeatable)")
	cmd.Flags().StringSliceVar(&opts.Sensitive, "sensitive", nil, "extra column names masked in logs")

	return cmd
}

func runOperation(ctx context.Context, opts *RunOptions, cmd *cobra.Command, name string, args []string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := opts.Config.RequireDSN(); err != nil {
		return err
	}
	env, err := parseEnv(opts.Env)
	if err != nil {
		return err
	}
	reg, set, err := opts.load()
	if err != nil {
		return err
	}

	db, err := sql.Open(opts.Config.DriverName(), opts.Config.DSN)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() { _ = db.Close() }()

	sensitive := append(append([]string{}, logger.DefaultSensitiveFields...), opts.Sensitive...)
	runner := statement.NewRunner(db, opts.dialect(),
		statement.WithLogger(opts.Logger),
		statement.WithSanitizer(logger.NewSanitizer(sensitive)),
		statement.WithStmtCacheCapacity(opts.Config.StmtCacheCapacity),
		statement.WithValidator(security.NewValidator()),
	)
	defer func() { _ = runner.Close() }()

	repo := repository.New(reg, runner,
		repository.WithOperations(set),
		repository.WithLogger(opts.Logger),
	)
	results, err := repo.Query(ctx, name, nil, parseArgs(args), env)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	enc := json.NewEncoder(out)
	if isTerminal(out) {
		enc.SetIndent("", "  ")
	}
	for _, v := range results {
		if err := enc.Encode(printable(v)); err != nil {
			return err
		}
	}
	return nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && isatty.IsTerminal(f.Fd())
}

// printable flattens materialized values for JSON output: objects merge
// their dynamic attributes and references print as their id.
func printable(v any) any {
	switch val := v.(type) {
	case *materialize.Object:
		out := printable(val.Value)
		if rec, ok := out.(map[string]any); ok {
			for k, dv := range val.Dynamic {
				rec[k] = printable(dv)
			}
		}
		return out
	case *materialize.Ref:
		return val.ID
	case meta.Record:
		out := make(map[string]any, len(val))
		for k, fv := range val {
			out[k] = printable(fv)
		}
		return out
	}
	return v
}
