package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/coregx/relmap/internal/analyzer"
	"github.com/coregx/relmap/internal/statement"
)

// ExplainOptions holds flags for the explain command.
type ExplainOptions struct {
	*RootOptions
	Env     []string
	Offset  int
	Plan    bool
	Analyze bool
}

// NewExplainCommand creates the explain command.
func NewExplainCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExplainOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "explain <operation> [arg...]",
		Short: "Print the SQL an operation binds to",
		Long: `Bind an operation with the given arguments and print the rendered
statement without touching a database. Conditions whose arguments are null
are dropped exactly as they would be at execution.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExplain(cmd.Context(), opts, cmd, args[0], args[1:])
		},
	}

	cmd.Flags().StringArrayVarP(&opts.Env, "env", "e", nil, "default-value environment entry key=value (repeatable)")
	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "row offset, applied with the operation limit")
	cmd.Flags().BoolVar(&opts.Plan, "plan", false, "also print the database query plan (needs dsn)")
	cmd.Flags().BoolVar(&opts.Analyze, "analyze", false, "with --plan, execute the statement for actual metrics")

	return cmd
}

func runExplain(ctx context.Context, opts *ExplainOptions, cmd *cobra.Command, name string, args []string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	env, err := parseEnv(opts.Env)
	if err != nil {
		return err
	}
	_, set, err := opts.load()
	if err != nil {
		return err
	}
	op, err := set.Get(name)
	if err != nil {
		return err
	}

	sel := statement.NewSelect(opts.dialect())
	if err := op.Builder.Bind(ctx, sel, parseArgs(args), env); err != nil {
		return err
	}
	sel.SetLimit(op.Limit, opts.Offset)
	query, params := sel.Build()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "-- %s on %s (%d params)\n", op.Name, op.Builder.Entity().Name, op.Params)
	fmt.Fprintln(out, query)
	fmt.Fprintf(out, "-- args: %v\n", params)

	if !opts.Plan {
		return nil
	}
	plan, err := opts.plan(ctx, query, params)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, plan)
	return nil
}

func (opts *ExplainOptions) plan(ctx context.Context, query string, args []any) (*analyzer.Plan, error) {
	if err := opts.Config.RequireDSN(); err != nil {
		return nil, err
	}
	db, err := sql.Open(opts.Config.DriverName(), opts.Config.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	defer func() { _ = db.Close() }()

	a, err := analyzer.For(db, opts.dialect().Name())
	if err != nil {
		return nil, err
	}
	if opts.Analyze {
		return a.ExplainAnalyze(ctx, query, args)
	}
	return a.Explain(ctx, query, args)
}
