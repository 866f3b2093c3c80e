// Package engine wires C2 through C8 together behind the five commands
// of the external interface (plan, gen, migrate, rollback, status). It
// contains no DDL logic of its own: every method is a short sequencing
// of calls into the lower components, in the style of the teacher's
// cmd/llmschema/main.go run() function generalized into a reusable type
// instead of a single CLI entry point.
package engine

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tordrt/schemasync/internal/config"
	"github.com/tordrt/schemasync/internal/differ"
	"github.com/tordrt/schemasync/internal/executor"
	"github.com/tordrt/schemasync/internal/introspect"
	"github.com/tordrt/schemasync/internal/obslog"
	"github.com/tordrt/schemasync/internal/parser"
	"github.com/tordrt/schemasync/internal/schema"
	"github.com/tordrt/schemasync/internal/sqlgen"
	"github.com/tordrt/schemasync/internal/store"
)

// Engine is the seam the CLI (or any other embedding caller) drives.
// It owns a pgxpool.Pool for its lifetime, opened against one
// config.Environment's connection.
type Engine struct {
	env config.Environment
	opt config.Options
	log *obslog.Logger

	pool *pgxpool.Pool
	exec *executor.Executor
}

// New connects to env's database and returns a ready Engine. Close must
// be called when done.
func New(ctx context.Context, env config.Environment, opt config.Options, log *obslog.Logger) (*Engine, error) {
	if log == nil {
		log = obslog.Noop()
	}
	pool, err := pgxpool.New(ctx, env.Connection.DSN())
	if err != nil {
		return nil, &Error{Kind: ExecutionError, Err: fmt.Errorf("engine: connect %s: %w", env.Name, err)}
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, &Error{Kind: ExecutionError, Err: fmt.Errorf("engine: ping %s: %w", env.Name, err)}
	}

	return &Engine{
		env:  env,
		opt:  opt,
		log:  log,
		pool: pool,
		exec: executor.New(pool, env.MigrationsDir, log),
	}, nil
}

// Close releases the pool.
func (e *Engine) Close() {
	e.pool.Close()
}

// PlanResult is the read-only preview returned by Plan.
type PlanResult struct {
	Pending []store.Migration
	Drifts  []executor.Drift
}

// Plan returns the pending migrations and any drift conditions without
// mutating the database. Does not take the advisory lock (§5).
func (e *Engine) Plan(ctx context.Context) (*PlanResult, error) {
	pending, drifts, err := e.exec.Plan(ctx)
	if err != nil {
		return nil, wrap(ExecutionError, err)
	}
	return &PlanResult{Pending: pending, Drifts: drifts}, nil
}

// Inspect introspects the live schema for the given table names, typically
// the set parsed from a schema file. If tableNames is empty, every base
// table in the "public" schema is introspected.
func (e *Engine) Inspect(ctx context.Context, tableNames []string) (*schema.Schema, error) {
	introspector := introspect.New(e.pool, "public", e.log)
	s, err := introspector.Introspect(ctx, tableNames)
	if err != nil {
		return nil, wrap(IntrospectionError, err)
	}
	return s, nil
}

// GenResult is returned by Gen.
type GenResult struct {
	Path     string
	Version  int
	DDL      string
	Warnings []string
}

// Gen parses the desired schema file at schemaPath, introspects the live
// tables that file names, diffs the two, generates DDL, and writes a new
// migration file. Only tables named in the schema file are introspected,
// so a live table the file does not mention is never reported as dropped.
// name is the snake_case migration name; if empty, "schema_update" is used.
func (e *Engine) Gen(ctx context.Context, schemaPath, name string, opts config.Options) (*GenResult, error) {
	desiredText, err := os.ReadFile(schemaPath)
	if err != nil {
		return nil, wrap(ValidationError, fmt.Errorf("engine: read schema file %s: %w", schemaPath, err))
	}

	parseResult, err := parser.Parse(string(desiredText))
	if err != nil {
		return nil, wrap(ParseError, err)
	}
	for _, w := range parseResult.Warnings {
		e.log.Warn("parser warning", obslog.Fields{"warning": w})
	}

	introspector := introspect.New(e.pool, "public", e.log)
	current, err := introspector.Introspect(ctx, parseResult.Schema.TableNames())
	if err != nil {
		return nil, wrap(IntrospectionError, err)
	}

	diff := differ.DiffSchemas(current, parseResult.Schema)
	if diff.IsEmpty() {
		return nil, wrap(ValidationError, fmt.Errorf("engine: no schema changes detected for %s", e.env.Name))
	}

	if opts.CheckForDataLoss && diff.HasDestructiveChange() && !opts.Force {
		return nil, &Error{Kind: DestructiveChangeError, Err: fmt.Errorf("engine: destructive change detected: %s", diff.Warnings[0])}
	}
	for _, w := range diff.Warnings {
		e.log.Warn("diff warning", obslog.Fields{"warning": w})
	}

	ddl := sqlgen.Generate(diff)

	if name == "" {
		name = "schema_update"
	}
	st := store.New(e.env.MigrationsDir)
	migration, err := st.Create(name, ddl)
	if err != nil {
		return nil, wrap(ExecutionError, err)
	}

	return &GenResult{
		Path:     migration.Path,
		Version:  migration.Version,
		DDL:      migration.DDL,
		Warnings: diff.Warnings,
	}, nil
}

// Migrate applies pending migrations.
func (e *Engine) Migrate(ctx context.Context, dryRun, force bool) (*executor.ApplyResult, error) {
	result, err := e.exec.Apply(ctx, executor.Options{
		DryRun: dryRun,
		Force:  force,
	})
	if err != nil {
		return result, classifyExecError(err)
	}
	return result, nil
}

// Rollback rolls back the last n applied migrations.
func (e *Engine) Rollback(ctx context.Context, n int, force bool, mode executor.RollbackMode) (*executor.ApplyResult, error) {
	result, err := e.exec.Rollback(ctx, n, executor.Options{Force: force, RollbackMode: mode})
	if err != nil {
		return result, classifyExecError(err)
	}
	return result, nil
}

// Status returns the per-migration state tags.
func (e *Engine) Status(ctx context.Context) ([]executor.StatusEntry, error) {
	entries, err := e.exec.Status(ctx)
	if err != nil {
		return nil, wrap(ExecutionError, err)
	}
	return entries, nil
}

func classifyExecError(err error) error {
	var driftErr *executor.DriftError
	if errors.As(err, &driftErr) {
		return &Error{Kind: DriftError, Err: err}
	}
	var lockErr *executor.LockBusyError
	if errors.As(err, &lockErr) {
		return &Error{Kind: LockBusyError, Err: err}
	}
	return wrap(ExecutionError, err)
}
