// Package executor implements C8: transactional apply/rollback of
// migrations, drift detection, and the read-only plan/status views.
// Grounded in the teacher's internal/db connection-handling idiom
// (internal/db/postgres.go), generalized from a single *pgx.Conn to a
// pgxpool.Pool since the executor must hold a long-lived lock connection
// distinct from per-statement execution connections.
package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tordrt/schemasync/internal/history"
	"github.com/tordrt/schemasync/internal/obslog"
	"github.com/tordrt/schemasync/internal/sqlsplit"
	"github.com/tordrt/schemasync/internal/store"
)

// RollbackMode selects strict or permissive rollback behavior (third open
// question resolved: an explicit, named mode rather than the source's
// only behavior).
type RollbackMode int

const (
	// RollbackStrict aborts if a migration being rolled back has no
	// matching down-migration file. The default.
	RollbackStrict RollbackMode = iota
	// RollbackPermissive deletes the history row without executing any
	// DDL when no down-migration file exists ("soft rollback").
	RollbackPermissive
)

// DriftKind classifies a detected inconsistency between disk and history.
type DriftKind string

const (
	DriftMissingFile      DriftKind = "missing-file"
	DriftChecksumMismatch DriftKind = "checksum-mismatch"
	DriftOutOfOrder       DriftKind = "out-of-order"
)

// Drift describes one detected inconsistency.
type Drift struct {
	Kind DriftKind
	Name string
}

func (d Drift) String() string {
	return fmt.Sprintf("%s: %s", d.Kind, d.Name)
}

// StatusTag classifies one migration's reconciliation state for Status.
type StatusTag string

const (
	StatusApplied          StatusTag = "applied"
	StatusPending          StatusTag = "pending"
	StatusMissingFile      StatusTag = "missing-file"
	StatusChecksumMismatch StatusTag = "checksum-mismatch"
)

// StatusEntry is one row of a Status report.
type StatusEntry struct {
	Name      string
	Tag       StatusTag
	AppliedAt *time.Time
}

// ApplyResult summarizes one apply invocation.
type ApplyResult struct {
	Applied  []string
	Duration time.Duration
	Success  bool
}

// Options configures executor behavior beyond the algorithm fixed by the
// contract.
type Options struct {
	LockWait     time.Duration // default 30s
	Force        bool
	DryRun       bool
	RollbackMode RollbackMode
}

func (o Options) lockWait() time.Duration {
	if o.LockWait <= 0 {
		return 30 * time.Second
	}
	return o.LockWait
}

// Executor holds the pool and collaborators needed to apply, roll back,
// and report on migrations against one database.
type Executor struct {
	pool    *pgxpool.Pool
	store   *store.Store
	history *history.Store
	log     *obslog.Logger
}

// New returns an Executor bound to pool and the migration directory at dir.
func New(pool *pgxpool.Pool, dir string, log *obslog.Logger) *Executor {
	if log == nil {
		log = obslog.Noop()
	}
	return &Executor{
		pool:    pool,
		store:   store.New(dir),
		history: history.New(pool),
		log:     log,
	}
}

// detectDrift implements the three fatal-by-default drift checks of the
// apply algorithm's step 3.
func detectDrift(migrations []store.Migration, rows []history.Row) []Drift {
	byName := make(map[string]store.Migration, len(migrations))
	for _, m := range migrations {
		byName[m.Name] = m
	}
	historyByName := make(map[string]history.Row, len(rows))
	for _, r := range rows {
		historyByName[r.Name] = r
	}

	var drifts []Drift
	var maxAppliedVersion int
	for _, m := range migrations {
		if _, applied := historyByName[m.Name]; applied && m.Version > maxAppliedVersion {
			maxAppliedVersion = m.Version
		}
	}

	for _, r := range rows {
		m, onDisk := byName[r.Name]
		if !onDisk {
			drifts = append(drifts, Drift{Kind: DriftMissingFile, Name: r.Name})
			continue
		}
		if m.Checksum != r.Checksum {
			drifts = append(drifts, Drift{Kind: DriftChecksumMismatch, Name: r.Name})
		}
	}

	for _, m := range migrations {
		if _, applied := historyByName[m.Name]; applied {
			continue
		}
		if m.Version <= maxAppliedVersion {
			drifts = append(drifts, Drift{Kind: DriftOutOfOrder, Name: m.Name})
		}
	}

	return drifts
}

func pending(migrations []store.Migration, rows []history.Row) []store.Migration {
	applied := make(map[string]bool, len(rows))
	for _, r := range rows {
		applied[r.Name] = true
	}
	var out []store.Migration
	for _, m := range migrations {
		if !applied[m.Name] {
			out = append(out, m)
		}
	}
	return out
}

// Plan returns the migrations that would be applied, without touching the
// database beyond bootstrap+read — it does not take the advisory lock.
func (e *Executor) Plan(ctx context.Context) ([]store.Migration, []Drift, error) {
	if err := e.history.Bootstrap(ctx); err != nil {
		return nil, nil, err
	}
	migrations, _, err := e.store.LoadAll()
	if err != nil {
		return nil, nil, err
	}
	rows, err := e.history.All(ctx)
	if err != nil {
		return nil, nil, err
	}
	return pending(migrations, rows), detectDrift(migrations, rows), nil
}

// Status reports, for every migration on disk or in history, its
// reconciliation tag. Non-mutating; does not take the advisory lock.
func (e *Executor) Status(ctx context.Context) ([]StatusEntry, error) {
	if err := e.history.Bootstrap(ctx); err != nil {
		return nil, err
	}
	migrations, _, err := e.store.LoadAll()
	if err != nil {
		return nil, err
	}
	rows, err := e.history.All(ctx)
	if err != nil {
		return nil, err
	}

	historyByName := make(map[string]history.Row, len(rows))
	for _, r := range rows {
		historyByName[r.Name] = r
	}
	onDisk := make(map[string]store.Migration, len(migrations))
	for _, m := range migrations {
		onDisk[m.Name] = m
	}

	var entries []StatusEntry
	for _, m := range migrations {
		r, applied := historyByName[m.Name]
		switch {
		case !applied:
			entries = append(entries, StatusEntry{Name: m.Name, Tag: StatusPending})
		case r.Checksum != m.Checksum:
			entries = append(entries, StatusEntry{Name: m.Name, Tag: StatusChecksumMismatch, AppliedAt: &r.AppliedAt})
		default:
			entries = append(entries, StatusEntry{Name: m.Name, Tag: StatusApplied, AppliedAt: &r.AppliedAt})
		}
	}
	for _, r := range rows {
		if _, ok := onDisk[r.Name]; !ok {
			entries = append(entries, StatusEntry{Name: r.Name, Tag: StatusMissingFile, AppliedAt: &r.AppliedAt})
		}
	}
	return entries, nil
}

// Apply runs the apply algorithm of the contract: acquire lock, check
// drift, execute pending migrations in order, release lock.
func (e *Executor) Apply(ctx context.Context, opts Options) (*ApplyResult, error) {
	start := time.Now()

	if err := e.history.Bootstrap(ctx); err != nil {
		return nil, err
	}

	release, err := acquireLock(ctx, e.pool, opts.lockWait())
	if err != nil {
		return nil, err
	}
	defer release(ctx)

	migrations, _, err := e.store.LoadAll()
	if err != nil {
		return nil, err
	}
	rows, err := e.history.All(ctx)
	if err != nil {
		return nil, err
	}

	drifts := detectDrift(migrations, rows)
	if len(drifts) > 0 && !opts.Force {
		return nil, &DriftError{Drifts: drifts}
	}
	for _, d := range drifts {
		e.log.Warn("drift detected, continuing under force", obslog.Fields{"drift": d.String()})
	}

	toApply := pending(migrations, rows)

	if opts.DryRun {
		var names []string
		for _, m := range toApply {
			names = append(names, m.Name)
		}
		return &ApplyResult{Applied: names, Duration: time.Since(start), Success: true}, nil
	}

	var applied []string
	for _, m := range toApply {
		if err := e.applyOne(ctx, m); err != nil {
			return &ApplyResult{Applied: applied, Duration: time.Since(start), Success: false},
				fmt.Errorf("executor: apply %s: %w", m.Name, err)
		}
		applied = append(applied, m.Name)
		e.log.Info("migration applied", obslog.Fields{"name": m.Name, "version": m.Version})
	}

	return &ApplyResult{Applied: applied, Duration: time.Since(start), Success: true}, nil
}

func (e *Executor) applyOne(ctx context.Context, m store.Migration) error {
	tx, err := e.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	if err := validateDDL(ctx, tx, m.DDL); err != nil {
		return fmt.Errorf("validate: %w", err)
	}

	for _, stmt := range sqlsplit.Statements(m.DDL) {
		if _, err := tx.Exec(ctx, stmt.Text); err != nil {
			return fmt.Errorf("execute statement at offset %d: %w", stmt.Offset, err)
		}
	}

	if err := e.history.Insert(ctx, tx, m.Name, m.Checksum); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}

// validateDDL implements the §4.6 PREPARE/DEALLOCATE validation: each
// statement is prepared under a unique name and immediately deallocated.
// Statements PREPARE cannot accept (bare DDL) fail with a syntax error at
// prepare time; those are executed directly and any failure from that
// direct execution is the reported validation error, per the documented
// carve-out. Each PREPARE runs in its own savepoint, so a rejected PREPARE
// does not abort the outer migration transaction.
func validateDDL(ctx context.Context, tx pgx.Tx, ddl string) error {
	for _, stmt := range sqlsplit.Statements(ddl) {
		name := "schemasync_" + uuid.New().String()
		psp, err := tx.Begin(ctx)
		if err != nil {
			return err
		}
		if _, err := psp.Exec(ctx, fmt.Sprintf("PREPARE %s AS %s", quotePreparedName(name), stmt.Text)); err != nil {
			_ = psp.Rollback(ctx)
			// PREPARE rejects bare DDL statements outright; fall back to
			// direct execution inside a throwaway savepoint so a genuine
			// syntax error is still caught without poisoning the outer tx.
			sp, spErr := tx.Begin(ctx)
			if spErr != nil {
				return spErr
			}
			_, execErr := sp.Exec(ctx, stmt.Text)
			_ = sp.Rollback(ctx)
			if execErr != nil {
				return fmt.Errorf("statement at offset %d: %w", stmt.Offset, execErr)
			}
			continue
		}
		if _, err := psp.Exec(ctx, fmt.Sprintf("DEALLOCATE %s", quotePreparedName(name))); err != nil {
			return fmt.Errorf("deallocate %s: %w", name, err)
		}
		if err := psp.Commit(ctx); err != nil {
			return err
		}
	}
	return nil
}

func quotePreparedName(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

// Rollback rolls back the last n applied migrations, newest first.
func (e *Executor) Rollback(ctx context.Context, n int, opts Options) (*ApplyResult, error) {
	start := time.Now()

	if err := e.history.Bootstrap(ctx); err != nil {
		return nil, err
	}

	release, err := acquireLock(ctx, e.pool, opts.lockWait())
	if err != nil {
		return nil, err
	}
	defer release(ctx)

	rows, err := e.history.LastN(ctx, n)
	if err != nil {
		return nil, err
	}
	migrations, _, err := e.store.LoadAll()
	if err != nil {
		return nil, err
	}
	byName := make(map[string]store.Migration, len(migrations))
	for _, m := range migrations {
		byName[m.Name] = m
	}

	var rolledBack []string
	for _, r := range rows {
		m, onDisk := byName[r.Name]
		downDDL, hasDown, err := "", false, error(nil)
		if onDisk {
			downDDL, hasDown, err = e.store.ReadDown(m)
			if err != nil {
				return &ApplyResult{Applied: rolledBack, Duration: time.Since(start), Success: false}, err
			}
		}

		if !hasDown && opts.RollbackMode == RollbackStrict {
			return &ApplyResult{Applied: rolledBack, Duration: time.Since(start), Success: false},
				fmt.Errorf("executor: rollback %s: no down-migration file found (strict mode)", r.Name)
		}

		tx, err := e.pool.Begin(ctx)
		if err != nil {
			return &ApplyResult{Applied: rolledBack, Duration: time.Since(start), Success: false}, err
		}
		ok := func() bool {
			if hasDown {
				for _, stmt := range sqlsplit.Statements(downDDL) {
					if _, err := tx.Exec(ctx, stmt.Text); err != nil {
						_ = tx.Rollback(ctx)
						e.log.Error("rollback statement failed", err, obslog.Fields{"name": r.Name})
						return false
					}
				}
			} else {
				e.log.Warn("soft rollback: no down-migration file, deleting history row only", obslog.Fields{"name": r.Name})
			}
			if err := e.history.Delete(ctx, tx, r.Name); err != nil {
				_ = tx.Rollback(ctx)
				return false
			}
			if err := tx.Commit(ctx); err != nil {
				return false
			}
			return true
		}()
		if !ok {
			return &ApplyResult{Applied: rolledBack, Duration: time.Since(start), Success: false},
				fmt.Errorf("executor: rollback %s failed", r.Name)
		}
		rolledBack = append(rolledBack, r.Name)
		e.log.Info("migration rolled back", obslog.Fields{"name": r.Name})
	}

	return &ApplyResult{Applied: rolledBack, Duration: time.Since(start), Success: true}, nil
}

// DriftError reports one or more fatal drift conditions found during apply.
type DriftError struct {
	Drifts []Drift
}

func (e *DriftError) Error() string {
	if len(e.Drifts) == 1 {
		return fmt.Sprintf("executor: drift detected: %s", e.Drifts[0])
	}
	return fmt.Sprintf("executor: drift detected: %d conditions (first: %s)", len(e.Drifts), e.Drifts[0])
}
