package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// advisoryLockKey is the fixed 64-bit key every invocation contends for.
// Arbitrary but stable: changing it would let old and new binaries run
// concurrently without serializing against each other.
const advisoryLockKey int64 = 0x7363686d61736b31 // "schmask1"

// acquireLock blocks until it holds the advisory lock or wait elapses,
// polling pg_try_advisory_lock since pg_advisory_lock has no deadline.
func acquireLock(ctx context.Context, pool *pgxpool.Pool, wait time.Duration) (release func(context.Context), err error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("executor: acquire connection for lock: %w", err)
	}

	deadline := time.Now().Add(wait)
	for {
		var got bool
		if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, advisoryLockKey).Scan(&got); err != nil {
			conn.Release()
			return nil, fmt.Errorf("executor: try advisory lock: %w", err)
		}
		if got {
			break
		}
		if time.Now().After(deadline) {
			conn.Release()
			return nil, &LockBusyError{Wait: wait}
		}
		select {
		case <-ctx.Done():
			conn.Release()
			return nil, ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}

	release = func(releaseCtx context.Context) {
		_, _ = conn.Exec(releaseCtx, `SELECT pg_advisory_unlock($1)`, advisoryLockKey)
		conn.Release()
	}
	return release, nil
}

// LockBusyError reports that the advisory lock was not granted in time.
type LockBusyError struct {
	Wait time.Duration
}

func (e *LockBusyError) Error() string {
	return fmt.Sprintf("executor: advisory lock not granted within %s", e.Wait)
}
