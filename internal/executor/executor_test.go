package executor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tordrt/schemasync/internal/history"
	"github.com/tordrt/schemasync/internal/store"
)

func TestDetectDriftMissingFile(t *testing.T) {
	migrations := []store.Migration{
		{Version: 1, Name: "first", Checksum: "aaa"},
	}
	rows := []history.Row{
		{Name: "first", Checksum: "aaa", AppliedAt: time.Now()},
		{Name: "ghost", Checksum: "bbb", AppliedAt: time.Now()},
	}

	drifts := detectDrift(migrations, rows)
	require.Len(t, drifts, 1)
	assert.Equal(t, DriftMissingFile, drifts[0].Kind)
	assert.Equal(t, "ghost", drifts[0].Name)
}

func TestDetectDriftChecksumMismatch(t *testing.T) {
	migrations := []store.Migration{
		{Version: 1, Name: "first", Checksum: "edited"},
	}
	rows := []history.Row{
		{Name: "first", Checksum: "original", AppliedAt: time.Now()},
	}

	drifts := detectDrift(migrations, rows)
	require.Len(t, drifts, 1)
	assert.Equal(t, DriftChecksumMismatch, drifts[0].Kind)
	assert.Equal(t, "first", drifts[0].Name)
}

func TestDetectDriftOutOfOrder(t *testing.T) {
	migrations := []store.Migration{
		{Version: 1, Name: "first", Checksum: "aaa"},
		{Version: 2, Name: "second", Checksum: "bbb"},
	}
	// second was applied, but first (an earlier version) was never
	// recorded: first is out of order.
	rows := []history.Row{
		{Name: "second", Checksum: "bbb", AppliedAt: time.Now()},
	}

	drifts := detectDrift(migrations, rows)
	require.Len(t, drifts, 1)
	assert.Equal(t, DriftOutOfOrder, drifts[0].Kind)
	assert.Equal(t, "first", drifts[0].Name)
}

func TestDetectDriftCleanHistoryHasNoDrift(t *testing.T) {
	migrations := []store.Migration{
		{Version: 1, Name: "first", Checksum: "aaa"},
		{Version: 2, Name: "second", Checksum: "bbb"},
	}
	rows := []history.Row{
		{Name: "first", Checksum: "aaa", AppliedAt: time.Now()},
	}

	assert.Empty(t, detectDrift(migrations, rows))
}

func TestPendingExcludesApplied(t *testing.T) {
	migrations := []store.Migration{
		{Version: 1, Name: "first"},
		{Version: 2, Name: "second"},
		{Version: 3, Name: "third"},
	}
	rows := []history.Row{
		{Name: "first"},
	}

	names := func(ms []store.Migration) []string {
		var out []string
		for _, m := range ms {
			out = append(out, m.Name)
		}
		return out
	}

	assert.Equal(t, []string{"second", "third"}, names(pending(migrations, rows)))
}

func TestDriftErrorMessageSingular(t *testing.T) {
	err := &DriftError{Drifts: []Drift{{Kind: DriftMissingFile, Name: "ghost"}}}
	assert.Contains(t, err.Error(), "ghost")
}

func TestDriftErrorMessagePlural(t *testing.T) {
	err := &DriftError{Drifts: []Drift{
		{Kind: DriftMissingFile, Name: "ghost"},
		{Kind: DriftOutOfOrder, Name: "first"},
	}}
	assert.Contains(t, err.Error(), "2 conditions")
}

func TestOptionsLockWaitDefaultsTo30Seconds(t *testing.T) {
	var o Options
	assert.Equal(t, 30*time.Second, o.lockWait())

	o.LockWait = 5 * time.Second
	assert.Equal(t, 5*time.Second, o.lockWait())
}
