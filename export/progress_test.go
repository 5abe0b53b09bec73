package export

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestProgressReporterLifecycle(t *testing.T) {
	store := newTestStore(t)
	record := insertTestRecord(t, store, "orders", nil)
	reporter := NewProgressReporter(store, record.ID, zap.NewNop().Sugar())

	reporter.Start()
	reporter.Report(40)
	reporter.Report(80)

	found, err := store.FindRecordByID(record.ID)
	require.NoError(t, err)
	assert.Equal(t, 80, found.ExecuteProgress)

	reporter.Complete()
	found, err = store.FindRecordByID(record.ID)
	require.NoError(t, err)
	assert.Equal(t, 100, found.ExecuteProgress)
}

func TestProgressNeverRegresses(t *testing.T) {
	store := newTestStore(t)
	record := insertTestRecord(t, store, "orders", nil)
	reporter := NewProgressReporter(store, record.ID, zap.NewNop().Sugar())

	reporter.Report(80)
	reporter.Report(50) // out of order, must lose

	found, err := store.FindRecordByID(record.ID)
	require.NoError(t, err)
	assert.Equal(t, 80, found.ExecuteProgress)

	reporter.Complete()
	reporter.Report(90) // stale report after terminal progress

	found, err = store.FindRecordByID(record.ID)
	require.NoError(t, err)
	assert.Equal(t, 100, found.ExecuteProgress)
}

func TestProgressReportClamps(t *testing.T) {
	store := newTestStore(t)
	record := insertTestRecord(t, store, "orders", nil)
	reporter := NewProgressReporter(store, record.ID, zap.NewNop().Sugar())

	reporter.Report(150) // only Complete may write 100

	found, err := store.FindRecordByID(record.ID)
	require.NoError(t, err)
	assert.Equal(t, 99, found.ExecuteProgress)
}

func TestProgressFailuresAreSwallowed(t *testing.T) {
	store := newTestStore(t)
	// Bound to a record that does not exist; every write affects 0 rows.
	reporter := NewProgressReporter(store, 9999, zap.NewNop().Sugar())

	assert.NotPanics(t, func() {
		reporter.Start()
		reporter.Report(50)
		reporter.Complete()
	})
}

func TestHookChainRecoversPanics(t *testing.T) {
	chain := NewHookChain(zap.NewNop().Sugar())
	ran := false
	chain.Add(Hook{
		Name:     "explosive",
		Priority: 1,
		Before:   func(*Record) { panic("boom") },
	})
	chain.Add(Hook{
		Name:     "calm",
		Priority: 2,
		Before:   func(*Record) { ran = true },
	})

	assert.NotPanics(t, func() { chain.RunBefore(&Record{}) })
	assert.True(t, ran, "a panicking hook must not stop later hooks")
}
