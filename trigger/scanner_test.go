package trigger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/svnlab/easy-file/errors"
)

type fakeSender struct {
	sent    []int64
	failIDs map[int64]bool
}

func (s *fakeSender) Send(registerID int64) error {
	if s.failIDs[registerID] {
		return errors.New("broker down")
	}
	s.sent = append(s.sent, registerID)
	return nil
}

func testScannerConfig() ScannerConfig {
	return ScannerConfig{
		Interval:        time.Minute,
		WaitingTimeout:  time.Hour,
		LookBack:        time.Hour,
		MaxTriggerCount: 5,
		BatchSize:       50,
	}
}

func TestSweepCompensatesLostTrigger(t *testing.T) {
	_, store, records := newFixture(t)

	// Registered but the initial dispatch was never sent.
	lost := registerRecord(t, records, "orders")

	sender := &fakeSender{}
	scanner := NewScanner(store, sender, testScannerConfig(), zap.NewNop().Sugar())
	scanner.Sweep()

	assert.Equal(t, []int64{lost}, sender.sent)
}

func TestSweepExpiresStuckWaitingThenCompensates(t *testing.T) {
	db, store, records := newFixture(t)
	stuck := registerRecord(t, records, "orders")

	require.NoError(t, store.EnterWaiting(stuck))
	_, err := db.Exec(`UPDATE export_trigger SET start_time = ? WHERE register_id = ?`,
		time.Now().Add(-2*time.Hour), stuck)
	require.NoError(t, err)

	sender := &fakeSender{}
	scanner := NewScanner(store, sender, testScannerConfig(), zap.NewNop().Sugar())

	// One sweep both expires the stale window and re-dispatches.
	scanner.Sweep()
	assert.Equal(t, []int64{stuck}, sender.sent)
}

func TestSweepSendFailureLeavesCandidate(t *testing.T) {
	_, store, records := newFixture(t)
	id := registerRecord(t, records, "orders")

	sender := &fakeSender{failIDs: map[int64]bool{id: true}}
	scanner := NewScanner(store, sender, testScannerConfig(), zap.NewNop().Sugar())
	scanner.Sweep()
	assert.Empty(t, sender.sent)

	// Next tick succeeds once the broker is back.
	sender.failIDs = nil
	scanner.Sweep()
	assert.Equal(t, []int64{id}, sender.sent)
}

func TestScannerStartStop(t *testing.T) {
	_, store, _ := newFixture(t)

	sender := &fakeSender{}
	cfg := testScannerConfig()
	cfg.Interval = 10 * time.Millisecond
	scanner := NewScanner(store, sender, cfg, zap.NewNop().Sugar())

	scanner.Start(context.Background())
	time.Sleep(30 * time.Millisecond)
	scanner.Stop()
}
