package trigger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/svnlab/easy-file/export"
)

type fakeExecutor struct {
	executed []int64
	result   *export.Result
}

func (e *fakeExecutor) ExecuteByID(ctx context.Context, registerID int64) *export.Result {
	e.executed = append(e.executed, registerID)
	if e.result != nil {
		return e.result
	}
	return &export.Result{RegisterID: registerID, Status: export.StatusSuccess}
}

func newTestConsumer(store *Store, executor Executor, maxTriggerCount int) *Consumer {
	return &Consumer{
		store:           store,
		executor:        executor,
		maxTriggerCount: maxTriggerCount,
		logger:          zap.NewNop().Sugar(),
	}
}

func TestConsumeInvokesExecutorAndReleasesWaiting(t *testing.T) {
	_, store, records := newFixture(t)
	id := registerRecord(t, records, "orders")
	require.NoError(t, store.EnterWaiting(id))

	executor := &fakeExecutor{}
	consumer := newTestConsumer(store, executor, 5)
	consumer.Consume(context.Background(), &Message{RegisterID: id, TriggerTimestamp: time.Now().UnixMilli()})

	assert.Equal(t, []int64{id}, executor.executed)

	state, err := store.Get(id)
	require.NoError(t, err)
	assert.Equal(t, StateInit, state.Status)
}

func TestConsumeDropsExhaustedTrigger(t *testing.T) {
	_, store, records := newFixture(t)
	id := registerRecord(t, records, "orders")
	for i := 0; i < 6; i++ {
		require.NoError(t, store.EnterWaiting(id))
	}

	executor := &fakeExecutor{}
	consumer := newTestConsumer(store, executor, 5)
	consumer.Consume(context.Background(), &Message{RegisterID: id})

	assert.Empty(t, executor.executed, "an exhausted trigger count drops the message")
}

func TestConsumeWithoutTriggerState(t *testing.T) {
	_, store, records := newFixture(t)
	id := registerRecord(t, records, "orders")

	// No dispatch bookkeeping exists, e.g. the waiting insert was lost.
	executor := &fakeExecutor{}
	consumer := newTestConsumer(store, executor, 5)
	consumer.Consume(context.Background(), &Message{RegisterID: id})

	assert.Equal(t, []int64{id}, executor.executed)
}

func TestDecodeMessage(t *testing.T) {
	msg := &Message{RegisterID: 42, TriggerTimestamp: 1700000000000}
	body, err := msg.Encode()
	require.NoError(t, err)
	assert.JSONEq(t, `{"registerId":42,"triggerTimestamp":1700000000000}`, string(body))

	decoded, err := DecodeMessage(body)
	require.NoError(t, err)
	assert.Equal(t, int64(42), decoded.RegisterID)

	_, err = DecodeMessage([]byte(`{"triggerTimestamp":1}`))
	assert.Error(t, err, "registerId is mandatory")

	_, err = DecodeMessage([]byte(`{not json`))
	assert.Error(t, err)
}

func TestTaskID(t *testing.T) {
	assert.Equal(t, "export:trigger:42:3", TaskID(42, 3))
}
