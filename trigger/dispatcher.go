package trigger

import (
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/svnlab/easy-file/errors"
)

// Enqueuer is the slice of asynq.Client the dispatcher needs. Tests swap
// in a fake to simulate broker loss.
type Enqueuer interface {
	Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Dispatcher sends trigger messages and maintains the waiting-window
// bookkeeping. It satisfies export.TriggerSender.
type Dispatcher struct {
	client Enqueuer
	store  *Store
	queue  string
	logger *zap.SugaredLogger
}

// NewDispatcher creates a trigger dispatcher on an asynq client.
func NewDispatcher(client Enqueuer, store *Store, queue string, logger *zap.SugaredLogger) *Dispatcher {
	return &Dispatcher{
		client: client,
		store:  store,
		queue:  queue,
		logger: logger.Named("dispatcher"),
	}
}

// Send enqueues a trigger message for a register id. Only a successful
// send opens the waiting window; a failed send returns the error and
// leaves the record compensable from its registration time.
func (d *Dispatcher) Send(registerID int64) error {
	state, err := d.store.Get(registerID)
	if err != nil {
		return err
	}
	count := 1
	if state != nil {
		count = state.TriggerCount + 1
	}

	msg := &Message{
		RegisterID:       registerID,
		TriggerTimestamp: time.Now().UnixMilli(),
	}
	body, err := msg.Encode()
	if err != nil {
		return err
	}

	task := asynq.NewTask(TaskTypeExport, body)
	_, err = d.client.Enqueue(task,
		asynq.Queue(d.queue),
		asynq.TaskID(TaskID(registerID, count)),
	)
	if err != nil && !errors.Is(err, asynq.ErrTaskIDConflict) {
		return errors.Wrapf(err, "enqueue trigger for record %d", registerID)
	}

	if err := d.store.EnterWaiting(registerID); err != nil {
		// The message is out; bookkeeping failure only means the waiting
		// window never opened, which compensation tolerates.
		d.logger.Warnw("Trigger sent but waiting state not recorded",
			"register_id", registerID,
			"error", err,
		)
		return nil
	}

	d.logger.Debugw("Trigger dispatched",
		"register_id", registerID,
		"trigger_count", count,
	)
	return nil
}
