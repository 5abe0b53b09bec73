package trigger

import (
	"context"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/svnlab/easy-file/export"
)

// Executor is what the consumer hands a received trigger to; the export
// coordinator implements it.
type Executor interface {
	ExecuteByID(ctx context.Context, registerID int64) *export.Result
}

// Consumer receives trigger messages and invokes the coordinator.
// Handler errors are logged and swallowed: compensation, not broker
// redelivery, is this engine's retry mechanism, and rethrowing into the
// consumption layer would only cause redelivery storms.
type Consumer struct {
	server          *asynq.Server
	mux             *asynq.ServeMux
	store           *Store
	executor        Executor
	maxTriggerCount int
	logger          *zap.SugaredLogger
}

// NewConsumer creates the trigger consumer on an asynq server.
func NewConsumer(redisOpt asynq.RedisClientOpt, queue string, concurrency int, store *Store, executor Executor, maxTriggerCount int, logger *zap.SugaredLogger) *Consumer {
	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: concurrency,
			Queues: map[string]int{
				queue: 1,
			},
		},
	)

	c := &Consumer{
		server:          server,
		mux:             asynq.NewServeMux(),
		store:           store,
		executor:        executor,
		maxTriggerCount: maxTriggerCount,
		logger:          logger.Named("consumer"),
	}
	c.mux.HandleFunc(TaskTypeExport, c.handleTrigger)
	return c
}

// Start runs the asynq server in the background.
func (c *Consumer) Start() {
	go func() {
		if err := c.server.Run(c.mux); err != nil && err != asynq.ErrServerClosed {
			c.logger.Errorw("Trigger consumer stopped", "error", err)
		}
	}()
}

// Shutdown stops the asynq server, waiting for in-flight handlers.
func (c *Consumer) Shutdown() {
	c.server.Shutdown()
}

// handleTrigger processes one trigger message. Always returns nil.
func (c *Consumer) handleTrigger(ctx context.Context, task *asynq.Task) error {
	msg, err := DecodeMessage(task.Payload())
	if err != nil {
		c.logger.Errorw("Dropping malformed trigger message", "error", err)
		return nil
	}

	c.Consume(ctx, msg)
	return nil
}

// Consume validates the trigger state and invokes the coordinator.
// Split out of the asynq handler so direct and test paths share it.
func (c *Consumer) Consume(ctx context.Context, msg *Message) {
	state, err := c.store.Get(msg.RegisterID)
	if err != nil {
		c.logger.Warnw("Trigger state lookup failed, dropping message",
			"register_id", msg.RegisterID,
			"error", err,
		)
		return
	}
	if state != nil && state.TriggerCount > c.maxTriggerCount {
		// Exhausted: dropping here is what breaks redelivery loops.
		c.logger.Warnw("Trigger count exhausted, dropping message",
			"register_id", msg.RegisterID,
			"trigger_count", state.TriggerCount,
			"max", c.maxTriggerCount,
		)
		return
	}

	if err := c.store.Release(msg.RegisterID); err != nil {
		c.logger.Warnw("Trigger release failed",
			"register_id", msg.RegisterID,
			"error", err,
		)
	}

	result := c.executor.ExecuteByID(ctx, msg.RegisterID)
	c.logger.Infow("Trigger consumed",
		"register_id", msg.RegisterID,
		"status", result.Status,
	)
}
