package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"commerce-service/internal/broker"
	"commerce-service/internal/models"
	"commerce-service/internal/service"
	"commerce-service/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// SchedulerWorker consumes synthetic lifecycle events (hold timeouts, checkout
// expiry) from the scheduler topic and feeds them through the same dispatch
// path as provider webhooks. Idempotency comes from the dispatcher, so
// at-least-once Kafka delivery is safe.
type SchedulerWorker struct {
	consumer   *broker.Consumer
	dispatcher *service.EventDispatcher
	logger     *zap.Logger
}

// NewSchedulerWorker creates a new scheduler worker
func NewSchedulerWorker(consumer *broker.Consumer, dispatcher *service.EventDispatcher) *SchedulerWorker {
	return &SchedulerWorker{
		consumer:   consumer,
		dispatcher: dispatcher,
		logger:     util.GetLogger(),
	}
}

// Start starts the worker and blocks until the context is cancelled.
func (w *SchedulerWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting scheduler worker")
	return w.consumer.StartConsuming(ctx, w.handleMessage)
}

// Stop stops the worker
func (w *SchedulerWorker) Stop() error {
	w.logger.Info("Stopping scheduler worker")
	return w.consumer.Close()
}

func (w *SchedulerWorker) handleMessage(ctx context.Context, msg kafka.Message) error {
	var event models.SchedulerEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		// commit and move on, a broken envelope never becomes readable
		w.logger.Error("Dropping malformed scheduler message",
			zap.ByteString("key", msg.Key),
			zap.Error(err))
		return nil
	}
	if event.EventID == "" {
		w.logger.Error("Dropping scheduler message without event_id",
			zap.ByteString("key", msg.Key))
		return nil
	}

	res, err := w.dispatcher.Handle(ctx, event.EventID, event.EventType, event.Payload)
	if err != nil {
		// transient: leave uncommitted so Kafka redelivers
		return fmt.Errorf("dispatch of scheduler event %s failed: %w", event.EventID, err)
	}

	w.logger.Info("Scheduler event dispatched",
		zap.String("event_id", event.EventID),
		zap.String("event_type", event.EventType),
		zap.String("outcome", string(res.Outcome)))
	return nil
}
