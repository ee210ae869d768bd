package worker

import (
	"context"
	"log"

	"go.uber.org/zap"

	"workshop-service/internal/broker"
	"workshop-service/internal/models"
	"workshop-service/internal/redisclient"
	"workshop-service/internal/store"
	"workshop-service/internal/util"
)

// HistoryWorker projects committed transition events into the
// append-only order_status_history table. Current status on the order
// row stays authoritative; this is the audit trail behind it.
type HistoryWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	store        store.Store
	logger       *zap.Logger
}

// NewHistoryWorker creates a new history worker
func NewHistoryWorker(consumer *broker.Consumer, st store.Store) *HistoryWorker {
	w := &HistoryWorker{
		consumer: consumer,
		store:    st,
		logger:   util.GetLogger(),
	}

	eventHandler := broker.NewEventHandler()
	eventHandler.OnOrderTransitioned(w.handleTransitioned)
	w.eventHandler = eventHandler
	return w
}

func (w *HistoryWorker) handleTransitioned(ctx context.Context, event *models.OrderTransitionedEvent) error {
	ev := &models.StatusEvent{
		OrderID:    event.OrderID,
		FromStatus: event.FromStatus,
		ToStatus:   event.ToStatus,
		ActorID:    event.ActorID,
		ActorRole:  event.ActorRole,
		OccurredAt: event.Timestamp,
	}
	if err := w.store.AppendStatusEvent(ctx, ev); err != nil {
		w.logger.Error("Failed to append status event",
			zap.String("order_id", event.OrderID), zap.Error(err))
		return err
	}
	return nil
}

// Start starts the worker
func (w *HistoryWorker) Start(ctx context.Context) error {
	log.Println("Starting history worker...")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *HistoryWorker) Stop() error {
	log.Println("Stopping history worker...")
	return w.consumer.Close()
}

// StockAlertWorker reacts to low-stock events: it flags the part in
// Redis and leaves a visible log line for the people who reorder.
type StockAlertWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	redis        *redisclient.Client
	logger       *zap.Logger
}

// NewStockAlertWorker creates a new stock alert worker
func NewStockAlertWorker(consumer *broker.Consumer, redis *redisclient.Client) *StockAlertWorker {
	w := &StockAlertWorker{
		consumer: consumer,
		redis:    redis,
		logger:   util.GetLogger(),
	}

	eventHandler := broker.NewEventHandler()
	eventHandler.OnStockLow(w.handleStockLow)
	w.eventHandler = eventHandler
	return w
}

func (w *StockAlertWorker) handleStockLow(ctx context.Context, event *models.StockLowEvent) error {
	w.logger.Warn("Part stock below reorder threshold",
		zap.String("part_id", event.PartID),
		zap.Int("on_hand", event.QuantityOnHand),
		zap.Int("reorder_threshold", event.ReorderThreshold))

	if w.redis != nil {
		if err := w.redis.MarkLowStock(ctx, event.PartID); err != nil {
			w.logger.Error("Failed to flag low stock",
				zap.String("part_id", event.PartID), zap.Error(err))
			return err
		}
	}
	return nil
}

// Start starts the worker
func (w *StockAlertWorker) Start(ctx context.Context) error {
	log.Println("Starting stock alert worker...")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *StockAlertWorker) Stop() error {
	log.Println("Stopping stock alert worker...")
	return w.consumer.Close()
}
