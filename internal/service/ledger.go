package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"workshop-service/internal/apperr"
	"workshop-service/internal/broker"
	"workshop-service/internal/models"
	"workshop-service/internal/redisclient"
	"workshop-service/internal/store"
	"workshop-service/internal/util"
)

// LedgerService is the inventory ledger: it owns all part-stock
// mutation so the non-negative on-hand invariant holds under
// concurrent callers.
type LedgerService struct {
	store  store.Store
	redis  *redisclient.Client    // optional fast path, nil without Redis
	events *broker.EventPublisher // optional, nil without Kafka
	logger *zap.Logger
}

// NewLedgerService creates the inventory ledger.
func NewLedgerService(st store.Store, redis *redisclient.Client, events *broker.EventPublisher) *LedgerService {
	return &LedgerService{
		store:  st,
		redis:  redis,
		events: events,
		logger: util.GetLogger(),
	}
}

// Consume atomically checks and decrements stock for one part and
// appends the consumption record. Fails with InsufficientStock and
// changes nothing when on-hand cannot cover the quantity.
func (ls *LedgerService) Consume(ctx context.Context, orderID, partID string, quantity int) (*models.PartConsumption, error) {
	ctx, span := util.StartSpan(ctx, "LedgerService.Consume")
	defer span.End()

	if quantity <= 0 {
		return nil, fmt.Errorf("consume quantity %d: %w", quantity, apperr.ErrInvalidPayload)
	}

	// Fast path: the Redis mirror rejects obviously-insufficient
	// requests without a database round trip. The database check below
	// stays authoritative either way.
	mirrored := false
	if ls.redis != nil {
		ok, err := ls.redis.TryConsume(ctx, partID, quantity)
		if err != nil {
			ls.logger.Warn("Redis fast path unavailable, using database only",
				zap.String("part_id", partID), zap.Error(err))
		} else if !ok {
			util.ConsumptionsFailedTotal.WithLabelValues("insufficient_stock").Inc()
			return nil, fmt.Errorf("part %s: %w", partID, apperr.ErrInsufficientStock)
		} else {
			mirrored = true
		}
	}

	consumption, stock, err := ls.store.Consume(ctx, partID, quantity, orderID)
	if err != nil {
		if mirrored {
			if rerr := ls.redis.Restore(ctx, partID, quantity); rerr != nil {
				ls.logger.Error("Failed to restore Redis mirror after consume failure",
					zap.String("part_id", partID), zap.Error(rerr))
			}
		}
		util.ConsumptionsFailedTotal.WithLabelValues(rejectReason(err)).Inc()
		return nil, err
	}

	util.PartsConsumedTotal.Add(float64(quantity))
	ls.logger.Info("Parts consumed",
		zap.String("order_id", orderID),
		zap.String("part_id", partID),
		zap.Int("quantity", quantity),
		zap.Int("on_hand", stock.QuantityOnHand))

	ls.checkReorder(ctx, stock)
	return consumption, nil
}

// Reverse re-increments stock by the original quantity and marks the
// consumption reversed. The original record stays for the audit trail.
func (ls *LedgerService) Reverse(ctx context.Context, consumptionID string, actor models.Actor) (*models.PartConsumption, error) {
	ctx, span := util.StartSpan(ctx, "LedgerService.Reverse")
	defer span.End()

	if actor.Role != models.RoleAdmin {
		return nil, fmt.Errorf("role %s may not reverse consumptions: %w", actor.Role, apperr.ErrForbidden)
	}
	return ls.reverse(ctx, consumptionID)
}

// reverse is the unguarded reversal used both by Reverse and by the
// lifecycle controller's compensation path.
func (ls *LedgerService) reverse(ctx context.Context, consumptionID string) (*models.PartConsumption, error) {
	consumption, stock, err := ls.store.ReverseConsumption(ctx, consumptionID)
	if err != nil {
		return nil, err
	}

	if ls.redis != nil {
		if err := ls.redis.Restore(ctx, consumption.PartID, consumption.Quantity); err != nil {
			ls.logger.Error("Failed to restore Redis mirror after reversal",
				zap.String("part_id", consumption.PartID), zap.Error(err))
		}
	}

	util.ConsumptionsReversedTotal.Inc()
	ls.logger.Info("Consumption reversed",
		zap.String("consumption_id", consumption.ID),
		zap.String("part_id", consumption.PartID),
		zap.Int("quantity", consumption.Quantity),
		zap.Int("on_hand", stock.QuantityOnHand))

	ls.publishReversed(ctx, consumption)
	return consumption, nil
}

// Replenish increments stock for a part.
func (ls *LedgerService) Replenish(ctx context.Context, partID string, quantity int, actor models.Actor) (*models.PartStock, error) {
	ctx, span := util.StartSpan(ctx, "LedgerService.Replenish")
	defer span.End()

	if actor.Role != models.RoleAdmin {
		return nil, fmt.Errorf("role %s may not replenish stock: %w", actor.Role, apperr.ErrForbidden)
	}
	if quantity <= 0 {
		return nil, fmt.Errorf("replenish quantity %d: %w", quantity, apperr.ErrInvalidQuantity)
	}

	stock, err := ls.store.Replenish(ctx, partID, quantity)
	if err != nil {
		return nil, err
	}

	if ls.redis != nil {
		if err := ls.redis.SetStock(ctx, partID, stock.QuantityOnHand); err != nil {
			ls.logger.Error("Failed to sync Redis mirror after replenish",
				zap.String("part_id", partID), zap.Error(err))
		}
		if stock.QuantityOnHand > stock.ReorderThreshold {
			if err := ls.redis.ClearLowStock(ctx, partID); err != nil {
				ls.logger.Warn("Failed to clear low-stock flag",
					zap.String("part_id", partID), zap.Error(err))
			}
		}
	}

	util.StockReplenishedTotal.Add(float64(quantity))
	ls.logger.Info("Stock replenished",
		zap.String("part_id", partID),
		zap.Int("quantity", quantity),
		zap.Int("on_hand", stock.QuantityOnHand))

	if ls.events != nil {
		event := &models.StockReplenishedEvent{
			BaseEvent: newBaseEvent(models.EventTypeStockReplenished),
			PartID:    partID,
			Quantity:  quantity,
			OnHand:    stock.QuantityOnHand,
		}
		if err := ls.events.PublishStockReplenished(ctx, event); err != nil {
			ls.logger.Error("Failed to publish StockReplenished event", zap.Error(err))
		}
	}
	return stock, nil
}

// GetStock reads the authoritative stock row for a part.
func (ls *LedgerService) GetStock(ctx context.Context, partID string) (*models.PartStock, error) {
	return ls.store.ReadPartStock(ctx, partID)
}

// SyncStockToRedis warms the Redis mirror from the authoritative store.
// Called at startup so the fast path does not start cold.
func (ls *LedgerService) SyncStockToRedis(ctx context.Context) error {
	if ls.redis == nil {
		return nil
	}
	stocks, err := ls.store.ListPartStocks(ctx)
	if err != nil {
		return fmt.Errorf("failed to list part stock: %w", err)
	}
	for _, stock := range stocks {
		if err := ls.redis.SetStock(ctx, stock.PartID, stock.QuantityOnHand); err != nil {
			ls.logger.Error("Failed to mirror stock",
				zap.String("part_id", stock.PartID), zap.Error(err))
			continue
		}
		if stock.QuantityOnHand <= stock.ReorderThreshold {
			if err := ls.redis.MarkLowStock(ctx, stock.PartID); err != nil {
				ls.logger.Warn("Failed to mark low stock",
					zap.String("part_id", stock.PartID), zap.Error(err))
			}
		}
	}
	ls.logger.Info("Stock mirror warmed", zap.Int("parts", len(stocks)))
	return nil
}

// LowStockParts lists parts at or below their reorder threshold. Reads
// the Redis low-stock set when available, otherwise scans the store.
func (ls *LedgerService) LowStockParts(ctx context.Context) ([]string, error) {
	if ls.redis != nil {
		return ls.redis.LowStockParts(ctx)
	}

	stocks, err := ls.store.ListPartStocks(ctx)
	if err != nil {
		return nil, err
	}
	low := make([]string, 0)
	for _, stock := range stocks {
		if stock.QuantityOnHand <= stock.ReorderThreshold {
			low = append(low, stock.PartID)
		}
	}
	return low, nil
}

// checkReorder raises a low-stock alert when on-hand falls to or below
// the part's reorder threshold.
func (ls *LedgerService) checkReorder(ctx context.Context, stock *models.PartStock) {
	if stock.QuantityOnHand > stock.ReorderThreshold {
		return
	}

	util.StockLowAlertsTotal.Inc()
	if ls.redis != nil {
		if err := ls.redis.MarkLowStock(ctx, stock.PartID); err != nil {
			ls.logger.Warn("Failed to mark low stock",
				zap.String("part_id", stock.PartID), zap.Error(err))
		}
	}
	if ls.events != nil {
		event := &models.StockLowEvent{
			BaseEvent:        newBaseEvent(models.EventTypeStockLow),
			PartID:           stock.PartID,
			QuantityOnHand:   stock.QuantityOnHand,
			ReorderThreshold: stock.ReorderThreshold,
		}
		if err := ls.events.PublishStockLow(ctx, event); err != nil {
			ls.logger.Error("Failed to publish StockLow event", zap.Error(err))
		}
	}
}

func (ls *LedgerService) publishReversed(ctx context.Context, consumption *models.PartConsumption) {
	if ls.events == nil {
		return
	}
	event := &models.ConsumptionReversedEvent{
		BaseEvent:     newBaseEvent(models.EventTypeConsumptionReversed),
		ConsumptionID: consumption.ID,
		OrderID:       consumption.OrderID,
		PartID:        consumption.PartID,
		Quantity:      consumption.Quantity,
	}
	if err := ls.events.PublishConsumptionReversed(ctx, event); err != nil {
		ls.logger.Error("Failed to publish ConsumptionReversed event", zap.Error(err))
	}
}

func newBaseEvent(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now().UTC(),
	}
}
