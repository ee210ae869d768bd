package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event types
const (
	EventTypeOrderCreated        = "ORDER_CREATED"
	EventTypeOrderTransitioned   = "ORDER_TRANSITIONED"
	EventTypeOrderCompleted      = "ORDER_COMPLETED"
	EventTypeOrderCancelled      = "ORDER_CANCELLED"
	EventTypePartsConsumed       = "PARTS_CONSUMED"
	EventTypeConsumptionReversed = "CONSUMPTION_REVERSED"
	EventTypeStockReplenished    = "STOCK_REPLENISHED"
	EventTypeStockLow            = "STOCK_LOW"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderCreatedEvent published at intake
type OrderCreatedEvent struct {
	BaseEvent
	OrderID     string `json:"order_id"`
	OrderNumber string `json:"order_number"`
	ClientID    string `json:"client_id"`
	Priority    string `json:"priority"`
}

// OrderTransitionedEvent published after every committed status change
type OrderTransitionedEvent struct {
	BaseEvent
	OrderID    string `json:"order_id"`
	FromStatus string `json:"from_status"`
	ToStatus   string `json:"to_status"`
	ActorID    string `json:"actor_id"`
	ActorRole  string `json:"actor_role"`
}

// OrderCompletedEvent published when an order reaches COMPLETED,
// carrying the settlement created in the same atomic unit
type OrderCompletedEvent struct {
	BaseEvent
	OrderID          string          `json:"order_id"`
	TechnicianID     string          `json:"technician_id"`
	FinalCost        decimal.Decimal `json:"final_cost"`
	CommissionRate   decimal.Decimal `json:"commission_rate"`
	CommissionAmount decimal.Decimal `json:"commission_amount"`
}

// OrderCancelledEvent published when an order is cancelled
type OrderCancelledEvent struct {
	BaseEvent
	OrderID    string `json:"order_id"`
	FromStatus string `json:"from_status"`
	ActorID    string `json:"actor_id"`
}

// PartsConsumedEvent published after consumptions commit
type PartsConsumedEvent struct {
	BaseEvent
	OrderID string            `json:"order_id"`
	Parts   []PartConsumedRow `json:"parts"`
}

// PartConsumedRow is one consumed line inside PartsConsumedEvent
type PartConsumedRow struct {
	ConsumptionID string `json:"consumption_id"`
	PartID        string `json:"part_id"`
	Quantity      int    `json:"quantity"`
}

// ConsumptionReversedEvent published after a reversal commits
type ConsumptionReversedEvent struct {
	BaseEvent
	ConsumptionID string `json:"consumption_id"`
	OrderID       string `json:"order_id"`
	PartID        string `json:"part_id"`
	Quantity      int    `json:"quantity"`
}

// StockReplenishedEvent published after a replenishment commits
type StockReplenishedEvent struct {
	BaseEvent
	PartID   string `json:"part_id"`
	Quantity int    `json:"quantity"`
	OnHand   int    `json:"on_hand"`
}

// StockLowEvent published when on-hand falls to or below the reorder threshold
type StockLowEvent struct {
	BaseEvent
	PartID           string `json:"part_id"`
	QuantityOnHand   int    `json:"quantity_on_hand"`
	ReorderThreshold int    `json:"reorder_threshold"`
}
