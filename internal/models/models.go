package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order statuses
const (
	StatusReceived     = "RECEIVED"
	StatusDiagnosis    = "DIAGNOSIS"
	StatusWaitingParts = "WAITING_PARTS"
	StatusRepair       = "REPAIR"
	StatusTesting      = "TESTING"
	StatusCompleted    = "COMPLETED"
	StatusDelivered    = "DELIVERED"
	StatusCancelled    = "CANCELLED"
)

// Priorities
const (
	PriorityLow    = "LOW"
	PriorityNormal = "NORMAL"
	PriorityHigh   = "HIGH"
	PriorityUrgent = "URGENT"
)

// Actor roles. Supplied by the upstream auth layer as a trusted claim;
// the engine only authorizes, it never authenticates.
const (
	RoleClient       = "CLIENT"
	RoleReceptionist = "RECEPTIONIST"
	RoleTechnician   = "TECHNICIAN"
	RoleAdmin        = "ADMIN"
)

// Actor identifies the caller of every public operation.
type Actor struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

// ServiceOrder represents a repair order from intake to delivery.
// Status and TechnicianID are mutated only through the lifecycle
// controller; Version backs the compare-and-swap writes.
type ServiceOrder struct {
	ID                 string           `db:"id" json:"id"`
	OrderNumber        string           `db:"order_number" json:"order_number"`
	ClientID           string           `db:"client_id" json:"client_id"`
	TechnicianID       *string          `db:"technician_id" json:"technician_id,omitempty"`
	ReceptionistID     string           `db:"receptionist_id" json:"receptionist_id"`
	EquipmentID        string           `db:"equipment_id" json:"equipment_id"`
	Status             string           `db:"status" json:"status"`
	Priority           string           `db:"priority" json:"priority"`
	ProblemDescription string           `db:"problem_description" json:"problem_description"`
	DeviceCondition    string           `db:"device_condition" json:"device_condition"`
	FinalCost          *decimal.Decimal `db:"final_cost" json:"final_cost,omitempty"`
	Version            int64            `db:"version" json:"version"`
	CreatedAt          time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time        `db:"updated_at" json:"updated_at"`
}

// Closed reports whether the order is in a terminal state.
func (o *ServiceOrder) Closed() bool {
	return o.Status == StatusDelivered || o.Status == StatusCancelled
}

// PartStock is the on-hand quantity for a spare part. Mutated only by
// the inventory ledger so the non-negative invariant holds.
type PartStock struct {
	PartID           string    `db:"part_id" json:"part_id"`
	QuantityOnHand   int       `db:"quantity_on_hand" json:"quantity_on_hand"`
	ReorderThreshold int       `db:"reorder_threshold" json:"reorder_threshold"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

// PartConsumption records parts used on an order. Immutable once
// written; a reversal is a flag plus a stock re-increment, never an edit.
type PartConsumption struct {
	ID         string     `db:"id" json:"id"`
	OrderID    string     `db:"order_id" json:"order_id"`
	PartID     string     `db:"part_id" json:"part_id"`
	Quantity   int        `db:"quantity" json:"quantity"`
	Reversed   bool       `db:"reversed" json:"reversed"`
	ConsumedAt time.Time  `db:"consumed_at" json:"consumed_at"`
	ReversedAt *time.Time `db:"reversed_at" json:"reversed_at,omitempty"`
}

// CommissionSettlement is the technician payout computed when an order
// completes. RateApplied is a snapshot; later profile changes do not
// reprice history. At most one settlement row exists per order.
type CommissionSettlement struct {
	ID           string          `db:"id" json:"id"`
	OrderID      string          `db:"order_id" json:"order_id"`
	TechnicianID string          `db:"technician_id" json:"technician_id"`
	RateApplied  decimal.Decimal `db:"rate_applied" json:"rate_applied"`
	Amount       decimal.Decimal `db:"amount" json:"amount"`
	SettledAt    time.Time       `db:"settled_at" json:"settled_at"`
}

// TechnicianProfile is a read-only lookup owned by the excluded
// profile service; the engine only reads the commission rate from it.
type TechnicianProfile struct {
	ID             string          `db:"id" json:"id"`
	Name           string          `db:"name" json:"name"`
	CommissionRate decimal.Decimal `db:"commission_rate" json:"commission_rate"`
}

// StatusEvent is one row of the append-only status history projection.
type StatusEvent struct {
	ID         int64     `db:"id" json:"id"`
	OrderID    string    `db:"order_id" json:"order_id"`
	FromStatus string    `db:"from_status" json:"from_status"`
	ToStatus   string    `db:"to_status" json:"to_status"`
	ActorID    string    `db:"actor_id" json:"actor_id"`
	ActorRole  string    `db:"actor_role" json:"actor_role"`
	OccurredAt time.Time `db:"occurred_at" json:"occurred_at"`
}

// PartRequest is one line of a parts-consumption request.
type PartRequest struct {
	PartID   string `json:"part_id" binding:"required"`
	Quantity int    `json:"quantity" binding:"required,min=1"`
}

// TransitionPayload carries the optional data a transition needs:
// final cost for COMPLETED, parts for the move into REPAIR, an explicit
// technician assignment when a receptionist or admin starts diagnosis.
type TransitionPayload struct {
	FinalCost    *decimal.Decimal `json:"final_cost,omitempty"`
	PartsUsed    []PartRequest    `json:"parts_used,omitempty"`
	TechnicianID *string          `json:"technician_id,omitempty"`
}
