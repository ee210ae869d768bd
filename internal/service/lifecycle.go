package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"workshop-service/internal/apperr"
	"workshop-service/internal/broker"
	"workshop-service/internal/commission"
	"workshop-service/internal/models"
	"workshop-service/internal/policy"
	"workshop-service/internal/store"
	"workshop-service/internal/util"
)

// LifecycleService owns the service-order state machine. Every status
// change goes through Transition; side effects on stock and settlements
// happen inside the same unit or are rolled back.
type LifecycleService struct {
	store  store.Store
	ledger *LedgerService
	events *broker.EventPublisher // optional, nil without Kafka
	logger *zap.Logger
}

// NewLifecycleService creates the lifecycle controller.
func NewLifecycleService(st store.Store, ledger *LedgerService, events *broker.EventPublisher) *LifecycleService {
	return &LifecycleService{
		store:  st,
		ledger: ledger,
		events: events,
		logger: util.GetLogger(),
	}
}

// IntakeRequest is the data a receptionist records when equipment
// arrives at the shop.
type IntakeRequest struct {
	ClientID           string `json:"client_id" binding:"required"`
	EquipmentID        string `json:"equipment_id" binding:"required"`
	Priority           string `json:"priority,omitempty"`
	ProblemDescription string `json:"problem_description" binding:"required"`
	DeviceCondition    string `json:"device_condition,omitempty"`
}

// Intake creates a new service order in RECEIVED.
func (s *LifecycleService) Intake(ctx context.Context, req *IntakeRequest, actor models.Actor) (*models.ServiceOrder, error) {
	ctx, span := util.StartSpan(ctx, "LifecycleService.Intake")
	defer span.End()

	if actor.Role != models.RoleReceptionist && actor.Role != models.RoleAdmin {
		return nil, fmt.Errorf("role %s may not create orders: %w", actor.Role, apperr.ErrForbidden)
	}

	priority := req.Priority
	if priority == "" {
		priority = models.PriorityNormal
	}
	switch priority {
	case models.PriorityLow, models.PriorityNormal, models.PriorityHigh, models.PriorityUrgent:
	default:
		return nil, fmt.Errorf("unknown priority %q: %w", req.Priority, apperr.ErrInvalidPayload)
	}

	order := &models.ServiceOrder{
		ID:                 uuid.New().String(),
		OrderNumber:        newOrderNumber(),
		ClientID:           req.ClientID,
		ReceptionistID:     actor.UserID,
		EquipmentID:        req.EquipmentID,
		Status:             models.StatusReceived,
		Priority:           priority,
		ProblemDescription: req.ProblemDescription,
		DeviceCondition:    req.DeviceCondition,
		Version:            1,
	}

	if err := s.store.CreateOrder(ctx, order); err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	util.OrdersCreatedTotal.Inc()
	s.logger.Info("Order created",
		zap.String("order_id", order.ID),
		zap.String("order_number", order.OrderNumber),
		zap.String("priority", order.Priority))

	if s.events != nil {
		event := &models.OrderCreatedEvent{
			BaseEvent:   newBaseEvent(models.EventTypeOrderCreated),
			OrderID:     order.ID,
			OrderNumber: order.OrderNumber,
			ClientID:    order.ClientID,
			Priority:    order.Priority,
		}
		if err := s.events.PublishOrderCreated(ctx, event); err != nil {
			s.logger.Error("Failed to publish OrderCreated event", zap.Error(err))
		}
	}
	return order, nil
}

// Transition drives one edge of the state machine on behalf of an
// actor. A failed call leaves order, stock and settlements untouched.
func (s *LifecycleService) Transition(ctx context.Context, orderID, target string, actor models.Actor, payload *models.TransitionPayload) (*models.ServiceOrder, error) {
	ctx, span := util.StartSpan(ctx, "LifecycleService.Transition")
	defer span.End()

	start := time.Now()
	defer func() {
		util.TransitionLatency.Observe(time.Since(start).Seconds())
	}()

	order, err := s.store.ReadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if err := s.checkTransition(order, target, actor); err != nil {
		util.TransitionsRejectedTotal.WithLabelValues(rejectReason(err)).Inc()
		return nil, err
	}

	from := order.Status
	expectedVersion := order.Version

	if err := s.applyAssignment(order, target, actor, payload); err != nil {
		util.TransitionsRejectedTotal.WithLabelValues(rejectReason(err)).Inc()
		return nil, err
	}
	order.Status = target

	var settlement *models.CommissionSettlement
	var consumed []*models.PartConsumption

	switch {
	case target == models.StatusCompleted:
		settlement, err = s.commitCompletion(ctx, order, expectedVersion, payload)

	case target == models.StatusRepair && payload != nil && len(payload.PartsUsed) > 0 &&
		(from == models.StatusDiagnosis || from == models.StatusWaitingParts):
		consumed, err = s.commitRepairWithParts(ctx, order, expectedVersion, payload.PartsUsed)

	default:
		err = s.store.WriteOrderIf(ctx, order, expectedVersion)
	}

	if err != nil {
		util.TransitionsRejectedTotal.WithLabelValues(rejectReason(err)).Inc()
		return nil, err
	}
	order.UpdatedAt = time.Now().UTC()

	util.TransitionsTotal.WithLabelValues(from, target).Inc()
	s.logger.Info("Order transitioned",
		zap.String("order_id", order.ID),
		zap.String("from", from),
		zap.String("to", target),
		zap.String("actor_id", actor.UserID),
		zap.String("actor_role", actor.Role))

	s.publishTransition(ctx, order, from, actor, settlement, consumed)
	return order, nil
}

// checkTransition runs the validity, policy and terminal-state gates
// before any mutation.
func (s *LifecycleService) checkTransition(order *models.ServiceOrder, target string, actor models.Actor) error {
	if order.Closed() {
		return fmt.Errorf("order %s is %s: %w", order.ID, order.Status, apperr.ErrOrderClosed)
	}
	if !policy.IsValid(order.Status, target) {
		return fmt.Errorf("%s -> %s: %w", order.Status, target, apperr.ErrInvalidTransition)
	}
	if !policy.IsAllowed(actor.Role, order.Status, target) {
		return fmt.Errorf("role %s may not drive %s -> %s: %w",
			actor.Role, order.Status, target, apperr.ErrForbidden)
	}

	// A technician may only work their own order; the one exception is
	// the RECEIVED -> DIAGNOSIS claim, handled in applyAssignment.
	if actor.Role == models.RoleTechnician && order.Status != models.StatusReceived {
		if order.TechnicianID == nil || *order.TechnicianID != actor.UserID {
			return fmt.Errorf("order %s is not assigned to technician %s: %w",
				order.ID, actor.UserID, apperr.ErrForbidden)
		}
	}

	// The order cannot leave DIAGNOSIS unassigned, except to be cancelled.
	if order.Status == models.StatusDiagnosis && target != models.StatusCancelled && order.TechnicianID == nil {
		return fmt.Errorf("order %s has no technician assigned: %w", order.ID, apperr.ErrInvalidTransition)
	}
	return nil
}

// applyAssignment handles technician assignment on the
// RECEIVED -> DIAGNOSIS edge. The first successful claim wins; the
// version CAS turns a concurrent double-claim into a lost race.
func (s *LifecycleService) applyAssignment(order *models.ServiceOrder, target string, actor models.Actor, payload *models.TransitionPayload) error {
	if order.Status != models.StatusReceived || target != models.StatusDiagnosis {
		return nil
	}

	switch {
	case actor.Role == models.RoleTechnician:
		if order.TechnicianID != nil && *order.TechnicianID != actor.UserID {
			return fmt.Errorf("order %s claimed by technician %s: %w",
				order.ID, *order.TechnicianID, apperr.ErrAlreadyAssigned)
		}
		id := actor.UserID
		order.TechnicianID = &id

	case payload != nil && payload.TechnicianID != nil:
		if order.TechnicianID != nil && *order.TechnicianID != *payload.TechnicianID {
			return fmt.Errorf("order %s claimed by technician %s: %w",
				order.ID, *order.TechnicianID, apperr.ErrAlreadyAssigned)
		}
		order.TechnicianID = payload.TechnicianID
	}
	return nil
}

// commitCompletion validates the final cost, computes the settlement
// and commits both the status change and the settlement as one unit.
func (s *LifecycleService) commitCompletion(ctx context.Context, order *models.ServiceOrder, expectedVersion int64, payload *models.TransitionPayload) (*models.CommissionSettlement, error) {
	if payload == nil || payload.FinalCost == nil {
		return nil, fmt.Errorf("final cost is required to complete order %s: %w",
			order.ID, apperr.ErrInvalidPayload)
	}
	if payload.FinalCost.IsNegative() {
		return nil, fmt.Errorf("final cost %s is negative: %w",
			payload.FinalCost, apperr.ErrInvalidPayload)
	}
	order.FinalCost = payload.FinalCost

	rate, err := s.store.ReadTechnicianRate(ctx, *order.TechnicianID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up commission rate: %w", err)
	}

	settlement, err := commission.Settle(order, rate)
	if err != nil {
		return nil, err
	}

	if err := s.store.CompleteOrderIf(ctx, order, expectedVersion, settlement); err != nil {
		return nil, err
	}

	util.SettlementsCreatedTotal.Inc()
	s.logger.Info("Commission settled",
		zap.String("order_id", order.ID),
		zap.String("technician_id", settlement.TechnicianID),
		zap.String("rate", settlement.RateApplied.String()),
		zap.String("amount", settlement.Amount.String()))
	return settlement, nil
}

// commitRepairWithParts consumes the requested parts and then advances
// the order, reversing every consumption if the status write loses.
// Reserve both, commit both, or roll back both.
func (s *LifecycleService) commitRepairWithParts(ctx context.Context, order *models.ServiceOrder, expectedVersion int64, parts []models.PartRequest) ([]*models.PartConsumption, error) {
	consumed := make([]*models.PartConsumption, 0, len(parts))
	rollback := func() {
		for _, c := range consumed {
			if _, err := s.ledger.reverse(ctx, c.ID); err != nil {
				s.logger.Error("Failed to roll back consumption",
					zap.String("consumption_id", c.ID),
					zap.String("order_id", order.ID),
					zap.Error(err))
			}
		}
	}

	for _, part := range parts {
		consumption, err := s.ledger.Consume(ctx, order.ID, part.PartID, part.Quantity)
		if err != nil {
			rollback()
			return nil, err
		}
		consumed = append(consumed, consumption)
	}

	if err := s.store.WriteOrderIf(ctx, order, expectedVersion); err != nil {
		rollback()
		return nil, err
	}
	return consumed, nil
}

// ConsumeParts records parts used on an order already in REPAIR,
// outside of a status change. All lines succeed or none do.
func (s *LifecycleService) ConsumeParts(ctx context.Context, orderID string, parts []models.PartRequest, actor models.Actor) ([]*models.PartConsumption, error) {
	ctx, span := util.StartSpan(ctx, "LifecycleService.ConsumeParts")
	defer span.End()

	if len(parts) == 0 {
		return nil, fmt.Errorf("no parts given: %w", apperr.ErrInvalidPayload)
	}

	order, err := s.store.ReadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Closed() {
		return nil, fmt.Errorf("order %s is %s: %w", order.ID, order.Status, apperr.ErrOrderClosed)
	}
	if order.Status != models.StatusRepair {
		return nil, fmt.Errorf("order %s is %s, parts are consumed during repair: %w",
			order.ID, order.Status, apperr.ErrInvalidTransition)
	}

	switch actor.Role {
	case models.RoleAdmin:
	case models.RoleTechnician:
		if order.TechnicianID == nil || *order.TechnicianID != actor.UserID {
			return nil, fmt.Errorf("order %s is not assigned to technician %s: %w",
				order.ID, actor.UserID, apperr.ErrForbidden)
		}
	default:
		return nil, fmt.Errorf("role %s may not consume parts: %w", actor.Role, apperr.ErrForbidden)
	}

	consumed := make([]*models.PartConsumption, 0, len(parts))
	for _, part := range parts {
		consumption, err := s.ledger.Consume(ctx, order.ID, part.PartID, part.Quantity)
		if err != nil {
			for _, c := range consumed {
				if _, rerr := s.ledger.reverse(ctx, c.ID); rerr != nil {
					s.logger.Error("Failed to roll back consumption",
						zap.String("consumption_id", c.ID), zap.Error(rerr))
				}
			}
			return nil, err
		}
		consumed = append(consumed, consumption)
	}

	s.publishPartsConsumed(ctx, orderID, consumed)
	return consumed, nil
}

// GetOrder retrieves an order with its consumption lines.
func (s *LifecycleService) GetOrder(ctx context.Context, orderID string) (*models.ServiceOrder, []models.PartConsumption, error) {
	order, err := s.store.ReadOrder(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}
	consumptions, err := s.store.ListConsumptions(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}
	return order, consumptions, nil
}

// GetHistory retrieves the status history projection for an order.
func (s *LifecycleService) GetHistory(ctx context.Context, orderID string) ([]models.StatusEvent, error) {
	if _, err := s.store.ReadOrder(ctx, orderID); err != nil {
		return nil, err
	}
	return s.store.ListStatusHistory(ctx, orderID)
}

// GetSettlement retrieves the settlement for a completed order.
func (s *LifecycleService) GetSettlement(ctx context.Context, orderID string) (*models.CommissionSettlement, error) {
	return s.store.ReadSettlement(ctx, orderID)
}

func (s *LifecycleService) publishTransition(ctx context.Context, order *models.ServiceOrder, from string, actor models.Actor, settlement *models.CommissionSettlement, consumed []*models.PartConsumption) {
	if s.events == nil {
		return
	}

	event := &models.OrderTransitionedEvent{
		BaseEvent:  newBaseEvent(models.EventTypeOrderTransitioned),
		OrderID:    order.ID,
		FromStatus: from,
		ToStatus:   order.Status,
		ActorID:    actor.UserID,
		ActorRole:  actor.Role,
	}
	if err := s.events.PublishOrderTransitioned(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderTransitioned event", zap.Error(err))
	}

	if settlement != nil {
		completed := &models.OrderCompletedEvent{
			BaseEvent:        newBaseEvent(models.EventTypeOrderCompleted),
			OrderID:          order.ID,
			TechnicianID:     settlement.TechnicianID,
			FinalCost:        *order.FinalCost,
			CommissionRate:   settlement.RateApplied,
			CommissionAmount: settlement.Amount,
		}
		if err := s.events.PublishOrderCompleted(ctx, completed); err != nil {
			s.logger.Error("Failed to publish OrderCompleted event", zap.Error(err))
		}
	}

	if order.Status == models.StatusCancelled {
		cancelled := &models.OrderCancelledEvent{
			BaseEvent:  newBaseEvent(models.EventTypeOrderCancelled),
			OrderID:    order.ID,
			FromStatus: from,
			ActorID:    actor.UserID,
		}
		if err := s.events.PublishOrderCancelled(ctx, cancelled); err != nil {
			s.logger.Error("Failed to publish OrderCancelled event", zap.Error(err))
		}
	}

	if len(consumed) > 0 {
		s.publishPartsConsumed(ctx, order.ID, consumed)
	}
}

func (s *LifecycleService) publishPartsConsumed(ctx context.Context, orderID string, consumed []*models.PartConsumption) {
	if s.events == nil {
		return
	}
	rows := make([]models.PartConsumedRow, 0, len(consumed))
	for _, c := range consumed {
		rows = append(rows, models.PartConsumedRow{
			ConsumptionID: c.ID,
			PartID:        c.PartID,
			Quantity:      c.Quantity,
		})
	}
	event := &models.PartsConsumedEvent{
		BaseEvent: newBaseEvent(models.EventTypePartsConsumed),
		OrderID:   orderID,
		Parts:     rows,
	}
	if err := s.events.PublishPartsConsumed(ctx, event); err != nil {
		s.logger.Error("Failed to publish PartsConsumed event", zap.Error(err))
	}
}

// newOrderNumber issues a human-readable order number.
func newOrderNumber() string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:8])
	return fmt.Sprintf("SO-%d-%s", time.Now().UTC().Year(), suffix)
}

// rejectReason maps a failure to its metric label.
func rejectReason(err error) string {
	switch {
	case errors.Is(err, apperr.ErrForbidden):
		return "forbidden"
	case errors.Is(err, apperr.ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, apperr.ErrInvalidPayload):
		return "invalid_payload"
	case errors.Is(err, apperr.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, apperr.ErrConcurrentModification):
		return "concurrent_modification"
	case errors.Is(err, apperr.ErrOrderClosed):
		return "order_closed"
	case errors.Is(err, apperr.ErrAlreadyAssigned):
		return "already_assigned"
	case errors.Is(err, apperr.ErrAlreadyReversed):
		return "already_reversed"
	case errors.Is(err, apperr.ErrNotFound):
		return "not_found"
	default:
		return "internal"
	}
}
