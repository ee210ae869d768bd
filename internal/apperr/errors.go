// Package apperr defines the failure kinds the engine returns to callers.
// Every kind is a sentinel matched with errors.Is; callers wrap with
// fmt.Errorf("...: %w", kind) to attach context without losing the kind.
package apperr

import "errors"

var (
	// ErrForbidden is a policy denial for the (role, transition) pair.
	ErrForbidden = errors.New("forbidden")

	// ErrInvalidTransition is a status pair outside the allowed table.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrInvalidPayload is a missing or out-of-range required field.
	ErrInvalidPayload = errors.New("invalid payload")

	// ErrInsufficientStock means on-hand quantity cannot cover the request.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrConcurrentModification is a lost compare-and-swap race.
	// It is the only kind a caller should routinely retry after re-reading.
	ErrConcurrentModification = errors.New("concurrent modification")

	// ErrOrderClosed means the order is DELIVERED or CANCELLED.
	ErrOrderClosed = errors.New("order closed")

	// ErrAlreadyReversed means the consumption was reversed before.
	ErrAlreadyReversed = errors.New("consumption already reversed")

	// ErrAlreadyAssigned means another technician claimed the order first.
	ErrAlreadyAssigned = errors.New("order already assigned")

	// ErrNotFound means the referenced entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidQuantity means a replenishment quantity was not positive.
	ErrInvalidQuantity = errors.New("invalid quantity")
)
