// Package policy maps (actor role, requested transition) to permit/deny.
// It is the single source of truth for role gating; the lifecycle
// controller consults it before touching any state.
package policy

import "workshop-service/internal/models"

// Transition is one directed edge of the order state machine.
type Transition struct {
	From string
	To   string
}

// allowed is the full transition table of the state machine. Roles
// below hold subsets of it; anything outside it is invalid for everyone.
var allowed = map[Transition]bool{
	{models.StatusReceived, models.StatusDiagnosis}:     true,
	{models.StatusReceived, models.StatusCancelled}:     true,
	{models.StatusDiagnosis, models.StatusWaitingParts}: true,
	{models.StatusDiagnosis, models.StatusRepair}:       true,
	{models.StatusDiagnosis, models.StatusCancelled}:    true,
	{models.StatusWaitingParts, models.StatusRepair}:    true,
	{models.StatusWaitingParts, models.StatusCancelled}: true,
	{models.StatusRepair, models.StatusWaitingParts}:    true,
	{models.StatusRepair, models.StatusTesting}:         true,
	{models.StatusRepair, models.StatusCancelled}:       true,
	{models.StatusTesting, models.StatusRepair}:         true,
	{models.StatusTesting, models.StatusCompleted}:      true,
	{models.StatusTesting, models.StatusCancelled}:      true,
	{models.StatusCompleted, models.StatusDelivered}:    true,
}

// technicianEdges are the working edges a technician may drive,
// including the RECEIVED->DIAGNOSIS claim.
var technicianEdges = map[Transition]bool{
	{models.StatusReceived, models.StatusDiagnosis}:     true,
	{models.StatusDiagnosis, models.StatusWaitingParts}: true,
	{models.StatusDiagnosis, models.StatusRepair}:       true,
	{models.StatusWaitingParts, models.StatusRepair}:    true,
	{models.StatusRepair, models.StatusWaitingParts}:    true,
	{models.StatusRepair, models.StatusTesting}:         true,
	{models.StatusTesting, models.StatusRepair}:         true,
	{models.StatusTesting, models.StatusCompleted}:      true,
}

// IsValid reports whether (from, to) is in the state machine at all,
// regardless of who asks.
func IsValid(from, to string) bool {
	return allowed[Transition{from, to}]
}

// IsAllowed reports whether the role may drive the (from, to) edge.
// Unknown roles are denied; the table fails closed.
func IsAllowed(role, from, to string) bool {
	t := Transition{from, to}
	if !allowed[t] {
		return false
	}

	switch role {
	case models.RoleAdmin:
		return true
	case models.RoleReceptionist:
		if t.To == models.StatusCancelled {
			return true
		}
		return t == Transition{models.StatusReceived, models.StatusDiagnosis} ||
			t == Transition{models.StatusCompleted, models.StatusDelivered}
	case models.RoleTechnician:
		return technicianEdges[t]
	default:
		// CLIENT and anything unrecognized: read-only.
		return false
	}
}
