package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"workshop-service/internal/models"
)

func TestIsValid(t *testing.T) {
	assert.True(t, IsValid(models.StatusReceived, models.StatusDiagnosis))
	assert.True(t, IsValid(models.StatusRepair, models.StatusWaitingParts))
	assert.True(t, IsValid(models.StatusTesting, models.StatusRepair))
	assert.True(t, IsValid(models.StatusCompleted, models.StatusDelivered))

	// forward-only edges cannot be jumped
	assert.False(t, IsValid(models.StatusReceived, models.StatusDelivered))
	assert.False(t, IsValid(models.StatusReceived, models.StatusRepair))
	assert.False(t, IsValid(models.StatusDiagnosis, models.StatusTesting))
	assert.False(t, IsValid(models.StatusDelivered, models.StatusRepair))
	assert.False(t, IsValid(models.StatusCompleted, models.StatusCancelled))
	assert.False(t, IsValid(models.StatusCancelled, models.StatusReceived))
}

func TestClientDeniedEverything(t *testing.T) {
	pairs := [][2]string{
		{models.StatusReceived, models.StatusDiagnosis},
		{models.StatusDiagnosis, models.StatusRepair},
		{models.StatusTesting, models.StatusCompleted},
		{models.StatusCompleted, models.StatusDelivered},
		{models.StatusRepair, models.StatusCancelled},
	}
	for _, p := range pairs {
		assert.False(t, IsAllowed(models.RoleClient, p[0], p[1]), "client must not drive %s -> %s", p[0], p[1])
	}
}

func TestReceptionistEdges(t *testing.T) {
	assert.True(t, IsAllowed(models.RoleReceptionist, models.StatusReceived, models.StatusDiagnosis))
	assert.True(t, IsAllowed(models.RoleReceptionist, models.StatusCompleted, models.StatusDelivered))

	// any non-terminal state may be cancelled
	for _, from := range []string{
		models.StatusReceived, models.StatusDiagnosis, models.StatusWaitingParts,
		models.StatusRepair, models.StatusTesting,
	} {
		assert.True(t, IsAllowed(models.RoleReceptionist, from, models.StatusCancelled), "from %s", from)
	}

	assert.False(t, IsAllowed(models.RoleReceptionist, models.StatusDiagnosis, models.StatusRepair))
	assert.False(t, IsAllowed(models.RoleReceptionist, models.StatusTesting, models.StatusCompleted))
}

func TestTechnicianEdges(t *testing.T) {
	assert.True(t, IsAllowed(models.RoleTechnician, models.StatusReceived, models.StatusDiagnosis))
	assert.True(t, IsAllowed(models.RoleTechnician, models.StatusDiagnosis, models.StatusWaitingParts))
	assert.True(t, IsAllowed(models.RoleTechnician, models.StatusDiagnosis, models.StatusRepair))
	assert.True(t, IsAllowed(models.RoleTechnician, models.StatusWaitingParts, models.StatusRepair))
	assert.True(t, IsAllowed(models.RoleTechnician, models.StatusRepair, models.StatusWaitingParts))
	assert.True(t, IsAllowed(models.RoleTechnician, models.StatusRepair, models.StatusTesting))
	assert.True(t, IsAllowed(models.RoleTechnician, models.StatusTesting, models.StatusRepair))
	assert.True(t, IsAllowed(models.RoleTechnician, models.StatusTesting, models.StatusCompleted))

	// cancellation and delivery belong to the front desk
	assert.False(t, IsAllowed(models.RoleTechnician, models.StatusRepair, models.StatusCancelled))
	assert.False(t, IsAllowed(models.RoleTechnician, models.StatusCompleted, models.StatusDelivered))
}

func TestAdminDrivesWholeTable(t *testing.T) {
	for tr := range allowed {
		assert.True(t, IsAllowed(models.RoleAdmin, tr.From, tr.To), "%s -> %s", tr.From, tr.To)
	}
	// but not edges outside the table
	assert.False(t, IsAllowed(models.RoleAdmin, models.StatusReceived, models.StatusDelivered))
	assert.False(t, IsAllowed(models.RoleAdmin, models.StatusDelivered, models.StatusCancelled))
}

func TestUnknownRoleFailsClosed(t *testing.T) {
	assert.False(t, IsAllowed("INTERN", models.StatusReceived, models.StatusDiagnosis))
	assert.False(t, IsAllowed("", models.StatusRepair, models.StatusTesting))
}
