package services

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/restitch/restitch/internal/authz"
	"github.com/restitch/restitch/internal/models"
)

func (f *fixture) redesignOrder(t *testing.T, stage models.ReviewStage) *models.Order {
	t.Helper()

	designerID := f.designer.UserID
	return f.addOrder(t, &models.Order{
		DesignerID:  &designerID,
		ServiceType: models.ServiceRedesign,
		ReviewStage: stage,
	})
}

func countActions(entries []*models.ActivityLog, substr string) int {
	count := 0
	for _, entry := range entries {
		if strings.Contains(strings.ToLower(entry.Action), substr) {
			count++
		}
	}
	return count
}

func TestAcceptOrder_SchedulesLinkedPickup(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	input := scheduleInput(models.ServiceRedesign)
	input.DesignerID = f.designer.UserID
	scheduled, err := f.pickups.SchedulePickup(t.Context(), f.customer, input)
	require.NoError(t, err)

	order, err := f.orders.AcceptOrder(t.Context(), f.designer, scheduled.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReviewInProgress, order.ReviewStage)

	pickup, err := f.store.GetPickup(t.Context(), scheduled.Pickup.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PickupScheduled, pickup.Status)
	assert.Len(t, f.activity(t, models.SubjectPickup, pickup.ID), 2)
}

func TestAcceptOrder_LeavesAdvancedPickupAlone(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	input := scheduleInput(models.ServiceRedesign)
	input.DesignerID = f.designer.UserID
	scheduled, err := f.pickups.SchedulePickup(t.Context(), f.customer, input)
	require.NoError(t, err)
	_, err = f.pickups.AcceptPickup(t.Context(), f.admin, scheduled.Pickup.ID)
	require.NoError(t, err)

	_, err = f.orders.AcceptOrder(t.Context(), f.designer, scheduled.Order.ID)
	require.NoError(t, err)

	pickup, err := f.store.GetPickup(t.Context(), scheduled.Pickup.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PickupCompleted, pickup.Status)
}

func TestDesignerTransitions_RequireAssignment(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	other := f.addUser(t, models.RoleDesigner, 0)
	order := f.redesignOrder(t, models.ReviewPending)

	_, err := f.orders.AcceptOrder(t.Context(), other, order.ID)
	require.ErrorIs(t, err, ErrPreconditionFailed)
	assert.Contains(t, UserMessage(err), "not assigned to you")

	_, err = f.orders.AcceptOrder(t.Context(), f.customer, order.ID)
	require.ErrorIs(t, err, authz.ErrForbidden)

	stored, err := f.store.GetOrder(t.Context(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReviewPending, stored.ReviewStage)
	assert.Empty(t, f.activity(t, models.SubjectOrder, order.ID))
}

func TestDesignerTransitions_FollowReviewEdges(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	order := f.redesignOrder(t, models.ReviewPending)

	_, err := f.orders.CompleteOrder(t.Context(), f.designer, order.ID)
	require.ErrorIs(t, err, ErrPreconditionFailed)

	_, err = f.orders.AcceptOrder(t.Context(), f.designer, order.ID)
	require.NoError(t, err)

	_, err = f.orders.AcceptOrder(t.Context(), f.designer, order.ID)
	require.ErrorIs(t, err, ErrPreconditionFailed)
	_, err = f.orders.RejectOrder(t.Context(), f.designer, order.ID, "changed my mind")
	require.ErrorIs(t, err, ErrPreconditionFailed)

	completed, err := f.orders.CompleteOrder(t.Context(), f.designer, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReviewComplete, completed.ReviewStage)
	assert.Len(t, f.activity(t, models.SubjectOrder, order.ID), 2)
}

func TestRejectOrder_AppendsReason(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	designerID := f.designer.UserID
	order := f.addOrder(t, &models.Order{
		DesignerID:  &designerID,
		ServiceType: models.ServiceRedesign,
		ReviewStage: models.ReviewPending,
		Notes:       "Make it a crop top",
	})

	rejected, err := f.orders.RejectOrder(t.Context(), f.designer, order.ID, "Fabric too worn")
	require.NoError(t, err)
	f.wait()

	assert.Equal(t, models.ReviewRejected, rejected.ReviewStage)
	assert.Equal(t, "Make it a crop top\nRejected by designer: Fabric too worn", rejected.Notes)
	assert.True(t, rejected.IsTerminal())
	assert.Equal(t, "order_status", f.notifier.last().kind)

	_, err = f.orders.RejectOrder(t.Context(), f.designer, order.ID, "")
	require.ErrorIs(t, err, ErrValidationFailed)
}

func TestApproveOrder_AssignsBarcodeOnce(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	var order *models.Order
	for range 42 {
		order = f.redesignOrder(t, models.ReviewComplete)
	}
	require.Equal(t, int64(42), order.ID)

	approved, err := f.orders.ApproveOrder(t.Context(), f.admin, order.ID)
	require.NoError(t, err)
	f.wait()

	assert.Equal(t, models.ReviewApproved, approved.ReviewStage)
	assert.Equal(t, models.FulfillmentReady, approved.FulfillmentStage)
	assert.Equal(t, "RS000042", approved.Barcode)
	assert.Equal(t, 1, countActions(f.activity(t, models.SubjectOrder, order.ID), "approved"))

	_, err = f.orders.ApproveOrder(t.Context(), f.admin, order.ID)
	require.ErrorIs(t, err, ErrPreconditionFailed)

	stored, err := f.store.GetOrder(t.Context(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, "RS000042", stored.Barcode)
	assert.Equal(t, 1, countActions(f.activity(t, models.SubjectOrder, order.ID), "approved"))

	byBarcode, err := f.store.GetOrderByBarcode(t.Context(), "RS000042")
	require.NoError(t, err)
	assert.Equal(t, order.ID, byBarcode.ID)
}

func TestApproveOrder_RequiresComplete(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	order := f.redesignOrder(t, models.ReviewInProgress)

	_, err := f.orders.ApproveOrder(t.Context(), f.admin, order.ID)
	require.ErrorIs(t, err, ErrPreconditionFailed)

	_, err = f.orders.ApproveOrder(t.Context(), f.designer, order.ID)
	require.ErrorIs(t, err, authz.ErrForbidden)

	stored, err := f.store.GetOrder(t.Context(), order.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.Barcode)
}

func TestApproveOrder_ConcurrentCallsSucceedOnce(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	order := f.redesignOrder(t, models.ReviewComplete)

	const attempts = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		failures  int
	)
	for range attempts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.orders.ApproveOrder(t.Context(), f.admin, order.ID)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
				return
			}
			assert.ErrorIs(t, err, ErrPreconditionFailed)
			failures++
		}()
	}
	wg.Wait()
	f.wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, attempts-1, failures)

	stored, err := f.store.GetOrder(t.Context(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, FormatBarcode(order.ID), stored.Barcode)
	assert.Equal(t, 1, countActions(f.activity(t, models.SubjectOrder, order.ID), "approved"))
}

func TestAdvanceFulfillment_StrictlyNextStage(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	order := f.addOrder(t, &models.Order{
		ServiceType:      models.ServiceDonate,
		FulfillmentStage: models.FulfillmentReceived,
	})

	_, err := f.orders.AdvanceFulfillment(t.Context(), f.admin, order.ID, models.FulfillmentDesigning)
	require.ErrorIs(t, err, ErrPreconditionFailed)
	_, err = f.orders.AdvanceFulfillment(t.Context(), f.admin, order.ID, models.FulfillmentReceived)
	require.ErrorIs(t, err, ErrPreconditionFailed)
	_, err = f.orders.AdvanceFulfillment(t.Context(), f.admin, order.ID, "lost")
	require.ErrorIs(t, err, ErrValidationFailed)

	for _, stage := range []models.FulfillmentStage{models.FulfillmentSorting, models.FulfillmentDesigning, models.FulfillmentReady} {
		advanced, err := f.orders.AdvanceFulfillment(t.Context(), f.admin, order.ID, stage)
		require.NoError(t, err)
		assert.Equal(t, stage, advanced.FulfillmentStage)
	}

	stored, err := f.store.GetOrder(t.Context(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, FormatBarcode(order.ID), stored.Barcode)

	_, err = f.orders.AdvanceFulfillment(t.Context(), f.admin, order.ID, models.FulfillmentSorting)
	require.ErrorIs(t, err, ErrPreconditionFailed)

	for _, stage := range []models.FulfillmentStage{models.FulfillmentShipped, models.FulfillmentDelivered} {
		_, err := f.orders.AdvanceFulfillment(t.Context(), f.admin, order.ID, stage)
		require.NoError(t, err)
	}
	_, err = f.orders.AdvanceFulfillment(t.Context(), f.admin, order.ID, models.FulfillmentDelivered)
	require.ErrorIs(t, err, ErrPreconditionFailed)

	stored, err = f.store.GetOrder(t.Context(), order.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsTerminal())
	assert.Equal(t, FormatBarcode(order.ID), stored.Barcode)
}

func TestAdvanceFulfillment_RequiresPipeline(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	order := f.redesignOrder(t, models.ReviewInProgress)

	_, err := f.orders.AdvanceFulfillment(t.Context(), f.admin, order.ID, models.FulfillmentReceived)
	require.ErrorIs(t, err, ErrPreconditionFailed)
}
