package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/restitch/restitch/internal/authz"
	"github.com/restitch/restitch/internal/db"
	"github.com/restitch/restitch/internal/models"
)

func TestDesignerQueue_GroupsAssignedOrders(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	dashboard := NewDashboardService(f.store, discardLogger())
	f.redesignOrder(t, models.ReviewPending)
	f.redesignOrder(t, models.ReviewPending)
	f.redesignOrder(t, models.ReviewInProgress)
	f.redesignOrder(t, models.ReviewApproved)
	f.addOrder(t, &models.Order{ServiceType: models.ServiceRedesign, ReviewStage: models.ReviewPending})

	queue, err := dashboard.DesignerQueue(t.Context(), f.designer)
	require.NoError(t, err)
	assert.Len(t, queue.Review, 2)
	assert.Len(t, queue.InProgress, 1)
	assert.Empty(t, queue.Complete)
	assert.Equal(t, map[string]int{"review": 2, "in_progress": 1, "complete": 0}, queue.Counts)

	_, err = dashboard.DesignerQueue(t.Context(), f.customer)
	require.ErrorIs(t, err, authz.ErrForbidden)
}

func TestCustomerOverview_OnlyOwnRecords(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	dashboard := NewDashboardService(f.store, discardLogger())
	other := f.addUser(t, models.RoleCustomer, 0)

	_, err := f.pickups.SchedulePickup(t.Context(), f.customer, scheduleInput(models.ServiceDonate))
	require.NoError(t, err)
	f.addOrder(t, &models.Order{ServiceType: models.ServiceDonate, FulfillmentStage: models.FulfillmentReceived})
	f.addOrder(t, &models.Order{UserID: other.UserID, ServiceType: models.ServiceDonate, FulfillmentStage: models.FulfillmentReceived})
	_, err = f.orders.UpdateOrder(t.Context(), f.admin, 1, OrderUpdate{PointsAwarded: ptr(40)})
	require.NoError(t, err)

	overview, err := dashboard.CustomerOverview(t.Context(), f.customer)
	require.NoError(t, err)
	assert.Equal(t, 40, overview.Points)
	assert.Len(t, overview.Orders, 1)
	assert.Len(t, overview.Pickups, 1)

	empty, err := dashboard.CustomerOverview(t.Context(), f.designer)
	require.NoError(t, err)
	assert.NotNil(t, empty.Orders)
	assert.NotNil(t, empty.Pickups)
}

func TestAdminOrders_FilterAndPaginate(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	dashboard := NewDashboardService(f.store, discardLogger())
	for range 25 {
		f.redesignOrder(t, models.ReviewPending)
	}
	f.addOrder(t, &models.Order{ServiceType: models.ServiceDonate, FulfillmentStage: models.FulfillmentReceived})

	page, err := dashboard.AdminOrders(t.Context(), f.admin, db.OrderFilter{Status: "review", Page: 2})
	require.NoError(t, err)
	assert.Equal(t, 25, page.Total)
	assert.Equal(t, 2, page.Page)
	assert.Equal(t, db.DefaultPageSize, page.Limit)
	assert.Equal(t, 2, page.TotalPages)
	assert.Len(t, page.Items, 5)

	page, err = dashboard.AdminOrders(t.Context(), f.admin, db.OrderFilter{Status: "received"})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)

	_, err = dashboard.AdminOrders(t.Context(), f.designer, db.OrderFilter{})
	require.ErrorIs(t, err, authz.ErrForbidden)
}

func TestAdminPickups_RejectsUnknownStatus(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	dashboard := NewDashboardService(f.store, discardLogger())
	f.addPickup(t, models.ServiceDonate)

	page, err := dashboard.AdminPickups(t.Context(), f.admin, db.PickupFilter{Status: models.PickupPending})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)

	_, err = dashboard.AdminPickups(t.Context(), f.admin, db.PickupFilter{Status: "lost"})
	require.ErrorIs(t, err, ErrValidationFailed)
}

func TestOrderDetail_Visibility(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	dashboard := NewDashboardService(f.store, discardLogger())
	input := scheduleInput(models.ServiceRedesign)
	input.DesignerID = f.designer.UserID
	scheduled, err := f.pickups.SchedulePickup(t.Context(), f.customer, input)
	require.NoError(t, err)
	orderID := scheduled.Order.ID

	for _, principal := range []authz.Principal{f.admin, f.customer, f.designer} {
		detail, err := dashboard.OrderDetail(t.Context(), principal, orderID)
		require.NoError(t, err)
		require.NotNil(t, detail.Pickup)
		assert.Equal(t, scheduled.Pickup.ID, detail.Pickup.ID)
		assert.Len(t, detail.Activity, 1)
	}

	stranger := f.addUser(t, models.RoleCustomer, 0)
	_, err = dashboard.OrderDetail(t.Context(), stranger, orderID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestTrack_ReturnsTimeline(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	dashboard := NewDashboardService(f.store, discardLogger())
	order := f.redesignOrder(t, models.ReviewComplete)
	_, err := f.orders.ApproveOrder(t.Context(), f.admin, order.ID)
	require.NoError(t, err)

	tracking, err := dashboard.Track(t.Context(), " rs000001 ")
	require.NoError(t, err)
	assert.Equal(t, "RS000001", tracking.Barcode)
	assert.Equal(t, "ready", tracking.Status)
	require.Len(t, tracking.Timeline, len(models.FulfillmentStages))
	for i, step := range tracking.Timeline {
		assert.Equal(t, i <= models.FulfillmentReady.Position(), step.Completed, step.Stage)
		assert.Equal(t, step.Stage == models.FulfillmentReady, step.Current, step.Stage)
	}
	require.Len(t, tracking.Events, 1)
	assert.Equal(t, "Order approved for delivery", tracking.Events[0].Action)

	_, err = dashboard.Track(t.Context(), "RS999999")
	require.ErrorIs(t, err, ErrNotFound)
	_, err = dashboard.Track(t.Context(), "  ")
	require.ErrorIs(t, err, ErrValidationFailed)
}

func TestAdminApplications_FilterByStatus(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	apps := NewApplicationService(f.store, discardLogger())
	dashboard := NewDashboardService(f.store, discardLogger())

	first, err := apps.ApplyDesigner(t.Context(), f.customer, applicationInput())
	require.NoError(t, err)
	other := f.addUser(t, models.RoleCustomer, 0)
	second, err := apps.ApplyDesigner(t.Context(), other, applicationInput())
	require.NoError(t, err)
	_, err = apps.ReviewDesignerApplication(t.Context(), f.admin, first.ID, ReviewApplicationInput{Decision: DecisionReject})
	require.NoError(t, err)

	page, err := dashboard.AdminApplications(t.Context(), f.admin, db.ApplicationFilter{Status: models.ApplicationPending})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, second.ID, page.Items[0].ID)

	page, err = dashboard.AdminApplications(t.Context(), f.admin, db.ApplicationFilter{})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)
	assert.Equal(t, second.ID, page.Items[0].ID)

	_, err = dashboard.AdminApplications(t.Context(), f.admin, db.ApplicationFilter{Status: "withdrawn"})
	require.ErrorIs(t, err, ErrValidationFailed)
	_, err = dashboard.AdminApplications(t.Context(), f.customer, db.ApplicationFilter{})
	require.ErrorIs(t, err, authz.ErrForbidden)
}
