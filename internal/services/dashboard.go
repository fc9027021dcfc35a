package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/restitch/restitch/internal/authz"
	"github.com/restitch/restitch/internal/db"
	"github.com/restitch/restitch/internal/logging"
	"github.com/restitch/restitch/internal/models"
)

// queueLimit bounds the per-role dashboards, which are not paginated.
const queueLimit = 200

// DashboardService answers the role-scoped read queries.
type DashboardService struct {
	store  db.Reader
	logger *slog.Logger
}

func NewDashboardService(store db.Reader, logger *slog.Logger) *DashboardService {
	if logger == nil {
		logger = slog.Default()
	}
	return &DashboardService{store: store, logger: logger}
}

func (s *DashboardService) loggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, s.logger)
}

func (s *DashboardService) startSpan(ctx context.Context, name string) *sentry.Span {
	return sentry.StartSpan(
		ctx,
		"service.dashboard."+name,
		sentry.WithOpName("service.dashboard"),
		sentry.WithDescription(name),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
}

func authorize(principal authz.Principal, capability authz.Capability) error {
	if err := authz.Require(principal, capability); err != nil {
		return fmt.Errorf("%w: %w", ErrPreconditionFailed, err)
	}
	return nil
}

type Page[T any] struct {
	Items      []T `json:"items"`
	Total      int `json:"total"`
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	TotalPages int `json:"total_pages"`
}

func newPage[T any](items []T, total, page, limit int) *Page[T] {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = db.DefaultPageSize
	}
	if items == nil {
		items = []T{}
	}
	return &Page[T]{
		Items:      items,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: (total + limit - 1) / limit,
	}
}

type DesignerQueue struct {
	Review     []*models.Order `json:"review"`
	InProgress []*models.Order `json:"in_progress"`
	Complete   []*models.Order `json:"complete"`
	Counts     map[string]int  `json:"counts"`
}

// DesignerQueue groups the orders assigned to the designer by review stage.
func (s *DashboardService) DesignerQueue(ctx context.Context, principal authz.Principal) (*DesignerQueue, error) {
	span := s.startSpan(ctx, "designer_queue")
	defer span.Finish()
	ctx = span.Context()

	if err := authorize(principal, authz.ViewDesignQueue); err != nil {
		return nil, err
	}

	orders, _, err := s.store.ListOrders(ctx, db.OrderFilter{DesignerID: principal.UserID, Limit: queueLimit})
	if err != nil {
		s.loggerFromContext(ctx).Error("failed to list designer orders", "error", err, "designer_id", principal.UserID)
		return nil, classify(err)
	}

	queue := &DesignerQueue{
		Review:     []*models.Order{},
		InProgress: []*models.Order{},
		Complete:   []*models.Order{},
	}
	for _, order := range orders {
		switch order.ReviewStage {
		case models.ReviewPending:
			queue.Review = append(queue.Review, order)
		case models.ReviewInProgress:
			queue.InProgress = append(queue.InProgress, order)
		case models.ReviewComplete:
			queue.Complete = append(queue.Complete, order)
		}
	}
	queue.Counts = map[string]int{
		string(models.ReviewPending):    len(queue.Review),
		string(models.ReviewInProgress): len(queue.InProgress),
		string(models.ReviewComplete):   len(queue.Complete),
	}
	return queue, nil
}

type CustomerOverview struct {
	Points  int                     `json:"points"`
	Orders  []*models.Order         `json:"orders"`
	Pickups []*models.PickupRequest `json:"pickups"`
}

func (s *DashboardService) CustomerOverview(ctx context.Context, principal authz.Principal) (*CustomerOverview, error) {
	span := s.startSpan(ctx, "customer_overview")
	defer span.Finish()
	ctx = span.Context()

	if err := authorize(principal, authz.ViewOwnRecords); err != nil {
		return nil, err
	}

	user, err := s.store.GetUser(ctx, principal.UserID)
	if err != nil {
		return nil, classify(err)
	}
	orders, _, err := s.store.ListOrders(ctx, db.OrderFilter{UserID: user.ID, Limit: queueLimit})
	if err != nil {
		return nil, classify(err)
	}
	pickups, _, err := s.store.ListPickups(ctx, db.PickupFilter{UserID: user.ID, Limit: queueLimit})
	if err != nil {
		return nil, classify(err)
	}

	if orders == nil {
		orders = []*models.Order{}
	}
	if pickups == nil {
		pickups = []*models.PickupRequest{}
	}
	return &CustomerOverview{Points: user.Points, Orders: orders, Pickups: pickups}, nil
}

func (s *DashboardService) AdminOrders(ctx context.Context, principal authz.Principal, filter db.OrderFilter) (*Page[*models.Order], error) {
	span := s.startSpan(ctx, "admin_orders")
	defer span.Finish()
	ctx = span.Context()

	if err := authorize(principal, authz.ViewAllRecords); err != nil {
		return nil, err
	}
	orders, total, err := s.store.ListOrders(ctx, filter)
	if err != nil {
		s.loggerFromContext(ctx).Error("failed to list orders", "error", err)
		return nil, classify(err)
	}
	return newPage(orders, total, filter.Page, filter.Limit), nil
}

func (s *DashboardService) AdminPickups(ctx context.Context, principal authz.Principal, filter db.PickupFilter) (*Page[*models.PickupRequest], error) {
	span := s.startSpan(ctx, "admin_pickups")
	defer span.Finish()
	ctx = span.Context()

	if err := authorize(principal, authz.ViewAllRecords); err != nil {
		return nil, err
	}
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, validationf("unknown pickup status %q", filter.Status)
	}
	pickups, total, err := s.store.ListPickups(ctx, filter)
	if err != nil {
		s.loggerFromContext(ctx).Error("failed to list pickups", "error", err)
		return nil, classify(err)
	}
	return newPage(pickups, total, filter.Page, filter.Limit), nil
}

type OrderDetail struct {
	Order    *models.Order         `json:"order"`
	Pickup   *models.PickupRequest `json:"pickup,omitempty"`
	Activity []*models.ActivityLog `json:"activity"`
}

// OrderDetail returns an order with its audit trail. Admins see every order;
// customers and designers see their own or assigned orders.
func (s *DashboardService) OrderDetail(ctx context.Context, principal authz.Principal, orderID int64) (*OrderDetail, error) {
	span := s.startSpan(ctx, "order_detail")
	defer span.Finish()
	ctx = span.Context()

	if err := authorize(principal, authz.ViewOwnRecords); err != nil {
		return nil, err
	}

	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, classify(err)
	}
	if !principal.Can(authz.ViewAllRecords) && order.UserID != principal.UserID && !order.AssignedTo(principal.UserID) {
		// same answer as a missing order
		return nil, notFoundf("order #%d was not found", orderID)
	}

	detail := &OrderDetail{Order: order}
	if order.PickupID != nil {
		pickup, err := s.store.GetPickup(ctx, *order.PickupID)
		switch {
		case err == nil:
			detail.Pickup = pickup
		case !errors.Is(err, db.ErrNotFound):
			return nil, classify(err)
		}
	}

	detail.Activity, err = s.store.ListActivity(ctx, models.SubjectOrder, order.ID)
	if err != nil {
		return nil, classify(err)
	}
	if detail.Activity == nil {
		detail.Activity = []*models.ActivityLog{}
	}
	return detail, nil
}

type TimelineStep struct {
	Stage     models.FulfillmentStage `json:"stage"`
	Completed bool                    `json:"completed"`
	Current   bool                    `json:"current"`
}

type TrackingEvent struct {
	Action    string    `json:"action"`
	Timestamp time.Time `json:"timestamp"`
}

// Tracking is the public view of an order looked up by barcode. It carries no
// customer details.
type Tracking struct {
	Barcode     string             `json:"barcode"`
	OrderID     int64              `json:"order_id"`
	ServiceType models.ServiceType `json:"service_type"`
	Status      string             `json:"status"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
	Timeline    []TimelineStep     `json:"timeline"`
	Events      []TrackingEvent    `json:"events"`
}

func (s *DashboardService) Track(ctx context.Context, barcode string) (*Tracking, error) {
	span := s.startSpan(ctx, "track")
	defer span.Finish()
	ctx = span.Context()

	barcode = NormalizeBarcode(barcode)
	if barcode == "" {
		return nil, validationf("a barcode is required")
	}

	order, err := s.store.GetOrderByBarcode(ctx, barcode)
	if errors.Is(err, db.ErrNotFound) {
		return nil, notFoundf("no order found for barcode %s", barcode)
	}
	if err != nil {
		return nil, classify(err)
	}

	activity, err := s.store.ListActivity(ctx, models.SubjectOrder, order.ID)
	if err != nil {
		return nil, classify(err)
	}

	tracking := &Tracking{
		Barcode:     order.Barcode,
		OrderID:     order.ID,
		ServiceType: order.ServiceType,
		Status:      order.Status(),
		CreatedAt:   order.CreatedAt,
		UpdatedAt:   order.UpdatedAt,
		Timeline:    fulfillmentTimeline(order.FulfillmentStage),
		Events:      make([]TrackingEvent, 0, len(activity)),
	}
	for _, entry := range activity {
		tracking.Events = append(tracking.Events, TrackingEvent{Action: entry.Action, Timestamp: entry.Timestamp})
	}
	return tracking, nil
}

func fulfillmentTimeline(current models.FulfillmentStage) []TimelineStep {
	position := current.Position()
	steps := make([]TimelineStep, 0, len(models.FulfillmentStages))
	for i, stage := range models.FulfillmentStages {
		steps = append(steps, TimelineStep{
			Stage:     stage,
			Completed: position >= 0 && i <= position,
			Current:   i == position,
		})
	}
	return steps
}

// AdminApplications pages through designer applications, newest first.
func (s *DashboardService) AdminApplications(ctx context.Context, principal authz.Principal, filter db.ApplicationFilter) (*Page[*models.DesignerApplication], error) {
	span := s.startSpan(ctx, "admin_applications")
	defer span.Finish()
	ctx = span.Context()

	if err := authorize(principal, authz.ReviewApplications); err != nil {
		return nil, err
	}
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, validationf("unknown application status %q", filter.Status)
	}
	apps, total, err := s.store.ListApplications(ctx, filter)
	if err != nil {
		s.loggerFromContext(ctx).Error("failed to list designer applications", "error", err)
		return nil, classify(err)
	}
	return newPage(apps, total, filter.Page, filter.Limit), nil
}
