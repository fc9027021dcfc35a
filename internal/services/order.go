package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/restitch/restitch/internal/authz"
	"github.com/restitch/restitch/internal/db"
	"github.com/restitch/restitch/internal/models"
)

// OrderService runs the designer review path, admin approval and the
// fulfillment pipeline. Admin edits and resale listing live in admin.go.
type OrderService struct {
	*workflow
}

func NewOrderService(store db.Store, notifier Notifier, logger *slog.Logger, config Config) *OrderService {
	return &OrderService{workflow: newWorkflow(store, notifier, logger, config)}
}

// AcceptOrder starts work on an order assigned to the designer. The linked
// pickup is scheduled if it is still pending.
func (s *OrderService) AcceptOrder(ctx context.Context, principal authz.Principal, orderID int64) (*models.Order, error) {
	var accepted *models.Order
	err := s.run(ctx, transition{
		action:     "accept_order",
		capability: authz.DesignOrder,
		principal:  principal,
		subject:    models.SubjectOrder,
		subjectID:  orderID,
	}, func(ctx context.Context, tx db.Tx) error {
		order, err := s.lockForDesigner(ctx, tx, principal, orderID, models.ReviewInProgress)
		if err != nil {
			return err
		}
		order.ReviewStage = models.ReviewInProgress
		if err := tx.UpdateOrder(ctx, order); err != nil {
			return err
		}
		if err := s.record(ctx, tx, principal, models.SubjectOrder, order.ID, "Order accepted by designer", map[string]any{
			"from": string(models.ReviewPending),
			"to":   string(models.ReviewInProgress),
		}); err != nil {
			return err
		}

		if order.PickupID != nil {
			if err := s.scheduleLinkedPickup(ctx, tx, principal, *order.PickupID); err != nil {
				return err
			}
		}
		accepted = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return accepted, nil
}

func (s *OrderService) scheduleLinkedPickup(ctx context.Context, tx db.Tx, principal authz.Principal, pickupID int64) error {
	pickup, err := tx.LockPickup(ctx, pickupID)
	if err != nil {
		return fmt.Errorf("failed to load linked pickup: %w", err)
	}
	if pickup.Status != models.PickupPending {
		s.loggerFromContext(ctx).Debug("linked pickup already past pending", "pickup_id", pickup.ID, "status", pickup.Status)
		return nil
	}
	pickup.Status = models.PickupScheduled
	if err := tx.UpdatePickup(ctx, pickup, models.PickupPending); err != nil {
		return err
	}
	return s.record(ctx, tx, principal, models.SubjectPickup, pickup.ID, "Pickup scheduled by designer acceptance", map[string]any{
		"from": string(models.PickupPending),
		"to":   string(models.PickupScheduled),
	})
}

// RejectOrder stops a redesign before work begins. The reason is appended to
// the order notes.
func (s *OrderService) RejectOrder(ctx context.Context, principal authz.Principal, orderID int64, message string) (*models.Order, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, validationf("a rejection message is required")
	}

	var (
		rejected *models.Order
		owner    *models.User
	)
	err := s.run(ctx, transition{
		action:     "reject_order",
		capability: authz.DesignOrder,
		principal:  principal,
		subject:    models.SubjectOrder,
		subjectID:  orderID,
	}, func(ctx context.Context, tx db.Tx) error {
		order, err := s.lockForDesigner(ctx, tx, principal, orderID, models.ReviewRejected)
		if err != nil {
			return err
		}
		order.ReviewStage = models.ReviewRejected
		order.Notes = appendNote(order.Notes, "Rejected by designer: "+message)
		if err := tx.UpdateOrder(ctx, order); err != nil {
			return err
		}
		if err := s.record(ctx, tx, principal, models.SubjectOrder, order.ID, "Order rejected by designer: "+message, map[string]any{
			"from": string(models.ReviewPending),
			"to":   string(models.ReviewRejected),
		}); err != nil {
			return err
		}
		owner, err = tx.GetUser(ctx, order.UserID)
		if err != nil {
			return err
		}
		rejected = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifyOrder(ctx, owner, rejected, "Rejected by designer: "+message)
	return rejected, nil
}

// CompleteOrder marks the designer's work as done and ready for admin approval.
func (s *OrderService) CompleteOrder(ctx context.Context, principal authz.Principal, orderID int64) (*models.Order, error) {
	var completed *models.Order
	err := s.run(ctx, transition{
		action:     "complete_order",
		capability: authz.DesignOrder,
		principal:  principal,
		subject:    models.SubjectOrder,
		subjectID:  orderID,
	}, func(ctx context.Context, tx db.Tx) error {
		order, err := s.lockForDesigner(ctx, tx, principal, orderID, models.ReviewComplete)
		if err != nil {
			return err
		}
		order.ReviewStage = models.ReviewComplete
		if err := tx.UpdateOrder(ctx, order); err != nil {
			return err
		}
		if err := s.record(ctx, tx, principal, models.SubjectOrder, order.ID, "Order marked complete by designer", map[string]any{
			"from": string(models.ReviewInProgress),
			"to":   string(models.ReviewComplete),
		}); err != nil {
			return err
		}
		completed = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return completed, nil
}

// lockForDesigner loads the order for update and checks that it is assigned
// to the acting designer and may move to target.
func (s *OrderService) lockForDesigner(ctx context.Context, tx db.Tx, principal authz.Principal, orderID int64, target models.ReviewStage) (*models.Order, error) {
	order, err := tx.LockOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !order.AssignedTo(principal.UserID) {
		return nil, preconditionf("order #%d is not assigned to you", order.ID)
	}
	if !order.ReviewStage.CanTransitionTo(target) {
		return nil, preconditionf("order #%d is %s and cannot move to %s", order.ID, displayStage(order.ReviewStage), target)
	}
	return order, nil
}

// ApproveOrder signs off completed design work and moves the order into the
// delivery pipeline.
func (s *OrderService) ApproveOrder(ctx context.Context, principal authz.Principal, orderID int64) (*models.Order, error) {
	var (
		approved *models.Order
		owner    *models.User
	)
	err := s.run(ctx, transition{
		action:     "approve_order",
		capability: authz.ApproveOrder,
		principal:  principal,
		subject:    models.SubjectOrder,
		subjectID:  orderID,
	}, func(ctx context.Context, tx db.Tx) error {
		order, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if order.ReviewStage != models.ReviewComplete {
			return preconditionf("order #%d is %s, not complete", order.ID, displayStage(order.ReviewStage))
		}

		approveReview(order)
		if err := tx.UpdateOrder(ctx, order); err != nil {
			return err
		}
		if err := s.record(ctx, tx, principal, models.SubjectOrder, order.ID, "Order approved for delivery", map[string]any{
			"from":    string(models.ReviewComplete),
			"to":      string(models.ReviewApproved),
			"barcode": order.Barcode,
		}); err != nil {
			return err
		}
		owner, err = tx.GetUser(ctx, order.UserID)
		if err != nil {
			return err
		}
		approved = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifyOrder(ctx, owner, approved, "Your order has been approved and is ready for delivery.")
	return approved, nil
}

// AdvanceFulfillment moves an order exactly one stage along the delivery
// pipeline.
func (s *OrderService) AdvanceFulfillment(ctx context.Context, principal authz.Principal, orderID int64, target models.FulfillmentStage) (*models.Order, error) {
	if !target.IsValid() {
		return nil, validationf("unknown fulfillment stage %q", target)
	}

	var (
		advanced *models.Order
		owner    *models.User
	)
	err := s.run(ctx, transition{
		action:     "advance_fulfillment",
		capability: authz.AdvanceFulfillment,
		principal:  principal,
		subject:    models.SubjectOrder,
		subjectID:  orderID,
	}, func(ctx context.Context, tx db.Tx) error {
		order, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		from := order.FulfillmentStage
		if err := checkFulfillmentStep(order, target); err != nil {
			return err
		}
		setFulfillment(order, target)
		if err := tx.UpdateOrder(ctx, order); err != nil {
			return err
		}
		if err := s.record(ctx, tx, principal, models.SubjectOrder, order.ID, "Fulfillment advanced to "+string(target), map[string]any{
			"from":    string(from),
			"to":      string(target),
			"barcode": order.Barcode,
		}); err != nil {
			return err
		}
		owner, err = tx.GetUser(ctx, order.UserID)
		if err != nil {
			return err
		}
		advanced = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifyOrder(ctx, owner, advanced, "")
	return advanced, nil
}

func checkFulfillmentStep(order *models.Order, target models.FulfillmentStage) error {
	if order.FulfillmentStage == models.FulfillmentNone {
		return preconditionf("order #%d is not in the delivery pipeline", order.ID)
	}
	if next := order.FulfillmentStage.Next(); next != target {
		if next == models.FulfillmentNone {
			return preconditionf("order #%d is already %s", order.ID, order.FulfillmentStage)
		}
		return preconditionf("order #%d is %s; the next stage is %s", order.ID, order.FulfillmentStage, next)
	}
	return nil
}

// approveReview applies the approved review stage and its mapping onto the
// fulfillment pipeline.
func approveReview(order *models.Order) {
	order.ReviewStage = models.ReviewApproved
	if order.FulfillmentStage.Position() < models.FulfillmentReady.Position() {
		order.FulfillmentStage = models.FulfillmentReady
	}
	assignBarcode(order)
}

func setFulfillment(order *models.Order, stage models.FulfillmentStage) {
	order.FulfillmentStage = stage
	if stage == models.FulfillmentReady {
		assignBarcode(order)
	}
}

// assignBarcode sets the tracking barcode once. An existing barcode is never
// replaced.
func assignBarcode(order *models.Order) {
	if order.Barcode == "" {
		order.Barcode = FormatBarcode(order.ID)
	}
}

func displayStage(stage models.ReviewStage) string {
	if stage == models.ReviewNone {
		return "not under review"
	}
	return string(stage)
}

func (w *workflow) notifyOrder(ctx context.Context, owner *models.User, order *models.Order, note string) {
	if owner == nil || order == nil {
		return
	}
	snapshot := order.Clone()
	w.notify(ctx, "order_status", func(ctx context.Context) error {
		return w.notifier.OrderStatusChanged(ctx, owner, snapshot, note)
	})
}
