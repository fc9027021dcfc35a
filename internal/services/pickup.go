package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jinzhu/now"

	"github.com/restitch/restitch/internal/authz"
	"github.com/restitch/restitch/internal/db"
	"github.com/restitch/restitch/internal/models"
)

// PickupService runs the pickup request lifecycle.
type PickupService struct {
	*workflow
}

// NewPickupService returns a PickupService backed by store. A nil notifier
// disables pickup emails.
func NewPickupService(store db.Store, notifier Notifier, logger *slog.Logger, config Config) *PickupService {
	return &PickupService{workflow: newWorkflow(store, notifier, logger, config)}
}

type SchedulePickupInput struct {
	AddressID          int64              `json:"address_id"`
	PreferredSlot      time.Time          `json:"preferred_slot"`
	ServiceType        models.ServiceType `json:"service_type"`
	Items              []string           `json:"items"`
	Photos             []string           `json:"photos"`
	Notes              string             `json:"notes"`
	DesignerID         int64              `json:"designer_id"`
	ExpectedPriceCents int                `json:"expected_price_cents"`
}

// ScheduledPickup is the created pickup and, for redesign and resale, the
// order opened alongside it.
type ScheduledPickup struct {
	Pickup *models.PickupRequest `json:"pickup"`
	Order  *models.Order         `json:"order,omitempty"`
}

func (s *PickupService) validateSchedule(input SchedulePickupInput) error {
	if !input.ServiceType.IsValid() {
		return validationf("unknown service type %q", input.ServiceType)
	}
	if input.AddressID <= 0 {
		return validationf("a pickup address is required")
	}
	if input.PreferredSlot.IsZero() {
		return validationf("a preferred pickup slot is required")
	}
	if input.PreferredSlot.Before(now.With(s.clock()).BeginningOfDay()) {
		return validationf("preferred pickup slot cannot be in the past")
	}
	if len(cleanItems(input.Items)) == 0 {
		return validationf("at least one item is required")
	}
	switch input.ServiceType {
	case models.ServiceRedesign:
		if input.DesignerID <= 0 {
			return validationf("a designer must be selected for redesign pickups")
		}
	case models.ServiceResale:
		if input.ExpectedPriceCents <= 0 {
			return validationf("an expected sale price is required for resale pickups")
		}
		if input.ExpectedPriceCents > MaxPriceCents {
			return validationf("expected sale price is too large")
		}
	}
	return nil
}

func cleanItems(items []string) []string {
	cleaned := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			cleaned = append(cleaned, item)
		}
	}
	return cleaned
}

// SchedulePickup records a customer's pickup request together with the order
// that will track redesign or resale work.
func (s *PickupService) SchedulePickup(ctx context.Context, principal authz.Principal, input SchedulePickupInput) (*ScheduledPickup, error) {
	if err := s.validateSchedule(input); err != nil {
		return nil, err
	}

	var result ScheduledPickup
	var customer *models.User
	err := s.run(ctx, transition{
		action:     "schedule_pickup",
		capability: authz.SchedulePickup,
		principal:  principal,
		subject:    models.SubjectPickup,
	}, func(ctx context.Context, tx db.Tx) error {
		var err error
		customer, err = tx.GetUser(ctx, principal.UserID)
		if err != nil {
			return err
		}

		pickup := &models.PickupRequest{
			UserID:        principal.UserID,
			AddressID:     input.AddressID,
			PreferredSlot: input.PreferredSlot,
			ServiceType:   input.ServiceType,
			Status:        models.PickupPending,
			Items:         cleanItems(input.Items),
			Photos:        input.Photos,
			Notes:         strings.TrimSpace(input.Notes),
		}

		var order *models.Order
		switch input.ServiceType {
		case models.ServiceRedesign:
			designer, err := tx.GetUser(ctx, input.DesignerID)
			if errors.Is(err, db.ErrNotFound) || (err == nil && designer.Role != models.RoleDesigner) {
				return validationf("designer #%d does not exist", input.DesignerID)
			}
			if err != nil {
				return err
			}
			designerID := designer.ID
			pickup.DesignerID = &designerID
			order = &models.Order{
				UserID:      principal.UserID,
				DesignerID:  &designerID,
				ServiceType: models.ServiceRedesign,
				ReviewStage: models.ReviewPending,
				Notes:       pickup.Notes,
			}
		case models.ServiceResale:
			price := input.ExpectedPriceCents
			pickup.ExpectedPriceCents = &price
			pickup.Notes = appendNote(pickup.Notes, ExpectedPriceNote(price))
			order = &models.Order{
				UserID:             principal.UserID,
				ServiceType:        models.ServiceResale,
				ReviewStage:        models.ReviewPendingApproval,
				ExpectedPriceCents: &price,
				Notes:              pickup.Notes,
			}
		}

		if err := tx.CreatePickup(ctx, pickup); err != nil {
			return fmt.Errorf("failed to create pickup: %w", err)
		}
		if err := s.record(ctx, tx, principal, models.SubjectPickup, pickup.ID, "Pickup scheduled", map[string]any{
			"service_type": string(pickup.ServiceType),
			"status":       string(pickup.Status),
		}); err != nil {
			return err
		}

		if order != nil {
			pickupID := pickup.ID
			order.PickupID = &pickupID
			if err := tx.CreateOrder(ctx, order); err != nil {
				return fmt.Errorf("failed to create order: %w", err)
			}
			if err := s.record(ctx, tx, principal, models.SubjectOrder, order.ID, fmt.Sprintf("Order created from pickup #%d", pickup.ID), map[string]any{
				"status": order.Status(),
			}); err != nil {
				return err
			}
		}

		result = ScheduledPickup{Pickup: pickup, Order: order}
		return nil
	})
	if err != nil {
		return nil, err
	}

	pickup := result.Pickup.Clone()
	s.notify(ctx, "pickup_scheduled", func(ctx context.Context) error {
		return s.notifier.PickupScheduled(ctx, customer, pickup)
	})
	return &result, nil
}

// AcceptedPickup is the completed pickup and the donation order created for it,
// if any.
type AcceptedPickup struct {
	Pickup *models.PickupRequest `json:"pickup"`
	Order  *models.Order         `json:"order,omitempty"`
}

// AcceptPickup completes a pending pickup. Donations get their order here.
func (s *PickupService) AcceptPickup(ctx context.Context, principal authz.Principal, pickupID int64) (*AcceptedPickup, error) {
	var result AcceptedPickup
	err := s.run(ctx, transition{
		action:     "accept_pickup",
		capability: authz.ReviewPickup,
		principal:  principal,
		subject:    models.SubjectPickup,
		subjectID:  pickupID,
	}, func(ctx context.Context, tx db.Tx) error {
		pickup, err := tx.LockPickup(ctx, pickupID)
		if err != nil {
			return err
		}
		if pickup.Status != models.PickupPending {
			return preconditionf("pickup #%d is %s, not pending", pickup.ID, pickup.Status)
		}

		path, ok := pickup.Status.PathTo(models.PickupCompleted)
		if !ok {
			return preconditionf("pickup #%d cannot be completed", pickup.ID)
		}
		for _, next := range path {
			current := pickup.Status
			pickup.Status = next
			if err := tx.UpdatePickup(ctx, pickup, current); err != nil {
				return err
			}
		}
		if err := s.record(ctx, tx, principal, models.SubjectPickup, pickup.ID, "Pickup accepted", map[string]any{
			"from": string(models.PickupPending),
			"to":   string(pickup.Status),
		}); err != nil {
			return err
		}

		if pickup.ServiceType == models.ServiceDonate {
			id := pickup.ID
			order := &models.Order{
				UserID:           pickup.UserID,
				PickupID:         &id,
				ServiceType:      models.ServiceDonate,
				FulfillmentStage: models.FulfillmentReceived,
				Notes:            pickup.Notes,
			}
			if err := tx.CreateOrder(ctx, order); err != nil {
				return fmt.Errorf("failed to create donation order: %w", err)
			}
			if err := s.record(ctx, tx, principal, models.SubjectOrder, order.ID, fmt.Sprintf("Donation order created from pickup #%d", pickup.ID), map[string]any{
				"status": order.Status(),
			}); err != nil {
				return err
			}
			result.Order = order
		}

		result.Pickup = pickup
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// RejectPickup closes a pending pickup and tells the customer why.
func (s *PickupService) RejectPickup(ctx context.Context, principal authz.Principal, pickupID int64, message string) (*models.PickupRequest, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, validationf("a rejection message is required")
	}

	var (
		rejected *models.PickupRequest
		owner    *models.User
	)
	err := s.run(ctx, transition{
		action:     "reject_pickup",
		capability: authz.ReviewPickup,
		principal:  principal,
		subject:    models.SubjectPickup,
		subjectID:  pickupID,
	}, func(ctx context.Context, tx db.Tx) error {
		pickup, err := s.step(ctx, tx, pickupID, models.PickupRejected)
		if err != nil {
			return err
		}
		pickup.Status = models.PickupRejected
		pickup.Notes = appendNote(pickup.Notes, "Rejected by admin: "+message)
		if err := tx.UpdatePickup(ctx, pickup, models.PickupPending); err != nil {
			return err
		}
		if err := s.record(ctx, tx, principal, models.SubjectPickup, pickup.ID, "Pickup rejected: "+message, map[string]any{
			"from": string(models.PickupPending),
			"to":   string(models.PickupRejected),
		}); err != nil {
			return err
		}
		owner, err = tx.GetUser(ctx, pickup.UserID)
		if err != nil {
			return err
		}
		rejected = pickup
		return nil
	})
	if err != nil {
		return nil, err
	}

	notified := rejected.Clone()
	s.notify(ctx, "pickup_rejected", func(ctx context.Context) error {
		return s.notifier.PickupRejected(ctx, owner, notified, message)
	})
	return rejected, nil
}

// MarkPickedUp records that a scheduled pickup has been collected.
func (s *PickupService) MarkPickedUp(ctx context.Context, principal authz.Principal, pickupID int64) (*models.PickupRequest, error) {
	return s.advance(ctx, principal, "mark_picked_up", pickupID, models.PickupPickedUp, "Pickup marked as picked up")
}

// CompletePickup closes out a picked-up request.
func (s *PickupService) CompletePickup(ctx context.Context, principal authz.Principal, pickupID int64) (*models.PickupRequest, error) {
	return s.advance(ctx, principal, "complete_pickup", pickupID, models.PickupCompleted, "Pickup completed")
}

func (s *PickupService) advance(ctx context.Context, principal authz.Principal, action string, pickupID int64, target models.PickupStatus, activity string) (*models.PickupRequest, error) {
	var updated *models.PickupRequest
	err := s.run(ctx, transition{
		action:     action,
		capability: authz.ReviewPickup,
		principal:  principal,
		subject:    models.SubjectPickup,
		subjectID:  pickupID,
	}, func(ctx context.Context, tx db.Tx) error {
		pickup, err := s.step(ctx, tx, pickupID, target)
		if err != nil {
			return err
		}
		from := pickup.Status
		pickup.Status = target
		if err := tx.UpdatePickup(ctx, pickup, from); err != nil {
			return err
		}
		if err := s.record(ctx, tx, principal, models.SubjectPickup, pickup.ID, activity, map[string]any{
			"from": string(from),
			"to":   string(target),
		}); err != nil {
			return err
		}
		updated = pickup
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// step locks the pickup and checks that target is a legal next status. The
// returned pickup still carries its current status.
func (s *PickupService) step(ctx context.Context, tx db.Tx, pickupID int64, target models.PickupStatus) (*models.PickupRequest, error) {
	pickup, err := tx.LockPickup(ctx, pickupID)
	if err != nil {
		return nil, err
	}
	if !pickup.Status.CanTransitionTo(target) {
		return nil, preconditionf("pickup #%d is %s and cannot move to %s", pickup.ID, pickup.Status, target)
	}
	return pickup, nil
}
