package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/restitch/restitch/internal/authz"
	"github.com/restitch/restitch/internal/db"
	"github.com/restitch/restitch/internal/models"
)

// OrderUpdate is a partial admin edit. Nil fields are left unchanged.
type OrderUpdate struct {
	Status        *string `json:"status,omitempty"`
	DesignerID    *int64  `json:"designer_id,omitempty"`
	FabricType    *string `json:"fabric_type,omitempty"`
	Notes         *string `json:"notes,omitempty"`
	EstimatedDays *int    `json:"estimated_days,omitempty"`
	PointsAwarded *int    `json:"points_awarded,omitempty"`
}

// UpdateOrder applies an admin edit. Status changes follow the same edges as
// the dedicated transitions, and any increase in awarded points is credited to
// the customer in the same transaction.
func (s *OrderService) UpdateOrder(ctx context.Context, principal authz.Principal, orderID int64, update OrderUpdate) (*models.Order, error) {
	if err := validateOrderUpdate(update); err != nil {
		return nil, err
	}

	var (
		updated       *models.Order
		owner         *models.User
		statusChanged bool
	)
	err := s.run(ctx, transition{
		action:     "update_order",
		capability: authz.EditOrder,
		principal:  principal,
		subject:    models.SubjectOrder,
		subjectID:  orderID,
	}, func(ctx context.Context, tx db.Tx) error {
		order, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		before := order.Clone()
		changed := map[string]any{}

		if update.Status != nil {
			if err := applyStatus(order, strings.TrimSpace(*update.Status)); err != nil {
				return err
			}
			if order.Status() != before.Status() || order.ReviewStage != before.ReviewStage {
				changed["status"] = map[string]any{"from": before.Status(), "to": order.Status()}
				statusChanged = true
			}
		}

		if update.DesignerID != nil {
			if err := s.assignDesigner(ctx, tx, order, *update.DesignerID); err != nil {
				return err
			}
			if !sameID(before.DesignerID, order.DesignerID) {
				changed["designer_id"] = *update.DesignerID
			}
		}

		if update.FabricType != nil {
			if fabric := strings.TrimSpace(*update.FabricType); fabric != order.FabricType {
				order.FabricType = fabric
				changed["fabric_type"] = fabric
			}
		}

		if update.Notes != nil && *update.Notes != order.Notes {
			order.Notes = *update.Notes
			changed["notes"] = true
		}

		if update.EstimatedDays != nil && !sameInt(order.EstimatedDays, update.EstimatedDays) {
			days := *update.EstimatedDays
			order.EstimatedDays = &days
			changed["estimated_days"] = days
		}

		if update.PointsAwarded != nil {
			points := *update.PointsAwarded
			if points < order.PointsAwarded {
				return validationf("points awarded cannot decrease from %d to %d", order.PointsAwarded, points)
			}
			if delta := points - order.PointsAwarded; delta > 0 {
				if err := tx.CreditPoints(ctx, order.UserID, delta); err != nil {
					return fmt.Errorf("failed to credit points: %w", err)
				}
				order.PointsAwarded = points
				changed["points_awarded"] = map[string]any{"from": before.PointsAwarded, "to": points, "delta": delta}
			}
		}

		if len(changed) == 0 {
			updated = order
			return nil
		}

		if err := tx.UpdateOrder(ctx, order); err != nil {
			return err
		}
		if before.Barcode == "" && order.Barcode != "" {
			changed["barcode"] = order.Barcode
		}
		if err := s.record(ctx, tx, principal, models.SubjectOrder, order.ID, "Status updated to "+order.Status(), changed); err != nil {
			return err
		}
		if statusChanged {
			owner, err = tx.GetUser(ctx, order.UserID)
			if err != nil {
				return err
			}
		}
		updated = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	if statusChanged {
		s.notifyOrder(ctx, owner, updated, "")
	}
	return updated, nil
}

func validateOrderUpdate(update OrderUpdate) error {
	if update.DesignerID != nil && *update.DesignerID < 0 {
		return validationf("designer id cannot be negative")
	}
	if update.EstimatedDays != nil && *update.EstimatedDays < 0 {
		return validationf("estimated days cannot be negative")
	}
	if update.PointsAwarded != nil && *update.PointsAwarded < 0 {
		return validationf("points awarded cannot be negative")
	}
	return nil
}

// applyStatus interprets status in whichever vocabulary it belongs to. Setting
// the current status again is a no-op.
func applyStatus(order *models.Order, status string) error {
	if status == "" {
		return validationf("status cannot be empty")
	}

	if review := models.ReviewStage(status); review.IsValid() {
		if review == order.ReviewStage {
			return nil
		}
		if review == models.ReviewApprovedForStore {
			return preconditionf("resale items are listed through store approval")
		}
		if !order.ReviewStage.CanTransitionTo(review) {
			return preconditionf("order #%d is %s and cannot move to %s", order.ID, displayStage(order.ReviewStage), review)
		}
		if review == models.ReviewApproved {
			approveReview(order)
			return nil
		}
		order.ReviewStage = review
		return nil
	}

	if stage := models.FulfillmentStage(status); stage.IsValid() {
		if stage == order.FulfillmentStage {
			return nil
		}
		if err := checkFulfillmentStep(order, stage); err != nil {
			return err
		}
		setFulfillment(order, stage)
		return nil
	}

	return validationf("unknown order status %q", status)
}

func (s *OrderService) assignDesigner(ctx context.Context, tx db.Tx, order *models.Order, designerID int64) error {
	if designerID == 0 {
		order.DesignerID = nil
		return nil
	}
	designer, err := tx.GetUser(ctx, designerID)
	if errors.Is(err, db.ErrNotFound) || (err == nil && designer.Role != models.RoleDesigner) {
		return validationf("designer #%d does not exist", designerID)
	}
	if err != nil {
		return err
	}
	id := designer.ID
	order.DesignerID = &id
	return nil
}

func sameID(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func sameInt(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// StoreListing is the result of approving a resale order for the store.
type StoreListing struct {
	Order   *models.Order   `json:"order"`
	Product *models.Product `json:"product"`
}

// ApproveForStore lists a resale order in the store as a single-stock product.
func (s *OrderService) ApproveForStore(ctx context.Context, principal authz.Principal, orderID int64) (*StoreListing, error) {
	var (
		listing StoreListing
		owner   *models.User
	)
	err := s.run(ctx, transition{
		action:     "approve_for_store",
		capability: authz.ListForStore,
		principal:  principal,
		subject:    models.SubjectOrder,
		subjectID:  orderID,
	}, func(ctx context.Context, tx db.Tx) error {
		order, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if order.ServiceType != models.ServiceResale {
			return preconditionf("order #%d is a %s order, not resale", order.ID, order.ServiceType)
		}
		if order.ReviewStage != models.ReviewPendingApproval {
			return preconditionf("order #%d is %s, not pending approval", order.ID, displayStage(order.ReviewStage))
		}

		owner, err = tx.GetUser(ctx, order.UserID)
		if err != nil {
			return err
		}

		price, source, priceErr := resalePrice(order, s.config.ResaleFallbackPriceCents)
		if priceErr != nil {
			s.loggerFromContext(ctx).Warn("using fallback resale price", "order_id", order.ID, "price_cents", price, "error", priceErr)
		}

		sourceOrderID := order.ID
		product := &models.Product{
			Title:         fmt.Sprintf("Resale Item #%d", order.ID),
			Slug:          fmt.Sprintf("resale-item-%d", order.ID),
			Description:   "Quality resale item from user " + owner.Name,
			Images:        order.ImagesBefore,
			PriceCents:    price,
			Stock:         1,
			Tags:          []string{"resale", "secondhand"},
			SourceOrderID: &sourceOrderID,
		}
		if err := tx.CreateProduct(ctx, product); err != nil {
			return fmt.Errorf("failed to create product: %w", err)
		}

		order.ReviewStage = models.ReviewApprovedForStore
		if err := tx.UpdateOrder(ctx, order); err != nil {
			return err
		}
		if err := s.record(ctx, tx, principal, models.SubjectOrder, order.ID, "Order approved for store", map[string]any{
			"from":         string(models.ReviewPendingApproval),
			"to":           string(models.ReviewApprovedForStore),
			"product_id":   product.ID,
			"price_cents":  price,
			"price_source": string(source),
		}); err != nil {
			return err
		}

		listing = StoreListing{Order: order, Product: product}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifyOrder(ctx, owner, listing.Order, fmt.Sprintf("Your item is now listed in the store at %s.", models.FormatCents(listing.Product.PriceCents)))
	return &listing, nil
}
