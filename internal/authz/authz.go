// Package authz decides which role may perform which workflow action.
package authz

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/restitch/restitch/internal/models"
)

type Capability string

const (
	SchedulePickup     Capability = "pickup.schedule"
	ReviewPickup       Capability = "pickup.review"
	DesignOrder        Capability = "order.design"
	ApproveOrder       Capability = "order.approve"
	EditOrder          Capability = "order.edit"
	AdvanceFulfillment Capability = "order.fulfill"
	ListForStore       Capability = "order.list_store"
	RedeemReward       Capability = "reward.redeem"
	ViewOwnRecords     Capability = "records.view_own"
	ViewDesignQueue    Capability = "orders.view_assigned"
	ViewAllRecords     Capability = "records.view_all"
	ApplyAsDesigner    Capability = "designer.apply"
	ReviewApplications Capability = "designer.review_applications"
)

var grants = map[models.Role][]Capability{
	models.RoleCustomer: {
		SchedulePickup,
		RedeemReward,
		ApplyAsDesigner,
		ViewOwnRecords,
	},
	models.RoleDesigner: {
		DesignOrder,
		ViewDesignQueue,
		ViewOwnRecords,
	},
	models.RoleAdmin: {
		ReviewPickup,
		ApproveOrder,
		EditOrder,
		AdvanceFulfillment,
		ListForStore,
		ReviewApplications,
		ViewAllRecords,
		ViewOwnRecords,
	},
}

var ErrForbidden = errors.New("action not permitted for role")

// Principal is the acting user as established by authentication.
type Principal struct {
	UserID int64       `json:"user_id"`
	Role   models.Role `json:"role"`
}

func (p Principal) IsZero() bool {
	return p.UserID == 0
}

func (p Principal) Can(capability Capability) bool {
	return slices.Contains(grants[p.Role], capability)
}

// Require returns ErrForbidden unless p holds capability.
func Require(p Principal, capability Capability) error {
	if p.IsZero() {
		return fmt.Errorf("%w: anonymous principal", ErrForbidden)
	}
	if !p.Can(capability) {
		return fmt.Errorf("%w: %s cannot %s", ErrForbidden, p.Role, capability)
	}
	return nil
}

type principalContextKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, principalContextKey{}, p)
}

func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	if ctx == nil {
		return Principal{}, false
	}
	p, ok := ctx.Value(principalContextKey{}).(Principal)
	if !ok || p.IsZero() {
		return Principal{}, false
	}
	return p, true
}
