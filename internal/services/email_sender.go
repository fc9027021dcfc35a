package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/restitch/restitch/internal/email"
	"github.com/restitch/restitch/internal/models"
)

// Notifier tells customers about changes to their pickups and orders.
type Notifier interface {
	PickupScheduled(ctx context.Context, user *models.User, pickup *models.PickupRequest) error
	PickupRejected(ctx context.Context, user *models.User, pickup *models.PickupRequest, reason string) error
	OrderStatusChanged(ctx context.Context, user *models.User, order *models.Order, note string) error
}

type EmailNotifier struct {
	provider email.Provider
	renderer *email.Renderer
	baseURL  string
}

func NewEmailNotifier(provider email.Provider, baseURL string) (*EmailNotifier, error) {
	if provider == nil {
		return nil, fmt.Errorf("email provider is required")
	}
	renderer, err := email.NewRenderer()
	if err != nil {
		return nil, fmt.Errorf("failed to create email renderer: %w", err)
	}
	return &EmailNotifier{
		provider: provider,
		renderer: renderer,
		baseURL:  strings.TrimRight(baseURL, "/"),
	}, nil
}

func (n *EmailNotifier) PickupScheduled(ctx context.Context, user *models.User, pickup *models.PickupRequest) error {
	info := n.baseInfo(user)
	info.Reference = fmt.Sprintf("Pickup #%d", pickup.ID)
	info.ServiceType = string(pickup.ServiceType)
	info.Status = string(pickup.Status)
	info.PreferredSlot = pickup.PreferredSlot
	return n.send(ctx, email.TemplatePickupScheduled, info)
}

func (n *EmailNotifier) PickupRejected(ctx context.Context, user *models.User, pickup *models.PickupRequest, reason string) error {
	info := n.baseInfo(user)
	info.Reference = fmt.Sprintf("Pickup #%d", pickup.ID)
	info.ServiceType = string(pickup.ServiceType)
	info.Status = string(pickup.Status)
	info.Note = reason
	return n.send(ctx, email.TemplatePickupRejected, info)
}

func (n *EmailNotifier) OrderStatusChanged(ctx context.Context, user *models.User, order *models.Order, note string) error {
	info := n.baseInfo(user)
	info.Reference = fmt.Sprintf("Order #%d", order.ID)
	info.ServiceType = string(order.ServiceType)
	info.Status = order.Status()
	info.Note = note
	if order.Barcode != "" {
		info.Barcode = order.Barcode
		if n.baseURL != "" {
			info.TrackingURL = n.baseURL + "/track/" + order.Barcode
		}
	}
	return n.send(ctx, email.TemplateOrderStatus, info)
}

func (n *EmailNotifier) baseInfo(user *models.User) *email.NotificationInfo {
	return &email.NotificationInfo{
		CustomerName:  user.Name,
		CustomerEmail: user.Email,
	}
}

func (n *EmailNotifier) send(ctx context.Context, template string, info *email.NotificationInfo) error {
	if strings.TrimSpace(info.CustomerEmail) == "" {
		return fmt.Errorf("customer has no email address")
	}
	message, err := n.renderer.Render(ctx, template, info)
	if err != nil {
		return err
	}
	if err := n.provider.SendEmail(ctx, message); err != nil {
		return fmt.Errorf("failed to send %s email: %w", template, err)
	}
	return nil
}

type noopNotifier struct{}

func (noopNotifier) PickupScheduled(context.Context, *models.User, *models.PickupRequest) error {
	return nil
}

func (noopNotifier) PickupRejected(context.Context, *models.User, *models.PickupRequest, string) error {
	return nil
}

func (noopNotifier) OrderStatusChanged(context.Context, *models.User, *models.Order, string) error {
	return nil
}
