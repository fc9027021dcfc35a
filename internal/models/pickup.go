package models

import (
	"slices"
	"time"
)

type ServiceType string

const (
	ServiceDonate   ServiceType = "donate"
	ServiceRedesign ServiceType = "redesign"
	ServiceResale   ServiceType = "resale"
)

func (t ServiceType) IsValid() bool {
	switch t {
	case ServiceDonate, ServiceRedesign, ServiceResale:
		return true
	}
	return false
}

type PickupStatus string

const (
	PickupPending   PickupStatus = "pending"
	PickupScheduled PickupStatus = "scheduled"
	PickupPickedUp  PickupStatus = "picked_up"
	PickupCompleted PickupStatus = "completed"
	PickupRejected  PickupStatus = "rejected"
)

var pickupTransitions = map[PickupStatus][]PickupStatus{
	PickupPending:   {PickupScheduled, PickupRejected},
	PickupScheduled: {PickupPickedUp},
	PickupPickedUp:  {PickupCompleted},
}

func (s PickupStatus) IsValid() bool {
	switch s {
	case PickupPending, PickupScheduled, PickupPickedUp, PickupCompleted, PickupRejected:
		return true
	}
	return false
}

func (s PickupStatus) IsTerminal() bool {
	return s == PickupCompleted || s == PickupRejected
}

func (s PickupStatus) CanTransitionTo(next PickupStatus) bool {
	return slices.Contains(pickupTransitions[s], next)
}

// PathTo returns the chain of statuses leading from s to target along legal
// transitions, excluding s itself. ok is false when target is unreachable.
func (s PickupStatus) PathTo(target PickupStatus) (path []PickupStatus, ok bool) {
	current := s
	for current != target {
		next := pickupTransitions[current]
		if len(next) == 0 {
			return nil, false
		}
		// every non-terminal status except pending has a single successor;
		// from pending the forward path goes through scheduled.
		step := next[0]
		if slices.Contains(next, target) {
			step = target
		}
		path = append(path, step)
		current = step
	}
	return path, len(path) > 0
}

type PickupRequest struct {
	ID                 int64        `json:"id"`
	UserID             int64        `json:"user_id"`
	AddressID          int64        `json:"address_id"`
	PreferredSlot      time.Time    `json:"preferred_slot"`
	ServiceType        ServiceType  `json:"service_type"`
	Status             PickupStatus `json:"status"`
	Items              []string     `json:"items"`
	Photos             []string     `json:"photos,omitempty"`
	Notes              string       `json:"notes,omitempty"`
	DesignerID         *int64       `json:"designer_id,omitempty"`
	ExpectedPriceCents *int         `json:"expected_price_cents,omitempty"`
	CreatedAt          time.Time    `json:"created_at"`
	UpdatedAt          time.Time    `json:"updated_at"`
}

func (p *PickupRequest) Clone() *PickupRequest {
	if p == nil {
		return nil
	}
	c := *p
	c.Items = slices.Clone(p.Items)
	c.Photos = slices.Clone(p.Photos)
	c.DesignerID = cloneInt64(p.DesignerID)
	c.ExpectedPriceCents = cloneInt(p.ExpectedPriceCents)
	return &c
}
