package models

import (
	"slices"
	"time"
)

// ReviewStage tracks the designer/admin review of an order. Orders that never
// go through review (donations) leave it empty.
type ReviewStage string

const (
	ReviewNone             ReviewStage = ""
	ReviewPending          ReviewStage = "review"
	ReviewInProgress       ReviewStage = "in_progress"
	ReviewComplete         ReviewStage = "complete"
	ReviewApproved         ReviewStage = "approved"
	ReviewRejected         ReviewStage = "rejected"
	ReviewPendingApproval  ReviewStage = "pending_approval"
	ReviewApprovedForStore ReviewStage = "approved_for_store"
)

var reviewTransitions = map[ReviewStage][]ReviewStage{
	ReviewPending:         {ReviewInProgress, ReviewRejected},
	ReviewInProgress:      {ReviewComplete},
	ReviewComplete:        {ReviewApproved},
	ReviewPendingApproval: {ReviewApprovedForStore, ReviewRejected},
}

func (s ReviewStage) IsValid() bool {
	switch s {
	case ReviewPending, ReviewInProgress, ReviewComplete, ReviewApproved,
		ReviewRejected, ReviewPendingApproval, ReviewApprovedForStore:
		return true
	}
	return false
}

func (s ReviewStage) IsTerminal() bool {
	return s == ReviewRejected || s == ReviewApprovedForStore
}

func (s ReviewStage) CanTransitionTo(next ReviewStage) bool {
	return slices.Contains(reviewTransitions[s], next)
}

// FulfillmentStage tracks the physical progress of an order toward the customer.
type FulfillmentStage string

const (
	FulfillmentNone      FulfillmentStage = ""
	FulfillmentReceived  FulfillmentStage = "received"
	FulfillmentSorting   FulfillmentStage = "sorting"
	FulfillmentDesigning FulfillmentStage = "designing"
	FulfillmentReady     FulfillmentStage = "ready"
	FulfillmentShipped   FulfillmentStage = "shipped"
	FulfillmentDelivered FulfillmentStage = "delivered"
)

// FulfillmentStages lists the pipeline in order.
var FulfillmentStages = []FulfillmentStage{
	FulfillmentReceived,
	FulfillmentSorting,
	FulfillmentDesigning,
	FulfillmentReady,
	FulfillmentShipped,
	FulfillmentDelivered,
}

func (s FulfillmentStage) IsValid() bool {
	return slices.Contains(FulfillmentStages, s)
}

func (s FulfillmentStage) Position() int {
	return slices.Index(FulfillmentStages, s)
}

// Next returns the stage that follows s, or FulfillmentNone when s is the last
// stage or not part of the pipeline.
func (s FulfillmentStage) Next() FulfillmentStage {
	i := s.Position()
	if i < 0 || i+1 >= len(FulfillmentStages) {
		return FulfillmentNone
	}
	return FulfillmentStages[i+1]
}

type Order struct {
	ID                 int64            `json:"id"`
	UserID             int64            `json:"user_id"`
	PickupID           *int64           `json:"pickup_id,omitempty"`
	DesignerID         *int64           `json:"designer_id,omitempty"`
	ServiceType        ServiceType      `json:"service_type"`
	ReviewStage        ReviewStage      `json:"review_stage,omitempty"`
	FulfillmentStage   FulfillmentStage `json:"fulfillment_stage,omitempty"`
	FabricType         string           `json:"fabric_type,omitempty"`
	Notes              string           `json:"notes,omitempty"`
	EstimatedDays      *int             `json:"estimated_days,omitempty"`
	ImagesBefore       []string         `json:"images_before,omitempty"`
	ImagesAfter        []string         `json:"images_after,omitempty"`
	VideoURL           string           `json:"video_url,omitempty"`
	Barcode            string           `json:"barcode,omitempty"`
	PointsAwarded      int              `json:"points_awarded"`
	ExpectedPriceCents *int             `json:"expected_price_cents,omitempty"`
	Version            int              `json:"version"`
	CreatedAt          time.Time        `json:"created_at"`
	UpdatedAt          time.Time        `json:"updated_at"`
}

// Status is the customer-facing status: the fulfillment stage once the order
// is in the delivery pipeline, otherwise the review stage.
func (o *Order) Status() string {
	if o.FulfillmentStage != FulfillmentNone {
		return string(o.FulfillmentStage)
	}
	return string(o.ReviewStage)
}

func (o *Order) AssignedTo(designerID int64) bool {
	return o.DesignerID != nil && *o.DesignerID == designerID
}

func (o *Order) IsTerminal() bool {
	return o.FulfillmentStage == FulfillmentDelivered || o.ReviewStage.IsTerminal()
}

func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	c := *o
	c.PickupID = cloneInt64(o.PickupID)
	c.DesignerID = cloneInt64(o.DesignerID)
	c.EstimatedDays = cloneInt(o.EstimatedDays)
	c.ExpectedPriceCents = cloneInt(o.ExpectedPriceCents)
	c.ImagesBefore = slices.Clone(o.ImagesBefore)
	c.ImagesAfter = slices.Clone(o.ImagesAfter)
	return &c
}

func cloneInt64(v *int64) *int64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneInt(v *int) *int {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
