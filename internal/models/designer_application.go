package models

import (
	"slices"
	"time"
)

type ApplicationStatus string

const (
	ApplicationPending  ApplicationStatus = "pending"
	ApplicationApproved ApplicationStatus = "approved"
	ApplicationRejected ApplicationStatus = "rejected"
)

var applicationTransitions = map[ApplicationStatus][]ApplicationStatus{
	ApplicationPending: {ApplicationApproved, ApplicationRejected},
}

func (s ApplicationStatus) IsValid() bool {
	switch s {
	case ApplicationPending, ApplicationApproved, ApplicationRejected:
		return true
	}
	return false
}

func (s ApplicationStatus) CanTransitionTo(next ApplicationStatus) bool {
	return slices.Contains(applicationTransitions[s], next)
}

// DesignerApplication is a customer's request to be promoted to designer.
// A user has at most one pending application at a time.
type DesignerApplication struct {
	ID              int64             `json:"id"`
	UserID          int64             `json:"user_id"`
	PortfolioURL    string            `json:"portfolio_url,omitempty"`
	ExperienceYears int               `json:"experience_years"`
	Specialization  string            `json:"specialization,omitempty"`
	Motivation      string            `json:"why_designer,omitempty"`
	Status          ApplicationStatus `json:"status"`
	AdminNotes      string            `json:"admin_notes,omitempty"`
	ReviewedBy      *int64            `json:"reviewed_by,omitempty"`
	ReviewedAt      *time.Time        `json:"reviewed_at,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
}

func (a *DesignerApplication) Clone() *DesignerApplication {
	if a == nil {
		return nil
	}
	c := *a
	c.ReviewedBy = cloneInt64(a.ReviewedBy)
	if a.ReviewedAt != nil {
		at := *a.ReviewedAt
		c.ReviewedAt = &at
	}
	return &c
}
