package models

import (
	"maps"
	"time"
)

type SubjectType string

const (
	SubjectOrder       SubjectType = "order"
	SubjectPickup      SubjectType = "pickup"
	SubjectUser        SubjectType = "user"
	SubjectApplication SubjectType = "designer_application"
)

// ActivityLog is an append-only audit entry written alongside every state change.
type ActivityLog struct {
	ID          int64          `json:"id"`
	SubjectType SubjectType    `json:"subject_type"`
	SubjectID   int64          `json:"subject_id"`
	Action      string         `json:"action"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	UserID      int64          `json:"user_id"`
	Timestamp   time.Time      `json:"timestamp"`
}

func (a *ActivityLog) Clone() *ActivityLog {
	if a == nil {
		return nil
	}
	c := *a
	c.Metadata = maps.Clone(a.Metadata)
	return &c
}
