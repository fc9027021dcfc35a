package db

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/restitch/restitch/internal/models"
)

func (s *MemoryStore) GetApplication(ctx context.Context, id int64) (*DesignerApplication, error) {
	return s.read().getApplication(id)
}

func (s *MemoryStore) ListApplications(ctx context.Context, filter ApplicationFilter) ([]*DesignerApplication, int, error) {
	apps, total := s.read().listApplications(filter)
	return apps, total, nil
}

func (m *memoryState) getApplication(id int64) (*DesignerApplication, error) {
	app, ok := m.apps[id]
	if !ok {
		return nil, ErrNotFound
	}
	return app.Clone(), nil
}

func (m *memoryState) listApplications(filter ApplicationFilter) ([]*DesignerApplication, int) {
	var matched []*DesignerApplication
	for _, app := range m.apps {
		if filter.UserID > 0 && app.UserID != filter.UserID {
			continue
		}
		if filter.Status != "" && app.Status != filter.Status {
			continue
		}
		matched = append(matched, app.Clone())
	}
	slices.SortFunc(matched, func(a, b *DesignerApplication) int {
		return newestFirst(a.CreatedAt, b.CreatedAt, a.ID, b.ID)
	})
	return paginate(matched, filter.Page, filter.Limit), len(matched)
}

func (t *memoryTx) GetApplication(ctx context.Context, id int64) (*DesignerApplication, error) {
	return t.state.getApplication(id)
}

func (t *memoryTx) ListApplications(ctx context.Context, filter ApplicationFilter) ([]*DesignerApplication, int, error) {
	apps, total := t.state.listApplications(filter)
	return apps, total, nil
}

func (t *memoryTx) LockApplication(ctx context.Context, id int64) (*DesignerApplication, error) {
	return t.state.getApplication(id)
}

func (t *memoryTx) CreateApplication(ctx context.Context, app *DesignerApplication) error {
	if _, ok := t.state.users[app.UserID]; !ok {
		return fmt.Errorf("%w: user %d", ErrNotFound, app.UserID)
	}
	if app.Status == models.ApplicationPending {
		for _, existing := range t.state.apps {
			if existing.UserID == app.UserID && existing.Status == models.ApplicationPending {
				return fmt.Errorf("%w: designer_applications_pending_user_key", ErrDuplicate)
			}
		}
	}
	t.state.lastAppID++
	app.ID = t.state.lastAppID
	app.CreatedAt = time.Now()
	t.state.apps[app.ID] = app.Clone()
	return nil
}

func (t *memoryTx) UpdateApplication(ctx context.Context, app *DesignerApplication, expected models.ApplicationStatus) error {
	stored, ok := t.state.apps[app.ID]
	if !ok {
		return ErrNotFound
	}
	if stored.Status != expected {
		return fmt.Errorf("%w: expected %s", ErrInvalidStatusTransition, expected)
	}
	updated := stored.Clone()
	updated.Status = app.Status
	updated.AdminNotes = app.AdminNotes
	updated.ReviewedBy = cloneID(app.ReviewedBy)
	now := time.Now()
	updated.ReviewedAt = &now
	app.ReviewedAt = &now
	t.state.apps[app.ID] = updated
	return nil
}

func (t *memoryTx) SetUserRole(ctx context.Context, userID int64, role models.Role) error {
	user, ok := t.state.users[userID]
	if !ok {
		return ErrNotFound
	}
	updated := *user
	updated.Role = role
	t.state.users[userID] = &updated
	return nil
}

func cloneID(v *int64) *int64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
