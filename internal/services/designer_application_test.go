package services

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/restitch/restitch/internal/authz"
	"github.com/restitch/restitch/internal/db"
	"github.com/restitch/restitch/internal/models"
)

func applicationInput() ApplyDesignerInput {
	return ApplyDesignerInput{
		PortfolioURL:    " https://portfolio.example/asha ",
		ExperienceYears: 3,
		Specialization:  "Hand embroidery",
		Motivation:      "I have restitched my whole family's wardrobe and want to take on other people's pieces too.",
	}
}

func TestApplyDesigner_FilesPendingApplication(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	apps := NewApplicationService(f.store, discardLogger())

	app, err := apps.ApplyDesigner(t.Context(), f.customer, applicationInput())
	require.NoError(t, err)

	assert.Equal(t, models.ApplicationPending, app.Status)
	assert.Equal(t, f.customer.UserID, app.UserID)
	assert.Equal(t, "https://portfolio.example/asha", app.PortfolioURL)
	assert.Nil(t, app.ReviewedBy)

	entries := f.activity(t, models.SubjectApplication, app.ID)
	require.Len(t, entries, 1)
	assert.Equal(t, "Designer application submitted", entries[0].Action)
}

func TestApplyDesigner_OnePendingPerUser(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	apps := NewApplicationService(f.store, discardLogger())

	_, err := apps.ApplyDesigner(t.Context(), f.customer, applicationInput())
	require.NoError(t, err)
	_, err = apps.ApplyDesigner(t.Context(), f.customer, applicationInput())
	require.ErrorIs(t, err, ErrPreconditionFailed)
	assert.Contains(t, UserMessage(err), "pending designer application")

	other := f.addUser(t, models.RoleCustomer, 0)
	_, err = apps.ApplyDesigner(t.Context(), other, applicationInput())
	require.NoError(t, err)
}

func TestApplyDesigner_RejectedApplicantMayReapply(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	apps := NewApplicationService(f.store, discardLogger())

	first, err := apps.ApplyDesigner(t.Context(), f.customer, applicationInput())
	require.NoError(t, err)
	_, err = apps.ReviewDesignerApplication(t.Context(), f.admin, first.ID, ReviewApplicationInput{Decision: DecisionReject})
	require.NoError(t, err)

	second, err := apps.ApplyDesigner(t.Context(), f.customer, applicationInput())
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestApplyDesigner_Validation(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	apps := NewApplicationService(f.store, discardLogger())

	tests := []struct {
		name   string
		mutate func(*ApplyDesignerInput)
	}{
		{name: "portfolio not a link", mutate: func(in *ApplyDesignerInput) { in.PortfolioURL = "my instagram" }},
		{name: "portfolio too long", mutate: func(in *ApplyDesignerInput) {
			in.PortfolioURL = "https://portfolio.example/" + strings.Repeat("a", maxPortfolioURLLength)
		}},
		{name: "negative experience", mutate: func(in *ApplyDesignerInput) { in.ExperienceYears = -1 }},
		{name: "too much experience", mutate: func(in *ApplyDesignerInput) { in.ExperienceYears = maxExperienceYears + 1 }},
		{name: "short specialization", mutate: func(in *ApplyDesignerInput) { in.Specialization = " art " }},
		{name: "short motivation", mutate: func(in *ApplyDesignerInput) { in.Motivation = "I like clothes." }},
		{name: "long motivation", mutate: func(in *ApplyDesignerInput) { in.Motivation = strings.Repeat("x", maxMotivation+1) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := applicationInput()
			tt.mutate(&input)

			_, err := apps.ApplyDesigner(t.Context(), f.customer, input)
			require.ErrorIs(t, err, ErrValidationFailed)
		})
	}

	listed, total, err := f.store.ListApplications(t.Context(), db.ApplicationFilter{})
	require.NoError(t, err)
	assert.Empty(t, listed)
	assert.Zero(t, total)
}

func TestApplyDesigner_RoleChecks(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	apps := NewApplicationService(f.store, discardLogger())

	_, err := apps.ApplyDesigner(t.Context(), f.designer, applicationInput())
	require.ErrorIs(t, err, authz.ErrForbidden)
	_, err = apps.ApplyDesigner(t.Context(), f.admin, applicationInput())
	require.ErrorIs(t, err, authz.ErrForbidden)

	// A token minted before promotion still says customer.
	stale := authz.Principal{UserID: f.designer.UserID, Role: models.RoleCustomer}
	_, err = apps.ApplyDesigner(t.Context(), stale, applicationInput())
	require.ErrorIs(t, err, ErrPreconditionFailed)
	assert.Contains(t, UserMessage(err), "already a designer")
}

func TestReviewDesignerApplication_ApprovePromotesAtomically(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	apps := NewApplicationService(f.store, discardLogger())

	app, err := apps.ApplyDesigner(t.Context(), f.customer, applicationInput())
	require.NoError(t, err)

	reviewed, err := apps.ReviewDesignerApplication(t.Context(), f.admin, app.ID, ReviewApplicationInput{
		Decision:   DecisionApprove,
		AdminNotes: "  Lovely kantha work ",
	})
	require.NoError(t, err)
	assert.Equal(t, models.ApplicationApproved, reviewed.Status)
	assert.Equal(t, "Lovely kantha work", reviewed.AdminNotes)
	require.NotNil(t, reviewed.ReviewedBy)
	assert.Equal(t, f.admin.UserID, *reviewed.ReviewedBy)
	assert.NotNil(t, reviewed.ReviewedAt)

	user, err := f.store.GetUser(t.Context(), f.customer.UserID)
	require.NoError(t, err)
	assert.Equal(t, models.RoleDesigner, user.Role)

	entries := f.activity(t, models.SubjectApplication, app.ID)
	require.Len(t, entries, 2)
	assert.Equal(t, "Designer application approved", entries[1].Action)
	assert.Equal(t, f.admin.UserID, entries[1].UserID)

	// The promoted user can now be assigned redesign work.
	input := scheduleInput(models.ServiceRedesign)
	input.DesignerID = f.customer.UserID
	other := f.addUser(t, models.RoleCustomer, 0)
	_, err = f.pickups.SchedulePickup(t.Context(), other, input)
	require.NoError(t, err)
	f.wait()
}

func TestReviewDesignerApplication_RejectKeepsRole(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	apps := NewApplicationService(f.store, discardLogger())

	app, err := apps.ApplyDesigner(t.Context(), f.customer, applicationInput())
	require.NoError(t, err)
	reviewed, err := apps.ReviewDesignerApplication(t.Context(), f.admin, app.ID, ReviewApplicationInput{Decision: DecisionReject, AdminNotes: "Needs a portfolio"})
	require.NoError(t, err)
	assert.Equal(t, models.ApplicationRejected, reviewed.Status)

	user, err := f.store.GetUser(t.Context(), f.customer.UserID)
	require.NoError(t, err)
	assert.Equal(t, models.RoleCustomer, user.Role)
}

func TestReviewDesignerApplication_Preconditions(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	apps := NewApplicationService(f.store, discardLogger())
	app, err := apps.ApplyDesigner(t.Context(), f.customer, applicationInput())
	require.NoError(t, err)

	_, err = apps.ReviewDesignerApplication(t.Context(), f.admin, app.ID, ReviewApplicationInput{Decision: "maybe"})
	require.ErrorIs(t, err, ErrValidationFailed)

	_, err = apps.ReviewDesignerApplication(t.Context(), f.designer, app.ID, ReviewApplicationInput{Decision: DecisionApprove})
	require.ErrorIs(t, err, authz.ErrForbidden)

	_, err = apps.ReviewDesignerApplication(t.Context(), f.admin, 9999, ReviewApplicationInput{Decision: DecisionApprove})
	require.ErrorIs(t, err, ErrNotFound)

	_, err = apps.ReviewDesignerApplication(t.Context(), f.admin, app.ID, ReviewApplicationInput{Decision: DecisionReject})
	require.NoError(t, err)
	_, err = apps.ReviewDesignerApplication(t.Context(), f.admin, app.ID, ReviewApplicationInput{Decision: DecisionApprove})
	require.ErrorIs(t, err, ErrPreconditionFailed)

	user, err := f.store.GetUser(t.Context(), f.customer.UserID)
	require.NoError(t, err)
	assert.Equal(t, models.RoleCustomer, user.Role)
}

// roleFailingStore fails every role change, so an approval cannot complete.
type roleFailingStore struct {
	*db.MemoryStore
}

func (s roleFailingStore) InTx(ctx context.Context, fn func(ctx context.Context, tx db.Tx) error) error {
	return s.MemoryStore.InTx(ctx, func(ctx context.Context, tx db.Tx) error {
		return fn(ctx, roleFailingTx{Tx: tx})
	})
}

type roleFailingTx struct {
	db.Tx
}

func (roleFailingTx) SetUserRole(context.Context, int64, models.Role) error {
	return errConnectionReset
}

func TestReviewDesignerApplication_FailedPromotionRollsBack(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	app, err := NewApplicationService(f.store, discardLogger()).ApplyDesigner(t.Context(), f.customer, applicationInput())
	require.NoError(t, err)

	apps := NewApplicationService(roleFailingStore{MemoryStore: f.store}, discardLogger())
	_, err = apps.ReviewDesignerApplication(t.Context(), f.admin, app.ID, ReviewApplicationInput{Decision: DecisionApprove})
	require.ErrorIs(t, err, ErrPersistence)

	stored, err := f.store.GetApplication(t.Context(), app.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ApplicationPending, stored.Status)
	assert.Nil(t, stored.ReviewedAt)
	assert.Len(t, f.activity(t, models.SubjectApplication, app.ID), 1)

	user, err := f.store.GetUser(t.Context(), f.customer.UserID)
	require.NoError(t, err)
	assert.Equal(t, models.RoleCustomer, user.Role)
}
