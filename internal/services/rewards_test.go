package services

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/restitch/restitch/internal/authz"
	"github.com/restitch/restitch/internal/catalog"
	"github.com/restitch/restitch/internal/models"
)

func newRewardService(t *testing.T, f *fixture) *RewardService {
	t.Helper()

	rewards, err := catalog.Load("")
	require.NoError(t, err)
	return NewRewardService(f.store, rewards, discardLogger())
}

func TestRedeem_InsufficientPoints(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	svc := newRewardService(t, f)
	customer := f.addUser(t, models.RoleCustomer, 80)

	_, err := svc.Redeem(t.Context(), customer, 1)
	require.ErrorIs(t, err, ErrInsufficientPoints)
	require.ErrorIs(t, err, ErrPreconditionFailed)
	assert.Contains(t, strings.ToLower(UserMessage(err)), "insufficient points")

	assert.Equal(t, 80, f.points(t, customer.UserID))
	assert.Empty(t, f.activity(t, models.SubjectUser, customer.UserID))
}

func TestRedeem_DebitsBalance(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	svc := newRewardService(t, f)
	customer := f.addUser(t, models.RoleCustomer, 250)

	redemption, err := svc.Redeem(t.Context(), customer, 2)
	require.NoError(t, err)
	assert.Equal(t, "Free Shipping", redemption.Reward.Name)
	assert.Equal(t, 100, redemption.Balance)
	assert.Equal(t, 100, f.points(t, customer.UserID))

	entries := f.activity(t, models.SubjectUser, customer.UserID)
	require.Len(t, entries, 1)
	assert.Equal(t, "Redeemed reward: Free Shipping", entries[0].Action)

	redemption, err = svc.Redeem(t.Context(), customer, 1)
	require.NoError(t, err)
	assert.Zero(t, redemption.Balance)

	_, err = svc.Redeem(t.Context(), customer, 1)
	require.ErrorIs(t, err, ErrInsufficientPoints)
	assert.Zero(t, f.points(t, customer.UserID))
}

func TestRedeem_UnknownRewardAndRole(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	svc := newRewardService(t, f)

	_, err := svc.Redeem(t.Context(), f.customer, 99)
	require.ErrorIs(t, err, ErrNotFound)

	_, err = svc.Redeem(t.Context(), f.designer, 1)
	require.ErrorIs(t, err, authz.ErrForbidden)
}
