package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/restitch/restitch/internal/authz"
	"github.com/restitch/restitch/internal/catalog"
	"github.com/restitch/restitch/internal/db"
	"github.com/restitch/restitch/internal/models"
)

// RewardService redeems loyalty points against the reward catalog.
type RewardService struct {
	*workflow
	catalog *catalog.Catalog
}

// NewRewardService returns a RewardService. Redemptions send no notifications.
func NewRewardService(store db.Store, rewards *catalog.Catalog, logger *slog.Logger) *RewardService {
	return &RewardService{
		workflow: newWorkflow(store, nil, logger, Config{}),
		catalog:  rewards,
	}
}

func (s *RewardService) Rewards() []catalog.Reward {
	return s.catalog.Rewards()
}

type Redemption struct {
	Reward  catalog.Reward `json:"reward"`
	Balance int            `json:"balance"`
}

// Redeem debits the reward's cost from the customer's balance. The debit is
// refused when the balance would go negative.
func (s *RewardService) Redeem(ctx context.Context, principal authz.Principal, rewardID int) (*Redemption, error) {
	reward, err := s.catalog.Reward(rewardID)
	if errors.Is(err, catalog.ErrRewardNotFound) {
		return nil, notFoundf("reward #%d does not exist", rewardID)
	}
	if err != nil {
		return nil, err
	}

	var redemption Redemption
	err = s.run(ctx, transition{
		action:     "redeem_reward",
		capability: authz.RedeemReward,
		principal:  principal,
		subject:    models.SubjectUser,
		subjectID:  principal.UserID,
	}, func(ctx context.Context, tx db.Tx) error {
		if err := tx.DebitPoints(ctx, principal.UserID, reward.PointsCost); err != nil {
			return fmt.Errorf("failed to redeem %s: %w", reward.Name, err)
		}
		user, err := tx.GetUser(ctx, principal.UserID)
		if err != nil {
			return err
		}
		if err := s.record(ctx, tx, principal, models.SubjectUser, user.ID, "Redeemed reward: "+reward.Name, map[string]any{
			"reward_id":   reward.ID,
			"points_cost": reward.PointsCost,
			"balance":     user.Points,
		}); err != nil {
			return err
		}
		redemption = Redemption{Reward: reward, Balance: user.Points}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &redemption, nil
}
