package catalog

import (
	"errors"
	"slices"
)

var ErrRewardNotFound = errors.New("reward not found")

type Reward struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	PointsCost  int    `json:"points_cost"`
}

// Catalog is an immutable, validated set of rewards.
type Catalog struct {
	rewards []Reward
	byID    map[int]Reward
}

func newCatalog(config *RewardsConfig) *Catalog {
	c := &Catalog{byID: make(map[int]Reward)}
	for _, rc := range config.Rewards {
		if !rc.Active {
			continue
		}
		reward := Reward{
			ID:          rc.ID,
			Name:        rc.Name,
			Description: rc.Description,
			PointsCost:  rc.PointsCost,
		}
		c.rewards = append(c.rewards, reward)
		c.byID[reward.ID] = reward
	}
	slices.SortFunc(c.rewards, func(a, b Reward) int { return a.PointsCost - b.PointsCost })
	return c
}

func (c *Catalog) Rewards() []Reward {
	return slices.Clone(c.rewards)
}

func (c *Catalog) Reward(id int) (Reward, error) {
	reward, ok := c.byID[id]
	if !ok {
		return Reward{}, ErrRewardNotFound
	}
	return reward, nil
}
