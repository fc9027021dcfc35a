package catalog

// Package catalog provides rewards catalog validation.

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

type Validator struct {
	structs *validator.Validate
}

func NewValidator() *Validator {
	return &Validator{structs: validator.New()}
}

func (v *Validator) Validate(config *RewardsConfig) error {
	if config == nil {
		return fmt.Errorf("rewards config is required")
	}
	if err := v.structs.Struct(config); err != nil {
		return fmt.Errorf("rewards validation failed: %w", err)
	}

	ids := make(map[int]bool)
	names := make(map[string]bool)
	for _, reward := range config.Rewards {
		if ids[reward.ID] {
			return fmt.Errorf("duplicate reward id: %d", reward.ID)
		}
		ids[reward.ID] = true

		name := strings.ToLower(strings.TrimSpace(reward.Name))
		if names[name] {
			return fmt.Errorf("duplicate reward name: %s", reward.Name)
		}
		names[name] = true
	}

	return nil
}
