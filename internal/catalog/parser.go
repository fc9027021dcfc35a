package catalog

// Package catalog provides the rewards catalog customers redeem points against.

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed rewards.yaml
var defaultRewardsYAML []byte

type RewardsConfig struct {
	Rewards []RewardConfig `yaml:"rewards" validate:"required,min=1,dive"`
}

type RewardConfig struct {
	ID          int    `yaml:"id" validate:"required,gt=0"`
	Name        string `yaml:"name" validate:"required"`
	Description string `yaml:"description"`
	PointsCost  int    `yaml:"points_cost" validate:"required,gt=0"`
	Active      bool   `yaml:"active"`
}

type Parser struct{}

func NewParser() *Parser {
	return &Parser{}
}

func (p *Parser) Parse(content []byte) (*RewardsConfig, error) {
	var config RewardsConfig
	if err := yaml.Unmarshal(content, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	return &config, nil
}

func (p *Parser) ParseFromString(content string) (*RewardsConfig, error) {
	return p.Parse([]byte(content))
}

// Load reads a rewards file, or the built-in catalog when path is empty, and
// validates it.
func Load(path string) (*Catalog, error) {
	content := defaultRewardsYAML
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read rewards file: %w", err)
		}
		content = data
	}

	config, err := NewParser().Parse(content)
	if err != nil {
		return nil, err
	}
	if err := NewValidator().Validate(config); err != nil {
		return nil, err
	}
	return newCatalog(config), nil
}
