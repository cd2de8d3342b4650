package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"devshop/internal/game"
)

// Balance is the on-disk form of the game balance. Missing keys keep the
// defaults of the rules it is applied to.
type Balance struct {
	StartingMoney      *float64       `yaml:"starting_money"`
	ProjectFeeRate     *float64       `yaml:"project_fee_rate"`
	StarterDeveloper   *StarterWorker `yaml:"starter_developer"`
	StarterSalesperson *StarterWorker `yaml:"starter_salesperson"`
}

type StarterWorker struct {
	Name       string `yaml:"name"`
	Seniority  int    `yaml:"seniority,omitempty"`
	Experience int    `yaml:"experience,omitempty"`
}

// LoadRules applies the balance file at path over base. An empty path
// returns base unchanged.
func LoadRules(path string, base game.Rules) (game.Rules, error) {
	if path == "" {
		return base, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("read balance file: %w", err)
	}
	return ParseRules(raw, base)
}

// Rules is the game balance for this deployment: the defaults, the balance
// file, then the tick concurrency from the environment.
func (c APIConfig) Rules() (game.Rules, error) {
	base := game.DefaultRules()
	base.TickConcurrency = c.TickConcurrency
	return LoadRules(c.BalanceFile, base)
}

func ParseRules(raw []byte, base game.Rules) (game.Rules, error) {
	var b Balance
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&b); err != nil {
		if errors.Is(err, io.EOF) {
			return base, nil
		}
		return base, fmt.Errorf("parse balance: %w", err)
	}
	return b.apply(base)
}

func (b Balance) apply(r game.Rules) (game.Rules, error) {
	if b.StartingMoney != nil {
		if *b.StartingMoney < 0 {
			return r, fmt.Errorf("starting_money must be >= 0")
		}
		r.StartingMoney = game.MoneyFromUnits(*b.StartingMoney)
	}
	if b.ProjectFeeRate != nil {
		if *b.ProjectFeeRate < 0 || *b.ProjectFeeRate > 1 {
			return r, fmt.Errorf("project_fee_rate must be between 0 and 1")
		}
		r.ProjectFeeRate = *b.ProjectFeeRate
	}
	if w := b.StarterDeveloper; w != nil {
		if w.Name != "" {
			r.StarterDeveloper = w.Name
		}
		if w.Seniority != 0 {
			if w.Seniority < 1 {
				return r, fmt.Errorf("starter_developer.seniority must be >= 1")
			}
			r.StarterSeniority = w.Seniority
		}
	}
	if w := b.StarterSalesperson; w != nil {
		if w.Name != "" {
			r.StarterSalesperson = w.Name
		}
		if w.Experience != 0 {
			if w.Experience < 1 {
				return r, fmt.Errorf("starter_salesperson.experience must be >= 1")
			}
			r.StarterExperience = w.Experience
		}
	}
	return r, nil
}
