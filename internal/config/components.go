package config

import (
	"fmt"
	"time"

	"github.com/danielpatrickdp/moodengine/internal/compute"
	"github.com/danielpatrickdp/moodengine/internal/conflict"
	"github.com/danielpatrickdp/moodengine/internal/mood"
	"github.com/danielpatrickdp/moodengine/internal/pipeline"
	"github.com/danielpatrickdp/moodengine/internal/recovery"
)

// #region detector
// DetectorConfig mirrors conflict.Config with YAML names.
type DetectorConfig struct {
	IgnoredMessageThreshold    int           `yaml:"ignored_message_threshold"`
	ColdValence                float64       `yaml:"cold_valence"`
	VulnerableIntimacyDrop     float64       `yaml:"vulnerable_intimacy_drop"`
	ExplosiveArousal           float64       `yaml:"explosive_arousal"`
	ExplosiveValence           float64       `yaml:"explosive_valence"`
	AnxiousModifier            float64       `yaml:"anxious_modifier"`
	ExplosiveTimeout           time.Duration `yaml:"explosive_timeout"`
	DeEscalationValence        float64       `yaml:"de_escalation_valence"`
	VulnerableRecoveryIntimacy float64       `yaml:"vulnerable_recovery_intimacy"`
}

// DefaultDetectorConfig mirrors conflict.DefaultConfig.
func DefaultDetectorConfig() DetectorConfig {
	d := conflict.DefaultConfig()
	return DetectorConfig{
		IgnoredMessageThreshold:    d.IgnoredMessageThreshold,
		ColdValence:                d.ColdValence,
		VulnerableIntimacyDrop:     d.VulnerableIntimacyDrop,
		ExplosiveArousal:           d.ExplosiveArousal,
		ExplosiveValence:           d.ExplosiveValence,
		AnxiousModifier:            d.AnxiousModifier,
		ExplosiveTimeout:           d.ExplosiveTimeout,
		DeEscalationValence:        d.DeEscalationValence,
		VulnerableRecoveryIntimacy: d.VulnerableRecoveryIntimacy,
	}
}

// Conflict converts to the detector's own config.
func (c DetectorConfig) Conflict() conflict.Config {
	return conflict.Config{
		IgnoredMessageThreshold:    c.IgnoredMessageThreshold,
		ColdValence:                c.ColdValence,
		VulnerableIntimacyDrop:     c.VulnerableIntimacyDrop,
		ExplosiveArousal:           c.ExplosiveArousal,
		ExplosiveValence:           c.ExplosiveValence,
		AnxiousModifier:            c.AnxiousModifier,
		ExplosiveTimeout:           c.ExplosiveTimeout,
		DeEscalationValence:        c.DeEscalationValence,
		VulnerableRecoveryIntimacy: c.VulnerableRecoveryIntimacy,
	}
}

func (c DetectorConfig) validate() []error {
	var errs []error
	if c.IgnoredMessageThreshold < 1 {
		errs = append(errs, fmt.Errorf("detector.ignored_message_threshold must be >= 1, got %d", c.IgnoredMessageThreshold))
	}
	for name, v := range map[string]float64{
		"cold_valence":                 c.ColdValence,
		"vulnerable_intimacy_drop":     c.VulnerableIntimacyDrop,
		"explosive_arousal":            c.ExplosiveArousal,
		"explosive_valence":            c.ExplosiveValence,
		"de_escalation_valence":        c.DeEscalationValence,
		"vulnerable_recovery_intimacy": c.VulnerableRecoveryIntimacy,
	} {
		if v < 0 || v > 1 {
			errs = append(errs, fmt.Errorf("detector.%s must be in [0,1], got %v", name, v))
		}
	}
	if c.AnxiousModifier < -1 || c.AnxiousModifier > 1 {
		errs = append(errs, fmt.Errorf("detector.anxious_modifier must be in [-1,1], got %v", c.AnxiousModifier))
	}
	if c.ExplosiveTimeout <= 0 {
		errs = append(errs, fmt.Errorf("detector.explosive_timeout must be positive, got %s", c.ExplosiveTimeout))
	}
	return errs
}

// #endregion detector

// #region recovery
// RecoveryConfig mirrors recovery.Config with string-keyed maps for YAML.
// Map entries given in a file are merged over the defaults.
type RecoveryConfig struct {
	BaseIncrement       float64            `yaml:"base_increment"`
	ApproachRates       map[string]float64 `yaml:"approach_rates"`
	Thresholds          map[string]float64 `yaml:"thresholds"`
	KindDiscounts       map[string]float64 `yaml:"kind_discounts"`
	DecayPerDay         map[string]float64 `yaml:"decay_per_day"`
	Cooldown            time.Duration      `yaml:"cooldown"`
	InteractionInterval time.Duration      `yaml:"interaction_interval"`
}

// DefaultRecoveryConfig mirrors recovery.DefaultConfig.
func DefaultRecoveryConfig() RecoveryConfig {
	d := recovery.DefaultConfig()
	out := RecoveryConfig{
		BaseIncrement:       d.BaseIncrement,
		ApproachRates:       map[string]float64{},
		Thresholds:          kindMap(d.Thresholds),
		KindDiscounts:       kindMap(d.KindDiscounts),
		DecayPerDay:         kindMap(d.DecayPerDay),
		Cooldown:            d.Cooldown,
		InteractionInterval: d.InteractionInterval,
	}
	for a, v := range d.ApproachRates {
		out.ApproachRates[string(a)] = v
	}
	return out
}

func kindMap(m map[mood.ConflictState]float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[string(k)] = v
	}
	return out
}

// Recovery converts to the manager's own config. Call Validate first;
// unknown keys are dropped here.
func (c RecoveryConfig) Recovery() recovery.Config {
	out := recovery.Config{
		BaseIncrement:       c.BaseIncrement,
		ApproachRates:       map[recovery.Approach]float64{},
		Thresholds:          activeKinds(c.Thresholds),
		KindDiscounts:       activeKinds(c.KindDiscounts),
		DecayPerDay:         activeKinds(c.DecayPerDay),
		Cooldown:            c.Cooldown,
		InteractionInterval: c.InteractionInterval,
	}
	for k, v := range c.ApproachRates {
		if a, err := recovery.ParseApproach(k); err == nil {
			out.ApproachRates[a] = v
		}
	}
	return out
}

func activeKinds(m map[string]float64) map[mood.ConflictState]float64 {
	out := make(map[mood.ConflictState]float64, len(m))
	for k, v := range m {
		if kind, err := mood.ParseConflictState(k); err == nil && kind.Active() {
			out[kind] = v
		}
	}
	return out
}

func (c RecoveryConfig) validate() []error {
	var errs []error
	if c.BaseIncrement <= 0 || c.BaseIncrement > 1 {
		errs = append(errs, fmt.Errorf("recovery.base_increment must be in (0,1], got %v", c.BaseIncrement))
	}
	for k, v := range c.ApproachRates {
		if _, err := recovery.ParseApproach(k); err != nil {
			errs = append(errs, fmt.Errorf("recovery.approach_rates: %w", err))
		}
		if v < 0 {
			errs = append(errs, fmt.Errorf("recovery.approach_rates.%s must be >= 0, got %v", k, v))
		}
	}
	for name, m := range map[string]map[string]float64{
		"thresholds":     c.Thresholds,
		"kind_discounts": c.KindDiscounts,
		"decay_per_day":  c.DecayPerDay,
	} {
		for k, v := range m {
			kind, err := mood.ParseConflictState(k)
			if err != nil || !kind.Active() {
				errs = append(errs, fmt.Errorf("recovery.%s: %q is not an active conflict kind", name, k))
			}
			if v < 0 || (name == "thresholds" && (v == 0 || v > 1)) {
				errs = append(errs, fmt.Errorf("recovery.%s.%s out of range: %v", name, k, v))
			}
		}
	}
	for _, kind := range mood.SeverityOrder[1:] {
		if _, ok := c.Thresholds[string(kind)]; !ok {
			errs = append(errs, fmt.Errorf("recovery.thresholds.%s is required", kind))
		}
	}
	if c.Cooldown < 0 {
		errs = append(errs, fmt.Errorf("recovery.cooldown must be >= 0, got %s", c.Cooldown))
	}
	if c.InteractionInterval <= 0 {
		errs = append(errs, fmt.Errorf("recovery.interaction_interval must be positive, got %s", c.InteractionInterval))
	}
	return errs
}

// #endregion recovery

// Engine assembles the component configs for pipeline.New.
func (c *Config) Engine() pipeline.Config {
	return pipeline.Config{
		Compute:      compute.DefaultConfig(),
		Conflict:     c.Detector.Conflict(),
		Recovery:     c.Recovery.Recovery(),
		DecayWorkers: c.Pipeline.DecayWorkers,
	}
}
