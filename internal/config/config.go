package config

import (
	"fmt"
	"math"
	"os"
	"time"

	"github.com/dyluth/appraise/pkg/ledger"
	"gopkg.in/yaml.v3"
)

// Defaults applied by Validate when a setting is omitted.
const (
	DefaultEvaluationTimeout   = 10 * time.Second
	DefaultHealthCheckInterval = 5 * time.Minute
	DefaultListenAddr          = ":8080"
	DefaultPopularity          = 50.0
	DefaultPopularityTimeout   = 500 * time.Millisecond
)

// AppraiseConfig represents the top-level appraise.yml configuration
type AppraiseConfig struct {
	Version      string                 `yaml:"version"`
	Orchestrator *OrchestratorConfig    `yaml:"orchestrator,omitempty"`
	Agents       map[string]AgentConfig `yaml:"agents,omitempty"` // Keyed by agent type
	Impact       *ImpactConfig          `yaml:"impact,omitempty"`
	CodeQuality  *CodeQualityConfig     `yaml:"code_quality,omitempty"`
}

// OrchestratorConfig specifies engine and server settings
type OrchestratorConfig struct {
	EvaluationTimeout   time.Duration `yaml:"evaluation_timeout,omitempty"`    // Bound on one contribution (default 10s)
	HealthCheckInterval time.Duration `yaml:"health_check_interval,omitempty"` // Default 5m
	ListenAddr          string        `yaml:"listen_addr,omitempty"`           // Default ":8080"
}

// AgentConfig toggles a single agent
type AgentConfig struct {
	Enabled *bool `yaml:"enabled,omitempty"` // Omitted means enabled
}

// ImpactConfig tunes the contribution impact agent
type ImpactConfig struct {
	DefaultPopularity *float64      `yaml:"default_popularity,omitempty"` // Used when no popularity is recorded (default 50)
	PopularityTimeout time.Duration `yaml:"popularity_timeout,omitempty"` // Default 500ms
}

// CodeQualityConfig tunes the code quality agent
type CodeQualityConfig struct {
	LanguageMultipliers map[string]float64 `yaml:"language_multipliers,omitempty"` // Overrides the built-in table
}

// Default returns a validated configuration with every default applied.
func Default() *AppraiseConfig {
	config := &AppraiseConfig{Version: "1.0"}
	if err := config.Validate(); err != nil {
		// The zero configuration is always valid
		panic(err)
	}
	return config
}

// Validate performs strict validation on the configuration and fills in defaults
func (c *AppraiseConfig) Validate() error {
	// Required: version
	if c.Version != "1.0" {
		return fmt.Errorf("unsupported version: %s (expected: 1.0)", c.Version)
	}

	// Agent keys must name known agents
	for name := range c.Agents {
		if err := ledger.AgentType(name).Validate(); err != nil {
			return fmt.Errorf("agents: unknown agent '%s'", name)
		}
	}

	// Required: at least one enabled agent
	enabled := 0
	for _, agentType := range ledger.AllAgentTypes() {
		if c.AgentEnabled(agentType) {
			enabled++
		}
	}
	if enabled == 0 {
		return fmt.Errorf("no agents enabled")
	}

	if c.Orchestrator == nil {
		c.Orchestrator = &OrchestratorConfig{}
	}
	if err := c.Orchestrator.validate(); err != nil {
		return err
	}

	if c.Impact == nil {
		c.Impact = &ImpactConfig{}
	}
	if err := c.Impact.validate(); err != nil {
		return err
	}

	if c.CodeQuality == nil {
		c.CodeQuality = &CodeQualityConfig{}
	}
	for lang, m := range c.CodeQuality.LanguageMultipliers {
		if math.IsNaN(m) || m <= 0 {
			return fmt.Errorf("code_quality.language_multipliers.%s must be > 0, got %v", lang, m)
		}
	}

	return nil
}

func (o *OrchestratorConfig) validate() error {
	if o.EvaluationTimeout < 0 {
		return fmt.Errorf("orchestrator.evaluation_timeout must be >= 0, got %s", o.EvaluationTimeout)
	}
	if o.EvaluationTimeout == 0 {
		o.EvaluationTimeout = DefaultEvaluationTimeout
	}

	if o.HealthCheckInterval < 0 {
		return fmt.Errorf("orchestrator.health_check_interval must be >= 0, got %s", o.HealthCheckInterval)
	}
	if o.HealthCheckInterval == 0 {
		o.HealthCheckInterval = DefaultHealthCheckInterval
	}

	if o.ListenAddr == "" {
		o.ListenAddr = DefaultListenAddr
	}

	return nil
}

func (i *ImpactConfig) validate() error {
	if i.DefaultPopularity == nil {
		popularity := DefaultPopularity
		i.DefaultPopularity = &popularity
	}
	if p := *i.DefaultPopularity; math.IsNaN(p) || p < 0 || p > 100 {
		return fmt.Errorf("impact.default_popularity must be in [0,100], got %v", p)
	}

	if i.PopularityTimeout < 0 {
		return fmt.Errorf("impact.popularity_timeout must be >= 0, got %s", i.PopularityTimeout)
	}
	if i.PopularityTimeout == 0 {
		i.PopularityTimeout = DefaultPopularityTimeout
	}

	return nil
}

// AgentEnabled reports whether an agent should be registered.
func (c *AppraiseConfig) AgentEnabled(agentType ledger.AgentType) bool {
	agent, ok := c.Agents[string(agentType)]
	if !ok || agent.Enabled == nil {
		return true
	}
	return *agent.Enabled
}

// Load reads and validates appraise.yml from the specified path
func Load(path string) (*AppraiseConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config AppraiseConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}
