// Package config decodes the orchestrator's configuration surface: the
// agent effort/reflection knobs, the memory-compaction settings, and the
// per-sub-agent-type step overrides named in SPEC_FULL.md §6.
//
// Adapted from the teacher's internal/config.Load (os.ReadFile, env-var
// expansion, strict yaml.v3 decode, then a separate defaults pass and a
// validation pass returning an aggregated *ConfigValidationError) — the
// teacher's $include-merge and JSON5 support are deliberately dropped: the
// Non-goals explicitly exclude "config-loading mechanics beyond the
// struct+yaml surface" (see DESIGN.md).
package config

import (
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/haasonsaas/orcha/internal/agent"
	"github.com/haasonsaas/orcha/internal/mcp"
)

// Config is the root configuration structure.
type Config struct {
	Agent    AgentConfig               `yaml:"agent"`
	Memory   MemoryConfig              `yaml:"memory"`
	SubAgent map[string]SubAgentConfig `yaml:"sub_agent"`
	Server   ServerConfig              `yaml:"server"`
	MCP      *mcp.Config               `yaml:"mcp"`
}

// ServerConfig holds the daemon's listen address and run-log directory.
type ServerConfig struct {
	Addr   string `yaml:"addr"`
	LogDir string `yaml:"log_dir"`
}

// AgentConfig mirrors SPEC_FULL.md §6's "agent.*" knobs.
type AgentConfig struct {
	// EffortLevel is one of "low", "medium", "high". Defaults to "medium".
	EffortLevel string `yaml:"effort_level"`

	// HighEffortMode and EnableReflection together gate the reflection
	// checkpoint hook (agent.applyReflectionCheckpoint): when both are
	// true a checkpoint system message is inserted every 5 steps.
	HighEffortMode   bool `yaml:"high_effort_mode"`
	EnableReflection bool `yaml:"enable_reflection"`
}

// MemoryConfig mirrors SPEC_FULL.md §6's "memory.*" knobs.
type MemoryConfig struct {
	Enabled bool `yaml:"enabled"`

	// CompactionThresholdTokens triggers the Context Manager's health
	// check (internal/compaction). Defaults to 100000.
	CompactionThresholdTokens int `yaml:"compaction_threshold_tokens"`

	// Strategy selects a compaction.Strategy by name: "simple",
	// "summarize", or "composite".
	Strategy string `yaml:"strategy"`

	// DBPath is the sqlite file backing the Persistent Memory Store
	// (internal/memstore). Empty means an in-memory (":memory:") store.
	DBPath string `yaml:"db_path"`
}

// SubAgentConfig overrides a sub-agent type's default max_steps
// (SPEC_FULL.md §6: "sub_agent.<type>.max_steps overrides").
type SubAgentConfig struct {
	MaxSteps int `yaml:"max_steps"`
}

const defaultCompactionThresholdTokens = 100000

// Effort parses AgentConfig.EffortLevel into an agent.EffortLevel,
// falling back to agent.EffortMedium for an empty or unrecognized value —
// the same fallback EffectiveMaxSteps already applies, kept here so
// callers get a valid EffortLevel even before it reaches the agent loop.
func (c AgentConfig) Effort() agent.EffortLevel {
	switch strings.ToLower(strings.TrimSpace(c.EffortLevel)) {
	case string(agent.EffortLow):
		return agent.EffortLow
	case string(agent.EffortHigh):
		return agent.EffortHigh
	case string(agent.EffortMedium), "":
		return agent.EffortMedium
	default:
		return agent.EffortMedium
	}
}

// Load reads, decodes and validates the configuration file at path,
// expanding ${VAR}/$VAR environment references first (teacher's
// os.ExpandEnv idiom) and rejecting unknown fields (decoder.KnownFields).
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	decoder := yaml.NewDecoder(strings.NewReader(expanded))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := decoder.Decode(new(struct{})); err != io.EOF {
		return nil, fmt.Errorf("failed to parse config: expected single document")
	}

	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Agent.EffortLevel == "" {
		cfg.Agent.EffortLevel = string(agent.EffortMedium)
	}
	if cfg.Memory.CompactionThresholdTokens == 0 {
		cfg.Memory.CompactionThresholdTokens = defaultCompactionThresholdTokens
	}
	if cfg.Memory.Strategy == "" {
		cfg.Memory.Strategy = "simple"
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8420"
	}
	if cfg.Server.LogDir == "" {
		cfg.Server.LogDir = "runs"
	}
}

// Default returns the configuration used when no file is supplied.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// ValidationError aggregates every configuration problem found, matching
// the teacher's ConfigValidationError shape (a single error listing every
// issue rather than failing on the first).
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	return "config validation failed:\n- " + strings.Join(e.Issues, "\n- ")
}

func validate(cfg *Config) error {
	var issues []string

	switch strings.ToLower(strings.TrimSpace(cfg.Agent.EffortLevel)) {
	case string(agent.EffortLow), string(agent.EffortMedium), string(agent.EffortHigh):
	default:
		issues = append(issues, fmt.Sprintf("agent.effort_level %q must be \"low\", \"medium\", or \"high\"", cfg.Agent.EffortLevel))
	}

	if cfg.Memory.CompactionThresholdTokens < 0 {
		issues = append(issues, "memory.compaction_threshold_tokens must be >= 0")
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Memory.Strategy)) {
	case "simple", "summarize", "composite":
	default:
		issues = append(issues, fmt.Sprintf("memory.strategy %q must be \"simple\", \"summarize\", or \"composite\"", cfg.Memory.Strategy))
	}

	for kind, sub := range cfg.SubAgent {
		if sub.MaxSteps < 0 {
			issues = append(issues, fmt.Sprintf("sub_agent.%s.max_steps must be >= 0", kind))
		}
	}

	if len(issues) > 0 {
		return &ValidationError{Issues: issues}
	}
	return nil
}
