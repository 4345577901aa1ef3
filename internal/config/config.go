package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/danielpatrickdp/rlops-agent/internal/agent"
	"github.com/danielpatrickdp/rlops-agent/internal/eval"
	"github.com/danielpatrickdp/rlops-agent/internal/gate"
	"github.com/danielpatrickdp/rlops-agent/internal/reward"
	"github.com/danielpatrickdp/rlops-agent/internal/state"
	"github.com/danielpatrickdp/rlops-agent/internal/telemetry"
)

// #region types
// Config is the full runtime configuration.
type Config struct {
	Agent     AgentConfig      `yaml:"agent"`
	Reward    RewardConfig     `yaml:"reward"`
	Paths     PathsConfig      `yaml:"paths"`
	Server    ServerConfig     `yaml:"server"`
	Gate      GateConfig       `yaml:"gate"`
	Eval      EvalConfig       `yaml:"eval"`
	Telemetry telemetry.Config `yaml:"telemetry"`
}

// AgentConfig holds the learning hyperparameters.
type AgentConfig struct {
	LearningRate float64 `yaml:"learning_rate"`
	Epsilon      float64 `yaml:"epsilon"`
	Discount     float64 `yaml:"discount"`
	EpsilonDecay float64 `yaml:"epsilon_decay"`
	EpsilonMin   float64 `yaml:"epsilon_min"`
	Seed         int64   `yaml:"seed"` // 0 = seed from clock
	DriftWindow  int     `yaml:"drift_window"`
}

// RewardConfig holds the reward weights.
type RewardConfig struct {
	InfoWeight     float64 `yaml:"info_weight"`
	WarningWeight  float64 `yaml:"warning_weight"`
	CriticalWeight float64 `yaml:"critical_weight"`
	ErrorPenalty   float64 `yaml:"error_penalty"`
	LoadPenalty    float64 `yaml:"load_penalty"`
	RecoveryBonus  float64 `yaml:"recovery_bonus"`
}

// PathsConfig locates the files the agent reads and writes.
type PathsConfig struct {
	LogFile    string `yaml:"log_file"`
	PolicyFile string `yaml:"policy_file"`
	ReportCSV  string `yaml:"report_csv"`
	SnapshotDB string `yaml:"snapshot_db"` // empty disables snapshots and provenance
}

// ServerConfig configures the gRPC and metrics listeners.
type ServerConfig struct {
	GRPCAddr    string  `yaml:"grpc_addr"`
	MetricsAddr string  `yaml:"metrics_addr"`
	RateLimit   float64 `yaml:"rate_limit"` // requests per second
	Burst       int     `yaml:"burst"`
}

// GateConfig bounds what a snapshot commit may change.
type GateConfig struct {
	MaxDeltaQ float64 `yaml:"max_delta_q"`
	MaxAbsQ   float64 `yaml:"max_abs_q"`
}

// EvalConfig holds the drift stability and trend thresholds. The drift
// window lives in agent.drift_window.
type EvalConfig struct {
	StableMax        float64 `yaml:"stable_max"`
	ModerateMax      float64 `yaml:"moderate_max"`
	VolatileStdDev   float64 `yaml:"volatile_std_dev"`
	ImprovementRatio float64 `yaml:"improvement_ratio"`
}

// #endregion types

// #region defaults
// Default returns the canonical configuration.
func Default() *Config {
	a := agent.DefaultConfig()
	r := reward.DefaultRewardConfig()
	g := gate.DefaultGateConfig()
	e := eval.DefaultEvalConfig()
	return &Config{
		Agent: AgentConfig{
			LearningRate: a.LearningRate,
			Epsilon:      a.Epsilon,
			Discount:     a.Discount,
			EpsilonDecay: a.EpsilonDecay,
			EpsilonMin:   a.EpsilonMin,
			DriftWindow:  e.Window,
		},
		Reward: RewardConfig{
			InfoWeight:     r.SeverityWeights[state.SeverityInfo],
			WarningWeight:  r.SeverityWeights[state.SeverityWarning],
			CriticalWeight: r.SeverityWeights[state.SeverityCritical],
			ErrorPenalty:   r.ErrorPenalty,
			LoadPenalty:    r.LoadPenalty,
			RecoveryBonus:  r.RecoveryBonus,
		},
		Paths: PathsConfig{
			LogFile:    "log_sample.txt",
			PolicyFile: "current_policy.json",
			ReportCSV:  "policy_report.csv",
		},
		Server: ServerConfig{
			GRPCAddr:    "localhost:50061",
			MetricsAddr: ":9102",
			RateLimit:   50,
			Burst:       100,
		},
		Gate: GateConfig{
			MaxDeltaQ: g.MaxDeltaQ,
			MaxAbsQ:   g.MaxAbsQ,
		},
		Eval: EvalConfig{
			StableMax:        e.StableMax,
			ModerateMax:      e.ModerateMax,
			VolatileStdDev:   e.VolatileStdDev,
			ImprovementRatio: e.ImprovementRatio,
		},
		Telemetry: telemetry.DefaultConfig(),
	}
}

// #endregion defaults

// #region load
// Load reads the YAML file at path over the defaults, applies RLOPS_*
// environment overrides and validates the result. An empty path or a
// missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			// YAML overwrites only specified fields
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		case os.IsNotExist(err):
		default:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// #endregion load

// #region env
func applyEnv(c *Config) error {
	c.Paths.LogFile = getenv("RLOPS_LOG_FILE", c.Paths.LogFile)
	c.Paths.PolicyFile = getenv("RLOPS_POLICY_FILE", c.Paths.PolicyFile)
	c.Paths.ReportCSV = getenv("RLOPS_REPORT_CSV", c.Paths.ReportCSV)
	c.Paths.SnapshotDB = getenv("RLOPS_SNAPSHOT_DB", c.Paths.SnapshotDB)
	c.Server.GRPCAddr = getenv("RLOPS_GRPC_ADDR", c.Server.GRPCAddr)
	c.Server.MetricsAddr = getenv("RLOPS_METRICS_ADDR", c.Server.MetricsAddr)
	c.Telemetry.Endpoint = getenv("RLOPS_OTEL_ENDPOINT", c.Telemetry.Endpoint)

	var err error
	if c.Agent.LearningRate, err = envFloat("RLOPS_LEARNING_RATE", c.Agent.LearningRate); err != nil {
		return err
	}
	if c.Agent.Epsilon, err = envFloat("RLOPS_EPSILON", c.Agent.Epsilon); err != nil {
		return err
	}
	if c.Agent.Seed, err = envInt64("RLOPS_SEED", c.Agent.Seed); err != nil {
		return err
	}
	if c.Telemetry.Enabled, err = envBool("RLOPS_OTEL_ENABLED", c.Telemetry.Enabled); err != nil {
		return err
	}
	return nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envFloat(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def, fmt.Errorf("%s: invalid float %q", key, v)
	}
	return f, nil
}

func envInt64(key string, def int64) (int64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def, fmt.Errorf("%s: invalid int %q", key, v)
	}
	return n, nil
}

func envBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def, fmt.Errorf("%s: invalid bool %q", key, v)
	}
	return b, nil
}

// #endregion env

// #region validate
// Validate checks ranges and required fields.
func (c *Config) Validate() error {
	a := c.Agent
	if a.LearningRate <= 0 || a.LearningRate > 1 {
		return fmt.Errorf("agent.learning_rate must be in (0, 1]")
	}
	if a.Epsilon < 0 || a.Epsilon > 1 {
		return fmt.Errorf("agent.epsilon must be between 0 and 1")
	}
	if a.Discount < 0 || a.Discount > 1 {
		return fmt.Errorf("agent.discount must be between 0 and 1")
	}
	if a.EpsilonDecay <= 0 || a.EpsilonDecay > 1 {
		return fmt.Errorf("agent.epsilon_decay must be in (0, 1]")
	}
	if a.EpsilonMin < 0 || a.EpsilonMin > 1 {
		return fmt.Errorf("agent.epsilon_min must be between 0 and 1")
	}
	if a.DriftWindow < 1 {
		return fmt.Errorf("agent.drift_window must be >= 1")
	}
	if c.Paths.PolicyFile == "" {
		return fmt.Errorf("paths.policy_file is required")
	}
	if c.Server.RateLimit <= 0 {
		return fmt.Errorf("server.rate_limit must be > 0")
	}
	if c.Server.Burst < 1 {
		return fmt.Errorf("server.burst must be >= 1")
	}
	if c.Gate.MaxDeltaQ <= 0 {
		return fmt.Errorf("gate.max_delta_q must be > 0")
	}
	if c.Gate.MaxAbsQ <= 0 {
		return fmt.Errorf("gate.max_abs_q must be > 0")
	}
	if c.Eval.StableMax <= 0 {
		return fmt.Errorf("eval.stable_max must be > 0")
	}
	if c.Eval.ModerateMax <= c.Eval.StableMax {
		return fmt.Errorf("eval.moderate_max must be greater than eval.stable_max")
	}
	if c.Eval.VolatileStdDev <= 0 {
		return fmt.Errorf("eval.volatile_std_dev must be > 0")
	}
	if c.Eval.ImprovementRatio <= 0 {
		return fmt.Errorf("eval.improvement_ratio must be > 0")
	}
	if c.Telemetry.SamplingRate < 0 || c.Telemetry.SamplingRate > 1 {
		return fmt.Errorf("telemetry.sampling_rate must be between 0 and 1")
	}
	return nil
}

// #endregion validate

// #region conversions
// AgentConfig converts to the agent's hyperparameters.
func (c *Config) AgentConfig() agent.Config {
	return agent.Config{
		LearningRate: c.Agent.LearningRate,
		Epsilon:      c.Agent.Epsilon,
		Discount:     c.Agent.Discount,
		EpsilonDecay: c.Agent.EpsilonDecay,
		EpsilonMin:   c.Agent.EpsilonMin,
		Seed:         c.Agent.Seed,
	}
}

// RewardConfig converts to the reward model weights.
func (c *Config) RewardConfig() reward.RewardConfig {
	return reward.RewardConfig{
		SeverityWeights: map[int]float64{
			state.SeverityInfo:     c.Reward.InfoWeight,
			state.SeverityWarning:  c.Reward.WarningWeight,
			state.SeverityCritical: c.Reward.CriticalWeight,
		},
		ErrorPenalty:  c.Reward.ErrorPenalty,
		LoadPenalty:   c.Reward.LoadPenalty,
		RecoveryBonus: c.Reward.RecoveryBonus,
	}
}

// GateConfig converts to the snapshot gate thresholds.
func (c *Config) GateConfig() gate.GateConfig {
	return gate.GateConfig{
		MaxDeltaQ: c.Gate.MaxDeltaQ,
		MaxAbsQ:   c.Gate.MaxAbsQ,
	}
}

// EvalConfig converts to the drift and trend thresholds.
func (c *Config) EvalConfig() eval.EvalConfig {
	return eval.EvalConfig{
		Window:           c.Agent.DriftWindow,
		StableMax:        c.Eval.StableMax,
		ModerateMax:      c.Eval.ModerateMax,
		VolatileStdDev:   c.Eval.VolatileStdDev,
		ImprovementRatio: c.Eval.ImprovementRatio,
	}
}

// #endregion conversions
