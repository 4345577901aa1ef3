package replay

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/danielpatrickdp/rlops-agent/internal/agent"
	"github.com/danielpatrickdp/rlops-agent/internal/policy"
)

// #region fixture-types

// Fixture is the top-level JSON structure for a replay fixture.
type Fixture struct {
	Description     string                  `json:"description"`
	Config          FixtureConfig           `json:"config"`
	StartPolicy     *policy.Document        `json:"start_policy,omitempty"`
	Lines           []string                `json:"lines"`
	ExpectedResults []FixtureExpectedResult `json:"expected_results"`
}

// FixtureConfig mirrors agent.Config with JSON tags. Omitted fields take
// the replay defaults.
type FixtureConfig struct {
	LearningRate *float64 `json:"learning_rate,omitempty"`
	Epsilon      *float64 `json:"epsilon,omitempty"`
	Discount     *float64 `json:"discount,omitempty"`
	Seed         *int64   `json:"seed,omitempty"`
}

// FixtureExpectedResult captures the expected outcome per non-blank line.
// Action is optional; an empty value matches any action.
type FixtureExpectedResult struct {
	Severity   int    `json:"severity"`
	RewardSign string `json:"reward_sign"`
	Action     string `json:"action,omitempty"`
}

// #endregion fixture-types

// #region fixture-loader

// LoadFixture reads and parses a JSON fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	return &f, nil
}

// ToReplayConfig converts a FixtureConfig to a domain ReplayConfig.
func (fc *FixtureConfig) ToReplayConfig() ReplayConfig {
	cfg := DefaultReplayConfig()
	if fc.LearningRate != nil {
		cfg.Agent.LearningRate = *fc.LearningRate
	}
	if fc.Epsilon != nil {
		cfg.Agent.Epsilon = *fc.Epsilon
	}
	if fc.Discount != nil {
		cfg.Agent.Discount = *fc.Discount
	}
	if fc.Seed != nil {
		cfg.Agent.Seed = *fc.Seed
	}
	return cfg
}

// StartDocument returns the starting policy, empty when none is given.
func (f *Fixture) StartDocument() policy.Document {
	if f.StartPolicy == nil {
		return policy.Document{QTable: policy.NewQTable()}
	}
	return *f.StartPolicy
}

// Run replays the fixture and returns the results and the trained agent.
func (f *Fixture) Run() ([]ReplayResult, *agent.Agent) {
	return Replay(f.StartDocument(), f.Lines, f.Config.ToReplayConfig())
}

// #endregion fixture-loader

// #region fixture-export

// RecordFixture replays lines under config and captures every outcome as the
// expected result, producing a golden fixture for later regression runs.
func RecordFixture(description string, lines []string, config ReplayConfig) *Fixture {
	results, _ := Replay(policy.Document{}, lines, config)

	lr, eps, gamma, seed := config.Agent.LearningRate, config.Agent.Epsilon, config.Agent.Discount, config.Agent.Seed
	f := &Fixture{
		Description: description,
		Config: FixtureConfig{
			LearningRate: &lr,
			Epsilon:      &eps,
			Discount:     &gamma,
			Seed:         &seed,
		},
		Lines:           lines,
		ExpectedResults: make([]FixtureExpectedResult, len(results)),
	}
	for i, r := range results {
		f.ExpectedResults[i] = FixtureExpectedResult{
			Severity:   r.Severity,
			RewardSign: r.Sign,
			Action:     r.Action,
		}
	}
	return f
}

// SaveFixture writes f to path as indented JSON.
func SaveFixture(path string, f *Fixture) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal fixture: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("write fixture %s: %w", path, err)
	}
	return nil
}

// #endregion fixture-export

// #region compare

// Describe renders an expected result in the same form as Outcome.
func (e FixtureExpectedResult) Describe() string {
	action := e.Action
	if action == "" {
		action = "*"
	}
	return fmt.Sprintf("%d/%s/%s", e.Severity, e.RewardSign, action)
}

// Outcome renders a replay result as "severity/sign/action".
func (r ReplayResult) Outcome() string {
	return fmt.Sprintf("%d/%s/%s", r.Severity, r.Sign, r.Action)
}

// Matches reports whether r satisfies the expectation.
func (e FixtureExpectedResult) Matches(r ReplayResult) bool {
	if e.Severity != r.Severity || e.RewardSign != r.Sign {
		return false
	}
	return e.Action == "" || e.Action == r.Action
}

// #endregion compare

func fixedClock() time.Time {
	return time.Unix(0, 0).UTC()
}

func isBlank(line string) bool {
	return strings.TrimSpace(line) == ""
}
