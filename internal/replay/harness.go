package replay

import (
	"math/rand"

	"github.com/danielpatrickdp/rlops-agent/internal/agent"
	"github.com/danielpatrickdp/rlops-agent/internal/policy"
	"github.com/danielpatrickdp/rlops-agent/internal/state"
)

// Reward signs.
const (
	SignNegative = "negative"
	SignZero     = "zero"
	SignPositive = "positive"
)

// #region types
// ReplayConfig bundles the agent hyperparameters for a replay run. Seed must
// be non-zero for a run to be reproducible.
type ReplayConfig struct {
	Agent agent.Config
}

// DefaultReplayConfig returns a greedy, seeded configuration so replays are
// deterministic.
func DefaultReplayConfig() ReplayConfig {
	cfg := agent.DefaultConfig()
	cfg.Epsilon = 0
	cfg.Seed = 1
	return ReplayConfig{Agent: cfg}
}

// ReplayResult captures the outcome of replaying one log line.
type ReplayResult struct {
	Index    int
	Line     string
	Key      state.StateKey
	Severity int
	Reward   float64
	Sign     string
	Action   string
	Updated  bool
	QValue   float64 // value written by the update this line triggered
}

// ReplaySummary provides aggregate stats from a replay run.
type ReplaySummary struct {
	TotalLines   int
	Updates      int
	Positive     int
	Negative     int
	ActionCounts map[string]int
	FinalPolicy  policy.Document
}

// #endregion types

// #region replay
// Replay feeds lines through a fresh seeded agent, starting from start, and
// returns one result per non-blank line. It operates entirely in memory.
func Replay(start policy.Document, lines []string, config ReplayConfig) ([]ReplayResult, *agent.Agent) {
	extractor := state.NewExtractorWithClock(fixedClock)
	a := agent.New(config.Agent,
		agent.WithRand(rand.New(rand.NewSource(config.Agent.Seed))),
		agent.WithExtractor(extractor),
		agent.WithClock(fixedClock),
	)
	a.Restore(start)

	session := a.NewSession()
	results := make([]ReplayResult, 0, len(lines))
	for i, line := range lines {
		if isBlank(line) {
			continue
		}
		step := session.ObserveLine(line)
		r := ReplayResult{
			Index:    i,
			Line:     line,
			Key:      step.Key,
			Severity: step.State.Severity,
			Reward:   step.Reward,
			Sign:     RewardSign(step.Reward),
			Action:   step.Action.String(),
			Updated:  step.Updated,
		}
		if step.Entry != nil {
			r.QValue = step.Entry.QValue
		}
		results = append(results, r)
	}
	return results, a
}

// Summarize computes aggregate stats from replay results.
func Summarize(results []ReplayResult, final policy.Document) ReplaySummary {
	s := ReplaySummary{
		TotalLines:   len(results),
		ActionCounts: make(map[string]int),
		FinalPolicy:  final,
	}
	for _, r := range results {
		if r.Updated {
			s.Updates++
		}
		switch r.Sign {
		case SignPositive:
			s.Positive++
		case SignNegative:
			s.Negative++
		}
		s.ActionCounts[r.Action]++
	}
	return s
}

// RewardSign classifies a reward as negative, zero or positive.
func RewardSign(r float64) string {
	switch {
	case r < 0:
		return SignNegative
	case r > 0:
		return SignPositive
	default:
		return SignZero
	}
}

// #endregion replay
