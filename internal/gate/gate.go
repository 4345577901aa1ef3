package gate

import (
	"fmt"
	"math"

	"github.com/danielpatrickdp/rlops-agent/internal/policy"
)

// #region gate
// Gate decides whether a trained policy may be committed as a new snapshot.
type Gate struct {
	config GateConfig
}

// NewGate creates a gate with the given configuration.
func NewGate(config GateConfig) *Gate {
	return &Gate{config: config}
}

// Evaluate compares the proposed policy against old, the policy before the
// run that produced it. Hard vetoes are checked first; a clean policy is
// committed with a logged soft score. States absent from old count as
// all-zero rows.
func (g *Gate) Evaluate(old, proposed policy.Document) GateDecision {
	var (
		vetoes   []VetoSignal
		maxDelta float64
		maxAbs   float64
		changed  int
	)

	for _, key := range proposed.QTable.Keys() {
		row, _ := proposed.QTable.Lookup(key)
		var prev policy.Row
		if oldRow, ok := old.QTable.Lookup(key); ok {
			prev = *oldRow
		}

		rowChanged := false
		for _, act := range policy.Actions {
			q := row[act]
			if math.IsNaN(q) || math.IsInf(q, 0) {
				vetoes = append(vetoes, VetoSignal{
					Type:   VetoNonFinite,
					Reason: fmt.Sprintf("Q(%s, %s) is %v", key, act, q),
				})
				continue
			}
			maxAbs = math.Max(maxAbs, math.Abs(q))
			d := math.Abs(q - prev[act])
			if d > 0 {
				rowChanged = true
			}
			maxDelta = math.Max(maxDelta, d)
		}
		if rowChanged {
			changed++
		}
	}

	if maxAbs > g.config.MaxAbsQ {
		vetoes = append(vetoes, VetoSignal{
			Type:   VetoMagnitude,
			Reason: fmt.Sprintf("max |Q| %.4f exceeds cap %.4f", maxAbs, g.config.MaxAbsQ),
		})
	}
	if maxDelta > g.config.MaxDeltaQ {
		vetoes = append(vetoes, VetoSignal{
			Type:   VetoDeltaCap,
			Reason: fmt.Sprintf("max |ΔQ| %.4f exceeds cap %.4f", maxDelta, g.config.MaxDeltaQ),
		})
	}

	if len(vetoes) > 0 {
		return GateDecision{
			Action:        ActionReject,
			Reason:        fmt.Sprintf("hard veto: %s", vetoes[0].Reason),
			Vetoed:        true,
			VetoSignals:   vetoes,
			MaxDeltaQ:     maxDelta,
			ChangedStates: changed,
		}
	}

	score := softScore(maxDelta, g.config.MaxDeltaQ, changed, len(proposed.QTable))
	return GateDecision{
		Action:        ActionCommit,
		Reason:        fmt.Sprintf("passed gate: soft_score=%.4f", score),
		MaxDeltaQ:     maxDelta,
		ChangedStates: changed,
		SoftScore:     score,
	}
}

// #endregion gate

// #region helpers
// softScore weighs delta headroom (0.6) against how few states moved (0.4).
// It is logged only and never blocks a commit.
func softScore(maxDelta, capDelta float64, changed, total int) float64 {
	var score float64
	if capDelta > 0 {
		score += 0.6 * (1 - math.Min(maxDelta/capDelta, 1))
	}
	if total == 0 {
		score += 0.4
	} else {
		score += 0.4 * (1 - float64(changed)/float64(total))
	}
	return score
}

// #endregion helpers
