package update

import "fmt"

// #region update-function
// Update is a pure function computing the next action value with the
// one-step tabular Q-learning rule:
//
//	Q <- Q + alpha * (r + gamma * max Q(s',.) - Q)   when NextMax is set
//	Q <- Q + alpha * (r - Q)                          otherwise (terminal)
func Update(ctx UpdateContext, config UpdateConfig) UpdateResult {
	target := ctx.Reward
	terminal := ctx.NextMax == nil
	if !terminal {
		target += config.Discount * *ctx.NextMax
	}

	tdError := target - ctx.CurrentQ
	delta := config.LearningRate * tdError
	newQ := ctx.CurrentQ + delta

	decision := Decision{Action: "no_op", Reason: "value unchanged"}
	if newQ != ctx.CurrentQ {
		decision = Decision{
			Action: "commit",
			Reason: fmt.Sprintf("td error %.6f, delta %.6f", tdError, delta),
		}
	}

	return UpdateResult{
		NewQ:     newQ,
		Decision: decision,
		Metrics: Metrics{
			Target:   target,
			TDError:  tdError,
			Delta:    delta,
			Terminal: terminal,
		},
	}
}

// #endregion update-function
