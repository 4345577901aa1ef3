package agent

import (
	"github.com/danielpatrickdp/rlops-agent/internal/policy"
	"github.com/danielpatrickdp/rlops-agent/internal/state"
)

// #region session
// Session carries the one-step lag between observations: each new
// observation's reward is credited to the previous state and action.
// A Session is not safe for concurrent use; the agent it wraps is.
type Session struct {
	agent      *Agent
	prev       *state.StateRecord
	prevAction policy.Action
}

// NewSession starts a fresh lagged learning sequence.
func (a *Agent) NewSession() *Session {
	return &Session{agent: a}
}

// ObserveLine extracts a state from line and feeds it to Observe.
func (s *Session) ObserveLine(line string) Step {
	return s.Observe(s.agent.extractor.Extract(line))
}

// Observe scores cur, updates the previous pair if there is one, then picks
// the action for cur. The update runs before the action choice, so a state
// seen for the first time is treated as terminal.
func (s *Session) Observe(cur state.StateRecord) Step {
	a := s.agent
	r := a.rewards.Reward(cur)

	a.mu.Lock()
	defer a.mu.Unlock()

	step := Step{State: cur, Key: cur.Key(), Reward: r}
	if s.prev != nil {
		entry := a.applyUpdate(*s.prev, s.prevAction, r, &cur)
		step.Updated = true
		step.Entry = &entry
	}
	step.Action = a.selectAction(step.Key)

	s.prev = &cur
	s.prevAction = step.Action
	return step
}

// Reset forgets the pending state so the next observation starts a new sequence.
func (s *Session) Reset() {
	s.prev = nil
}

// #endregion session
