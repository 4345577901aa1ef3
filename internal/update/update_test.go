package update

import (
	"math"
	"testing"
)

func TestUpdateTerminalMovesTowardReward(t *testing.T) {
	config := DefaultUpdateConfig()
	for _, tc := range []struct{ old, reward float64 }{
		{0, 1.1},
		{0, -2.85},
		{5, -1},
		{-3, 2},
	} {
		result := Update(UpdateContext{CurrentQ: tc.old, Reward: tc.reward}, config)
		if math.Abs(result.NewQ-tc.reward) >= math.Abs(tc.old-tc.reward) {
			t.Errorf("old=%v reward=%v: new %v did not move toward reward", tc.old, tc.reward, result.NewQ)
		}
		if !result.Metrics.Terminal {
			t.Errorf("expected terminal update")
		}
		if result.Decision.Action != "commit" {
			t.Errorf("expected commit, got %s", result.Decision.Action)
		}
	}
}

func TestUpdateTerminalValue(t *testing.T) {
	result := Update(UpdateContext{CurrentQ: 0, Reward: -2.85}, DefaultUpdateConfig())
	if math.Abs(result.NewQ-(-0.285)) > 1e-12 {
		t.Fatalf("expected -0.285, got %v", result.NewQ)
	}
}

func TestUpdateBootstrapped(t *testing.T) {
	next := 2.0
	result := Update(UpdateContext{CurrentQ: 1, Reward: 0.5, NextMax: &next}, DefaultUpdateConfig())
	// 1 + 0.1 * (0.5 + 0.9*2 - 1) = 1.13
	if math.Abs(result.NewQ-1.13) > 1e-12 {
		t.Fatalf("expected 1.13, got %v", result.NewQ)
	}
	if result.Metrics.Terminal {
		t.Fatal("expected non-terminal update")
	}
	if math.Abs(result.Metrics.Target-2.3) > 1e-12 {
		t.Fatalf("expected target 2.3, got %v", result.Metrics.Target)
	}
}

func TestUpdateNoOp(t *testing.T) {
	result := Update(UpdateContext{CurrentQ: 0.7, Reward: 0.7}, DefaultUpdateConfig())
	if result.Decision.Action != "no_op" {
		t.Fatalf("expected no_op, got %s", result.Decision.Action)
	}
	if result.NewQ != 0.7 {
		t.Fatalf("expected unchanged value, got %v", result.NewQ)
	}
}

func TestUpdateDeterministic(t *testing.T) {
	next := -0.4
	ctx := UpdateContext{CurrentQ: 0.2, Reward: -1, NextMax: &next}
	r1 := Update(ctx, DefaultUpdateConfig())
	r2 := Update(ctx, DefaultUpdateConfig())
	if r1 != r2 {
		t.Fatalf("non-deterministic: %+v vs %+v", r1, r2)
	}
}
