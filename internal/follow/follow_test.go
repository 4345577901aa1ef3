package follow

import (
	"context"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/danielpatrickdp/rlops-agent/internal/agent"
)

func newAgent() *agent.Agent {
	cfg := agent.DefaultConfig()
	cfg.Epsilon = 0
	return agent.New(cfg, agent.WithRand(rand.New(rand.NewSource(1))))
}

func appendLines(t *testing.T, path, content string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestDrainFromStart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	appendLines(t, path, "ERROR: Database connection timeout\n\nCRITICAL: Service failure\n")

	a := newAgent()
	f, err := New(path, a.NewSession(), true, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	n, err := f.Drain()
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 lines, got %d", n)
	}
	if a.HistoryLen() != 1 {
		t.Fatalf("expected 1 lagged update, got %d", a.HistoryLen())
	}
}

func TestDrainSkipsExistingContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	appendLines(t, path, "ERROR: old line\n")

	a := newAgent()
	f, _ := New(path, a.NewSession(), false, nil)
	if n, _ := f.Drain(); n != 0 {
		t.Fatalf("expected existing content skipped, got %d", n)
	}

	appendLines(t, path, "INFO: new line\n")
	if n, _ := f.Drain(); n != 1 {
		t.Fatalf("expected 1 new line, got %d", n)
	}
}

func TestDrainHoldsPartialLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	var lines []string
	f, _ := New(path, newAgent().NewSession(), true, func(line string, _ agent.Step) {
		lines = append(lines, line)
	})

	appendLines(t, path, "WARN: slow resp")
	if n, _ := f.Drain(); n != 0 {
		t.Fatalf("partial line should be held, got %d", n)
	}
	appendLines(t, path, "onse\n")
	if n, _ := f.Drain(); n != 1 {
		t.Fatalf("expected completed line, got %d", n)
	}
	if len(lines) != 1 || lines[0] != "WARN: slow response" {
		t.Fatalf("unexpected lines %q", lines)
	}
}

func TestDrainAfterTruncate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	appendLines(t, path, "ERROR: one\nERROR: two\n")
	f, _ := New(path, newAgent().NewSession(), true, nil)
	f.Drain()

	if err := os.WriteFile(path, []byte("INFO: fresh\n"), 0644); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	if n, _ := f.Drain(); n != 1 {
		t.Fatalf("expected rotated file to be reread, got %d", n)
	}
}

func TestDrainMissingFile(t *testing.T) {
	f, err := New(filepath.Join(t.TempDir(), "later.log"), newAgent().NewSession(), false, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if n, err := f.Drain(); n != 0 || err != nil {
		t.Fatalf("expected nothing, got %d, %v", n, err)
	}
}

func TestRunObservesAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	appendLines(t, path, "")

	var (
		mu    sync.Mutex
		steps []agent.Step
	)
	a := newAgent()
	f, _ := New(path, a.NewSession(), false, func(_ string, s agent.Step) {
		mu.Lock()
		steps = append(steps, s)
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.Run(ctx) }()

	// give the watcher a moment to register before writing
	time.Sleep(100 * time.Millisecond)
	appendLines(t, path, "ERROR: Database connection timeout\nINFO: System recovery\n")

	deadline := time.Now().Add(5 * time.Second)
	for {
		mu.Lock()
		n := len(steps)
		mu.Unlock()
		if n == 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for steps, got %d", n)
		}
		time.Sleep(20 * time.Millisecond)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
	if a.HistoryLen() != 1 {
		t.Fatalf("expected 1 update, got %d", a.HistoryLen())
	}
}
