package server

import (
	"context"
	"fmt"
	"log"
	"net"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/danielpatrickdp/rlops-agent/internal/agent"
	"github.com/danielpatrickdp/rlops-agent/internal/metrics"
	"github.com/danielpatrickdp/rlops-agent/internal/policy"
	"github.com/danielpatrickdp/rlops-agent/internal/state"
)

// #region server
// MaxSessions bounds the named Observe sessions kept in memory. The least
// recently used session is dropped first; its pending step is lost.
const MaxSessions = 1024

// Server exposes an agent over gRPC. The agent serialises its own state;
// the server only guards the session cache.
type Server struct {
	agent      *agent.Agent
	policyPath string
	metrics    *metrics.Metrics // may be nil

	mu       sync.Mutex
	sessions *lru.Cache[string, *agent.Session]
}

var _ AgentServiceServer = (*Server)(nil)

// New creates a server for a. Save writes to policyPath.
func New(a *agent.Agent, policyPath string, m *metrics.Metrics) *Server {
	// lru.New only fails for a non-positive size.
	sessions, _ := lru.New[string, *agent.Session](MaxSessions)
	return &Server{
		agent:      a,
		policyPath: policyPath,
		metrics:    m,
		sessions:   sessions,
	}
}

// NewGRPCServer builds a grpc.Server with the rate limit interceptor and
// registers s on it.
func NewGRPCServer(s *Server, limit rate.Limit, burst int) *grpc.Server {
	var onReject func()
	if s.metrics != nil {
		onReject = s.metrics.RateLimited.Inc
	}
	g := grpc.NewServer(grpc.UnaryInterceptor(RateLimitInterceptor(rate.NewLimiter(limit, burst), onReject)))
	RegisterAgentServiceServer(g, s)
	return g
}

// Serve listens on addr until ctx is cancelled.
func Serve(ctx context.Context, g *grpc.Server, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	go func() {
		<-ctx.Done()
		g.GracefulStop()
	}()
	log.Printf("grpc listening on %s", lis.Addr())
	if err := g.Serve(lis); err != nil {
		return fmt.Errorf("serve grpc: %w", err)
	}
	return nil
}

// #endregion server

// #region interceptor
// RateLimitInterceptor rejects calls with ResourceExhausted once l is out of
// tokens. onReject may be nil.
func RateLimitInterceptor(l *rate.Limiter, onReject func()) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if !l.Allow() {
			if onReject != nil {
				onReject()
			}
			return nil, status.Errorf(codes.ResourceExhausted, "rate limit exceeded for %s", info.FullMethod)
		}
		return handler(ctx, req)
	}
}

// #endregion interceptor

// #region handlers
// SelectAction picks an action for a log line or an explicit state.
func (s *Server) SelectAction(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	rec, err := s.stateFrom(req)
	if err != nil {
		return nil, err
	}
	act := s.agent.GetAction(rec)
	return structpb.NewStruct(map[string]any{
		"action":      act.String(),
		"state_key":   rec.Key().String(),
		"severity":    rec.Severity,
		"error_count": rec.ErrorCount,
		"system_load": rec.SystemLoad,
	})
}

// Observe feeds one log line into the named learning session. With
// reset set, the session drops its pending step first, so the line starts
// a new sequence.
func (s *Server) Observe(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.GetFields()
	line := fields["line"].GetStringValue()
	if line == "" {
		return nil, status.Error(codes.InvalidArgument, "line is required")
	}
	name := fields["session"].GetStringValue()

	s.mu.Lock()
	sess, ok := s.sessions.Get(name)
	if !ok {
		sess = s.agent.NewSession()
		s.sessions.Add(name, sess)
	}
	if fields["reset"].GetBoolValue() {
		sess.Reset()
	}
	step := sess.ObserveLine(line)
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.LogLines.Inc()
		s.metrics.SetPolicy(s.agent.QTableSize(), s.agent.GetPolicyDrift(), s.agent.Epsilon())
	}

	out := map[string]any{
		"state_key": step.Key.String(),
		"reward":    step.Reward,
		"action":    step.Action.String(),
		"updated":   step.Updated,
	}
	if step.Entry != nil {
		out["q_value"] = step.Entry.QValue
		out["updated_state"] = step.Entry.State.String()
		out["updated_action"] = step.Entry.Action.String()
	}
	return structpb.NewStruct(out)
}

// Drift reports the current drift metrics and table size.
func (s *Server) Drift(context.Context, *emptypb.Empty) (*structpb.Struct, error) {
	d := s.agent.GetPolicyDrift()
	return structpb.NewStruct(map[string]any{
		"drift_score":       d.DriftScore,
		"total_updates":     d.TotalUpdates,
		"recent_avg_reward": d.RecentAvgReward,
		"stability":         string(s.agent.Stability()),
		"q_table_size":      s.agent.QTableSize(),
		"epsilon":           s.agent.Epsilon(),
	})
}

// Save writes the policy file.
func (s *Server) Save(context.Context, *emptypb.Empty) (*structpb.Struct, error) {
	doc := s.agent.Document()
	if err := policy.Save(s.policyPath, doc); err != nil {
		return nil, status.Errorf(codes.Internal, "save policy: %v", err)
	}
	return structpb.NewStruct(map[string]any{
		"path":         s.policyPath,
		"q_table_size": len(doc.QTable),
		"history_len":  len(doc.PolicyHistory),
	})
}

// #endregion handlers

// #region helpers
func (s *Server) stateFrom(req *structpb.Struct) (state.StateRecord, error) {
	fields := req.GetFields()
	if line := fields["line"].GetStringValue(); line != "" {
		return s.agent.Extract(line), nil
	}

	sev, okSev := fields["severity"]
	if !okSev {
		return state.StateRecord{}, status.Error(codes.InvalidArgument, "line or severity is required")
	}
	rec := state.StateRecord{
		Severity:   int(sev.GetNumberValue()),
		ErrorCount: int(fields["error_count"].GetNumberValue()),
		SystemLoad: fields["system_load"].GetNumberValue(),
	}
	if rec.Severity < 0 || rec.ErrorCount < 0 {
		return state.StateRecord{}, status.Error(codes.InvalidArgument, "severity and error_count must be non-negative")
	}
	if rec.SystemLoad < 0 || rec.SystemLoad > 1 {
		return state.StateRecord{}, status.Error(codes.InvalidArgument, "system_load must be between 0 and 1")
	}
	return rec, nil
}

// #endregion helpers
