package client

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/danielpatrickdp/rlops-agent/internal/policy"
	"github.com/danielpatrickdp/rlops-agent/internal/server"
	"github.com/danielpatrickdp/rlops-agent/internal/state"
)

// #region types
// ActionResult holds the response from a SelectAction call.
type ActionResult struct {
	Action   string
	StateKey string
}

// ObserveResult holds the response from an Observe call.
type ObserveResult struct {
	StateKey string
	Reward   float64
	Action   string
	Updated  bool
	QValue   float64 // zero unless Updated
}

// DriftResult holds the response from a Drift call.
type DriftResult struct {
	policy.DriftReport
	Stability  string
	QTableSize int
	Epsilon    float64
}

// SaveResult holds the response from a Save call.
type SaveResult struct {
	Path       string
	QTableSize int
	HistoryLen int
}

// #endregion types

// #region client-struct
// AgentClient calls a remote AgentService.
type AgentClient struct {
	conn *grpc.ClientConn // nil when constructed with NewWithConn
	cc   grpc.ClientConnInterface
}

// #endregion client-struct

// #region constructor
// New connects to the agent gRPC server at addr.
func New(addr string) (*AgentClient, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	return &AgentClient{conn: conn, cc: conn}, nil
}

// NewWithConn creates a client over an existing connection.
func NewWithConn(cc grpc.ClientConnInterface) *AgentClient {
	return &AgentClient{cc: cc}
}

// Close shuts down the gRPC connection if the client owns it.
func (c *AgentClient) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// #endregion constructor

// #region select-action
// SelectAction asks the agent for an action for a raw log line.
func (c *AgentClient) SelectAction(ctx context.Context, line string) (ActionResult, error) {
	return c.selectAction(ctx, map[string]any{"line": line})
}

// SelectActionForState asks the agent for an action for an explicit state.
func (c *AgentClient) SelectActionForState(ctx context.Context, s state.StateRecord) (ActionResult, error) {
	return c.selectAction(ctx, map[string]any{
		"severity":    s.Severity,
		"error_count": s.ErrorCount,
		"system_load": s.SystemLoad,
	})
}

func (c *AgentClient) selectAction(ctx context.Context, fields map[string]any) (ActionResult, error) {
	resp, err := c.call(ctx, server.MethodSelectAction, fields)
	if err != nil {
		return ActionResult{}, fmt.Errorf("select action rpc: %w", err)
	}
	f := resp.GetFields()
	return ActionResult{
		Action:   f["action"].GetStringValue(),
		StateKey: f["state_key"].GetStringValue(),
	}, nil
}

// #endregion select-action

// #region observe
// Observe streams one log line into the named learning session.
func (c *AgentClient) Observe(ctx context.Context, session, line string) (ObserveResult, error) {
	resp, err := c.call(ctx, server.MethodObserve, map[string]any{"session": session, "line": line})
	if err != nil {
		return ObserveResult{}, fmt.Errorf("observe rpc: %w", err)
	}
	f := resp.GetFields()
	return ObserveResult{
		StateKey: f["state_key"].GetStringValue(),
		Reward:   f["reward"].GetNumberValue(),
		Action:   f["action"].GetStringValue(),
		Updated:  f["updated"].GetBoolValue(),
		QValue:   f["q_value"].GetNumberValue(),
	}, nil
}

// #endregion observe

// #region drift
// Drift fetches the agent's drift report.
func (c *AgentClient) Drift(ctx context.Context) (DriftResult, error) {
	resp := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, server.MethodDrift, &emptypb.Empty{}, resp); err != nil {
		return DriftResult{}, fmt.Errorf("drift rpc: %w", err)
	}
	f := resp.GetFields()
	return DriftResult{
		DriftReport: policy.DriftReport{
			DriftScore:      f["drift_score"].GetNumberValue(),
			TotalUpdates:    int(f["total_updates"].GetNumberValue()),
			RecentAvgReward: f["recent_avg_reward"].GetNumberValue(),
		},
		Stability:  f["stability"].GetStringValue(),
		QTableSize: int(f["q_table_size"].GetNumberValue()),
		Epsilon:    f["epsilon"].GetNumberValue(),
	}, nil
}

// #endregion drift

// #region save
// Save asks the agent to write its policy file.
func (c *AgentClient) Save(ctx context.Context) (SaveResult, error) {
	resp := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, server.MethodSave, &emptypb.Empty{}, resp); err != nil {
		return SaveResult{}, fmt.Errorf("save rpc: %w", err)
	}
	f := resp.GetFields()
	return SaveResult{
		Path:       f["path"].GetStringValue(),
		QTableSize: int(f["q_table_size"].GetNumberValue()),
		HistoryLen: int(f["history_len"].GetNumberValue()),
	}, nil
}

// #endregion save

func (c *AgentClient) call(ctx context.Context, method string, fields map[string]any) (*structpb.Struct, error) {
	req, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}
