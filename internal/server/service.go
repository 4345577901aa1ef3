package server

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// Full method names of the AgentService.
const (
	ServiceName = "rlops.v1.AgentService"

	MethodSelectAction = "/" + ServiceName + "/SelectAction"
	MethodObserve      = "/" + ServiceName + "/Observe"
	MethodDrift        = "/" + ServiceName + "/Drift"
	MethodSave         = "/" + ServiceName + "/Save"
)

// #region service-interface
// AgentServiceServer is the server API for the AgentService. Requests and
// responses are google.protobuf.Struct so no generated stubs are needed.
type AgentServiceServer interface {
	SelectAction(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Observe(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Drift(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	Save(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

// RegisterAgentServiceServer registers srv on s.
func RegisterAgentServiceServer(s grpc.ServiceRegistrar, srv AgentServiceServer) {
	s.RegisterService(&AgentServiceDesc, srv)
}

// #endregion service-interface

// #region service-desc
// AgentServiceDesc describes the AgentService for grpc.Server.
var AgentServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AgentServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "SelectAction", Handler: structHandler(MethodSelectAction, AgentServiceServer.SelectAction)},
		{MethodName: "Observe", Handler: structHandler(MethodObserve, AgentServiceServer.Observe)},
		{MethodName: "Drift", Handler: emptyHandler(MethodDrift, AgentServiceServer.Drift)},
		{MethodName: "Save", Handler: emptyHandler(MethodSave, AgentServiceServer.Save)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "rlops/v1/agent.proto",
}

func structHandler(fullMethod string, call func(AgentServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(AgentServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(AgentServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func emptyHandler(fullMethod string, call func(AgentServiceServer, context.Context, *emptypb.Empty) (*structpb.Struct, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(emptypb.Empty)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(AgentServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(AgentServiceServer), ctx, req.(*emptypb.Empty))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// #endregion service-desc
