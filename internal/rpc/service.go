package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// #region service-desc
// ServiceName is the fully qualified gRPC service name.
const ServiceName = "mood.v1.MoodService"

// MoodServer is the server API. Every message is a google.protobuf.Struct
// whose fields follow the JSON shapes in wire.go.
type MoodServer interface {
	GetState(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ProcessTurn(context.Context, *structpb.Struct) (*structpb.Struct, error)
	History(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Decay(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DeleteUser(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// ServiceDesc describes MoodService for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*MoodServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetState", Handler: unary("GetState", MoodServer.GetState)},
		{MethodName: "ProcessTurn", Handler: unary("ProcessTurn", MoodServer.ProcessTurn)},
		{MethodName: "History", Handler: unary("History", MoodServer.History)},
		{MethodName: "Decay", Handler: unary("Decay", MoodServer.Decay)},
		{MethodName: "DeleteUser", Handler: unary("DeleteUser", MoodServer.DeleteUser)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "mood/v1/mood.proto",
}

// Register attaches srv to s.
func Register(s grpc.ServiceRegistrar, srv MoodServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func fullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

type unaryCall func(MoodServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unary(method string, call unaryCall) grpc.MethodHandler {
	full := fullMethod(method)
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(MoodServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: full}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return call(srv.(MoodServer), ctx, req.(*structpb.Struct))
		})
	}
}

// #endregion service-desc
