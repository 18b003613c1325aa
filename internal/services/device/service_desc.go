package device

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const serviceName = "planter.v1.ValveService"

// ValveServiceServer is the manual valve API. Requests and responses are
// google.protobuf.Struct messages so no generated code is needed.
type ValveServiceServer interface {
	StartWatering(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	StopWatering(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	ListValves(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
}

type unaryCall func(ValveServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(method string, call unaryCall) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		s := srv.(ValveServiceServer)
		if interceptor == nil {
			return call(s, ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(method)}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return call(s, ctx, req.(*structpb.Struct))
		})
	}
}

func fullMethod(method string) string {
	return "/" + serviceName + "/" + method
}

var ValveServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*ValveServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "StartWatering", Handler: unaryHandler("StartWatering", ValveServiceServer.StartWatering)},
		{MethodName: "StopWatering", Handler: unaryHandler("StopWatering", ValveServiceServer.StopWatering)},
		{MethodName: "ListValves", Handler: unaryHandler("ListValves", ValveServiceServer.ListValves)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "planter/v1/valve.proto",
}

func RegisterValveServiceServer(s grpc.ServiceRegistrar, srv ValveServiceServer) {
	s.RegisterService(&ValveServiceDesc, srv)
}
