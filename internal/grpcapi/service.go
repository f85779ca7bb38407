// Package grpcapi exposes a read-mostly inspection service for a dashboard
// over gRPC: listing routes and jobs, fetching a job's latest result and
// stopping a job.
//
// The service is described by hand with well-known protobuf types, so it
// needs no generated code. Requests carrying a job id are
// wrapperspb.UInt64Value, documents are structpb.Struct built by the inspect
// package.
package grpcapi

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the fully-qualified name of the inspection service.
const ServiceName = "jobdash.v1.Inspector"

const (
	methodListRoutes = "ListRoutes"
	methodListJobs   = "ListJobs"
	methodGetJob     = "GetJob"
	methodStopJob    = "StopJob"
)

// InspectorServer is the server API of the inspection service.
type InspectorServer interface {
	ListRoutes(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	ListJobs(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	GetJob(context.Context, *wrapperspb.UInt64Value) (*structpb.Struct, error)
	StopJob(context.Context, *wrapperspb.UInt64Value) (*emptypb.Empty, error)
}

// ServiceDesc describes the inspection service for grpc.Server.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*InspectorServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(methodListRoutes, InspectorServer.ListRoutes),
		unary(methodListJobs, InspectorServer.ListJobs),
		unary(methodGetJob, InspectorServer.GetJob),
		unary(methodStopJob, InspectorServer.StopJob),
	},
	Metadata: "jobdash/v1/inspector.proto",
}

// RegisterInspectorServer registers srv with s.
func RegisterInspectorServer(s grpc.ServiceRegistrar, srv InspectorServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func fullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

// unary builds the method descriptor for call, decoding a new Req and running
// the server's interceptor chain the way generated code does.
func unary[Req any, PReq interface {
	*Req
	proto.Message
}, Resp proto.Message](
	name string,
	call func(InspectorServer, context.Context, PReq) (Resp, error),
) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(
			srv any,
			ctx context.Context,
			dec func(any) error,
			interceptor grpc.UnaryServerInterceptor,
		) (any, error) {
			in := PReq(new(Req))
			if err := dec(in); err != nil {
				return nil, err
			}

			if interceptor == nil {
				return call(srv.(InspectorServer), ctx, in)
			}

			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(name)}

			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(InspectorServer), ctx, req.(PReq))
			}

			return interceptor(ctx, in, info, handler)
		},
	}
}
