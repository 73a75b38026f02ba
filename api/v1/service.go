// Package apiv1 defines the ObfuscationService gRPC API.
//
// Messages are google.protobuf.Struct values so the service needs no
// generated code. Counts and bins travel as decimal strings because Struct
// numbers are float64 and would lose precision above 2^53.
package apiv1

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const ServiceName = "silhouette.obfuscator.v1.ObfuscationService"

const (
	ObfuscationService_CreateSession_FullMethodName  = "/" + ServiceName + "/CreateSession"
	ObfuscationService_Obfuscate_FullMethodName      = "/" + ServiceName + "/Obfuscate"
	ObfuscationService_ObfuscateBatch_FullMethodName = "/" + ServiceName + "/ObfuscateBatch"
	ObfuscationService_DropSession_FullMethodName    = "/" + ServiceName + "/DropSession"
	ObfuscationService_GetGuarantee_FullMethodName   = "/" + ServiceName + "/GetGuarantee"
)

// ObfuscationServiceServer is the server API for ObfuscationService.
type ObfuscationServiceServer interface {
	// CreateSession starts a new cache bound to the given config.
	CreateSession(context.Context, *structpb.Struct) (*structpb.Struct, error)
	// Obfuscate releases one count within a session.
	Obfuscate(context.Context, *structpb.Struct) (*structpb.Struct, error)
	// ObfuscateBatch releases several counts within a session.
	ObfuscateBatch(context.Context, *structpb.Struct) (*structpb.Struct, error)
	// DropSession forgets a session and its cached answers.
	DropSession(context.Context, *structpb.Struct) (*structpb.Struct, error)
	// GetGuarantee describes the privacy guarantee of a session.
	GetGuarantee(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// UnimplementedObfuscationServiceServer can be embedded to have forward
// compatible implementations.
type UnimplementedObfuscationServiceServer struct{}

func (UnimplementedObfuscationServiceServer) CreateSession(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Errorf(codes.Unimplemented, "method CreateSession not implemented")
}

func (UnimplementedObfuscationServiceServer) Obfuscate(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Errorf(codes.Unimplemented, "method Obfuscate not implemented")
}

func (UnimplementedObfuscationServiceServer) ObfuscateBatch(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Errorf(codes.Unimplemented, "method ObfuscateBatch not implemented")
}

func (UnimplementedObfuscationServiceServer) DropSession(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Errorf(codes.Unimplemented, "method DropSession not implemented")
}

func (UnimplementedObfuscationServiceServer) GetGuarantee(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Errorf(codes.Unimplemented, "method GetGuarantee not implemented")
}

// RegisterObfuscationServiceServer registers srv with a gRPC server.
func RegisterObfuscationServiceServer(s grpc.ServiceRegistrar, srv ObfuscationServiceServer) {
	s.RegisterService(&ObfuscationService_ServiceDesc, srv)
}

type serverMethod func(ObfuscationServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(fullMethod string, call serverMethod) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(ObfuscationServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: fullMethod,
		}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(ObfuscationServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// ObfuscationService_ServiceDesc is the grpc.ServiceDesc for ObfuscationService.
var ObfuscationService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ObfuscationServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "CreateSession",
			Handler:    unaryHandler(ObfuscationService_CreateSession_FullMethodName, ObfuscationServiceServer.CreateSession),
		},
		{
			MethodName: "Obfuscate",
			Handler:    unaryHandler(ObfuscationService_Obfuscate_FullMethodName, ObfuscationServiceServer.Obfuscate),
		},
		{
			MethodName: "ObfuscateBatch",
			Handler:    unaryHandler(ObfuscationService_ObfuscateBatch_FullMethodName, ObfuscationServiceServer.ObfuscateBatch),
		},
		{
			MethodName: "DropSession",
			Handler:    unaryHandler(ObfuscationService_DropSession_FullMethodName, ObfuscationServiceServer.DropSession),
		},
		{
			MethodName: "GetGuarantee",
			Handler:    unaryHandler(ObfuscationService_GetGuarantee_FullMethodName, ObfuscationServiceServer.GetGuarantee),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "silhouette/obfuscator/v1/obfuscator.proto",
}

// ObfuscationServiceClient is the client API for ObfuscationService.
type ObfuscationServiceClient interface {
	CreateSession(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	Obfuscate(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	ObfuscateBatch(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	DropSession(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	GetGuarantee(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
}

type obfuscationServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewObfuscationServiceClient wraps a connection.
func NewObfuscationServiceClient(cc grpc.ClientConnInterface) ObfuscationServiceClient {
	return &obfuscationServiceClient{cc}
}

func (c *obfuscationServiceClient) invoke(ctx context.Context, method string, in *structpb.Struct, opts []grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *obfuscationServiceClient) CreateSession(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, ObfuscationService_CreateSession_FullMethodName, in, opts)
}

func (c *obfuscationServiceClient) Obfuscate(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, ObfuscationService_Obfuscate_FullMethodName, in, opts)
}

func (c *obfuscationServiceClient) ObfuscateBatch(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, ObfuscationService_ObfuscateBatch_FullMethodName, in, opts)
}

func (c *obfuscationServiceClient) DropSession(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, ObfuscationService_DropSession_FullMethodName, in, opts)
}

func (c *obfuscationServiceClient) GetGuarantee(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, ObfuscationService_GetGuarantee_FullMethodName, in, opts)
}
