// Package ipc implements the message relay: a gRPC service over the platform
// IPC transport that accepts commands and streams state events to local clients.
package ipc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// The relay is described by hand in the shape protoc-gen-go-grpc emits,
// using only well-known message types:
//
//	service Relay {
//	  rpc Command(google.protobuf.StringValue) returns (google.protobuf.Empty);
//	  rpc Configure(google.protobuf.StringValue) returns (google.protobuf.Empty);
//	  rpc Status(google.protobuf.Empty) returns (google.protobuf.StringValue);
//	  rpc Subscribe(google.protobuf.Empty) returns (stream google.protobuf.Struct);
//	}
const (
	Relay_Command_FullMethodName   = "/securetunnel.v1.Relay/Command"
	Relay_Configure_FullMethodName = "/securetunnel.v1.Relay/Configure"
	Relay_Status_FullMethodName    = "/securetunnel.v1.Relay/Status"
	Relay_Subscribe_FullMethodName = "/securetunnel.v1.Relay/Subscribe"
)

// RelayServer is the server API for the Relay service.
type RelayServer interface {
	Command(context.Context, *wrapperspb.StringValue) (*emptypb.Empty, error)
	Configure(context.Context, *wrapperspb.StringValue) (*emptypb.Empty, error)
	Status(context.Context, *emptypb.Empty) (*wrapperspb.StringValue, error)
	Subscribe(*emptypb.Empty, Relay_SubscribeServer) error
}

// Relay_SubscribeServer is the server side of the Subscribe stream.
type Relay_SubscribeServer = grpc.ServerStreamingServer[structpb.Struct]

// Relay_SubscribeClient is the client side of the Subscribe stream.
type Relay_SubscribeClient = grpc.ServerStreamingClient[structpb.Struct]

// RegisterRelayServer registers srv on s.
func RegisterRelayServer(s grpc.ServiceRegistrar, srv RelayServer) {
	s.RegisterService(&Relay_ServiceDesc, srv)
}

func _Relay_Command_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RelayServer).Command(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: Relay_Command_FullMethodName,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(RelayServer).Command(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

func _Relay_Configure_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RelayServer).Configure(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: Relay_Configure_FullMethodName,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(RelayServer).Configure(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

func _Relay_Status_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RelayServer).Status(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: Relay_Status_FullMethodName,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(RelayServer).Status(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func _Relay_Subscribe_Handler(srv any, stream grpc.ServerStream) error {
	m := new(emptypb.Empty)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(RelayServer).Subscribe(m, &grpc.GenericServerStream[emptypb.Empty, structpb.Struct]{ServerStream: stream})
}

// Relay_ServiceDesc is the grpc.ServiceDesc for the Relay service.
var Relay_ServiceDesc = grpc.ServiceDesc{
	ServiceName: "securetunnel.v1.Relay",
	HandlerType: (*RelayServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Command", Handler: _Relay_Command_Handler},
		{MethodName: "Configure", Handler: _Relay_Configure_Handler},
		{MethodName: "Status", Handler: _Relay_Status_Handler},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Subscribe",
			Handler:       _Relay_Subscribe_Handler,
			ServerStreams: true,
		},
	},
	Metadata: "securetunnel/v1/relay.proto",
}

// RelayClient is the client API for the Relay service.
type RelayClient interface {
	Command(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*emptypb.Empty, error)
	Configure(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*emptypb.Empty, error)
	Status(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*wrapperspb.StringValue, error)
	Subscribe(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (Relay_SubscribeClient, error)
}

type relayClient struct {
	cc grpc.ClientConnInterface
}

// NewRelayClient creates a Relay client on cc.
func NewRelayClient(cc grpc.ClientConnInterface) RelayClient {
	return &relayClient{cc}
}

func (c *relayClient) Command(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	out := new(emptypb.Empty)
	if err := c.cc.Invoke(ctx, Relay_Command_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *relayClient) Configure(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	out := new(emptypb.Empty)
	if err := c.cc.Invoke(ctx, Relay_Configure_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *relayClient) Status(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*wrapperspb.StringValue, error) {
	out := new(wrapperspb.StringValue)
	if err := c.cc.Invoke(ctx, Relay_Status_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *relayClient) Subscribe(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (Relay_SubscribeClient, error) {
	stream, err := c.cc.NewStream(ctx, &Relay_ServiceDesc.Streams[0], Relay_Subscribe_FullMethodName, opts...)
	if err != nil {
		return nil, err
	}
	x := &grpc.GenericClientStream[emptypb.Empty, structpb.Struct]{ClientStream: stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}
