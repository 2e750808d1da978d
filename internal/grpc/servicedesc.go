package grpc

import (
	"context"

	"google.golang.org/grpc"
)

// ShardVMServer is the interface Server implements; it exists so
// serviceDesc can type-assert against it the way protoc-gen-go-grpc's
// generated descriptors do.
type ShardVMServer interface {
	Authenticate(context.Context, *AuthRequest) (*AuthResponse, error)
	Terminal(ShardVM_TerminalServer) error
	Spy(ShardVM_SpyServer) error
	Run(*RunRequest, ShardVM_RunServer) error
	MailEvents(*MailSubscribeRequest, ShardVM_MailEventsServer) error
}

type ShardVM_TerminalServer interface {
	Send(*TerminalServerMessage) error
	Recv() (*TerminalClientMessage, error)
	grpc.ServerStream
}

type terminalServerStream struct{ grpc.ServerStream }

func (x *terminalServerStream) Send(m *TerminalServerMessage) error { return x.SendMsg(m) }
func (x *terminalServerStream) Recv() (*TerminalClientMessage, error) {
	m := new(TerminalClientMessage)
	if err := x.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

type ShardVM_SpyServer interface {
	Send(*SpyServerMessage) error
	Recv() (*SpyClientMessage, error)
	grpc.ServerStream
}

type spyServerStream struct{ grpc.ServerStream }

func (x *spyServerStream) Send(m *SpyServerMessage) error { return x.SendMsg(m) }
func (x *spyServerStream) Recv() (*SpyClientMessage, error) {
	m := new(SpyClientMessage)
	if err := x.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

type ShardVM_RunServer interface {
	Send(*RunServerMessage) error
	grpc.ServerStream
}

type runServerStream struct{ grpc.ServerStream }

func (x *runServerStream) Send(m *RunServerMessage) error { return x.SendMsg(m) }

type ShardVM_MailEventsServer interface {
	Send(*MailEvent) error
	grpc.ServerStream
}

type mailEventsServerStream struct{ grpc.ServerStream }

func (x *mailEventsServerStream) Send(m *MailEvent) error { return x.SendMsg(m) }

func _ShardVM_Authenticate_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(AuthRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ShardVMServer).Authenticate(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/shardvm.ShardVM/Authenticate"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ShardVMServer).Authenticate(ctx, req.(*AuthRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _ShardVM_Terminal_Handler(srv any, stream grpc.ServerStream) error {
	return srv.(ShardVMServer).Terminal(&terminalServerStream{stream})
}

func _ShardVM_Spy_Handler(srv any, stream grpc.ServerStream) error {
	return srv.(ShardVMServer).Spy(&spyServerStream{stream})
}

func _ShardVM_Run_Handler(srv any, stream grpc.ServerStream) error {
	m := new(RunRequest)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(ShardVMServer).Run(m, &runServerStream{stream})
}

func _ShardVM_MailEvents_Handler(srv any, stream grpc.ServerStream) error {
	m := new(MailSubscribeRequest)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(ShardVMServer).MailEvents(m, &mailEventsServerStream{stream})
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: "shardvm.ShardVM",
	HandlerType: (*ShardVMServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Authenticate", Handler: _ShardVM_Authenticate_Handler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Terminal", Handler: _ShardVM_Terminal_Handler, ServerStreams: true, ClientStreams: true},
		{StreamName: "Spy", Handler: _ShardVM_Spy_Handler, ServerStreams: true, ClientStreams: true},
		{StreamName: "Run", Handler: _ShardVM_Run_Handler, ServerStreams: true},
		{StreamName: "MailEvents", Handler: _ShardVM_MailEvents_Handler, ServerStreams: true},
	},
	Metadata: "shardvm.proto",
}
