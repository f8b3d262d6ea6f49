package protocol

import (
	"context"

	"google.golang.org/grpc"
)

// The Scheduler service has a single bidirectional stream, Session, carrying
// Requests from the client and Responses from the daemon.

const (
	ServiceName       = "solo.Scheduler"
	SessionMethodName = "/solo.Scheduler/Session"
)

type SchedulerServer interface {
	Session(Scheduler_SessionServer) error
}

type Scheduler_SessionServer interface {
	Send(*Response) error
	Recv() (*Request, error)
	grpc.ServerStream
}

type schedulerSessionServer struct {
	grpc.ServerStream
}

func (x *schedulerSessionServer) Send(m *Response) error {
	return x.ServerStream.SendMsg(m)
}

func (x *schedulerSessionServer) Recv() (*Request, error) {
	m := new(Request)
	if err := x.ServerStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func _Scheduler_Session_Handler(srv interface{}, stream grpc.ServerStream) error {
	return srv.(SchedulerServer).Session(&schedulerSessionServer{stream})
}

var Scheduler_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SchedulerServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Session",
			Handler:       _Scheduler_Session_Handler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
}

func RegisterSchedulerServer(s grpc.ServiceRegistrar, srv SchedulerServer) {
	s.RegisterService(&Scheduler_ServiceDesc, srv)
}

type SchedulerClient interface {
	Session(ctx context.Context, opts ...grpc.CallOption) (Scheduler_SessionClient, error)
}

type Scheduler_SessionClient interface {
	Send(*Request) error
	Recv() (*Response, error)
	grpc.ClientStream
}

type schedulerClient struct {
	cc grpc.ClientConnInterface
}

func NewSchedulerClient(cc grpc.ClientConnInterface) SchedulerClient {
	return &schedulerClient{cc}
}

func (c *schedulerClient) Session(ctx context.Context, opts ...grpc.CallOption) (Scheduler_SessionClient, error) {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	stream, err := c.cc.NewStream(ctx, &Scheduler_ServiceDesc.Streams[0], SessionMethodName, opts...)
	if err != nil {
		return nil, err
	}
	return &schedulerSessionClient{stream}, nil
}

type schedulerSessionClient struct {
	grpc.ClientStream
}

func (x *schedulerSessionClient) Send(m *Request) error {
	return x.ClientStream.SendMsg(m)
}

func (x *schedulerSessionClient) Recv() (*Response, error) {
	m := new(Response)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}
