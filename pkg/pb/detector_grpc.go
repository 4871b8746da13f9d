package pb

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// Fully qualified names of the Detector service
const (
	DetectorServiceName       = "fakedetector.v1.Detector"
	DetectorCheckMethod       = "/fakedetector.v1.Detector/Check"
	DetectorIndexStatusMethod = "/fakedetector.v1.Detector/IndexStatus"
)

// DetectorServer is implemented by the detection service.
type DetectorServer interface {
	Check(context.Context, *structpb.Struct) (*structpb.Struct, error)
	IndexStatus(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

// DetectorClient calls a remote detection service.
type DetectorClient interface {
	Check(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	IndexStatus(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error)
}

type detectorClient struct {
	cc grpc.ClientConnInterface
}

// NewDetectorClient wraps cc.
func NewDetectorClient(cc grpc.ClientConnInterface) DetectorClient {
	return &detectorClient{cc: cc}
}

func (c *detectorClient) Check(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, DetectorCheckMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *detectorClient) IndexStatus(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, DetectorIndexStatusMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// RegisterDetectorServer registers srv on s.
func RegisterDetectorServer(s grpc.ServiceRegistrar, srv DetectorServer) {
	s.RegisterService(&Detector_ServiceDesc, srv)
}

func checkHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DetectorServer).Check(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: DetectorCheckMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(DetectorServer).Check(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func indexStatusHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DetectorServer).IndexStatus(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: DetectorIndexStatusMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(DetectorServer).IndexStatus(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

// Detector_ServiceDesc describes the Detector service for grpc.Server.
var Detector_ServiceDesc = grpc.ServiceDesc{
	ServiceName: DetectorServiceName,
	HandlerType: (*DetectorServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Check", Handler: checkHandler},
		{MethodName: "IndexStatus", Handler: indexStatusHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "fakedetector/v1/detector.proto",
}
