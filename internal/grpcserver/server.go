// Package grpcserver exposes the detector over gRPC.
package grpcserver

import (
	"context"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/GriffinCanCode/fake-detector/internal/config"
	apperrors "github.com/GriffinCanCode/fake-detector/internal/errors"
	"github.com/GriffinCanCode/fake-detector/internal/orchestrator"
	"github.com/GriffinCanCode/fake-detector/internal/reference"
	"github.com/GriffinCanCode/fake-detector/internal/trace"
	pb "github.com/GriffinCanCode/fake-detector/pkg/pb"
)

// Checker is the detector the service fronts.
type Checker interface {
	IsFake(ctx context.Context, videoPath string) (*orchestrator.Verdict, error)
	IndexStatus() reference.Status
}

// Server implements pb.DetectorServer.
type Server struct {
	checker Checker
	grpc    *grpc.Server
	health  *health.Server
}

// New creates a gRPC server with the Detector and health services registered.
func New(checker Checker, opts ...grpc.ServerOption) *Server {
	opts = append([]grpc.ServerOption{grpc.ChainUnaryInterceptor(trace.UnaryServerInterceptor())}, opts...)
	s := &Server{
		checker: checker,
		grpc:    grpc.NewServer(opts...),
		health:  health.NewServer(),
	}
	pb.RegisterDetectorServer(s.grpc, s)
	healthpb.RegisterHealthServer(s.grpc, s.health)
	s.health.SetServingStatus(pb.DetectorServiceName, healthpb.HealthCheckResponse_SERVING)
	return s
}

// Serve accepts connections on lis until Stop.
func (s *Server) Serve(lis net.Listener) error {
	trace.Logger(context.Background()).Info("grpc server listening", "addr", lis.Addr().String())
	return s.grpc.Serve(lis)
}

// Stop marks the service not serving and drains in-flight calls.
func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}

// Check runs one video check. The path is resolved on the server's filesystem.
func (s *Server) Check(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	raw, err := pb.PathFromRequest(req)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInvalidArgument, "invalid check request")
	}
	path, err := config.ParsePath(raw)
	if err != nil {
		return nil, err
	}

	v, err := s.checker.IsFake(ctx, path)
	if err != nil {
		if apperrors.CodeOf(err) == apperrors.CodeUnknown {
			err = apperrors.Wrap(err, apperrors.CodeInternal, "check failed")
		}
		return nil, err
	}
	return v.Wire().ToStruct(), nil
}

// IndexStatus reports the reference index.
func (s *Server) IndexStatus(context.Context, *emptypb.Empty) (*structpb.Struct, error) {
	return orchestrator.WireStatus(s.checker.IndexStatus()).ToStruct(), nil
}
