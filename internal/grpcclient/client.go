// Package grpcclient calls a remote fake detector.
package grpcclient

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/protobuf/types/known/emptypb"

	apperrors "github.com/GriffinCanCode/fake-detector/internal/errors"
	"github.com/GriffinCanCode/fake-detector/internal/orchestrator"
	"github.com/GriffinCanCode/fake-detector/internal/resilience"
	"github.com/GriffinCanCode/fake-detector/internal/trace"
	pb "github.com/GriffinCanCode/fake-detector/pkg/pb"
)

// Config holds connection settings.
type Config struct {
	KeepaliveTime    time.Duration
	KeepaliveTimeout time.Duration
	CallTimeout      time.Duration
	Retry            resilience.RetryConfig
	Breaker          resilience.Config
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		KeepaliveTime:    DefaultKeepaliveTime,
		KeepaliveTimeout: DefaultKeepaliveTimeout,
		CallTimeout:      DefaultCallTimeout,
		Retry:            resilience.DefaultRetryConfig(),
		Breaker:          resilience.RemoteConfig("remote-detector"),
	}
}

// Client checks videos on a remote detector. Transient failures are retried behind a
// circuit breaker; a failed check is returned as is.
type Client struct {
	conn     *grpc.ClientConn
	detector pb.DetectorClient
	health   healthpb.HealthClient
	breaker  *resilience.Breaker
	cfg      Config
}

// New connects to addr. Extra dial options are appended after the defaults.
func New(addr string, cfg Config, opts ...grpc.DialOption) (*Client, error) {
	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                cfg.KeepaliveTime,
			Timeout:             cfg.KeepaliveTimeout,
			PermitWithoutStream: true,
		}),
		grpc.WithChainUnaryInterceptor(trace.UnaryClientInterceptor()),
	}, opts...)

	conn, err := grpc.NewClient(addr, dialOpts...)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeUnavailable, "create grpc client").WithMetadata("addr", addr)
	}
	return &Client{
		conn:     conn,
		detector: pb.NewDetectorClient(conn),
		health:   healthpb.NewHealthClient(conn),
		breaker:  resilience.New(cfg.Breaker),
		cfg:      cfg,
	}, nil
}

// Close closes the gRPC connection
func (c *Client) Close() error {
	return c.conn.Close()
}

// Breaker exposes the circuit breaker state for reporting.
func (c *Client) Breaker() *resilience.Breaker {
	return c.breaker
}

// Ping reports whether the remote detector is serving.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, HealthCheckTimeout)
	defer cancel()
	resp, err := c.health.Check(ctx, &healthpb.HealthCheckRequest{Service: pb.DetectorServiceName})
	if err != nil {
		return apperrors.FromGRPCError(err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return apperrors.Newf(apperrors.CodeUnavailable, "remote detector is %s", resp.GetStatus())
	}
	return nil
}

// Check asks the remote detector about path, which must exist on the remote host.
func (c *Client) Check(ctx context.Context, path string) (pb.Verdict, error) {
	return call(ctx, c, func(ctx context.Context) (pb.Verdict, error) {
		resp, err := c.detector.Check(ctx, pb.NewCheckRequest(path))
		if err != nil {
			return pb.Verdict{}, err
		}
		v, err := pb.VerdictFromStruct(resp)
		if err != nil {
			return pb.Verdict{}, apperrors.Wrap(err, apperrors.CodeInternal, "decode verdict")
		}
		return v, nil
	})
}

// IndexStatus fetches the remote reference index state.
func (c *Client) IndexStatus(ctx context.Context) (pb.IndexStatus, error) {
	return call(ctx, c, func(ctx context.Context) (pb.IndexStatus, error) {
		resp, err := c.detector.IndexStatus(ctx, &emptypb.Empty{})
		if err != nil {
			return pb.IndexStatus{}, err
		}
		return pb.IndexStatusFromStruct(resp), nil
	})
}

// IsFake adapts Check to the local comparer's shape so batch runs can use either.
func (c *Client) IsFake(ctx context.Context, path string) (*orchestrator.Verdict, error) {
	v, err := c.Check(ctx, path)
	if err != nil {
		return nil, err
	}
	return &orchestrator.Verdict{
		Path:      v.Path,
		Fake:      v.Fake,
		Matches:   v.Matches,
		Elapsed:   time.Duration(v.ElapsedMs) * time.Millisecond,
		CheckedAt: v.CheckedAt,
	}, nil
}

// call runs fn with a per-attempt timeout, retries and the breaker. gRPC errors are
// converted back to AppErrors so codes survive the hop.
func call[T any](ctx context.Context, c *Client, fn func(context.Context) (T, error)) (T, error) {
	var result T
	err := resilience.Retry(ctx, c.cfg.Retry, func() error {
		r, err := resilience.Execute(c.breaker, func() (T, error) {
			attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
			defer cancel()
			r, err := fn(attemptCtx)
			if err != nil {
				if apperrors.CodeOf(err) == apperrors.CodeUnknown {
					return r, apperrors.FromGRPCError(err)
				}
				return r, err
			}
			return r, nil
		})
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	return result, err
}
