package trace

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// UnaryClientInterceptor injects trace context into outgoing gRPC calls.
func UnaryClientInterceptor() grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		ctx = injectMetadata(ctx)
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

// UnaryServerInterceptor continues the caller's trace and logs each call.
func UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		ctx = WithContext(ctx, extractMetadata(ctx))
		start := time.Now()
		resp, err := handler(ctx, req)
		Logger(ctx).Debug("grpc call", "method", info.FullMethod, "code", status.Code(err), "duration", time.Since(start))
		return resp, err
	}
}

func injectMetadata(ctx context.Context) context.Context {
	tc, ok := FromContext(ctx)
	if !ok {
		tc = New()
		ctx = WithContext(ctx, tc)
	}

	md, ok := metadata.FromOutgoingContext(ctx)
	if !ok {
		md = metadata.New(nil)
	} else {
		md = md.Copy()
	}
	for k, v := range tc.ToMap() {
		md.Set(k, v)
	}
	return metadata.NewOutgoingContext(ctx, md)
}

func extractMetadata(ctx context.Context) Context {
	md, _ := metadata.FromIncomingContext(ctx)
	m := make(map[string]string, 3)
	for _, k := range []string{TraceparentKey, TraceIDKey, SpanIDKey} {
		if v := md.Get(k); len(v) > 0 {
			m[k] = v[0]
		}
	}
	return FromMap(m)
}
