package ipc

import (
	"context"
	"sync/atomic"

	"google.golang.org/grpc"

	"secure-tunnel/internal/core"
)

// ConnTracker counts active relay RPCs (unary + streaming) and open
// subscriptions. Logs when the first client arrives and the last one leaves.
type ConnTracker struct {
	active      atomic.Int64
	subscribers atomic.Int64
}

// ActiveCount returns the current number of active RPCs.
func (ct *ConnTracker) ActiveCount() int64 {
	return ct.active.Load()
}

// Subscribers returns the number of open Subscribe streams.
func (ct *ConnTracker) Subscribers() int64 {
	return ct.subscribers.Load()
}

func (ct *ConnTracker) inc() {
	if ct.active.Add(1) == 1 {
		core.Log.Debugf("IPC", "Client connected")
	}
}

func (ct *ConnTracker) dec() {
	if ct.active.Add(-1) == 0 {
		core.Log.Debugf("IPC", "All clients disconnected")
	}
}

// UnaryInterceptor returns a gRPC unary server interceptor that tracks active RPCs.
func (ct *ConnTracker) UnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		ct.inc()
		defer ct.dec()
		return handler(ctx, req)
	}
}

// StreamInterceptor returns a gRPC stream server interceptor that tracks active streams.
func (ct *ConnTracker) StreamInterceptor() grpc.StreamServerInterceptor {
	return func(
		srv any,
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		ct.inc()
		defer ct.dec()
		if info.FullMethod == Relay_Subscribe_FullMethodName {
			ct.subscribers.Add(1)
			defer ct.subscribers.Add(-1)
		}
		return handler(srv, ss)
	}
}
