package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"secure-tunnel/internal/core"
)

// subscriberBuffer is how many events a slow subscriber may lag before drops.
const subscriberBuffer = 64

// Controller is the part of the lifecycle controller the relay drives.
type Controller interface {
	Submit(ctx context.Context, cmd core.Command) error
	Configure(payload string) error
	State() core.LifecycleState
}

// Server wraps a gRPC server that relays bus events to subscribers and
// forwards commands to the controller. Delivery is best-effort: a
// subscriber whose buffer is full misses events.
type Server struct {
	grpc    *grpc.Server
	ctrl    Controller
	tracker *ConnTracker

	mu          sync.Mutex
	subs        map[uint64]chan Event
	nextID      uint64
	backendInfo *Event
	closed      bool
}

// NewServer creates a relay server for ctrl fed by bus.
func NewServer(ctrl Controller, bus *core.EventBus, opts ...grpc.ServerOption) *Server {
	tracker := &ConnTracker{}
	opts = append(opts,
		grpc.ChainUnaryInterceptor(tracker.UnaryInterceptor()),
		grpc.ChainStreamInterceptor(tracker.StreamInterceptor()),
	)
	s := &Server{
		grpc:    grpc.NewServer(opts...),
		ctrl:    ctrl,
		tracker: tracker,
		subs:    make(map[uint64]chan Event),
	}
	RegisterRelayServer(s.grpc, s)
	bus.Subscribe(s.onEvent, core.EventMessage, core.EventBackendInfo, core.EventStateChanged)
	return s
}

// Serve accepts relay clients on ln. Blocks until Stop is called or an error occurs.
func (s *Server) Serve(ln net.Listener) error {
	core.Log.Infof("IPC", "Relay listening on %s", ln.Addr())
	if err := s.grpc.Serve(ln); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("ipc: serve: %w", err)
	}
	return nil
}

// Stop ends all subscriptions and gracefully stops the gRPC server.
func (s *Server) Stop() {
	s.mu.Lock()
	s.closed = true
	for id, ch := range s.subs {
		close(ch)
		delete(s.subs, id)
	}
	s.mu.Unlock()
	s.grpc.GracefulStop()
}

// Tracker exposes connection counters.
func (s *Server) Tracker() *ConnTracker {
	return s.tracker
}

func (s *Server) onEvent(e core.Event) {
	ev, ok := relayEvent(e)
	if !ok {
		return
	}
	s.broadcast(ev)
}

func (s *Server) broadcast(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ev.Name == core.RelayEventBackendInfo {
		cached := ev
		s.backendInfo = &cached
	}
	for id, ch := range s.subs {
		select {
		case ch <- ev:
		default:
			core.Log.Debugf("IPC", "Subscriber %d lagging, dropped %s event", id, ev.Name)
		}
	}
}

// subscribe registers a subscriber. The cached backend-info event, if any,
// is queued first. ok is false once the server is stopping.
func (s *Server) subscribe() (id uint64, ch chan Event, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, nil, false
	}
	s.nextID++
	id = s.nextID
	ch = make(chan Event, subscriberBuffer)
	if s.backendInfo != nil {
		ch <- *s.backendInfo
	}
	s.subs[id] = ch
	return id, ch, true
}

func (s *Server) unsubscribe(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ch, ok := s.subs[id]; ok {
		close(ch)
		delete(s.subs, id)
	}
}

// Command parses and submits a lifecycle command.
func (s *Server) Command(ctx context.Context, req *wrapperspb.StringValue) (*emptypb.Empty, error) {
	cmd, err := core.ParseCommand(req.GetValue())
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	core.Log.Infof("IPC", "Command %s from relay client", cmd)
	if err := s.ctrl.Submit(ctx, cmd); err != nil {
		return nil, toStatus(err)
	}
	return &emptypb.Empty{}, nil
}

// Configure passes an opaque engine configuration payload to the controller.
func (s *Server) Configure(ctx context.Context, req *wrapperspb.StringValue) (*emptypb.Empty, error) {
	if err := s.ctrl.Configure(req.GetValue()); err != nil {
		return nil, toStatus(err)
	}
	return &emptypb.Empty{}, nil
}

// Status returns the committed lifecycle state.
func (s *Server) Status(ctx context.Context, _ *emptypb.Empty) (*wrapperspb.StringValue, error) {
	return wrapperspb.String(s.ctrl.State().String()), nil
}

// Subscribe streams relay events until the client leaves or the server stops.
func (s *Server) Subscribe(_ *emptypb.Empty, stream Relay_SubscribeServer) error {
	id, ch, ok := s.subscribe()
	if !ok {
		return status.Error(codes.Unavailable, "relay stopping")
	}
	defer s.unsubscribe(id)

	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, open := <-ch:
			if !open {
				return nil
			}
			if err := stream.Send(ev.toStruct()); err != nil {
				return err
			}
		}
	}
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, core.ErrTerminated):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, core.ErrInvalidCommand):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	case errors.Is(err, core.ErrUnsupported):
		return status.Error(codes.Unimplemented, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
