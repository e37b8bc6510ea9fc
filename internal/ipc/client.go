package ipc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	defaultDialTimeout = 5 * time.Second
)

// Dialer opens raw connections to the relay endpoint. platform.IPCTransport satisfies it.
type Dialer interface {
	Dial(timeout time.Duration) (net.Conn, error)
	Address() string
}

// Client wraps a gRPC client connected to the relay.
type Client struct {
	conn  *grpc.ClientConn
	Relay RelayClient
}

// Dial connects to the relay through d.
func Dial(d Dialer) (*Client, error) {
	return DialWithTimeout(d, defaultDialTimeout)
}

// DialWithTimeout connects to the relay with a custom per-connection timeout.
func DialWithTimeout(d Dialer, timeout time.Duration) (*Client, error) {
	conn, err := grpc.NewClient(
		"passthrough:///"+d.Address(),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithContextDialer(func(ctx context.Context, addr string) (net.Conn, error) {
			return d.Dial(timeout)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("ipc: dial %s: %w", d.Address(), err)
	}

	return &Client{
		conn:  conn,
		Relay: NewRelayClient(conn),
	}, nil
}

// Close shuts down the gRPC client connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Command sends a command name ("start", "stop", "exit").
func (c *Client) Command(ctx context.Context, name string) error {
	_, err := c.Relay.Command(ctx, wrapperspb.String(name))
	return err
}

// Configure sends an opaque engine configuration payload.
func (c *Client) Configure(ctx context.Context, payload string) error {
	_, err := c.Relay.Configure(ctx, wrapperspb.String(payload))
	return err
}

// Status returns the service's committed state ("INSECURE" or "SECURE").
func (c *Client) Status(ctx context.Context) (string, error) {
	resp, err := c.Relay.Status(ctx, &emptypb.Empty{})
	if err != nil {
		return "", err
	}
	return resp.GetValue(), nil
}

// Watch subscribes to relay events and calls fn for each until the stream
// ends, ctx is cancelled or fn returns an error. A server-side close or a
// cancelled ctx returns nil.
func (c *Client) Watch(ctx context.Context, fn func(Event) error) error {
	stream, err := c.Relay.Subscribe(ctx, &emptypb.Empty{})
	if err != nil {
		return err
	}
	for {
		msg, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil || status.Code(err) == codes.Canceled {
				return nil
			}
			return err
		}
		ev, err := eventFromStruct(msg)
		if err != nil {
			continue
		}
		if err := fn(ev); err != nil {
			return err
		}
	}
}
