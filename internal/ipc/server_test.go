package ipc

import (
	"context"
	"errors"
	"net"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"secure-tunnel/internal/core"
)

func TestMain(m *testing.M) {
	core.Log.SetLevels(core.LogConfig{Level: "off"})
	os.Exit(m.Run())
}

type fakeController struct {
	mu        sync.Mutex
	cmds      []core.Command
	payloads  []string
	state     core.LifecycleState
	submitErr error
	configErr error
}

func (f *fakeController) Submit(_ context.Context, cmd core.Command) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return f.submitErr
	}
	f.cmds = append(f.cmds, cmd)
	return nil
}

func (f *fakeController) Configure(payload string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.configErr != nil {
		return f.configErr
	}
	f.payloads = append(f.payloads, payload)
	return nil
}

func (f *fakeController) State() core.LifecycleState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeController) set(fn func(*fakeController)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeController) Payloads() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.payloads...)
}

func (f *fakeController) Commands() []core.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]core.Command(nil), f.cmds...)
}

type bufDialer struct {
	lis *bufconn.Listener
}

func (d bufDialer) Dial(timeout time.Duration) (net.Conn, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return d.lis.DialContext(ctx)
}

func (d bufDialer) Address() string { return "bufnet" }

type relayHarness struct {
	ctrl   *fakeController
	bus    *core.EventBus
	srv    *Server
	client *Client
}

func startRelay(t *testing.T) *relayHarness {
	t.Helper()
	h := &relayHarness{ctrl: &fakeController{}, bus: core.NewEventBus()}
	h.srv = NewServer(h.ctrl, h.bus)

	lis := bufconn.Listen(1 << 20)
	served := make(chan error, 1)
	go func() { served <- h.srv.Serve(lis) }()

	client, err := Dial(bufDialer{lis: lis})
	require.NoError(t, err)
	h.client = client

	t.Cleanup(func() {
		client.Close()
		h.srv.Stop()
		select {
		case err := <-served:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("relay server did not stop")
		}
	})
	return h
}

func rpcContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestCommandSubmitsParsedCommand(t *testing.T) {
	h := startRelay(t)
	ctx := rpcContext(t)

	require.NoError(t, h.client.Command(ctx, "start"))
	require.NoError(t, h.client.Command(ctx, " STOP "))
	assert.Equal(t, []core.Command{core.CommandStart, core.CommandStop}, h.ctrl.Commands())
}

func TestCommandRejectsUnknownName(t *testing.T) {
	h := startRelay(t)

	err := h.client.Command(rpcContext(t), "restart")
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
	assert.Empty(t, h.ctrl.Commands())
}

func TestCommandAfterTermination(t *testing.T) {
	h := startRelay(t)
	h.ctrl.set(func(f *fakeController) { f.submitErr = core.ErrTerminated })

	err := h.client.Command(rpcContext(t), "start")
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))
}

func TestStatusReportsState(t *testing.T) {
	h := startRelay(t)
	ctx := rpcContext(t)

	got, err := h.client.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, "INSECURE", got)

	h.ctrl.set(func(f *fakeController) { f.state = core.StateSecure })

	got, err = h.client.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, "SECURE", got)
}

func TestConfigureForwardsPayload(t *testing.T) {
	h := startRelay(t)
	ctx := rpcContext(t)

	require.NoError(t, h.client.Configure(ctx, "listen_port=51820\n"))
	assert.Equal(t, []string{"listen_port=51820\n"}, h.ctrl.Payloads())

	h.ctrl.set(func(f *fakeController) { f.configErr = errors.New("bad key") })
	err := h.client.Configure(ctx, "private_key=zz\n")
	assert.Equal(t, codes.Internal, status.Code(err))
}

// watch runs Client.Watch in the background and forwards every event.
func watch(t *testing.T, h *relayHarness, ctx context.Context) (<-chan Event, <-chan error) {
	t.Helper()
	events := make(chan Event, 16)
	done := make(chan error, 1)
	go func() {
		done <- h.client.Watch(ctx, func(ev Event) error {
			events <- ev
			return nil
		})
	}()
	return events, done
}

func nextEvent(t *testing.T, events <-chan Event) Event {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for relay event")
		return Event{}
	}
}

func TestSubscribeReceivesBackendInfoFirst(t *testing.T) {
	h := startRelay(t)
	h.bus.Publish(core.Event{Type: core.EventBackendInfo, Payload: core.MessagePayload{Text: `{"engine":"wireguard-go"}`}})

	events, _ := watch(t, h, rpcContext(t))
	first := nextEvent(t, events)
	assert.Equal(t, Event{Name: core.RelayEventBackendInfo, Payload: `{"engine":"wireguard-go"}`}, first)

	h.bus.Publish(core.Event{Type: core.EventStateChanged, Payload: core.StatePayload{OldState: core.StateInsecure, NewState: core.StateSecure}})
	h.bus.PublishMessage(core.StatusEnabled)

	assert.Equal(t, Event{Name: core.RelayEventState, Payload: "SECURE"}, nextEvent(t, events))
	assert.Equal(t, Event{Name: core.RelayEventMessage, Payload: core.StatusEnabled}, nextEvent(t, events))
	assert.Equal(t, int64(1), h.srv.Tracker().Subscribers())
}

func TestStopEndsSubscriptions(t *testing.T) {
	h := startRelay(t)
	h.bus.Publish(core.Event{Type: core.EventBackendInfo, Payload: core.MessagePayload{Text: "{}"}})

	events, done := watch(t, h, rpcContext(t))
	nextEvent(t, events)

	h.srv.Stop()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Watch did not return after Stop")
	}
}

func TestWatchReturnsOnCancel(t *testing.T) {
	h := startRelay(t)
	h.bus.Publish(core.Event{Type: core.EventBackendInfo, Payload: core.MessagePayload{Text: "{}"}})

	ctx, cancel := context.WithCancel(context.Background())
	events, done := watch(t, h, ctx)
	nextEvent(t, events)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
	require.Eventually(t, func() bool { return h.srv.Tracker().Subscribers() == 0 }, 5*time.Second, time.Millisecond)
}

func TestSlowSubscriberDropsEvents(t *testing.T) {
	bus := core.NewEventBus()
	srv := NewServer(&fakeController{}, bus)
	defer srv.Stop()

	_, ch, ok := srv.subscribe()
	require.True(t, ok)

	for i := 0; i < subscriberBuffer+10; i++ {
		bus.PublishMessage(core.StatusEnabled)
	}
	assert.Len(t, ch, subscriberBuffer)
}

func TestBackendInfoCacheKeepsLatest(t *testing.T) {
	bus := core.NewEventBus()
	srv := NewServer(&fakeController{}, bus)
	defer srv.Stop()

	bus.Publish(core.Event{Type: core.EventBackendInfo, Payload: core.MessagePayload{Text: "old"}})
	bus.Publish(core.Event{Type: core.EventBackendInfo, Payload: core.MessagePayload{Text: "new"}})

	_, ch, ok := srv.subscribe()
	require.True(t, ok)
	require.Len(t, ch, 1)
	assert.Equal(t, "new", (<-ch).Payload)
}

func TestSubscribeAfterStopIsRefused(t *testing.T) {
	srv := NewServer(&fakeController{}, core.NewEventBus())
	srv.Stop()

	_, _, ok := srv.subscribe()
	assert.False(t, ok)
}

func TestRelayEventIgnoresOtherTypes(t *testing.T) {
	_, ok := relayEvent(core.Event{Type: core.EventConfigReloaded, Payload: core.Config{}})
	assert.False(t, ok)
	_, ok = relayEvent(core.Event{Type: core.EventOperationFailed, Payload: core.FailurePayload{}})
	assert.False(t, ok)
}
