package lifecycle

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"secure-tunnel/internal/core"
	"secure-tunnel/internal/platform"
)

func TestMain(m *testing.M) {
	core.Log.SetLevels(core.LogConfig{Level: "off"})
	os.Exit(m.Run())
}

// ---------------------------------------------------------------------------
// Provisioner
// ---------------------------------------------------------------------------

type fakeHandle struct {
	fd     int
	name   string
	closed atomic.Int32
}

func (h *fakeHandle) Fd() int      { return h.fd }
func (h *fakeHandle) Name() string { return h.name }
func (h *fakeHandle) Close() error {
	h.closed.Add(1)
	return nil
}

type fakeProvisioner struct {
	mu       sync.Mutex
	calls    int
	configs  []platform.InterfaceConfig
	handles  []*fakeHandle
	failures []bool // consumed per call; true fails the call
	err      error  // fails every call when set

	// block, when set, holds Provision until it is closed or ctx is done.
	block     chan struct{}
	ignoreCtx bool
	entered   chan struct{}
	lastCtx   context.Context
	enterOnce sync.Once
}

func newFakeProvisioner() *fakeProvisioner {
	return &fakeProvisioner{entered: make(chan struct{})}
}

func (p *fakeProvisioner) Provision(ctx context.Context, cfg platform.InterfaceConfig) (platform.TunnelHandle, error) {
	p.mu.Lock()
	p.calls++
	p.configs = append(p.configs, cfg)
	p.lastCtx = ctx
	fail := p.err != nil
	if len(p.failures) > 0 {
		fail = fail || p.failures[0]
		p.failures = p.failures[1:]
	}
	err := p.err
	block := p.block
	ignoreCtx := p.ignoreCtx
	p.mu.Unlock()

	p.enterOnce.Do(func() { close(p.entered) })

	if block != nil {
		if ignoreCtx {
			<-block
		} else {
			select {
			case <-block:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}

	if fail {
		if err == nil {
			err = errors.New("permission denied")
		}
		return nil, err
	}

	p.mu.Lock()
	h := &fakeHandle{fd: 40 + p.calls, name: "tun0"}
	p.handles = append(p.handles, h)
	p.mu.Unlock()
	return h, nil
}

func (p *fakeProvisioner) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func (p *fakeProvisioner) Handles() []*fakeHandle {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*fakeHandle(nil), p.handles...)
}

func (p *fakeProvisioner) LastCtx() context.Context {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastCtx
}

// ---------------------------------------------------------------------------
// Engine
// ---------------------------------------------------------------------------

type fakeEngine struct {
	mu         sync.Mutex
	startCalls int
	stopCalls  int
	startFds   []int
	names      []string
	payloads   []string
	startErr   error
	stopErr    error
	stopBlock  chan struct{}

	// socket is returned by SocketHandle while running; 0 means never ready.
	socket  atomic.Int64
	running atomic.Bool
	polls   atomic.Int32
	started chan struct{}
	once    sync.Once
}

func newFakeEngine(socket int) *fakeEngine {
	e := &fakeEngine{started: make(chan struct{})}
	e.socket.Store(int64(socket))
	return e
}

func (e *fakeEngine) Start(fd int, name string) error {
	e.mu.Lock()
	e.startCalls++
	e.startFds = append(e.startFds, fd)
	e.names = append(e.names, name)
	err := e.startErr
	e.mu.Unlock()
	e.once.Do(func() { close(e.started) })
	if err != nil {
		return err
	}
	e.running.Store(true)
	return nil
}

func (e *fakeEngine) Stop() error {
	e.mu.Lock()
	e.stopCalls++
	err := e.stopErr
	block := e.stopBlock
	e.mu.Unlock()
	if block != nil {
		<-block
	}
	e.running.Store(false)
	return err
}

func (e *fakeEngine) SocketHandle() int {
	e.polls.Add(1)
	if !e.running.Load() {
		return 0
	}
	return int(e.socket.Load())
}

func (e *fakeEngine) Configure(payload string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.payloads = append(e.payloads, payload)
	return nil
}

func (e *fakeEngine) StartCalls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.startCalls
}

func (e *fakeEngine) StopCalls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stopCalls
}

// ---------------------------------------------------------------------------
// Protector
// ---------------------------------------------------------------------------

type fakeProtector struct {
	mu      sync.Mutex
	fds     []int
	err     error
	block   chan struct{}
	entered chan struct{}
	once    sync.Once
}

func newFakeProtector() *fakeProtector {
	return &fakeProtector{entered: make(chan struct{})}
}

func (p *fakeProtector) Protect(fd int) error {
	p.mu.Lock()
	p.fds = append(p.fds, fd)
	block := p.block
	err := p.err
	p.mu.Unlock()
	p.once.Do(func() { close(p.entered) })
	if block != nil {
		<-block
	}
	return err
}

func (p *fakeProtector) Fds() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]int(nil), p.fds...)
}

// ---------------------------------------------------------------------------
// Bus recorder
// ---------------------------------------------------------------------------

type recorder struct {
	mu         sync.Mutex
	messages   []string
	states     []core.StatePayload
	failures   []core.FailurePayload
	terminated int
}

func newRecorder(bus *core.EventBus) *recorder {
	r := &recorder{}
	bus.Subscribe(func(e core.Event) {
		r.mu.Lock()
		defer r.mu.Unlock()
		switch e.Type {
		case core.EventMessage:
			r.messages = append(r.messages, e.Payload.(core.MessagePayload).Text)
		case core.EventStateChanged:
			r.states = append(r.states, e.Payload.(core.StatePayload))
		case core.EventOperationFailed:
			r.failures = append(r.failures, e.Payload.(core.FailurePayload))
		case core.EventTerminated:
			r.terminated++
		}
	}, core.EventMessage, core.EventStateChanged, core.EventOperationFailed, core.EventTerminated)
	return r
}

func (r *recorder) Messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.messages...)
}

func (r *recorder) States() []core.StatePayload {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]core.StatePayload(nil), r.states...)
}

func (r *recorder) Failures() []core.FailurePayload {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]core.FailurePayload(nil), r.failures...)
}

func (r *recorder) Terminated() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.terminated
}

// waitMessages blocks until at least n messages were published.
func (r *recorder) waitMessages(t *testing.T, n int) []string {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if msgs := r.Messages(); len(msgs) >= n {
			return msgs
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d messages, got %q", n, r.Messages())
	return nil
}

// ---------------------------------------------------------------------------
// Harness
// ---------------------------------------------------------------------------

type harness struct {
	ctrl  *Controller
	prov  *fakeProvisioner
	eng   *fakeEngine
	prot  *fakeProtector
	rec   *recorder
	runCh chan error
	stop  context.CancelFunc
}

type harnessOption func(*Config)

func withPoll(interval time.Duration, attempts int) harnessOption {
	return func(c *Config) {
		c.PollInterval = interval
		c.MaxPollAttempts = attempts
	}
}

func withExitWait(d time.Duration) harnessOption {
	return func(c *Config) { c.ExitWait = d }
}

// newHarness wires fakes into a controller without starting it.
func newHarness(prov *fakeProvisioner, eng *fakeEngine, prot *fakeProtector, opts ...harnessOption) *harness {
	cfg := Config{
		SessionName: "test-session",
		Interface: platform.InterfaceConfig{
			MTU:      1420,
			Blocking: true,
		},
		PollInterval:    time.Millisecond,
		MaxPollAttempts: 5,
		ExitWait:        2 * time.Second,
	}
	for _, o := range opts {
		o(&cfg)
	}
	bus := core.NewEventBus()
	h := &harness{
		prov:  prov,
		eng:   eng,
		prot:  prot,
		rec:   newRecorder(bus),
		runCh: make(chan error, 1),
	}
	h.ctrl = New(cfg, Deps{Provisioner: prov, Protector: prot, Engine: eng, Bus: bus})
	return h
}

// start runs the controller loop and registers cleanup.
func (h *harness) start(t *testing.T) *harness {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	h.stop = cancel
	go func() { h.runCh <- h.ctrl.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-h.ctrl.Done():
		case <-time.After(5 * time.Second):
			t.Errorf("controller did not terminate")
		}
	})
	return h
}

func startHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	return newHarness(newFakeProvisioner(), newFakeEngine(7), newFakeProtector(), opts...).start(t)
}

func (h *harness) submit(t *testing.T, cmd core.Command) {
	t.Helper()
	if err := h.ctrl.Submit(context.Background(), cmd); err != nil {
		t.Fatalf("Submit(%s): %v", cmd, err)
	}
}

func (h *harness) waitDone(t *testing.T) {
	t.Helper()
	select {
	case <-h.ctrl.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("controller did not reach terminal state")
	}
	select {
	case err := <-h.runCh:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}
}

func waitClosed(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func hasPrefix(msgs []string, prefix string) bool {
	for _, m := range msgs {
		if strings.HasPrefix(m, prefix) {
			return true
		}
	}
	return false
}
