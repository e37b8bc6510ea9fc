// Package lifecycle implements the tunnel lifecycle controller: the state machine
// that provisions the virtual interface, drives the native engine, protects the
// engine's transport socket and publishes transitions on the event bus.
//
// A Controller owns the process-wide tunnel session. Exactly one instance should
// exist per service; it is created by the service at startup and terminates on EXIT.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"secure-tunnel/internal/core"
	"secure-tunnel/internal/platform"
)

const commandQueueSize = 16

// Config holds the controller's tunables.
type Config struct {
	SessionName string
	Interface   platform.InterfaceConfig

	PollInterval    time.Duration // engine readiness poll interval (default 1s)
	MaxPollAttempts int           // readiness poll bound (default 30)
	ExitWait        time.Duration // how long EXIT waits for an in-flight operation (default 15s)
}

// Deps are the collaborators driven by the controller.
type Deps struct {
	Provisioner platform.InterfaceProvisioner
	Protector   platform.SocketProtector
	Engine      platform.TunnelEngine
	Bus         *core.EventBus
}

type opKind int

const (
	opEnable opKind = iota
	opDisable
)

func (k opKind) String() string {
	if k == opEnable {
		return "enable"
	}
	return "disable"
}

// pendingOp is the single in-flight operation slot.
type pendingOp struct {
	kind    opKind
	session string
	cancel  context.CancelFunc
	// stopRequested records a STOP that arrived while an Enable was running.
	stopRequested bool
}

// opResult is returned by a background operation to the run loop.
type opResult struct {
	kind       opKind
	session    string
	handle     platform.TunnelHandle // set on successful enable
	engineLive bool                  // engine may still be running
	err        error
}

// Controller is the tunnel lifecycle state machine.
type Controller struct {
	cfg  Config
	deps Deps

	cmds    chan core.Command
	results chan opResult
	done    chan struct{}

	// Owned by the run loop.
	state      core.LifecycleState
	session    string
	handle     platform.TunnelHandle
	engineLive bool
	pending    *pendingOp

	snapMu   sync.RWMutex
	snapshot core.LifecycleState

	runOnce sync.Once
}

// New creates a controller in the INSECURE state.
func New(cfg Config, deps Deps) *Controller {
	if cfg.SessionName == "" {
		cfg.SessionName = core.DefaultSessionName
	}
	if cfg.Interface.SessionName == "" {
		cfg.Interface.SessionName = cfg.SessionName
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.MaxPollAttempts <= 0 {
		cfg.MaxPollAttempts = 30
	}
	if cfg.ExitWait <= 0 {
		cfg.ExitWait = 15 * time.Second
	}
	if deps.Bus == nil {
		deps.Bus = core.NewEventBus()
	}
	return &Controller{
		cfg:     cfg,
		deps:    deps,
		cmds:    make(chan core.Command, commandQueueSize),
		results: make(chan opResult, 1),
		done:    make(chan struct{}),
		state:   core.StateInsecure,
	}
}

// State returns the last committed lifecycle state.
func (c *Controller) State() core.LifecycleState {
	c.snapMu.RLock()
	defer c.snapMu.RUnlock()
	return c.snapshot
}

// Done is closed once the controller has processed EXIT.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// Submit enqueues a command for the run loop. It blocks only while the queue is full.
func (c *Controller) Submit(ctx context.Context, cmd core.Command) error {
	if !cmd.Valid() {
		return fmt.Errorf("%w: %d", core.ErrInvalidCommand, int(cmd))
	}
	select {
	case <-c.done:
		return core.ErrTerminated
	default:
	}
	select {
	case c.cmds <- cmd:
		return nil
	case <-c.done:
		return core.ErrTerminated
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Configure forwards an opaque configuration payload to the engine. While the
// tunnel is secure the engine socket is protected again afterwards, since a
// payload may make the engine rebind its transport socket.
func (c *Controller) Configure(payload string) error {
	select {
	case <-c.done:
		return core.ErrTerminated
	default:
	}
	if err := c.deps.Engine.Configure(payload); err != nil {
		return fmt.Errorf("configure engine: %w", err)
	}
	if c.State() == core.StateSecure {
		return c.reprotect()
	}
	return nil
}

// Run processes commands and operation results until EXIT. Cancelling ctx is
// treated as EXIT. Run may only be called once.
func (c *Controller) Run(ctx context.Context) error {
	started := false
	c.runOnce.Do(func() { started = true })
	if !started {
		return errors.New("lifecycle: controller already running")
	}

	core.Log.Infof("Lifecycle", "Controller running (session=%s, state=%s)", c.cfg.SessionName, c.state)

	// Operations outlive ctx cancellation long enough for EXIT to tear them down.
	opCtx, cancelOps := context.WithCancel(context.Background())
	defer cancelOps()

	for {
		select {
		case cmd := <-c.cmds:
			if cmd == core.CommandExit {
				c.exit()
				return nil
			}
			c.handleCommand(opCtx, cmd)

		case res := <-c.results:
			c.complete(opCtx, res)

		case <-ctx.Done():
			core.Log.Infof("Lifecycle", "Context cancelled, exiting")
			c.exit()
			return nil
		}
	}
}

func (c *Controller) handleCommand(ctx context.Context, cmd core.Command) {
	switch cmd {
	case core.CommandStart:
		if c.pending != nil {
			core.Log.Infof("Lifecycle", "START ignored: %s in flight", c.pending.kind)
			return
		}
		if c.state == core.StateSecure {
			core.Log.Debugf("Lifecycle", "START ignored: already secure")
			return
		}
		c.launch(ctx, opEnable)

	case core.CommandStop:
		if c.pending != nil {
			if c.pending.kind == opEnable && !c.pending.stopRequested {
				core.Log.Infof("Lifecycle", "STOP during enable: cancelling session %s", c.pending.session)
				c.pending.stopRequested = true
				c.pending.cancel()
			}
			return
		}
		if c.state == core.StateInsecure {
			core.Log.Debugf("Lifecycle", "STOP ignored: already insecure")
			return
		}
		c.launch(ctx, opDisable)
	}
}

// launch starts an operation on a background goroutine and fills the pending slot.
func (c *Controller) launch(ctx context.Context, kind opKind) {
	opCtx, cancel := context.WithCancel(ctx)
	op := &pendingOp{kind: kind, cancel: cancel}

	switch kind {
	case opEnable:
		op.session = uuid.NewString()
		core.Log.Infof("Lifecycle", "Enable started (session=%s)", op.session)
		c.pending = op
		go func() {
			res := c.enable(opCtx, op.session)
			cancel()
			c.results <- res
		}()

	case opDisable:
		op.session = c.session
		core.Log.Infof("Lifecycle", "Disable started (session=%s)", op.session)
		// The worker owns the engine and handle from here on.
		handle := c.handle
		c.handle = nil
		c.engineLive = false
		c.pending = op
		go func() {
			res := c.disable(handle, op.session)
			cancel()
			c.results <- res
		}()
	}
}

// complete applies an operation result on the run loop.
func (c *Controller) complete(ctx context.Context, res opResult) {
	op := c.pending
	c.pending = nil

	switch res.kind {
	case opEnable:
		if res.err != nil {
			c.reportFailure(res)
			if op != nil && op.stopRequested {
				// State was INSECURE throughout; confirm the honored STOP.
				c.commit(core.StateInsecure, res.session)
			}
			return
		}
		c.handle = res.handle
		c.engineLive = res.engineLive
		c.session = res.session
		c.commit(core.StateSecure, res.session)
		core.Log.Infof("Lifecycle", "Tunnel secure (session=%s, interface=%s)", res.session, res.handle.Name())

		if op != nil && op.stopRequested {
			core.Log.Infof("Lifecycle", "Enable finished after STOP, disabling")
			c.launch(ctx, opDisable)
		}

	case opDisable:
		if res.err != nil {
			c.reportFailure(res)
		}
		c.session = ""
		c.commit(core.StateInsecure, res.session)
		core.Log.Infof("Lifecycle", "Tunnel insecure (session=%s)", res.session)
	}
}

// commit records the new state and publishes the transition in order.
// A commit to the current state republishes it without a state change.
func (c *Controller) commit(next core.LifecycleState, session string) {
	old := c.state
	c.state = next

	c.snapMu.Lock()
	c.snapshot = next
	c.snapMu.Unlock()

	c.deps.Bus.Publish(core.Event{
		Type:    core.EventStateChanged,
		Payload: core.StatePayload{OldState: old, NewState: next, Session: session},
	})
	if next == core.StateSecure {
		c.deps.Bus.PublishMessage(core.StatusEnabled)
	} else {
		c.deps.Bus.PublishMessage(core.StatusDisabled)
	}
}

func (c *Controller) reportFailure(res opResult) {
	core.Log.Warnf("Lifecycle", "%s failed (session=%s): %v", res.kind, res.session, res.err)
	c.deps.Bus.Publish(core.Event{
		Type:    core.EventOperationFailed,
		Payload: core.FailurePayload{Op: res.kind.String(), Session: res.session, Err: res.err},
	})
	c.deps.Bus.PublishMessage(core.StatusText(res.err))
}

// exit cancels any in-flight operation, stops the engine at most once and
// closes the controller. No commands are processed afterwards.
func (c *Controller) exit() {
	core.Log.Infof("Lifecycle", "EXIT: tearing down (state=%s)", c.state)

	if op := c.pending; op != nil {
		op.cancel()
		select {
		case res := <-c.results:
			c.pending = nil
			if res.err != nil {
				c.reportFailure(res)
			}
			if res.kind == opEnable && res.err == nil {
				c.handle = res.handle
				c.engineLive = res.engineLive
			}
		case <-time.After(c.cfg.ExitWait):
			core.Log.Warnf("Lifecycle", "In-flight %s did not resolve within %s", op.kind, c.cfg.ExitWait)
			c.pending = nil
			go c.reapLate()
		}
	}

	if c.engineLive {
		if err := c.deps.Engine.Stop(); err != nil {
			stopErr := &core.OpError{Op: "exit", Kind: core.ErrEngineStopFailed, Err: err}
			core.Log.Warnf("Lifecycle", "%v", stopErr)
			c.deps.Bus.PublishMessage(core.StatusText(stopErr))
		}
		c.engineLive = false
	}
	if c.handle != nil {
		if err := c.handle.Close(); err != nil {
			core.Log.Warnf("Lifecycle", "Close interface %s: %v", c.handle.Name(), err)
		}
		c.handle = nil
	}

	if c.state != core.StateInsecure {
		c.commit(core.StateInsecure, c.session)
	}
	c.session = ""

	close(c.done)
	c.deps.Bus.Publish(core.Event{Type: core.EventTerminated})
	core.Log.Infof("Lifecycle", "Controller terminated")
}

// reapLate waits for an operation abandoned by exit and tears down an enable
// that completed after the exit wait expired.
func (c *Controller) reapLate() {
	res := <-c.results
	if res.kind == opEnable && res.err == nil {
		core.Log.Warnf("Lifecycle", "Late enable (session=%s) completed after exit, tearing down", res.session)
		c.teardown(res.handle)
	}
}
