package lifecycle

import (
	"context"
	"errors"
	"time"

	"secure-tunnel/internal/core"
	"secure-tunnel/internal/platform"
)

// enable provisions the interface, starts the engine, waits for its transport
// socket and protects it. On any failure every resource acquired so far is
// released before returning, so a failed result never carries a live engine.
func (c *Controller) enable(ctx context.Context, session string) opResult {
	res := opResult{kind: opEnable, session: session}

	ifCfg := c.cfg.Interface
	handle, err := c.deps.Provisioner.Provision(ctx, ifCfg)
	if err != nil {
		if ctx.Err() != nil {
			res.err = &core.OpError{Op: "enable", Kind: core.ErrOperationCancelled, Err: err}
		} else {
			res.err = &core.OpError{Op: "enable", Kind: core.ErrInterfaceUnavailable, Err: err}
		}
		return res
	}
	if handle == nil {
		res.err = &core.OpError{Op: "enable", Kind: core.ErrInterfaceUnavailable, Err: errors.New("provisioner returned no handle")}
		return res
	}
	core.Log.Infof("Lifecycle", "Interface %s provisioned (fd=%d)", handle.Name(), handle.Fd())

	if ctx.Err() != nil {
		c.release(handle)
		res.err = &core.OpError{Op: "enable", Kind: core.ErrOperationCancelled}
		return res
	}

	if err := c.deps.Engine.Start(handle.Fd(), c.cfg.SessionName); err != nil {
		// A partially started engine is stopped so no engine outlives a failed enable.
		c.teardown(handle)
		res.err = &core.OpError{Op: "enable", Kind: core.ErrEngineStartFailed, Err: err}
		return res
	}

	sock, err := c.waitForSocket(ctx)
	if err != nil {
		c.teardown(handle)
		res.err = err
		return res
	}
	core.Log.Debugf("Lifecycle", "Engine socket ready (fd=%d)", sock)

	if err := c.deps.Protector.Protect(sock); err != nil {
		c.teardown(handle)
		res.err = &core.OpError{Op: "enable", Kind: core.ErrSocketProtectFailed, Err: err}
		return res
	}

	res.handle = handle
	res.engineLive = true
	return res
}

// waitForSocket polls the engine until it reports a transport socket, the
// attempt bound is exhausted or ctx is cancelled.
func (c *Controller) waitForSocket(ctx context.Context) (int, error) {
	if sock := c.deps.Engine.SocketHandle(); sock > 0 {
		return sock, nil
	}

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for attempt := 1; attempt <= c.cfg.MaxPollAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return 0, &core.OpError{Op: "enable", Kind: core.ErrOperationCancelled, Err: ctx.Err()}
		case <-ticker.C:
		}
		if sock := c.deps.Engine.SocketHandle(); sock > 0 {
			return sock, nil
		}
		core.Log.Debugf("Lifecycle", "Engine socket not ready (attempt %d/%d)", attempt, c.cfg.MaxPollAttempts)
	}
	return 0, &core.OpError{
		Op:   "enable",
		Kind: core.ErrEngineNotReady,
		Err:  errors.New("no transport socket after " + (time.Duration(c.cfg.MaxPollAttempts) * c.cfg.PollInterval).String()),
	}
}

// reprotect protects the engine's current transport socket. A failure is
// reported on the bus and returned; the state is left to the next command.
func (c *Controller) reprotect() error {
	sock := c.deps.Engine.SocketHandle()
	if sock <= 0 {
		return nil
	}
	if err := c.deps.Protector.Protect(sock); err != nil {
		opErr := &core.OpError{Op: "configure", Kind: core.ErrSocketProtectFailed, Err: err}
		core.Log.Warnf("Lifecycle", "%v", opErr)
		c.deps.Bus.Publish(core.Event{
			Type:    core.EventOperationFailed,
			Payload: core.FailurePayload{Op: "configure", Err: opErr},
		})
		c.deps.Bus.PublishMessage(core.StatusText(opErr))
		return opErr
	}
	core.Log.Debugf("Lifecycle", "Engine socket re-protected (fd=%d)", sock)
	return nil
}

// disable stops the engine unconditionally and releases the handle. A stop
// failure is reported but never prevents the transition.
func (c *Controller) disable(handle platform.TunnelHandle, session string) opResult {
	res := opResult{kind: opDisable, session: session}
	if err := c.deps.Engine.Stop(); err != nil {
		res.err = &core.OpError{Op: "disable", Kind: core.ErrEngineStopFailed, Err: err}
	}
	c.release(handle)
	return res
}

// teardown stops the engine and releases the interface after a failed enable.
func (c *Controller) teardown(handle platform.TunnelHandle) {
	if err := c.deps.Engine.Stop(); err != nil {
		core.Log.Warnf("Lifecycle", "Engine stop during teardown: %v", err)
	}
	c.release(handle)
}

func (c *Controller) release(handle platform.TunnelHandle) {
	if handle == nil {
		return
	}
	if err := handle.Close(); err != nil {
		core.Log.Warnf("Lifecycle", "Close interface %s: %v", handle.Name(), err)
	}
}
