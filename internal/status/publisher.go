package status

import (
	"context"
	"sync"

	"secure-tunnel/internal/core"
)

// Publisher keeps the indicator in sync with committed state changes.
// Bus handlers only record the latest state; rendering happens in Run so a
// slow renderer never blocks the controller.
type Publisher struct {
	opts     Options
	renderer Renderer
	commands chan core.Command

	mu      sync.Mutex
	latest  core.LifecycleState
	dirty   bool
	cleared bool
	kick    chan struct{}
}

// NewPublisher subscribes to bus and renders through r.
func NewPublisher(bus *core.EventBus, r Renderer, opts Options) *Publisher {
	p := &Publisher{
		opts:     opts,
		renderer: r,
		commands: make(chan core.Command, 4),
		latest:   core.StateInsecure,
		dirty:    true,
		kick:     make(chan struct{}, 1),
	}
	p.kick <- struct{}{}
	bus.Subscribe(p.onEvent, core.EventStateChanged, core.EventTerminated)
	return p
}

func (p *Publisher) onEvent(e core.Event) {
	p.mu.Lock()
	switch e.Type {
	case core.EventStateChanged:
		if sp, ok := e.Payload.(core.StatePayload); ok {
			p.latest = sp.NewState
			p.dirty = true
		}
	case core.EventTerminated:
		p.cleared = true
	}
	p.mu.Unlock()

	select {
	case p.kick <- struct{}{}:
	default:
	}
}

// Commands delivers commands triggered from indicator actions.
func (p *Publisher) Commands() <-chan core.Command {
	return p.commands
}

// Run renders state changes and translates indicator actions until ctx is
// cancelled or the controller terminates. The indicator is cleared on return.
func (p *Publisher) Run(ctx context.Context) error {
	var actions <-chan string
	if src, ok := p.renderer.(ActionSource); ok {
		actions = src.Actions()
	}
	defer p.clear()

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-p.kick:
			p.mu.Lock()
			state, dirty, cleared := p.latest, p.dirty, p.cleared
			p.dirty = false
			p.mu.Unlock()
			if cleared {
				return nil
			}
			if dirty {
				if err := p.renderer.Render(BuildIndicator(state, p.opts)); err != nil {
					core.Log.Warnf("Status", "Render %s indicator: %v", state, err)
				}
			}

		case key, ok := <-actions:
			if !ok {
				actions = nil
				continue
			}
			cmd, err := core.ParseCommand(key)
			if err != nil {
				core.Log.Warnf("Status", "Ignoring indicator action: %v", err)
				continue
			}
			core.Log.Infof("Status", "Indicator action: %s", cmd)
			select {
			case p.commands <- cmd:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

func (p *Publisher) clear() {
	if err := p.renderer.Clear(); err != nil {
		core.Log.Debugf("Status", "Clear indicator: %v", err)
	}
}
