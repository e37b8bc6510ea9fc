package lifecycle

import (
	"context"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"secure-tunnel/internal/core"
)

// runSequence replays cmds (0 = START, 1 = STOP) against a fresh controller,
// waiting for each effective command to settle, and checks the observed state
// against a two-state model after every step.
func runSequence(cmds []int, provFails []bool) bool {
	prov := newFakeProvisioner()
	prov.failures = append([]bool(nil), provFails...)
	eng := newFakeEngine(9)
	h := newHarness(prov, eng, newFakeProtector())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { h.runCh <- h.ctrl.Run(ctx) }()

	model := core.StateInsecure
	expectMsgs := 0
	disables := 0
	failIdx := 0

	for _, c := range cmds {
		cmd := core.CommandStart
		if c == 1 {
			cmd = core.CommandStop
		}
		if err := h.ctrl.Submit(ctx, cmd); err != nil {
			return false
		}

		switch {
		case cmd == core.CommandStart && model == core.StateInsecure:
			fail := failIdx < len(provFails) && provFails[failIdx]
			failIdx++
			expectMsgs++
			if !fail {
				model = core.StateSecure
			}
		case cmd == core.CommandStop && model == core.StateSecure:
			expectMsgs++
			disables++
			model = core.StateInsecure
		default:
			continue // no-op, consumed in order before the next command
		}

		if !waitCount(h.rec, expectMsgs) {
			return false
		}
		if h.ctrl.State() != model {
			return false
		}
	}

	if err := h.ctrl.Submit(ctx, core.CommandExit); err != nil {
		return false
	}
	select {
	case <-h.ctrl.Done():
	case <-time.After(5 * time.Second):
		return false
	}

	wantStops := disables
	if model == core.StateSecure {
		wantStops++
	}
	if eng.StopCalls() != wantStops {
		return false
	}
	for _, handle := range prov.Handles() {
		if handle.closed.Load() != 1 {
			return false
		}
	}
	return h.ctrl.State() == core.StateInsecure && h.rec.Terminated() == 1
}

func waitCount(r *recorder, n int) bool {
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if len(r.Messages()) >= n {
			return len(r.Messages()) == n
		}
		time.Sleep(200 * time.Microsecond)
	}
	return false
}

func TestProperty_LifecycleMatchesModel(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	parameters.Rng.Seed(42) // Reproducible

	properties := gopter.NewProperties(parameters)

	// Property: state is SECURE iff the last successful enable has no later disable,
	// every handle is released and EXIT stops a live engine exactly once.
	properties.Property("state follows the two-state model", prop.ForAll(
		runSequence,
		gen.SliceOf(gen.IntRange(0, 1)),
		gen.SliceOf(gen.Bool()),
	))

	properties.TestingRun(t)
}
