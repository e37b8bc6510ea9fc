package status

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"secure-tunnel/internal/core"
)

func TestBuildIndicatorInsecure(t *testing.T) {
	ind := BuildIndicator(core.StateInsecure, Options{})

	assert.Equal(t, DefaultTitle, ind.Title)
	assert.Equal(t, IconInsecure, ind.Icon)
	assert.Contains(t, ind.Message, "Unsecured")
	require.Len(t, ind.Actions, 2)
	assert.Equal(t, "start", ind.Actions[0].Key)
	assert.Equal(t, "exit", ind.Actions[1].Key)
}

func TestBuildIndicatorSecure(t *testing.T) {
	ind := BuildIndicator(core.StateSecure, Options{Title: "Office VPN"})

	assert.Equal(t, "Office VPN", ind.Title)
	assert.Equal(t, IconSecure, ind.Icon)
	assert.Contains(t, ind.Message, "Secured")
	require.Len(t, ind.Actions, 2)
	assert.Equal(t, "stop", ind.Actions[0].Key)
	assert.Equal(t, "exit", ind.Actions[1].Key)
}

func TestIndicatorActionsParseAsCommands(t *testing.T) {
	for _, state := range []core.LifecycleState{core.StateInsecure, core.StateSecure} {
		for _, a := range BuildIndicator(state, Options{}).Actions {
			_, err := core.ParseCommand(a.Key)
			assert.NoError(t, err, "action %q in state %s", a.Key, state)
		}
	}
}

func TestBuildIndicatorIsPure(t *testing.T) {
	assert.Equal(t, BuildIndicator(core.StateSecure, Options{}), BuildIndicator(core.StateSecure, Options{}))
}
