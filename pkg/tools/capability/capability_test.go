package capability_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/embercore/ember/pkg/tools/capability"
)

func TestAmbientDisallowsWrites(t *testing.T) {
	p := capability.NewPolicy(nil)
	d := p.Resolve(capability.Ambient, "write_file")
	assert.False(t, d.Allowed)
}

func TestAmbientAllowsReadWithApproval(t *testing.T) {
	p := capability.NewPolicy(nil)
	d := p.Resolve(capability.Ambient, "read_file")
	assert.True(t, d.Allowed)
	assert.Equal(t, capability.AlwaysAsk, d.Mode)
}

func TestPrivateChatAllowsBecauseNotAutonomous(t *testing.T) {
	p := capability.NewPolicy(nil)
	d := p.Resolve(capability.PrivateChat, "shell")
	assert.True(t, d.Allowed)
	assert.Equal(t, capability.AlwaysAllow, d.Mode)
}

func TestDreamRestrictsToAllowList(t *testing.T) {
	p := capability.NewPolicy(nil)
	assert.True(t, p.Resolve(capability.Dream, "search_memory").Allowed)
	assert.False(t, p.Resolve(capability.Dream, "shell").Allowed)
}

func TestOverridesExtendDisallow(t *testing.T) {
	p := capability.NewPolicy(map[capability.SessionContext]capability.Overrides{
		capability.Heartbeat: {Disallow: []string{"shell"}},
	})
	assert.False(t, p.Resolve(capability.Heartbeat, "shell").Allowed)
}

func TestSetToolModeForcesAlwaysAsk(t *testing.T) {
	p := capability.NewPolicy(nil)
	p.SetToolMode("shell", capability.AlwaysAsk)
	d := p.Resolve(capability.Heartbeat, "shell")
	assert.True(t, d.Allowed)
	assert.Equal(t, capability.AlwaysAsk, d.Mode)
}

func TestNormalizeCaseAndWhitespace(t *testing.T) {
	p := capability.NewPolicy(map[capability.SessionContext]capability.Overrides{
		capability.Ambient: {Disallow: []string{"  Shell  "}},
	})
	assert.False(t, p.Resolve(capability.Ambient, "shell").Allowed)
}

func TestAllowOverrideNarrowsUnrestrictedContext(t *testing.T) {
	p := capability.NewPolicy(map[capability.SessionContext]capability.Overrides{
		capability.PrivateChat: {Allow: []string{"shell", "shell", ""}},
	})
	assert.True(t, p.Resolve(capability.PrivateChat, "shell").Allowed)
	d := p.Resolve(capability.PrivateChat, "write_file")
	assert.False(t, d.Allowed)
}
