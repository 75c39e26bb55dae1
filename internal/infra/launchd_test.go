package infra

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBootAgent(t *testing.T, configPath string) (*BootAgent, *fakeRunner) {
	t.Helper()
	dir := t.TempDir()
	runner := &fakeRunner{}
	agent := NewBootAgentWithDeps(
		filepath.Join(dir, "LaunchAgents"),
		filepath.Join(dir, "LaunchAgents", LaunchdLabel+".plist"),
		filepath.Join(dir, "logs"),
		configPath,
		runner,
	)
	return agent, runner
}

func TestBootAgent_Install(t *testing.T) {
	agent, runner := newTestBootAgent(t, "/etc/zenguard.yaml")

	assert.False(t, agent.IsInstalled())
	assert.False(t, agent.NeedsUpdate("/usr/local/bin/zenguard"))

	require.NoError(t, agent.Install("/usr/local/bin/zenguard"))
	assert.True(t, agent.IsInstalled())

	content, err := os.ReadFile(agent.PlistPath())
	require.NoError(t, err)
	assert.Contains(t, string(content), "<string>"+LaunchdLabel+"</string>")
	assert.Contains(t, string(content), "<string>/usr/local/bin/zenguard</string>")
	assert.Contains(t, string(content), "<string>boot</string>")
	assert.Contains(t, string(content), "<string>--start</string>")
	assert.Contains(t, string(content), "<string>/etc/zenguard.yaml</string>")

	assert.Equal(t, []string{"launchctl load " + agent.PlistPath()}, runner.Calls())
}

func TestBootAgent_NoConfigFlagWhenUnset(t *testing.T) {
	agent, _ := newTestBootAgent(t, "")
	require.NoError(t, agent.Install("/bin/zenguard"))

	content, err := os.ReadFile(agent.PlistPath())
	require.NoError(t, err)
	assert.NotContains(t, string(content), "--config")
}

func TestBootAgent_NeedsUpdate(t *testing.T) {
	agent, runner := newTestBootAgent(t, "")
	require.NoError(t, agent.Install("/old/zenguard"))

	assert.False(t, agent.NeedsUpdate("/old/zenguard"))
	assert.True(t, agent.NeedsUpdate("/new/zenguard"))

	require.NoError(t, agent.Update("/new/zenguard"))
	assert.False(t, agent.NeedsUpdate("/new/zenguard"))
	assert.Contains(t, runner.Calls(), "launchctl unload "+agent.PlistPath())
}

func TestBootAgent_Uninstall(t *testing.T) {
	agent, _ := newTestBootAgent(t, "")

	assert.NoError(t, agent.Uninstall(), "missing plist is fine")

	require.NoError(t, agent.Install("/bin/zenguard"))
	require.NoError(t, agent.Uninstall())
	assert.False(t, agent.IsInstalled())
}
