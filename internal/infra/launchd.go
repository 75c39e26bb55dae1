package infra

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"text/template"

	"github.com/eliteGoblin/focusd/zenguard/internal/domain"
)

// Boot agent plist. launchd runs "zenguard boot --start" at load, which
// clears sessions from a previous boot and then spawns the daemons.
const bootAgentTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
    <key>Label</key>
    <string>{{.Label}}</string>

    <key>ProgramArguments</key>
    <array>
        <string>{{.ExecutablePath}}</string>
        <string>boot</string>
        <string>--start</string>
{{- if .ConfigPath}}
        <string>--config</string>
        <string>{{.ConfigPath}}</string>
{{- end}}
    </array>

    <key>RunAtLoad</key>
    <true/>

    <key>StandardOutPath</key>
    <string>{{.LogPath}}</string>

    <key>StandardErrorPath</key>
    <string>{{.ErrorLogPath}}</string>

    <key>ProcessType</key>
    <string>Background</string>
</dict>
</plist>`

type plistConfig struct {
	Label          string
	ExecutablePath string
	ConfigPath     string
	LogPath        string
	ErrorLogPath   string
}

// BootAgent manages the launchd plist that runs the boot hook at login.
type BootAgent struct {
	plistDir   string
	plistPath  string
	logDir     string
	configPath string
	runner     CommandRunner
}

// NewBootAgent creates a boot agent for the detected exec mode.
func NewBootAgent(mode *ExecModeConfig, logDir, configPath string) *BootAgent {
	return NewBootAgentWithDeps(mode.PlistDir, mode.PlistPath, logDir, configPath, &RealCommandRunner{})
}

// NewBootAgentWithDeps creates a boot agent with explicit paths (for testing).
func NewBootAgentWithDeps(plistDir, plistPath, logDir, configPath string, runner CommandRunner) *BootAgent {
	return &BootAgent{
		plistDir:   plistDir,
		plistPath:  plistPath,
		logDir:     logDir,
		configPath: configPath,
		runner:     runner,
	}
}

// PlistPath returns the plist file path.
func (a *BootAgent) PlistPath() string {
	return a.plistPath
}

func (a *BootAgent) content(execPath string) ([]byte, error) {
	cfg := plistConfig{
		Label:          LaunchdLabel,
		ExecutablePath: execPath,
		ConfigPath:     a.configPath,
		LogPath:        filepath.Join(a.logDir, "boot.log"),
		ErrorLogPath:   filepath.Join(a.logDir, "boot.error.log"),
	}

	tmpl, err := template.New("plist").Parse(bootAgentTemplate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse plist template: %w", err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, cfg); err != nil {
		return nil, fmt.Errorf("failed to execute plist template: %w", err)
	}
	return buf.Bytes(), nil
}

// IsInstalled checks if the plist exists.
func (a *BootAgent) IsInstalled() bool {
	_, err := os.Stat(a.plistPath)
	return err == nil
}

// NeedsUpdate reports whether an installed plist differs from the expected one.
func (a *BootAgent) NeedsUpdate(execPath string) bool {
	if !a.IsInstalled() {
		return false
	}
	current, err := os.ReadFile(a.plistPath)
	if err != nil {
		return true
	}
	expected, err := a.content(execPath)
	if err != nil {
		return true
	}
	return !bytes.Equal(current, expected)
}

// Install writes and loads the plist.
func (a *BootAgent) Install(execPath string) error {
	if err := a.write(execPath); err != nil {
		return err
	}
	return a.runner.Run(context.Background(), "launchctl", "load", a.plistPath)
}

// Update rewrites the plist and reloads it.
func (a *BootAgent) Update(execPath string) error {
	_ = a.runner.Run(context.Background(), "launchctl", "unload", a.plistPath)
	return a.Install(execPath)
}

// Uninstall unloads and removes the plist.
func (a *BootAgent) Uninstall() error {
	_ = a.runner.Run(context.Background(), "launchctl", "unload", a.plistPath)
	if err := os.Remove(a.plistPath); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (a *BootAgent) write(execPath string) error {
	if err := os.MkdirAll(a.plistDir, 0755); err != nil {
		return fmt.Errorf("failed to create plist dir: %w", err)
	}
	content, err := a.content(execPath)
	if err != nil {
		return err
	}
	if err := os.WriteFile(a.plistPath, content, 0644); err != nil {
		return fmt.Errorf("failed to write plist: %w", err)
	}
	return nil
}

var _ domain.BootAgent = (*BootAgent)(nil)
