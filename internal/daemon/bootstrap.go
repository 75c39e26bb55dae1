package daemon

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"github.com/eliteGoblin/focusd/zenguard/internal/domain"
)

// Spawner starts a detached daemon process for a role.
type Spawner interface {
	Start(role domain.DaemonRole) error
}

// SelfExec spawns daemons by re-executing the zenguard binary with the
// hidden "daemon" command.
type SelfExec struct {
	execPath   string
	configPath string
}

// NewSelfExec creates a spawner for the binary at execPath. An empty
// execPath means the running executable.
func NewSelfExec(execPath, configPath string) *SelfExec {
	return &SelfExec{execPath: execPath, configPath: configPath}
}

// Args returns the command line a daemon of role is started with.
func (s *SelfExec) Args(role domain.DaemonRole) []string {
	args := []string{"daemon", "--role", string(role)}
	if s.configPath != "" {
		args = append(args, "--config", s.configPath)
	}
	return args
}

// Start spawns the daemon. The child is detached from the parent process
// (runs independently) and survives the parent exiting.
func (s *SelfExec) Start(role domain.DaemonRole) error {
	executable := s.execPath
	if executable == "" {
		var err error
		if executable, err = os.Executable(); err != nil {
			return fmt.Errorf("failed to get executable path: %w", err)
		}
	}

	cmd := exec.Command(executable, s.Args(role)...)
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid: true, // new session, no controlling terminal
	}
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start %s daemon: %w", role, err)
	}
	// Reap the child if it exits while we are still alive.
	go func() { _ = cmd.Wait() }()
	return nil
}

// StartBoth starts the supervisor and then its guardian.
func StartBoth(sp Spawner) error {
	if err := sp.Start(domain.RoleSupervisor); err != nil {
		return err
	}
	return sp.Start(domain.RoleGuardian)
}

var _ Spawner = (*SelfExec)(nil)
