package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/eliteGoblin/focusd/zenguard/internal/config"
	"github.com/eliteGoblin/focusd/zenguard/internal/daemon"
	"github.com/eliteGoblin/focusd/zenguard/internal/domain"
	"github.com/eliteGoblin/focusd/zenguard/internal/friction"
	"github.com/eliteGoblin/focusd/zenguard/internal/infra"
	"github.com/eliteGoblin/focusd/zenguard/internal/policy"
	"github.com/eliteGoblin/focusd/zenguard/internal/presenter"
	"github.com/eliteGoblin/focusd/zenguard/internal/usecase"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the engine in the foreground",
	Long: `Reads foreground-change events, one per line as "appID<TAB>windowClass",
and shows interventions in this terminal. Events come from stdin unless
--events names a file or named pipe.`,
	RunE: runForeground,
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start protection (launches supervisor and guardian daemons)",
	Long: `Starts both the supervisor and guardian daemons.
The supervisor evaluates events from the configured named pipe.
The guardian monitors the supervisor and restarts it if killed.
They monitor each other for resilience.

This also installs a boot agent that clears stale grants at login.`,
	RunE: runStart,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check protection status",
	RunE:  runStatus,
}

var bootCmd = &cobra.Command{
	Use:   "boot",
	Short: "Clear grants left over from a previous boot",
	Long: `Grants are measured on the since-boot clock, so they cannot survive a
reboot. The boot agent runs this at login; --start also launches the daemons.`,
	RunE: runBoot,
}

// Hidden daemon command - used for self-exec when spawning daemons
var daemonCmd = &cobra.Command{
	Use:    "daemon",
	Hidden: true,
	RunE:   runDaemon,
}

var (
	eventsPath string
	daemonRole string
	bootStart  bool
)

func init() {
	runCmd.Flags().StringVar(&eventsPath, "events", "-", "Event input: file, named pipe, or - for stdin")
	daemonCmd.Flags().StringVar(&daemonRole, "role", "", "Daemon role (supervisor/guardian)")
	bootCmd.Flags().BoolVar(&bootStart, "start", false, "Start the daemons after cleanup")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(bootCmd)
	rootCmd.AddCommand(daemonCmd)
}

// supervisorOptions distinguishes the detached daemon from a foreground run.
type supervisorOptions struct {
	events   string
	detached bool
	daemon   domain.Daemon
	execPath string
}

func engineConfig(cfg config.Config) usecase.EngineConfig {
	return usecase.EngineConfig{
		Debounce:         cfg.Engine.Debounce,
		SoftHold:         cfg.Engine.SoftHold,
		SoftGrantMinutes: cfg.Engine.SoftGrantMinutes,
		DefaultLevel:     cfg.Level(),
	}
}

func watchdogConfig(cfg config.Config) daemon.WatchdogConfig {
	return daemon.WatchdogConfig{
		Interval:          cfg.Watchdog.Interval,
		StaleLock:         cfg.Watchdog.StaleLock,
		HeartbeatInterval: cfg.Watchdog.Heartbeat,
		RestartEvery:      cfg.Guardian.RestartEvery,
		RestartBurst:      cfg.Guardian.RestartBurst,
	}
}

func guardianConfig(cfg config.Config) daemon.GuardianConfig {
	return daemon.GuardianConfig{
		CheckInterval:     cfg.Guardian.CheckInterval,
		HeartbeatInterval: cfg.Watchdog.Heartbeat,
		RestartEvery:      cfg.Guardian.RestartEvery,
		RestartBurst:      cfg.Guardian.RestartBurst,
	}
}

// runSupervisor wires the engine to the event source and runs it with the
// watchdog and config watcher until ctx ends or the input is exhausted.
func runSupervisor(ctx context.Context, cfg config.Config, opts supervisorOptions, logger *zap.Logger) error {
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	clock, err := infra.NewMonotonicClock()
	if err != nil {
		return fmt.Errorf("failed to read boot clock: %w", err)
	}

	notifier := infra.NewDesktopNotifier(logger)
	sessions := usecase.NewSessionService(store.Sessions(), store.History(), clock, logger)
	engine := usecase.NewEngine(engineConfig(cfg), usecase.EngineDeps{
		Categories: store.Categories(),
		Schedules:  store.Schedules(),
		Settings:   store,
		Sessions:   sessions,
		Ignore:     policy.NewConfiguredRegistry(cfg.SelfID, cfg.Ignore.Extra),
		Guard:      policy.NewSettingsGuard(cfg.Engine.SettingsApp, cfg.Engine.SensitiveWindows),
		Friction:   friction.NewDefault(),
		Presenter:  presenter.NewTerminal(logger),
		Overlay:    presenter.NewTerminalOverlay(os.Stdout),
		Notifier:   notifier,
		Clock:      clock,
	}, logger)

	if _, err := daemon.NewBootHook(store, sessions, engine, clock.BootID, logger).Run(ctx); err != nil {
		logger.Warn("boot cleanup failed", zap.Error(err))
	}

	if opts.detached {
		if err := infra.EnsureFIFO(opts.events); err != nil {
			return err
		}
	}
	input, err := infra.OpenEventInput(opts.events)
	if err != nil {
		return err
	}
	defer input.Close()
	source := infra.NewLineSource(input, logger)

	ctx, stop := context.WithCancel(ctx)
	defer stop()

	if err := engine.Start(ctx); err != nil {
		stop()
		engine.Wait()
		return fmt.Errorf("failed to start engine: %w", err)
	}

	deps := daemon.WatchdogDeps{
		Sessions: sessions,
		Lock:     engine,
		Events:   source,
		Notifier: notifier,
	}
	if opts.detached {
		deps.Registry = infra.NewDaemonTable(store, infra.NewProcessManager())
		deps.BootAgent = infra.NewBootAgent(infra.DetectExecMode(), cfg.LogDir, cfg.Path())
		deps.ExecPath = opts.execPath
		deps.Spawner = daemon.NewSelfExec(opts.execPath, cfg.Path())
	}
	watchdog := daemon.NewWatchdog(watchdogConfig(cfg), deps, opts.daemon, logger)

	onConfig := func(c config.Config) {
		if err := engine.SetFrictionLevel(ctx, c.Level()); err != nil {
			logger.Warn("failed to apply friction level", zap.Error(err))
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := source.Run(gctx, func(ctx context.Context, appID, windowClass string) {
			outcome := engine.Evaluate(ctx, appID, windowClass)
			logger.Debug("event evaluated",
				zap.String("app", appID),
				zap.String("window", windowClass),
				zap.String("outcome", string(outcome)))
		})
		if err != nil || opts.detached {
			// A detached supervisor stays up; the watchdog reports the outage.
			return err
		}
		waitIdle(gctx, engine)
		stop()
		return nil
	})
	g.Go(func() error {
		return ignoreCanceled(watchdog.Run(gctx))
	})
	g.Go(func() error {
		return runConfigWatcher(gctx, config.NewWatcher(cfg.Path(), onConfig, logger), logger)
	})

	err = g.Wait()
	stop()
	engine.Wait()
	return err
}

type configRunner interface {
	Run(ctx context.Context) error
}

// runConfigWatcher never fails the supervisor; without the watcher config
// changes only apply after a restart.
func runConfigWatcher(ctx context.Context, w configRunner, logger *zap.Logger) error {
	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("config watcher stopped, changes apply after restart", zap.Error(err))
	}
	return nil
}

// waitIdle blocks while an intervention is on screen.
func waitIdle(ctx context.Context, engine *usecase.Engine) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for engine.LockHeld() {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func runForeground(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	logger := createLogger(cfg)
	defer func() { _ = logger.Sync() }()

	ctx, cancel := signalContext()
	defer cancel()

	fmt.Fprintf(os.Stderr, "zenguard running, logging to %s\n", cfg.LogDir)
	return runSupervisor(ctx, cfg, supervisorOptions{events: eventsPath}, logger)
}

func runDaemon(cmd *cobra.Command, args []string) error {
	if daemonRole == "" {
		return fmt.Errorf("--role is required")
	}

	cfg := loadConfig()
	logger := createLogger(cfg).With(zap.String("role", daemonRole))
	defer func() { _ = logger.Sync() }()

	execPath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}

	role := domain.DaemonRole(daemonRole)
	d := domain.Daemon{
		PID:        os.Getpid(),
		Role:       role,
		StartedAt:  time.Now(),
		AppVersion: Version,
	}

	ctx, cancel := signalContext()
	defer cancel()

	switch role {
	case domain.RoleSupervisor:
		return runSupervisor(ctx, cfg, supervisorOptions{
			events:   cfg.Events,
			detached: true,
			daemon:   d,
			execPath: execPath,
		}, logger)

	case domain.RoleGuardian:
		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		guardian := daemon.NewGuardian(
			guardianConfig(cfg),
			infra.NewDaemonTable(store, infra.NewProcessManager()),
			daemon.NewSelfExec(execPath, cfg.Path()),
			d,
			logger,
		)
		return ignoreCanceled(guardian.Run(ctx))

	default:
		return fmt.Errorf("unknown role: %s", role)
	}
}

// daemonsRunning reports whether both daemons are alive.
func daemonsRunning(store *infra.Store) (supervisor, guardian bool) {
	pm := infra.NewProcessManager()
	entry, err := infra.NewDaemonTable(store, pm).GetAll()
	if err != nil || entry == nil {
		return false, false
	}
	return entry.SupervisorPID != 0 && pm.IsRunning(entry.SupervisorPID),
		entry.GuardianPID != 0 && pm.IsRunning(entry.GuardianPID)
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	execMode := infra.DetectExecMode()

	fmt.Printf("Execution mode: %s\n", execMode.Mode)

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	supervisorAlive, guardianAlive := daemonsRunning(store)
	store.Close()
	if supervisorAlive && guardianAlive {
		fmt.Println("zenguard is already running (fully protected)")
		return nil
	}

	execPath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}

	if err := infra.EnsureFIFO(cfg.Events); err != nil {
		return err
	}

	agent := infra.NewBootAgent(execMode, cfg.LogDir, cfg.Path())
	if !agent.IsInstalled() {
		if err := agent.Install(execPath); err != nil {
			fmt.Printf("Warning: Could not install boot agent: %v\n", err)
			fmt.Println("         (zenguard will still run, but grants are only cleared by the daemons)")
		} else {
			fmt.Printf("Installed boot agent at %s\n", agent.PlistPath())
		}
	}

	spawner := daemon.NewSelfExec(execPath, cfg.Path())
	switch {
	case !supervisorAlive && !guardianAlive:
		err = daemon.StartBoth(spawner)
	case !supervisorAlive:
		err = spawner.Start(domain.RoleSupervisor)
	default:
		err = spawner.Start(domain.RoleGuardian)
	}
	if err != nil {
		return fmt.Errorf("failed to start daemons: %w", err)
	}

	// Wait a moment for daemons to register
	time.Sleep(500 * time.Millisecond)

	fmt.Println("\n=== zenguard Started ===")
	fmt.Printf("Binary: %s\n", execPath)
	fmt.Printf("Events: %s\n", cfg.Events)
	fmt.Printf("Logs:   %s\n", cfg.LogDir)
	fmt.Println("\nDaemons are running in the background.")
	fmt.Println("They will restart automatically if killed.")
	fmt.Println("========================")
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	store, sessions, err := openSessions(cfg, cliLogger())
	if err != nil {
		return err
	}
	defer store.Close()
	ctx := cmd.Context()

	fmt.Println("\n=== zenguard Status ===")

	supervisorAlive, guardianAlive := daemonsRunning(store)
	switch {
	case supervisorAlive && guardianAlive:
		fmt.Println("Status: RUNNING (fully protected)")
	case supervisorAlive || guardianAlive:
		fmt.Println("Status: DEGRADED (partial protection)")
		if !supervisorAlive {
			fmt.Println("        Supervisor is down (will be restarted by guardian)")
		}
		if !guardianAlive {
			fmt.Println("        Guardian is down (will be restarted by supervisor)")
		}
	default:
		fmt.Println("Status: NOT RUNNING")
		fmt.Println("\nRun 'zenguard start' to enable protection.")
	}

	entry, _ := infra.NewDaemonTable(store, infra.NewProcessManager()).GetAll()
	if entry != nil && entry.LastHeartbeat > 0 {
		lastBeat := time.Unix(entry.LastHeartbeat, 0)
		fmt.Printf("Last heartbeat: %s ago\n", time.Since(lastBeat).Round(time.Second))
	}

	protection := "OFF"
	if readProtection(cmd, store) {
		protection = "on"
	}
	level := cfg.Level()
	if v, err := store.GetSetting(ctx, domain.SettingFrictionLevel); err == nil {
		level = domain.ParseFrictionLevel(v)
	}
	fmt.Printf("\nProtection: %s\n", protection)
	fmt.Printf("Friction level: %s\n", level)

	agent := infra.NewBootAgent(infra.DetectExecMode(), cfg.LogDir, cfg.Path())
	if agent.IsInstalled() {
		fmt.Println("Boot agent: installed")
	} else {
		fmt.Println("Boot agent: missing")
	}

	active, err := sessions.Active(ctx)
	if err != nil {
		return err
	}
	today, err := sessions.TodayCount(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Active grants: %d\n", len(active))
	fmt.Printf("Grants today: %d\n", today)
	fmt.Println()
	fmt.Println(exemptionsTable(cfg))
	fmt.Println("=======================")
	return nil
}

// exemptionsTable lists what the engine never intercepts and the settings
// surface it guards.
func exemptionsTable(cfg config.Config) *table.Table {
	t := newTable("EXEMPT", "PREFIXES")
	for _, p := range policy.NewConfiguredRegistry(cfg.SelfID, cfg.Ignore.Extra).GetAll() {
		t.Row(p.Name(), strings.Join(p.Prefixes(), ", "))
	}
	guard := policy.NewSettingsGuard(cfg.Engine.SettingsApp, cfg.Engine.SensitiveWindows)
	t.Row("Settings guard", guard.SettingsID()+" ("+strings.Join(cfg.Engine.SensitiveWindows, ", ")+")")
	return t
}

func runBoot(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	logger := createLogger(cfg)
	defer func() { _ = logger.Sync() }()

	store, sessions, err := openSessions(cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	bootID, err := infra.CurrentBootID()
	if err != nil {
		return fmt.Errorf("failed to read boot time: %w", err)
	}
	cleaned, err := daemon.NewBootHook(store, sessions, nil, func() int64 { return bootID }, logger).Run(cmd.Context())
	if err != nil {
		return err
	}
	if cleaned {
		fmt.Println("Cleared grants from the previous boot")
	}

	if !bootStart {
		return nil
	}
	if supervisorAlive, guardianAlive := daemonsRunning(store); supervisorAlive || guardianAlive {
		return nil
	}
	execPath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}
	if err := infra.EnsureFIFO(cfg.Events); err != nil {
		return err
	}
	return daemon.StartBoth(daemon.NewSelfExec(execPath, cfg.Path()))
}
