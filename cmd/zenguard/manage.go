package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/eliteGoblin/focusd/zenguard/internal/domain"
	"github.com/eliteGoblin/focusd/zenguard/internal/infra"
	"github.com/eliteGoblin/focusd/zenguard/internal/usecase"
)

var classifyCmd = &cobra.Command{
	Use:   "classify <app-id> <allow|soft|hard>",
	Short: "Set how an app is treated",
	Long: `Sets the classification of an app:

  allow  never intercepted
  soft   a single hold before opening
  hard   reason, duration and a challenge before opening`,
	Args: cobra.ExactArgs(2),
	RunE: runClassify,
}

var appsCmd = &cobra.Command{
	Use:   "apps",
	Short: "List classified apps",
	RunE:  runApps,
}

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Manage focus schedules (soft apps become hard inside a window)",
}

var scheduleAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a focus window",
	RunE:  runScheduleAdd,
}

var scheduleListCmd = &cobra.Command{
	Use:   "list",
	Short: "List focus windows",
	RunE:  runScheduleList,
}

var scheduleRmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete a focus window",
	Args:  cobra.ExactArgs(1),
	RunE:  runScheduleRm,
}

var scheduleEnableCmd = &cobra.Command{
	Use:   "enable <id>",
	Short: "Enable a focus window",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return setScheduleEnabled(cmd, args[0], true) },
}

var scheduleDisableCmd = &cobra.Command{
	Use:   "disable <id>",
	Short: "Disable a focus window",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return setScheduleEnabled(cmd, args[0], false) },
}

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Inspect and manage active grants",
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List active grants",
	RunE:  runSessionList,
}

var sessionExtendCmd = &cobra.Command{
	Use:   "extend <app-id> <minutes>",
	Short: "Extend an active grant",
	Args:  cobra.ExactArgs(2),
	RunE:  runSessionExtend,
}

var sessionRevokeCmd = &cobra.Command{
	Use:   "revoke <app-id>",
	Short: "End a grant early",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionRevoke,
}

var sessionClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "End every grant",
	RunE:  runSessionClear,
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent grants",
	RunE:  runHistory,
}

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Read or change settings (protection, friction)",
}

var settingsGetCmd = &cobra.Command{
	Use:   "get [protection|friction]",
	Short: "Print settings",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runSettingsGet,
}

var settingsSetCmd = &cobra.Command{
	Use:   "set <protection|friction> <value>",
	Short: "Change a setting",
	Long: `Changes a setting:

  protection  on|off
  friction    LOW|MEDIUM|HIGH|EXTREME`,
	Args: cobra.ExactArgs(2),
	RunE: runSettingsSet,
}

var (
	appLabel      string
	scheduleName  string
	scheduleStart string
	scheduleEnd   string
	scheduleDays  string
	showAnalytics bool
)

func init() {
	classifyCmd.Flags().StringVar(&appLabel, "label", "", "Display name for the app")

	scheduleAddCmd.Flags().StringVar(&scheduleName, "name", "Focus", "Window name")
	scheduleAddCmd.Flags().StringVar(&scheduleStart, "start", "", "Start time HH:MM")
	scheduleAddCmd.Flags().StringVar(&scheduleEnd, "end", "", "End time HH:MM")
	scheduleAddCmd.Flags().StringVar(&scheduleDays, "days", "1,2,3,4,5,6,7", "Days, 1=Sunday ... 7=Saturday")
	_ = scheduleAddCmd.MarkFlagRequired("start")
	_ = scheduleAddCmd.MarkFlagRequired("end")

	historyCmd.Flags().BoolVar(&showAnalytics, "analytics", false, "Show top reasons and total minutes")

	scheduleCmd.AddCommand(scheduleAddCmd, scheduleListCmd, scheduleRmCmd, scheduleEnableCmd, scheduleDisableCmd)
	sessionCmd.AddCommand(sessionListCmd, sessionExtendCmd, sessionRevokeCmd, sessionClearCmd)
	settingsCmd.AddCommand(settingsGetCmd, settingsSetCmd)

	rootCmd.AddCommand(classifyCmd)
	rootCmd.AddCommand(appsCmd)
	rootCmd.AddCommand(scheduleCmd)
	rootCmd.AddCommand(sessionCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(settingsCmd)
}

// parseClass accepts the user-facing names and the stored color tags.
func parseClass(s string) (domain.Classification, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "allow", "green":
		return domain.ClassAllow, nil
	case "soft", "yellow":
		return domain.ClassSoft, nil
	case "hard", "red":
		return domain.ClassHard, nil
	default:
		return 0, fmt.Errorf("unknown classification %q (want allow, soft or hard)", s)
	}
}

// parseClock parses "HH:MM" on a 24 hour clock.
func parseClock(s string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid time %q (want HH:MM)", s)
	}
	return t.Hour(), t.Minute(), nil
}

// parseDayList is strict, unlike the stored-value decoder: any bad entry is an error.
func parseDayList(s string) ([]int, error) {
	var days []int
	seen := make(map[int]bool)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		d, err := strconv.Atoi(part)
		if err != nil || d < 1 || d > 7 {
			return nil, fmt.Errorf("invalid day %q (want 1-7, 1=Sunday)", part)
		}
		if !seen[d] {
			seen[d] = true
			days = append(days, d)
		}
	}
	if len(days) == 0 {
		return nil, errors.New("at least one day is required")
	}
	return days, nil
}

// parseSwitch accepts on/off as well as anything strconv.ParseBool does.
func parseSwitch(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "on", "enable", "enabled":
		return true, nil
	case "off", "disable", "disabled":
		return false, nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid value %q (want on or off)", s)
	}
	return v, nil
}

// parseLevel rejects unknown names instead of falling back to the default.
func parseLevel(s string) (domain.FrictionLevel, error) {
	level := domain.FrictionLevel(strings.ToUpper(strings.TrimSpace(s)))
	if domain.ParseFrictionLevel(s) != level {
		return "", fmt.Errorf("unknown friction level %q (want LOW, MEDIUM, HIGH or EXTREME)", s)
	}
	return level, nil
}

func formatClock(hour, minute int) string {
	return fmt.Sprintf("%02d:%02d", hour, minute)
}

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...)
}

func runClassify(cmd *cobra.Command, args []string) error {
	class, err := parseClass(args[1])
	if err != nil {
		return err
	}

	store, err := openStore(loadConfig())
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := cmd.Context()
	apps := store.Categories()
	app, err := apps.Get(ctx, args[0])
	switch {
	case errors.Is(err, domain.ErrNotFound):
		app = &domain.AppClassification{ID: args[0]}
	case err != nil:
		return err
	}
	app.Class = class
	if appLabel != "" {
		app.Label = appLabel
	}
	if err := apps.Upsert(ctx, *app); err != nil {
		return err
	}

	fmt.Printf("%s is now %s\n", args[0], strings.ToLower(classNames[class]))
	return nil
}

var classNames = map[domain.Classification]string{
	domain.ClassAllow: "ALLOW",
	domain.ClassSoft:  "SOFT",
	domain.ClassHard:  "HARD",
}

func runApps(cmd *cobra.Command, args []string) error {
	store, err := openStore(loadConfig())
	if err != nil {
		return err
	}
	defer store.Close()

	apps, err := store.Categories().List(cmd.Context())
	if err != nil {
		return err
	}
	if len(apps) == 0 {
		fmt.Println("No apps classified yet. Use 'zenguard classify <app-id> soft|hard'.")
		return nil
	}

	t := newTable("APP", "LABEL", "CLASS", "OPENS", "LAST USED")
	for _, app := range apps {
		if app.Hidden {
			continue
		}
		lastUsed := "-"
		if !app.LastUsed.IsZero() {
			lastUsed = app.LastUsed.Local().Format("2006-01-02 15:04")
		}
		t.Row(app.ID, app.Label, classNames[app.Class], strconv.Itoa(app.UsageCount), lastUsed)
	}
	fmt.Println(t)
	return nil
}

func runScheduleAdd(cmd *cobra.Command, args []string) error {
	startHour, startMinute, err := parseClock(scheduleStart)
	if err != nil {
		return err
	}
	endHour, endMinute, err := parseClock(scheduleEnd)
	if err != nil {
		return err
	}
	days, err := parseDayList(scheduleDays)
	if err != nil {
		return err
	}

	store, err := openStore(loadConfig())
	if err != nil {
		return err
	}
	defer store.Close()

	sch := domain.Schedule{
		Name:        scheduleName,
		StartHour:   startHour,
		StartMinute: startMinute,
		EndHour:     endHour,
		EndMinute:   endMinute,
		Enabled:     true,
		Days:        days,
	}
	id, err := store.Schedules().Save(cmd.Context(), sch)
	if err != nil {
		return err
	}

	fmt.Printf("Added schedule %d: %s %s-%s\n", id, sch.Name,
		formatClock(startHour, startMinute), formatClock(endHour, endMinute))
	if sch.WrapsMidnight() {
		fmt.Println("(window runs past midnight; days refer to the day it starts)")
	}
	return nil
}

func runScheduleList(cmd *cobra.Command, args []string) error {
	store, err := openStore(loadConfig())
	if err != nil {
		return err
	}
	defer store.Close()

	schedules, err := store.Schedules().List(cmd.Context())
	if err != nil {
		return err
	}
	if len(schedules) == 0 {
		fmt.Println("No schedules.")
		return nil
	}

	t := newTable("ID", "NAME", "WINDOW", "DAYS", "ENABLED")
	for _, s := range schedules {
		t.Row(
			strconv.FormatInt(s.ID, 10),
			s.Name,
			formatClock(s.StartHour, s.StartMinute)+"-"+formatClock(s.EndHour, s.EndMinute),
			domain.EncodeDays(s.Days),
			strconv.FormatBool(s.Enabled),
		)
	}
	fmt.Println(t)
	return nil
}

func parseScheduleID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid schedule id %q", s)
	}
	return id, nil
}

func runScheduleRm(cmd *cobra.Command, args []string) error {
	id, err := parseScheduleID(args[0])
	if err != nil {
		return err
	}

	store, err := openStore(loadConfig())
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Schedules().Delete(cmd.Context(), id); err != nil {
		return err
	}
	fmt.Printf("Deleted schedule %d\n", id)
	return nil
}

func setScheduleEnabled(cmd *cobra.Command, arg string, enabled bool) error {
	id, err := parseScheduleID(arg)
	if err != nil {
		return err
	}

	store, err := openStore(loadConfig())
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := cmd.Context()
	schedules := store.Schedules()
	sch, err := schedules.Get(ctx, id)
	if err != nil {
		return err
	}
	sch.Enabled = enabled
	if _, err := schedules.Save(ctx, *sch); err != nil {
		return err
	}

	state := "disabled"
	if enabled {
		state = "enabled"
	}
	fmt.Printf("Schedule %d %s\n", id, state)
	return nil
}

func runSessionList(cmd *cobra.Command, args []string) error {
	store, sessions, err := openSessions(loadConfig(), cliLogger())
	if err != nil {
		return err
	}
	defer store.Close()

	active, err := sessions.Active(cmd.Context())
	if err != nil {
		return err
	}
	if len(active) == 0 {
		fmt.Println("No active grants.")
		return nil
	}

	t := newTable("APP", "MINUTES", "REMAINING", "REASON")
	for _, sess := range active {
		t.Row(
			sess.AppID,
			strconv.Itoa(sess.DurationMinutes),
			sessions.Remaining(sess).Round(time.Second).String(),
			sess.Reason,
		)
	}
	fmt.Println(t)
	return nil
}

func runSessionExtend(cmd *cobra.Command, args []string) error {
	minutes, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("invalid minutes %q", args[1])
	}

	store, sessions, err := openSessions(loadConfig(), cliLogger())
	if err != nil {
		return err
	}
	defer store.Close()

	sess, err := sessions.Extend(cmd.Context(), args[0], minutes)
	if errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("no grant for %s", args[0])
	}
	if err != nil {
		return err
	}
	fmt.Printf("%s extended, %s left\n", sess.AppID, sessions.Remaining(sess).Round(time.Second))
	return nil
}

func runSessionRevoke(cmd *cobra.Command, args []string) error {
	store, sessions, err := openSessions(loadConfig(), cliLogger())
	if err != nil {
		return err
	}
	defer store.Close()

	if err := sessions.Revoke(cmd.Context(), args[0]); err != nil {
		return err
	}
	fmt.Printf("Revoked grant for %s\n", args[0])
	return nil
}

func runSessionClear(cmd *cobra.Command, args []string) error {
	store, sessions, err := openSessions(loadConfig(), cliLogger())
	if err != nil {
		return err
	}
	defer store.Close()

	if err := sessions.ClearAll(cmd.Context()); err != nil {
		return err
	}
	fmt.Println("All grants cleared")
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	store, sessions, err := openSessions(loadConfig(), cliLogger())
	if err != nil {
		return err
	}
	defer store.Close()
	ctx := cmd.Context()

	today, err := sessions.TodayCount(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Grants today: %d\n", today)

	if showAnalytics {
		return printAnalytics(cmd, sessions)
	}

	records, err := sessions.History(ctx)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("No grants yet.")
		return nil
	}

	t := newTable("WHEN", "APP", "KIND", "MINUTES", "REASON")
	for _, rec := range records {
		t.Row(
			rec.CreatedAt.Local().Format("2006-01-02 15:04"),
			rec.AppID,
			string(rec.Kind),
			strconv.Itoa(rec.DurationMinutes),
			rec.Reason,
		)
	}
	fmt.Println(t)
	return nil
}

func printAnalytics(cmd *cobra.Command, sessions *usecase.SessionService) error {
	a, err := sessions.Analytics(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Printf("Total mindful minutes: %d\n", a.TotalMindfulMinutes)
	if len(a.TopReasons) == 0 {
		return nil
	}
	t := newTable("REASON", "COUNT")
	for _, r := range a.TopReasons {
		t.Row(r.Reason, strconv.Itoa(r.Count))
	}
	fmt.Println(t)
	return nil
}

func readProtection(cmd *cobra.Command, store *infra.Store) bool {
	v, err := store.GetSetting(cmd.Context(), domain.SettingProtectionEnabled)
	if err != nil {
		return true
	}
	enabled, err := strconv.ParseBool(v)
	return err != nil || enabled
}

func runSettingsGet(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	level := cfg.Level()
	if v, err := store.GetSetting(cmd.Context(), domain.SettingFrictionLevel); err == nil {
		level = domain.ParseFrictionLevel(v)
	}
	protection := "off"
	if readProtection(cmd, store) {
		protection = "on"
	}

	key := ""
	if len(args) == 1 {
		key = args[0]
	}
	switch key {
	case "":
		fmt.Printf("protection: %s\nfriction: %s\n", protection, level)
	case "protection":
		fmt.Println(protection)
	case "friction":
		fmt.Println(level)
	default:
		return fmt.Errorf("unknown setting %q (want protection or friction)", key)
	}
	return nil
}

func runSettingsSet(cmd *cobra.Command, args []string) error {
	var key, value string
	switch args[0] {
	case "protection":
		on, err := parseSwitch(args[1])
		if err != nil {
			return err
		}
		key, value = domain.SettingProtectionEnabled, strconv.FormatBool(on)
	case "friction":
		level, err := parseLevel(args[1])
		if err != nil {
			return err
		}
		key, value = domain.SettingFrictionLevel, string(level)
	default:
		return fmt.Errorf("unknown setting %q (want protection or friction)", args[0])
	}

	store, err := openStore(loadConfig())
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.SetSetting(cmd.Context(), key, value); err != nil {
		return err
	}
	fmt.Printf("%s set to %s\n", args[0], args[1])
	return nil
}
