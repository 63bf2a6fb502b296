// Package schedule arms per-group recurring deliveries. Each programmed group
// gets three calendar triggers (daily, weekly on Monday, monthly on the 1st)
// at the same time of day, installed on a robfig/cron runner.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/hazyhaar/fragwatch/fragwatch/internal/metrics"
	"github.com/hazyhaar/fragwatch/fragwatch/internal/store"
	"github.com/hazyhaar/fragwatch/fragwatch/internal/window"
)

// Trigger identifies one of a group's three calendar triggers.
type Trigger string

const (
	Daily   Trigger = "daily"
	Weekly  Trigger = "weekly"
	Monthly Trigger = "monthly"
)

// Triggers lists every trigger in install order.
var Triggers = []Trigger{Daily, Weekly, Monthly}

// Window is the window a trigger reports on.
func (t Trigger) Window() window.Kind {
	switch t {
	case Weekly:
		return window.PreviousWeek
	case Monthly:
		return window.PreviousMonth
	}
	return window.Today
}

func (t Trigger) spec(hour, minute int) string {
	switch t {
	case Weekly:
		return fmt.Sprintf("%d %d * * 1", minute, hour)
	case Monthly:
		return fmt.Sprintf("%d %d 1 * *", minute, hour)
	}
	return fmt.Sprintf("%d %d * * *", minute, hour)
}

// State is a group's scheduling state.
type State int

const (
	Unscheduled State = iota
	Scheduled
)

func (s State) String() string {
	if s == Scheduled {
		return "scheduled"
	}
	return "unscheduled"
}

var timeOfDay = regexp.MustCompile(`^([01]\d|2[0-3]):([0-5]\d)$`)

// ValidationError rejects a program call. Nothing is persisted or installed.
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("schedule: invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

// ParseTimeOfDay validates a 24-hour "HH:mm" string.
func ParseTimeOfDay(s string) (hour, minute int, err error) {
	m := timeOfDay.FindStringSubmatch(s)
	if m == nil {
		return 0, 0, &ValidationError{Field: "time_of_day", Value: s, Reason: "want 24-hour HH:mm"}
	}
	hour, _ = strconv.Atoi(m[1])
	minute, _ = strconv.Atoi(m[2])
	return hour, minute, nil
}

// Runner executes one tick for a group.
type Runner interface {
	RunTick(ctx context.Context, sc store.Schedule, trigger Trigger) error
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, sc store.Schedule, trigger Trigger) error

func (f RunnerFunc) RunTick(ctx context.Context, sc store.Schedule, trigger Trigger) error {
	return f(ctx, sc, trigger)
}

// Store persists schedules. *store.Store implements it.
type Store interface {
	PutSchedule(ctx context.Context, sc store.Schedule) (store.Schedule, error)
	DeleteSchedule(ctx context.Context, groupID string) error
	Schedules(ctx context.Context) ([]store.Schedule, error)
}

// Config configures the Manager.
type Config struct {
	// Location is the timezone triggers fire in. Default: time.Local.
	Location *time.Location
	// TickTimeout bounds one tick. Default: 15 minutes.
	TickTimeout time.Duration
	Logger      *slog.Logger
	Metrics     metrics.Recorder
}

func (c *Config) defaults() {
	if c.Location == nil {
		c.Location = time.Local
	}
	if c.TickTimeout <= 0 {
		c.TickTimeout = 15 * time.Minute
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Metrics == nil {
		c.Metrics = metrics.Nop{}
	}
}

type installed struct {
	sched   store.Schedule
	entries map[Trigger]cron.EntryID
}

// Manager owns every installed trigger. No other component starts or stops them.
type Manager struct {
	cfg    Config
	store  Store
	runner Runner
	cron   *cron.Cron

	mu     sync.Mutex
	groups map[string]*installed

	ctx    context.Context
	cancel context.CancelFunc
}

// NewManager returns a stopped Manager. Call Start to begin firing.
func NewManager(cfg Config, st Store, runner Runner) *Manager {
	cfg.defaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		cfg:    cfg,
		store:  st,
		runner: runner,
		cron:   cron.New(cron.WithLocation(cfg.Location)),
		groups: make(map[string]*installed),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start begins firing installed triggers.
func (m *Manager) Start() { m.cron.Start() }

// Stop halts the runner and cancels running ticks, waiting for them until ctx ends.
func (m *Manager) Stop(ctx context.Context) {
	done := m.cron.Stop()
	m.cancel()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

// Program validates, persists and (re)installs a group's triggers. A later
// call for the same group fully replaces the earlier one.
func (m *Manager) Program(ctx context.Context, groupID, channelRef, tod string) (store.Schedule, error) {
	groupID = strings.TrimSpace(groupID)
	if groupID == "" {
		return store.Schedule{}, &ValidationError{Field: "group_id", Value: groupID, Reason: "required"}
	}
	if strings.TrimSpace(channelRef) == "" {
		return store.Schedule{}, &ValidationError{Field: "channel_ref", Value: channelRef, Reason: "required"}
	}
	if _, _, err := ParseTimeOfDay(tod); err != nil {
		return store.Schedule{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	sc, err := m.store.PutSchedule(ctx, store.Schedule{GroupID: groupID, ChannelRef: channelRef, TimeOfDay: tod})
	if err != nil {
		return store.Schedule{}, fmt.Errorf("schedule: program %s: %w", groupID, err)
	}
	if err := m.installLocked(sc); err != nil {
		return store.Schedule{}, err
	}
	m.cfg.Logger.Info("schedule: programmed", "group", groupID, "channel", channelRef, "time", tod)
	return sc, nil
}

// Cancel removes a group's triggers and persisted row. Idempotent.
func (m *Manager) Cancel(ctx context.Context, groupID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.uninstallLocked(groupID)
	if err := m.store.DeleteSchedule(ctx, groupID); err != nil {
		return fmt.Errorf("schedule: cancel %s: %w", groupID, err)
	}
	m.cfg.Logger.Info("schedule: cancelled", "group", groupID)
	return nil
}

// Restore installs triggers for every persisted schedule without re-persisting.
// Rows with an unparseable time are logged and skipped.
func (m *Manager) Restore(ctx context.Context) (int, error) {
	rows, err := m.store.Schedules(ctx)
	if err != nil {
		return 0, fmt.Errorf("schedule: restore: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, sc := range rows {
		if err := m.installLocked(sc); err != nil {
			m.cfg.Logger.Warn("schedule: restore skipped", "group", sc.GroupID, "error", err)
			continue
		}
		n++
	}
	m.cfg.Logger.Info("schedule: restored", "groups", n)
	return n, nil
}

// State reports whether groupID has triggers installed.
func (m *Manager) State(groupID string) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.groups[groupID]; ok {
		return Scheduled
	}
	return Unscheduled
}

// Installed returns the schedule the group's triggers were built from.
func (m *Manager) Installed(groupID string) (store.Schedule, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.groups[groupID]
	if !ok {
		return store.Schedule{}, false
	}
	return g.sched, true
}

// Next returns each installed trigger's next firing time after t.
func (m *Manager) Next(groupID string, t time.Time) map[Trigger]time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.groups[groupID]
	if !ok {
		return nil
	}
	out := make(map[Trigger]time.Time, len(g.entries))
	for tr, id := range g.entries {
		out[tr] = m.cron.Entry(id).Schedule.Next(t)
	}
	return out
}

func (m *Manager) installLocked(sc store.Schedule) error {
	hour, minute, err := ParseTimeOfDay(sc.TimeOfDay)
	if err != nil {
		return err
	}
	m.uninstallLocked(sc.GroupID)

	g := &installed{sched: sc, entries: make(map[Trigger]cron.EntryID, len(Triggers))}
	for _, tr := range Triggers {
		tr := tr
		id, err := m.cron.AddFunc(tr.spec(hour, minute), func() { m.fire(sc, tr) })
		if err != nil {
			for _, id := range g.entries {
				m.cron.Remove(id)
			}
			return fmt.Errorf("schedule: install %s %s: %w", sc.GroupID, tr, err)
		}
		g.entries[tr] = id
	}
	m.groups[sc.GroupID] = g
	return nil
}

func (m *Manager) uninstallLocked(groupID string) {
	g, ok := m.groups[groupID]
	if !ok {
		return
	}
	for _, id := range g.entries {
		m.cron.Remove(id)
	}
	delete(m.groups, groupID)
}

// fire runs one tick. Errors and panics are logged; the trigger stays installed.
func (m *Manager) fire(sc store.Schedule, tr Trigger) {
	ctx, cancel := context.WithTimeout(m.ctx, m.cfg.TickTimeout)
	defer cancel()

	start := time.Now()
	ok := false
	defer func() {
		if r := recover(); r != nil {
			m.cfg.Logger.Error("schedule: tick panic", "group", sc.GroupID, "trigger", tr,
				"panic", r, "stack", string(debug.Stack()))
		}
		m.cfg.Metrics.Tick(string(tr), ok)
	}()

	if err := m.runner.RunTick(ctx, sc, tr); err != nil {
		m.cfg.Logger.Error("schedule: tick failed", "group", sc.GroupID, "trigger", tr,
			"duration", time.Since(start), "error", err)
		return
	}
	ok = true
	m.cfg.Logger.Info("schedule: tick done", "group", sc.GroupID, "trigger", tr, "duration", time.Since(start))
}
