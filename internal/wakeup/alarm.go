// Package wakeup implements the daily wakeup alarm: scheduling the next
// fire instant, gating execution on presence, and running the light and
// music fade sequences.
package wakeup

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"wakeupd/internal/clock"
	"wakeupd/internal/ha"

	"go.uber.org/zap"
)

const (
	// defaultRunPollInterval bounds how long a new trigger waits between
	// checks for the previous run to exit.
	defaultRunPollInterval = 500 * time.Millisecond
)

// Settings wires an Alarm to its Home Assistant entities and carries the
// initial configuration.
type Settings struct {
	// LightEntity is the light to fade up. Empty disables the light fade.
	LightEntity string
	// PlayerEntity is the media player to ramp. Empty disables music.
	PlayerEntity string
	// PersonEntity is the tracked person for the presence gate.
	PersonEntity string
	// RequireHome gates scheduled runs on PersonEntity being "home".
	RequireHome bool
	// StatusHelper is the input helper name prefix observable state is
	// mirrored into. Empty disables mirroring.
	StatusHelper string
	// PlaylistOptions lists the playlist ids offered to the frontend.
	PlaylistOptions []string
	// Config is the initial alarm configuration.
	Config Config
}

// Alarm is a single wakeup schedule. It owns its configuration and run
// state; all mutation goes through its methods.
type Alarm struct {
	haClient ha.HAClient
	clk      clock.Clock
	logger   *zap.Logger
	readOnly bool
	location *time.Location

	lightEntity     string
	playerEntity    string
	statusHelper    string
	playlistOptions []string

	mu           sync.Mutex
	cfg          Config
	personEntity string
	requireHome  bool
	state        RunState
	nextFire     time.Time
	timer        clock.Timer
	running      bool
	// triggerSeq numbers StartRun calls so that when several triggers
	// wait on an in-flight run, only the newest one proceeds.
	triggerSeq uint64

	// cancelRequested is polled by the fade sequencers at every step and
	// sleep; it is only meaningful while a run is in flight.
	cancelRequested atomic.Bool

	// tick is the wall-clock length of one ramp second. Tests shorten it
	// to run fades in real time without waiting.
	tick         time.Duration
	pollInterval time.Duration
}

// NewAlarm creates a wakeup alarm. It does not arm the schedule; call
// Reschedule once wiring is complete.
func NewAlarm(haClient ha.HAClient, clk clock.Clock, settings Settings, logger *zap.Logger, readOnly bool, location *time.Location) *Alarm {
	if location == nil {
		location = time.Local
	}
	return &Alarm{
		haClient:        haClient,
		clk:             clk,
		logger:          logger.Named("wakeup"),
		readOnly:        readOnly,
		location:        location,
		lightEntity:     settings.LightEntity,
		playerEntity:    settings.PlayerEntity,
		personEntity:    settings.PersonEntity,
		requireHome:     settings.RequireHome,
		statusHelper:    settings.StatusHelper,
		playlistOptions: settings.PlaylistOptions,
		cfg:             settings.Config,
		state:           StateDisarmed,
		tick:            time.Second,
		pollInterval:    defaultRunPollInterval,
	}
}

// Reschedule computes the next fire instant from the current config and
// arms a one-shot timer for it. Any previously scheduled fire is cancelled
// first, so at most one is ever outstanding.
func (a *Alarm) Reschedule() {
	a.mu.Lock()
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}

	if !a.cfg.Enabled {
		a.nextFire = time.Time{}
		a.state = StateDisarmed
		a.mu.Unlock()

		a.logger.Info("Alarm disabled, schedule cleared")
		a.publish()
		return
	}

	now := a.clk.Now().In(a.location)
	fire := time.Date(now.Year(), now.Month(), now.Day(),
		a.cfg.TimeOfDay.Hour, a.cfg.TimeOfDay.Minute, 0, 0, a.location)
	if !fire.After(now) {
		// Today's instant already passed (equality counts as passed, so
		// the same instant never fires twice). The alarm is daily: roll
		// exactly one day.
		fire = fire.AddDate(0, 0, 1)
	}

	a.nextFire = fire.UTC()
	a.state = StateArmed
	a.timer = a.clk.AfterFunc(fire.Sub(now), func() {
		a.StartRun(false)
	})
	next := a.nextFire
	a.mu.Unlock()

	a.logger.Info("Alarm armed", zap.Time("next_fire", next))
	a.publish()
}

// StartRun executes one alarm run. If a run is already in flight it is
// preempted: the cancel flag is raised and StartRun waits for the old run
// to observe it and exit before starting its own. At most one run executes
// at a time. When several triggers wait at once only the newest proceeds;
// a superseded waiter returns without running, its intent replaced by the
// newer trigger.
func (a *Alarm) StartRun(ignorePresence bool) {
	a.mu.Lock()
	a.triggerSeq++
	seq := a.triggerSeq
	a.mu.Unlock()

	for {
		a.mu.Lock()
		if a.triggerSeq != seq {
			a.mu.Unlock()
			a.logger.Info("Trigger superseded by a newer one")
			return
		}
		if !a.running {
			a.running = true
			a.cancelRequested.Store(false)
			a.mu.Unlock()
			break
		}
		a.mu.Unlock()

		a.cancelRequested.Store(true)
		a.clk.Sleep(a.pollInterval)
	}

	defer func() {
		a.mu.Lock()
		a.running = false
		a.mu.Unlock()
	}()

	a.runAlarm(ignorePresence)
}

// Trigger runs the alarm immediately, bypassing the presence gate. This
// is the manual-trigger command.
func (a *Alarm) Trigger() {
	a.logger.Info("Manual trigger received")
	a.StartRun(true)
}

// runAlarm is the body of a single run: presence gate, both fades
// concurrently, then an unconditional reschedule for the next day.
func (a *Alarm) runAlarm(ignorePresence bool) {
	a.mu.Lock()
	requireHome := a.requireHome
	person := a.personEntity
	cfg := a.cfg
	a.mu.Unlock()

	if !ignorePresence && requireHome && person != "" {
		if !a.personIsHome(person) {
			a.logger.Info("Presence gate rejected run, skipping",
				zap.String("person_entity", person))
			a.setState(StateSkipped)
			a.publish()
			a.Reschedule()
			return
		}
	}

	a.setState(StateTriggered)
	a.publish()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		a.fadeLight(cfg)
	}()
	go func() {
		defer wg.Done()
		a.fadeMusic(cfg)
	}()
	wg.Wait()

	a.Reschedule()
}

// personIsHome queries the presence oracle. Missing data counts as away.
func (a *Alarm) personIsHome(entityID string) bool {
	state, err := a.haClient.GetState(entityID)
	if err != nil {
		a.logger.Warn("Presence lookup failed, treating as away",
			zap.String("entity_id", entityID),
			zap.Error(err))
		return false
	}
	return state != nil && state.State == "home"
}

// ApplyPatch applies a partial configuration update. Each field is
// validated on its own; a rejected field is logged and returned as an
// error without blocking the others. The schedule is recomputed and state
// republished afterwards.
func (a *Alarm) ApplyPatch(p Patch) []error {
	var errs []error

	a.mu.Lock()
	if p.Enabled != nil {
		a.cfg.Enabled = *p.Enabled
	}

	if p.TimeOfDay != nil {
		tod, err := ParseTimeOfDay(*p.TimeOfDay)
		if err != nil {
			a.logger.Warn("Rejecting time_of_day update",
				zap.String("value", *p.TimeOfDay),
				zap.Error(err))
			errs = append(errs, err)
		} else {
			a.cfg.TimeOfDay = tod
		}
	}

	if p.FadeDuration != nil {
		if *p.FadeDuration <= 0 {
			err := fmt.Errorf("fade_duration must be positive, got %d", *p.FadeDuration)
			a.logger.Warn("Rejecting fade_duration update", zap.Error(err))
			errs = append(errs, err)
		} else {
			a.cfg.FadeDuration = *p.FadeDuration
		}
	}

	if p.FadeMusicDuration != nil {
		// Non-positive means "match the light fade".
		a.cfg.FadeMusicDuration = *p.FadeMusicDuration
	}

	if p.Volume != nil {
		v := clampVolume(*p.Volume)
		if v != *p.Volume {
			a.logger.Warn("Clamping volume into [0, 1]",
				zap.Float64("requested", *p.Volume),
				zap.Float64("applied", v))
		}
		a.cfg.Volume = v
	}

	if p.Playlist != nil {
		if *p.Playlist == "" {
			err := fmt.Errorf("playlist must not be empty")
			a.logger.Warn("Rejecting playlist update", zap.Error(err))
			errs = append(errs, err)
		} else {
			if len(a.playlistOptions) > 0 && !containsString(a.playlistOptions, *p.Playlist) {
				// Not enforced strictly: unknown ids pass through to the
				// player.
				a.logger.Warn("Playlist not in configured options",
					zap.String("playlist", *p.Playlist))
			}
			a.cfg.Playlist = *p.Playlist
		}
	}

	if p.RequireHome != nil {
		a.requireHome = *p.RequireHome
	}

	if p.PersonEntity != nil {
		a.personEntity = *p.PersonEntity
	}
	a.mu.Unlock()

	a.Reschedule()
	return errs
}

// Status returns the published snapshot of the alarm.
func (a *Alarm) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := Status{
		State:             a.state,
		Enabled:           a.cfg.Enabled,
		TimeOfDay:         a.cfg.TimeOfDay.String(),
		FadeDuration:      a.cfg.FadeDuration,
		FadeMusicDuration: a.cfg.FadeMusicDuration,
		Volume:            a.cfg.Volume,
		Playlist:          a.cfg.Playlist,
		PlaylistOptions:   append([]string(nil), a.playlistOptions...),
		RequireHome:       a.requireHome,
		PersonEntity:      a.personEntity,
	}
	if !a.nextFire.IsZero() {
		s.NextFire = a.nextFire.Format(time.RFC3339)
	}
	return s
}

// Shutdown cancels the scheduled fire and asks any in-flight run to stop,
// waiting for it to exit.
func (a *Alarm) Shutdown() {
	a.mu.Lock()
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	a.state = StateDisarmed
	a.nextFire = time.Time{}
	running := a.running
	a.mu.Unlock()

	if !running {
		return
	}

	a.logger.Info("Waiting for in-flight run to stop")
	a.cancelRequested.Store(true)
	for {
		a.mu.Lock()
		running = a.running
		a.mu.Unlock()
		if !running {
			return
		}
		a.clk.Sleep(a.pollInterval)
	}
}

// setState records a new observable state.
func (a *Alarm) setState(s RunState) {
	a.mu.Lock()
	a.state = s
	a.mu.Unlock()
}

// publish logs the current snapshot and mirrors it into the configured
// Home Assistant helpers. Mirror failures are non-fatal.
func (a *Alarm) publish() {
	status := a.Status()

	a.logger.Info("Alarm state published",
		zap.String("status", string(status.State)),
		zap.Bool("enabled", status.Enabled),
		zap.String("time_of_day", status.TimeOfDay),
		zap.String("next_fire", status.NextFire))

	if a.statusHelper == "" {
		return
	}

	if a.readOnly {
		a.logger.Info("READ-ONLY: Would mirror alarm state",
			zap.String("helper", a.statusHelper),
			zap.String("status", string(status.State)))
		return
	}

	if err := a.haClient.SetInputText(a.statusHelper+"_status", string(status.State)); err != nil {
		a.logger.Warn("Failed to mirror alarm status", zap.Error(err))
	}
	if err := a.haClient.SetInputText(a.statusHelper+"_next_fire", status.NextFire); err != nil {
		a.logger.Warn("Failed to mirror next fire", zap.Error(err))
	}
	if err := a.haClient.SetInputBoolean(a.statusHelper+"_enabled", status.Enabled); err != nil {
		a.logger.Warn("Failed to mirror enabled flag", zap.Error(err))
	}
}

func containsString(items []string, s string) bool {
	for _, item := range items {
		if item == s {
			return true
		}
	}
	return false
}
