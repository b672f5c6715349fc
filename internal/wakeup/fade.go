package wakeup

import (
	"math"
	"time"

	"go.uber.org/zap"
)

const (
	// fullBrightness is the light's full-scale brightness value.
	fullBrightness = 255

	// stepIntervalSeconds is the fixed interval between ramp steps.
	stepIntervalSeconds = 5
)

// rampSteps returns the number of 5-second steps for a ramp of the given
// length. A ramp always has at least one step.
func rampSteps(durationSeconds int) int {
	steps := durationSeconds / stepIntervalSeconds
	if steps < 1 {
		steps = 1
	}
	return steps
}

// brightnessForStep returns the brightness command for step i of steps.
func brightnessForStep(i, steps int) int {
	return int(math.Round(fullBrightness * float64(i) / float64(steps)))
}

// musicRampPlan computes the music ramp's start delay and step count. The
// ramp is centered on the light fade's end: it reaches full volume
// musicSeconds/2 after the light finishes and starts musicSeconds/2 before
// (clamped so it never starts before the run does).
func musicRampPlan(lightSeconds, musicSeconds int) (delaySeconds, steps int) {
	if lightSeconds < 1 {
		lightSeconds = 1
	}
	if musicSeconds <= 0 {
		musicSeconds = lightSeconds
	}

	delaySeconds = lightSeconds - musicSeconds/2
	if delaySeconds < 0 {
		delaySeconds = 0
	}
	return delaySeconds, rampSteps(musicSeconds)
}

// fadeLight ramps the light from dark to full brightness over the
// configured duration. It returns early when cancellation is requested.
func (a *Alarm) fadeLight(cfg Config) {
	if a.lightEntity == "" {
		a.logger.Info("No light configured, skipping light fade")
		return
	}

	duration := cfg.FadeDuration
	if duration < 1 {
		duration = 1
	}
	steps := rampSteps(duration)

	a.logger.Info("Starting light fade",
		zap.String("entity_id", a.lightEntity),
		zap.Int("duration_seconds", duration),
		zap.Int("steps", steps))

	for i := 1; i <= steps; i++ {
		if a.cancelRequested.Load() {
			a.logger.Info("Light fade cancelled",
				zap.Int("step", i),
				zap.Int("steps", steps))
			return
		}

		a.callService("light", "turn_on", map[string]interface{}{
			"entity_id":  a.lightEntity,
			"brightness": brightnessForStep(i, steps),
			"transition": stepIntervalSeconds,
		})

		if i < steps {
			if a.cancelRequested.Load() {
				a.logger.Info("Light fade cancelled", zap.Int("step", i))
				return
			}
			a.sleepSeconds(stepIntervalSeconds)
		}
	}

	a.logger.Info("Light fade complete", zap.String("entity_id", a.lightEntity))
}

// fadeMusic waits for its centered start time, starts playback at zero
// volume and ramps to the configured target. It returns early when
// cancellation is requested.
func (a *Alarm) fadeMusic(cfg Config) {
	if a.playerEntity == "" {
		a.logger.Info("No media player configured, skipping music fade")
		return
	}

	lightSeconds := cfg.FadeDuration
	if lightSeconds < 1 {
		lightSeconds = 1
	}
	musicSeconds := cfg.FadeMusicDuration
	if musicSeconds <= 0 {
		musicSeconds = lightSeconds
	}

	delay, steps := musicRampPlan(lightSeconds, musicSeconds)
	target := clampVolume(cfg.Volume)

	a.logger.Info("Starting music fade",
		zap.String("entity_id", a.playerEntity),
		zap.String("playlist", cfg.Playlist),
		zap.Int("delay_seconds", delay),
		zap.Int("duration_seconds", musicSeconds),
		zap.Int("steps", steps),
		zap.Float64("target_volume", target))

	if !a.waitSeconds(delay) {
		a.logger.Info("Music fade cancelled during start delay")
		return
	}

	// Start silent so the ramp owns the volume from zero.
	a.callService("media_player", "volume_set", map[string]interface{}{
		"entity_id":    a.playerEntity,
		"volume_level": 0.0,
	})

	a.callService("music_assistant", "play_media", map[string]interface{}{
		"entity_id":  a.playerEntity,
		"media_id":   cfg.Playlist,
		"media_type": "playlist",
		"enqueue":    "replace",
	})

	for i := 1; i <= steps; i++ {
		if a.cancelRequested.Load() {
			a.logger.Info("Music fade cancelled",
				zap.Int("step", i),
				zap.Int("steps", steps))
			return
		}

		a.callService("media_player", "volume_set", map[string]interface{}{
			"entity_id":    a.playerEntity,
			"volume_level": target * float64(i) / float64(steps),
		})

		if i < steps {
			if a.cancelRequested.Load() {
				a.logger.Info("Music fade cancelled", zap.Int("step", i))
				return
			}
			a.sleepSeconds(stepIntervalSeconds)
		}
	}

	a.logger.Info("Music fade complete", zap.String("entity_id", a.playerEntity))
}

// waitSeconds sleeps for the given number of ramp seconds in chunks of at
// most the step interval, checking for cancellation between chunks. It
// reports whether the wait completed without cancellation.
func (a *Alarm) waitSeconds(seconds int) bool {
	remaining := seconds
	for remaining > 0 {
		if a.cancelRequested.Load() {
			return false
		}
		chunk := remaining
		if chunk > stepIntervalSeconds {
			chunk = stepIntervalSeconds
		}
		a.sleepSeconds(chunk)
		remaining -= chunk
	}
	return !a.cancelRequested.Load()
}

// sleepSeconds sleeps for n ramp seconds on the alarm's clock.
func (a *Alarm) sleepSeconds(n int) {
	a.clk.Sleep(time.Duration(n) * a.tick)
}

// callService dispatches an actuator call. Dispatch failures are logged
// and swallowed: a failed step must not abort the rest of the ramp.
func (a *Alarm) callService(domain, service string, data map[string]interface{}) {
	if a.readOnly {
		a.logger.Info("READ-ONLY: Would call service",
			zap.String("domain", domain),
			zap.String("service", service),
			zap.Any("data", data))
		return
	}

	if err := a.haClient.CallService(domain, service, data); err != nil {
		a.logger.Error("Service call failed",
			zap.String("domain", domain),
			zap.String("service", service),
			zap.Error(err))
	}
}
