package wakeup

import (
	"fmt"
	"time"
)

// TimeOfDay is a wall-clock hour:minute with no date and no timezone. It
// is interpreted against the alarm's local timezone at scheduling time.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses a 24-hour "HH:MM" string.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("invalid time of day %q: %w", s, err)
	}
	return TimeOfDay{Hour: t.Hour(), Minute: t.Minute()}, nil
}

// String formats the time of day as "HH:MM".
func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// Config is the mutable alarm configuration, owned exclusively by one
// Alarm and mutated only through ApplyPatch.
type Config struct {
	TimeOfDay TimeOfDay
	Enabled   bool
	// FadeDuration is the light ramp length in seconds.
	FadeDuration int
	// FadeMusicDuration is the music ramp length in seconds; zero or
	// negative falls back to FadeDuration.
	FadeMusicDuration int
	// Volume is the music target ceiling in [0, 1].
	Volume   float64
	Playlist string
}

// Patch is a partial configuration update. Nil fields leave the
// corresponding setting unchanged; each field is validated independently
// so one bad value never blocks the rest of the update.
type Patch struct {
	Enabled           *bool    `json:"enabled,omitempty"`
	TimeOfDay         *string  `json:"time_of_day,omitempty"`
	FadeDuration      *int     `json:"fade_duration,omitempty"`
	FadeMusicDuration *int     `json:"fade_music_duration,omitempty"`
	Volume            *float64 `json:"volume,omitempty"`
	Playlist          *string  `json:"playlist,omitempty"`
	RequireHome       *bool    `json:"require_home,omitempty"`
	PersonEntity      *string  `json:"person_entity,omitempty"`
}

// clampVolume confines v to [0, 1].
func clampVolume(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
