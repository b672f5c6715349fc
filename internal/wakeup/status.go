package wakeup

// RunState is the alarm's observable status.
type RunState string

const (
	// StateDisarmed means the alarm is disabled or nothing is scheduled.
	StateDisarmed RunState = "disarmed"
	// StateArmed means a future fire instant is scheduled.
	StateArmed RunState = "armed"
	// StateSkipped means a fire occurred but the presence gate rejected it.
	StateSkipped RunState = "skipped"
	// StateTriggered means a run is actively executing fades.
	StateTriggered RunState = "triggered"
)

// Status is the published snapshot of the alarm, mirroring the attributes
// the wakeup entity exposes to the frontend.
type Status struct {
	State             RunState `json:"status"`
	Enabled           bool     `json:"enabled"`
	TimeOfDay         string   `json:"time_of_day"`
	FadeDuration      int      `json:"fade_duration"`
	FadeMusicDuration int      `json:"fade_music_duration"`
	Volume            float64  `json:"volume"`
	Playlist          string   `json:"playlist"`
	PlaylistOptions   []string `json:"playlist_options"`
	// NextFire is the next scheduled fire instant in RFC 3339 UTC, empty
	// when disarmed.
	NextFire     string `json:"next_fire,omitempty"`
	RequireHome  bool   `json:"require_home"`
	PersonEntity string `json:"person_entity,omitempty"`
}
