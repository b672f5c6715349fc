// Package config loads and persists the wakeup service configuration file.
// The file wires the alarm to its Home Assistant entities and carries the
// persisted alarm options so they survive restarts.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultConfigFilename is the default path of the wakeup config file.
	DefaultConfigFilename = "wakeup_config.yaml"

	// DefaultFilePermissions restricts the persisted file to the owner.
	DefaultFilePermissions = 0o600
)

var (
	errConfigIsNotSet       = errors.New("configuration is not set")
	errLightEntityRequired  = errors.New("light_entity must be provided")
	errPlayerEntityRequired = errors.New("player_entity must be provided")
)

// AlarmOptions holds the persisted, runtime-mutable alarm settings.
type AlarmOptions struct {
	// Enabled arms the daily schedule.
	Enabled bool `yaml:"enabled"`
	// TimeOfDay is the local wall-clock fire time, "HH:MM" 24-hour.
	TimeOfDay string `yaml:"time_of_day"`
	// FadeDuration is the light ramp length in seconds.
	FadeDuration int `yaml:"fade_duration"`
	// FadeMusicDuration is the music ramp length in seconds. Zero or
	// negative means "same as the light ramp".
	FadeMusicDuration int `yaml:"fade_music_duration"`
	// Volume is the music ramp's target ceiling, 0.0..1.0. A nil value
	// means unset; Validate fills in the default. 0.0 is a valid, silent
	// setting and is preserved as such.
	Volume *float64 `yaml:"volume"`
	// Playlist identifies what to play.
	Playlist string `yaml:"playlist"`
	// RequireHome gates the run on the tracked person being home.
	RequireHome bool `yaml:"require_home"`
}

// Config represents the wakeup_config.yaml structure.
type Config struct {
	// LightEntity is the light to fade up, e.g. "light.bedroom".
	LightEntity string `yaml:"light_entity"`
	// PlayerEntity is the media player to ramp, e.g. "media_player.bedroom".
	PlayerEntity string `yaml:"player_entity"`
	// PersonEntity is the tracked person for the presence gate. Optional.
	PersonEntity string `yaml:"person_entity,omitempty"`
	// StatusHelper is the input_text/input_boolean helper name prefix the
	// alarm mirrors its observable state into. Optional.
	StatusHelper string `yaml:"status_helper,omitempty"`
	// Playlists lists the playlist ids offered to the frontend. Accepts a
	// YAML sequence or a comma-separated string.
	Playlists PlaylistList `yaml:"playlists,omitempty"`
	// Alarm carries the persisted alarm options.
	Alarm AlarmOptions `yaml:"alarm"`
}

// PlaylistList is a list of playlist ids that also unmarshals from a
// comma-separated scalar.
type PlaylistList []string

// UnmarshalYAML accepts either a sequence of strings or a single
// comma-separated string.
func (p *PlaylistList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.SequenceNode:
		var items []string
		if err := value.Decode(&items); err != nil {
			return err
		}
		*p = normalizePlaylists(items)
		return nil
	case yaml.ScalarNode:
		var raw string
		if err := value.Decode(&raw); err != nil {
			return err
		}
		*p = normalizePlaylists(strings.Split(raw, ","))
		return nil
	default:
		return fmt.Errorf("playlists: expected sequence or string, got %v", value.Kind)
	}
}

// normalizePlaylists trims entries and drops empties.
func normalizePlaylists(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}

// Load reads the configuration from the provided path and validates it.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read wakeup config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(contents, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal wakeup config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes the configuration to the provided path. This is how applied
// config updates survive restarts.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal wakeup config: %w", err)
	}

	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write wakeup config: %w", err)
	}

	return nil
}

// Validate checks required fields and fills defaults for unset alarm
// options. The defaults match the component's original out-of-box values.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if cfg.LightEntity == "" {
		return errLightEntityRequired
	}

	if cfg.PlayerEntity == "" {
		return errPlayerEntityRequired
	}

	if cfg.Alarm.TimeOfDay == "" {
		cfg.Alarm.TimeOfDay = "07:00"
	}

	if cfg.Alarm.FadeDuration <= 0 {
		cfg.Alarm.FadeDuration = 900
	}

	if cfg.Alarm.Volume == nil {
		volume := 0.25
		cfg.Alarm.Volume = &volume
	}

	if cfg.Alarm.Playlist == "" {
		if len(cfg.Playlists) > 0 {
			cfg.Alarm.Playlist = cfg.Playlists[0]
		} else {
			cfg.Alarm.Playlist = "morning_chill"
		}
	}

	return nil
}
