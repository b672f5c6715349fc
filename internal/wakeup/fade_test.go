package wakeup

import (
	"testing"
	"time"

	"wakeupd/internal/clock"
	"wakeupd/internal/ha"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRampSteps(t *testing.T) {
	tests := []struct {
		durationSeconds int
		want            int
	}{
		{0, 1},
		{3, 1},
		{5, 1},
		{9, 1},
		{10, 2},
		{25, 5},
		{900, 180},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, rampSteps(tt.durationSeconds),
			"rampSteps(%d)", tt.durationSeconds)
	}
}

func TestBrightnessForStep(t *testing.T) {
	// A 25 second ramp has five steps and ends at full brightness.
	want := []int{51, 102, 153, 204, 255}
	steps := rampSteps(25)
	require.Equal(t, len(want), steps)

	for i := 1; i <= steps; i++ {
		assert.Equal(t, want[i-1], brightnessForStep(i, steps))
	}

	// The final step is full brightness for any step count.
	for _, steps := range []int{1, 3, 7, 180} {
		assert.Equal(t, fullBrightness, brightnessForStep(steps, steps))
	}
}

func TestMusicRampPlan(t *testing.T) {
	tests := []struct {
		name         string
		lightSeconds int
		musicSeconds int
		wantDelay    int
		wantSteps    int
	}{
		{"centered on light end", 60, 20, 50, 4},
		{"music matches light when unset", 60, 0, 30, 12},
		{"short light ramp", 25, 0, 13, 5},
		{"music longer than light", 25, 50, 0, 10},
		{"delay never negative", 10, 40, 0, 8},
		{"degenerate durations", 0, 0, 1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			delay, steps := musicRampPlan(tt.lightSeconds, tt.musicSeconds)
			assert.Equal(t, tt.wantDelay, delay)
			assert.Equal(t, tt.wantSteps, steps)
		})
	}
}

func TestClampVolume(t *testing.T) {
	assert.Equal(t, 0.0, clampVolume(-0.5))
	assert.Equal(t, 0.0, clampVolume(0))
	assert.Equal(t, 0.25, clampVolume(0.25))
	assert.Equal(t, 1.0, clampVolume(1))
	assert.Equal(t, 1.0, clampVolume(1.5))
}

func TestTrigger_LightRamp(t *testing.T) {
	clk := clock.NewMockClock(time.Date(2026, 8, 25, 4, 30, 0, 0, time.UTC))
	settings := testSettings()
	settings.PlayerEntity = ""
	alarm, mockClient := newTestAlarm(t, clk, settings, time.UTC)

	alarm.Trigger()

	calls := callsForDomain(mockClient.GetServiceCalls(), "light")
	require.Len(t, calls, 5)

	want := []int{51, 102, 153, 204, 255}
	for i, call := range calls {
		assert.Equal(t, "turn_on", call.Service)
		assert.Equal(t, "light.bedroom", call.Data["entity_id"])
		assert.Equal(t, want[i], call.Data["brightness"])
		assert.Equal(t, stepIntervalSeconds, call.Data["transition"])
	}
}

func TestTrigger_MusicRamp(t *testing.T) {
	clk := clock.NewMockClock(time.Date(2026, 8, 25, 4, 30, 0, 0, time.UTC))
	settings := testSettings()
	settings.LightEntity = ""
	settings.Config.FadeDuration = 20
	settings.Config.FadeMusicDuration = 20
	alarm, mockClient := newTestAlarm(t, clk, settings, time.UTC)

	alarm.Trigger()

	calls := mockClient.GetServiceCalls()

	// Playback starts at zero volume on the configured playlist.
	playCalls := callsForDomain(calls, "music_assistant")
	require.Len(t, playCalls, 1)
	assert.Equal(t, "play_media", playCalls[0].Service)
	assert.Equal(t, "media_player.bedroom", playCalls[0].Data["entity_id"])
	assert.Equal(t, "morning_chill", playCalls[0].Data["media_id"])
	assert.Equal(t, "playlist", playCalls[0].Data["media_type"])
	assert.Equal(t, "replace", playCalls[0].Data["enqueue"])

	volumeCalls := callsForDomain(calls, "media_player")
	require.Len(t, volumeCalls, 5, "initial mute plus four ramp steps")

	want := []float64{0, 0.125, 0.25, 0.375, 0.5}
	for i, call := range volumeCalls {
		assert.Equal(t, "volume_set", call.Service)
		assert.InDelta(t, want[i], call.Data["volume_level"].(float64), 1e-9)
	}
}

func TestTrigger_NoEntitiesConfigured(t *testing.T) {
	clk := clock.NewMockClock(time.Date(2026, 8, 25, 4, 30, 0, 0, time.UTC))
	settings := testSettings()
	settings.LightEntity = ""
	settings.PlayerEntity = ""
	alarm, mockClient := newTestAlarm(t, clk, settings, time.UTC)

	alarm.Trigger()

	assert.Empty(t, mockClient.GetServiceCalls())
	assert.Equal(t, StateArmed, alarm.Status().State)
}

func TestTrigger_VolumeAboveOneClampedInRamp(t *testing.T) {
	clk := clock.NewMockClock(time.Date(2026, 8, 25, 4, 30, 0, 0, time.UTC))
	settings := testSettings()
	settings.LightEntity = ""
	settings.Config.Volume = 1.5
	alarm, mockClient := newTestAlarm(t, clk, settings, time.UTC)

	alarm.Trigger()

	for _, call := range callsForDomain(mockClient.GetServiceCalls(), "media_player") {
		assert.LessOrEqual(t, call.Data["volume_level"].(float64), 1.0)
	}
}

func TestReadOnly_NoActuatorCalls(t *testing.T) {
	clk := clock.NewMockClock(time.Date(2026, 8, 25, 4, 30, 0, 0, time.UTC))
	logger, _ := zap.NewDevelopment()
	mockClient := ha.NewMockClient()
	alarm := NewAlarm(mockClient, clk, testSettings(), logger, true, time.UTC)

	alarm.Trigger()

	assert.Empty(t, mockClient.GetServiceCalls(),
		"read-only mode must not dispatch any service calls")
	assert.Equal(t, StateArmed, alarm.Status().State)
}
