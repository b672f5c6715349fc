package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"wakeupd/internal/api"
	"wakeupd/internal/clock"
	"wakeupd/internal/config"
	"wakeupd/internal/ha"
	"wakeupd/internal/wakeup"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configPath string
	apiPort    int
	readOnly   bool

	rootCmd = &cobra.Command{
		Use:   "wakeupd",
		Short: "Presence-gated wakeup alarm service for Home Assistant.",
		Long: `wakeupd connects to a Home Assistant instance and runs a daily wakeup
alarm: at the configured time of day it fades a light up to full brightness
and starts a music playlist with its own volume ramp. The run is skipped
when the tracked person is away, and can be triggered manually or
reconfigured over the HTTP API.

Connection settings come from the environment (HA_URL, HA_TOKEN, optional
WAKEUP_TZ), loaded from a .env file when present. Entity wiring and alarm
options come from the YAML configuration file.`,
		RunE: func(_ *cobra.Command, _ []string) error {
			return run()
		},
	}
)

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	rootCmd.Flags().IntVarP(&apiPort, "api-port", "p", 8081, "port for the HTTP API")
	rootCmd.Flags().BoolVar(&readOnly, "read-only", false, "log actuator calls instead of dispatching them")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run() error {
	// Initialize logger
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync()

	// Load environment variables
	if err := godotenv.Load(); err != nil {
		logger.Warn("No .env file found, using environment variables")
	}

	haURL := os.Getenv("HA_URL")
	haToken := os.Getenv("HA_TOKEN")
	if haURL == "" || haToken == "" {
		logger.Fatal("HA_URL and HA_TOKEN environment variables must be set")
	}

	if os.Getenv("READ_ONLY") == "true" {
		readOnly = true
	}

	location := time.Local
	if tz := os.Getenv("WAKEUP_TZ"); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			logger.Fatal("Invalid WAKEUP_TZ", zap.String("tz", tz), zap.Error(err))
		}
		location = loc
	}

	logger.Info("Starting wakeup service",
		zap.String("url", haURL),
		zap.String("config", configPath),
		zap.Bool("read_only", readOnly))

	// Load the wakeup configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	// Connect to Home Assistant
	client := ha.NewClient(haURL, haToken, logger)
	if err := client.Connect(); err != nil {
		logger.Fatal("Failed to connect to Home Assistant", zap.Error(err))
	}
	defer client.Disconnect()

	alarm := wakeup.NewAlarm(client, clock.NewRealClock(), alarmSettings(cfg, logger), logger, readOnly, location)
	alarm.Reschedule()

	// Persist applied config updates back to the YAML file so they
	// survive restarts.
	saveConfig := func() error {
		status := alarm.Status()
		cfg.Alarm.Enabled = status.Enabled
		cfg.Alarm.TimeOfDay = status.TimeOfDay
		cfg.Alarm.FadeDuration = status.FadeDuration
		cfg.Alarm.FadeMusicDuration = status.FadeMusicDuration
		volume := status.Volume
		cfg.Alarm.Volume = &volume
		cfg.Alarm.Playlist = status.Playlist
		cfg.Alarm.RequireHome = status.RequireHome
		cfg.PersonEntity = status.PersonEntity
		return config.Save(configPath, cfg)
	}

	server := api.NewServer(alarm, logger, apiPort, saveConfig)
	if err := server.Start(); err != nil {
		logger.Fatal("Failed to start API server", zap.Error(err))
	}

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Wakeup service running. Press Ctrl+C to exit.")
	<-sigChan

	logger.Info("Shutting down gracefully...")
	if err := server.Stop(); err != nil {
		logger.Error("Failed to stop API server", zap.Error(err))
	}
	alarm.Shutdown()

	return nil
}

// alarmSettings maps the loaded configuration file onto the alarm's
// initial settings.
func alarmSettings(cfg *config.Config, logger *zap.Logger) wakeup.Settings {
	timeOfDay, err := wakeup.ParseTimeOfDay(cfg.Alarm.TimeOfDay)
	if err != nil {
		logger.Warn("Invalid time_of_day in configuration, using 07:00",
			zap.String("value", cfg.Alarm.TimeOfDay),
			zap.Error(err))
		timeOfDay = wakeup.TimeOfDay{Hour: 7}
	}

	return wakeup.Settings{
		LightEntity:     cfg.LightEntity,
		PlayerEntity:    cfg.PlayerEntity,
		PersonEntity:    cfg.PersonEntity,
		RequireHome:     cfg.Alarm.RequireHome,
		StatusHelper:    cfg.StatusHelper,
		PlaylistOptions: cfg.Playlists,
		Config: wakeup.Config{
			TimeOfDay:         timeOfDay,
			Enabled:           cfg.Alarm.Enabled,
			FadeDuration:      cfg.Alarm.FadeDuration,
			FadeMusicDuration: cfg.Alarm.FadeMusicDuration,
			// Load validated the config, so the volume is always set.
			Volume:   *cfg.Alarm.Volume,
			Playlist: cfg.Alarm.Playlist,
		},
	}
}
