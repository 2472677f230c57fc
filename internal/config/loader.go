// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/fleetguard/patrolcore/internal/log"
)

// Loader resolves a Config from defaults, an optional YAML file, and
// environment overrides, in that order of increasing precedence.
type Loader struct {
	path string
}

// NewLoader constructs a Loader reading from path. An empty path skips the
// file layer entirely and loads defaults-plus-environment only.
func NewLoader(path string) *Loader {
	return &Loader{path: path}
}

// Load resolves the final Config. Errors are returned, never panicked: a
// missing config file is not an error (defaults apply), but a malformed one,
// or a validation failure, is.
func (l *Loader) Load() (Config, error) {
	cfg := Default()

	if l.path != "" {
		data, err := os.ReadFile(l.path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("config: parse %s: %w", l.path, err)
			}
		case os.IsNotExist(err):
			log.WithComponent("config").Info().Str("path", l.path).Msg("config file not found, using defaults")
		default:
			return Config{}, fmt.Errorf("config: read %s: %w", l.path, err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnvOverrides lets deployment environments override the §6 keys read
// below without editing the YAML file, matching the teacher's env-wins-over-file
// precedence for operational settings.
func applyEnvOverrides(cfg *Config) {
	cfg.LowBatteryPercent = envInt("PATROLCORE_LOW_BATTERY_PERCENT", cfg.LowBatteryPercent)
	cfg.HomeBaseWaypoint = envString("PATROLCORE_HOME_BASE_WAYPOINT", cfg.HomeBaseWaypoint)

	cfg.ArrivalActionDelaySeconds = envInt("PATROLCORE_ARRIVAL_ACTION_DELAY_SECONDS", cfg.ArrivalActionDelaySeconds)
	cfg.TTSWaitSeconds = envInt("PATROLCORE_TTS_WAIT_SECONDS", cfg.TTSWaitSeconds)
	cfg.DisplayWaitSeconds = envInt("PATROLCORE_DISPLAY_WAIT_SECONDS", cfg.DisplayWaitSeconds)
	cfg.WebviewCloseDelaySeconds = envInt("PATROLCORE_WEBVIEW_CLOSE_DELAY_SECONDS", cfg.WebviewCloseDelaySeconds)

	cfg.DetectionTimeoutSeconds = envInt("PATROLCORE_DETECTION_TIMEOUT_SECONDS", cfg.DetectionTimeoutSeconds)
	cfg.NoViolationHoldSeconds = envInt("PATROLCORE_NO_VIOLATION_HOLD_SECONDS", cfg.NoViolationHoldSeconds)
	cfg.HighViolationThreshold = envInt("PATROLCORE_HIGH_VIOLATION_THRESHOLD", cfg.HighViolationThreshold)

	cfg.PatrolStopHomeTimeoutSeconds = envInt("PATROLCORE_PATROL_STOP_HOME_TIMEOUT_SECONDS", cfg.PatrolStopHomeTimeoutSeconds)
	cfg.PatrolStopAlwaysSendHome = envBool("PATROLCORE_PATROL_STOP_ALWAYS_SEND_HOME", cfg.PatrolStopAlwaysSendHome)

	cfg.YoloShutdownTimeoutSeconds = envInt("PATROLCORE_YOLO_SHUTDOWN_TIMEOUT_SECONDS", cfg.YoloShutdownTimeoutSeconds)

	cfg.ViolationDebounceWindowSeconds = envInt("PATROLCORE_VIOLATION_DEBOUNCE_WINDOW_SECONDS", cfg.ViolationDebounceWindowSeconds)
	cfg.ViolationSmoothingFactor = envFloat("PATROLCORE_VIOLATION_SMOOTHING_FACTOR", cfg.ViolationSmoothingFactor)
	cfg.OutlierZ = envFloat("PATROLCORE_OUTLIER_Z", cfg.OutlierZ)

	cfg.LocalBroker.Endpoint = envString("PATROLCORE_LOCAL_BROKER_ENDPOINT", cfg.LocalBroker.Endpoint)
	cfg.LocalBroker.Port = envInt("PATROLCORE_LOCAL_BROKER_PORT", cfg.LocalBroker.Port)
	cfg.LocalBroker.Credentials = envString("PATROLCORE_LOCAL_BROKER_CREDENTIALS", cfg.LocalBroker.Credentials)
	cfg.LocalBroker.UseTLS = envBool("PATROLCORE_LOCAL_BROKER_USE_TLS", cfg.LocalBroker.UseTLS)

	// The teacher's source writes the cloud broker address via both an
	// environment variable and a database setting in different places;
	// here environment is the single override path and Validate rejects
	// a half-set pair, so there is no ambiguity to reconcile at read time.
	cfg.CloudBroker.Endpoint = envString("PATROLCORE_CLOUD_BROKER_ENDPOINT", cfg.CloudBroker.Endpoint)
	cfg.CloudBroker.Port = envInt("PATROLCORE_CLOUD_BROKER_PORT", cfg.CloudBroker.Port)
	cfg.CloudBroker.Credentials = envString("PATROLCORE_CLOUD_BROKER_CREDENTIALS", cfg.CloudBroker.Credentials)
	cfg.CloudBroker.UseTLS = envBool("PATROLCORE_CLOUD_BROKER_USE_TLS", cfg.CloudBroker.UseTLS)

	cfg.API.ListenAddr = envString("PATROLCORE_API_LISTEN_ADDR", cfg.API.ListenAddr)
	cfg.API.RateLimitPerMin = envInt("PATROLCORE_API_RATE_LIMIT_PER_MIN", cfg.API.RateLimitPerMin)

	cfg.StorePath = envString("PATROLCORE_STORE_PATH", cfg.StorePath)
	cfg.ProjectionPath = envString("PATROLCORE_PROJECTION_PATH", cfg.ProjectionPath)
	cfg.SettingsOverlayPath = envString("PATROLCORE_SETTINGS_OVERLAY_PATH", cfg.SettingsOverlayPath)

	cfg.Telemetry.Enabled = envBool("PATROLCORE_TELEMETRY_ENABLED", cfg.Telemetry.Enabled)
	cfg.Telemetry.ExporterType = envString("PATROLCORE_TELEMETRY_EXPORTER_TYPE", cfg.Telemetry.ExporterType)
	cfg.Telemetry.Endpoint = envString("PATROLCORE_TELEMETRY_ENDPOINT", cfg.Telemetry.Endpoint)
	cfg.Telemetry.SamplingRate = envFloat("PATROLCORE_TELEMETRY_SAMPLING_RATE", cfg.Telemetry.SamplingRate)
}
