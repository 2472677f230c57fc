// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package config loads and validates the single typed Config struct this
// module is wired from: executor timing/thresholds, broker identity, and the
// ops API surface.
package config

import (
	"fmt"
	"time"

	"github.com/fleetguard/patrolcore/internal/domain/patrol/executor"
	"github.com/fleetguard/patrolcore/internal/domain/patrol/model"
)

// BrokerConfig is one broker endpoint's connection identity.
type BrokerConfig struct {
	Endpoint    string `yaml:"endpoint"`
	Port        int    `yaml:"port"`
	Credentials string `yaml:"credentials"`
	UseTLS      bool   `yaml:"useTls"`
}

// Config is every key recognized per the external-interfaces configuration
// surface. Timing fields are authored in YAML/env as whole seconds and
// converted to time.Duration by ExecutorConfig.
type Config struct {
	LowBatteryPercent        int             `yaml:"lowBatteryPercent"`
	DefaultMovementSpeedTier model.SpeedTier `yaml:"defaultMovementSpeedTier"`
	HomeBaseWaypoint         string          `yaml:"homeBaseWaypoint"`

	ArrivalActionDelaySeconds int `yaml:"arrivalActionDelaySeconds"`
	TTSWaitSeconds            int `yaml:"ttsWaitSeconds"`
	DisplayWaitSeconds        int `yaml:"displayWaitSeconds"`
	WebviewCloseDelaySeconds  int `yaml:"webviewCloseDelaySeconds"`

	DetectionTimeoutSeconds int `yaml:"detectionTimeoutSeconds"`
	NoViolationHoldSeconds  int `yaml:"noViolationHoldSeconds"`
	HighViolationThreshold  int `yaml:"highViolationThreshold"`

	PatrolStopHomeTimeoutSeconds int  `yaml:"patrolStopHomeTimeoutSeconds"`
	PatrolStopAlwaysSendHome     bool `yaml:"patrolStopAlwaysSendHome"`

	YoloShutdownTimeoutSeconds int `yaml:"yoloShutdownTimeoutSeconds"`

	ViolationDebounceWindowSeconds int     `yaml:"violationDebounceWindowSeconds"`
	ViolationSmoothingFactor       float64 `yaml:"violationSmoothingFactor"`
	OutlierZ                       float64 `yaml:"outlierZ"`

	ArrivalTimeoutSeconds int `yaml:"arrivalTimeoutSeconds"`
	ReturnTimeoutSeconds  int `yaml:"returnTimeoutSeconds"`

	LocalBroker BrokerConfig `yaml:"localBroker"`
	CloudBroker BrokerConfig `yaml:"cloudBroker"`

	API       APIConfig       `yaml:"api"`
	Telemetry TelemetryConfig `yaml:"telemetry"`

	StorePath   string `yaml:"storePath"`
	ProjectionPath string `yaml:"projectionPath"`
	SettingsOverlayPath string `yaml:"settingsOverlayPath"`
}

// APIConfig configures the internal ops/control HTTP surface.
type APIConfig struct {
	ListenAddr      string `yaml:"listenAddr"`
	RateLimitPerMin int    `yaml:"rateLimitPerMin"`
	OpenAPIPath     string `yaml:"openApiPath"`
}

// TelemetryConfig configures the OpenTelemetry tracer provider (§10). Leaving
// Enabled false keeps the process on the no-op global tracer, which is the
// correct default for local/dev runs without a collector.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	ExporterType string  `yaml:"exporterType"` // grpc | http
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"samplingRate"`
}

// Default returns the built-in defaults applied before YAML/env overrides.
func Default() Config {
	return Config{
		LowBatteryPercent:              15,
		DefaultMovementSpeedTier:       model.SpeedMedium,
		HomeBaseWaypoint:               "home",
		ArrivalActionDelaySeconds:      1,
		TTSWaitSeconds:                 2,
		DisplayWaitSeconds:             3,
		WebviewCloseDelaySeconds:       1,
		DetectionTimeoutSeconds:        30,
		NoViolationHoldSeconds:         5,
		HighViolationThreshold:         3,
		PatrolStopHomeTimeoutSeconds:   30,
		PatrolStopAlwaysSendHome:       false,
		YoloShutdownTimeoutSeconds:     60,
		ViolationDebounceWindowSeconds: 30,
		ViolationSmoothingFactor:       0.3,
		OutlierZ:                       3.0,
		ArrivalTimeoutSeconds:          60,
		ReturnTimeoutSeconds:           120,
		StorePath:                      "patrolcore.db",
		ProjectionPath:                 "projection.badger",
		SettingsOverlayPath:            "settings_overlay.json",
		API: APIConfig{
			ListenAddr:      ":8090",
			RateLimitPerMin: 120,
			OpenAPIPath:     "openapi.yaml",
		},
		Telemetry: TelemetryConfig{
			Enabled:      false,
			ExporterType: "grpc",
			SamplingRate: 1.0,
		},
	}
}

// Validate rejects duplicate/contradictory settings. The teacher's source
// carries the cloud broker address in both an environment variable and a
// database setting; this repository treats configuration as one typed
// structure loaded once per process, so the only contradiction left to catch
// is an empty broker identity alongside a nonzero port or vice versa.
func (c Config) Validate() error {
	if c.LowBatteryPercent < 0 || c.LowBatteryPercent > 100 {
		return fmt.Errorf("config: lowBatteryPercent must be 0-100, got %d", c.LowBatteryPercent)
	}
	if c.HighViolationThreshold < 1 {
		return fmt.Errorf("config: highViolationThreshold must be >= 1, got %d", c.HighViolationThreshold)
	}
	if c.OutlierZ <= 0 {
		return fmt.Errorf("config: outlierZ must be > 0, got %f", c.OutlierZ)
	}
	if c.ViolationSmoothingFactor < 0 || c.ViolationSmoothingFactor > 1 {
		return fmt.Errorf("config: violationSmoothingFactor must be 0-1, got %f", c.ViolationSmoothingFactor)
	}
	switch c.DefaultMovementSpeedTier {
	case model.SpeedLow, model.SpeedMedium, model.SpeedHigh:
	default:
		return fmt.Errorf("config: defaultMovementSpeedTier must be low|medium|high, got %q", c.DefaultMovementSpeedTier)
	}
	if err := c.LocalBroker.validate("localBroker"); err != nil {
		return err
	}
	if err := c.CloudBroker.validate("cloudBroker"); err != nil {
		return err
	}
	return nil
}

func (b BrokerConfig) validate(name string) error {
	if b.Endpoint == "" && b.Port != 0 {
		return fmt.Errorf("config: %s.port set without %s.endpoint", name, name)
	}
	if b.Endpoint != "" && b.Port == 0 {
		return fmt.Errorf("config: %s.endpoint set without %s.port", name, name)
	}
	return nil
}

// ExecutorConfig projects the process-wide settings onto the PatrolExecutor's
// own Config shape, implementing supervisor.ConfigProvider.
func (c Config) ExecutorConfig() executor.Config {
	return executor.Config{
		ArrivalActionDelay:       time.Duration(c.ArrivalActionDelaySeconds) * time.Second,
		TTSWait:                  time.Duration(c.TTSWaitSeconds) * time.Second,
		DisplayWait:              time.Duration(c.DisplayWaitSeconds) * time.Second,
		WebviewCloseDelay:        time.Duration(c.WebviewCloseDelaySeconds) * time.Second,
		DetectionTimeout:         time.Duration(c.DetectionTimeoutSeconds) * time.Second,
		NoViolationHold:          time.Duration(c.NoViolationHoldSeconds) * time.Second,
		HighViolationThreshold:   c.HighViolationThreshold,
		PatrolStopHomeTimeout:    time.Duration(c.PatrolStopHomeTimeoutSeconds) * time.Second,
		PatrolStopAlwaysSendHome: c.PatrolStopAlwaysSendHome,
		YoloShutdownTimeout:      time.Duration(c.YoloShutdownTimeoutSeconds) * time.Second,
		LowBatteryPercent:        c.LowBatteryPercent,
		ViolationWindowSeconds:   c.ViolationDebounceWindowSeconds,
		ViolationSmoothing:       c.ViolationSmoothingFactor,
		OutlierZ:                 c.OutlierZ,
		DefaultMovementSpeedTier: c.DefaultMovementSpeedTier,
		HomeBaseWaypoint:         c.HomeBaseWaypoint,
		ArrivalTimeout:           time.Duration(c.ArrivalTimeoutSeconds) * time.Second,
		ReturnTimeout:            time.Duration(c.ReturnTimeoutSeconds) * time.Second,
	}
}
