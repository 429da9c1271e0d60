package storage

import (
	"fmt"
	"net/url"
	"os"
	"strings"
)

// Mode selects the backing object-store implementation: real GCS, or a
// local fake-gcs-server style emulator for tests/dev.
type Mode string

const (
	ModeGCS         Mode = "gcs"
	ModeGCSEmulator Mode = "gcs_emulator"
)

type Config struct {
	Mode                  Mode
	EmulatorHost          string
	CompatibilityFallback bool
}

func IsSupportedMode(mode Mode) bool {
	switch mode {
	case ModeGCS, ModeGCSEmulator:
		return true
	default:
		return false
	}
}

func IsEmulatorMode(mode Mode) bool { return mode == ModeGCSEmulator }

func (cfg Config) IsEmulatorMode() bool { return IsEmulatorMode(cfg.Mode) }

func (cfg Config) ModeSource() string {
	if cfg.CompatibilityFallback {
		return "compatibility_fallback"
	}
	return "explicit_or_default"
}

type ConfigErrorCode string

const (
	ConfigErrorInvalidMode         ConfigErrorCode = "invalid_mode"
	ConfigErrorMissingEmulatorHost ConfigErrorCode = "missing_emulator_host"
	ConfigErrorInvalidEmulatorHost ConfigErrorCode = "invalid_emulator_host"
)

type ConfigError struct {
	Code         ConfigErrorCode
	Mode         string
	EmulatorHost string
	Cause        error
}

func (e *ConfigError) Error() string {
	if e == nil {
		return "invalid object storage config"
	}
	switch e.Code {
	case ConfigErrorInvalidMode:
		return fmt.Sprintf("invalid OBJECT_STORAGE_MODE=%q (allowed: %q, %q)", e.Mode, ModeGCS, ModeGCSEmulator)
	case ConfigErrorMissingEmulatorHost:
		return fmt.Sprintf("OBJECT_STORAGE_MODE=%q requires STORAGE_EMULATOR_HOST to be set", ModeGCSEmulator)
	case ConfigErrorInvalidEmulatorHost:
		return fmt.Sprintf("invalid STORAGE_EMULATOR_HOST=%q; expected absolute URL like http://fake-gcs:4443", e.EmulatorHost)
	default:
		return "invalid object storage config"
	}
}

func (e *ConfigError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func ResolveConfigFromEnv() (Config, error) {
	cfg := Config{EmulatorHost: strings.TrimSpace(os.Getenv("STORAGE_EMULATOR_HOST"))}

	rawMode := strings.TrimSpace(os.Getenv("OBJECT_STORAGE_MODE"))
	mode := Mode(strings.ToLower(rawMode))

	switch mode {
	case "":
		if cfg.EmulatorHost != "" {
			cfg.Mode = ModeGCSEmulator
			cfg.CompatibilityFallback = true
		} else {
			cfg.Mode = ModeGCS
		}
	case ModeGCS:
		cfg.Mode = ModeGCS
	case ModeGCSEmulator:
		cfg.Mode = ModeGCSEmulator
	default:
		return cfg, &ConfigError{Code: ConfigErrorInvalidMode, Mode: rawMode}
	}

	if err := ValidateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func ValidateConfig(cfg Config) error {
	if !IsSupportedMode(cfg.Mode) {
		return &ConfigError{Code: ConfigErrorInvalidMode, Mode: string(cfg.Mode)}
	}
	if !cfg.IsEmulatorMode() {
		return nil
	}
	if cfg.EmulatorHost == "" {
		return &ConfigError{Code: ConfigErrorMissingEmulatorHost, Mode: string(cfg.Mode)}
	}
	u, err := url.Parse(cfg.EmulatorHost)
	if err != nil || strings.TrimSpace(u.Scheme) == "" || strings.TrimSpace(u.Host) == "" {
		return &ConfigError{Code: ConfigErrorInvalidEmulatorHost, Mode: string(cfg.Mode), EmulatorHost: cfg.EmulatorHost, Cause: err}
	}
	return nil
}
