package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

type Config struct {
	Server  ServerConfig
	Storage StorageConfig
	Backup  BackupConfig
	Alarm   AlarmConfig
	Notify  NotifyConfig
	Log     LogConfig
	API     APIConfig
}

type ServerConfig struct {
	Port int
}

type StorageConfig struct {
	DataDir string
}

type BackupConfig struct {
	Dir string
	// DebounceDelay is a Go duration string, e.g. "5s".
	DebounceDelay string
}

type AlarmConfig struct {
	// ExactEnabled reflects whether the platform grants exact wakeups.
	// When false every alarm degrades to an inexact window.
	ExactEnabled bool
	// InexactWindow is a Go duration string bounding inexact slack.
	InexactWindow string
}

type NotifyConfig struct {
	// Backend selects the notification transport: "desktop" or "log".
	Backend string
}

type LogConfig struct {
	Level string
}

type APIConfig struct {
	// Token, when set, is required as a bearer token on every API request.
	Token string
}

func defaults() Config {
	dataDir := defaultDataDir()
	return Config{
		Server: ServerConfig{
			Port: 4200,
		},
		Storage: StorageConfig{
			DataDir: dataDir,
		},
		Backup: BackupConfig{
			Dir:           filepath.Join(dataDir, "backups"),
			DebounceDelay: "5s",
		},
		Alarm: AlarmConfig{
			ExactEnabled:  true,
			InexactWindow: "10m",
		},
		Notify: NotifyConfig{
			Backend: "desktop",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func defaultDataDir() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			return "remindd-data"
		}
	}
	return filepath.Join(dir, "remindd")
}

// Load reads configuration from the JSON file at
// $XDG_CONFIG_HOME/remindd/config.json with REMINDD_* environment variables
// overriding file values. Missing file and missing keys fall back to defaults.
func Load() (Config, error) {
	return loadWith(newFileBackend())
}

func loadWith(b Backend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}
	applyEnvOverrides(&cfg)

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validate(cfg Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", cfg.Server.Port)
	}
	if _, err := time.ParseDuration(cfg.Backup.DebounceDelay); err != nil {
		return fmt.Errorf("invalid backup.debounce_delay %q: %w", cfg.Backup.DebounceDelay, err)
	}
	if _, err := time.ParseDuration(cfg.Alarm.InexactWindow); err != nil {
		return fmt.Errorf("invalid alarm.inexact_window %q: %w", cfg.Alarm.InexactWindow, err)
	}
	switch cfg.Notify.Backend {
	case "desktop", "log":
	default:
		return fmt.Errorf("unknown notify.backend %q (want \"desktop\" or \"log\")", cfg.Notify.Backend)
	}
	return nil
}

// DebounceDelay returns the parsed debounce duration. Call after Load, which
// validates the string form.
func (c Config) DebounceDelay() time.Duration {
	d, _ := time.ParseDuration(c.Backup.DebounceDelay)
	return d
}

// InexactWindow returns the parsed inexact alarm window.
func (c Config) InexactWindow() time.Duration {
	d, _ := time.ParseDuration(c.Alarm.InexactWindow)
	return d
}
