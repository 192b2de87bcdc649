package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "REMINDD_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "storage.data_dir", typ: kString, env: "REMINDD_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "backup.dir", typ: kString, env: "REMINDD_BACKUP_DIR",
		apply:   func(cfg *Config, v any) { cfg.Backup.Dir = v.(string) },
		extract: func(cfg Config) any { return cfg.Backup.Dir },
	},
	{
		key: "backup.debounce_delay", typ: kString, env: "REMINDD_BACKUP_DEBOUNCE_DELAY",
		apply:   func(cfg *Config, v any) { cfg.Backup.DebounceDelay = v.(string) },
		extract: func(cfg Config) any { return cfg.Backup.DebounceDelay },
	},
	{
		key: "alarm.exact_enabled", typ: kBool, env: "REMINDD_ALARM_EXACT_ENABLED",
		apply:   func(cfg *Config, v any) { cfg.Alarm.ExactEnabled = v.(bool) },
		extract: func(cfg Config) any { return cfg.Alarm.ExactEnabled },
	},
	{
		key: "alarm.inexact_window", typ: kString, env: "REMINDD_ALARM_INEXACT_WINDOW",
		apply:   func(cfg *Config, v any) { cfg.Alarm.InexactWindow = v.(string) },
		extract: func(cfg Config) any { return cfg.Alarm.InexactWindow },
	},
	{
		key: "notify.backend", typ: kString, env: "REMINDD_NOTIFY_BACKEND",
		apply:   func(cfg *Config, v any) { cfg.Notify.Backend = v.(string) },
		extract: func(cfg Config) any { return cfg.Notify.Backend },
	},
	{
		key: "log.level", typ: kString, env: "REMINDD_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "api.token", typ: kString, env: "REMINDD_API_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.API.Token = v.(string) },
		extract: func(cfg Config) any { return cfg.API.Token },
	},
}

func applyBackend(cfg *Config, b Backend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kBool:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if bv, err := strconv.ParseBool(v); err == nil {
					s.apply(cfg, bv)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kBool:
			if b, err := strconv.ParseBool(raw); err == nil {
				s.apply(cfg, b)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
