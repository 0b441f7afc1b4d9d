package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Server struct {
		Addr string `toml:"addr"`
	} `toml:"server"`

	Sync struct {
		Scopes                 []string `toml:"scopes"`
		IntervalSec            int      `toml:"interval_sec"`
		BulkRefreshIntervalSec int      `toml:"bulk_refresh_interval_sec"`
	} `toml:"sync"`

	Markets struct {
		Direct string   `toml:"direct"`
		Stream []string `toml:"stream"`
	} `toml:"markets"`

	Quotes struct {
		Direct struct {
			BaseURL    string `toml:"base_url"`
			APIKey     string `toml:"api_key"`
			TimeoutSec int    `toml:"timeout_sec"`
		} `toml:"direct"`

		Bulk struct {
			URL        string `toml:"url"`
			Token      string `toml:"token"`
			TimeoutSec int    `toml:"timeout_sec"`
		} `toml:"bulk"`

		Stream struct {
			Enabled bool     `toml:"enabled"`
			WsURL   string   `toml:"ws_url"`
			Symbols []string `toml:"symbols"`
		} `toml:"stream"`
	} `toml:"quotes"`

	RateLimit struct {
		Backend     string `toml:"backend"` // memory | redis
		UserLimit   int    `toml:"user_limit"`
		StrictLimit int    `toml:"strict_limit"`
		IPLimit     int    `toml:"ip_limit"`
		WindowSec   int    `toml:"window_sec"`
	} `toml:"ratelimit"`

	Storage struct {
		Backend string `toml:"backend"` // sqlite | postgres

		SQLite struct {
			Path string `toml:"path"`
		} `toml:"sqlite"`

		Postgres struct {
			DSN string `toml:"dsn"`
		} `toml:"postgres"`

		Redis struct {
			Addr     string `toml:"addr"`
			Password string `toml:"password"`
			DB       int    `toml:"db"`
			Prefix   string `toml:"prefix"`
		} `toml:"redis"`
	} `toml:"storage"`
}

func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.Server.Addr) == "" {
		cfg.Server.Addr = ":8080"
	}
	if len(cfg.Sync.Scopes) == 0 {
		cfg.Sync.Scopes = []string{"trades", "trades1", "vip_trades"}
	}
	if cfg.Sync.IntervalSec <= 0 {
		cfg.Sync.IntervalSec = 30
	}
	if cfg.Sync.BulkRefreshIntervalSec <= 0 {
		cfg.Sync.BulkRefreshIntervalSec = 30
	}
	if strings.TrimSpace(cfg.Markets.Direct) == "" {
		cfg.Markets.Direct = "usa"
	}
	if cfg.Quotes.Direct.TimeoutSec <= 0 {
		cfg.Quotes.Direct.TimeoutSec = 8
	}
	if cfg.Quotes.Bulk.TimeoutSec <= 0 {
		cfg.Quotes.Bulk.TimeoutSec = 15
	}
	if strings.TrimSpace(cfg.RateLimit.Backend) == "" {
		cfg.RateLimit.Backend = "memory"
	}
	if cfg.RateLimit.UserLimit <= 0 {
		cfg.RateLimit.UserLimit = 6
	}
	if cfg.RateLimit.StrictLimit <= 0 {
		cfg.RateLimit.StrictLimit = 2
	}
	if cfg.RateLimit.IPLimit <= 0 {
		cfg.RateLimit.IPLimit = 3
	}
	if cfg.RateLimit.WindowSec <= 0 {
		cfg.RateLimit.WindowSec = 1
	}
	if strings.TrimSpace(cfg.Storage.Backend) == "" {
		cfg.Storage.Backend = "sqlite"
	}
	if strings.TrimSpace(cfg.Storage.SQLite.Path) == "" {
		cfg.Storage.SQLite.Path = "marksync.db"
	}
	if strings.TrimSpace(cfg.Storage.Redis.Prefix) == "" {
		cfg.Storage.Redis.Prefix = "marksync"
	}
}

func validate(cfg *Config) error {
	cfg.Sync.Scopes = normalizeScopes(cfg.Sync.Scopes)
	if len(cfg.Sync.Scopes) == 0 {
		return errors.New("sync.scopes is empty")
	}

	if strings.TrimSpace(cfg.Quotes.Direct.BaseURL) == "" {
		return errors.New("quotes.direct.base_url is empty")
	}
	if strings.TrimSpace(cfg.Quotes.Bulk.URL) == "" {
		return errors.New("quotes.bulk.url is empty")
	}
	if cfg.Quotes.Stream.Enabled && strings.TrimSpace(cfg.Quotes.Stream.WsURL) == "" {
		return errors.New("quotes.stream.ws_url empty but enabled")
	}

	switch cfg.RateLimit.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("ratelimit.backend must be memory or redis, got %q", cfg.RateLimit.Backend)
	}
	if cfg.RateLimit.Backend == "redis" && strings.TrimSpace(cfg.Storage.Redis.Addr) == "" {
		return errors.New("storage.redis.addr empty but ratelimit.backend is redis")
	}

	switch cfg.Storage.Backend {
	case "sqlite":
	case "postgres":
		if strings.TrimSpace(cfg.Storage.Postgres.DSN) == "" {
			return errors.New("storage.postgres.dsn empty but backend is postgres")
		}
	default:
		return fmt.Errorf("storage.backend must be sqlite or postgres, got %q", cfg.Storage.Backend)
	}
	return nil
}

func normalizeScopes(in []string) []string {
	out := make([]string, 0, len(in))
	seen := map[string]struct{}{}
	for _, s := range in {
		t := strings.ToLower(strings.TrimSpace(s))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
