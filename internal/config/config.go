package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/samjmck/opnfn/internal/logging"
)

type Server struct {
	Port              string `json:"port"`
	RequestTimeoutSec int    `json:"request_timeout_sec"`
}

type Yahoo struct {
	Enabled               bool   `json:"enabled"`
	BaseURL               string `json:"base_url"`
	MaxRequestsPerMinute  int    `json:"max_requests_per_minute"`
	MinRequestIntervalSec int    `json:"min_request_interval_sec"`
	Burst                 int    `json:"burst"`
}

type GoogleFinance struct {
	Enabled               bool   `json:"enabled"`
	BaseURL               string `json:"base_url"`
	MaxRequestsPerMinute  int    `json:"max_requests_per_minute"`
	MinRequestIntervalSec int    `json:"min_request_interval_sec"`
	Burst                 int    `json:"burst"`
}

type AlphaVantage struct {
	Enabled               bool   `json:"enabled"`
	APIKey                string `json:"api_key"`
	BaseURL               string `json:"base_url"`
	MaxRequestsPerMinute  int    `json:"max_requests_per_minute"`
	MinRequestIntervalSec int    `json:"min_request_interval_sec"`
	Burst                 int    `json:"burst"`
}

type CacheConfig struct {
	// Backend selects "memory" or "redis".
	Backend   string `json:"backend"`
	MaxItems  int    `json:"max_items"`
	RedisAddr string `json:"redis_addr"`
	RedisDB   int    `json:"redis_db"`
	KeyPrefix string `json:"key_prefix"`
}

type Aggregator struct {
	MaxPasses    int `json:"max_passes"`
	LookbackDays int `json:"lookback_days"`
}

type Config struct {
	Server        Server         `json:"server"`
	Yahoo         Yahoo          `json:"yahoo"`
	GoogleFinance GoogleFinance  `json:"google_finance"`
	AlphaVantage  AlphaVantage   `json:"alpha_vantage"`
	Cache         CacheConfig    `json:"cache"`
	Aggregator    Aggregator     `json:"aggregator"`
	Logging       logging.Config `json:"logging"`
}

func Default() Config {
	return Config{
		Server: Server{Port: "8080", RequestTimeoutSec: 10},
		Yahoo: Yahoo{
			Enabled:              true,
			MaxRequestsPerMinute: 120,
			Burst:                20,
		},
		GoogleFinance: GoogleFinance{
			Enabled:              true,
			MaxRequestsPerMinute: 30,
			Burst:                5,
		},
		AlphaVantage: AlphaVantage{
			// Free tier: 5 requests per minute, 500 per day.
			Enabled:              false,
			MaxRequestsPerMinute: 5,
			Burst:                1,
		},
		Cache: CacheConfig{
			Backend:   "memory",
			MaxItems:  50000,
			RedisAddr: "localhost:6379",
			KeyPrefix: "opnfn",
		},
		Aggregator: Aggregator{MaxPasses: 2, LookbackDays: 21},
		Logging:    logging.Default(),
	}
}

// Load reads JSON config from path. If path is empty or the file does not
// exist, it returns defaults. Environment variables override select fields
// for secrecy.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		if _, err := os.Stat("config.json"); err == nil {
			path = "config.json"
		}
	}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err == nil {
			if err := json.Unmarshal(b, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config: %w", err)
			}
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Server.Port = v
	}
	if v := os.Getenv("REQUEST_TIMEOUT_SEC"); v != "" {
		if x := atoi(v); x > 0 {
			cfg.Server.RequestTimeoutSec = x
		}
	}
	if v := os.Getenv("YAHOO_ENABLED"); v != "" {
		cfg.Yahoo.Enabled = parseBool(v, cfg.Yahoo.Enabled)
	}
	if v := os.Getenv("YAHOO_BASE_URL"); v != "" {
		cfg.Yahoo.BaseURL = v
	}
	if v := os.Getenv("YAHOO_MAX_RPM"); v != "" {
		if x := atoi(v); x >= 0 {
			cfg.Yahoo.MaxRequestsPerMinute = x
		}
	}
	if v := os.Getenv("GOOGLE_FINANCE_ENABLED"); v != "" {
		cfg.GoogleFinance.Enabled = parseBool(v, cfg.GoogleFinance.Enabled)
	}
	if v := os.Getenv("GOOGLE_FINANCE_MAX_RPM"); v != "" {
		if x := atoi(v); x >= 0 {
			cfg.GoogleFinance.MaxRequestsPerMinute = x
		}
	}
	if v := os.Getenv("ALPHA_VANTAGE_ENABLED"); v != "" {
		cfg.AlphaVantage.Enabled = parseBool(v, cfg.AlphaVantage.Enabled)
	}
	if v := os.Getenv("ALPHA_VANTAGE_API_KEY"); v != "" {
		cfg.AlphaVantage.APIKey = v
	}
	if v := os.Getenv("ALPHA_VANTAGE_MAX_RPM"); v != "" {
		if x := atoi(v); x >= 0 {
			cfg.AlphaVantage.MaxRequestsPerMinute = x
		}
	}
	if v := os.Getenv("CACHE_BACKEND"); v != "" {
		cfg.Cache.Backend = strings.ToLower(v)
	}
	if v := os.Getenv("CACHE_MAX_ITEMS"); v != "" {
		if x := atoi(v); x > 0 {
			cfg.Cache.MaxItems = x
		}
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Cache.RedisAddr = v
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		if x := atoi(v); x >= 0 {
			cfg.Cache.RedisDB = x
		}
	}
	if v := os.Getenv("MAX_PASSES"); v != "" {
		if x := atoi(v); x > 0 {
			cfg.Aggregator.MaxPasses = x
		}
	}
	if v := os.Getenv("LOOKBACK_DAYS"); v != "" {
		if x := atoi(v); x > 0 {
			cfg.Aggregator.LookbackDays = x
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("LOG_FILE"); v != "" {
		cfg.Logging.File = true
		cfg.Logging.FilePath = v
	}
}

func atoi(s string) int {
	var x int
	_, _ = fmt.Sscanf(s, "%d", &x)
	return x
}

func parseBool(v string, def bool) bool {
	switch strings.ToLower(v) {
	case "1", "true", "yes", "y":
		return true
	case "0", "false", "no", "n":
		return false
	}
	return def
}
