package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sandai/pkbattle/src/app/battles"
	"github.com/sandai/pkbattle/src/domain/battle"
)

type Config struct {
	HTTPAddress string           `yaml:"http_address"`
	Log         LogConfig        `yaml:"log"`
	Store       StoreConfig      `yaml:"store"`
	Redis       RedisConfig      `yaml:"redis"`
	Segment     SegmentConfig    `yaml:"segment"`
	Economy     EconomyConfig    `yaml:"economy"`
	Auth        AuthConfig       `yaml:"auth"`
	Battle      BattleConfig     `yaml:"battle"`
	Gifts       map[string]int64 `yaml:"gifts"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

type StoreConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

type RedisConfig struct {
	Addr    string `yaml:"addr"`
	DB      int    `yaml:"db"`
	Channel string `yaml:"channel"`
}

type SegmentConfig struct {
	WriteKey string `yaml:"write_key"`
	Endpoint string `yaml:"endpoint"`
}

type EconomyConfig struct {
	Driver        string `yaml:"driver"`
	BaseURL       string `yaml:"base_url"`
	APIKey        string `yaml:"api_key"`
	StartingCoins int64  `yaml:"starting_coins"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

type BattleConfig struct {
	InviteTTL        time.Duration            `yaml:"invite_ttl"`
	Countdown        time.Duration            `yaml:"countdown"`
	Durations        map[string]time.Duration `yaml:"durations"`
	ExclusiveRooms   bool                     `yaml:"exclusive_rooms"`
	RecoveryInterval time.Duration            `yaml:"recovery_interval"`
	NodeID           int64                    `yaml:"node_id"`
}

func defaultConfig() Config {
	opts := battles.DefaultOptions()
	durations := make(map[string]time.Duration, len(opts.Durations))
	for typ, d := range opts.Durations {
		durations[string(typ)] = d
	}
	return Config{
		HTTPAddress: ":8080",
		Log:         LogConfig{Level: "info", MaxSizeMB: 100, MaxBackups: 5, MaxAgeDays: 14},
		Store:       StoreConfig{Driver: "memory"},
		Economy:     EconomyConfig{Driver: "memory", StartingCoins: 10000},
		Battle: BattleConfig{
			InviteTTL:        opts.InviteTTL,
			Countdown:        opts.Countdown,
			Durations:        durations,
			RecoveryInterval: 30 * time.Second,
			NodeID:           1,
		},
		Gifts: map[string]int64{"rose": 1, "heart": 10, "rocket": 500},
	}
}

// loadConfig reads the YAML file at path, when given, over the defaults and
// then applies PKBATTLE_* environment overrides.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.HTTPAddress = getEnv("PKBATTLE_HTTP_ADDR", cfg.HTTPAddress)
	cfg.Log.Level = getEnv("PKBATTLE_LOG_LEVEL", cfg.Log.Level)
	cfg.Log.File = getEnv("PKBATTLE_LOG_FILE", cfg.Log.File)
	cfg.Store.Driver = getEnv("PKBATTLE_STORE_DRIVER", cfg.Store.Driver)
	cfg.Store.DSN = getEnv("PKBATTLE_STORE_DSN", cfg.Store.DSN)
	cfg.Redis.Addr = getEnv("PKBATTLE_REDIS_ADDR", cfg.Redis.Addr)
	cfg.Segment.WriteKey = getEnv("PKBATTLE_SEGMENT_WRITE_KEY", cfg.Segment.WriteKey)
	cfg.Economy.Driver = getEnv("PKBATTLE_ECONOMY_DRIVER", cfg.Economy.Driver)
	cfg.Economy.BaseURL = getEnv("PKBATTLE_ECONOMY_URL", cfg.Economy.BaseURL)
	cfg.Economy.APIKey = getEnv("PKBATTLE_ECONOMY_API_KEY", cfg.Economy.APIKey)
	cfg.Auth.JWTSecret = getEnv("PKBATTLE_JWT_SECRET", cfg.Auth.JWTSecret)
	if v := getEnv("PKBATTLE_EXCLUSIVE_ROOMS", ""); v != "" {
		exclusive, err := strconv.ParseBool(v)
		if err != nil {
			return cfg, fmt.Errorf("PKBATTLE_EXCLUSIVE_ROOMS: %w", err)
		}
		cfg.Battle.ExclusiveRooms = exclusive
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	switch c.Store.Driver {
	case "memory":
	case "postgres":
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	switch c.Economy.Driver {
	case "memory":
	case "http":
		if c.Economy.BaseURL == "" {
			return fmt.Errorf("economy.base_url is required for the http driver")
		}
	default:
		return fmt.Errorf("unknown economy driver %q", c.Economy.Driver)
	}
	for typ := range c.Battle.Durations {
		if err := battle.Type(typ).Validate(); err != nil {
			return fmt.Errorf("battle.durations: %w", err)
		}
	}
	if c.Battle.RecoveryInterval <= 0 {
		return fmt.Errorf("battle.recovery_interval must be positive")
	}
	return nil
}

// battleOptions converts the battle section into service options.
func (c Config) battleOptions() battles.Options {
	opts := battles.DefaultOptions()
	if c.Battle.InviteTTL > 0 {
		opts.InviteTTL = c.Battle.InviteTTL
	}
	if c.Battle.Countdown > 0 {
		opts.Countdown = c.Battle.Countdown
	}
	for typ, d := range c.Battle.Durations {
		if d > 0 {
			opts.Durations[battle.Type(typ)] = d
		}
	}
	opts.ExclusiveRooms = c.Battle.ExclusiveRooms
	return opts
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
