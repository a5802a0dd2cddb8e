package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Log struct {
		Mode string `yaml:"mode"` // dev or prod
	} `yaml:"log"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Tests struct {
		TTL string `yaml:"ttl"`
	} `yaml:"tests"`
	Auth struct {
		JWTSecret string `yaml:"jwt_secret"`
	} `yaml:"auth"`
	Session struct {
		TickInterval   string `yaml:"tick_interval"`
		BackupInterval string `yaml:"backup_interval"`
		BackupMaxAge   string `yaml:"backup_max_age"`
		AutoSaveEvery  string `yaml:"autosave_every"`
		Retention      string `yaml:"finished_retention"`
	} `yaml:"session"`
	Reconnect struct {
		Interval    string `yaml:"interval"`
		BaseDelay   string `yaml:"base_delay"`
		MaxDelay    string `yaml:"max_delay"`
		MaxAttempts int    `yaml:"max_attempts"`
	} `yaml:"reconnect"`
	Submit struct {
		MaxAttempts int    `yaml:"max_attempts"`
		Timeout     string `yaml:"timeout"`
	} `yaml:"submit"`
}

// Load reads YAML config from path. JWT_SECRET in the environment overrides the file.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		cfg.Auth.JWTSecret = secret
	}
	return cfg, nil
}

// Duration parses a duration string or returns the fallback if empty or invalid.
func Duration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
