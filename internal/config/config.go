package config

import (
	"fmt"
	"os"
	"time"

	"cbt-exam-service/internal/app"
	"cbt-exam-service/internal/domain"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Database struct {
		Driver string `yaml:"driver"`
		DSN    string `yaml:"dsn"`
	} `yaml:"database"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Catalog struct {
		TTL string `yaml:"ttl"`
	} `yaml:"catalog"`
	Export struct {
		Path    string `yaml:"path"`
		Format  string `yaml:"format"`
		LockTTL string `yaml:"lock_ttl"`
		Timeout string `yaml:"timeout"`
	} `yaml:"export"`
	Auth struct {
		Secret             string `yaml:"secret"`
		TokenTTL           string `yaml:"token_ttl"`
		UsernameAsPassword bool   `yaml:"username_as_password"`
	} `yaml:"auth"`
	Admin struct {
		Key string `yaml:"key"`
	} `yaml:"admin"`
	Seed struct {
		Path string `yaml:"path"`
	} `yaml:"seed"`
}

// Load reads YAML config from path. Environment variables override the
// secrets so they can stay out of the file.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	if v := os.Getenv("DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("AUTH_SECRET"); v != "" {
		cfg.Auth.Secret = v
	}
	if v := os.Getenv("ADMIN_KEY"); v != "" {
		cfg.Admin.Key = v
	}
	if cfg.Export.Path == "" {
		cfg.Export.Path = "submissions.xlsx"
	}
	if cfg.Export.Format == "" {
		cfg.Export.Format = "xlsx"
	}
	if cfg.Export.Format != "xlsx" && cfg.Export.Format != "csv" {
		return cfg, fmt.Errorf("unsupported export format %q", cfg.Export.Format)
	}
	return cfg, nil
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}

// Seed is the initial set of quiz takers and questions.
type Seed struct {
	Accounts  []app.SeedAccount `yaml:"accounts"`
	Questions []domain.Question `yaml:"questions"`
}

// LoadSeed reads a seed file from path.
func LoadSeed(path string) (Seed, error) {
	seed := Seed{}
	data, err := os.ReadFile(path)
	if err != nil {
		return seed, err
	}
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return seed, fmt.Errorf("parse seed %s: %w", path, err)
	}
	return seed, nil
}
