// Package config loads service configuration from an optional YAML file
// with environment-variable overrides.
package config

import (
    "os"
    "strconv"
    "time"

    yaml "gopkg.in/yaml.v3"
)

type Config struct {
    Port        string  `yaml:"port"`
    DatabaseURL string  `yaml:"databaseUrl"`
    RedisURL    string  `yaml:"redisUrl"`
    AuthMode    string  `yaml:"authMode"`
    AuthSecret  string  `yaml:"authSecret"`
    // InboundSecret verifies provider callbacks this service receives.
    InboundSecret string `yaml:"inboundSecret"`

    TickSeconds  int     `yaml:"tickSeconds"`
    MaxAttempts  int     `yaml:"maxAttempts"`
    DeliveryRPS  float64 `yaml:"deliveryRps"`
}

// Load reads the YAML file at path (if it exists), then applies env
// overrides. Missing file is not an error; env alone is enough.
func Load(path string) (Config, error) {
    cfg := Config{
        Port:        "8080",
        AuthMode:    "dev",
        TickSeconds: 60,
    }
    if path != "" {
        data, err := os.ReadFile(path)
        if err == nil {
            if err := yaml.Unmarshal(data, &cfg); err != nil {
                return cfg, err
            }
        } else if !os.IsNotExist(err) {
            return cfg, err
        }
    }
    overrideString(&cfg.Port, "PORT")
    overrideString(&cfg.DatabaseURL, "DATABASE_URL")
    overrideString(&cfg.RedisURL, "REDIS_URL")
    overrideString(&cfg.AuthMode, "AUTH_MODE")
    overrideString(&cfg.AuthSecret, "AUTH_HMAC_SECRET")
    overrideString(&cfg.InboundSecret, "INBOUND_WEBHOOK_SECRET")
    overrideInt(&cfg.TickSeconds, "WEBHOOK_TICK_SECONDS")
    overrideInt(&cfg.MaxAttempts, "WEBHOOK_MAX_ATTEMPTS")
    overrideFloat(&cfg.DeliveryRPS, "WEBHOOK_RATE_RPS")
    return cfg, nil
}

func (c Config) Tick() time.Duration { return time.Duration(c.TickSeconds) * time.Second }

func overrideString(dst *string, key string) {
    if v := os.Getenv(key); v != "" { *dst = v }
}

func overrideInt(dst *int, key string) {
    if v := os.Getenv(key); v != "" {
        if n, err := strconv.Atoi(v); err == nil { *dst = n }
    }
}

func overrideFloat(dst *float64, key string) {
    if v := os.Getenv(key); v != "" {
        if f, err := strconv.ParseFloat(v, 64); err == nil { *dst = f }
    }
}
