// Package config loads runtime settings from the environment, with an
// optional .env file in the working directory.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultEndpoint       = "http://esp32.local"
	defaultDeviceID       = "ESP32_01"
	defaultPollInterval   = 10 * time.Second
	defaultRequestTimeout = 10 * time.Second
	defaultLogFile        = "airdash.log"
	defaultMQTTPort       = 1883
	defaultMQTTClientID   = "airdash"
	defaultMQTTPrefix     = "airdash"
)

type Config struct {
	AppEnv   string
	LogLevel slog.Level
	// LogFile receives log output while the dashboard owns the terminal.
	LogFile string

	Endpoint       string
	DeviceID       string
	PollInterval   time.Duration
	RequestTimeout time.Duration

	// HTTPAddr is the status server listen address; empty disables it.
	HTTPAddr    string
	CORSOrigins []string

	// MQTTBroker is the relay broker host; empty disables the relay.
	MQTTBroker      string
	MQTTPort        int
	MQTTClientID    string
	MQTTTopicPrefix string
}

// Load reads configuration from environment variables (optionally .env).
func Load() (Config, error) {
	_ = godotenv.Load(".env")
	return LoadFromEnv()
}

// LoadFromEnv reads configuration from the process environment only.
func LoadFromEnv() (Config, error) {
	cfg := Config{}

	cfg.AppEnv = envOr("APP_ENV", "dev")
	switch cfg.AppEnv {
	case "dev", "prod":
	default:
		return Config{}, fmt.Errorf("invalid APP_ENV %q (allowed: dev, prod)", cfg.AppEnv)
	}

	level, err := parseLogLevel(envOr("LOG_LEVEL", "info"))
	if err != nil {
		return Config{}, err
	}
	cfg.LogLevel = level
	cfg.LogFile = envOr("LOG_FILE", defaultLogFile)

	cfg.Endpoint = strings.TrimRight(envOr("AIRDASH_ENDPOINT", defaultEndpoint), "/")
	u, err := url.Parse(cfg.Endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return Config{}, fmt.Errorf("invalid AIRDASH_ENDPOINT %q (want http(s)://host)", cfg.Endpoint)
	}

	cfg.DeviceID = envOr("DEVICE_ID", defaultDeviceID)

	if cfg.PollInterval, err = envDuration("POLL_INTERVAL", defaultPollInterval); err != nil {
		return Config{}, err
	}
	if cfg.RequestTimeout, err = envDuration("REQUEST_TIMEOUT", defaultRequestTimeout); err != nil {
		return Config{}, err
	}

	cfg.HTTPAddr = strings.TrimSpace(os.Getenv("HTTP_ADDR"))
	for _, o := range strings.Split(envOr("CORS_ORIGINS", "*"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			cfg.CORSOrigins = append(cfg.CORSOrigins, o)
		}
	}

	cfg.MQTTBroker = strings.TrimSpace(os.Getenv("MQTT_BROKER"))
	cfg.MQTTPort = defaultMQTTPort
	if v := strings.TrimSpace(os.Getenv("MQTT_PORT")); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port <= 0 || port > 65535 {
			return Config{}, fmt.Errorf("invalid MQTT_PORT %q", v)
		}
		cfg.MQTTPort = port
	}
	cfg.MQTTClientID = envOr("MQTT_CLIENT_ID", defaultMQTTClientID)
	cfg.MQTTTopicPrefix = strings.Trim(envOr("MQTT_TOPIC_PREFIX", defaultMQTTPrefix), "/")

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s %q: must be positive", key, v)
	}
	return d, nil
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q (allowed: debug, info, warn, error)", s)
	}
}
