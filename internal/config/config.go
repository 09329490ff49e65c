// Package config holds the run configuration assembled from command-line
// flags, environment variables and an optional .env file.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"esp32-init/internal/flash"
)

// Secret sources.
const (
	SecretsRef    = "ref"
	SecretsEnv    = "env"
	SecretsFile   = "file"
	SecretsGcloud = "gcloud"
	SecretsGSM    = "gsm"
)

// API key sources.
const (
	KeysRandom  = "random"
	KeysOpenSSL = "openssl"
	KeysFixed   = "fixed"
)

// PromptSensors marks a sensor count that must be asked for interactively.
const PromptSensors = -1

type Config struct {
	Port         string
	Name         string
	FriendlyName string
	Sensors      int
	StaticIP     string

	ConfigPath string
	Tool       string
	Attempts   int
	RetryDelay time.Duration
	DryRun     bool

	Secrets     string
	SecretsFile string
	GCPProject  string
	Keys        string

	CredentialsDir string
	NoClipboard    bool

	LogLevel      string
	LogFormat     string
	DeviceLogging string
}

// Load parses args (without the program name). Unset flags fall back to
// ESP32INIT_* environment variables, which may come from a .env file in
// the working directory.
func Load(args []string, getenv func(string) string) (*Config, error) {
	if getenv == nil {
		if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load .env: %w", err)
		}
		getenv = os.Getenv
	}

	if err := checkIntEnv(getenv); err != nil {
		return nil, err
	}

	cfg := &Config{}
	fs := newFlagSet(cfg, getenv)
	fs.SetOutput(io.Discard)

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Usage writes the flag defaults to w.
func Usage(w io.Writer) {
	fs := newFlagSet(&Config{}, os.Getenv)
	fs.SetOutput(w)
	fmt.Fprintln(w, "Usage: esp32-init [flags]")
	fs.PrintDefaults()
}

func newFlagSet(cfg *Config, getenv func(string) string) *flag.FlagSet {
	fs := flag.NewFlagSet("esp32-init", flag.ContinueOnError)

	fs.StringVar(&cfg.Port, "port", getenv("ESP32INIT_PORT"), "Serial port (auto-detect if empty)")
	fs.StringVar(&cfg.Name, "name", getenv("ESP32INIT_NAME"), "Device name (prompted if empty)")
	fs.StringVar(&cfg.FriendlyName, "friendly-name", getenv("ESP32INIT_FRIENDLY_NAME"), "Human-readable device name")
	fs.IntVar(&cfg.Sensors, "sensors", envInt(getenv, "ESP32INIT_SENSORS", PromptSensors), "Number of ADC sensors (prompted if negative)")
	fs.StringVar(&cfg.StaticIP, "ip", getenv("ESP32INIT_IP"), "Static IP (discovered if empty)")

	fs.StringVar(&cfg.ConfigPath, "config-out", getenv("ESP32INIT_CONFIG_OUT"), "Generated YAML path (default config/esphome_config/esp32_initial_config.yaml)")
	fs.StringVar(&cfg.Tool, "esphome", envOr(getenv, "ESPHOME_PATH", flash.DefaultTool), "esphome executable")
	fs.IntVar(&cfg.Attempts, "attempts", envInt(getenv, "ESP32INIT_ATTEMPTS", flash.DefaultAttempts), "Flash attempts (1 disables retry)")
	fs.DurationVar(&cfg.RetryDelay, "retry-delay", flash.DefaultDelay, "Delay between flash attempts")
	fs.BoolVar(&cfg.DryRun, "dry-run", false, "Generate configuration only, don't flash")

	fs.StringVar(&cfg.Secrets, "secrets", envOr(getenv, "ESP32INIT_SECRETS", SecretsRef), "WiFi secrets source: ref, env, file, gcloud, gsm")
	fs.StringVar(&cfg.SecretsFile, "secrets-file", getenv("ESP32INIT_SECRETS_FILE"), "secrets.yaml for -secrets=file (default next to the config)")
	fs.StringVar(&cfg.GCPProject, "gcp-project", getenv("GOOGLE_CLOUD_PROJECT"), "GCP project for -secrets=gcloud|gsm (default: gcloud config project)")
	fs.StringVar(&cfg.Keys, "keys", envOr(getenv, "ESP32INIT_KEYS", KeysRandom), "API key source: random, openssl, fixed")

	fs.StringVar(&cfg.CredentialsDir, "credentials-dir", getenv("ESP32INIT_CREDENTIALS_DIR"), "Credential backup directory (default ~/.esp32-init/credentials)")
	fs.BoolVar(&cfg.NoClipboard, "no-clipboard", false, "Don't copy the API key to the clipboard")

	fs.StringVar(&cfg.LogLevel, "log-level", envOr(getenv, "ESP32INIT_LOG_LEVEL", "info"), "Tool log level")
	fs.StringVar(&cfg.LogFormat, "log-format", envOr(getenv, "ESP32INIT_LOG_FORMAT", "console"), "Tool log format: console, json")
	fs.StringVar(&cfg.DeviceLogging, "device-log-level", getenv("ESP32INIT_DEVICE_LOG_LEVEL"), "ESPHome logger level written to the device config")

	return fs
}

func (c *Config) Validate() error {
	if c.Attempts < 1 {
		return fmt.Errorf("attempts must be at least 1, got %d", c.Attempts)
	}
	if c.RetryDelay <= 0 {
		return fmt.Errorf("retry-delay must be positive, got %s", c.RetryDelay)
	}
	if c.Sensors < PromptSensors {
		return fmt.Errorf("sensors must be zero or more, got %d", c.Sensors)
	}

	switch c.Secrets {
	case SecretsRef, SecretsEnv, SecretsFile, SecretsGcloud, SecretsGSM:
	default:
		return fmt.Errorf("unknown secrets source %q", c.Secrets)
	}

	switch c.Keys {
	case KeysRandom, KeysOpenSSL, KeysFixed:
	default:
		return fmt.Errorf("unknown key source %q", c.Keys)
	}

	switch c.LogFormat {
	case "console", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.LogFormat)
	}
	return nil
}

var intEnv = []string{"ESP32INIT_SENSORS", "ESP32INIT_ATTEMPTS"}

func checkIntEnv(getenv func(string) string) error {
	for _, key := range intEnv {
		v := getenv(key)
		if v == "" {
			continue
		}
		if _, err := strconv.Atoi(v); err != nil {
			return fmt.Errorf("%s=%q is not a whole number", key, v)
		}
	}
	return nil
}

func envOr(getenv func(string) string, key, def string) string {
	if v := getenv(key); v != "" {
		return v
	}
	return def
}

// envInt returns def for unset or malformed values; Load rejects malformed
// ones before flags are built.
func envInt(getenv func(string) string, key string, def int) int {
	v := getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
