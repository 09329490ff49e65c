// Package esphome builds and writes the ESPHome device configuration
// flashed onto a freshly initialized board.
package esphome

import (
	"gopkg.in/yaml.v3"
)

// Record is a complete ESPHome configuration for one device.
type Record struct {
	ESPHome Identity `yaml:"esphome"`
	ESP32   Platform `yaml:"esp32"`
	Logger  Logger   `yaml:"logger"`
	API     API      `yaml:"api"`
	OTA     []OTA    `yaml:"ota"`
	WiFi    WiFi     `yaml:"wifi"`
	Sensors []Sensor `yaml:"sensor,omitempty"`
}

type Identity struct {
	Name         string `yaml:"name"`
	FriendlyName string `yaml:"friendly_name"`
}

type Platform struct {
	Board     string    `yaml:"board"`
	Framework Framework `yaml:"framework"`
}

type Framework struct {
	Type string `yaml:"type"`
}

// Logger renders as "logger: {}" when no level is set.
type Logger struct {
	Level string `yaml:"level,omitempty"`
}

type API struct {
	Encryption Encryption `yaml:"encryption"`
}

type Encryption struct {
	Key string `yaml:"key"`
}

type OTA struct {
	Platform string `yaml:"platform"`
	Password string `yaml:"password"`
}

type WiFi struct {
	SSID        Secret      `yaml:"ssid"`
	Password    Secret      `yaml:"password"`
	FastConnect bool        `yaml:"fast_connect"`
	ManualIP    ManualIP    `yaml:"manual_ip"`
	AP          AccessPoint `yaml:"ap"`
}

type ManualIP struct {
	StaticIP string `yaml:"static_ip"`
	Gateway  string `yaml:"gateway"`
	Subnet   string `yaml:"subnet"`
}

// AccessPoint is the fallback hotspot the device opens when it cannot join WiFi.
type AccessPoint struct {
	SSID     string `yaml:"ssid"`
	Password string `yaml:"password"`
}

type Sensor struct {
	Platform       string   `yaml:"platform"`
	Pin            string   `yaml:"pin"`
	Name           string   `yaml:"name"`
	ID             string   `yaml:"id"`
	Unit           string   `yaml:"unit_of_measurement"`
	UpdateInterval string   `yaml:"update_interval"`
	Attenuation    string   `yaml:"attenuation"`
	Filters        []Filter `yaml:"filters"`
}

type Filter struct {
	Median *Median `yaml:"median,omitempty"`
}

type Median struct {
	WindowSize  int `yaml:"window_size"`
	SendEvery   int `yaml:"send_every"`
	SendFirstAt int `yaml:"send_first_at"`
}

// Secret is a scalar that is either written inline or as an ESPHome
// "!secret <key>" reference resolved by ESPHome from its secrets.yaml.
type Secret struct {
	ref   string
	value string
}

// SecretRef references key in ESPHome's secrets.yaml.
func SecretRef(key string) Secret {
	return Secret{ref: key}
}

// Inline embeds the value directly in the configuration.
func Inline(value string) Secret {
	return Secret{value: value}
}

// Ref returns the referenced key, or "" for inline values.
func (s Secret) Ref() string {
	return s.ref
}

// Value returns the inline value, or "" for references.
func (s Secret) Value() string {
	return s.value
}

func (s Secret) IsZero() bool {
	return s.ref == "" && s.value == ""
}

func (s Secret) MarshalYAML() (any, error) {
	if s.ref != "" {
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!secret", Value: s.ref}, nil
	}
	return s.value, nil
}
