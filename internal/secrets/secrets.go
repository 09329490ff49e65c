// Package secrets resolves the WiFi credentials written into a device
// configuration. Resolution is pluggable: by default the configuration
// references ESPHome's own secrets.yaml and nothing is looked up here.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"esp32-init/internal/esphome"
)

const (
	KeyWiFiSSID     = "wifi_ssid"
	KeyWiFiPassword = "wifi_password"
)

var ErrNotFound = errors.New("secret not found")

// Source looks up a secret by its ESPHome key (e.g. "wifi_ssid").
type Source interface {
	Lookup(ctx context.Context, key string) (string, error)
}

// WiFi resolves the SSID and password. A nil source yields !secret references.
func WiFi(ctx context.Context, src Source) (esphome.WiFiSecrets, error) {
	if src == nil {
		return esphome.WiFiSecrets{
			SSID:     esphome.SecretRef(KeyWiFiSSID),
			Password: esphome.SecretRef(KeyWiFiPassword),
		}, nil
	}

	ssid, err := src.Lookup(ctx, KeyWiFiSSID)
	if err != nil {
		return esphome.WiFiSecrets{}, fmt.Errorf("lookup %s: %w", KeyWiFiSSID, err)
	}
	password, err := src.Lookup(ctx, KeyWiFiPassword)
	if err != nil {
		return esphome.WiFiSecrets{}, fmt.Errorf("lookup %s: %w", KeyWiFiPassword, err)
	}

	return esphome.WiFiSecrets{
		SSID:     esphome.Inline(ssid),
		Password: esphome.Inline(password),
	}, nil
}

// EnvSource reads WIFI_SSID / WIFI_PASSWORD style variables.
type EnvSource struct {
	Getenv func(string) string
}

func (s EnvSource) Lookup(ctx context.Context, key string) (string, error) {
	getenv := s.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	name := strings.ToUpper(key)
	v := getenv(name)
	if v == "" {
		return "", fmt.Errorf("%w: environment variable %s is not set", ErrNotFound, name)
	}
	return v, nil
}

// FileSource reads an ESPHome secrets.yaml. Entries may hold any YAML value;
// only the keys looked up must be scalars.
type FileSource struct {
	values map[string]yaml.Node
	path   string
}

func LoadFile(path string) (*FileSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read secrets file: %w", err)
	}

	values := map[string]yaml.Node{}
	if err := yaml.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("parse secrets file %s: %w", path, err)
	}
	return &FileSource{values: values, path: path}, nil
}

func (s *FileSource) Lookup(ctx context.Context, key string) (string, error) {
	node, ok := s.values[key]
	if !ok {
		return "", fmt.Errorf("%w: %s has no %q", ErrNotFound, s.path, key)
	}

	n := &node
	if n.Kind == yaml.AliasNode && n.Alias != nil {
		n = n.Alias
	}
	if n.Kind != yaml.ScalarNode {
		return "", fmt.Errorf("%s: %q must be a single value, line %d", s.path, key, node.Line)
	}
	if n.Value == "" || n.Tag == "!!null" {
		return "", fmt.Errorf("%w: %s has an empty %q", ErrNotFound, s.path, key)
	}
	return n.Value, nil
}
