package esphome

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"esp32-init/internal/netaddr"
)

const (
	Board         = "esp32dev"
	FrameworkType = "arduino"
	OTAPlatform   = "esphome"

	DefaultName         = "esp32-sensor-detector"
	DefaultFriendlyName = "ESP32 Sensor Detector"
	FallbackAPSSID      = "ESP32 Fallback Hotspot"

	// APIKeyBytes is the size of the decoded API encryption key.
	APIKeyBytes = 32
	// MaxNameLength is ESPHome's hostname limit.
	MaxNameLength = 31

	sensorPlatform    = "adc"
	sensorUnit        = "V"
	sensorInterval    = "5s"
	sensorAttenuation = "12db"
	medianWindow      = 5
)

// Pins are the ADC-capable GPIOs assigned to sensors, in order.
var Pins = []string{"GPIO32", "GPIO33", "GPIO34", "GPIO35", "GPIO36", "GPIO39"}

var (
	ErrInvalidRecord = errors.New("invalid device configuration")

	namePattern    = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)
	invalidNameRun = regexp.MustCompile(`[^a-z0-9]+`)
)

// KeySource produces the base64 API encryption key.
type KeySource interface {
	APIKey(ctx context.Context) (string, error)
}

// WiFiSecrets are the network credentials, inline or as !secret references.
type WiFiSecrets struct {
	SSID     Secret
	Password Secret
}

// Input collects everything needed to synthesize a Record.
type Input struct {
	Name         string
	FriendlyName string
	// Sensors is the requested sensor count. Values above len(Pins) are clamped.
	Sensors     int
	Network     netaddr.Network
	WiFi        WiFiSecrets
	OTAPassword string
	APPassword  string
	LogLevel    string
}

type Synthesizer struct {
	keys KeySource
	log  zerolog.Logger
}

func NewSynthesizer(keys KeySource, log zerolog.Logger) *Synthesizer {
	return &Synthesizer{keys: keys, log: log}
}

// Build assembles and validates a fresh Record.
func (s *Synthesizer) Build(ctx context.Context, in Input) (*Record, error) {
	if in.Sensors < 0 {
		return nil, fmt.Errorf("%w: sensor count %d is negative", ErrInvalidRecord, in.Sensors)
	}

	key, err := s.keys.APIKey(ctx)
	if err != nil {
		return nil, fmt.Errorf("generate API key: %w", err)
	}

	friendly := in.FriendlyName
	if friendly == "" {
		friendly = in.Name
	}

	rec := &Record{
		ESPHome: Identity{Name: in.Name, FriendlyName: friendly},
		ESP32: Platform{
			Board:     Board,
			Framework: Framework{Type: FrameworkType},
		},
		Logger: Logger{Level: in.LogLevel},
		API:    API{Encryption: Encryption{Key: key}},
		OTA:    []OTA{{Platform: OTAPlatform, Password: in.OTAPassword}},
		WiFi: WiFi{
			SSID:        in.WiFi.SSID,
			Password:    in.WiFi.Password,
			FastConnect: true,
			ManualIP: ManualIP{
				StaticIP: in.Network.StaticIP,
				Gateway:  in.Network.Gateway,
				Subnet:   in.Network.Subnet,
			},
			AP: AccessPoint{SSID: FallbackAPSSID, Password: in.APPassword},
		},
		Sensors: s.sensors(in.Sensors),
	}

	if err := rec.Validate(); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *Synthesizer) sensors(requested int) []Sensor {
	count := requested
	if count > len(Pins) {
		s.log.Warn().
			Int("requested", requested).
			Int("available", len(Pins)).
			Msg("sensor count exceeds available pins, truncating")
		count = len(Pins)
	}

	sensors := make([]Sensor, 0, count)
	for i := 1; i <= count; i++ {
		sensors = append(sensors, NewSensor(i))
	}
	return sensors
}

// NewSensor returns the ADC voltage sensor at 1-based position i.
func NewSensor(i int) Sensor {
	return Sensor{
		Platform:       sensorPlatform,
		Pin:            Pins[i-1],
		Name:           fmt.Sprintf("Sensor Voltage %d", i),
		ID:             fmt.Sprintf("sensor_voltage_%d", i),
		Unit:           sensorUnit,
		UpdateInterval: sensorInterval,
		Attenuation:    sensorAttenuation,
		Filters: []Filter{
			{Median: &Median{WindowSize: medianWindow, SendEvery: 1, SendFirstAt: 1}},
		},
	}
}

// Validate checks the record's structural invariants.
func (r *Record) Validate() error {
	var problems []string

	if !ValidName(r.ESPHome.Name) {
		problems = append(problems, fmt.Sprintf("name %q must be 1-%d lowercase letters, digits or hyphens", r.ESPHome.Name, MaxNameLength))
	}

	if raw, err := base64.StdEncoding.DecodeString(r.API.Encryption.Key); err != nil || len(raw) != APIKeyBytes {
		problems = append(problems, fmt.Sprintf("API key must be %d base64-encoded bytes", APIKeyBytes))
	}

	for _, o := range r.OTA {
		if o.Password == "" {
			problems = append(problems, "OTA password is empty")
		}
	}

	if r.WiFi.SSID.IsZero() || r.WiFi.Password.IsZero() {
		problems = append(problems, "WiFi SSID and password must be set")
	}
	if len(r.WiFi.AP.Password) > 0 && len(r.WiFi.AP.Password) < 8 {
		problems = append(problems, "fallback AP password must be at least 8 characters")
	}

	ip := r.WiFi.ManualIP
	prefix, err := netaddr.Prefix(ip.Gateway)
	switch {
	case err != nil:
		problems = append(problems, fmt.Sprintf("gateway %q is not an IPv4 address", ip.Gateway))
	case !netaddr.InSubnet(prefix, ip.StaticIP):
		problems = append(problems, fmt.Sprintf("static IP %q is outside %s.0/24", ip.StaticIP, prefix))
	}
	if ip.Subnet != netaddr.SubnetMask {
		problems = append(problems, fmt.Sprintf("subnet %q must be %s", ip.Subnet, netaddr.SubnetMask))
	}

	if len(r.Sensors) > len(Pins) {
		problems = append(problems, fmt.Sprintf("%d sensors exceed %d available pins", len(r.Sensors), len(Pins)))
	}
	seen := make(map[string]bool, len(r.Sensors))
	for _, s := range r.Sensors {
		if seen[s.Pin] {
			problems = append(problems, fmt.Sprintf("pin %s assigned twice", s.Pin))
		}
		seen[s.Pin] = true
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidRecord, strings.Join(problems, "; "))
	}
	return nil
}

// ValidName reports whether name is usable as an ESPHome node name.
func ValidName(name string) bool {
	return len(name) <= MaxNameLength && namePattern.MatchString(name)
}

// SanitizeName lowercases name and collapses invalid characters to hyphens.
// The result may still be empty.
func SanitizeName(name string) string {
	s := invalidNameRun.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "-")
	s = strings.Trim(s, "-")
	if len(s) > MaxNameLength {
		s = strings.TrimRight(s[:MaxNameLength], "-")
	}
	return s
}
