package serial

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"go.bug.st/serial/enumerator"
)

// BridgeMarkers are substrings of port descriptions that identify the
// USB-to-serial bridges found on ESP32 dev boards. Matching is case-sensitive.
var BridgeMarkers = []string{"USB", "CH340", "CP210"}

// Port is a serial device as reported by the OS.
type Port struct {
	Name        string
	Description string
}

type Finder struct {
	list    func() ([]*enumerator.PortDetails, error)
	markers []string
	log     zerolog.Logger
}

func NewFinder(log zerolog.Logger) *Finder {
	return &Finder{
		list:    enumerator.GetDetailedPortsList,
		markers: BridgeMarkers,
		log:     log,
	}
}

// NewFinderWithLister creates a finder backed by a custom port lister (for testing).
func NewFinderWithLister(log zerolog.Logger, list func() ([]*enumerator.PortDetails, error)) *Finder {
	return &Finder{list: list, markers: BridgeMarkers, log: log}
}

func (f *Finder) Ports() ([]Port, error) {
	details, err := f.list()
	if err != nil {
		return nil, fmt.Errorf("enumerate ports: %w", err)
	}

	ports := make([]Port, 0, len(details))
	for _, d := range details {
		if d == nil {
			continue
		}
		ports = append(ports, Port{Name: d.Name, Description: describe(d)})
	}
	return ports, nil
}

// Find returns the first port, in OS enumeration order, whose description
// contains a bridge marker. found is false when nothing matches.
func (f *Finder) Find() (name string, found bool, err error) {
	ports, err := f.Ports()
	if err != nil {
		return "", false, err
	}

	for _, p := range ports {
		f.log.Info().Str("port", p.Name).Str("description", p.Description).Msg("detected serial port")
	}

	for _, p := range ports {
		if f.matches(p.Description) {
			return p.Name, true, nil
		}
	}
	return "", false, nil
}

func (f *Finder) matches(description string) bool {
	for _, m := range f.markers {
		if strings.Contains(description, m) {
			return true
		}
	}
	return false
}

// describe builds the human-readable description of a port. The enumerator
// exposes the USB product string; non-USB ports get "n/a".
func describe(d *enumerator.PortDetails) string {
	if !d.IsUSB {
		return "n/a"
	}
	if d.Product != "" {
		return d.Product
	}
	return fmt.Sprintf("USB VID:PID=%s:%s", strings.ToUpper(d.VID), strings.ToUpper(d.PID))
}
