package serial

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"go.bug.st/serial"

	"esp32-init/internal/command"
)

const (
	bootBaudRate    = 115200
	bootReadTimeout = 100 * time.Millisecond
	bootResetPulse  = 100 * time.Millisecond
	maxBootLog      = 4096
)

// Matches esptool ("MAC: ...") and ESPHome boot log ("MAC Address: ...") lines.
var macPattern = regexp.MustCompile(`MAC(?: Address)?:\s*([0-9a-fA-F:]{17})`)

// BootPort is the subset of serial.Port used to read a boot log.
type BootPort interface {
	io.ReadCloser
	SetReadTimeout(t time.Duration) error
	SetDTR(dtr bool) error
}

// PortOpener opens a serial device for reading.
type PortOpener func(name string) (BootPort, error)

type MACReader struct {
	port   string
	runner command.Runner
	open   PortOpener
}

func NewMACReader(port string, runner command.Runner) *MACReader {
	return &MACReader{port: port, runner: runner, open: openSerial}
}

// WithOpener replaces how the port is opened by ReadMACFromSerial (for testing).
func (r *MACReader) WithOpener(open PortOpener) *MACReader {
	r.open = open
	return r
}

func openSerial(name string) (BootPort, error) {
	return serial.Open(name, &serial.Mode{BaudRate: bootBaudRate})
}

func (r *MACReader) ReadMAC(ctx context.Context) (string, error) {
	output, err := r.runner.Output(ctx, "esptool.py", "--port", r.port, "read_mac")
	if err != nil {
		return "", fmt.Errorf("esptool read_mac failed: %w", err)
	}
	return ParseMAC(string(output))
}

// ReadMACFromSerial resets the board with DTR and scans its boot log for a
// MAC address until timeout.
func (r *MACReader) ReadMACFromSerial(ctx context.Context, timeout time.Duration) (string, error) {
	port, err := r.open(r.port)
	if err != nil {
		return "", fmt.Errorf("open port: %w", err)
	}
	defer port.Close()

	if err := port.SetReadTimeout(bootReadTimeout); err != nil {
		return "", fmt.Errorf("set timeout: %w", err)
	}

	if err := port.SetDTR(false); err == nil {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(bootResetPulse):
		}
		_ = port.SetDTR(true)
	}

	var log []byte
	chunk := make([]byte, 256)
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		n, err := port.Read(chunk)
		if n > 0 {
			log = append(log, chunk[:n]...)
			if len(log) > maxBootLog {
				log = log[len(log)-maxBootLog:]
			}
			if m := macPattern.FindSubmatch(log); m != nil {
				return strings.ToLower(string(m[1])), nil
			}
		}
		if err != nil {
			return "", fmt.Errorf("read %s: %w", r.port, err)
		}
	}

	return "", fmt.Errorf("timeout waiting for MAC address on %s", r.port)
}

// ParseMAC extracts the first "MAC: aa:bb:cc:dd:ee:ff" line from esptool
// output or an ESPHome boot log.
func ParseMAC(output string) (string, error) {
	matches := macPattern.FindStringSubmatch(output)
	if len(matches) < 2 {
		return "", fmt.Errorf("could not find MAC in output: %s", output)
	}
	return strings.ToLower(matches[1]), nil
}

// DeviceName derives "esp32-xxxxxx" from the last three bytes of a MAC.
func DeviceName(mac string) string {
	suffix := strings.ReplaceAll(mac, ":", "")
	if len(suffix) > 6 {
		suffix = suffix[len(suffix)-6:]
	}
	return "esp32-" + strings.ToLower(suffix)
}
