package serial

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"
)

type mockRunner struct {
	output []byte
	err    error
	name   string
	args   []string
}

func (m *mockRunner) Run(ctx context.Context, name string, args ...string) error {
	m.name, m.args = name, args
	return m.err
}

func (m *mockRunner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	m.name, m.args = name, args
	return m.output, m.err
}

func TestParseMAC(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"MAC: aa:bb:cc:dd:ee:ff", "aa:bb:cc:dd:ee:ff"},
		{"MAC:AA:BB:CC:DD:EE:FF", "aa:bb:cc:dd:ee:ff"},
		{"MAC:  12:34:56:78:9a:bc", "12:34:56:78:9a:bc"},
		{"esptool.py v4.7\nMAC: 01:02:03:04:05:06\nDone", "01:02:03:04:05:06"},
		{"[C][wifi:577]:   MAC Address: 24:0A:C4:12:34:56", "24:0a:c4:12:34:56"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseMAC(tt.input)
			if err != nil {
				t.Fatalf("ParseMAC(%q) error = %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseMAC_NoMatch(t *testing.T) {
	if _, err := ParseMAC("Chip is ESP32-D0WD"); err == nil {
		t.Error("expected error for output without MAC")
	}
}

func TestMACReader_ReadMAC(t *testing.T) {
	runner := &mockRunner{output: []byte("Chip is ESP32\nMAC: 24:0A:C4:12:34:56\n")}
	reader := NewMACReader("/dev/ttyUSB0", runner)

	got, err := reader.ReadMAC(context.Background())
	if err != nil {
		t.Fatalf("ReadMAC() error = %v", err)
	}
	if got != "24:0a:c4:12:34:56" {
		t.Errorf("ReadMAC() = %q", got)
	}
	if runner.name != "esptool.py" {
		t.Errorf("command = %q, want esptool.py", runner.name)
	}
	wantArgs := []string{"--port", "/dev/ttyUSB0", "read_mac"}
	for i, a := range wantArgs {
		if runner.args[i] != a {
			t.Errorf("args[%d] = %q, want %q", i, runner.args[i], a)
		}
	}
}

func TestMACReader_ReadMAC_CommandFails(t *testing.T) {
	reader := NewMACReader("/dev/ttyUSB0", &mockRunner{err: errors.New("exit status 2")})

	if _, err := reader.ReadMAC(context.Background()); err == nil {
		t.Error("expected error when esptool fails")
	}
}

func TestDeviceName(t *testing.T) {
	tests := []struct {
		mac  string
		want string
	}{
		{"24:0a:c4:12:34:56", "esp32-123456"},
		{"AA:BB:CC:DD:EE:FF", "esp32-ddeeff"},
		{"abc", "esp32-abc"},
	}
	for _, tt := range tests {
		if got := DeviceName(tt.mac); got != tt.want {
			t.Errorf("DeviceName(%q) = %q, want %q", tt.mac, got, tt.want)
		}
	}
}

// bootPort replays a boot log in small chunks. Once the log is drained it
// behaves like a read timeout (0, nil) unless err is set.
type bootPort struct {
	data    *strings.Reader
	err     error
	dtr     []bool
	timeout time.Duration
	closed  bool
}

func newBootPort(log string) *bootPort {
	return &bootPort{data: strings.NewReader(log)}
}

func (p *bootPort) Read(b []byte) (int, error) {
	if len(b) > 7 {
		b = b[:7]
	}
	n, err := p.data.Read(b)
	if err == io.EOF {
		return n, p.err
	}
	return n, err
}

func (p *bootPort) Close() error                         { p.closed = true; return nil }
func (p *bootPort) SetReadTimeout(t time.Duration) error { p.timeout = t; return nil }
func (p *bootPort) SetDTR(dtr bool) error                { p.dtr = append(p.dtr, dtr); return nil }

func openerFor(p *bootPort) PortOpener {
	return func(name string) (BootPort, error) { return p, nil }
}

func TestMACReader_ReadMACFromSerial(t *testing.T) {
	t.Parallel()

	port := newBootPort("ets Jun  8 2016 00:22:57\nrst:0x1 (POWERON_RESET)\n" +
		"[I][app:029]: Running through setup()...\n" +
		"[C][wifi:577]:   MAC Address: 24:0A:C4:12:34:56\n")
	reader := NewMACReader("/dev/ttyUSB0", nil).WithOpener(openerFor(port))

	got, err := reader.ReadMACFromSerial(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("ReadMACFromSerial() error = %v", err)
	}
	if got != "24:0a:c4:12:34:56" {
		t.Errorf("got %q", got)
	}
	if len(port.dtr) != 2 || port.dtr[0] || !port.dtr[1] {
		t.Errorf("DTR sequence = %v, want [false true]", port.dtr)
	}
	if !port.closed {
		t.Error("port not closed")
	}
}

func TestMACReader_ReadMACFromSerial_Timeout(t *testing.T) {
	t.Parallel()

	port := newBootPort("rst:0x1 (POWERON_RESET)\nno address here\n")
	reader := NewMACReader("/dev/ttyUSB0", nil).WithOpener(openerFor(port))

	_, err := reader.ReadMACFromSerial(context.Background(), 50*time.Millisecond)
	if err == nil || !strings.Contains(err.Error(), "timeout") {
		t.Errorf("ReadMACFromSerial() error = %v, want timeout", err)
	}
}

func TestMACReader_ReadMACFromSerial_Errors(t *testing.T) {
	t.Parallel()

	openErr := errors.New("permission denied")
	reader := NewMACReader("/dev/ttyUSB0", nil).WithOpener(func(string) (BootPort, error) {
		return nil, openErr
	})
	if _, err := reader.ReadMACFromSerial(context.Background(), time.Second); !errors.Is(err, openErr) {
		t.Errorf("open failure: error = %v", err)
	}

	readErr := errors.New("device disconnected")
	port := newBootPort("rst:0x1\n")
	port.err = readErr
	reader = NewMACReader("/dev/ttyUSB0", nil).WithOpener(openerFor(port))
	if _, err := reader.ReadMACFromSerial(context.Background(), time.Second); !errors.Is(err, readErr) {
		t.Errorf("read failure: error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	reader = NewMACReader("/dev/ttyUSB0", nil).WithOpener(openerFor(newBootPort("")))
	if _, err := reader.ReadMACFromSerial(ctx, time.Second); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled: error = %v", err)
	}
}
