// Package credentials keeps a local backup of the secrets generated for each
// device and hands the API key to the clipboard for pasting into Home
// Assistant.
package credentials

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/atotto/clipboard"
	"gopkg.in/yaml.v3"
)

// Record is the plaintext backup written for one device.
type Record struct {
	Device      string    `yaml:"device"`
	Port        string    `yaml:"port,omitempty"`
	StaticIP    string    `yaml:"static_ip"`
	APIKey      string    `yaml:"api_key"`
	OTAPassword string    `yaml:"ota_password"`
	APSSID      string    `yaml:"ap_ssid"`
	APPassword  string    `yaml:"ap_password"`
	CreatedAt   time.Time `yaml:"created_at"`
}

type Store struct {
	dir string
}

func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// DefaultDir returns ~/.esp32-init/credentials.
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".esp32-init", "credentials"), nil
}

// Save writes rec to <dir>/<device>.yaml and returns the path.
func (s *Store) Save(rec Record) (string, error) {
	if rec.Device == "" {
		return "", fmt.Errorf("credentials need a device name")
	}
	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return "", fmt.Errorf("create credentials dir: %w", err)
	}

	data, err := yaml.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("encode credentials: %w", err)
	}

	path := filepath.Join(s.dir, rec.Device+".yaml")
	if err := os.WriteFile(path, data, 0600); err != nil {
		return "", fmt.Errorf("write credentials: %w", err)
	}
	return path, nil
}

// Clipboard writes text to the system clipboard.
type Clipboard interface {
	WriteAll(text string) error
}

// SystemClipboard uses the OS clipboard (pbcopy, xclip/xsel, wl-copy, clip.exe).
type SystemClipboard struct{}

func (SystemClipboard) WriteAll(text string) error {
	if clipboard.Unsupported {
		return fmt.Errorf("no clipboard utility available")
	}
	return clipboard.WriteAll(text)
}

// CopyAPIKey copies the key to cb.
func CopyAPIKey(cb Clipboard, key string) error {
	if err := cb.WriteAll(key); err != nil {
		return fmt.Errorf("copy API key to clipboard: %w", err)
	}
	return nil
}
