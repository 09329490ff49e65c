package credentials_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"esp32-init/internal/credentials"
)

type fakeClipboard struct {
	text string
	err  error
}

func (f *fakeClipboard) WriteAll(text string) error {
	if f.err != nil {
		return f.err
	}
	f.text = text
	return nil
}

func TestStore_Save(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "nested", "credentials")
	store := credentials.NewStore(dir)

	rec := credentials.Record{
		Device:      "garden-node",
		Port:        "/dev/ttyUSB0",
		StaticIP:    "192.168.0.120",
		APIKey:      "c2VjcmV0LWtleS1mb3ItdGVzdGluZy0zMi1ieXRlcyE=",
		OTAPassword: "00112233445566778899aabbccddeeff",
		APSSID:      "ESP32 Fallback Hotspot",
		APPassword:  "Fallback1234",
		CreatedAt:   time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC),
	}

	path, err := store.Save(rec)
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if path != filepath.Join(dir, "garden-node.yaml") {
		t.Errorf("Save() path = %q", path)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("file mode = %o, want 600", perm)
	}
	dirInfo, err := os.Stat(dir)
	if err != nil {
		t.Fatal(err)
	}
	if perm := dirInfo.Mode().Perm(); perm != 0700 {
		t.Errorf("dir mode = %o, want 700", perm)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var got credentials.Record
	if err := yaml.Unmarshal(data, &got); err != nil {
		t.Fatalf("credentials file is not YAML: %v", err)
	}
	if !got.CreatedAt.Equal(rec.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, rec.CreatedAt)
	}
	got.CreatedAt = rec.CreatedAt
	if got != rec {
		t.Errorf("saved record = %+v, want %+v", got, rec)
	}
}

func TestStore_Save_RequiresDevice(t *testing.T) {
	t.Parallel()

	if _, err := credentials.NewStore(t.TempDir()).Save(credentials.Record{}); err == nil {
		t.Error("Save() error = nil without device name")
	}
}

func TestStore_Save_Overwrites(t *testing.T) {
	t.Parallel()

	store := credentials.NewStore(t.TempDir())
	if _, err := store.Save(credentials.Record{Device: "bench", APIKey: "old"}); err != nil {
		t.Fatal(err)
	}
	path, err := store.Save(credentials.Record{Device: "bench", APIKey: "new"})
	if err != nil {
		t.Fatal(err)
	}

	data, _ := os.ReadFile(path)
	var got credentials.Record
	if err := yaml.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	if got.APIKey != "new" {
		t.Errorf("APIKey = %q, want new", got.APIKey)
	}
}

func TestCopyAPIKey(t *testing.T) {
	t.Parallel()

	cb := &fakeClipboard{}
	if err := credentials.CopyAPIKey(cb, "key-123"); err != nil {
		t.Fatal(err)
	}
	if cb.text != "key-123" {
		t.Errorf("clipboard = %q, want key-123", cb.text)
	}

	boom := errors.New("xclip missing")
	if err := credentials.CopyAPIKey(&fakeClipboard{err: boom}, "k"); !errors.Is(err, boom) {
		t.Errorf("CopyAPIKey() error = %v, want wrapped clipboard error", err)
	}
}
