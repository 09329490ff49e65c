package project_test

import (
	"os"
	"path/filepath"
	"testing"

	"esp32-init/internal/project"
)

func TestProject_ConfigPath(t *testing.T) {
	t.Parallel()

	proj := &project.Project{Root: "/test/root", ConfigDir: "/test/root/config/esphome_config"}

	got := proj.ConfigPath()
	want := "/test/root/config/esphome_config/esp32_initial_config.yaml"

	if got != want {
		t.Errorf("ConfigPath() = %q, want %q", got, want)
	}
}

func TestProject_SecretsPath(t *testing.T) {
	t.Parallel()

	proj := &project.Project{Root: "/test/root", ConfigDir: "/test/root/config/esphome_config"}

	got := proj.SecretsPath()
	want := "/test/root/config/esphome_config/secrets.yaml"

	if got != want {
		t.Errorf("SecretsPath() = %q, want %q", got, want)
	}
}

func TestFind_ConfigDirMarker(t *testing.T) {
	t.Parallel()

	tmpDir := t.TempDir()

	if err := os.MkdirAll(filepath.Join(tmpDir, "config", "esphome_config"), 0755); err != nil {
		t.Fatalf("failed to create config dir: %v", err)
	}

	subDir := filepath.Join(tmpDir, "tools", "init")
	if err := os.MkdirAll(subDir, 0755); err != nil {
		t.Fatalf("failed to create subdirectory: %v", err)
	}

	proj, err := project.Find(subDir)
	if err != nil {
		t.Fatalf("Find() error = %v", err)
	}

	if proj.Root != tmpDir {
		t.Errorf("Root = %q, want %q", proj.Root, tmpDir)
	}

	expected := filepath.Join(tmpDir, "config", "esphome_config")
	if proj.ConfigDir != expected {
		t.Errorf("ConfigDir = %q, want %q", proj.ConfigDir, expected)
	}
}

func TestFind_GitMarker(t *testing.T) {
	t.Parallel()

	tmpDir := t.TempDir()
	if err := os.Mkdir(filepath.Join(tmpDir, ".git"), 0755); err != nil {
		t.Fatal(err)
	}
	subDir := filepath.Join(tmpDir, "a", "b")
	if err := os.MkdirAll(subDir, 0755); err != nil {
		t.Fatal(err)
	}

	proj, err := project.Find(subDir)
	if err != nil {
		t.Fatalf("Find() error = %v", err)
	}
	if proj.Root != tmpDir {
		t.Errorf("Root = %q, want %q", proj.Root, tmpDir)
	}
}

func TestFind_FallsBackToStart(t *testing.T) {
	t.Parallel()

	// Deeper than the search depth, so no marker above is reachable.
	start := filepath.Join(t.TempDir(), "a", "b", "c", "d", "e", "f")
	if err := os.MkdirAll(start, 0755); err != nil {
		t.Fatal(err)
	}

	proj, err := project.Find(start)
	if err != nil {
		t.Fatalf("Find() error = %v", err)
	}
	if proj.Root != start {
		t.Errorf("Root = %q, want %q", proj.Root, start)
	}
}

func TestFind_WorkingDirectory(t *testing.T) {
	// Note: not parallel because it changes working directory
	tmpDir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(tmpDir, "config", "esphome_config"), 0755); err != nil {
		t.Fatal(err)
	}

	originalDir, err := os.Getwd()
	if err != nil {
		t.Fatalf("failed to get current dir: %v", err)
	}
	t.Cleanup(func() {
		os.Chdir(originalDir)
	})

	if err := os.Chdir(tmpDir); err != nil {
		t.Fatalf("failed to change directory: %v", err)
	}

	proj, err := project.Find("")
	if err != nil {
		t.Fatalf("Find() error = %v", err)
	}

	// macOS temp dirs are symlinked under /private.
	want, _ := filepath.EvalSymlinks(tmpDir)
	got, _ := filepath.EvalSymlinks(proj.Root)
	if got != want {
		t.Errorf("Root = %q, want %q", got, want)
	}
}
