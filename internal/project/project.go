// Package project locates the repository the device configurations live in.
package project

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	configDir   = "config/esphome_config"
	configFile  = "esp32_initial_config.yaml"
	secretsFile = "secrets.yaml"

	maxDepth = 5
)

// Project holds paths for the configuration repository.
type Project struct {
	Root      string
	ConfigDir string
}

// Find walks up from start (or the working directory when start is empty)
// looking for an existing config/esphome_config directory or a .git
// directory. When neither is found, start itself is used as the root.
func Find(start string) (*Project, error) {
	if start == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		start = wd
	}

	abs, err := filepath.Abs(start)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", start, err)
	}

	root := findRoot(abs)
	if root == "" {
		root = abs
	}
	return &Project{
		Root:      root,
		ConfigDir: filepath.Join(root, configDir),
	}, nil
}

func findRoot(dir string) string {
	for i := 0; i < maxDepth; i++ {
		if isDir(filepath.Join(dir, configDir)) || isDir(filepath.Join(dir, ".git")) {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// ConfigPath returns the path of the generated device configuration.
func (p *Project) ConfigPath() string {
	return filepath.Join(p.ConfigDir, configFile)
}

// SecretsPath returns ESPHome's secrets.yaml next to the configuration.
func (p *Project) SecretsPath() string {
	return filepath.Join(p.ConfigDir, secretsFile)
}
