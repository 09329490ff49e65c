package secrets

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"esp32-init/internal/command"
)

// GcloudSource reads secrets with the gcloud CLI.
// User must have roles/secretmanager.secretAccessor on the secret.
type GcloudSource struct {
	runner  command.Runner
	project string
}

func NewGcloudSource(runner command.Runner, project string) *GcloudSource {
	return &GcloudSource{runner: runner, project: project}
}

func (s *GcloudSource) Lookup(ctx context.Context, key string) (string, error) {
	args := []string{"secrets", "versions", "access", "latest", "--secret", SecretID(key)}
	if s.project != "" {
		args = append(args, "--project", s.project)
	}

	output, err := s.runner.Output(ctx, "gcloud", args...)
	if err != nil {
		var cmdErr *command.Error
		if errors.As(err, &cmdErr) {
			stderr := cmdErr.Output
			if strings.Contains(stderr, "PERMISSION_DENIED") || strings.Contains(stderr, "does not have") {
				return "", fmt.Errorf("no permission to access secret %s - ask for roles/secretmanager.secretAccessor", SecretID(key))
			}
			if strings.Contains(stderr, "NOT_FOUND") {
				return "", fmt.Errorf("%w: secret %s", ErrNotFound, SecretID(key))
			}
		}
		return "", fmt.Errorf("failed to access secret: %w", err)
	}

	return strings.TrimSpace(string(output)), nil
}

// CurrentProject returns the gcloud default project.
func CurrentProject(ctx context.Context, runner command.Runner) (string, error) {
	output, err := runner.Output(ctx, "gcloud", "config", "get-value", "project")
	if err != nil {
		return "", err
	}
	project := strings.TrimSpace(string(output))
	if project == "" || project == "(unset)" {
		return "", fmt.Errorf("no project configured - use --gcp-project or run: gcloud config set project <PROJECT_ID>")
	}
	return project, nil
}

// SecretID maps an ESPHome key to a Secret Manager secret name ("wifi_ssid" -> "wifi-ssid").
func SecretID(key string) string {
	return strings.ReplaceAll(key, "_", "-")
}
