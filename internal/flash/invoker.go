// Package flash compiles and uploads a configuration with the esphome CLI.
package flash

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"esp32-init/internal/command"
)

const (
	DefaultTool     = "esphome"
	DefaultAttempts = 5
	DefaultDelay    = 2 * time.Second
)

// Options configures an Invoker. Zero values take the defaults.
type Options struct {
	// Tool is the esphome executable, usually resolved with LookupTool.
	Tool string
	// Attempts is the total number of tries; 1 disables retrying.
	Attempts int
	Delay    time.Duration
}

type Invoker struct {
	runner   command.Runner
	tool     string
	attempts int
	delay    time.Duration
	sleep    func(context.Context, time.Duration) error
	log      zerolog.Logger
}

func NewInvoker(runner command.Runner, opts Options, log zerolog.Logger) *Invoker {
	inv := &Invoker{
		runner:   runner,
		tool:     opts.Tool,
		attempts: opts.Attempts,
		delay:    opts.Delay,
		sleep:    sleepContext,
		log:      log,
	}
	if inv.tool == "" {
		inv.tool = DefaultTool
	}
	if inv.attempts < 1 {
		inv.attempts = DefaultAttempts
	}
	if inv.delay <= 0 {
		inv.delay = DefaultDelay
	}
	return inv
}

// WithSleep replaces the delay function between attempts (for testing).
func (i *Invoker) WithSleep(sleep func(context.Context, time.Duration) error) *Invoker {
	i.sleep = sleep
	return i
}

// Flash runs "esphome run <config> --device <port> --no-logs" until it
// succeeds or the attempt ceiling is reached. Each failed attempt is logged.
// Without --no-logs esphome tails the device log after uploading and never
// exits on its own.
func (i *Invoker) Flash(ctx context.Context, configPath, device string) error {
	args := []string{"run", configPath, "--device", device, "--no-logs"}

	var lastErr error
	for attempt := 1; attempt <= i.attempts; attempt++ {
		i.log.Info().
			Int("attempt", attempt).
			Int("max_attempts", i.attempts).
			Str("device", device).
			Msg("flashing configuration")

		lastErr = i.runner.Run(ctx, i.tool, args...)
		if lastErr == nil {
			return nil
		}

		i.log.Error().
			Err(lastErr).
			Int("attempt", attempt).
			Int("max_attempts", i.attempts).
			Msg("flash attempt failed")

		if attempt == i.attempts {
			break
		}
		if err := i.sleep(ctx, i.delay); err != nil {
			return fmt.Errorf("flash interrupted after %d attempts: %w", attempt, err)
		}
	}

	return fmt.Errorf("flash failed after %d attempts: %w", i.attempts, lastErr)
}

// LookupTool resolves the esphome executable on PATH.
func LookupTool(name string) (string, error) {
	path, err := command.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("%w - install it with 'pip install esphome'", err)
	}
	return path, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
