package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"esp32-init/internal/command"
	"esp32-init/internal/config"
	"esp32-init/internal/credentials"
	"esp32-init/internal/esphome"
	"esp32-init/internal/flash"
	"esp32-init/internal/keys"
	"esp32-init/internal/logger"
	"esp32-init/internal/netaddr"
	"esp32-init/internal/project"
	"esp32-init/internal/prompt"
	"esp32-init/internal/secrets"
	"esp32-init/internal/serial"
)

const (
	otaPasswordBytes = 16
	apPasswordLength = 12
	maxSensorPrompt  = 64
	macReadTimeout   = 3 * time.Second
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "\n❌ Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(os.Args[1:], nil)
	if errors.Is(err, flag.ErrHelp) {
		config.Usage(os.Stdout)
		return nil
	}
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	log := logger.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	p := prompt.New(os.Stdin, os.Stdout)
	runner := &command.ExecRunner{}

	fmt.Println("╔═══════════════════════════════════════════════════════════╗")
	fmt.Println("║              ESP32 ESPHome Initialization Tool            ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════╝")
	fmt.Println()

	// Step 1: Required tools
	fmt.Println("→ Checking for esphome...")
	tool, err := flash.LookupTool(cfg.Tool)
	if err != nil {
		return err
	}
	fmt.Printf("  ✓ Found: %s\n", tool)

	proj, err := project.Find("")
	if err != nil {
		return err
	}
	configPath := cfg.ConfigPath
	if configPath == "" {
		configPath = proj.ConfigPath()
	}

	// Step 2: Device
	fmt.Println("\n→ Detecting device...")
	port := cfg.Port
	if port == "" {
		finder := serial.NewFinder(logger.WithComponent(log, "serial"))
		var found bool
		port, found, err = detectPort(finder, p)
		if err != nil {
			return fmt.Errorf("list ports: %w", err)
		}
		if !found {
			fmt.Println("\nNo device selected, exiting.")
			return nil
		}
	}
	fmt.Printf("  ✓ Port: %s\n", port)

	// Step 3: Identity and sensors
	p.Section("Device")
	name := cfg.Name
	if name == "" {
		name = askName(p, defaultName(ctx, port, runner, log))
	} else if !esphome.ValidName(name) {
		return fmt.Errorf("invalid device name %q: use lowercase letters, digits and hyphens (max %d)", name, esphome.MaxNameLength)
	}
	friendly := cfg.FriendlyName
	if friendly == "" {
		friendly = p.String("  Friendly name", name)
	}
	sensors := cfg.Sensors
	if sensors == config.PromptSensors {
		sensors = askSensors(p)
	}

	// Step 4: Network
	fmt.Println("\n→ Allocating static IP...")
	var network netaddr.Network
	if cfg.StaticIP != "" {
		network, err = netaddr.ForAddress(cfg.StaticIP)
	} else {
		network, err = netaddr.NewAllocator(logger.WithComponent(log, "netaddr")).Allocate(ctx)
	}
	if err != nil {
		return fmt.Errorf("allocate address: %w", err)
	}
	fmt.Printf("  ✓ IP: %s (gateway %s)\n", network.StaticIP, network.Gateway)

	// Step 5: Secrets and keys
	fmt.Printf("\n→ Resolving WiFi credentials (%s)...\n", cfg.Secrets)
	src, closeSrc, err := secretsSource(ctx, cfg, proj, runner)
	if err != nil {
		return err
	}
	defer closeSrc()

	wifi, err := secrets.WiFi(ctx, src)
	if err != nil {
		return fmt.Errorf("resolve WiFi credentials: %w", err)
	}
	if src == nil {
		fmt.Printf("  ✓ Using !secret references from %s\n", proj.SecretsPath())
	} else {
		fmt.Println("  ✓ WiFi credentials resolved")
	}

	otaPassword, err := keys.Password(otaPasswordBytes)
	if err != nil {
		return fmt.Errorf("generate OTA password: %w", err)
	}
	apPassword, err := keys.Token(apPasswordLength)
	if err != nil {
		return fmt.Errorf("generate AP password: %w", err)
	}

	// Step 6: Configuration
	fmt.Println("\n→ Generating configuration...")
	synth := esphome.NewSynthesizer(keySource(cfg, runner, log), logger.WithComponent(log, "esphome"))
	rec, err := synth.Build(ctx, esphome.Input{
		Name:         name,
		FriendlyName: friendly,
		Sensors:      sensors,
		Network:      network,
		WiFi:         wifi,
		OTAPassword:  otaPassword,
		APPassword:   apPassword,
		LogLevel:     cfg.DeviceLogging,
	})
	if err != nil {
		return err
	}
	if err := esphome.WriteFile(configPath, rec); err != nil {
		return err
	}
	fmt.Printf("  ✓ Written: %s (%d sensors)\n", configPath, len(rec.Sensors))

	// Step 7: Credential backup
	credsDir := cfg.CredentialsDir
	if credsDir == "" {
		if credsDir, err = credentials.DefaultDir(); err != nil {
			return err
		}
	}
	credsPath, err := credentials.NewStore(credsDir).Save(credentials.Record{
		Device:      name,
		Port:        port,
		StaticIP:    network.StaticIP,
		APIKey:      rec.API.Encryption.Key,
		OTAPassword: otaPassword,
		APSSID:      esphome.FallbackAPSSID,
		APPassword:  apPassword,
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	if !cfg.NoClipboard {
		if err := credentials.CopyAPIKey(credentials.SystemClipboard{}, rec.API.Encryption.Key); err != nil {
			log.Warn().Err(err).Msg("API key not copied, read it from the credentials file")
		} else {
			fmt.Println("  ✓ API key copied to clipboard")
		}
	}

	// Step 8: Flash
	if cfg.DryRun {
		fmt.Println("\n[Dry run] Skipping flash")
	} else {
		fmt.Println("\n→ Flashing device...")
		invoker := flash.NewInvoker(runner, flash.Options{
			Tool:     tool,
			Attempts: cfg.Attempts,
			Delay:    cfg.RetryDelay,
		}, logger.WithComponent(log, "flash"))
		if err := invoker.Flash(ctx, configPath, port); err != nil {
			return err
		}
	}

	fmt.Println("\n" + strings.Repeat("═", 60))
	if cfg.DryRun {
		fmt.Println("✓ Configuration generated")
	} else {
		fmt.Println("✓ Device flashed successfully!")
	}
	printSummary(name, network, len(rec.Sensors), credsPath)
	return nil
}

// detectPort retries detection until a board shows up or the user gives up.
func detectPort(finder *serial.Finder, p *prompt.Prompter) (string, bool, error) {
	for {
		port, found, err := finder.Find()
		if err != nil || found {
			return port, found, err
		}
		fmt.Println("  ⚠️  No ESP32 found. Check the USB cable and drivers.")
		if !p.Confirm("  Retry detection?", false) {
			return "", false, nil
		}
	}
}

// defaultName suggests a MAC-derived name. The MAC comes from esptool when
// it is installed, otherwise from the board's boot log.
func defaultName(ctx context.Context, port string, runner command.Runner, log zerolog.Logger) string {
	reader := serial.NewMACReader(port, runner)

	var mac string
	var err error
	if _, lookErr := command.LookPath("esptool.py"); lookErr == nil {
		mac, err = reader.ReadMAC(ctx)
	} else {
		log.Debug().Err(lookErr).Msg("esptool not available, reading boot log")
		mac, err = reader.ReadMACFromSerial(ctx, macReadTimeout)
	}
	if err != nil {
		log.Debug().Err(err).Msg("could not read MAC, using default name")
		return esphome.DefaultName
	}
	return serial.DeviceName(mac)
}

func askName(p *prompt.Prompter, def string) string {
	for {
		name := esphome.SanitizeName(p.String("  Device name", def))
		if name != "" {
			return name
		}
		p.Println("  Please use letters, digits or hyphens.")
	}
}

// askSensors defaults to one sensor per available pin.
func askSensors(p *prompt.Prompter) int {
	return p.Int("  Number of voltage sensors", len(esphome.Pins), 0, maxSensorPrompt)
}

func secretsSource(ctx context.Context, cfg *config.Config, proj *project.Project, runner command.Runner) (secrets.Source, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Secrets {
	case config.SecretsEnv:
		return secrets.EnvSource{Getenv: os.Getenv}, noop, nil
	case config.SecretsFile:
		path := cfg.SecretsFile
		if path == "" {
			path = proj.SecretsPath()
		}
		src, err := secrets.LoadFile(path)
		if err != nil {
			return nil, noop, err
		}
		return src, noop, nil
	case config.SecretsGcloud:
		projectID, err := gcpProject(ctx, cfg, runner)
		if err != nil {
			return nil, noop, err
		}
		return secrets.NewGcloudSource(runner, projectID), noop, nil
	case config.SecretsGSM:
		projectID, err := gcpProject(ctx, cfg, runner)
		if err != nil {
			return nil, noop, err
		}
		src, err := secrets.NewSecretManagerSource(ctx, projectID)
		if err != nil {
			return nil, noop, err
		}
		return src, src.Close, nil
	default:
		return nil, noop, nil
	}
}

// gcpProject returns -gcp-project, falling back to the gcloud default project.
func gcpProject(ctx context.Context, cfg *config.Config, runner command.Runner) (string, error) {
	if cfg.GCPProject != "" {
		return cfg.GCPProject, nil
	}
	projectID, err := secrets.CurrentProject(ctx, runner)
	if err != nil {
		return "", fmt.Errorf("no GCP project specified and none configured: %w", err)
	}
	fmt.Printf("  ✓ Project: %s\n", projectID)
	return projectID, nil
}

func keySource(cfg *config.Config, runner command.Runner, log zerolog.Logger) esphome.KeySource {
	switch cfg.Keys {
	case config.KeysOpenSSL:
		return keys.NewOpenSSLSource(runner)
	case config.KeysFixed:
		log.Warn().Msg("using the placeholder API key, replace it before deployment")
		return keys.FixedSource{}
	default:
		return keys.RandomSource{}
	}
}

func printSummary(name string, network netaddr.Network, sensors int, credsPath string) {
	fmt.Println()
	fmt.Println("╔══════════════════════════════════════════════════════════╗")
	fmt.Println("║                     DEVICE SUMMARY                       ║")
	fmt.Println("╠══════════════════════════════════════════════════════════╣")
	fmt.Printf("║ Name:      %-45s ║\n", name)
	fmt.Printf("║ IP:        %-45s ║\n", network.StaticIP)
	fmt.Printf("║ Gateway:   %-45s ║\n", network.Gateway)
	fmt.Printf("║ Sensors:   %-45d ║\n", sensors)
	fmt.Println("╚══════════════════════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("Credentials saved: %s\n", credsPath)
	fmt.Println("Add the device in Home Assistant with the API key from the clipboard or that file.")
}
