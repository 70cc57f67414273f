package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/rangertools/rangerprov/internal/catalog"
	"github.com/rangertools/rangerprov/internal/config"
	"github.com/rangertools/rangerprov/internal/metrics"
	"github.com/rangertools/rangerprov/internal/platform/health"
	"github.com/rangertools/rangerprov/internal/provision"
	"github.com/rangertools/rangerprov/internal/ranger"
	pkglog "github.com/rangertools/rangerprov/pkg/log"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "run":
		err = runCommand(os.Args[2:])
	case "status":
		err = statusCommand(os.Args[2:])
	case "validate":
		err = validateCommand(os.Args[2:])
	case "init":
		err = initCommand(os.Args[2:])
	default:
		usage()
		os.Exit(1)
	}

	_ = pkglog.Sync()
	if err != nil {
		log.Fatalf("rangerprov %s: %v", os.Args[1], err)
	}
}

func runCommand(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to provisioner configuration file")
	wait := fs.Bool("wait", false, "Wait for the admin server to come up before provisioning")
	strict := fs.Bool("strict", false, "Exit non-zero when any catalog entry fails")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	logger := pkglog.Logger()

	if cfg.Server.Token != "" {
		if err := ranger.InspectToken(cfg.Server.Token, time.Now()); err != nil {
			logger.Warnw("bearer token pre-flight failed, proceeding anyway", "error", err)
		}
	}

	services, err := catalog.Load(cfg.Catalog.File)
	if err != nil {
		return err
	}

	client, err := buildClient(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if *wait || cfg.Wait.Enabled {
		logger.Infow("waiting for admin server", "url", cfg.Server.URL, "timeout", cfg.Wait.Timeout.AsDuration())
		if err := health.WaitReady(ctx, client, health.Options{
			Timeout:  cfg.Wait.Timeout.AsDuration(),
			Interval: cfg.Wait.Interval.AsDuration(),
		}); err != nil {
			return fmt.Errorf("wait for admin server: %w", err)
		}
	}

	runID := uuid.NewString()
	logger.Infow("starting provisioning pass",
		"run_id", runID,
		"server", cfg.Server.URL,
		"services", len(services),
	)

	recorder := metrics.NewRecorder(metrics.NewRegistry(metrics.WithNamespace("rangerprov")))
	prov := provision.New(client, provision.WithMetrics(recorder))

	report := prov.RegisterAll(ctx, services)
	if err := report.Render(os.Stdout); err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	created, existing, failed := report.Counts()
	logger.Infow("provisioning pass complete",
		"run_id", runID,
		"created", created,
		"existing", existing,
		"failed", failed,
		"duration", report.Duration,
	)

	if cfg.Push.Gateway != "" {
		if err := recorder.Push(cfg.Push.Gateway, cfg.Push.Job); err != nil {
			logger.Warnw("metrics push failed", "error", err)
		}
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("provisioning interrupted after %d of %d services: %w",
			len(report.Results), len(services), err)
	}
	if *strict && report.Failed() {
		return fmt.Errorf("%d of %d services failed", failed, len(services))
	}
	return nil
}

func statusCommand(args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to provisioner configuration file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	services, err := catalog.Load(cfg.Catalog.File)
	if err != nil {
		return err
	}

	client, err := buildClient(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := client.Ping(ctx); err != nil {
		return fmt.Errorf("admin server unreachable: %w", err)
	}

	prov := provision.New(client)
	var lookupFailures int
	for _, entry := range prov.Survey(ctx, services) {
		switch {
		case entry.Err != nil:
			lookupFailures++
			fmt.Printf("%s: error (%v)\n", entry.Name, entry.Err)
		case entry.Present:
			fmt.Printf("%s: present\n", entry.Name)
		default:
			fmt.Printf("%s: absent\n", entry.Name)
		}
	}

	if lookupFailures > 0 {
		return fmt.Errorf("%d of %d lookups failed", lookupFailures, len(services))
	}
	return nil
}

func validateCommand(args []string) error {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to provisioner configuration file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("validate config: %w", err)
	}

	services, err := catalog.Load(cfg.Catalog.File)
	if err != nil {
		return fmt.Errorf("validate catalog: %w", err)
	}
	if err := catalog.Validate(services); err != nil {
		return fmt.Errorf("validate catalog: %w", err)
	}

	fmt.Printf("configuration valid (%d services)\n", len(services))
	return nil
}

func initCommand(args []string) error {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	outputPath := fs.String("path", "rangerprov.yaml", "Destination path for generated config")
	force := fs.Bool("force", false, "Overwrite existing file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if !*force {
		if _, err := os.Stat(*outputPath); err == nil {
			return fmt.Errorf("config file %s already exists (use --force to overwrite)", *outputPath)
		}
	}

	if err := os.WriteFile(*outputPath, []byte(sampleConfigYAML), 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	fmt.Printf("configuration written to %s\n", *outputPath)
	return nil
}

func loadConfig(path string) (config.Config, error) {
	opts := []config.Option{}
	if path != "" {
		opts = append(opts, config.WithPath(path))
	}

	cfg, err := config.Load(opts...)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func buildClient(cfg config.Config) (*ranger.Client, error) {
	client, err := ranger.NewClient(ranger.Options{
		BaseURL:            cfg.Server.URL,
		Username:           cfg.Server.Username,
		Password:           cfg.Server.Password,
		Token:              cfg.Server.Token,
		Timeout:            cfg.Server.Timeout.AsDuration(),
		InsecureSkipVerify: cfg.Server.TLS.InsecureSkipVerify,
		RateLimit:          rate.Limit(cfg.Client.RateLimitRPS),
		RateBurst:          cfg.Client.RateLimitBurst,
	})
	if err != nil {
		return nil, fmt.Errorf("build client: %w", err)
	}
	return client, nil
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: rangerprov <command> [options]\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  run       Register catalog services against the admin server\n")
	fmt.Fprintf(os.Stderr, "  status    Report which catalog services already exist\n")
	fmt.Fprintf(os.Stderr, "  validate  Validate configuration and catalog without touching the server\n")
	fmt.Fprintf(os.Stderr, "  init      Generate a config skeleton\n")
}

const sampleConfigYAML = `# Provisioner configuration for the policy admin server.
server:
  url: http://ranger:6080
  username: admin
  password: rangerR0cks!
  # token: ""
  timeout: 30s
  tls:
    insecureSkipVerify: false

client:
  rateLimitRPS: 0
  rateLimitBurst: 1

wait:
  enabled: false
  timeout: 90s
  interval: 2s

catalog:
  # Empty file selects the built-in development catalog.
  file: ""

push:
  gateway: ""
  job: rangerprov
`
