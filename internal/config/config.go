// Package config loads, validates, and normalises provisioner configuration.
//
// It supports a layered YAML file with environment variable overrides so the
// same binary works from a local shell, a compose file, or an init container.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultServerURL    = "http://ranger:6080"
	defaultUsername     = "admin"
	defaultPassword     = "rangerR0cks!"
	defaultTimeout      = 30 * time.Second
	defaultWaitTimeout  = 90 * time.Second
	defaultWaitInterval = 2 * time.Second
	defaultPushJob      = "rangerprov"
	defaultRateBurst    = 1
	defaultConfigEnvVar = "RANGERPROV_CONFIG"

	envServerURL          = "RANGER_URL"
	envUsername           = "RANGER_USERNAME"
	envPassword           = "RANGER_PASSWORD"
	envToken              = "RANGER_TOKEN"
	envInsecureSkipVerify = "RANGER_TLS_INSECURE_SKIP_VERIFY"
	envClientTimeout      = "CLIENT_TIMEOUT_MS"
	envWaitEnabled        = "WAIT_ENABLED"
	envWaitTimeout        = "WAIT_TIMEOUT_MS"
	envWaitInterval       = "WAIT_INTERVAL_MS"
	envCatalogFile        = "CATALOG_FILE"
	envPushGateway        = "PUSHGATEWAY_URL"
	envPushJob            = "PUSH_JOB_NAME"
	envRateLimitRPS       = "RATE_LIMIT_RPS"
	envRateLimitBurst     = "RATE_LIMIT_BURST"
)

// Config captures everything a provisioning run needs.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Client  ClientConfig  `yaml:"client"`
	Wait    WaitConfig    `yaml:"wait"`
	Catalog CatalogConfig `yaml:"catalog"`
	Push    PushConfig    `yaml:"push"`
}

// ServerConfig locates and authenticates against the policy admin server.
type ServerConfig struct {
	URL      string    `yaml:"url"`
	Username string    `yaml:"username"`
	Password string    `yaml:"password"`
	Token    string    `yaml:"token"`
	Timeout  Duration  `yaml:"timeout"`
	TLS      TLSConfig `yaml:"tls"`
}

// TLSConfig captures TLS options for https admin endpoints.
type TLSConfig struct {
	InsecureSkipVerify bool `yaml:"insecureSkipVerify"`
}

// ClientConfig throttles outgoing requests.
type ClientConfig struct {
	RateLimitRPS   float64 `yaml:"rateLimitRPS"`
	RateLimitBurst int     `yaml:"rateLimitBurst"`
}

// WaitConfig controls the optional wait-for-ready loop before a run.
type WaitConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Timeout  Duration `yaml:"timeout"`
	Interval Duration `yaml:"interval"`
}

// CatalogConfig selects the catalog source. An empty File means the
// built-in development catalog.
type CatalogConfig struct {
	File string `yaml:"file"`
}

// PushConfig selects an optional Pushgateway for run metrics.
type PushConfig struct {
	Gateway string `yaml:"gateway"`
	Job     string `yaml:"job"`
}

// Duration is a YAML-friendly wrapper over time.Duration supporting numeric
// millisecond inputs.
type Duration time.Duration

// AsDuration returns the underlying time.Duration.
func (d Duration) AsDuration() time.Duration {
	return time.Duration(d)
}

// MarshalYAML encodes the duration as a string.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.AsDuration().String(), nil
}

// UnmarshalYAML decodes scalar duration values from either Go duration
// strings or millisecond integers.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}

	switch value.Kind {
	case yaml.ScalarNode:
		txt := strings.TrimSpace(value.Value)
		if txt == "" {
			*d = Duration(0)
			return nil
		}
		if ms, err := strconv.Atoi(txt); err == nil {
			if ms < 0 {
				return fmt.Errorf("duration must be non-negative, got %d", ms)
			}
			*d = Duration(time.Duration(ms) * time.Millisecond)
			return nil
		}
		parsed, err := time.ParseDuration(txt)
		if err != nil {
			return fmt.Errorf("parse duration %q: %w", txt, err)
		}
		if parsed < 0 {
			return fmt.Errorf("duration must be non-negative, got %s", parsed)
		}
		*d = Duration(parsed)
		return nil
	default:
		return fmt.Errorf("unsupported duration node kind: %v", value.Kind)
	}
}

// DurationFrom constructs a Duration from a time.Duration.
func DurationFrom(d time.Duration) Duration {
	return Duration(d)
}

// Default returns baseline configuration matching the local development
// cluster.
func Default() Config {
	return Config{
		Server: ServerConfig{
			URL:      defaultServerURL,
			Username: defaultUsername,
			Password: defaultPassword,
			Timeout:  DurationFrom(defaultTimeout),
		},
		Client: ClientConfig{
			RateLimitBurst: defaultRateBurst,
		},
		Wait: WaitConfig{
			Enabled:  false,
			Timeout:  DurationFrom(defaultWaitTimeout),
			Interval: DurationFrom(defaultWaitInterval),
		},
		Push: PushConfig{
			Job: defaultPushJob,
		},
	}
}

// Option customises the load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	paths        []string
	lookupEnv    func(string) (string, bool)
	customLookup bool
}

// WithPath adds a YAML config path to attempt loading.
func WithPath(path string) Option {
	return func(o *loaderOptions) {
		if strings.TrimSpace(path) != "" {
			o.paths = append(o.paths, path)
		}
	}
}

// WithLookupEnv overrides the environment lookup function (useful for
// tests). Supplying one also skips .env loading, which mutates the real
// process environment.
func WithLookupEnv(fn func(string) (string, bool)) Option {
	return func(o *loaderOptions) {
		o.lookupEnv = fn
		o.customLookup = fn != nil
	}
}

// Load builds a Config from defaults, an optional YAML file, and environment
// overrides, in that order.
func Load(opts ...Option) (Config, error) {
	options := loaderOptions{
		lookupEnv: os.LookupEnv,
	}
	if envPath := strings.TrimSpace(os.Getenv(defaultConfigEnvVar)); envPath != "" {
		options.paths = append(options.paths, envPath)
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	cfg := Default()

	if !options.customLookup {
		if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("load .env: %w", err)
		}
	}

	for _, path := range options.paths {
		if strings.TrimSpace(path) == "" {
			continue
		}
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			continue
		case err != nil:
			return cfg, fmt.Errorf("read config %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("decode config %q: %w", path, err)
		}
	}

	if err := applyEnvOverrides(&cfg, options.lookupEnv); err != nil {
		return cfg, err
	}

	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config, lookup func(string) (string, bool)) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}

	if val, ok := lookup(envServerURL); ok && strings.TrimSpace(val) != "" {
		cfg.Server.URL = strings.TrimSpace(val)
	}
	if val, ok := lookup(envUsername); ok && strings.TrimSpace(val) != "" {
		cfg.Server.Username = strings.TrimSpace(val)
	}
	if val, ok := lookup(envPassword); ok && val != "" {
		cfg.Server.Password = val
	}
	if val, ok := lookup(envToken); ok && strings.TrimSpace(val) != "" {
		cfg.Server.Token = strings.TrimSpace(val)
	}

	if val, ok := lookup(envInsecureSkipVerify); ok && strings.TrimSpace(val) != "" {
		insecure, err := strconv.ParseBool(strings.TrimSpace(val))
		if err != nil {
			return fmt.Errorf("invalid %s: %w", envInsecureSkipVerify, err)
		}
		cfg.Server.TLS.InsecureSkipVerify = insecure
	}

	if val, ok := lookup(envClientTimeout); ok && strings.TrimSpace(val) != "" {
		timeout, err := parsePositiveDurationMillis(val)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", envClientTimeout, err)
		}
		cfg.Server.Timeout = DurationFrom(timeout)
	}

	if val, ok := lookup(envWaitEnabled); ok && strings.TrimSpace(val) != "" {
		enabled, err := strconv.ParseBool(strings.TrimSpace(val))
		if err != nil {
			return fmt.Errorf("invalid %s: %w", envWaitEnabled, err)
		}
		cfg.Wait.Enabled = enabled
	}
	if val, ok := lookup(envWaitTimeout); ok && strings.TrimSpace(val) != "" {
		timeout, err := parsePositiveDurationMillis(val)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", envWaitTimeout, err)
		}
		cfg.Wait.Timeout = DurationFrom(timeout)
	}
	if val, ok := lookup(envWaitInterval); ok && strings.TrimSpace(val) != "" {
		interval, err := parsePositiveDurationMillis(val)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", envWaitInterval, err)
		}
		cfg.Wait.Interval = DurationFrom(interval)
	}

	if val, ok := lookup(envCatalogFile); ok && strings.TrimSpace(val) != "" {
		cfg.Catalog.File = strings.TrimSpace(val)
	}

	if val, ok := lookup(envPushGateway); ok && strings.TrimSpace(val) != "" {
		cfg.Push.Gateway = strings.TrimSpace(val)
	}
	if val, ok := lookup(envPushJob); ok && strings.TrimSpace(val) != "" {
		cfg.Push.Job = strings.TrimSpace(val)
	}

	if val, ok := lookup(envRateLimitRPS); ok && strings.TrimSpace(val) != "" {
		rps, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil || rps < 0 {
			return fmt.Errorf("invalid %s: %s", envRateLimitRPS, val)
		}
		cfg.Client.RateLimitRPS = rps
	}
	if val, ok := lookup(envRateLimitBurst); ok && strings.TrimSpace(val) != "" {
		burst, err := strconv.Atoi(strings.TrimSpace(val))
		if err != nil || burst < 0 {
			return fmt.Errorf("invalid %s: %s", envRateLimitBurst, val)
		}
		cfg.Client.RateLimitBurst = burst
	}

	return nil
}

// normalize fills in defaults that may be missing after YAML/env overrides.
func (cfg *Config) normalize() {
	if strings.TrimSpace(cfg.Server.URL) == "" {
		cfg.Server.URL = defaultServerURL
	}
	cfg.Server.URL = strings.TrimRight(strings.TrimSpace(cfg.Server.URL), "/")

	if cfg.Server.Timeout.AsDuration() <= 0 {
		cfg.Server.Timeout = DurationFrom(defaultTimeout)
	}
	if cfg.Wait.Timeout.AsDuration() <= 0 {
		cfg.Wait.Timeout = DurationFrom(defaultWaitTimeout)
	}
	if cfg.Wait.Interval.AsDuration() <= 0 {
		cfg.Wait.Interval = DurationFrom(defaultWaitInterval)
	}
	if cfg.Client.RateLimitBurst <= 0 {
		cfg.Client.RateLimitBurst = defaultRateBurst
	}
	if strings.TrimSpace(cfg.Push.Job) == "" {
		cfg.Push.Job = defaultPushJob
	}
}

// Validate performs semantic validation on the configuration.
func (cfg Config) Validate() error {
	var errs []error

	parsed, err := url.Parse(cfg.Server.URL)
	switch {
	case err != nil:
		errs = append(errs, fmt.Errorf("server.url invalid: %w", err))
	case parsed.Scheme != "http" && parsed.Scheme != "https":
		errs = append(errs, fmt.Errorf("server.url must use http or https, got %q", cfg.Server.URL))
	case parsed.Host == "":
		errs = append(errs, fmt.Errorf("server.url %q has no host", cfg.Server.URL))
	}

	if cfg.Server.Token == "" {
		if strings.TrimSpace(cfg.Server.Username) == "" {
			errs = append(errs, errors.New("server.username required when no token is set"))
		}
		if cfg.Server.Password == "" {
			errs = append(errs, errors.New("server.password required when no token is set"))
		}
	}

	if cfg.Server.Timeout.AsDuration() <= 0 {
		errs = append(errs, errors.New("server.timeout must be positive"))
	}
	if cfg.Wait.Timeout.AsDuration() <= 0 {
		errs = append(errs, errors.New("wait.timeout must be positive"))
	}
	if cfg.Wait.Interval.AsDuration() <= 0 {
		errs = append(errs, errors.New("wait.interval must be positive"))
	}
	if cfg.Wait.Interval.AsDuration() > cfg.Wait.Timeout.AsDuration() {
		errs = append(errs, errors.New("wait.interval must not exceed wait.timeout"))
	}
	if cfg.Client.RateLimitRPS < 0 {
		errs = append(errs, errors.New("client.rateLimitRPS must not be negative"))
	}

	if cfg.Push.Gateway != "" {
		if _, err := url.ParseRequestURI(cfg.Push.Gateway); err != nil {
			errs = append(errs, fmt.Errorf("push.gateway invalid: %w", err))
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return errors.Join(errs...)
}

func parsePositiveDurationMillis(value string) (time.Duration, error) {
	ms, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, err
	}
	if ms <= 0 {
		return 0, fmt.Errorf("value must be positive: %d", ms)
	}
	return time.Duration(ms) * time.Millisecond, nil
}
