// Package config provides configuration file support for draudit.
//
// Settings are read from <root>/draudit.yaml and overlaid with DRAUDIT_*
// environment variables. Nested keys use a double underscore, so
// DRAUDIT_LOGGING__LEVEL sets logging.level.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"

	"github.com/tradelab/draudit/pkg/fsutil"
)

// FileName is the config file name under the root directory.
const FileName = "draudit.yaml"

// EnvPrefix prefixes every environment override.
const EnvPrefix = "DRAUDIT_"

// Snapshot backends.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Config represents the draudit configuration.
type Config struct {
	SnapshotBackend string        `yaml:"snapshot_backend" koanf:"snapshot_backend"`
	ReplayTimeout   string        `yaml:"replay_timeout" koanf:"replay_timeout"`
	AuditWorkers    int           `yaml:"audit_workers" koanf:"audit_workers"`
	DefaultMode     string        `yaml:"default_mode" koanf:"default_mode"`
	DecisionCommand []string      `yaml:"decision_command,omitempty" koanf:"decision_command"`
	Progress        bool          `yaml:"progress" koanf:"progress"`
	Logging         LoggingConfig `yaml:"logging" koanf:"logging"`
	Webhook         WebhookConfig `yaml:"webhook" koanf:"webhook"`
}

// LoggingConfig configures logging behavior.
type LoggingConfig struct {
	Level  string `yaml:"level" koanf:"level"`
	Format string `yaml:"format" koanf:"format"` // json, text
}

// WebhookConfig configures audit result notifications.
type WebhookConfig struct {
	URL        string   `yaml:"url,omitempty" koanf:"url"`
	Secret     string   `yaml:"secret,omitempty" koanf:"secret"`
	Events     []string `yaml:"events,omitempty" koanf:"events"`
	MaxRetries int      `yaml:"max_retries" koanf:"max_retries"`
	Timeout    string   `yaml:"timeout" koanf:"timeout"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		SnapshotBackend: BackendFile,
		ReplayTimeout:   "30s",
		AuditWorkers:    4,
		DefaultMode:     "core",
		Progress:        true,
		Logging: LoggingConfig{
			Level:  "warn",
			Format: "text",
		},
		Webhook: WebhookConfig{
			MaxRetries: 3,
			Timeout:    "10s",
		},
	}
}

// Path returns the config file location for root.
func Path(root string) string {
	return filepath.Join(root, FileName)
}

// Load reads root/draudit.yaml, then overlays DRAUDIT_* environment
// variables. A missing file yields the defaults.
func Load(root string) (*Config, error) {
	k := koanf.New(".")
	cfg := Default()
	path := Path(root)

	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// envKey maps DRAUDIT_LOGGING__LEVEL to logging.level.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// Save writes cfg to root/draudit.yaml.
func Save(root string, cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := yamlv3.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := fsutil.AtomicWrite(Path(root), data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Validate checks that the configuration contains valid values.
func (c *Config) Validate() error {
	switch c.SnapshotBackend {
	case BackendFile, BackendSQLite:
	default:
		return fmt.Errorf("invalid snapshot_backend %q: must be file or sqlite", c.SnapshotBackend)
	}
	if _, err := c.ReplayTimeoutDuration(); err != nil {
		return err
	}
	if c.AuditWorkers < 1 {
		return fmt.Errorf("audit_workers must be at least 1")
	}
	switch c.DefaultMode {
	case "core", "full", "strict-core", "strict-full":
	default:
		return fmt.Errorf("invalid default_mode %q: must be core or full", c.DefaultMode)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging.level %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("invalid logging.format %q: must be json or text", c.Logging.Format)
	}
	if c.Webhook.MaxRetries < 0 {
		return fmt.Errorf("webhook.max_retries must be non-negative")
	}
	if _, err := parsePositiveDuration("webhook.timeout", c.Webhook.Timeout); err != nil {
		return err
	}
	return nil
}

// ReplayTimeoutDuration parses ReplayTimeout.
func (c *Config) ReplayTimeoutDuration() (time.Duration, error) {
	return parsePositiveDuration("replay_timeout", c.ReplayTimeout)
}

// WebhookTimeoutDuration parses Webhook.Timeout.
func (c *Config) WebhookTimeoutDuration() (time.Duration, error) {
	return parsePositiveDuration("webhook.timeout", c.Webhook.Timeout)
}

func parsePositiveDuration(key, s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive", key)
	}
	return d, nil
}

// Keys returns the settable keys in sorted order.
func Keys() []string {
	keys := make([]string, 0, len(accessors))
	for k := range accessors {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

type accessor struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

var accessors = map[string]accessor{
	"snapshot_backend": {
		get: func(c *Config) string { return c.SnapshotBackend },
		set: func(c *Config, v string) error { c.SnapshotBackend = v; return nil },
	},
	"replay_timeout": {
		get: func(c *Config) string { return c.ReplayTimeout },
		set: func(c *Config, v string) error { c.ReplayTimeout = v; return nil },
	},
	"audit_workers": {
		get: func(c *Config) string { return strconv.Itoa(c.AuditWorkers) },
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("audit_workers must be an integer: %w", err)
			}
			c.AuditWorkers = n
			return nil
		},
	},
	"default_mode": {
		get: func(c *Config) string { return c.DefaultMode },
		set: func(c *Config, v string) error { c.DefaultMode = v; return nil },
	},
	"decision_command": {
		get: func(c *Config) string { return strings.Join(c.DecisionCommand, " ") },
		set: func(c *Config, v string) error { c.DecisionCommand = strings.Fields(v); return nil },
	},
	"progress": {
		get: func(c *Config) string { return strconv.FormatBool(c.Progress) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("progress must be true or false: %w", err)
			}
			c.Progress = b
			return nil
		},
	},
	"logging.level": {
		get: func(c *Config) string { return c.Logging.Level },
		set: func(c *Config, v string) error { c.Logging.Level = v; return nil },
	},
	"logging.format": {
		get: func(c *Config) string { return c.Logging.Format },
		set: func(c *Config, v string) error { c.Logging.Format = v; return nil },
	},
	"webhook.url": {
		get: func(c *Config) string { return c.Webhook.URL },
		set: func(c *Config, v string) error { c.Webhook.URL = v; return nil },
	},
	"webhook.secret": {
		get: func(c *Config) string { return c.Webhook.Secret },
		set: func(c *Config, v string) error { c.Webhook.Secret = v; return nil },
	},
	"webhook.events": {
		get: func(c *Config) string { return strings.Join(c.Webhook.Events, ",") },
		set: func(c *Config, v string) error {
			c.Webhook.Events = nil
			for _, e := range strings.Split(v, ",") {
				if e = strings.TrimSpace(e); e != "" {
					c.Webhook.Events = append(c.Webhook.Events, e)
				}
			}
			return nil
		},
	},
	"webhook.max_retries": {
		get: func(c *Config) string { return strconv.Itoa(c.Webhook.MaxRetries) },
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("webhook.max_retries must be an integer: %w", err)
			}
			c.Webhook.MaxRetries = n
			return nil
		},
	},
	"webhook.timeout": {
		get: func(c *Config) string { return c.Webhook.Timeout },
		set: func(c *Config, v string) error { c.Webhook.Timeout = v; return nil },
	},
}

// Get returns the value of key as a string.
func (c *Config) Get(key string) (string, error) {
	a, ok := accessors[key]
	if !ok {
		return "", fmt.Errorf("unknown config key %q (valid: %s)", key, strings.Join(Keys(), ", "))
	}
	return a.get(c), nil
}

// Set assigns key from its string form and validates the result. On error
// c is left unchanged.
func (c *Config) Set(key, value string) error {
	a, ok := accessors[key]
	if !ok {
		return fmt.Errorf("unknown config key %q (valid: %s)", key, strings.Join(Keys(), ", "))
	}
	next := *c
	if err := a.set(&next, value); err != nil {
		return err
	}
	if err := next.Validate(); err != nil {
		return err
	}
	*c = next
	return nil
}
