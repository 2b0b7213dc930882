// Package config provides YAML-based configuration loading for GMAO.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Workflow phases a configured status can belong to.
const (
	PhaseNew        = "new"
	PhaseInProgress = "in_progress"
	PhaseClosed     = "closed"
	PhaseCancelled  = "cancelled"
)

// Config is the top-level GMAO configuration, loaded from gmao.yaml.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Workflow  WorkflowConfig  `yaml:"workflow"`
	Features  FeatureConfig   `yaml:"features"`
	Media     MediaConfig     `yaml:"media"`
	Sequence  SequenceConfig  `yaml:"sequence"`
	Notify    NotifyConfig    `yaml:"notify"`
	Logging   LoggingConfig   `yaml:"logging"`
	Tracing   TracingConfig   `yaml:"tracing"`
	Dashboard DashboardConfig `yaml:"dashboard"`
}

// DatabaseConfig selects the driver and connection settings.
type DatabaseConfig struct {
	Driver   string `yaml:"driver"` // "sqlite" or "mysql"
	Path     string `yaml:"path"`   // sqlite file
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

// StatusConfig is one configurable work-order status.
type StatusConfig struct {
	Name        string `yaml:"name"`
	Phase       string `yaml:"phase"`
	Final       bool   `yaml:"final"`
	Color       string `yaml:"color"`
	Description string `yaml:"description"`
}

// WorkflowConfig is the work-order status set.
type WorkflowConfig struct {
	Statuses []StatusConfig `yaml:"statuses"`
}

// FeatureConfig holds feature toggles passed to the services.
type FeatureConfig struct {
	AllowForcedDeletion bool `yaml:"allow_forced_deletion"`
	RepairRequests      bool `yaml:"repair_requests"`
	Autosave            bool `yaml:"autosave"`
}

// MediaConfig configures the local blob store.
type MediaConfig struct {
	Root string `yaml:"root"`
}

// SequenceConfig selects the counter backend used for repair request numbers.
type SequenceConfig struct {
	Backend   string `yaml:"backend"` // "db" or "redis"
	RedisAddr string `yaml:"redis_addr"`
	RedisDB   int    `yaml:"redis_db"`
	Retries   int    `yaml:"retries"`
}

// NotifyConfig lists the enabled notification sinks.
type NotifyConfig struct {
	Outbox         bool   `yaml:"outbox"`
	SlackWebhook   string `yaml:"slack_webhook"`
	DiscordWebhook string `yaml:"discord_webhook"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "console" or "json"
}

// TracingConfig configures the OTLP exporter. Tracing is off when Endpoint is empty.
type TracingConfig struct {
	Endpoint    string `yaml:"endpoint"`
	ServiceName string `yaml:"service_name"`
	Insecure    bool   `yaml:"insecure"`
}

// DashboardConfig configures the read-only HTTP view.
type DashboardConfig struct {
	Addr string `yaml:"addr"`
}

// Load reads a YAML config file from path and returns a validated Config.
// A .env file next to the working directory is loaded first, if present.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config. GMAO_* environment
// variables override the file. Repair requests and autosave are on unless
// the file turns them off.
func Parse(data []byte) (*Config, error) {
	cfg := Config{Features: FeatureConfig{RepairRequests: true, Autosave: true}}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyEnv(os.Getenv)
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// DefaultStatuses is the status set used when none is configured.
func DefaultStatuses() []StatusConfig {
	return []StatusConfig{
		{Name: "New", Phase: PhaseNew, Color: "#3498db", Description: "Scheduled, not started"},
		{Name: "InProgress", Phase: PhaseInProgress, Color: "#f39c12", Description: "Execution under way"},
		{Name: "Closed", Phase: PhaseClosed, Final: true, Color: "#27ae60", Description: "Finalized"},
		{Name: "Cancelled", Phase: PhaseCancelled, Final: true, Color: "#7f8c8d", Description: "Cancelled"},
	}
}

func (c *Config) applyEnv(getenv func(string) string) {
	set := func(dst *string, key string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	set(&c.Database.Driver, "GMAO_DB_DRIVER")
	set(&c.Database.Host, "GMAO_DB_HOST")
	set(&c.Database.User, "GMAO_DB_USER")
	set(&c.Database.Password, "GMAO_DB_PASSWORD")
	set(&c.Database.Name, "GMAO_DB_NAME")
	set(&c.Sequence.RedisAddr, "GMAO_REDIS_ADDR")
	set(&c.Notify.SlackWebhook, "GMAO_SLACK_WEBHOOK")
	set(&c.Notify.DiscordWebhook, "GMAO_DISCORD_WEBHOOK")
	set(&c.Tracing.Endpoint, "GMAO_OTLP_ENDPOINT")
	if v := getenv("GMAO_DB_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Database.Port = p
		}
	}
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.Driver == "sqlite" && c.Database.Path == "" {
		c.Database.Path = "gmao.db"
	}
	if c.Database.Driver == "mysql" {
		if c.Database.Host == "" {
			c.Database.Host = "127.0.0.1"
		}
		if c.Database.Port == 0 {
			c.Database.Port = 3306
		}
		if c.Database.Name == "" {
			c.Database.Name = "gmao"
		}
		if c.Database.User == "" {
			c.Database.User = "root"
		}
	}
	if len(c.Workflow.Statuses) == 0 {
		c.Workflow.Statuses = DefaultStatuses()
	}
	if c.Media.Root == "" {
		c.Media.Root = "media"
	}
	if c.Sequence.Backend == "" {
		c.Sequence.Backend = "db"
	}
	if c.Sequence.Retries == 0 {
		c.Sequence.Retries = 5
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = "gmao"
	}
	if c.Dashboard.Addr == "" {
		c.Dashboard.Addr = ":8090"
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	switch c.Database.Driver {
	case "sqlite", "mysql":
	default:
		errs = append(errs, fmt.Sprintf("database.driver %q must be sqlite or mysql", c.Database.Driver))
	}
	switch c.Sequence.Backend {
	case "db":
	case "redis":
		if c.Sequence.RedisAddr == "" {
			errs = append(errs, "sequence.redis_addr is required for the redis backend")
		}
	default:
		errs = append(errs, fmt.Sprintf("sequence.backend %q must be db or redis", c.Sequence.Backend))
	}
	switch c.Logging.Format {
	case "console", "json":
	default:
		errs = append(errs, fmt.Sprintf("logging.format %q must be console or json", c.Logging.Format))
	}
	errs = append(errs, c.Workflow.check()...)
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (w WorkflowConfig) check() []string {
	var errs []string
	seen := make(map[string]bool)
	perPhase := make(map[string]int)
	for i, s := range w.Statuses {
		if s.Name == "" {
			errs = append(errs, fmt.Sprintf("workflow.statuses[%d].name is required", i))
			continue
		}
		if seen[s.Name] {
			errs = append(errs, fmt.Sprintf("workflow.statuses[%d]: duplicate status %q", i, s.Name))
		}
		seen[s.Name] = true
		switch s.Phase {
		case PhaseNew, PhaseInProgress:
			if s.Final {
				errs = append(errs, fmt.Sprintf("workflow status %q in phase %s cannot be final", s.Name, s.Phase))
			}
		case PhaseClosed, PhaseCancelled:
			if !s.Final {
				errs = append(errs, fmt.Sprintf("workflow status %q in phase %s must be final", s.Name, s.Phase))
			}
		default:
			errs = append(errs, fmt.Sprintf("workflow status %q has unknown phase %q", s.Name, s.Phase))
		}
		perPhase[s.Phase]++
	}
	for _, p := range []string{PhaseNew, PhaseInProgress, PhaseClosed, PhaseCancelled} {
		if perPhase[p] != 1 {
			errs = append(errs, fmt.Sprintf("workflow needs exactly one %s status, got %d", p, perPhase[p]))
		}
	}
	return errs
}

// StatusFor returns the status name configured for a phase.
func (w WorkflowConfig) StatusFor(phase string) string {
	for _, s := range w.Statuses {
		if s.Phase == phase {
			return s.Name
		}
	}
	return ""
}

// Lookup returns the configured status with the given name.
func (w WorkflowConfig) Lookup(name string) (StatusConfig, bool) {
	for _, s := range w.Statuses {
		if s.Name == name {
			return s, true
		}
	}
	return StatusConfig{}, false
}

// IsFinal reports whether name is a final status. Unknown names are treated as final.
func (w WorkflowConfig) IsFinal(name string) bool {
	s, ok := w.Lookup(name)
	return !ok || s.Final
}

// PhaseOf returns the phase of a status name, or "" when unknown.
func (w WorkflowConfig) PhaseOf(name string) string {
	s, _ := w.Lookup(name)
	return s.Phase
}
