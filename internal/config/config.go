package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvSummaryAPIKey overrides Summary.APIKey when set, so the key can stay
// out of the config file.
const EnvSummaryAPIKey = "CALRECON_SUMMARY_API_KEY"

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// SummaryConfig configures the LLM used to summarize merged events. An
// empty APIKey disables the call and every summary is the fallback text.
type SummaryConfig struct {
	// Endpoint is the base URL of an OpenAI-compatible API.
	Endpoint string `yaml:"endpoint" json:"endpoint"`
	APIKey   string `yaml:"api_key" json:"-"`
	Model    string `yaml:"model" json:"model"`

	// Timeout bounds a single summary generation.
	Timeout time.Duration `yaml:"timeout" json:"timeout"`

	// CacheTTL is how long a generated summary is reused.
	CacheTTL time.Duration `yaml:"cache_ttl" json:"cache_ttl"`
}

// ICSConfig controls iCalendar import.
type ICSConfig struct {
	// HorizonDays bounds RRULE expansion to this many days either side of
	// the import time.
	HorizonDays int `yaml:"horizon_days" json:"horizon_days"`

	// MaxOccurrencesPerEvent caps the instances generated from one RRULE.
	MaxOccurrencesPerEvent int `yaml:"max_occurrences_per_event" json:"max_occurrences_per_event"`

	// CacheDir holds the bodies and validators of subscribed feeds.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	// AllowPrivateFeeds lets feed subscriptions reach loopback, private and
	// link-local addresses. Leave off unless every API caller is trusted.
	AllowPrivateFeeds bool `yaml:"allow_private_feeds" json:"allow_private_feeds"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	// DatabasePath is the SQLite database file.
	DatabasePath string `yaml:"database_path" json:"database_path"`

	// BatchLimit caps POST /api/events/batch.
	BatchLimit int `yaml:"batch_limit" json:"batch_limit"`

	// ReconcileCron is a cron-style schedule string (e.g. "0 * * * *") for
	// reconciling every user. Empty disables the scheduler.
	ReconcileCron string `yaml:"reconcile_cron" json:"reconcile_cron"`

	Summary SummaryConfig `yaml:"summary" json:"summary"`
	ICS     ICSConfig     `yaml:"ics" json:"ics"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:        "127.0.0.1:8080",
		LogLevel:      "info",
		DatabasePath:  "/var/lib/calrecon/calrecon.db",
		BatchLimit:    500,
		ReconcileCron: "",
		Summary: SummaryConfig{
			Endpoint: "https://api.openai.com/v1",
			Model:    "gpt-4.1",
			Timeout:  10 * time.Second,
			CacheTTL: time.Hour,
		},
		ICS: ICSConfig{
			HorizonDays:            90,
			MaxOccurrencesPerEvent: 500,
			CacheDir:               "/var/lib/calrecon/ics-cache",
		},
		BasicAuth: nil,
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	def := DefaultConfig()

	if c.Listen == "" {
		c.Listen = def.Listen
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
		// ok
	default:
		c.LogLevel = def.LogLevel
	}
	if c.DatabasePath == "" {
		c.DatabasePath = def.DatabasePath
	}
	if c.BatchLimit <= 0 {
		c.BatchLimit = def.BatchLimit
	}

	if c.Summary.Endpoint == "" {
		c.Summary.Endpoint = def.Summary.Endpoint
	}
	if c.Summary.Model == "" {
		c.Summary.Model = def.Summary.Model
	}
	if c.Summary.Timeout <= 0 {
		c.Summary.Timeout = def.Summary.Timeout
	}
	if c.Summary.CacheTTL <= 0 {
		c.Summary.CacheTTL = def.Summary.CacheTTL
	}

	if c.ICS.HorizonDays <= 0 {
		c.ICS.HorizonDays = def.ICS.HorizonDays
	}
	if c.ICS.MaxOccurrencesPerEvent <= 0 {
		c.ICS.MaxOccurrencesPerEvent = def.ICS.MaxOccurrencesPerEvent
	}
	if c.ICS.CacheDir == "" {
		c.ICS.CacheDir = def.ICS.CacheDir
	}

	// Credentials with an empty username would lock every client out.
	if c.BasicAuth != nil && c.BasicAuth.Username == "" {
		c.BasicAuth = nil
	}
}

// ApplyEnv overlays settings taken from the environment.
func (c *Config) ApplyEnv() {
	if key := os.Getenv(EnvSummaryAPIKey); key != "" {
		c.Summary.APIKey = key
	}
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
//
// Environment overrides are applied in both cases and never written back.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				cfg.ApplyEnv()
				return cfg, err
			}
			cfg.ApplyEnv()
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()
	cfg.ApplyEnv()

	return &cfg, nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	// Atomic write: write to temp file in same directory then rename.
	tmp, err := os.CreateTemp(dir, ".calrecon-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
