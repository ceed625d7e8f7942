package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration options for the Wayback discovery engine
type Config struct {
	// Search phrases and date window
	Search SearchConfig `yaml:"search" json:"search"`

	// Wayback endpoints and per-method settings
	Wayback WaybackConfig `yaml:"wayback" json:"wayback"`

	// Rate governing configuration
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`

	// Fetch settings
	Fetch FetchConfig `yaml:"fetch" json:"fetch"`

	// Storage locations
	Storage StorageConfig `yaml:"storage" json:"storage"`

	// Export settings
	Export ExportConfig `yaml:"export" json:"export"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// SearchConfig holds the phrase list and the capture date window
type SearchConfig struct {
	Phrases     []string `yaml:"phrases" json:"phrases"`
	URLPatterns []string `yaml:"url_patterns" json:"url_patterns"`
	StartYear   FlexYear `yaml:"start_year" json:"start_year"`
	EndYear     FlexYear `yaml:"end_year" json:"end_year"`
}

// WaybackConfig holds remote endpoint configuration
type WaybackConfig struct {
	CDXURL        string        `yaml:"cdx_url" json:"cdx_url"`
	CDXMatchType  string        `yaml:"cdx_match_type" json:"cdx_match_type"`
	CDXPageSize   int           `yaml:"cdx_page_size" json:"cdx_page_size"`
	CalendarURL   string        `yaml:"calendar_url" json:"calendar_url"`
	CalendarSites []string      `yaml:"calendar_sites" json:"calendar_sites"`
	FullTextURL   string        `yaml:"fulltext_url" json:"fulltext_url"`
	MaxPages      int           `yaml:"max_pages" json:"max_pages"`
	UserAgent     string        `yaml:"user_agent" json:"user_agent"`
	Timeout       time.Duration `yaml:"timeout" json:"timeout"`
	MaxRetries    int           `yaml:"max_retries" json:"max_retries"`
}

// RateLimitConfig holds rate governing configuration
type RateLimitConfig struct {
	MinDelay         time.Duration `yaml:"min_delay" json:"min_delay"`
	MaxDelay         time.Duration `yaml:"max_delay" json:"max_delay"`
	Jitter           time.Duration `yaml:"jitter" json:"jitter"`
	BackoffBase      time.Duration `yaml:"backoff_base" json:"backoff_base"`
	BackoffMax       time.Duration `yaml:"backoff_max" json:"backoff_max"`
	RequestsPerHour  int           `yaml:"requests_per_hour" json:"requests_per_hour"`
	CooldownEvery    int           `yaml:"cooldown_every" json:"cooldown_every"`
	CooldownDuration time.Duration `yaml:"cooldown_duration" json:"cooldown_duration"`
	SuccessStreak    int           `yaml:"success_streak" json:"success_streak"`
}

// FetchConfig holds page fetch settings
type FetchConfig struct {
	BatchLimit        int `yaml:"batch_limit" json:"batch_limit"`
	ConcurrentFetches int `yaml:"concurrent_fetches" json:"concurrent_fetches"`
}

// StorageConfig holds local storage locations
type StorageConfig struct {
	Database string `yaml:"database" json:"database"`
	Pages    string `yaml:"pages" json:"pages"`
}

// ExportConfig holds export output settings
type ExportConfig struct {
	OutputDir string `yaml:"output_dir" json:"output_dir"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// FlexYear is a four-digit year that unmarshals from either a YAML
// string ("2008") or a number (2008). The Wayback calendar API and
// hand-written config files use both forms interchangeably.
type FlexYear int

// UnmarshalYAML implements yaml.Unmarshaler
func (y *FlexYear) UnmarshalYAML(value *yaml.Node) error {
	v, err := ParseYear(value.Value)
	if err != nil {
		return err
	}
	*y = v
	return nil
}

// ParseYear converts a year given as text or numeric text to a FlexYear
func ParseYear(s string) (FlexYear, error) {
	s = strings.TrimSpace(strings.Trim(s, `"'`))
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid year %q: %w", s, err)
	}
	return FlexYear(n), nil
}

// Int returns the year as a plain int
func (y FlexYear) Int() int { return int(y) }

// DefaultConfig returns a Config instance with the project defaults
func DefaultConfig() *Config {
	return &Config{
		Search: SearchConfig{
			Phrases: []string{
				"Cojum Dip", "cojumdip", "cojum-dip",
				"Bora Karaca", "Turk Off", "2010 Remix",
			},
			URLPatterns: []string{
				"myspace.com/cojumdip*",
				"purevolume.com/cojumdip*",
			},
			StartYear: 2004,
			EndYear:   2011,
		},
		Wayback: WaybackConfig{
			CDXURL:       "https://web.archive.org/cdx/search/cdx",
			CDXMatchType: "domain",
			CDXPageSize:  500,
			CalendarURL:  "https://web.archive.org/__wb/calendarcaptures/2",
			CalendarSites: []string{
				"http://myspace.com/cojumdip",
				"http://purevolume.com/cojumdip",
				"http://soundcloud.com/cojumdip",
				"http://facebook.com/cojumdip",
				"http://youtube.com/cojumdip",
				"http://last.fm/music/Cojum+Dip",
			},
			FullTextURL: "https://web.archive.org/web/*/",
			MaxPages:    50,
			UserAgent:   "Cojumpendium-Scraper/2.0 (Lost Media Archival Project)",
			Timeout:     30 * time.Second,
			MaxRetries:  3,
		},
		RateLimit: RateLimitConfig{
			MinDelay:         5 * time.Second,
			MaxDelay:         15 * time.Second,
			Jitter:           3 * time.Second,
			BackoffBase:      30 * time.Second,
			BackoffMax:       600 * time.Second,
			RequestsPerHour:  100,
			CooldownEvery:    50,
			CooldownDuration: 180 * time.Second,
			SuccessStreak:    5,
		},
		Fetch: FetchConfig{
			BatchLimit:        100,
			ConcurrentFetches: 3,
		},
		Storage: StorageConfig{
			Database: "./cojumpendium.db",
			Pages:    "./pages",
		},
		Export: ExportConfig{
			OutputDir: "./exports",
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  "",
		},
	}
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	if phrases := os.Getenv("DERP_PHRASES"); phrases != "" {
		c.Search.Phrases = splitList(phrases)
	}
	if patterns := os.Getenv("DERP_URL_PATTERNS"); patterns != "" {
		c.Search.URLPatterns = splitList(patterns)
	}
	if start := os.Getenv("DERP_START_YEAR"); start != "" {
		if y, err := ParseYear(start); err == nil {
			c.Search.StartYear = y
		}
	}
	if end := os.Getenv("DERP_END_YEAR"); end != "" {
		if y, err := ParseYear(end); err == nil {
			c.Search.EndYear = y
		}
	}
	if rph := os.Getenv("DERP_REQUESTS_PER_HOUR"); rph != "" {
		var val int
		fmt.Sscanf(rph, "%d", &val)
		if val > 0 {
			c.RateLimit.RequestsPerHour = val
		}
	}
	if db := os.Getenv("DERP_DATABASE"); db != "" {
		c.Storage.Database = db
	}
	if pages := os.Getenv("DERP_PAGES_DIR"); pages != "" {
		c.Storage.Pages = pages
	}
	if concurrent := os.Getenv("DERP_CONCURRENT_FETCHES"); concurrent != "" {
		var val int
		fmt.Sscanf(concurrent, "%d", &val)
		if val > 0 {
			c.Fetch.ConcurrentFetches = val
		}
	}
	if ua := os.Getenv("DERP_USER_AGENT"); ua != "" {
		c.Wayback.UserAgent = ua
	}
	if logLevel := os.Getenv("DERP_LOG_LEVEL"); logLevel != "" {
		c.Logging.Level = logLevel
	}
	return nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	// If path is empty, try default locations
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil // No config file found, not an error
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches for config file in standard locations
func (c *Config) findConfigFile() string {
	locations := []string{
		"derp.yaml",
		"config.yaml",
		"config.yml",
		".derp.yaml",
		filepath.Join(os.Getenv("HOME"), ".config", "derp", "config.yaml"),
		filepath.Join(os.Getenv("HOME"), ".derp.yaml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid. A failure here is fatal
// at startup, before any network activity.
func (c *Config) Validate() error {
	var errs []error

	if len(c.Search.Phrases) == 0 {
		errs = append(errs, errors.New("at least one search phrase is required"))
	}
	for _, p := range c.Search.Phrases {
		if strings.TrimSpace(p) == "" {
			errs = append(errs, errors.New("search phrases must not be blank"))
			break
		}
	}
	if c.Search.StartYear < 1996 || c.Search.StartYear > 2100 {
		errs = append(errs, fmt.Errorf("start year %d out of range", c.Search.StartYear))
	}
	if c.Search.EndYear < c.Search.StartYear {
		errs = append(errs, fmt.Errorf("end year %d precedes start year %d",
			c.Search.EndYear, c.Search.StartYear))
	}

	if c.RateLimit.RequestsPerHour <= 0 {
		errs = append(errs, errors.New("requests per hour must be positive"))
	}
	if c.RateLimit.MinDelay < 0 || c.RateLimit.MaxDelay < c.RateLimit.MinDelay {
		errs = append(errs, errors.New("delay range is invalid"))
	}
	if c.RateLimit.BackoffBase <= 0 || c.RateLimit.BackoffMax < c.RateLimit.BackoffBase {
		errs = append(errs, errors.New("backoff range is invalid"))
	}

	if c.Fetch.ConcurrentFetches <= 0 {
		errs = append(errs, errors.New("concurrent fetches must be positive"))
	}
	if c.Fetch.ConcurrentFetches > 10 {
		errs = append(errs, errors.New("concurrent fetches should not exceed 10"))
	}
	if c.Wayback.MaxPages <= 0 {
		errs = append(errs, errors.New("max pages must be positive"))
	}
	if c.Storage.Database == "" {
		errs = append(errs, errors.New("database path is required"))
	}

	if len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, err := range errs {
			msgs[i] = err.Error()
		}
		return fmt.Errorf("configuration validation failed: %s", strings.Join(msgs, "; "))
	}

	return nil
}

// DateWindow returns the inclusive capture timestamp bounds in the
// Wayback 14-digit format.
func (c *Config) DateWindow() (from, to string) {
	return fmt.Sprintf("%d0101000000", c.Search.StartYear.Int()),
		fmt.Sprintf("%d1231235959", c.Search.EndYear.Int())
}

// Load creates a configuration by layering defaults, config file,
// environment variables, and command-line flag overrides in that order.
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	// Load .env files if present (ignore errors, they're optional)
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".derp.env"))

	cfg := DefaultConfig()

	if err := cfg.LoadFromFile(configPath); err != nil {
		return nil, err
	}

	if err := cfg.LoadFromEnv(); err != nil {
		return nil, err
	}

	applyFlags(cfg, flags)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyFlags overlays command-line flag values onto the config
func applyFlags(cfg *Config, flags map[string]interface{}) {
	for key, value := range flags {
		switch key {
		case "database":
			if v, ok := value.(string); ok && v != "" {
				cfg.Storage.Database = v
			}
		case "pages-dir":
			if v, ok := value.(string); ok && v != "" {
				cfg.Storage.Pages = v
			}
		case "requests-per-hour":
			if v, ok := value.(int); ok && v > 0 {
				cfg.RateLimit.RequestsPerHour = v
			}
		case "concurrent-fetches":
			if v, ok := value.(int); ok && v > 0 {
				cfg.Fetch.ConcurrentFetches = v
			}
		case "output-dir":
			if v, ok := value.(string); ok && v != "" {
				cfg.Export.OutputDir = v
			}
		case "log-level":
			if v, ok := value.(string); ok && v != "" {
				cfg.Logging.Level = v
			}
		}
	}
}
