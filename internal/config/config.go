// Load envs from .env
// Load YAML config
// Override from environment
// Provide default values
// Validate config

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const DefaultPath = "configs/config.yaml"

type Config struct {
	Portal       PortalConfig       `yaml:"portal"`
	Login        LoginConfig        `yaml:"login"`
	Registration RegistrationConfig `yaml:"registration"`
	Limits       LimitsConfig       `yaml:"limits"`
	Timing       TimingConfig       `yaml:"timing"`
	Validation   ValidationConfig   `yaml:"validation"`
	Browser      BrowserConfig      `yaml:"browser"`
	State        StateConfig        `yaml:"state"`

	DatabaseURL string `yaml:"database_url" env:"DATABASE_URL"`
	Schedule    string `yaml:"schedule" env:"HARVEST_SCHEDULE"`
	MetricsAddr string `yaml:"metrics_addr" env:"METRICS_ADDR"`
	LogLevel    string `yaml:"log_level" env:"LOG_LEVEL"`
}

type PortalConfig struct {
	BaseURL string `yaml:"base_url" env:"PORTAL_BASE_URL"`
	// SourceTag is stored as the record's external source.
	SourceTag         string   `yaml:"source_tag"`
	Paths             []string `yaml:"paths"`
	ProtectedPrefixes []string `yaml:"protected_prefixes"`
}

type Credential struct {
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
}

type LoginConfig struct {
	Path             string       `yaml:"path"`
	Credentials      []Credential `yaml:"credentials"`
	EmailSelector    string       `yaml:"email_selector"`
	PasswordSelector string       `yaml:"password_selector"`
	SubmitSelector   string       `yaml:"submit_selector"`
	// Browser-exported cookie file tried before any credential
	CookiesPath string `yaml:"cookies_path"`
}

type RegistrationConfig struct {
	Enabled               bool   `yaml:"enabled"`
	EmailDomain           string `yaml:"email_domain"`
	NameSelector          string `yaml:"name_selector"`
	ConfirmPasswordSelect string `yaml:"confirm_password_selector"`
}

type LimitsConfig struct {
	JobsPerCycle         int `yaml:"jobs_per_cycle"`
	MinPathsPerRun       int `yaml:"min_paths_per_run"`
	MaxPathsPerRun       int `yaml:"max_paths_per_run"`
	ExpectedItemsPerPath int `yaml:"expected_items_per_path"`
	MaxPostingsPerPath   int `yaml:"max_postings_per_path"`
	MaxNavFollowups      int `yaml:"max_nav_followups"`
}

type TimingConfig struct {
	LoginValidity     time.Duration `yaml:"login_validity"`
	NavigationTimeout time.Duration `yaml:"navigation_timeout"`
	SettleDelay       time.Duration `yaml:"settle_delay"`
	RateLimitInterval time.Duration `yaml:"rate_limit_interval"`
	MaxJitter         time.Duration `yaml:"max_jitter"`
}

type ValidationConfig struct {
	SimilarityThreshold       float64  `yaml:"similarity_threshold"`
	TitleRepetitionRatio      float64  `yaml:"title_repetition_ratio"`
	DescriptionRepetitionRate float64  `yaml:"description_repetition_ratio"`
	MinTokensForRepetition    int      `yaml:"min_tokens_for_repetition"`
	GenericEmployers          []string `yaml:"generic_employers"`
	BoilerplatePhrases        []string `yaml:"boilerplate_phrases"`
}

type BrowserConfig struct {
	Headless      bool   `yaml:"headless"`
	UserAgent     string `yaml:"user_agent"`
	ScreenshotDir string `yaml:"screenshot_dir"`
}

type StateConfig struct {
	// Backend is "file" or "redis"
	Backend  string `yaml:"backend"`
	Path     string `yaml:"path"`
	RedisURL string `yaml:"redis_url" env:"REDIS_URL"`
}

// Load reads .env, then the YAML file at path (DefaultPath when empty), then
// environment overrides, then fills defaults and validates.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	if path == "" {
		path = DefaultPath
	}

	cfg := &Config{}
	cfg.Browser.Headless = true

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	//simple string overrides
	overrides := map[string]*string{
		"PORTAL_BASE_URL":  &c.Portal.BaseURL,
		"DATABASE_URL":     &c.DatabaseURL,
		"REDIS_URL":        &c.State.RedisURL,
		"HARVEST_SCHEDULE": &c.Schedule,
		"METRICS_ADDR":     &c.MetricsAddr,
		"LOG_LEVEL":        &c.LogLevel,
	}
	for key, dst := range overrides {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	//a single credential from env goes first
	email, password := os.Getenv("PORTAL_LOGIN_EMAIL"), os.Getenv("PORTAL_LOGIN_PASSWORD")
	if email != "" && password != "" {
		c.Login.Credentials = append([]Credential{{Email: email, Password: password}}, c.Login.Credentials...)
	}

	if v := os.Getenv("HEADLESS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid HEADLESS: %w", err)
		}
		c.Browser.Headless = b
	}

	if v := os.Getenv("JOBS_PER_CYCLE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid JOBS_PER_CYCLE: %w", err)
		}
		c.Limits.JobsPerCycle = n
	}
	return nil
}

// SetDefaults fills every zero value with its default.
func (c *Config) SetDefaults() {
	if c.Portal.SourceTag == "" {
		c.Portal.SourceTag = "portal"
	}
	if c.Login.Path == "" {
		c.Login.Path = "/login"
	}
	if c.Login.EmailSelector == "" {
		c.Login.EmailSelector = `input[type="email"], input[name="email"], input[name="username"]`
	}
	if c.Login.PasswordSelector == "" {
		c.Login.PasswordSelector = `input[type="password"]`
	}
	if c.Login.SubmitSelector == "" {
		c.Login.SubmitSelector = `button[type="submit"], input[type="submit"]`
	}
	if c.Registration.EmailDomain == "" {
		c.Registration.EmailDomain = "example.com"
	}
	if c.Registration.NameSelector == "" {
		c.Registration.NameSelector = `input[name="name"], input[name="fullName"], input[name="full_name"]`
	}
	if c.Registration.ConfirmPasswordSelect == "" {
		c.Registration.ConfirmPasswordSelect = `input[name="confirmPassword"], input[name="password_confirmation"], input[name="confirm_password"]`
	}

	l := &c.Limits
	if l.JobsPerCycle == 0 {
		l.JobsPerCycle = 10
	}
	if l.MinPathsPerRun == 0 {
		l.MinPathsPerRun = 2
	}
	if l.MaxPathsPerRun == 0 {
		l.MaxPathsPerRun = 3
	}
	if l.ExpectedItemsPerPath == 0 {
		l.ExpectedItemsPerPath = 4
	}
	if l.MaxPostingsPerPath == 0 {
		l.MaxPostingsPerPath = 10
	}
	if l.MaxNavFollowups == 0 {
		l.MaxNavFollowups = 2
	}

	t := &c.Timing
	if t.LoginValidity == 0 {
		t.LoginValidity = 2 * time.Hour
	}
	if t.NavigationTimeout == 0 {
		t.NavigationTimeout = 30 * time.Second
	}
	if t.SettleDelay == 0 {
		t.SettleDelay = 1500 * time.Millisecond
	}
	if t.RateLimitInterval == 0 {
		t.RateLimitInterval = 2 * time.Second
	}
	if t.MaxJitter == 0 {
		t.MaxJitter = time.Second
	}

	v := &c.Validation
	if v.SimilarityThreshold == 0 {
		v.SimilarityThreshold = 0.85
	}
	if v.TitleRepetitionRatio == 0 {
		v.TitleRepetitionRatio = 0.6
	}
	if v.DescriptionRepetitionRate == 0 {
		v.DescriptionRepetitionRate = 0.4
	}
	if v.MinTokensForRepetition == 0 {
		v.MinTokensForRepetition = 10
	}

	if c.Browser.UserAgent == "" {
		c.Browser.UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
	}
	if c.Browser.ScreenshotDir == "" {
		c.Browser.ScreenshotDir = "logs/screenshots"
	}

	if c.State.Backend == "" {
		c.State.Backend = "file"
	}
	if c.State.Path == "" {
		c.State.Path = ".cache/harvest_state.json"
	}
	if c.Schedule == "" {
		c.Schedule = "@every 1h"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Validate checks required fields and value ranges.
func (c *Config) Validate() error {
	var problems []string

	if c.Portal.BaseURL == "" {
		problems = append(problems, "portal.base_url (PORTAL_BASE_URL) is required")
	}
	if len(c.Portal.Paths) == 0 {
		problems = append(problems, "portal.paths must list at least one path")
	}
	if c.Limits.MinPathsPerRun > c.Limits.MaxPathsPerRun {
		problems = append(problems, "limits.min_paths_per_run must not exceed limits.max_paths_per_run")
	}
	if c.Limits.JobsPerCycle < 1 {
		problems = append(problems, "limits.jobs_per_cycle must be positive")
	}
	if c.Validation.SimilarityThreshold <= 0 || c.Validation.SimilarityThreshold > 1 {
		problems = append(problems, "validation.similarity_threshold must be in (0, 1]")
	}
	switch c.State.Backend {
	case "file":
	case "redis":
		if c.State.RedisURL == "" {
			problems = append(problems, "state.redis_url (REDIS_URL) is required for the redis backend")
		}
	default:
		problems = append(problems, fmt.Sprintf("state.backend %q is not one of file, redis", c.State.Backend))
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// IsProtected reports whether path falls under one of the protected prefixes.
func (c *Config) IsProtected(path string) bool {
	for _, p := range c.Portal.ProtectedPrefixes {
		if p != "" && strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}
