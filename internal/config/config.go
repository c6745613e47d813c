package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/manash/stitchgen/internal/provider"
	"github.com/manash/stitchgen/internal/provider/toolkit"
	"github.com/manash/stitchgen/pkg/models"
)

const (
	appName  = "stitchgen"
	fileName = "config.yaml"

	EnvConfigDir = "STITCHGEN_CONFIG_DIR"
	EnvBaseURL   = "STITCHGEN_BASE_URL"
	EnvTimeout   = "STITCHGEN_TIMEOUT"
	EnvLogLevel  = "STITCHGEN_LOG_LEVEL"
	EnvOutputDir = "STITCHGEN_OUTPUT_DIR"
	EnvAddr      = "STITCHGEN_ADDR"
	EnvStyle     = "STITCHGEN_DEFAULT_STYLE"
	EnvCategory  = "STITCHGEN_DEFAULT_CATEGORY"

	DefaultAddr = ":8080"
)

var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	BaseURL         string          `yaml:"base_url"`
	Timeout         time.Duration   `yaml:"timeout"`
	Verbose         bool            `yaml:"verbose"`
	LogLevel        string          `yaml:"log_level"`
	OutputDir       string          `yaml:"output_dir"`
	DefaultStyle    models.Style    `yaml:"default_style"`
	DefaultCategory models.Category `yaml:"default_category"`
	Addr            string          `yaml:"addr"`
}

func Default() *Config {
	return &Config{
		BaseURL:         toolkit.DefaultBaseURL,
		Timeout:         provider.DefaultTimeout,
		LogLevel:        "warn",
		OutputDir:       ".",
		DefaultStyle:    models.DefaultStyle,
		DefaultCategory: models.DefaultCategory,
		Addr:            DefaultAddr,
	}
}

// Dir returns the platform-specific config directory.
func Dir() (string, error) {
	if dir := os.Getenv(EnvConfigDir); dir != "" {
		return dir, nil
	}

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, "Library", "Application Support", appName), nil
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			appData = filepath.Join(home, "AppData", "Roaming")
		}
		return filepath.Join(appData, appName), nil
	default:
		configHome := os.Getenv("XDG_CONFIG_HOME")
		if configHome == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			configHome = filepath.Join(home, ".config")
		}
		return filepath.Join(configHome, appName), nil
	}
}

func DefaultPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, fileName), nil
}

// Load builds the configuration from defaults, the YAML file, a .env file in
// the working directory and the environment, in increasing precedence.
// An empty path means the default location, which may be absent. An explicit
// path must exist. Flags are applied by the caller afterwards.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	explicit := path != ""
	if !explicit {
		p, err := DefaultPath()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve config directory: %w", err)
		}
		path = p
	}

	if err := cfg.loadFile(path, explicit); err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string, required bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !required {
			return nil
		}
		return fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv(EnvBaseURL); v != "" {
		c.BaseURL = v
	}
	if v := os.Getenv(EnvTimeout); v != "" {
		d, err := ParseTimeout(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvTimeout, err)
		}
		c.Timeout = d
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv(EnvOutputDir); v != "" {
		c.OutputDir = v
	}
	if v := os.Getenv(EnvAddr); v != "" {
		c.Addr = v
	}
	if v := os.Getenv(EnvStyle); v != "" {
		c.DefaultStyle = models.Style(v)
	}
	if v := os.Getenv(EnvCategory); v != "" {
		c.DefaultCategory = models.Category(v)
	}
	return nil
}

// ParseTimeout accepts a Go duration ("45s", "1m") or a whole number of
// seconds.
func ParseTimeout(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if secs, err := strconv.Atoi(s); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%w: timeout %q", ErrInvalidConfig, s)
	}
	return d, nil
}

func (c *Config) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("%w: timeout must be positive, got %s", ErrInvalidConfig, c.Timeout)
	}

	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("%w: base_url %q must be an absolute http(s) URL", ErrInvalidConfig, c.BaseURL)
	}

	if !c.DefaultStyle.IsValid() {
		return fmt.Errorf("%w: default_style: %w", ErrInvalidConfig, models.ErrInvalidStyle)
	}
	if !c.DefaultCategory.IsValid() {
		return fmt.Errorf("%w: default_category: %w", ErrInvalidConfig, models.ErrInvalidCategory)
	}
	return nil
}

// Provider returns the generation client settings.
func (c *Config) Provider() *provider.Config {
	return &provider.Config{
		BaseURL: c.BaseURL,
		Timeout: c.Timeout,
		Verbose: c.Verbose,
	}
}

// Save writes c as YAML to path, creating the directory.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0600)
}
