package app

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/belgacembalti/Secure-Digital-Card/pkg/httpx"
	"github.com/ilyakaznacheev/cleanenv"
)

// DefaultConfigFile is looked up in the working directory when no other
// config file is given.
const DefaultConfigFile = "bankctl.yaml"

// Config is the CLI configuration. Sources, by priority:
//  1. the path passed to Load (the --config flag);
//  2. the BANKCTL_CONFIG environment variable;
//  3. ./bankctl.yaml;
//  4. environment variables only.
//
// Environment variables override values read from a file.
type Config struct {
	Env       string `yaml:"env"        env:"ENV"        env-default:"prod"`
	LogLevel  string `yaml:"log_level"  env:"LOG_LEVEL"  env-default:"warn"`
	LogFormat string `yaml:"log_format" env:"LOG_FORMAT" env-default:"text"`

	// Output is "text" or "json".
	Output string `yaml:"output" env:"BANKCTL_OUTPUT" env-default:"text"`

	API       APIConfig             `yaml:"api"`
	Store     StoreConfig           `yaml:"store"`
	Capture   CaptureConfig         `yaml:"capture"`
	RateLimit httpx.RateLimitConfig `yaml:"rate_limit" env-prefix:"BANKCTL_"`
}

type APIConfig struct {
	BaseURL        string        `yaml:"base_url"        env:"BANK_API_URL"         env-default:"http://localhost:8000/api"`
	Timeout        time.Duration `yaml:"timeout"         env:"BANK_API_TIMEOUT"     env-default:"10s"`
	RenewalTimeout time.Duration `yaml:"renewal_timeout" env:"BANK_RENEWAL_TIMEOUT" env-default:"15s"`
}

// StoreConfig locates the credential database. Empty paths resolve under
// the user config directory.
type StoreConfig struct {
	DatabaseFile  string `yaml:"database_file"   env:"BANKCTL_DATABASE_FILE"`
	MasterKey     string `yaml:"master_key"      env:"BANKCTL_MASTER_KEY"`
	MasterKeyFile string `yaml:"master_key_file" env:"BANKCTL_MASTER_KEY_FILE"`
}

// CaptureConfig is the external camera command used by face-login when no
// image file is given. Its stdout must be a single JPEG, PNG or GIF frame.
type CaptureConfig struct {
	Command string        `yaml:"command" env:"BANKCTL_CAPTURE_COMMAND"`
	Args    []string      `yaml:"args"    env:"BANKCTL_CAPTURE_ARGS"    env-separator:" "`
	Timeout time.Duration `yaml:"timeout" env:"BANKCTL_CAPTURE_TIMEOUT" env-default:"10s"`
}

// MustLoad is Load that panics on error.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}
	return cfg
}

func Load(path string) (*Config, error) {
	var cfg Config

	if path == "" {
		path = os.Getenv("BANKCTL_CONFIG")
	}
	if path == "" {
		if _, err := os.Stat(DefaultConfigFile); err == nil {
			path = DefaultConfigFile
		}
	}

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file does not exist: %s", path)
		}
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	if err := cfg.resolvePaths(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// resolvePaths fills the store paths left empty.
func (c *Config) resolvePaths() error {
	if c.Store.DatabaseFile != "" && (c.Store.MasterKey != "" || c.Store.MasterKeyFile != "") {
		return nil
	}

	dir, err := os.UserConfigDir()
	if err != nil {
		return fmt.Errorf("failed to locate user config directory: %w", err)
	}
	dir = filepath.Join(dir, "bankctl")

	if c.Store.DatabaseFile == "" {
		c.Store.DatabaseFile = filepath.Join(dir, "credentials.db")
	}
	if c.Store.MasterKey == "" && c.Store.MasterKeyFile == "" {
		c.Store.MasterKeyFile = filepath.Join(dir, "master.key")
	}
	return nil
}

func (c *Config) validate() error {
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("api.base_url must be an absolute http(s) URL, got %q", c.API.BaseURL)
	}
	if c.API.Timeout <= 0 {
		return errors.New("api.timeout must be > 0")
	}
	if c.API.RenewalTimeout <= 0 {
		return errors.New("api.renewal_timeout must be > 0")
	}
	if c.Capture.Timeout <= 0 {
		return errors.New("capture.timeout must be > 0")
	}
	switch strings.ToLower(c.Output) {
	case "text", "json":
	default:
		return fmt.Errorf("output must be text or json, got %q", c.Output)
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("log_format must be text or json, got %q", c.LogFormat)
	}
	if c.RateLimit.RequestsPerWindow < 0 || c.RateLimit.Burst < 0 {
		return errors.New("rate_limit values must be >= 0")
	}
	return nil
}
