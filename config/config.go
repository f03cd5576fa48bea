package config

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Session bootstrap policies
const (
	BootstrapLoginOnly    = "login_only"
	BootstrapEagerSession = "eager_session"
)

// Session storage drivers
const (
	StorageBolt   = "bbolt"
	StorageRedis  = "redis"
	StorageMemory = "memory"
)

type ServerConfig struct {
	Port        int    `toml:"port"`
	Environment string `toml:"environment"`
	LogLevel    string `toml:"log_level"`
	CSRF        bool   `toml:"csrf"`
	Templates   string `toml:"templates"`
	Assets      string `toml:"assets"`
	Locales     string `toml:"locales"`
}

type BackendConfig struct {
	URL     string        `toml:"url"`
	Timeout time.Duration `toml:"timeout"` // 0 disables the client timeout
}

type AuthConfig struct {
	Bootstrap string `toml:"bootstrap"` // login_only or eager_session
}

type SessionConfig struct {
	Storage      string        `toml:"storage"`
	DataDir      string        `toml:"data_dir"`
	Expiration   time.Duration `toml:"expiration"`
	CookieSecure bool          `toml:"cookie_secure"`
	ViewTTL      time.Duration `toml:"view_ttl"` // idle lifetime of per-session page state
}

type RedisConfig struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
}

type StudyConfig struct {
	TransitionDelay time.Duration `toml:"transition_delay"`
}

type JWTConfig struct {
	Secret    string        `toml:"secret"` // For stream ticket signing
	TicketTTL time.Duration `toml:"ticket_ttl"`
}

type EncryptionConfig struct {
	Key string `toml:"key"` // seals backend cookies at rest
}

type RateLimitConfig struct {
	Requests int           `toml:"requests"`
	Window   time.Duration `toml:"window"`
}

type SSLConfig struct {
	Enabled    bool   `toml:"enabled"`
	CertFile   string `toml:"cert_file"` // Path to fullchain.pem
	KeyFile    string `toml:"key_file"`  // Path to privkey.pem
	Domain     string `toml:"domain"`    // Domain name for HSTS
	HSTSMaxAge int    `toml:"hsts_max_age"`
}

type Config struct {
	Server     ServerConfig     `toml:"server"`
	Backend    BackendConfig    `toml:"backend"`
	Auth       AuthConfig       `toml:"auth"`
	Session    SessionConfig    `toml:"session"`
	Redis      RedisConfig      `toml:"redis"`
	Study      StudyConfig      `toml:"study"`
	JWT        JWTConfig        `toml:"jwt"`
	Encryption EncryptionConfig `toml:"encryption"`
	RateLimit  RateLimitConfig  `toml:"rate_limit"`
	SSL        SSLConfig        `toml:"ssl"`
}

// Default returns the configuration used when no file is present
func Default() *Config {
	var config Config

	config.Server.Port = 3000
	config.Server.Environment = "development"
	config.Server.LogLevel = "info"
	config.Server.CSRF = true
	config.Server.Templates = "./templates"
	config.Server.Assets = "./assets"
	config.Server.Locales = "./locales"

	config.Backend.URL = "http://localhost:8000/api"
	config.Backend.Timeout = 15 * time.Second

	config.Auth.Bootstrap = BootstrapLoginOnly

	config.Session.Storage = StorageBolt
	config.Session.DataDir = "./data"
	config.Session.Expiration = 24 * time.Hour
	config.Session.ViewTTL = 2 * time.Hour

	config.Redis.Addr = "localhost:6379"

	config.Study.TransitionDelay = 400 * time.Millisecond

	config.JWT.TicketTTL = 5 * time.Minute

	config.RateLimit.Requests = 100
	config.RateLimit.Window = time.Minute

	config.SSL.HSTSMaxAge = 31536000 // 1 year

	return &config
}

// LoadConfig reads the TOML file over the defaults and applies FLASHDECK_*
// environment overrides (a .env file in the working directory is honoured).
func LoadConfig(filepath string) (*Config, error) {
	config := Default()

	if _, err := toml.DecodeFile(filepath, config); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to decode %s: %w", filepath, err)
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	if err := config.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("FLASHDECK_PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("FLASHDECK_PORT: %w", err)
		}
		c.Server.Port = port
	}
	if v, ok := lookup("FLASHDECK_ENV"); ok {
		c.Server.Environment = v
	}
	if v, ok := lookup("FLASHDECK_BACKEND_URL"); ok {
		c.Backend.URL = v
	}
	if v, ok := lookup("FLASHDECK_BOOTSTRAP"); ok {
		c.Auth.Bootstrap = v
	}
	if v, ok := lookup("FLASHDECK_SESSION_STORAGE"); ok {
		c.Session.Storage = v
	}
	if v, ok := lookup("FLASHDECK_REDIS_ADDR"); ok {
		c.Redis.Addr = v
	}
	if v, ok := lookup("FLASHDECK_JWT_SECRET"); ok {
		c.JWT.Secret = v
	}
	if v, ok := lookup("FLASHDECK_ENCRYPTION_KEY"); ok {
		c.Encryption.Key = v
	}
	return nil
}

// Validate checks the settings that cannot be defaulted
func (c *Config) Validate() error {
	u, err := url.Parse(c.Backend.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("backend url %q is not an absolute URL", c.Backend.URL)
	}

	switch c.Auth.Bootstrap {
	case BootstrapLoginOnly, BootstrapEagerSession:
	default:
		return fmt.Errorf("unknown auth bootstrap policy %q", c.Auth.Bootstrap)
	}

	switch strings.ToLower(c.Session.Storage) {
	case StorageBolt, StorageRedis, StorageMemory:
		c.Session.Storage = strings.ToLower(c.Session.Storage)
	default:
		return fmt.Errorf("unknown session storage %q", c.Session.Storage)
	}

	if c.Study.TransitionDelay < 0 {
		return fmt.Errorf("study transition delay must not be negative")
	}

	if c.RateLimit.Requests <= 0 || c.RateLimit.Window <= 0 {
		return fmt.Errorf("rate limit needs positive requests and window")
	}

	if c.SSL.Enabled {
		if err := c.ValidateSSL(); err != nil {
			return fmt.Errorf("SSL configuration error: %w", err)
		}
	}

	return nil
}

// ValidateSSL checks if the SSL configuration is valid
func (c *Config) ValidateSSL() error {
	if c.SSL.CertFile == "" {
		return fmt.Errorf("SSL certificate file path is required")
	}

	if c.SSL.KeyFile == "" {
		return fmt.Errorf("SSL key file path is required")
	}

	_, err := tls.LoadX509KeyPair(c.SSL.CertFile, c.SSL.KeyFile)
	if err != nil {
		return fmt.Errorf("failed to load SSL certificates: %w", err)
	}

	return nil
}

// HSTSHeader returns the Strict-Transport-Security value, or "" when SSL is off
func (c *Config) HSTSHeader() string {
	if !c.SSL.Enabled || c.SSL.Domain == "" {
		return ""
	}
	return fmt.Sprintf("max-age=%d; includeSubDomains", c.SSL.HSTSMaxAge)
}
