package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

type ServerConfig struct {
	Port         int    `toml:"port"`
	AllowOrigins string `toml:"allow_origins"`
}

type IMAPConfig struct {
	Server string `toml:"server"`
	Port   int    `toml:"port"`
	Folder string `toml:"folder"`
}

type FetchConfig struct {
	Window int `toml:"window"`
}

type JWTConfig struct {
	Secret        string `toml:"secret"` // For JWT signing
	ExpiryMinutes int    `toml:"expiry_minutes"`
}

func (c JWTConfig) Expiry() time.Duration {
	return time.Duration(c.ExpiryMinutes) * time.Minute
}

type CacheConfig struct {
	Path         string `toml:"path"`
	TTLMinutes   int    `toml:"ttl_minutes"`
	SweepMinutes int    `toml:"sweep_minutes"`
}

func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLMinutes) * time.Minute
}

func (c CacheConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepMinutes) * time.Minute
}

type EncryptionConfig struct {
	Key string `toml:"key"` // 16, 24 or 32-byte key for AES encryption
}

type Config struct {
	Server     ServerConfig     `toml:"server"`
	IMAP       IMAPConfig       `toml:"imap"`
	Fetch      FetchConfig      `toml:"fetch"`
	JWT        JWTConfig        `toml:"jwt"`
	Cache      CacheConfig      `toml:"cache"`
	Encryption EncryptionConfig `toml:"encryption"`
}

// LoadConfig reads the TOML config file. Secrets can be supplied through the
// environment (optionally via a .env file) instead of the config file:
// DOCMAIL_JWT_SECRET and DOCMAIL_ENCRYPTION_KEY override their TOML values.
func LoadConfig(filepath string) (*Config, error) {
	// A missing .env file is not an error
	godotenv.Load()

	var config Config

	// Set default values
	config.Server.Port = 8000
	config.Server.AllowOrigins = "*"
	config.IMAP.Server = "imap.gmail.com"
	config.IMAP.Port = 993
	config.IMAP.Folder = "INBOX"
	config.Fetch.Window = 20
	config.JWT.ExpiryMinutes = 30
	config.Cache.Path = "./data/docmail.db"
	config.Cache.TTLMinutes = 24 * 60
	config.Cache.SweepMinutes = 15

	if _, err := toml.DecodeFile(filepath, &config); err != nil {
		return nil, err
	}

	if secret := os.Getenv("DOCMAIL_JWT_SECRET"); secret != "" {
		config.JWT.Secret = secret
	}
	if key := os.Getenv("DOCMAIL_ENCRYPTION_KEY"); key != "" {
		config.Encryption.Key = key
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate checks that the configuration can actually run the server.
func (c *Config) Validate() error {
	if c.IMAP.Server == "" {
		return fmt.Errorf("imap server is required")
	}
	if c.JWT.Secret == "" {
		return fmt.Errorf("jwt secret is required (config or DOCMAIL_JWT_SECRET)")
	}
	switch len(c.Encryption.Key) {
	case 16, 24, 32:
	default:
		return fmt.Errorf("encryption key must be 16, 24 or 32 bytes, got %d", len(c.Encryption.Key))
	}
	return nil
}
