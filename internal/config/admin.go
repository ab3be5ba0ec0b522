package config

import (
	"encoding/hex"
	"fmt"
	"time"
)

// AdminConfig holds the admin HTTP API settings.
type AdminConfig struct {
	Port string `envconfig:"PORT" default:"8080"`

	// APIKeyHash is the SHA-256 hash (hex) of the admin API key. The raw
	// key never appears in the environment.
	APIKeyHash string `envconfig:"API_KEY_HASH"`

	// SkipAuth disables authentication. Rejected in production.
	SkipAuth bool `envconfig:"SKIP_AUTH" default:"false"`

	ReadTimeout  time.Duration `envconfig:"READ_TIMEOUT" default:"10s"`
	WriteTimeout time.Duration `envconfig:"WRITE_TIMEOUT" default:"10s"`
	IdleTimeout  time.Duration `envconfig:"IDLE_TIMEOUT" default:"60s"`
}

// Validate checks the admin server configuration.
func (c *AdminConfig) Validate(environment string) error {
	if err := validatePort(c.Port, "admin"); err != nil {
		return err
	}

	if environment == EnvironmentProduction {
		if c.SkipAuth {
			return fmt.Errorf("admin authentication cannot be disabled in production environment")
		}
		if c.APIKeyHash == "" {
			return fmt.Errorf("admin API key hash is required in production environment")
		}
	}

	if c.APIKeyHash != "" {
		decoded, err := hex.DecodeString(c.APIKeyHash)
		if err != nil || len(decoded) != 32 {
			return fmt.Errorf("admin API key hash must be a hex-encoded SHA-256 digest")
		}
	}

	return nil
}
