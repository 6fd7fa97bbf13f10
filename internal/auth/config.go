package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

const minSecretLength = 32

// Config controls bearer token issuing and verification.
type Config struct {
	JWTSecret string        `env:"FIELDOPS_AUTH_JWT_SECRET"`
	Issuer    string        `env:"FIELDOPS_AUTH_ISSUER"    envDefault:"fieldops"`
	TokenTTL  time.Duration `env:"FIELDOPS_AUTH_TOKEN_TTL" envDefault:"15m"`
	Leeway    time.Duration `env:"FIELDOPS_AUTH_LEEWAY"    envDefault:"30s"`
}

// LoadConfig reads the auth settings from the environment.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse auth env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if len(strings.TrimSpace(c.JWTSecret)) < minSecretLength {
		return fmt.Errorf("FIELDOPS_AUTH_JWT_SECRET must be at least %d characters", minSecretLength)
	}
	if strings.TrimSpace(c.Issuer) == "" {
		return errors.New("FIELDOPS_AUTH_ISSUER cannot be empty")
	}
	if c.TokenTTL <= 0 {
		return errors.New("FIELDOPS_AUTH_TOKEN_TTL must be positive")
	}
	if c.Leeway < 0 {
		return errors.New("FIELDOPS_AUTH_LEEWAY cannot be negative")
	}
	return nil
}
