// Package config handles configuration for the AuthKeeper server,
// including defaults, JSON overlay, and command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/cryptox"
)

// Config holds runtime settings for the AuthKeeper server.
//
// Fields:
//   - EndpointAddrHTTP: bind address for the JSON/HTTP API.
//   - EndpointAddrGRPC: bind address for the gRPC health endpoint.
//   - DatabaseDSN: credential store location. Empty or "memory" keeps users
//     in process memory, "sqlite:<path>" opens SQLite, "postgres://..." PostgreSQL (pgx).
//   - SecretKey: HMAC secret for signing session JWTs (HS256). Do not use test defaults in prod.
//   - SessionTokenValidityDuration / ResetTokenValidityDuration: token lifetimes.
//   - PasswordHashAlgorithm / PasswordHashCost: "bcrypt" cost or "argon2id" iterations.
//   - MinPasswordLength: shortest accepted plaintext password.
//   - FrontendURL: base of the reset link mailed to users.
//   - RequestTimeout: upper bound for a single use case, store calls included.
//   - SMTPHost / SMTPPort / SMTPUser / SMTPPassword / MailFrom: reset mail
//     delivery. Without SMTPHost reset requests are logged but no mail is sent.
type Config struct {
	EndpointAddrHTTP             string
	EndpointAddrGRPC             string
	DatabaseDSN                  string
	SecretKey                    string
	SessionTokenValidityDuration time.Duration
	ResetTokenValidityDuration   time.Duration
	PasswordHashAlgorithm        string
	PasswordHashCost             int
	MinPasswordLength            int
	FrontendURL                  string
	RequestTimeout               time.Duration
	SMTPHost                     string
	SMTPPort                     int
	SMTPUser                     string
	SMTPPassword                 string
	MailFrom                     string
}

// LoadDefaults populates Config with development defaults.
// NOTE: SecretKey is insecure for production and must be overridden.
func (c *Config) LoadDefaults() {
	c.EndpointAddrHTTP = ":3000"
	c.EndpointAddrGRPC = ":50051"
	c.DatabaseDSN = ""
	c.SecretKey = "secretKey"
	c.SessionTokenValidityDuration = 60 * time.Minute
	c.ResetTokenValidityDuration = 15 * time.Minute
	c.PasswordHashAlgorithm = cryptox.AlgorithmBcrypt
	c.PasswordHashCost = 10
	c.MinPasswordLength = 8
	c.FrontendURL = "http://localhost:5173"
	c.RequestTimeout = 5 * time.Second
	c.SMTPPort = 587
	c.MailFrom = "no-reply@authkeeper.local"
}

// Validate reports settings the server cannot start with.
func (c *Config) Validate() error {
	var errs []error
	if c.SecretKey == "" {
		errs = append(errs, errors.New("secret key must not be empty"))
	}
	if c.SessionTokenValidityDuration <= 0 {
		errs = append(errs, errors.New("session token validity must be positive"))
	}
	if c.ResetTokenValidityDuration <= 0 {
		errs = append(errs, errors.New("reset token validity must be positive"))
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, errors.New("request timeout must be positive"))
	}
	if c.MinPasswordLength < 1 {
		errs = append(errs, errors.New("minimum password length must be at least 1"))
	}
	if err := cryptox.ValidateCost(c.PasswordHashAlgorithm, c.PasswordHashCost); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// LoadConfig builds a Config by applying defaults, then overlaying values
// from an optional JSON file and finally from command-line flags.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg, os.Args[1:])
	parseFlags(cfg, os.Args[1:])
	return cfg
}
