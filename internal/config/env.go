package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/caarlos0/env/v9"
)

// Environment holds the secrets read straight from the process environment.
// They are not part of the viper configuration so that they never end up in
// a config file.
type Environment struct {
	APIKey string `env:"MERAKI_DASHBOARD_API_KEY"`
	// "::" separated passphrase candidates
	PSK string `env:"MERAKITK_PSK"`
	// server::port::mode::user::pass
	SMTP string `env:"MERAKITK_SMTP"`
}

// LoadEnvironment parses the process environment
func LoadEnvironment() (Environment, error) {
	return parseEnvironment(nil)
}

func parseEnvironment(environment map[string]string) (Environment, error) {
	var e Environment
	opts := env.Options{}
	if environment != nil {
		opts.Environment = environment
	}
	if err := env.ParseWithOptions(&e, opts); err != nil {
		return Environment{}, fmt.Errorf("parsing environment: %w", err)
	}
	return e, nil
}

// ApplySMTP fills every unset field of smtp from the MERAKITK_SMTP tuple.
// Fields that were set explicitly are kept.
func (e Environment) ApplySMTP(smtp *SMTPConfig) error {
	if e.SMTP == "" {
		return nil
	}

	parts := strings.Split(e.SMTP, "::")
	field := func(i int) string {
		if i < len(parts) {
			return parts[i]
		}
		return ""
	}

	if smtp.Server == "" {
		smtp.Server = field(0)
	}
	if smtp.Port == 0 && field(1) != "" {
		port, err := strconv.Atoi(field(1))
		if err != nil {
			return fmt.Errorf("MERAKITK_SMTP: invalid port %q", field(1))
		}
		smtp.Port = port
	}
	if smtp.Mode == "" {
		smtp.Mode = field(2)
	}
	if smtp.User == "" {
		smtp.User = field(3)
	}
	if smtp.Password == "" {
		smtp.Password = field(4)
	}
	return nil
}

// ResolveSMTP applies the environment fallback, then the built-in defaults:
// TLS mode and the conventional port of the mode
func (e Environment) ResolveSMTP(smtp SMTPConfig) (SMTPConfig, error) {
	if err := e.ApplySMTP(&smtp); err != nil {
		return SMTPConfig{}, err
	}
	switch smtp.Mode {
	case "":
		smtp.Mode = SMTPModeTLS
	case SMTPModeTLS, SMTPModeSTARTTLS, SMTPModePlain:
	default:
		return SMTPConfig{}, fmt.Errorf("invalid smtp mode '%s': must be one of 'TLS', 'STARTTLS' or 'SMTP'", smtp.Mode)
	}
	if smtp.Port == 0 {
		smtp.Port = DefaultPort(smtp.Mode)
	}
	if smtp.Server == "" {
		return SMTPConfig{}, fmt.Errorf("no SMTP server: set --smtp-server or MERAKITK_SMTP")
	}
	return smtp, nil
}
