// Package config provides configuration management for meraki-toolkit.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// SMTP connection modes
const (
	SMTPModeTLS      = "TLS"
	SMTPModeSTARTTLS = "STARTTLS"
	SMTPModePlain    = "SMTP"
)

// DefaultSender is used when no sender is configured
const DefaultSender = "MerakiToolkit"

// Config represents the psk command configuration
type Config struct {
	Organizations  []string `mapstructure:"organizations"`   // Organization names, ALL for every organization
	Networks       []string `mapstructure:"networks"`        // Network names, ALL for every network
	Tags           []string `mapstructure:"tags"`            // Network tags, any match selects
	SSID           string   `mapstructure:"ssid"`            // SSID name to update
	Passphrase     string   `mapstructure:"passphrase"`      // Fixed passphrase, empty to use MERAKITK_PSK or generate
	PassRandomize  bool     `mapstructure:"passrandomize"`   // Add entropy to a given passphrase
	DryRun         bool     `mapstructure:"dryrun"`          // Print the plan without applying it
	Verbose        int      `mapstructure:"verbose"`         // 0-3
	Mode           string   `mapstructure:"mode"`            // sequential or concurrent
	Concurrency    string   `mapstructure:"concurrency"`     // "auto" or number
	Output         string   `mapstructure:"output"`          // table or json
	LogFormat      string   `mapstructure:"log-format"`      // text, json or auto
	ShowProgress   bool     `mapstructure:"progress"`        // Show progress bar
	ShowStats      bool     `mapstructure:"stats"`           // Show live statistics
	Inventory      string   `mapstructure:"inventory"`       // Offline snapshot instead of the dashboard
	InventoryWrite bool     `mapstructure:"inventory-write"` // Persist snapshot changes on exit

	Email EmailConfig `mapstructure:"email"`
}

// EmailConfig configures the change notification
type EmailConfig struct {
	Recipients []string   `mapstructure:"recipients"`
	Template   string     `mapstructure:"template"` // Template directory, empty for the built-in set
	Sender     string     `mapstructure:"sender"`
	SMTP       SMTPConfig `mapstructure:"smtp"`
}

// SMTPConfig holds mail server settings
type SMTPConfig struct {
	Server   string `mapstructure:"server"`
	Port     int    `mapstructure:"port"`
	Mode     string `mapstructure:"mode"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"pass"`
}

// Enabled reports whether an email should be sent
func (e EmailConfig) Enabled() bool {
	return len(e.Recipients) > 0
}

// DefaultPort returns the conventional port for mode
func DefaultPort(mode string) int {
	switch mode {
	case SMTPModeTLS:
		return 465
	case SMTPModeSTARTTLS:
		return 587
	default:
		return 25
	}
}

// Manager defines the interface for configuration management
type Manager interface {
	// Load reads configuration from config files and MERAKITK_ variables
	Load() (*Config, error)

	// SetDefaults establishes default configuration values
	SetDefaults()

	// Validate ensures configuration values are valid and consistent
	Validate(config *Config) error

	// ConfigFileUsed names the file Load read, empty when none was found
	ConfigFileUsed() string
}

// ViperManager implements the Manager interface using Viper
type ViperManager struct {
	v     *viper.Viper
	paths []string
}

// NewManager creates a new configuration manager searching the current
// directory, ~/.config/meraki-toolkit and /etc/meraki-toolkit
func NewManager() Manager {
	paths := []string{"."}
	if homeDir, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(homeDir, ".config", "meraki-toolkit"))
	}
	paths = append(paths, "/etc/meraki-toolkit/")
	return newManager(paths...)
}

func newManager(paths ...string) *ViperManager {
	return &ViperManager{v: viper.New(), paths: paths}
}

// SetDefaults establishes default configuration values
func (m *ViperManager) SetDefaults() {
	m.v.SetDefault("organizations", []string{})
	m.v.SetDefault("networks", []string{})
	m.v.SetDefault("tags", []string{})
	m.v.SetDefault("ssid", "")
	m.v.SetDefault("passphrase", "")
	m.v.SetDefault("passrandomize", false)
	m.v.SetDefault("dryrun", false)
	m.v.SetDefault("verbose", 0)
	m.v.SetDefault("mode", "concurrent")
	m.v.SetDefault("concurrency", "auto")
	m.v.SetDefault("output", "table")
	m.v.SetDefault("log-format", "auto")
	m.v.SetDefault("progress", false)
	m.v.SetDefault("stats", false)
	m.v.SetDefault("inventory", "")
	m.v.SetDefault("inventory-write", false)
	m.v.SetDefault("email.recipients", []string{})
	m.v.SetDefault("email.template", "")
	m.v.SetDefault("email.sender", DefaultSender)
	m.v.SetDefault("email.smtp.server", "")
	m.v.SetDefault("email.smtp.port", 0)
	m.v.SetDefault("email.smtp.mode", "")
	m.v.SetDefault("email.smtp.user", "")
	m.v.SetDefault("email.smtp.pass", "")
}

// Load reads configuration from all sources with proper precedence. Flags
// are applied by the CLI afterwards.
func (m *ViperManager) Load() (*Config, error) {
	m.SetDefaults()

	m.v.SetConfigName("config")
	for _, path := range m.paths {
		m.v.AddConfigPath(path)
	}

	// MERAKITK_DRYRUN, MERAKITK_EMAIL_SMTP_SERVER, ...
	m.v.SetEnvPrefix("MERAKITK")
	m.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	m.v.AutomaticEnv()

	formats := []string{"yaml", "yml", "json", "toml"}
	for _, format := range formats {
		m.v.SetConfigType(format)
		if err := m.v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("error reading %s config file: %w", format, err)
			}
		} else {
			break
		}
	}

	var config Config
	if err := m.v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := m.Validate(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

// ConfigFileUsed returns the path of the loaded config file, if any
func (m *ViperManager) ConfigFileUsed() string {
	return m.v.ConfigFileUsed()
}

// Validate ensures enum values and ranges are valid. Required selection
// fields are checked when the rotation starts, once flags are applied.
func (m *ViperManager) Validate(config *Config) error {
	return Validate(config)
}

// Validate checks config independently of any manager
func Validate(config *Config) error {
	if config.Concurrency != "auto" && config.Concurrency != "" {
		if concurrency, err := strconv.Atoi(config.Concurrency); err != nil {
			return fmt.Errorf("invalid concurrency value '%s': must be 'auto' or a positive integer", config.Concurrency)
		} else if concurrency <= 0 {
			return fmt.Errorf("concurrency must be positive, got %d", concurrency)
		}
	}

	validModes := map[string]bool{
		"sequential": true,
		"concurrent": true,
	}
	if !validModes[config.Mode] {
		return fmt.Errorf("invalid mode '%s': must be one of 'sequential' or 'concurrent'", config.Mode)
	}

	if config.Verbose < 0 {
		return fmt.Errorf("verbose must be non-negative, got %d", config.Verbose)
	}

	validOutputs := map[string]bool{
		"table": true,
		"json":  true,
	}
	if !validOutputs[config.Output] {
		return fmt.Errorf("invalid output format '%s': must be one of 'table' or 'json'", config.Output)
	}

	validLogFormats := map[string]bool{
		"json": true,
		"text": true,
		"auto": true,
	}
	if !validLogFormats[config.LogFormat] {
		return fmt.Errorf("invalid log format '%s': must be one of 'json', 'text' or 'auto'", config.LogFormat)
	}

	if config.InventoryWrite && config.Inventory == "" {
		return fmt.Errorf("inventory-write requires an inventory file")
	}

	smtp := config.Email.SMTP
	if smtp.Mode != "" {
		switch smtp.Mode {
		case SMTPModeTLS, SMTPModeSTARTTLS, SMTPModePlain:
		default:
			return fmt.Errorf("invalid smtp mode '%s': must be one of 'TLS', 'STARTTLS' or 'SMTP'", smtp.Mode)
		}
	}
	if smtp.Port < 0 || smtp.Port > 65535 {
		return fmt.Errorf("smtp port out of range: %d", smtp.Port)
	}

	return nil
}
