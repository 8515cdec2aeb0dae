package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
)

// Config is the complete agent configuration. It is loaded once and passed
// down by pointer; nothing mutates it after Load returns.
type Config struct {
	// Hostname overrides the detected hostname when set
	Hostname string         `mapstructure:"hostname"`
	NetBox   NetBoxConfig   `mapstructure:"netbox"`
	Site     SiteConfig     `mapstructure:"site"`
	Probe    ProbeConfig    `mapstructure:"probe"`
	Schedule ScheduleConfig `mapstructure:"schedule"`
	NATS     NATSConfig     `mapstructure:"nats"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// NetBoxConfig holds the inventory backend connection settings
type NetBoxConfig struct {
	URL                string           `mapstructure:"url"`
	Token              string           `mapstructure:"token"`
	Timeout            time.Duration    `mapstructure:"timeout"`
	InsecureSkipVerify bool             `mapstructure:"insecure_skip_verify"`
	Auth               NetBoxAuthConfig `mapstructure:"auth"`
}

// NetBoxAuthConfig selects how the API token is obtained.
// "token" uses NetBox.Token as-is; "provision" exchanges a username and
// password for a token on first run and caches it in TokenFile.
type NetBoxAuthConfig struct {
	Type        string `mapstructure:"type"`
	Scheme      string `mapstructure:"scheme"` // "Token" or "Bearer"
	Username    string `mapstructure:"username"`
	PasswordEnv string `mapstructure:"password_env"`
	TokenFile   string `mapstructure:"token_file"`
}

// SiteConfig names the records the device is attached to. Either the
// name fields (role, device_type, manufacturer) or the id fields
// (role_id, device_type_id) are used, never a mix.
type SiteConfig struct {
	ID            int    `mapstructure:"id"`
	Tag           string `mapstructure:"tag"`
	Role          string `mapstructure:"role"`
	DeviceType    string `mapstructure:"device_type"`
	Manufacturer  string `mapstructure:"manufacturer"`
	RoleID        int    `mapstructure:"role_id"`
	DeviceTypeID  int    `mapstructure:"device_type_id"`
	RoleColor     string `mapstructure:"role_color"`
	InterfaceType string `mapstructure:"interface_type"`
	DeviceStatus  string `mapstructure:"device_status"`
}

// UsesIDs reports whether role and device type are referenced by
// pre-provisioned ids instead of being resolved by name.
func (s SiteConfig) UsesIDs() bool {
	return s.RoleID > 0 || s.DeviceTypeID > 0
}

// ProbeConfig controls host detection
type ProbeConfig struct {
	RouteSource    string        `mapstructure:"route_source"` // "command" or "proc"
	CommandTimeout time.Duration `mapstructure:"command_timeout"`
	PrefixLength   int           `mapstructure:"prefix_length"`
}

// ScheduleConfig controls daemon mode
type ScheduleConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

// NATSConfig configures the optional registration event publisher
type NATSConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	URLs          []string      `mapstructure:"urls"`
	SubjectPrefix string        `mapstructure:"subject_prefix"`
	Timeout       time.Duration `mapstructure:"timeout"`
	Auth          AuthConfig    `mapstructure:"auth"`
	TLS           TLSConfig     `mapstructure:"tls"`
}

// AuthConfig holds NATS authentication settings
type AuthConfig struct {
	Type      string `mapstructure:"type"` // none, token, userpass, creds
	Token     string `mapstructure:"token"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	CredsFile string `mapstructure:"creds_file"`
}

// TLSConfig holds NATS TLS settings
type TLSConfig struct {
	Enabled            bool   `mapstructure:"enabled"`
	CertFile           string `mapstructure:"cert_file"`
	KeyFile            string `mapstructure:"key_file"`
	CAFile             string `mapstructure:"ca_file"`
	InsecureSkipVerify bool   `mapstructure:"insecure_skip_verify"`
}

// MetricsConfig configures the node_exporter textfile output
type MetricsConfig struct {
	Textfile string `mapstructure:"textfile"`
}

// LoggingConfig controls log output and rotation
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

const envPrefix = "AUTOREGISTER"

// Load reads the configuration file at path, applies environment overrides
// (AUTOREGISTER_NETBOX_TOKEN and so on) and validates the result.
// A missing file is not an error; every setting can come from the environment.
func Load(path string) (*Config, error) {
	// .env is optional and only fills variables that are not already set
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.Is(err, fs.ErrNotExist) && !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// setDefaults registers a default for every key so AutomaticEnv can
// override keys that never appear in the file
func setDefaults(v *viper.Viper) {
	v.SetDefault("hostname", "")

	v.SetDefault("netbox.url", "")
	v.SetDefault("netbox.token", "")
	v.SetDefault("netbox.timeout", 30*time.Second)
	v.SetDefault("netbox.insecure_skip_verify", false)
	v.SetDefault("netbox.auth.type", "token")
	v.SetDefault("netbox.auth.scheme", "Token")
	v.SetDefault("netbox.auth.username", "")
	v.SetDefault("netbox.auth.password_env", "NETBOX_PASSWORD")

	v.SetDefault("site.id", 0)
	v.SetDefault("site.tag", "auto-register")
	v.SetDefault("site.role", "Server")
	v.SetDefault("site.device_type", "Generic Server")
	v.SetDefault("site.manufacturer", "Generic")
	v.SetDefault("site.role_id", 0)
	v.SetDefault("site.device_type_id", 0)
	v.SetDefault("site.role_color", "ff0000")
	v.SetDefault("site.interface_type", "1000base-t")
	v.SetDefault("site.device_status", "active")

	v.SetDefault("probe.route_source", "command")
	v.SetDefault("probe.command_timeout", 5*time.Second)
	v.SetDefault("probe.prefix_length", 24)

	v.SetDefault("schedule.interval", 24*time.Hour)

	v.SetDefault("nats.enabled", false)
	v.SetDefault("nats.urls", []string{"nats://localhost:4222"})
	v.SetDefault("nats.subject_prefix", "autoregister")
	v.SetDefault("nats.timeout", 5*time.Second)
	v.SetDefault("nats.auth.type", "none")
	v.SetDefault("nats.auth.token", "")
	v.SetDefault("nats.auth.username", "")
	v.SetDefault("nats.auth.password", "")
	v.SetDefault("nats.auth.creds_file", "")
	v.SetDefault("nats.tls.enabled", false)
	v.SetDefault("nats.tls.cert_file", "")
	v.SetDefault("nats.tls.key_file", "")
	v.SetDefault("nats.tls.ca_file", "")
	v.SetDefault("nats.tls.insecure_skip_verify", false)

	v.SetDefault("metrics.textfile", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.max_size_mb", 10)
	v.SetDefault("logging.max_backups", 3)

	UpdateConfigDefaults(v)
}

var (
	hexColorPattern     = regexp.MustCompile(`^[0-9a-fA-F]{6}$`)
	subjectTokenPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
)

// validate checks the configuration for missing or inconsistent settings
func validate(cfg *Config) error {
	if err := validateNetBox(&cfg.NetBox); err != nil {
		return err
	}
	if err := validateSite(&cfg.Site); err != nil {
		return err
	}

	switch cfg.Probe.RouteSource {
	case "command", "proc":
	default:
		return fmt.Errorf("probe.route_source must be \"command\" or \"proc\", got %q", cfg.Probe.RouteSource)
	}
	if cfg.Probe.PrefixLength < 1 || cfg.Probe.PrefixLength > 32 {
		return fmt.Errorf("probe.prefix_length must be between 1 and 32, got %d", cfg.Probe.PrefixLength)
	}
	if cfg.Probe.CommandTimeout < time.Second {
		return fmt.Errorf("probe.command_timeout must be at least 1 second")
	}

	if cfg.Schedule.Interval < time.Minute {
		return fmt.Errorf("schedule.interval must be at least 1 minute")
	}

	if cfg.NATS.Enabled {
		if err := validateNATS(&cfg.NATS); err != nil {
			return err
		}
	}

	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Logging.Level)); err != nil {
		return fmt.Errorf("invalid logging.level %q", cfg.Logging.Level)
	}

	return nil
}

func validateNetBox(cfg *NetBoxConfig) error {
	if cfg.URL == "" {
		return fmt.Errorf("netbox.url is required")
	}
	u, err := url.Parse(cfg.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("netbox.url must be an absolute http(s) URL, got %q", cfg.URL)
	}

	switch cfg.Auth.Scheme {
	case "Token", "Bearer":
	default:
		return fmt.Errorf("netbox.auth.scheme must be \"Token\" or \"Bearer\", got %q", cfg.Auth.Scheme)
	}

	switch cfg.Auth.Type {
	case "token":
		if cfg.Token == "" {
			return fmt.Errorf("netbox.token is required for token auth")
		}
	case "provision":
		if cfg.Auth.Username == "" || cfg.Auth.PasswordEnv == "" {
			return fmt.Errorf("netbox.auth.username and netbox.auth.password_env are required for provision auth")
		}
		if cfg.Auth.TokenFile == "" {
			return fmt.Errorf("netbox.auth.token_file is required for provision auth")
		}
	default:
		return fmt.Errorf("invalid netbox auth type: %s", cfg.Auth.Type)
	}

	if cfg.Timeout <= 0 {
		return fmt.Errorf("netbox.timeout must be positive")
	}
	return nil
}

func validateSite(cfg *SiteConfig) error {
	if cfg.ID <= 0 {
		return fmt.Errorf("site.id is required")
	}
	if strings.TrimSpace(cfg.Tag) == "" {
		return fmt.Errorf("site.tag is required")
	}

	if cfg.UsesIDs() {
		if cfg.RoleID <= 0 || cfg.DeviceTypeID <= 0 {
			return fmt.Errorf("site.role_id and site.device_type_id must both be set")
		}
	} else {
		if cfg.Role == "" || cfg.DeviceType == "" || cfg.Manufacturer == "" {
			return fmt.Errorf("site.role, site.device_type and site.manufacturer are required when ids are not set")
		}
		if !hexColorPattern.MatchString(cfg.RoleColor) {
			return fmt.Errorf("site.role_color must be a 6 digit hex color, got %q", cfg.RoleColor)
		}
	}

	if cfg.InterfaceType == "" {
		return fmt.Errorf("site.interface_type is required")
	}
	if cfg.DeviceStatus == "" {
		return fmt.Errorf("site.device_status is required")
	}
	return nil
}

func validateNATS(cfg *NATSConfig) error {
	if len(cfg.URLs) == 0 {
		return fmt.Errorf("nats.urls is required when nats is enabled")
	}
	if err := validateSubjectPrefix(cfg.SubjectPrefix); err != nil {
		return err
	}

	switch cfg.Auth.Type {
	case "none":
	case "token":
		if cfg.Auth.Token == "" {
			return fmt.Errorf("nats token is required for token auth")
		}
	case "userpass":
		if cfg.Auth.Username == "" || cfg.Auth.Password == "" {
			return fmt.Errorf("nats username and password are required for userpass auth")
		}
	case "creds":
		if cfg.Auth.CredsFile == "" {
			return fmt.Errorf("nats creds_file is required for creds auth")
		}
	default:
		return fmt.Errorf("invalid auth type: %s", cfg.Auth.Type)
	}

	if cfg.TLS.Enabled {
		if cfg.TLS.CertFile != "" && cfg.TLS.KeyFile == "" {
			return fmt.Errorf("key_file is required when cert_file is set")
		}
		if cfg.TLS.KeyFile != "" && cfg.TLS.CertFile == "" {
			return fmt.Errorf("cert_file is required when key_file is set")
		}
		if cfg.TLS.CertFile != "" {
			if _, err := os.Stat(cfg.TLS.CertFile); err != nil {
				return fmt.Errorf("certificate file not found: %s", cfg.TLS.CertFile)
			}
		}
		if cfg.TLS.KeyFile != "" {
			if _, err := os.Stat(cfg.TLS.KeyFile); err != nil {
				return fmt.Errorf("key file not found: %s", cfg.TLS.KeyFile)
			}
		}
		if cfg.TLS.CAFile != "" {
			if _, err := os.Stat(cfg.TLS.CAFile); err != nil {
				return fmt.Errorf("CA file not found: %s", cfg.TLS.CAFile)
			}
		}
	}

	if cfg.Timeout <= 0 {
		return fmt.Errorf("nats.timeout must be positive")
	}
	return nil
}

// validateSubjectPrefix checks a dot-separated NATS subject prefix
func validateSubjectPrefix(prefix string) error {
	if prefix == "" {
		return fmt.Errorf("subject_prefix is required")
	}
	if len(prefix) > 50 {
		return fmt.Errorf("subject_prefix must not exceed 50 characters")
	}
	if strings.HasPrefix(prefix, ".") || strings.HasSuffix(prefix, ".") {
		return fmt.Errorf("subject_prefix cannot start or end with a dot")
	}
	if strings.Contains(prefix, "..") {
		return fmt.Errorf("subject_prefix: consecutive dots not allowed")
	}
	for _, token := range strings.Split(prefix, ".") {
		if !subjectTokenPattern.MatchString(token) {
			return fmt.Errorf("subject_prefix token %q contains invalid characters", token)
		}
	}
	return nil
}
