// Package config loads opx configuration from file, environment, and
// struct-tag defaults.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/spf13/viper"

	"github.com/isometry/opx/internal/ldap"
)

// Config is the full opx configuration.
type Config struct {
	Directory   DirectoryConfig   `mapstructure:"directory"`
	Exchange    ExchangeConfig    `mapstructure:"exchange"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
	Log         LogConfig         `mapstructure:"log"`
}

// DirectoryConfig configures the Active Directory connection.
type DirectoryConfig struct {
	Domain         string        `mapstructure:"domain"`
	URLs           []string      `mapstructure:"urls"`
	BaseDN         string        `mapstructure:"base_dn"`
	Username       string        `mapstructure:"username"`
	Password       string        `mapstructure:"password"`
	KerberosRealm  string        `mapstructure:"kerberos_realm"`
	KerberosKeytab string        `mapstructure:"kerberos_keytab"`
	KerberosCCache string        `mapstructure:"kerberos_ccache"`
	KerberosConfig string        `mapstructure:"kerberos_config"`
	UseTLS         bool          `mapstructure:"use_tls" default:"true"`
	Timeout        time.Duration `mapstructure:"timeout" default:"30s"`
	PageSize       int           `mapstructure:"page_size" default:"1000"`
}

// ExchangeConfig configures the remote management surface.
type ExchangeConfig struct {
	// Endpoint pins the management endpoint to a specific server FQDN.
	// When empty, the first mailbox server discovered in the directory
	// is used.
	Endpoint        string        `mapstructure:"endpoint"`
	Port            int           `mapstructure:"port" default:"5985"`
	UseHTTPS        bool          `mapstructure:"use_https"`
	Insecure        bool          `mapstructure:"insecure"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	DialTimeout     time.Duration `mapstructure:"dial_timeout" default:"30s"`
	DialAttempts    uint          `mapstructure:"dial_attempts" default:"3"`
	ScriptDirectory string        `mapstructure:"script_directory" default:"C:\\Program Files\\Microsoft\\Exchange Server\\V15\\Scripts"`
}

// MaintenanceConfig tunes the maintenance orchestrator.
type MaintenanceConfig struct {
	// NotExpectedActive is the component-active-count threshold above
	// which a server is assumed NOT to be in maintenance.
	NotExpectedActive int           `mapstructure:"not_expected_active" default:"2"`
	PollInterval      time.Duration `mapstructure:"poll_interval" default:"10s"`
	PollTimeout       time.Duration `mapstructure:"poll_timeout" default:"45m"`
	Requester         string        `mapstructure:"requester" default:"Maintenance"`
}

// LogConfig configures console and operation logging.
type LogConfig struct {
	Dir   string `mapstructure:"dir"`
	Level string `mapstructure:"level" default:"info"`
}

// Load reads configuration from the given file (optional), the standard
// search paths, and OPX_* environment variables, then applies defaults to
// anything still unset.
func Load(file string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("opx")
	v.SetConfigType("yaml")
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/opx")
		v.AddConfigPath("/etc/opx")
	}

	v.SetEnvPrefix("OPX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if file != "" {
			return nil, fmt.Errorf("failed to read config file %s: %w", file, err)
		}
		// A missing config file is fine; env and defaults still apply.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := defaults.Set(&cfg); err != nil {
		return nil, fmt.Errorf("failed to apply config defaults: %w", err)
	}

	return &cfg, nil
}

// LDAP converts the directory section into an LDAP connection config.
func (c *Config) LDAP() *ldap.ConnectionConfig {
	lc := ldap.DefaultConfig()
	lc.Domain = c.Directory.Domain
	lc.LDAPURLs = c.Directory.URLs
	lc.BaseDN = c.Directory.BaseDN
	lc.Username = c.Directory.Username
	lc.Password = c.Directory.Password
	lc.KerberosRealm = c.Directory.KerberosRealm
	lc.KerberosKeytab = c.Directory.KerberosKeytab
	lc.KerberosCCache = c.Directory.KerberosCCache
	lc.KerberosConfig = c.Directory.KerberosConfig
	lc.UseTLS = c.Directory.UseTLS
	if c.Directory.Timeout > 0 {
		lc.Timeout = c.Directory.Timeout
	}
	if c.Directory.PageSize > 0 {
		lc.PageSize = c.Directory.PageSize
	}
	return lc
}
