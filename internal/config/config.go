// Package config loads kleinsync settings from flags, environment, an
// optional .env file and an optional YAML config file, in that order of
// precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/jmylchreest/kleinsync/internal/browser"
)

// EnvPrefix prefixes every environment variable, e.g. KLEINSYNC_STORE.
const EnvPrefix = "KLEINSYNC"

// Config is the resolved configuration.
type Config struct {
	Debug   bool `mapstructure:"debug"`
	Quiet   bool `mapstructure:"quiet"`
	LogJSON bool `mapstructure:"log_json"`

	// EncryptionKey is the secret the password key is derived from. It is
	// only required by commands that touch stored credentials.
	EncryptionKey string `mapstructure:"encryption_key"`

	Store         string `mapstructure:"store" validate:"oneof=postgres memory"`
	SelectorsFile string `mapstructure:"selectors_file"`

	Database Database `mapstructure:"database"`
	Browser  Browser  `mapstructure:"browser"`
	Sync     Sync     `mapstructure:"sync"`
}

// Database configures the Postgres store.
type Database struct {
	URL             string        `mapstructure:"url"`
	MaxConns        int32         `mapstructure:"max_conns" validate:"min=1"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time" validate:"min=0"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime" validate:"min=0"`
}

// Browser configures the headless browser.
type Browser struct {
	ChromePath        string        `mapstructure:"chrome_path"`
	UserAgent         string        `mapstructure:"user_agent"`
	Headless          bool          `mapstructure:"headless"`
	BlockResources    bool          `mapstructure:"block_resources"`
	Screenshots       bool          `mapstructure:"screenshots"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" validate:"gt=0"`
	ElementTimeout    time.Duration `mapstructure:"element_timeout" validate:"gt=0"`
	LoginProbe        time.Duration `mapstructure:"login_probe" validate:"gt=0"`
	SendSettle        time.Duration `mapstructure:"send_settle" validate:"min=0"`
	PollInterval      time.Duration `mapstructure:"poll_interval" validate:"gt=0"`
}

// Sync configures the orchestrator and daemon.
type Sync struct {
	AccountDelay      time.Duration `mapstructure:"account_delay" validate:"min=0"`
	ConversationDelay time.Duration `mapstructure:"conversation_delay" validate:"min=0"`
	AccountTimeout    time.Duration `mapstructure:"account_timeout" validate:"min=0"`
	Interval          time.Duration `mapstructure:"interval" validate:"gte=1m"`
}

// SetDefaults registers a default for every key so environment variables
// are picked up by Unmarshal.
func SetDefaults(v *viper.Viper) {
	bc := browser.DefaultConfig()

	v.SetDefault("debug", false)
	v.SetDefault("quiet", false)
	v.SetDefault("log_json", false)
	v.SetDefault("encryption_key", "")
	v.SetDefault("store", "postgres")
	v.SetDefault("selectors_file", "")

	v.SetDefault("database.url", "")
	v.SetDefault("database.max_conns", 4)
	v.SetDefault("database.max_conn_idle_time", 5*time.Minute)
	v.SetDefault("database.max_conn_lifetime", time.Hour)

	v.SetDefault("browser.chrome_path", "")
	v.SetDefault("browser.user_agent", bc.UserAgent)
	v.SetDefault("browser.headless", bc.Headless)
	v.SetDefault("browser.block_resources", bc.BlockResources)
	v.SetDefault("browser.screenshots", false)
	v.SetDefault("browser.navigation_timeout", bc.NavigationTimeout)
	v.SetDefault("browser.element_timeout", bc.ElementTimeout)
	v.SetDefault("browser.login_probe", bc.LoginProbe)
	v.SetDefault("browser.send_settle", bc.SendSettle)
	v.SetDefault("browser.poll_interval", bc.PollInterval)

	v.SetDefault("sync.account_delay", 2*time.Second)
	v.SetDefault("sync.conversation_delay", time.Second)
	v.SetDefault("sync.account_timeout", 10*time.Minute)
	v.SetDefault("sync.interval", 15*time.Minute)
}

// Init prepares v: defaults, environment binding and the config file.
// cfgFile overrides the default search for .kleinsync.yaml in the home
// and working directories. A missing default config file is not an error.
func Init(v *viper.Viper, cfgFile string) error {
	SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
		v.AddConfigPath(".")
		v.SetConfigName(".kleinsync")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Unprefixed names shared with other deployments of the same database.
	_ = v.BindEnv("encryption_key", EnvPrefix+"_ENCRYPTION_KEY", "ENCRYPTION_KEY")
	_ = v.BindEnv("database.url", EnvPrefix+"_DATABASE_URL", "DATABASE_URL")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}
	return nil
}

// LoadDotEnv loads environment variables from the given .env files, or
// ./.env when none are given. Missing files are ignored; variables already
// set in the environment win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// Load decodes and validates v.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// RequirePostgres reports a missing database URL for the postgres store.
func (c *Config) RequirePostgres() error {
	if c.Store == "postgres" && strings.TrimSpace(c.Database.URL) == "" {
		return errors.New("invalid config: database.url is required for the postgres store (set DATABASE_URL)")
	}
	return nil
}

// BrowserConfig maps browser settings onto browser.Config.
func (c *Config) BrowserConfig() browser.Config {
	return browser.Config{
		UserAgent:         c.Browser.UserAgent,
		ChromePath:        c.Browser.ChromePath,
		Headless:          c.Browser.Headless,
		BlockResources:    c.Browser.BlockResources,
		Screenshots:       c.Browser.Screenshots,
		NavigationTimeout: c.Browser.NavigationTimeout,
		ElementTimeout:    c.Browser.ElementTimeout,
		LoginProbe:        c.Browser.LoginProbe,
		SendSettle:        c.Browser.SendSettle,
		PollInterval:      c.Browser.PollInterval,
	}
}
