package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"ecobee_automation/internal/models"

	"github.com/spf13/viper"
)

// Locator tells the navigation layer how to find one element.
type Locator struct {
	Strategy string `mapstructure:"strategy"` // css | xpath
	Value    string `mapstructure:"value"`
}

// Portal holds everything needed to reach and drive the web portal.
type Portal struct {
	LoginURL   string        `mapstructure:"login_url"`
	HomeURL    string        `mapstructure:"home_url"`
	Headless   bool          `mapstructure:"headless"`
	NavTimeout time.Duration `mapstructure:"nav_timeout"`
	SessionTTL time.Duration `mapstructure:"session_ttl"`
}

// Retry holds the backoff parameters for flaky UI operations.
type Retry struct {
	MaxAttempts       int           `mapstructure:"max_attempts"`
	BaseDelay         time.Duration `mapstructure:"base_delay"`
	BackoffMultiplier float64       `mapstructure:"backoff_multiplier"`
}

// Diagnostics bounds the on-disk failure artifact store.
type Diagnostics struct {
	Enabled       bool          `mapstructure:"enabled"`
	Dir           string        `mapstructure:"dir"`
	MaxArtifacts  int           `mapstructure:"max_artifacts"`
	MaxAge        time.Duration `mapstructure:"max_age"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// API configures the facade's own authentication (not the portal's).
type API struct {
	Username     string        `mapstructure:"username"`
	PasswordHash string        `mapstructure:"password_hash"` // bcrypt
	SigningKey   string        `mapstructure:"signing_key"`
	TokenTTL     time.Duration `mapstructure:"token_ttl"`
}

// Config is the resolved, immutable configuration for the whole process.
// It is built once in main and handed to constructors; nothing mutates it
// afterwards and there is no package-level instance.
type Config struct {
	Port     string
	LogLevel string
	DBPath   string

	Portal      Portal
	Credentials models.Credentials
	Thermostats map[string]string // symbolic name -> portal device id
	Selectors   map[string]Locator
	Retry       Retry
	Diagnostics Diagnostics
	API         API
}

// Defaults applied before file and environment layers.
const (
	defaultNavTimeout    = 20 * time.Second
	defaultSessionTTL    = 20 * time.Minute
	defaultMaxAttempts   = 3
	defaultBaseDelay     = 2 * time.Second
	defaultMultiplier    = 2.0
	defaultMaxArtifacts  = 20
	defaultMaxAge        = 24 * time.Hour
	defaultSweepInterval = time.Minute
	defaultTokenTTL      = time.Hour
)

// Load reads configs/config.yml, merges configs/local.yml if present, then
// lets environment variables override the portal credentials. The result is
// validated; any gap is a startup-fatal configuration error.
func Load(dir string) (*Config, error) {
	v := viper.New()
	v.AddConfigPath(dir)
	v.SetConfigName("config")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Optional local overrides, same shape, not committed.
	local := viper.New()
	local.AddConfigPath(dir)
	local.SetConfigName("local")
	if err := local.ReadInConfig(); err == nil {
		if err := v.MergeConfigMap(local.AllSettings()); err != nil {
			return nil, fmt.Errorf("merge local config: %w", err)
		}
	}

	// Secrets come from the environment when present.
	_ = v.BindEnv("ecobee.username", "ECOBEE_USERNAME")
	_ = v.BindEnv("ecobee.password", "ECOBEE_PASSWORD")

	setDefaults(v)

	cfg := &Config{
		Port:     v.GetString("port"),
		LogLevel: v.GetString("log_level"),
		DBPath:   v.GetString("db.path"),
		Credentials: models.Credentials{
			Username: v.GetString("ecobee.username"),
			Password: v.GetString("ecobee.password"),
		},
		Thermostats: v.GetStringMapString("thermostats"),
	}

	if err := v.UnmarshalKey("portal", &cfg.Portal); err != nil {
		return nil, fmt.Errorf("portal config: %w", err)
	}
	if err := v.UnmarshalKey("retry", &cfg.Retry); err != nil {
		return nil, fmt.Errorf("retry config: %w", err)
	}
	if err := v.UnmarshalKey("diagnostics", &cfg.Diagnostics); err != nil {
		return nil, fmt.Errorf("diagnostics config: %w", err)
	}
	if err := v.UnmarshalKey("api", &cfg.API); err != nil {
		return nil, fmt.Errorf("api config: %w", err)
	}

	selectors, err := loadSelectors(v)
	if err != nil {
		return nil, err
	}
	cfg.Selectors = selectors

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("log_level", "info")
	v.SetDefault("db.path", "app.db")
	v.SetDefault("portal.headless", true)
	v.SetDefault("portal.nav_timeout", defaultNavTimeout)
	v.SetDefault("portal.session_ttl", defaultSessionTTL)
	v.SetDefault("retry.max_attempts", defaultMaxAttempts)
	v.SetDefault("retry.base_delay", defaultBaseDelay)
	v.SetDefault("retry.backoff_multiplier", defaultMultiplier)
	v.SetDefault("diagnostics.enabled", true)
	v.SetDefault("diagnostics.dir", "diagnostics")
	v.SetDefault("diagnostics.max_artifacts", defaultMaxArtifacts)
	v.SetDefault("diagnostics.max_age", defaultMaxAge)
	v.SetDefault("diagnostics.sweep_interval", defaultSweepInterval)
	v.SetDefault("api.token_ttl", defaultTokenTTL)
}

// loadSelectors flattens the two-level selectors section into dotted symbolic
// names ("login.username_field") so navigation code resolves one flat map.
func loadSelectors(v *viper.Viper) (map[string]Locator, error) {
	var raw map[string]map[string]Locator
	if err := v.UnmarshalKey("selectors", &raw); err != nil {
		return nil, fmt.Errorf("selectors config: %w", err)
	}

	out := make(map[string]Locator, len(raw)*4)
	for group, elems := range raw {
		for elem, loc := range elems {
			name := group + "." + elem
			switch strings.ToLower(loc.Strategy) {
			case "css", "xpath":
			case "":
				return nil, fmt.Errorf("selector %q: missing strategy", name)
			default:
				return nil, fmt.Errorf("selector %q: unknown strategy %q (want css or xpath)", name, loc.Strategy)
			}
			if strings.TrimSpace(loc.Value) == "" {
				return nil, fmt.Errorf("selector %q: empty locator value", name)
			}
			out[name] = Locator{Strategy: strings.ToLower(loc.Strategy), Value: loc.Value}
		}
	}
	return out, nil
}

func (c *Config) validate() error {
	if c.Credentials.Username == "" || c.Credentials.Password == "" {
		return errors.New("ecobee credentials missing: set ecobee.username/ecobee.password or ECOBEE_USERNAME/ECOBEE_PASSWORD")
	}
	if c.Portal.LoginURL == "" || c.Portal.HomeURL == "" {
		return errors.New("portal.login_url and portal.home_url are required")
	}
	if len(c.Thermostats) == 0 {
		return errors.New("at least one thermostat must be configured")
	}
	for name, id := range c.Thermostats {
		if strings.TrimSpace(id) == "" {
			return fmt.Errorf("thermostat %q: empty portal device id", name)
		}
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be >= 1, got %d", c.Retry.MaxAttempts)
	}
	if c.Retry.BackoffMultiplier < 1 {
		return fmt.Errorf("retry.backoff_multiplier must be >= 1, got %g", c.Retry.BackoffMultiplier)
	}
	if c.Diagnostics.Enabled && c.Diagnostics.MaxArtifacts < 1 {
		return fmt.Errorf("diagnostics.max_artifacts must be >= 1, got %d", c.Diagnostics.MaxArtifacts)
	}
	if c.API.Username == "" || c.API.PasswordHash == "" || c.API.SigningKey == "" {
		return errors.New("api.username, api.password_hash and api.signing_key are required")
	}
	return nil
}
