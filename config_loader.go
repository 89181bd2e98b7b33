package authkit

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"go.pilab.hu/authkit/ratelimit"
	"go.pilab.hu/authkit/session"
)

// FileConfig is the flat, serializable subset of Config read from YAML
// files and environment variables. Provider credentials are listed per
// vendor; only vendors with a client id are considered configured.
type FileConfig struct {
	SessionSecret     string `mapstructure:"SESSION_SECRET"`
	SessionCookieName string `mapstructure:"SESSION_COOKIE_NAME"`
	SessionMaxAgeSec  int    `mapstructure:"SESSION_MAX_AGE_SEC"`
	SessionSecure     bool   `mapstructure:"SESSION_SECURE"`

	BaseURL          string   `mapstructure:"BASE_URL"`
	BasePath         string   `mapstructure:"BASE_PATH"`
	AllowedRedirects []string `mapstructure:"ALLOWED_REDIRECTS"`

	RateLimitDisabled  bool `mapstructure:"RATE_LIMIT_DISABLED"`
	RateLimitMax       int  `mapstructure:"RATE_LIMIT_MAX"`
	RateLimitWindowSec int  `mapstructure:"RATE_LIMIT_WINDOW_SEC"`

	Providers map[string]ProviderCredentials `mapstructure:"PROVIDERS"`
}

// ProviderCredentials holds one vendor's OAuth client settings.
type ProviderCredentials struct {
	ClientID     string   `mapstructure:"CLIENT_ID"`
	ClientSecret string   `mapstructure:"CLIENT_SECRET"`
	Scopes       []string `mapstructure:"SCOPES"`
	CallbackURL  string   `mapstructure:"CALLBACK_URL"`
	Prompt       string   `mapstructure:"PROMPT"`
}

// LoadFileConfig reads configuration from a config.yaml on the search
// paths, overlaid with environment variables (AUTHKIT_ prefix, dots
// replaced by underscores). A missing file is fine; defaults and env vars
// apply.
func LoadFileConfig() (*FileConfig, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/authkit/")
	v.AddConfigPath("$HOME/.authkit")
	v.AddConfigPath(".")

	v.SetEnvPrefix("AUTHKIT")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("SESSION_COOKIE_NAME", "authkit_session")
	v.SetDefault("SESSION_MAX_AGE_SEC", 86400)
	v.SetDefault("SESSION_SECURE", true)
	v.SetDefault("BASE_PATH", "/auth")
	v.SetDefault("RATE_LIMIT_MAX", 10)
	v.SetDefault("RATE_LIMIT_WINDOW_SEC", 60)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg FileConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	return &cfg, nil
}

// ToConfig converts the file form into a Config. Providers are not
// instantiated here; use Credentials to look up a vendor's settings when
// constructing them.
func (fc *FileConfig) ToConfig() Config {
	cfg := Config{
		Session: session.Config{
			Secret:     fc.SessionSecret,
			CookieName: fc.SessionCookieName,
			MaxAge:     fc.SessionMaxAgeSec,
			Secure:     fc.SessionSecure,
		},
		BaseURL:          fc.BaseURL,
		BasePath:         fc.BasePath,
		AllowedRedirects: fc.AllowedRedirects,
		DisableRateLimit: fc.RateLimitDisabled,
	}
	if fc.RateLimitMax > 0 || fc.RateLimitWindowSec > 0 {
		cfg.RateLimit = &ratelimit.Config{
			Max:    fc.RateLimitMax,
			Window: time.Duration(fc.RateLimitWindowSec) * time.Second,
		}
	}
	return cfg
}

// Credentials returns the settings for one vendor and whether they are
// present with a client id.
func (fc *FileConfig) Credentials(vendor string) (ProviderCredentials, bool) {
	pc, ok := fc.Providers[vendor]
	if !ok || pc.ClientID == "" {
		return ProviderCredentials{}, false
	}
	return pc, true
}
