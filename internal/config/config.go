package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds application configuration loaded from environment variables.
type Config struct {
	Port        int    `envconfig:"PORT" default:"8080"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`
	Version     string `envconfig:"VERSION" default:"dev"`

	// PublicURL is the externally reachable base URL of this app. It is
	// embedded in the OAuth client metadata and the callback redirect URI.
	PublicURL string `envconfig:"PUBLIC_URL" required:"true"`

	// CookieSecret seals the browser session cookie. Any non-empty string;
	// it is hashed down to the cipher key size.
	CookieSecret  string `envconfig:"COOKIE_SECRET" required:"true"`
	SecureCookies bool   `envconfig:"SECURE_COOKIES" default:"true"`

	PLCHost            string `envconfig:"PLC_HOST" default:"https://plc.directory"`
	HandleResolverHost string `envconfig:"HANDLE_RESOLVER_HOST" default:"https://public.api.bsky.app"`

	FeedPageSize     int           `envconfig:"FEED_PAGE_SIZE" default:"10"`
	ResolverCacheTTL time.Duration `envconfig:"RESOLVER_CACHE_TTL" default:"10m"`
	ResolverTimeout  time.Duration `envconfig:"RESOLVER_TIMEOUT" default:"3s"`
}

// Load reads configuration from environment variables into a Config struct.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
