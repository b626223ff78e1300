package notifyclient

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config is read from NOTIFY_CLIENT_* environment variables.
type Config struct {
	BaseURL string        `envconfig:"BASE_URL" required:"true"`
	Token   string        `envconfig:"TOKEN"`
	Timeout time.Duration `envconfig:"TIMEOUT" default:"10s"`

	Debounce         time.Duration `envconfig:"DEBOUNCE" default:"300ms"`
	MaxInFlight      int64         `envconfig:"MAX_IN_FLIGHT" default:"6"`
	BreakerThreshold int           `envconfig:"BREAKER_THRESHOLD" default:"5"`
	BreakerCooldown  time.Duration `envconfig:"BREAKER_COOLDOWN" default:"30s"`

	// Used by the inbox.
	InitDelay time.Duration `envconfig:"INIT_DELAY" default:"1s"`
	CachePath string        `envconfig:"CACHE_PATH"`
}

const envPrefix = "NOTIFY_CLIENT"

func LoadConfig() (Config, error) {
	var cfg Config
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to load client config: %w", err)
	}
	return cfg, nil
}
