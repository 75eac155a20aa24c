package byteblaster

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds every option recognized by the client (spec.md §6). Zero
// values are not replaced by defaults — start from DefaultConfig() and
// override fields, or load a TOML file with LoadConfig.
type Config struct {
	Email string `toml:"email"`

	ServerListPath string `toml:"server_list_path"`

	WatchdogTimeout time.Duration `toml:"-"`
	WatchdogSeconds int           `toml:"watchdog_timeout"`

	MaxExceptions int `toml:"max_exceptions"`

	ReconnectDelay   time.Duration `toml:"-"`
	ReconnectSeconds int           `toml:"reconnect_delay"`
	ReconnectMax     time.Duration `toml:"-"`

	ConnectTimeout   time.Duration `toml:"-"`
	ConnectSeconds   int           `toml:"connection_timeout"`

	AssemblerIdleTimeout time.Duration `toml:"-"`
	AssemblerCapacity    int           `toml:"assembler_capacity"`

	SubscriberQueueSize int `toml:"subscriber_queue_size"`

	HaltTimeout time.Duration `toml:"-"`
}

// DefaultConfig returns a Config populated with spec.md §6's documented
// defaults.
func DefaultConfig() Config {
	return Config{
		ServerListPath:       "byteblaster-servers.cbor",
		WatchdogTimeout:      20 * time.Second,
		MaxExceptions:        10,
		ReconnectDelay:       5 * time.Second,
		ReconnectMax:         2 * time.Minute,
		ConnectTimeout:       15 * time.Second,
		AssemblerIdleTimeout: 10 * time.Minute,
		AssemblerCapacity:    1024,
		SubscriberQueueSize:  64,
		HaltTimeout:          5 * time.Second,
	}
}

// LoadConfig applies defaults, then overrides them with path's contents if
// it exists. A missing file is not an error; malformed TOML is.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	cfg.applySecondsFields()
	return cfg, nil
}

// applySecondsFields copies non-zero `*_seconds`/plain-int TOML fields onto
// their time.Duration counterparts, since BurntSushi/toml has no native
// duration type.
func (c *Config) applySecondsFields() {
	if c.WatchdogSeconds > 0 {
		c.WatchdogTimeout = time.Duration(c.WatchdogSeconds) * time.Second
	}
	if c.ReconnectSeconds > 0 {
		c.ReconnectDelay = time.Duration(c.ReconnectSeconds) * time.Second
	}
	if c.ConnectSeconds > 0 {
		c.ConnectTimeout = time.Duration(c.ConnectSeconds) * time.Second
	}
}

// Validate enforces spec.md §7's one fatal-at-startup rule: a missing or
// blank email is a configuration error, not a retryable condition.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Email) == "" {
		return fmt.Errorf("%w: email is required", ErrInvalidConfig)
	}
	if c.MaxExceptions <= 0 {
		return fmt.Errorf("%w: max_exceptions must be positive", ErrInvalidConfig)
	}
	if c.WatchdogTimeout <= 0 {
		return fmt.Errorf("%w: watchdog_timeout must be positive", ErrInvalidConfig)
	}
	return nil
}
