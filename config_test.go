package byteblaster

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfigValidatesOnlyWithEmail(t *testing.T) {
	cfg := DefaultConfig()
	require.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)

	cfg.Email = "ops@example.com"
	require.NoError(t, cfg.Validate())
}

func TestLoadConfigMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	require.Equal(t, DefaultConfig().WatchdogTimeout, cfg.WatchdogTimeout)
}

func TestLoadConfigAppliesOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	body := `
email = "ops@example.com"
watchdog_timeout = 30
max_exceptions = 5
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "ops@example.com", cfg.Email)
	require.Equal(t, 30*time.Second, cfg.WatchdogTimeout)
	require.Equal(t, 5, cfg.MaxExceptions)
	require.NoError(t, cfg.Validate())
}

func TestLoadConfigMalformedTomlErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("not = [valid"), 0o644))

	_, err := LoadConfig(path)
	require.ErrorIs(t, err, ErrInvalidConfig)
}
