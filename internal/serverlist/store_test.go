package serverlist

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/require"
)

func testLogger() *log.Logger {
	return log.New(os.Stderr)
}

func TestOpenMissingFileFallsBackToDefaults(t *testing.T) {
	s := Open(filepath.Join(t.TempDir(), "does-not-exist.cbor"), testLogger())
	require.Equal(t, len(DefaultPrimary), s.Size())
	require.Equal(t, DefaultPrimary, s.All())
}

func TestReplacePersistsAndReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "servers.cbor")
	s := Open(path, testLogger())

	primary := []Endpoint{{Host: "a.example.com", Port: 2211}, {Host: "b.example.com", Port: 2211}}
	satellite := []Endpoint{{Host: "sat.example.com", Port: 2211}}
	require.NoError(t, s.Replace(primary, satellite))

	reloaded := Open(path, testLogger())
	require.Equal(t, primary, reloaded.All())
	require.Equal(t, satellite, reloaded.Satellite())
}

func TestReplaceRejectsEmptyPrimary(t *testing.T) {
	s := Open(filepath.Join(t.TempDir(), "servers.cbor"), testLogger())
	err := s.Replace(nil, nil)
	require.Error(t, err)
}

// TestNextPrimaryRoundRobinsEveryEndpoint covers spec.md §8 invariant 7:
// round-robin selection must visit every primary endpoint before repeating.
func TestNextPrimaryRoundRobinsEveryEndpoint(t *testing.T) {
	s := Open(filepath.Join(t.TempDir(), "servers.cbor"), testLogger())
	primary := []Endpoint{{Host: "a", Port: 1}, {Host: "b", Port: 2}, {Host: "c", Port: 3}}
	require.NoError(t, s.Replace(primary, nil))

	seen := map[string]bool{}
	for i := 0; i < len(primary); i++ {
		seen[s.NextPrimary().String()] = true
	}
	require.Len(t, seen, len(primary))

	// The cursor wraps around rather than stopping.
	require.Equal(t, primary[0].String(), s.NextPrimary().String())
}

func TestParseEndpointsSkipsUnparseable(t *testing.T) {
	eps := ParseEndpoints([]string{"host1:2211", "no-port", "host2:80"})
	require.Equal(t, []Endpoint{{Host: "host1", Port: 2211}, {Host: "host2", Port: 80}}, eps)
}

func TestEndpointString(t *testing.T) {
	require.Equal(t, "host:2211", Endpoint{Host: "host", Port: 2211}.String())
}
