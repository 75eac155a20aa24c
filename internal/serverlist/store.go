// Package serverlist maintains the durable, round-robin list of primary and
// satellite ByteBlaster endpoints the supervisor dials, including the
// in-band updates broadcast by the server itself (spec.md §4.6, §6).
package serverlist

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fxamacker/cbor/v2"
)

// Endpoint is one dialable "host:port" ByteBlaster server.
type Endpoint struct {
	Host string
	Port int
}

// String renders the endpoint in "host:port" dial-address form.
func (e Endpoint) String() string {
	return e.Host + ":" + strconv.Itoa(e.Port)
}

// document is the on-disk, CBOR-encoded representation of a Store. Field
// names are capitalized for cbor's default struct-tag-free encoding, same
// convention as the teacher's own State type.
type document struct {
	Primary    []Endpoint
	Satellite  []Endpoint
	ReceivedAt string // RFC 3339 UTC time the list was written
	Version    string
}

// Store holds the current primary/satellite endpoint lists plus a
// round-robin cursor into the primary list, and persists every replacement
// to disk. It is safe for concurrent use.
type Store struct {
	mu   sync.Mutex
	path string
	log  *log.Logger

	primary   []Endpoint
	satellite []Endpoint
	cursor    int
}

// Open loads path if present, falling back to DefaultPrimary and
// DefaultSatellite on any read
// or decode failure (spec.md §4.6: a corrupt or missing server list must
// never prevent startup).
func Open(path string, logger *log.Logger) *Store {
	s := &Store{path: path, log: logger}
	if err := s.load(); err != nil {
		logger.Warn("server list unavailable, using built-in defaults", "path", path, "err", err)
		s.primary = append([]Endpoint(nil), DefaultPrimary...)
		s.satellite = append([]Endpoint(nil), DefaultSatellite...)
	}
	return s
}

func (s *Store) load() error {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}
	var doc document
	if err := cbor.Unmarshal(raw, &doc); err != nil {
		return err
	}
	if len(doc.Primary) == 0 {
		return errors.New("server list: empty primary list on disk")
	}
	s.primary = doc.Primary
	s.satellite = doc.Satellite
	return nil
}

// Replace installs a new primary/satellite list (e.g. from an in-band
// SERVER_LIST announcement) and persists it. The cursor resets to the
// start of the new primary list. Per spec.md §4.6, this takes effect on the
// *next* connection attempt, not the current session — callers apply it at
// reconnect time, not mid-session.
func (s *Store) Replace(primary, satellite []Endpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(primary) == 0 {
		return errors.New("server list: refusing to replace with an empty primary list")
	}
	s.primary = primary
	s.satellite = satellite
	s.cursor = 0
	return s.persistLocked()
}

// persistLocked writes the current lists to disk using a write-temp,
// rename-aside, rename-into-place sequence so a crash mid-write never
// corrupts the previously-good file (mirrors the teacher's
// StateWriter.writeState, minus the encryption layer this data doesn't
// need).
func (s *Store) persistLocked() error {
	doc := document{
		Primary:    s.primary,
		Satellite:  s.satellite,
		ReceivedAt: time.Now().UTC().Format(time.RFC3339),
		Version:    "1.0",
	}
	payload, err := cbor.Marshal(doc)
	if err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	bak := s.path + "~"

	if err := os.WriteFile(tmp, payload, 0o600); err != nil {
		return err
	}
	if err := os.Remove(bak); err != nil && !os.IsNotExist(err) {
		return err
	}
	if err := os.Rename(s.path, bak); err != nil && !os.IsNotExist(err) {
		return err
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return err
	}
	if err := os.Remove(bak); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// NextPrimary returns the next primary endpoint in round-robin order. It
// panics if the primary list is empty, which Open/Replace never allow.
func (s *Store) NextPrimary() Endpoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	ep := s.primary[s.cursor%len(s.primary)]
	s.cursor++
	return ep
}

// Satellite returns a copy of the current satellite fallback list.
func (s *Store) Satellite() []Endpoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Endpoint(nil), s.satellite...)
}

// All returns a copy of the current primary list, in list order.
func (s *Store) All() []Endpoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Endpoint(nil), s.primary...)
}

// Size returns the number of primary endpoints.
func (s *Store) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.primary)
}

// ParseEndpoints converts "host:port" strings from a decoded
// SERVER_LIST frame into Endpoints, skipping any entry that fails to
// parse rather than rejecting the whole announcement.
func ParseEndpoints(hostPorts []string) []Endpoint {
	out := make([]Endpoint, 0, len(hostPorts))
	for _, hp := range hostPorts {
		idx := strings.LastIndexByte(hp, ':')
		if idx < 0 {
			continue
		}
		port, err := strconv.Atoi(hp[idx+1:])
		if err != nil {
			continue
		}
		out = append(out, Endpoint{Host: hp[:idx], Port: port})
	}
	return out
}
