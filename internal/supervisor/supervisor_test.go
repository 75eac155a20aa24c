package supervisor

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/require"

	"github.com/bradsjm/byte-blaster/internal/auth"
	"github.com/bradsjm/byte-blaster/internal/decoder"
	"github.com/bradsjm/byte-blaster/internal/metrics"
	"github.com/bradsjm/byte-blaster/internal/obfuscate"
	"github.com/bradsjm/byte-blaster/internal/serverlist"
)

func testLogger() *log.Logger {
	return log.New(os.Stderr)
}

func testAuthn(t *testing.T) *auth.Authenticator {
	t.Helper()
	a, err := auth.New("ops@example.com")
	require.NoError(t, err)
	return a
}

func testStore(t *testing.T, endpoints ...serverlist.Endpoint) *serverlist.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "servers.cbor")
	store := serverlist.Open(path, testLogger())
	require.NoError(t, store.Replace(endpoints, nil))
	return store
}

func tcpEndpoint(t *testing.T, l net.Listener) serverlist.Endpoint {
	t.Helper()
	addr, ok := l.Addr().(*net.TCPAddr)
	require.True(t, ok)
	return serverlist.Endpoint{Host: "127.0.0.1", Port: addr.Port}
}

func gatherCounter(t *testing.T, m *metrics.Metrics, name string) float64 {
	t.Helper()
	mfs, err := m.Registry.Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf.Metric[0].GetCounter().GetValue()
		}
	}
	return 0
}

func waitForCounter(t *testing.T, m *metrics.Metrics, name string, min float64, within time.Duration) {
	t.Helper()
	deadline := time.Now().Add(within)
	for time.Now().Before(deadline) {
		if gatherCounter(t, m, name) >= min {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("counter %s never reached %v within %v", name, min, within)
}

// maskedFrame returns the on-wire (XOR-0xFF masked) bytes for a demasked
// sync marker (six 0xFF) followed by body, i.e. exactly what a real
// ByteBlaster server would put on the TCP socket for this frame (spec.md
// §9, internal/decoder/fsm.go's syncMarker doc comment).
func maskedFrame(body string) []byte {
	plain := append([]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}, []byte(body)...)
	out := append([]byte(nil), plain...)
	obfuscate.Mask(out)
	return out
}

// TestWatchdogExpiryTriggersReconnectWithinOneTick exercises invariant 8: a
// session that never produces a single inbound byte is torn down once
// WatchdogTimeout elapses, and the connect loop redials afterward.
func TestWatchdogExpiryTriggersReconnectWithinOneTick(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()

	accepts := make(chan struct{}, 8)
	go func() {
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			accepts <- struct{}{}
			// Never write anything back: lastRead on the supervisor side
			// never advances, so the watchdog must be the thing that ends
			// this session.
			go func(c net.Conn) {
				buf := make([]byte, 256)
				for {
					if _, err := c.Read(buf); err != nil {
						return
					}
				}
			}(conn)
		}
	}()

	store := testStore(t, tcpEndpoint(t, l))
	watchdogTimeout := 150 * time.Millisecond
	cfg := Config{
		WatchdogTimeout: watchdogTimeout,
		MaxExceptions:   50,
		ReconnectDelay:  10 * time.Millisecond,
		ReconnectMax:    50 * time.Millisecond,
		ConnectTimeout:  time.Second,
		KeepaliveEvery:  10 * time.Second,
		HaltTimeout:     time.Second,
	}
	m := metrics.New()
	sup := New(cfg, testLogger(), store, testAuthn(t), m, func(decoder.Segment) {}, nil)

	start := time.Now()
	sup.Start()
	defer sup.Stop()

	select {
	case <-accepts:
	case <-time.After(time.Second):
		t.Fatal("supervisor never dialed the test server")
	}

	waitForCounter(t, m, "byteblaster_watchdog_expiries_total", 1, 2*time.Second)
	elapsed := time.Since(start)
	require.Less(t, elapsed, 5*watchdogTimeout, "watchdog should fire within a small multiple of its timeout, not linger")

	// The session teardown must feed back into a reconnect: the fake
	// server accepts a second connection.
	select {
	case <-accepts:
	case <-time.After(time.Second):
		t.Fatal("connect loop did not redial after watchdog teardown")
	}
}

// TestKeepaliveCadenceSendsLogonRepeatedly exercises invariant 9: successive
// logon writes are spaced KeepaliveEvery apart (the supervisor sends one
// immediately on connect, then one per tick) as long as the session stays
// up, independent of the watchdog (set generously long here so it never
// fires during the test).
func TestKeepaliveCadenceSendsLogonRepeatedly(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()

	logons := make(chan time.Time, 8)
	go func() {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 256)
		for {
			n, err := conn.Read(buf)
			if err != nil {
				return
			}
			if n == 0 {
				continue
			}
			chunk := append([]byte(nil), buf[:n]...)
			obfuscate.Mask(chunk)
			if strings.HasPrefix(string(chunk), "ByteBlast Client") {
				logons <- time.Now()
			}
		}
	}()

	store := testStore(t, tcpEndpoint(t, l))
	keepaliveEvery := 150 * time.Millisecond
	cfg := Config{
		WatchdogTimeout: 5 * time.Second,
		MaxExceptions:   50,
		ReconnectDelay:  10 * time.Millisecond,
		ReconnectMax:    50 * time.Millisecond,
		ConnectTimeout:  time.Second,
		KeepaliveEvery:  keepaliveEvery,
		HaltTimeout:     time.Second,
	}
	m := metrics.New()
	sup := New(cfg, testLogger(), store, testAuthn(t), m, func(decoder.Segment) {}, nil)
	sup.Start()
	defer sup.Stop()

	var first, second time.Time
	select {
	case first = <-logons:
	case <-time.After(time.Second):
		t.Fatal("no initial logon observed")
	}
	select {
	case second = <-logons:
	case <-time.After(2 * time.Second):
		t.Fatal("no second logon observed within the keepalive cadence")
	}

	gap := second.Sub(first)
	require.Greater(t, gap, keepaliveEvery/2, "second logon arrived too soon for the configured cadence")
	require.Less(t, gap, 4*keepaliveEvery, "second logon arrived too late for the configured cadence")
}

// TestServerListUpdateDrivesFailover exercises scenario S6: an in-band
// SERVER_LIST announcement rewrites the store, and the connect loop dials
// the newly advertised server on its next attempt rather than the one it
// just disconnected from.
func TestServerListUpdateDrivesFailover(t *testing.T) {
	l1, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l1.Close()
	l2, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l2.Close()

	l2Connected := make(chan struct{}, 1)
	go func() {
		conn, err := l2.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		select {
		case l2Connected <- struct{}{}:
		default:
		}
		buf := make([]byte, 256)
		for {
			if _, err := conn.Read(buf); err != nil {
				return
			}
		}
	}()

	l2ep := tcpEndpoint(t, l2)
	go func() {
		conn, err := l1.Accept()
		if err != nil {
			return
		}
		body := fmt.Sprintf("X/ServerList/%s\r\n", serverlist.Endpoint{Host: l2ep.Host, Port: l2ep.Port}.String())
		_, _ = conn.Write(maskedFrame(body))
		conn.Close()
	}()

	store := testStore(t, tcpEndpoint(t, l1))
	cfg := Config{
		WatchdogTimeout: 5 * time.Second,
		MaxExceptions:   50,
		ReconnectDelay:  10 * time.Millisecond,
		ReconnectMax:    50 * time.Millisecond,
		ConnectTimeout:  time.Second,
		KeepaliveEvery:  5 * time.Second,
		HaltTimeout:     time.Second,
	}
	m := metrics.New()
	sup := New(cfg, testLogger(), store, testAuthn(t), m, func(decoder.Segment) {}, nil)
	sup.Start()
	defer sup.Stop()

	select {
	case <-l2Connected:
	case <-time.After(2 * time.Second):
		t.Fatal("connect loop never dialed the server advertised by the SERVER_LIST update")
	}

	require.Equal(t, []serverlist.Endpoint{l2ep}, store.All(), "store must persist the announced primary list")
}
